package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"github.com/sgknoldus/movie-booking-sub000/internal/domain"
	"github.com/sgknoldus/movie-booking-sub000/internal/dto"
	"github.com/sgknoldus/movie-booking-sub000/internal/service"
	"github.com/sgknoldus/movie-booking-sub000/pkg/middleware"
	"github.com/sgknoldus/movie-booking-sub000/pkg/response"
	"github.com/sgknoldus/movie-booking-sub000/pkg/telemetry"
)

// BookingHandler serves the booking endpoints
type BookingHandler struct {
	service *service.BookingService
}

// NewBookingHandler creates the booking handler
func NewBookingHandler(svc *service.BookingService) *BookingHandler {
	return &BookingHandler{service: svc}
}

// RegisterRoutes mounts the booking endpoints on the authenticated group
func (h *BookingHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/bookings", h.BookTickets)
	rg.GET("/bookings", h.ListBookings)
	rg.GET("/bookings/:bookingRef", h.GetBooking)
	rg.POST("/bookings/:bookingRef/cancel", h.CancelBooking)
}

// BookTickets handles POST /bookings
func (h *BookingHandler) BookTickets(c *gin.Context) {
	var req dto.BookTicketsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	userID := c.GetString(middleware.ContextKeyUserID)
	telemetry.SetSpanAttributes(c.Request.Context(),
		attribute.String("booking.show_id", req.ShowID))

	booking, err := h.service.BookTickets(c.Request.Context(), &service.BookTicketsRequest{
		UserID:      userID,
		ShowID:      req.ShowID,
		SeatNumbers: req.SeatNumbers,
	})
	if err != nil {
		h.writeBookingError(c, err)
		return
	}

	response.Created(c, dto.ToBookingResponse(booking))
}

// GetBooking handles GET /bookings/:bookingRef
func (h *BookingHandler) GetBooking(c *gin.Context) {
	userID := c.GetString(middleware.ContextKeyUserID)

	booking, err := h.service.GetBooking(c.Request.Context(), c.Param("bookingRef"), userID)
	if err != nil {
		if errors.Is(err, domain.ErrBookingNotFound) {
			response.NotFound(c, "booking not found")
			return
		}
		response.InternalError(c, err)
		return
	}

	response.Success(c, dto.ToBookingResponse(booking))
}

// ListBookings handles GET /bookings
func (h *BookingHandler) ListBookings(c *gin.Context) {
	userID := c.GetString(middleware.ContextKeyUserID)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	bookings, total, err := h.service.GetUserBookings(c.Request.Context(), userID, limit, offset)
	if err != nil {
		response.InternalError(c, err)
		return
	}

	resp := &dto.BookingListResponse{
		Bookings: make([]*dto.BookingResponse, 0, len(bookings)),
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	}
	for _, b := range bookings {
		resp.Bookings = append(resp.Bookings, dto.ToBookingResponse(b))
	}
	response.Success(c, resp)
}

// CancelBooking handles POST /bookings/:bookingRef/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	userID := c.GetString(middleware.ContextKeyUserID)

	booking, err := h.service.CancelBooking(c.Request.Context(), c.Param("bookingRef"), userID)
	if err != nil {
		if errors.Is(err, domain.ErrBookingNotFound) {
			response.NotFound(c, "booking not found")
			return
		}
		h.writeBookingError(c, err)
		return
	}

	response.Success(c, dto.ToBookingResponse(booking))
}

// writeBookingError maps typed booking failures onto status codes:
// busy lock 503, seat conflict 409, declined payment 402, the rest 500.
func (h *BookingHandler) writeBookingError(c *gin.Context, err error) {
	telemetry.SetSpanError(c.Request.Context(), err)

	be, ok := domain.AsBookingError(err)
	if !ok {
		response.InternalError(c, err)
		return
	}

	switch be.Kind {
	case domain.ErrKindResourceBusy:
		response.Error(c, http.StatusServiceUnavailable, string(be.Kind), be.Message, "")
	case domain.ErrKindSeatsUnavailable:
		response.ErrorWithSeats(c, http.StatusConflict, string(be.Kind), be.Message, be.UnavailableSeats)
	case domain.ErrKindPaymentFailed:
		// Surface the gateway's own message and make clear no money moved.
		details := "no charge was applied"
		if cause := be.Unwrap(); cause != nil {
			details = cause.Error() + "; no charge was applied"
		}
		response.Error(c, http.StatusPaymentRequired, string(be.Kind), be.Message, details)
	case domain.ErrKindNotFound:
		response.NotFound(c, be.Message)
	case domain.ErrKindInvalidState:
		response.Error(c, http.StatusConflict, string(be.Kind), be.Message, "")
	default:
		response.Error(c, http.StatusInternalServerError, string(be.Kind), be.Message, "")
	}
}
