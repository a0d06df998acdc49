package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRedisStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeRedisStore() *fakeRedisStore {
	return &fakeRedisStore{data: make(map[string]string)}
}

func (f *fakeRedisStore) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.data[key]; ok {
		return redis.NewStringResult(v, nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (f *fakeRedisStore) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value.(string)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedisStore) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedisStore) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func newIdempotentRouter(store *fakeRedisStore, handlerCalls *int, status int) *gin.Engine {
	r := gin.New()
	r.Use(Idempotency(DefaultIdempotencyConfig(store)))
	r.POST("/bookings", func(c *gin.Context) {
		*handlerCalls++
		c.JSON(status, gin.H{"call": *handlerCalls})
	})
	return r
}

func post(r *gin.Engine, key, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotencyReplaysCompletedResponse(t *testing.T) {
	store := newFakeRedisStore()
	calls := 0
	r := newIdempotentRouter(store, &calls, http.StatusCreated)

	first := post(r, "key-1", `{"show_id":"s1"}`)
	require.Equal(t, http.StatusCreated, first.Code)
	require.Equal(t, 1, calls)

	second := post(r, "key-1", `{"show_id":"s1"}`)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, 1, calls, "handler must not run twice")
	assert.Equal(t, "true", second.Header().Get("X-Idempotent-Replay"))
	assert.Equal(t, first.Body.String(), second.Body.String())
}

func TestIdempotencyRejectsKeyReuseWithDifferentBody(t *testing.T) {
	store := newFakeRedisStore()
	calls := 0
	r := newIdempotentRouter(store, &calls, http.StatusCreated)

	post(r, "key-1", `{"show_id":"s1"}`)
	w := post(r, "key-1", `{"show_id":"s2"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, 1, calls)
}

func TestIdempotencyAllowsRetryAfterFailure(t *testing.T) {
	store := newFakeRedisStore()
	calls := 0
	r := newIdempotentRouter(store, &calls, http.StatusInternalServerError)

	post(r, "key-1", `{"show_id":"s1"}`)
	post(r, "key-1", `{"show_id":"s1"}`)

	// failed responses are not cached, so the retry executes
	assert.Equal(t, 2, calls)
}

func TestIdempotencyPassThroughWithoutKey(t *testing.T) {
	store := newFakeRedisStore()
	calls := 0
	r := newIdempotentRouter(store, &calls, http.StatusCreated)

	post(r, "", `{"show_id":"s1"}`)
	post(r, "", `{"show_id":"s1"}`)

	assert.Equal(t, 2, calls)
	assert.Empty(t, store.data)
}

func TestIdempotencyRequiredRejectsMissingKey(t *testing.T) {
	store := newFakeRedisStore()
	cfg := DefaultIdempotencyConfig(store)
	cfg.Required = true

	r := gin.New()
	r.Use(Idempotency(cfg))
	r.POST("/bookings", func(c *gin.Context) { c.Status(http.StatusCreated) })

	w := post(r, "", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIdempotencyInFlightConflict(t *testing.T) {
	store := newFakeRedisStore()
	cfg := DefaultIdempotencyConfig(store)

	started := make(chan struct{})
	release := make(chan struct{})

	r := gin.New()
	r.Use(Idempotency(cfg))
	r.POST("/bookings", func(c *gin.Context) {
		close(started)
		<-release
		c.Status(http.StatusCreated)
	})

	done := make(chan *httptest.ResponseRecorder)
	go func() {
		done <- post(r, "key-1", `{}`)
	}()
	<-started

	// duplicate while the first request is still running
	dup := post(r, "key-1", `{}`)
	assert.Equal(t, http.StatusConflict, dup.Code)

	close(release)
	first := <-done
	assert.Equal(t, http.StatusCreated, first.Code)
}
