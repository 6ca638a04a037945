package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

type fakeCounter struct {
	counts    map[string]int64
	expires   map[string]time.Duration
	err       error
	expireErr error
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{counts: map[string]int64{}, expires: map[string]time.Duration{}}
}

func (f *fakeCounter) Incr(_ context.Context, key string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.counts[key]++
	return redis.NewIntResult(f.counts[key], nil)
}

func (f *fakeCounter) Expire(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	if f.expireErr != nil {
		return redis.NewBoolResult(false, f.expireErr)
	}
	f.expires[key] = ttl
	return redis.NewBoolResult(true, nil)
}

// TTL mirrors Redis: -1 for a key without expiry, -2 for a missing key.
func (f *fakeCounter) TTL(_ context.Context, key string) *redis.DurationCmd {
	if _, ok := f.counts[key]; !ok {
		return redis.NewDurationResult(-2, nil)
	}
	if ttl, ok := f.expires[key]; ok {
		return redis.NewDurationResult(ttl, nil)
	}
	return redis.NewDurationResult(-1, nil)
}

func newRouter(counter Counter, limit int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/auth/login", Middleware(counter, limit, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func hit(r *gin.Engine) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/auth/login", nil))
	return w
}

func TestLimitExceeded(t *testing.T) {
	counter := newFakeCounter()
	r := newRouter(counter, 2)

	assert.Equal(t, http.StatusOK, hit(r).Code)
	w := hit(r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = hit(r)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")

	assert.Len(t, counter.expires, 1)
	for _, ttl := range counter.expires {
		assert.Equal(t, time.Minute, ttl)
	}
}

func TestRedisFailureFailsOpen(t *testing.T) {
	counter := newFakeCounter()
	counter.err = errors.New("connection refused")
	r := newRouter(counter, 1)

	assert.Equal(t, http.StatusOK, hit(r).Code)
	assert.Equal(t, http.StatusOK, hit(r).Code)
}

func TestNilCounterDisables(t *testing.T) {
	r := newRouter(nil, 1)
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(r).Code)
	}
}

func TestMissingExpiryIsRepairedOnceLimited(t *testing.T) {
	counter := newFakeCounter()
	counter.expireErr = errors.New("timeout")
	r := newRouter(counter, 1)

	assert.Equal(t, http.StatusOK, hit(r).Code)
	assert.Empty(t, counter.expires)

	counter.expireErr = nil
	assert.Equal(t, http.StatusTooManyRequests, hit(r).Code)
	assert.Len(t, counter.expires, 1)
	for _, ttl := range counter.expires {
		assert.Equal(t, time.Minute, ttl)
	}
}

func TestExistingExpiryIsLeftAlone(t *testing.T) {
	counter := newFakeCounter()
	r := newRouter(counter, 1)

	assert.Equal(t, http.StatusOK, hit(r).Code)
	for key := range counter.expires {
		counter.expires[key] = 30 * time.Second
	}
	assert.Equal(t, http.StatusTooManyRequests, hit(r).Code)
	for _, ttl := range counter.expires {
		assert.Equal(t, 30*time.Second, ttl)
	}
}
