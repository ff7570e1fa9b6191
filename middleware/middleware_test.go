package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.POST("/checkout", func(c *gin.Context) { c.Status(http.StatusCreated) })
	r.GET("/admin", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func do(r http.Handler, method, path, ip string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = ip + ":51234"
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCheckoutRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	r := newRouter(CheckoutRateLimit(client, 5, 10*time.Minute, zaptest.NewLogger(t)))

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/checkout", "10.0.0.1").Code)
	}
	w := do(r, http.MethodPost, "/checkout", "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "600", w.Header().Get("Retry-After"))

	// Other clients have their own budget.
	assert.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/checkout", "10.0.0.2").Code)

	mr.FastForward(11 * time.Minute)
	assert.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/checkout", "10.0.0.1").Code)
}

func TestCheckoutRateLimitFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	r := newRouter(CheckoutRateLimit(client, 1, time.Minute, zaptest.NewLogger(t)))
	mr.Close()

	assert.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/checkout", "10.0.0.1").Code)
	assert.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/checkout", "10.0.0.1").Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	r := newRouter(RateLimitMiddleware(2, zaptest.NewLogger(t)))
	assert.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/checkout", "10.0.0.1").Code)
	assert.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/checkout", "10.0.0.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, http.MethodPost, "/checkout", "10.0.0.1").Code)
}

func TestRateLimiterEvictsIdleIPs(t *testing.T) {
	clock := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	s := newRateLimiterStore(2)
	s.now = func() time.Time { return clock }

	first := s.getLimiter("10.0.0.1")
	s.getLimiter("10.0.0.2")
	assert.Same(t, first, s.getLimiter("10.0.0.1"))

	clock = clock.Add(3 * time.Minute)
	s.getLimiter("10.0.0.1")
	clock = clock.Add(3 * time.Minute)
	s.getLimiter("10.0.0.3")

	assert.Len(t, s.visitors, 2)
	assert.NotContains(t, s.visitors, "10.0.0.2")
	assert.Same(t, first, s.getLimiter("10.0.0.1"))
}

func TestAdminAuthMiddleware(t *testing.T) {
	r := newRouter(AdminAuthMiddleware("s3cret"))
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/admin", "10.0.0.1").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/admin", "10.0.0.1", "Authorization", "Bearer wrong").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/admin", "10.0.0.1", "Authorization", "Bearer s3cret").Code)

	r = newRouter(AdminAuthMiddleware(""))
	assert.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodGet, "/admin", "10.0.0.1", "Authorization", "Bearer ").Code)
}

func TestGetClientIP(t *testing.T) {
	var got string
	r := gin.New()
	r.GET("/", func(c *gin.Context) { got = getClientIP(c) })

	do(r, http.MethodGet, "/", "10.0.0.9", "X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", got)

	do(r, http.MethodGet, "/", "10.0.0.9", "X-Real-IP", "198.51.100.4")
	assert.Equal(t, "198.51.100.4", got)

	do(r, http.MethodGet, "/", "10.0.0.9")
	require.Equal(t, "10.0.0.9", got)
}
