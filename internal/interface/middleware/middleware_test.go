package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/go-signup-flow/pkg/helpers"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb, mr
}

func limitedEngine(rdb *redis.Client, allow AllowFunc) *gin.Engine {
	r := gin.New()
	r.Use(RequestIDMiddleware(), RealIP())
	r.POST("/signup", RateLimit(rdb, 2, time.Minute, KeyByIP("signup"), allow), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func post(r http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/signup", nil)
	req.RemoteAddr = remote
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitBlocksAfterMax(t *testing.T) {
	rdb, mr := newRedis(t)
	r := limitedEngine(rdb, nil)

	w := post(r, "203.0.113.5:1000")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusNoContent, post(r, "203.0.113.5:1000").Code)

	w = post(r, "203.0.113.5:1000")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "rate limit exceeded", body["message"])
	assert.Equal(t, false, body["success"])

	// another client has its own window
	assert.Equal(t, http.StatusNoContent, post(r, "203.0.113.6:1000").Code)

	mr.FastForward(time.Minute + time.Second)
	assert.Equal(t, http.StatusNoContent, post(r, "203.0.113.5:1000").Code)
}

func TestRateLimitBypassesPrivateNetwork(t *testing.T) {
	rdb, _ := newRedis(t)
	r := limitedEngine(rdb, AllowPrivateIPIf(true))

	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusNoContent, post(r, "10.1.2.3:1000").Code)
	}
	assert.Nil(t, AllowPrivateIPIf(false))
}

func TestRateLimitFailsOpen(t *testing.T) {
	rdb, mr := newRedis(t)
	r := limitedEngine(rdb, nil)
	mr.Close()

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusNoContent, post(r, "203.0.113.5:1000").Code)
	}
}

func TestRealIPPrefersProxyHeaders(t *testing.T) {
	r := gin.New()
	r.Use(RealIP())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, ClientIP(c)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("CF-Connecting-IP", "198.51.100.7")
	req.Header.Set("X-Forwarded-For", "198.51.100.8, 10.0.0.1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "198.51.100.7", w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "198.51.100.8, 10.0.0.1")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "198.51.100.8", w.Body.String())
}

func TestRequestIDKeepsValidIncomingID(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString("request_id")) })

	incoming := "7f1d7c3e-3c57-4c8f-9a36-1f0e3c1b7a11"
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", incoming)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, incoming, w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "<script>")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.NotEqual(t, "<script>", w.Body.String())
	assert.Equal(t, w.Body.String(), w.Header().Get("X-Request-ID"))
}

func TestErrorHandler(t *testing.T) {
	statusFn := func(err error) (int, string) {
		if errors.Is(err, errGone) {
			return http.StatusGone, "gone"
		}
		return http.StatusInternalServerError, "internal server error"
	}
	r := gin.New()
	r.Use(RequestIDMiddleware(), ErrorHandler(helpers.NewNopLogger(), statusFn))
	r.GET("/boom", func(c *gin.Context) { _ = c.Error(errors.New("db down")) })
	r.GET("/gone", func(c *gin.Context) { _ = c.Error(errGone) })
	r.GET("/written", func(c *gin.Context) {
		_ = c.Error(errors.New("late"))
		c.String(http.StatusAccepted, "ok")
	})

	cases := []struct {
		path   string
		status int
		msg    string
	}{
		{"/boom", http.StatusInternalServerError, "internal server error"},
		{"/gone", http.StatusGone, "gone"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.path, nil))
		assert.Equal(t, tc.status, w.Code, tc.path)

		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, tc.msg, body["error"])
		assert.NotEmpty(t, body["request_id"])
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/written", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

var errGone = errors.New("gone")
