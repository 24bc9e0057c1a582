package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/go-signup-flow/config"
	"github.com/oksasatya/go-signup-flow/internal/container"
	"github.com/oksasatya/go-signup-flow/internal/domain/repository"
	"github.com/oksasatya/go-signup-flow/internal/infrastructure/memory"
	handlers "github.com/oksasatya/go-signup-flow/internal/interface/http"
	"github.com/oksasatya/go-signup-flow/internal/interface/middleware"
	"github.com/oksasatya/go-signup-flow/pkg/helpers"
)

func newApp(t *testing.T, mutate func(cfg *config.Config)) (*gin.Engine, *memory.UserRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Load()
	cfg.RESTRoute = "api"
	cfg.BasePath = "/auth"
	cfg.SignupHandleResponse = true
	cfg.MailSendEnabled = false
	cfg.DebugMetricsEnabled = true
	cfg.SignupRateLimitPerMinute = 2
	cfg.RateLimitBypassPrivateNetwork = false
	if mutate != nil {
		mutate(cfg)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := memory.NewUserRepository()
	container.SetConfig(cfg)
	container.SetLogger(helpers.NewNopLogger())
	container.SetRedis(rdb)
	container.SetUserStore(store)
	container.SetES(nil)
	container.SetRabbitPub(nil)
	container.SetMailgun(nil)

	r := gin.New()
	r.Use(middleware.RequestIDMiddleware(), middleware.RealIP(), middleware.ErrorHandler(helpers.NewNopLogger(), handlers.StatusFor))
	reg := NewRegistry(r, cfg.BasePath)
	require.NoError(t, InitModules(reg))
	reg.RegisterAll()
	return r, store
}

func postJSON(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.9:4000"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestInitModulesWiresSignupUnderBasePath(t *testing.T) {
	r, store := newApp(t, nil)

	w := postJSON(r, "/auth/api/signup", `{"name":"jane","email":"jane@example.com","password":"secret"}`)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))

	u, err := store.Find(context.Background(), repository.FieldEmail, "jane@example.com")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.True(t, u.HasPendingToken())

	w = postJSON(r, "/auth/api/signup", `{"email":"jane@example.com","password":"secret"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = postJSON(r, "/auth/api/signup", `{"email":"other@example.com","password":"secret"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/auth/debug/vars", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var vars map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &vars))
	assert.Contains(t, string(vars["signup_outcomes"]), `"create.signed_up"`)
	assert.Contains(t, string(vars["signup_failures"]), `"conflict"`)
}

func TestInitModulesRejectsBadPolicy(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := config.Load()
	cfg.SignupUniqueFields = "email,phone"
	container.SetConfig(cfg)
	container.SetLogger(helpers.NewNopLogger())
	container.SetUserStore(memory.NewUserRepository())

	err := InitModules(NewRegistry(gin.New(), ""))
	assert.ErrorContains(t, err, `unique field "phone"`)
}

func TestHealthz(t *testing.T) {
	r, _ := newApp(t, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/healthz", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRegistryAppliesGroupMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := NewRegistry(gin.New(), "")
	reg.Use(func(c *gin.Context) { c.Header("X-Group", "yes") })
	reg.Add(ModuleFunc(func(rg *gin.RouterGroup) {
		rg.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	}))
	reg.RegisterAll()

	w := httptest.NewRecorder()
	reg.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, "pong", w.Body.String())
	assert.Equal(t, "yes", w.Header().Get("X-Group"))
}
