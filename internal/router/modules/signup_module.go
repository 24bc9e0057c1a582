package modules

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/oksasatya/go-signup-flow/config"
	handlers "github.com/oksasatya/go-signup-flow/internal/interface/http"
	"github.com/oksasatya/go-signup-flow/internal/interface/middleware"
)

type SignupModule struct {
	Handler *handlers.SignupHandler
	RDB     *redis.Client
	Cfg     *config.Config
}

func NewSignupModule(h *handlers.SignupHandler, rdb *redis.Client, cfg *config.Config) *SignupModule {
	return &SignupModule{Handler: h, RDB: rdb, Cfg: cfg}
}

func (m *SignupModule) Register(rg *gin.RouterGroup) {
	allow := middleware.AllowPrivateIPIf(m.Cfg.RateLimitBypassPrivateNetwork)
	signupLimiter := middleware.RateLimit(m.RDB, m.Cfg.SignupRateLimitPerMinute, time.Minute, middleware.KeyByIP("signup"), allow)
	resendLimiter := middleware.RateLimit(m.RDB, m.Cfg.SignupResendRateLimitPerMin, time.Minute, middleware.KeyByIPAndPath(), allow)
	verifyLimiter := middleware.RateLimit(m.RDB, m.Cfg.SignupVerifyRateLimitPerMin, time.Minute, middleware.KeyByIPAndPath(), allow)

	routes := m.Handler.Routes
	rg.GET(routes.Signup, m.Handler.SignupForm)
	rg.POST(routes.Signup, signupLimiter, m.Handler.Signup)
	rg.GET(routes.Resend, m.Handler.ResendForm)
	rg.POST(routes.Resend, resendLimiter, m.Handler.Resend)
	rg.GET(routes.Verify, verifyLimiter, m.Handler.Verify)
}
