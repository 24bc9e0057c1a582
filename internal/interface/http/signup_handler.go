package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-signup-flow/config"
	"github.com/oksasatya/go-signup-flow/internal/application"
	"github.com/oksasatya/go-signup-flow/internal/domain/entity"
	"github.com/oksasatya/go-signup-flow/internal/interface/middleware"
	"github.com/oksasatya/go-signup-flow/pkg/validation"
)

// CompletionHook runs after a successful signup or verification. Returning an
// error hands the request to the host error layer; writing a response ends it.
type CompletionHook func(c *gin.Context, u *entity.User) error

// Routes are the signup paths relative to the router group.
type Routes struct {
	Signup string
	Resend string
	Verify string
}

// RoutesFor derives the routes from config. REST mode prefixes them with /<REST_ROUTE>.
func RoutesFor(cfg *config.Config) Routes {
	prefix := ""
	if cfg.IsREST() {
		prefix = "/" + cfg.RESTRoute
	}
	return Routes{
		Signup: prefix + cfg.SignupRoute,
		Resend: prefix + cfg.SignupResendRoute,
		Verify: prefix + strings.TrimRight(cfg.SignupRoute, "/") + "/:token",
	}
}

type SignupHandler struct {
	Svc    *application.Service
	Cfg    *config.Config
	Logger *logrus.Logger
	Routes Routes
	hook   CompletionHook
}

type HandlerOption func(*SignupHandler)

func WithCompletionHook(hook CompletionHook) HandlerOption {
	return func(h *SignupHandler) { h.hook = hook }
}

func NewSignupHandler(svc *application.Service, cfg *config.Config, logger *logrus.Logger, opts ...HandlerOption) *SignupHandler {
	h := &SignupHandler{Svc: svc, Cfg: cfg, Logger: logger, Routes: RoutesFor(cfg)}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type signupRequest struct {
	Name     string `form:"name" json:"name" binding:"max=50"`
	Email    string `form:"email" json:"email" binding:"max=254"`
	Password string `form:"password" json:"password" binding:"max=256"`
}

type resendRequest struct {
	Email string `form:"email" json:"email" binding:"max=254"`
	Name  string `form:"name" json:"name" binding:"max=50"`
	Phone string `form:"phone" json:"phone" binding:"max=32"`
}

func (h *SignupHandler) SignupForm(c *gin.Context) {
	h.channel().send(c, Reply{View: h.Cfg.SignupViewSignup, Data: gin.H{"action": h.action(c, h.Routes.Signup)}})
}

func (h *SignupHandler) ResendForm(c *gin.Context) {
	h.channel().send(c, Reply{View: h.Cfg.SignupViewResend, Data: gin.H{"action": h.action(c, h.Routes.Resend)}})
}

func (h *SignupHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBind(&req); err != nil {
		h.invalidPayload(c, err, h.Cfg.SignupViewSignup, h.Routes.Signup)
		return
	}

	res, err := h.Svc.Create(c.Request.Context(), application.CreateInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Meta:     h.meta(c),
	})
	if res.Outcome == application.OutcomeRedirectLogin {
		h.channel().send(c, Reply{Status: http.StatusTemporaryRedirect, Redirect: h.Cfg.LoginRoute})
		return
	}
	if err != nil {
		h.fail(c, err, h.Cfg.SignupViewSignup, h.Routes.Signup)
		return
	}
	h.complete(c, res.User, h.Cfg.SignupCompletionRoute, h.Cfg.SignupViewSignedUp)
}

func (h *SignupHandler) Resend(c *gin.Context) {
	var req resendRequest
	if err := c.ShouldBind(&req); err != nil {
		h.invalidPayload(c, err, h.Cfg.SignupViewResend, h.Routes.Resend)
		return
	}

	res, err := h.Svc.Resend(c.Request.Context(), application.ResendInput{
		Email: req.Email,
		Name:  req.Name,
		Phone: req.Phone,
		Meta:  h.meta(c),
	})
	switch {
	case res.Outcome == application.OutcomeRedirectSignup:
		h.channel().send(c, Reply{Redirect: h.Cfg.BasePath + h.Routes.Signup, Err: err})
	case err != nil:
		h.fail(c, err, h.Cfg.SignupViewResend, h.Routes.Resend)
	case res.Outcome == application.OutcomeAlreadyVerified:
		h.complete(c, res.User, h.Cfg.SignupCompletionResendRoute, h.Cfg.SignupViewVerified)
	case res.Outcome == application.OutcomeSMSSent:
		h.channel().send(c, Reply{View: h.Cfg.SignupViewSMSSent, User: res.User})
	default:
		h.channel().send(c, Reply{View: h.Cfg.SignupViewSignedUp, User: res.User})
	}
}

func (h *SignupHandler) Verify(c *gin.Context) {
	res, err := h.Svc.Verify(c.Request.Context(), c.Param("token"))
	switch {
	case err != nil && application.KindOf(err).Internal():
		_ = c.Error(err)
	case res.Outcome == application.OutcomeLinkExpired:
		h.channel().send(c, Reply{View: h.Cfg.SignupViewLinkExpired, Err: err})
	default:
		h.complete(c, res.User, h.Cfg.SignupCompletionResendRoute, h.Cfg.SignupViewVerified)
	}
}

func (h *SignupHandler) channel() channel {
	switch {
	case !h.Cfg.SignupHandleResponse:
		return passthroughChannel{}
	case h.Cfg.IsREST():
		return restChannel{}
	default:
		return viewChannel{title: h.Cfg.SignupTitle}
	}
}

func (h *SignupHandler) invalidPayload(c *gin.Context, err error, view, route string) {
	h.channel().send(c, Reply{
		View: view,
		Err:  &application.Error{Kind: application.KindValidation, Message: "invalid payload", Err: application.ErrInvalidInput},
		Data: gin.H{"details": validation.ToDetails(err), "action": h.action(c, route)},
	})
}

func (h *SignupHandler) fail(c *gin.Context, err error, view, route string) {
	if application.KindOf(err).Internal() {
		_ = c.Error(err)
		return
	}
	h.channel().send(c, Reply{View: view, Err: err, Data: gin.H{"action": h.action(c, route)}})
}

func (h *SignupHandler) complete(c *gin.Context, u *entity.User, route, view string) {
	if h.hook != nil {
		if err := h.hook(c, u); err != nil {
			_ = c.Error(err)
			return
		}
		if c.Writer.Written() {
			return
		}
		if r, ok := localRedirect(c.Query("redirect")); ok {
			h.channel().send(c, Reply{Redirect: r, User: u})
			return
		}
	}
	if route != "" {
		h.channel().send(c, Reply{Redirect: route, User: u})
		return
	}
	h.channel().send(c, Reply{View: view, User: u})
}

// action is the form target, keeping a redirect query across the submit.
func (h *SignupHandler) action(c *gin.Context, route string) string {
	action := h.Cfg.BasePath + route
	if r, ok := localRedirect(c.Query("redirect")); ok {
		action += "?redirect=" + url.QueryEscape(r)
	}
	return action
}

func (h *SignupHandler) meta(c *gin.Context) application.RequestMeta {
	return application.RequestMeta{IP: middleware.ClientIP(c), UserAgent: c.Request.UserAgent()}
}

// localRedirect accepts only same-origin absolute paths.
func localRedirect(r string) (string, bool) {
	if r == "" || !strings.HasPrefix(r, "/") || strings.HasPrefix(r, "//") || strings.HasPrefix(r, "/\\") {
		return "", false
	}
	return r, true
}
