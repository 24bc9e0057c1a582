package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/go-signup-flow/config"
	"github.com/oksasatya/go-signup-flow/internal/application"
	"github.com/oksasatya/go-signup-flow/internal/domain/entity"
	"github.com/oksasatya/go-signup-flow/internal/domain/repository"
	"github.com/oksasatya/go-signup-flow/internal/infrastructure/memory"
	"github.com/oksasatya/go-signup-flow/internal/interface/middleware"
	"github.com/oksasatya/go-signup-flow/internal/notification"
	"github.com/oksasatya/go-signup-flow/pkg/helpers"
)

const testViews = `
{{define "signup.html"}}signup|{{.title}}|{{.action}}|{{.error}}{{end}}
{{define "signed-up.html"}}signed-up|{{.user.email}}{{end}}
{{define "resend-verification.html"}}resend|{{.action}}|{{.error}}{{end}}
{{define "mail-verification-success.html"}}verified|{{.user.email}}{{end}}
{{define "link-expired.html"}}expired|{{.error}}{{end}}
{{define "sms-sent.html"}}sms-sent{{end}}
`

type outbox struct {
	mu   sync.Mutex
	msgs []notification.Message
}

func (o *outbox) Send(_ context.Context, msg notification.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *outbox) lastCode(t *testing.T) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.msgs)
	return o.msgs[len(o.msgs)-1].Code
}

type brokenStore struct{ *memory.UserRepository }

func (brokenStore) Find(context.Context, repository.Field, string) (*entity.User, error) {
	return nil, errors.New("connection refused")
}

type harness struct {
	engine *gin.Engine
	store  *memory.UserRepository
	mail   *outbox
	cfg    *config.Config
}

func testConfig() *config.Config {
	cfg := config.Load()
	cfg.RESTRoute = ""
	cfg.BasePath = ""
	cfg.SignupHandleResponse = true
	cfg.SignupUseLogin = false
	cfg.SignupCompletionRoute = ""
	cfg.SignupCompletionResendRoute = ""
	cfg.SignupTitle = "Join"
	return cfg
}

// jsonField walks a dotted path through the JSON body and returns the leaf as a string.
func jsonField(t *testing.T, w *httptest.ResponseRecorder, path string) string {
	t.Helper()
	var cur any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cur))
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		require.True(t, ok, path)
		cur = m[key]
	}
	s, _ := cur.(string)
	return s
}

func newHarness(t *testing.T, mutate func(cfg *config.Config), opts ...HandlerOption) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	h := &harness{store: memory.NewUserRepository(), mail: &outbox{}, cfg: cfg}

	policy, err := application.NewPolicy(cfg)
	require.NoError(t, err)
	svc := application.NewService(h.store, h.mail, policy)
	h.engine = newEngine(NewSignupHandler(svc, cfg, helpers.NewNopLogger(), opts...))
	return h
}

func newEngine(handler *SignupHandler) *gin.Engine {
	r := gin.New()
	r.SetHTMLTemplate(template.Must(template.New("views").Parse(testViews)))
	r.Use(middleware.RequestIDMiddleware(), middleware.ErrorHandler(helpers.NewNopLogger(), StatusFor))
	routes := handler.Routes
	r.GET(routes.Signup, handler.SignupForm)
	r.POST(routes.Signup, handler.Signup)
	r.GET(routes.Resend, handler.ResendForm)
	r.POST(routes.Resend, handler.Resend)
	r.GET(routes.Verify, handler.Verify)
	return r
}

func (h *harness) get(path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func (h *harness) postForm(path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	return w
}

func (h *harness) postJSON(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	return w
}

func janeForm() url.Values {
	return url.Values{"name": {"jane"}, "email": {"jane@example.com"}, "password": {"secret"}}
}

func TestSignupFormKeepsRedirect(t *testing.T) {
	h := newHarness(t, nil)

	w := h.get("/signup")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "signup|Join|/signup|", w.Body.String())

	w = h.get("/signup?redirect=/welcome&error=Try+again")
	assert.Equal(t, "signup|Join|/signup?redirect=%2Fwelcome|Try again", w.Body.String())

	w = h.get("/signup?redirect=https://evil.example")
	assert.Equal(t, "signup|Join|/signup|", w.Body.String())
}

func TestResendFormIsNotATokenRoute(t *testing.T) {
	h := newHarness(t, nil)

	w := h.get("/signup/resend-verification")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "resend|/signup/resend-verification|", w.Body.String())
}

func TestViewSignupAndVerify(t *testing.T) {
	h := newHarness(t, nil)

	w := h.postForm("/signup", janeForm())
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "signed-up|jane@example.com", w.Body.String())

	code := h.mail.lastCode(t)
	w = h.get("/signup/" + code)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "verified|jane@example.com", w.Body.String())

	w = h.get("/signup/" + code)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "expired|"))

	w = h.get("/signup/not-a-token")
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Equal(t, "expired|This verification link has expired", w.Body.String())
}

func TestViewSignupErrors(t *testing.T) {
	h := newHarness(t, nil)

	w := h.postForm("/signup", url.Values{"email": {"jane@example.com"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "signup|Join|/signup|A password is required!", w.Body.String())

	require.Equal(t, http.StatusOK, h.postForm("/signup", janeForm()).Code)
	w = h.postForm("/signup?redirect=/next", janeForm())
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "signup|Join|/signup?redirect=%2Fnext|The email account &#34;jane@example.com&#34; is already signed up.", w.Body.String())
}

func TestConflictRedirectsToLogin(t *testing.T) {
	for _, rest := range []string{"", "api"} {
		h := newHarness(t, func(cfg *config.Config) {
			cfg.SignupUseLogin = true
			cfg.RESTRoute = rest
		})
		path := h.cfg.SignupRoute
		if rest != "" {
			path = "/" + rest + path
		}
		h.postForm(path, janeForm())

		w := h.postForm(path, janeForm())
		assert.Equal(t, http.StatusTemporaryRedirect, w.Code, rest)
		assert.Equal(t, "/login", w.Header().Get("Location"))
	}
}

func TestCompletionRoutes(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.SignupCompletionRoute = "/thanks"
		cfg.SignupCompletionResendRoute = "/done"
	})

	w := h.postForm("/signup", janeForm())
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/thanks", w.Header().Get("Location"))

	w = h.get("/signup/" + h.mail.lastCode(t))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/done", w.Header().Get("Location"))

	w = h.postForm("/signup/resend-verification", url.Values{"email": {"jane@example.com"}})
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/done", w.Header().Get("Location"))
}

func TestCompletionHook(t *testing.T) {
	var seen []string
	hook := func(c *gin.Context, u *entity.User) error {
		seen = append(seen, u.Email)
		if u.Email == "fail@example.com" {
			return errors.New("session store down")
		}
		return nil
	}
	h := newHarness(t, nil, WithCompletionHook(hook))

	w := h.postForm("/signup?redirect=/welcome", janeForm())
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/welcome", w.Header().Get("Location"))

	w = h.get("/signup/" + h.mail.lastCode(t))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "verified|jane@example.com", w.Body.String())

	w = h.postForm("/signup", url.Values{"email": {"fail@example.com"}, "password": {"x"}})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", jsonField(t, w, "error"))

	assert.Equal(t, []string{"jane@example.com", "jane@example.com", "fail@example.com"}, seen)
}

func TestViewResend(t *testing.T) {
	h := newHarness(t, nil)
	h.store.Put(&entity.User{ID: "u", Email: "jane@example.com"})
	h.store.Put(&entity.User{ID: "l", Email: "locked@example.com", AccountLocked: true})

	w := h.postForm("/signup/resend-verification", url.Values{"email": {"jane@example.com"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "signed-up|jane@example.com", w.Body.String())
	assert.NotEmpty(t, h.mail.lastCode(t))

	w = h.postForm("/signup/resend-verification", url.Values{"email": {"ghost@example.com"}})
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/signup", w.Header().Get("Location"))

	w = h.postForm("/signup/resend-verification", url.Values{"email": {"locked@example.com"}})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "resend|/signup/resend-verification|That email is invalid", w.Body.String())

	w = h.postForm("/signup/resend-verification", url.Values{"email": {"bad"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "resend|/signup/resend-verification|Email is invalid", w.Body.String())
}

func TestMissingViewAnswers404(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.SignupViewSignup = "" })

	w := h.get("/signup")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Not Found", w.Body.String())
}

func TestRESTMode(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.RESTRoute = "api" })

	w := h.get("/api/signup?redirect=/x")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "/api/signup?redirect=%2Fx", jsonField(t, w, "data.action"))

	w = h.postJSON("/api/signup", `{"email":"jane@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "A password is required!", jsonField(t, w, "error"))

	w = h.postJSON("/api/signup", `{"email":"jane@example.com","password":"secret"}`)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())

	w = h.postJSON("/api/signup", `{"email":"jane@example.com","password":"secret"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = h.postJSON("/api/signup", `{"email" 1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid payload", jsonField(t, w, "error"))
	assert.Equal(t, "invalid json", jsonField(t, w, "meta.details.payload"))

	w = h.postJSON("/api/signup/resend-verification", `{"email":"ghost@example.com"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.postJSON("/api/signup/resend-verification", `{"email":"jane@example.com"}`)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = h.get("/api/signup/garbage")
	assert.Equal(t, http.StatusGone, w.Code)

	w = h.get("/api/signup/" + h.mail.lastCode(t))
	assert.Equal(t, http.StatusNoContent, w.Code)

	assert.Equal(t, http.StatusNotFound, h.get("/signup").Code)
}

func TestRESTUniqueFieldsFollowConfig(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.RESTRoute = "api"
		cfg.SignupUniqueFields = "email"
	})

	w := h.postJSON("/api/signup", `{"name":"jane","email":"jane@example.com","password":"secret"}`)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = h.postJSON("/api/signup", `{"name":"jane","email":"new@example.com","password":"secret"}`)
	assert.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = h.postJSON("/api/signup", `{"name":"june","email":"new@example.com","password":"secret"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPassthroughLeavesReplyToHost(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	cfg.SignupHandleResponse = false
	store := memory.NewUserRepository()
	svc := application.NewService(store, &outbox{}, application.DefaultPolicy())
	handler := NewSignupHandler(svc, cfg, helpers.NewNopLogger())

	var got Reply
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Next()
		v, ok := c.Get(ReplyKey)
		require.True(t, ok)
		got = v.(Reply)
		c.String(http.StatusTeapot, "host")
	})
	r.POST(handler.Routes.Signup, handler.Signup)

	req := httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader(url.Values{"email": {"bad"}, "password": {"x"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, cfg.SignupViewSignup, got.View)
	assert.Equal(t, application.KindValidation, application.KindOf(got.Err))
}

func TestStorageFailureGoesToErrorLayer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig()
	store := brokenStore{memory.NewUserRepository()}
	svc := application.NewService(store, &outbox{}, application.DefaultPolicy())
	r := newEngine(NewSignupHandler(svc, cfg, helpers.NewNopLogger()))

	req := httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader(janeForm().Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", jsonField(t, w, "error"))
	assert.NotContains(t, w.Body.String(), "connection refused")
}
