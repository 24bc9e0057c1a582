package templates

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	htmpl "html/template"
	"io"
	"reflect"
	"strings"
	"sync"
	texttpl "text/template"
	"time"
)

//go:embed *.tmpl
var FS embed.FS

// EmailData is the data every signup mail template receives.
type EmailData struct {
	// Basic info
	Name           string `json:"Name"`
	Email          string `json:"Email"`
	RecipientEmail string `json:"RecipientEmail"`
	Type           string `json:"Type"`

	// Company info
	CompanyName    string `json:"CompanyName"`
	CompanyAddress string `json:"CompanyAddress"`
	AppName        string `json:"AppName"`

	// URLs
	LogoURL        string `json:"LogoURL"`
	SupportURL     string `json:"SupportURL"`
	PrivacyURL     string `json:"PrivacyURL"`
	UnsubscribeURL string `json:"UnsubscribeURL"`

	// Action URLs
	VerifyURL string `json:"VerifyURL"`

	// Additional data
	ExpiresAt     time.Time `json:"ExpiresAt"`
	ExpiresAtText string    `json:"ExpiresAtText"`
	IP            string    `json:"IP"`
	Time          string    `json:"Time"`
	TimeAt        time.Time `json:"TimeAt"`
	UserAgent     string    `json:"UserAgent"`
	Location      string    `json:"Location"`
	Code          string    `json:"Code"` // verification token
}

// ToMap converts EmailData to a map[string]any for EmailJob.Data
func ToMap(d EmailData) map[string]any {
	b, _ := json.Marshal(d)
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	return m
}

// defaultFn supports pipe usage: {{ .Value | default "Fallback" }}
func defaultFn(fallback any, value any) any {
	switch x := value.(type) {
	case string:
		if strings.TrimSpace(x) == "" {
			return fallback
		}
		return x
	case nil:
		return fallback
	default:
		rv := reflect.ValueOf(value)
		if !rv.IsValid() {
			return fallback
		}
		zero := reflect.Zero(rv.Type()).Interface()
		if reflect.DeepEqual(value, zero) {
			return fallback
		}
		return value
	}
}

func baseFuncs() map[string]any {
	return map[string]any{
		"default": defaultFn,
	}
}

var (
	htmlFuncMap = htmpl.FuncMap(baseFuncs())
	textFuncMap = texttpl.FuncMap(baseFuncs())
)

const (
	Universal          = "universal"
	VerifyEmail        = "verify_email"
	ResendVerification = "resend_verification"
)

type parsed struct {
	html *htmpl.Template
	text *texttpl.Template
	err  error
}

var (
	cacheMu sync.Mutex
	cache   = map[string]*parsed{}
)

// load parses <name>.html.tmpl and <name>.text.tmpl once and keeps the result.
func load(name string) *parsed {
	cacheMu.Lock()
	defer cacheMu.Unlock()
	if p, ok := cache[name]; ok {
		return p
	}
	p := &parsed{}
	htmlFile, textFile := name+".html.tmpl", name+".text.tmpl"
	if p.html, p.err = htmpl.New(htmlFile).Funcs(htmlFuncMap).ParseFS(FS, htmlFile); p.err != nil {
		p.err = fmt.Errorf("parse html %q: %w", htmlFile, p.err)
	} else if p.text, p.err = texttpl.New(textFile).Funcs(textFuncMap).ParseFS(FS, textFile); p.err != nil {
		p.err = fmt.Errorf("parse text %q: %w", textFile, p.err)
	}
	cache[name] = p
	return p
}

type executor interface {
	Execute(w io.Writer, data any) error
}

func execute(name string, t executor, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("exec %q: %w", name, err)
	}
	return buf.String(), nil
}

// RenderHTML renders <name>.html.tmpl.
func RenderHTML(name string, data any) (string, error) {
	p := load(name)
	if p.err != nil {
		return "", p.err
	}
	return execute(name, p.html, data)
}

// RenderText renders the plain-text fallback <name>.text.tmpl.
func RenderText(name string, data any) (string, error) {
	p := load(name)
	if p.err != nil {
		return "", p.err
	}
	return execute(name, p.text, data)
}
