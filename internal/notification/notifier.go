package notification

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
)

// Channel is the medium a verification code travels on.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Purpose tells templates whether this is the first mail or a repeat.
type Purpose string

const (
	PurposeSignup Purpose = "verify_email"
	PurposeResend Purpose = "resend_verification"
)

var ErrWrongChannel = errors.New("notifier does not serve this channel")

// Message is one verification code delivery.
type Message struct {
	Channel   Channel
	Purpose   Purpose
	To        string
	Name      string
	Code      string
	ExpiresAt time.Time
	IP        string
	UserAgent string
}

// Notifier delivers verification codes. Implementations must be safe for concurrent use.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg Message) error

func (f NotifierFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// VerificationLink joins the public verification base URL and the code.
func VerificationLink(base, code string) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(code)
}
