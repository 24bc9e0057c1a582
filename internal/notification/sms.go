package notification

import (
	"context"
	"strings"
)

// SMSFunc is the host's SMS gateway.
type SMSFunc func(ctx context.Context, to, body string) error

// SMSNotifier prefixes the code with the configured text and hands it to an SMSFunc.
type SMSNotifier struct {
	send   SMSFunc
	prefix string
}

func NewSMSNotifier(send SMSFunc, prefix string) *SMSNotifier {
	return &SMSNotifier{send: send, prefix: prefix}
}

func (n *SMSNotifier) Send(ctx context.Context, msg Message) error {
	if msg.Channel != ChannelSMS {
		return ErrWrongChannel
	}
	return n.send(ctx, msg.To, Body(n.prefix, msg.Code))
}

// Body is the SMS text for code.
func Body(prefix, code string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return code
	}
	return prefix + " " + code
}
