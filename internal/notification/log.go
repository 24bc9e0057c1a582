package notification

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-signup-flow/config"
)

// LogNotifier writes the code to the log instead of delivering it.
// Used in development and whenever no real transport is configured.
type LogNotifier struct {
	logger *logrus.Logger
	cfg    *config.Config
}

func NewLogNotifier(logger *logrus.Logger, cfg *config.Config) *LogNotifier {
	return &LogNotifier{logger: logger, cfg: cfg}
}

func (n *LogNotifier) Send(_ context.Context, msg Message) error {
	fields := logrus.Fields{
		"channel": msg.Channel,
		"purpose": msg.Purpose,
		"to":      msg.To,
		"code":    msg.Code,
	}
	if msg.Channel == ChannelEmail && n.cfg != nil {
		fields["link"] = VerificationLink(n.cfg.VerifyEmailURL, msg.Code)
	}
	n.logger.WithFields(fields).Info("verification code (not delivered)")
	return nil
}
