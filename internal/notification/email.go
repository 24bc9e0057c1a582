package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/oksasatya/go-signup-flow/config"
	"github.com/oksasatya/go-signup-flow/pkg/helpers"
	"github.com/oksasatya/go-signup-flow/pkg/mailer"
	mailtpl "github.com/oksasatya/go-signup-flow/pkg/mailer/templates"
)

// Publisher puts a JSON job on the email queue. helpers.RabbitPublisher satisfies it.
type Publisher interface {
	PublishJSON(ctx context.Context, body any) error
}

// QueueNotifier hands verification mails to the email worker through the queue.
type QueueNotifier struct {
	pub Publisher
	cfg *config.Config
	now func() time.Time
}

func NewQueueNotifier(pub Publisher, cfg *config.Config) *QueueNotifier {
	return &QueueNotifier{pub: pub, cfg: cfg, now: time.Now}
}

func (n *QueueNotifier) Send(ctx context.Context, msg Message) error {
	if msg.Channel != ChannelEmail {
		return ErrWrongChannel
	}
	job := emailJob(n.cfg, msg, n.now())
	if err := n.pub.PublishJSON(ctx, job); err != nil {
		return fmt.Errorf("enqueue verification email: %w", err)
	}
	return nil
}

// MailgunNotifier renders and sends directly, for deployments without a queue.
type MailgunNotifier struct {
	sender   mailer.Sender
	cfg      *config.Config
	resolver mailtpl.GeoResolver
	now      func() time.Time
}

func NewMailgunNotifier(sender mailer.Sender, cfg *config.Config, resolver mailtpl.GeoResolver) *MailgunNotifier {
	return &MailgunNotifier{sender: sender, cfg: cfg, resolver: resolver, now: time.Now}
}

func (n *MailgunNotifier) Send(ctx context.Context, msg Message) error {
	if msg.Channel != ChannelEmail {
		return ErrWrongChannel
	}
	job := emailJob(n.cfg, msg, n.now())
	subject, text, html, err := helpers.ComposeEmail(ctx, n.resolver, job)
	if err != nil {
		return err
	}
	if err := n.sender.Send(ctx, job.To, subject, text, html); err != nil {
		return fmt.Errorf("send verification email: %w", err)
	}
	return nil
}

func emailJob(cfg *config.Config, msg Message, now time.Time) mailer.EmailJob {
	data := mailtpl.NewVerifyEmailData(cfg, string(msg.Purpose), msg.Name, msg.To,
		VerificationLink(cfg.VerifyEmailURL, msg.Code),
		mailtpl.WithCode(msg.Code),
		mailtpl.WithExpiresAt(msg.ExpiresAt),
		mailtpl.WithTime(now),
		mailtpl.WithIP(msg.IP),
		mailtpl.WithUserAgent(msg.UserAgent),
	)
	return mailer.EmailJob{To: msg.To, Template: mailtpl.Universal, Data: data}
}
