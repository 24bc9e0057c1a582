package helpers

import (
	"context"
	"fmt"
	"strings"

	"github.com/oksasatya/go-signup-flow/pkg/mailer"
	mailtpl "github.com/oksasatya/go-signup-flow/pkg/mailer/templates"
)

func SubjectForUniversal(data map[string]any) string {
	typeStr := fmt.Sprintf("%v", data["Type"])
	switch strings.ToLower(typeStr) {
	case mailtpl.VerifyEmail:
		return "Verify your email address"
	case mailtpl.ResendVerification:
		return "Your new verification link"
	default:
		return "Notification"
	}
}

func EnsureRecipientAndEmail(job *mailer.EmailJob) {
	if job.Data == nil {
		job.Data = map[string]any{}
	}
	if v, ok := job.Data["Email"]; !ok || fmt.Sprintf("%v", v) == "" {
		job.Data["Email"] = job.To
	}
	if v, ok := job.Data["RecipientEmail"]; !ok || fmt.Sprintf("%v", v) == "" {
		job.Data["RecipientEmail"] = job.To
	}
}

func MapLegacyToUniversal(job *mailer.EmailJob) {
	switch strings.ToLower(job.Template) {
	case mailtpl.VerifyEmail, mailtpl.ResendVerification:
		if job.Data == nil {
			job.Data = map[string]any{}
		}
		if _, ok := job.Data["Type"]; !ok || fmt.Sprintf("%v", job.Data["Type"]) == "" {
			job.Data["Type"] = job.Template
		}
		job.Template = mailtpl.Universal
	}
}

// ComposeEmail turns a queued job into subject, text and html ready for a Sender.
// Jobs without a template are passed through as given.
func ComposeEmail(ctx context.Context, resolver mailtpl.GeoResolver, job mailer.EmailJob) (subject, text, html string, err error) {
	if job.Template == "" {
		if job.Subject == "" || (job.Text == "" && job.HTML == "") {
			return "", "", "", fmt.Errorf("job for %s has neither template nor body", job.To)
		}
		return job.Subject, job.Text, job.HTML, nil
	}

	EnsureRecipientAndEmail(&job)
	MapLegacyToUniversal(&job)
	if !strings.EqualFold(job.Template, mailtpl.Universal) {
		return "", "", "", fmt.Errorf("unknown template %q", job.Template)
	}

	if resolver != nil {
		if ip := fmt.Sprint(job.Data["IP"]); job.Data["IP"] != nil && ip != "" {
			if g, gerr := resolver.Lookup(ctx, ip); gerr == nil {
				localizeTimes(g, job.Data)
				if loc := fmt.Sprint(job.Data["Location"]); job.Data["Location"] == nil || loc == "" {
					job.Data["Location"] = mailtpl.FormatGeo(g)
				}
			}
		}
	}

	html, err = mailtpl.RenderHTML(mailtpl.Universal, job.Data)
	if err != nil {
		return "", "", "", fmt.Errorf("render universal html: %w", err)
	}
	text, err = mailtpl.RenderText(mailtpl.Universal, job.Data)
	if err != nil {
		return "", "", "", fmt.Errorf("render universal text: %w", err)
	}
	return SubjectForUniversal(job.Data), text, html, nil
}
