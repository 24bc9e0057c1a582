package helpers

import (
	"fmt"
	"time"

	mailtpl "github.com/oksasatya/go-signup-flow/pkg/mailer/templates"
)

const mailTimeLayout = "02 January 2006, 15:04 MST"

// localizeTimes rewrites the display times of a mail in the recipient's zone.
// Data keeps the UTC values when g has no usable zone.
func localizeTimes(g mailtpl.Geo, data map[string]any) {
	loc, ok := g.Location()
	if !ok {
		return
	}
	if t, ok := parseTimeAny(data["ExpiresAt"]); ok {
		data["ExpiresAtText"] = t.In(loc).Format(mailTimeLayout)
	}
	if t, ok := parseTimeAny(data["TimeAt"]); ok {
		data["Time"] = t.In(loc).Format(mailTimeLayout)
	}
}

// parseTimeAny accepts a time.Time or one of the string forms it takes after a JSON round trip.
func parseTimeAny(v any) (time.Time, bool) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return x, !x.IsZero()
	}
	s := fmt.Sprint(v)
	for _, l := range []string{time.RFC3339Nano, "2006-01-02 15:04:05 -0700 MST", "2006-01-02 15:04:05 -0700"} {
		if t, err := time.Parse(l, s); err == nil && !t.IsZero() {
			return t, true
		}
	}
	return time.Time{}, false
}
