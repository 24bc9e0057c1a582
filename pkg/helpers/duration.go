package helpers

import (
	"fmt"
	"strings"
	"time"

	"github.com/xhit/go-str2duration/v2"
)

// unit words are rewritten to str2duration suffixes; longer words first
var unitWords = strings.NewReplacer(
	"weeks", "w", "week", "w",
	"days", "d", "day", "d",
	"hours", "h", "hour", "h", "hrs", "h",
	"minutes", "m", "minute", "m", "mins", "m", "min", "m",
	"seconds", "s", "second", "s", "secs", "s", "sec", "s",
)

// ParseExpiry parses a token lifetime such as "1d", "36h", "2 days" or "1w 2d".
// The result must be positive.
func ParseExpiry(s string) (time.Duration, error) {
	norm := strings.ToLower(strings.Join(strings.Fields(s), ""))
	if norm == "" {
		return 0, fmt.Errorf("empty duration")
	}
	d, err := str2duration.ParseDuration(unitWords.Replace(norm))
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", s)
	}
	return d, nil
}
