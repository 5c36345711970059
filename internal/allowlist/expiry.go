package allowlist

import (
	"strings"
	"time"

	"github.com/leppikallio/pai-opencode/internal/models"
)

// ExpiryLayouts are the accepted expires_at formats, tried in order.
// Layouts without a zone are read in local time.
var ExpiryLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
}

// ParseExpiry parses value against ExpiryLayouts.
func ParseExpiry(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range ExpiryLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// IsExpired reports whether rule has lapsed at now. A rule without
// expires_at never expires; an expires_at that matches no accepted layout
// counts as expired so a typo cannot keep a suppression alive.
func IsExpired(rule models.AllowlistRule, now time.Time) bool {
	if strings.TrimSpace(rule.ExpiresAt) == "" {
		return false
	}
	exp, ok := ParseExpiry(rule.ExpiresAt)
	if !ok {
		return true
	}
	return exp.Before(now)
}
