package policy

import (
	"math"
	"strings"
	"time"

	"github.com/leppikallio/pai-opencode/internal/allowlist"
	"github.com/leppikallio/pai-opencode/internal/models"
)

// RuleInput builds the CEL `input` map for one allowlist rule.
//
//	input.rule.*           raw rule fields, enabled as bool
//	input.wildcard         rule has no match fields
//	input.has_expiry       expires_at is set
//	input.expired          rule has lapsed at now (unparseable counts as lapsed)
//	input.expires_in_days  whole days until expiry, -1 when unparseable, 0 when unset
func RuleInput(r models.AllowlistRule, now time.Time) map[string]interface{} {
	hasExpiry := strings.TrimSpace(r.ExpiresAt) != ""
	var days int64
	if hasExpiry {
		days = -1
		if exp, ok := allowlist.ParseExpiry(r.ExpiresAt); ok {
			days = int64(math.Floor(exp.Sub(now).Hours() / 24))
		}
	}

	return map[string]interface{}{
		"rule": map[string]interface{}{
			"id":             r.ID,
			"skill":          r.Skill,
			"rule_id":        r.RuleID,
			"analyzer":       r.Analyzer,
			"severity":       r.Severity,
			"file_path":      r.FilePath,
			"title_contains": r.TitleContains,
			"owner":          r.Owner,
			"reason":         r.Reason,
			"created_at":     r.CreatedAt,
			"expires_at":     r.ExpiresAt,
			"enabled":        r.IsEnabled(),
			"source_file":    r.SourceFile,
		},
		"wildcard":        r.IsWildcard(),
		"has_expiry":      hasExpiry,
		"expired":         allowlist.IsExpired(r, now),
		"expires_in_days": days,
	}
}
