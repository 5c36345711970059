package allowlist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/leppikallio/pai-opencode/internal/models"
	"gopkg.in/yaml.v3"
)

// DayLayout is the date format used by the maintenance commands.
const DayLayout = "2006-01-02"

const defaultDescription = "Skill scanner allowlist. Fix before mute: only context-justified suppressions with an expiry."

// ErrRuleNotFound is returned when an id does not exist in a document.
var ErrRuleNotFound = errors.New("rule not found")

// OpenDocument reads a policy file for editing. A missing file yields a
// fresh, empty document.
func OpenDocument(path string) (*models.AllowlistDocument, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return &models.AllowlistDocument{
			Version:     1,
			Description: defaultDescription,
			Rules:       []models.AllowlistRule{},
		}, nil
	}
	return ReadDocument(path)
}

// SaveDocument writes doc with rules sorted by skill, rule_id and id.
func SaveDocument(path string, doc *models.AllowlistDocument) error {
	rules := make([]models.AllowlistRule, len(doc.Rules))
	for i, r := range doc.Rules {
		r.SourceFile = ""
		rules[i] = r
	}
	sort.SliceStable(rules, func(i, j int) bool {
		a, b := rules[i], rules[j]
		if a.Skill != b.Skill {
			return a.Skill < b.Skill
		}
		if a.RuleID != b.RuleID {
			return a.RuleID < b.RuleID
		}
		return a.ID < b.ID
	})
	out := *doc
	out.Rules = rules

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(&out)
	default:
		data, err = json.MarshalIndent(&out, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("failed to marshal allowlist: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create allowlist directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write allowlist: %w", err)
	}
	doc.Rules = rules
	return nil
}

// ParseDay validates a YYYY-MM-DD date.
func ParseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DayLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return t, nil
}

func indexOf(doc *models.AllowlistDocument, id string) int {
	for i, r := range doc.Rules {
		if r.ID == id {
			return i
		}
	}
	return -1
}

// Upsert adds rule or replaces the rule with the same id. On update an
// empty CreatedAt keeps the existing value. It reports "added" or "updated".
func Upsert(doc *models.AllowlistDocument, rule models.AllowlistRule, now time.Time) (string, error) {
	if rule.ID == "" {
		return "", errors.New("rule id is required")
	}
	if _, err := ParseDay(rule.ExpiresAt); err != nil {
		return "", fmt.Errorf("expires_at: %w", err)
	}
	if rule.Enabled == nil {
		rule.Enabled = models.BoolPtr(true)
	}
	rule.SourceFile = ""

	idx := indexOf(doc, rule.ID)
	if idx < 0 {
		if rule.CreatedAt == "" {
			rule.CreatedAt = now.Format(DayLayout)
		}
		doc.Rules = append(doc.Rules, rule)
		return "added", nil
	}

	if rule.CreatedAt == "" {
		rule.CreatedAt = doc.Rules[idx].CreatedAt
		if rule.CreatedAt == "" {
			rule.CreatedAt = now.Format(DayLayout)
		}
	}
	doc.Rules[idx] = rule
	return "updated", nil
}

// Disable turns a rule off, optionally replacing its reason and expiry.
func Disable(doc *models.AllowlistDocument, id, reason, expiresAt string) error {
	idx := indexOf(doc, id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	if expiresAt != "" {
		if _, err := ParseDay(expiresAt); err != nil {
			return fmt.Errorf("expires_at: %w", err)
		}
		doc.Rules[idx].ExpiresAt = expiresAt
	}
	if reason != "" {
		doc.Rules[idx].Reason = reason
	}
	doc.Rules[idx].Enabled = models.BoolPtr(false)
	return nil
}

// PruneExpired drops every expired rule, including ones with an
// unparseable expiry, and returns how many were removed.
func PruneExpired(doc *models.AllowlistDocument, now time.Time) int {
	kept := doc.Rules[:0]
	removed := 0
	for _, r := range doc.Rules {
		if IsExpired(r, now) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	doc.Rules = kept
	return removed
}

// ListedRule is a rule with its evaluated status.
type ListedRule struct {
	Rule    models.AllowlistRule
	Expired bool
}

// Status renders "enabled", "disabled", optionally suffixed with ",expired".
func (l ListedRule) Status() string {
	s := "enabled"
	if !l.Rule.IsEnabled() {
		s = "disabled"
	}
	if l.Expired {
		s += ",expired"
	}
	return s
}

// ListFilter narrows List output.
type ListFilter struct {
	Skill           string
	IncludeDisabled bool
}

// List returns the rules of doc that pass filter, in file order.
func List(doc *models.AllowlistDocument, filter ListFilter, now time.Time) []ListedRule {
	var out []ListedRule
	for _, r := range doc.Rules {
		if filter.Skill != "" && r.Skill != filter.Skill {
			continue
		}
		if !filter.IncludeDisabled && !r.IsEnabled() {
			continue
		}
		out = append(out, ListedRule{Rule: r, Expired: IsExpired(r, now)})
	}
	return out
}
