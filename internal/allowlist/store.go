// Package allowlist loads suppression policy files and decides which
// rules are active for the current run.
package allowlist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/leppikallio/pai-opencode/internal/models"
	"gopkg.in/yaml.v3"
)

// ErrInvalidPolicy is wrapped by every shape violation in a policy file.
var ErrInvalidPolicy = errors.New("invalid allowlist policy")

// LoadError reports a policy file that could not be used. Index is the
// offending rule position, or -1 for file-level problems.
type LoadError struct {
	Path  string
	Index int
	Err   error
}

func (e *LoadError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("allowlist %s: rule at index %d: %v", e.Path, e.Index, e.Err)
	}
	return fmt.Sprintf("allowlist %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// LoadOptions configures Load.
type LoadOptions struct {
	// Now is the evaluation time for expiry. Defaults to time.Now.
	Now func() time.Time
}

// PolicySet is the read-only result of loading every policy source.
type PolicySet struct {
	Sources  []string
	Active   []models.AllowlistRule
	Expired  []models.AllowlistRule
	Messages []string
	Warnings []string
}

// Enabled reports whether any policy source was loaded.
func (p *PolicySet) Enabled() bool {
	return p != nil && len(p.Sources) > 0
}

// Wildcards returns the active rules that match every finding.
func (p *PolicySet) Wildcards() []models.AllowlistRule {
	if p == nil {
		return nil
	}
	var out []models.AllowlistRule
	for _, r := range p.Active {
		if r.IsWildcard() {
			out = append(out, r)
		}
	}
	return out
}

// Load reads, validates and normalises the given policy files in order.
// An empty path list yields an empty set, meaning filtering is off.
// Any malformed file aborts the whole load.
func Load(paths []string, opts LoadOptions) (*PolicySet, error) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	evalAt := now()

	set := &PolicySet{Sources: append([]string(nil), paths...)}
	explicitIDs := make(map[string]string)

	for _, path := range paths {
		doc, err := ReadDocument(path)
		if err != nil {
			return nil, err
		}

		inFile := make(map[string]int, len(doc.Rules))
		active := 0
		for idx, raw := range doc.Rules {
			explicit := raw.ID != ""
			rule := normalize(raw, path, idx)
			if !rule.IsEnabled() {
				continue
			}

			if explicit {
				if first, dup := inFile[rule.ID]; dup {
					return nil, &LoadError{
						Path:  path,
						Index: idx,
						Err:   fmt.Errorf("%w: duplicate id %q (first at index %d)", ErrInvalidPolicy, rule.ID, first),
					}
				}
				inFile[rule.ID] = idx

				if other, dup := explicitIDs[rule.ID]; dup && other != path {
					set.Warnings = append(set.Warnings,
						fmt.Sprintf("rule id %q is defined in both %s and %s", rule.ID, other, path))
				} else if !dup {
					explicitIDs[rule.ID] = path
				}
			}

			if IsExpired(rule, evalAt) {
				set.Expired = append(set.Expired, rule)
				continue
			}
			set.Active = append(set.Active, rule)
			active++
		}
		set.Messages = append(set.Messages, fmt.Sprintf("%s (active rules: %d)", path, active))
	}

	for _, r := range set.Wildcards() {
		set.Warnings = append(set.Warnings,
			fmt.Sprintf("rule %q in %s has no match fields and suppresses every finding", r.ID, r.SourceFile))
	}

	return set, nil
}

func normalize(rule models.AllowlistRule, path string, idx int) models.AllowlistRule {
	if rule.Enabled == nil {
		rule.Enabled = models.BoolPtr(true)
	}
	if rule.ID == "" {
		rule.ID = fmt.Sprintf("%s:%d", filepath.Base(path), idx)
	}
	rule.SourceFile = path
	return rule
}

// ReadDocument parses one policy file and checks its shape. Files ending in
// .yaml or .yml are read as YAML, anything else as JSON.
func ReadDocument(path string) (*models.AllowlistDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Index: -1, Err: err}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return decodeYAML(path, data)
	default:
		return decodeJSON(path, data)
	}
}

func decodeJSON(path string, data []byte) (*models.AllowlistDocument, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, &LoadError{Path: path, Index: -1, Err: fmt.Errorf("%w: %v", ErrInvalidPolicy, err)}
	}
	if root == nil {
		return nil, fileError(path, "root must be an object")
	}

	rawRules, ok := root["rules"]
	if !ok {
		return nil, fileError(path, "'rules' is required")
	}
	var items []json.RawMessage
	if isJSONNull(rawRules) || json.Unmarshal(rawRules, &items) != nil {
		return nil, fileError(path, "'rules' must be an array")
	}

	doc := &models.AllowlistDocument{Rules: make([]models.AllowlistRule, 0, len(items))}
	if v, ok := root["version"]; ok {
		_ = json.Unmarshal(v, &doc.Version)
	}
	if d, ok := root["description"]; ok {
		_ = json.Unmarshal(d, &doc.Description)
	}

	for idx, item := range items {
		trimmed := bytes.TrimSpace(item)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			return nil, ruleError(path, idx, errors.New("expected object"))
		}
		var rule models.AllowlistRule
		if err := json.Unmarshal(item, &rule); err != nil {
			return nil, ruleError(path, idx, err)
		}
		doc.Rules = append(doc.Rules, rule)
	}
	return doc, nil
}

func decodeYAML(path string, data []byte) (*models.AllowlistDocument, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &LoadError{Path: path, Index: -1, Err: fmt.Errorf("%w: %v", ErrInvalidPolicy, err)}
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, fileError(path, "root must be an object")
	}
	body := resolveAlias(root.Content[0])
	if body.Kind != yaml.MappingNode {
		return nil, fileError(path, "root must be an object")
	}

	doc := &models.AllowlistDocument{}
	var rules *yaml.Node
	for i := 0; i+1 < len(body.Content); i += 2 {
		key, val := body.Content[i].Value, resolveAlias(body.Content[i+1])
		switch key {
		case "rules":
			rules = val
		case "version":
			_ = val.Decode(&doc.Version)
		case "description":
			_ = val.Decode(&doc.Description)
		}
	}

	if rules == nil {
		return nil, fileError(path, "'rules' is required")
	}
	if rules.Kind != yaml.SequenceNode {
		return nil, fileError(path, "'rules' must be an array")
	}

	doc.Rules = make([]models.AllowlistRule, 0, len(rules.Content))
	for idx, item := range rules.Content {
		item = resolveAlias(item)
		if item.Kind != yaml.MappingNode {
			return nil, ruleError(path, idx, errors.New("expected object"))
		}
		var rule models.AllowlistRule
		if err := item.Decode(&rule); err != nil {
			return nil, ruleError(path, idx, err)
		}
		doc.Rules = append(doc.Rules, rule)
	}
	return doc, nil
}

func resolveAlias(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

func isJSONNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func fileError(path, msg string) error {
	return &LoadError{Path: path, Index: -1, Err: fmt.Errorf("%w: %s", ErrInvalidPolicy, msg)}
}

func ruleError(path string, idx int, err error) error {
	return &LoadError{Path: path, Index: idx, Err: fmt.Errorf("%w: %v", ErrInvalidPolicy, err)}
}
