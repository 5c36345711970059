// Package gate turns post-suppression finding counts into a CI exit
// decision.
package gate

import (
	"fmt"
	"strings"

	"github.com/leppikallio/pai-opencode/internal/exitcode"
	"github.com/leppikallio/pai-opencode/internal/models"
)

// Profile names a gate policy.
type Profile string

const (
	Advisory      Profile = "advisory"
	BlockCritical Profile = "block-critical"
	BlockHigh     Profile = "block-high"
)

// DefaultProfile is used when nothing is requested.
const DefaultProfile = Advisory

// Profiles lists the known profiles in increasing strictness.
func Profiles() []Profile {
	return []Profile{Advisory, BlockCritical, BlockHigh}
}

// LegacyNotice is printed when the deprecated fail-on-findings flag picks
// the profile.
const LegacyNotice = "[warn] --fail-on-findings is legacy behavior; using gate profile 'block-high'."

// ParseProfile accepts a profile name in any case.
func ParseProfile(s string) (Profile, error) {
	p := Profile(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Profiles() {
		if p == known {
			return p, nil
		}
	}
	return Profile(s), fmt.Errorf("unknown gate profile %q (want advisory, block-critical or block-high)", s)
}

// Decision is the outcome of evaluating a profile.
type Decision struct {
	Profile  Profile
	ExitCode int
	Reason   string
	Blocked  bool
}

// Decide evaluates profile against the critical and high counts of the
// filtered report. Unknown profiles fail closed with the generic code.
func Decide(profile Profile, critical, high int) Decision {
	d := Decision{Profile: profile}
	switch profile {
	case Advisory:
		d.ExitCode = exitcode.OK
		d.Reason = fmt.Sprintf("advisory mode (critical=%d, high=%d)", critical, high)
	case BlockCritical:
		if critical > 0 {
			d.ExitCode = exitcode.BlockCritical
			d.Blocked = true
			d.Reason = fmt.Sprintf("gate block-critical triggered (critical=%d)", critical)
		} else {
			d.Reason = fmt.Sprintf("gate block-critical passed (critical=%d)", critical)
		}
	case BlockHigh:
		if critical > 0 || high > 0 {
			d.ExitCode = exitcode.BlockHigh
			d.Blocked = true
			d.Reason = fmt.Sprintf("gate block-high triggered (critical=%d, high=%d)", critical, high)
		} else {
			d.Reason = fmt.Sprintf("gate block-high passed (critical=%d, high=%d)", critical, high)
		}
	default:
		d.ExitCode = exitcode.Failure
		d.Blocked = true
		d.Reason = fmt.Sprintf("unknown gate profile %q", string(profile))
	}
	return d
}

// DecideReport evaluates profile against the derived counts of report.
// A nil report counts as empty.
func DecideReport(profile Profile, report *models.Report) Decision {
	if report == nil {
		return Decide(profile, 0, 0)
	}
	return Decide(profile, report.Summary.CriticalCount(), report.Summary.HighCount())
}

// ResolveProfile picks the effective profile. explicit reports whether
// the caller set requested on purpose. The legacy fail-on-findings flag
// maps to block-high unless an explicit profile overrides it; notice is
// the message to show the user, if any.
func ResolveProfile(requested Profile, explicit, legacyFailOnFindings bool) (Profile, string) {
	if !legacyFailOnFindings {
		if requested == "" {
			return DefaultProfile, ""
		}
		return requested, ""
	}
	if explicit && requested != "" {
		return requested, fmt.Sprintf("[warn] --fail-on-findings is legacy behavior and is ignored; using explicit gate profile '%s'.", requested)
	}
	return BlockHigh, LegacyNotice
}
