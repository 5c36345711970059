package gate

import (
	"testing"

	"github.com/leppikallio/pai-opencode/internal/exitcode"
	"github.com/leppikallio/pai-opencode/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name     string
		profile  Profile
		critical int
		high     int
		code     int
		blocked  bool
		reason   string
	}{
		{"advisory ignores findings", Advisory, 5, 9, exitcode.OK, false, "advisory mode (critical=5, high=9)"},
		{"block-critical trips", BlockCritical, 1, 0, exitcode.BlockCritical, true, "gate block-critical triggered (critical=1)"},
		{"block-critical ignores high", BlockCritical, 0, 7, exitcode.OK, false, "gate block-critical passed (critical=0)"},
		{"block-high on high", BlockHigh, 0, 1, exitcode.BlockHigh, true, "gate block-high triggered (critical=0, high=1)"},
		{"block-high on critical", BlockHigh, 2, 0, exitcode.BlockHigh, true, "gate block-high triggered (critical=2, high=0)"},
		{"block-high clean", BlockHigh, 0, 0, exitcode.OK, false, "gate block-high passed (critical=0, high=0)"},
		{"unknown profile", Profile("paranoid"), 0, 0, exitcode.Failure, true, `unknown gate profile "paranoid"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Decide(tt.profile, tt.critical, tt.high)
			assert.Equal(t, tt.code, d.ExitCode)
			assert.Equal(t, tt.blocked, d.Blocked)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
}

func TestDecideReport(t *testing.T) {
	report := models.NewReport(models.ScanResult{
		SkillName: "s",
		Findings: []models.Finding{
			{ID: "1", Severity: models.SeverityHigh},
			{ID: "2", Severity: models.SeverityMedium},
		},
	})
	assert.Equal(t, exitcode.BlockHigh, DecideReport(BlockHigh, report).ExitCode)
	assert.Equal(t, exitcode.OK, DecideReport(BlockCritical, report).ExitCode)
	assert.Equal(t, exitcode.OK, DecideReport(BlockHigh, nil).ExitCode)
}

func TestParseProfile(t *testing.T) {
	p, err := ParseProfile(" Block-High ")
	require.NoError(t, err)
	assert.Equal(t, BlockHigh, p)

	_, err = ParseProfile("strict")
	assert.Error(t, err)
}

func TestResolveProfile(t *testing.T) {
	tests := []struct {
		name      string
		requested Profile
		explicit  bool
		legacy    bool
		want      Profile
		notice    bool
	}{
		{"default", "", false, false, Advisory, false},
		{"requested", BlockCritical, true, false, BlockCritical, false},
		{"legacy alone", Advisory, false, true, BlockHigh, true},
		{"legacy with explicit profile", BlockCritical, true, true, BlockCritical, true},
		{"legacy with explicit advisory", Advisory, true, true, Advisory, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, notice := ResolveProfile(tt.requested, tt.explicit, tt.legacy)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.notice, notice != "")
		})
	}

	_, notice := ResolveProfile(Advisory, false, true)
	assert.Equal(t, LegacyNotice, notice)
}
