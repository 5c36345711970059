package receipt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedactArgs(t *testing.T) {
	tests := []struct {
		name    string
		in      []string
		want    []string
		changed bool
	}{
		{"empty", nil, nil, false},
		{"plain", []string{"--skills-dir", "skills/"}, []string{"--skills-dir", "skills/"}, false},
		{"flag value", []string{"--token", "abc"}, []string{"--token", redactedValue}, true},
		{"flag equals", []string{"--api-key=abc"}, []string{"--api-key=" + redactedValue}, true},
		{"secret looking value", []string{"ghp_abcdef"}, []string{redactedValue}, true},
		{"jwt", []string{"eyJhbGciOiJI.eyJzdWIiOiIx.SflKxwRJSMeK"}, []string{redactedValue}, true},
		{"long path kept", []string{"/very/long/path/to/some/skills/directory/here"}, []string{"/very/long/path/to/some/skills/directory/here"}, false},
		{
			"analyzer command tokens",
			[]string{"--analyzer-cmd", "skill-scanner scan --api-key sk-live123"},
			[]string{"--analyzer-cmd", "skill-scanner scan --api-key " + redactedValue},
			true,
		},
		{
			"analyzer command untouched",
			[]string{"--analyzer-cmd=skill-scanner scan --format json"},
			[]string{"--analyzer-cmd=skill-scanner scan --format json"},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed := RedactArgs(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.changed, changed)
		})
	}
}

func TestRedactArgs_DoesNotMutateInput(t *testing.T) {
	in := []string{"--password", "pw"}
	_, _ = RedactArgs(in)
	assert.Equal(t, "pw", in[1])
}
