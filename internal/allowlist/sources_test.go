package allowlist

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveSources(t *testing.T) {
	dir := t.TempDir()
	def := writeFile(t, dir, "default.json", `{"rules": []}`)
	extra := writeFile(t, dir, "extra.json", `{"rules": []}`)
	absent := filepath.Join(dir, "absent.json")

	t.Run("defaults that exist then explicit", func(t *testing.T) {
		got, err := ResolveSources(SourceConfig{
			Defaults: []string{absent, def},
			Explicit: []string{extra, def},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{def, extra}, got)
	})

	t.Run("disabled", func(t *testing.T) {
		got, err := ResolveSources(SourceConfig{Disabled: true, Defaults: []string{def}, Explicit: []string{absent}})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("missing explicit", func(t *testing.T) {
		_, err := ResolveSources(SourceConfig{Explicit: []string{absent}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), absent)
	})

	t.Run("explicit directory", func(t *testing.T) {
		_, err := ResolveSources(SourceConfig{Explicit: []string{dir}})
		assert.Error(t, err)
	})
}

func TestEnvLocations(t *testing.T) {
	t.Setenv(EnvAllowlist, strings.Join([]string{"a.json", "", "b.yaml"}, string(filepath.ListSeparator)))
	assert.Equal(t, []string{"a.json", "b.yaml"}, EnvLocations())

	t.Setenv(EnvAllowlist, "")
	assert.Nil(t, EnvLocations())
}
