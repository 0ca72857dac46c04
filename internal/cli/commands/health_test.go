package commands

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthCommand(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		vault := newVault(t, nil)
		out, _, err := execute(t, NewHealthCommand(), vault)
		require.NoError(t, err)
		for _, check := range []string{"engine", "config", "rules", "memory", "cache"} {
			assert.Contains(t, out, check)
		}
		assert.NotContains(t, out, "FAIL")
		assert.Contains(t, out, "WARN")
		assert.Contains(t, out, "warning: rules:")
	})

	t.Run("conflicting rules", func(t *testing.T) {
		vault := newVault(t, map[string]string{
			"rules/default/enabled/strict.toml": strictFrontmatterRule,
		})
		out, _, err := execute(t, NewHealthCommand(), vault, "--format", "json")
		require.Error(t, err)

		var report struct {
			Healthy bool     `json:"healthy"`
			Issues  []string `json:"issues"`
			Checks  []struct {
				Name string `json:"name"`
				OK   bool   `json:"ok"`
			} `json:"checks"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &report))
		assert.False(t, report.Healthy)
		assert.NotEmpty(t, report.Issues)
		for _, c := range report.Checks {
			if c.Name == "rules" {
				assert.False(t, c.OK)
			}
		}
	})
}

func TestNewVersionCommand(t *testing.T) {
	tests := []struct {
		name    string
		version string
		wantOut []string
	}{
		{name: "release", version: "1.2.3", wantOut: []string{"vaultlint v1.2.3", "commit abc123"}},
		{name: "dev", version: "dev", wantOut: []string{"vaultlint vdev", "built today"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(t, NewVersionCommand(tt.version, "abc123", "today"))
			require.NoError(t, err)
			for _, want := range tt.wantOut {
				assert.Contains(t, out, want)
			}
		})
	}
}
