package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/vaultlint/pkg/core"
)

func TestParseRuleID(t *testing.T) {
	tests := []struct {
		name      string
		id        string
		wantMajor string
		wantMinor string
		wantErr   bool
	}{
		{name: "simple", id: "x.strict", wantMajor: "x", wantMinor: "strict"},
		{name: "kebab segments", id: "frontmatter-required.tags-only", wantMajor: "frontmatter-required", wantMinor: "tags-only"},
		{name: "digits", id: "h1.v2", wantMajor: "h1", wantMinor: "v2"},
		{name: "no dot", id: "frontmatter", wantErr: true},
		{name: "two dots", id: "a.b.c", wantErr: true},
		{name: "uppercase", id: "Frontmatter.strict", wantErr: true},
		{name: "underscore", id: "front_matter.strict", wantErr: true},
		{name: "leading digit", id: "1x.strict", wantErr: true},
		{name: "trailing dash", id: "x-.strict", wantErr: true},
		{name: "double dash", id: "x--y.strict", wantErr: true},
		{name: "empty minor", id: "x.", wantErr: true},
		{name: "empty", id: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rid, err := core.ParseRuleID(tt.id)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMajor, rid.Major)
			assert.Equal(t, tt.wantMinor, rid.Minor)
			assert.Equal(t, tt.id, rid.Full, "parse(id).Full must round-trip")
			assert.Equal(t, rid.Major+"."+rid.Minor, rid.Full)
		})
	}
}

func TestParseSeverity(t *testing.T) {
	sev, ok := core.ParseSeverity("ERROR")
	assert.True(t, ok)
	assert.Equal(t, core.SeverityError, sev)

	sev, ok = core.ParseSeverity("critical")
	assert.False(t, ok)
	assert.Equal(t, core.SeverityWarning, sev)

	assert.False(t, core.Severity("fatal").Valid())
	assert.True(t, core.SeverityInfo.Valid())
}
