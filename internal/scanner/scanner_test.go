package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/vaultlint/internal/testutil"
	"github.com/leapstack-labs/vaultlint/pkg/core"
)

func writeVault(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

func relPaths(files []File) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.RelPath)
	}
	return out
}

func TestScan(t *testing.T) {
	vault := writeVault(t, map[string]string{
		"b.md":                  "b",
		"a.md":                  "a",
		"notes/c.md":            "c",
		"notes/img.png":         "png",
		".obsidian/app.md":      "cfg",
		"templates/daily.md":    "t",
		"archive/old/README.MD": "r",
	})

	tests := []struct {
		name string
		opts Options
		want []string
	}{
		{
			name: "defaults",
			opts: Options{},
			want: []string{".obsidian/app.md", "a.md", "archive/old/README.MD", "b.md", "notes/c.md", "templates/daily.md"},
		},
		{
			name: "ignore patterns",
			opts: Options{Ignore: []string{".obsidian", "templates/**"}},
			want: []string{"a.md", "archive/old/README.MD", "b.md", "notes/c.md"},
		},
		{
			name: "all extensions",
			opts: Options{Ignore: []string{".*", "archive", "templates"}, Extensions: []string{"*"}},
			want: []string{"a.md", "b.md", "notes/c.md", "notes/img.png"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Logger = testutil.NewTestLogger(t)
			res, err := Scan(context.Background(), vault, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, relPaths(res.Files))
			assert.Empty(t, res.Errors)
		})
	}
}

func TestScan_AbsPaths(t *testing.T) {
	vault := writeVault(t, map[string]string{"notes/a.md": "a"})
	res, err := Scan(context.Background(), vault, Options{})
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	assert.Equal(t, filepath.Join(vault, "notes", "a.md"), res.Files[0].AbsPath)
}

func TestScan_MissingVault(t *testing.T) {
	_, err := Scan(context.Background(), filepath.Join(t.TempDir(), "nope"), Options{})
	require.Error(t, err)
	assert.Equal(t, core.CodeFileNotFound, core.CodeOf(err))
}

func TestScan_Cancelled(t *testing.T) {
	vault := writeVault(t, map[string]string{"a.md": "a"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Scan(ctx, vault, Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
