package install

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/vcsfs/internal/vcsconfig"
	"github.com/orneryd/vcsfs/pkg/wcadm"
)

func newTestInstaller(t *testing.T) (*Installer, *wcadm.Layout) {
	t.Helper()
	cfg := vcsconfig.DefaultConfig()
	cfg.EOLStyleDefault = vcsconfig.EOLNone
	// force the in-process fallbacks so the tests run without diff(1)/patch(1).
	cfg.DiffCmd = ""
	cfg.PatchCmd = ""

	dir := t.TempDir()
	layout := wcadm.NewLayout(dir)
	require.NoError(t, layout.EnsureDirs())
	return NewInstaller(cfg), layout
}

func writeStaged(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "staged.base")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestInstallFile_NoOpUpdate(t *testing.T) {
	ctx := context.Background()
	inst, layout := newTestInstaller(t)

	require.NoError(t, os.WriteFile(layout.WorkingPath("bar"), []byte("unchanged\n"), 0o644))
	require.NoError(t, os.WriteFile(layout.TextBasePath("bar"), []byte("unchanged\n"), 0o644))

	res, err := inst.InstallFile(ctx, Request{
		Dir:      layout.WCDir,
		Basename: "bar",
		NewRev:   6,
	})
	require.NoError(t, err)
	assert.False(t, res.Conflicted)

	entries, err := wcadm.ReadEntries(layout)
	require.NoError(t, err)
	e, ok := entries.Get("bar")
	require.True(t, ok)
	assert.EqualValues(t, 6, e.Revision)

	info, err := os.Stat(layout.WorkingPath("bar"))
	require.NoError(t, err)
	assert.WithinDuration(t, info.ModTime(), e.TextTime, time.Second)

	data, err := os.ReadFile(layout.WorkingPath("bar"))
	require.NoError(t, err)
	assert.Equal(t, "unchanged\n", string(data), "no-op update must leave the working file byte-identical")
}

func TestInstallFile_LocalModMergesCleanly(t *testing.T) {
	ctx := context.Background()
	inst, layout := newTestInstaller(t)

	require.NoError(t, os.WriteFile(layout.TextBasePath("a.txt"), []byte("a\nb\n"), 0o644))
	require.NoError(t, os.WriteFile(layout.WorkingPath("a.txt"), []byte("a\nb\nlocal\n"), 0o644))

	newText := writeStaged(t, "a\nB\n")

	res, err := inst.InstallFile(ctx, Request{
		Dir:         layout.WCDir,
		Basename:    "a.txt",
		NewRev:      7,
		NewTextPath: newText,
	})
	require.NoError(t, err)
	assert.False(t, res.Conflicted)

	merged, err := os.ReadFile(layout.WorkingPath("a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "a\nB\nlocal\n", string(merged))

	_, err = os.Stat(layout.WorkingPath("a.txt") + ".rej")
	assert.True(t, os.IsNotExist(err))

	entries, err := wcadm.ReadEntries(layout)
	require.NoError(t, err)
	e, ok := entries.Get("a.txt")
	require.True(t, ok)
	assert.False(t, e.Conflicted)
	assert.EqualValues(t, 7, e.Revision)
}

func TestInstallFile_LocalModCausesConflict(t *testing.T) {
	ctx := context.Background()
	inst, layout := newTestInstaller(t)

	require.NoError(t, os.WriteFile(layout.TextBasePath("a.txt"), []byte("a\nb\n"), 0o644))
	require.NoError(t, os.WriteFile(layout.WorkingPath("a.txt"), []byte("a\nX\nlocal\n"), 0o644))

	newText := writeStaged(t, "a\nB\n")

	res, err := inst.InstallFile(ctx, Request{
		Dir:         layout.WCDir,
		Basename:    "a.txt",
		NewRev:      7,
		NewTextPath: newText,
	})
	require.NoError(t, err)
	assert.True(t, res.Conflicted)

	entries, err := wcadm.ReadEntries(layout)
	require.NoError(t, err)
	e, ok := entries.Get("a.txt")
	require.True(t, ok)
	assert.True(t, e.Conflicted)
	assert.NotEmpty(t, e.TextRejectFile)

	rejData, err := os.ReadFile(e.TextRejectFile)
	require.NoError(t, err)
	assert.NotEmpty(t, rejData)
}

func TestInstallFile_PropertyMerge(t *testing.T) {
	ctx := context.Background()
	inst, layout := newTestInstaller(t)

	require.NoError(t, os.WriteFile(layout.WorkingPath("a.txt"), []byte("hi\n"), 0o644))
	require.NoError(t, os.WriteFile(layout.TextBasePath("a.txt"), []byte("hi\n"), 0o644))

	v := "CRLF"
	_, err := inst.InstallFile(ctx, Request{
		Dir:         layout.WCDir,
		Basename:    "a.txt",
		NewRev:      2,
		PropChanges: []PropChange{{Name: "svn:eol-style", Value: &v}},
	})
	require.NoError(t, err)

	props, err := readPropMap(layout.PropsPath("a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "CRLF", props["svn:eol-style"])
}
