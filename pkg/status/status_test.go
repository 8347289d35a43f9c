package status

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/vcsfs/pkg/wcadm"
)

func seedEntry(t *testing.T, layout *wcadm.Layout, name string, u wcadm.Update) {
	t.Helper()
	entries, err := wcadm.ReadEntries(layout)
	require.NoError(t, err)
	entries.Apply(name, u)
	require.NoError(t, wcadm.WriteEntries(layout, entries))
}

func TestPath_UnversionedIsNone(t *testing.T) {
	dir := t.TempDir()
	layout := wcadm.NewLayout(dir)
	require.NoError(t, layout.EnsureDirs())

	e, err := Path(dir, "nope.txt")
	require.NoError(t, err)
	assert.Equal(t, TextNone, e.TextStatus)
	assert.Equal(t, TextNone, e.PropStatus)
}

func TestPath_UnmodifiedFile(t *testing.T) {
	dir := t.TempDir()
	layout := wcadm.NewLayout(dir)
	require.NoError(t, layout.EnsureDirs())

	kind := "file"
	seedEntry(t, layout, "a.txt", wcadm.Update{Kind: &kind})
	require.NoError(t, os.WriteFile(layout.WorkingPath("a.txt"), []byte("same\n"), 0o644))
	require.NoError(t, os.WriteFile(layout.TextBasePath("a.txt"), []byte("same\n"), 0o644))

	e, err := Path(dir, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, TextNone, e.TextStatus)
}

func TestPath_ModifiedFile(t *testing.T) {
	dir := t.TempDir()
	layout := wcadm.NewLayout(dir)
	require.NoError(t, layout.EnsureDirs())

	kind := "file"
	seedEntry(t, layout, "a.txt", wcadm.Update{Kind: &kind})
	require.NoError(t, os.WriteFile(layout.WorkingPath("a.txt"), []byte("changed\n"), 0o644))
	require.NoError(t, os.WriteFile(layout.TextBasePath("a.txt"), []byte("original\n"), 0o644))

	e, err := Path(dir, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, TextModified, e.TextStatus)
}

func TestPath_ScheduledAdd(t *testing.T) {
	dir := t.TempDir()
	layout := wcadm.NewLayout(dir)
	require.NoError(t, layout.EnsureDirs())

	kind := "file"
	sched := wcadm.ScheduleAdd
	seedEntry(t, layout, "new.txt", wcadm.Update{Kind: &kind, Schedule: &sched})

	e, err := Path(dir, "new.txt")
	require.NoError(t, err)
	assert.Equal(t, TextAdded, e.TextStatus)
	assert.Equal(t, TextAdded, e.PropStatus)
}

func TestPath_ConflictedWithExistingRejectWinsOverModified(t *testing.T) {
	dir := t.TempDir()
	layout := wcadm.NewLayout(dir)
	require.NoError(t, layout.EnsureDirs())

	rejectPath := layout.WorkingPath("a.txt") + ".rej"
	require.NoError(t, os.WriteFile(rejectPath, []byte("conflict"), 0o644))

	kind := "file"
	conflicted := true
	seedEntry(t, layout, "a.txt", wcadm.Update{
		Kind:           &kind,
		Conflicted:     &conflicted,
		TextRejectFile: &rejectPath,
	})
	require.NoError(t, os.WriteFile(layout.WorkingPath("a.txt"), []byte("changed\n"), 0o644))
	require.NoError(t, os.WriteFile(layout.TextBasePath("a.txt"), []byte("original\n"), 0o644))

	e, err := Path(dir, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, TextConflicted, e.TextStatus)
}

func TestPath_ConflictedFlagWithoutRejectFileDoesNotOverrideModified(t *testing.T) {
	dir := t.TempDir()
	layout := wcadm.NewLayout(dir)
	require.NoError(t, layout.EnsureDirs())

	kind := "file"
	conflicted := true
	missingReject := layout.WorkingPath("a.txt") + ".rej"
	seedEntry(t, layout, "a.txt", wcadm.Update{
		Kind:           &kind,
		Conflicted:     &conflicted,
		TextRejectFile: &missingReject,
	})
	require.NoError(t, os.WriteFile(layout.WorkingPath("a.txt"), []byte("changed\n"), 0o644))
	require.NoError(t, os.WriteFile(layout.TextBasePath("a.txt"), []byte("original\n"), 0o644))

	e, err := Path(dir, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, TextModified, e.TextStatus, "a stale conflicted flag whose reject file was already cleaned up must not mask the plain modified status")
}

func TestWalk_DescendsIntoDirectories(t *testing.T) {
	root := t.TempDir()
	rootLayout := wcadm.NewLayout(root)
	require.NoError(t, rootLayout.EnsureDirs())

	dirKind := "dir"
	seedEntry(t, rootLayout, "sub", wcadm.Update{Kind: &dirKind})

	subDir := root + "/sub"
	require.NoError(t, os.MkdirAll(subDir, 0o755))
	subLayout := wcadm.NewLayout(subDir)
	require.NoError(t, subLayout.EnsureDirs())

	fileKind := "file"
	seedEntry(t, subLayout, "nested.txt", wcadm.Update{Kind: &fileKind})
	require.NoError(t, os.WriteFile(subLayout.WorkingPath("nested.txt"), []byte("x\n"), 0o644))
	require.NoError(t, os.WriteFile(subLayout.TextBasePath("nested.txt"), []byte("x\n"), 0o644))

	entries, err := Walk(root)
	require.NoError(t, err)

	var sawNested bool
	for _, e := range entries {
		if e.Path == subDir+"/nested.txt" {
			sawNested = true
			assert.Equal(t, TextNone, e.TextStatus)
		}
	}
	assert.True(t, sawNested, "Walk must recurse into versioned subdirectories")
}

func TestEntry_Summary(t *testing.T) {
	e := Entry{
		Path:       "foo.txt",
		TextStatus: TextModified,
		WCEntry:    &wcadm.Entry{TextTime: time.Now().Add(-3 * time.Minute)},
	}
	assert.Contains(t, e.Summary(), "M")
	assert.Contains(t, e.Summary(), "foo.txt")
}
