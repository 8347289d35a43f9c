package wcadm

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLayout(t *testing.T) *Layout {
	t.Helper()
	dir := t.TempDir()
	layout := NewLayout(dir)
	require.NoError(t, layout.EnsureDirs())
	return layout
}

func TestLayout_EnsureDirs(t *testing.T) {
	layout := newTestLayout(t)
	for _, d := range []string{layout.AdmDir(), layout.TmpDir(), layout.TmpTextBaseDir()} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestEntries_ApplyAndRoundTrip(t *testing.T) {
	layout := newTestLayout(t)

	es := NewEntries()
	rev := int64(5)
	kind := "file"
	sched := ScheduleAdd
	es.Apply("foo.txt", Update{
		Kind:     &kind,
		Revision: &rev,
		Schedule: &sched,
	})

	require.NoError(t, WriteEntries(layout, es))

	reloaded, err := ReadEntries(layout)
	require.NoError(t, err)

	e, ok := reloaded.Get("foo.txt")
	require.True(t, ok)
	assert.Equal(t, "file", e.Kind)
	assert.EqualValues(t, 5, e.Revision)
	assert.Equal(t, ScheduleAdd, e.Schedule)
}

func TestEntries_ThisDir(t *testing.T) {
	es := NewEntries()
	url := "https://example.invalid/repo/trunk"
	es.Apply(ThisDir, Update{URL: &url})

	e, ok := es.ThisDir()
	require.True(t, ok)
	assert.Equal(t, url, e.URL)
}

func TestReadEntries_MissingFileIsEmpty(t *testing.T) {
	layout := newTestLayout(t)
	es, err := ReadEntries(layout)
	require.NoError(t, err)
	assert.Equal(t, 0, es.Len())
}

func TestAdmFile_CommitAndAbort(t *testing.T) {
	layout := newTestLayout(t)

	f, err := OpenAdmFile(layout, "entries")
	require.NoError(t, err)
	_, err = f.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, f.Close(true))

	data, err := os.ReadFile(layout.EntriesPath())
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	_, statErr := os.Stat(filepath.Join(layout.TmpDir(), "entries.tmp"))
	assert.True(t, os.IsNotExist(statErr), "temp file must not survive a committed close")

	f2, err := OpenAdmFile(layout, "log")
	require.NoError(t, err)
	_, err = f2.Write([]byte("abandoned"))
	require.NoError(t, err)
	require.NoError(t, f2.Abort())

	_, err = os.Stat(layout.LogPath())
	assert.True(t, os.IsNotExist(err), "aborted write must not create the final file")
}

func TestLock_ExclusiveAndAlreadyLocked(t *testing.T) {
	ctx := context.Background()
	layout := newTestLayout(t)

	lock, err := Acquire(ctx, layout, time.Second)
	require.NoError(t, err)
	assert.True(t, IsLocked(layout))

	_, err = Acquire(ctx, layout, 50*time.Millisecond)
	require.Error(t, err)

	require.NoError(t, lock.Release())
	assert.False(t, IsLocked(layout))

	lock2, err := Acquire(ctx, layout, time.Second)
	require.NoError(t, err)
	require.NoError(t, lock2.Release())
}

func TestLock_Steal(t *testing.T) {
	layout := newTestLayout(t)
	lock, err := Acquire(context.Background(), layout, time.Second)
	require.NoError(t, err)
	_ = lock

	require.NoError(t, Steal(layout))
	assert.False(t, IsLocked(layout))
}
