package logjournal

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/vcsfs/pkg/wcadm"
)

type fakeExecutor struct {
	applied []Command
	failOn  Kind
}

func (f *fakeExecutor) record(c Command) error {
	if f.failOn != "" && c.Kind == f.failOn {
		f.failOn = "" // fail exactly once, so a retry succeeds
		return os.ErrInvalid
	}
	f.applied = append(f.applied, c)
	return nil
}

func (f *fakeExecutor) ModifyEntry(name string, fields map[string]string) error {
	return f.record(Command{Kind: KindModifyEntry, Name: name, Fields: fields})
}
func (f *fakeExecutor) DeleteEntry(name string) error {
	return f.record(Command{Kind: KindDeleteEntry, Name: name})
}
func (f *fakeExecutor) CP(src, dst string, t TranslateMode) error {
	return f.record(Command{Kind: KindCP, Src: src, Dst: dst, Translate: t})
}
func (f *fakeExecutor) MV(src, dst string) error {
	return f.record(Command{Kind: KindMV, Src: src, Dst: dst})
}
func (f *fakeExecutor) RM(path string) error {
	return f.record(Command{Kind: KindRM, Path: path})
}
func (f *fakeExecutor) Readonly(path string) error {
	return f.record(Command{Kind: KindReadonly, Path: path})
}
func (f *fakeExecutor) RunCmd(name string, args []string, infile string) error {
	return f.record(Command{Kind: KindRunCmd, CmdName: name, Args: args, Infile: infile})
}
func (f *fakeExecutor) DetectConflict(name, reject string) error {
	return f.record(Command{Kind: KindDetectConflict, Name: name, Reject: reject})
}

func newTestLayout(t *testing.T) *wcadm.Layout {
	t.Helper()
	layout := wcadm.NewLayout(t.TempDir())
	require.NoError(t, layout.EnsureDirs())
	return layout
}

func TestJournal_FlushAndReplay(t *testing.T) {
	layout := newTestLayout(t)
	j := New(layout)
	j.Append(
		ModifyEntry("foo.txt", map[string]string{"revision": "5"}),
		CP("tmp/foo.base", "text-base/foo.base", TranslateNone),
		Readonly("text-base/foo.base"),
	)
	require.NoError(t, j.Flush())
	assert.Equal(t, 0, j.Len())

	_, err := os.Stat(layout.LogPath())
	require.NoError(t, err)

	exec := &fakeExecutor{}
	require.NoError(t, Replay(layout, exec))

	require.Len(t, exec.applied, 3)
	assert.Equal(t, KindModifyEntry, exec.applied[0].Kind)
	assert.Equal(t, KindCP, exec.applied[1].Kind)
	assert.Equal(t, KindReadonly, exec.applied[2].Kind)

	_, err = os.Stat(layout.LogPath())
	assert.True(t, os.IsNotExist(err), "log must be removed after successful replay")
}

func TestReplay_NoLogIsNoop(t *testing.T) {
	layout := newTestLayout(t)
	exec := &fakeExecutor{}
	require.NoError(t, Replay(layout, exec))
	assert.Empty(t, exec.applied)
}

func TestReplay_IdempotentAfterMidReplayFailure(t *testing.T) {
	layout := newTestLayout(t)
	j := New(layout)
	j.Append(
		ModifyEntry("a", map[string]string{"revision": "1"}),
		ModifyEntry("b", map[string]string{"revision": "1"}),
		ModifyEntry("c", map[string]string{"revision": "1"}),
	)
	require.NoError(t, j.Flush())

	exec := &fakeExecutor{failOn: KindModifyEntry}
	err := Replay(layout, exec)
	require.Error(t, err, "first command fails, log must remain for a retry")
	assert.Len(t, exec.applied, 0)

	_, statErr := os.Stat(layout.LogPath())
	require.NoError(t, statErr, "log must still be present after a failed replay")

	require.NoError(t, Replay(layout, exec))
	assert.Len(t, exec.applied, 3, "retried replay must apply all commands exactly once each")
}

func TestReplay_DiscardsIncompleteLog(t *testing.T) {
	layout := newTestLayout(t)

	f, err := wcadm.OpenAdmFile(layout, wcadm.LogFile)
	require.NoError(t, err)
	_, err = f.Write([]byte(`{"seq":0,"command":{"kind":"MODIFY_ENTRY","name":"a"},"checksum":123}` + "\n"))
	require.NoError(t, err)
	require.NoError(t, f.Close(true))

	exec := &fakeExecutor{}
	require.NoError(t, Replay(layout, exec))
	assert.Empty(t, exec.applied, "a log with no commit marker must not be replayed")

	_, statErr := os.Stat(layout.LogPath())
	assert.True(t, os.IsNotExist(statErr))
}

