package update

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/vcsfs/internal/vcsconfig"
	"github.com/orneryd/vcsfs/internal/vcserr"
	"github.com/orneryd/vcsfs/pkg/dag"
	"github.com/orneryd/vcsfs/pkg/install"
	"github.com/orneryd/vcsfs/pkg/nr"
	"github.com/orneryd/vcsfs/pkg/wcadm"
)

func newTestFS(t *testing.T) *dag.Filesystem {
	t.Helper()
	store := nr.NewMemStore()
	t.Cleanup(func() { _ = store.Close() })
	fs, err := dag.NewFilesystem(context.Background(), store)
	require.NoError(t, err)
	return fs
}

func writeFileContents(t *testing.T, fs *dag.Filesystem, id nr.NodeId, data string) {
	t.Helper()
	wc, err := fs.Store.SetContents(context.Background(), id)
	require.NoError(t, err)
	_, err = wc.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, wc.Close())
}

func newTestEditor(t *testing.T) *Editor {
	t.Helper()
	cfg := vcsconfig.DefaultConfig()
	cfg.DiffCmd = ""
	cfg.PatchCmd = ""
	return NewEditor(install.NewInstaller(cfg))
}

func TestDrive_CheckoutCreatesWorkingCopy(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	root, err := fs.BeginTxn(ctx, "txn-1", 0)
	require.NoError(t, err)
	f, err := fs.MakeFile(ctx, root, "/", "hello.txt", "txn-1")
	require.NoError(t, err)
	writeFileContents(t, fs, f.Id(), "hello\n")
	rev1, err := fs.CommitTxn(ctx, "txn-1")
	require.NoError(t, err)

	dir := t.TempDir()
	e := newTestEditor(t)
	require.NoError(t, DriveWith(ctx, fs, dir, rev1, nr.InvalidRevNum, e))

	data, err := os.ReadFile(dir + "/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))

	entries, err := wcadm.ReadEntries(wcadm.NewLayout(dir))
	require.NoError(t, err)
	fe, ok := entries.Get("hello.txt")
	require.True(t, ok)
	assert.EqualValues(t, rev1, fe.Revision)
}

func TestDrive_UpdateBringsInNewRevision(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	root, err := fs.BeginTxn(ctx, "txn-1", 0)
	require.NoError(t, err)
	f, err := fs.MakeFile(ctx, root, "/", "hello.txt", "txn-1")
	require.NoError(t, err)
	writeFileContents(t, fs, f.Id(), "hello\n")
	rev1, err := fs.CommitTxn(ctx, "txn-1")
	require.NoError(t, err)

	dir := t.TempDir()
	e := newTestEditor(t)
	require.NoError(t, DriveWith(ctx, fs, dir, rev1, nr.InvalidRevNum, e))

	root2, err := fs.BeginTxn(ctx, "txn-2", rev1)
	require.NoError(t, err)
	f2, err := fs.CloneChild(ctx, root2, "/", "hello.txt", "", "txn-2")
	require.NoError(t, err)
	writeFileContents(t, fs, f2.Id(), "goodbye\n")
	rev2, err := fs.CommitTxn(ctx, "txn-2")
	require.NoError(t, err)

	e2 := newTestEditor(t)
	require.NoError(t, DriveWith(ctx, fs, dir, rev2, rev1, e2))

	data, err := os.ReadFile(dir + "/hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "goodbye\n", string(data))

	entries, err := wcadm.ReadEntries(wcadm.NewLayout(dir))
	require.NoError(t, err)
	fe, ok := entries.Get("hello.txt")
	require.True(t, ok)
	assert.EqualValues(t, rev2, fe.Revision)
}

func TestDrive_DeletedEntryRemovedFromWorkingCopy(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	root, err := fs.BeginTxn(ctx, "txn-1", 0)
	require.NoError(t, err)
	f, err := fs.MakeFile(ctx, root, "/", "gone.txt", "txn-1")
	require.NoError(t, err)
	writeFileContents(t, fs, f.Id(), "bye\n")
	rev1, err := fs.CommitTxn(ctx, "txn-1")
	require.NoError(t, err)

	dir := t.TempDir()
	e := newTestEditor(t)
	require.NoError(t, DriveWith(ctx, fs, dir, rev1, nr.InvalidRevNum, e))
	_, err = os.Stat(dir + "/gone.txt")
	require.NoError(t, err)

	root2, err := fs.BeginTxn(ctx, "txn-2", rev1)
	require.NoError(t, err)
	require.NoError(t, fs.DeleteEntry(ctx, root2, "/", "gone.txt", "txn-2"))
	rev2, err := fs.CommitTxn(ctx, "txn-2")
	require.NoError(t, err)

	e2 := newTestEditor(t)
	require.NoError(t, DriveWith(ctx, fs, dir, rev2, rev1, e2))

	_, err = os.Stat(dir + "/gone.txt")
	assert.True(t, os.IsNotExist(err))

	entries, err := wcadm.ReadEntries(wcadm.NewLayout(dir))
	require.NoError(t, err)
	_, ok := entries.Get("gone.txt")
	assert.False(t, ok)
}

// TestDrive_CheckoutObstructedByUnversionedFile covers spec.md §8
// scenario 7: a checkout adds a file at a path where an unversioned
// file (one the entries table has never heard of) already sits on
// disk. add_file must refuse with CodeObstructedUpdate rather than
// silently overwriting the unversioned content.
func TestDrive_CheckoutObstructedByUnversionedFile(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	root, err := fs.BeginTxn(ctx, "txn-1", 0)
	require.NoError(t, err)
	f, err := fs.MakeFile(ctx, root, "/", "existing.txt", "txn-1")
	require.NoError(t, err)
	writeFileContents(t, fs, f.Id(), "from repository\n")
	rev1, err := fs.CommitTxn(ctx, "txn-1")
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(dir+"/existing.txt", []byte("unversioned local content\n"), 0o644))

	e := newTestEditor(t)
	err = DriveWith(ctx, fs, dir, rev1, nr.InvalidRevNum, e)
	require.Error(t, err)
	assert.True(t, vcserr.Is(err, vcserr.CodeObstructedUpdate))

	data, err := os.ReadFile(dir + "/existing.txt")
	require.NoError(t, err)
	assert.Equal(t, "unversioned local content\n", string(data))

	entries, err := wcadm.ReadEntries(wcadm.NewLayout(dir))
	require.NoError(t, err)
	_, ok := entries.Get("existing.txt")
	assert.False(t, ok)
}

// TestAddDirectory_ObstructedByUnversionedEntry covers the directory
// half of the same check directly, without driving a whole checkout.
func TestAddDirectory_ObstructedByUnversionedEntry(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(dir+"/sub", 0o755))

	e := newTestEditor(t)
	root, err := e.OpenRoot(dir, nr.InvalidRevNum)
	require.NoError(t, err)

	_, err = e.AddDirectory(root, "sub")
	require.Error(t, err)
	assert.True(t, vcserr.Is(err, vcserr.CodeObstructedUpdate))
}
