package dag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/vcsfs/pkg/nr"
)

func newTestFS(t *testing.T) *Filesystem {
	t.Helper()
	store := nr.NewMemStore()
	t.Cleanup(func() { _ = store.Close() })
	fs, err := NewFilesystem(context.Background(), store)
	require.NoError(t, err)
	return fs
}

func TestScenario_MutableClone(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	root, err := fs.BeginTxn(ctx, "txn-1", 0)
	require.NoError(t, err)

	a, err := fs.MakeDir(ctx, root, "/", "a", "txn-1")
	require.NoError(t, err)
	rev, err := fs.CommitTxn(ctx, "txn-1")
	require.NoError(t, err)

	root2, err := fs.BeginTxn(ctx, "txn-2", rev)
	require.NoError(t, err)

	aImmutableID := mustOpenID(t, ctx, fs, root2, "a")
	assert.False(t, aImmutableID.IsMutable())

	cloned, err := fs.CloneChild(ctx, root2, "/", "a", "", "txn-2")
	require.NoError(t, err)
	assert.True(t, cloned.Id().IsMutable())
	assert.True(t, nr.Related(cloned.Id(), aImmutableID))
	assert.NotEqual(t, aImmutableID, cloned.Id())

	again, err := fs.CloneChild(ctx, root2, "/", "a", "", "txn-2")
	require.NoError(t, err)
	assert.Equal(t, cloned.Id(), again.Id(), "cloning twice in the same txn must not create a second successor")

	_ = a
}

func mustOpenID(t *testing.T, ctx context.Context, fs *Filesystem, parent *Node, name string) nr.NodeId {
	t.Helper()
	n, err := fs.Open(ctx, parent, name)
	require.NoError(t, err)
	return n.Id()
}

func TestScenario_AddFileNameCollision(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	root, err := fs.BeginTxn(ctx, "txn-1", 0)
	require.NoError(t, err)

	_, err = fs.MakeFile(ctx, root, "/", "foo", "txn-1")
	require.NoError(t, err)

	_, err = fs.MakeFile(ctx, root, "/", "foo", "txn-1")
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestScenario_NonMutableParent(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	root, err := fs.BeginTxn(ctx, "txn-1", 0)
	require.NoError(t, err)
	_, err = fs.MakeDir(ctx, root, "/", "d", "txn-1")
	require.NoError(t, err)
	rev, err := fs.CommitTxn(ctx, "txn-1")
	require.NoError(t, err)

	immutableRoot, err := fs.RevisionRoot(ctx, rev)
	require.NoError(t, err)

	_, err = fs.MakeDir(ctx, immutableRoot, "/", "e", "some-unrelated-txn")
	assert.ErrorIs(t, err, ErrNotMutable)
}

func TestIsAncestorAndIsParent(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	root, err := fs.BeginTxn(ctx, "txn-1", 0)
	require.NoError(t, err)
	_, err = fs.MakeFile(ctx, root, "/", "f", "txn-1")
	require.NoError(t, err)
	rev1, err := fs.CommitTxn(ctx, "txn-1")
	require.NoError(t, err)

	root2, err := fs.BeginTxn(ctx, "txn-2", rev1)
	require.NoError(t, err)
	fOld, err := fs.Open(ctx, root2, "f")
	require.NoError(t, err)

	fNew, err := fs.CloneChild(ctx, root2, "/", "f", "", "txn-2")
	require.NoError(t, err)

	isAncestor, err := fs.IsAncestor(ctx, fOld, fNew)
	require.NoError(t, err)
	assert.True(t, isAncestor)

	isParent, err := fs.IsParent(ctx, fOld, fNew)
	require.NoError(t, err)
	assert.True(t, isParent)

	isAncestorReverse, err := fs.IsAncestor(ctx, fNew, fOld)
	require.NoError(t, err)
	assert.False(t, isAncestorReverse)

	// A node is never its own ancestor: WalkPredecessors must start at
	// fNew's predecessor, never call back with fNew itself first.
	isSelfAncestor, err := fs.IsAncestor(ctx, fNew, fNew)
	require.NoError(t, err)
	assert.False(t, isSelfAncestor)
}

func TestCommitTxn_MultipleRevisions(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	root, err := fs.BeginTxn(ctx, "txn-1", 0)
	require.NoError(t, err)
	_, err = fs.MakeDir(ctx, root, "/", "dir1", "txn-1")
	require.NoError(t, err)
	rev1, err := fs.CommitTxn(ctx, "txn-1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, rev1)

	root2, err := fs.BeginTxn(ctx, "txn-2", rev1)
	require.NoError(t, err)
	dir1, err := fs.CloneChild(ctx, root2, "/", "dir1", "", "txn-2")
	require.NoError(t, err)
	_, err = fs.MakeFile(ctx, dir1, "/dir1", "file1", "txn-2")
	require.NoError(t, err)
	rev2, err := fs.CommitTxn(ctx, "txn-2")
	require.NoError(t, err)
	assert.EqualValues(t, 2, rev2)

	finalRoot, err := fs.RevisionRoot(ctx, rev2)
	require.NoError(t, err)
	dir1Final, err := fs.Open(ctx, finalRoot, "dir1")
	require.NoError(t, err)
	assert.False(t, dir1Final.Id().IsMutable())

	file1, err := fs.Open(ctx, dir1Final, "file1")
	require.NoError(t, err)
	assert.False(t, file1.Id().IsMutable())

	// revision 1's tree must still be intact and untouched by rev2's commit.
	rev1Root, err := fs.RevisionRoot(ctx, rev1)
	require.NoError(t, err)
	dir1Rev1, err := fs.Open(ctx, rev1Root, "dir1")
	require.NoError(t, err)
	entries, err := fs.DirEntries(ctx, dir1Rev1)
	require.NoError(t, err)
	assert.Len(t, entries, 0)
}

func TestYoungestRevisionAndRestore(t *testing.T) {
	ctx := context.Background()
	fs := newTestFS(t)

	assert.Equal(t, nr.RevNum(0), fs.YoungestRevision())

	root1, err := fs.BeginTxn(ctx, "txn-1", 0)
	require.NoError(t, err)
	_, err = fs.MakeDir(ctx, root1, "/", "a", "txn-1")
	require.NoError(t, err)
	rev1, err := fs.CommitTxn(ctx, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, rev1, fs.YoungestRevision())

	root2, err := fs.BeginTxn(ctx, "txn-2", rev1)
	require.NoError(t, err)
	_, err = fs.MakeDir(ctx, root2, "/", "b", "txn-2")
	require.NoError(t, err)
	rev2, err := fs.CommitTxn(ctx, "txn-2")
	require.NoError(t, err)
	assert.Equal(t, rev2, fs.YoungestRevision())
	assert.Greater(t, rev2, rev1)

	snapshot := fs.Revisions()
	assert.Len(t, snapshot, 3)
	root1Want, err := fs.RevisionRoot(ctx, rev1)
	require.NoError(t, err)
	root2Want, err := fs.RevisionRoot(ctx, rev2)
	require.NoError(t, err)
	assert.Equal(t, root1Want.Id(), snapshot[rev1])
	assert.Equal(t, root2Want.Id(), snapshot[rev2])

	// A fresh Filesystem backed by its own store starts empty, then
	// replays the snapshot the way cmd/vcsfs's repository.restore does
	// after reopening a badger-backed data directory.
	fresh := newTestFS(t)
	assert.Equal(t, nr.RevNum(0), fresh.YoungestRevision())
	for rev, id := range snapshot {
		fresh.RestoreRevision(rev, id)
	}
	assert.Equal(t, rev2, fresh.YoungestRevision())

	restoredRoot1, err := fresh.RevisionRoot(ctx, rev1)
	require.NoError(t, err)
	assert.Equal(t, root1Want.Id(), restoredRoot1.Id())
	restoredRoot2, err := fresh.RevisionRoot(ctx, rev2)
	require.NoError(t, err)
	assert.Equal(t, root2Want.Id(), restoredRoot2.Id())
}
