package nr

import (
	"context"
	"crypto/md5"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	defer s.Close()

	id, err := s.Create(ctx, &NodeRevision{Kind: KindDir}, "", "txn-1")
	require.NoError(t, err)
	assert.True(t, id.IsMutable())

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, KindDir, got.Kind)
}

func TestMemStore_CreateSuccessor_PredecessorChain(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	defer s.Close()

	rootID, err := s.Create(ctx, &NodeRevision{Kind: KindFile, PredecessorCount: 0}, "", "txn-1")
	require.NoError(t, err)

	// Commit it to an immutable revision id by hand (no commit op in this layer).
	immID := NodeId{NodeKey: rootID.NodeKey, CopyKey: rootID.CopyKey, Rev: 1}
	nrv, err := s.Get(ctx, rootID)
	require.NoError(t, err)
	s.revisions[immID] = nrv

	succID, err := s.CreateSuccessor(ctx, immID, &NodeRevision{Kind: KindFile}, "", "txn-2")
	require.NoError(t, err)

	assert.True(t, Related(succID, immID))
	succNR, err := s.Get(ctx, succID)
	require.NoError(t, err)
	require.NotNil(t, succNR.PredecessorID)
	assert.Equal(t, immID, *succNR.PredecessorID)
	assert.Equal(t, 1, succNR.PredecessorCount)
}

func TestMemStore_SetEntry_And_RepContentsDir(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	defer s.Close()

	dirID, err := s.Create(ctx, &NodeRevision{Kind: KindDir}, "", "txn-1")
	require.NoError(t, err)

	childID, err := s.Create(ctx, &NodeRevision{Kind: KindFile}, "", "txn-1")
	require.NoError(t, err)

	require.NoError(t, s.SetEntry(ctx, "txn-1", dirID, "foo.txt", childID, KindFile))

	dirNR, err := s.Get(ctx, dirID)
	require.NoError(t, err)
	entries, err := s.RepContentsDir(ctx, dirNR)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "foo.txt", entries[0].Name)

	require.NoError(t, s.DeleteEntry(ctx, "txn-1", dirID, "foo.txt"))
	dirNR, err = s.Get(ctx, dirID)
	require.NoError(t, err)
	entries, err = s.RepContentsDir(ctx, dirNR)
	require.NoError(t, err)
	assert.Len(t, entries, 0)
}

func TestMemStore_SetEntry_NotMutable(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	defer s.Close()

	dirID, err := s.Create(ctx, &NodeRevision{Kind: KindDir}, "", "txn-1")
	require.NoError(t, err)
	childID, err := s.Create(ctx, &NodeRevision{Kind: KindFile}, "", "txn-1")
	require.NoError(t, err)

	err = s.SetEntry(ctx, "some-other-txn", dirID, "foo.txt", childID, KindFile)
	assert.ErrorIs(t, err, ErrNotMutable)
}

func TestMemStore_FileChecksum_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	defer s.Close()

	id, err := s.Create(ctx, &NodeRevision{Kind: KindFile}, "", "txn-1")
	require.NoError(t, err)

	w, err := s.SetContents(ctx, id)
	require.NoError(t, err)
	want := []byte("hello world")
	_, err = w.Write(want)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	nrv, err := s.Get(ctx, id)
	require.NoError(t, err)

	sum, err := s.FileChecksum(ctx, nrv)
	require.NoError(t, err)
	assert.Equal(t, md5.Sum(want), sum)

	length, err := s.FileLength(ctx, nrv)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(want)), length)

	r, err := s.GetContents(ctx, nrv)
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestMemStore_Proplist_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	defer s.Close()

	id, err := s.Create(ctx, &NodeRevision{Kind: KindFile}, "", "txn-1")
	require.NoError(t, err)

	props := map[string]string{"svn:eol-style": "native", "svn:mime-type": "text/plain"}
	require.NoError(t, s.SetProplist(ctx, id, props))

	nrv, err := s.Get(ctx, id)
	require.NoError(t, err)
	got, err := s.GetProplist(ctx, nrv)
	require.NoError(t, err)
	assert.Equal(t, props, got)
}
