// Package dag implements the DAG facade of spec.md §4.2: a thin,
// cache-aware object layer over the node-revision store (pkg/nr) that
// exposes tree navigation, cloning for mutation, and ancestry queries.
//
// Grounded on the teacher's pkg/storage engine abstraction (an Engine
// interface wrapping a concrete store, see pkg/storage/types.go) and its
// transaction buffering discipline (pkg/storage/transaction.go),
// generalized from a labeled-property graph to a DAG of node revisions.
package dag

import (
	"context"

	"github.com/orneryd/vcsfs/pkg/nr"
)

// Filesystem is the DAG-facade entry point bound to one nr.Store. It
// tracks which NodeId is the root of each committed revision and of each
// in-progress transaction (spec.md §3.1, §3.6).
type Filesystem struct {
	Store nr.Store

	revRoots map[nr.RevNum]nr.NodeId
	txnRoot  map[nr.TxnId]nr.NodeId
	txnBase  map[nr.TxnId]nr.RevNum
	nextRev  nr.RevNum
}

// NewFilesystem wraps store in a Filesystem with an empty revision 0
// (an empty root directory), matching FSFS's convention that revision 0
// is the always-present, always-empty initial commit.
func NewFilesystem(ctx context.Context, store nr.Store) (*Filesystem, error) {
	fs := &Filesystem{
		Store:    store,
		revRoots: make(map[nr.RevNum]nr.NodeId),
		txnRoot:  make(map[nr.TxnId]nr.NodeId),
		txnBase:  make(map[nr.TxnId]nr.RevNum),
		nextRev:  1,
	}

	rootID, err := store.Create(ctx, &nr.NodeRevision{Kind: nr.KindDir, CreatedPath: "/"}, "", "")
	if err != nil {
		return nil, err
	}
	// Create always mints a fresh node-key with the caller's Rev sentinel;
	// Freeze re-keys it to the concrete revision-0 id the rest of the DAG
	// facade expects to find in revRoots.
	immID, err := store.Freeze(ctx, rootID, 0)
	if err != nil {
		return nil, err
	}
	fs.revRoots[0] = immID
	return fs, nil
}

// Node is a transient handle bundling the filesystem reference, the
// NodeId, a lazily loaded cached NodeRevision, and the repository path at
// which it was created (spec.md §3.3).
type Node struct {
	fs          *Filesystem
	id          nr.NodeId
	cached      *nr.NodeRevision
	createdPath string
}

// Id returns the handle's NodeId.
func (n *Node) Id() nr.NodeId { return n.id }

// CreatedPath returns the repository path the node revision was born at.
func (n *Node) CreatedPath() string { return n.createdPath }

// Revision loads (and caches) the node's NodeRevision. The returned value
// must not be mutated unless n.id.IsMutable() — see spec.md §9 on cached
// NR aliasing.
func (n *Node) Revision(ctx context.Context) (*nr.NodeRevision, error) {
	if n.cached != nil {
		return n.cached, nil
	}
	rev, err := n.fs.Store.Get(ctx, n.id)
	if err != nil {
		return nil, err
	}
	n.cached = rev
	return rev, nil
}

// Kind returns the node's kind, loading the revision if not yet cached.
func (n *Node) Kind(ctx context.Context) (nr.Kind, error) {
	rev, err := n.Revision(ctx)
	if err != nil {
		return nr.KindUnknown, err
	}
	return rev.Kind, nil
}

func wrap(fs *Filesystem, id nr.NodeId, createdPath string) *Node {
	return &Node{fs: fs, id: id, createdPath: createdPath}
}
