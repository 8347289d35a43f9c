package dag

import (
	"context"

	"github.com/orneryd/vcsfs/pkg/nr"
)

// CommitTxn freezes every node-revision still mutable within txn into
// permanent, immutable history at a newly minted revision number, and
// returns that revision (spec.md §9: "commit_txn ... must be
// implemented", one of the design-note abort paths the distilled source
// left unfinished).
//
// Freezing walks the txn's tree bottom-up: children are frozen before
// their parent, and the parent's directory entry is rewritten (while
// still mutable) to point at the frozen child id, so the final freeze of
// the root is the only step that changes the publicly visible revision
// root map.
func (fs *Filesystem) CommitTxn(ctx context.Context, txn nr.TxnId) (nr.RevNum, error) {
	root, ok := fs.txnRoot[txn]
	if !ok {
		return nr.InvalidRevNum, notFound("/")
	}

	newRev := fs.nextRev
	fs.nextRev++

	frozenRoot, err := fs.freezeSubtree(ctx, wrap(fs, root, "/"), txn, newRev)
	if err != nil {
		return nr.InvalidRevNum, err
	}

	fs.revRoots[newRev] = frozenRoot
	delete(fs.txnRoot, txn)
	delete(fs.txnBase, txn)
	return newRev, nil
}

func (fs *Filesystem) freezeSubtree(ctx context.Context, node *Node, txn nr.TxnId, newRev nr.RevNum) (nr.NodeId, error) {
	rev, err := node.Revision(ctx)
	if err != nil {
		return nr.NodeId{}, err
	}

	if !nr.CheckMutable(node.id, txn) {
		// Not touched by this txn — already immutable history, nothing to freeze.
		return node.id, nil
	}

	if rev.Kind == nr.KindDir {
		entries, err := fs.Store.RepContentsDir(ctx, rev)
		if err != nil {
			return nr.NodeId{}, err
		}
		for _, e := range entries {
			child := wrap(fs, e.ID, joinPath(node.createdPath, e.Name))
			frozenChild, err := fs.freezeSubtree(ctx, child, txn, newRev)
			if err != nil {
				return nr.NodeId{}, err
			}
			if frozenChild != e.ID {
				if err := fs.Store.SetEntry(ctx, txn, node.id, e.Name, frozenChild, e.Kind); err != nil {
					return nr.NodeId{}, err
				}
			}
		}
		node.cached = nil
	}

	return fs.Store.Freeze(ctx, node.id, newRev)
}

// AbortTxn discards a transaction's bookkeeping. The underlying mutable
// node revisions are left for the store's own garbage collection (the
// store never exposes them again once unreachable from any txnRoot or
// revRoot) — spec.md §7 places abort/cleanup entirely on the caller that
// held the lock, and the DAG facade has no lock of its own to release.
func (fs *Filesystem) AbortTxn(txn nr.TxnId) {
	delete(fs.txnRoot, txn)
	delete(fs.txnBase, txn)
}
