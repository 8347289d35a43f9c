package dag

import (
	"context"

	"github.com/orneryd/vcsfs/pkg/nr"
)

// WalkPredecessors resolves node's PredecessorID and invokes cb(pred,
// &done) at each step, starting at node's immediate predecessor — node
// itself is never passed to cb. It terminates when cb sets done=true or
// the predecessor chain is exhausted, in which case cb is invoked once
// more with nil to signal exhaustion (spec.md §4.2, §8: at most
// PredecessorCount+1 calls when that count is >= 0).
func (fs *Filesystem) WalkPredecessors(ctx context.Context, node *Node, cb func(n *Node, done *bool) error) error {
	rev, err := node.Revision(ctx)
	if err != nil {
		return err
	}
	if rev.PredecessorID == nil {
		return cb(nil, new(bool))
	}
	cur := wrap(fs, *rev.PredecessorID, node.createdPath)

	for {
		done := false
		if err := cb(cur, &done); err != nil {
			return err
		}
		if done {
			return nil
		}

		rev, err := cur.Revision(ctx)
		if err != nil {
			return err
		}
		if rev.PredecessorID == nil {
			return cb(nil, new(bool))
		}
		cur = wrap(fs, *rev.PredecessorID, cur.createdPath)
	}
}

// IsAncestor reports whether a is an ancestor of b: related(a.id, b.id)
// must hold, and a's id must appear somewhere in b's predecessor chain
// (spec.md §4.2, §8).
func (fs *Filesystem) IsAncestor(ctx context.Context, a, b *Node) (bool, error) {
	if !nr.Related(a.id, b.id) {
		return false, nil
	}

	found := false
	err := fs.WalkPredecessors(ctx, b, func(n *Node, done *bool) error {
		if n == nil {
			*done = true
			return nil
		}
		if nr.Same(n.id, a.id) {
			found = true
			*done = true
		}
		return nil
	})
	return found, err
}

// IsParent reports whether a is b's immediate predecessor: like
// IsAncestor, but stops after one step (spec.md §4.2, §8).
func (fs *Filesystem) IsParent(ctx context.Context, a, b *Node) (bool, error) {
	if !nr.Related(a.id, b.id) {
		return false, nil
	}

	bRev, err := b.Revision(ctx)
	if err != nil {
		return false, err
	}
	if bRev.PredecessorID == nil {
		return false, nil
	}
	return nr.Same(*bRev.PredecessorID, a.id), nil
}
