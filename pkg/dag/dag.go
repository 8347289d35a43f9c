package dag

import (
	"context"
	"strings"

	"github.com/orneryd/vcsfs/pkg/nr"
)

// RevisionRoot resolves the root NodeId of a committed revision and wraps
// it in a Node handle (spec.md §4.2).
func (fs *Filesystem) RevisionRoot(ctx context.Context, rev nr.RevNum) (*Node, error) {
	id, ok := fs.revRoots[rev]
	if !ok {
		return nil, notFound("/")
	}
	return wrap(fs, id, "/"), nil
}

// YoungestRevision returns the highest committed revision number this
// Filesystem knows about (spec.md §3.1's "youngest" pointer). Revision
// history lives only in process memory (see NewFilesystem), so a caller
// that wants it to survive a restart must persist the result of
// Revisions and replay it through RestoreRevision on the next run.
func (fs *Filesystem) YoungestRevision() nr.RevNum {
	return fs.nextRev - 1
}

// Revisions returns a snapshot of every committed revision root this
// Filesystem currently holds, keyed by revision number.
func (fs *Filesystem) Revisions() map[nr.RevNum]nr.NodeId {
	out := make(map[nr.RevNum]nr.NodeId, len(fs.revRoots))
	for rev, id := range fs.revRoots {
		out[rev] = id
	}
	return out
}

// RestoreRevision re-registers a previously committed revision root,
// bootstrapping a fresh Filesystem handle from a caller-persisted
// Revisions snapshot rather than replaying the whole commit history.
func (fs *Filesystem) RestoreRevision(rev nr.RevNum, id nr.NodeId) {
	fs.revRoots[rev] = id
	if rev+1 > fs.nextRev {
		fs.nextRev = rev + 1
	}
}

// BeginTxn opens a new transaction rooted at a mutable clone of baseRev's
// root directory.
func (fs *Filesystem) BeginTxn(ctx context.Context, txn nr.TxnId, baseRev nr.RevNum) (*Node, error) {
	baseRootID, ok := fs.revRoots[baseRev]
	if !ok {
		return nil, notFound("/")
	}
	baseRoot, err := fs.Store.Get(ctx, baseRootID)
	if err != nil {
		return nil, err
	}

	mutRoot, err := fs.Store.CreateSuccessor(ctx, baseRootID, baseRoot, "", txn)
	if err != nil {
		return nil, err
	}

	fs.txnRoot[txn] = mutRoot
	fs.txnBase[txn] = baseRev
	return wrap(fs, mutRoot, "/"), nil
}

// TxnRoot resolves the mutable root NodeId of an in-progress transaction.
func (fs *Filesystem) TxnRoot(ctx context.Context, txn nr.TxnId) (*Node, error) {
	id, ok := fs.txnRoot[txn]
	if !ok {
		return nil, notFound("/")
	}
	return wrap(fs, id, "/"), nil
}

// TxnBaseRoot resolves the immutable root NodeId the transaction was
// branched from.
func (fs *Filesystem) TxnBaseRoot(ctx context.Context, txn nr.TxnId) (*Node, error) {
	base, ok := fs.txnBase[txn]
	if !ok {
		return nil, notFound("/")
	}
	return fs.RevisionRoot(ctx, base)
}

func singleComponent(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.Contains(name, "/")
}

// Open looks up name in parent's directory representation (spec.md §4.2).
func (fs *Filesystem) Open(ctx context.Context, parent *Node, name string) (*Node, error) {
	if !singleComponent(name) {
		return nil, notSingleComponent(name)
	}

	rev, err := parent.Revision(ctx)
	if err != nil {
		return nil, err
	}
	if rev.Kind != nr.KindDir {
		return nil, notDirectory(parent.createdPath)
	}

	entries, err := fs.Store.RepContentsDir(ctx, rev)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Name == name {
			return wrap(fs, e.ID, joinPath(parent.createdPath, name)), nil
		}
	}
	return nil, notFound(joinPath(parent.createdPath, name))
}

// DirEntries materializes the child mapping of node (spec.md §4.2).
func (fs *Filesystem) DirEntries(ctx context.Context, node *Node) ([]nr.DirEntry, error) {
	rev, err := node.Revision(ctx)
	if err != nil {
		return nil, err
	}
	if rev.Kind != nr.KindDir {
		return nil, notDirectory(node.createdPath)
	}
	return fs.Store.RepContentsDir(ctx, rev)
}

func joinPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

// checkMutable verifies node's id carries txn's component (spec.md §4.2
// "Mutability rule").
func checkMutable(node *Node, txn nr.TxnId) bool {
	return nr.CheckMutable(node.id, txn)
}

func (fs *Filesystem) childExists(ctx context.Context, parent *Node, name string) (bool, error) {
	entries, err := fs.DirEntries(ctx, parent)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		if e.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// makeEntry is the shared body of MakeFile/MakeDir. spec.md §4.2's
// "Mutation ordering" invariant is preserved here: the child NR is
// created before it is registered in the parent, so a crash between the
// two steps leaves no dangling entry in the parent.
func (fs *Filesystem) makeEntry(ctx context.Context, parent *Node, parentPath, name string, kind nr.Kind, txn nr.TxnId) (*Node, error) {
	if !singleComponent(name) {
		return nil, notSingleComponent(name)
	}

	prev, err := parent.Revision(ctx)
	if err != nil {
		return nil, err
	}
	if prev.Kind != nr.KindDir {
		return nil, notDirectory(parentPath)
	}
	if !checkMutable(parent, txn) {
		return nil, notMutable(parentPath)
	}

	exists, err := fs.childExists(ctx, parent, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, alreadyExists(joinPath(parentPath, name))
	}

	childPath := joinPath(parentPath, name)
	childID, err := fs.Store.Create(ctx, &nr.NodeRevision{
		Kind:             kind,
		PredecessorCount: 0,
		CreatedPath:      childPath,
	}, "", txn)
	if err != nil {
		return nil, err
	}

	if err := fs.Store.SetEntry(ctx, txn, parent.id, name, childID, kind); err != nil {
		return nil, err
	}
	parent.cached = nil // parent's DataRep changed; force reload on next Revision()

	return wrap(fs, childID, childPath), nil
}

// MakeFile creates a new file node-revision under parent (spec.md §4.2).
func (fs *Filesystem) MakeFile(ctx context.Context, parent *Node, parentPath, name string, txn nr.TxnId) (*Node, error) {
	return fs.makeEntry(ctx, parent, parentPath, name, nr.KindFile, txn)
}

// MakeDir creates a new directory node-revision under parent (spec.md §4.2).
func (fs *Filesystem) MakeDir(ctx context.Context, parent *Node, parentPath, name string, txn nr.TxnId) (*Node, error) {
	return fs.makeEntry(ctx, parent, parentPath, name, nr.KindDir, txn)
}

// DeleteEntry removes name from parent's directory representation
// (SPEC_FULL.md §3: the reverse of MakeFile/MakeDir, guarded by the same
// mutability rule).
func (fs *Filesystem) DeleteEntry(ctx context.Context, parent *Node, parentPath, name string, txn nr.TxnId) error {
	if !checkMutable(parent, txn) {
		return notMutable(parentPath)
	}
	if err := fs.Store.DeleteEntry(ctx, txn, parent.id, name); err != nil {
		return err
	}
	parent.cached = nil
	return nil
}

// CloneChild makes the child named name under parent mutable within txn.
// If it is already mutable in txn, it is returned unchanged — cloning
// again in the same txn never creates a second successor (spec.md §4.2,
// §8 scenario 1).
func (fs *Filesystem) CloneChild(ctx context.Context, parent *Node, parentPath, name string, copyKey string, txn nr.TxnId) (*Node, error) {
	if !checkMutable(parent, txn) {
		return nil, notMutable(parentPath)
	}

	child, err := fs.Open(ctx, parent, name)
	if err != nil {
		return nil, err
	}

	if checkMutable(child, txn) {
		return child, nil
	}

	childRev, err := child.Revision(ctx)
	if err != nil {
		return nil, err
	}

	newChildID, err := fs.Store.CreateSuccessor(ctx, child.id, childRev, copyKey, txn)
	if err != nil {
		return nil, err
	}

	kind := childRev.Kind
	if err := fs.Store.SetEntry(ctx, txn, parent.id, name, newChildID, kind); err != nil {
		return nil, err
	}
	parent.cached = nil

	return wrap(fs, newChildID, joinPath(parentPath, name)), nil
}

// Copy points to_dir's entry `name` at from_node. When preserveHistory is
// true, the source node revision is duplicated into a successor carrying
// copyfrom metadata; otherwise the new entry simply aliases the existing
// immutable source NodeId (spec.md §4.2).
func (fs *Filesystem) Copy(ctx context.Context, toDir *Node, toDirPath, name string, from *Node, preserveHistory bool, fromRev nr.RevNum, fromPath string, txn nr.TxnId) (*Node, error) {
	if !checkMutable(toDir, txn) {
		return nil, notMutable(toDirPath)
	}

	exists, err := fs.childExists(ctx, toDir, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, alreadyExists(joinPath(toDirPath, name))
	}

	fromRev2, err := from.Revision(ctx)
	if err != nil {
		return nil, err
	}

	var newID nr.NodeId
	if preserveHistory {
		tmpl := fromRev2.Clone()
		tmpl.CopyfromPath = fromPath
		tmpl.CopyfromRev = fromRev
		if tmpl.CopyRoot == nil {
			tmpl.CopyRoot = &nr.CopyRoot{Path: fromPath, Rev: fromRev}
		}
		newID, err = fs.Store.CreateSuccessor(ctx, from.id, tmpl, "", txn)
		if err != nil {
			return nil, err
		}
	} else {
		newID = from.id
	}

	if err := fs.Store.SetEntry(ctx, txn, toDir.id, name, newID, fromRev2.Kind); err != nil {
		return nil, err
	}
	toDir.cached = nil

	return wrap(fs, newID, joinPath(toDirPath, name)), nil
}

// ThingsDifferent compares n1 and n2's property and content
// representations by opaque key equality — it never compares bytes
// (spec.md §4.2).
func (fs *Filesystem) ThingsDifferent(ctx context.Context, n1, n2 *Node) (propsChanged, contentsChanged bool, err error) {
	r1, err := n1.Revision(ctx)
	if err != nil {
		return false, false, err
	}
	r2, err := n2.Revision(ctx)
	if err != nil {
		return false, false, err
	}
	propsChanged = !nr.NoderevSameRepKey(r1.PropRep, r2.PropRep)
	contentsChanged = !nr.NoderevSameRepKey(r1.DataRep, r2.DataRep)
	return propsChanged, contentsChanged, nil
}
