// Package nr implements the node-revision model of spec.md §3.1-§3.2 and
// §4.1: content-addressed, immutable node revisions chained by predecessor,
// with a mutable overlay scoped to an in-progress transaction.
//
// Grounded on the teacher's pkg/storage (pkg/storage/types.go's NodeID/
// EdgeID strong types, pkg/storage/transaction.go's buffered-operation
// transaction, pkg/storage/badger.go's prefixed key scheme) generalized
// from a labeled-property-graph model to a predecessor-chained
// node-revision model.
package nr

import "fmt"

// TxnId is an opaque identifier for an in-progress transaction (spec.md §3.1).
type TxnId string

// RevNum is a monotonically increasing revision number; InvalidRevNum is
// the distinguished sentinel meaning "no revision" (spec.md §3.1).
type RevNum int64

// InvalidRevNum is the sentinel RevNum meaning "not yet committed" or "unknown".
const InvalidRevNum RevNum = -1

// NodeId is the triple (node-key, copy-key, txn-or-rev-key) from spec.md §3.1.
// Equality is structural. A NodeId is mutable iff TxnKey is non-empty.
type NodeId struct {
	NodeKey string
	CopyKey string
	TxnKey  TxnId // empty when the id denotes an immutable, committed revision
	Rev     RevNum
}

// IsMutable reports whether this id carries a TxnId component (spec.md §3.2).
func (id NodeId) IsMutable() bool {
	return id.TxnKey != ""
}

// Related reports whether a and b share a node-key — i.e. they are
// revisions of the "same" node across history, possibly at different
// points (spec.md §3.1).
func Related(a, b NodeId) bool {
	return a.NodeKey == b.NodeKey
}

// Same reports whether a and b are structurally identical — same
// node-key, copy-key, and txn-or-rev component (spec.md §3.1).
func Same(a, b NodeId) bool {
	return a.NodeKey == b.NodeKey && a.CopyKey == b.CopyKey && a.TxnKey == b.TxnKey && a.Rev == b.Rev
}

// CheckMutable verifies id carries the given txn's component, per the
// mutability rule of spec.md §4.2: "Every operation that mutates must
// verify check_mutable(node, txn) first."
//
// The stricter interpretation from spec.md §9's Open Questions is used
// here: the bound txn id must match, not merely be present.
func CheckMutable(id NodeId, txn TxnId) bool {
	return id.TxnKey != "" && id.TxnKey == txn
}

func (id NodeId) String() string {
	if id.TxnKey != "" {
		return fmt.Sprintf("%s.%s-%s", id.NodeKey, id.CopyKey, id.TxnKey)
	}
	return fmt.Sprintf("%s.%s-r%d", id.NodeKey, id.CopyKey, id.Rev)
}
