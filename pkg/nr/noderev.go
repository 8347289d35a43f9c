package nr

// Kind classifies what a node revision represents (spec.md §3.2).
type Kind int

const (
	KindUnknown Kind = iota
	KindFile
	KindDir
	KindNone
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	case KindNone:
		return "none"
	default:
		return "unknown"
	}
}

// RepKey is an opaque handle into the storage layer identifying a content
// or property representation (spec.md §3.2's data_rep/prop_rep). Two
// RepKeys compare equal iff the representations are byte-identical;
// NoderevSameRepKey never inspects the bytes themselves.
type RepKey string

// CopyRoot names the nearest ancestor node revision created by a copy
// (spec.md §3.2).
type CopyRoot struct {
	Path string
	Rev  RevNum
}

// NodeRevision is an immutable (outside its owning txn) snapshot of one
// node at one point in history (spec.md §3.2, §3.6).
type NodeRevision struct {
	Kind Kind

	PredecessorID    *NodeId
	PredecessorCount int // -1 means unknown/unbounded

	CopyfromPath string
	CopyfromRev  RevNum
	CopyRoot     *CopyRoot

	DataRep RepKey
	PropRep RepKey

	// EditKey is set while a writer returned by SetContents is open; only
	// meaningful when Kind == KindFile and the owning id is mutable.
	EditKey string

	CreatedPath string
}

// Clone deep-copies nr. Store methods take the owning NodeId explicitly
// rather than embedding it on NodeRevision, so that a cached revision
// obtained for an immutable id can never be mistaken for a writable one
// (spec.md §9 "Cached NR aliasing") — callers that might roll back must
// clone before mutating.
func (nr *NodeRevision) Clone() *NodeRevision {
	if nr == nil {
		return nil
	}
	cp := *nr
	if nr.PredecessorID != nil {
		id := *nr.PredecessorID
		cp.PredecessorID = &id
	}
	if nr.CopyRoot != nil {
		cr := *nr.CopyRoot
		cp.CopyRoot = &cr
	}
	return &cp
}

// NoderevSameRepKey reports whether a and b reference the same opaque
// representation — used by DAG.ThingsDifferent, never compares bytes
// (spec.md §4.1, §4.2).
func NoderevSameRepKey(a, b RepKey) bool {
	return a == b
}
