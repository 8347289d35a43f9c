package update

import "strings"

// childURL computes the URL a plain (non-switched) checkout expects a
// child named name to have, given its parent's URL (spec.md §4.4.2).
func childURL(parentURL, name string) string {
	if parentURL == "" {
		return name
	}
	return strings.TrimRight(parentURL, "/") + "/" + name
}

// disjointChild reports whether a child entry is disjoint from its
// parent: the parent is already disjoint (disjointness propagates down
// the tree), or the child's own recorded URL does not match the URL a
// plain checkout would compute from the parent. A disjoint node is one
// a prior switch pinned to a different repository location, and it
// must keep carrying its own URL rather than inherit the parent's.
func disjointChild(parent *DirBaton, name, childEntryURL string) bool {
	if parent.Disjoint {
		return true
	}
	if childEntryURL == "" {
		return false
	}
	return childEntryURL != childURL(parent.entryURL, name)
}
