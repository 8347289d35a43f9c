// Package update implements the Update/Checkout/Switch Editor (UPD) of
// spec.md §4.4: a fixed callback interface a remote driver invokes in
// tree order, translated into ADM log commands and INST installs.
//
// Grounded on the teacher's pkg/storage/transaction.go: a mutable
// in-memory baton tree guarded by a mutex, committed incrementally
// rather than all at once, generalized from NornicDB's graph
// transaction to the editor's directory/file baton tree.
package update

import (
	"sync"

	"github.com/orneryd/vcsfs/pkg/nr"
)

// DirBaton is one open directory in the edit (spec.md §4.4.1). Its
// ref_count tracks outstanding children so close_directory can retire
// the baton without requiring callbacks in strict depth-first order.
type DirBaton struct {
	mu sync.Mutex

	Name   string
	Dir    string // absolute working-copy path
	Parent *DirBaton

	BaseRev nr.RevNum

	refCount int

	versionedPropsChanged bool
	pendingEntryProps     map[string]string
	pendingRegularProps   map[string]*string

	// Disjoint records spec.md §4.4.2's URL-disjointness flag: this
	// baton's switch target URL differs from its entry's recorded URL,
	// or its parent was already disjoint.
	Disjoint bool
	entryURL string
}

func newRootBaton(dir string, baseRev nr.RevNum) *DirBaton {
	return &DirBaton{
		Name:                "",
		Dir:                 dir,
		refCount:            1,
		pendingEntryProps:   map[string]string{},
		pendingRegularProps: map[string]*string{},
		BaseRev:             baseRev,
	}
}

func newChildBaton(parent *DirBaton, name, dir string, baseRev nr.RevNum) *DirBaton {
	parent.incRef()
	return &DirBaton{
		Name:                name,
		Dir:                 dir,
		Parent:              parent,
		refCount:            1,
		pendingEntryProps:   map[string]string{},
		pendingRegularProps: map[string]*string{},
		BaseRev:             baseRev,
	}
}

func (b *DirBaton) incRef() {
	b.mu.Lock()
	b.refCount++
	b.mu.Unlock()
}

// decRef decrements the baton's ref count and reports whether it reached
// zero (spec.md §4.4.1: "When ref_count hits 0 on close_directory, the
// baton is retired").
func (b *DirBaton) decRef() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refCount--
	return b.refCount <= 0
}

func (b *DirBaton) queueEntryProp(attr, value string) {
	b.mu.Lock()
	b.pendingEntryProps[attr] = value
	b.mu.Unlock()
}

func (b *DirBaton) queueRegularProp(name string, value *string) {
	b.mu.Lock()
	b.pendingRegularProps[name] = value
	b.versionedPropsChanged = true
	b.mu.Unlock()
}

// FileBaton is one open file in the edit; it carries no ref count of its
// own since a file never has children (spec.md §4.4.1 scopes ref
// counting to directories).
type FileBaton struct {
	Name     string
	Parent   *DirBaton
	BaseRev  nr.RevNum
	NewURL   string
	textPath string

	pendingEntryProps   map[string]string
	pendingRegularProps map[string]*string
	fullProplist        map[string]string
	isFullProplist      bool
	mimeType            string
}

func newFileBaton(parent *DirBaton, name string, baseRev nr.RevNum) *FileBaton {
	parent.incRef()
	return &FileBaton{
		Name:                name,
		Parent:              parent,
		BaseRev:             baseRev,
		pendingEntryProps:   map[string]string{},
		pendingRegularProps: map[string]*string{},
	}
}
