package nr

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
)

// MemStore is an in-memory Store, grounded on the teacher's
// pkg/storage/memory.go MemoryEngine: a mutex-protected set of maps with
// no persistence. Used for tests and small working sets.
type MemStore struct {
	mu sync.RWMutex

	revisions map[NodeId]*NodeRevision
	dirReps   map[RepKey][]DirEntry
	fileReps  map[RepKey][]byte
	propReps  map[RepKey]map[string]string

	nodeSeq atomic.Uint64
	copySeq atomic.Uint64

	closed bool
}

// NewMemStore constructs an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		revisions: make(map[NodeId]*NodeRevision),
		dirReps:   make(map[RepKey][]DirEntry),
		fileReps:  make(map[RepKey][]byte),
		propReps:  make(map[RepKey]map[string]string),
	}
}

func (s *MemStore) Get(_ context.Context, id NodeId) (*NodeRevision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	nr, ok := s.revisions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return nr, nil
}

func (s *MemStore) Create(_ context.Context, template *NodeRevision, copyKey string, txn TxnId) (NodeId, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return NodeId{}, ErrStoreClosed
	}
	id := NodeId{
		NodeKey: fmt.Sprintf("n%d", s.nodeSeq.Add(1)),
		CopyKey: copyKey,
		TxnKey:  txn,
		Rev:     InvalidRevNum,
	}
	nr := template.Clone()
	s.revisions[id] = nr
	return id, nil
}

func (s *MemStore) CreateSuccessor(_ context.Context, oldID NodeId, template *NodeRevision, copyKey string, txn TxnId) (NodeId, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return NodeId{}, ErrStoreClosed
	}
	old, ok := s.revisions[oldID]
	if !ok {
		return NodeId{}, ErrNotFound
	}

	nr := template.Clone()
	predID := oldID
	nr.PredecessorID = &predID
	if old.PredecessorCount >= 0 {
		nr.PredecessorCount = old.PredecessorCount + 1
	} else {
		nr.PredecessorCount = -1
	}

	newID := NodeId{
		NodeKey: oldID.NodeKey,
		CopyKey: copyKey,
		TxnKey:  txn,
		Rev:     InvalidRevNum,
	}
	s.revisions[newID] = nr
	return newID, nil
}

func (s *MemStore) SetEntry(_ context.Context, txn TxnId, dirID NodeId, name string, child NodeId, kind Kind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if !CheckMutable(dirID, txn) {
		return ErrNotMutable
	}
	dirNR, ok := s.revisions[dirID]
	if !ok {
		return ErrNotFound
	}

	entries := cloneDirEntries(s.dirReps[dirNR.DataRep])
	replaced := false
	for i, e := range entries {
		if e.Name == name {
			entries[i] = DirEntry{Name: name, ID: child, Kind: kind}
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, DirEntry{Name: name, ID: child, Kind: kind})
	}

	newRep := s.storeDirEntries(entries)
	dirNR.DataRep = newRep
	return nil
}

func (s *MemStore) DeleteEntry(_ context.Context, txn TxnId, dirID NodeId, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if !CheckMutable(dirID, txn) {
		return ErrNotMutable
	}
	dirNR, ok := s.revisions[dirID]
	if !ok {
		return ErrNotFound
	}

	src := s.dirReps[dirNR.DataRep]
	entries := make([]DirEntry, 0, len(src))
	found := false
	for _, e := range src {
		if e.Name == name {
			found = true
			continue
		}
		entries = append(entries, e)
	}
	if !found {
		return ErrNotFound
	}

	dirNR.DataRep = s.storeDirEntries(entries)
	return nil
}

func (s *MemStore) RepContentsDir(_ context.Context, dirNR *NodeRevision) ([]DirEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneDirEntries(s.dirReps[dirNR.DataRep]), nil
}

func (s *MemStore) GetContents(_ context.Context, fileNR *NodeRevision) (io.ReadCloser, error) {
	s.mu.RLock()
	data := s.fileReps[fileNR.DataRep]
	s.mu.RUnlock()
	return io.NopCloser(bytes.NewReader(data)), nil
}

// memWriter buffers writes and commits them as a new content rep on Close,
// updating the owning NR's DataRep. This mirrors how pkg/storage/wal.go's
// bufio.Writer defers the durable write to a flush boundary.
type memWriter struct {
	store *MemStore
	id    NodeId
	buf   bytes.Buffer
}

func (w *memWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *memWriter) Close() error {
	rep := RepKey(fmt.Sprintf("f%x", xxhash.Sum64(w.buf.Bytes())))

	w.store.mu.Lock()
	defer w.store.mu.Unlock()
	nr, ok := w.store.revisions[w.id]
	if !ok {
		return ErrNotFound
	}
	w.store.fileReps[rep] = append([]byte(nil), w.buf.Bytes()...)
	nr.DataRep = rep
	nr.EditKey = ""
	return nil
}

func (s *MemStore) SetContents(_ context.Context, id NodeId) (io.WriteCloser, error) {
	s.mu.Lock()
	nr, ok := s.revisions[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	if !id.IsMutable() {
		s.mu.Unlock()
		return nil, ErrNotMutable
	}
	nr.EditKey = fmt.Sprintf("edit-%s", id)
	s.mu.Unlock()
	return &memWriter{store: s, id: id}, nil
}

func (s *MemStore) FileLength(_ context.Context, fileNR *NodeRevision) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.fileReps[fileNR.DataRep])), nil
}

func (s *MemStore) FileChecksum(_ context.Context, fileNR *NodeRevision) ([16]byte, error) {
	s.mu.RLock()
	data := s.fileReps[fileNR.DataRep]
	s.mu.RUnlock()
	return md5.Sum(data), nil
}

func (s *MemStore) GetProplist(_ context.Context, nrv *NodeRevision) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.propReps[nrv.PropRep]
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out, nil
}

func (s *MemStore) SetProplist(_ context.Context, id NodeId, props map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	nrv, ok := s.revisions[id]
	if !ok {
		return ErrNotFound
	}
	if !id.IsMutable() {
		return ErrNotMutable
	}
	cp := make(map[string]string, len(props))
	for k, v := range props {
		cp[k] = v
	}
	keys := make([]string, 0, len(cp))
	for k := range cp {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h := xxhash.New()
	for _, k := range keys {
		_, _ = h.WriteString(k)
		_, _ = h.WriteString("=")
		_, _ = h.WriteString(cp[k])
		_, _ = h.WriteString(";")
	}
	rep := RepKey(fmt.Sprintf("p%x", h.Sum64()))
	s.propReps[rep] = cp
	nrv.PropRep = rep
	return nil
}

func (s *MemStore) Freeze(_ context.Context, id NodeId, newRev RevNum) (NodeId, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return NodeId{}, ErrStoreClosed
	}
	nrv, ok := s.revisions[id]
	if !ok {
		return NodeId{}, ErrNotFound
	}
	newID := NodeId{NodeKey: id.NodeKey, CopyKey: id.CopyKey, Rev: newRev}
	s.revisions[newID] = nrv
	if newID != id {
		delete(s.revisions, id)
	}
	return newID, nil
}

func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemStore) storeDirEntries(entries []DirEntry) RepKey {
	h := xxhash.New()
	for _, e := range entries {
		_, _ = h.WriteString(e.Name)
		_, _ = h.WriteString(e.ID.String())
	}
	rep := RepKey(fmt.Sprintf("d%x", h.Sum64()))
	s.dirReps[rep] = cloneDirEntries(entries)
	return rep
}

func cloneDirEntries(entries []DirEntry) []DirEntry {
	out := make([]DirEntry, len(entries))
	copy(out, entries)
	return out
}
