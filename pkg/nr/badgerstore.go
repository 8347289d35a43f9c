package nr

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
)

// Key prefixes for BadgerDB storage organization, grounded directly on
// the teacher's pkg/storage/badger.go scheme (single-byte prefixes, one
// per logical keyspace).
const (
	prefixNodeRev = byte(0x01) // noderev:id -> JSON(NodeRevision)
	prefixDirRep  = byte(0x02) // direp:rep -> JSON([]DirEntry)
	prefixFileRep = byte(0x03) // filerep:rep -> raw bytes
	prefixPropRep = byte(0x04) // proprep:rep -> JSON(map[string]string)
)

// BadgerStore is a persistent, disk-backed Store implementation, grounded
// on the teacher's pkg/storage/badger.go BadgerEngine.
type BadgerStore struct {
	db *badger.DB
}

// BadgerStoreOptions configures the BadgerStore.
type BadgerStoreOptions struct {
	DataDir  string
	InMemory bool
}

// OpenBadgerStore opens (or creates) a BadgerDB-backed node-revision store.
func OpenBadgerStore(opts BadgerStoreOptions) (*BadgerStore, error) {
	bopts := badger.DefaultOptions(opts.DataDir)
	if opts.InMemory {
		bopts = bopts.WithInMemory(true)
	}
	bopts = bopts.WithLogger(nil)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("nr: open badger store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func nodeRevKey(id NodeId) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, 64))
	buf.WriteByte(prefixNodeRev)
	fmt.Fprintf(buf, "%s\x00%s\x00%s\x00%d", id.NodeKey, id.CopyKey, id.TxnKey, id.Rev)
	return buf.Bytes()
}

func repKeyBytes(prefix byte, rep RepKey) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, 1+len(rep)))
	buf.WriteByte(prefix)
	buf.WriteString(string(rep))
	return buf.Bytes()
}

func (s *BadgerStore) Get(_ context.Context, id NodeId) (*NodeRevision, error) {
	var nr NodeRevision
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(nodeRevKey(id))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &nr)
		})
	})
	if err != nil {
		return nil, err
	}
	return &nr, nil
}

func (s *BadgerStore) putNodeRev(id NodeId, nrv *NodeRevision) error {
	data, err := json.Marshal(nrv)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(nodeRevKey(id), data)
	})
}

func (s *BadgerStore) Create(_ context.Context, template *NodeRevision, copyKey string, txn TxnId) (NodeId, error) {
	id := NodeId{
		NodeKey: fmt.Sprintf("n%x", randomSeq()),
		CopyKey: copyKey,
		TxnKey:  txn,
		Rev:     InvalidRevNum,
	}
	if err := s.putNodeRev(id, template.Clone()); err != nil {
		return NodeId{}, err
	}
	return id, nil
}

func (s *BadgerStore) CreateSuccessor(ctx context.Context, oldID NodeId, template *NodeRevision, copyKey string, txn TxnId) (NodeId, error) {
	old, err := s.Get(ctx, oldID)
	if err != nil {
		return NodeId{}, err
	}

	nrv := template.Clone()
	predID := oldID
	nrv.PredecessorID = &predID
	if old.PredecessorCount >= 0 {
		nrv.PredecessorCount = old.PredecessorCount + 1
	} else {
		nrv.PredecessorCount = -1
	}

	newID := NodeId{NodeKey: oldID.NodeKey, CopyKey: copyKey, TxnKey: txn, Rev: InvalidRevNum}
	if err := s.putNodeRev(newID, nrv); err != nil {
		return NodeId{}, err
	}
	return newID, nil
}

func (s *BadgerStore) SetEntry(ctx context.Context, txn TxnId, dirID NodeId, name string, child NodeId, kind Kind) error {
	if !CheckMutable(dirID, txn) {
		return ErrNotMutable
	}
	dirNR, err := s.Get(ctx, dirID)
	if err != nil {
		return err
	}
	entries, err := s.RepContentsDir(ctx, dirNR)
	if err != nil {
		return err
	}

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

	rep, err := s.storeDirEntries(entries)
	if err != nil {
		return err
	}
	dirNR.DataRep = rep
	return s.putNodeRev(dirID, dirNR)
}

func (s *BadgerStore) DeleteEntry(ctx context.Context, txn TxnId, dirID NodeId, name string) error {
	if !CheckMutable(dirID, txn) {
		return ErrNotMutable
	}
	dirNR, err := s.Get(ctx, dirID)
	if err != nil {
		return err
	}
	entries, err := s.RepContentsDir(ctx, dirNR)
	if err != nil {
		return err
	}

	out := make([]DirEntry, 0, len(entries))
	found := false
	for _, e := range entries {
		if e.Name == name {
			found = true
			continue
		}
		out = append(out, e)
	}
	if !found {
		return ErrNotFound
	}

	rep, err := s.storeDirEntries(out)
	if err != nil {
		return err
	}
	dirNR.DataRep = rep
	return s.putNodeRev(dirID, dirNR)
}

func (s *BadgerStore) storeDirEntries(entries []DirEntry) (RepKey, error) {
	data, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	rep := RepKey(fmt.Sprintf("d%x", xxhash.Sum64(data)))
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(repKeyBytes(prefixDirRep, rep), data)
	})
	return rep, err
}

func (s *BadgerStore) RepContentsDir(_ context.Context, dirNR *NodeRevision) ([]DirEntry, error) {
	if dirNR.DataRep == "" {
		return nil, nil
	}
	var entries []DirEntry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(repKeyBytes(prefixDirRep, dirNR.DataRep))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entries)
		})
	})
	return entries, err
}

func (s *BadgerStore) GetContents(_ context.Context, fileNR *NodeRevision) (io.ReadCloser, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		if fileNR.DataRep == "" {
			return nil
		}
		item, err := txn.Get(repKeyBytes(prefixFileRep, fileNR.DataRep))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type badgerWriter struct {
	store *BadgerStore
	id    NodeId
	buf   bytes.Buffer
}

func (w *badgerWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *badgerWriter) Close() error {
	data := w.buf.Bytes()
	rep := RepKey(fmt.Sprintf("f%x", xxhash.Sum64(data)))

	if err := w.store.db.Update(func(txn *badger.Txn) error {
		return txn.Set(repKeyBytes(prefixFileRep, rep), append([]byte(nil), data...))
	}); err != nil {
		return err
	}

	nrv, err := w.store.Get(context.Background(), w.id)
	if err != nil {
		return err
	}
	nrv.DataRep = rep
	nrv.EditKey = ""
	return w.store.putNodeRev(w.id, nrv)
}

func (s *BadgerStore) SetContents(ctx context.Context, id NodeId) (io.WriteCloser, error) {
	if !id.IsMutable() {
		return nil, ErrNotMutable
	}
	nrv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	nrv.EditKey = fmt.Sprintf("edit-%s", id)
	if err := s.putNodeRev(id, nrv); err != nil {
		return nil, err
	}
	return &badgerWriter{store: s, id: id}, nil
}

func (s *BadgerStore) FileLength(ctx context.Context, fileNR *NodeRevision) (uint64, error) {
	r, err := s.GetContents(ctx, fileNR)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	return uint64(len(data)), err
}

func (s *BadgerStore) FileChecksum(ctx context.Context, fileNR *NodeRevision) ([16]byte, error) {
	r, err := s.GetContents(ctx, fileNR)
	if err != nil {
		return [16]byte{}, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return [16]byte{}, err
	}
	return md5.Sum(data), nil
}

func (s *BadgerStore) GetProplist(_ context.Context, nrv *NodeRevision) (map[string]string, error) {
	props := make(map[string]string)
	if nrv.PropRep == "" {
		return props, nil
	}
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(repKeyBytes(prefixPropRep, nrv.PropRep))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &props)
		})
	})
	return props, err
}

func (s *BadgerStore) SetProplist(ctx context.Context, id NodeId, props map[string]string) error {
	if !id.IsMutable() {
		return ErrNotMutable
	}
	nrv, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	data, err := json.Marshal(props)
	if err != nil {
		return err
	}
	rep := RepKey(fmt.Sprintf("p%x", xxhash.Sum64(data)))
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(repKeyBytes(prefixPropRep, rep), data)
	}); err != nil {
		return err
	}

	nrv.PropRep = rep
	return s.putNodeRev(id, nrv)
}

func (s *BadgerStore) Freeze(ctx context.Context, id NodeId, newRev RevNum) (NodeId, error) {
	nrv, err := s.Get(ctx, id)
	if err != nil {
		return NodeId{}, err
	}
	newID := NodeId{NodeKey: id.NodeKey, CopyKey: id.CopyKey, Rev: newRev}
	if err := s.putNodeRev(newID, nrv); err != nil {
		return NodeId{}, err
	}
	if newID != id {
		if err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(nodeRevKey(id))
		}); err != nil {
			return NodeId{}, err
		}
	}
	return newID, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

var seqCounter atomic.Uint64

// randomSeq is a process-local monotonically increasing sequence used to
// mint fresh node-keys. Unlike MemStore's atomic counter field, the
// BadgerStore has no in-process identity to scope it to beyond the
// package, since a BadgerStore is normally a process-wide singleton.
func randomSeq() uint64 {
	return seqCounter.Add(1)
}
