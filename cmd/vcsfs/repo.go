package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/orneryd/vcsfs/internal/vcsconfig"
	"github.com/orneryd/vcsfs/pkg/dag"
	"github.com/orneryd/vcsfs/pkg/nr"
)

// revisionsFile is the CLI-level sidecar recording every committed
// revision root, keyed by revision number. pkg/dag's Filesystem keeps
// that map in process memory only (spec.md §3.1's "youngest" pointer
// has no durable home in the library), so the CLI is the layer that
// persists it across invocations when the badger backend is in use.
const revisionsFile = "revisions.json"

type repository struct {
	store   nr.Store
	fs      *dag.Filesystem
	dataDir string
	backend vcsconfig.Backend
}

func openRepository(ctx context.Context, cfg *vcsconfig.Config) (*repository, error) {
	var store nr.Store
	switch cfg.FSBackend {
	case vcsconfig.BackendBadger:
		s, err := nr.OpenBadgerStore(nr.BadgerStoreOptions{DataDir: cfg.DataDir})
		if err != nil {
			return nil, err
		}
		store = s
	default:
		store = nr.NewMemStore()
	}

	fs, err := dag.NewFilesystem(ctx, store)
	if err != nil {
		store.Close()
		return nil, err
	}

	r := &repository{store: store, fs: fs, dataDir: cfg.DataDir, backend: cfg.FSBackend}
	if cfg.FSBackend == vcsconfig.BackendBadger {
		if err := r.restore(); err != nil {
			store.Close()
			return nil, err
		}
	}
	return r, nil
}

func (r *repository) Close() error {
	return r.store.Close()
}

// restore replays a previously saved revisions.json into fs, so a new
// process can resume checking out and updating against history a prior
// invocation committed.
func (r *repository) restore() error {
	path := filepath.Join(r.dataDir, revisionsFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var snapshot map[nr.RevNum]nr.NodeId
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return err
	}
	for rev, id := range snapshot {
		r.fs.RestoreRevision(rev, id)
	}
	return nil
}

// save persists fs's current revision roots for the next invocation.
func (r *repository) save() error {
	if r.backend != vcsconfig.BackendBadger {
		return nil
	}
	if err := os.MkdirAll(r.dataDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r.fs.Revisions(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(r.dataDir, revisionsFile), data, 0o644)
}
