package wcadm

import (
	"os"
	"path/filepath"

	"github.com/orneryd/vcsfs/internal/vcserr"
)

func mkdirAll(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return vcserr.Wrap(vcserr.CodeIO, path, err)
	}
	return nil
}

// AdmFile is a write handle opened under adm/tmp/ that only becomes
// visible at its final path when Close commits it, grounded on the
// teacher's WAL segment rotation (pkg/storage/wal.go writes to a temp
// segment and renames it into place) and generalized to the working
// copy's open_adm_file/close_adm_file pair (spec.md §4.3).
type AdmFile struct {
	*os.File
	tmpPath   string
	finalPath string
	done      bool
}

// OpenAdmFile opens name for writing under the directory's adm area. The
// write happens in adm/tmp/ first; the file only replaces the real
// adm/<name> when Close is called.
func OpenAdmFile(layout *Layout, name string) (*AdmFile, error) {
	if err := mkdirAll(layout.TmpDir()); err != nil {
		return nil, err
	}

	finalPath := filepath.Join(layout.AdmDir(), name)
	tmpPath := filepath.Join(layout.TmpDir(), name+".tmp")

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, vcserr.Wrap(vcserr.CodeIO, tmpPath, err)
	}
	return &AdmFile{File: f, tmpPath: tmpPath, finalPath: finalPath}, nil
}

// Close flushes the temp file and atomically renames it over finalPath.
// When sync is true the data is fsynced before the rename, so a crash
// immediately after Close returns cannot observe a half-written file
// (spec.md §4.3's crash-safety requirement for adm state).
func (f *AdmFile) Close(sync bool) error {
	if f.done {
		return nil
	}
	f.done = true

	if sync {
		if err := f.File.Sync(); err != nil {
			_ = f.File.Close()
			_ = os.Remove(f.tmpPath)
			return vcserr.Wrap(vcserr.CodeIO, f.tmpPath, err)
		}
	}
	if err := f.File.Close(); err != nil {
		_ = os.Remove(f.tmpPath)
		return vcserr.Wrap(vcserr.CodeIO, f.tmpPath, err)
	}
	if err := os.Rename(f.tmpPath, f.finalPath); err != nil {
		return vcserr.Wrap(vcserr.CodeIO, f.finalPath, err)
	}
	return nil
}

// Abort discards the temp file without replacing the final path.
func (f *AdmFile) Abort() error {
	if f.done {
		return nil
	}
	f.done = true
	_ = f.File.Close()
	return os.Remove(f.tmpPath)
}
