package update

import (
	"context"
	"crypto/md5"
	"io"
	"os"

	"github.com/orneryd/vcsfs/internal/vcserr"
	"github.com/orneryd/vcsfs/internal/vcsconfig"
	"github.com/orneryd/vcsfs/pkg/dag"
	"github.com/orneryd/vcsfs/pkg/install"
	"github.com/orneryd/vcsfs/pkg/nr"
	"github.com/orneryd/vcsfs/pkg/wcadm"
)

// Drive walks fs's tree at targetRev and calls e's editor callbacks in
// depth-first order, the way a real svn_ra reporter/editor pair would
// drive an update over the wire. Acting as our own local "remote
// driver" lets checkout, update, and switch all share one Editor
// implementation (spec.md §4.4) without a network protocol in between.
func Drive(ctx context.Context, fs *dag.Filesystem, wcDir string, targetRev nr.RevNum, baseRev nr.RevNum) error {
	e := NewEditor(install.NewInstaller(vcsconfig.DefaultConfig()))
	return driveWith(ctx, fs, wcDir, targetRev, baseRev, e)
}

// DriveWith is Drive with a caller-supplied Editor, letting callers
// reuse an Editor already configured with their own Installer (e.g. one
// carrying a non-default vcsconfig.Config).
func DriveWith(ctx context.Context, fs *dag.Filesystem, wcDir string, targetRev nr.RevNum, baseRev nr.RevNum, e *Editor) error {
	return driveWith(ctx, fs, wcDir, targetRev, baseRev, e)
}

func driveWith(ctx context.Context, fs *dag.Filesystem, wcDir string, targetRev, baseRev nr.RevNum, e *Editor) error {
	e.SetTargetRevision(targetRev)

	targetRoot, err := fs.RevisionRoot(ctx, targetRev)
	if err != nil {
		return err
	}

	root, err := e.OpenRoot(wcDir, baseRev)
	if err != nil {
		return err
	}
	if err := driveDirectory(ctx, fs, e, root, targetRoot); err != nil {
		return err
	}
	return e.CloseDirectory(root)
}

// driveDirectory reconciles one directory: entries present in the
// working copy but absent from targetDir are deleted, entries present
// in targetDir but absent from the working copy are added, and entries
// present in both are opened and recursed into (directories) or
// reinstalled when changed (files).
func driveDirectory(ctx context.Context, fs *dag.Filesystem, e *Editor, b *DirBaton, targetDir *dag.Node) error {
	wcEntries, err := wcadm.ReadEntries(wcadm.NewLayout(b.Dir))
	if err != nil {
		return err
	}

	targetChildren, err := fs.DirEntries(ctx, targetDir)
	if err != nil {
		return err
	}
	byName := make(map[string]nr.DirEntry, len(targetChildren))
	for _, c := range targetChildren {
		byName[c.Name] = c
	}

	for _, name := range wcEntries.Names() {
		if name == wcadm.ThisDir {
			continue
		}
		if _, ok := byName[name]; !ok {
			if err := e.DeleteEntry(b, name); err != nil {
				return err
			}
		}
	}

	for _, child := range targetChildren {
		existing, hadEntry := wcEntries.Get(child.Name)
		node, err := fs.Open(ctx, targetDir, child.Name)
		if err != nil {
			return err
		}

		switch child.Kind {
		case nr.KindDir:
			var childBaton *DirBaton
			if hadEntry && existing.Kind == "dir" {
				childBaton, err = e.OpenDirectory(b, child.Name, nr.RevNum(existing.Revision))
			} else {
				childBaton, err = e.AddDirectory(b, child.Name)
			}
			if err != nil {
				return err
			}
			if err := driveDirectory(ctx, fs, e, childBaton, node); err != nil {
				return err
			}
			if err := e.CloseDirectory(childBaton); err != nil {
				return err
			}

		case nr.KindFile:
			var fb *FileBaton
			if hadEntry && existing.Kind == "file" {
				fb = e.OpenFile(b, child.Name, nr.RevNum(existing.Revision))
			} else {
				fb, err = e.AddFile(b, child.Name)
				if err != nil {
					return err
				}
			}
			changed, err := fileChanged(ctx, fs, wcadm.NewLayout(b.Dir), child.Name, node, hadEntry)
			if err != nil {
				return err
			}
			if changed {
				staged, err := stageContents(fs, ctx, node)
				if err != nil {
					return err
				}
				e.ApplyTextDelta(fb, staged)
			}
			if _, err := e.CloseFile(fb, ""); err != nil {
				return err
			}
		}
	}
	return nil
}

// fileChanged reports whether the repository's content for name differs
// from the working copy's current pristine text-base, so that files the
// revision walk revisits unchanged are not re-staged. CloseFile still
// runs for them, so the installer records the new revision (and bumps
// text_time when the file is not locally modified).
func fileChanged(ctx context.Context, fs *dag.Filesystem, layout *wcadm.Layout, name string, node *dag.Node, hadEntry bool) (bool, error) {
	if !hadEntry {
		return true, nil
	}
	rev, err := node.Revision(ctx)
	if err != nil {
		return false, err
	}
	wantSum, err := fs.Store.FileChecksum(ctx, rev)
	if err != nil {
		return false, err
	}
	base, err := os.ReadFile(layout.TextBasePath(name))
	if err != nil {
		return true, nil
	}
	return md5.Sum(base) != wantSum, nil
}

func stageContents(fs *dag.Filesystem, ctx context.Context, node *dag.Node) (string, error) {
	rev, err := node.Revision(ctx)
	if err != nil {
		return "", err
	}
	rc, err := fs.Store.GetContents(ctx, rev)
	if err != nil {
		return "", err
	}
	defer rc.Close()

	tmp, err := os.CreateTemp("", "vcsfs-update-*.tmp")
	if err != nil {
		return "", vcserr.Wrap(vcserr.CodeIO, "", err)
	}
	defer tmp.Close()
	if _, err := io.Copy(tmp, rc); err != nil {
		return "", vcserr.Wrap(vcserr.CodeIO, tmp.Name(), err)
	}
	return tmp.Name(), nil
}
