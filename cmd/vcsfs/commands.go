package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/orneryd/vcsfs/pkg/dag"
	"github.com/orneryd/vcsfs/pkg/nr"
	"github.com/orneryd/vcsfs/pkg/status"
	"github.com/orneryd/vcsfs/pkg/update"
	"github.com/orneryd/vcsfs/pkg/wcadm"
)

func runImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := loadConfig(cmd)
	source := args[0]

	repo, err := openRepository(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening repository: %w", err)
	}
	defer repo.Close()

	base := repo.fs.YoungestRevision()
	txn := nr.TxnId(uuid.NewString())
	root, err := repo.fs.BeginTxn(ctx, txn, base)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := importTree(ctx, repo.fs, root, "/", source, txn); err != nil {
		repo.fs.AbortTxn(txn)
		return fmt.Errorf("importing %s: %w", source, err)
	}

	rev, err := repo.fs.CommitTxn(ctx, txn)
	if err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	if err := repo.save(); err != nil {
		return fmt.Errorf("saving revision history: %w", err)
	}

	fmt.Printf("Imported %s as revision %d\n", source, rev)
	return nil
}

// importTree walks source recursively, creating a directory or file node
// for each entry under parent (already positioned at parentPath within
// the transaction) and copying file contents straight into the store.
func importTree(ctx context.Context, dfs *dag.Filesystem, parent *dag.Node, parentPath, source string, txn nr.TxnId) error {
	entries, err := os.ReadDir(source)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		name := entry.Name()
		childSource := filepath.Join(source, name)
		if entry.IsDir() {
			dirNode, err := dfs.MakeDir(ctx, parent, parentPath, name, txn)
			if err != nil {
				return err
			}
			if err := importTree(ctx, dfs, dirNode, path.Join(parentPath, name), childSource, txn); err != nil {
				return err
			}
			continue
		}
		if entry.Type()&fs.ModeSymlink != 0 {
			continue
		}
		fileNode, err := dfs.MakeFile(ctx, parent, parentPath, name, txn)
		if err != nil {
			return err
		}
		if err := copyFileContents(ctx, dfs, fileNode.Id(), childSource); err != nil {
			return err
		}
	}
	return nil
}

func copyFileContents(ctx context.Context, dfs *dag.Filesystem, id nr.NodeId, source string) error {
	data, err := os.ReadFile(source)
	if err != nil {
		return err
	}
	wc, err := dfs.Store.SetContents(ctx, id)
	if err != nil {
		return err
	}
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return err
	}
	return wc.Close()
}

func runCheckout(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := loadConfig(cmd)
	wcDir := args[0]
	rev, _ := cmd.Flags().GetInt64("rev")

	repo, err := openRepository(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening repository: %w", err)
	}
	defer repo.Close()

	target := resolveRevision(repo, rev)
	if err := os.MkdirAll(wcDir, 0o755); err != nil {
		return fmt.Errorf("creating working copy directory: %w", err)
	}
	if err := update.Drive(ctx, repo.fs, wcDir, target, nr.InvalidRevNum); err != nil {
		return fmt.Errorf("checking out revision %d: %w", target, err)
	}

	fmt.Printf("Checked out revision %d into %s\n", target, wcDir)
	return nil
}

func runUpdate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := loadConfig(cmd)
	wcDir := args[0]
	rev, _ := cmd.Flags().GetInt64("rev")

	baseRev, err := currentWCRevision(wcDir)
	if err != nil {
		return fmt.Errorf("reading working copy state: %w", err)
	}

	repo, err := openRepository(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening repository: %w", err)
	}
	defer repo.Close()

	target := resolveRevision(repo, rev)
	if err := update.Drive(ctx, repo.fs, wcDir, target, baseRev); err != nil {
		return fmt.Errorf("updating to revision %d: %w", target, err)
	}

	fmt.Printf("Updated %s from revision %d to %d\n", wcDir, baseRev, target)
	return nil
}

func resolveRevision(repo *repository, requested int64) nr.RevNum {
	if requested >= 0 {
		return nr.RevNum(requested)
	}
	return repo.fs.YoungestRevision()
}

func currentWCRevision(wcDir string) (nr.RevNum, error) {
	entries, err := wcadm.ReadEntries(wcadm.NewLayout(wcDir))
	if err != nil {
		return nr.InvalidRevNum, err
	}
	this, ok := entries.ThisDir()
	if !ok {
		return nr.InvalidRevNum, nil
	}
	return nr.RevNum(this.Revision), nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	wcDir := args[0]
	entries, err := status.Walk(wcDir)
	if err != nil {
		return fmt.Errorf("walking %s: %w", wcDir, err)
	}
	for _, e := range entries {
		if e.TextStatus == status.TextNone && e.PropStatus == status.TextNone {
			continue
		}
		fmt.Println(e.Summary())
	}
	return nil
}
