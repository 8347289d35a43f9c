// Package main provides the vcsfs CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/orneryd/vcsfs/internal/vcsconfig"
	"github.com/orneryd/vcsfs/internal/vcslog"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vcsfs",
		Short: "vcsfs - a Subversion-style DAG filesystem and working copy",
		Long: `vcsfs is a content-addressed, node-revision filesystem with an
svn-style working copy layered on top of it.

Commands:
  import    commit a directory tree into the repository as a new revision
  checkout  create a working copy of a revision
  update    bring an existing working copy forward to a new revision
  status    classify local modifications in a working copy`,
	}
	rootCmd.PersistentFlags().String("data-dir", "./data", "repository data directory")
	rootCmd.PersistentFlags().String("backend", "badger", "node-revision store backend: memory or badger")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("vcsfs v%s (%s)\n", version, commit)
		},
	})

	importCmd := &cobra.Command{
		Use:   "import <source-dir>",
		Short: "Import a directory tree into the repository as a new revision",
		Args:  cobra.ExactArgs(1),
		RunE:  runImport,
	}
	rootCmd.AddCommand(importCmd)

	checkoutCmd := &cobra.Command{
		Use:   "checkout <wc-dir>",
		Short: "Check out a repository revision into a fresh working copy",
		Args:  cobra.ExactArgs(1),
		RunE:  runCheckout,
	}
	checkoutCmd.Flags().Int64("rev", -1, "revision to check out (default: youngest)")
	rootCmd.AddCommand(checkoutCmd)

	updateCmd := &cobra.Command{
		Use:   "update <wc-dir>",
		Short: "Bring an existing working copy forward to a new revision",
		Args:  cobra.ExactArgs(1),
		RunE:  runUpdate,
	}
	updateCmd.Flags().Int64("rev", -1, "revision to update to (default: youngest)")
	rootCmd.AddCommand(updateCmd)

	statusCmd := &cobra.Command{
		Use:   "status <wc-dir>",
		Short: "Classify local modifications in a working copy",
		Args:  cobra.ExactArgs(1),
		RunE:  runStatus,
	}
	rootCmd.AddCommand(statusCmd)

	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		if verbose {
			vcslog.SetLevel(vcslog.LevelDebug)
		}
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "vcsfs:", err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) *vcsconfig.Config {
	cfg := vcsconfig.DefaultConfig()
	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	if backend, _ := cmd.Flags().GetString("backend"); backend != "" {
		cfg.FSBackend = vcsconfig.Backend(backend)
	}
	return cfg
}
