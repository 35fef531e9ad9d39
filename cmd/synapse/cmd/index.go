package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dlorp/synapse/internal/indexer"
	"github.com/dlorp/synapse/internal/token"
)

var (
	indexWatch     bool
	indexMaxTokens int
)

// indexCmd builds the offline index triple from a corpus directory.
var indexCmd = &cobra.Command{
	Use:   "index <dir>",
	Short: "Build the local index from a corpus directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		cleanup, err := setupLogging(cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		root, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}

		b, err := openBackends(cfg, false)
		if err != nil {
			return err
		}
		defer b.close()

		ix := indexer.New(b.embedder, b.vector, b.sparse, b.chunks,
			indexer.NewChunker(indexMaxTokens, token.Default()),
			filepath.Join(cfg.Index.Dir, lockFileName))

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		stats, err := ix.Build(ctx, root)
		if err != nil {
			return err
		}
		if err := b.vector.Save(b.vectorPath); err != nil {
			return fmt.Errorf("save vector index: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "indexed %d files, %d chunks\n", stats.Files, stats.Chunks)

		if indexWatch {
			fmt.Fprintln(cmd.OutOrStdout(), "watching for changes (ctrl-c to stop)")
			if err := ix.Watch(ctx, root); err != nil && ctx.Err() == nil {
				return err
			}
			// Persist vectors accumulated while watching.
			if err := b.vector.Save(b.vectorPath); err != nil {
				return fmt.Errorf("save vector index: %w", err)
			}
		}
		return nil
	},
}

func init() {
	indexCmd.Flags().BoolVar(&indexWatch, "watch", false, "keep running and reindex files as they change")
	indexCmd.Flags().IntVar(&indexMaxTokens, "max-chunk-tokens", 0, "maximum tokens per chunk")
	rootCmd.AddCommand(indexCmd)
}
