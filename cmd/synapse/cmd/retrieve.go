package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dlorp/synapse/internal/retrieval"
)

var (
	retrieveBudget      int
	retrieveCandidates  int
	retrieveRerankK     int
	retrieveWebFallback bool
	retrieveNoCache     bool
	retrieveJSON        bool
)

// retrieveCmd answers one query against the local index.
var retrieveCmd = &cobra.Command{
	Use:   "retrieve <query>",
	Short: "Retrieve passages for a query",
	Args:  cobra.MinimumNArgs(1),
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

		b, err := openBackends(cfg, true)
		if err != nil {
			return err
		}
		defer b.close()

		pipeline, err := buildPipeline(cfg, b)
		if err != nil {
			return err
		}

		opts := retrieval.DefaultOptions()
		if retrieveBudget > 0 {
			opts.TokenBudget = retrieveBudget
		}
		if retrieveCandidates > 0 {
			opts.MaxCandidates = retrieveCandidates
		}
		if retrieveRerankK > 0 {
			opts.RerankK = retrieveRerankK
		}
		opts.AllowWebFallback = retrieveWebFallback
		opts.UseCache = !retrieveNoCache

		query := strings.Join(args, " ")
		result, err := pipeline.Retrieve(cmd.Context(), query, opts)
		if err != nil {
			return err
		}

		if retrieveJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		printResult(cmd, result)
		return nil
	},
}

// printResult renders a result for the terminal.
func printResult(cmd *cobra.Command, result *retrieval.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "strategy=%s decision=%s score=%.3f chunks=%d elapsed=%s\n",
		result.Stats.Classification.Strategy, result.Decision.Grade,
		result.Decision.Score, len(result.Chunks), result.Stats.Elapsed)
	if result.Correction != nil {
		fmt.Fprintf(out, "correction=%s\n", *result.Correction)
	}
	for i, c := range result.Chunks {
		text := c.Chunk.Text
		if len(text) > 200 {
			text = text[:200] + "..."
		}
		fmt.Fprintf(out, "\n%2d. [%.3f] %s (%d tokens, %s)\n    %s\n",
			i+1, c.Score, c.Chunk.SourceURI, c.Chunk.TokenCount, c.Provenance,
			strings.ReplaceAll(text, "\n", "\n    "))
	}
}

func init() {
	retrieveCmd.Flags().IntVar(&retrieveBudget, "budget", 0, "token budget for returned passages")
	retrieveCmd.Flags().IntVar(&retrieveCandidates, "candidates", 0, "max candidates at the retrieval stage")
	retrieveCmd.Flags().IntVar(&retrieveRerankK, "rerank-k", 0, "candidates entering the reranker")
	retrieveCmd.Flags().BoolVar(&retrieveWebFallback, "web-fallback", false, "allow web search when retrieval is irrelevant")
	retrieveCmd.Flags().BoolVar(&retrieveNoCache, "no-cache", false, "bypass the retrieval cache")
	retrieveCmd.Flags().BoolVar(&retrieveJSON, "json", false, "emit the raw result as JSON")
	rootCmd.AddCommand(retrieveCmd)
}
