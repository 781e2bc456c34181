package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/leadline-ai/leadline/internal/embedder"
	"github.com/leadline-ai/leadline/internal/ingest"
)

// NewReembedCmd constructs the `leadline reembed` command, which re-embeds
// stored corpus messages under the current embedding version.
func NewReembedCmd() *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "reembed",
		Short: "Re-embed the corpus under the current embedding version",
		Long: `Walk the Qdrant corpus and re-embed every message whose stored embedding
version differs from the embedder's current one.

Retrieval filters on embedding version, so after an embedding model change
the corpus is invisible to search until this command refreshes it. Messages
already stamped with the current version are skipped, making the command
safe to re-run after a partial failure.

Examples:
  EMBEDDING_MODEL=nomic-embed-text leadline reembed
  leadline reembed --batch-size 128`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := slog.Default()

			if err := embedder.ValidateForRetrieval(log); err != nil {
				return fmt.Errorf("reembed: %w", err)
			}

			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("reembed: failed to initialise embedder: %w", err)
			}

			store, err := newQdrantStore(ctx)
			if err != nil {
				return fmt.Errorf("reembed: %w", err)
			}
			defer func() { _ = store.Close() }()

			pipeline, err := ingest.NewPipeline(emb, store, &ingest.Config{BatchSize: batchSize})
			if err != nil {
				return fmt.Errorf("reembed: failed to create pipeline: %w", err)
			}

			log.Info("starting re-embedding", slog.String("version", emb.Version()))

			updated, err := pipeline.Reembed(ctx, store, func(msg string) {
				log.Info(msg)
			})
			if err != nil {
				return fmt.Errorf("reembed: %w", err)
			}

			log.Info("re-embedding complete",
				slog.Int("updated", updated),
				slog.String("version", emb.Version()),
			)
			return nil
		},
	}

	cmd.Flags().IntVarP(&batchSize, "batch-size", "b", 0, "Messages per embedding batch (default: 64)")

	return cmd
}
