package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/leadline-ai/leadline/internal/convo"
	"github.com/leadline-ai/leadline/internal/embedder"
	"github.com/leadline-ai/leadline/internal/ingest"
)

// NewIngestCmd constructs the `leadline ingest` command, which parses a CSV
// conversation export, embeds it, and upserts it into the corpus store.
func NewIngestCmd() *cobra.Command {
	var filePath string
	var partition string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a CSV conversation export into the corpus",
		Long: `Parse a CSV conversation export, redact PII, infer stages, build rolling
context windows, embed every message, and upsert the result into the Qdrant
corpus collection.

Required environment variables:
  QDRANT_HOST          Qdrant server hostname (default: localhost)
  QDRANT_PORT          Qdrant gRPC port (default: 6334)
  QDRANT_COLLECTION    Collection name (default: leadline-corpus)
  QDRANT_API_KEY       Optional API key for authenticated clusters
  MODEL_PROVIDER       Embedding backend: ollama, openai, azure (default: ollama)
  EMBEDDING_*          Provider-specific overrides (see README)

Use --partition curated for hand-picked exemplar conversations; curated
lead/agent pairs rank above bulk corpus pairs during retrieval.

Examples:
  leadline ingest --file conversations.csv
  leadline ingest --file best_threads.csv --partition curated
  cat export.csv | leadline ingest`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := slog.Default()

			part := convo.Partition(partition)
			if part != convo.PartitionDefault && part != convo.PartitionCurated {
				return fmt.Errorf("ingest: unknown partition %q — valid values: %s, %s",
					partition, convo.PartitionDefault, convo.PartitionCurated)
			}

			var in io.Reader
			if filePath != "" {
				f, err := os.Open(filePath)
				if err != nil {
					return fmt.Errorf("ingest: failed to open %s: %w", filePath, err)
				}
				defer func() { _ = f.Close() }()
				in = f
			} else {
				stat, err := os.Stdin.Stat()
				if err != nil {
					return fmt.Errorf("ingest: failed to stat stdin: %w", err)
				}
				if (stat.Mode() & os.ModeCharDevice) != 0 {
					return fmt.Errorf("ingest: provide --file <path> or pipe CSV via stdin")
				}
				in = os.Stdin
			}

			if err := embedder.ValidateForRetrieval(log); err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("ingest: failed to initialise embedder: %w", err)
			}

			store, err := newQdrantStore(ctx)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer func() { _ = store.Close() }()

			pipeline, err := ingest.NewPipeline(emb, store, nil)
			if err != nil {
				return fmt.Errorf("ingest: failed to create pipeline: %w", err)
			}

			log.Info("starting ingestion", slog.String("partition", string(part)))

			res, err := pipeline.IngestCSV(ctx, in, part, func(msg string) {
				log.Info(msg)
			})
			if err != nil {
				return fmt.Errorf("ingest: pipeline failed: %w", err)
			}

			log.Info("ingestion complete",
				slog.Int("messages", len(res.Messages)),
				slog.Int("threads", res.Threads),
				slog.Int("skipped", res.Skipped),
				slog.Int("pii_redacted", len(res.PII)),
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&filePath, "file", "f", "", "Path to the CSV conversation export (default: stdin)")
	cmd.Flags().StringVarP(&partition, "partition", "P", string(convo.PartitionDefault), "Corpus partition to ingest into (default or curated)")

	return cmd
}
