package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/leadline-ai/leadline/internal/agent"
	"github.com/leadline-ai/leadline/internal/embedder"
	"github.com/leadline-ai/leadline/internal/history"
	"github.com/leadline-ai/leadline/internal/ingest"
	"github.com/leadline-ai/leadline/internal/logging"
	"github.com/leadline-ai/leadline/internal/provider"
	"github.com/leadline-ai/leadline/internal/retrieval"
	"github.com/leadline-ai/leadline/internal/server"
	"github.com/leadline-ai/leadline/internal/style"
	"github.com/leadline-ai/leadline/internal/tracing"
)

// NewServeCmd constructs the `leadline serve` command, which starts the HTTP
// API for reply generation and corpus ingestion.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Leadline HTTP server",
		Long: `Start the Leadline HTTP server on localhost.

The server exposes POST /api/reply for lead conversation turns,
POST /api/ingest for CSV corpus uploads, plus health, readiness, and
Prometheus metrics endpoints.

Examples:
  leadline serve
  leadline serve --port 9090
  MODEL_PROVIDER=openai leadline serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Setup Langfuse tracing — opt-in, no-op if keys are absent.
			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}

			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("serve: failed to initialise embedder: %w", err)
			}

			store, err := newQdrantStore(ctx)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer func() { _ = store.Close() }()

			engine, err := retrieval.New(emb, store, retrievalConfigFromEnv())
			if err != nil {
				return fmt.Errorf("serve: failed to build retrieval engine: %w", err)
			}

			persona := getEnvOrDefault("AGENT_PERSONA", "Ashanti")

			// Open conversation history store. LEADLINE_HISTORY_DB overrides
			// the default path (~/.leadline/history.db). Set to "disabled" to
			// run stateless.
			var historyStore history.Store
			dbPath := os.Getenv("LEADLINE_HISTORY_DB")
			if dbPath != "disabled" {
				if dbPath == "" {
					dbPath, err = history.DefaultDBPath()
					if err != nil {
						log.Warn("history: could not resolve default DB path, disabling", slog.Any("error", err))
					}
				}
				if dbPath != "" {
					hs, hsErr := history.Open(dbPath)
					if hsErr != nil {
						log.Warn("history: failed to open store, disabling", slog.Any("error", hsErr))
					} else {
						historyStore = hs
						defer func() { _ = hs.Close() }()
						log.Info("history: store opened", slog.String("path", dbPath))
					}
				}
			} else {
				log.Info("history: disabled via LEADLINE_HISTORY_DB=disabled")
			}

			leadAgent, err := agent.New(&agent.Config{
				ChatModel: chatModel,
				Retriever: engine,
				Style:     style.NewBuilder(engine, persona),
				History:   historyStore,
				Persona:   persona,
				Community: os.Getenv("AGENT_COMMUNITY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to initialise agent: %w", err)
			}

			pipeline, err := ingest.NewPipeline(emb, store, nil)
			if err != nil {
				return fmt.Errorf("serve: failed to create ingest pipeline: %w", err)
			}

			srv, err := server.New(leadAgent, pipeline, &server.Config{
				Host:   host,
				Port:   port,
				Logger: log,
				Pingers: []server.Pinger{
					server.NewLLMPinger(chatModel, getEnvOrDefault("MODEL_PROVIDER", "ollama")),
					server.NewStorePinger("qdrant", store.Ping),
				},
				APIKey: os.Getenv("LEADLINE_API_KEY"),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
