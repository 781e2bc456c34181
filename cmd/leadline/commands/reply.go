package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leadline-ai/leadline/internal/agent"
	"github.com/leadline-ai/leadline/internal/embedder"
	"github.com/leadline-ai/leadline/internal/history"
	"github.com/leadline-ai/leadline/internal/logging"
	"github.com/leadline-ai/leadline/internal/provider"
	"github.com/leadline-ai/leadline/internal/retrieval"
	"github.com/leadline-ai/leadline/internal/style"
)

// NewReplyCmd constructs the `leadline reply` command, which runs a single
// conversation turn and prints the generated reply.
func NewReplyCmd() *cobra.Command {
	var threadID string
	var stage string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "reply [lead message]",
		Short: "Generate one reply to a lead message",
		Long: `Run a single conversation turn: classify the stage, retrieve similar past
exchanges from the corpus, and generate a reply in the locator persona.

With --thread, prior turns from the history store are injected and the new
turn is persisted, so repeated calls carry the conversation forward.

Examples:
  leadline reply "hey, do you have any 2 bedrooms near the Heights?"
  leadline reply --thread lead-042 "we toured yesterday, loved the second one"
  leadline reply --json "what's the application fee?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("reply: failed to initialise model provider: %w", err)
			}

			persona := getEnvOrDefault("AGENT_PERSONA", "Ashanti")
			cfg := &agent.Config{
				ChatModel: chatModel,
				Persona:   persona,
				Community: os.Getenv("AGENT_COMMUNITY"),
			}

			// Retrieval is optional for a one-shot reply: without a reachable
			// corpus the agent still answers, just without tone grounding.
			emb, err := embedder.NewFromEnv()
			if err != nil {
				fmt.Fprintf(os.Stderr, "warning: %v (replying without corpus context)\n", err)
			} else if store, serr := newQdrantStore(ctx); serr != nil {
				fmt.Fprintf(os.Stderr, "warning: %v (replying without corpus context)\n", serr)
			} else {
				defer func() { _ = store.Close() }()
				engine, eerr := retrieval.New(emb, store, retrievalConfigFromEnv())
				if eerr != nil {
					return fmt.Errorf("reply: failed to build retrieval engine: %w", eerr)
				}
				cfg.Retriever = engine
				cfg.Style = style.NewBuilder(engine, persona)
			}

			if threadID != "" {
				dbPath := os.Getenv("LEADLINE_HISTORY_DB")
				if dbPath == "" {
					dbPath, err = history.DefaultDBPath()
					if err != nil {
						return fmt.Errorf("reply: could not resolve history DB path: %w", err)
					}
				}
				hs, err := history.Open(dbPath)
				if err != nil {
					return fmt.Errorf("reply: failed to open history store: %w", err)
				}
				defer func() { _ = hs.Close() }()
				cfg.History = hs
			}

			leadAgent, err := agent.New(cfg)
			if err != nil {
				return fmt.Errorf("reply: failed to initialise agent: %w", err)
			}

			result, err := leadAgent.Reply(ctx, threadID, stage, args[0])
			if err != nil {
				return fmt.Errorf("reply: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"reply":  result.Reply,
					"stage":  result.Stage,
					"send":   result.Send,
					"action": result.Action,
				})
			}

			if result.Send {
				fmt.Println(result.Reply)
			} else {
				fmt.Fprintln(os.Stderr, "(send suppressed — human follow-up required)")
			}
			if result.Action != nil {
				fmt.Fprintf(os.Stderr, "action: %s (%s)\n", result.Action.Action, result.Action.Reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&threadID, "thread", "t", "", "Conversation thread ID for history continuity")
	cmd.Flags().StringVarP(&stage, "stage", "s", "", "Current conversation stage (default: inferred)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full turn result as JSON")

	return cmd
}
