package retrieval

import (
	"fmt"
	"time"
)

// Default tuning values. These are starting points validated against the
// original corpus, not constants — every deployment can override them via
// configuration.
const (
	// DefaultPoolSize is the per-pass nearest-neighbour pool size.
	DefaultPoolSize = 60
	// DefaultTopK is the size of the final ranked context.
	DefaultTopK = 8
	// DefaultTopKPairs is the number of dialogue exemplars returned.
	DefaultTopKPairs = 2
	// DefaultPassTimeout bounds each individual store/embedding call.
	DefaultPassTimeout = 5 * time.Second

	// DefaultBoostThread is added when a candidate shares the query's thread.
	DefaultBoostThread = 0.20
	// DefaultBoostStage is added when normalised stages match.
	DefaultBoostStage = 0.08
	// DefaultBoostRole is added when the candidate's role matches PreferRole.
	DefaultBoostRole = 0.05
	// DefaultBoostRecency is the maximum recency boost. The applied value is
	// scaled by the candidate's timestamp percentile among all candidates,
	// so recency can nudge ties but never dominate semantic similarity.
	DefaultBoostRecency = 0.01
	// DefaultBoostCurated is added during pair extraction when the lead
	// message comes from the curated partition.
	DefaultBoostCurated = 0.05

	// historyWindow is the number of trailing live-conversation turns folded
	// into the enriched query text.
	historyWindow = 4
	// historyTurnMaxLen caps each folded history turn to bound embedding cost.
	historyTurnMaxLen = 160
)

// Config is the immutable tuning for one Engine. Construct it with
// DefaultConfig and adjust fields before passing to New — after construction
// the engine only ever reads it, so a hot-reload mechanism can swap in a new
// engine without locking.
type Config struct {
	// PoolSize is the candidate pool size for each gathering pass.
	PoolSize int
	// TopK bounds the ranked context returned by a retrieval call.
	TopK int
	// TopKPairs bounds the dialogue exemplars returned.
	TopKPairs int
	// PassTimeout bounds each store query and the query embedding call.
	PassTimeout time.Duration

	// BoostThread is the thread-affinity boost weight.
	BoostThread float32
	// BoostStage is the stage-match boost weight.
	BoostStage float32
	// BoostRole is the preferred-role boost weight.
	BoostRole float32
	// BoostRecency is the maximum recency boost weight.
	BoostRecency float32
	// BoostCurated is the curated-partition boost used in pair extraction.
	BoostCurated float32
}

// DefaultConfig returns the tuning used in production.
func DefaultConfig() Config {
	return Config{
		PoolSize:     DefaultPoolSize,
		TopK:         DefaultTopK,
		TopKPairs:    DefaultTopKPairs,
		PassTimeout:  DefaultPassTimeout,
		BoostThread:  DefaultBoostThread,
		BoostStage:   DefaultBoostStage,
		BoostRole:    DefaultBoostRole,
		BoostRecency: DefaultBoostRecency,
		BoostCurated: DefaultBoostCurated,
	}
}

// Validate rejects configs that would misbehave at call time. It is called by
// New so an invalid config fails at construction, never during a turn.
func (c Config) Validate() error {
	if c.PoolSize <= 0 {
		return fmt.Errorf("retrieval: PoolSize must be positive, got %d", c.PoolSize)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("retrieval: TopK must be positive, got %d", c.TopK)
	}
	if c.TopKPairs <= 0 {
		return fmt.Errorf("retrieval: TopKPairs must be positive, got %d", c.TopKPairs)
	}
	if c.PassTimeout <= 0 {
		return fmt.Errorf("retrieval: PassTimeout must be positive, got %s", c.PassTimeout)
	}
	for _, b := range []struct {
		name  string
		value float32
	}{
		{"BoostThread", c.BoostThread},
		{"BoostStage", c.BoostStage},
		{"BoostRole", c.BoostRole},
		{"BoostRecency", c.BoostRecency},
		{"BoostCurated", c.BoostCurated},
	} {
		if b.value < 0 {
			return fmt.Errorf("retrieval: %s must not be negative, got %f", b.name, b.value)
		}
	}
	return nil
}
