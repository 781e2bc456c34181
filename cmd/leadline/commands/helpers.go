package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/leadline-ai/leadline/internal/embedder"
	"github.com/leadline-ai/leadline/internal/retrieval"
)

// newQdrantStore connects to the corpus store using the QDRANT_* env vars.
// The vector size follows the resolved embedding backend's dimensions unless
// EMBEDDING_DIMENSIONS overrides it.
func newQdrantStore(ctx context.Context) (*retrieval.QdrantStore, error) {
	embBackend := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))
	vectorSize := getEnvInt("EMBEDDING_DIMENSIONS", embedder.DefaultDimensions(embBackend))

	host := getEnvOrDefault("QDRANT_HOST", "localhost")
	port := getEnvInt("QDRANT_PORT", 6334)

	store, err := retrieval.NewQdrantStore(ctx, &retrieval.QdrantConfig{
		Host:       host,
		Port:       port,
		Collection: getEnvOrDefault("QDRANT_COLLECTION", "leadline-corpus"),
		VectorSize: uint64(vectorSize), //nolint:gosec // dimensions are bounded
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
	}
	return store, nil
}

// retrievalConfigFromEnv starts from the production defaults and applies any
// RETRIEVAL_* env overrides (set directly or via the YAML config preload).
func retrievalConfigFromEnv() retrieval.Config {
	cfg := retrieval.DefaultConfig()
	cfg.PoolSize = getEnvInt("RETRIEVAL_POOL_SIZE", cfg.PoolSize)
	cfg.TopK = getEnvInt("RETRIEVAL_TOP_K", cfg.TopK)
	cfg.TopKPairs = getEnvInt("RETRIEVAL_TOP_K_PAIRS", cfg.TopKPairs)
	cfg.BoostThread = getEnvFloat32("RETRIEVAL_BOOST_THREAD", cfg.BoostThread)
	cfg.BoostStage = getEnvFloat32("RETRIEVAL_BOOST_STAGE", cfg.BoostStage)
	cfg.BoostRole = getEnvFloat32("RETRIEVAL_BOOST_ROLE", cfg.BoostRole)
	cfg.BoostRecency = getEnvFloat32("RETRIEVAL_BOOST_RECENCY", cfg.BoostRecency)
	cfg.BoostCurated = getEnvFloat32("RETRIEVAL_BOOST_CURATED", cfg.BoostCurated)
	return cfg
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}
