// Package embedding provides text-to-vector generation for skill search.
// Backends: local feature hashing (default, no server), Ollama, and
// Google GenAI.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"impressionism/internal/logging"
)

// Engine generates fixed-dimension vector embeddings for text.
// Implementations must be stable within a process run: the same input
// yields the same output, so unchanged file bytes never need re-embedding.
type Engine interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, one vector per
	// input in the same order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimensionality.
	Dimensions() int

	// Name returns the engine name.
	Name() string
}

// ErrEmbedFailed wraps any backend failure. Callers treat it as fatal
// for the current indexing pass.
var ErrEmbedFailed = errors.New("embedding failed")

// Config selects and configures an embedding backend.
type Config struct {
	Provider string // "local", "ollama", "genai"

	OllamaEndpoint string
	OllamaModel    string

	GenAIAPIKey string
	GenAIModel  string

	Dimension int
}

// NewEngine creates an engine from configuration.
func NewEngine(cfg Config) (Engine, error) {
	log := logging.Get(logging.CategoryEmbedding)
	if cfg.Dimension <= 0 {
		cfg.Dimension = 384
	}

	switch cfg.Provider {
	case "local", "":
		log.Debugf("using local feature-hash engine (dim=%d)", cfg.Dimension)
		return NewLocalEngine(cfg.Dimension), nil
	case "ollama":
		log.Debugf("using ollama engine endpoint=%s model=%s", cfg.OllamaEndpoint, cfg.OllamaModel)
		return NewOllamaEngine(cfg.OllamaEndpoint, cfg.OllamaModel, cfg.Dimension)
	case "genai":
		log.Debugf("using genai engine model=%s", cfg.GenAIModel)
		return NewGenAIEngine(cfg.GenAIAPIKey, cfg.GenAIModel, cfg.Dimension)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %q (use local, ollama or genai)", cfg.Provider)
	}
}

// Cosine computes cosine similarity between two vectors. A zero vector,
// empty input, or length mismatch yields 0.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// SimilarityResult pairs a corpus index with its similarity score.
type SimilarityResult struct {
	Index      int
	Similarity float64
}

// FindTopK returns the top-k most similar corpus vectors to the query,
// ordered by similarity descending with index ascending on ties.
func FindTopK(query []float32, corpus [][]float32, k int) []SimilarityResult {
	if k <= 0 {
		return nil
	}
	results := make([]SimilarityResult, 0, len(corpus))
	for i, vec := range corpus {
		results = append(results, SimilarityResult{Index: i, Similarity: Cosine(query, vec)})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Index < results[j].Index
	})
	if len(results) > k {
		results = results[:k]
	}
	return results
}
