package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// LocalEngine is a deterministic feature-hashing embedder. Tokens are
// hashed into a fixed number of buckets and the resulting count vector
// is L2-normalized. It needs no model server, which keeps the indexing
// pipeline usable out of the box; swap in ollama or genai for real
// semantic quality.
type LocalEngine struct {
	dimension int
}

// NewLocalEngine creates a feature-hash engine of the given dimension.
func NewLocalEngine(dimension int) *LocalEngine {
	if dimension <= 0 {
		dimension = 384
	}
	return &LocalEngine{dimension: dimension}
}

// Embed generates an embedding for a single text.
func (e *LocalEngine) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dimension)
	for _, tok := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[int(h.Sum32())%e.dimension]++
	}
	normalize(vec)
	return vec, nil
}

// EmbedBatch embeds each text independently.
func (e *LocalEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the embedding dimensionality.
func (e *LocalEngine) Dimensions() int { return e.dimension }

// Name returns the engine name.
func (e *LocalEngine) Name() string { return fmt.Sprintf("local:fnv-%d", e.dimension) }

// KeywordEngine embeds text as normalized keyword counts, one dimension
// per keyword. Used in tests where similarity must be hand-computable.
type KeywordEngine struct {
	Keywords []string
}

// Embed counts keyword occurrences and L2-normalizes.
func (e *KeywordEngine) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, len(e.Keywords))
	for _, tok := range tokenize(text) {
		for i, kw := range e.Keywords {
			if tok == kw {
				vec[i]++
			}
		}
	}
	normalize(vec)
	return vec, nil
}

// EmbedBatch embeds each text independently.
func (e *KeywordEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, _ := e.Embed(ctx, text)
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the number of keywords.
func (e *KeywordEngine) Dimensions() int { return len(e.Keywords) }

// Name returns the engine name.
func (e *KeywordEngine) Name() string { return "keyword" }

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalize(vec []float32) {
	var mag float64
	for _, v := range vec {
		mag += float64(v) * float64(v)
	}
	if mag == 0 {
		return
	}
	mag = math.Sqrt(mag)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / mag)
	}
}
