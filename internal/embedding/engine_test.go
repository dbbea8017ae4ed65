package embedding

import (
	"context"
	"math"
	"testing"
)

func TestCosineIdentical(t *testing.T) {
	a := []float32{1, 2, 3}
	if sim := Cosine(a, a); math.Abs(sim-1.0) > 1e-9 {
		t.Errorf("expected similarity 1.0, got %f", sim)
	}
}

func TestCosineOrthogonal(t *testing.T) {
	if sim := Cosine([]float32{1, 0}, []float32{0, 1}); math.Abs(sim) > 1e-9 {
		t.Errorf("expected similarity 0, got %f", sim)
	}
}

func TestCosineZeroVector(t *testing.T) {
	if sim := Cosine([]float32{0, 0}, []float32{1, 2}); sim != 0 {
		t.Errorf("zero vector must yield 0, got %f", sim)
	}
}

func TestCosineLengthMismatch(t *testing.T) {
	if sim := Cosine([]float32{1, 2}, []float32{1, 2, 3}); sim != 0 {
		t.Errorf("length mismatch must yield 0, got %f", sim)
	}
}

func TestFindTopKOrderingAndTies(t *testing.T) {
	query := []float32{1, 0}
	corpus := [][]float32{
		{0, 1},   // orthogonal
		{1, 0},   // exact
		{1, 0},   // exact duplicate: tie broken by index
		{0.5, 0}, // same direction, also similarity 1 after normalization by cosine
	}
	results := FindTopK(query, corpus, 3)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i].Similarity > results[i-1].Similarity {
			t.Errorf("results out of order at %d", i)
		}
	}
	if results[0].Index != 1 || results[1].Index != 2 {
		t.Errorf("tie not broken by index: got %d, %d", results[0].Index, results[1].Index)
	}
}

func TestLocalEngineDeterministic(t *testing.T) {
	engine := NewLocalEngine(64)
	ctx := context.Background()

	a, err := engine.Embed(ctx, "database migration helpers")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	b, err := engine.Embed(ctx, "database migration helpers")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 dims, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("engine not deterministic at dim %d", i)
		}
	}
}

func TestLocalEngineBatchMatchesSingle(t *testing.T) {
	engine := NewLocalEngine(32)
	ctx := context.Background()

	batch, err := engine.EmbedBatch(ctx, []string{"one two", "three"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	single, _ := engine.Embed(ctx, "one two")
	for i := range single {
		if batch[0][i] != single[i] {
			t.Fatalf("batch and single disagree at dim %d", i)
		}
	}
}

func TestKeywordEngine(t *testing.T) {
	engine := &KeywordEngine{Keywords: []string{"database", "test", "network", "graphics"}}
	ctx := context.Background()

	vec, err := engine.Embed(ctx, "help with database and database test")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 4 {
		t.Fatalf("expected 4 dims, got %d", len(vec))
	}
	// Counts are (2, 1, 0, 0), normalized.
	norm := float32(math.Sqrt(5))
	if math.Abs(float64(vec[0]-2/norm)) > 1e-6 || math.Abs(float64(vec[1]-1/norm)) > 1e-6 {
		t.Errorf("unexpected vector %v", vec)
	}
	if vec[2] != 0 || vec[3] != 0 {
		t.Errorf("expected zero counts for absent keywords, got %v", vec)
	}
}

func TestKeywordEngineEmptyText(t *testing.T) {
	engine := &KeywordEngine{Keywords: []string{"a", "b"}}
	vec, err := engine.Embed(context.Background(), "")
	if err != nil {
		t.Fatalf("Embed of empty string must not error: %v", err)
	}
	if len(vec) != 2 {
		t.Fatalf("expected 2 dims, got %d", len(vec))
	}
}

func TestNewEngineUnknownProvider(t *testing.T) {
	if _, err := NewEngine(Config{Provider: "bogus"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
