package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"impressionism/internal/embedding"
	"impressionism/internal/skills"
	"impressionism/internal/store"
)

func keywordEngine() embedding.Engine {
	return &embedding.KeywordEngine{Keywords: []string{"database", "test", "network", "graphics"}}
}

func newTestIndexer(t *testing.T, root string) (*Indexer, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir(), store.Options{Dimension: 4})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	disc := skills.NewDiscovery([]string{root}, nil, nil)
	return New(st, keywordEngine(), disc, 4096), st
}

func writeSkill(t *testing.T, root, dir, name, description string) string {
	t.Helper()
	path := filepath.Join(root, dir, "SKILL.md")
	content := "---\nname: " + name + "\ndescription: " + description + "\n---\n\nBody.\n"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return skills.CanonicalPath(path)
}

func TestIndexTwoSkillsAndSearch(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "db", "db-skill", "database migration helpers")
	writeSkill(t, root, "net", "net-skill", "network protocol tools")

	ix, st := newTestIndexer(t, root)
	res, err := ix.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Indexed != 2 || res.Skipped != 0 {
		t.Fatalf("result = %+v", res)
	}

	query, _ := keywordEngine().Embed(context.Background(), "help with database")
	results, err := st.SearchByEmbedding(query, 2)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Skill.Name != "db-skill" {
		t.Errorf("expected db-skill first, got %s", results[0].Skill.Name)
	}
}

func TestIndexSkipsUnchanged(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "db", "db-skill", "database migration helpers")

	ix, _ := newTestIndexer(t, root)
	if _, err := ix.Run(context.Background(), Options{}); err != nil {
		t.Fatal(err)
	}

	res, err := ix.Run(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Indexed != 0 || res.Skipped != 1 {
		t.Fatalf("second pass must skip unchanged files: %+v", res)
	}
}

func TestIndexReembedsOnlyChangedFile(t *testing.T) {
	root := t.TempDir()
	dbPath := writeSkill(t, root, "db", "db-skill", "database migration helpers")
	netPath := writeSkill(t, root, "net", "net-skill", "network protocol tools")

	ix, st := newTestIndexer(t, root)
	if _, err := ix.Run(context.Background(), Options{}); err != nil {
		t.Fatal(err)
	}
	netBefore, err := st.GetSkill(skills.IDForPath(netPath))
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(10 * time.Millisecond)
	writeSkill(t, root, "db", "db-skill", "database schema migration helpers")

	res, err := ix.Run(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Indexed != 1 || res.Skipped != 1 {
		t.Fatalf("expected only the edited file re-indexed: %+v", res)
	}

	netAfter, _ := st.GetSkill(skills.IDForPath(netPath))
	if !netAfter.IndexedAt.Equal(netBefore.IndexedAt) {
		t.Error("unchanged skill was rewritten")
	}
	dbAfter, _ := st.GetSkill(skills.IDForPath(dbPath))
	if dbAfter.Description != "database schema migration helpers" {
		t.Errorf("edited skill not updated: %q", dbAfter.Description)
	}
}

func TestForceReindexesEverything(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "db", "db-skill", "database migration helpers")

	ix, _ := newTestIndexer(t, root)
	ix.Run(context.Background(), Options{})

	res, err := ix.Run(context.Background(), Options{Force: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Indexed != 1 {
		t.Fatalf("force must re-index unchanged files: %+v", res)
	}
}

func TestParseErrorPreservesPreviousRow(t *testing.T) {
	root := t.TempDir()
	path := writeSkill(t, root, "db", "db-skill", "database migration helpers")

	ix, st := newTestIndexer(t, root)
	ix.Run(context.Background(), Options{})

	// Corrupt the preamble; the old row must survive.
	if err := os.WriteFile(path, []byte("---\nname: [unterminated\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := ix.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("pass must not abort on a parse error: %v", err)
	}
	if len(res.ParseErrors) != 1 {
		t.Fatalf("expected 1 parse error, got %d", len(res.ParseErrors))
	}

	got, err := st.GetSkill(skills.IDForPath(path))
	if err != nil {
		t.Fatal("previously indexed row was removed")
	}
	if got.Description != "database migration helpers" {
		t.Errorf("previous row mutated: %q", got.Description)
	}
}

func TestFullPassDeletesVanishedSkill(t *testing.T) {
	root := t.TempDir()
	path := writeSkill(t, root, "db", "db-skill", "database migration helpers")

	ix, st := newTestIndexer(t, root)
	ix.Run(context.Background(), Options{})

	if err := os.RemoveAll(filepath.Dir(path)); err != nil {
		t.Fatal(err)
	}
	res, err := ix.Run(context.Background(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Deleted != 1 {
		t.Fatalf("expected 1 deletion, got %+v", res)
	}
	if _, err := st.GetSkill(skills.IDForPath(path)); err == nil {
		t.Error("vanished skill still in catalog")
	}
}

func TestQuickPassNeverDeletes(t *testing.T) {
	root := t.TempDir()
	path := writeSkill(t, root, "db", "db-skill", "database migration helpers")

	ix, st := newTestIndexer(t, root)
	ix.Run(context.Background(), Options{})

	if err := os.RemoveAll(filepath.Dir(path)); err != nil {
		t.Fatal(err)
	}
	res, err := ix.Run(context.Background(), Options{Quick: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Deleted != 0 {
		t.Fatalf("quick pass must never delete: %+v", res)
	}
	if _, err := st.GetSkill(skills.IDForPath(path)); err != nil {
		t.Error("quick pass removed a skill")
	}
}

func TestEmptyRootSucceeds(t *testing.T) {
	ix, _ := newTestIndexer(t, t.TempDir())
	res, err := ix.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("zero-skill pass must succeed: %v", err)
	}
	if res.Indexed != 0 || res.Deleted != 0 {
		t.Fatalf("zero-change pass expected: %+v", res)
	}
}

type failingEngine struct{}

func (failingEngine) Embed(context.Context, string) ([]float32, error) {
	return nil, embedding.ErrEmbedFailed
}
func (failingEngine) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, embedding.ErrEmbedFailed
}
func (failingEngine) Dimensions() int { return 4 }
func (failingEngine) Name() string    { return "failing" }

func TestEmbedFailureAbortsPass(t *testing.T) {
	root := t.TempDir()
	path := writeSkill(t, root, "db", "db-skill", "database migration helpers")

	st, err := store.Open(t.TempDir(), store.Options{Dimension: 4})
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	disc := skills.NewDiscovery([]string{root}, nil, nil)
	ix := New(st, failingEngine{}, disc, 4096)

	if _, err := ix.Run(context.Background(), Options{}); err == nil {
		t.Fatal("expected pass to fail on embedder failure")
	}
	// Nothing committed.
	if _, err := st.GetSkill(skills.IDForPath(path)); err == nil {
		t.Error("partial state reached the catalog")
	}
}
