package store

import (
	"errors"
	"testing"
	"time"

	"impressionism/internal/skills"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(t.TempDir(), Options{Dimension: 4})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func testSkill(id string, embedding []float32) Skill {
	return Skill{
		ID:          id,
		Name:        "skill-" + id,
		Path:        "/skills/" + id + "/SKILL.md",
		Description: "description for " + id,
		Keywords:    []string{"k1"},
		Embedding:   embedding,
		Frontmatter: map[string]interface{}{"name": "skill-" + id},
		ContentHash: "hash-" + id,
		IndexedAt:   time.Now().UTC(),
		Source:      skills.SourceUser,
	}
}

func TestSchemaVersionMismatch(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir, Options{Dimension: 4})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := st.db.Exec("UPDATE catalog_meta SET value = '99' WHERE key = 'schema_version'"); err != nil {
		t.Fatal(err)
	}
	st.Close()

	if _, err := Open(dir, Options{Dimension: 4}); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestUpsertAndGetSkill(t *testing.T) {
	st := openTestStore(t)
	skill := testSkill("a", []float32{1, 0, 0, 0})

	if err := st.UpsertSkill(skill); err != nil {
		t.Fatalf("UpsertSkill failed: %v", err)
	}
	got, err := st.GetSkill("a")
	if err != nil {
		t.Fatalf("GetSkill failed: %v", err)
	}
	if got.Name != skill.Name || got.Description != skill.Description {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if len(got.Embedding) != 4 || got.Embedding[0] != 1 {
		t.Errorf("embedding round trip: %v", got.Embedding)
	}
	if got.ContentHash != "hash-a" {
		t.Errorf("content hash = %q", got.ContentHash)
	}
	if got.Frontmatter["name"] != "skill-a" {
		t.Errorf("frontmatter not preserved: %v", got.Frontmatter)
	}

	// File hash was written in the same transaction.
	fh, err := st.GetFileHash(skill.Path)
	if err != nil {
		t.Fatalf("GetFileHash failed: %v", err)
	}
	if fh.ContentHash != "hash-a" {
		t.Errorf("file hash = %q", fh.ContentHash)
	}
}

func TestGetSkillNotFound(t *testing.T) {
	st := openTestStore(t)
	if _, err := st.GetSkill("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListSkillsFilterBySource(t *testing.T) {
	st := openTestStore(t)
	a := testSkill("a", []float32{1, 0, 0, 0})
	b := testSkill("b", []float32{0, 1, 0, 0})
	b.Source = skills.SourceProject
	st.UpsertSkill(a)
	st.UpsertSkill(b)

	all, err := st.ListSkills("")
	if err != nil || len(all) != 2 {
		t.Fatalf("ListSkills all: %v, %d", err, len(all))
	}
	project, err := st.ListSkills(skills.SourceProject)
	if err != nil || len(project) != 1 || project[0].ID != "b" {
		t.Fatalf("ListSkills project: %v, %+v", err, project)
	}
}

func TestSearchByEmbeddingOrderAndTies(t *testing.T) {
	st := openTestStore(t)
	st.UpsertSkill(testSkill("b", []float32{1, 0, 0, 0}))
	st.UpsertSkill(testSkill("a", []float32{1, 0, 0, 0}))
	st.UpsertSkill(testSkill("c", []float32{0, 1, 0, 0}))

	results, err := st.SearchByEmbedding([]float32{1, 0, 0, 0}, 3)
	if err != nil {
		t.Fatalf("SearchByEmbedding failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	// a and b tie at similarity 1; id ascending breaks the tie.
	if results[0].Skill.ID != "a" || results[1].Skill.ID != "b" || results[2].Skill.ID != "c" {
		t.Errorf("order = %s, %s, %s", results[0].Skill.ID, results[1].Skill.ID, results[2].Skill.ID)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Similarity > results[i-1].Similarity {
			t.Errorf("similarity out of order at %d", i)
		}
	}
}

func TestSearchExcludesStubs(t *testing.T) {
	st := openTestStore(t)
	st.UpsertSkill(testSkill("real", []float32{1, 0, 0, 0}))
	st.UpsertSkill(testSkill("stub", nil))

	results, err := st.SearchByEmbedding([]float32{1, 0, 0, 0}, 10)
	if err != nil {
		t.Fatalf("SearchByEmbedding failed: %v", err)
	}
	if len(results) != 1 || results[0].Skill.ID != "real" {
		t.Fatalf("stub leaked into results: %+v", results)
	}
}

func TestSearchZeroK(t *testing.T) {
	st := openTestStore(t)
	results, err := st.SearchByEmbedding([]float32{1, 0, 0, 0}, 0)
	if err != nil || results != nil {
		t.Fatalf("k=0 must return empty without error: %v, %v", results, err)
	}
}

func TestDeleteSkillCascades(t *testing.T) {
	st := openTestStore(t)
	skill := testSkill("a", []float32{1, 0, 0, 0})
	st.UpsertSkill(skill)
	st.GetOrCreateSession("s1", "/ws")
	if err := st.SetActive("s1", "a", "test"); err != nil {
		t.Fatalf("SetActive failed: %v", err)
	}

	if err := st.DeleteSkill("a"); err != nil {
		t.Fatalf("DeleteSkill failed: %v", err)
	}
	if _, err := st.GetSkill("a"); !errors.Is(err, ErrNotFound) {
		t.Error("skill row survived delete")
	}
	active, _ := st.ActiveSkills("s1")
	if len(active) != 0 {
		t.Error("session skill not cascaded")
	}
	if _, err := st.GetFileHash(skill.Path); !errors.Is(err, ErrNotFound) {
		t.Error("file hash survived delete")
	}
}

func TestUpsertBatchAtomic(t *testing.T) {
	st := openTestStore(t)
	st.UpsertSkill(testSkill("old", []float32{1, 0, 0, 0}))

	batch := []Skill{
		testSkill("n1", []float32{0, 1, 0, 0}),
		testSkill("n2", []float32{0, 0, 1, 0}),
	}
	if err := st.UpsertSkillBatch(batch, []string{"old"}); err != nil {
		t.Fatalf("UpsertSkillBatch failed: %v", err)
	}
	all, _ := st.ListSkills("")
	if len(all) != 2 {
		t.Fatalf("expected 2 skills after batch, got %d", len(all))
	}
	if _, err := st.GetSkill("old"); !errors.Is(err, ErrNotFound) {
		t.Error("deletion in batch not applied")
	}
}

func TestSessionCreateAndTouch(t *testing.T) {
	st := openTestStore(t)
	s1, err := st.GetOrCreateSession("s1", "/ws")
	if err != nil {
		t.Fatalf("GetOrCreateSession failed: %v", err)
	}
	if s1.WorkspacePath != "/ws" {
		t.Errorf("workspace = %q", s1.WorkspacePath)
	}

	// Second call with a different workspace must not rewrite it.
	s2, err := st.GetOrCreateSession("s1", "/elsewhere")
	if err != nil {
		t.Fatalf("second GetOrCreateSession failed: %v", err)
	}
	if s2.WorkspacePath != "/ws" {
		t.Error("workspace path must be immutable")
	}
	if s2.LastActive.Before(s1.LastActive) {
		t.Error("last_active not bumped")
	}
}

func TestAppendLogSequences(t *testing.T) {
	st := openTestStore(t)
	st.GetOrCreateSession("s1", "/ws")

	for i := 1; i <= 3; i++ {
		msg, err := st.AppendLog(Message{SessionID: "s1", Role: RoleUser, EventType: "user_prompt", ContentPreview: "hi"})
		if err != nil {
			t.Fatalf("AppendLog failed: %v", err)
		}
		if msg.Sequence != i {
			t.Errorf("sequence = %d, want %d", msg.Sequence, i)
		}
	}

	// Another session starts at 1 again.
	msg, _ := st.AppendLog(Message{SessionID: "s2", Role: RoleUser, EventType: "user_prompt"})
	if msg.Sequence != 1 {
		t.Errorf("sequence for new session = %d", msg.Sequence)
	}
}

func TestRecentMessagesOrderAndLimit(t *testing.T) {
	st := openTestStore(t)
	previews := []string{"one", "two", "three", "four"}
	for _, p := range previews {
		st.AppendLog(Message{SessionID: "s1", Role: RoleUser, EventType: "user_prompt", ContentPreview: p})
	}

	msgs, err := st.RecentMessages("s1", 2)
	if err != nil {
		t.Fatalf("RecentMessages failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	// Oldest of the slice first.
	if msgs[0].ContentPreview != "three" || msgs[1].ContentPreview != "four" {
		t.Errorf("order = %q, %q", msgs[0].ContentPreview, msgs[1].ContentPreview)
	}
}

func TestRecentMessagesZeroCount(t *testing.T) {
	st := openTestStore(t)
	msgs, err := st.RecentMessages("s1", 0)
	if err != nil || msgs != nil {
		t.Fatalf("count=0 must return empty without error: %v, %v", msgs, err)
	}
}

func TestRecentToolEvents(t *testing.T) {
	st := openTestStore(t)
	st.AppendLog(Message{SessionID: "s1", Role: RoleUser, EventType: "user_prompt", ContentPreview: "hi"})
	st.AppendLog(Message{SessionID: "s1", Role: RoleTool, EventType: "post_tool_use", ToolName: "Bash", ContentPreview: "ls"})

	events, err := st.RecentToolEvents("s1", 10)
	if err != nil {
		t.Fatalf("RecentToolEvents failed: %v", err)
	}
	if len(events) != 1 || events[0].ToolName != "Bash" {
		t.Fatalf("tool filter wrong: %+v", events)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	st := openTestStore(t)
	in := Message{
		SessionID:        "s1",
		Role:             RoleUser,
		EventType:        "user_prompt",
		ContentPreview:   "write a migration",
		ContentEmbedding: []float32{0.5, 0.5, 0, 0},
		ActiveSkills:     []string{"a", "b"},
	}
	logged, err := st.AppendLog(in)
	if err != nil {
		t.Fatalf("AppendLog failed: %v", err)
	}

	msgs, _ := st.RecentMessages("s1", 1)
	if len(msgs) != 1 {
		t.Fatal("message not found")
	}
	got := msgs[0]
	if got.ContentPreview != in.ContentPreview || got.Sequence != logged.Sequence {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if len(got.ContentEmbedding) != 4 || got.ContentEmbedding[0] != 0.5 {
		t.Errorf("embedding round trip: %v", got.ContentEmbedding)
	}
	if len(got.ActiveSkills) != 2 || got.ActiveSkills[0] != "a" {
		t.Errorf("active snapshot round trip: %v", got.ActiveSkills)
	}
}

func TestSetActiveUnknownSkill(t *testing.T) {
	st := openTestStore(t)
	if err := st.SetActive("s1", "ghost", "r"); !errors.Is(err, ErrConstraintViolation) {
		t.Fatalf("expected ErrConstraintViolation, got %v", err)
	}
}

func TestSetActiveIdempotent(t *testing.T) {
	st := openTestStore(t)
	st.UpsertSkill(testSkill("a", []float32{1, 0, 0, 0}))

	if err := st.SetActive("s1", "a", "first"); err != nil {
		t.Fatal(err)
	}
	if err := st.SetActive("s1", "a", "second"); err != nil {
		t.Fatalf("re-activation must be a no-op, got %v", err)
	}
	active, _ := st.ActiveSkills("s1")
	if len(active) != 1 {
		t.Fatalf("expected 1 active skill, got %d", len(active))
	}
}

func TestSetInactive(t *testing.T) {
	st := openTestStore(t)
	st.UpsertSkill(testSkill("a", []float32{1, 0, 0, 0}))
	st.SetActive("s1", "a", "r")

	if err := st.SetInactive("s1", "a"); err != nil {
		t.Fatalf("SetInactive failed: %v", err)
	}
	active, _ := st.ActiveSkills("s1")
	if len(active) != 0 {
		t.Error("skill still active")
	}
	// Deactivating again is harmless.
	if err := st.SetInactive("s1", "a"); err != nil {
		t.Errorf("repeated SetInactive errored: %v", err)
	}
}

func TestStats(t *testing.T) {
	st := openTestStore(t)
	st.UpsertSkill(testSkill("a", []float32{1, 0, 0, 0}))
	st.UpsertSkill(testSkill("stub", nil))
	st.GetOrCreateSession("s1", "/ws")

	stats, err := st.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalSkills != 2 || stats.StubSkills != 1 || stats.SessionCount != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestLockTimeout(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(dir, Options{Dimension: 4, LockTimeout: 200 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	// Hold the advisory lock from a second handle; writes must time out.
	other := newFileLock(st.lock.path, time.Second)
	if err := other.Acquire(); err != nil {
		t.Fatalf("holder Acquire failed: %v", err)
	}
	defer other.Release()

	err = st.UpsertSkill(testSkill("a", []float32{1, 0, 0, 0}))
	if !errors.Is(err, ErrStoreBusy) {
		t.Fatalf("expected ErrStoreBusy, got %v", err)
	}

	other.Release()
	if err := st.UpsertSkill(testSkill("a", []float32{1, 0, 0, 0})); err != nil {
		t.Fatalf("write after release failed: %v", err)
	}
}

func TestVectorBlobRoundTrip(t *testing.T) {
	vec := []float32{0.1, -2.5, 3}
	got := deserializeVector(serializeVector(vec))
	if len(got) != 3 {
		t.Fatalf("round trip length %d", len(got))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("dim %d: %f != %f", i, got[i], vec[i])
		}
	}
	if deserializeVector(nil) != nil {
		t.Error("empty blob must deserialize to nil")
	}
}
