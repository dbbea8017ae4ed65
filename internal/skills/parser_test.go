package skills

import (
	"errors"
	"strings"
	"testing"
)

const validSkill = `---
name: db-helper
description: database migration helpers
keywords:
  - database
  - sql
sticky: true
version: "2"
---

# Database Helper

Run migrations carefully.
`

func TestParseValidSkill(t *testing.T) {
	doc, err := Parse("/tmp/SKILL.md", []byte(validSkill))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if doc.Name != "db-helper" {
		t.Errorf("name = %q", doc.Name)
	}
	if doc.Description != "database migration helpers" {
		t.Errorf("description = %q", doc.Description)
	}
	if len(doc.Keywords) != 2 || doc.Keywords[0] != "database" {
		t.Errorf("keywords = %v", doc.Keywords)
	}
	if !doc.Sticky {
		t.Error("sticky not parsed")
	}
	if doc.Frontmatter["version"] != "2" {
		t.Errorf("extra preamble key not preserved: %v", doc.Frontmatter)
	}
	if !strings.HasPrefix(doc.Body, "# Database Helper") {
		t.Errorf("body = %q", doc.Body)
	}
}

func TestParseMissingName(t *testing.T) {
	content := "---\ndescription: something\n---\nbody\n"
	_, err := Parse("/tmp/SKILL.md", []byte(content))
	if err == nil {
		t.Fatal("expected error for missing name")
	}
	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if parseErr.Path != "/tmp/SKILL.md" {
		t.Errorf("path = %q", parseErr.Path)
	}
}

func TestParseMissingDescription(t *testing.T) {
	content := "---\nname: x\n---\nbody\n"
	if _, err := Parse("/tmp/SKILL.md", []byte(content)); err == nil {
		t.Fatal("expected error for missing description")
	}
}

func TestParseNoFrontmatter(t *testing.T) {
	if _, err := Parse("/tmp/SKILL.md", []byte("# just markdown\n")); err == nil {
		t.Fatal("expected error for missing preamble")
	}
}

func TestEmbeddingTextTruncation(t *testing.T) {
	doc := &Document{
		Name:        "n",
		Description: "d",
		Body:        strings.Repeat("x", 100),
	}
	text := doc.EmbeddingText(10)
	want := "n\nd\n" + strings.Repeat("x", 10)
	if text != want {
		t.Errorf("truncated text = %q, want %q", text, want)
	}
	// Deterministic: same input, same output.
	if doc.EmbeddingText(10) != text {
		t.Error("truncation not deterministic")
	}
}

func TestHashContentStable(t *testing.T) {
	a := HashContent([]byte("hello"))
	b := HashContent([]byte("hello"))
	if a != b {
		t.Error("hash not stable")
	}
	if a == HashContent([]byte("hello!")) {
		t.Error("different content must hash differently")
	}
	if len(a) != 64 {
		t.Errorf("expected hex sha256, got %d chars", len(a))
	}
}

func TestIDForPathStable(t *testing.T) {
	a := IDForPath("/skills/db/SKILL.md")
	b := IDForPath("/skills/db/../db/SKILL.md")
	if a != b {
		t.Error("id must be stable under path normalization")
	}
	if a == IDForPath("/skills/net/SKILL.md") {
		t.Error("distinct paths must get distinct ids")
	}
}
