package store

import (
	"time"

	"impressionism/internal/skills"
)

// Skill is a catalog row for an indexed skill document. An empty
// Embedding marks a stub; stubs never appear in similarity results.
type Skill struct {
	ID          string
	Name        string
	Path        string
	Description string
	Keywords    []string
	Sticky      bool
	Embedding   []float32
	Frontmatter map[string]interface{}
	ContentHash string
	IndexedAt   time.Time
	Source      skills.Source
}

// FileHash tracks the content hash last seen for a path, used to
// short-circuit re-indexing.
type FileHash struct {
	Path        string
	ContentHash string
	LastChecked time.Time
}

// Session is a host-supplied conversation session. The workspace path is
// immutable once the session row exists.
type Session struct {
	SessionID     string
	WorkspacePath string
	StartedAt     time.Time
	LastActive    time.Time
}

// MessageRole is the author of a logged message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleTool      MessageRole = "tool"
)

// Message is one append-only log entry. (SessionID, Sequence) is unique
// and dense within a session.
type Message struct {
	SessionID        string
	Sequence         int
	Role             MessageRole
	EventType        string
	ToolName         string
	ContentPreview   string
	ContentEmbedding []float32
	ActiveSkills     []string
	LoggedAt         time.Time
}

// SessionSkill marks a skill as active for a session.
type SessionSkill struct {
	SessionID        string
	SkillID          string
	ActivatedAt      time.Time
	ActivationReason string
}

// SearchResult pairs a skill with its cosine similarity to a query.
type SearchResult struct {
	Skill      Skill
	Similarity float64
}
