// Package ruleapi defines the types a ruleset script programs against.
// Rulesets are interpreted Go files that import this package and define
//
//	func EvaluateActivation(ctx ruleapi.Context, api *ruleapi.API) []ruleapi.Decision
//	func EvaluateDeactivation(ctx ruleapi.Context, api *ruleapi.API) []ruleapi.Decision
//
// A []string return (plain skill ids) is also accepted.
package ruleapi

// Hook event names passed in Context.HookEvent.
const (
	EventSessionStart = "session_start"
	EventUserPrompt   = "user_prompt"
	EventPostToolUse  = "post_tool_use"
	EventStop         = "stop"
)

// Context is the evaluation context handed to ruleset entry points.
type Context struct {
	SessionID     string
	WorkspacePath string
	HookEvent     string

	// UserPrompt is set for user_prompt events.
	UserPrompt string

	// ToolName is set for post_tool_use events.
	ToolName string
}

// Decision names a skill to activate or deactivate, with an optional
// human-readable reason.
type Decision struct {
	SkillID string
	Reason  string
}

// Message is one conversation log entry, oldest-to-newest in the slices
// returned by GetRecentMessages.
type Message struct {
	Role      string
	Content   string
	ToolName  string
	Embedding []float32
	Sequence  int
}

// ToolEvent is a tool-filtered log entry.
type ToolEvent struct {
	ToolName         string
	ToolInputPreview string
	LoggedAt         string
	Sequence         int
}

// SkillRecord is a full catalog skill as seen by scripts.
type SkillRecord struct {
	ID          string
	Name        string
	Description string
	Keywords    []string
	Sticky      bool
	Embedding   []float32
}

// SearchHit pairs a skill with its similarity to a query.
type SearchHit struct {
	Skill      SkillRecord
	Similarity float64
}

// SessionInfo describes the current session.
type SessionInfo struct {
	SessionID     string
	WorkspacePath string
	StartedAt     string
}

// API is the host surface bound into every evaluation. All functions are
// total: query failures surface as empty results, never as panics into
// the script.
type API struct {
	GetRecentMessages       func(sessionID string, count int) []Message
	GetRecentToolUse        func(sessionID string, count int) []ToolEvent
	GetActiveSkills         func(sessionID string) []SkillRecord
	GetAllSkills            func() []SkillRecord
	SearchSkills            func(query string, limit int) []SearchHit
	SearchSkillsByEmbedding func(vec []float32, limit int) []SearchHit
	EmbedText               func(text string) []float32
	CosineSimilarity        func(a, b []float32) float64
	GetParam                func(name string, def interface{}) interface{}
	GetSession              func() SessionInfo
	Log                     func(level, message string)
}
