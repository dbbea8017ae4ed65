// Package hooks adapts host lifecycle events to the internal pipeline.
// Events arrive as JSON on stdin; responses leave as JSON on stdout. All
// diagnostics go to stderr so the host never sees a malformed payload.
package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"impressionism/internal/config"
	"impressionism/internal/embedding"
	"impressionism/internal/logging"
	"impressionism/internal/policy/ruleapi"
	"impressionism/internal/store"
)

// Payload is the host-provided event. Unknown fields are ignored.
type Payload struct {
	SessionID     string          `json:"session_id"`
	Cwd           string          `json:"cwd"`
	HookEventName string          `json:"hook_event_name"`
	UserPrompt    string          `json:"user_prompt,omitempty"`
	ToolName      string          `json:"tool_name,omitempty"`
	ToolInput     json.RawMessage `json:"tool_input,omitempty"`
}

// ReadPayload decodes a payload from stdin. An empty stream yields an
// empty payload so flag-only invocations still work.
func ReadPayload(r io.Reader) (*Payload, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read event payload: %w", err)
	}
	payload := &Payload{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, fmt.Errorf("decode event payload: %w", err)
	}
	return payload, nil
}

// NormalizeEvent maps host hook names to the internal enumeration.
func NormalizeEvent(name string) (string, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.ReplaceAll(name, "-", ""), "_", "")) {
	case "sessionstart":
		return ruleapi.EventSessionStart, nil
	case "userpromptsubmit", "userprompt":
		return ruleapi.EventUserPrompt, nil
	case "posttooluse", "tooluse":
		return ruleapi.EventPostToolUse, nil
	case "stop", "sessionend":
		return ruleapi.EventStop, nil
	default:
		return "", fmt.Errorf("unknown hook event %q", name)
	}
}

// EvalContext builds the ruleset evaluation context from a payload.
func (p *Payload) EvalContext(sessionID, workspace, event string) ruleapi.Context {
	return ruleapi.Context{
		SessionID:     sessionID,
		WorkspacePath: workspace,
		HookEvent:     event,
		UserPrompt:    p.UserPrompt,
		ToolName:      p.ToolName,
	}
}

// selectResponse is the stdout shape for the select command.
type selectResponse struct {
	HookSpecificOutput hookSpecificOutput `json:"hookSpecificOutput"`
}

type hookSpecificOutput struct {
	HookEventName     string `json:"hookEventName"`
	AdditionalContext string `json:"additionalContext"`
}

// WriteSelectResponse emits the select response. An empty context still
// produces a well-formed object.
func WriteSelectResponse(w io.Writer, hookEventName, additionalContext string) error {
	return json.NewEncoder(w).Encode(selectResponse{
		HookSpecificOutput: hookSpecificOutput{
			HookEventName:     hookEventName,
			AdditionalContext: additionalContext,
		},
	})
}

// WriteEmpty emits the empty-object response used on pipeline errors.
func WriteEmpty(w io.Writer) {
	fmt.Fprintln(w, "{}")
}

// BuildLogMessage assembles the message-log entry for an event. The
// active-skills snapshot is taken before the append so it reflects the
// set at the moment the call began. User content is embedded by default;
// tool previews only when configured.
func BuildLogMessage(ctx context.Context, payload *Payload, event string, cfg *config.Config, engine embedding.Engine, st *store.Store) (store.Message, bool, error) {
	log := logging.Get(logging.CategorySession)

	msg := store.Message{
		SessionID: payload.SessionID,
		EventType: event,
	}

	switch event {
	case ruleapi.EventUserPrompt:
		msg.Role = store.RoleUser
		msg.ContentPreview = truncate(payload.UserPrompt, config.DefaultPreviewChars)
	case ruleapi.EventPostToolUse:
		if !cfg.Logging.ToolUse.Allows(payload.ToolName) {
			log.Debugf("tool %q filtered by logging.tool_use", payload.ToolName)
			return store.Message{}, false, nil
		}
		msg.Role = store.RoleTool
		msg.ToolName = payload.ToolName
		msg.ContentPreview = truncate(toolPreview(payload, cfg.Logging.ToolFields), config.DefaultPreviewChars)
	default:
		msg.Role = store.RoleAssistant
	}

	snapshot, err := st.ActiveSkillIDs(payload.SessionID)
	if err != nil {
		return store.Message{}, false, err
	}
	msg.ActiveSkills = snapshot

	embedIt := msg.Role == store.RoleUser ||
		(msg.Role == store.RoleTool && cfg.Logging.EmbedToolUse)
	if embedIt && msg.ContentPreview != "" {
		vec, err := engine.Embed(ctx, msg.ContentPreview)
		if err != nil {
			log.Warnf("log embedding skipped: %v", err)
		} else {
			msg.ContentEmbedding = vec
		}
	}
	return msg, true, nil
}

// toolPreview renders the configured tool_input fields as a compact
// preview string.
func toolPreview(payload *Payload, fields []string) string {
	parts := []string{payload.ToolName}
	if len(payload.ToolInput) == 0 {
		return payload.ToolName
	}
	var input map[string]interface{}
	if err := json.Unmarshal(payload.ToolInput, &input); err != nil {
		return payload.ToolName
	}
	for _, field := range fields {
		if field == "tool_name" {
			continue
		}
		if v, ok := input[field]; ok {
			parts = append(parts, fmt.Sprintf("%s=%v", field, v))
		}
	}
	return strings.Join(parts, " ")
}

func truncate(s string, limit int) string {
	if limit > 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}
