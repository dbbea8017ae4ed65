package policy

import (
	"context"
	"time"

	"impressionism/internal/config"
	"impressionism/internal/embedding"
	"impressionism/internal/logging"
	"impressionism/internal/policy/ruleapi"
	"impressionism/internal/store"
)

// bindAPI constructs the host API closure set for one evaluation. Every
// function is total: failures log and return empty values so scripts
// never observe host errors.
func bindAPI(ctx context.Context, st *store.Store, engine embedding.Engine, cfg *config.Config, ruleset string, session store.Session) *ruleapi.API {
	log := logging.Get(logging.CategoryPolicy)

	return &ruleapi.API{
		GetRecentMessages: func(sessionID string, count int) []ruleapi.Message {
			msgs, err := st.RecentMessages(sessionID, count)
			if err != nil {
				log.Warnf("get_recent_messages: %v", err)
				return nil
			}
			out := make([]ruleapi.Message, len(msgs))
			for i, m := range msgs {
				out[i] = ruleapi.Message{
					Role:      string(m.Role),
					Content:   m.ContentPreview,
					ToolName:  m.ToolName,
					Embedding: m.ContentEmbedding,
					Sequence:  m.Sequence,
				}
			}
			return out
		},

		GetRecentToolUse: func(sessionID string, count int) []ruleapi.ToolEvent {
			msgs, err := st.RecentToolEvents(sessionID, count)
			if err != nil {
				log.Warnf("get_recent_tool_use: %v", err)
				return nil
			}
			out := make([]ruleapi.ToolEvent, len(msgs))
			for i, m := range msgs {
				out[i] = ruleapi.ToolEvent{
					ToolName:         m.ToolName,
					ToolInputPreview: m.ContentPreview,
					LoggedAt:         m.LoggedAt.UTC().Format(time.RFC3339),
					Sequence:         m.Sequence,
				}
			}
			return out
		},

		GetActiveSkills: func(sessionID string) []ruleapi.SkillRecord {
			active, err := st.ActiveSkills(sessionID)
			if err != nil {
				log.Warnf("get_active_skills: %v", err)
				return nil
			}
			return toSkillRecords(active)
		},

		GetAllSkills: func() []ruleapi.SkillRecord {
			all, err := st.ListSkills("")
			if err != nil {
				log.Warnf("get_all_skills: %v", err)
				return nil
			}
			return toSkillRecords(all)
		},

		SearchSkills: func(query string, limit int) []ruleapi.SearchHit {
			vec, err := engine.Embed(ctx, query)
			if err != nil {
				log.Warnf("search_skills embed: %v", err)
				return nil
			}
			return searchHits(st, vec, limit, log)
		},

		SearchSkillsByEmbedding: func(vec []float32, limit int) []ruleapi.SearchHit {
			return searchHits(st, vec, limit, log)
		},

		EmbedText: func(text string) []float32 {
			vec, err := engine.Embed(ctx, text)
			if err != nil {
				log.Warnf("embed_text: %v", err)
				return nil
			}
			return vec
		},

		CosineSimilarity: embedding.Cosine,

		GetParam: func(name string, def interface{}) interface{} {
			return coerceParam(cfg.Param(ruleset, name, def), def)
		},

		GetSession: func() ruleapi.SessionInfo {
			return ruleapi.SessionInfo{
				SessionID:     session.SessionID,
				WorkspacePath: session.WorkspacePath,
				StartedAt:     session.StartedAt.UTC().Format(time.RFC3339),
			}
		},

		Log: func(level, message string) {
			switch level {
			case "debug":
				log.Debugf("[ruleset] %s", message)
			case "warn":
				log.Warnf("[ruleset] %s", message)
			case "error":
				log.Errorf("[ruleset] %s", message)
			default:
				log.Infof("[ruleset] %s", message)
			}
		},
	}
}

func searchHits(st *store.Store, vec []float32, limit int, log interface{ Warnf(string, ...interface{}) }) []ruleapi.SearchHit {
	results, err := st.SearchByEmbedding(vec, limit)
	if err != nil {
		log.Warnf("search_skills: %v", err)
		return nil
	}
	out := make([]ruleapi.SearchHit, len(results))
	for i, r := range results {
		out[i] = ruleapi.SearchHit{Skill: toSkillRecord(r.Skill), Similarity: r.Similarity}
	}
	return out
}

func toSkillRecords(rows []store.Skill) []ruleapi.SkillRecord {
	out := make([]ruleapi.SkillRecord, len(rows))
	for i, row := range rows {
		out[i] = toSkillRecord(row)
	}
	return out
}

func toSkillRecord(row store.Skill) ruleapi.SkillRecord {
	return ruleapi.SkillRecord{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		Keywords:    row.Keywords,
		Sticky:      row.Sticky,
		Embedding:   row.Embedding,
	}
}

// coerceParam shapes a configured value to the default's numeric type so
// scripts can type-assert against the default they passed. YAML decodes
// whole numbers as int, which would otherwise break float assertions.
func coerceParam(val, def interface{}) interface{} {
	switch def.(type) {
	case float64:
		switch v := val.(type) {
		case float64:
			return v
		case int:
			return float64(v)
		case int64:
			return float64(v)
		}
	case int:
		switch v := val.(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return val
}
