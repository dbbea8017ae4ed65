package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// GetOrCreateSession returns the session row, creating it on first
// reference. last_active is bumped either way. The workspace path is
// immutable after creation.
func (s *Store) GetOrCreateSession(sessionID, workspace string) (Session, error) {
	var session Session
	err := s.withWriteLock(func(tx *sql.Tx) error {
		now := time.Now().UTC()
		err := tx.QueryRow(
			"SELECT session_id, workspace_path, started_at, last_active FROM sessions WHERE session_id = ?",
			sessionID,
		).Scan(&session.SessionID, &session.WorkspacePath, &session.StartedAt, &session.LastActive)

		switch {
		case err == sql.ErrNoRows:
			session = Session{SessionID: sessionID, WorkspacePath: workspace, StartedAt: now, LastActive: now}
			_, err = tx.Exec(
				"INSERT INTO sessions (session_id, workspace_path, started_at, last_active) VALUES (?, ?, ?, ?)",
				sessionID, workspace, now, now,
			)
			return err
		case err != nil:
			return fmt.Errorf("get session %s: %w", sessionID, err)
		}

		session.LastActive = time.Now().UTC()
		_, err = tx.Exec("UPDATE sessions SET last_active = ? WHERE session_id = ?", session.LastActive, sessionID)
		return err
	})
	return session, err
}

// GetSession fetches a session without creating it.
func (s *Store) GetSession(sessionID string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var session Session
	err := s.db.QueryRow(
		"SELECT session_id, workspace_path, started_at, last_active FROM sessions WHERE session_id = ?",
		sessionID,
	).Scan(&session.SessionID, &session.WorkspacePath, &session.StartedAt, &session.LastActive)
	if err == sql.ErrNoRows {
		return Session{}, ErrNotFound
	}
	return session, err
}

// AppendLog writes one message log entry, allocating the next sequence
// number in the same transaction. Sequences are dense per session and
// never reused.
func (s *Store) AppendLog(msg Message) (Message, error) {
	err := s.withWriteLock(func(tx *sql.Tx) error {
		var maxSeq sql.NullInt64
		if err := tx.QueryRow(
			"SELECT MAX(sequence) FROM message_log WHERE session_id = ?", msg.SessionID,
		).Scan(&maxSeq); err != nil {
			return fmt.Errorf("next sequence for %s: %w", msg.SessionID, err)
		}
		msg.Sequence = int(maxSeq.Int64) + 1
		if msg.LoggedAt.IsZero() {
			msg.LoggedAt = time.Now().UTC()
		}

		activeJSON, _ := json.Marshal(msg.ActiveSkills)
		_, err := tx.Exec(`
			INSERT INTO message_log
			(session_id, sequence, role, event_type, tool_name, content_preview, content_embedding, active_skills, logged_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			msg.SessionID, msg.Sequence, string(msg.Role), msg.EventType,
			nullable(msg.ToolName), nullable(msg.ContentPreview),
			serializeVector(msg.ContentEmbedding), string(activeJSON), msg.LoggedAt.UTC(),
		)
		if err != nil && strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("%w: duplicate sequence %d for session %s", ErrConstraintViolation, msg.Sequence, msg.SessionID)
		}
		return err
	})
	return msg, err
}

// RecentMessages returns the last count entries in session order, oldest
// of the slice first. count <= 0 yields an empty slice.
func (s *Store) RecentMessages(sessionID string, count int) ([]Message, error) {
	return s.recentMessages(sessionID, count, "")
}

// RecentToolEvents is RecentMessages filtered to tool-role entries.
func (s *Store) RecentToolEvents(sessionID string, count int) ([]Message, error) {
	return s.recentMessages(sessionID, count, string(RoleTool))
}

func (s *Store) recentMessages(sessionID string, count int, role string) ([]Message, error) {
	if count <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT session_id, sequence, role, event_type, tool_name, content_preview, content_embedding, active_skills, logged_at
		FROM message_log WHERE session_id = ?`
	args := []interface{}{sessionID}
	if role != "" {
		query += " AND role = ?"
		args = append(args, role)
	}
	query += " ORDER BY sequence DESC LIMIT ?"
	args = append(args, count)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			msg           Message
			role          string
			toolName      sql.NullString
			preview       sql.NullString
			embeddingBlob []byte
			activeJSON    sql.NullString
		)
		if err := rows.Scan(
			&msg.SessionID, &msg.Sequence, &role, &msg.EventType,
			&toolName, &preview, &embeddingBlob, &activeJSON, &msg.LoggedAt,
		); err != nil {
			return nil, err
		}
		msg.Role = MessageRole(role)
		msg.ToolName = toolName.String
		msg.ContentPreview = preview.String
		msg.ContentEmbedding = deserializeVector(embeddingBlob)
		if activeJSON.Valid && activeJSON.String != "" {
			json.Unmarshal([]byte(activeJSON.String), &msg.ActiveSkills)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query returned newest-first; callers want oldest-first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ActiveSkills returns the session's active skills joined with their full
// catalog rows, ordered by activation time then id.
func (s *Store) ActiveSkills(sessionID string) ([]Skill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(selectSkillColumns+`
		FROM skill_index
		JOIN session_skills ON session_skills.skill_id = skill_index.id
		WHERE session_skills.session_id = ?
		ORDER BY session_skills.activated_at, skill_index.id`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("active skills: %w", err)
	}
	defer rows.Close()

	var out []Skill
	for rows.Next() {
		skill, err := scanSkill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, skill)
	}
	return out, rows.Err()
}

// ActiveSkillIDs returns just the ids of the active set.
func (s *Store) ActiveSkillIDs(sessionID string) ([]string, error) {
	skills, err := s.ActiveSkills(sessionID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(skills))
	for i, skill := range skills {
		ids[i] = skill.ID
	}
	return ids, nil
}

// SetActive marks a skill active for a session. Re-activating is a
// no-op that preserves the original activation time and reason.
func (s *Store) SetActive(sessionID, skillID, reason string) error {
	return s.withWriteLock(func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRow("SELECT COUNT(*) FROM skill_index WHERE id = ?", skillID).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("%w: skill %s not in catalog", ErrConstraintViolation, skillID)
		}
		_, err := tx.Exec(`
			INSERT OR IGNORE INTO session_skills (session_id, skill_id, activated_at, activation_reason)
			VALUES (?, ?, ?, ?)`,
			sessionID, skillID, time.Now().UTC(), reason,
		)
		return err
	})
}

// SetInactive removes a skill from the session's active set.
func (s *Store) SetInactive(sessionID, skillID string) error {
	return s.withWriteLock(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			"DELETE FROM session_skills WHERE session_id = ? AND skill_id = ?",
			sessionID, skillID,
		)
		return err
	})
}

// Stats summarizes the catalog for the status command.
type Stats struct {
	SkillsBySource map[string]int
	StubSkills     int
	TotalSkills    int
	LastIndexedAt  time.Time
	SessionCount   int
}

// Stats gathers catalog summary counters.
func (s *Store) Stats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{SkillsBySource: make(map[string]int)}

	rows, err := s.db.Query("SELECT source, COUNT(*) FROM skill_index GROUP BY source")
	if err != nil {
		return stats, err
	}
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			rows.Close()
			return stats, err
		}
		stats.SkillsBySource[source] = n
		stats.TotalSkills += n
	}
	rows.Close()

	if err := s.db.QueryRow("SELECT COUNT(*) FROM skill_index WHERE length(embedding) = 0 OR embedding IS NULL").Scan(&stats.StubSkills); err != nil {
		return stats, err
	}
	var last sql.NullTime
	if err := s.db.QueryRow("SELECT MAX(indexed_at) FROM skill_index").Scan(&last); err == nil && last.Valid {
		stats.LastIndexedAt = last.Time
	}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&stats.SessionCount); err != nil {
		return stats, err
	}
	return stats, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
