package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"impressionism/internal/embedding"
	"impressionism/internal/skills"
)

// UpsertSkill inserts or replaces one skill and its file hash atomically.
func (s *Store) UpsertSkill(skill Skill) error {
	return s.withWriteLock(func(tx *sql.Tx) error {
		return s.upsertSkillTx(tx, skill)
	})
}

// UpsertSkillBatch applies a whole indexing pass in one transaction:
// readers see either none or all of the batch. deletions lists skill ids
// whose source files vanished.
func (s *Store) UpsertSkillBatch(batch []Skill, deletions []string) error {
	return s.withWriteLock(func(tx *sql.Tx) error {
		for _, skill := range batch {
			if err := s.upsertSkillTx(tx, skill); err != nil {
				return err
			}
		}
		for _, id := range deletions {
			if err := s.deleteSkillTx(tx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) upsertSkillTx(tx *sql.Tx, skill Skill) error {
	keywordsJSON, _ := json.Marshal(skill.Keywords)
	frontmatterJSON, _ := json.Marshal(skill.Frontmatter)

	_, err := tx.Exec(`
		INSERT OR REPLACE INTO skill_index
		(id, name, path, description, keywords, sticky, embedding, frontmatter, content_hash, indexed_at, source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		skill.ID, skill.Name, skill.Path, skill.Description,
		string(keywordsJSON), boolToInt(skill.Sticky),
		serializeVector(skill.Embedding), string(frontmatterJSON),
		skill.ContentHash, skill.IndexedAt.UTC(), string(skill.Source),
	)
	if err != nil {
		return fmt.Errorf("upsert skill %s: %w", skill.ID, err)
	}
	if err := s.syncVecRow(tx, skill.ID, skill.Embedding); err != nil {
		return err
	}
	_, err = tx.Exec(`
		INSERT OR REPLACE INTO file_hashes (path, content_hash, last_checked)
		VALUES (?, ?, ?)`,
		skill.Path, skill.ContentHash, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert file hash %s: %w", skill.Path, err)
	}
	return nil
}

// DeleteSkill removes a skill, its vec mirror, its file hash, and any
// session activations.
func (s *Store) DeleteSkill(id string) error {
	return s.withWriteLock(func(tx *sql.Tx) error {
		return s.deleteSkillTx(tx, id)
	})
}

func (s *Store) deleteSkillTx(tx *sql.Tx, id string) error {
	var path string
	err := tx.QueryRow("SELECT path FROM skill_index WHERE id = ?", id).Scan(&path)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup skill %s: %w", id, err)
	}
	if _, err := tx.Exec("DELETE FROM session_skills WHERE skill_id = ?", id); err != nil {
		return fmt.Errorf("cascade session skills for %s: %w", id, err)
	}
	if _, err := tx.Exec("DELETE FROM skill_index WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete skill %s: %w", id, err)
	}
	if s.vectorExt {
		if _, err := tx.Exec("DELETE FROM skill_vec WHERE skill_id = ?", id); err != nil {
			return fmt.Errorf("delete vec row %s: %w", id, err)
		}
	}
	if _, err := tx.Exec("DELETE FROM file_hashes WHERE path = ?", path); err != nil {
		return fmt.Errorf("delete file hash %s: %w", path, err)
	}
	return nil
}

// GetSkill fetches one skill by id.
func (s *Store) GetSkill(id string) (Skill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(selectSkillColumns+" FROM skill_index WHERE id = ?", id)
	skill, err := scanSkill(row)
	if err == sql.ErrNoRows {
		return Skill{}, ErrNotFound
	}
	return skill, err
}

// ListSkills enumerates skills, optionally filtered by source bucket
// (empty source means all). Ordered by name for stable output.
func (s *Store) ListSkills(source skills.Source) ([]Skill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := selectSkillColumns + " FROM skill_index"
	args := []interface{}{}
	if source != "" {
		query += " WHERE source = ?"
		args = append(args, string(source))
	}
	query += " ORDER BY name, id"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list skills: %w", err)
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

// SearchByEmbedding returns the top-k skills by cosine similarity to the
// query vector. Stub rows (empty embedding) are excluded; ties break by
// id ascending.
func (s *Store) SearchByEmbedding(query []float32, k int) ([]SearchResult, error) {
	if k <= 0 || len(query) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.vectorExt {
		return s.searchVec(query, k)
	}
	return s.searchBruteForce(query, k)
}

func (s *Store) searchVec(query []float32, k int) ([]SearchResult, error) {
	rows, err := s.db.Query(`
		SELECT skill_id, distance FROM skill_vec
		WHERE embedding MATCH ? AND k = ?
		ORDER BY distance`,
		serializeVector(query), k,
	)
	if err != nil {
		return nil, fmt.Errorf("vec search: %w", err)
	}
	defer rows.Close()

	type hit struct {
		id       string
		distance float64
	}
	var hits []hit
	for rows.Next() {
		var h hit
		if err := rows.Scan(&h.id, &h.distance); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		skill, err := s.getSkillUnlocked(h.id)
		if err != nil {
			continue
		}
		results = append(results, SearchResult{Skill: skill, Similarity: 1 - h.distance})
	}
	sortResults(results)
	return results, nil
}

func (s *Store) searchBruteForce(query []float32, k int) ([]SearchResult, error) {
	rows, err := s.db.Query(selectSkillColumns + " FROM skill_index WHERE length(embedding) > 0 ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("scan skills: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		skill, err := scanSkill(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, SearchResult{
			Skill:      skill,
			Similarity: embedding.Cosine(query, skill.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func sortResults(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Skill.ID < results[j].Skill.ID
	})
}

func (s *Store) getSkillUnlocked(id string) (Skill, error) {
	row := s.db.QueryRow(selectSkillColumns+" FROM skill_index WHERE id = ?", id)
	return scanSkill(row)
}

// GetFileHash looks up the recorded hash for a path.
func (s *Store) GetFileHash(path string) (FileHash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var fh FileHash
	err := s.db.QueryRow(
		"SELECT path, content_hash, last_checked FROM file_hashes WHERE path = ?", path,
	).Scan(&fh.Path, &fh.ContentHash, &fh.LastChecked)
	if err == sql.ErrNoRows {
		return FileHash{}, ErrNotFound
	}
	if err != nil {
		return FileHash{}, fmt.Errorf("get file hash %s: %w", path, err)
	}
	return fh, nil
}

// PutFileHash records the hash for a path.
func (s *Store) PutFileHash(path, hash string) error {
	return s.withWriteLock(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			"INSERT OR REPLACE INTO file_hashes (path, content_hash, last_checked) VALUES (?, ?, ?)",
			path, hash, time.Now().UTC(),
		)
		return err
	})
}

// AllFileHashPaths returns every tracked path, for vanished-file
// detection at the end of a full pass.
func (s *Store) AllFileHashPaths() (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT path, content_hash FROM file_hashes")
	if err != nil {
		return nil, fmt.Errorf("list file hashes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, err
		}
		out[path] = hash
	}
	return out, rows.Err()
}

// SkillIDForPath maps a canonical path to its skill row id, if indexed.
func (s *Store) SkillIDForPath(path string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var id string
	err := s.db.QueryRow("SELECT id FROM skill_index WHERE path = ?", path).Scan(&id)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return id, err
}

const selectSkillColumns = `SELECT id, name, path, description, keywords, sticky, embedding, frontmatter, content_hash, indexed_at, source`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSkill(row rowScanner) (Skill, error) {
	var (
		skill           Skill
		keywordsJSON    sql.NullString
		frontmatterJSON sql.NullString
		description     sql.NullString
		embeddingBlob   []byte
		sticky          int
		source          string
	)
	err := row.Scan(
		&skill.ID, &skill.Name, &skill.Path, &description,
		&keywordsJSON, &sticky, &embeddingBlob, &frontmatterJSON,
		&skill.ContentHash, &skill.IndexedAt, &source,
	)
	if err != nil {
		return Skill{}, err
	}
	skill.Description = description.String
	skill.Sticky = sticky != 0
	skill.Embedding = deserializeVector(embeddingBlob)
	skill.Source = skills.Source(source)
	if keywordsJSON.Valid && keywordsJSON.String != "" {
		json.Unmarshal([]byte(keywordsJSON.String), &skill.Keywords)
	}
	if frontmatterJSON.Valid && frontmatterJSON.String != "" {
		json.Unmarshal([]byte(frontmatterJSON.String), &skill.Frontmatter)
	}
	return skill, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
