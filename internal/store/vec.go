package store

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"

	"impressionism/internal/logging"
)

// detectVecExtension probes for sqlite-vec and, when present, creates the
// vec0 virtual table that mirrors skill_index embeddings for KNN search.
func (s *Store) detectVecExtension() {
	log := logging.Get(logging.CategoryStore)

	var version string
	if err := s.db.QueryRow("SELECT vec_version()").Scan(&version); err != nil {
		log.Debugf("sqlite-vec not available, using brute-force cosine scan: %v", err)
		s.vectorExt = false
		return
	}

	ddl := fmt.Sprintf(
		"CREATE VIRTUAL TABLE IF NOT EXISTS skill_vec USING vec0(skill_id TEXT PRIMARY KEY, embedding float[%d] distance_metric=cosine)",
		s.dimension,
	)
	if _, err := s.db.Exec(ddl); err != nil {
		log.Warnf("sqlite-vec present (%s) but vec0 table creation failed: %v", version, err)
		s.vectorExt = false
		return
	}
	s.vectorExt = true
	log.Debugf("sqlite-vec %s enabled", version)
}

// serializeVector encodes a float32 slice as the little-endian blob
// format shared by sqlite-vec and the brute-force path. Nil input yields
// an empty blob, which marks a stub row.
func serializeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// deserializeVector decodes the blob back to float32s.
func deserializeVector(buf []byte) []float32 {
	if len(buf) < 4 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

// syncVecRow keeps the vec0 mirror in step with a skill row inside the
// same transaction as the relational write.
func (s *Store) syncVecRow(tx *sql.Tx, id string, embedding []float32) error {
	if !s.vectorExt {
		return nil
	}
	if _, err := tx.Exec("DELETE FROM skill_vec WHERE skill_id = ?", id); err != nil {
		return fmt.Errorf("clear vec row: %w", err)
	}
	if len(embedding) == 0 {
		return nil
	}
	if _, err := tx.Exec(
		"INSERT INTO skill_vec (skill_id, embedding) VALUES (?, ?)",
		id, serializeVector(embedding),
	); err != nil {
		return fmt.Errorf("insert vec row: %w", err)
	}
	return nil
}
