package skills

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// HashContent returns the hex SHA-256 of file bytes. Matching hashes let
// the indexer skip re-parsing and re-embedding unchanged files.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// IDForPath derives a stable skill id from the canonical absolute path.
func IDForPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	abs = filepath.Clean(abs)
	sum := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(sum[:16])
}

// CanonicalPath normalizes a path the way IDForPath does.
func CanonicalPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return filepath.Clean(abs)
}
