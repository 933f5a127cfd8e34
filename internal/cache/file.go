// Package cache stores completed analysis payloads on disk so reruns over
// the same corpus do not re-spend provider quota.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Entry is one cached analysis result.
type Entry struct {
	Payload  json.RawMessage `json:"payload"`
	Model    string          `json:"model"`
	CachedAt time.Time       `json:"cached_at"`
}

// FileCache provides TTL-based file caching keyed by task and record.
type FileCache struct {
	dir string
	ttl time.Duration
}

// New creates a new file cache.
func New(dir string, ttl time.Duration) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	return &FileCache{dir: dir, ttl: ttl}, nil
}

// Key derives the cache key for one (task, record) pair. The section text
// participates so edited sections re-run.
func Key(task, recordID, text string) string {
	h := sha256.Sum256([]byte(task + "\x00" + recordID + "\x00" + text))
	return hex.EncodeToString(h[:])
}

// Get retrieves a cached entry if it exists and hasn't expired.
func (c *FileCache) Get(key string) (*Entry, bool) {
	path := c.path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		os.Remove(path)
		return nil, false
	}

	if time.Since(entry.CachedAt) > c.ttl {
		return nil, false
	}

	return &entry, true
}

// Set stores an entry in the cache.
func (c *FileCache) Set(key string, entry *Entry) error {
	entry.CachedAt = time.Now()
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}
	return os.WriteFile(c.path(key), data, 0o644)
}

func (c *FileCache) path(key string) string {
	return filepath.Join(c.dir, key)
}
