package cache

import (
	"encoding/json"
	"os"
	"testing"
	"time"
)

func writeRaw(c *FileCache, key, body string) error {
	return os.WriteFile(c.path(key), []byte(body), 0o644)
}

func TestKeyDeterministic(t *testing.T) {
	a := Key("reporting", "7-101", "The board shall submit...")
	b := Key("reporting", "7-101", "The board shall submit...")
	if a != b {
		t.Error("same inputs must hash to the same key")
	}

	if a == Key("anachronism", "7-101", "The board shall submit...") {
		t.Error("task must participate in the key")
	}
	if a == Key("reporting", "7-101", "The board shall submit a revised...") {
		t.Error("section text must participate in the key")
	}
}

func TestRoundTrip(t *testing.T) {
	c, err := New(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	key := Key("reporting", "7-101", "text")
	if _, ok := c.Get(key); ok {
		t.Fatal("expected miss before Set")
	}

	payload := json.RawMessage(`{"has_reporting":true}`)
	if err := c.Set(key, &Entry{Payload: payload, Model: "gemini/flash"}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	entry, ok := c.Get(key)
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if string(entry.Payload) != string(payload) {
		t.Errorf("expected payload %s, got %s", payload, entry.Payload)
	}
	if entry.Model != "gemini/flash" {
		t.Errorf("expected model attribution, got %q", entry.Model)
	}
	if entry.CachedAt.IsZero() {
		t.Error("expected CachedAt to be stamped on Set")
	}
}

func TestExpiry(t *testing.T) {
	c, err := New(t.TempDir(), time.Nanosecond)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	key := Key("complexity", "1", "text")
	if err := c.Set(key, &Entry{Payload: json.RawMessage(`{"score":1}`), Model: "m"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(time.Millisecond)

	if _, ok := c.Get(key); ok {
		t.Error("expected expired entry to miss")
	}
}

func TestCorruptEntryIsDropped(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, time.Hour)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	key := Key("reporting", "2", "text")
	if err := c.Set(key, &Entry{Payload: json.RawMessage(`{}`), Model: "m"}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	// Truncate the file behind the cache's back.
	if err := writeRaw(c, key, "{broken"); err != nil {
		t.Fatalf("corrupting entry: %v", err)
	}

	if _, ok := c.Get(key); ok {
		t.Error("expected corrupt entry to miss")
	}
	// A second read should miss cleanly too: the corrupt file was removed.
	if _, ok := c.Get(key); ok {
		t.Error("expected corrupt entry to stay gone")
	}
}
