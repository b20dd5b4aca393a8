package wal

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// TestWAL_AppendReplay checks entries come back in append order with their
// payloads decompressed.
func TestWAL_AppendReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memtable.wal")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	for i := 0; i < 10; i++ {
		key := []byte(fmt.Sprintf("key-%d", i))
		payload := bytes.Repeat([]byte{byte(i)}, 100)
		if err := w.Append(key, payload, int64(1000+i)); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	entries, err := Replay(path)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if len(entries) != 10 {
		t.Fatalf("replayed %d entries, want 10", len(entries))
	}
	for i, e := range entries {
		if string(e.EncodedKey) != fmt.Sprintf("key-%d", i) {
			t.Errorf("entry %d key = %q", i, e.EncodedKey)
		}
		if !bytes.Equal(e.Payload, bytes.Repeat([]byte{byte(i)}, 100)) {
			t.Errorf("entry %d payload mangled", i)
		}
		if e.TimestampNanos != int64(1000+i) {
			t.Errorf("entry %d timestamp = %d", i, e.TimestampNanos)
		}
	}
}

// TestWAL_ReplayMissingFile treats an absent log as empty.
func TestWAL_ReplayMissingFile(t *testing.T) {
	entries, err := Replay(filepath.Join(t.TempDir(), "nope.wal"))
	if err != nil {
		t.Fatalf("Replay of missing file errored: %v", err)
	}
	if entries != nil {
		t.Errorf("expected no entries, got %d", len(entries))
	}
}

// TestWAL_CorruptTailStopsReplay damages the last entry; replay keeps
// everything before it.
func TestWAL_CorruptTailStopsReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memtable.wal")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := w.Append([]byte(fmt.Sprintf("k%d", i)), []byte("payload"), int64(i)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Flip a byte near the end of the file.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	data[len(data)-3] ^= 0xFF
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	entries, err := Replay(path)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if len(entries) != 4 {
		t.Errorf("replayed %d entries, want the 4 intact ones", len(entries))
	}
}

// TestWAL_TruncateEmptiesLog verifies the post-flush reset.
func TestWAL_TruncateEmptiesLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memtable.wal")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer w.Close()

	if err := w.Append([]byte("k"), []byte("v"), 1); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := w.Truncate(); err != nil {
		t.Fatalf("Truncate failed: %v", err)
	}

	entries, err := Replay(path)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("log still has %d entries after truncate", len(entries))
	}

	// The log must accept appends again after truncation.
	if err := w.Append([]byte("k2"), []byte("v2"), 2); err != nil {
		t.Fatalf("Append after truncate failed: %v", err)
	}
}

// TestWAL_ClosedRejectsAppend pins the closed-state error.
func TestWAL_ClosedRejectsAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memtable.wal")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := w.Append([]byte("k"), []byte("v"), 1); err != ErrClosed {
		t.Errorf("Append on closed log returned %v, want ErrClosed", err)
	}
}

// TestWAL_StatsTrackCompression checks the byte accounting moves.
func TestWAL_StatsTrackCompression(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memtable.wal")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer w.Close()

	// Highly repetitive payload compresses well.
	if err := w.Append([]byte("k"), bytes.Repeat([]byte("ab"), 4096), 1); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	appends, uncompressed, compressed := w.Stats()
	if appends != 1 {
		t.Errorf("appends = %d, want 1", appends)
	}
	if uncompressed != 8192 {
		t.Errorf("uncompressed = %d, want 8192", uncompressed)
	}
	if compressed == 0 || compressed >= uncompressed {
		t.Errorf("compressed = %d, expected between 1 and %d", compressed, uncompressed)
	}
}
