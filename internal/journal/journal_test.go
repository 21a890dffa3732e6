package journal

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestAppendCapsAtMaxEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.json")

	j, err := Load(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < MaxEntries+5; i++ {
		j.Append("entry", base.Add(time.Duration(i)*time.Minute))
	}

	if len(j.Entries()) != MaxEntries {
		t.Fatalf("expected %d entries, got %d", MaxEntries, len(j.Entries()))
	}
}

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missing.json")

	j, err := Load(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(j.Entries()) != 0 {
		t.Fatalf("expected empty journal for missing file")
	}
}

func TestPersistWritesCappedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.json")

	j, err := Load(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	j.persist(j.Entries())
	j.Append("hello", time.Now())
	j.persist(j.Entries())

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected journal file to exist: %v", err)
	}

	reloaded, err := Load(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(reloaded.Entries()) != 1 {
		t.Fatalf("expected reloaded journal to have 1 entry, got %d", len(reloaded.Entries()))
	}
}
