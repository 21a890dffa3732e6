// Package journal is the C11 decision-history journal: a file-backed,
// length-capped rolling log of recent compacted decisions, serialized
// through a single background writer so concurrent appends never
// interleave truncations. Grounded on the feed simulator's
// snapshot-persistence pattern (load-at-startup, periodic durable write),
// narrowed to a single small JSON array instead of a full market snapshot.
package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// MaxEntries is the cap on retained journal entries (spec invariant 6).
const MaxEntries = 10

// Entry is one compacted decision record.
type Entry struct {
	Content       string `json:"content"`
	TimestampStr  string `json:"timestampStr"`
}

type writeRequest struct {
	entries []Entry
}

// Journal is the in-memory tail plus its single-writer persistence queue.
type Journal struct {
	mu      sync.RWMutex
	path    string
	entries []Entry
	log     zerolog.Logger

	writeCh chan writeRequest
	done    chan struct{}
}

// Load reads path and returns a Journal seeded with up to MaxEntries prior
// entries. A missing file starts empty, not an error; the parent
// directory is created on the first write, not here.
func Load(path string, logger zerolog.Logger) (*Journal, error) {
	j := &Journal{
		path:    path,
		log:     logger.With().Str("subsystem", "journal").Logger(),
		writeCh: make(chan writeRequest, 8),
		done:    make(chan struct{}),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("journal: read %s: %w", path, err)
		}
		return j, nil
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("journal: parse %s: %w", path, err)
	}
	j.entries = capEntries(entries)
	return j, nil
}

// Run starts the single background writer goroutine; it drains writeCh
// until ctx is cancelled.
func (j *Journal) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-j.writeCh:
			j.persist(req.entries)
		}
	}
}

// Append adds content (with the current time formatted YYYY-MM-DD HH:MM:SS)
// to the in-memory tail, truncates to MaxEntries, and enqueues a durable
// write. Append never blocks on disk I/O.
func (j *Journal) Append(content string, now time.Time) {
	entry := Entry{Content: content, TimestampStr: now.Format("2006-01-02 15:04:05")}

	j.mu.Lock()
	j.entries = capEntries(append(j.entries, entry))
	snapshot := make([]Entry, len(j.entries))
	copy(snapshot, j.entries)
	j.mu.Unlock()

	select {
	case j.writeCh <- writeRequest{entries: snapshot}:
	default:
		// Writer is backed up; the next Append's enqueue will carry the
		// latest state anyway, so dropping this trigger is safe.
	}
}

// Entries returns a copy of the current tail, oldest first.
func (j *Journal) Entries() []Entry {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]Entry, len(j.entries))
	copy(out, j.entries)
	return out
}

func (j *Journal) persist(entries []Entry) {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		j.log.Warn().Err(err).Msg("journal: marshal failed")
		return
	}
	if dir := filepath.Dir(j.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			j.log.Warn().Err(err).Msg("journal: mkdir failed")
			return
		}
	}
	tmp := j.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		j.log.Warn().Err(err).Msg("journal: write temp file failed")
		return
	}
	if err := os.Rename(tmp, j.path); err != nil {
		j.log.Warn().Err(err).Msg("journal: rename failed")
	}
}

func capEntries(entries []Entry) []Entry {
	if len(entries) <= MaxEntries {
		return entries
	}
	return entries[len(entries)-MaxEntries:]
}
