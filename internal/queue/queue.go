// Package queue holds finished sessions that could not be uploaded while
// the device was offline.
//
// The queue is a FIFO mirrored to a single JSON file. Several crewclock
// processes (the daemon and one-shot commands) may share that file, so
// every operation takes an advisory lock on <path>.lock and re-reads the
// snapshot before touching it. Every mutation then rewrites the whole
// file; there is no append log.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/balkashynov/crewclock/internal/models"
)

// Swapped in tests to simulate disk failures
var (
	osReadFile  = os.ReadFile
	osWriteFile = os.WriteFile
	osRename    = os.Rename
	osRemove    = os.Remove
	osMkdirAll  = os.MkdirAll
	newID       = uuid.NewString
	now         = time.Now
)

// Queue is the durable pending-upload FIFO
type Queue struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	entries []models.PendingUpload
	loaded  bool

	// Changes the last write failed to persist. They are re-applied on top
	// of the file until a write succeeds.
	unsaved map[string]struct{}
	dropped map[string]struct{}
}

// New creates a queue persisted at path
func New(path string, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		path:    path,
		logger:  logger.With("component", "queue"),
		unsaved: make(map[string]struct{}),
		dropped: make(map[string]struct{}),
	}
}

// Path returns the snapshot file location
func (q *Queue) Path() string {
	return q.path
}

// Load reads the snapshot file. A missing or unreadable file leaves the
// queue empty; it never fails startup. Every other operation re-reads the
// file as well, so calling Load first only matters for the startup log.
func (q *Queue) Load() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.loaded {
		return
	}
	q.withFileLock(func() {})
	q.logger.Info("pending queue loaded", "entries", len(q.entries))
}

// Enqueue appends a session snapshot and persists the queue. The returned
// entry carries the generated id.
func (q *Queue) Enqueue(groupID, userName string, session models.SessionRecord) models.PendingUpload {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry := models.PendingUpload{
		ID:          newID(),
		GroupID:     groupID,
		UserName:    userName,
		SessionData: session,
		Timestamp:   now().UTC(),
	}
	q.withFileLock(func() {
		q.entries = append(q.entries, entry)
		q.unsaved[entry.ID] = struct{}{}
		q.persistLocked()
	})

	q.logger.Info("session queued for upload", "id", entry.ID, "session", session.ID, "pending", len(q.entries))
	return entry
}

// Snapshot returns a copy of the pending entries in insertion order
func (q *Queue) Snapshot() []models.PendingUpload {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.withFileLock(func() {})
	out := make([]models.PendingUpload, len(q.entries))
	copy(out, q.entries)
	return out
}

// Len returns the number of pending entries
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.withFileLock(func() {})
	return len(q.entries)
}

// RemoveSucceeded drops the entries whose upload was confirmed and keeps
// the rest in their original order. It returns how many were removed.
func (q *Queue) RemoveSucceeded(ids []string) int {
	if len(ids) == 0 {
		return 0
	}

	done := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		done[id] = struct{}{}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	q.withFileLock(func() {
		kept := q.entries[:0:0]
		for _, entry := range q.entries {
			if _, ok := done[entry.ID]; ok {
				q.dropped[entry.ID] = struct{}{}
				delete(q.unsaved, entry.ID)
				continue
			}
			kept = append(kept, entry)
		}
		removed = len(q.entries) - len(kept)
		q.entries = kept

		if removed > 0 {
			q.persistLocked()
		}
	})
	return removed
}

// Clear empties the queue and deletes the snapshot file
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.withFileLock(func() {
		q.entries = nil
		clear(q.unsaved)
		clear(q.dropped)
		if err := osRemove(q.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			q.logger.Warn("failed to remove pending queue file", "path", q.path, "error", err)
		}
	})
}

// withFileLock refreshes the entries from disk and runs fn while holding
// the cross-process lock. Caller holds mu. When the lock cannot be taken
// the queue still works on its in-memory entries.
func (q *Queue) withFileLock(fn func()) {
	q.loaded = true

	if err := osMkdirAll(filepath.Dir(q.path), 0755); err != nil {
		q.logger.Warn("failed to create queue directory", "path", q.path, "error", err)
	}
	unlock, err := lockFile(q.path + ".lock")
	if err != nil {
		q.logger.Warn("queue lock unavailable", "path", q.path, "error", err)
		fn()
		return
	}
	defer unlock()

	q.refreshLocked()
	fn()
}

// refreshLocked replaces the entries with the file's, then re-applies the
// changes this process has not managed to write yet. An unreadable file
// keeps the in-memory entries; the next write replaces it.
func (q *Queue) refreshLocked() {
	data, err := osReadFile(q.path)
	var onDisk []models.PendingUpload
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		q.logger.Warn("pending queue unreadable, keeping entries in memory", "path", q.path, "error", err)
		return
	default:
		if err := json.Unmarshal(data, &onDisk); err != nil {
			q.logger.Warn("pending queue corrupt, keeping entries in memory", "path", q.path, "error", err)
			return
		}
	}

	merged := make([]models.PendingUpload, 0, len(onDisk)+len(q.unsaved))
	present := make(map[string]struct{}, len(onDisk))
	for _, entry := range onDisk {
		if _, gone := q.dropped[entry.ID]; gone {
			continue
		}
		// Tasks and apps are stored without their parent ids
		entry.SessionData.AssignIDs()
		merged = append(merged, entry)
		present[entry.ID] = struct{}{}
	}
	for _, entry := range q.entries {
		if _, pending := q.unsaved[entry.ID]; !pending {
			continue
		}
		if _, ok := present[entry.ID]; !ok {
			merged = append(merged, entry)
		}
	}
	q.entries = merged
}

// persistLocked rewrites the snapshot file. Failures are logged and
// swallowed; the unwritten changes are kept for the next write. Caller
// holds mu and the file lock.
func (q *Queue) persistLocked() {
	if err := q.writeLocked(); err != nil {
		q.logger.Error("failed to persist pending queue", "path", q.path, "entries", len(q.entries), "error", err)
		return
	}
	clear(q.unsaved)
	clear(q.dropped)
}

func (q *Queue) writeLocked() error {
	entries := q.entries
	if entries == nil {
		entries = []models.PendingUpload{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode queue: %w", err)
	}

	if err := osMkdirAll(filepath.Dir(q.path), 0755); err != nil {
		return fmt.Errorf("create queue directory: %w", err)
	}

	tmp := q.path + ".tmp"
	if err := osWriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write queue: %w", err)
	}
	if err := osRename(tmp, q.path); err != nil {
		_ = osRemove(tmp)
		return fmt.Errorf("replace queue: %w", err)
	}
	return nil
}
