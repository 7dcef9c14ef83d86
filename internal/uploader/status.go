package uploader

import (
	"strings"
	"sync"
)

const (
	StatusUploading = "uploading"
	StatusCompleted = "completed"
	StatusNoUploads = "no_uploads"
)

// Status is the externally visible snapshot of a user's latest upload.
type Status struct {
	Status   string `json:"status"`
	Progress int    `json:"progress,omitempty"`
	File     string `json:"file,omitempty"`
	VideoID  string `json:"video_id,omitempty"`
}

// Terminal reports whether the snapshot is an end state.
func (s Status) Terminal() bool {
	return s.Status == StatusCompleted || strings.HasPrefix(s.Status, "error:")
}

// Tracker holds the latest upload status per user. Last writer wins, no
// history, entries live for the process lifetime.
type Tracker struct {
	mu     sync.RWMutex
	byUser map[int64]Status
}

func NewTracker() *Tracker {
	return &Tracker{byUser: make(map[int64]Status)}
}

func (t *Tracker) Record(userID int64, st Status) {
	t.mu.Lock()
	t.byUser[userID] = st
	t.mu.Unlock()
}

// Get returns the latest snapshot, or the no_uploads sentinel if the user
// never started an upload.
func (t *Tracker) Get(userID int64) Status {
	t.mu.RLock()
	st, ok := t.byUser[userID]
	t.mu.RUnlock()
	if !ok {
		return Status{Status: StatusNoUploads}
	}
	return st
}
