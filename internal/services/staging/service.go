package staging

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// Store holds the files a user has staged for submission. One instance
// exists per session; all mutations go through it, so readers never race
// the canonical state.
type Store struct {
	mu        sync.RWMutex
	files     []StagedFile
	lastError string
	emit      func(event string, payload interface{})
}

// NewStore creates a new staging store bound to the wails context
func NewStore(ctx context.Context) *Store {
	return &Store{
		emit: func(event string, payload interface{}) {
			runtime.EventsEmit(ctx, event, payload)
		},
	}
}

// AddFiles appends the given files to the staged set with no document
// role assigned, clearing any previous error state. Returns the new IDs
// in input order.
func (s *Store) AddFiles(incoming []IncomingFile) []string {
	s.mu.Lock()
	ids := make([]string, 0, len(incoming))
	for _, in := range incoming {
		id := uuid.New().String()
		s.files = append(s.files, StagedFile{
			ID:          id,
			Filename:    in.Filename,
			ContentType: in.ContentType,
			Size:        int64(len(in.Data)),
			Data:        in.Data,
		})
		ids = append(ids, id)
	}
	s.lastError = ""
	count := len(s.files)
	s.mu.Unlock()

	log.Printf("Staged %d file(s), %d total", len(incoming), count)
	s.notify()
	return ids
}

// RemoveFile removes the staged file with the given ID.
// Removing an absent ID is a no-op, not an error.
func (s *Store) RemoveFile(id string) {
	s.mu.Lock()
	for i, f := range s.files {
		if f.ID == id {
			s.files = append(s.files[:i], s.files[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	s.notify()
}

// SetDocumentType assigns (or clears, with nil) the document role of one
// staged file. Duplicate roles are allowed here; the validator reports
// them at submission time.
func (s *Store) SetDocumentType(id string, docType *DocumentType) {
	s.mu.Lock()
	for i := range s.files {
		if s.files[i].ID == id {
			s.files[i].DocumentType = docType
			break
		}
	}
	s.mu.Unlock()
	s.notify()
}

// Clear empties the staged set and error state, returning the store to
// its initial empty state. Called after a successful submission or an
// explicit reset.
func (s *Store) Clear() {
	s.mu.Lock()
	s.files = nil
	s.lastError = ""
	s.mu.Unlock()
	s.notify()
}

// Files returns a copy of the staged files in insertion order
func (s *Store) Files() []StagedFile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]StagedFile, len(s.files))
	copy(out, s.files)
	return out
}

// Count returns the number of staged files
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

// Err returns the last recorded staging error message, if any
func (s *Store) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// SetErr records an error message for the UI (e.g. a validation failure)
func (s *Store) SetErr(msg string) {
	s.mu.Lock()
	s.lastError = msg
	s.mu.Unlock()
	s.notify()
}

// notify emits the current summary so UI surfaces re-render
func (s *Store) notify() {
	if s.emit == nil {
		return
	}

	s.mu.RLock()
	summary := struct {
		Count int      `json:"count"`
		Error string   `json:"error"`
		Files []string `json:"files"`
	}{
		Count: len(s.files),
		Error: s.lastError,
	}
	for _, f := range s.files {
		summary.Files = append(summary.Files, f.ID)
	}
	s.mu.RUnlock()

	s.emit("staging:changed", summary)
}
