// Package history persists finished analyses and their follow-up chat so a
// report can be reopened later and questioned further without re-running the
// analysis.
//
// Three backends implement Store: an in-memory map for tests and throwaway
// runs, a local SQLite file (the default), and a DynamoDB table for shared
// deployments. SQLite and DynamoDB store each entry as a zstd-compressed JSON
// payload next to a few plain columns used for listing.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/fpang/video-insight/internal/analysis"
	"github.com/google/uuid"
)

// ErrNotFound is returned when no entry has the requested ID.
var ErrNotFound = errors.New("history entry not found")

// Entry is one analysed video.
type Entry struct {
	ID        string           `json:"id"`
	FileName  string           `json:"fileName"`
	Mode      analysis.Mode    `json:"mode"`
	CreatedAt time.Time        `json:"createdAt"`
	Result    *analysis.Result `json:"result"`
	Chat      []analysis.Turn  `json:"chat"`
}

// NewEntry creates an entry with a fresh ID for a finished result.
func NewEntry(fileName string, result *analysis.Result) *Entry {
	e := &Entry{
		ID:        uuid.NewString(),
		FileName:  fileName,
		CreatedAt: time.Now().UTC(),
		Result:    result,
		Chat:      []analysis.Turn{},
	}
	if result != nil {
		e.Mode = result.Mode
	}
	return e
}

// Store persists entries. Implementations are safe for concurrent use.
type Store interface {
	// Save creates or replaces an entry.
	Save(ctx context.Context, e *Entry) error
	// Get returns the entry or ErrNotFound.
	Get(ctx context.Context, id string) (*Entry, error)
	// List returns up to limit entries, newest first. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]*Entry, error)
	// AppendChat adds turns to an entry's conversation, or returns ErrNotFound.
	AppendChat(ctx context.Context, id string, turns ...analysis.Turn) error
	// Delete removes an entry. Deleting a missing entry returns ErrNotFound.
	Delete(ctx context.Context, id string) error
	// Close releases the backend.
	Close() error
}
