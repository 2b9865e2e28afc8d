package tracker

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/classroom-portal/pkg/portal/apperr"
)

// DefaultNoteMaxBytes caps a single note's content.
const DefaultNoteMaxBytes = 256 * 1024

// ProgressTracker holds module completion flags for the current identity.
type ProgressTracker struct {
	*Store[Progress]
	now func() time.Time
}

// NewProgressTracker wraps repo in a progress store.
func NewProgressTracker(repo ProgressRepository, opts Options, logger zerolog.Logger) *ProgressTracker {
	return &ProgressTracker{
		Store: NewStore[Progress](repo, opts, logger.With().Str("component", "progress_tracker").Logger()),
		now:   time.Now,
	}
}

// SetCompleted marks moduleID completed or not. Repeating the same value is harmless.
func (p *ProgressTracker) SetCompleted(ctx context.Context, moduleID string, completed bool) error {
	if moduleID == "" {
		return apperr.New(apperr.KindValidation, "module id is required")
	}
	return p.Set(ctx, moduleID, Progress{ModuleID: moduleID, Completed: completed, LastAccessed: p.now().UTC()})
}

// IsCompleted reports the mirrored flag; unknown modules are not completed.
func (p *ProgressTracker) IsCompleted(moduleID string) bool {
	progress, ok := p.Get(moduleID)
	return ok && progress.Completed
}

// Completed lists completed module ids in lexical order.
func (p *ProgressTracker) Completed() []string {
	var ids []string
	for moduleID, progress := range p.All() {
		if progress.Completed {
			ids = append(ids, moduleID)
		}
	}
	sort.Strings(ids)
	return ids
}

// NoteStore holds module notes for the current identity.
type NoteStore struct {
	*Store[Note]
	maxBytes int
	now      func() time.Time
}

// NewNoteStore wraps repo in a note store. maxBytes <= 0 uses DefaultNoteMaxBytes.
func NewNoteStore(repo NoteRepository, opts Options, maxBytes int, logger zerolog.Logger) *NoteStore {
	if maxBytes <= 0 {
		maxBytes = DefaultNoteMaxBytes
	}
	return &NoteStore{
		Store:    NewStore[Note](repo, opts, logger.With().Str("component", "note_store").Logger()),
		maxBytes: maxBytes,
		now:      time.Now,
	}
}

// SaveNote stores content for moduleID. Content is opaque; only its size is checked.
func (n *NoteStore) SaveNote(ctx context.Context, moduleID, content string) error {
	if moduleID == "" {
		return apperr.New(apperr.KindValidation, "module id is required")
	}
	if len(content) > n.maxBytes {
		return apperr.New(apperr.KindValidation, fmt.Sprintf("note exceeds %d bytes", n.maxBytes))
	}

	now := n.now().UTC()
	note := Note{ModuleID: moduleID, Content: content, CreatedAt: now, UpdatedAt: now}
	if existing, ok := n.Get(moduleID); ok && !existing.CreatedAt.IsZero() {
		note.CreatedAt = existing.CreatedAt
	}
	return n.Set(ctx, moduleID, note)
}

// GetNoteForModule returns the note content for moduleID, or false when none exists.
func (n *NoteStore) GetNoteForModule(moduleID string) (string, bool) {
	note, ok := n.Get(moduleID)
	if !ok {
		return "", false
	}
	return note.Content, true
}

// Notes lists every note, most recently updated first.
func (n *NoteStore) Notes() []Note {
	all := n.All()
	notes := make([]Note, 0, len(all))
	for _, note := range all {
		notes = append(notes, note)
	}
	sort.Slice(notes, func(i, j int) bool {
		if !notes[i].UpdatedAt.Equal(notes[j].UpdatedAt) {
			return notes[i].UpdatedAt.After(notes[j].UpdatedAt)
		}
		return notes[i].ModuleID < notes[j].ModuleID
	})
	return notes
}
