package tracker

import (
	"context"
	"errors"

	"github.com/noah-isme/classroom-portal/pkg/portal/apperr"
	"github.com/noah-isme/classroom-portal/pkg/portal/backend"
)

// ProgressAPI is the backend surface for progress records.
type ProgressAPI interface {
	ListProgress(ctx context.Context) ([]backend.Progress, error)
	UpsertProgress(ctx context.Context, moduleID string, completed bool) (backend.Progress, error)
}

// NoteAPI is the backend surface for notes.
type NoteAPI interface {
	ListNotes(ctx context.Context) ([]backend.Note, error)
	GetNote(ctx context.Context, moduleID string) (backend.Note, error)
	UpsertNote(ctx context.Context, moduleID, content string) (backend.Note, error)
}

// The backend scopes every call to the bearer's identity. Calls are pinned to
// identityID so a request issued for one identity is never sent with the token
// of the next.

type remoteProgress struct {
	api ProgressAPI
}

// NewRemoteProgress stores progress in the backend of record.
func NewRemoteProgress(api ProgressAPI) ProgressRepository {
	return &remoteProgress{api: api}
}

func (r *remoteProgress) Load(ctx context.Context, identityID string) (map[string]Progress, error) {
	records, err := r.api.ListProgress(backend.ForAccount(ctx, identityID))
	if err != nil {
		return nil, err
	}
	values := make(map[string]Progress, len(records))
	for _, record := range records {
		values[record.ModuleID] = progressFrom(record)
	}
	return values, nil
}

func (r *remoteProgress) Get(ctx context.Context, identityID, moduleID string) (Progress, bool, error) {
	values, err := r.Load(ctx, identityID)
	if err != nil {
		return Progress{}, false, err
	}
	value, ok := values[moduleID]
	return value, ok, nil
}

func (r *remoteProgress) Put(ctx context.Context, identityID, moduleID string, value Progress) (Progress, error) {
	record, err := r.api.UpsertProgress(backend.ForAccount(ctx, identityID), moduleID, value.Completed)
	if err != nil {
		return Progress{}, err
	}
	return progressFrom(record), nil
}

func progressFrom(record backend.Progress) Progress {
	return Progress{ModuleID: record.ModuleID, Completed: record.Completed, LastAccessed: record.LastAccessed}
}

type remoteNotes struct {
	api NoteAPI
}

// NewRemoteNotes stores notes in the backend of record.
func NewRemoteNotes(api NoteAPI) NoteRepository {
	return &remoteNotes{api: api}
}

func (r *remoteNotes) Load(ctx context.Context, identityID string) (map[string]Note, error) {
	notes, err := r.api.ListNotes(backend.ForAccount(ctx, identityID))
	if err != nil {
		return nil, err
	}
	values := make(map[string]Note, len(notes))
	for _, note := range notes {
		values[note.ModuleID] = noteFrom(note)
	}
	return values, nil
}

func (r *remoteNotes) Get(ctx context.Context, identityID, moduleID string) (Note, bool, error) {
	note, err := r.api.GetNote(backend.ForAccount(ctx, identityID), moduleID)
	if errors.Is(err, apperr.NotFound) {
		return Note{}, false, nil
	}
	if err != nil {
		return Note{}, false, err
	}
	return noteFrom(note), true, nil
}

func (r *remoteNotes) Put(ctx context.Context, identityID, moduleID string, value Note) (Note, error) {
	note, err := r.api.UpsertNote(backend.ForAccount(ctx, identityID), moduleID, value.Content)
	if err != nil {
		return Note{}, err
	}
	return noteFrom(note), nil
}

func noteFrom(note backend.Note) Note {
	return Note{ModuleID: note.ModuleID, Content: note.Content, CreatedAt: note.CreatedAt, UpdatedAt: note.UpdatedAt}
}
