package dto

import (
	"time"

	"github.com/noah-isme/classroom-portal/internal/models"
)

// NoteUpsertRequest stores the caller's note for a module.
type NoteUpsertRequest struct {
	Content string `json:"content"`
}

// NoteResponse is a stored note.
type NoteResponse struct {
	ID        string    `json:"id"`
	ModuleID  string    `json:"module_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProgressUpsertRequest records module completion.
type ProgressUpsertRequest struct {
	Completed bool `json:"completed"`
}

// ProgressResponse is a module completion record.
type ProgressResponse struct {
	ModuleID     string    `json:"module_id"`
	Completed    bool      `json:"completed"`
	LastAccessed time.Time `json:"last_accessed"`
}

// NewNoteResponse converts a note model into a DTO.
func NewNoteResponse(model models.Note) NoteResponse {
	return NoteResponse{
		ID:        model.ID,
		ModuleID:  model.ModuleID,
		Content:   model.Content,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}

// NewNoteResponseSlice converts notes into DTOs.
func NewNoteResponseSlice(notes []models.Note) []NoteResponse {
	responses := make([]NoteResponse, 0, len(notes))
	for _, note := range notes {
		responses = append(responses, NewNoteResponse(note))
	}
	return responses
}

// NewProgressResponse converts a progress model into a DTO.
func NewProgressResponse(model models.ModuleProgress) ProgressResponse {
	return ProgressResponse{
		ModuleID:     model.ModuleID,
		Completed:    model.Completed,
		LastAccessed: model.LastAccessed,
	}
}

// NewProgressResponseSlice converts progress records into DTOs.
func NewProgressResponseSlice(records []models.ModuleProgress) []ProgressResponse {
	responses := make([]ProgressResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, NewProgressResponse(record))
	}
	return responses
}
