package tracker

import "time"

// Progress is the completion state of one module.
type Progress struct {
	ModuleID     string    `json:"moduleId"`
	Completed    bool      `json:"completed"`
	LastAccessed time.Time `json:"lastAccessed"`
}

// Note is the free-form note on one module. Content is opaque formatted text.
type Note struct {
	ModuleID  string    `json:"moduleId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ProgressRepository persists module progress.
type ProgressRepository = Repository[Progress]

// NoteRepository persists module notes.
type NoteRepository = Repository[Note]
