package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Resource kinds accepted by the portal.
const (
	ResourceKindPDF   = "pdf"
	ResourceKindWord  = "word"
	ResourceKindExcel = "excel"
	ResourceKindVideo = "video"
	ResourceKindLink  = "link"
)

// Resource is a file or link attached to at most one module.
type Resource struct {
	ID          string  `gorm:"primaryKey;size:36"`
	ModuleID    *string `gorm:"size:36;index"`
	Title       string  `gorm:"size:255;not null"`
	Kind        string  `gorm:"size:16;not null"`
	URL         string  `gorm:"size:1024;not null"`
	Description string  `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BeforeCreate assigns identifiers and normalises the resource kind.
func (r *Resource) BeforeCreate(tx *gorm.DB) error {
	ensureID(&r.ID)
	r.Kind = NormalizeResourceKind(r.Kind)
	return nil
}

// NormalizeResourceKind maps loose kind names onto the supported set, defaulting to link.
func NormalizeResourceKind(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case ResourceKindPDF:
		return ResourceKindPDF
	case ResourceKindWord, "doc", "docx":
		return ResourceKindWord
	case ResourceKindExcel, "xls", "xlsx", "spreadsheet":
		return ResourceKindExcel
	case ResourceKindVideo, "mp4":
		return ResourceKindVideo
	default:
		return ResourceKindLink
	}
}
