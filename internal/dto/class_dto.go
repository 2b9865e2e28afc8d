package dto

import (
	"time"

	"github.com/noah-isme/classroom-portal/internal/models"
)

// ScheduleDTO mirrors the schedule JSON stored with a class.
type ScheduleDTO struct {
	StartDate string `json:"startDate" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `json:"endDate" validate:"omitempty,datetime=2006-01-02"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	TimeZone  string `json:"timeZone"`
	Location  string `json:"location"`
}

// ClassCreateRequest describes a new class.
type ClassCreateRequest struct {
	Title           string       `json:"title" validate:"required,min=3,max=255"`
	Description     string       `json:"description" validate:"max=10000"`
	InstructorName  string       `json:"instructor_name" validate:"max=255"`
	InstructorImage string       `json:"instructor_image" validate:"omitempty,url"`
	InstructorBio   string       `json:"instructor_bio"`
	ThumbnailURL    string       `json:"thumbnail_url" validate:"omitempty,url"`
	Schedule        *ScheduleDTO `json:"schedule"`
}

// ClassUpdateRequest patches an existing class.
type ClassUpdateRequest struct {
	Title           *string      `json:"title" validate:"omitempty,min=3,max=255"`
	Description     *string      `json:"description" validate:"omitempty,max=10000"`
	InstructorName  *string      `json:"instructor_name" validate:"omitempty,max=255"`
	InstructorImage *string      `json:"instructor_image" validate:"omitempty,url"`
	InstructorBio   *string      `json:"instructor_bio"`
	ThumbnailURL    *string      `json:"thumbnail_url" validate:"omitempty,url"`
	Schedule        *ScheduleDTO `json:"schedule"`
}

// ClassResponse is a class with its ordered modules.
type ClassResponse struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	InstructorName  string           `json:"instructor_name"`
	InstructorImage string           `json:"instructor_image,omitempty"`
	InstructorBio   string           `json:"instructor_bio,omitempty"`
	ThumbnailURL    string           `json:"thumbnail_url"`
	Schedule        *ScheduleDTO     `json:"schedule,omitempty"`
	Modules         []ModuleResponse `json:"modules"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// ModuleResponse is a module with its attached resources.
type ModuleResponse struct {
	ID          string             `json:"id"`
	ClassID     string             `json:"class_id"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	SlideURL    string             `json:"slide_url"`
	Content     string             `json:"content,omitempty"`
	Order       int                `json:"order"`
	Resources   []ResourceResponse `json:"resources"`
}

// ResourceResponse describes a single attachment.
type ResourceResponse struct {
	ID          string    `json:"id"`
	ModuleID    *string   `json:"module_id"`
	Title       string    `json:"title"`
	Kind        string    `json:"kind"`
	URL         string    `json:"url"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ToSchedule converts the DTO into the stored representation.
func (s *ScheduleDTO) ToSchedule() models.Schedule {
	if s == nil {
		return models.Schedule{}
	}
	return models.Schedule{
		StartDate: s.StartDate,
		EndDate:   s.EndDate,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		TimeZone:  s.TimeZone,
		Location:  s.Location,
	}
}

func newScheduleDTO(schedule models.Schedule) *ScheduleDTO {
	if schedule.IsZero() {
		return nil
	}
	return &ScheduleDTO{
		StartDate: schedule.StartDate,
		EndDate:   schedule.EndDate,
		StartTime: schedule.StartTime,
		EndTime:   schedule.EndTime,
		TimeZone:  schedule.TimeZone,
		Location:  schedule.Location,
	}
}

// NewClassResponse converts a class model, including loaded modules, into a DTO.
func NewClassResponse(model models.Class) ClassResponse {
	return ClassResponse{
		ID:              model.ID,
		Title:           model.Title,
		Description:     model.Description,
		InstructorName:  model.InstructorName,
		InstructorImage: model.InstructorImage,
		InstructorBio:   model.InstructorBio,
		ThumbnailURL:    model.ThumbnailURL,
		Schedule:        newScheduleDTO(model.Schedule()),
		Modules:         NewModuleResponseSlice(model.Modules),
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
	}
}

// NewClassResponseSlice converts classes into DTOs.
func NewClassResponseSlice(classes []models.Class) []ClassResponse {
	responses := make([]ClassResponse, 0, len(classes))
	for _, class := range classes {
		responses = append(responses, NewClassResponse(class))
	}
	return responses
}

// NewModuleResponse converts a module model into a DTO.
func NewModuleResponse(model models.Module) ModuleResponse {
	return ModuleResponse{
		ID:          model.ID,
		ClassID:     model.ClassID,
		Title:       model.Title,
		Description: model.Description,
		SlideURL:    model.SlideURL,
		Content:     model.Content,
		Order:       model.Order,
		Resources:   NewResourceResponseSlice(model.Resources),
	}
}

// NewModuleResponseSlice converts modules into DTOs.
func NewModuleResponseSlice(modules []models.Module) []ModuleResponse {
	responses := make([]ModuleResponse, 0, len(modules))
	for _, module := range modules {
		responses = append(responses, NewModuleResponse(module))
	}
	return responses
}

// NewResourceResponse converts a resource model into a DTO.
func NewResourceResponse(model models.Resource) ResourceResponse {
	return ResourceResponse{
		ID:          model.ID,
		ModuleID:    model.ModuleID,
		Title:       model.Title,
		Kind:        model.Kind,
		URL:         model.URL,
		Description: model.Description,
		CreatedAt:   model.CreatedAt,
	}
}

// NewResourceResponseSlice converts resources into DTOs.
func NewResourceResponseSlice(resources []models.Resource) []ResourceResponse {
	responses := make([]ResourceResponse, 0, len(resources))
	for _, resource := range resources {
		responses = append(responses, NewResourceResponse(resource))
	}
	return responses
}
