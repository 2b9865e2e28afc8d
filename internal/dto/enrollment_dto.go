package dto

import (
	"time"

	"github.com/noah-isme/classroom-portal/internal/models"
)

// EnrollRequest enrolls the caller in a class.
type EnrollRequest struct {
	ClassID string `json:"class_id" validate:"required"`
}

// EnrollmentResponse is an enrollment with its expanded class.
type EnrollmentResponse struct {
	ID        string        `json:"id"`
	ClassID   string        `json:"class_id"`
	Status    string        `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	Class     ClassResponse `json:"class"`
}

// NewEnrollmentResponse converts an enrollment with a preloaded class into a DTO.
func NewEnrollmentResponse(model models.Enrollment) EnrollmentResponse {
	return EnrollmentResponse{
		ID:        model.ID,
		ClassID:   model.ClassID,
		Status:    model.Status,
		CreatedAt: model.CreatedAt,
		Class:     NewClassResponse(model.Class),
	}
}

// NewEnrollmentResponseSlice converts enrollments into DTOs.
func NewEnrollmentResponseSlice(enrollments []models.Enrollment) []EnrollmentResponse {
	responses := make([]EnrollmentResponse, 0, len(enrollments))
	for _, enrollment := range enrollments {
		responses = append(responses, NewEnrollmentResponse(enrollment))
	}
	return responses
}
