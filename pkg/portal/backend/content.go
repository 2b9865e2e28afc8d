package backend

import (
	"context"
	"net/http"
	"net/url"
)

const apiPath = "/api/v1"

// ListEnrollments returns the caller's active enrollments with class content expanded.
func (c *Client) ListEnrollments(ctx context.Context) ([]Enrollment, error) {
	var enrollments []Enrollment
	err := c.authorized(ctx, http.MethodGet, apiPath+"/enrollments", nil, nil, &enrollments)
	return enrollments, err
}

// Enroll enrolls the caller in classID. Repeated calls are idempotent server side.
func (c *Client) Enroll(ctx context.Context, classID string) (Enrollment, error) {
	var enrollment Enrollment
	err := c.authorized(ctx, http.MethodPost, apiPath+"/enrollments", nil, map[string]string{"class_id": classID}, &enrollment)
	return enrollment, err
}

// ListCatalog returns every class without module content.
func (c *Client) ListCatalog(ctx context.Context, search string) ([]Class, error) {
	var query url.Values
	if search != "" {
		query = url.Values{"search": {search}}
	}
	var classes []Class
	err := c.authorized(ctx, http.MethodGet, apiPath+"/catalog", query, nil, &classes)
	return classes, err
}

// GetClass returns an enrolled class with its modules.
func (c *Client) GetClass(ctx context.Context, classID string) (Class, error) {
	var class Class
	err := c.authorized(ctx, http.MethodGet, apiPath+"/classes/"+url.PathEscape(classID), nil, nil, &class)
	return class, err
}

func (c *Client) ListNotes(ctx context.Context) ([]Note, error) {
	var notes []Note
	err := c.authorized(ctx, http.MethodGet, apiPath+"/notes", nil, nil, &notes)
	return notes, err
}

// GetNote returns the caller's note for moduleID; a missing note is a not_found error.
func (c *Client) GetNote(ctx context.Context, moduleID string) (Note, error) {
	var note Note
	err := c.authorized(ctx, http.MethodGet, apiPath+"/notes/"+url.PathEscape(moduleID), nil, nil, &note)
	return note, err
}

func (c *Client) UpsertNote(ctx context.Context, moduleID, content string) (Note, error) {
	var note Note
	err := c.authorized(ctx, http.MethodPut, apiPath+"/notes/"+url.PathEscape(moduleID), nil, map[string]string{"content": content}, &note)
	return note, err
}

func (c *Client) ListProgress(ctx context.Context) ([]Progress, error) {
	var records []Progress
	err := c.authorized(ctx, http.MethodGet, apiPath+"/progress", nil, nil, &records)
	return records, err
}

func (c *Client) UpsertProgress(ctx context.Context, moduleID string, completed bool) (Progress, error) {
	var record Progress
	err := c.authorized(ctx, http.MethodPut, apiPath+"/progress/"+url.PathEscape(moduleID), nil, map[string]bool{"completed": completed}, &record)
	return record, err
}
