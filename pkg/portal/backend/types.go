package backend

import "time"

// Account is the identity record returned by the auth API.
type Account struct {
	ID             string     `json:"id"`
	Email          string     `json:"email"`
	FullName       string     `json:"full_name"`
	AvatarURL      string     `json:"avatar_url,omitempty"`
	Role           string     `json:"role"`
	EmailConfirmed bool       `json:"email_confirmed"`
	LastSignInAt   *time.Time `json:"last_sign_in_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Session is a signed-in credential pair plus its account.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         Account   `json:"user"`
}

// Schedule is the optional meeting plan of a class.
type Schedule struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	TimeZone  string `json:"timeZone"`
	Location  string `json:"location"`
}

// Class is a course with its ordered modules.
type Class struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	InstructorName  string    `json:"instructor_name"`
	InstructorImage string    `json:"instructor_image,omitempty"`
	ThumbnailURL    string    `json:"thumbnail_url"`
	Schedule        *Schedule `json:"schedule,omitempty"`
	Modules         []Module  `json:"modules"`
}

// StartsAt parses the schedule start date.
func (c Class) StartsAt() (time.Time, bool) {
	if c.Schedule == nil || c.Schedule.StartDate == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if parsed, err := time.Parse(layout, c.Schedule.StartDate); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// Module is an ordered unit of a class.
type Module struct {
	ID          string     `json:"id"`
	ClassID     string     `json:"class_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	SlideURL    string     `json:"slide_url"`
	Content     string     `json:"content,omitempty"`
	Order       int        `json:"order"`
	Resources   []Resource `json:"resources"`
}

// Resource is a file or link attached to a module.
type Resource struct {
	ID          string  `json:"id"`
	ModuleID    *string `json:"module_id"`
	Title       string  `json:"title"`
	Kind        string  `json:"kind"`
	URL         string  `json:"url"`
	Description string  `json:"description,omitempty"`
}

// Enrollment relates the caller to a class, expanded with the class content.
type Enrollment struct {
	ID      string `json:"id"`
	ClassID string `json:"class_id"`
	Status  string `json:"status"`
	Class   Class  `json:"class"`
}

// Note is the caller's note on one module.
type Note struct {
	ID        string    `json:"id"`
	ModuleID  string    `json:"module_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Progress is the caller's completion record for one module.
type Progress struct {
	ModuleID     string    `json:"module_id"`
	Completed    bool      `json:"completed"`
	LastAccessed time.Time `json:"last_accessed"`
}

// Auth event types pushed on the event stream.
const (
	EventSignedIn         = "SIGNED_IN"
	EventSignedOut        = "SIGNED_OUT"
	EventUserUpdated      = "USER_UPDATED"
	EventPasswordRecovery = "PASSWORD_RECOVERY"
)

// AuthEvent is a session change notification from the backend.
type AuthEvent struct {
	Type       string    `json:"type"`
	AccountID  string    `json:"account_id"`
	OccurredAt time.Time `json:"occurred_at"`
}
