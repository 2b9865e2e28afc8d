package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Schedule describes when and where a class meets.
type Schedule struct {
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	TimeZone  string `json:"timeZone"`
	Location  string `json:"location"`
}

// IsZero reports whether no schedule information was provided.
func (s Schedule) IsZero() bool {
	return s == Schedule{}
}

// Class is a course students can enroll in.
type Class struct {
	ID              string                       `gorm:"primaryKey;size:36"`
	Title           string                       `gorm:"size:255;not null"`
	Description     string                       `gorm:"type:text"`
	InstructorName  string                       `gorm:"size:255"`
	InstructorImage string                       `gorm:"size:512"`
	InstructorBio   string                       `gorm:"type:text"`
	ThumbnailURL    string                       `gorm:"size:512"`
	ScheduleData    datatypes.JSONType[Schedule] `gorm:"column:schedule_data"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Modules         []Module `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// BeforeCreate assigns the class identifier.
func (c *Class) BeforeCreate(tx *gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// Schedule returns the decoded schedule payload.
func (c Class) Schedule() Schedule {
	return c.ScheduleData.Data()
}

// StartsAt parses the schedule start date; classes without one sort last.
func (c Class) StartsAt() (time.Time, bool) {
	raw := c.Schedule().StartDate
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}
