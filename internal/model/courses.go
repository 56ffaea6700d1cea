package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Course is a continuing-education course submitted for accreditation
type Course struct {
	bun.BaseModel  `bun:"table:courses,alias:crs"`
	ID             uuid.UUID    `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Title          string       `bun:"title,notnull" json:"title,omitempty"`
	Description    string       `bun:"description,notnull" json:"description,omitempty"`
	Outcomes       string       `bun:"outcomes,notnull" json:"outcomes,omitempty"`
	Summary        string       `bun:"summary" json:"summary,omitempty"`
	CourseType     string       `bun:"course_type" json:"course_type,omitempty"`
	DeliveryType   string       `bun:"delivery_type" json:"delivery_type,omitempty"`
	Species        string       `bun:"species" json:"species,omitempty"`
	Subject        string       `bun:"subject" json:"subject,omitempty"`
	Language       string       `bun:"language" json:"language,omitempty"`
	Audience       string       `bun:"audience" json:"audience,omitempty"`
	HoursLecture   float64      `bun:"hours_lecture" json:"hours_lecture,omitempty"`
	HoursPractical float64      `bun:"hours_practical" json:"hours_practical,omitempty"`
	HoursOnline    float64      `bun:"hours_online" json:"hours_online,omitempty"`
	ECTS           float64      `bun:"ects" json:"ects,omitempty"`
	Cost           float64      `bun:"cost" json:"cost,omitempty"`
	Status         CourseStatus `bun:"status,notnull" json:"status,omitempty"`
	UserID         uuid.UUID    `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	OrganizationID uuid.UUID    `bun:"organization_id,notnull,type:uuid" json:"organization_id,omitempty"`

	Sessions []*CourseSession `bun:"rel:has-many,join:id=course_id" json:"sessions,omitempty"`

	CreatedAt *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// CourseSession is a single teaching session within a course
type CourseSession struct {
	bun.BaseModel   `bun:"table:course_sessions,alias:cse"`
	ID              uuid.UUID `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	CourseID        uuid.UUID `bun:"course_id,notnull,type:uuid" json:"course_id,omitempty"`
	Title           string    `bun:"title,notnull" json:"title,omitempty"`
	Teacher         string    `bun:"teacher" json:"teacher,omitempty"`
	DurationMinutes int       `bun:"duration_minutes" json:"duration_minutes,omitempty"`
	Description     string    `bun:"description" json:"description,omitempty"`
}

// CourseReview is a reviewer verdict attached to a course
type CourseReview struct {
	bun.BaseModel `bun:"table:course_reviews,alias:crv"`
	ID            uuid.UUID    `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	CourseID      uuid.UUID    `bun:"course_id,notnull,type:uuid" json:"course_id,omitempty"`
	ReviewerID    uuid.UUID    `bun:"reviewer_id,notnull,type:uuid" json:"reviewer_id,omitempty"`
	Status        CourseStatus `bun:"status,notnull" json:"status,omitempty"`
	Comment       string       `bun:"comment,notnull" json:"comment,omitempty"`

	CreatedAt *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}
