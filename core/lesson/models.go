package lesson

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/learnwise/backend/core"
)

const defaultDuration = 30 // minutes

type Lesson struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Subject         string          `json:"subject"`
	Content         string          `json:"content,omitempty"`
	Difficulty      core.Difficulty `json:"difficulty"`
	DurationMinutes int             `json:"duration_minutes"`
	Prerequisites   core.StringList `json:"prerequisites"` // lesson IDs
	Tags            core.StringList `json:"tags"`
	IsPublished     bool            `json:"is_published"`
	ViewsCount      int             `json:"views_count"`
	QuizCount       int             `json:"quiz_count"`
	CreatedBy       string          `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"` // UTC
	UpdatedAt       time.Time       `json:"updated_at"` // UTC
}

// CanEdit reports whether the user identified by userID may modify the lesson.
func (l Lesson) CanEdit(userID string, isAdmin bool) bool {
	return isAdmin || l.CreatedBy == userID
}

// ProgressStatus is the state of a student on a lesson.
type ProgressStatus string

const (
	StatusNotStarted ProgressStatus = "not_started"
	StatusInProgress ProgressStatus = "in_progress"
	StatusCompleted  ProgressStatus = "completed"
)

func (s ProgressStatus) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

type Progress struct {
	ID                 string         `json:"id"`
	UserID             string         `json:"user_id"`
	LessonID           string         `json:"lesson_id"`
	Status             ProgressStatus `json:"status"`
	ProgressPercentage float64        `json:"progress_percentage"`
	TimeSpentMinutes   int            `json:"time_spent_minutes"`
	StartedAt          null.Time      `json:"started_at"`
	CompletedAt        null.Time      `json:"completed_at"`
	LastAccessed       time.Time      `json:"last_accessed"`
}

func (p Progress) IsCompleted() bool { return p.Status == StatusCompleted }

func (p *Progress) markComplete(now time.Time) {
	p.Status = StatusCompleted
	p.ProgressPercentage = 100
	p.CompletedAt = null.TimeFrom(now)
}

// NewLesson contains information needed to create a new Lesson.
type NewLesson struct {
	Title           string          `json:"title" validate:"required,max=200"`
	Subject         string          `json:"subject" validate:"required,max=100"`
	Content         string          `json:"content" validate:"notblank"`
	Difficulty      core.Difficulty `json:"difficulty" validate:"required,difficulty"`
	DurationMinutes *int            `json:"duration_minutes" validate:"omitempty,min=1"`
	Prerequisites   []string        `json:"prerequisites"`
	Tags            []string        `json:"tags"`
	IsPublished     *bool           `json:"is_published"`
}

func (nl *NewLesson) Validate(validate *validator.Validate) error {
	nl.Title = core.CleanString(nl.Title)
	nl.Subject = core.CleanString(nl.Subject)
	nl.Difficulty = core.Difficulty(core.CleanString(string(nl.Difficulty), true /* lower */))
	nl.Prerequisites = cleanList(nl.Prerequisites, false)
	nl.Tags = cleanList(nl.Tags, true)
	return validate.Struct(nl)
}

// UpdateLesson holds the Lesson fields to modify; nil fields are left untouched.
type UpdateLesson struct {
	Title           *string          `json:"title" validate:"omitempty,notblank,max=200"`
	Subject         *string          `json:"subject" validate:"omitempty,notblank,max=100"`
	Content         *string          `json:"content" validate:"omitempty,notblank"`
	Difficulty      *core.Difficulty `json:"difficulty" validate:"omitempty,difficulty"`
	DurationMinutes *int             `json:"duration_minutes" validate:"omitempty,min=1"`
	Prerequisites   []string         `json:"prerequisites"`
	Tags            []string         `json:"tags"`
	IsPublished     *bool            `json:"is_published"`
}

func (ul *UpdateLesson) Validate(validate *validator.Validate) error {
	if ul.Title != nil {
		s := core.CleanString(*ul.Title)
		ul.Title = &s
	}
	if ul.Subject != nil {
		s := core.CleanString(*ul.Subject)
		ul.Subject = &s
	}
	if ul.Difficulty != nil {
		d := core.Difficulty(core.CleanString(string(*ul.Difficulty), true /* lower */))
		ul.Difficulty = &d
	}
	if ul.Prerequisites != nil {
		ul.Prerequisites = cleanList(ul.Prerequisites, false)
	}
	if ul.Tags != nil {
		ul.Tags = cleanList(ul.Tags, true)
	}
	return validate.Struct(ul)
}

// UpdateProgress reports the progress of a student on a lesson.
type UpdateProgress struct {
	ProgressPercentage *float64       `json:"progress_percentage" validate:"omitempty,min=0"`
	TimeSpentMinutes   int            `json:"time_spent_minutes" validate:"min=0"` // added to the total
	Status             ProgressStatus `json:"status" validate:"omitempty,oneof=not_started in_progress completed"`
}

func (up *UpdateProgress) Validate(validate *validator.Validate) error { return validate.Struct(up) }

type QueryFilter struct {
	Subject    string          `query:"subject"`
	Difficulty core.Difficulty `query:"difficulty"`
	Search     string          `query:"search"`
	Published  *bool           `query:"published"`
	CreatedBy  string          `query:"-"`
}

func (qf *QueryFilter) Clean() {
	qf.Subject = core.CleanString(qf.Subject)
	qf.Search = core.CleanString(qf.Search)
	qf.Difficulty = core.Difficulty(core.CleanString(string(qf.Difficulty), true /* lower */))
}

// cleanList trims the items of list and drops the blank and duplicate ones.
func cleanList(list []string, lower bool) []string {
	res := make([]string, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, s := range list {
		s = core.CleanString(s, lower)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		res = append(res, s)
	}
	return res
}
