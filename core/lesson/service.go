package lesson

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/learnwise/backend/core"
)

var (
	// errors
	ErrNotFound         = errors.New("lesson not found")
	ErrProgressNotFound = errors.New("lesson progress not found")
)

type Repository interface {
	CreateLesson(ctx context.Context, lsn Lesson, exec ...core.DBExecutor) (Lesson, error)
	GetLesson(ctx context.Context, id string, exec ...core.DBExecutor) (Lesson, error)
	// QueryLessons returns one page of the lessons matching filter, newest first, and the total count.
	QueryLessons(ctx context.Context, filter *QueryFilter, page core.Page, exec ...core.DBExecutor) ([]Lesson, int, error)
	QuerySubjects(ctx context.Context, exec ...core.DBExecutor) ([]string, error)
	UpdateLesson(ctx context.Context, lsn Lesson, exec ...core.DBExecutor) (Lesson, error)
	IncrementViews(ctx context.Context, id string, exec ...core.DBExecutor) error
	DeleteLesson(ctx context.Context, id string, exec ...core.DBExecutor) error

	GetProgress(ctx context.Context, userID, lessonID string, exec ...core.DBExecutor) (Progress, error)
	QueryProgress(ctx context.Context, userID string, exec ...core.DBExecutor) ([]Progress, error)
	// SaveProgress inserts p when p.ID is empty, updates it otherwise.
	SaveProgress(ctx context.Context, p Progress, exec ...core.DBExecutor) (Progress, error)
}

// StatsRecorder keeps the learning stats of students.
type StatsRecorder interface {
	RecordLessonCompleted(ctx context.Context, userID string, exec ...core.DBExecutor) error
}

type Service struct {
	db     core.DB
	repo   Repository
	stats  StatsRecorder
	events core.EventPublisher
	logger core.Logger
	now    func() time.Time // mockable
}

func NewService(db core.DB, repo Repository, stats StatsRecorder, events core.EventPublisher, logger core.Logger) *Service {
	return &Service{db: db, repo: repo, stats: stats, events: events, logger: logger, now: time.Now}
}

// Create creates a Lesson authored by the user identified by authorID. nl must have been validated.
func (svc *Service) Create(ctx context.Context, authorID string, nl NewLesson) (Lesson, error) {
	now := svc.now().UTC()
	lsn := Lesson{
		Title:           nl.Title,
		Subject:         nl.Subject,
		Content:         nl.Content,
		Difficulty:      nl.Difficulty,
		DurationMinutes: defaultDuration,
		Prerequisites:   nl.Prerequisites,
		Tags:            nl.Tags,
		IsPublished:     true,
		CreatedBy:       authorID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if nl.DurationMinutes != nil {
		lsn.DurationMinutes = *nl.DurationMinutes
	}
	if nl.IsPublished != nil {
		lsn.IsPublished = *nl.IsPublished
	}
	if err := svc.checkPrerequisites(ctx, "", lsn.Prerequisites); err != nil {
		return Lesson{}, err
	}
	return svc.repo.CreateLesson(ctx, lsn)
}

func (svc *Service) checkPrerequisites(ctx context.Context, lessonID string, ids []string) error {
	for _, id := range ids {
		if id == lessonID {
			return core.NewFieldValidationError("prerequisites", "a lesson cannot be its own prerequisite")
		}
		if _, err := svc.repo.GetLesson(ctx, id); err != nil {
			if err == ErrNotFound {
				return core.NewFieldValidationError("prerequisites", "unknown lesson: "+id)
			}
			return errors.Wrap(err, "finding prerequisite")
		}
	}
	return nil
}

func (svc *Service) Get(ctx context.Context, id string) (Lesson, error) {
	return svc.repo.GetLesson(ctx, id)
}

// GetVisible returns the lesson if the reader may see it. Unpublished lessons are
// only visible to their author, teachers and admins.
func (svc *Service) GetVisible(ctx context.Context, id, readerID string, privileged bool) (Lesson, error) {
	lsn, err := svc.repo.GetLesson(ctx, id)
	if err != nil {
		return Lesson{}, err
	}
	if !lsn.IsPublished && !privileged && lsn.CreatedBy != readerID {
		return Lesson{}, ErrNotFound
	}
	return lsn, nil
}

// View returns the lesson for a reader and counts the view.
func (svc *Service) View(ctx context.Context, id, readerID string, privileged bool) (Lesson, error) {
	lsn, err := svc.GetVisible(ctx, id, readerID, privileged)
	if err != nil {
		return Lesson{}, err
	}
	if err = svc.repo.IncrementViews(ctx, id); err != nil {
		return Lesson{}, errors.Wrap(err, "incrementing views")
	}
	lsn.ViewsCount++
	return lsn, nil
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, page core.Page) ([]Lesson, core.Pagination, error) {
	page.Clean()
	lessons, total, err := svc.repo.QueryLessons(ctx, filter, page)
	if err != nil {
		return nil, core.Pagination{}, err
	}
	return lessons, core.NewPagination(page, total), nil
}

func (svc *Service) Subjects(ctx context.Context) ([]string, error) {
	return svc.repo.QuerySubjects(ctx)
}

// Update applies ul to lsn if the acting user may edit it. ul must have been validated.
func (svc *Service) Update(ctx context.Context, lsn Lesson, ul UpdateLesson, actorID string, isAdmin bool) (Lesson, error) {
	if !lsn.CanEdit(actorID, isAdmin) {
		return Lesson{}, core.ErrForbidden
	}
	if ul.Title != nil {
		lsn.Title = *ul.Title
	}
	if ul.Subject != nil {
		lsn.Subject = *ul.Subject
	}
	if ul.Content != nil {
		lsn.Content = *ul.Content
	}
	if ul.Difficulty != nil {
		lsn.Difficulty = *ul.Difficulty
	}
	if ul.DurationMinutes != nil {
		lsn.DurationMinutes = *ul.DurationMinutes
	}
	if ul.Prerequisites != nil {
		if err := svc.checkPrerequisites(ctx, lsn.ID, ul.Prerequisites); err != nil {
			return Lesson{}, err
		}
		lsn.Prerequisites = ul.Prerequisites
	}
	if ul.Tags != nil {
		lsn.Tags = ul.Tags
	}
	if ul.IsPublished != nil {
		lsn.IsPublished = *ul.IsPublished
	}
	lsn.UpdatedAt = svc.now().UTC()
	return svc.repo.UpdateLesson(ctx, lsn)
}

// Delete removes lsn, its quizzes and the progress on it, if the acting user may edit it.
func (svc *Service) Delete(ctx context.Context, lsn Lesson, actorID string, isAdmin bool) error {
	if !lsn.CanEdit(actorID, isAdmin) {
		return core.ErrForbidden
	}
	return svc.repo.DeleteLesson(ctx, lsn.ID)
}

func (svc *Service) GetProgress(ctx context.Context, userID, lessonID string) (Progress, error) {
	return svc.repo.GetProgress(ctx, userID, lessonID)
}

func (svc *Service) QueryProgress(ctx context.Context, userID string) ([]Progress, error) {
	return svc.repo.QueryProgress(ctx, userID)
}

func (svc *Service) progressOf(ctx context.Context, userID, lessonID string, now time.Time, exec core.DBExecutor) (Progress, error) {
	if _, err := svc.repo.GetLesson(ctx, lessonID, exec); err != nil {
		return Progress{}, err
	}
	p, err := svc.repo.GetProgress(ctx, userID, lessonID, exec)
	switch err {
	case nil:
		return p, nil
	case ErrProgressNotFound:
		return Progress{
			UserID:    userID,
			LessonID:  lessonID,
			Status:    StatusInProgress,
			StartedAt: null.TimeFrom(now),
		}, nil
	default:
		return Progress{}, errors.Wrap(err, "getting progress")
	}
}

// UpdateProgress records the progress of a student on a lesson. The percentage is capped at 100
// and reaching it completes the lesson. data must have been validated.
func (svc *Service) UpdateProgress(ctx context.Context, userID, lessonID string, data UpdateProgress) (Progress, error) {
	return svc.saveProgress(ctx, userID, lessonID, func(p *Progress, now time.Time) {
		if data.Status != "" {
			p.Status = data.Status
		}
		if data.ProgressPercentage != nil {
			p.ProgressPercentage = core.Clamp(*data.ProgressPercentage, 0, 100)
		}
		p.TimeSpentMinutes += data.TimeSpentMinutes
		if p.ProgressPercentage >= 100 || p.Status == StatusCompleted {
			p.markComplete(now)
		}
	})
}

// MarkComplete completes the lesson for a student, starting it if needed.
func (svc *Service) MarkComplete(ctx context.Context, userID, lessonID string) (Progress, error) {
	return svc.saveProgress(ctx, userID, lessonID, func(p *Progress, now time.Time) {
		p.markComplete(now)
	})
}

func (svc *Service) saveProgress(ctx context.Context, userID, lessonID string, update func(p *Progress, now time.Time)) (Progress, error) {
	now := svc.now().UTC()

	tx, err := svc.db.BeginTxx(ctx, nil)
	if err != nil {
		return Progress{}, errors.Wrap(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()

	p, err := svc.progressOf(ctx, userID, lessonID, now, tx)
	if err != nil {
		return Progress{}, err
	}
	wasCompleted := p.IsCompleted()
	if wasCompleted {
		// keep the first completion date
		completedAt := p.CompletedAt
		update(&p, now)
		if p.IsCompleted() {
			p.CompletedAt = completedAt
		}
	} else {
		update(&p, now)
	}
	if !p.StartedAt.Valid {
		p.StartedAt = null.TimeFrom(now)
	}
	p.LastAccessed = now

	if p, err = svc.repo.SaveProgress(ctx, p, tx); err != nil {
		return Progress{}, errors.Wrap(err, "saving progress")
	}
	if !wasCompleted && p.IsCompleted() {
		if err = svc.stats.RecordLessonCompleted(ctx, userID, tx); err != nil {
			return Progress{}, errors.Wrap(err, "recording lesson completion")
		}
	}
	if err = tx.Commit(); err != nil {
		return Progress{}, errors.Wrap(err, "committing transaction")
	}
	svc.publish(ctx, core.NewEvent(core.EventProgressUpdated, userID, map[string]interface{}{
		"lesson_id":           lessonID,
		"status":              p.Status,
		"progress_percentage": p.ProgressPercentage,
	}))
	return p, nil
}

// publish sends evt without failing the caller: events are best effort.
func (svc *Service) publish(ctx context.Context, evt core.Event) {
	if err := svc.events.Publish(ctx, evt); err != nil {
		svc.logger.Error("publishing "+evt.Type+" event: "+err.Error(), err)
	}
}
