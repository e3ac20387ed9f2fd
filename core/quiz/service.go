package quiz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/learnwise/backend/core"
	"github.com/learnwise/backend/core/lesson"
)

var (
	// errors
	ErrNotFound        = errors.New("quiz not found")
	ErrSessionNotFound = errors.New("quiz session not found")
	ErrNoQuizzes       = errors.New("no quizzes available for this lesson")
	ErrSessionDone     = errors.New("quiz session already completed")
)

// AttemptFilter selects attempts; empty fields are ignored.
type AttemptFilter struct {
	UserID   string
	QuizID   string
	LessonID string
	Since    time.Time // inclusive
	Limit    int       // newest first when set
}

type Repository interface {
	CreateQuiz(ctx context.Context, qz Quiz, exec ...core.DBExecutor) (Quiz, error)
	GetQuiz(ctx context.Context, id string, exec ...core.DBExecutor) (Quiz, error)
	QueryQuizzesByLesson(ctx context.Context, lessonID string, exec ...core.DBExecutor) ([]Quiz, error)
	CountQuizzesByLesson(ctx context.Context, lessonID string, exec ...core.DBExecutor) (int, error)
	UpdateQuiz(ctx context.Context, qz Quiz, exec ...core.DBExecutor) (Quiz, error)
	DeleteQuiz(ctx context.Context, id string, exec ...core.DBExecutor) error

	CreateAttempt(ctx context.Context, at Attempt, exec ...core.DBExecutor) (Attempt, error)
	// QueryAttempts returns the attempts matching filter, newest first.
	QueryAttempts(ctx context.Context, filter AttemptFilter, exec ...core.DBExecutor) ([]Attempt, error)
	AttemptExists(ctx context.Context, userID, quizID string, attemptedAt time.Time, exec ...core.DBExecutor) (bool, error)

	CreateSession(ctx context.Context, s Session, exec ...core.DBExecutor) (Session, error)
	GetSession(ctx context.Context, id string, exec ...core.DBExecutor) (Session, error)
	UpdateSession(ctx context.Context, s Session, exec ...core.DBExecutor) (Session, error)
}

// Reader is the user reading quizzes. Privileged readers see the quizzes of unpublished lessons.
type Reader struct {
	ID         string
	Privileged bool
}

// LessonService is the part of lesson.Service quizzes depend on.
type LessonService interface {
	Get(ctx context.Context, id string) (lesson.Lesson, error)
	GetVisible(ctx context.Context, id, readerID string, privileged bool) (lesson.Lesson, error)
	MarkComplete(ctx context.Context, userID, lessonID string) (lesson.Progress, error)
}

// StatsRecorder keeps the learning stats of students.
type StatsRecorder interface {
	RecordQuizResult(ctx context.Context, userID string, scorePct float64, exec ...core.DBExecutor) error
}

type Service struct {
	db      core.DB
	repo    Repository
	lessons LessonService
	stats   StatsRecorder
	events  core.EventPublisher
	logger  core.Logger
	now     func() time.Time // mockable
}

func NewService(
	db core.DB,
	repo Repository,
	lessons LessonService,
	stats StatsRecorder,
	events core.EventPublisher,
	logger core.Logger,
) *Service {
	return &Service{db: db, repo: repo, lessons: lessons, stats: stats, events: events, logger: logger, now: time.Now}
}

// Create creates a Quiz on an existing lesson. nq must have been validated.
func (svc *Service) Create(ctx context.Context, nq NewQuiz) (Quiz, error) {
	if _, err := svc.lessons.Get(ctx, nq.LessonID); err != nil {
		return Quiz{}, err
	}
	qz := Quiz{
		LessonID:      nq.LessonID,
		Question:      nq.Question,
		QuestionType:  nq.QuestionType,
		Options:       nq.Options,
		CorrectAnswer: *nq.CorrectAnswer,
		Explanation:   nq.Explanation,
		Difficulty:    nq.Difficulty,
		Points:        defaultPoints,
		Hint:          null.NewString(nq.Hint, nq.Hint != ""),
		CreatedAt:     svc.now().UTC(),
	}
	if nq.Points != nil {
		qz.Points = *nq.Points
	}
	return svc.repo.CreateQuiz(ctx, qz)
}

func (svc *Service) Get(ctx context.Context, id string) (Quiz, error) {
	return svc.repo.GetQuiz(ctx, id)
}

// GetForReader returns a quiz whose lesson r may see. Quizzes of hidden lessons are not found.
func (svc *Service) GetForReader(ctx context.Context, id string, r Reader) (Quiz, error) {
	qz, err := svc.repo.GetQuiz(ctx, id)
	if err != nil {
		return Quiz{}, err
	}
	if _, err = svc.lessons.GetVisible(ctx, qz.LessonID, r.ID, r.Privileged); err != nil {
		if err == lesson.ErrNotFound {
			return Quiz{}, ErrNotFound
		}
		return Quiz{}, errors.Wrap(err, "finding lesson")
	}
	return qz, nil
}

// QueryByLesson returns the quizzes of a lesson r may see.
func (svc *Service) QueryByLesson(ctx context.Context, lessonID string, r Reader) ([]Quiz, error) {
	if _, err := svc.lessons.GetVisible(ctx, lessonID, r.ID, r.Privileged); err != nil {
		return nil, err
	}
	return svc.repo.QueryQuizzesByLesson(ctx, lessonID)
}

// Update applies uq to qz. uq must have been validated.
func (svc *Service) Update(ctx context.Context, qz Quiz, uq UpdateQuiz) (Quiz, error) {
	if uq.Question != nil {
		qz.Question = core.CleanString(*uq.Question)
	}
	if uq.Options != nil {
		qz.Options = uq.Options
	}
	if uq.CorrectAnswer != nil {
		qz.CorrectAnswer = *uq.CorrectAnswer
	}
	if uq.Explanation != nil {
		qz.Explanation = *uq.Explanation
	}
	if uq.Difficulty != nil {
		qz.Difficulty = *uq.Difficulty
	}
	if uq.Points != nil {
		qz.Points = *uq.Points
	}
	if uq.Hint != nil {
		hint := core.CleanString(*uq.Hint)
		qz.Hint = null.NewString(hint, hint != "")
	}
	return svc.repo.UpdateQuiz(ctx, qz)
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteQuiz(ctx, id)
}

// RecentAttempts returns the last n attempts of a user on a quiz, newest first.
func (svc *Service) RecentAttempts(ctx context.Context, userID, quizID string, n int) ([]Attempt, error) {
	return svc.repo.QueryAttempts(ctx, AttemptFilter{UserID: userID, QuizID: quizID, Limit: n})
}

func attemptFeedback(qz Quiz, correct bool) string {
	var fb string
	if correct {
		fb = "Correct! "
	} else {
		fb = "Not quite. "
		if opt := qz.CorrectOption(); opt != "" {
			fb += fmt.Sprintf("The correct answer is: %s. ", opt)
		}
	}
	return strings.TrimSpace(fb + qz.Explanation)
}

func scorePct(qz Quiz, score int) float64 {
	if qz.Points <= 0 {
		return 0
	}
	return core.Clamp(100*float64(score)/float64(qz.Points), 0, 100)
}

// SubmitAttempt grades an answer of the user identified by userID. The attempt and the stats
// of the user are saved together. sa must have been validated.
func (svc *Service) SubmitAttempt(ctx context.Context, userID string, qz Quiz, sa SubmitAnswer) (AttemptResult, error) {
	correct := qz.CheckAnswer(*sa.Answer)
	at := Attempt{
		UserID:           userID,
		QuizID:           qz.ID,
		UserAnswer:       *sa.Answer,
		IsCorrect:        correct,
		TimeTakenSeconds: sa.TimeTakenSeconds,
		AttemptedAt:      svc.now().UTC(),
		Synced:           true,
		Feedback:         attemptFeedback(qz, correct),
	}
	if correct {
		at.Score = qz.Points
	}

	tx, err := svc.db.BeginTxx(ctx, nil)
	if err != nil {
		return AttemptResult{}, errors.Wrap(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if at, err = svc.repo.CreateAttempt(ctx, at, tx); err != nil {
		return AttemptResult{}, errors.Wrap(err, "creating attempt")
	}
	if err = svc.stats.RecordQuizResult(ctx, userID, scorePct(qz, at.Score), tx); err != nil {
		return AttemptResult{}, errors.Wrap(err, "recording quiz result")
	}
	if err = tx.Commit(); err != nil {
		return AttemptResult{}, errors.Wrap(err, "committing transaction")
	}

	svc.publish(ctx, core.NewEvent(core.EventAttemptRecorded, userID, map[string]interface{}{
		"quiz_id":    qz.ID,
		"lesson_id":  qz.LessonID,
		"is_correct": correct,
		"score":      at.Score,
		"points":     qz.Points,
	}))
	return AttemptResult{
		Attempt:       at,
		CorrectAnswer: qz.CorrectAnswer,
		CorrectOption: qz.CorrectOption(),
		Explanation:   qz.Explanation,
	}, nil
}

// StartSession opens a quiz session of r on a lesson that has quizzes. ss must have been validated.
func (svc *Service) StartSession(ctx context.Context, r Reader, ss StartSession) (Session, error) {
	if _, err := svc.lessons.GetVisible(ctx, ss.LessonID, r.ID, r.Privileged); err != nil {
		return Session{}, err
	}
	count, err := svc.repo.CountQuizzesByLesson(ctx, ss.LessonID)
	if err != nil {
		return Session{}, errors.Wrap(err, "counting quizzes")
	}
	if count == 0 {
		return Session{}, ErrNoQuizzes
	}
	return svc.repo.CreateSession(ctx, Session{
		UserID:         r.ID,
		LessonID:       ss.LessonID,
		TotalQuestions: count,
		StartedAt:      svc.now().UTC(),
	})
}

// GetSession returns a session owned by the user identified by userID.
func (svc *Service) GetSession(ctx context.Context, userID, id string) (Session, error) {
	s, err := svc.repo.GetSession(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if s.UserID != userID {
		return Session{}, core.ErrForbidden
	}
	return s, nil
}

// CompleteSession scores a session from the attempts made on its lesson since it started.
// Reaching 70% completes the lesson.
func (svc *Service) CompleteSession(ctx context.Context, userID, id string) (Session, error) {
	s, err := svc.GetSession(ctx, userID, id)
	if err != nil {
		return Session{}, err
	}
	if s.IsCompleted() {
		return Session{}, ErrSessionDone
	}

	attempts, err := svc.repo.QueryAttempts(ctx, AttemptFilter{UserID: userID, LessonID: s.LessonID, Since: s.StartedAt})
	if err != nil {
		return Session{}, errors.Wrap(err, "querying session attempts")
	}

	// only the latest answer to each quiz counts
	seen := make(map[string]bool, len(attempts))
	s.CorrectAnswers, s.TotalScore, s.TimeTakenSeconds = 0, 0, 0
	for _, at := range attempts {
		s.TimeTakenSeconds += at.TimeTakenSeconds
		if seen[at.QuizID] {
			continue
		}
		seen[at.QuizID] = true
		if at.IsCorrect {
			s.CorrectAnswers++
		}
		s.TotalScore += at.Score
	}
	if s.TotalQuestions > 0 {
		s.Percentage = core.Round2(core.Clamp(100*float64(s.CorrectAnswers)/float64(s.TotalQuestions), 0, 100))
	}
	s.CompletedAt = null.TimeFrom(svc.now().UTC())

	if s, err = svc.repo.UpdateSession(ctx, s); err != nil {
		return Session{}, errors.Wrap(err, "updating session")
	}
	if s.Percentage >= passingPct {
		if _, err = svc.lessons.MarkComplete(ctx, userID, s.LessonID); err != nil {
			return Session{}, errors.Wrap(err, "completing lesson")
		}
	}

	svc.publish(ctx, core.NewEvent(core.EventSessionCompleted, userID, map[string]interface{}{
		"session_id": s.ID,
		"lesson_id":  s.LessonID,
		"percentage": s.Percentage,
	}))
	return s, nil
}

// SyncOffline records answers given offline. Answers are graded again, unknown quizzes are
// reported and already synced answers are skipped. batch must have been validated.
func (svc *Service) SyncOffline(ctx context.Context, userID string, batch OfflineBatch) (SyncResult, error) {
	res := SyncResult{Errors: make([]string, 0)}
	quizzes := make(map[string]Quiz)

	tx, err := svc.db.BeginTxx(ctx, nil)
	if err != nil {
		return res, errors.Wrap(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()

	synced := make([]Attempt, 0, len(batch.Attempts))
	for _, oa := range batch.Attempts {
		qz, ok := quizzes[oa.QuizID]
		if !ok {
			if qz, err = svc.repo.GetQuiz(ctx, oa.QuizID, tx); err != nil {
				if err == ErrNotFound {
					res.Errors = append(res.Errors, fmt.Sprintf("Quiz %s not found", oa.QuizID))
					continue
				}
				return res, errors.Wrap(err, "finding quiz")
			}
			quizzes[oa.QuizID] = qz
		}

		attemptedAt := oa.AttemptedAt.UTC().Truncate(time.Microsecond)
		exists, err := svc.repo.AttemptExists(ctx, userID, qz.ID, attemptedAt, tx)
		if err != nil {
			return res, errors.Wrap(err, "checking attempt")
		}
		if exists {
			continue
		}

		correct := qz.CheckAnswer(*oa.UserAnswer)
		at := Attempt{
			UserID:           userID,
			QuizID:           qz.ID,
			UserAnswer:       *oa.UserAnswer,
			IsCorrect:        correct,
			TimeTakenSeconds: oa.TimeTakenSeconds,
			AttemptedAt:      attemptedAt,
			Synced:           true,
			Feedback:         attemptFeedback(qz, correct),
		}
		if correct {
			at.Score = qz.Points
		}
		if at, err = svc.repo.CreateAttempt(ctx, at, tx); err != nil {
			return res, errors.Wrap(err, "creating attempt")
		}
		if err = svc.stats.RecordQuizResult(ctx, userID, scorePct(qz, at.Score), tx); err != nil {
			return res, errors.Wrap(err, "recording quiz result")
		}
		synced = append(synced, at)
	}
	if err = tx.Commit(); err != nil {
		return res, errors.Wrap(err, "committing transaction")
	}
	res.SyncedCount = len(synced)
	if len(synced) > 0 {
		svc.publish(ctx, core.NewEvent(core.EventOfflineSynced, userID, map[string]interface{}{
			"synced_count": len(synced),
		}))
	}
	return res, nil
}

// publish sends evt without failing the caller: events are best effort.
func (svc *Service) publish(ctx context.Context, evt core.Event) {
	if err := svc.events.Publish(ctx, evt); err != nil {
		svc.logger.Error("publishing "+evt.Type+" event: "+err.Error(), err)
	}
}
