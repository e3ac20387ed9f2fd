package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/learnwise/backend/core"
	"github.com/learnwise/backend/core/quiz"
)

const (
	quizzesTable  = "quizzes"
	attemptsTable = "attempts"
	sessionsTable = "quiz_sessions"
)

var (
	quizColumns = []string{
		"id", "lesson_id", "question", "question_type", "options", "correct_answer", "explanation",
		"difficulty", "points", "hint", "created_at",
	}
	attemptColumns = []string{
		"id", "user_id", "quiz_id", "user_answer", "is_correct", "score", "time_taken_seconds",
		"attempted_at", "synced", "feedback",
	}
	sessionColumns = []string{
		"id", "user_id", "lesson_id", "total_questions", "correct_answers", "total_score", "percentage",
		"time_taken_seconds", "started_at", "completed_at",
	}
)

type quizRow struct {
	ID            string          `db:"id"`
	LessonID      string          `db:"lesson_id"`
	Question      string          `db:"question"`
	QuestionType  string          `db:"question_type"`
	Options       core.StringList `db:"options"`
	CorrectAnswer int             `db:"correct_answer"`
	Explanation   string          `db:"explanation"`
	Difficulty    string          `db:"difficulty"`
	Points        int             `db:"points"`
	Hint          null.String     `db:"hint"`
	CreatedAt     time.Time       `db:"created_at"`
}

type attemptRow struct {
	ID               string    `db:"id"`
	UserID           string    `db:"user_id"`
	QuizID           string    `db:"quiz_id"`
	UserAnswer       int       `db:"user_answer"`
	IsCorrect        bool      `db:"is_correct"`
	Score            int       `db:"score"`
	TimeTakenSeconds int       `db:"time_taken_seconds"`
	AttemptedAt      time.Time `db:"attempted_at"`
	Synced           bool      `db:"synced"`
	Feedback         string    `db:"feedback"`
}

type sessionRow struct {
	ID               string    `db:"id"`
	UserID           string    `db:"user_id"`
	LessonID         string    `db:"lesson_id"`
	TotalQuestions   int       `db:"total_questions"`
	CorrectAnswers   int       `db:"correct_answers"`
	TotalScore       int       `db:"total_score"`
	Percentage       float64   `db:"percentage"`
	TimeTakenSeconds int       `db:"time_taken_seconds"`
	StartedAt        time.Time `db:"started_at"`
	CompletedAt      null.Time `db:"completed_at"`
}

type QuizRepository struct {
	baseRepo
}

var _ quiz.Repository = (*QuizRepository)(nil) // interface compliance check

func NewQuizRepository(exec core.DBExecutor, engine string) *QuizRepository {
	return &QuizRepository{baseRepo: newBaseRepo(exec, engine)}
}

func (repo QuizRepository) boil(qz quiz.Quiz) quizRow {
	return quizRow{
		ID:            qz.ID,
		LessonID:      qz.LessonID,
		Question:      qz.Question,
		QuestionType:  string(qz.QuestionType),
		Options:       qz.Options,
		CorrectAnswer: qz.CorrectAnswer,
		Explanation:   qz.Explanation,
		Difficulty:    string(qz.Difficulty),
		Points:        qz.Points,
		Hint:          qz.Hint,
		CreatedAt:     qz.CreatedAt.UTC(),
	}
}

func (repo QuizRepository) unboil(row quizRow) quiz.Quiz {
	qz := quiz.Quiz{
		ID:            row.ID,
		LessonID:      row.LessonID,
		Question:      row.Question,
		QuestionType:  quiz.QuestionType(row.QuestionType),
		Options:       row.Options,
		CorrectAnswer: row.CorrectAnswer,
		Explanation:   row.Explanation,
		Difficulty:    core.ParseDifficulty(row.Difficulty),
		Points:        row.Points,
		Hint:          row.Hint,
		CreatedAt:     row.CreatedAt.UTC(),
	}
	if qz.Options == nil {
		qz.Options = core.StringList{}
	}
	return qz
}

func unboilAttempt(row attemptRow) quiz.Attempt {
	return quiz.Attempt{
		ID:               row.ID,
		UserID:           row.UserID,
		QuizID:           row.QuizID,
		UserAnswer:       row.UserAnswer,
		IsCorrect:        row.IsCorrect,
		Score:            row.Score,
		TimeTakenSeconds: row.TimeTakenSeconds,
		AttemptedAt:      row.AttemptedAt.UTC(),
		Synced:           row.Synced,
		Feedback:         row.Feedback,
	}
}

func boilSession(s quiz.Session) sessionRow {
	return sessionRow{
		ID:               s.ID,
		UserID:           s.UserID,
		LessonID:         s.LessonID,
		TotalQuestions:   s.TotalQuestions,
		CorrectAnswers:   s.CorrectAnswers,
		TotalScore:       s.TotalScore,
		Percentage:       s.Percentage,
		TimeTakenSeconds: s.TimeTakenSeconds,
		StartedAt:        s.StartedAt.UTC(),
		CompletedAt:      null.NewTime(s.CompletedAt.Time.UTC(), s.CompletedAt.Valid),
	}
}

func unboilSession(row sessionRow) quiz.Session {
	s := quiz.Session{
		ID:               row.ID,
		UserID:           row.UserID,
		LessonID:         row.LessonID,
		TotalQuestions:   row.TotalQuestions,
		CorrectAnswers:   row.CorrectAnswers,
		TotalScore:       row.TotalScore,
		Percentage:       row.Percentage,
		TimeTakenSeconds: row.TimeTakenSeconds,
		StartedAt:        row.StartedAt.UTC(),
	}
	if row.CompletedAt.Valid {
		s.CompletedAt = null.TimeFrom(row.CompletedAt.Time.UTC())
	}
	return s
}

func (repo QuizRepository) CreateQuiz(ctx context.Context, qz quiz.Quiz, exec ...core.DBExecutor) (quiz.Quiz, error) {
	qz.ID = uuid.New().String()
	row := repo.boil(qz)
	qb := repo.sb.Insert(quizzesTable).Columns(quizColumns...).Values(
		row.ID, row.LessonID, row.Question, row.QuestionType, row.Options, row.CorrectAnswer, row.Explanation,
		row.Difficulty, row.Points, row.Hint, row.CreatedAt,
	)
	if _, err := repo.execute(ctx, repo.getExec(exec), qb); err != nil {
		return quiz.Quiz{}, errors.Wrap(err, "inserting quiz")
	}
	return repo.unboil(row), nil
}

func (repo QuizRepository) GetQuiz(ctx context.Context, id string, exec ...core.DBExecutor) (quiz.Quiz, error) {
	if _, err := uuid.Parse(id); err != nil {
		return quiz.Quiz{}, quiz.ErrNotFound
	}
	var row quizRow
	qb := repo.sb.Select(quizColumns...).From(quizzesTable).Where(sq.Eq{"id": id})
	if err := repo.get(ctx, repo.getExec(exec), &row, qb); err != nil {
		return quiz.Quiz{}, trapNoRowsErr(err, quiz.ErrNotFound, "finding quiz")
	}
	return repo.unboil(row), nil
}

func (repo QuizRepository) QueryQuizzesByLesson(ctx context.Context, lessonID string, exec ...core.DBExecutor) ([]quiz.Quiz, error) {
	qb := repo.sb.Select(quizColumns...).From(quizzesTable).
		Where(sq.Eq{"lesson_id": lessonID}).
		OrderBy("created_at", "id")

	rows := make([]quizRow, 0)
	if err := repo.selectAll(ctx, repo.getExec(exec), &rows, qb); err != nil {
		return nil, errors.Wrap(err, "querying quizzes")
	}
	quizzes := make([]quiz.Quiz, 0, len(rows))
	for _, row := range rows {
		quizzes = append(quizzes, repo.unboil(row))
	}
	return quizzes, nil
}

func (repo QuizRepository) CountQuizzesByLesson(ctx context.Context, lessonID string, exec ...core.DBExecutor) (int, error) {
	return repo.count(ctx, repo.getExec(exec), repo.sb.Select("COUNT(*)").From(quizzesTable).Where(sq.Eq{"lesson_id": lessonID}))
}

func (repo QuizRepository) UpdateQuiz(ctx context.Context, qz quiz.Quiz, exec ...core.DBExecutor) (quiz.Quiz, error) {
	row := repo.boil(qz)
	qb := repo.sb.Update(quizzesTable).SetMap(map[string]interface{}{
		"question":       row.Question,
		"options":        row.Options,
		"correct_answer": row.CorrectAnswer,
		"explanation":    row.Explanation,
		"difficulty":     row.Difficulty,
		"points":         row.Points,
		"hint":           row.Hint,
	}).Where(sq.Eq{"id": row.ID})

	if err := repo.executeOne(ctx, repo.getExec(exec), qb, quiz.ErrNotFound, "updating quiz"); err != nil {
		return quiz.Quiz{}, err
	}
	return repo.unboil(row), nil
}

func (repo QuizRepository) DeleteQuiz(ctx context.Context, id string, exec ...core.DBExecutor) error {
	qb := repo.sb.Delete(quizzesTable).Where(sq.Eq{"id": id})
	return repo.executeOne(ctx, repo.getExec(exec), qb, quiz.ErrNotFound, "deleting quiz")
}

func (repo QuizRepository) CreateAttempt(ctx context.Context, at quiz.Attempt, exec ...core.DBExecutor) (quiz.Attempt, error) {
	at.ID = uuid.New().String()
	at.AttemptedAt = at.AttemptedAt.UTC()
	qb := repo.sb.Insert(attemptsTable).Columns(attemptColumns...).Values(
		at.ID, at.UserID, at.QuizID, at.UserAnswer, at.IsCorrect, at.Score, at.TimeTakenSeconds,
		at.AttemptedAt, at.Synced, at.Feedback,
	)
	if _, err := repo.execute(ctx, repo.getExec(exec), qb); err != nil {
		return quiz.Attempt{}, errors.Wrap(err, "inserting attempt")
	}
	return at, nil
}

func (repo QuizRepository) QueryAttempts(ctx context.Context, filter quiz.AttemptFilter, exec ...core.DBExecutor) ([]quiz.Attempt, error) {
	cols := make([]string, 0, len(attemptColumns))
	for _, c := range attemptColumns {
		cols = append(cols, "a."+c)
	}
	qb := repo.sb.Select(cols...).From(attemptsTable + " a")

	if filter.UserID != "" {
		qb = qb.Where(sq.Eq{"a.user_id": filter.UserID})
	}
	if filter.QuizID != "" {
		qb = qb.Where(sq.Eq{"a.quiz_id": filter.QuizID})
	}
	if filter.LessonID != "" {
		qb = qb.Join("quizzes q ON q.id = a.quiz_id").Where(sq.Eq{"q.lesson_id": filter.LessonID})
	}
	if !filter.Since.IsZero() {
		qb = qb.Where(sq.GtOrEq{"a.attempted_at": filter.Since.UTC()})
	}
	qb = qb.OrderBy("a.attempted_at DESC", "a.id DESC")
	if filter.Limit > 0 {
		qb = qb.Limit(uint64(filter.Limit))
	}

	rows := make([]attemptRow, 0)
	if err := repo.selectAll(ctx, repo.getExec(exec), &rows, qb); err != nil {
		return nil, errors.Wrap(err, "querying attempts")
	}
	attempts := make([]quiz.Attempt, 0, len(rows))
	for _, row := range rows {
		attempts = append(attempts, unboilAttempt(row))
	}
	return attempts, nil
}

func (repo QuizRepository) AttemptExists(ctx context.Context, userID, quizID string, attemptedAt time.Time, exec ...core.DBExecutor) (bool, error) {
	qb := repo.sb.Select("COUNT(*)").From(attemptsTable).
		Where(sq.Eq{"user_id": userID, "quiz_id": quizID, "attempted_at": attemptedAt.UTC()})
	n, err := repo.count(ctx, repo.getExec(exec), qb)
	if err != nil {
		return false, errors.Wrap(err, "checking attempt")
	}
	return n > 0, nil
}

func (repo QuizRepository) CreateSession(ctx context.Context, s quiz.Session, exec ...core.DBExecutor) (quiz.Session, error) {
	s.ID = uuid.New().String()
	row := boilSession(s)
	qb := repo.sb.Insert(sessionsTable).Columns(sessionColumns...).Values(
		row.ID, row.UserID, row.LessonID, row.TotalQuestions, row.CorrectAnswers, row.TotalScore, row.Percentage,
		row.TimeTakenSeconds, row.StartedAt, row.CompletedAt,
	)
	if _, err := repo.execute(ctx, repo.getExec(exec), qb); err != nil {
		return quiz.Session{}, errors.Wrap(err, "inserting quiz session")
	}
	return unboilSession(row), nil
}

func (repo QuizRepository) GetSession(ctx context.Context, id string, exec ...core.DBExecutor) (quiz.Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return quiz.Session{}, quiz.ErrSessionNotFound
	}
	var row sessionRow
	qb := repo.sb.Select(sessionColumns...).From(sessionsTable).Where(sq.Eq{"id": id})
	if err := repo.get(ctx, repo.getExec(exec), &row, qb); err != nil {
		return quiz.Session{}, trapNoRowsErr(err, quiz.ErrSessionNotFound, "finding quiz session")
	}
	return unboilSession(row), nil
}

func (repo QuizRepository) UpdateSession(ctx context.Context, s quiz.Session, exec ...core.DBExecutor) (quiz.Session, error) {
	row := boilSession(s)
	qb := repo.sb.Update(sessionsTable).SetMap(map[string]interface{}{
		"correct_answers":    row.CorrectAnswers,
		"total_score":        row.TotalScore,
		"percentage":         row.Percentage,
		"time_taken_seconds": row.TimeTakenSeconds,
		"completed_at":       row.CompletedAt,
	}).Where(sq.Eq{"id": row.ID})

	if err := repo.executeOne(ctx, repo.getExec(exec), qb, quiz.ErrSessionNotFound, "updating quiz session"); err != nil {
		return quiz.Session{}, err
	}
	return unboilSession(row), nil
}

// QueryRecentSessions returns the last `limit` sessions of a user, newest first.
func (repo QuizRepository) QueryRecentSessions(ctx context.Context, userID string, limit int, exec ...core.DBExecutor) ([]quiz.Session, error) {
	qb := repo.sb.Select(sessionColumns...).From(sessionsTable).
		Where(sq.Eq{"user_id": userID}).
		OrderBy("started_at DESC", "id")
	if limit > 0 {
		qb = qb.Limit(uint64(limit))
	}

	rows := make([]sessionRow, 0)
	if err := repo.selectAll(ctx, repo.getExec(exec), &rows, qb); err != nil {
		return nil, errors.Wrap(err, "querying quiz sessions")
	}
	sessions := make([]quiz.Session, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, unboilSession(row))
	}
	return sessions, nil
}
