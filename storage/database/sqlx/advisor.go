package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/learnwise/backend/core"
	"github.com/learnwise/backend/core/advisor"
	"github.com/learnwise/backend/core/lesson"
	"github.com/learnwise/backend/core/quiz"
)

type attemptRecordRow struct {
	IsCorrect   bool      `db:"is_correct"`
	Score       int       `db:"score"`
	Points      int       `db:"points"`
	Difficulty  string    `db:"difficulty"`
	Subject     string    `db:"subject"`
	AttemptedAt time.Time `db:"attempted_at"`
}

type catalogRow struct {
	ID              string          `db:"id"`
	Title           string          `db:"title"`
	Subject         string          `db:"subject"`
	Difficulty      string          `db:"difficulty"`
	DurationMinutes int             `db:"duration_minutes"`
	Prerequisites   core.StringList `db:"prerequisites"`
	Tags            core.StringList `db:"tags"`
	IsPublished     bool            `db:"is_published"`
	ViewsCount      int             `db:"views_count"`
	QuizCount       int             `db:"quiz_count"`
	CreatedBy       string          `db:"created_by"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

type quizInfoRow struct {
	ID         string  `db:"id"`
	Difficulty string  `db:"difficulty"`
	Hint       *string `db:"hint"`
	Subject    string  `db:"subject"`
}

type lessonActivityRow struct {
	LessonID        string `db:"lesson_id"`
	LessonTitle     string `db:"lesson_title"`
	QuizCount       int    `db:"quiz_count"`
	TotalAttempts   int    `db:"total_attempts"`
	CorrectAttempts int    `db:"correct_attempts"`
	UniqueStudents  int    `db:"unique_students"`
}

// AdvisorRepository reads the learner data the advisor works on.
type AdvisorRepository struct {
	baseRepo
	quizzes *QuizRepository
}

var _ advisor.Repository = (*AdvisorRepository)(nil) // interface compliance check

func NewAdvisorRepository(exec core.DBExecutor, engine string) *AdvisorRepository {
	return &AdvisorRepository{
		baseRepo: newBaseRepo(exec, engine),
		quizzes:  NewQuizRepository(exec, engine),
	}
}

// QueryAttemptRecords scores each attempt as a percentage of the quiz points and tags it
// with the subject of the quiz lesson.
func (repo AdvisorRepository) QueryAttemptRecords(ctx context.Context, userID string, limit int) ([]advisor.AttemptRecord, error) {
	qb := repo.sb.
		Select("a.is_correct", "a.score", "q.points", "q.difficulty", "l.subject", "a.attempted_at").
		From(attemptsTable+" a").
		Join("quizzes q ON q.id = a.quiz_id").
		Join("lessons l ON l.id = q.lesson_id").
		Where(sq.Eq{"a.user_id": userID}).
		OrderBy("a.attempted_at DESC", "a.id DESC")
	if limit > 0 {
		qb = qb.Limit(uint64(limit))
	}

	rows := make([]attemptRecordRow, 0)
	if err := repo.selectAll(ctx, repo.exec, &rows, qb); err != nil {
		return nil, errors.Wrap(err, "querying attempt records")
	}

	// newest first -> chronological
	records := make([]advisor.AttemptRecord, len(rows))
	for i, row := range rows {
		var score float64
		if row.Points > 0 {
			score = core.Clamp(100*float64(row.Score)/float64(row.Points), 0, 100)
		}
		records[len(rows)-1-i] = advisor.AttemptRecord{
			IsCorrect:  row.IsCorrect,
			Score:      score,
			Topic:      row.Subject,
			Difficulty: core.ParseDifficulty(row.Difficulty),
			Timestamp:  row.AttemptedAt.UTC(),
		}
	}
	return records, nil
}

func (repo AdvisorRepository) QueryCatalog(ctx context.Context, publishedOnly bool) ([]advisor.LessonSummary, error) {
	qb := repo.sb.Select(
		"id", "title", "subject", "difficulty", "duration_minutes", "prerequisites", "tags",
		"is_published", "views_count", quizCountColumn, "created_by", "created_at", "updated_at",
	).
		From(lessonsTable).
		OrderBy("created_at", "id")
	if publishedOnly {
		qb = qb.Where(sq.Eq{"is_published": true})
	}

	rows := make([]catalogRow, 0)
	if err := repo.selectAll(ctx, repo.exec, &rows, qb); err != nil {
		return nil, errors.Wrap(err, "querying lesson catalog")
	}
	catalog := make([]advisor.LessonSummary, 0, len(rows))
	for _, row := range rows {
		catalog = append(catalog, advisor.LessonSummary{
			ID:              row.ID,
			Title:           row.Title,
			Subject:         row.Subject,
			Difficulty:      core.ParseDifficulty(row.Difficulty),
			DurationMinutes: row.DurationMinutes,
			Prerequisites:   []string(row.Prerequisites),
			Tags:            []string(row.Tags),
			IsPublished:     row.IsPublished,
			ViewsCount:      row.ViewsCount,
			QuizCount:       row.QuizCount,
			CreatedBy:       row.CreatedBy,
			CreatedAt:       row.CreatedAt.UTC(),
			UpdatedAt:       row.UpdatedAt.UTC(),
		})
	}
	return catalog, nil
}

func (repo AdvisorRepository) CompletedLessonIDs(ctx context.Context, userID string) ([]string, error) {
	qb := repo.sb.Select("lesson_id").From(progressTable).
		Where(sq.Eq{"user_id": userID, "status": string(lesson.StatusCompleted)}).
		OrderBy("completed_at", "lesson_id")

	ids := make([]string, 0)
	if err := repo.selectAll(ctx, repo.exec, &ids, qb); err != nil {
		return nil, errors.Wrap(err, "querying completed lessons")
	}
	return ids, nil
}

func (repo AdvisorRepository) GetQuizInfo(ctx context.Context, quizID string) (advisor.QuizInfo, error) {
	if _, err := uuid.Parse(quizID); err != nil {
		return advisor.QuizInfo{}, quiz.ErrNotFound
	}
	qb := repo.sb.Select("q.id", "q.difficulty", "q.hint", "l.subject").
		From(quizzesTable + " q").
		Join("lessons l ON l.id = q.lesson_id").
		Where(sq.Eq{"q.id": quizID})

	var row quizInfoRow
	if err := repo.get(ctx, repo.exec, &row, qb); err != nil {
		return advisor.QuizInfo{}, trapNoRowsErr(err, quiz.ErrNotFound, "finding quiz")
	}
	info := advisor.QuizInfo{
		ID:         row.ID,
		Topic:      row.Subject,
		Difficulty: core.ParseDifficulty(row.Difficulty),
	}
	if row.Hint != nil {
		info.Hint = *row.Hint
	}
	return info, nil
}

func (repo AdvisorRepository) QueryRecentSessions(ctx context.Context, userID string, limit int) ([]quiz.Session, error) {
	return repo.quizzes.QueryRecentSessions(ctx, userID, limit)
}

// QueryLessonActivity aggregates the attempts on the quizzes of every lesson written by authorID.
func (repo AdvisorRepository) QueryLessonActivity(ctx context.Context, authorID string) ([]advisor.LessonActivity, error) {
	qb := repo.sb.
		Select(
			"l.id AS lesson_id",
			"l.title AS lesson_title",
			"(SELECT COUNT(*) FROM quizzes q WHERE q.lesson_id = l.id) AS quiz_count",
			"COUNT(a.id) AS total_attempts",
			"COALESCE(SUM(CASE WHEN a.is_correct THEN 1 ELSE 0 END), 0) AS correct_attempts",
			"COUNT(DISTINCT a.user_id) AS unique_students",
		).
		From(lessonsTable+" l").
		LeftJoin("quizzes q ON q.lesson_id = l.id").
		LeftJoin("attempts a ON a.quiz_id = q.id").
		Where(sq.Eq{"l.created_by": authorID}).
		GroupBy("l.id", "l.title", "l.created_at").
		OrderBy("l.created_at", "l.id")

	rows := make([]lessonActivityRow, 0)
	if err := repo.selectAll(ctx, repo.exec, &rows, qb); err != nil {
		return nil, errors.Wrap(err, "querying lesson activity")
	}
	activity := make([]advisor.LessonActivity, 0, len(rows))
	for _, row := range rows {
		activity = append(activity, advisor.LessonActivity(row))
	}
	return activity, nil
}

func (repo AdvisorRepository) CountStudentsOfAuthor(ctx context.Context, authorID string) (int, error) {
	qb := repo.sb.Select("COUNT(DISTINCT a.user_id)").
		From(attemptsTable + " a").
		Join("quizzes q ON q.id = a.quiz_id").
		Join("lessons l ON l.id = q.lesson_id").
		Where(sq.Eq{"l.created_by": authorID})
	return repo.count(ctx, repo.exec, qb)
}
