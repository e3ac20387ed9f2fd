package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/learnwise/backend/core"
	"github.com/learnwise/backend/core/lesson"
)

const (
	lessonsTable  = "lessons"
	progressTable = "lesson_progress"

	quizCountColumn = "(SELECT COUNT(*) FROM quizzes q WHERE q.lesson_id = lessons.id) AS quiz_count"
)

var (
	lessonColumns = []string{
		"id", "title", "subject", "content", "difficulty", "duration_minutes", "prerequisites", "tags",
		"is_published", "views_count", "created_by", "created_at", "updated_at",
	}
	progressColumns = []string{
		"id", "user_id", "lesson_id", "status", "progress_percentage", "time_spent_minutes",
		"started_at", "completed_at", "last_accessed",
	}
)

type lessonRow struct {
	ID              string          `db:"id"`
	Title           string          `db:"title"`
	Subject         string          `db:"subject"`
	Content         string          `db:"content"`
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

type progressRow struct {
	ID                 string    `db:"id"`
	UserID             string    `db:"user_id"`
	LessonID           string    `db:"lesson_id"`
	Status             string    `db:"status"`
	ProgressPercentage float64   `db:"progress_percentage"`
	TimeSpentMinutes   int       `db:"time_spent_minutes"`
	StartedAt          null.Time `db:"started_at"`
	CompletedAt        null.Time `db:"completed_at"`
	LastAccessed       time.Time `db:"last_accessed"`
}

type LessonRepository struct {
	baseRepo
}

var _ lesson.Repository = (*LessonRepository)(nil) // interface compliance check

func NewLessonRepository(exec core.DBExecutor, engine string) *LessonRepository {
	return &LessonRepository{baseRepo: newBaseRepo(exec, engine)}
}

func (repo LessonRepository) boil(lsn lesson.Lesson) lessonRow {
	return lessonRow{
		ID:              lsn.ID,
		Title:           lsn.Title,
		Subject:         lsn.Subject,
		Content:         lsn.Content,
		Difficulty:      string(lsn.Difficulty),
		DurationMinutes: lsn.DurationMinutes,
		Prerequisites:   lsn.Prerequisites,
		Tags:            lsn.Tags,
		IsPublished:     lsn.IsPublished,
		ViewsCount:      lsn.ViewsCount,
		QuizCount:       lsn.QuizCount,
		CreatedBy:       lsn.CreatedBy,
		CreatedAt:       lsn.CreatedAt.UTC(),
		UpdatedAt:       lsn.UpdatedAt.UTC(),
	}
}

func (repo LessonRepository) unboil(row lessonRow) lesson.Lesson {
	lsn := lesson.Lesson{
		ID:              row.ID,
		Title:           row.Title,
		Subject:         row.Subject,
		Content:         row.Content,
		Difficulty:      core.ParseDifficulty(row.Difficulty),
		DurationMinutes: row.DurationMinutes,
		Prerequisites:   row.Prerequisites,
		Tags:            row.Tags,
		IsPublished:     row.IsPublished,
		ViewsCount:      row.ViewsCount,
		QuizCount:       row.QuizCount,
		CreatedBy:       row.CreatedBy,
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}
	if lsn.Prerequisites == nil {
		lsn.Prerequisites = core.StringList{}
	}
	if lsn.Tags == nil {
		lsn.Tags = core.StringList{}
	}
	return lsn
}

func (repo LessonRepository) boilProgress(p lesson.Progress) progressRow {
	return progressRow{
		ID:                 p.ID,
		UserID:             p.UserID,
		LessonID:           p.LessonID,
		Status:             string(p.Status),
		ProgressPercentage: p.ProgressPercentage,
		TimeSpentMinutes:   p.TimeSpentMinutes,
		StartedAt:          null.NewTime(p.StartedAt.Time.UTC(), p.StartedAt.Valid),
		CompletedAt:        null.NewTime(p.CompletedAt.Time.UTC(), p.CompletedAt.Valid),
		LastAccessed:       p.LastAccessed.UTC(),
	}
}

func (repo LessonRepository) unboilProgress(row progressRow) lesson.Progress {
	p := lesson.Progress{
		ID:                 row.ID,
		UserID:             row.UserID,
		LessonID:           row.LessonID,
		Status:             lesson.ProgressStatus(row.Status),
		ProgressPercentage: row.ProgressPercentage,
		TimeSpentMinutes:   row.TimeSpentMinutes,
		LastAccessed:       row.LastAccessed.UTC(),
	}
	if row.StartedAt.Valid {
		p.StartedAt = null.TimeFrom(row.StartedAt.Time.UTC())
	}
	if row.CompletedAt.Valid {
		p.CompletedAt = null.TimeFrom(row.CompletedAt.Time.UTC())
	}
	return p
}

func (repo LessonRepository) selectLessons() sq.SelectBuilder {
	return repo.sb.Select(lessonColumns...).Column(quizCountColumn).From(lessonsTable)
}

func (repo LessonRepository) CreateLesson(ctx context.Context, lsn lesson.Lesson, exec ...core.DBExecutor) (lesson.Lesson, error) {
	lsn.ID = uuid.New().String()
	row := repo.boil(lsn)
	qb := repo.sb.Insert(lessonsTable).Columns(lessonColumns...).Values(
		row.ID, row.Title, row.Subject, row.Content, row.Difficulty, row.DurationMinutes, row.Prerequisites,
		row.Tags, row.IsPublished, row.ViewsCount, row.CreatedBy, row.CreatedAt, row.UpdatedAt,
	)
	if _, err := repo.execute(ctx, repo.getExec(exec), qb); err != nil {
		return lesson.Lesson{}, errors.Wrap(err, "inserting lesson")
	}
	return repo.unboil(row), nil
}

func (repo LessonRepository) GetLesson(ctx context.Context, id string, exec ...core.DBExecutor) (lesson.Lesson, error) {
	if _, err := uuid.Parse(id); err != nil {
		return lesson.Lesson{}, lesson.ErrNotFound
	}
	var row lessonRow
	if err := repo.get(ctx, repo.getExec(exec), &row, repo.selectLessons().Where(sq.Eq{"id": id})); err != nil {
		return lesson.Lesson{}, trapNoRowsErr(err, lesson.ErrNotFound, "finding lesson")
	}
	return repo.unboil(row), nil
}

func lessonConds(filter *lesson.QueryFilter) sq.And {
	conds := sq.And{}
	if filter == nil {
		return conds
	}
	if filter.Subject != "" {
		conds = append(conds, sq.Eq{"subject": filter.Subject})
	}
	if filter.Difficulty != "" {
		conds = append(conds, sq.Eq{"difficulty": string(filter.Difficulty)})
	}
	if filter.Search != "" {
		conds = append(conds, sq.Or{ilike("title", filter.Search), ilike("content", filter.Search)})
	}
	if filter.Published != nil {
		conds = append(conds, sq.Eq{"is_published": *filter.Published})
	}
	if filter.CreatedBy != "" {
		conds = append(conds, sq.Eq{"created_by": filter.CreatedBy})
	}
	return conds
}

func (repo LessonRepository) QueryLessons(ctx context.Context, filter *lesson.QueryFilter, page core.Page, exec ...core.DBExecutor) ([]lesson.Lesson, int, error) {
	exe := repo.getExec(exec)
	conds := lessonConds(filter)

	total, err := repo.count(ctx, exe, repo.sb.Select("COUNT(*)").From(lessonsTable).Where(conds))
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting lessons")
	}

	qb := repo.selectLessons().Where(conds).
		OrderBy("created_at DESC", "id").
		Limit(page.Limit()).
		Offset(page.Offset())
	rows := make([]lessonRow, 0)
	if err = repo.selectAll(ctx, exe, &rows, qb); err != nil {
		return nil, 0, errors.Wrap(err, "querying lessons")
	}

	lessons := make([]lesson.Lesson, 0, len(rows))
	for _, row := range rows {
		lessons = append(lessons, repo.unboil(row))
	}
	return lessons, total, nil
}

func (repo LessonRepository) QuerySubjects(ctx context.Context, exec ...core.DBExecutor) ([]string, error) {
	qb := repo.sb.Select("subject").Distinct().From(lessonsTable).Where(sq.NotEq{"subject": ""}).OrderBy("subject")
	subjects := make([]string, 0)
	if err := repo.selectAll(ctx, repo.getExec(exec), &subjects, qb); err != nil {
		return nil, errors.Wrap(err, "querying subjects")
	}
	return subjects, nil
}

func (repo LessonRepository) UpdateLesson(ctx context.Context, lsn lesson.Lesson, exec ...core.DBExecutor) (lesson.Lesson, error) {
	row := repo.boil(lsn)
	qb := repo.sb.Update(lessonsTable).SetMap(map[string]interface{}{
		"title":            row.Title,
		"subject":          row.Subject,
		"content":          row.Content,
		"difficulty":       row.Difficulty,
		"duration_minutes": row.DurationMinutes,
		"prerequisites":    row.Prerequisites,
		"tags":             row.Tags,
		"is_published":     row.IsPublished,
		"updated_at":       row.UpdatedAt,
	}).Where(sq.Eq{"id": row.ID})

	if err := repo.executeOne(ctx, repo.getExec(exec), qb, lesson.ErrNotFound, "updating lesson"); err != nil {
		return lesson.Lesson{}, err
	}
	return repo.unboil(row), nil
}

func (repo LessonRepository) IncrementViews(ctx context.Context, id string, exec ...core.DBExecutor) error {
	qb := repo.sb.Update(lessonsTable).Set("views_count", sq.Expr("views_count + 1")).Where(sq.Eq{"id": id})
	return repo.executeOne(ctx, repo.getExec(exec), qb, lesson.ErrNotFound, "incrementing lesson views")
}

func (repo LessonRepository) DeleteLesson(ctx context.Context, id string, exec ...core.DBExecutor) error {
	qb := repo.sb.Delete(lessonsTable).Where(sq.Eq{"id": id})
	return repo.executeOne(ctx, repo.getExec(exec), qb, lesson.ErrNotFound, "deleting lesson")
}

func (repo LessonRepository) GetProgress(ctx context.Context, userID, lessonID string, exec ...core.DBExecutor) (lesson.Progress, error) {
	qb := repo.sb.Select(progressColumns...).From(progressTable).
		Where(sq.Eq{"user_id": userID, "lesson_id": lessonID})

	var row progressRow
	if err := repo.get(ctx, repo.getExec(exec), &row, qb); err != nil {
		return lesson.Progress{}, trapNoRowsErr(err, lesson.ErrProgressNotFound, "finding lesson progress")
	}
	return repo.unboilProgress(row), nil
}

func (repo LessonRepository) QueryProgress(ctx context.Context, userID string, exec ...core.DBExecutor) ([]lesson.Progress, error) {
	qb := repo.sb.Select(progressColumns...).From(progressTable).
		Where(sq.Eq{"user_id": userID}).
		OrderBy("last_accessed DESC", "id")

	rows := make([]progressRow, 0)
	if err := repo.selectAll(ctx, repo.getExec(exec), &rows, qb); err != nil {
		return nil, errors.Wrap(err, "querying lesson progress")
	}
	progress := make([]lesson.Progress, 0, len(rows))
	for _, row := range rows {
		progress = append(progress, repo.unboilProgress(row))
	}
	return progress, nil
}

func (repo LessonRepository) SaveProgress(ctx context.Context, p lesson.Progress, exec ...core.DBExecutor) (lesson.Progress, error) {
	exe := repo.getExec(exec)

	if p.ID == "" {
		p.ID = uuid.New().String()
		row := repo.boilProgress(p)
		qb := repo.sb.Insert(progressTable).Columns(progressColumns...).Values(
			row.ID, row.UserID, row.LessonID, row.Status, row.ProgressPercentage, row.TimeSpentMinutes,
			row.StartedAt, row.CompletedAt, row.LastAccessed,
		)
		if _, err := repo.execute(ctx, exe, qb); err != nil {
			return lesson.Progress{}, errors.Wrap(err, "inserting lesson progress")
		}
		return repo.unboilProgress(row), nil
	}

	row := repo.boilProgress(p)
	qb := repo.sb.Update(progressTable).SetMap(map[string]interface{}{
		"status":              row.Status,
		"progress_percentage": row.ProgressPercentage,
		"time_spent_minutes":  row.TimeSpentMinutes,
		"started_at":          row.StartedAt,
		"completed_at":        row.CompletedAt,
		"last_accessed":       row.LastAccessed,
	}).Where(sq.Eq{"id": row.ID})
	if err := repo.executeOne(ctx, exe, qb, lesson.ErrProgressNotFound, "updating lesson progress"); err != nil {
		return lesson.Progress{}, err
	}
	return repo.unboilProgress(row), nil
}
