package sqlxrepos

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/learnwise/backend/core"
	"github.com/learnwise/backend/core/user"
)

const (
	usersTable    = "users"
	profilesTable = "student_profiles"
)

var (
	userColumns = []string{
		"id", "name", "email", "role", "is_active", "email_verified", "password_hash",
		"created_at", "updated_at", "last_login",
	}
	profileColumns = []string{
		"user_id", "branch", "semester", "baseline_score", "average_score", "total_quizzes_taken",
		"total_lessons_completed", "parent_pin_hash", "created_at", "updated_at",
	}
)

type userRow struct {
	ID            string    `db:"id"`
	Name          string    `db:"name"`
	Email         string    `db:"email"`
	Role          string    `db:"role"`
	IsActive      bool      `db:"is_active"`
	EmailVerified bool      `db:"email_verified"`
	PasswordHash  string    `db:"password_hash"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
	LastLogin     null.Time `db:"last_login"`
}

type profileRow struct {
	UserID                string      `db:"user_id"`
	Branch                string      `db:"branch"`
	Semester              int         `db:"semester"`
	BaselineScore         float64     `db:"baseline_score"`
	AverageScore          float64     `db:"average_score"`
	TotalQuizzesTaken     int         `db:"total_quizzes_taken"`
	TotalLessonsCompleted int         `db:"total_lessons_completed"`
	ParentPINHash         null.String `db:"parent_pin_hash"`
	CreatedAt             time.Time   `db:"created_at"`
	UpdatedAt             time.Time   `db:"updated_at"`
}

type UserRepository struct {
	baseRepo
}

var _ user.Repository = (*UserRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor, engine string) *UserRepository {
	return &UserRepository{baseRepo: newBaseRepo(exec, engine)}
}

func (repo UserRepository) boil(usr user.User) userRow {
	return userRow{
		ID:            usr.ID,
		Name:          usr.Name,
		Email:         usr.Email,
		Role:          string(usr.Role),
		IsActive:      usr.IsActive,
		EmailVerified: usr.EmailVerified,
		PasswordHash:  string(usr.PasswordHash),
		CreatedAt:     usr.CreatedAt.UTC(),
		UpdatedAt:     usr.UpdatedAt.UTC(),
		LastLogin:     null.NewTime(usr.LastLogin.Time.UTC(), usr.LastLogin.Valid),
	}
}

func (repo UserRepository) unboil(row userRow) user.User {
	usr := user.User{
		ID:            row.ID,
		Name:          row.Name,
		Email:         row.Email,
		Role:          user.Role(row.Role),
		IsActive:      row.IsActive,
		EmailVerified: row.EmailVerified,
		PasswordHash:  []byte(row.PasswordHash),
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
	}
	if row.LastLogin.Valid {
		usr.LastLogin = null.TimeFrom(row.LastLogin.Time.UTC())
	}
	return usr
}

func (repo UserRepository) boilProfile(p user.StudentProfile) profileRow {
	return profileRow{
		UserID:                p.UserID,
		Branch:                p.Branch,
		Semester:              p.Semester,
		BaselineScore:         p.BaselineScore,
		AverageScore:          p.AverageScore,
		TotalQuizzesTaken:     p.TotalQuizzesTaken,
		TotalLessonsCompleted: p.TotalLessonsCompleted,
		ParentPINHash:         null.NewString(string(p.ParentPINHash), len(p.ParentPINHash) > 0),
		CreatedAt:             p.CreatedAt.UTC(),
		UpdatedAt:             p.UpdatedAt.UTC(),
	}
}

func (repo UserRepository) unboilProfile(row profileRow) user.StudentProfile {
	p := user.StudentProfile{
		UserID:                row.UserID,
		Branch:                row.Branch,
		Semester:              row.Semester,
		BaselineScore:         row.BaselineScore,
		AverageScore:          core.Round2(row.AverageScore),
		TotalQuizzesTaken:     row.TotalQuizzesTaken,
		TotalLessonsCompleted: row.TotalLessonsCompleted,
		CreatedAt:             row.CreatedAt.UTC(),
		UpdatedAt:             row.UpdatedAt.UTC(),
	}
	if row.ParentPINHash.Valid && row.ParentPINHash.String != "" {
		p.ParentPINHash = []byte(row.ParentPINHash.String)
		p.HasParentPIN = true
	}
	return p
}

func (repo UserRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	qb := repo.sb.Select("COUNT(*)").From(usersTable).Where(sq.Eq{"email": email})
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		qb = qb.Where(sq.NotEq{"id": ids})
	}

	n, err := repo.count(ctx, repo.getExec(exec), qb)
	if err != nil {
		return errors.Wrap(err, "checking email uniqueness")
	}
	if n > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo UserRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.New().String()
	row := repo.boil(usr)
	qb := repo.sb.Insert(usersTable).Columns(userColumns...).Values(
		row.ID, row.Name, row.Email, row.Role, row.IsActive, row.EmailVerified, row.PasswordHash,
		row.CreatedAt, row.UpdatedAt, row.LastLogin,
	)
	if _, err := repo.execute(ctx, repo.getExec(exec), qb); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return repo.unboil(row), nil
}

func (repo UserRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	qb := repo.sb.Select(userColumns...).From(usersTable)

	if filter != nil && !filter.IsEmpty() {
		// users with Name or Email matching the search keyword
		if filter.Search != "" {
			qb = qb.Where(sq.Or{ilike("name", filter.Search), ilike("email", filter.Search)})
		}
		if len(filter.Roles) > 0 {
			roles := make([]string, 0, len(filter.Roles))
			for _, r := range filter.Roles {
				roles = append(roles, string(r))
			}
			qb = qb.Where(sq.Eq{"role": roles})
		}
		if filter.IsActive != nil {
			qb = qb.Where(sq.Eq{"is_active": *filter.IsActive})
		}
		if !filter.CreatedFrom.IsZero() {
			qb = qb.Where(sq.GtOrEq{"created_at": filter.CreatedFrom.UTC()})
		}
		if !filter.CreatedTo.IsZero() {
			qb = qb.Where(sq.LtOrEq{"created_at": filter.CreatedTo.UTC()})
		}
	}
	qb = qb.OrderBy(orderBy(ordering, "created_at DESC", "id")...)

	rows := make([]userRow, 0)
	if err := repo.selectAll(ctx, repo.getExec(exec), &rows, qb); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, repo.unboil(row))
	}
	return users, nil
}

// GetUser returns the User matching filter, along with their StudentProfile if they have one.
func (repo UserRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	exe := repo.getExec(exec)
	qb := repo.sb.Select(userColumns...).From(usersTable).Limit(1)

	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		qb = qb.Where(sq.Eq{"id": filter.ID})
	case filter.Email != "":
		qb = qb.Where(sq.Eq{"email": filter.Email})
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	if err := repo.get(ctx, exe, &row, qb); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user")
	}
	usr := repo.unboil(row)

	profile, err := repo.GetProfile(ctx, usr.ID, exe)
	switch err {
	case nil:
		usr.Profile = &profile
	case user.ErrProfileNotFound:
	default:
		return user.User{}, err
	}
	return usr, nil
}

func (repo UserRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	row := repo.boil(usr)
	qb := repo.sb.Update(usersTable).SetMap(map[string]interface{}{
		"name":           row.Name,
		"email":          row.Email,
		"role":           row.Role,
		"is_active":      row.IsActive,
		"email_verified": row.EmailVerified,
		"password_hash":  row.PasswordHash,
		"updated_at":     row.UpdatedAt,
		"last_login":     row.LastLogin,
	}).Where(sq.Eq{"id": row.ID})

	if err := repo.executeOne(ctx, repo.getExec(exec), qb, user.ErrNotFound, "updating user"); err != nil {
		return user.User{}, err
	}
	updated := repo.unboil(row)
	updated.Profile = usr.Profile
	return updated, nil
}

func (repo UserRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) error {
	if len(ids) == 0 {
		return nil
	}
	qb := repo.sb.Delete(usersTable).Where(sq.Eq{"id": ids})
	if _, err := repo.execute(ctx, repo.getExec(exec), qb); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return nil
}

func (repo UserRepository) CreateProfile(ctx context.Context, p user.StudentProfile, exec ...core.DBExecutor) (user.StudentProfile, error) {
	row := repo.boilProfile(p)
	qb := repo.sb.Insert(profilesTable).Columns(profileColumns...).Values(
		row.UserID, row.Branch, row.Semester, row.BaselineScore, row.AverageScore, row.TotalQuizzesTaken,
		row.TotalLessonsCompleted, row.ParentPINHash, row.CreatedAt, row.UpdatedAt,
	)
	if _, err := repo.execute(ctx, repo.getExec(exec), qb); err != nil {
		return user.StudentProfile{}, errors.Wrap(err, "inserting student profile")
	}
	return repo.unboilProfile(row), nil
}

func (repo UserRepository) GetProfile(ctx context.Context, userID string, exec ...core.DBExecutor) (user.StudentProfile, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return user.StudentProfile{}, user.ErrProfileNotFound
	}
	qb := repo.sb.Select(profileColumns...).From(profilesTable).Where(sq.Eq{"user_id": userID})

	var row profileRow
	if err := repo.get(ctx, repo.getExec(exec), &row, qb); err != nil {
		return user.StudentProfile{}, trapNoRowsErr(err, user.ErrProfileNotFound, "finding student profile")
	}
	return repo.unboilProfile(row), nil
}

func (repo UserRepository) UpdateProfile(ctx context.Context, p user.StudentProfile, exec ...core.DBExecutor) (user.StudentProfile, error) {
	row := repo.boilProfile(p)
	qb := repo.sb.Update(profilesTable).SetMap(map[string]interface{}{
		"branch":                  row.Branch,
		"semester":                row.Semester,
		"baseline_score":          row.BaselineScore,
		"average_score":           row.AverageScore,
		"total_quizzes_taken":     row.TotalQuizzesTaken,
		"total_lessons_completed": row.TotalLessonsCompleted,
		"parent_pin_hash":         row.ParentPINHash,
		"updated_at":              row.UpdatedAt,
	}).Where(sq.Eq{"user_id": row.UserID})

	if err := repo.executeOne(ctx, repo.getExec(exec), qb, user.ErrProfileNotFound, "updating student profile"); err != nil {
		return user.StudentProfile{}, err
	}
	return repo.unboilProfile(row), nil
}

// AddQuizResult updates the running average from the stored row so concurrent results are all counted.
func (repo UserRepository) AddQuizResult(ctx context.Context, userID string, scorePct float64, at time.Time, exec ...core.DBExecutor) error {
	if _, err := uuid.Parse(userID); err != nil {
		return user.ErrProfileNotFound
	}
	qb := repo.sb.Update(profilesTable).
		Set("average_score", sq.Expr("(average_score * total_quizzes_taken + ?) / (total_quizzes_taken + 1)", scorePct)).
		Set("total_quizzes_taken", sq.Expr("total_quizzes_taken + 1")).
		Set("updated_at", at.UTC()).
		Where(sq.Eq{"user_id": userID})
	return repo.executeOne(ctx, repo.getExec(exec), qb, user.ErrProfileNotFound, "adding quiz result")
}

func (repo UserRepository) AddLessonCompleted(ctx context.Context, userID string, at time.Time, exec ...core.DBExecutor) error {
	if _, err := uuid.Parse(userID); err != nil {
		return user.ErrProfileNotFound
	}
	qb := repo.sb.Update(profilesTable).
		Set("total_lessons_completed", sq.Expr("total_lessons_completed + 1")).
		Set("updated_at", at.UTC()).
		Where(sq.Eq{"user_id": userID})
	return repo.executeOne(ctx, repo.getExec(exec), qb, user.ErrProfileNotFound, "adding completed lesson")
}
