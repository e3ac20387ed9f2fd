// Package dbtest prepares migrated in-memory databases and fixtures for tests.
package dbtest

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/learnwise/backend/core"
	"github.com/learnwise/backend/core/lesson"
	"github.com/learnwise/backend/core/quiz"
	"github.com/learnwise/backend/core/user"
	"github.com/learnwise/backend/storage/database"
)

// PrepareDB opens a migrated in-memory sqlite database, closed when the test ends.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()

	conf := core.NewTestConfig()
	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("database.Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db, conf.Database.Engine); err != nil {
		t.Fatalf("database.Migrate() failed: %v", err)
	}
	return db
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, pwd string,
	role user.Role,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:          name,
		Email:         email,
		Role:          role,
		IsActive:      isActive,
		EmailVerified: true,
		CreatedAt:     tstamp,
		UpdatedAt:     tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	if role == user.RoleStudent {
		profile, err := repo.CreateProfile(context.Background(), user.StudentProfile{
			UserID: usr.ID, CreatedAt: tstamp, UpdatedAt: tstamp,
		})
		if err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
		usr.Profile = &profile
	}
	return usr
}

func CreateLesson(
	t *testing.T,
	repo lesson.Repository,
	authorID, title, subject string,
	difficulty core.Difficulty,
	published bool,
	prerequisites ...string,
) lesson.Lesson {
	t.Helper()

	now := time.Now().UTC()
	lsn, err := repo.CreateLesson(context.Background(), lesson.Lesson{
		Title:           title,
		Subject:         subject,
		Content:         "# " + title,
		Difficulty:      difficulty,
		DurationMinutes: 30,
		Prerequisites:   prerequisites,
		Tags:            core.StringList{},
		IsPublished:     published,
		CreatedBy:       authorID,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		t.Fatalf("CreateLesson() failed: %v", err)
	}
	return lsn
}

// CreateQuiz creates a 4-option quiz whose correct answer is `correct`.
func CreateQuiz(
	t *testing.T,
	repo quiz.Repository,
	lessonID string,
	difficulty core.Difficulty,
	points, correct int,
) quiz.Quiz {
	t.Helper()

	qz, err := repo.CreateQuiz(context.Background(), quiz.Quiz{
		LessonID:      lessonID,
		Question:      "Which one?",
		QuestionType:  quiz.TypeMCQ,
		Options:       core.StringList{"A", "B", "C", "D"},
		CorrectAnswer: correct,
		Explanation:   "Because.",
		Difficulty:    difficulty,
		Points:        points,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateQuiz() failed: %v", err)
	}
	return qz
}

// CreateAttempt records an answer to qz at the given time.
func CreateAttempt(t *testing.T, repo quiz.Repository, userID string, qz quiz.Quiz, correct bool, at time.Time) quiz.Attempt {
	t.Helper()

	attempt := quiz.Attempt{
		UserID:      userID,
		QuizID:      qz.ID,
		UserAnswer:  qz.CorrectAnswer,
		IsCorrect:   correct,
		AttemptedAt: at.UTC(),
		Synced:      true,
	}
	if correct {
		attempt.Score = qz.Points
	} else {
		attempt.UserAnswer = (qz.CorrectAnswer + 1) % len(qz.Options)
	}
	attempt, err := repo.CreateAttempt(context.Background(), attempt)
	if err != nil {
		t.Fatalf("CreateAttempt() failed: %v", err)
	}
	return attempt
}
