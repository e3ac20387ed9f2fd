package quiz

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/learnwise/backend/core"
)

const (
	defaultPoints = 10
	passingPct    = 70.0 // session percentage that completes the lesson
)

// QuestionType is the kind of a quiz question. Answers are always option indexes.
type QuestionType string

const (
	TypeMCQ         QuestionType = "mcq"
	TypeTrueFalse   QuestionType = "true_false"
	TypeShortAnswer QuestionType = "short_answer"
)

type Quiz struct {
	ID            string          `json:"id"`
	LessonID      string          `json:"lesson_id"`
	Question      string          `json:"question"`
	QuestionType  QuestionType    `json:"question_type"`
	Options       core.StringList `json:"options"`
	CorrectAnswer int             `json:"correct_answer"`
	Explanation   string          `json:"explanation"`
	Difficulty    core.Difficulty `json:"difficulty"`
	Points        int             `json:"points"`
	Hint          null.String     `json:"hint"`
	CreatedAt     time.Time       `json:"created_at"` // UTC
}

func (q Quiz) CheckAnswer(answer int) bool { return answer == q.CorrectAnswer }

// CorrectOption returns the text of the correct option, if any.
func (q Quiz) CorrectOption() string {
	if q.CorrectAnswer >= 0 && q.CorrectAnswer < len(q.Options) {
		return q.Options[q.CorrectAnswer]
	}
	return ""
}

// Public is the Quiz as shown to students: without the answer.
type Public struct {
	ID           string          `json:"id"`
	LessonID     string          `json:"lesson_id"`
	Question     string          `json:"question"`
	QuestionType QuestionType    `json:"question_type"`
	Options      core.StringList `json:"options"`
	Difficulty   core.Difficulty `json:"difficulty"`
	Points       int             `json:"points"`
	Hint         null.String     `json:"hint"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (q Quiz) Public() Public {
	return Public{
		ID:           q.ID,
		LessonID:     q.LessonID,
		Question:     q.Question,
		QuestionType: q.QuestionType,
		Options:      q.Options,
		Difficulty:   q.Difficulty,
		Points:       q.Points,
		Hint:         q.Hint,
		CreatedAt:    q.CreatedAt,
	}
}

type Attempt struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	QuizID           string    `json:"quiz_id"`
	UserAnswer       int       `json:"user_answer"`
	IsCorrect        bool      `json:"is_correct"`
	Score            int       `json:"score"` // points earned
	TimeTakenSeconds int       `json:"time_taken_seconds"`
	AttemptedAt      time.Time `json:"attempted_at"` // UTC
	Synced           bool      `json:"synced"`
	Feedback         string    `json:"feedback"`
}

// AttemptResult is an Attempt along with the answer of the quiz.
type AttemptResult struct {
	Attempt
	CorrectAnswer int    `json:"correct_answer"`
	CorrectOption string `json:"correct_option"`
	Explanation   string `json:"explanation"`
}

type Session struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	LessonID         string    `json:"lesson_id"`
	TotalQuestions   int       `json:"total_questions"`
	CorrectAnswers   int       `json:"correct_answers"`
	TotalScore       int       `json:"total_score"`
	Percentage       float64   `json:"percentage"`
	TimeTakenSeconds int       `json:"time_taken_seconds"`
	StartedAt        time.Time `json:"started_at"`
	CompletedAt      null.Time `json:"completed_at"`
}

func (s Session) IsCompleted() bool { return s.CompletedAt.Valid }

// NewQuiz contains information needed to create a new Quiz.
type NewQuiz struct {
	LessonID      string          `json:"lesson_id" validate:"required"`
	Question      string          `json:"question" validate:"required,notblank"`
	QuestionType  QuestionType    `json:"question_type" validate:"omitempty,oneof=mcq true_false short_answer"`
	Options       []string        `json:"options" validate:"required,min=2,dive,notblank"`
	CorrectAnswer *int            `json:"correct_answer" validate:"required,min=0"`
	Explanation   string          `json:"explanation"`
	Difficulty    core.Difficulty `json:"difficulty" validate:"difficulty"`
	Points        *int            `json:"points" validate:"omitempty,min=1"`
	Hint          string          `json:"hint"`
}

func (nq *NewQuiz) Validate(validate *validator.Validate) error {
	nq.LessonID = core.CleanString(nq.LessonID)
	nq.Question = core.CleanString(nq.Question)
	nq.Hint = core.CleanString(nq.Hint)
	if nq.QuestionType == "" {
		nq.QuestionType = TypeMCQ
	}
	nq.Difficulty = core.ParseDifficulty(string(nq.Difficulty))
	if err := validate.Struct(nq); err != nil {
		return err
	}
	return checkAnswerIndex(*nq.CorrectAnswer, len(nq.Options))
}

// UpdateQuiz holds the Quiz fields to modify; nil fields are left untouched.
type UpdateQuiz struct {
	Question      *string          `json:"question" validate:"omitempty,notblank"`
	Options       []string         `json:"options" validate:"omitempty,min=2,dive,notblank"`
	CorrectAnswer *int             `json:"correct_answer" validate:"omitempty,min=0"`
	Explanation   *string          `json:"explanation"`
	Difficulty    *core.Difficulty `json:"difficulty" validate:"omitempty,difficulty"`
	Points        *int             `json:"points" validate:"omitempty,min=1"`
	Hint          *string          `json:"hint"`
}

// Validate checks uq against the quiz it updates.
func (uq *UpdateQuiz) Validate(orig Quiz, validate *validator.Validate) error {
	if err := validate.Struct(uq); err != nil {
		return err
	}
	answer, nOptions := orig.CorrectAnswer, len(orig.Options)
	if uq.CorrectAnswer != nil {
		answer = *uq.CorrectAnswer
	}
	if uq.Options != nil {
		nOptions = len(uq.Options)
	}
	return checkAnswerIndex(answer, nOptions)
}

func checkAnswerIndex(answer, nOptions int) error {
	if answer < 0 || answer >= nOptions {
		return core.NewFieldValidationError("correct_answer", "must be the index of one of the options")
	}
	return nil
}

// SubmitAnswer is an answer to a quiz.
type SubmitAnswer struct {
	Answer           *int `json:"answer" validate:"required,min=0"`
	TimeTakenSeconds int  `json:"time_taken_seconds" validate:"min=0"`
}

func (sa *SubmitAnswer) Validate(validate *validator.Validate) error { return validate.Struct(sa) }

type StartSession struct {
	LessonID string `json:"lesson_id" validate:"required"`
}

func (ss *StartSession) Validate(validate *validator.Validate) error {
	ss.LessonID = core.CleanString(ss.LessonID)
	return validate.Struct(ss)
}

// OfflineAttempt is an answer given while the client was offline.
type OfflineAttempt struct {
	QuizID           string    `json:"quiz_id" validate:"required"`
	UserAnswer       *int      `json:"user_answer" validate:"required,min=0"`
	TimeTakenSeconds int       `json:"time_taken_seconds" validate:"min=0"`
	AttemptedAt      time.Time `json:"timestamp" validate:"required"`
}

type OfflineBatch struct {
	Attempts []OfflineAttempt `json:"attempts" validate:"required,min=1,dive"`
}

func (ob *OfflineBatch) Validate(validate *validator.Validate) error { return validate.Struct(ob) }

// SyncResult reports the outcome of an offline batch.
type SyncResult struct {
	SyncedCount int      `json:"synced_count"`
	Errors      []string `json:"errors"`
}
