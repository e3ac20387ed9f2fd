package advisor

import (
	"context"

	"github.com/pkg/errors"

	"github.com/learnwise/backend/core"
	"github.com/learnwise/backend/core/lesson"
	"github.com/learnwise/backend/core/quiz"
	"github.com/learnwise/backend/core/user"
)

const (
	DefaultRecommendations = 5
	recentSessions         = 10
)

type (
	// QuizInfo is what the advisor needs to know about a quiz.
	QuizInfo struct {
		ID         string
		Topic      string // subject of the quiz lesson
		Difficulty core.Difficulty
		Hint       string
	}

	// LessonActivity aggregates the attempts made on the quizzes of one lesson.
	LessonActivity struct {
		LessonID        string
		LessonTitle     string
		QuizCount       int
		TotalAttempts   int
		CorrectAttempts int
		UniqueStudents  int
	}

	Repository interface {
		// QueryAttemptRecords returns the newest `limit` attempts of a user in chronological order.
		// A limit <= 0 returns them all.
		QueryAttemptRecords(ctx context.Context, userID string, limit int) ([]AttemptRecord, error)
		QueryCatalog(ctx context.Context, publishedOnly bool) ([]LessonSummary, error)
		CompletedLessonIDs(ctx context.Context, userID string) ([]string, error)
		GetQuizInfo(ctx context.Context, quizID string) (QuizInfo, error)
		QueryRecentSessions(ctx context.Context, userID string, limit int) ([]quiz.Session, error)
		QueryLessonActivity(ctx context.Context, authorID string) ([]LessonActivity, error)
		CountStudentsOfAuthor(ctx context.Context, authorID string) (int, error)
	}

	ProfileSource interface {
		GetProfile(ctx context.Context, userID string) (user.StudentProfile, error)
	}

	ProgressSource interface {
		QueryProgress(ctx context.Context, userID string) ([]lesson.Progress, error)
	}
)

type (
	HintResult struct {
		QuizID      string      `json:"quiz_id"`
		Hint        string      `json:"hint"`
		QuizHint    string      `json:"quiz_hint,omitempty"`
		Obviousness Obviousness `json:"obviousness"`
	}

	Prediction struct {
		QuizID             string          `json:"quiz_id"`
		Difficulty         core.Difficulty `json:"difficulty"`
		MasteryLevel       float64         `json:"mastery_level"`
		SuccessProbability float64         `json:"success_probability"`
	}

	DashboardStats struct {
		TotalLessons      int     `json:"total_lessons"`
		CompletedLessons  int     `json:"completed_lessons"`
		InProgressLessons int     `json:"in_progress_lessons"`
		TotalQuizzesTaken int     `json:"total_quizzes_taken"`
		AverageScore      float64 `json:"average_score"`
	}

	Dashboard struct {
		Profile        *user.StudentProfile `json:"profile"`
		Evaluation     EvaluationResult     `json:"evaluation"`
		Statistics     DashboardStats       `json:"statistics"`
		LessonProgress []lesson.Progress    `json:"lesson_progress"`
		RecentSessions []quiz.Session       `json:"recent_sessions"`
		LearningGaps   []LearningGap        `json:"learning_gaps"`
	}

	LessonPerformance struct {
		LessonID       string  `json:"lesson_id"`
		LessonTitle    string  `json:"lesson_title"`
		TotalAttempts  int     `json:"total_attempts"`
		Accuracy       float64 `json:"accuracy"`
		UniqueStudents int     `json:"unique_students"`
	}

	Analytics struct {
		TotalLessons      int                 `json:"total_lessons"`
		TotalQuizzes      int                 `json:"total_quizzes"`
		TotalAttempts     int                 `json:"total_attempts"`
		UniqueStudents    int                 `json:"unique_students"`
		LessonPerformance []LessonPerformance `json:"lesson_performance"`
	}
)

// Service loads learner data and runs the advisor on it.
type Service struct {
	repo     Repository
	profiles ProfileSource
	progress ProgressSource
	conf     *core.Config
}

func NewService(repo Repository, profiles ProfileSource, progress ProgressSource, conf *core.Config) *Service {
	return &Service{repo: repo, profiles: profiles, progress: progress, conf: conf}
}

func (svc *Service) attempts(ctx context.Context, userID string, limit int) ([]AttemptRecord, error) {
	attempts, err := svc.repo.QueryAttemptRecords(ctx, userID, limit)
	return attempts, errors.Wrap(err, "querying attempt records")
}

// profile returns nil for users without a student profile.
func (svc *Service) profile(ctx context.Context, userID string) (*user.StudentProfile, error) {
	p, err := svc.profiles.GetProfile(ctx, userID)
	if err != nil {
		if err == user.ErrProfileNotFound {
			return nil, nil
		}
		return nil, errors.Wrap(err, "getting student profile")
	}
	return &p, nil
}

// Evaluate evaluates the newest `limit` attempts of a user; limit <= 0 uses the configured window.
func (svc *Service) Evaluate(ctx context.Context, userID string, limit int) (EvaluationResult, error) {
	if limit <= 0 {
		limit = svc.conf.Advisor.EvaluationWindow
	}
	attempts, err := svc.attempts(ctx, userID, limit)
	if err != nil {
		return EvaluationResult{}, err
	}
	return EvaluatePerformance(attempts)
}

// Recommend returns up to `limit` published lessons the user should take next.
func (svc *Service) Recommend(ctx context.Context, userID string, limit int) ([]Recommendation, error) {
	attempts, err := svc.attempts(ctx, userID, svc.conf.Advisor.RecommendationWindow)
	if err != nil {
		return nil, err
	}
	completed, err := svc.repo.CompletedLessonIDs(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "querying completed lessons")
	}
	catalog, err := svc.repo.QueryCatalog(ctx, true)
	if err != nil {
		return nil, errors.Wrap(err, "querying catalog")
	}
	profile, err := svc.profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	snapshot := StudentSnapshot{Attempts: attempts, CompletedLessonIDs: completed}
	if profile != nil {
		snapshot.AverageScore = profile.AverageScore
	}
	return RecommendLessons(snapshot, catalog, limit)
}

// LearningGaps detects the weak topics over every attempt of the user.
func (svc *Service) LearningGaps(ctx context.Context, userID string) ([]LearningGap, error) {
	attempts, err := svc.attempts(ctx, userID, 0)
	if err != nil {
		return nil, err
	}
	catalog, err := svc.repo.QueryCatalog(ctx, false)
	if err != nil {
		return nil, errors.Wrap(err, "querying catalog")
	}
	return DetectLearningGaps(attempts, catalog)
}

// AdaptiveHint returns a hint on a quiz tailored to the mastery of the user.
func (svc *Service) AdaptiveHint(ctx context.Context, userID, quizID string, obviousness Obviousness) (HintResult, error) {
	info, err := svc.repo.GetQuizInfo(ctx, quizID)
	if err != nil {
		return HintResult{}, err
	}
	attempts, err := svc.attempts(ctx, userID, svc.conf.Advisor.EvaluationWindow)
	if err != nil {
		return HintResult{}, err
	}
	return HintResult{
		QuizID:      info.ID,
		Hint:        GenerateAdaptiveHint(info.Topic, Mastery(attempts), obviousness),
		QuizHint:    info.Hint,
		Obviousness: obviousness,
	}, nil
}

// PredictSuccess estimates the chance the user answers a quiz correctly.
func (svc *Service) PredictSuccess(ctx context.Context, userID, quizID string) (Prediction, error) {
	info, err := svc.repo.GetQuizInfo(ctx, quizID)
	if err != nil {
		return Prediction{}, err
	}
	attempts, err := svc.attempts(ctx, userID, svc.conf.Advisor.EvaluationWindow)
	if err != nil {
		return Prediction{}, err
	}
	mastery := Mastery(attempts)
	prob, err := PredictSuccessProbability(attempts, mastery, info.Difficulty)
	if err != nil {
		return Prediction{}, err
	}
	return Prediction{
		QuizID:             info.ID,
		Difficulty:         info.Difficulty,
		MasteryLevel:       core.Round2(mastery),
		SuccessProbability: prob,
	}, nil
}

// StudentDashboard gathers the profile, evaluation, progress and recent sessions of a student.
func (svc *Service) StudentDashboard(ctx context.Context, userID string) (Dashboard, error) {
	var dash Dashboard
	var err error

	if dash.Profile, err = svc.profile(ctx, userID); err != nil {
		return Dashboard{}, err
	}
	if dash.Evaluation, err = svc.Evaluate(ctx, userID, 0); err != nil {
		return Dashboard{}, err
	}
	if dash.LearningGaps, err = svc.LearningGaps(ctx, userID); err != nil {
		return Dashboard{}, err
	}
	if dash.LessonProgress, err = svc.progress.QueryProgress(ctx, userID); err != nil {
		return Dashboard{}, errors.Wrap(err, "querying lesson progress")
	}
	if dash.RecentSessions, err = svc.repo.QueryRecentSessions(ctx, userID, recentSessions); err != nil {
		return Dashboard{}, errors.Wrap(err, "querying recent sessions")
	}
	catalog, err := svc.repo.QueryCatalog(ctx, true)
	if err != nil {
		return Dashboard{}, errors.Wrap(err, "querying catalog")
	}

	dash.Statistics.TotalLessons = len(catalog)
	for _, p := range dash.LessonProgress {
		switch p.Status {
		case lesson.StatusCompleted:
			dash.Statistics.CompletedLessons++
		case lesson.StatusInProgress:
			dash.Statistics.InProgressLessons++
		}
	}
	if dash.Profile != nil {
		dash.Statistics.TotalQuizzesTaken = dash.Profile.TotalQuizzesTaken
		dash.Statistics.AverageScore = dash.Profile.AverageScore
	}
	return dash, nil
}

// TeacherAnalytics reports how students perform on the lessons written by authorID.
func (svc *Service) TeacherAnalytics(ctx context.Context, authorID string) (Analytics, error) {
	activity, err := svc.repo.QueryLessonActivity(ctx, authorID)
	if err != nil {
		return Analytics{}, errors.Wrap(err, "querying lesson activity")
	}
	students, err := svc.repo.CountStudentsOfAuthor(ctx, authorID)
	if err != nil {
		return Analytics{}, errors.Wrap(err, "counting students")
	}

	an := Analytics{
		TotalLessons:      len(activity),
		UniqueStudents:    students,
		LessonPerformance: make([]LessonPerformance, 0, len(activity)),
	}
	for _, act := range activity {
		an.TotalQuizzes += act.QuizCount
		an.TotalAttempts += act.TotalAttempts
		if act.QuizCount == 0 {
			continue
		}
		an.LessonPerformance = append(an.LessonPerformance, LessonPerformance{
			LessonID:       act.LessonID,
			LessonTitle:    act.LessonTitle,
			TotalAttempts:  act.TotalAttempts,
			Accuracy:       core.Round2(pct(act.CorrectAttempts, act.TotalAttempts)),
			UniqueStudents: act.UniqueStudents,
		})
	}
	return an, nil
}
