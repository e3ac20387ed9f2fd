package advisor

import (
	"math"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/learnwise/backend/core"
)

func attempt(score float64, correct bool, topic string) AttemptRecord {
	return AttemptRecord{IsCorrect: correct, Score: score, Topic: topic, Difficulty: core.Beginner}
}

// chronological builds attempts one minute apart.
func chronological(attempts ...AttemptRecord) []AttemptRecord {
	start := time.Date(2024, time.January, 1, 8, 0, 0, 0, time.UTC)
	for i := range attempts {
		attempts[i].Timestamp = start.Add(time.Duration(i) * time.Minute)
	}
	return attempts
}

func repeat(a AttemptRecord, n int) []AttemptRecord {
	list := make([]AttemptRecord, n)
	for i := range list {
		list[i] = a
	}
	return list
}

func TestEvaluatePerformance_noData(t *testing.T) {
	res, err := EvaluatePerformance(nil)
	require.NoError(t, err)

	assert.Equal(t, LabelNoData, res.OverallPerformance)
	assert.Equal(t, 0.0, res.MasteryLevel)
	assert.Equal(t, 0.0, res.Confidence)
	assert.Equal(t, []string{}, res.WeakAreas)
	assert.Equal(t, "Start taking quizzes to get personalized feedback!", res.Feedback)
	assert.Equal(t, Trend(""), res.Trend)
}

func TestEvaluatePerformance(t *testing.T) {
	tests := []struct {
		name     string
		attempts []AttemptRecord
		want     EvaluationResult
	}{
		{
			name:     "two strong math answers",
			attempts: chronological(attempt(90, true, "math"), attempt(85, true, "math")),
			want: EvaluationResult{
				OverallPerformance: LabelExcellent,
				Accuracy:           100,
				RecentAccuracy:     100,
				MasteryLevel:       87.5,
				WeakAreas:          []string{},
				Feedback: "Excellent work! You're demonstrating strong understanding. " +
					"You're close to mastery! Challenge yourself with advanced topics.",
				Confidence:    10,
				TotalAttempts: 2,
				Trend:         TrendStable,
			},
		},
		{
			name: "struggling with weak topics",
			attempts: chronological(
				attempt(20, false, "physics"), attempt(30, false, "physics"),
				attempt(50, false, "history"), attempt(80, true, "math"),
			),
			want: EvaluationResult{
				OverallPerformance: LabelStruggling,
				Accuracy:           25,
				RecentAccuracy:     25,
				MasteryLevel:       45,
				WeakAreas:          []string{"physics", "history"},
				Feedback:           "You're building your foundation. Practice will help! Focus on: physics, history",
				Confidence:         20,
				TotalAttempts:      4,
				Trend:              TrendStable,
			},
		},
		{
			name: "improving over the last ten",
			attempts: chronological(append(
				repeat(attempt(0, false, "math"), 10),
				repeat(attempt(100, true, "math"), 10)...,
			)...),
			want: EvaluationResult{
				OverallPerformance: LabelNeedsImprovement,
				Accuracy:           50,
				RecentAccuracy:     100,
				MasteryLevel:       85,
				WeakAreas:          []string{"math"},
				Feedback: "You're building your foundation. Practice will help! " +
					"Your recent performance shows great improvement! " +
					"Focus on: math " +
					"You're close to mastery! Challenge yourself with advanced topics.",
				Confidence:    100,
				TotalAttempts: 20,
				Trend:         TrendImproving,
			},
		},
		{
			name: "declining over the last ten",
			attempts: chronological(append(
				repeat(attempt(70, true, "chemistry"), 20),
				repeat(attempt(70, false, "chemistry"), 10)...,
			)...),
			want: EvaluationResult{
				OverallPerformance: LabelSatisfactory,
				Accuracy:           66.67,
				RecentAccuracy:     0,
				MasteryLevel:       70,
				WeakAreas:          []string{},
				Feedback: "Good progress! Keep up the consistent effort. " +
					"Take time to review concepts that are challenging. " +
					"You're developing solid skills. Keep practicing!",
				Confidence:    100,
				TotalAttempts: 30,
				Trend:         TrendDeclining,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EvaluatePerformance(tt.attempts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluatePerformance_bounds(t *testing.T) {
	attempts := chronological(
		attempt(250, true, "math"), attempt(-40, false, "math"), attempt(180, true, "art"),
	)
	res, err := EvaluatePerformance(attempts)
	require.NoError(t, err)

	for _, v := range []float64{res.Accuracy, res.RecentAccuracy, res.MasteryLevel, res.Confidence} {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
	}
}

func TestEvaluatePerformance_idempotent(t *testing.T) {
	attempts := chronological(attempt(35, false, "physics"), attempt(75, true, "math"), attempt(55, false, "art"))
	first, err := EvaluatePerformance(attempts)
	require.NoError(t, err)
	second, err := EvaluatePerformance(attempts)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMalformedRecord(t *testing.T) {
	bad := chronological(attempt(50, true, "math"), attempt(math.NaN(), false, "math"))

	_, err := EvaluatePerformance(bad)
	assert.Equal(t, ErrMalformedRecord, errors.Cause(err))

	_, err = RecommendLessons(StudentSnapshot{Attempts: bad}, []LessonSummary{{ID: "l1"}}, 5)
	assert.Equal(t, ErrMalformedRecord, errors.Cause(err))

	_, err = DetectLearningGaps(bad, nil)
	assert.Equal(t, ErrMalformedRecord, errors.Cause(err))

	_, err = PredictSuccessProbability([]AttemptRecord{attempt(math.Inf(1), true, "")}, 50, core.Beginner)
	assert.Equal(t, ErrMalformedRecord, errors.Cause(err))
}

func TestMastery(t *testing.T) {
	tests := []struct {
		name     string
		attempts []AttemptRecord
		want     float64
	}{
		{name: "empty", want: 0},
		{name: "single", attempts: []AttemptRecord{attempt(80, true, "")}, want: 80},
		{
			// overall 50; recent (last 10) 100 -> 0.7*100 + 0.3*50
			name:     "recent weighs more",
			attempts: append(repeat(attempt(0, false, ""), 10), repeat(attempt(100, true, ""), 10)...),
			want:     85,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Mastery(tt.attempts), 1e-9)
		})
	}
}

func TestWeakTopics(t *testing.T) {
	tests := []struct {
		name     string
		attempts []AttemptRecord
		want     []string
	}{
		{name: "no attempts", want: []string{}},
		{name: "no weak topic", attempts: []AttemptRecord{attempt(60, true, "math")}, want: []string{}},
		{name: "missing topic is general", attempts: []AttemptRecord{attempt(10, false, "")}, want: []string{"general"}},
		{
			name: "capped at three, weakest first",
			attempts: []AttemptRecord{
				attempt(50, false, "a"), attempt(10, false, "b"), attempt(40, false, "c"),
				attempt(30, false, "d"), attempt(90, true, "e"),
			},
			want: []string{"b", "d", "c"},
		},
		{
			name:     "ties keep first-seen order",
			attempts: []AttemptRecord{attempt(20, false, "x"), attempt(20, false, "y")},
			want:     []string{"x", "y"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WeakTopics(tt.attempts)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len(got), 3)
		})
	}
}

func TestRecommendLessons(t *testing.T) {
	beginnerA := LessonSummary{ID: "a", Title: "Counting", Subject: "math", Difficulty: core.Beginner}
	beginnerB := LessonSummary{ID: "b", Title: "Atoms", Subject: "physics", Difficulty: core.Beginner, Prerequisites: []string{"done"}}
	intermediateC := LessonSummary{ID: "c", Title: "Forces", Subject: "physics", Difficulty: core.Intermediate, Prerequisites: []string{"x"}}
	advancedD := LessonSummary{ID: "d", Title: "Poetry", Subject: "art", Difficulty: core.Advanced}
	done := LessonSummary{ID: "done", Title: "Intro", Subject: "math", Difficulty: core.Beginner}

	weakPhysics := []AttemptRecord{attempt(10, false, "physics"), attempt(20, false, "physics")}

	tests := []struct {
		name     string
		snapshot StudentSnapshot
		catalog  []LessonSummary
		limit    int
		want     []Recommendation
	}{
		{name: "empty catalog", snapshot: StudentSnapshot{}, limit: 5, want: []Recommendation{}},
		{
			name:    "difficulty match, no prerequisites",
			catalog: []LessonSummary{beginnerA},
			limit:   5,
			want: []Recommendation{
				{LessonSummary: beginnerA, RecommendationReason: "Matches your beginner level", RecommendationScore: 50},
			},
		},
		{
			name:     "scores, reasons and completed lessons",
			snapshot: StudentSnapshot{Attempts: weakPhysics, CompletedLessonIDs: []string{"done"}},
			catalog:  []LessonSummary{advancedD, beginnerA, done, intermediateC, beginnerB},
			limit:    5,
			want: []Recommendation{
				{
					LessonSummary:        beginnerB,
					RecommendationReason: "Matches your beginner level | Helps improve weak areas | Prerequisites completed",
					RecommendationScore:  100,
				},
				{LessonSummary: beginnerA, RecommendationReason: "Matches your beginner level", RecommendationScore: 50},
				{LessonSummary: advancedD, RecommendationReason: "Recommended for you", RecommendationScore: 0},
				{
					LessonSummary:        intermediateC,
					RecommendationReason: "Helps improve weak areas | Missing prerequisites",
					RecommendationScore:  0,
				},
			},
		},
		{
			name:     "limit keeps the best",
			snapshot: StudentSnapshot{Attempts: weakPhysics, CompletedLessonIDs: []string{"done"}},
			catalog:  []LessonSummary{advancedD, beginnerA, intermediateC, beginnerB},
			limit:    1,
			want: []Recommendation{
				{
					LessonSummary:        beginnerB,
					RecommendationReason: "Matches your beginner level | Helps improve weak areas | Prerequisites completed",
					RecommendationScore:  100,
				},
			},
		},
		{
			name:     "negative scores are kept",
			snapshot: StudentSnapshot{Attempts: repeat(attempt(100, true, "math"), 3)},
			catalog:  []LessonSummary{beginnerB},
			limit:    5,
			want: []Recommendation{
				{LessonSummary: beginnerB, RecommendationReason: "Missing prerequisites", RecommendationScore: -30},
			},
		},
		{name: "zero limit", catalog: []LessonSummary{beginnerA}, limit: 0, want: []Recommendation{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RecommendLessons(tt.snapshot, tt.catalog, tt.limit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			for _, rec := range got {
				for _, id := range tt.snapshot.CompletedLessonIDs {
					assert.NotEqual(t, id, rec.ID, "completed lesson recommended")
				}
			}
		})
	}
}

func TestRecommendLessons_doesNotAliasCatalog(t *testing.T) {
	catalog := []LessonSummary{{ID: "a", Difficulty: core.Beginner, Prerequisites: []string{"p"}}}
	got, err := RecommendLessons(StudentSnapshot{CompletedLessonIDs: []string{"p"}}, catalog, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)

	got[0].Prerequisites[0] = "changed"
	assert.Equal(t, "p", catalog[0].Prerequisites[0])
}

func TestDetectLearningGaps(t *testing.T) {
	catalog := []LessonSummary{
		{ID: "p1", Title: "Intro to Physics", Subject: "science"},
		{ID: "p2", Title: "Motion", Subject: "Physics"},
		{ID: "h1", Title: "World history", Subject: "humanities"},
		{ID: "p3", Title: "Quantum physics", Subject: "science"},
		{ID: "p4", Title: "Physics lab", Subject: "science"},
		{ID: "m1", Title: "Algebra", Subject: "math"},
	}
	attempts := chronological(
		attempt(30, false, "physics"), attempt(40, false, "physics"),
		attempt(55, false, "history"),
		attempt(90, true, "math"),
		attempt(59, false, "art"),
	)

	got, err := DetectLearningGaps(attempts, catalog)
	require.NoError(t, err)

	want := []LearningGap{
		{
			Topic: "physics", AverageScore: 35, Severity: SeverityHigh, AttemptsCount: 2,
			SuggestedLessons: []string{"p1", "p2", "p3"},
			Description:      "Your average score in physics is 35.0%. Consider reviewing related lessons.",
		},
		{
			Topic: "history", AverageScore: 55, Severity: SeverityMedium, AttemptsCount: 1,
			SuggestedLessons: []string{"h1"},
			Description:      "Your average score in history is 55.0%. Consider reviewing related lessons.",
		},
		{
			Topic: "art", AverageScore: 59, Severity: SeverityMedium, AttemptsCount: 1,
			SuggestedLessons: []string{},
			Description:      "Your average score in art is 59.0%. Consider reviewing related lessons.",
		},
	}
	assert.Equal(t, want, got)
}

func TestDetectLearningGaps_noAttempts(t *testing.T) {
	got, err := DetectLearningGaps(nil, []LessonSummary{{ID: "x"}})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestGenerateAdaptiveHint(t *testing.T) {
	tests := []struct {
		name        string
		topic       string
		mastery     float64
		obviousness Obviousness
		want        string
	}{
		{
			name: "easy, beginner", topic: "fractions", mastery: 10, obviousness: ObviousnessEasy,
			want: "Think about the key concept: fractions - You're building your foundation, keep going!",
		},
		{
			name: "easy, no topic", mastery: 39.99, obviousness: ObviousnessEasy,
			want: "Think about the key concept: this topic - You're building your foundation, keep going!",
		},
		{
			name: "medium, progressing", mastery: 40, obviousness: ObviousnessMedium,
			want: "Try to recall similar examples from your lessons - You're making good progress!",
		},
		{
			name: "hard, advanced", mastery: 70, obviousness: ObviousnessHard,
			want: "Consider all options before answering - Challenge yourself!",
		},
		{
			name: "unknown falls back to medium", mastery: 95, obviousness: ParseObviousness("obvious"),
			want: "Eliminate obviously wrong answers first - Challenge yourself!",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GenerateAdaptiveHint(tt.topic, tt.mastery, tt.obviousness); got != tt.want {
				t.Errorf("GenerateAdaptiveHint() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPredictSuccessProbability(t *testing.T) {
	pass := attempt(80, true, "")
	fail := attempt(20, false, "")

	tests := []struct {
		name       string
		attempts   []AttemptRecord
		mastery    float64
		difficulty core.Difficulty
		want       float64
	}{
		{name: "no history", mastery: 90, difficulty: core.Advanced, want: 50},
		{
			name:     "advanced, weak learner clamps at zero",
			attempts: []AttemptRecord{fail, fail, fail}, mastery: 50, difficulty: core.Advanced, want: 0,
		},
		{
			name:     "beginner bonus clamps at 100",
			attempts: []AttemptRecord{pass, pass}, mastery: 41, difficulty: core.Beginner, want: 100,
		},
		{
			name:     "only the last five count",
			attempts: []AttemptRecord{fail, fail, fail, pass, pass, pass, fail, fail}, mastery: 50, difficulty: core.Intermediate,
			want: 60,
		},
		{
			name:     "two of three",
			attempts: []AttemptRecord{pass, fail, pass}, mastery: 65, difficulty: core.Intermediate, want: 66.67,
		},
		{
			name:     "score of exactly 70 passes",
			attempts: []AttemptRecord{attempt(70, true, "")}, mastery: 40, difficulty: core.Beginner, want: 100,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PredictSuccessProbability(tt.attempts, tt.mastery, tt.difficulty)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTargetDifficulty(t *testing.T) {
	assert.Equal(t, core.Beginner, TargetDifficulty(39.9))
	assert.Equal(t, core.Intermediate, TargetDifficulty(40))
	assert.Equal(t, core.Intermediate, TargetDifficulty(69.9))
	assert.Equal(t, core.Advanced, TargetDifficulty(70))
}
