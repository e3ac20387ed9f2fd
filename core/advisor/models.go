package advisor

import (
	"time"

	"github.com/learnwise/backend/core"
)

// DefaultTopic is used for attempts that carry no topic.
const DefaultTopic = "general"

// Performance labels
const (
	LabelNoData           = "No data"
	LabelExcellent        = "Excellent"
	LabelGood             = "Good"
	LabelSatisfactory     = "Satisfactory"
	LabelNeedsImprovement = "Needs Improvement"
	LabelStruggling       = "Struggling"
)

// Trend compares recent accuracy against overall accuracy.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
)

// Severity of a learning gap.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

// Obviousness selects the hint pool of an adaptive hint.
type Obviousness string

const (
	ObviousnessEasy   Obviousness = "easy"
	ObviousnessMedium Obviousness = "medium"
	ObviousnessHard   Obviousness = "hard"
)

// ParseObviousness maps unknown values to ObviousnessMedium.
func ParseObviousness(s string) Obviousness {
	switch o := Obviousness(core.CleanString(s, true /* lower */)); o {
	case ObviousnessEasy, ObviousnessMedium, ObviousnessHard:
		return o
	}
	return ObviousnessMedium
}

type (
	// AttemptRecord is one answered quiz question. Score is on a 0-100 scale.
	AttemptRecord struct {
		IsCorrect  bool            `json:"is_correct"`
		Score      float64         `json:"score"`
		Topic      string          `json:"topic"`
		Difficulty core.Difficulty `json:"difficulty"`
		Timestamp  time.Time       `json:"timestamp"`
	}

	// LessonSummary is the catalog view of a lesson: everything but its content.
	LessonSummary struct {
		ID              string          `json:"id"`
		Title           string          `json:"title"`
		Subject         string          `json:"subject"`
		Difficulty      core.Difficulty `json:"difficulty"`
		DurationMinutes int             `json:"duration_minutes"`
		Prerequisites   []string        `json:"prerequisites"`
		Tags            []string        `json:"tags"`
		IsPublished     bool            `json:"is_published"`
		ViewsCount      int             `json:"views_count"`
		QuizCount       int             `json:"quiz_count"`
		CreatedBy       string          `json:"created_by"`
		CreatedAt       time.Time       `json:"created_at"`
		UpdatedAt       time.Time       `json:"updated_at"`
	}

	// StudentSnapshot holds what the advisor knows about a learner. Attempts are in chronological order.
	StudentSnapshot struct {
		AverageScore       float64         `json:"average_score"`
		Attempts           []AttemptRecord `json:"attempts"`
		CompletedLessonIDs []string        `json:"completed_lesson_ids"`
	}

	EvaluationResult struct {
		OverallPerformance string   `json:"overall_performance"`
		Accuracy           float64  `json:"accuracy"`
		RecentAccuracy     float64  `json:"recent_accuracy"`
		MasteryLevel       float64  `json:"mastery_level"`
		WeakAreas          []string `json:"weak_areas"`
		Feedback           string   `json:"feedback"`
		Confidence         float64  `json:"confidence"`
		TotalAttempts      int      `json:"total_attempts"`
		Trend              Trend    `json:"trend,omitempty"`
	}

	Recommendation struct {
		LessonSummary
		RecommendationReason string `json:"recommendation_reason"`
		RecommendationScore  int    `json:"recommendation_score"`
	}

	LearningGap struct {
		Topic            string   `json:"topic"`
		AverageScore     float64  `json:"average_score"`
		Severity         Severity `json:"severity"`
		AttemptsCount    int      `json:"attempts_count"`
		SuggestedLessons []string `json:"suggested_lessons"`
		Description      string   `json:"description"`
	}
)

func (a AttemptRecord) topic() string {
	if t := core.CleanString(a.Topic); t != "" {
		return t
	}
	return DefaultTopic
}
