// Package advisor computes learner evaluations, lesson recommendations, learning gaps,
// adaptive hints and success predictions from a learner's attempt history.
//
// Every function in this file is pure: it only reads its arguments and never retains them.
package advisor

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/learnwise/backend/core"
)

const (
	recentWindow     = 10
	predictionWindow = 5
	confidenceFull   = 20 // attempts needed for full confidence

	weakThreshold   = 60.0
	severeThreshold = 40.0
	maxWeakTopics   = 3
	maxSuggested    = 3
	passingScore    = 70.0

	noDataFeedback = "Start taking quizzes to get personalized feedback!"
	defaultReason  = "Recommended for you"
	reasonSep      = " | "
)

// ErrMalformedRecord is returned when an attempt carries a score that is not a finite number.
var ErrMalformedRecord = errors.New("malformed attempt record")

func checkAttempts(attempts []AttemptRecord) error {
	for i, a := range attempts {
		if math.IsNaN(a.Score) || math.IsInf(a.Score, 0) {
			return errors.Wrapf(ErrMalformedRecord, "attempt %d: score %v", i, a.Score)
		}
	}
	return nil
}

func pct(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return 100 * float64(part) / float64(total)
}

func meanScore(attempts []AttemptRecord) float64 {
	if len(attempts) == 0 {
		return 0
	}
	var sum float64
	for _, a := range attempts {
		sum += a.Score
	}
	return sum / float64(len(attempts))
}

func accuracy(attempts []AttemptRecord) float64 {
	var correct int
	for _, a := range attempts {
		if a.IsCorrect {
			correct++
		}
	}
	return pct(correct, len(attempts))
}

func lastN(attempts []AttemptRecord, n int) []AttemptRecord {
	if len(attempts) > n {
		return attempts[len(attempts)-n:]
	}
	return attempts
}

// Mastery blends the mean score of the last 10 attempts (70%) with the overall mean score (30%).
func Mastery(attempts []AttemptRecord) float64 {
	if len(attempts) == 0 {
		return 0
	}
	overall := meanScore(attempts)
	recent := meanScore(lastN(attempts, recentWindow))
	return core.Clamp(0.7*recent+0.3*overall, 0, 100)
}

type topicStat struct {
	topic string
	mean  float64 // unrounded
	count int
}

// topicStats groups attempts by topic in first-seen order.
func topicStats(attempts []AttemptRecord) []topicStat {
	idx := make(map[string]int)
	sums := make([]float64, 0)
	stats := make([]topicStat, 0)
	for _, a := range attempts {
		t := a.topic()
		i, ok := idx[t]
		if !ok {
			i = len(stats)
			idx[t] = i
			stats = append(stats, topicStat{topic: t})
			sums = append(sums, 0)
		}
		sums[i] += a.Score
		stats[i].count++
	}
	for i := range stats {
		stats[i].mean = sums[i] / float64(stats[i].count)
	}
	return stats
}

// WeakTopics returns up to 3 topics whose mean score is below 60, weakest first.
func WeakTopics(attempts []AttemptRecord) []string {
	weak := make([]topicStat, 0)
	for _, st := range topicStats(attempts) {
		if st.mean < weakThreshold {
			weak = append(weak, st)
		}
	}
	sort.SliceStable(weak, func(i, j int) bool { return core.Round2(weak[i].mean) < core.Round2(weak[j].mean) })

	topics := make([]string, 0, maxWeakTopics)
	for i := 0; i < len(weak) && i < maxWeakTopics; i++ {
		topics = append(topics, weak[i].topic)
	}
	return topics
}

func performanceLabel(acc float64) string {
	switch {
	case acc >= 90:
		return LabelExcellent
	case acc >= 75:
		return LabelGood
	case acc >= 60:
		return LabelSatisfactory
	case acc >= 40:
		return LabelNeedsImprovement
	default:
		return LabelStruggling
	}
}

func feedback(acc, recentAcc, mastery float64, weak []string) string {
	parts := make([]string, 0, 4)

	switch {
	case acc >= 80:
		parts = append(parts, "Excellent work! You're demonstrating strong understanding.")
	case acc >= 60:
		parts = append(parts, "Good progress! Keep up the consistent effort.")
	default:
		parts = append(parts, "You're building your foundation. Practice will help!")
	}

	if recentAcc > acc+10 {
		parts = append(parts, "Your recent performance shows great improvement!")
	} else if recentAcc < acc-10 {
		parts = append(parts, "Take time to review concepts that are challenging.")
	}

	if len(weak) > 0 {
		parts = append(parts, "Focus on: "+strings.Join(weak, ", "))
	}

	if mastery >= 80 {
		parts = append(parts, "You're close to mastery! Challenge yourself with advanced topics.")
	} else if mastery >= 60 {
		parts = append(parts, "You're developing solid skills. Keep practicing!")
	}

	return strings.Join(parts, " ")
}

// EvaluatePerformance summarises a chronological attempt history.
// An empty history yields the "No data" result.
func EvaluatePerformance(attempts []AttemptRecord) (EvaluationResult, error) {
	if len(attempts) == 0 {
		return EvaluationResult{
			OverallPerformance: LabelNoData,
			WeakAreas:          []string{},
			Feedback:           noDataFeedback,
		}, nil
	}
	if err := checkAttempts(attempts); err != nil {
		return EvaluationResult{}, err
	}

	total := len(attempts)
	acc := accuracy(attempts)
	recentAcc := accuracy(lastN(attempts, recentWindow))
	mastery := Mastery(attempts)
	weak := WeakTopics(attempts)
	confidence := 100 * math.Min(float64(total)/confidenceFull, 1)

	trend := TrendStable
	if recentAcc > acc {
		trend = TrendImproving
	} else if recentAcc < acc {
		trend = TrendDeclining
	}

	return EvaluationResult{
		OverallPerformance: performanceLabel(acc),
		Accuracy:           core.Round2(core.Clamp(acc, 0, 100)),
		RecentAccuracy:     core.Round2(core.Clamp(recentAcc, 0, 100)),
		MasteryLevel:       core.Round2(mastery),
		WeakAreas:          weak,
		Feedback:           feedback(acc, recentAcc, mastery, weak),
		Confidence:         core.Round2(core.Clamp(confidence, 0, 100)),
		TotalAttempts:      total,
		Trend:              trend,
	}, nil
}

// TargetDifficulty maps a mastery level to the lesson difficulty a learner should work on.
func TargetDifficulty(mastery float64) core.Difficulty {
	switch {
	case mastery < 40:
		return core.Beginner
	case mastery < 70:
		return core.Intermediate
	default:
		return core.Advanced
	}
}

// RecommendLessons scores the catalog lessons the learner has not completed yet and
// returns the best `limit` of them, highest score first. Ties keep catalog order.
//
// Lessons without prerequisites get no prerequisite adjustment, while lessons with
// all prerequisites completed get +20.
func RecommendLessons(snapshot StudentSnapshot, catalog []LessonSummary, limit int) ([]Recommendation, error) {
	recs := make([]Recommendation, 0)
	if len(catalog) == 0 || limit <= 0 {
		return recs, nil
	}
	if err := checkAttempts(snapshot.Attempts); err != nil {
		return nil, err
	}

	completed := make(map[string]bool, len(snapshot.CompletedLessonIDs))
	for _, id := range snapshot.CompletedLessonIDs {
		completed[id] = true
	}
	weak := make(map[string]bool)
	for _, t := range WeakTopics(snapshot.Attempts) {
		weak[t] = true
	}
	target := TargetDifficulty(Mastery(snapshot.Attempts))

	for _, lsn := range catalog {
		if completed[lsn.ID] {
			continue
		}

		var score int
		reasons := make([]string, 0, 3)

		if lsn.Difficulty == target {
			score += 50
			reasons = append(reasons, fmt.Sprintf("Matches your %s level", target))
		}
		if weak[lsn.Subject] {
			score += 30
			reasons = append(reasons, "Helps improve weak areas")
		}
		if len(lsn.Prerequisites) > 0 {
			if allCompleted(lsn.Prerequisites, completed) {
				score += 20
				reasons = append(reasons, "Prerequisites completed")
			} else {
				score -= 30
				reasons = append(reasons, "Missing prerequisites")
			}
		}

		reason := defaultReason
		if len(reasons) > 0 {
			reason = strings.Join(reasons, reasonSep)
		}

		summary := lsn
		if lsn.Prerequisites != nil {
			summary.Prerequisites = append(make([]string, 0, len(lsn.Prerequisites)), lsn.Prerequisites...)
		}
		recs = append(recs, Recommendation{
			LessonSummary:        summary,
			RecommendationReason: reason,
			RecommendationScore:  score,
		})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].RecommendationScore > recs[j].RecommendationScore
	})
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func allCompleted(ids []string, completed map[string]bool) bool {
	for _, id := range ids {
		if !completed[id] {
			return false
		}
	}
	return true
}

// DetectLearningGaps reports every topic whose mean score is below 60.
// High severity gaps come first, then lower mean scores.
func DetectLearningGaps(attempts []AttemptRecord, catalog []LessonSummary) ([]LearningGap, error) {
	gaps := make([]LearningGap, 0)
	if err := checkAttempts(attempts); err != nil {
		return nil, err
	}

	for _, st := range topicStats(attempts) {
		if st.mean >= weakThreshold {
			continue
		}
		severity := SeverityMedium
		if st.mean < severeThreshold {
			severity = SeverityHigh
		}
		gaps = append(gaps, LearningGap{
			Topic:            st.topic,
			AverageScore:     core.Round2(st.mean),
			Severity:         severity,
			AttemptsCount:    st.count,
			SuggestedLessons: suggestLessons(st.topic, catalog),
			Description: fmt.Sprintf(
				"Your average score in %s is %.1f%%. Consider reviewing related lessons.", st.topic, st.mean),
		})
	}

	sort.SliceStable(gaps, func(i, j int) bool {
		hi, hj := gaps[i].Severity == SeverityHigh, gaps[j].Severity == SeverityHigh
		if hi != hj {
			return hi
		}
		return gaps[i].AverageScore < gaps[j].AverageScore
	})
	return gaps, nil
}

func suggestLessons(topic string, catalog []LessonSummary) []string {
	ids := make([]string, 0, maxSuggested)
	lt := strings.ToLower(topic)
	for _, lsn := range catalog {
		if len(ids) == maxSuggested {
			break
		}
		if strings.EqualFold(lsn.Subject, topic) || strings.Contains(strings.ToLower(lsn.Title), lt) {
			ids = append(ids, lsn.ID)
		}
	}
	return ids
}

// PredictSuccessProbability estimates the chance (0-100) that the learner answers a quiz
// of the given difficulty correctly, from their last 5 attempts. No history yields 50.
func PredictSuccessProbability(attempts []AttemptRecord, mastery float64, quizDifficulty core.Difficulty) (float64, error) {
	if len(attempts) == 0 {
		return 50, nil
	}
	if err := checkAttempts(attempts); err != nil {
		return 0, err
	}

	recent := lastN(attempts, predictionWindow)
	var passed int
	for _, a := range recent {
		if a.Score >= passingScore {
			passed++
		}
	}
	prob := pct(passed, len(recent))

	switch {
	case quizDifficulty == core.Beginner && mastery > 40:
		prob += 20
	case quizDifficulty == core.Advanced && mastery < 60:
		prob -= 20
	}
	return core.Round2(core.Clamp(prob, 0, 100)), nil
}
