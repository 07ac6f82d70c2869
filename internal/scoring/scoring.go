// Package scoring evaluates submitted answers against correct option sets and
// aggregates attempt results into per-test and per-schema statistics.
package scoring

import (
	"math"

	"github.com/altrazmedia/sphinx-app-server/internal/exam"
)

// IsAnswerCorrect reports whether the submitted option ids are set-equal to
// the correct ones: same members, order irrelevant, no partial credit.
// Duplicates in the submission are collapsed before comparing, so a repeated
// id cannot pad the answer to the right length.
func IsAnswerCorrect(submitted, correct []string) bool {
	sub := toSet(submitted)
	cor := toSet(correct)
	if len(sub) != len(cor) {
		return false
	}
	for id := range cor {
		if _, ok := sub[id]; !ok {
			return false
		}
	}
	return true
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// ScoredAnswer is one answer record with its verdict.
type ScoredAnswer struct {
	QuestionID string   `json:"questionSchema"`
	OptionIDs  []string `json:"answer"`
	Correct    bool     `json:"correct"`
}

// ScoredAttempt is an attempt with its correctness count and percentage
// score. Answers carry per-question verdicts unless stripped by the caller.
type ScoredAttempt struct {
	ID             string         `json:"_id"`
	Student        exam.Ref       `json:"student"`
	Started        bool           `json:"started"`
	Answers        []ScoredAnswer `json:"questions,omitempty"`
	CorrectAnswers int            `json:"correctAnswers"`
	Score          float64        `json:"score"`
}

// Trunc2 truncates to two decimal digits. Scores are truncated, never
// rounded: 2/3 of 100 is 66.66, not 66.67.
func Trunc2(v float64) float64 {
	return math.Floor(v*100) / 100
}

// ScoreAttempt evaluates every answer of an attempt against the given
// questions. The score is the percentage of correct answers truncated to two
// decimals; a test with zero questions scores 0 by policy. When keepAnswers
// is false the per-question detail is stripped and only the summary fields
// remain.
func ScoreAttempt(a exam.Attempt, questions []exam.Question, keepAnswers bool) ScoredAttempt {
	byID := make(map[string]exam.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	scored := ScoredAttempt{ID: a.ID, Student: a.Student, Started: a.Started}
	answers := make([]ScoredAnswer, len(a.Answers))
	for i, ans := range a.Answers {
		sa := ScoredAnswer{QuestionID: ans.QuestionID, OptionIDs: ans.OptionIDs}
		if q, ok := byID[ans.QuestionID]; ok {
			sa.Correct = IsAnswerCorrect(ans.OptionIDs, q.CorrectOptionIDs())
		}
		if sa.Correct {
			scored.CorrectAnswers++
		}
		answers[i] = sa
	}

	if total := len(a.Answers); total > 0 {
		scored.Score = Trunc2(float64(scored.CorrectAnswers) / float64(total) * 100)
	}
	if keepAnswers {
		scored.Answers = answers
	}
	return scored
}

// ScoreAttempts scores a collection of attempts against one question set.
func ScoreAttempts(attempts []exam.Attempt, questions []exam.Question, keepAnswers bool) []ScoredAttempt {
	out := make([]ScoredAttempt, len(attempts))
	for i, a := range attempts {
		out[i] = ScoreAttempt(a, questions, keepAnswers)
	}
	return out
}

// Average returns the mean score truncated to two decimals, 0 when there are
// no attempts.
func Average(attempts []ScoredAttempt) float64 {
	if len(attempts) == 0 {
		return 0
	}
	sum := 0.0
	for _, a := range attempts {
		sum += a.Score
	}
	return Trunc2(sum / float64(len(attempts)))
}

// QuestionStats counts, for one question across many attempts, how many
// times it was asked and how many times it was answered correctly.
type QuestionStats struct {
	Asked             int `json:"asked"`
	AnsweredCorrectly int `json:"answeredCorrectly"`
}

// SchemaStats rolls scored attempts up into per-question counters, the total
// attempt count, and the global average score.
type SchemaStats struct {
	Questions     map[string]QuestionStats
	TotalAttempts int
	AverageScore  float64
}

// AggregateSchema accumulates stats over attempts that may come from many
// tests spawned from the same schema. Attempts must be scored with answers
// kept, otherwise there is no per-question detail to count.
func AggregateSchema(scored []ScoredAttempt) SchemaStats {
	stats := SchemaStats{Questions: map[string]QuestionStats{}}
	sum := 0.0
	for _, a := range scored {
		stats.TotalAttempts++
		sum += a.Score
		for _, ans := range a.Answers {
			qs := stats.Questions[ans.QuestionID]
			qs.Asked++
			if ans.Correct {
				qs.AnsweredCorrectly++
			}
			stats.Questions[ans.QuestionID] = qs
		}
	}
	if stats.TotalAttempts > 0 {
		stats.AverageScore = Trunc2(sum / float64(stats.TotalAttempts))
	}
	return stats
}
