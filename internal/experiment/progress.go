package experiment

import (
	"fmt"

	"github.com/pavelanni/athena-playground/internal/model"
)

// Likert scale bounds for a single rating.
const (
	MinRating = 1
	MaxRating = 5
)

// Rating is one expert judgement of one feedback type on one metric.
type Rating struct {
	ExerciseID   int    `json:"exercise_id"`
	SubmissionID int    `json:"submission_id"`
	FeedbackType string `json:"feedback_type"`
	MetricID     string `json:"metric_id"`
	Value        int    `json:"value"`
}

// Validate checks the rating on its own, without a config.
func (r Rating) Validate() error {
	if r.FeedbackType == "" {
		return model.Invalid("rating needs a feedback type")
	}
	if r.MetricID == "" {
		return model.Invalid("rating needs a metric id")
	}
	if r.Value < MinRating || r.Value > MaxRating {
		return model.Invalid(fmt.Sprintf("rating must be between %d and %d, got %d", MinRating, MaxRating, r.Value))
	}
	return nil
}

// ValidateRating checks that a rating refers to a metric, exercise,
// submission and feedback type of cfg.
func ValidateRating(cfg model.ExpertEvaluationConfig, r Rating) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if !hasMetric(cfg, r.MetricID) {
		return model.Invalid(fmt.Sprintf("unknown metric %q", r.MetricID))
	}
	for _, ex := range cfg.Exercises {
		if ex.ID != r.ExerciseID {
			continue
		}
		for _, sub := range ex.Submissions {
			if sub.ID != r.SubmissionID {
				continue
			}
			if _, ok := sub.Feedbacks[r.FeedbackType]; !ok {
				return model.Invalid(fmt.Sprintf("unknown feedback type %q for submission %d", r.FeedbackType, r.SubmissionID))
			}
			return nil
		}
		return model.Invalid(fmt.Sprintf("unknown submission %d in exercise %d", r.SubmissionID, r.ExerciseID))
	}
	return model.Invalid(fmt.Sprintf("unknown exercise %d", r.ExerciseID))
}

func hasMetric(cfg model.ExpertEvaluationConfig, id string) bool {
	for _, m := range cfg.Metrics {
		if m.ID == id {
			return true
		}
	}
	return false
}

// Merge returns a new snapshot with r upserted into the selected values.
// Maps along the rating's path are copied; p itself is never modified and
// untouched branches are shared between p and the result.
func Merge(p model.ExpertEvaluationProgress, r Rating) model.ExpertEvaluationProgress {
	next := p
	next.HasStartedEvaluating = true

	byExercise := make(model.SelectedValues, len(p.SelectedValues)+1)
	for k, v := range p.SelectedValues {
		byExercise[k] = v
	}

	oldSubs := p.SelectedValues[r.ExerciseID]
	bySubmission := make(map[int]map[string]map[string]int, len(oldSubs)+1)
	for k, v := range oldSubs {
		bySubmission[k] = v
	}

	oldTypes := oldSubs[r.SubmissionID]
	byType := make(map[string]map[string]int, len(oldTypes)+1)
	for k, v := range oldTypes {
		byType[k] = v
	}

	oldMetrics := oldTypes[r.FeedbackType]
	byMetric := make(map[string]int, len(oldMetrics)+1)
	for k, v := range oldMetrics {
		byMetric[k] = v
	}

	byMetric[r.MetricID] = r.Value
	byType[r.FeedbackType] = byMetric
	bySubmission[r.SubmissionID] = byType
	byExercise[r.ExerciseID] = bySubmission
	next.SelectedValues = byExercise
	return next
}

// Lookup returns the stored rating for the given coordinates.
func Lookup(p model.ExpertEvaluationProgress, exerciseID, submissionID int, feedbackType, metricID string) (int, bool) {
	v, ok := p.SelectedValues[exerciseID][submissionID][feedbackType][metricID]
	return v, ok
}

// Current returns the exercise and submission the progress points at.
func Current(p model.ExpertEvaluationProgress, cfg model.ExpertEvaluationConfig) (model.EvaluationExercise, model.EvaluationSubmission, bool) {
	if p.CurrentExerciseIndex < 0 || p.CurrentExerciseIndex >= len(cfg.Exercises) {
		return model.EvaluationExercise{}, model.EvaluationSubmission{}, false
	}
	ex := cfg.Exercises[p.CurrentExerciseIndex]
	if p.CurrentSubmissionIndex < 0 || p.CurrentSubmissionIndex >= len(ex.Submissions) {
		return ex, model.EvaluationSubmission{}, false
	}
	return ex, ex.Submissions[p.CurrentSubmissionIndex], true
}

// Advance moves to the next submission, skipping exercises without
// submissions. Indices never decrease; after the last submission the
// snapshot is marked finished and the indices stay put.
func Advance(p model.ExpertEvaluationProgress, cfg model.ExpertEvaluationConfig) model.ExpertEvaluationProgress {
	next := p
	next.HasStartedEvaluating = true
	if p.IsFinishedEvaluating {
		return next
	}
	ei, si := p.CurrentExerciseIndex, p.CurrentSubmissionIndex+1
	for ei < len(cfg.Exercises) {
		if si < len(cfg.Exercises[ei].Submissions) {
			next.CurrentExerciseIndex = ei
			next.CurrentSubmissionIndex = si
			return next
		}
		ei++
		si = 0
	}
	next.IsFinishedEvaluating = true
	return next
}

// Remaining counts the submissions from the current position to the end,
// including the current one.
func Remaining(p model.ExpertEvaluationProgress, cfg model.ExpertEvaluationConfig) int {
	if p.IsFinishedEvaluating {
		return 0
	}
	n := 0
	for ei := p.CurrentExerciseIndex; ei < len(cfg.Exercises); ei++ {
		subs := len(cfg.Exercises[ei].Submissions)
		if ei == p.CurrentExerciseIndex {
			subs -= p.CurrentSubmissionIndex
		}
		if subs > 0 {
			n += subs
		}
	}
	return n
}

// CheckProgress rejects a snapshot that would move an expert back behind
// prev: indices never decrease and a finished evaluation stays finished.
func CheckProgress(prev, next model.ExpertEvaluationProgress) error {
	if next.CurrentExerciseIndex < 0 || next.CurrentSubmissionIndex < 0 {
		return model.Invalid("progress indices must not be negative")
	}
	if prev.IsFinishedEvaluating && !next.IsFinishedEvaluating {
		return model.Invalid("a finished evaluation cannot be reopened")
	}
	if next.CurrentExerciseIndex < prev.CurrentExerciseIndex ||
		(next.CurrentExerciseIndex == prev.CurrentExerciseIndex && next.CurrentSubmissionIndex < prev.CurrentSubmissionIndex) {
		return model.Invalid(fmt.Sprintf("progress cannot move back from exercise %d submission %d to exercise %d submission %d",
			prev.CurrentExerciseIndex, prev.CurrentSubmissionIndex, next.CurrentExerciseIndex, next.CurrentSubmissionIndex))
	}
	return nil
}

// ValidateProgress checks every stored rating of p against cfg.
func ValidateProgress(cfg model.ExpertEvaluationConfig, p model.ExpertEvaluationProgress) error {
	for exID, subs := range p.SelectedValues {
		for subID, types := range subs {
			for feedbackType, metrics := range types {
				for metricID, v := range metrics {
					r := Rating{ExerciseID: exID, SubmissionID: subID, FeedbackType: feedbackType, MetricID: metricID, Value: v}
					if err := ValidateRating(cfg, r); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}
