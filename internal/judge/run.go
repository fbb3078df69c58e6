package judge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/pavelanni/athena-playground/internal/experiment"
	"github.com/pavelanni/athena-playground/internal/model"
)

// Rater produces ratings for the feedback of one feedback type.
type Rater interface {
	Rate(ctx context.Context, metrics []model.Metric, ex model.Exercise, sub model.Submission, feedbacks []model.Feedback) (map[string]int, error)
}

// Store is the part of the data store a run needs.
type Store interface {
	LoadExpertEvaluationConfig(mode model.DataMode, evalID string) (model.ExpertEvaluationConfig, error)
	LoadProgress(mode model.DataMode, evalID, expertID string) (model.ExpertEvaluationProgress, error)
	SaveProgress(mode model.DataMode, evalID, expertID string, p model.ExpertEvaluationProgress) error
}

// Run rates every remaining submission of a started evaluation as expertID.
// Progress is saved after each submission, so an interrupted run resumes
// where it stopped.
func Run(ctx context.Context, s Store, rater Rater, mode model.DataMode, evalID, expertID string) (model.ExpertEvaluationProgress, error) {
	cfg, err := s.LoadExpertEvaluationConfig(mode, evalID)
	if err != nil {
		return model.ExpertEvaluationProgress{}, err
	}
	if !cfg.Started {
		return model.ExpertEvaluationProgress{}, model.Invalid("evaluation " + evalID + " has not been started")
	}
	if len(cfg.ExpertIDs) > 0 && !slices.Contains(cfg.ExpertIDs, expertID) {
		return model.ExpertEvaluationProgress{}, model.Invalid("expert " + expertID + " is not part of this evaluation")
	}

	p, err := s.LoadProgress(mode, evalID, expertID)
	if errors.Is(err, model.ErrNotFound) {
		p, err = model.ExpertEvaluationProgress{SelectedValues: model.SelectedValues{}}, nil
	}
	if err != nil {
		return p, err
	}

	sess := experiment.NewSession(cfg, p)
	slog.Info("judge run", "mode", mode, "evaluation_id", evalID, "expert_id", expertID,
		"remaining", experiment.Remaining(p, cfg))

	for {
		ex, sub, ok := sess.Current()
		if !ok {
			if sess.Snapshot().IsFinishedEvaluating {
				break
			}
			// Positioned on an exercise without submissions.
			sess.Advance(sess.Begin())
			continue
		}
		if err := ctx.Err(); err != nil {
			return sess.Snapshot(), err
		}
		token := sess.Begin()
		if err := rateSubmission(ctx, sess, token, rater, cfg.Metrics, ex, sub); err != nil {
			return sess.Snapshot(), fmt.Errorf("exercise %d submission %d: %w", ex.ID, sub.ID, err)
		}
		sess.Advance(token)
		if err := s.SaveProgress(mode, evalID, expertID, sess.Snapshot()); err != nil {
			return sess.Snapshot(), err
		}
		slog.Debug("judge rated submission", "exercise_id", ex.ID, "submission_id", sub.ID)
	}

	final := sess.Snapshot()
	if err := s.SaveProgress(mode, evalID, expertID, final); err != nil {
		return final, err
	}
	slog.Info("judge run finished", "evaluation_id", evalID, "expert_id", expertID)
	return final, nil
}

func rateSubmission(ctx context.Context, sess *experiment.Session, token uint64, rater Rater, metrics []model.Metric, ex model.EvaluationExercise, sub model.EvaluationSubmission) error {
	types := make([]string, 0, len(sub.Feedbacks))
	for t := range sub.Feedbacks {
		types = append(types, t)
	}
	sort.Strings(types)

	for _, t := range types {
		ratings, err := rater.Rate(ctx, metrics, ex.Exercise, sub.Submission, sub.Feedbacks[t])
		if err != nil {
			return fmt.Errorf("feedback type %s: %w", t, err)
		}
		for _, m := range metrics {
			v, ok := ratings[m.ID]
			if !ok {
				continue
			}
			if _, err := sess.Apply(token, experiment.Rating{
				ExerciseID:   ex.ID,
				SubmissionID: sub.ID,
				FeedbackType: t,
				MetricID:     m.ID,
				Value:        v,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}
