package experiment

import (
	"sync/atomic"

	"github.com/pavelanni/athena-playground/internal/model"
)

// Generation hands out tokens for in-flight requests. Only the holder of
// the latest token may apply its result.
type Generation struct {
	n atomic.Uint64
}

// Begin starts a new generation and returns its token.
func (g *Generation) Begin() uint64 {
	return g.n.Add(1)
}

// Current reports whether token belongs to the latest generation.
func (g *Generation) Current(token uint64) bool {
	return g.n.Load() == token
}

// Session tracks one expert's progress through a config. Responses that
// arrive for an older generation are dropped. Not safe for concurrent use
// apart from Begin.
type Session struct {
	cfg      model.ExpertEvaluationConfig
	progress model.ExpertEvaluationProgress
	gen      Generation
}

// NewSession starts a session at progress.
func NewSession(cfg model.ExpertEvaluationConfig, progress model.ExpertEvaluationProgress) *Session {
	if progress.SelectedValues == nil {
		progress.SelectedValues = model.SelectedValues{}
	}
	return &Session{cfg: cfg, progress: progress}
}

func (s *Session) Begin() uint64 {
	return s.gen.Begin()
}

// Snapshot returns the current progress. Later changes never modify it.
func (s *Session) Snapshot() model.ExpertEvaluationProgress {
	return s.progress
}

// Apply merges r if token is still current. It reports whether the rating
// was applied.
func (s *Session) Apply(token uint64, r Rating) (bool, error) {
	if !s.gen.Current(token) {
		return false, nil
	}
	if err := ValidateRating(s.cfg, r); err != nil {
		return false, err
	}
	s.progress = Merge(s.progress, r)
	return true, nil
}

// Advance moves to the next submission if token is still current.
func (s *Session) Advance(token uint64) bool {
	if !s.gen.Current(token) {
		return false
	}
	s.progress = Advance(s.progress, s.cfg)
	return true
}

func (s *Session) Current() (model.EvaluationExercise, model.EvaluationSubmission, bool) {
	if s.progress.IsFinishedEvaluating {
		return model.EvaluationExercise{}, model.EvaluationSubmission{}, false
	}
	return Current(s.progress, s.cfg)
}
