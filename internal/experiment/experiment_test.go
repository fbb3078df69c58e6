package experiment

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/athena-playground/internal/model"
)

func submission(id, exerciseID int, types ...string) model.EvaluationSubmission {
	fbs := map[string][]model.Feedback{}
	for _, t := range types {
		fbs[t] = []model.Feedback{{ExerciseID: exerciseID, SubmissionID: id, Title: t}}
	}
	return model.EvaluationSubmission{
		Submission: model.Submission{ID: id, ExerciseID: exerciseID},
		Feedbacks:  fbs,
	}
}

// testConfig has exercise 1 with two submissions, exercise 3 with none and
// exercise 4 with one.
func testConfig() model.ExpertEvaluationConfig {
	return model.ExpertEvaluationConfig{
		Type: model.EvaluationConfigType,
		ID:   "eval1",
		Name: "Tutor vs LLM",
		Metrics: []model.Metric{
			{ID: "clarity", Title: "Clarity"},
			{ID: "correctness", Title: "Correctness"},
		},
		Exercises: []model.EvaluationExercise{
			{Exercise: model.Exercise{ID: 1, Type: model.ExerciseText},
				Submissions: []model.EvaluationSubmission{submission(2, 1, "text", "tutor"), submission(5, 1, "text")}},
			{Exercise: model.Exercise{ID: 3, Type: model.ExerciseText}},
			{Exercise: model.Exercise{ID: 4, Type: model.ExerciseText},
				Submissions: []model.EvaluationSubmission{submission(7, 4, "text")}},
		},
		ExpertIDs: []string{"expert1", "expert2"},
	}
}

func TestMergePreservesOtherRatings(t *testing.T) {
	p := model.ExpertEvaluationProgress{
		SelectedValues: model.SelectedValues{1: {2: {"text": {"clarity": 3}}}},
	}
	got := Merge(p, Rating{ExerciseID: 1, SubmissionID: 2, FeedbackType: "text", MetricID: "correctness", Value: 5})

	want := model.SelectedValues{1: {2: {"text": {"clarity": 3, "correctness": 5}}}}
	if diff := cmp.Diff(want, got.SelectedValues); diff != "" {
		t.Errorf("Merge() mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, got.HasStartedEvaluating)

	// Input snapshot untouched.
	if diff := cmp.Diff(model.SelectedValues{1: {2: {"text": {"clarity": 3}}}}, p.SelectedValues); diff != "" {
		t.Errorf("Merge() mutated input (-want +got):\n%s", diff)
	}
}

func TestMergeIsIdempotent(t *testing.T) {
	r := Rating{ExerciseID: 4, SubmissionID: 7, FeedbackType: "text", MetricID: "clarity", Value: 2}
	once := Merge(model.ExpertEvaluationProgress{}, r)
	twice := Merge(once, r)
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("second Merge() changed snapshot (-once +twice):\n%s", diff)
	}

	over := Merge(twice, Rating{ExerciseID: 4, SubmissionID: 7, FeedbackType: "text", MetricID: "clarity", Value: 4})
	v, ok := Lookup(over, 4, 7, "text", "clarity")
	assert.True(t, ok)
	assert.Equal(t, 4, v, "last write wins")
	v, _ = Lookup(twice, 4, 7, "text", "clarity")
	assert.Equal(t, 2, v, "earlier snapshot keeps its value")
}

func TestValidateRating(t *testing.T) {
	cfg := testConfig()
	tests := []struct {
		name    string
		r       Rating
		wantErr bool
	}{
		{"valid", Rating{ExerciseID: 1, SubmissionID: 2, FeedbackType: "tutor", MetricID: "clarity", Value: 4}, false},
		{"value too low", Rating{ExerciseID: 1, SubmissionID: 2, FeedbackType: "text", MetricID: "clarity", Value: 0}, true},
		{"value too high", Rating{ExerciseID: 1, SubmissionID: 2, FeedbackType: "text", MetricID: "clarity", Value: 6}, true},
		{"unknown metric", Rating{ExerciseID: 1, SubmissionID: 2, FeedbackType: "text", MetricID: "style", Value: 3}, true},
		{"unknown exercise", Rating{ExerciseID: 9, SubmissionID: 2, FeedbackType: "text", MetricID: "clarity", Value: 3}, true},
		{"unknown submission", Rating{ExerciseID: 1, SubmissionID: 7, FeedbackType: "text", MetricID: "clarity", Value: 3}, true},
		{"unknown feedback type", Rating{ExerciseID: 1, SubmissionID: 5, FeedbackType: "tutor", MetricID: "clarity", Value: 3}, true},
		{"empty feedback type", Rating{ExerciseID: 1, SubmissionID: 5, MetricID: "clarity", Value: 3}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRating(cfg, tt.r)
			if tt.wantErr {
				var verr *model.ValidationError
				assert.ErrorAs(t, err, &verr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAdvanceIsMonotonic(t *testing.T) {
	cfg := testConfig()
	p := model.ExpertEvaluationProgress{}

	type pos struct{ ex, sub int }
	var visited []pos
	for !p.IsFinishedEvaluating {
		_, sub, ok := Current(p, cfg)
		require.True(t, ok)
		visited = append(visited, pos{p.CurrentExerciseIndex, sub.ID})

		next := Advance(p, cfg)
		assert.GreaterOrEqual(t, next.CurrentExerciseIndex, p.CurrentExerciseIndex)
		if next.CurrentExerciseIndex == p.CurrentExerciseIndex && !next.IsFinishedEvaluating {
			assert.Greater(t, next.CurrentSubmissionIndex, p.CurrentSubmissionIndex)
		}
		p = next
	}

	assert.Equal(t, []pos{{0, 2}, {0, 5}, {2, 7}}, visited, "exercise without submissions is skipped")
	assert.Equal(t, 2, p.CurrentExerciseIndex)
	assert.Equal(t, 0, p.CurrentSubmissionIndex)
	assert.Zero(t, Remaining(p, cfg))

	again := Advance(p, cfg)
	assert.Equal(t, p, again, "advancing a finished snapshot is a no-op")
}

func TestRemaining(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, 3, Remaining(model.ExpertEvaluationProgress{}, cfg))
	assert.Equal(t, 2, Remaining(model.ExpertEvaluationProgress{CurrentSubmissionIndex: 1}, cfg))
	assert.Equal(t, 1, Remaining(model.ExpertEvaluationProgress{CurrentExerciseIndex: 2}, cfg))
}

func TestCampaignPhases(t *testing.T) {
	var c Campaign
	assert.Equal(t, PhaseUndefined, c.Phase(nil))
	assert.NotEmpty(t, c.Problems())

	c.Config = testConfig()
	assert.True(t, c.IsDefined())
	assert.Equal(t, PhaseDefined, c.Phase(nil))
	assert.False(t, c.CanStart())

	_, err := c.Start()
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr, "cannot start without a configured module")

	c.Config.ModuleConfigs = map[string]json.RawMessage{"module_text_llm": json.RawMessage(`{"approach":"basic"}`)}
	assert.Equal(t, PhaseConfigured, c.Phase(nil))
	assert.True(t, c.CanStart())

	started, err := c.Start()
	require.NoError(t, err)
	assert.False(t, c.Config.Started, "Start returns a new value")
	assert.Equal(t, model.ExecutionBatch, started.Config.ExecutionMode)
	assert.Equal(t, PhaseRunning, started.Phase(nil))

	_, err = started.Start()
	assert.ErrorAs(t, err, &verr)

	progress := map[string]model.ExpertEvaluationProgress{
		"expert1": {IsFinishedEvaluating: true},
	}
	assert.Equal(t, PhaseRunning, started.Phase(progress))
	progress["expert2"] = model.ExpertEvaluationProgress{IsFinishedEvaluating: true}
	assert.Equal(t, PhaseCompleted, started.Phase(progress))
}

func TestCampaignDuplicateMetric(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics = append(cfg.Metrics, model.Metric{ID: "clarity"})
	c := Campaign{Config: cfg}
	assert.False(t, c.IsDefined())
	assert.Contains(t, c.Problems(), `duplicate metric "clarity"`)
}

func TestCheckUpdate(t *testing.T) {
	draft := testConfig()

	renamed := draft
	renamed.Name = "Renamed"
	_, err := CheckUpdate(draft, renamed)
	assert.NoError(t, err)

	unconfigured := draft
	unconfigured.Started = true
	_, err = CheckUpdate(draft, unconfigured)
	assert.Error(t, err, "starting requires a module configuration")

	draft.ModuleConfigs = map[string]json.RawMessage{"module_text_llm": json.RawMessage(`{"approach":"basic"}`)}

	incomplete := draft
	incomplete.ExpertIDs = nil
	incomplete.Started = true
	_, err = CheckUpdate(draft, incomplete)
	assert.Error(t, err, "starting requires a defined config")

	badMode := draft
	badMode.ExecutionMode = "eventually"
	_, err = CheckUpdate(draft, badMode)
	assert.Error(t, err)

	started := draft
	started.Started = true
	started, err = CheckUpdate(draft, started)
	require.NoError(t, err)
	assert.True(t, started.Started)
	assert.Equal(t, model.ExecutionBatch, started.ExecutionMode)

	tests := []struct {
		name   string
		mutate func(*model.ExpertEvaluationConfig)
		ok     bool
	}{
		{"add expert", func(c *model.ExpertEvaluationConfig) { c.ExpertIDs = append(c.ExpertIDs, "expert3") }, true},
		{"omit module configs", func(c *model.ExpertEvaluationConfig) { c.ModuleConfigs = nil; c.ExecutionMode = "" }, true},
		{"unstart", func(c *model.ExpertEvaluationConfig) { c.Started = false }, false},
		{"change metrics", func(c *model.ExpertEvaluationConfig) { c.Metrics = c.Metrics[:1] }, false},
		{"change exercises", func(c *model.ExpertEvaluationConfig) { c.Exercises = c.Exercises[1:] }, false},
		{"change module configs", func(c *model.ExpertEvaluationConfig) {
			c.ModuleConfigs = map[string]json.RawMessage{"module_text_llm": json.RawMessage(`{"approach":"chain"}`)}
		}, false},
		{"change execution mode", func(c *model.ExpertEvaluationConfig) { c.ExecutionMode = model.ExecutionInteractive }, false},
		{"drop type", func(c *model.ExpertEvaluationConfig) { c.Type = "" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := started
			next.ExpertIDs = append([]string(nil), started.ExpertIDs...)
			tt.mutate(&next)
			got, err := CheckUpdate(started, next)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, started.ModuleConfigs, got.ModuleConfigs)
			assert.Equal(t, started.ExecutionMode, got.ExecutionMode)
		})
	}
}

func TestCheckProgress(t *testing.T) {
	at := func(ex, sub int) model.ExpertEvaluationProgress {
		return model.ExpertEvaluationProgress{CurrentExerciseIndex: ex, CurrentSubmissionIndex: sub}
	}
	finished := at(3, 5)
	finished.IsFinishedEvaluating = true

	tests := []struct {
		name       string
		prev, next model.ExpertEvaluationProgress
		ok         bool
	}{
		{"same position", at(3, 5), at(3, 5), true},
		{"next submission", at(3, 5), at(3, 6), true},
		{"next exercise", at(3, 5), at(4, 0), true},
		{"finish", at(3, 5), finished, true},
		{"rewind to start", at(3, 5), at(0, 0), false},
		{"earlier submission", at(3, 5), at(3, 4), false},
		{"reopen", finished, at(3, 5), false},
		{"negative", at(0, 0), at(0, -1), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckProgress(tt.prev, tt.next)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				var verr *model.ValidationError
				assert.ErrorAs(t, err, &verr)
			}
		})
	}
}

func TestValidateProgress(t *testing.T) {
	cfg := testConfig()
	p := Merge(model.ExpertEvaluationProgress{}, Rating{ExerciseID: 1, SubmissionID: 2, FeedbackType: "tutor", MetricID: "clarity", Value: 3})
	assert.NoError(t, ValidateProgress(cfg, p))
	assert.NoError(t, ValidateProgress(cfg, model.ExpertEvaluationProgress{}))

	p = Merge(p, Rating{ExerciseID: 4, SubmissionID: 7, FeedbackType: "tutor", MetricID: "clarity", Value: 3})
	assert.Error(t, ValidateProgress(cfg, p), "submission 7 has no tutor feedback")
}

func TestExportImportRoundTrip(t *testing.T) {
	cfg := testConfig()
	progress := Merge(model.ExpertEvaluationProgress{}, Rating{ExerciseID: 1, SubmissionID: 2, FeedbackType: "text", MetricID: "clarity", Value: 3})

	data, err := Export(cfg, &progress)
	require.NoError(t, err)

	b, err := Import(data)
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, b.ExpertEvaluationConfig); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	require.NotNil(t, b.Progress)
	if diff := cmp.Diff(progress, *b.Progress); diff != "" {
		t.Errorf("progress mismatch (-want +got):\n%s", diff)
	}

	bare, err := Export(cfg, nil)
	require.NoError(t, err)
	assert.NotContains(t, string(bare), `"progress"`)
	got, err := DecodeConfig(bare)
	require.NoError(t, err)
	assert.Equal(t, cfg.Name, got.Name)
}

func TestImportRejectsWrongType(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"no type", `{"id": "x", "name": "n"}`},
		{"other type", `{"type": "exercise", "id": "x"}`},
		{"not json", `{{`},
		{"wrong shape", `{"type": "evaluation_config", "metrics": "clarity"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Import([]byte(tt.doc))
			var verr *model.ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestSessionDropsStaleResponses(t *testing.T) {
	s := NewSession(testConfig(), model.ExpertEvaluationProgress{})

	first := s.Begin()
	second := s.Begin()

	applied, err := s.Apply(first, Rating{ExerciseID: 1, SubmissionID: 2, FeedbackType: "text", MetricID: "clarity", Value: 1})
	require.NoError(t, err)
	assert.False(t, applied, "stale token")
	_, ok := Lookup(s.Snapshot(), 1, 2, "text", "clarity")
	assert.False(t, ok)

	applied, err = s.Apply(second, Rating{ExerciseID: 1, SubmissionID: 2, FeedbackType: "text", MetricID: "clarity", Value: 4})
	require.NoError(t, err)
	assert.True(t, applied)
	v, _ := Lookup(s.Snapshot(), 1, 2, "text", "clarity")
	assert.Equal(t, 4, v)

	_, err = s.Apply(second, Rating{ExerciseID: 1, SubmissionID: 2, FeedbackType: "text", MetricID: "clarity", Value: 9})
	assert.Error(t, err)

	assert.False(t, s.Advance(first))
	assert.True(t, s.Advance(second))
	_, sub, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, 5, sub.ID)
}
