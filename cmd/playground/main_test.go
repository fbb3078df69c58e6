package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/athena-playground/internal/model"
	"github.com/pavelanni/athena-playground/internal/store"
)

func TestNormalizeBasePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"/", ""},
		{"playground", "/playground"},
		{"/playground/", "/playground"},
		{"/a/b", "/a/b"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeBasePath(tt.in), "input %q", tt.in)
	}
}

func TestStartForJudge(t *testing.T) {
	data, err := store.New(t.TempDir())
	require.NoError(t, err)
	cfg := model.ExpertEvaluationConfig{
		Type:    model.EvaluationConfigType,
		ID:      "study",
		Name:    "Study",
		Metrics: []model.Metric{{ID: "clarity"}},
		Exercises: []model.EvaluationExercise{{
			Exercise:    model.Exercise{ID: 1},
			Submissions: []model.EvaluationSubmission{{Submission: model.Submission{ID: 10, ExerciseID: 1}}},
		}},
	}
	_, err = data.SaveExpertEvaluationConfig(model.DataModeEvaluation, cfg)
	require.NoError(t, err)

	require.NoError(t, startForJudge(data, model.DataModeEvaluation, "study", "llm-judge", "llama3.2", "standard"))

	got, err := data.LoadExpertEvaluationConfig(model.DataModeEvaluation, "study")
	require.NoError(t, err)
	assert.True(t, got.Started)
	assert.Equal(t, []string{"llm-judge"}, got.ExpertIDs)
	assert.Equal(t, model.ExecutionBatch, got.ExecutionMode)
	assert.JSONEq(t, `{"model":"llama3.2","prompt_variant":"standard"}`, string(got.ModuleConfigs["judge"]))

	// Already started: nothing changes.
	require.NoError(t, startForJudge(data, model.DataModeEvaluation, "study", "other", "llama3.2", "standard"))
	got, err = data.LoadExpertEvaluationConfig(model.DataModeEvaluation, "study")
	require.NoError(t, err)
	assert.Equal(t, []string{"llm-judge"}, got.ExpertIDs)

	assert.ErrorIs(t, startForJudge(data, model.DataModeEvaluation, "missing", "x", "m", "standard"), model.ErrNotFound)
}

func TestSHA256Sum(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", sha256sum(nil))
}
