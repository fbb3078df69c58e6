package model

import (
	"encoding/json"
	"time"
)

// EvaluationConfigType is the discriminator every stored evaluation config carries.
const EvaluationConfigType = "evaluation_config"

// Rubric describes the three points of a metric's rating scale.
type Rubric struct {
	Good string `json:"good"`
	Mid  string `json:"mid"`
	Bad  string `json:"bad"`
}

// Metric is one dimension experts rate feedback on.
type Metric struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	Rubric      Rubric `json:"rubric"`
}

// EvaluationSubmission is a submission together with the feedback each
// feedback type (module or human source) produced for it.
type EvaluationSubmission struct {
	Submission
	Feedbacks map[string][]Feedback `json:"feedbacks"`
}

// EvaluationExercise is an exercise with the submissions selected for rating.
type EvaluationExercise struct {
	Exercise
	Submissions []EvaluationSubmission `json:"submissions"`
}

// ExecutionMode controls how module feedback is gathered for a campaign.
type ExecutionMode string

const (
	// ExecutionBatch requests feedback for all submissions before experts start.
	ExecutionBatch ExecutionMode = "batch"
	// ExecutionInteractive requests feedback while experts rate.
	ExecutionInteractive ExecutionMode = "interactive"
)

// ExpertEvaluationConfig defines one expert evaluation campaign.
// ModuleConfigs holds the configuration sent to each module under test,
// keyed by module name.
type ExpertEvaluationConfig struct {
	Type          string                     `json:"type"`
	ID            string                     `json:"id"`
	Name          string                     `json:"name"`
	CreationDate  time.Time                  `json:"creation_date"`
	Metrics       []Metric                   `json:"metrics"`
	Exercises     []EvaluationExercise       `json:"exercises"`
	ExpertIDs     []string                   `json:"expert_ids"`
	ModuleConfigs map[string]json.RawMessage `json:"module_configs,omitempty"`
	ExecutionMode ExecutionMode              `json:"execution_mode,omitempty"`
	Started       bool                       `json:"started"`
}

// SelectedValues maps exerciseID -> submissionID -> feedbackType -> metricID -> rating.
type SelectedValues map[int]map[int]map[string]map[string]int

// ExpertEvaluationProgress is one expert's resumable position in the rating matrix.
type ExpertEvaluationProgress struct {
	CurrentSubmissionIndex int            `json:"current_submission_index"`
	CurrentExerciseIndex   int            `json:"current_exercise_index"`
	SelectedValues         SelectedValues `json:"selected_values"`
	HasStartedEvaluating   bool           `json:"has_started_evaluating"`
	IsFinishedEvaluating   bool           `json:"is_finished_evaluating"`
}
