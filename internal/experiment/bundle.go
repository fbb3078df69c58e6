package experiment

import (
	"encoding/json"
	"fmt"

	"github.com/pavelanni/athena-playground/internal/model"
)

// Bundle is the downloadable form of an evaluation: the config plus,
// optionally, one expert's progress.
type Bundle struct {
	model.ExpertEvaluationConfig
	Progress *model.ExpertEvaluationProgress `json:"progress,omitempty"`
}

// Export serializes cfg and, when non-nil, progress.
func Export(cfg model.ExpertEvaluationConfig, progress *model.ExpertEvaluationProgress) ([]byte, error) {
	return json.MarshalIndent(Bundle{ExpertEvaluationConfig: cfg, Progress: progress}, "", "  ")
}

// Import parses a bundle produced by Export. Documents without the
// evaluation_config type discriminator are rejected.
func Import(data []byte) (Bundle, error) {
	if err := checkType(data); err != nil {
		return Bundle{}, err
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return Bundle{}, model.Invalid(fmt.Sprintf("malformed evaluation config: %v", err))
	}
	if b.Progress != nil && b.Progress.SelectedValues == nil {
		b.Progress.SelectedValues = model.SelectedValues{}
	}
	return b, nil
}

// DecodeConfig parses a bare config document.
func DecodeConfig(data []byte) (model.ExpertEvaluationConfig, error) {
	b, err := Import(data)
	if err != nil {
		return model.ExpertEvaluationConfig{}, err
	}
	return b.ExpertEvaluationConfig, nil
}

func checkType(data []byte) error {
	var head struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return model.Invalid(fmt.Sprintf("malformed evaluation config: %v", err))
	}
	if head.Type == nil {
		return model.Invalid("missing type, expected " + model.EvaluationConfigType)
	}
	if *head.Type != model.EvaluationConfigType {
		return model.Invalid(fmt.Sprintf("unexpected type %q, expected %s", *head.Type, model.EvaluationConfigType))
	}
	return nil
}
