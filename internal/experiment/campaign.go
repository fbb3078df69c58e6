// Package experiment holds the expert evaluation state model: campaign
// phases, rating snapshots, navigation and config import/export. Everything
// here is pure; persistence lives in the store package.
package experiment

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pavelanni/athena-playground/internal/model"
)

// Phase of an expert evaluation campaign.
type Phase string

const (
	PhaseUndefined  Phase = "undefined"
	PhaseDefined    Phase = "defined"
	PhaseConfigured Phase = "configured"
	PhaseRunning    Phase = "running"
	PhaseCompleted  Phase = "completed"
)

// Campaign wraps a stored config with the phase rules. Module
// configurations and the execution mode are part of the config, so they
// survive a restart.
type Campaign struct {
	Config model.ExpertEvaluationConfig
}

// Problems lists what keeps the config from being defined.
func (c Campaign) Problems() []string {
	var out []string
	if c.Config.Type != model.EvaluationConfigType {
		out = append(out, fmt.Sprintf("type must be %q", model.EvaluationConfigType))
	}
	if strings.TrimSpace(c.Config.Name) == "" {
		out = append(out, "name is empty")
	}
	if len(c.Config.Metrics) == 0 {
		out = append(out, "no metrics")
	}
	seen := map[string]bool{}
	for _, m := range c.Config.Metrics {
		if m.ID == "" {
			out = append(out, "metric without id")
			continue
		}
		if seen[m.ID] {
			out = append(out, fmt.Sprintf("duplicate metric %q", m.ID))
		}
		seen[m.ID] = true
	}
	if len(c.Config.Exercises) == 0 {
		out = append(out, "no exercises")
	}
	if len(c.Config.ExpertIDs) == 0 {
		out = append(out, "no experts")
	}
	return out
}

// IsDefined reports whether the config has no Problems.
func (c Campaign) IsDefined() bool {
	return len(c.Problems()) == 0
}

// IsConfigured reports whether at least one module has a config.
func (c Campaign) IsConfigured() bool {
	if !c.IsDefined() {
		return false
	}
	for _, raw := range c.Config.ModuleConfigs {
		if len(raw) > 0 {
			return true
		}
	}
	return false
}

// CanStart reports whether Start would succeed.
func (c Campaign) CanStart() bool {
	return !c.Config.Started && c.IsConfigured()
}

// Phase derives the campaign phase. A started campaign is completed once
// every listed expert has finished.
func (c Campaign) Phase(progressByExpert map[string]model.ExpertEvaluationProgress) Phase {
	if c.Config.Started {
		if len(c.Config.ExpertIDs) == 0 {
			return PhaseRunning
		}
		for _, id := range c.Config.ExpertIDs {
			if !progressByExpert[id].IsFinishedEvaluating {
				return PhaseRunning
			}
		}
		return PhaseCompleted
	}
	switch {
	case c.IsConfigured():
		return PhaseConfigured
	case c.IsDefined():
		return PhaseDefined
	default:
		return PhaseUndefined
	}
}

// Start returns the campaign with its config marked started.
func (c Campaign) Start() (Campaign, error) {
	if c.Config.Started {
		return c, model.Invalid("evaluation already started")
	}
	if p := c.Problems(); len(p) > 0 {
		return c, model.Invalid("evaluation is not fully defined: " + strings.Join(p, ", "))
	}
	if !c.IsConfigured() {
		return c, model.Invalid("evaluation needs at least one configured module")
	}
	if err := checkExecutionMode(c.Config.ExecutionMode); err != nil {
		return c, err
	}
	if c.Config.ExecutionMode == "" {
		c.Config.ExecutionMode = model.ExecutionBatch
	}
	c.Config.Started = true
	return c, nil
}

func checkExecutionMode(m model.ExecutionMode) error {
	switch m {
	case "", model.ExecutionBatch, model.ExecutionInteractive:
		return nil
	}
	return model.Invalid(fmt.Sprintf("unknown execution mode %q", m))
}

// CheckUpdate validates replacing a stored config with next and returns
// the config to store. Starting goes through Start, so a campaign only
// runs once it is defined and has at least one module configuration.
// Once started, metrics, exercises, module configurations and execution
// mode are frozen and the campaign cannot be unstarted. A started update
// that omits module configurations or execution mode keeps the stored ones.
func CheckUpdate(prev, next model.ExpertEvaluationConfig) (model.ExpertEvaluationConfig, error) {
	if next.Type != model.EvaluationConfigType {
		return next, model.Invalid(fmt.Sprintf("type must be %q", model.EvaluationConfigType))
	}
	if err := checkExecutionMode(next.ExecutionMode); err != nil {
		return next, err
	}
	if !prev.Started {
		if !next.Started {
			return next, nil
		}
		next.Started = false
		c, err := Campaign{Config: next}.Start()
		if err != nil {
			return next, err
		}
		return c.Config, nil
	}

	if !next.Started {
		return next, model.Invalid("a started evaluation cannot be reset")
	}
	if next.ModuleConfigs == nil {
		next.ModuleConfigs = prev.ModuleConfigs
	}
	if next.ExecutionMode == "" {
		next.ExecutionMode = prev.ExecutionMode
	}
	switch {
	case !sameJSON(prev.Metrics, next.Metrics):
		return next, model.Invalid("metrics cannot change after the evaluation started")
	case !sameJSON(prev.Exercises, next.Exercises):
		return next, model.Invalid("exercises cannot change after the evaluation started")
	case !sameJSON(prev.ModuleConfigs, next.ModuleConfigs):
		return next, model.Invalid("module configurations cannot change after the evaluation started")
	case next.ExecutionMode != prev.ExecutionMode:
		return next, model.Invalid("execution mode cannot change after the evaluation started")
	}
	return next, nil
}

func sameJSON(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ja) == string(jb)
}
