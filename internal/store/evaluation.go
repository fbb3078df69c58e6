package store

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/athena-playground/internal/model"
)

const (
	expertEvaluationDir = "expert_evaluation"
	progressDir         = "progress"
)

var identRegex = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// CheckIdent validates an evaluation or expert id used as a file name.
func CheckIdent(kind, id string) error {
	if !identRegex.MatchString(id) {
		return model.Invalid(fmt.Sprintf("invalid %s %q", kind, id))
	}
	return nil
}

func (s *Store) configPath(mode model.DataMode, evalID string) (string, error) {
	partition, err := s.partitionDir(mode)
	if err != nil {
		return "", err
	}
	if err := CheckIdent("evaluation id", evalID); err != nil {
		return "", err
	}
	return filepath.Join(partition, expertEvaluationDir, evalID+".json"), nil
}

// SaveExpertEvaluationConfig validates and stores an evaluation config,
// creating the partition if needed. A config without id is assigned a new
// one and a zero creation date is set to now. The stored config is returned.
func (s *Store) SaveExpertEvaluationConfig(mode model.DataMode, cfg model.ExpertEvaluationConfig) (model.ExpertEvaluationConfig, error) {
	if cfg.Type != model.EvaluationConfigType {
		return cfg, model.Invalid(fmt.Sprintf("config type must be %q, got %q", model.EvaluationConfigType, cfg.Type))
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.CreationDate.IsZero() {
		cfg.CreationDate = time.Now().UTC()
	}
	path, err := s.configPath(mode, cfg.ID)
	if err != nil {
		return cfg, err
	}
	if err := writeJSON(path, cfg); err != nil {
		return cfg, fmt.Errorf("write evaluation config %s: %w", cfg.ID, err)
	}
	slog.Info("saved expert evaluation config", "mode", mode, "evaluation_id", cfg.ID)
	return cfg, nil
}

// LoadExpertEvaluationConfig returns the config stored under evalID.
func (s *Store) LoadExpertEvaluationConfig(mode model.DataMode, evalID string) (model.ExpertEvaluationConfig, error) {
	var cfg model.ExpertEvaluationConfig
	if _, err := s.requirePartition(mode); err != nil {
		return cfg, err
	}
	path, err := s.configPath(mode, evalID)
	if err != nil {
		return cfg, err
	}
	if err := readJSON(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ListExpertEvaluationConfigs returns all configs of a partition ordered by
// creation date. Unreadable documents are skipped.
func (s *Store) ListExpertEvaluationConfigs(mode model.DataMode) ([]model.ExpertEvaluationConfig, error) {
	partition, err := s.requirePartition(mode)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(partition, expertEvaluationDir)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []model.ExpertEvaluationConfig{}, nil
	}
	if err != nil {
		return nil, err
	}
	configs := []model.ExpertEvaluationConfig{}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		var cfg model.ExpertEvaluationConfig
		if err := readJSON(filepath.Join(dir, e.Name()), &cfg); err != nil {
			slog.Warn("skipping unreadable evaluation config", "mode", mode, "file", e.Name(), "error", err)
			continue
		}
		if cfg.Type != model.EvaluationConfigType {
			slog.Warn("skipping document without evaluation_config type", "mode", mode, "file", e.Name())
			continue
		}
		configs = append(configs, cfg)
	}
	sort.SliceStable(configs, func(i, j int) bool {
		return configs[i].CreationDate.Before(configs[j].CreationDate)
	})
	return configs, nil
}

func (s *Store) progressPath(mode model.DataMode, evalID, expertID string) (string, error) {
	cfgPath, err := s.configPath(mode, evalID)
	if err != nil {
		return "", err
	}
	if err := CheckIdent("expert id", expertID); err != nil {
		return "", err
	}
	return filepath.Join(strings.TrimSuffix(cfgPath, ".json"), progressDir, expertID+".json"), nil
}

// SaveProgress stores an expert's progress for an existing evaluation.
// Concurrent saves for the same expert are last-write-wins.
func (s *Store) SaveProgress(mode model.DataMode, evalID, expertID string, p model.ExpertEvaluationProgress) error {
	cfgPath, err := s.configPath(mode, evalID)
	if err != nil {
		return err
	}
	if !fileExists(cfgPath) {
		return fmt.Errorf("evaluation %s: %w", evalID, model.ErrNotFound)
	}
	path, err := s.progressPath(mode, evalID, expertID)
	if err != nil {
		return err
	}
	if p.SelectedValues == nil {
		p.SelectedValues = model.SelectedValues{}
	}
	if err := writeJSON(path, p); err != nil {
		return fmt.Errorf("write progress %s/%s: %w", evalID, expertID, err)
	}
	return nil
}

// LoadProgress returns the last saved progress of an expert.
func (s *Store) LoadProgress(mode model.DataMode, evalID, expertID string) (model.ExpertEvaluationProgress, error) {
	var p model.ExpertEvaluationProgress
	if _, err := s.requirePartition(mode); err != nil {
		return p, err
	}
	path, err := s.progressPath(mode, evalID, expertID)
	if err != nil {
		return p, err
	}
	if err := readJSON(path, &p); err != nil {
		return p, err
	}
	if p.SelectedValues == nil {
		p.SelectedValues = model.SelectedValues{}
	}
	return p, nil
}
