package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pavelanni/athena-playground/internal/model"
)

const (
	exerciseDirPrefix       = "exercise-"
	exerciseFile            = "exercise.json"
	problemStatementFile    = "problem-statement.md"
	gradingInstructionsFile = "grading-instructions.md"
	submissionsDir          = "submissions"
	feedbacksDir            = "feedbacks"
)

func exerciseDirName(id int) string {
	return exerciseDirPrefix + strconv.Itoa(id)
}

// DataURL returns the download URL of an exercise directory for the given origin.
func DataURL(origin string, mode model.DataMode, exerciseID int) string {
	return fmt.Sprintf("%s/api/data/%s/exercise/%d/data", strings.TrimRight(origin, "/"), mode, exerciseID)
}

// exerciseIDs returns the ids of all exercise directories in a partition, ascending.
func exerciseIDs(partition string) ([]int, error) {
	entries, err := os.ReadDir(partition)
	if err != nil {
		return nil, err
	}
	var ids []int
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), exerciseDirPrefix) {
			continue
		}
		id, err := strconv.Atoi(strings.TrimPrefix(e.Name(), exerciseDirPrefix))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

// readWithDataURL reads a document and substitutes the data URL placeholder.
func readWithDataURL(path, dataURL string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return bytes.ReplaceAll(data, []byte(DataURLPlaceholder), []byte(dataURL)), nil
}

func (s *Store) loadExercise(mode model.DataMode, partition string, id int, origin string) (model.Exercise, error) {
	var ex model.Exercise
	dir := filepath.Join(partition, exerciseDirName(id))
	data, err := readWithDataURL(filepath.Join(dir, exerciseFile), DataURL(origin, mode, id))
	if errors.Is(err, fs.ErrNotExist) {
		return ex, fmt.Errorf("exercise %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return ex, err
	}
	if err := json.Unmarshal(data, &ex); err != nil {
		return ex, fmt.Errorf("parse exercise %d: %w", id, err)
	}
	// The directory name is authoritative.
	ex.ID = id

	if md, err := os.ReadFile(filepath.Join(dir, problemStatementFile)); err == nil {
		ex.ProblemStatement = string(md)
	}
	if md, err := os.ReadFile(filepath.Join(dir, gradingInstructionsFile)); err == nil {
		ex.GradingInstructions = string(md)
	}
	return ex, nil
}

// ListExercises returns all exercises of a partition ordered by id. Data URL
// placeholders are rewritten to absolute URLs below origin.
func (s *Store) ListExercises(mode model.DataMode, origin string) ([]model.Exercise, error) {
	partition, err := s.requirePartition(mode)
	if err != nil {
		return nil, err
	}
	ids, err := exerciseIDs(partition)
	if err != nil {
		return nil, err
	}
	exercises := make([]model.Exercise, 0, len(ids))
	for _, id := range ids {
		ex, err := s.loadExercise(mode, partition, id, origin)
		if errors.Is(err, model.ErrNotFound) {
			slog.Warn("exercise directory without exercise.json", "mode", mode, "exercise_id", id)
			continue
		}
		if err != nil {
			return nil, err
		}
		exercises = append(exercises, ex)
	}
	return exercises, nil
}

// GetExercise returns a single exercise.
func (s *Store) GetExercise(mode model.DataMode, id int, origin string) (model.Exercise, error) {
	partition, err := s.requirePartition(mode)
	if err != nil {
		return model.Exercise{}, err
	}
	return s.loadExercise(mode, partition, id, origin)
}

// SaveExercise writes an exercise document, creating the partition if needed.
func (s *Store) SaveExercise(mode model.DataMode, ex model.Exercise) error {
	partition, err := s.partitionDir(mode)
	if err != nil {
		return err
	}
	if ex.Type != model.ExerciseText && ex.Type != model.ExerciseProgramming {
		return model.Invalid(fmt.Sprintf("exercise type must be %q or %q", model.ExerciseText, model.ExerciseProgramming))
	}
	if ex.ID < 0 {
		return model.Invalid("exercise id must not be negative")
	}
	dir := filepath.Join(partition, exerciseDirName(ex.ID))
	if err := writeJSON(filepath.Join(dir, exerciseFile), ex); err != nil {
		return fmt.Errorf("write exercise %d: %w", ex.ID, err)
	}
	// Markdown files take precedence on read, so keep existing ones in sync.
	for name, content := range map[string]string{
		problemStatementFile:    ex.ProblemStatement,
		gradingInstructionsFile: ex.GradingInstructions,
	} {
		path := filepath.Join(dir, name)
		if !fileExists(path) {
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

// exerciseFilter resolves an optional exercise filter to the ids to scan.
// An unknown exercise yields no ids; the caller returns an empty list.
func (s *Store) exerciseFilter(mode model.DataMode, partition string, exerciseID *int) ([]int, error) {
	if exerciseID == nil {
		return exerciseIDs(partition)
	}
	if !fileExists(filepath.Join(partition, exerciseDirName(*exerciseID), exerciseFile)) {
		slog.Warn("exercise not found", "mode", mode, "exercise_id", *exerciseID)
		return nil, nil
	}
	return []int{*exerciseID}, nil
}

// listDocs reads every *.json document in dir in lexical order.
func listDocs(dir, dataURL string, each func(data []byte) error) error {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := readWithDataURL(filepath.Join(dir, e.Name()), dataURL)
		if err != nil {
			return err
		}
		if err := each(data); err != nil {
			return fmt.Errorf("parse %s: %w", e.Name(), err)
		}
	}
	return nil
}

// ListSubmissions returns the submissions of a partition, optionally only
// those of one exercise.
func (s *Store) ListSubmissions(mode model.DataMode, exerciseID *int, origin string) ([]model.Submission, error) {
	partition, err := s.requirePartition(mode)
	if err != nil {
		return nil, err
	}
	ids, err := s.exerciseFilter(mode, partition, exerciseID)
	if err != nil {
		return nil, err
	}
	submissions := []model.Submission{}
	for _, id := range ids {
		var batch []model.Submission
		dir := filepath.Join(partition, exerciseDirName(id), submissionsDir)
		err := listDocs(dir, DataURL(origin, mode, id), func(data []byte) error {
			var sub model.Submission
			if err := json.Unmarshal(data, &sub); err != nil {
				return err
			}
			sub.ExerciseID = id
			batch = append(batch, sub)
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Slice(batch, func(i, j int) bool { return batch[i].ID < batch[j].ID })
		submissions = append(submissions, batch...)
	}
	return submissions, nil
}

// SaveSubmission writes a submission. The owning exercise must exist.
func (s *Store) SaveSubmission(mode model.DataMode, sub model.Submission) error {
	partition, err := s.requirePartition(mode)
	if err != nil {
		return err
	}
	dir := filepath.Join(partition, exerciseDirName(sub.ExerciseID))
	if !fileExists(filepath.Join(dir, exerciseFile)) {
		return model.Invalid(fmt.Sprintf("exercise %d does not exist in %s", sub.ExerciseID, mode))
	}
	path := filepath.Join(dir, submissionsDir, strconv.Itoa(sub.ID)+".json")
	if err := writeJSON(path, sub); err != nil {
		return fmt.Errorf("write submission %d: %w", sub.ID, err)
	}
	return nil
}

// ListFeedbacks returns the feedback of a partition, optionally only that of one exercise.
func (s *Store) ListFeedbacks(mode model.DataMode, exerciseID *int) ([]model.Feedback, error) {
	partition, err := s.requirePartition(mode)
	if err != nil {
		return nil, err
	}
	ids, err := s.exerciseFilter(mode, partition, exerciseID)
	if err != nil {
		return nil, err
	}
	feedbacks := []model.Feedback{}
	for _, id := range ids {
		dir := filepath.Join(partition, exerciseDirName(id), feedbacksDir)
		err := listDocs(dir, "", func(data []byte) error {
			var fb model.Feedback
			if err := json.Unmarshal(data, &fb); err != nil {
				return err
			}
			fb.ExerciseID = id
			feedbacks = append(feedbacks, fb)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.SliceStable(feedbacks, func(i, j int) bool {
		a, b := feedbacks[i], feedbacks[j]
		if a.ExerciseID != b.ExerciseID {
			return a.ExerciseID < b.ExerciseID
		}
		switch {
		case a.ID == nil:
			return false
		case b.ID == nil:
			return true
		}
		return *a.ID < *b.ID
	})
	return feedbacks, nil
}

// SaveFeedback writes a feedback after checking that its exercise and
// submission exist in the same partition. A feedback without id gets the
// next free id of its exercise. The stored feedback is returned.
func (s *Store) SaveFeedback(mode model.DataMode, fb model.Feedback) (model.Feedback, error) {
	partition, err := s.requirePartition(mode)
	if err != nil {
		return fb, err
	}
	dir := filepath.Join(partition, exerciseDirName(fb.ExerciseID))
	if !fileExists(filepath.Join(dir, exerciseFile)) {
		return fb, model.Invalid(fmt.Sprintf("exercise %d does not exist in %s", fb.ExerciseID, mode))
	}
	var sub model.Submission
	if err := readJSON(filepath.Join(dir, submissionsDir, strconv.Itoa(fb.SubmissionID)+".json"), &sub); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return fb, model.Invalid(fmt.Sprintf("submission %d does not exist in exercise %d", fb.SubmissionID, fb.ExerciseID))
		}
		return fb, err
	}

	if fb.ID == nil {
		next, err := nextFeedbackID(filepath.Join(dir, feedbacksDir))
		if err != nil {
			return fb, err
		}
		fb.ID = &next
	}
	path := filepath.Join(dir, feedbacksDir, strconv.Itoa(*fb.ID)+".json")
	if err := writeJSON(path, fb); err != nil {
		return fb, fmt.Errorf("write feedback %d: %w", *fb.ID, err)
	}
	return fb, nil
}

func nextFeedbackID(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	next := 1
	for _, e := range entries {
		id, err := strconv.Atoi(strings.TrimSuffix(e.Name(), ".json"))
		if err == nil && id >= next {
			next = id + 1
		}
	}
	return next, nil
}
