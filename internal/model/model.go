package model

import (
	"context"
	"fmt"
	"regexp"
	"time"
)

// DataMode names a disjoint data partition: "example", "evaluation" or "evaluation-<id>".
type DataMode string

const (
	// DataModeExample is the partition holding the bundled example fixtures.
	DataModeExample DataMode = "example"
	// DataModeEvaluation is the base evaluation partition.
	DataModeEvaluation DataMode = "evaluation"
)

var dataModeRegex = regexp.MustCompile(`^(example|evaluation(-[A-Za-z0-9_-]+)?)$`)

// ParseDataMode validates s as a data mode. Invalid values are reported as
// ErrNotFound so callers can treat them as a routing miss.
func ParseDataMode(s string) (DataMode, error) {
	if !dataModeRegex.MatchString(s) {
		return "", fmt.Errorf("data mode %q: %w", s, ErrNotFound)
	}
	return DataMode(s), nil
}

// Meta is an open key-value map carried on exercises, submissions and feedback.
type Meta map[string]any

// String returns the string value stored under key, or "".
func (m Meta) String(key string) string {
	s, _ := m[key].(string)
	return s
}

// ExerciseType discriminates text and programming exercises.
type ExerciseType string

const (
	ExerciseText        ExerciseType = "text"
	ExerciseProgramming ExerciseType = "programming"
)

// Exercise is a read-mostly exercise fixture.
type Exercise struct {
	ID                  int          `json:"id"`
	Title               string       `json:"title"`
	Type                ExerciseType `json:"type"`
	MaxPoints           float64      `json:"max_points"`
	BonusPoints         float64      `json:"bonus_points"`
	ProblemStatement    string       `json:"problem_statement"`
	GradingInstructions string       `json:"grading_instructions"`
	Meta                Meta         `json:"meta"`

	// Programming exercises only.
	ProgrammingLanguage   string `json:"programming_language,omitempty"`
	SolutionRepositoryURI string `json:"solution_repository_uri,omitempty"`
	TemplateRepositoryURI string `json:"template_repository_uri,omitempty"`
	TestsRepositoryURI    string `json:"tests_repository_uri,omitempty"`

	// Text exercises only.
	ExampleSolution string `json:"example_solution,omitempty"`
}

// Submission is a student's submission to an exercise.
type Submission struct {
	ID            int    `json:"id"`
	ExerciseID    int    `json:"exercise_id"`
	StudentID     int    `json:"student_id,omitempty"`
	Text          string `json:"text,omitempty"`
	RepositoryURI string `json:"repository_uri,omitempty"`
	Meta          Meta   `json:"meta"`
}

// FeedbackReference points a feedback at a location in the submission.
// Programming feedback uses the file and line range, text feedback the
// character range. An empty reference means unscoped feedback.
type FeedbackReference struct {
	FilePath   *string `json:"file_path,omitempty"`
	LineStart  *int    `json:"line_start,omitempty"`
	LineEnd    *int    `json:"line_end,omitempty"`
	IndexStart *int    `json:"index_start,omitempty"`
	IndexEnd   *int    `json:"index_end,omitempty"`
}

// Feedback is a single grading comment on a submission.
type Feedback struct {
	ID                             *int    `json:"id,omitempty"`
	ExerciseID                     int     `json:"exercise_id"`
	SubmissionID                   int     `json:"submission_id"`
	Title                          string  `json:"title"`
	Description                    string  `json:"description"`
	Credits                        float64 `json:"credits"`
	StructuredGradingInstructionID *int    `json:"structured_grading_instruction_id,omitempty"`
	Meta                           Meta    `json:"meta"`
	FeedbackReference
}

// Scoped reports whether the feedback references a location.
func (f Feedback) Scoped() bool {
	r := f.FeedbackReference
	return r.FilePath != nil || r.LineStart != nil || r.LineEnd != nil || r.IndexStart != nil || r.IndexEnd != nil
}

// ModuleMeta describes one assessment module as reported by the health endpoint.
type ModuleMeta struct {
	Name               string `json:"name"`
	Type               string `json:"type"`
	Healthy            bool   `json:"healthy"`
	URL                string `json:"url,omitempty"`
	SupportsEvaluation bool   `json:"supports_evaluation,omitempty"`
}

const (
	// HealthOK is reported by a reachable service.
	HealthOK = "ok"
	// HealthFetchFailed is reported when the service could not be reached.
	HealthFetchFailed = "fetch-failed"
)

// HealthStatus is the health payload of the assessment service.
type HealthStatus struct {
	Status  string                `json:"status"`
	Modules map[string]ModuleMeta `json:"modules"`
}

// RequestRecord is one logged gateway call.
type RequestRecord struct {
	ID           int64     `json:"id"`
	Method       string    `json:"method"`
	URL          string    `json:"url"`
	StatusCode   int       `json:"status_code"`
	DurationMS   int64     `json:"duration_ms"`
	ModuleConfig string    `json:"module_config,omitempty"`
	RequestBody  string    `json:"request_body,omitempty"`
	ResponseBody string    `json:"response_body,omitempty"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ImportRecord is one logged partition import.
type ImportRecord struct {
	ID         int64     `json:"id"`
	Mode       DataMode  `json:"mode"`
	SHA256     string    `json:"sha256"`
	Files      int       `json:"files"`
	ImportedAt time.Time `json:"imported_at"`
}

// ServerConfig holds runtime parameters set via CLI flags.
type ServerConfig struct {
	AthenaURL      string   // default module base URL for health and proxy calls
	AthenaSecret   string   // shared secret used when the request carries none
	PublicURL      string   // origin used to build download URLs; empty means derive from request
	BasePath       string   // URL prefix for sub-path deployments
	AllowedOrigins []string // CORS origins
	AdminHash      []byte   // bcrypt hash guarding destructive data routes; nil disables auth
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}
