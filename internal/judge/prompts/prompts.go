package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/athena-playground/internal/model"
)

//go:embed rate_*.tmpl
var templateFS embed.FS

const maxAnswerRunes = 10000

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	feedbackRegex           = regexp.MustCompile(`(?i)</?\s*feedback\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// Variant selects how demanding the judge is.
type Variant string

const (
	Strict   Variant = "strict"
	Standard Variant = "standard"
	Lenient  Variant = "lenient"
)

var variants = []Variant{Strict, Standard, Lenient}

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	for _, known := range variants {
		if Variant(v) == known {
			return true
		}
	}
	return false
}

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[Variant]*template.Template
)

func load() error {
	loadOnce.Do(func() {
		templates = make(map[Variant]*template.Template, len(variants))
		for _, v := range variants {
			name := "rate_" + string(v) + ".tmpl"
			tmpl, err := template.ParseFS(templateFS, name)
			if err != nil {
				loadErr = fmt.Errorf("parse prompt template %s: %w", name, err)
				return
			}
			templates[v] = tmpl
		}
	})
	return loadErr
}

// RateData holds template data for a rating prompt.
type RateData struct {
	ExerciseTitle       string
	ExerciseType        model.ExerciseType
	MaxPoints           float64
	ProblemStatement    string
	GradingInstructions string
	Answer              string
	Feedbacks           []string
	Metrics             []model.Metric
}

// BuildRatePrompt renders the rating prompt for one submission and the
// feedback of one feedback type.
func BuildRatePrompt(variant Variant, metrics []model.Metric, ex model.Exercise, sub model.Submission, feedbacks []model.Feedback) (string, error) {
	if err := load(); err != nil {
		return "", err
	}
	tmpl, ok := templates[variant]
	if !ok {
		return "", errors.New("invalid prompt variant: " + string(variant))
	}

	answer := sub.Text
	if answer == "" && sub.RepositoryURI != "" {
		answer = "Repository: " + sub.RepositoryURI
	}
	data := RateData{
		ExerciseTitle:       ex.Title,
		ExerciseType:        ex.Type,
		MaxPoints:           ex.MaxPoints,
		ProblemStatement:    ex.ProblemStatement,
		GradingInstructions: ex.GradingInstructions,
		Answer:              sanitize(answer, "[No answer provided]"),
		Metrics:             metrics,
	}
	for _, fb := range feedbacks {
		data.Feedbacks = append(data.Feedbacks, describeFeedback(fb))
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func describeFeedback(fb model.Feedback) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%g points] ", fb.Credits))
	r := fb.FeedbackReference
	switch {
	case r.FilePath != nil && r.LineStart != nil:
		sb.WriteString(fmt.Sprintf("(%s:%d) ", *r.FilePath, *r.LineStart))
	case r.FilePath != nil:
		sb.WriteString("(" + *r.FilePath + ") ")
	case r.IndexStart != nil && r.IndexEnd != nil:
		sb.WriteString(fmt.Sprintf("(chars %d-%d) ", *r.IndexStart, *r.IndexEnd))
	}
	text := fb.Title
	if fb.Description != "" {
		if text != "" {
			text += ": "
		}
		text += fb.Description
	}
	sb.WriteString(sanitize(strings.ReplaceAll(text, "\n", " "), "[empty]"))
	return sb.String()
}

func sanitize(s, empty string) string {
	s = studentAnswerRegex.ReplaceAllString(s, "")
	s = feedbackRegex.ReplaceAllString(s, "")
	s = systemInstructionsRegex.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	if s == "" {
		return empty
	}

	if utf8.RuneCountInString(s) > maxAnswerRunes {
		runes := []rune(s)
		s = string(runes[:maxAnswerRunes]) + "\n\n[Truncated due to length]"
	}
	return s
}
