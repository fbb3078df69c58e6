package model

import (
	"context"
	"errors"
	"testing"
)

func TestParseDataMode(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"example", true},
		{"evaluation", true},
		{"evaluation-expert1", true},
		{"evaluation-run_2-b", true},
		{"", false},
		{"foo", false},
		{"evaluation-", false},
		{"examples", false},
		{"evaluation-../etc", false},
		{"Example", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			mode, err := ParseDataMode(tt.in)
			if tt.want {
				if err != nil {
					t.Fatalf("ParseDataMode(%q) error: %v", tt.in, err)
				}
				if string(mode) != tt.in {
					t.Errorf("ParseDataMode(%q) = %q", tt.in, mode)
				}
				return
			}
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("ParseDataMode(%q) error = %v, want ErrNotFound", tt.in, err)
			}
		})
	}
}

func TestMetaString(t *testing.T) {
	m := Meta{"course": "ethics", "credits": 3.0}
	if got := m.String("course"); got != "ethics" {
		t.Errorf("String(course) = %q", got)
	}
	if got := m.String("credits"); got != "" {
		t.Errorf("String(credits) = %q, want empty for non-string", got)
	}
	var nilMeta Meta
	if got := nilMeta.String("x"); got != "" {
		t.Errorf("nil Meta String = %q", got)
	}
}

func TestFeedbackScoped(t *testing.T) {
	var fb Feedback
	if fb.Scoped() {
		t.Error("empty feedback should be unscoped")
	}
	line := 4
	fb.LineStart = &line
	if !fb.Scoped() {
		t.Error("feedback with a line should be scoped")
	}
}

func TestBasePathContext(t *testing.T) {
	ctx := context.Background()
	if got := BasePathFromContext(ctx); got != "" {
		t.Errorf("empty context base path = %q", got)
	}
	ctx = ContextWithBasePath(ctx, "/playground")
	if got := BasePathFromContext(ctx); got != "/playground" {
		t.Errorf("base path = %q", got)
	}
}
