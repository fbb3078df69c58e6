package history

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/pavelanni/athena-playground/internal/model"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestLog: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordAndListRequests(t *testing.T) {
	l := newTestLog(t)

	list, err := l.ListRequests(10)
	if err != nil {
		t.Fatalf("ListRequests: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %d", len(list))
	}

	for i, status := range []int{200, 500, 404} {
		_, err := l.Record(model.RequestRecord{
			Method:     "POST",
			URL:        "http://athena/modules/text/module_text_llm/feedback_suggestions",
			StatusCode: status,
			DurationMS: int64(i * 10),
		})
		if err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	list, err = l.ListRequests(2)
	if err != nil {
		t.Fatalf("ListRequests: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 records, got %d", len(list))
	}
	// Newest first.
	if list[0].StatusCode != 404 || list[1].StatusCode != 500 {
		t.Errorf("unexpected order: %d, %d", list[0].StatusCode, list[1].StatusCode)
	}
	if list[0].CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
}

func TestRecordTruncatesBodies(t *testing.T) {
	l := newTestLog(t)

	big := strings.Repeat("x", maxBodyLen+100)
	if _, err := l.Record(model.RequestRecord{Method: "GET", URL: "u", ResponseBody: big}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	list, err := l.ListRequests(1)
	if err != nil {
		t.Fatalf("ListRequests: %v", err)
	}
	if len(list[0].ResponseBody) != maxBodyLen {
		t.Errorf("expected body truncated to %d, got %d", maxBodyLen, len(list[0].ResponseBody))
	}
}

func TestTruncateKeepsRunes(t *testing.T) {
	// The three-byte rune straddles the limit.
	s := strings.Repeat("x", maxBodyLen-1) + "€" + "tail"
	got := truncate(s)
	if !utf8.ValidString(got) {
		t.Fatal("truncated body is not valid UTF-8")
	}
	if len(got) != maxBodyLen-1 {
		t.Errorf("expected cut before the rune at %d, got %d", maxBodyLen-1, len(got))
	}

	exact := strings.Repeat("ä", maxBodyLen/2)
	if got := truncate(exact); got != exact {
		t.Error("body at the limit should be kept whole")
	}
}

func TestImports(t *testing.T) {
	l := newTestLog(t)

	hash, err := l.LastImportHash(model.DataModeExample)
	if err != nil {
		t.Fatalf("LastImportHash: %v", err)
	}
	if hash != "" {
		t.Errorf("expected empty hash, got %q", hash)
	}

	if err := l.RecordImport(model.ImportRecord{Mode: model.DataModeExample, SHA256: "aaa", Files: 3}); err != nil {
		t.Fatalf("RecordImport: %v", err)
	}
	if err := l.RecordImport(model.ImportRecord{Mode: model.DataModeExample, SHA256: "bbb", Files: 4}); err != nil {
		t.Fatalf("RecordImport: %v", err)
	}
	if err := l.RecordImport(model.ImportRecord{Mode: "evaluation-x", SHA256: "ccc", Files: 1}); err != nil {
		t.Fatalf("RecordImport: %v", err)
	}

	hash, err = l.LastImportHash(model.DataModeExample)
	if err != nil {
		t.Fatalf("LastImportHash: %v", err)
	}
	if hash != "bbb" {
		t.Errorf("expected latest hash bbb, got %q", hash)
	}

	imports, err := l.ListImports(model.DataModeExample)
	if err != nil {
		t.Fatalf("ListImports: %v", err)
	}
	if len(imports) != 2 {
		t.Fatalf("expected 2 imports, got %d", len(imports))
	}
	if imports[0].Files != 4 {
		t.Errorf("expected newest import first, got files=%d", imports[0].Files)
	}
}
