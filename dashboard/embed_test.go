package dashboard

import (
	"regexp"
	"strings"
	"testing"
)

func readIndex(t *testing.T) string {
	t.Helper()
	data, err := Assets.ReadFile("assets/index.html")
	if err != nil {
		t.Fatalf("ReadFile(index.html) error = %v", err)
	}
	return string(data)
}

func TestIndex_TitlePlaceholder(t *testing.T) {
	if !strings.Contains(readIndex(t), "{{.Title}}") {
		t.Error("index.html should carry the {{.Title}} placeholder")
	}
}

// Every snapshot carries the full view, so the error banner must be
// rewritten from each one, including snapshots without an error.
func TestIndex_DataErrorClearedOnEverySnapshot(t *testing.T) {
	page := readIndex(t)

	if regexp.MustCompile(`if\s*\(\s*snap\.data_error\s*\)`).MatchString(page) {
		t.Error("data_error banner is only written when set and never cleared")
	}
	if !strings.Contains(page, `$("error").textContent = snap.data_error || "";`) {
		t.Error("data_error banner should be assigned from every snapshot")
	}
}
