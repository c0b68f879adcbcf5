package logging

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testContext() context.Context {
	return context.Background()
}

func TestParseLevel(t *testing.T) {
	cases := map[string]int{
		"debug":   LevelDebug,
		"DEBUG":   LevelDebug,
		"info":    LevelInfo,
		"warn":    LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"":        LevelInfo,
		"bogus":   LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestHasFmtVerb(t *testing.T) {
	if !hasFmtVerb("value is %d") {
		t.Error("%d should be detected")
	}
	if hasFmtVerb("plain message") {
		t.Error("plain message has no verbs")
	}
	if hasFmtVerb("100%% done") {
		t.Error("%% is an escape, not a verb")
	}
}

func TestRotatingWriterRotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.log")

	w, err := newRotatingWriter(path, 100, 2)
	if err != nil {
		t.Fatalf("newRotatingWriter failed: %v", err)
	}
	defer w.Close()

	line := strings.Repeat("x", 40) + "\n"
	for i := 0; i < 10; i++ {
		if _, err := w.Write([]byte(line)); err != nil {
			t.Fatalf("write %d failed: %v", i, err)
		}
	}

	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("expected rotated file: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("current log missing: %v", err)
	}
	if info.Size() > 100 {
		t.Errorf("current log %d bytes, should have rotated at 100", info.Size())
	}

	// Never more than keep rotated files.
	if _, err := os.Stat(path + ".3"); err == nil {
		t.Error("kept more rotated files than configured")
	}
}

func TestCorrelationID(t *testing.T) {
	ctx := WithCorrelationID(testContext(), "req-123")
	if got := CorrelationID(ctx); got != "req-123" {
		t.Errorf("CorrelationID = %q", got)
	}
	if got := CorrelationID(testContext()); got != "" {
		t.Errorf("empty context should have no id, got %q", got)
	}
}
