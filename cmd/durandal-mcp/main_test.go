package main

import (
	"reflect"
	"testing"

	"github.com/Wawtawsha/durandal-mcp/internal/config"
	. "github.com/Wawtawsha/durandal-mcp/internal/logging"
)

func TestFilterArgsKeepsKnownFlags(t *testing.T) {
	kept, dropped := filterArgs([]string{"-v"})
	if !reflect.DeepEqual(kept, []string{"-v"}) || len(dropped) != 0 {
		t.Errorf("kept=%v dropped=%v", kept, dropped)
	}

	kept, dropped = filterArgs([]string{"--debug", "--log-file", "/tmp/d.log", "--log-level=warn"})
	want := []string{"--debug", "--log-file", "/tmp/d.log", "--log-level=warn"}
	if !reflect.DeepEqual(kept, want) || len(dropped) != 0 {
		t.Errorf("kept=%v dropped=%v", kept, dropped)
	}
}

func TestFilterArgsDropsUnknownFlags(t *testing.T) {
	// "--v" is not a flag; it must be ignored so the server still starts.
	kept, dropped := filterArgs([]string{"--v"})
	if len(kept) != 0 {
		t.Errorf("kept=%v, want empty", kept)
	}
	if !reflect.DeepEqual(dropped, []string{"--v"}) {
		t.Errorf("dropped=%v, want [--v]", dropped)
	}

	kept, dropped = filterArgs([]string{"--h", "--debug", "--mystery=1", "stray"})
	if !reflect.DeepEqual(kept, []string{"--debug"}) {
		t.Errorf("kept=%v, want [--debug]", kept)
	}
	if len(dropped) != 3 {
		t.Errorf("dropped=%v, want 3 entries", dropped)
	}
}

func TestApplyCLIOverrides(t *testing.T) {
	cfg := config.Load()
	applyCLIOverrides(cfg, &CLI{Debug: true, LogFile: "/tmp/x.log"})
	if cfg.Logging.Level != LevelDebug {
		t.Error("--debug should force debug level")
	}
	if cfg.Logging.LogFile != "/tmp/x.log" {
		t.Error("--log-file should override config")
	}

	cfg = config.Load()
	applyCLIOverrides(cfg, &CLI{LogLevel: "error"})
	if cfg.Logging.Level != LevelError {
		t.Error("--log-level error should set error level")
	}
}
