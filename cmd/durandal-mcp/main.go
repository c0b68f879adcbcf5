package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/alecthomas/kong"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Wawtawsha/durandal-mcp/internal/cache"
	"github.com/Wawtawsha/durandal-mcp/internal/config"
	. "github.com/Wawtawsha/durandal-mcp/internal/logging"
	"github.com/Wawtawsha/durandal-mcp/internal/metrics"
	"github.com/Wawtawsha/durandal-mcp/internal/selftest"
	"github.com/Wawtawsha/durandal-mcp/internal/server"
	"github.com/Wawtawsha/durandal-mcp/internal/store"
	"github.com/Wawtawsha/durandal-mcp/internal/tools"
	"github.com/Wawtawsha/durandal-mcp/internal/update"
)

// version is set by goreleaser via ldflags: -X main.version=...
// Default "dev" indicates a local/non-release build
var version = "dev"

// CLI defines the command-line interface
type CLI struct {
	Version  bool   `help:"Print name, version, runtime, and platform" short:"v"`
	Test     bool   `help:"Run the built-in self-test and exit"`
	Debug    bool   `help:"Start the server with debug-level logging"`
	Verbose  bool   `help:"Start the server with verbose console output"`
	LogFile  string `help:"Write JSON-lines logs to PATH" placeholder:"PATH" name:"log-file"`
	LogLevel string `help:"Log level: debug, info, warn, error" name:"log-level"`
}

// knownFlags maps every accepted flag token to whether it consumes a value
// in the following argument.
var knownFlags = map[string]bool{
	"-h": false, "--help": false,
	"-v": false, "--version": false,
	"--test": false, "--debug": false, "--verbose": false,
	"--log-file": true, "--log-level": true,
}

// filterArgs drops unrecognized flags so a stray token (say "--v") starts
// the server instead of aborting it. Dropped tokens are reported once the
// logger is up.
func filterArgs(args []string) (kept, dropped []string) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			dropped = append(dropped, arg)
			continue
		}
		name := arg
		if eq := strings.Index(arg, "="); eq >= 0 {
			name = arg[:eq]
		}
		takesValue, ok := knownFlags[name]
		if !ok {
			dropped = append(dropped, arg)
			continue
		}
		kept = append(kept, arg)
		if takesValue && name == arg && i+1 < len(args) {
			i++
			kept = append(kept, args[i])
		}
	}
	return kept, dropped
}

func main() {
	var cli CLI

	args, dropped := filterArgs(os.Args[1:])
	parser, err := kong.New(&cli,
		kong.Name("durandal-mcp"),
		kong.Description("Persistent per-user memory over MCP stdio"),
		kong.UsageOnError(),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "durandal-mcp: %v\n", err)
		os.Exit(1)
	}
	if _, err := parser.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "durandal-mcp: %v\n", err)
		os.Exit(1)
	}

	if cli.Version {
		fmt.Printf("durandal-mcp %s (%s, %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	cfg := config.Load()
	applyCLIOverrides(cfg, &cli)

	Init(&Config{
		Level:         cfg.Logging.Level,
		TimeFormat:    "15:04:05",
		ShowCaller:    cfg.Logging.Verbose,
		FilePath:      cfg.Logging.LogFile,
		ErrorFilePath: cfg.Logging.ErrorLogFile,
	})
	defer Close()

	for _, tok := range dropped {
		L_warn("ignoring unknown argument", "arg", tok)
	}

	if cli.Test {
		os.Exit(selftest.Run(cfg))
	}

	os.Exit(run(cfg))
}

func applyCLIOverrides(cfg *config.Config, cli *CLI) {
	if cli.Debug {
		cfg.Logging.Level = LevelDebug
	}
	if cli.Verbose {
		cfg.Logging.Verbose = true
	}
	if cli.LogFile != "" {
		cfg.Logging.LogFile = cli.LogFile
	}
	if cli.LogLevel != "" {
		cfg.Logging.Level = ParseLevel(cli.LogLevel)
	}
}

func run(cfg *config.Config) int {
	L_info("durandal-mcp starting", "version", version, "database", cfg.Store.DatabasePath)

	st, err := store.Open(cfg.Store.DatabasePath, store.Options{
		ContentSoftLimit: cfg.Store.ContentSoftLimit,
	})
	if err != nil {
		// Storage failure at startup is fatal: one logged error, non-zero exit.
		L_error("cannot open store", "path", cfg.Store.DatabasePath, "error", err)
		return 1
	}
	defer st.Close()

	ca, err := cache.New(cfg.Cache.Capacity, cfg.Cache.SearchTTL)
	if err != nil {
		L_error("cannot create cache", "error", err)
		return 1
	}

	dispatcher := tools.NewDispatcher(st, ca, cfg)
	srv := server.New(dispatcher, cfg, version)

	checker := update.NewChecker(version, cfg.Update)
	checker.RunInBackground(context.Background())

	if err := srv.Serve(); err != nil {
		L_error("server terminated", "error", err)
		return 1
	}

	for _, snap := range metrics.GetRegistry().Snapshots() {
		switch {
		case snap.HitMiss != nil:
			L_debug("metric", "path", snap.Path, "hits", snap.HitMiss.Hits, "misses", snap.HitMiss.Misses)
		case snap.Counter != nil:
			L_debug("metric", "path", snap.Path, "value", *snap.Counter)
		case snap.Timing != nil:
			L_debug("metric", "path", snap.Path, "count", snap.Timing.Count, "total", snap.Timing.Total.String())
		}
	}

	L_info("durandal-mcp stopped")
	return 0
}
