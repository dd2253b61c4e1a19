// Refinery is an iterative LLM refinement agent.
//
// Each query runs through a generate/critique/grade loop: a generator
// model drafts a response, a critic model reviews it, and a boolean
// grade decides whether to accept it or iterate again, up to a
// configured budget. Every run leaves a plain-text trace on disk and,
// optionally, a row in a SQLite run archive. Configuration is loaded
// from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	refinery ask <question>     Run the refinement loop on a question
//	refinery report <trace>     Render a trace file as HTML
//	refinery runs [-n N]        List recent archived runs
//	refinery init [dir]         Write a default config.yaml
//	refinery version            Print version and build information
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/refinery-ai/refinery/examples"
	"github.com/refinery-ai/refinery/internal/agent"
	"github.com/refinery-ai/refinery/internal/archive"
	"github.com/refinery-ai/refinery/internal/buildinfo"
	"github.com/refinery-ai/refinery/internal/chat"
	"github.com/refinery-ai/refinery/internal/config"
	"github.com/refinery-ai/refinery/internal/llm"
	"github.com/refinery-ai/refinery/internal/reason"
	"github.com/refinery-ai/refinery/internal/report"
	"github.com/refinery-ai/refinery/internal/trace"
)

// main constructs the OS-level environment (context, stdio, argv) and
// delegates to [run] so the whole lifecycle is testable.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are parsed by hand: the flag
// package relies on package-level globals, which makes it impossible to
// call run() concurrently from tests, and the argument surface here is
// small.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	// API keys commonly live in a .env during development. Absence is
	// not an error.
	_ = godotenv.Load()

	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: refinery ask <question>")
		}
		return runAsk(ctx, stdout, stderr, configPath, cmdArgs)
	case "report":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: refinery report <trace-file> [out.html]")
		}
		return runReport(stdout, cmdArgs)
	case "runs":
		return runRuns(ctx, stdout, configPath, cmdArgs)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runAsk handles "refinery ask <question>": builds the agent from
// config, runs the refinement loop once, and prints the final output.
func runAsk(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string, args []string) error {
	logger := newLogger(stderr, slog.LevelInfo)
	question := strings.Join(args, " ")

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfgPath != "" {
		logger.Info("config loaded", "path", cfgPath)
	} else {
		logger.Info("no config file found, using defaults")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger = newLogger(stderr, level)
	}

	factory := llm.NewFactory(llm.FactorySettings{
		OllamaURL:     cfg.Providers.OllamaURL,
		OpenAIBaseURL: cfg.Providers.OpenAIBaseURL,
		Logger:        logger,
	})

	generator, err := factory.Backend(cfg.Generator.Provider, cfg.Generator.Model, llm.Capabilities{
		SupportsSchema:          cfg.Generator.SupportsSchema,
		SupportsFunctionCalling: cfg.Generator.SupportsFunctionCalling,
	})
	if err != nil {
		return fmt.Errorf("generator backend: %w", err)
	}
	critic, err := factory.Backend(cfg.Critic.Provider, cfg.Critic.Model, llm.Capabilities{
		SupportsSchema:          cfg.Critic.SupportsSchema,
		SupportsFunctionCalling: cfg.Critic.SupportsFunctionCalling,
	})
	if err != nil {
		return fmt.Errorf("critic backend: %w", err)
	}

	a, err := agent.New(cfg.Agent, generator, critic)
	if err != nil {
		return err
	}

	opts := []reason.Option{reason.WithLogger(logger)}
	if cfg.ArchiveDB != "" {
		store, err := archive.NewStore(cfg.ArchiveDB)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, reason.WithArchive(store))
	}

	loop := reason.NewLoop(a, trace.NewWriter(cfg.ResultsDir), opts...)

	result, err := loop.Run(ctx, chat.TextQuery(question))
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, result.Output)
	if result.TracePath != "" {
		logger.Info("trace saved", "path", result.TracePath)
	}
	return nil
}

// runReport handles "refinery report <trace-file> [out.html]". With no
// output path the HTML goes to stdout.
func runReport(stdout io.Writer, args []string) error {
	html, err := report.FromFile(args[0])
	if err != nil {
		return err
	}

	if len(args) > 1 {
		if err := os.WriteFile(args[1], []byte(html), 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		fmt.Fprintf(stdout, "Report written to %s\n", args[1])
		return nil
	}

	fmt.Fprint(stdout, html)
	return nil
}

// runRuns handles "refinery runs [-n N]": lists recent archived runs
// and per-model token totals.
func runRuns(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	limit := 10
	for i := 0; i < len(args); i++ {
		if args[i] == "-n" && i+1 < len(args) {
			n, err := strconv.Atoi(args[i+1])
			if err != nil {
				return fmt.Errorf("invalid -n value: %s", args[i+1])
			}
			limit = n
			i++
		}
	}

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if cfg.ArchiveDB == "" {
		return fmt.Errorf("run archive is disabled (set archive_db in config)")
	}

	store, err := archive.NewStore(cfg.ArchiveDB)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.RecentRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(stdout, "No archived runs.")
		return nil
	}

	for _, r := range runs {
		verdict := "rejected"
		if r.Accepted {
			verdict = "accepted"
		}
		fmt.Fprintf(stdout, "%s  %s  epochs=%d  %s  %.1fs\n  %s\n",
			r.Timestamp.Local().Format(time.DateTime),
			r.SessionID,
			r.Epochs,
			verdict,
			float64(r.ElapsedMS)/1000,
			truncate(r.Query, 100))
	}

	byModel, err := store.UsageByModel(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, "\nToken usage by model:")
	for model, sum := range byModel {
		fmt.Fprintf(stdout, "  %-40s calls=%-5d in=%-8d out=%d\n",
			model, sum.TotalCalls, sum.TotalInputTokens, sum.TotalOutputTokens)
	}
	return nil
}

// runInit writes the commented example config.yaml into dir. Refuses
// to overwrite an existing file.
func runInit(stdout io.Writer, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists, refusing to overwrite", path)
	}

	if err := os.WriteFile(path, examples.ConfigYAML, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Fprintf(stdout, "Wrote %s\n", path)
	return nil
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Refinery - Iterative LLM Refinement Agent")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: refinery [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  ask <question>        Run the refinement loop on a question")
	fmt.Fprintln(w, "  report <trace> [out]  Render a trace file as HTML")
	fmt.Fprintln(w, "  runs [-n N]           List recent archived runs")
	fmt.Fprintln(w, "  init [dir]            Write a default config.yaml (default: .)")
	fmt.Fprintln(w, "  version               Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/refinery/config.yaml, /etc/refinery/config.yaml")
	return nil
}

// newLogger builds a text logger that renders the custom trace level
// by name.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// loadConfig locates and parses the YAML configuration file. A missing
// file is not an error when no explicit path was given; built-in
// defaults apply and the returned path is empty.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, "", err
		}
		return config.Default(), "", nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
