// Freshagent is a conversational food management agent.
//
// It tracks the user's food inventory through the Fresh Alert API, warns
// about expiring products, and suggests recipes via Spoonacular. The agent
// exposes a small HTTP API and a CLI for one-shot questions. Configuration
// is loaded from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]).
//
// Usage:
//
//	freshagent serve             Start the API server
//	freshagent ask <question>    Ask a single question (for testing)
//	freshagent version           Print version and build information
//	freshagent -o json version   Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/freshalert/freshagent/internal/api"
	"github.com/freshalert/freshagent/internal/buildinfo"
	"github.com/freshalert/freshagent/internal/checkpoint"
	"github.com/freshalert/freshagent/internal/compact"
	"github.com/freshalert/freshagent/internal/config"
	"github.com/freshalert/freshagent/internal/engine"
	"github.com/freshalert/freshagent/internal/freshalert"
	"github.com/freshalert/freshagent/internal/llm"
	"github.com/freshalert/freshagent/internal/prompts"
	"github.com/freshalert/freshagent/internal/session"
	"github.com/freshalert/freshagent/internal/spoonacular"
	"github.com/freshalert/freshagent/internal/tools"
	"github.com/freshalert/freshagent/internal/turn"
	"github.com/freshalert/freshagent/internal/vision"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the freshagent command. All OS-level
// dependencies are injected so tests can drive the full lifecycle. The
// argument surface is small enough that manual parsing is clearer than a
// CLI framework, and it avoids the flag package's global state.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
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
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
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
	case "serve":
		return runServe(ctx, stdout, stderr, configPath)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: freshagent ask <question>")
		}
		return runAsk(ctx, stdout, stderr, configPath, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
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

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Freshagent - Conversational Food Management Agent")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: freshagent [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server")
	fmt.Fprintln(w, "  ask          Ask a single question (for testing)")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/freshagent/config.yaml, /etc/freshagent/config.yaml")
	return nil
}

// runAsk handles the "freshagent ask <question>" subcommand. It boots a
// minimal engine with a fresh in-memory session, processes one question,
// and prints the response. Useful for smoke tests without the server.
func runAsk(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string, args []string) error {
	logger := newLogger(stdout, slog.LevelWarn, "text")

	question := strings.Join(args, " ")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	eng := buildEngine(cfg, logger)
	sessions := session.NewStore()
	sess, release := sessions.Acquire("cli")
	defer release()

	result, err := eng.Run(ctx, sess, turn.NewHuman(question))
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	fmt.Fprintln(stdout, result.Reply)
	return nil
}

// runServe handles the "freshagent serve" subcommand: restore sessions
// from the latest checkpoint, start the checkpointer and the API server,
// and shut both down cleanly on SIGINT/SIGTERM.
func runServe(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := newLogger(stdout, level, "text")
	logger.Info(buildinfo.String())
	logger.Info("config loaded", "path", cfgPath)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng := buildEngine(cfg, logger)
	sessions := session.NewStore()

	var checkpointer *checkpoint.Checkpointer
	if cfg.Checkpoint.Enabled {
		store, err := checkpoint.Open(filepath.Join(cfg.DataDir, "checkpoints.db"))
		if err != nil {
			return fmt.Errorf("open checkpoint store: %w", err)
		}
		defer store.Close()

		checkpointer = checkpoint.NewCheckpointer(store, sessions, checkpoint.Config{
			Interval: time.Duration(cfg.Checkpoint.IntervalMin) * time.Minute,
			MaxAge:   time.Duration(cfg.Checkpoint.MaxAgeDays) * 24 * time.Hour,
			MinKeep:  cfg.Checkpoint.MinKeep,
		}, logger)

		n, err := checkpointer.RestoreLatest()
		if err != nil {
			logger.Warn("could not restore checkpoint, starting fresh", "error", err)
		} else if n > 0 {
			logger.Info("sessions restored", "count", n)
		}
	}

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, eng, sessions, logger)
	if checkpointer != nil {
		server.SetCheckpointer(checkpointer)
	}

	checkpointDone := make(chan struct{})
	if checkpointer != nil {
		go func() {
			defer close(checkpointDone)
			checkpointer.Run(ctx)
		}()
	} else {
		close(checkpointDone)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(ctx)
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}

	// Wait for the final shutdown checkpoint to be written.
	<-checkpointDone
	logger.Info("goodbye")
	return nil
}

// buildEngine wires the provider client, tool registry, vision
// preprocessor, and compactor from configuration.
func buildEngine(cfg *config.Config, logger *slog.Logger) *engine.Engine {
	client := llm.NewOpenAIClient(cfg.Provider.BaseURL, cfg.Provider.APIKey, logger)

	var fa *freshalert.Client
	if cfg.FreshAlert.BearerToken != "" {
		fa = freshalert.NewClient(cfg.FreshAlert.BaseURL, cfg.FreshAlert.BearerToken, logger)
	}
	var sp *spoonacular.Client
	if cfg.Spoonacular.APIKey != "" {
		sp = spoonacular.NewClient(cfg.Spoonacular.BaseURL, cfg.Spoonacular.APIKey, logger)
	}

	registry := tools.NewRegistry(fa, sp)
	vp := vision.NewPreprocessor(client, cfg.Provider.EffectiveVisionModel(), cfg.Vision, logger)
	cp := compact.NewCompactor(client, cfg.Provider.EffectiveSummaryModel(), logger)

	return engine.New(client, cfg.Provider.Model, registry, vp, cp, cfg.Engine, prompts.BaseSystemPrompt(), logger)
}

func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// loadConfig locates and parses the YAML configuration file. If explicit
// is non-empty, that exact path is used (and must exist); otherwise
// [config.FindConfig] searches the default locations.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
