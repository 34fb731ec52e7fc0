package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"

	"github.com/CTAG07/stagehand/pkg/tpl"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"stagehand.json"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Render struct {
		Path string `arg:"" help:"Template path to render"`
		Vars string `help:"YAML file with template variables"`
		Out  string `short:"o" help:"Write output to a file instead of stdout"`
		Raw  bool   `help:"Skip the filetype's postprocessors"`
	} `cmd:"" help:"Render a template to its final output"`

	List struct {
		Mimetype string `short:"m" help:"Restrict the listing to one mimetype"`
	} `cmd:"" help:"List every resolvable template path"`

	Hash struct {
		Path string `arg:"" help:"Template path to hash"`
	} `cmd:"" help:"Print the change-detection token for a template path"`

	Watch struct {
		Path string `arg:"" help:"Template path to render"`
		Vars string `help:"YAML file with template variables"`
		Out  string `short:"o" help:"Write output to a file instead of stdout"`
	} `cmd:"" help:"Re-render a template whenever a search root changes"`

	Version struct{} `cmd:"" help:"Print version information"`
}

func main() {
	// A .env file can supply STAGEHAND_* overrides; a missing file is fine.
	_ = godotenv.Load()

	ctx := kong.Parse(&CLI)

	if ctx.Command() == "version" {
		fmt.Printf("stagehand %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		return
	}

	config, err := LoadConfig(CLI.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(config.LogLevel, CLI.Verbose)

	manager, cleanup, err := buildManager(config, logger)
	if err != nil {
		logger.Error("Failed to build template registry", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	switch ctx.Command() {
	case "render <path>":
		err = runRender(manager, CLI.Render.Path, CLI.Render.Vars, CLI.Render.Out, CLI.Render.Raw)
	case "list":
		err = runList(manager, CLI.List.Mimetype)
	case "hash <path>":
		err = runHash(manager, CLI.Hash.Path)
	case "watch <path>":
		err = runWatch(manager, logger, config.RootDirs, CLI.Watch.Path, CLI.Watch.Vars, CLI.Watch.Out)
	default:
		err = fmt.Errorf("unknown command %q", ctx.Command())
	}
	if err != nil {
		logger.Error("Command failed", "command", ctx.Command(), "error", err)
		os.Exit(1)
	}
}

func setupLogger(level string, verbose bool) *slog.Logger {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// loadVars reads render variables from a YAML file. An empty path means no
// variables.
func loadVars(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vars file: %w", err)
	}
	vars := map[string]any{}
	if err = yaml.Unmarshal(raw, &vars); err != nil {
		return nil, fmt.Errorf("failed to parse vars file: %w", err)
	}
	return vars, nil
}

func runRender(m *tpl.Manager, path, varsFile, out string, raw bool) error {
	vars, err := loadVars(varsFile)
	if err != nil {
		return err
	}
	var opts []tpl.RenderOption
	if raw {
		opts = append(opts, tpl.WithoutPostprocessors())
	}
	result, err := m.Render(path, vars, opts...)
	if err != nil {
		return err
	}
	return writeOutput(out, result)
}

func runList(m *tpl.Manager, mimetype string) error {
	for path := range m.IterPaths(mimetype) {
		fmt.Println(path)
	}
	return nil
}

func runHash(m *tpl.Manager, path string) error {
	token, err := m.Hash(path)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

// writeOutput prints to stdout, or writes the file atomically so a watcher
// of the output never observes a half-written render.
func writeOutput(out, content string) error {
	if out == "" {
		_, err := fmt.Print(content)
		return err
	}
	return atomic.WriteFile(out, strings.NewReader(content))
}
