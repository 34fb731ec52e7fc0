package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/natefinch/atomic"

	"github.com/CTAG07/stagehand/pkg/engines/gotpl"
	"github.com/CTAG07/stagehand/pkg/engines/markdown"
	"github.com/CTAG07/stagehand/pkg/tpl"
)

// FileTypeConfig declares one mimetype with the extensions that classify
// paths into it and the globals exposed to its templates.
type FileTypeConfig struct {
	Mimetype   string            `json:"mimetype"`
	Extensions []string          `json:"extensions"`
	Globals    map[string]string `json:"globals,omitempty"`
}

// Config is the top-level configuration for the stagehand CLI.
type Config struct {
	RootDirs []string         `json:"root_dirs"`
	LogLevel string           `json:"log_level"`
	Types    []FileTypeConfig `json:"filetypes"`

	// Engines maps an extension to the engine rendering it. Supported
	// engine names: "text", "html" (Go templates) and "markdown".
	Engines map[string]string `json:"engines"`

	// TemplateDB optionally names a SQLite database whose rows are served
	// as a fallback behind the filesystem loaders.
	TemplateDB      string `json:"template_db,omitempty"`
	TemplateDBTable string `json:"template_db_table,omitempty"`
}

// DefaultConfig creates a configuration with sensible defaults: Go
// templates for HTML, Markdown for docs, templates under ./templates.
func DefaultConfig() *Config {
	return &Config{
		RootDirs: []string{"./templates"},
		LogLevel: "info",
		Types: []FileTypeConfig{
			{Mimetype: "text/html", Extensions: []string{"html", "gotpl"}},
			{Mimetype: "text/markdown", Extensions: []string{"md"}},
			{Mimetype: "text/plain", Extensions: []string{"txt"}},
		},
		Engines: map[string]string{
			"gotpl": "html",
			"md":    "markdown",
		},
	}
}

// LoadConfig reads the configuration from a JSON file at the given path.
// If the file doesn't exist, it creates one with default values.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		// If the file doesn't exist, create it with the default config.
		if os.IsNotExist(err) {
			var data []byte
			data, err = json.MarshalIndent(config, "", "  ")
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// Log a warning instead of failing, as the CLI can still run with defaults.
				fmt.Fprintf(os.Stderr, "warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err = json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// newEngine resolves an engine name from the configuration to a factory.
func newEngine(name string) (tpl.Engine, error) {
	switch name {
	case "text":
		return gotpl.New(), nil
	case "html":
		return gotpl.NewHTML(), nil
	case "markdown":
		return markdown.New(), nil
	default:
		return nil, fmt.Errorf("unknown engine %q", name)
	}
}

// buildManager performs all registration the configuration describes and
// finalizes the registry. The returned cleanup closes the template
// database, if one was opened.
func buildManager(config *Config, logger *slog.Logger) (*tpl.Manager, func(), error) {
	m := tpl.NewManager(logger, config.RootDirs...)
	cleanup := func() {}

	for _, ftc := range config.Types {
		ft := m.FileType(ftc.Mimetype)
		for _, ext := range ftc.Extensions {
			if err := ft.AddExtension(ext); err != nil {
				return nil, cleanup, err
			}
		}
		names := make([]string, 0, len(ftc.Globals))
		for name := range ftc.Globals {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := ft.AddGlobal(name, ftc.Globals[name], true); err != nil {
				return nil, cleanup, err
			}
		}
	}

	for ext, name := range config.Engines {
		engine, err := newEngine(name)
		if err != nil {
			return nil, cleanup, err
		}
		if err = m.RegisterEngine(ext, engine); err != nil {
			return nil, cleanup, err
		}
	}

	if config.TemplateDB != "" {
		db, err := initDB(config.TemplateDB)
		if err != nil {
			return nil, cleanup, fmt.Errorf("failed to open template database: %w", err)
		}
		cleanup = func() { _ = db.Close() }
		table := config.TemplateDBTable
		if table == "" {
			table = "templates"
		}
		if err = tpl.SetupSchema(db, table); err != nil {
			return nil, cleanup, err
		}
		for _, ftc := range config.Types {
			for _, ext := range ftc.Extensions {
				if err = m.AppendLoader(ext, tpl.NewDBLoader(db, table)); err != nil {
					return nil, cleanup, err
				}
			}
		}
		logger.Info("Template database attached", "path", config.TemplateDB, "table", table)
	}

	if err := m.Finalize(); err != nil {
		return nil, cleanup, err
	}
	return m, cleanup, nil
}
