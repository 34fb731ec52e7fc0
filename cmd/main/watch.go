package main

import (
	"context"
	"io/fs"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"

	"github.com/CTAG07/stagehand/pkg/tpl"
)

// runWatch renders path once, then re-renders it whenever a file below any
// search root changes. It blocks until interrupted.
func runWatch(m *tpl.Manager, logger *slog.Logger, roots []string, path, varsFile, out string) error {
	vars, err := loadVars(varsFile)
	if err != nil {
		return err
	}

	render := func() {
		result, err := m.Render(path, vars)
		if err != nil {
			logger.Error("Render failed", "path", path, "error", err)
			return
		}
		if err := writeOutput(out, result); err != nil {
			logger.Error("Failed to write output", "out", out, "error", err)
			return
		}
		token, err := m.Hash(path)
		if err == nil {
			logger.Info("Rendered", "path", path, "hash", token)
		}
	}
	render()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() {
		_ = watcher.Close()
	}()

	for _, root := range roots {
		if err := watchRecursive(watcher, root); err != nil {
			logger.Warn("Failed to watch root", "root", root, "error", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Watching for template changes", "path", path, "roots", roots)
	for {
		select {
		case <-ctx.Done():
			logger.Info("Shutting down")
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op.Has(fsnotify.Create) {
				// New directories must be picked up so nested changes
				// keep triggering re-renders.
				_ = watchRecursive(watcher, event.Name)
			}
			if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) ||
				event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
				logger.Debug("Change detected", "file", event.Name, "op", event.Op.String())
				render()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error", "error", err)
		}
	}
}

// watchRecursive adds root and every directory below it to the watcher.
// Non-directories are ignored.
func watchRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		return watcher.Add(p)
	})
}
