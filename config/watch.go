package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/platewise/platewise/model"
)

// Watcher reloads the models section of a config file on change and swaps
// it into a live registry. Only model selection is hot-reloadable; other
// sections require a restart.
type Watcher struct {
	path     string
	registry *model.Registry
	logger   *slog.Logger
	fs       *fsnotify.Watcher
}

// NewWatcher watches path and applies model changes to registry.
func NewWatcher(path string, registry *model.Registry, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Watch the directory; editors replace files rather than write in place.
	if err := fs.Add(filepath.Dir(path)); err != nil {
		fs.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}
	return &Watcher{path: path, registry: registry, logger: logger, fs: fs}, nil
}

// Run processes file events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fs.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", slog.String("error", err.Error()))
		}
	}
}

// reload re-parses the config file and swaps the model maps. A broken file
// keeps the previous registry contents.
func (w *Watcher) reload() {
	cfg, err := LoadFromFile(w.path)
	if err != nil {
		w.logger.Warn("Config reload failed", slog.String("path", w.path), slog.String("error", err.Error()))
		return
	}
	if err := cfg.Validate(); err != nil {
		w.logger.Warn("Config reload rejected", slog.String("path", w.path), slog.String("error", err.Error()))
		return
	}
	if len(cfg.Models.Capabilities) == 0 && len(cfg.Models.Endpoints) == 0 {
		w.logger.Debug("Config reload: no models section, keeping current registry")
		return
	}

	caps := make(map[model.Capability]*model.CapabilityConfig, len(cfg.Models.Capabilities))
	for name, c := range cfg.Models.Capabilities {
		caps[model.Capability(name)] = c
	}
	w.registry.Replace(caps, cfg.Models.Endpoints)
	w.logger.Info("Reloaded model configuration", slog.String("path", w.path))
}
