// File: internal/actions/loader.go
package actions

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/shoptalk-labs/shoptalk/api/schemas"
	"github.com/shoptalk-labs/shoptalk/internal/config"
	"github.com/shoptalk-labs/shoptalk/internal/registry"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// configFile is the on-disk shape of the action config.
type configFile struct {
	Actions []schemas.ActionDefinition `json:"actions"`
}

// Loader reads action definitions from a JSON file, binds them to their
// handlers and keeps the registry in sync when the file changes on disk.
type Loader struct {
	cfg      config.ActionsConfig
	registry *registry.Registry
	handlers map[string]schemas.ActionHandler
	logger   *zap.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
	closed  sync.Once
}

// NewLoader builds a loader over the given handler set. Definitions whose ID
// has no handler are skipped with a warning rather than failing the load;
// that lets operators stage config ahead of a deploy.
func NewLoader(cfg config.ActionsConfig, reg *registry.Registry, handlers map[string]schemas.ActionHandler, logger *zap.Logger) *Loader {
	return &Loader{
		cfg:      cfg,
		registry: reg,
		handlers: handlers,
		logger:   logger.Named("actions"),
		done:     make(chan struct{}),
	}
}

// Load reads the config file and registers (or updates) every definition.
// It is safe to call repeatedly; existing registrations are superseded.
func (l *Loader) Load() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadLocked()
}

func (l *Loader) loadLocked() error {
	data, err := os.ReadFile(l.cfg.Path)
	if err != nil {
		return fmt.Errorf("reading action config %s: %w", l.cfg.Path, err)
	}

	var file configFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing action config %s: %w", l.cfg.Path, err)
	}

	loaded := 0
	for _, def := range file.Actions {
		handler, ok := l.handlers[def.ID]
		if !ok {
			l.logger.Warn("No handler for configured action; skipping",
				zap.String("action_id", def.ID))
			continue
		}
		if err := l.registry.Register(def, handler); err != nil {
			var dup *schemas.DuplicateActionError
			if !errors.As(err, &dup) {
				return fmt.Errorf("registering action %s: %w", def.ID, err)
			}
			if err := l.registry.Update(def.ID, def); err != nil {
				return fmt.Errorf("updating action %s: %w", def.ID, err)
			}
		}
		loaded++
	}

	l.logger.Info("Action config loaded",
		zap.String("path", l.cfg.Path),
		zap.Int("actions", loaded),
		zap.Int("skipped", len(file.Actions)-loaded))
	return nil
}

// Watch starts the hot-reload loop. Editors replace files rather than
// rewriting them in place, so the watch is on the parent directory and events
// are debounced before a reload fires. A reload that fails to parse keeps the
// previous registration set.
func (l *Loader) Watch() error {
	if !l.cfg.HotReload {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	dir := filepath.Dir(l.cfg.Path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	l.mu.Lock()
	l.watcher = watcher
	l.mu.Unlock()

	go l.watchLoop(watcher)
	l.logger.Info("Hot reload enabled", zap.String("dir", dir))
	return nil
}

func (l *Loader) watchLoop(watcher *fsnotify.Watcher) {
	debounce := l.cfg.ReloadDebounce
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}

	var timer *time.Timer
	target := filepath.Clean(l.cfg.Path)

	for {
		select {
		case <-l.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, l.reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.logger.Warn("Config watcher error", zap.Error(err))
		}
	}
}

func (l *Loader) reload() {
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.done:
		return
	default:
	}
	if err := l.loadLocked(); err != nil {
		l.logger.Error("Hot reload failed; keeping previous actions", zap.Error(err))
		return
	}
	l.logger.Info("Actions hot-reloaded")
}

// Close stops the watcher. Idempotent.
func (l *Loader) Close() error {
	var err error
	l.closed.Do(func() {
		close(l.done)
		l.mu.Lock()
		if l.watcher != nil {
			err = l.watcher.Close()
		}
		l.mu.Unlock()
	})
	return err
}
