package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const reloadDebounce = 300 * time.Millisecond

// Watcher reloads the config file when it changes on disk and hands the
// new value to registered callbacks. Invalid files are logged and ignored.
type Watcher struct {
	path     string
	dataDir  string
	logger   *zap.Logger
	debounce time.Duration

	mu        sync.RWMutex
	current   *Config
	callbacks []func(*Config)

	fsw    *fsnotify.Watcher
	stopCh chan struct{}
	done   chan struct{}
}

// NewWatcher watches the directory holding initial.File. Editors often
// replace files by rename, so the directory is watched rather than the file.
func NewWatcher(initial *Config, logger *zap.Logger) (*Watcher, error) {
	if initial.File == "" {
		return nil, fmt.Errorf("no config file to watch")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(initial.File)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", initial.File, err)
	}

	w := &Watcher{
		path:     initial.File,
		dataDir:  initial.Storage.DataDir,
		logger:   logger,
		debounce: reloadDebounce,
		current:  initial,
		fsw:      fsw,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.loop()

	logger.Info("Watching configuration file", zap.String("file", initial.File))
	return w, nil
}

// OnChange registers a callback fired after every successful reload.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Current returns the latest loaded configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
	<-w.done
	return nil
}

func (w *Watcher) loop() {
	defer close(w.done)
	defer w.fsw.Close()

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	target := filepath.Clean(w.path)
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.logger.Debug("Configuration file changed",
				zap.String("file", event.Name),
				zap.String("operation", event.Op.String()),
			)
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.reload)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))

		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) reload() {
	select {
	case <-w.stopCh:
		return
	default:
	}

	next, err := Load(w.path, w.dataDir)
	if err != nil {
		w.logger.Error("Invalid configuration after reload, keeping previous", zap.Error(err))
		return
	}

	w.mu.Lock()
	prev := w.current
	// A generated secret would change on every reload and invalidate issued tokens.
	if next.Security.JWTSecret != prev.Security.JWTSecret && !secretConfigured(next) {
		next.Security.JWTSecret = prev.Security.JWTSecret
	}
	w.current = next
	callbacks := make([]func(*Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	if prev.Log.Level != next.Log.Level {
		w.logger.Info("Log level changed",
			zap.String("from", prev.Log.Level),
			zap.String("to", next.Log.Level),
		)
	}
	for _, fn := range callbacks {
		fn(next)
	}
	w.logger.Info("Configuration reloaded", zap.Int("callbacks", len(callbacks)))
}

func secretConfigured(cfg *Config) bool {
	return cfg.configuredSecret
}
