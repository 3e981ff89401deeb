package catalog

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// WatcherConfig holds configuration for a Watcher.
type WatcherConfig struct {
	Root string
	// Debounce is how long the tree must be quiet before OnChange runs.
	Debounce time.Duration
	OnChange func()
}

// Watcher reports changes to manifest files under a root directory. Bursts
// of events are collapsed into one OnChange call.
type Watcher struct {
	watcher  *fsnotify.Watcher
	root     string
	debounce time.Duration
	onChange func()
	logger   zerolog.Logger

	done     chan struct{}
	stopOnce sync.Once

	timerMu sync.Mutex
	timer   *time.Timer
}

// NewWatcher creates a watcher. Call Start to begin watching.
func NewWatcher(config WatcherConfig, logger zerolog.Logger) (*Watcher, error) {
	if config.Root == "" {
		return nil, fmt.Errorf("watcher root is required")
	}
	if config.OnChange == nil {
		return nil, fmt.Errorf("watcher OnChange callback is required")
	}
	if config.Debounce <= 0 {
		config.Debounce = 200 * time.Millisecond
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		watcher:  fw,
		root:     config.Root,
		debounce: config.Debounce,
		onChange: config.OnChange,
		logger:   logger.With().Str("component", "tool-watcher").Logger(),
		done:     make(chan struct{}),
	}, nil
}

// Start watches root and every directory below it.
func (w *Watcher) Start() error {
	if err := w.addRecursive(w.root); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.root, err)
	}

	go w.eventLoop()

	w.logger.Info().Str("root", w.root).Msg("Tool watcher started")
	return nil
}

// Stop stops watching. Pending notifications are dropped.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.timerMu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	w.logger.Info().Msg("Tool watcher stopped")
	return nil
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if w.ignored(event.Name) {
		return
	}

	// New directories are watched so manifests created inside them are seen.
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Warn().Err(err).Str("path", event.Name).Msg("Failed to watch new directory")
			}
			w.schedule()
			return
		}
	}

	if !IsManifestFile(event.Name) {
		// A removed or renamed directory may have held manifests.
		if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
			w.schedule()
		}
		return
	}

	w.logger.Debug().Str("path", event.Name).Str("op", event.Op.String()).Msg("Manifest changed")
	w.schedule()
}

func (w *Watcher) schedule() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.done:
			return
		default:
		}
		w.onChange()
	})
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		if w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch path")
		}
		return nil
	})
}

// ignored reports whether path is a dotfile or lives in a dot directory
// below the watched root.
func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return false
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if len(part) > 1 && part[0] == '.' && part != ".." {
			return true
		}
	}
	return false
}
