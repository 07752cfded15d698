package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/emitdm/delorean/internal/syslog"
)

// Watcher reloads the provider when the backup script changes on disk.
// Events are debounced because editors typically produce several writes per
// save.
type Watcher struct {
	mu            sync.Mutex
	watcher       *fsnotify.Watcher
	provider      *Provider
	debounceTimer *time.Timer
	events        map[string]bool
}

func NewWatcher(provider *Provider) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("NewWatcher: failed to create watcher -> %w", err)
	}

	return &Watcher{
		watcher:  watcher,
		provider: provider,
		events:   make(map[string]bool),
	}, nil
}

// Watch starts watching the provider's script file.
func (w *Watcher) Watch() error {
	absPath, err := filepath.Abs(w.provider.scriptPath)
	if err != nil {
		return fmt.Errorf("Watch: failed to get absolute path -> %w", err)
	}

	// Watch the directory too so a delete-and-recreate save is observed.
	if err := w.watcher.Add(filepath.Dir(absPath)); err != nil {
		return fmt.Errorf("Watch: failed to watch directory -> %w", err)
	}
	if err := w.watcher.Add(absPath); err != nil {
		return fmt.Errorf("Watch: failed to watch file -> %w", err)
	}

	go w.watchLoop(absPath)

	return nil
}

func (w *Watcher) watchLoop(filename string) {
	const debounceInterval = 100 * time.Millisecond

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			w.mu.Lock()

			if event.Op&fsnotify.Create == fsnotify.Create && event.Name == filename {
				_ = w.watcher.Add(filename)
			}

			w.events[event.Name] = true

			if w.debounceTimer != nil {
				w.debounceTimer.Stop()
			}

			currentEvents := make(map[string]bool)
			for k, v := range w.events {
				currentEvents[k] = v
			}
			w.events = make(map[string]bool)

			w.debounceTimer = time.AfterFunc(debounceInterval, func() {
				if _, exists := currentEvents[filename]; exists {
					if err := w.provider.Reload(); err != nil {
						syslog.L.Error(err).WithMessage("failed to reload changed config").Write()
					}
				}
			})

			w.mu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			syslog.L.Error(err).WithMessage("config watcher error").Write()
		}
	}
}

func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}

	return w.watcher.Close()
}
