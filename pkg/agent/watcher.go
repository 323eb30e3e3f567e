package agent

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// ReloadFunc receives each fresh registry snapshot produced by the watcher.
type ReloadFunc func(*Registry)

// Watcher rebuilds the registry when definition files change. Running
// sessions keep the snapshot they started with; only new sessions see the
// reloaded registry.
type Watcher struct {
	loader   *Loader
	onReload ReloadFunc
	debounce time.Duration

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	timer   *time.Timer
}

// NewWatcher creates a watcher over the loader's directory.
func NewWatcher(loader *Loader, onReload ReloadFunc) *Watcher {
	return &Watcher{
		loader:   loader,
		onReload: onReload,
		debounce: 500 * time.Millisecond,
	}
}

// Start begins watching until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.loader.dir); err != nil {
		fw.Close()
		return err
	}
	w.watcher = fw

	go w.run(ctx)

	log.Info().Str("dir", w.loader.dir).Msg("Agent definition watcher started")
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	defer w.watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Agent watcher error")
		}
	}
}

// scheduleReload coalesces bursts of file events into one reload.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	registry, err := w.loader.Load()
	if err != nil {
		log.Error().Err(err).Msg("Agent definition reload failed, keeping previous snapshot")
		return
	}

	log.Info().Int("agents", registry.Count()).Msg("Agent definitions reloaded")
	w.onReload(registry)
}
