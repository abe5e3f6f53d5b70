package registry

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceInterval coalesces the burst of fsnotify events an editor save
// produces into one reload.
const debounceInterval = 200 * time.Millisecond

// Watcher reloads the service when project files change on disk. Only useful
// with local storage; S3-backed deployments rely on explicit reloads.
type Watcher struct {
	dir     string
	service *Service
}

func NewWatcher(dir string, service *Service) *Watcher {
	return &Watcher{dir: dir, service: service}
}

// Run blocks until the context is done, reloading the registry after file
// changes settle.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	// On a fresh install the projects directory doesn't exist yet; create it
	// so the watcher survives until the first project is saved.
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	if err := watcher.Add(w.dir); err != nil {
		return err
	}
	slog.Info("watching project registry", "dir", w.dir)

	var (
		timer   *time.Timer
		timerCh <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceInterval)
				timerCh = timer.C
			} else {
				timer.Reset(debounceInterval)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("registry watcher error", "error", err)
		case <-timerCh:
			timer = nil
			timerCh = nil
			if err := w.service.Load(ctx); err != nil {
				slog.Warn("failed to reload project registry", "error", err)
			}
		}
	}
}
