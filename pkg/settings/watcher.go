package settings

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"followsweep/pkg/logger"
)

// DefaultDebounce coalesces the burst of events an editor save produces.
const DefaultDebounce = 200 * time.Millisecond

// WatchOption configures Watch.
type WatchOption func(*watchOptions)

type watchOptions struct {
	debounce time.Duration
	onChange func(Settings)
	log      logger.Logger
}

// WithDebounce sets the quiet period before a reload.
func WithDebounce(d time.Duration) WatchOption {
	return func(o *watchOptions) { o.debounce = d }
}

// WithOnChange is called with every successfully reloaded document.
func WithOnChange(fn func(Settings)) WatchOption {
	return func(o *watchOptions) { o.onChange = fn }
}

// WithWatchLogger sets the logger.
func WithWatchLogger(log logger.Logger) WatchOption {
	return func(o *watchOptions) { o.log = log }
}

// Watch reloads the store whenever its file changes on disk, until ctx ends.
// The parent directory is watched so atomic replaces are seen.
func (st *Store) Watch(ctx context.Context, opts ...WatchOption) error {
	o := watchOptions{debounce: DefaultDebounce}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.GetLogger()
	}
	log := o.log.WithField("component", "settings")

	dir := filepath.Dir(st.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Base(st.path)
	timer := time.NewTimer(o.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				timer.Reset(o.debounce)
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("Settings watcher error")

		case <-timer.C:
			s, err := st.Reload()
			if err != nil {
				log.WithError(err).Warn("Ignoring unreadable settings file")
				continue
			}
			log.WithFields(map[string]interface{}{
				"underage": s.Underage,
				"zoo":      s.Zoo,
				"pedo":     s.Pedo,
				"custom":   len(s.Filter().Custom),
			}).Info("Settings reloaded")
			if o.onChange != nil {
				o.onChange(s)
			}
		}
	}
}
