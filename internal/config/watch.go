package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/banshee-data/sandtable/internal/monitoring"
)

// DefaultReloadDebounce coalesces the burst of events editors produce on save.
const DefaultReloadDebounce = 250 * time.Millisecond

// Watcher reloads the settings file when it changes on disk.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(*Settings)
	fsw      *fsnotify.Watcher
}

// NewWatcher watches the directory holding path, since editors often replace
// the file rather than writing it in place.
func NewWatcher(path string, debounce time.Duration, onChange func(*Settings)) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultReloadDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create settings watcher: %w", err)
	}
	clean := filepath.Clean(path)
	if err := fsw.Add(filepath.Dir(clean)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(clean), err)
	}
	return &Watcher{path: clean, debounce: debounce, onChange: onChange, fsw: fsw}, nil
}

// Run delivers reloaded settings until ctx is cancelled. Files that fail to
// load are logged and skipped; the previous settings stay active.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(w.debounce)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			monitoring.Logf("[Settings] watcher error: %v", err)
		case <-timer.C:
			s, corrections, err := LoadSettings(w.path)
			if err != nil {
				monitoring.Logf("[Settings] reload of %s failed: %v", w.path, err)
				continue
			}
			for _, c := range corrections {
				monitoring.Logf("[Settings] corrected on reload: %s", c)
			}
			monitoring.Logf("[Settings] reloaded %s", w.path)
			w.onChange(s)
		}
	}
}
