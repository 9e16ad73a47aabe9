package vehicle

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// TuningWatcher reports changes to the tuning document. The overlay is only
// applied before the control loop starts, so a change means a restart is
// needed for it to take effect.
type TuningWatcher struct {
	path    string
	watcher *fsnotify.Watcher
}

// NewTuningWatcher watches the directory holding path, so the file may be
// created after startup.
func NewTuningWatcher(path string) (*TuningWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	return &TuningWatcher{path: path, watcher: w}, nil
}

// Run calls onChange for every write, create, remove or rename of the
// tuning file and onError for watcher errors, until ctx is done.
func (t *TuningWatcher) Run(ctx context.Context, onChange func(op fsnotify.Op), onError func(error)) {
	name := filepath.Base(t.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			onChange(event.Op)

		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			if onError != nil {
				onError(err)
			}
		}
	}
}

// Close stops watching.
func (t *TuningWatcher) Close() error {
	return t.watcher.Close()
}
