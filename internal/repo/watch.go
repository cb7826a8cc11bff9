package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watch reports external edits to the todos directory. Each relevant event drops
// the id index and then calls onChange. It blocks until ctx is done.
// Only meaningful when the repo sits on the OS filesystem.
func (r *FileTodoRepo) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(r.dir); err != nil {
		return fmt.Errorf("watch %s: %w", r.dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isRecordFile(event.Name) || (event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write)) {
				continue
			}
			r.logger.Debug("todos dir changed", "file", event.Name, "op", event.Op.String())
			r.Invalidate()
			if onChange != nil {
				onChange()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("watcher error", "err", err)
		}
	}
}

func isRecordFile(name string) bool {
	return strings.HasSuffix(name, metaSuffix) || strings.HasSuffix(name, contentSuffix)
}
