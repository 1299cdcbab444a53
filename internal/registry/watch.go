package registry

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the repository whenever another process rewrites the
// backing file, calling onReload after each successful reload. It blocks
// until ctx is done.
func (r *FileRepository) Watch(ctx context.Context, onReload func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: atomic saves replace the file's inode
	dir := filepath.Dir(r.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	const debounce = 200 * time.Millisecond
	var timer *time.Timer
	fire := make(chan struct{}, 1)

	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	target := filepath.Clean(r.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case <-fire:
			if err := r.Reload(); err != nil {
				r.logger.Warn("registry reload failed", "error", err)
				continue
			}
			if onReload != nil {
				onReload()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("registry watch error", "error", err)
		}
	}
}
