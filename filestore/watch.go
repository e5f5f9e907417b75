package filestore

import (
	"context"

	"github.com/fsnotify/fsnotify"

	"github.com/jonwraymond/resultcache/observe"
)

// watch turns filesystem events under the root into broadcasts on
// s.changes, waking AwaitReady callers waiting on another process's lock.
func (s *Store) watch() {
	defer s.wg.Done()

	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Create) {
				s.changes.Broadcast()
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn(context.Background(), "file watcher error",
				observe.Field{Key: "error", Value: err})
		}
	}
}
