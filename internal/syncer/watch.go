package syncer

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounce window for editor write bursts: saves often arrive as several
// events (truncate, write, chmod) within milliseconds.
const watchDebounce = 500 * time.Millisecond

// Watch re-imports path whenever it changes, until ctx is cancelled. The
// file's directory is watched rather than the file itself, so editors that
// replace the file on save (rename-over) keep being tracked. An initial
// import runs before watching starts.
func (s *Syncer) Watch(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	if _, err := s.Import(ctx, abs); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	s.log.Info().Str("path", abs).Msg("watching for changes")

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt, ok := <-w.Events:
			if !ok {
				return nil
			}
			if evt.Name != abs || evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
				fire = timer.C
			} else {
				timer.Reset(watchDebounce)
			}

		case <-fire:
			timer = nil
			fire = nil
			stats, err := s.Import(ctx, abs)
			if err != nil {
				s.log.Warn().Err(err).Msg("re-import failed")
				continue
			}
			if stats.New > 0 {
				s.log.Info().Int("new", stats.New).Msg("file change imported")
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.Warn().Err(err).Msg("watcher error")
		}
	}
}
