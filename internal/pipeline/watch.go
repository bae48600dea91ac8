package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long a new file must stay unchanged before it is
// handed to the watch callback.
const DefaultSettle = 750 * time.Millisecond

// WatchOptions configure Watch.
type WatchOptions struct {
	// Settle delays the callback until a file has not been written for
	// this long. Zero selects DefaultSettle.
	Settle time.Duration
	// Pattern, when set, must match the base name.
	Pattern *regexp.Regexp
	Logger  *slog.Logger
}

// Watch calls fn for every FITS file created in dir until ctx is done. Files
// are reported once writes to them have settled. fn runs on the watch
// goroutine, so events queue up while it works.
func Watch(ctx context.Context, dir string, opts WatchOptions, fn func(path string)) error {
	settle := opts.Settle
	if settle <= 0 {
		settle = DefaultSettle
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	log.Info("watching", "dir", dir)
	return watchEvents(ctx, watcher.Events, watcher.Errors, settle, opts.Pattern, log, fn)
}

// settler hands settled paths to the watch loop. fire gives up once the
// loop has returned.
type settler struct {
	ready chan string
	done  chan struct{}
}

func newSettler() *settler {
	return &settler{ready: make(chan string, 16), done: make(chan struct{})}
}

func (s *settler) fire(path string) {
	select {
	case s.ready <- path:
	case <-s.done:
	}
}

func watchEvents(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error, settle time.Duration, pattern *regexp.Regexp, log *slog.Logger, fn func(path string)) error {
	pending := make(map[string]*time.Timer)
	s := newSettler()
	defer func() {
		close(s.done)
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			if !IsFITS(name) || (pattern != nil && !pattern.MatchString(name)) {
				continue
			}
			switch {
			case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
				if t, ok := pending[ev.Name]; ok {
					t.Reset(settle)
					continue
				}
				if !ev.Has(fsnotify.Create) {
					continue
				}
				path := ev.Name
				pending[path] = time.AfterFunc(settle, func() { s.fire(path) })
			case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
				if t, ok := pending[ev.Name]; ok {
					t.Stop()
					delete(pending, ev.Name)
				}
			}

		case path := <-s.ready:
			if _, ok := pending[path]; !ok {
				continue
			}
			delete(pending, path)
			log.Debug("frame settled", "file", path)
			fn(path)

		case err, ok := <-errs:
			if !ok {
				return nil
			}
			log.Warn("watch error", "err", err)
		}
	}
}
