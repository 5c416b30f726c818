// Package watch runs a handler for every screenshot dropped into an inbox
// directory.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/singleflight"
)

const DefaultPattern = "*.{png,jpg,jpeg,tiff,tif,bmp}"

// Handler processes one file. Errors are logged and do not stop the watcher.
type Handler func(ctx context.Context, path string) error

type Watcher struct {
	Dir     string
	Pattern string
	// Settle is how long a file must stay quiet before it is handled, so
	// half-written screenshots are not picked up.
	Settle time.Duration
	// Existing handles files already present when Run starts.
	Existing bool
	Handle   Handler
	Logger   *slog.Logger

	group singleflight.Group
	mu    sync.Mutex
	seen  map[string]time.Time
	wg    sync.WaitGroup
}

func (w *Watcher) init() error {
	if w.Pattern == "" {
		w.Pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(w.Pattern) {
		return fmt.Errorf("invalid pattern %q", w.Pattern)
	}
	if w.Handle == nil {
		return fmt.Errorf("watch: no handler")
	}
	if w.Settle <= 0 {
		w.Settle = 500 * time.Millisecond
	}
	if w.Logger == nil {
		w.Logger = slog.Default()
	}
	w.seen = map[string]time.Time{}
	return nil
}

// Match reports whether name (relative to Dir) is picked up by the watcher.
func (w *Watcher) Match(name string) bool {
	ok, err := doublestar.Match(strings.ToLower(w.Pattern), strings.ToLower(filepath.ToSlash(name)))
	return err == nil && ok
}

// Run blocks until ctx is done, then waits for in-flight handlers.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.init(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return fmt.Errorf("ensure dir %s: %w", w.Dir, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.Dir, err)
	}
	w.Logger.Info("watching", "dir", w.Dir, "pattern", w.Pattern)

	if w.Existing {
		entries, err := os.ReadDir(w.Dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if !e.IsDir() && w.Match(e.Name()) {
				w.dispatch(ctx, filepath.Join(w.Dir, e.Name()))
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			w.wg.Wait()
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				w.wg.Wait()
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !w.Match(filepath.Base(ev.Name)) {
				continue
			}
			w.dispatch(ctx, ev.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				w.wg.Wait()
				return nil
			}
			w.Logger.Warn("watch error", "error", err)
		}
	}
}

// dispatch coalesces bursts of events for one path into a single handler call.
func (w *Watcher) dispatch(ctx context.Context, path string) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		_, _, _ = w.group.Do(path, func() (any, error) {
			w.process(ctx, path)
			return nil, nil
		})
	}()
}

func (w *Watcher) process(ctx context.Context, path string) {
	var mod time.Time
	for {
		st, err := os.Stat(path)
		if err != nil {
			return
		}
		mod = st.ModTime()
		t := time.NewTimer(w.Settle)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		st, err = os.Stat(path)
		if err != nil {
			return
		}
		if st.ModTime().Equal(mod) {
			break
		}
	}

	w.mu.Lock()
	if last, ok := w.seen[path]; ok && last.Equal(mod) {
		w.mu.Unlock()
		return
	}
	w.seen[path] = mod
	w.mu.Unlock()

	w.Logger.Info("new file", "path", path)
	if err := w.Handle(ctx, path); err != nil {
		w.Logger.Error("handler failed", "path", path, "error", err)
	}
}
