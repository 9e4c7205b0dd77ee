package workflow

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a document must be quiet before it is processed.
const DefaultDebounce = 500 * time.Millisecond

// WatchOptions configures Watch.
type WatchOptions struct {
	Debounce time.Duration
	// OnResult is called after each document is processed. Optional.
	OnResult func(DocumentResult)
}

// Watch processes documents created or modified under the input root until
// ctx is cancelled. Subdirectories created while watching are watched too.
// Documents are processed one at a time in the order they settle.
func (w *Workflow) Watch(ctx context.Context, opts WatchOptions) error {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := addTree(watcher, w.cfg.InputRoot, nil); err != nil {
		return err
	}
	w.logger.Info("watching for documents", "input", w.cfg.InputRoot, "extension", w.cfg.Extension)

	ready := make(chan string, 64)
	var (
		timersMu sync.Mutex
		timers   = map[string]*time.Timer{}
	)
	schedule := func(path string) {
		timersMu.Lock()
		defer timersMu.Unlock()
		if t, ok := timers[path]; ok {
			t.Reset(opts.Debounce)
			return
		}
		timers[path] = time.AfterFunc(opts.Debounce, func() {
			timersMu.Lock()
			delete(timers, path)
			timersMu.Unlock()
			select {
			case ready <- path:
			case <-ctx.Done():
			}
		})
	}
	defer func() {
		timersMu.Lock()
		for _, t := range timers {
			t.Stop()
		}
		timersMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watch stopped")
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					// Files moved in with the directory produce no events of their own.
					err := addTree(watcher, ev.Name, func(path string) {
						if matchesExt(path, w.cfg.Extension) {
							schedule(path)
						}
					})
					if err != nil {
						w.logger.Warn("failed to watch directory", "dir", ev.Name, "error", err)
					}
					continue
				}
			}
			if matchesExt(ev.Name, w.cfg.Extension) {
				schedule(ev.Name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)

		case path := <-ready:
			doc, err := newDocument(w.cfg.InputRoot, path)
			if err != nil {
				w.logger.Warn("ignoring document", "path", path, "error", err)
				continue
			}
			res := w.ProcessDocument(ctx, doc)
			if opts.OnResult != nil {
				opts.OnResult(res)
			}
		}
	}
}

func addTree(watcher *fsnotify.Watcher, root string, onFile func(string)) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			if onFile != nil {
				onFile(path)
			}
			return nil
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}
