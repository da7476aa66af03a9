package attachment

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/entrybook/syncgw/internal/store/db"
)

// sizeUpdate reports a backing file whose size was written to its rows.
type sizeUpdate struct {
	Name string
	Size int64
	Rows int64
}

// SizeWatcher keeps attachment.filesize current when backing files are
// written through a granted capability rather than through the gateway.
// It uses fsnotify on the managed directory.
type SizeWatcher struct {
	manager *Manager
	q       db.DBTX
	logger  *slog.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewSizeWatcher creates a SizeWatcher. It must be started with Start.
func NewSizeWatcher(manager *Manager, q db.DBTX, logger *slog.Logger) (*SizeWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SizeWatcher{
		manager: manager,
		q:       q,
		logger:  logger.With("component", "size-watcher"),
		watcher: watcher,
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching the managed directory.
func (w *SizeWatcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}
	if err := w.watcher.Add(w.manager.Dir()); err != nil {
		return fmt.Errorf("failed to watch attachment directory %s: %w", w.manager.Dir(), err)
	}

	w.running = true
	w.wg.Add(1)
	go w.processEvents()
	return nil
}

// Stop stops watching and blocks until the event loop has exited.
func (w *SizeWatcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	w.wg.Wait()
	return nil
}

func (w *SizeWatcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if u, ok := w.apply(event.Name); ok {
				w.logger.Debug("attachment size updated", "file", u.Name, "size", u.Size, "rows", u.Rows)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// apply writes the current size of the file at path to every row that
// references it.
func (w *SizeWatcher) apply(path string) (sizeUpdate, bool) {
	name := filepath.Base(path)
	if filepath.Dir(path) != w.manager.Dir() {
		return sizeUpdate{}, false
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return sizeUpdate{}, false
	}

	out, err := w.q.ExecContext(context.Background(),
		`UPDATE attachment SET filesize = ? WHERE uri = ? AND COALESCE(filesize, -1) != ?`,
		info.Size(), w.manager.URI(name), info.Size())
	if err != nil {
		w.logger.Warn("failed to update attachment size", "file", name, "error", err)
		return sizeUpdate{}, false
	}
	n, _ := out.RowsAffected()
	if n == 0 {
		return sizeUpdate{}, false
	}
	return sizeUpdate{Name: name, Size: info.Size(), Rows: n}, true
}
