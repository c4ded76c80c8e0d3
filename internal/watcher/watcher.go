// Package watcher uploads documents dropped into a folder to a store.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/Dahimi/File-Search-POC/internal/ingestion"
	"github.com/Dahimi/File-Search-POC/pkg/logger"
)

var DefaultExtensions = []string{".pdf", ".txt", ".md", ".docx", ".doc", ".csv", ".xlsx", ".pptx", ".html", ".json"}

type Uploader interface {
	UploadFile(ctx context.Context, storeID, path, displayName string) (*ingestion.Result, error)
}

// Event reports the outcome of one upload.
type Event struct {
	Path   string
	Result *ingestion.Result
	Err    error
}

type Config struct {
	Extensions []string
	// Debounce is how long a file must stay quiet before it is uploaded.
	Debounce time.Duration
	// Existing uploads files already in the folder when Run starts.
	Existing bool
	OnEvent  func(Event)
}

type fileStamp struct {
	size    int64
	modTime time.Time
}

type Watcher struct {
	uploader   Uploader
	storeID    string
	extensions map[string]struct{}
	debounce   time.Duration
	existing   bool
	onEvent    func(Event)

	mu       sync.Mutex
	timers   map[string]*time.Timer
	uploaded map[string]fileStamp
}

func New(uploader Uploader, storeID string, cfg Config) *Watcher {
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = DefaultExtensions
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if cfg.OnEvent == nil {
		cfg.OnEvent = func(Event) {}
	}

	exts := make(map[string]struct{}, len(cfg.Extensions))
	for _, ext := range cfg.Extensions {
		exts[strings.ToLower(ext)] = struct{}{}
	}

	return &Watcher{
		uploader:   uploader,
		storeID:    storeID,
		extensions: exts,
		debounce:   cfg.Debounce,
		existing:   cfg.Existing,
		onEvent:    cfg.OnEvent,
		timers:     make(map[string]*time.Timer),
		uploaded:   make(map[string]fileStamp),
	}
}

// Run watches dir until ctx is done. Uploads run one at a time.
func (w *Watcher) Run(ctx context.Context, dir string) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsw.Close()

	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	ready := make(chan string, 64)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.uploadLoop(ctx, ready)
	}()
	defer func() {
		cancel()
		w.stopTimers()
		wg.Wait()
	}()

	logger.Info("Watching folder", zap.String("dir", dir), zap.String("store_id", w.storeID))

	if w.existing {
		if err := w.queueExisting(ctx, dir, ready); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !w.accepts(event.Name) {
				continue
			}
			w.schedule(ctx, event.Name, ready)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("File watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) queueExisting(ctx context.Context, dir string, ready chan<- string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", dir, err)
	}

	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() || !w.accepts(path) {
			continue
		}
		select {
		case ready <- path:
		case <-ctx.Done():
			return nil
		}
	}
	return nil
}

// schedule (re)starts the quiet-period timer of path.
func (w *Watcher) schedule(ctx context.Context, path string, ready chan<- string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}

	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()

		select {
		case ready <- path:
		case <-ctx.Done():
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()

	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}

func (w *Watcher) uploadLoop(ctx context.Context, ready <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case path := <-ready:
			w.upload(ctx, path)
		}
	}
}

func (w *Watcher) upload(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("Failed to stat watched file", zap.String("path", path), zap.Error(err))
		}
		return
	}

	stamp := fileStamp{size: info.Size(), modTime: info.ModTime()}
	if info.Size() == 0 || w.seen(path, stamp) {
		return
	}

	result, err := w.uploader.UploadFile(ctx, w.storeID, path, filepath.Base(path))
	if err != nil {
		logger.Error("Failed to upload watched file", zap.String("path", path), zap.Error(err))
	} else {
		w.mu.Lock()
		w.uploaded[path] = stamp
		w.mu.Unlock()
		logger.Info("Uploaded watched file", zap.String("path", path), zap.String("store_id", w.storeID))
	}

	w.onEvent(Event{Path: path, Result: result, Err: err})
}

func (w *Watcher) seen(path string, stamp fileStamp) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	prev, ok := w.uploaded[path]
	return ok && prev.size == stamp.size && prev.modTime.Equal(stamp.modTime)
}

// accepts skips hidden files, editor lock files and unknown extensions.
func (w *Watcher) accepts(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || strings.HasPrefix(base, "~$") {
		return false
	}
	_, ok := w.extensions[strings.ToLower(filepath.Ext(base))]
	return ok
}
