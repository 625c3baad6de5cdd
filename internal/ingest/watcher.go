package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/kart-io/logger"
)

// Watcher rebuilds categories when their data directories change. Changes
// within the debounce window coalesce into one rebuild, and rebuilds run on
// a single worker, so a category never rebuilds concurrently with itself.
type Watcher struct {
	ingester *Ingester
	debounce time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
	queued map[string]bool
	ch     chan string
}

// NewWatcher creates a watcher over the ingester's data directory.
func NewWatcher(ingester *Ingester, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Watcher{
		ingester: ingester,
		debounce: debounce,
		timers:   make(map[string]*time.Timer),
		queued:   make(map[string]bool),
		ch:       make(chan string, 64),
	}
}

// Run watches until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	dataDir := w.ingester.config.DataDir
	if err := fw.Add(dataDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dataDir, err)
	}

	categories := make(map[string]bool, len(w.ingester.config.Categories))
	for _, category := range w.ingester.config.Categories {
		categories[category] = true
		dir := filepath.Join(dataDir, category)
		if err := fw.Add(dir); err != nil {
			// The directory may not exist yet; the data root watch picks
			// it up when it is created.
			logger.Debugw("category directory not watchable yet", "dir", dir, "error", err.Error())
		}
	}

	go w.rebuildLoop(ctx)

	logger.Infow("watching for document changes", "dir", dataDir, "debounce", w.debounce)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(fw, dataDir, categories, event)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warnw("watch error", "error", err.Error())
		}
	}
}

func (w *Watcher) handleEvent(fw *fsnotify.Watcher, dataDir string, categories map[string]bool, event fsnotify.Event) {
	rel, err := filepath.Rel(dataDir, event.Name)
	if err != nil || strings.HasPrefix(rel, "..") {
		return
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")
	category := parts[0]
	if !categories[category] {
		return
	}

	// A category directory created after startup must itself be watched;
	// events inside it would otherwise be missed.
	if len(parts) == 1 && event.Op.Has(fsnotify.Create) {
		if err := fw.Add(event.Name); err != nil {
			logger.Warnw("failed to watch new category directory", "dir", event.Name, "error", err.Error())
		}
	}

	w.bump(category)
}

// bump starts or resets the category's debounce timer.
func (w *Watcher) bump(category string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.timers[category]; ok {
		timer.Reset(w.debounce)
		return
	}
	w.timers[category] = time.AfterFunc(w.debounce, func() {
		w.enqueue(category)
	})
}

// enqueue queues the category for rebuild unless it is already waiting.
func (w *Watcher) enqueue(category string) {
	w.mu.Lock()
	delete(w.timers, category)
	if w.queued[category] {
		w.mu.Unlock()
		return
	}
	w.queued[category] = true
	w.mu.Unlock()

	select {
	case w.ch <- category:
	default:
		w.mu.Lock()
		delete(w.queued, category)
		w.mu.Unlock()
		logger.Warnw("rebuild queue full, dropping request", "category", category)
	}
}

// rebuildLoop consumes queued categories one at a time. Events arriving
// while a category rebuilds re-queue it for a fresh pass afterwards.
func (w *Watcher) rebuildLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case category := <-w.ch:
			w.mu.Lock()
			delete(w.queued, category)
			w.mu.Unlock()

			logger.Infow("change detected, rebuilding category", "category", category)
			report := w.ingester.RebuildCategory(ctx, category)
			if report.Err != nil {
				logger.Errorw("watch rebuild failed", "category", category, "error", report.Err.Error())
			}
		}
	}
}
