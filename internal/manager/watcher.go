package manager

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/apetros/sitemapper/internal/metrics"
	"github.com/apetros/sitemapper/internal/store"
)

// WatcherState reports what the pipeline is doing right now.
type WatcherState string

const (
	WatchIdle       WatcherState = "IDLE"
	WatchProcessing WatcherState = "PROCESSING"
)

// Watcher observes the store directory and drives the sweeper and updater
// over batches of changed files. Decode work runs on the components' own
// worker pools, so the event loop never blocks on it for long.
type Watcher struct {
	store   *store.Store
	sweeper *Sweeper
	updater *Updater
	logger  *zap.Logger

	debounce     time.Duration
	pollInterval time.Duration

	mu       sync.Mutex
	state    WatcherState
	examined map[string]struct{}
}

func NewWatcher(st *store.Store, sweeper *Sweeper, updater *Updater, debounce, pollInterval time.Duration, logger *zap.Logger) *Watcher {
	return &Watcher{
		store:        st,
		sweeper:      sweeper,
		updater:      updater,
		logger:       logger,
		debounce:     debounce,
		pollInterval: pollInterval,
		state:        WatchIdle,
		examined:     make(map[string]struct{}),
	}
}

// State returns IDLE or PROCESSING.
func (w *Watcher) State() WatcherState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Run blocks until the context ends. It starts with a forced full pass,
// then follows filesystem notifications. If watching fails it logs, keeps
// the index fresh by polling, and retries the watch; the index may go
// stale during an outage but the loop never terminates on its own.
func (w *Watcher) Run(ctx context.Context) {
	w.ForceRefresh(ctx)

	for ctx.Err() == nil {
		err := w.watch(ctx)
		if err == nil {
			return
		}
		w.logger.Error("store watch failed, falling back to polling",
			zap.Error(err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.pollInterval):
		}
		w.pollOnce(ctx)
	}
}

// ForceRefresh sweeps and updates every stored graph regardless of the
// examined set.
func (w *Watcher) ForceRefresh(ctx context.Context) {
	hosts, err := w.store.List()
	if err != nil {
		w.logger.Error("store listing failed", zap.Error(err))
		return
	}
	w.process(ctx, hosts)
}

// watch follows fsnotify events until the context ends (returns nil) or
// the watcher breaks (returns the error).
func (w *Watcher) watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close() //nolint:errcheck // nothing to do about close errors

	if err := fw.Add(w.store.Root()); err != nil {
		return err
	}

	ext := w.store.Codec().Extension()
	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return errors.New("event channel closed")
			}
			if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Rename) {
				continue
			}
			name := filepath.Base(ev.Name)
			if !strings.HasSuffix(name, ext) {
				continue
			}
			pending[strings.TrimSuffix(name, ext)] = struct{}{}
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return errors.New("error channel closed")
			}
			return err

		case <-timer.C:
			batch := make([]string, 0, len(pending))
			for host := range pending {
				batch = append(batch, host)
			}
			pending = make(map[string]struct{})
			// A Write/Create event means the file changed, so the
			// examined set must not suppress the recompute; it only
			// dedups the polling fallback, which cannot tell changed
			// files from already-seen ones.
			w.process(ctx, batch)
		}
	}
}

// pollOnce scans the store for files this session has not examined yet.
func (w *Watcher) pollOnce(ctx context.Context) {
	hosts, err := w.store.List()
	if err != nil {
		w.logger.Error("store listing failed", zap.Error(err))
		return
	}
	w.process(ctx, w.unexamined(hosts))
}

func (w *Watcher) unexamined(hosts []string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	fresh := hosts[:0]
	for _, host := range hosts {
		if _, ok := w.examined[host]; !ok {
			fresh = append(fresh, host)
		}
	}
	return fresh
}

// process runs one sweep-then-update batch and marks its hosts examined.
func (w *Watcher) process(ctx context.Context, hosts []string) {
	if len(hosts) == 0 {
		return
	}

	w.setState(WatchProcessing)
	defer w.setState(WatchIdle)

	survivors, err := w.sweeper.Sweep(ctx, hosts)
	if err != nil {
		return
	}
	if err := w.updater.Update(ctx, survivors); err != nil {
		return
	}

	w.mu.Lock()
	for _, host := range hosts {
		w.examined[host] = struct{}{}
	}
	w.mu.Unlock()

	metrics.ObserveBatch()
	w.logger.Debug("metadata batch processed",
		zap.Int("hosts", len(hosts)),
		zap.Int("survivors", len(survivors)))
}

func (w *Watcher) setState(s WatcherState) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}
