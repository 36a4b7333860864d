package manager

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/apetros/sitemapper/internal/metrics"
	"github.com/apetros/sitemapper/internal/store"
)

// Updater recomputes statistics index entries from stored graphs.
type Updater struct {
	store   *store.Store
	index   *Index
	logger  *zap.Logger
	workers int
}

func NewUpdater(st *store.Store, index *Index, workers int, logger *zap.Logger) *Updater {
	if workers < 1 {
		workers = 1
	}
	return &Updater{store: st, index: index, logger: logger, workers: workers}
}

// Update decodes each named host's graph and refreshes its index entry.
// Hosts that fail to decode are logged and skipped; the sweeper owns
// their removal.
func (u *Updater) Update(ctx context.Context, hosts []string) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(u.workers)

	for _, host := range hosts {
		host := host
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			g, err := u.store.Read(host)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					u.index.Delete(host)
					return nil
				}
				u.logger.Warn("info update skipped",
					zap.String("host", host),
					zap.Error(err))
				return nil
			}

			u.index.Set(BuildInfo(host, g))
			return nil
		})
	}

	err := eg.Wait()
	metrics.SetStoredGraphs(u.index.Len())
	return err
}
