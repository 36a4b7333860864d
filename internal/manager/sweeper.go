package manager

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/apetros/sitemapper/internal/metrics"
	"github.com/apetros/sitemapper/internal/store"
)

// Sweeper removes graph files that no longer decode, healing the store
// after partial or corrupt writes.
type Sweeper struct {
	store   *store.Store
	index   *Index
	logger  *zap.Logger
	workers int
}

func NewSweeper(st *store.Store, index *Index, workers int, logger *zap.Logger) *Sweeper {
	if workers < 1 {
		workers = 1
	}
	return &Sweeper{store: st, index: index, logger: logger, workers: workers}
}

// Sweep decodes each named host's file and deletes the ones that fail,
// dropping their index entries too. It returns the hosts that survived.
// One bad file never stops the rest of the batch; only context
// cancellation does.
func (s *Sweeper) Sweep(ctx context.Context, hosts []string) ([]string, error) {
	var (
		mu        sync.Mutex
		survivors []string
	)

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(s.workers)

	for _, host := range hosts {
		host := host
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			_, err := s.store.Read(host)
			switch {
			case err == nil:
				mu.Lock()
				survivors = append(survivors, host)
				mu.Unlock()
			case errors.Is(err, store.ErrCorrupt):
				s.remove(host, err)
			case errors.Is(err, store.ErrNotFound):
				// Deleted between listing and reading; nothing to heal.
				s.index.Delete(host)
			default:
				s.logger.Error("sweep read failed",
					zap.String("host", host),
					zap.Error(err))
			}
			return nil
		})
	}

	err := eg.Wait()
	return survivors, err
}

func (s *Sweeper) remove(host string, cause error) {
	s.logger.Warn("removing corrupt graph",
		zap.String("host", host),
		zap.Error(cause))
	if err := s.store.Remove(host); err != nil {
		s.logger.Error("corrupt graph removal failed",
			zap.String("host", host),
			zap.Error(err))
		return
	}
	s.index.Delete(host)
	metrics.ObserveSweepRemoval()
}
