// Package history persists exporter snapshots to a local SQLite database
// in timed batches. When disabled it degrades to a no-op collector so the
// daemon wiring stays unconditional.
package history

import (
	"context"

	"github.com/gabrielpetry/MangoHud/exporter"
	"github.com/gabrielpetry/MangoHud/internal/errors"
	"github.com/gabrielpetry/MangoHud/internal/logger"
)

// Collector is the exporter-facing recorder plus lifecycle. It satisfies
// exporter.Recorder.
type Collector interface {
	Record(ctx context.Context, snapshot *exporter.Snapshot) error
	Close() error
}

type service struct {
	repo *repository
}

type noopCollector struct{}

// NewService builds the snapshot collector. Disabled history yields a
// no-op collector, not an error.
func NewService(cfg Config) (Collector, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		logger.Debug().Msg("History disabled, using no-op collector")
		return &noopCollector{}, nil
	}

	repo, err := newRepository(cfg.withDefaults())
	if err != nil {
		return nil, err
	}

	return &service{repo: repo}, nil
}

func (s *service) Record(ctx context.Context, snapshot *exporter.Snapshot) error {
	errFactory := errors.New()

	if snapshot == nil {
		return errFactory.New(ErrInvalidSnapshot)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
		if err := s.repo.record(snapshot); err != nil {
			return errFactory.Wrap(ErrRecordFailed, err)
		}
	}

	return nil
}

func (s *service) Close() error {
	errFactory := errors.New()

	if err := s.repo.close(); err != nil {
		return errFactory.Wrap(ErrServiceShutdown, err)
	}

	return nil
}

func (*noopCollector) Record(_ context.Context, _ *exporter.Snapshot) error {
	return nil
}

func (*noopCollector) Close() error {
	return nil
}
