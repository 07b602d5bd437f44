package metasync

import (
	"context"
	"log/slog"
	"time"
)

// Service drives periodic snapshot refreshes. The API stays responsive on
// the previous snapshot while a refresh runs; failed cycles are logged and
// retried on the next tick.
type Service struct {
	Cache           *Cache
	RefreshInterval time.Duration
	Logger          *slog.Logger
}

func (s *Service) Run(ctx context.Context) error {
	s.ensureDefaults()

	if err := s.RefreshOnce(ctx); err != nil {
		s.Logger.ErrorContext(ctx, "initial metadata refresh failed", slog.Any("error", err))
	}

	ticker := time.NewTicker(s.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if err := s.RefreshOnce(ctx); err != nil {
			s.Logger.ErrorContext(ctx, "metadata refresh cycle failed", slog.Any("error", err))
		}
	}
}

func (s *Service) RefreshOnce(ctx context.Context) error {
	s.ensureDefaults()
	snapshot, err := s.Cache.Refresh(ctx)
	if err != nil {
		return err
	}
	s.Logger.InfoContext(ctx, "metadata snapshot refreshed",
		slog.Time("generated_at", snapshot.GeneratedAt),
		slog.String("generation_method", snapshot.GenerationMethod),
		slog.Int("partitioned_tables", snapshot.EventsTableInfo.Count),
		slog.Int("few_shot_examples", len(snapshot.FewShotExamples)),
		slog.Bool("degraded", snapshot.Degraded),
	)
	return nil
}

func (s *Service) ensureDefaults() {
	if s.RefreshInterval <= 0 {
		s.RefreshInterval = 6 * time.Hour
	}
	if s.Logger == nil {
		s.Logger = slog.New(slog.DiscardHandler)
	}
}
