package emergencyaccess

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper periodically expires approved grants whose window has lapsed.
// Expiry at read time does not depend on it; the sweep keeps stored state
// and audit history converged with what readers already enforce.
type Sweeper struct {
	svc      *Service
	interval time.Duration
	logger   zerolog.Logger
}

func NewSweeper(svc *Service, interval time.Duration, logger zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		svc:      svc,
		interval: interval,
		logger:   logger.With().Str("component", "expiry-sweeper").Logger(),
	}
}

// Run blocks until ctx is cancelled. Sweep failures are logged and the
// next tick retries; a broken database round does not stop the loop.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Msg("expiry sweeper started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("expiry sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.svc.ProcessExpired(ctx); err != nil {
				s.logger.Error().Err(err).Msg("expiry sweep failed")
			}
		}
	}
}
