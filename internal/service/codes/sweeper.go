package codes

import (
	"context"
	"time"
)

const defaultSweepInterval = time.Hour

// Sweeper periodically deletes codes whose window has elapsed
// Codes are dead after the window anyway; sweeping only keeps tables small
type Sweeper struct {
	registry *Registry
	interval time.Duration
}

func NewSweeper(registry *Registry, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Sweeper{registry: registry, interval: interval}
}

// Run sweeps on every tick until ctx is done
// Returned channel is closed when the sweeper stopped
func (s *Sweeper) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})
	s.registry.logger.Debug("Starting code sweeper", "interval", s.interval)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.registry.logger.Debug("Code sweeper stopped by context")
				return

			case <-ticker.C:
				if _, err := s.Sweep(ctx); err != nil {
					s.registry.logger.Error("Failed to sweep expired codes", "error", err)
				}
			}
		}
	}()

	return idleStopped
}

// Sweep deletes expired codes and finished attempt windows once
// Returns how many codes were removed
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	r := s.registry
	now := r.now()

	authDeleted, err := r.storage.Code().DeleteAuthCodesCreatedBefore(ctx, now.Add(-r.authCodeTTL))
	if err != nil {
		return 0, err
	}

	roleDeleted, err := r.storage.Code().DeleteRoleCodesCreatedBefore(ctx, now.Add(-r.roleCodeTTL))
	if err != nil {
		return authDeleted, err
	}

	attemptsDeleted, err := r.storage.Code().DeleteCodeAttemptsBefore(ctx, now.Add(-r.attemptWindow))
	if err != nil {
		return authDeleted + roleDeleted, err
	}

	if total := authDeleted + roleDeleted + attemptsDeleted; total > 0 {
		r.logger.Info("Expired codes deleted", "auth_codes", authDeleted, "role_codes", roleDeleted, "attempt_windows", attemptsDeleted)
	}

	return authDeleted + roleDeleted, nil
}
