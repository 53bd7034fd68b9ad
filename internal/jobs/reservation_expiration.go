package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/c010r/backyardbarpass/internal/logger"
)

// Expirer releases holds whose time ran out
type Expirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// ReservationExpirationJob periodically expires pending reservations past their hold deadline
type ReservationExpirationJob struct {
	expirer  Expirer
	interval time.Duration
	ticker   *time.Ticker
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewReservationExpirationJob(expirer Expirer, interval time.Duration) *ReservationExpirationJob {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ReservationExpirationJob{
		expirer:  expirer,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start runs one sweep immediately and then one per interval. Sweeps never overlap.
func (j *ReservationExpirationJob) Start(ctx context.Context) {
	slog.Info("Starting reservation expiration job", "check_interval", j.interval.String())

	j.ticker = time.NewTicker(j.interval)

	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.RunOnce(ctx)
		for {
			select {
			case <-j.ticker.C:
				j.RunOnce(ctx)
			case <-ctx.Done():
				slog.Info("Reservation expiration job stopped", "reason", ctx.Err())
				return
			case <-j.done:
				slog.Info("Reservation expiration job stopped")
				return
			}
		}
	}()
}

// Stop halts the ticker and waits for an in-flight sweep to finish
func (j *ReservationExpirationJob) Stop() {
	j.stopOnce.Do(func() {
		if j.ticker != nil {
			j.ticker.Stop()
		}
		close(j.done)
	})
	j.wg.Wait()
}

// RunOnce performs a single sweep and returns the number of expired reservations
func (j *ReservationExpirationJob) RunOnce(ctx context.Context) int {
	log := logger.WithFields("job", "reservation_expiration")
	start := time.Now()
	expired, err := j.expirer.ExpireStale(ctx)
	if err != nil {
		log.Error("Failed to expire reservations", "error", err, "expired_before_error", expired)
		return expired
	}

	if expired == 0 {
		log.Debug("No expired reservations found")
		return 0
	}

	log.Info("Expired stale reservations", "count", expired, "elapsed", time.Since(start).String())
	return expired
}
