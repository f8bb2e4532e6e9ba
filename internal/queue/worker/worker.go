package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/evanio/evanio/internal/domain/job"
	"github.com/evanio/evanio/internal/notifications"
	"github.com/evanio/evanio/internal/observability"
)

type JobsRepository interface {
	ClaimNext(ctx context.Context, workerID string) (job.Job, error)
	MarkDone(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error
	RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error)
}

type ReferralAttributor interface {
	Attribute(ctx context.Context, referredUserID, referredEmail, code string) error
}

type Config struct {
	PollInterval  time.Duration
	WorkerID      string
	Concurrency   int
	LockTTL       time.Duration
	ShutdownGrace time.Duration
}

type Worker struct {
	cfg       Config
	repo      JobsRepository
	notifier  notifications.Notifier
	referrals ReferralAttributor
	log       *slog.Logger
	metrics   *observability.JobMetrics
	prom      *observability.Prom

	readyMu sync.RWMutex
	ready   bool
}

func New(cfg Config, repo JobsRepository, notifier notifications.Notifier, referrals ReferralAttributor, log *slog.Logger, prom *observability.Prom) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}

	return &Worker{
		cfg:       cfg,
		repo:      repo,
		notifier:  notifier,
		referrals: referrals,
		log:       log,
		metrics:   observability.NewJobMetrics(),
		prom:      prom,
	}
}

func (w *Worker) Metrics() *observability.JobMetrics {
	return w.metrics
}

// Run polls for jobs until ctx is cancelled. Each poller drains the
// queue on its tick, so a burst of registrations is worked off without
// waiting a full interval per job.
func (w *Worker) Run(ctx context.Context) error {
	w.setReady(true)
	defer w.setReady(false)

	var wg sync.WaitGroup

	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()
			w.pollLoop(ctx)
		}()
	}

	// one housekeeping loop per process is plenty
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.staleLoop(ctx)
	}()

	<-ctx.Done()
	w.setReady(false)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	grace := w.cfg.ShutdownGrace
	if grace <= 0 {
		grace = 10 * time.Second
	}

	select {
	case <-done:
	case <-time.After(grace):
		w.log.Error("worker shutdown grace period exceeded")
	}

	return nil
}

func (w *Worker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			for {
				processed, err := w.ProcessOne(ctx)

				if err != nil {
					w.log.Error("job processing error", "err", err)
					break
				}

				if !processed {
					break
				}
			}
		}
	}
}

func (w *Worker) staleLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.LockTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			n, err := w.repo.RequeueStaleProcessing(ctx, w.cfg.LockTTL)

			if err != nil {
				w.log.Error("stale job requeue error", "err", err)
				continue
			}

			if n > 0 {
				w.log.Warn("requeued stale jobs", "count", n)
			}
		}
	}
}

func (w *Worker) setReady(v bool) {
	w.readyMu.Lock()
	w.ready = v
	w.readyMu.Unlock()
}
