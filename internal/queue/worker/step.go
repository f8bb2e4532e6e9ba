package worker

import (
	"context"
	"errors"
	"time"

	"github.com/evanio/evanio/internal/domain/job"
	"github.com/evanio/evanio/internal/jobs"
	"github.com/evanio/evanio/internal/notifications"
	"github.com/evanio/evanio/internal/repo/postgres"
)

func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	claimCtx, cancel := context.WithTimeout(ctx, 2*time.Second)

	j, err := w.repo.ClaimNext(claimCtx, w.cfg.WorkerID)
	cancel()

	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			return false, nil
		}

		return false, err
	}

	w.metrics.IncClaimed()

	if w.prom != nil {
		w.prom.JobsInFlight.Inc()
		defer w.prom.JobsInFlight.Dec()
	}

	start := time.Now()

	err = w.execute(ctx, j)

	if err != nil {
		w.handleFailure(ctx, j, err)
		w.observeResult(j.Type, resultFor(j, err), time.Since(start))
		return true, nil
	}

	err = w.repo.MarkDone(ctx, j.ID)

	if err != nil {
		_ = w.repo.MarkFailed(ctx, j.ID, "mark_done_failed: "+err.Error())
		return true, err
	}

	w.metrics.IncDone()
	w.metrics.ObserveDuration(time.Since(start))
	w.observeResult(j.Type, "done", time.Since(start))

	return true, nil
}

func (w *Worker) execute(ctx context.Context, j job.Job) error {
	decoded, err := jobs.DecodePayload(jobs.JobType(j.Type), j.Payload)

	if err != nil {
		return err
	}

	switch p := decoded.(type) {
	case jobs.WelcomeEmailPayload:
		return w.notifier.SendWelcomeEmail(ctx, notifications.WelcomeEmailInput{
			Email: p.Email,
			Name:  p.Name,
		})

	case jobs.EmailSequencePayload:
		return w.notifier.StartEmailSequence(ctx, notifications.EmailSequenceInput{
			UserID:   p.UserID,
			Sequence: p.Sequence,
		})

	case jobs.ReferralAttributionPayload:
		return w.referrals.Attribute(ctx, p.UserID, p.Email, p.ReferralCode)

	default:
		return jobs.ErrInvalidJobType
	}
}

// isPermanent marks failures a retry can never fix.
func isPermanent(err error) bool {
	return errors.Is(err, jobs.ErrInvalidJobType) ||
		errors.Is(err, jobs.ErrInvalidJobPayload) ||
		errors.Is(err, postgres.ErrReferralCodeNotFound)
}

func (w *Worker) handleFailure(ctx context.Context, j job.Job, execErr error) {
	msg := execErr.Error()

	if isPermanent(execErr) || j.Attempts+1 >= j.MaxAttempts {
		if markErr := w.repo.MarkFailed(ctx, j.ID, msg); markErr != nil {
			w.log.Error("mark failed error", "job_id", j.ID, "err", markErr)
		}

		w.metrics.IncFailed()
		w.metrics.IncDeadLettered()
		w.log.Error("job dead-lettered", "job_id", j.ID, "type", j.Type, "attempts", j.Attempts+1, "err", msg)
		return
	}

	runAt := time.Now().UTC().Add(ExponentialBackoff(j.Attempts))

	if reErr := w.repo.Reschedule(ctx, j.ID, runAt, msg); reErr != nil {
		w.log.Error("reschedule error", "job_id", j.ID, "err", reErr)
		return
	}

	w.metrics.IncRetried()
	w.log.Warn("job retry scheduled", "job_id", j.ID, "type", j.Type, "attempt", j.Attempts+1, "run_at", runAt, "err", msg)
}

func resultFor(j job.Job, err error) string {
	if isPermanent(err) || j.Attempts+1 >= j.MaxAttempts {
		return "failed"
	}
	return "retry"
}

func (w *Worker) observeResult(jobType, result string, d time.Duration) {
	if w.prom == nil {
		return
	}

	w.prom.JobResults.WithLabelValues(jobType, result).Inc()
	w.prom.JobDuration.WithLabelValues(jobType, result).Observe(d.Seconds())
}
