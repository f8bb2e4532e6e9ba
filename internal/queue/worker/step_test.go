package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/evanio/evanio/internal/domain/job"
	"github.com/evanio/evanio/internal/jobs"
	"github.com/evanio/evanio/internal/notifications"
)

type fakeJobsRepo struct {
	claimFn      func(ctx context.Context, workerID string) (job.Job, error)
	doneIDs      []string
	failed       map[string]string
	rescheduled  map[string]time.Time
	requeueCount int64
}

func newFakeJobsRepo() *fakeJobsRepo {
	return &fakeJobsRepo{
		failed:      make(map[string]string),
		rescheduled: make(map[string]time.Time),
	}
}

func (f *fakeJobsRepo) ClaimNext(ctx context.Context, workerID string) (job.Job, error) {
	if f.claimFn != nil {
		return f.claimFn(ctx, workerID)
	}
	return job.Job{}, job.ErrJobNotFound
}

func (f *fakeJobsRepo) MarkDone(ctx context.Context, id string) error {
	f.doneIDs = append(f.doneIDs, id)
	return nil
}

func (f *fakeJobsRepo) MarkFailed(ctx context.Context, id string, errMsg string) error {
	f.failed[id] = errMsg
	return nil
}

func (f *fakeJobsRepo) Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error {
	f.rescheduled[id] = runAt
	return nil
}

func (f *fakeJobsRepo) RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error) {
	return f.requeueCount, nil
}

type fakeNotifier struct {
	welcomeErr  error
	welcomeSent []notifications.WelcomeEmailInput
	sequences   []notifications.EmailSequenceInput
}

func (f *fakeNotifier) SendWelcomeEmail(ctx context.Context, in notifications.WelcomeEmailInput) error {
	if f.welcomeErr != nil {
		return f.welcomeErr
	}
	f.welcomeSent = append(f.welcomeSent, in)
	return nil
}

func (f *fakeNotifier) StartEmailSequence(ctx context.Context, in notifications.EmailSequenceInput) error {
	f.sequences = append(f.sequences, in)
	return nil
}

type fakeReferrals struct {
	err   error
	calls int
}

func (f *fakeReferrals) Attribute(ctx context.Context, referredUserID, referredEmail, code string) error {
	f.calls++
	return f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func welcomeJob(t *testing.T, attempts, maxAttempts int) job.Job {
	t.Helper()

	raw, err := jobs.EncodePayload(jobs.JobWelcomeEmail, jobs.WelcomeEmailPayload{
		UserID: "u1",
		Email:  "a@x.com",
		Name:   "A",
	})
	if err != nil {
		t.Fatalf("EncodePayload error: %v", err)
	}

	j := job.New(job.CreateRequest{
		Type:        string(jobs.JobWelcomeEmail),
		Payload:     raw,
		MaxAttempts: maxAttempts,
	})
	j.Attempts = attempts

	return j
}

func newTestWorker(repo *fakeJobsRepo, n notifications.Notifier, r ReferralAttributor) *Worker {
	return New(Config{WorkerID: "test-worker"}, repo, n, r, testLogger(), nil)
}

func TestProcessOne_Success(t *testing.T) {
	repo := newFakeJobsRepo()
	j := welcomeJob(t, 0, 5)

	claimed := false
	repo.claimFn = func(ctx context.Context, workerID string) (job.Job, error) {
		if claimed {
			return job.Job{}, job.ErrJobNotFound
		}
		claimed = true
		return j, nil
	}

	notifier := &fakeNotifier{}
	w := newTestWorker(repo, notifier, &fakeReferrals{})

	processed, err := w.ProcessOne(context.Background())
	if err != nil {
		t.Fatalf("ProcessOne error: %v", err)
	}
	if !processed {
		t.Fatalf("expected a job to be processed")
	}

	if len(notifier.welcomeSent) != 1 || notifier.welcomeSent[0].Email != "a@x.com" {
		t.Fatalf("expected one welcome email, got %+v", notifier.welcomeSent)
	}

	if len(repo.doneIDs) != 1 || repo.doneIDs[0] != j.ID {
		t.Fatalf("expected job marked done, got %v", repo.doneIDs)
	}
}

func TestProcessOne_EmptyQueue(t *testing.T) {
	w := newTestWorker(newFakeJobsRepo(), &fakeNotifier{}, &fakeReferrals{})

	processed, err := w.ProcessOne(context.Background())
	if err != nil {
		t.Fatalf("ProcessOne error: %v", err)
	}
	if processed {
		t.Fatalf("expected no job to be processed")
	}
}

func TestProcessOne_FailureReschedulesWithBackoff(t *testing.T) {
	repo := newFakeJobsRepo()
	j := welcomeJob(t, 0, 5)

	repo.claimFn = func(ctx context.Context, workerID string) (job.Job, error) {
		return j, nil
	}

	notifier := &fakeNotifier{welcomeErr: errors.New("provider down")}
	w := newTestWorker(repo, notifier, &fakeReferrals{})

	processed, err := w.ProcessOne(context.Background())
	if err != nil {
		t.Fatalf("ProcessOne error: %v", err)
	}
	if !processed {
		t.Fatalf("expected claim to count as processed")
	}

	runAt, ok := repo.rescheduled[j.ID]
	if !ok {
		t.Fatalf("expected job to be rescheduled")
	}
	if !runAt.After(time.Now().UTC()) {
		t.Fatalf("expected backoff in the future, got %v", runAt)
	}
	if len(repo.failed) != 0 {
		t.Fatalf("first failure must not dead-letter")
	}
}

func TestProcessOne_ExhaustedAttemptsDeadLetters(t *testing.T) {
	repo := newFakeJobsRepo()
	j := welcomeJob(t, 4, 5) // next failure is the last allowed attempt

	repo.claimFn = func(ctx context.Context, workerID string) (job.Job, error) {
		return j, nil
	}

	notifier := &fakeNotifier{welcomeErr: errors.New("provider down")}
	w := newTestWorker(repo, notifier, &fakeReferrals{})

	if _, err := w.ProcessOne(context.Background()); err != nil {
		t.Fatalf("ProcessOne error: %v", err)
	}

	if _, ok := repo.failed[j.ID]; !ok {
		t.Fatalf("expected job to be dead-lettered")
	}
	if len(repo.rescheduled) != 0 {
		t.Fatalf("dead-lettered job must not also be rescheduled")
	}
}

func TestProcessOne_MalformedPayloadIsPermanent(t *testing.T) {
	repo := newFakeJobsRepo()

	j := job.New(job.CreateRequest{
		Type:        string(jobs.JobWelcomeEmail),
		Payload:     []byte(`{bad json`),
		MaxAttempts: 5,
	})

	repo.claimFn = func(ctx context.Context, workerID string) (job.Job, error) {
		return j, nil
	}

	w := newTestWorker(repo, &fakeNotifier{}, &fakeReferrals{})

	if _, err := w.ProcessOne(context.Background()); err != nil {
		t.Fatalf("ProcessOne error: %v", err)
	}

	if _, ok := repo.failed[j.ID]; !ok {
		t.Fatalf("expected malformed payload to dead-letter immediately")
	}
}
