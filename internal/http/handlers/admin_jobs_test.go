package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"testing"

	"github.com/evanio/evanio/internal/domain/job"
	"github.com/evanio/evanio/internal/repo/postgres"
	"github.com/gin-gonic/gin"
)

type fakeJobsAdmin struct {
	jobs     []job.Job
	retryErr error
	retried  []string
}

func (f *fakeJobsAdmin) List(_ context.Context, status *string, limit int) ([]job.Job, error) {
	out := make([]job.Job, 0, len(f.jobs))
	for _, j := range f.jobs {
		if status != nil && string(j.Status) != *status {
			continue
		}
		out = append(out, j)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeJobsAdmin) Retry(_ context.Context, id string) error {
	if f.retryErr != nil {
		return f.retryErr
	}
	f.retried = append(f.retried, id)
	return nil
}

func newAdminJobsRouter(t *testing.T, store *fakeJobsAdmin) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := NewAdminJobsHandler(store, slog.New(slog.NewTextHandler(testWriter{t}, nil)))

	r := gin.New()
	r.GET("/admin/jobs", h.List)
	r.POST("/admin/jobs/:id/retry", h.Retry)
	return r
}

func TestAdminListJobsFiltersByStatus(t *testing.T) {
	store := &fakeJobsAdmin{jobs: []job.Job{
		{ID: "a", Status: job.StatusFailed},
		{ID: "b", Status: job.StatusDone},
		{ID: "c", Status: job.StatusFailed},
	}}
	r := newAdminJobsRouter(t, store)

	w, body := doJSON(t, r, http.MethodGet, "/admin/jobs?status=failed", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if count, _ := body["count"].(float64); count != 2 {
		t.Errorf("count = %v, want 2", body["count"])
	}
}

func TestAdminListJobsRejectsBadParams(t *testing.T) {
	r := newAdminJobsRouter(t, &fakeJobsAdmin{})

	w, body := doJSON(t, r, http.MethodGet, "/admin/jobs?status=bogus", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad status: code = %d, want 400", w.Code)
	}
	if code := errorCode(t, body); code != "invalid_status" {
		t.Errorf("error code = %q, want invalid_status", code)
	}

	w2, body2 := doJSON(t, r, http.MethodGet, "/admin/jobs?limit=0", nil)
	if w2.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: code = %d, want 400", w2.Code)
	}
	if code := errorCode(t, body2); code != "invalid_limit" {
		t.Errorf("error code = %q, want invalid_limit", code)
	}
}

func TestAdminRetryJob(t *testing.T) {
	store := &fakeJobsAdmin{}
	r := newAdminJobsRouter(t, store)

	w, body := doJSON(t, r, http.MethodPost, "/admin/jobs/j-1/retry", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if body["status"] != string(job.StatusPending) {
		t.Errorf("status = %v, want pending", body["status"])
	}
	if len(store.retried) != 1 || store.retried[0] != "j-1" {
		t.Errorf("retried = %v, want [j-1]", store.retried)
	}
}

func TestAdminRetryJobErrors(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		wantHTTP int
	}{
		{"unknown job", job.ErrJobNotFound, http.StatusNotFound},
		{"not in failed state", postgres.ErrJobNotFailed, http.StatusConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newAdminJobsRouter(t, &fakeJobsAdmin{retryErr: tc.err})

			w, _ := doJSON(t, r, http.MethodPost, "/admin/jobs/j-9/retry", nil)

			if w.Code != tc.wantHTTP {
				t.Fatalf("status = %d, want %d", w.Code, tc.wantHTTP)
			}
		})
	}
}
