package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/evanio/evanio/internal/config"
	"github.com/evanio/evanio/internal/domain/job"
	"github.com/evanio/evanio/internal/repo/postgres"
	"github.com/gin-gonic/gin"
)

type JobsAdminStore interface {
	List(ctx context.Context, status *string, limit int) ([]job.Job, error)
	Retry(ctx context.Context, id string) error
}

// AdminJobsHandler exposes the background queue to operators: list
// recent jobs and push a failed one back to pending.
type AdminJobsHandler struct {
	jobs JobsAdminStore
	log  *slog.Logger
}

func NewAdminJobsHandler(jobs JobsAdminStore, log *slog.Logger) *AdminJobsHandler {
	return &AdminJobsHandler{jobs: jobs, log: log}
}

func (h *AdminJobsHandler) List(ctx *gin.Context) {
	var status *string

	if s := ctx.Query("status"); s != "" {
		switch job.Status(s) {
		case job.StatusPending, job.StatusProcessing, job.StatusDone, job.StatusFailed:
			status = &s
		default:
			RespondBadRequest(ctx, "invalid_status", "Unknown job status", nil)
			return
		}
	}

	limit := 50

	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)

		if err != nil || n < 1 || n > 500 {
			RespondBadRequest(ctx, "invalid_limit", "limit must be between 1 and 500", nil)
			return
		}

		limit = n
	}

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	items, err := h.jobs.List(cctx, status, limit)

	if err != nil {
		h.log.Error("job list failed", "err", err)
		RespondInternal(ctx, "Could not list jobs")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (h *AdminJobsHandler) Retry(ctx *gin.Context) {
	id := ctx.Param("id")

	cctx, cancel := config.WithTimeout(3 * time.Second)
	defer cancel()

	if err := h.jobs.Retry(cctx, id); err != nil {
		switch {
		case errors.Is(err, job.ErrJobNotFound):
			RespondNotFound(ctx, "Job not found")
		case errors.Is(err, postgres.ErrJobNotFailed):
			RespondConflict(ctx, "job_not_failed", "Only failed jobs can be retried")
		default:
			h.log.Error("job retry failed", "job_id", id, "err", err)
			RespondInternal(ctx, "Could not retry job")
		}
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"id": id, "status": job.StatusPending})
}
