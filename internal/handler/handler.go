package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/waveframe/internal/errs"
	"github.com/waveframe/internal/queue"
	"github.com/waveframe/internal/validator"
	"github.com/waveframe/internal/version"
	"github.com/waveframe/pkg/logger"
)

// Handler handles HTTP requests.
type Handler struct {
	controller *queue.Controller
	validator  *validator.Validator
}

// New creates a new Handler.
func New(c *queue.Controller, v *validator.Validator) *Handler {
	return &Handler{
		controller: c,
		validator:  v,
	}
}

// RegisterRoutes registers all API routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")
	{
		api.GET("/health", h.Health)
		api.GET("/version", h.Version)

		// Drop endpoint for the GUI's drag & drop surface
		api.POST("/drop", h.Drop)

		// Queue control
		api.POST("/start", h.Start)
		api.POST("/jobs/:id/cancel", h.CancelJob)
		api.POST("/cancel", h.CancelAll)

		// State inspection
		api.GET("/state", h.State)
		api.GET("/jobs", h.Jobs)
		api.GET("/jobs/:id", h.GetJob)
		api.GET("/stats", h.Stats)
		api.GET("/events", h.Events)

		api.DELETE("/completed", h.ClearCompleted)
	}
}

// Health returns service health status.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Version returns service version.
func (h *Handler) Version(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": version.Version})
}

// DropRequest is the request body for a batch of dropped file paths.
type DropRequest struct {
	Paths []string `json:"paths"`
}

// DropResult is the per-path outcome of a drop.
type DropResult struct {
	Path            string `json:"path"`
	Accepted        bool   `json:"accepted"`
	JobID           string `json:"job_id,omitempty"`
	ErrorCode       string `json:"error_code,omitempty"`
	ErrorMessage    string `json:"error_message,omitempty"`
	SuggestedAction string `json:"suggested_action,omitempty"`
}

// Drop validates a batch of dropped paths and queues a job per valid audio
// file. Each path is judged independently: one bad file never blocks the
// rest of the drop. An empty list is a no-op.
func (h *Handler) Drop(c *gin.Context) {
	var req DropRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	logger.Infof("📥 Drop received: %d path(s)", len(req.Paths))

	results := make([]DropResult, 0, len(req.Paths))
	queued := 0
	for _, path := range req.Paths {
		res := h.validator.Validate(c.Request.Context(), path)
		if !res.IsValid {
			results = append(results, DropResult{
				Path:            path,
				ErrorCode:       string(res.Err.Code),
				ErrorMessage:    res.Err.Message,
				SuggestedAction: res.Err.Action(),
			})
			continue
		}

		id, err := h.controller.Enqueue(res.Audio)
		if err != nil {
			code := errs.CodeOf(err)
			results = append(results, DropResult{
				Path:            path,
				ErrorCode:       string(code),
				ErrorMessage:    err.Error(),
				SuggestedAction: errs.ActionFor(code),
			})
			continue
		}

		queued++
		results = append(results, DropResult{Path: path, Accepted: true, JobID: id})
	}

	c.JSON(http.StatusOK, gin.H{
		"queued":  queued,
		"results": results,
	})
}

// Start begins draining the queue.
func (h *Handler) Start(c *gin.Context) {
	h.controller.Start()
	c.JSON(http.StatusAccepted, gin.H{"message": "conversion started"})
}

// CancelJob cancels a single job by id.
func (h *Handler) CancelJob(c *gin.Context) {
	id := c.Param("id")

	err := h.controller.Cancel(id)
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"message": "cancellation requested", "job_id": id})
	case errors.Is(err, queue.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
	case errors.Is(err, queue.ErrJobFinished):
		c.JSON(http.StatusConflict, gin.H{"error": "job already finished"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// CancelAll cancels every queued and processing job.
func (h *Handler) CancelAll(c *gin.Context) {
	h.controller.CancelAll()
	c.JSON(http.StatusAccepted, gin.H{"message": "cancelling all jobs"})
}

// State returns the full application state snapshot.
func (h *Handler) State(c *gin.Context) {
	c.JSON(http.StatusOK, h.controller.Snapshot())
}

// Jobs returns the active and completed job lists.
func (h *Handler) Jobs(c *gin.Context) {
	snap := h.controller.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"active":    snap.Active,
		"completed": snap.Completed,
	})
}

// GetJob returns one job by id.
func (h *Handler) GetJob(c *gin.Context) {
	view, ok := h.controller.Job(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, view)
}

// Stats returns queue counters by status.
func (h *Handler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.controller.Snapshot().Stats)
}

// Events returns the event feed after the given sequence number, for
// incremental progress polling.
func (h *Handler) Events(c *gin.Context) {
	since, err := strconv.ParseInt(c.DefaultQuery("since", "0"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "since must be an integer"})
		return
	}

	events := h.controller.Bus().Since(since)
	latest := since
	if n := len(events); n > 0 {
		latest = events[n-1].Seq
	}
	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"latest": latest,
	})
}

// ClearCompleted empties the completed job history.
func (h *Handler) ClearCompleted(c *gin.Context) {
	h.controller.ClearCompleted()
	c.JSON(http.StatusOK, gin.H{"message": "completed jobs cleared"})
}
