package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rowan/commitdeck/internal/jobs"
)

// JobsHandler exposes the queue control surface to polling clients.
type JobsHandler struct {
	queue *jobs.Queue
}

// NewJobsHandler creates a new jobs handler.
// Parameters:
//   - queue: job queue to expose.
// Returns:
//   - *JobsHandler: initialized handler.
func NewJobsHandler(queue *jobs.Queue) *JobsHandler {
	return &JobsHandler{queue: queue}
}

// FetchRequest is the batch-fetch enqueue request body.
type FetchRequest struct {
	Repositories     []string   `json:"repositories"`
	AuthorAllowList  []string   `json:"authorAllowList"`
	EmailAllowList   []string   `json:"emailAllowList"`
	Since            *time.Time `json:"since"`
	PerRepoDetailCap int        `json:"perRepoDetailCap"`
	Annotate         *bool      `json:"annotate"`
}

// EnqueueFetch admits a batch commit fetch job and returns its id immediately.
func (h *JobsHandler) EnqueueFetch(c *gin.Context) {
	var req FetchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := h.queue.Enqueue(jobs.FetchCommitsPayload{
		Repositories:     req.Repositories,
		AuthorAllowList:  req.AuthorAllowList,
		EmailAllowList:   req.EmailAllowList,
		Since:            req.Since,
		PerRepoDetailCap: req.PerRepoDetailCap,
		Annotate:         req.Annotate,
	})

	c.JSON(http.StatusAccepted, gin.H{"jobId": id})
}

// EnqueueCollection admits a full collection run.
func (h *JobsHandler) EnqueueCollection(c *gin.Context) {
	id := h.queue.Enqueue(jobs.FullCollectionPayload{})
	c.JSON(http.StatusAccepted, gin.H{"jobId": id})
}

// GetJob returns one job by id, or 404 when unknown or already swept.
func (h *JobsHandler) GetJob(c *gin.Context) {
	job, ok := h.queue.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// ListJobs returns all jobs in any state.
func (h *JobsHandler) ListJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": h.queue.List()})
}

// Stats returns counts by job status.
func (h *JobsHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.queue.Stats())
}
