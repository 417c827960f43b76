package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rowan/commitdeck/internal/api/middleware"
	"github.com/rowan/commitdeck/internal/repository"
)

// CommitsHandler serves the polling read surface the dashboard consumes.
type CommitsHandler struct {
	repo *repository.CommitRepository
}

// NewCommitsHandler creates a new commits handler.
// Parameters:
//   - repo: commit repository for reads.
// Returns:
//   - *CommitsHandler: initialized handler.
func NewCommitsHandler(repo *repository.CommitRepository) *CommitsHandler {
	return &CommitsHandler{repo: repo}
}

// ListCommits returns stored commits, newest first.
// Query params: repo (optional filter), limit (default 50, max 200), offset.
func (h *CommitsHandler) ListCommits(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}

	commits, err := h.repo.ListRecent(c.Request.Context(), c.Query("repo"), limit, offset)
	if err != nil {
		middleware.GetLogger(c).WithError(err).Error("Failed to list commits")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list commits"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"commits": commits,
		"limit":   limit,
		"offset":  offset,
	})
}

// Stats returns aggregate commit counts for the dashboard header.
func (h *CommitsHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	total, err := h.repo.CountAll(ctx)
	if err != nil {
		middleware.GetLogger(c).WithError(err).Error("Failed to count commits")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count commits"})
		return
	}
	annotated, err := h.repo.CountAnnotated(ctx)
	if err != nil {
		middleware.GetLogger(c).WithError(err).Error("Failed to count annotated commits")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count commits"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":     total,
		"annotated": annotated,
	})
}
