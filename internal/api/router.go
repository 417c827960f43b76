package api

import (
	"github.com/gin-gonic/gin"
	"github.com/rowan/commitdeck/internal/api/handler"
	"github.com/rowan/commitdeck/internal/api/middleware"
	"github.com/rowan/commitdeck/internal/jobs"
	"github.com/rowan/commitdeck/internal/repository"
)

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	queue *jobs.Queue,
	commitRepo *repository.CommitRepository,
	mode string,
	cors middleware.CORSConfig,
) *gin.Engine {
	// Set Gin mode
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(cors))

	// Create handlers
	healthHandler := handler.NewHealthHandler()
	jobsHandler := handler.NewJobsHandler(queue)
	commitsHandler := handler.NewCommitsHandler(commitRepo)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Background jobs
		v1.POST("/jobs/fetch", jobsHandler.EnqueueFetch)
		v1.POST("/jobs/collect", jobsHandler.EnqueueCollection)
		v1.GET("/jobs", jobsHandler.ListJobs)
		v1.GET("/jobs/stats", jobsHandler.Stats)
		v1.GET("/jobs/:id", jobsHandler.GetJob)

		// Commits (dashboard polling reads)
		v1.GET("/commits", commitsHandler.ListCommits)
		v1.GET("/commits/stats", commitsHandler.Stats)
	}

	return r
}
