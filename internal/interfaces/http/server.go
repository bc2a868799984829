package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter builds the gin engine with all routes and middleware
func NewRouter(handlers *Handlers, logger *zap.Logger, debug bool) *gin.Engine {
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(logger))
	router.Use(corsMiddleware())

	router.GET("/health", handlers.HealthCheck)

	workflows := router.Group("/workflows")
	{
		workflows.POST("/documents/:documentId/workflow", handlers.CreateWorkflow)
		workflows.GET("/documents/:documentId/workflow", handlers.GetWorkflow)
		workflows.POST("/documents/:documentId/workflow/transition", handlers.TransitionState)
		workflows.POST("/documents/:documentId/workflow/approve", handlers.SubmitApproval)
		workflows.GET("/approvals/pending", handlers.ListPendingApprovals)
	}

	audit := router.Group("/audit")
	{
		audit.GET("/logs", handlers.GetAuditLogs)
		audit.GET("/documents/:documentId/timeline", handlers.GetDocumentTimeline)
		audit.GET("/documents/:documentId/verify", handlers.VerifyIntegrity)
		audit.GET("/export", handlers.ExportAuditLogs)
	}

	return router
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-User-ID")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
