// Package router wires HTTP routes to their handlers and middleware.
package router

import (
	"github.com/LedgerLens/ledgerlens-backend/config"
	"github.com/LedgerLens/ledgerlens-backend/handlers"
	"github.com/LedgerLens/ledgerlens-backend/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies holds the handlers and configuration the router needs.
type Dependencies struct {
	Config          *config.Config
	DocumentHandler *handlers.DocumentHandler
	HealthHandler   *handlers.HealthHandler
}

// SetupRouter builds the gin engine with middleware and all routes.
func SetupRouter(deps Dependencies) *gin.Engine {
	if deps.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.CORSMiddleware(&deps.Config.Server))
	r.Use(middleware.ErrorHandler())

	// Health and operational endpoints
	r.GET("/health", deps.HealthHandler.ReadinessCheck)
	r.GET("/health/liveness", deps.HealthHandler.LivenessCheck)
	r.GET("/health/readiness", deps.HealthHandler.ReadinessCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	{
		documents := v1.Group("/documents")
		{
			documents.POST("", deps.DocumentHandler.UploadDocumentHandler)
			documents.GET("", deps.DocumentHandler.ListDocumentsHandler)
			documents.GET("/:id", deps.DocumentHandler.GetDocumentHandler)
			documents.DELETE("/:id", deps.DocumentHandler.DeleteDocumentHandler)
			documents.POST("/:id/retry", deps.DocumentHandler.RetryDocumentHandler)
			documents.POST("/:id/cancel", deps.DocumentHandler.CancelDocumentHandler)
			documents.GET("/:id/result", deps.DocumentHandler.GetDocumentResultHandler)
		}
	}

	return r
}
