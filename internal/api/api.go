// Package api wires the reconciliation workflow onto HTTP.
package api

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/planora/forecast-recon/internal/api/handlers"
	"github.com/planora/forecast-recon/internal/api/middleware"
	"github.com/planora/forecast-recon/internal/service"
)

func NewRouter(reconService *service.ReconService, uploadDir string, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	// Add middleware
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())

	defaultOrigins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	corsConfig := cors.Config{
		AllowOrigins:     defaultOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(allowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalizedOrigins) > 0 {
			corsConfig.AllowOrigins = normalizedOrigins
		}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	sessionHandler := handlers.NewSessionHandler(reconService, uploadDir)
	apiGroup := router.Group("/api/v1")
	{
		sessions := apiGroup.Group("/sessions")
		sessions.POST("/upload", sessionHandler.Upload)
		sessions.POST("/:id/pivot", sessionHandler.GeneratePivot)
		sessions.GET("/:id/pivot", sessionHandler.DownloadPivot)
		sessions.POST("/:id/pivot/upload", sessionHandler.UploadEditedPivot)
		sessions.GET("/:id/output", sessionHandler.DownloadOutput)
		sessions.GET("/:id/diagnostics", sessionHandler.GetDiagnostics)
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		parts := strings.Split(origin, ",")
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
