// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ies-sculpt/backend/internal/parser"
	"github.com/ies-sculpt/backend/internal/storage"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store      storage.Store
	SessionMgr SessionManager
	Registry   *parser.Registry
	Version    string

	// AllowFileDeletion enables DELETE /api/files/:id.
	AllowFileDeletion bool
}

// Handlers holds all handler instances
type Handlers struct {
	Health   HealthHandler
	Files    FileHandler
	Profiles ProfileHandler
	Sculpt   SculptHandler

	allowFileDeletion bool
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:            NewHealthHandler(deps.Version, deps.Store, deps.SessionMgr),
		Files:             NewFileHandler(deps.Store, deps.SessionMgr, deps.Registry),
		Profiles:          NewProfileHandler(deps.Store),
		Sculpt:            NewSculptHandler(deps.SessionMgr),
		allowFileDeletion: deps.AllowFileDeletion,
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Health check
	e.GET("/health", handlers.Health.HandleHealth)

	// Stored file routes
	fileGroup := e.Group("/api/files")
	fileGroup.POST("/upload", handlers.Files.HandleUploadFile)
	fileGroup.POST("/upload/binary", handlers.Files.HandleUploadBinary)
	fileGroup.GET("", handlers.Files.HandleListFiles)
	fileGroup.GET("/:id", handlers.Files.HandleGetFile)
	fileGroup.GET("/:id/download", handlers.Files.HandleDownloadFile)
	fileGroup.PUT("/:id", handlers.Files.HandleRenameFile)
	if handlers.allowFileDeletion {
		fileGroup.DELETE("/:id", handlers.Files.HandleDeleteFile)
	}

	// Profile routes
	profileGroup := e.Group("/api/profiles")
	profileGroup.POST("/combine", handlers.Profiles.HandleCombineProfiles)
	profileGroup.GET("/:id", handlers.Profiles.HandleInspectProfile)
	profileGroup.POST("/:id/scale", handlers.Profiles.HandleScaleProfile)

	// Sculpt session routes
	sculptGroup := e.Group("/api/sculpt")
	sculptGroup.POST("", handlers.Sculpt.HandleStartSculpt)
	sculptGroup.GET("", handlers.Sculpt.HandleListSculpts)
	sculptGroup.GET("/:sessionId/status", handlers.Sculpt.HandleSculptStatus)
	sculptGroup.GET("/:sessionId/progress", handlers.Sculpt.HandleSculptProgressStream)
	sculptGroup.GET("/:sessionId/summary", handlers.Sculpt.HandleSculptSummary)
	sculptGroup.POST("/:sessionId/keepalive", handlers.Sculpt.HandleSculptKeepAlive)
	sculptGroup.DELETE("/:sessionId", handlers.Sculpt.HandleCancelSculpt)
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo) {
	// Use custom error handler
	e.HTTPErrorHandler = ErrorHandler

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))
}
