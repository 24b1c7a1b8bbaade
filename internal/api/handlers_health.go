// handlers_health.go - Health check handlers
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ies-sculpt/backend/internal/storage"
)

// HealthHandlerImpl implements the HealthHandler interface
type HealthHandlerImpl struct {
	version    string
	store      storage.Store
	sessionMgr SessionManager
	started    time.Time
}

// NewHealthHandler creates a new health handler. store and sessionMgr may be nil.
func NewHealthHandler(version string, store storage.Store, sessionMgr SessionManager) HealthHandler {
	return &HealthHandlerImpl{
		version:    version,
		store:      store,
		sessionMgr: sessionMgr,
		started:    time.Now(),
	}
}

// HandleHealth returns server health status
func (h *HealthHandlerImpl) HandleHealth(c echo.Context) error {
	if h.store != nil {
		if _, err := h.store.List("", 1); err != nil {
			return NewServiceUnavailableError("file store unavailable")
		}
	}

	sessions := 0
	if h.sessionMgr != nil {
		sessions = len(h.sessionMgr.ListSessions())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"version":  h.version,
		"sessions": sessions,
		"uptimeMs": time.Since(h.started).Milliseconds(),
	})
}
