// handlers_sculpt.go - Sculpt session handlers
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"

	"github.com/ies-sculpt/backend/internal/models"
	"github.com/ies-sculpt/backend/internal/session"
)

// Progress stream timings.
var (
	progressInterval = 100 * time.Millisecond
	progressTimeout  = 5 * time.Minute
)

// SculptHandlerImpl implements the SculptHandler interface
type SculptHandlerImpl struct {
	sessionMgr SessionManager
}

// NewSculptHandler creates a new sculpt handler instance
func NewSculptHandler(sessionMgr SessionManager) SculptHandler {
	return &SculptHandlerImpl{sessionMgr: sessionMgr}
}

// HandleStartSculpt starts an optimize-and-sculpt run over stored files
func (h *SculptHandlerImpl) HandleStartSculpt(c echo.Context) error {
	var req session.StartRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	if req.MatrixFileID == "" {
		return NewValidationError("matrixFileId")
	}
	if req.SceneFileID == "" {
		return NewValidationError("sceneFileId")
	}
	if len(req.ProfileFileIDs) == 0 {
		return NewValidationError("profileFileIds")
	}

	sess, err := h.sessionMgr.StartSession(req)
	if err != nil {
		return FromError("failed to start session", err)
	}

	return c.JSON(http.StatusAccepted, sess)
}

// HandleListSculpts returns every retained session, newest first
func (h *SculptHandlerImpl) HandleListSculpts(c echo.Context) error {
	return c.JSON(http.StatusOK, h.sessionMgr.ListSessions())
}

// HandleSculptStatus returns the current status of a session
func (h *SculptHandlerImpl) HandleSculptStatus(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	sess, ok := h.sessionMgr.GetSession(id)
	if !ok {
		return NewNotFoundError("session", id)
	}

	// Touch session to prevent cleanup while being viewed
	h.sessionMgr.TouchSession(id)

	return c.JSON(http.StatusOK, sess)
}

// HandleSculptProgressStream streams session progress via SSE
func (h *SculptHandlerImpl) HandleSculptProgressStream(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	// Set SSE headers
	c.Response().Header().Set("Content-Type", "text/event-stream")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	c.Response().WriteHeader(http.StatusOK)

	sess, ok := h.sessionMgr.GetSession(id)
	if !ok {
		h.sendSSEError(c, "session not found")
		return nil
	}

	h.sendSSEData(c, sess)
	if isFinished(sess) {
		return nil
	}

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	timeout := time.NewTimer(progressTimeout)
	defer timeout.Stop()

	for {
		select {
		case <-ticker.C:
			sess, ok := h.sessionMgr.GetSession(id)
			if !ok {
				h.sendSSEError(c, "session not found")
				return nil
			}

			h.sendSSEData(c, sess)

			if isFinished(sess) {
				return nil
			}

		case <-timeout.C:
			h.sendSSEError(c, "stream timeout")
			return nil

		case <-c.Request().Context().Done():
			return nil
		}
	}
}

// HandleSculptSummary returns the summary of a completed session
func (h *SculptHandlerImpl) HandleSculptSummary(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	sess, ok := h.sessionMgr.GetSession(id)
	if !ok {
		return NewNotFoundError("session", id)
	}

	summary, ok := h.sessionMgr.GetSummary(id)
	if !ok {
		return NewConflictError(fmt.Sprintf("session %s is %s", id, sess.Status))
	}

	h.sessionMgr.TouchSession(id)
	return respond(c, http.StatusOK, summary)
}

// HandleSculptKeepAlive extends session lifetime for active viewing
func (h *SculptHandlerImpl) HandleSculptKeepAlive(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	if !h.sessionMgr.TouchSession(id) {
		return NewNotFoundError("session", id)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// HandleCancelSculpt stops a running session
func (h *SculptHandlerImpl) HandleCancelSculpt(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	if !h.sessionMgr.CancelSession(id) {
		return NewNotFoundError("session", id)
	}

	return c.NoContent(http.StatusAccepted)
}

func (h *SculptHandlerImpl) sendSSEData(c echo.Context, data interface{}) {
	jsonData, _ := json.Marshal(data)
	fmt.Fprintf(c.Response(), "data: %s\n\n", jsonData)
	c.Response().Flush()
}

func (h *SculptHandlerImpl) sendSSEError(c echo.Context, message string) {
	h.sendSSEData(c, map[string]string{"error": message})
}

func isFinished(sess *models.SculptSession) bool {
	return sess.Status == models.SessionStatusComplete ||
		sess.Status == models.SessionStatusError
}
