// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"github.com/labstack/echo/v4"

	"github.com/ies-sculpt/backend/internal/models"
	"github.com/ies-sculpt/backend/internal/sculpt"
	"github.com/ies-sculpt/backend/internal/session"
)

// FileHandler handles stored input and output files
type FileHandler interface {
	HandleUploadFile(c echo.Context) error
	HandleUploadBinary(c echo.Context) error
	HandleListFiles(c echo.Context) error
	HandleGetFile(c echo.Context) error
	HandleDownloadFile(c echo.Context) error
	HandleDeleteFile(c echo.Context) error
	HandleRenameFile(c echo.Context) error
}

// ProfileHandler handles photometric profile operations
type ProfileHandler interface {
	HandleInspectProfile(c echo.Context) error
	HandleScaleProfile(c echo.Context) error
	HandleCombineProfiles(c echo.Context) error
}

// SculptHandler handles sculpt run operations
type SculptHandler interface {
	HandleStartSculpt(c echo.Context) error
	HandleListSculpts(c echo.Context) error
	HandleSculptStatus(c echo.Context) error
	HandleSculptProgressStream(c echo.Context) error
	HandleSculptSummary(c echo.Context) error
	HandleSculptKeepAlive(c echo.Context) error
	HandleCancelSculpt(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// SessionManager defines the interface for sculpt session management
// This allows mocking in tests
type SessionManager interface {
	StartSession(req session.StartRequest) (*models.SculptSession, error)
	GetSession(id string) (*models.SculptSession, bool)
	GetSummary(id string) (*sculpt.Summary, bool)
	ListSessions() []*models.SculptSession
	CancelSession(id string) bool
	TouchSession(id string) bool
	InvalidateProfile(fileID string)
}

var _ SessionManager = (*session.Manager)(nil)
