// handlers_files.go - Stored file handlers
package api

import (
	"encoding/base64"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ies-sculpt/backend/internal/models"
	"github.com/ies-sculpt/backend/internal/parser"
	"github.com/ies-sculpt/backend/internal/storage"
)

// Default and maximum page sizes for file listings.
const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// FileHandlerImpl implements the FileHandler interface
type FileHandlerImpl struct {
	store      storage.Store
	sessionMgr SessionManager
	registry   *parser.Registry
}

// NewFileHandler creates a new file handler instance. sessionMgr may be nil.
func NewFileHandler(store storage.Store, sessionMgr SessionManager, registry *parser.Registry) FileHandler {
	if registry == nil {
		registry = parser.GetGlobalRegistry()
	}
	return &FileHandlerImpl{
		store:      store,
		sessionMgr: sessionMgr,
		registry:   registry,
	}
}

// HandleUploadFile accepts a file as base64 JSON and saves it to storage
func (h *FileHandlerImpl) HandleUploadFile(c echo.Context) error {
	var req uploadFileRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	if err := req.validate(); err != nil {
		return err
	}

	// Decode base64 content
	decoded, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return NewBadRequestError("invalid base64 data", err)
	}

	return h.save(c, req.Name, models.FileKind(req.Kind), decoded)
}

// HandleUploadBinary accepts raw binary file upload (multipart/form-data)
func (h *FileHandlerImpl) HandleUploadBinary(c echo.Context) error {
	// Get file from form
	file, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("no file provided", err)
	}

	// Open uploaded file
	src, err := file.Open()
	if err != nil {
		return NewInternalError("failed to open uploaded file", err)
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return NewInternalError("failed to read uploaded file", err)
	}

	return h.save(c, file.Filename, models.FileKind(c.FormValue("kind")), data)
}

// save stores data under kind, detecting the kind from content when empty.
func (h *FileHandlerImpl) save(c echo.Context, name string, kind models.FileKind, data []byte) error {
	if kind == "" {
		detected, err := h.detectKind(name, data)
		if err != nil {
			return NewInternalError("failed to detect file kind", err)
		}
		kind = detected
	} else if !validKind(kind) {
		return NewValidationError("kind")
	}

	info, err := h.store.SaveBytes(name, kind, data)
	if err != nil {
		return NewInternalError("failed to save file", err)
	}

	return c.JSON(http.StatusCreated, info)
}

// detectKind runs the parser registry over a scratch copy of data. The
// registry sniffs files by path, so the upload is staged on disk first.
func (h *FileHandlerImpl) detectKind(name string, data []byte) (models.FileKind, error) {
	dir, err := os.MkdirTemp("", "sculpt-upload-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "upload"+filepath.Ext(name))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return h.registry.DetectKind(path), nil
}

// HandleListFiles returns recently stored files, optionally filtered by kind
func (h *FileHandlerImpl) HandleListFiles(c echo.Context) error {
	kind := models.FileKind(c.QueryParam("kind"))
	if kind != "" && !validKind(kind) {
		return NewValidationError("kind")
	}

	limit := defaultListLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return NewValidationError("limit")
		}
		limit = min(n, maxListLimit)
	}

	files, err := h.store.List(kind, limit)
	if err != nil {
		return NewInternalError("failed to list files", err)
	}

	return c.JSON(http.StatusOK, files)
}

// HandleGetFile returns metadata for a specific file
func (h *FileHandlerImpl) HandleGetFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	info, err := h.store.Get(id)
	if err != nil {
		return NewNotFoundError("file", id)
	}

	return c.JSON(http.StatusOK, info)
}

// HandleDownloadFile streams the content of a file as an attachment
func (h *FileHandlerImpl) HandleDownloadFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	info, err := h.store.Get(id)
	if err != nil {
		return NewNotFoundError("file", id)
	}
	data, err := h.store.ReadFile(id)
	if err != nil {
		return FromError("failed to read file", err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+info.Name+`"`)
	return c.Blob(http.StatusOK, contentType(info), data)
}

// HandleDeleteFile deletes a file and drops any cached parse of it
func (h *FileHandlerImpl) HandleDeleteFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	if err := h.store.Delete(id); err != nil {
		return NewNotFoundError("file", id)
	}

	if h.sessionMgr != nil {
		h.sessionMgr.InvalidateProfile(id)
	}

	return c.NoContent(http.StatusNoContent)
}

// HandleRenameFile updates the name of a file
func (h *FileHandlerImpl) HandleRenameFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	var req renameFileRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}

	if req.Name == "" {
		return NewValidationError("name")
	}

	info, err := h.store.Rename(id, req.Name)
	if err != nil {
		return NewNotFoundError("file", id)
	}

	return c.JSON(http.StatusOK, info)
}

// Request/Response types

type uploadFileRequest struct {
	Name string `json:"name"`
	Data string `json:"data"` // Base64-encoded content
	Kind string `json:"kind,omitempty"`
}

func (r *uploadFileRequest) validate() error {
	if r.Name == "" {
		return NewValidationError("name")
	}
	if r.Data == "" {
		return NewValidationError("data")
	}
	return nil
}

type renameFileRequest struct {
	Name string `json:"name"`
}

// Helper functions

func validKind(kind models.FileKind) bool {
	switch kind {
	case models.FileKindProfile, models.FileKindMatrix, models.FileKindScene,
		models.FileKindResults, models.FileKindGrid, models.FileKindLuminaires,
		models.FileKindOther:
		return true
	}
	return false
}

func contentType(info *models.FileInfo) string {
	switch info.Kind {
	case models.FileKindMatrix, models.FileKindScene, models.FileKindLuminaires:
		return "text/csv"
	case models.FileKindProfile, models.FileKindResults, models.FileKindGrid:
		return echo.MIMETextPlainCharsetUTF8
	}
	if filepath.Ext(info.Name) == ".yaml" {
		return "application/yaml"
	}
	return echo.MIMEOctetStream
}
