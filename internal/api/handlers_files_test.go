// handlers_files_test.go - Tests for stored file handlers
package api

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/ies-sculpt/backend/internal/models"
	"github.com/ies-sculpt/backend/internal/testutil"
)

func TestFileHandler_HandleUploadFile(t *testing.T) {
	tests := []struct {
		name       string
		request    uploadFileRequest
		wantStatus int
		wantErr    bool
		errCode    string
		wantKind   models.FileKind
	}{
		{
			name: "profile detected from content",
			request: uploadFileRequest{
				Name: "element_0.ies",
				Data: base64.StdEncoding.EncodeToString([]byte(profileIES)),
			},
			wantStatus: http.StatusCreated,
			wantKind:   models.FileKindProfile,
		},
		{
			name: "matrix detected from header",
			request: uploadFileRequest{
				Name: "Matrix.csv",
				Data: base64.StdEncoding.EncodeToString([]byte("SENSOR_ID,a,b\nPT_0000,1,2\n")),
			},
			wantStatus: http.StatusCreated,
			wantKind:   models.FileKindMatrix,
		},
		{
			name: "explicit kind wins",
			request: uploadFileRequest{
				Name: "Office.csv",
				Data: base64.StdEncoding.EncodeToString([]byte("SENSOR_ID,target\nPT_0000,1\n")),
				Kind: string(models.FileKindScene),
			},
			wantStatus: http.StatusCreated,
			wantKind:   models.FileKindScene,
		},
		{
			name: "unknown content",
			request: uploadFileRequest{
				Name: "notes.txt",
				Data: base64.StdEncoding.EncodeToString([]byte("hello world")),
			},
			wantStatus: http.StatusCreated,
			wantKind:   models.FileKindOther,
		},
		{
			name: "invalid kind",
			request: uploadFileRequest{
				Name: "x.csv",
				Data: base64.StdEncoding.EncodeToString([]byte("1")),
				Kind: "spreadsheet",
			},
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "VALIDATION_ERROR",
		},
		{
			name: "empty name",
			request: uploadFileRequest{
				Data: base64.StdEncoding.EncodeToString([]byte("content")),
			},
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "VALIDATION_ERROR",
		},
		{
			name:       "empty data",
			request:    uploadFileRequest{Name: "test.ies"},
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "VALIDATION_ERROR",
		},
		{
			name: "invalid base64",
			request: uploadFileRequest{
				Name: "test.ies",
				Data: "not-valid-base64!!!",
			},
			wantStatus: http.StatusBadRequest,
			wantErr:    true,
			errCode:    "BAD_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewMockStorage(t.TempDir())
			handler := NewFileHandler(store, nil, nil)

			body, _ := json.Marshal(tt.request)
			c, rec := newTestContext(http.MethodPost, "/api/files/upload", bytes.NewReader(body))

			err := handler.HandleUploadFile(c)

			if tt.wantErr {
				assertAPIError(t, err, tt.wantStatus, tt.errCode)
				if store.GetFileCount() != 0 {
					t.Errorf("expected nothing stored, got %d files", store.GetFileCount())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}

			var response models.FileInfo
			if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			if response.ID == "" {
				t.Error("expected non-empty ID in response")
			}
			if response.Name != tt.request.Name {
				t.Errorf("expected name %s, got %s", tt.request.Name, response.Name)
			}
			if response.Kind != tt.wantKind {
				t.Errorf("expected kind %s, got %s", tt.wantKind, response.Kind)
			}
		})
	}
}

func TestFileHandler_HandleUploadBinary(t *testing.T) {
	store := testutil.NewMockStorage(t.TempDir())
	handler := NewFileHandler(store, nil, nil)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "element_0.ies")
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte(profileIES))
	w.Close()

	c, rec := newTestContext(http.MethodPost, "/api/files/upload/binary", &body)
	c.Request().Header.Set("Content-Type", w.FormDataContentType())

	if err := handler.HandleUploadBinary(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected status %d, got %d", http.StatusCreated, rec.Code)
	}

	var response models.FileInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if response.Kind != models.FileKindProfile {
		t.Errorf("expected kind %s, got %s", models.FileKindProfile, response.Kind)
	}
	if response.Size != int64(len(profileIES)) {
		t.Errorf("expected size %d, got %d", len(profileIES), response.Size)
	}

	// Missing form file
	c, _ = newTestContext(http.MethodPost, "/api/files/upload/binary", strings.NewReader(""))
	assertAPIError(t, handler.HandleUploadBinary(c), http.StatusBadRequest, "BAD_REQUEST")
}

func TestFileHandler_HandleListFiles(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantCount  int
		wantErr    bool
		wantStatus int
	}{
		{name: "all files", query: "", wantCount: 30},
		{name: "filter by kind", query: "?kind=matrix", wantCount: 1},
		{name: "limit", query: "?limit=5", wantCount: 5},
		{name: "limit and kind", query: "?kind=ies&limit=3", wantCount: 3},
		{name: "bad limit", query: "?limit=zero", wantErr: true, wantStatus: http.StatusBadRequest},
		{name: "negative limit", query: "?limit=-1", wantErr: true, wantStatus: http.StatusBadRequest},
		{name: "bad kind", query: "?kind=xml", wantErr: true, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewMockStorage(t.TempDir())
			store.AddFile("m", "Matrix.csv", models.FileKindMatrix, []byte("x"))
			for i := 0; i < 29; i++ {
				store.AddFile(fmt.Sprintf("p-%02d", i), fmt.Sprintf("element_%d.ies", i), models.FileKindProfile, []byte("x"))
			}
			handler := NewFileHandler(store, nil, nil)

			c, rec := newTestContext(http.MethodGet, "/api/files"+tt.query, nil)
			err := handler.HandleListFiles(c)

			if tt.wantErr {
				assertAPIError(t, err, tt.wantStatus, "VALIDATION_ERROR")
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			var files []models.FileInfo
			if err := json.Unmarshal(rec.Body.Bytes(), &files); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			if len(files) != tt.wantCount {
				t.Errorf("expected %d files, got %d", tt.wantCount, len(files))
			}
		})
	}
}

func TestFileHandler_HandleGetFile(t *testing.T) {
	tests := []struct {
		name       string
		fileID     string
		wantStatus int
		wantErr    bool
		errCode    string
	}{
		{name: "existing file", fileID: "test-id-1", wantStatus: http.StatusOK},
		{name: "missing file id", fileID: "", wantStatus: http.StatusBadRequest, wantErr: true, errCode: "VALIDATION_ERROR"},
		{name: "non-existent file", fileID: "does-not-exist", wantStatus: http.StatusNotFound, wantErr: true, errCode: "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewMockStorage(t.TempDir())
			store.AddFile("test-id-1", "element_0.ies", models.FileKindProfile, []byte(profileIES))
			handler := NewFileHandler(store, nil, nil)

			c, rec := newTestContext(http.MethodGet, "/api/files/:id", nil)
			c.SetParamNames("id")
			c.SetParamValues(tt.fileID)

			err := handler.HandleGetFile(c)

			if tt.wantErr {
				assertAPIError(t, err, tt.wantStatus, tt.errCode)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			var response models.FileInfo
			if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			if response.ID != tt.fileID {
				t.Errorf("expected ID %s, got %s", tt.fileID, response.ID)
			}
		})
	}
}

func TestFileHandler_HandleDownloadFile(t *testing.T) {
	store := testutil.NewMockStorage(t.TempDir())
	store.AddFile("s", "Office.csv", models.FileKindScene, []byte("SENSOR_ID,target\nPT_0000,1\n"))
	handler := NewFileHandler(store, nil, nil)

	c, rec := newTestContext(http.MethodGet, "/api/files/s/download", nil)
	c.SetParamNames("id")
	c.SetParamValues("s")

	if err := handler.HandleDownloadFile(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/csv" {
		t.Errorf("expected text/csv, got %s", got)
	}
	if got := rec.Header().Get("Content-Disposition"); !strings.Contains(got, `filename="Office.csv"`) {
		t.Errorf("unexpected Content-Disposition %q", got)
	}
	if !strings.HasPrefix(rec.Body.String(), "SENSOR_ID,target") {
		t.Errorf("unexpected body %q", rec.Body.String())
	}

	c, _ = newTestContext(http.MethodGet, "/api/files/missing/download", nil)
	c.SetParamNames("id")
	c.SetParamValues("missing")
	assertAPIError(t, handler.HandleDownloadFile(c), http.StatusNotFound, "NOT_FOUND")
}

func TestFileHandler_HandleDeleteFile(t *testing.T) {
	tests := []struct {
		name       string
		fileID     string
		wantStatus int
		wantErr    bool
		errCode    string
	}{
		{name: "delete existing file", fileID: "test-id-1", wantStatus: http.StatusNoContent},
		{name: "delete non-existent file", fileID: "does-not-exist", wantStatus: http.StatusNotFound, wantErr: true, errCode: "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewMockStorage(t.TempDir())
			store.AddFile("test-id-1", "element_0.ies", models.FileKindProfile, []byte(profileIES))
			sessions := newMockSessionManager()
			handler := NewFileHandler(store, sessions, nil)

			c, rec := newTestContext(http.MethodDelete, "/api/files/:id", nil)
			c.SetParamNames("id")
			c.SetParamValues(tt.fileID)

			err := handler.HandleDeleteFile(c)

			if tt.wantErr {
				assertAPIError(t, err, tt.wantStatus, tt.errCode)
				if len(sessions.invalidated) != 0 {
					t.Errorf("expected no invalidation, got %v", sessions.invalidated)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if store.GetFileCount() != 0 {
				t.Errorf("expected 0 files, got %d", store.GetFileCount())
			}
			if len(sessions.invalidated) != 1 || sessions.invalidated[0] != tt.fileID {
				t.Errorf("expected cached profile %s to be invalidated, got %v", tt.fileID, sessions.invalidated)
			}
		})
	}
}

func TestFileHandler_HandleRenameFile(t *testing.T) {
	tests := []struct {
		name       string
		fileID     string
		body       string
		wantStatus int
		wantErr    bool
		errCode    string
	}{
		{name: "rename existing", fileID: "test-id-1", body: `{"name":"renamed.ies"}`, wantStatus: http.StatusOK},
		{name: "empty name", fileID: "test-id-1", body: `{"name":""}`, wantStatus: http.StatusBadRequest, wantErr: true, errCode: "VALIDATION_ERROR"},
		{name: "bad json", fileID: "test-id-1", body: `{`, wantStatus: http.StatusBadRequest, wantErr: true, errCode: "BAD_REQUEST"},
		{name: "missing file", fileID: "nope", body: `{"name":"x.ies"}`, wantStatus: http.StatusNotFound, wantErr: true, errCode: "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewMockStorage(t.TempDir())
			store.AddFile("test-id-1", "element_0.ies", models.FileKindProfile, []byte(profileIES))
			handler := NewFileHandler(store, nil, nil)

			c, rec := newTestContext(http.MethodPut, "/api/files/:id", strings.NewReader(tt.body))
			c.SetParamNames("id")
			c.SetParamValues(tt.fileID)

			err := handler.HandleRenameFile(c)

			if tt.wantErr {
				assertAPIError(t, err, tt.wantStatus, tt.errCode)
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			var response models.FileInfo
			if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
				t.Fatalf("failed to unmarshal response: %v", err)
			}
			if response.Name != "renamed.ies" {
				t.Errorf("expected renamed.ies, got %s", response.Name)
			}
		})
	}
}
