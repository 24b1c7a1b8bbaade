// helpers_test.go - Shared fixtures for handler tests
package api

import (
	"io"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/ies-sculpt/backend/internal/models"
	"github.com/ies-sculpt/backend/internal/sculpt"
	"github.com/ies-sculpt/backend/internal/session"
)

const profileIES = `IESNA:LM-63-2002
[TEST] element
[MANUFAC] Acme Lighting
TILT=NONE
1 1000 1 3 2 1 2 0.5 1.2 0.1
1.0 1 25
0 45 90
0 90
100 80 20
110 70 10`

func newTestContext(method, target string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, body)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func assertAPIError(t *testing.T, err error, wantStatus int, wantCode string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Status != wantStatus {
		t.Errorf("expected status %d, got %d", wantStatus, apiErr.Status)
	}
	if apiErr.Code != wantCode {
		t.Errorf("expected error code %s, got %s", wantCode, apiErr.Code)
	}
}

// mockSessionManager is an in-memory SessionManager.
type mockSessionManager struct {
	mu          sync.Mutex
	sessions    map[string]*models.SculptSession
	summaries   map[string]*sculpt.Summary
	startErr    error
	started     []session.StartRequest
	touched     []string
	cancelled   []string
	invalidated []string
}

func newMockSessionManager() *mockSessionManager {
	return &mockSessionManager{
		sessions:  make(map[string]*models.SculptSession),
		summaries: make(map[string]*sculpt.Summary),
	}
}

func (m *mockSessionManager) add(s *models.SculptSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
}

func (m *mockSessionManager) StartSession(req session.StartRequest) (*models.SculptSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return nil, m.startErr
	}
	m.started = append(m.started, req)
	s := models.NewSculptSession("sess-1", req.Scene)
	s.MatrixFileID = req.MatrixFileID
	s.SceneFileID = req.SceneFileID
	s.ProfileFileIDs = req.ProfileFileIDs
	m.sessions[s.ID] = s
	return s, nil
}

func (m *mockSessionManager) GetSession(id string) (*models.SculptSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	dup := *s
	return &dup, true
}

func (m *mockSessionManager) GetSummary(id string) (*sculpt.Summary, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.summaries[id]
	return s, ok
}

func (m *mockSessionManager) ListSessions() []*models.SculptSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := make([]*models.SculptSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		list = append(list, s)
	}
	return list
}

func (m *mockSessionManager) CancelSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	m.cancelled = append(m.cancelled, id)
	return true
}

func (m *mockSessionManager) TouchSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return false
	}
	m.touched = append(m.touched, id)
	return true
}

func (m *mockSessionManager) InvalidateProfile(fileID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidated = append(m.invalidated, fileID)
}

var _ SessionManager = (*mockSessionManager)(nil)
