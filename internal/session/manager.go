package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/ies-sculpt/backend/internal/logging"
	"github.com/ies-sculpt/backend/internal/matrix"
	"github.com/ies-sculpt/backend/internal/models"
	"github.com/ies-sculpt/backend/internal/sculpt"
	"github.com/ies-sculpt/backend/internal/solver"
	"github.com/ies-sculpt/backend/internal/storage"
)

// MaxSessions limits retained sessions; the oldest finished ones are evicted first.
const MaxSessions = 10

// SessionKeepAliveWindow is how long to keep sessions that are actively being used
const SessionKeepAliveWindow = 5 * time.Minute

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidRequest  = errors.New("invalid sculpt request")
)

// Options configures every run started by a Manager.
type Options struct {
	Solver   solver.Options
	Lighting sculpt.Lighting
	// Now stamps ISSUEDATE on sculpted profiles. Defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns the default run options.
func DefaultOptions() Options {
	return Options{
		Solver:   solver.DefaultOptions(),
		Lighting: sculpt.DefaultLighting(),
	}
}

// StartRequest names the stored inputs of one sculpt run.
type StartRequest struct {
	// Scene labels the outputs. Defaults to the scene file name without extension.
	Scene          string   `json:"scene"`
	MatrixFileID   string   `json:"matrixFileId"`
	SceneFileID    string   `json:"sceneFileId"`
	ProfileFileIDs []string `json:"profileFileIds"`
}

// Manager runs sculpt sessions in the background against stored files.
type Manager struct {
	sessions map[string]*SessionState
	mu       sync.RWMutex
	store    storage.Store
	profiles *ProfileCache
	opts     Options
}

// SessionState holds the session metadata and its run controls.
type SessionState struct {
	Session      *models.SculptSession
	Summary      *sculpt.Summary
	LastAccessed time.Time // Last time the session was accessed (for keep-alive)

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a session manager reading inputs from and writing
// outputs to store.
func NewManager(store storage.Store, opts Options) *Manager {
	return &Manager{
		sessions: make(map[string]*SessionState),
		store:    store,
		profiles: NewProfileCache(store),
		opts:     opts,
	}
}

// Profiles exposes the manager's parsed-profile cache.
func (m *Manager) Profiles() *ProfileCache {
	return m.profiles
}

// StartSession validates the request and begins the sculpt run.
func (m *Manager) StartSession(req StartRequest) (*models.SculptSession, error) {
	if req.MatrixFileID == "" || req.SceneFileID == "" || len(req.ProfileFileIDs) == 0 {
		return nil, fmt.Errorf("%w: matrixFileId, sceneFileId and profileFileIds are required", ErrInvalidRequest)
	}
	for _, id := range append([]string{req.MatrixFileID}, req.ProfileFileIDs...) {
		if _, err := m.store.Get(id); err != nil {
			return nil, err
		}
	}
	sceneInfo, err := m.store.Get(req.SceneFileID)
	if err != nil {
		return nil, err
	}
	if req.Scene == "" {
		req.Scene = sculpt.SceneName(sceneInfo.Name)
	}

	// Clean up old sessions if at limit
	m.cleanupOldSessionsIfNeeded()

	sessionID := uuid.New().String()
	session := models.NewSculptSession(sessionID, req.Scene)
	session.MatrixFileID = req.MatrixFileID
	session.SceneFileID = req.SceneFileID
	session.ProfileFileIDs = append([]string(nil), req.ProfileFileIDs...)
	session.StartTime = time.Now().UnixMilli()

	ctx, cancel := context.WithCancel(context.Background())
	state := &SessionState{
		Session:      session,
		LastAccessed: time.Now(),
		cancel:       cancel,
		done:         make(chan struct{}),
	}

	m.mu.Lock()
	m.sessions[sessionID] = state
	snapshot := snapshotSession(session)
	m.mu.Unlock()

	// Run the sculpt in a background goroutine
	go m.runSculpt(ctx, state, req)

	return snapshot, nil
}

func (m *Manager) runSculpt(ctx context.Context, state *SessionState, req StartRequest) {
	id := state.Session.ID
	log := logging.Component("run").With().Str("session", shortID(id)).Logger()

	defer close(state.done)
	defer state.cancel()
	// Recover from panics to prevent backend crash
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Sculpt panicked")
			m.updateSessionError(id, fmt.Sprintf("sculpt panicked: %v", r))
		}
	}()

	start := time.Now()
	log.Info().Str("scene", req.Scene).Int("profiles", len(req.ProfileFileIDs)).Msg("Starting sculpt")
	m.setProgress(id, models.SessionStatusRunning, 1)

	a, err := m.readDense(req.MatrixFileID)
	if err != nil {
		m.fail(log, id, "failed to load matrix", err)
		return
	}
	scene, err := m.readDense(req.SceneFileID)
	if err != nil {
		m.fail(log, id, "failed to load scene", err)
		return
	}
	rows, _ := a.Dims()
	if sceneRows, _ := scene.Dims(); sceneRows != rows {
		m.fail(log, id, "scene does not match matrix", &matrix.ShapeError{
			Expected: rows, Got: sceneRows, Reason: "scene rows differ from matrix rows",
		})
		return
	}

	profiles := make([]*models.PhotometricProfile, 0, len(req.ProfileFileIDs))
	elements := make([]string, 0, len(req.ProfileFileIDs))
	var tolerated []models.ParseError
	for _, fileID := range req.ProfileFileIDs {
		info, err := m.store.Get(fileID)
		if err != nil {
			m.fail(log, id, "failed to load profile", err)
			return
		}
		p, parseErrors, err := m.profiles.Get(fileID)
		if err != nil {
			m.fail(log, id, "failed to parse profile", err)
			return
		}
		name := strings.TrimSuffix(info.Name, filepath.Ext(info.Name))
		for _, pe := range parseErrors {
			if pe != nil {
				tolerated = append(tolerated, models.ParseError{
					Line:    pe.Line,
					Content: pe.Content,
					Reason:  name + ": " + pe.Reason,
				})
			}
		}
		profiles = append(profiles, p)
		elements = append(elements, name)
	}
	m.setProgress(id, models.SessionStatusRunning, 10)

	sink := &storeSink{store: m.store}
	pipeline := &sculpt.Pipeline{
		Solver:   m.opts.Solver,
		Lighting: m.opts.Lighting,
		Sink:     sink,
		Now:      m.opts.Now,
		OnProgress: func(stage string, percent float64) {
			// 10-99% belongs to the pipeline; 100% is set on completion.
			m.setProgress(id, models.SessionStatusRunning, min(10+percent*0.89, 99))
		},
	}

	summary, err := pipeline.Run(ctx, sculpt.Inputs{
		Scene:    req.Scene,
		Matrix:   a,
		Target:   matrix.TargetColumn(scene),
		Profiles: profiles,
		Elements: elements,
	})

	m.mu.Lock()
	defer m.mu.Unlock()

	state.Session.OutputFileIDs = sink.IDs()
	state.Session.Errors = append(state.Session.Errors, tolerated...)
	state.Session.ProcessingTimeMs = time.Since(start).Milliseconds()
	state.Session.EndTime = time.Now().UnixMilli()

	if err != nil {
		log.Error().Err(err).Msg("Sculpt failed")
		state.Session.Status = models.SessionStatusError
		state.Session.Errors = append(state.Session.Errors, models.ParseError{Reason: err.Error()})
		return
	}

	state.Summary = summary
	state.Session.Status = models.SessionStatusComplete
	state.Session.Progress = 100
	state.Session.Cost = summary.Cost
	state.Session.Iterations = summary.Iterations
	state.Session.Converged = summary.Converged
	state.Session.ScaleFactors = summary.ScaleFactors
	state.Session.Luminaires = summary.Luminaires

	log.Info().
		Int("luminaires", len(summary.Luminaires)).
		Float64("cost", summary.Cost).
		Int64("elapsedMs", state.Session.ProcessingTimeMs).
		Msg("Sculpt complete")
}

func (m *Manager) readDense(fileID string) (*mat.Dense, error) {
	data, err := m.store.ReadFile(fileID)
	if err != nil {
		return nil, err
	}
	return matrix.ReadCSV(bytes.NewReader(data))
}

func (m *Manager) fail(log zerolog.Logger, sessionID, msg string, err error) {
	log.Error().Err(err).Msg(msg)
	m.updateSessionError(sessionID, fmt.Sprintf("%s: %v", msg, err))
}

func (m *Manager) setProgress(sessionID string, status models.SessionStatus, progress float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state, ok := m.sessions[sessionID]; ok {
		state.Session.Status = status
		state.Session.Progress = progress
	}
}

func (m *Manager) updateSessionError(sessionID, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[sessionID]
	if !ok {
		return
	}

	state.Session.Status = models.SessionStatusError
	state.Session.EndTime = time.Now().UnixMilli()
	state.Session.Errors = append(state.Session.Errors, models.ParseError{
		Reason: reason,
	})
}

// cleanupOldSessionsIfNeeded removes finished sessions if at capacity
func (m *Manager) cleanupOldSessionsIfNeeded() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) < MaxSessions {
		return
	}

	// Oldest finished sessions go first.
	var oldestID string
	for len(m.sessions) >= MaxSessions {
		oldestID = ""
		for id, state := range m.sessions {
			if !finished(state.Session.Status) {
				continue
			}
			if oldestID == "" || state.LastAccessed.Before(m.sessions[oldestID].LastAccessed) {
				oldestID = id
			}
		}
		if oldestID == "" {
			return
		}
		delete(m.sessions, oldestID)
		log := logging.Component("run")
		log.Debug().Str("session", shortID(oldestID)).Msg("Evicted finished session")
	}
}

// CleanupOldSessions removes finished sessions older than maxAge,
// but keeps sessions that have been accessed within SessionKeepAliveWindow.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	keepAliveCutoff := time.Now().Add(-SessionKeepAliveWindow)

	log := logging.Component("run")
	removed := 0
	for id, state := range m.sessions {
		if !finished(state.Session.Status) {
			continue
		}
		if state.LastAccessed.After(keepAliveCutoff) || state.LastAccessed.After(cutoff) {
			continue
		}
		delete(m.sessions, id)
		removed++
		log.Debug().
			Str("session", shortID(id)).
			Dur("idle", time.Since(state.LastAccessed).Round(time.Second)).
			Msg("Cleaned up aged session")
	}
	return removed
}

// GetSession returns a snapshot of a session by ID.
func (m *Manager) GetSession(id string) (*models.SculptSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return snapshotSession(state.Session), true
}

// GetSummary returns the run summary of a completed session.
func (m *Manager) GetSummary(id string) (*sculpt.Summary, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.sessions[id]
	if !ok || state.Summary == nil {
		return nil, false
	}
	return state.Summary, true
}

// ListSessions returns snapshots of every retained session, newest first.
func (m *Manager) ListSessions() []*models.SculptSession {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]*models.SculptSession, 0, len(m.sessions))
	for _, state := range m.sessions {
		list = append(list, snapshotSession(state.Session))
	}
	sortSessions(list)
	return list
}

// Wait blocks until the session finishes or ctx is done.
func (m *Manager) Wait(ctx context.Context, id string) (*models.SculptSession, error) {
	m.mu.RLock()
	state, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	select {
	case <-state.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return snapshotSession(state.Session), nil
}

// CancelSession stops a running session between luminaires.
func (m *Manager) CancelSession(id string) bool {
	m.mu.RLock()
	state, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	state.cancel()
	return true
}

// TouchSession updates the LastAccessed timestamp for a session.
// This should be called whenever a session is actively being used
// to prevent it from being cleaned up.
func (m *Manager) TouchSession(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.sessions[id]
	if !ok {
		return false
	}
	state.LastAccessed = time.Now()
	return true
}

func finished(status models.SessionStatus) bool {
	return status == models.SessionStatusComplete || status == models.SessionStatusError
}

// InvalidateProfile drops the cached parse of a stored profile.
func (m *Manager) InvalidateProfile(fileID string) {
	m.profiles.Invalidate(fileID)
}
