package session

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ies-sculpt/backend/internal/models"
	"github.com/ies-sculpt/backend/internal/storage"
)

// storeSink saves sculpt outputs into the file store and remembers their IDs.
type storeSink struct {
	store storage.Store
	mu    sync.Mutex
	ids   []string
}

func (s *storeSink) WriteFile(name string, data []byte) error {
	kind := models.FileKindOther
	if strings.EqualFold(filepath.Ext(name), ".ies") {
		kind = models.FileKindProfile
	}
	info, err := s.store.SaveBytes(name, kind, data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.ids = append(s.ids, info.ID)
	s.mu.Unlock()
	return nil
}

// IDs returns the stored file IDs in write order.
func (s *storeSink) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

// snapshotSession copies a session so callers can read it without the lock.
func snapshotSession(s *models.SculptSession) *models.SculptSession {
	dup := *s
	dup.ProfileFileIDs = append([]string(nil), s.ProfileFileIDs...)
	dup.ScaleFactors = append([]float64(nil), s.ScaleFactors...)
	dup.Luminaires = append([]models.LuminaireReport(nil), s.Luminaires...)
	dup.OutputFileIDs = append([]string(nil), s.OutputFileIDs...)
	dup.Errors = append([]models.ParseError{}, s.Errors...)
	return &dup
}

func sortSessions(list []*models.SculptSession) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].StartTime != list[j].StartTime {
			return list[i].StartTime > list[j].StartTime
		}
		return list[i].ID < list[j].ID
	})
}
