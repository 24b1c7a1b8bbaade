package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/ies-sculpt/backend/internal/models"
)

// IndexFileName holds the persisted file metadata inside the store directory.
const IndexFileName = "index.msgpack"

// ErrNotFound is returned for unknown file IDs.
var ErrNotFound = errors.New("file not found")

// Store defines the interface for file storage.
type Store interface {
	Save(name string, kind models.FileKind, r io.Reader) (*models.FileInfo, error)
	SaveBytes(name string, kind models.FileKind, data []byte) (*models.FileInfo, error)
	Get(id string) (*models.FileInfo, error)
	// List returns the most recent files of kind, or of every kind when kind
	// is empty. limit <= 0 means no limit.
	List(kind models.FileKind, limit int) ([]*models.FileInfo, error)
	Delete(id string) error
	Rename(id string, newName string) (*models.FileInfo, error)
	GetFilePath(id string) (string, error)
	ReadFile(id string) ([]byte, error)
}

// LocalStore implements Store using the local filesystem. Each file is kept
// under its ID; metadata survives restarts through IndexFileName.
type LocalStore struct {
	mu        sync.RWMutex
	uploadDir string
	files     map[string]*models.FileInfo
}

// NewLocalStore creates a new LocalStore and loads any existing index.
func NewLocalStore(uploadDir string) (*LocalStore, error) {
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}

	s := &LocalStore{
		uploadDir: uploadDir,
		files:     make(map[string]*models.FileInfo),
	}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

// Save saves a file to the local filesystem.
func (s *LocalStore) Save(name string, kind models.FileKind, r io.Reader) (*models.FileInfo, error) {
	id := uuid.New().String()
	path := filepath.Join(s.uploadDir, id)

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("writing file: %w", err)
	}

	if kind == "" {
		kind = models.FileKindOther
	}
	info := &models.FileInfo{
		ID:        id,
		Name:      name,
		Size:      size,
		Kind:      kind,
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = info

	return info, s.writeIndex()
}

// SaveBytes saves a whole buffer as a new file.
func (s *LocalStore) SaveBytes(name string, kind models.FileKind, data []byte) (*models.FileInfo, error) {
	return s.Save(name, kind, bytes.NewReader(data))
}

// Get retrieves file metadata by ID.
func (s *LocalStore) Get(id string) (*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return info, nil
}

// List returns the most recent files.
func (s *LocalStore) List(kind models.FileKind, limit int) ([]*models.FileInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*models.FileInfo, 0, len(s.files))
	for _, info := range s.files {
		if kind != "" && info.Kind != kind {
			continue
		}
		list = append(list, info)
	}

	// Newest first; ties by name keep the order stable.
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].Name < list[j].Name
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	return list, nil
}

// Delete removes a file from storage.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	path := filepath.Join(s.uploadDir, id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting file: %w", err)
	}

	delete(s.files, id)
	return s.writeIndex()
}

// Rename updates the display name of a file.
func (s *LocalStore) Rename(id string, newName string) (*models.FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	info.Name = newName
	return info, s.writeIndex()
}

// GetFilePath returns the absolute path to a file.
func (s *LocalStore) GetFilePath(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.files[id]; !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	return filepath.Join(s.uploadDir, id), nil
}

// ReadFile returns the whole content of a stored file.
func (s *LocalStore) ReadFile(id string) ([]byte, error) {
	path, err := s.GetFilePath(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// loadIndex restores metadata, dropping entries whose file has gone.
func (s *LocalStore) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(s.uploadDir, IndexFileName))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading index: %w", err)
	}

	var entries []*models.FileInfo
	if err := msgpack.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("decoding index: %w", err)
	}
	for _, info := range entries {
		if _, err := os.Stat(filepath.Join(s.uploadDir, info.ID)); err != nil {
			continue
		}
		s.files[info.ID] = info
	}
	return nil
}

// writeIndex persists metadata. Callers hold s.mu.
func (s *LocalStore) writeIndex() error {
	entries := make([]*models.FileInfo, 0, len(s.files))
	for _, info := range s.files {
		entries = append(entries, info)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	data, err := msgpack.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encoding index: %w", err)
	}

	tmp := filepath.Join(s.uploadDir, IndexFileName+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing index: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.uploadDir, IndexFileName)); err != nil {
		return fmt.Errorf("writing index: %w", err)
	}
	return nil
}
