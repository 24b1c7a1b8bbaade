package models

// SessionStatus represents the status of a sculpt session.
type SessionStatus string

const (
	SessionStatusPending  SessionStatus = "pending"
	SessionStatusRunning  SessionStatus = "running"
	SessionStatusComplete SessionStatus = "complete"
	SessionStatusError    SessionStatus = "error"
)

// SculptSession tracks one optimize-and-sculpt run started through the API.
type SculptSession struct {
	ID               string            `json:"id" msgpack:"id"`
	Scene            string            `json:"scene" msgpack:"scene"`
	MatrixFileID     string            `json:"matrixFileId" msgpack:"matrixFileId"`
	SceneFileID      string            `json:"sceneFileId" msgpack:"sceneFileId"`
	ProfileFileIDs   []string          `json:"profileFileIds" msgpack:"profileFileIds"`
	Status           SessionStatus     `json:"status" msgpack:"status"`
	Progress         float64           `json:"progress" msgpack:"progress"` // 0-100
	Cost             float64           `json:"cost" msgpack:"cost"`
	Iterations       int               `json:"iterations,omitempty" msgpack:"iterations"`
	Converged        bool              `json:"converged" msgpack:"converged"`
	ScaleFactors     []float64         `json:"scaleFactors,omitempty" msgpack:"scaleFactors"`
	Luminaires       []LuminaireReport `json:"luminaires,omitempty" msgpack:"luminaires"`
	OutputFileIDs    []string          `json:"outputFileIds,omitempty" msgpack:"outputFileIds"`
	ProcessingTimeMs int64             `json:"processingTimeMs,omitempty" msgpack:"processingTimeMs"`
	StartTime        int64             `json:"startTime,omitempty" msgpack:"startTime"` // Unix ms
	EndTime          int64             `json:"endTime,omitempty" msgpack:"endTime"`     // Unix ms
	Errors           []ParseError      `json:"errors,omitempty" msgpack:"errors"`
}

// ParseError represents a tolerated problem found while reading an input file.
type ParseError struct {
	Line    int    `json:"line" msgpack:"line" yaml:"line"`
	Content string `json:"content" msgpack:"content" yaml:"content"`
	Reason  string `json:"reason" msgpack:"reason" yaml:"reason"`
}

// LuminaireReport summarises one flushed luminaire.
type LuminaireReport struct {
	Ordinal      int      `json:"ordinal" msgpack:"ordinal" yaml:"ordinal"`
	Files        []string `json:"files" msgpack:"files" yaml:"files"`
	LGPAverage   float64  `json:"lgpAverage" msgpack:"lgpAverage" yaml:"lgp_average"`
	SpotAverage  float64  `json:"spotAverage" msgpack:"spotAverage" yaml:"spot_average"`
	Average      float64  `json:"average" msgpack:"average" yaml:"average"`
	ElementCount int      `json:"elementCount" msgpack:"elementCount" yaml:"element_count"`
	ElapsedMs    int64    `json:"elapsedMs" msgpack:"elapsedMs" yaml:"elapsed_ms"`
}

// NewSculptSession creates a new SculptSession in pending status.
func NewSculptSession(id, scene string) *SculptSession {
	return &SculptSession{
		ID:       id,
		Scene:    scene,
		Status:   SessionStatusPending,
		Progress: 0,
		Errors:   make([]ParseError, 0),
	}
}
