package models

import "time"

// FileKind classifies a stored file.
type FileKind string

const (
	FileKindProfile    FileKind = "ies"
	FileKindMatrix     FileKind = "matrix"
	FileKindScene      FileKind = "scene"
	FileKindResults    FileKind = "results"
	FileKindGrid       FileKind = "grid"
	FileKindLuminaires FileKind = "luminaires"
	FileKindOther      FileKind = "other"
)

// FileInfo represents metadata about a stored input or output file.
type FileInfo struct {
	ID        string    `json:"id" msgpack:"id"`
	Name      string    `json:"name" msgpack:"name"`
	Size      int64     `json:"size" msgpack:"size"`
	Kind      FileKind  `json:"kind" msgpack:"kind"`
	CreatedAt time.Time `json:"createdAt" msgpack:"createdAt"`
}
