package parser

import (
	"fmt"
	"strings"

	"github.com/ies-sculpt/backend/internal/models"
)

// Registry holds all available parsers and provides auto-detection.
type Registry struct {
	parsers []Parser
}

// Global registry instance
var globalRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{
		parsers: []Parser{
			NewIESParser(),
			NewMatrixCSVParser(),
			NewResultsParser(),
			NewGridParser(),
			NewLuminairesParser(),
		},
	}
}

// GetGlobalRegistry returns the singleton registry.
func GetGlobalRegistry() *Registry {
	return globalRegistry
}

// Register adds a new parser to the registry.
func (r *Registry) Register(p Parser) {
	r.parsers = append(r.parsers, p)
}

// FindParser detects the correct parser for a file.
func (r *Registry) FindParser(filePath string) (Parser, error) {
	for _, p := range r.parsers {
		can, err := p.CanParse(filePath)
		if err != nil {
			continue
		}
		if can {
			return p, nil
		}
	}
	return nil, fmt.Errorf("no suitable parser found for file: %s", filePath)
}

// GetParserByName returns a parser by its name.
func (r *Registry) GetParserByName(name string) (Parser, error) {
	name = strings.ToLower(name)
	for _, p := range r.parsers {
		if strings.ToLower(p.Name()) == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("parser not found: %s", name)
}

// DetectKind returns the kind of the file at filePath, or FileKindOther when
// no parser recognises it.
func (r *Registry) DetectKind(filePath string) models.FileKind {
	p, err := r.FindParser(filePath)
	if err != nil {
		return models.FileKindOther
	}
	return p.Kind()
}
