package parser

import (
	"bufio"
	"os"
	"strings"

	"github.com/ies-sculpt/backend/internal/models"
)

// sniffLines is how many non-empty lines the detectors inspect.
const sniffLines = 10

// sniff returns up to n non-empty lines from the start of filePath.
func sniff(filePath string, n int) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	lines := make([]string, 0, n)
	for scanner.Scan() && len(lines) < n {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), utf8BOM))
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

// allNumeric reports whether every field parses as a float.
func allNumeric(fields []string) bool {
	for _, f := range fields {
		if _, err := parseFloatToken(f); err != nil {
			return false
		}
	}
	return true
}

// MatrixCSVParser recognises contribution matrix CSV files.
// Format: "SENSOR_ID,<label>,..." followed by "PT_0000,<value>,...".
// Scene files share this shape and are told apart only by how they are
// uploaded.
type MatrixCSVParser struct{}

func NewMatrixCSVParser() *MatrixCSVParser {
	return &MatrixCSVParser{}
}

func (p *MatrixCSVParser) Name() string {
	return "matrix_csv"
}

func (p *MatrixCSVParser) Kind() models.FileKind {
	return models.FileKindMatrix
}

func (p *MatrixCSVParser) CanParse(filePath string) (bool, error) {
	lines, err := sniff(filePath, 2)
	if err != nil {
		return false, err
	}
	if len(lines) == 0 {
		return false, nil
	}
	header := strings.Split(lines[0], ",")
	return len(header) >= 2 && strings.TrimSpace(header[0]) == models.SensorIDHeader, nil
}

// ResultsParser recognises oracle result files: one "r\tg\tb" triple per line.
type ResultsParser struct{}

func NewResultsParser() *ResultsParser {
	return &ResultsParser{}
}

func (p *ResultsParser) Name() string {
	return "results"
}

func (p *ResultsParser) Kind() models.FileKind {
	return models.FileKindResults
}

func (p *ResultsParser) CanParse(filePath string) (bool, error) {
	lines, err := sniff(filePath, sniffLines)
	if err != nil {
		return false, err
	}
	if len(lines) == 0 {
		return false, nil
	}
	for _, line := range lines {
		fields := strings.Split(line, "\t")
		if len(fields) != 3 || !allNumeric(fields) {
			return false, nil
		}
	}
	return true, nil
}

// GridParser recognises sensor grid files: "x y z dx dy dz" per line.
type GridParser struct{}

func NewGridParser() *GridParser {
	return &GridParser{}
}

func (p *GridParser) Name() string {
	return "grid"
}

func (p *GridParser) Kind() models.FileKind {
	return models.FileKindGrid
}

func (p *GridParser) CanParse(filePath string) (bool, error) {
	lines, err := sniff(filePath, sniffLines)
	if err != nil {
		return false, err
	}
	if len(lines) == 0 {
		return false, nil
	}
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) != 6 || !allNumeric(fields) {
			return false, nil
		}
	}
	return true, nil
}
