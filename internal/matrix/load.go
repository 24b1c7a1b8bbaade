package matrix

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/ies-sculpt/backend/internal/models"
)

// ReadCSV parses a matrix or scene CSV into a dense matrix: the header row
// and the SENSOR_ID column are dropped.
func ReadCSV(r io.Reader) (*mat.Dense, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var (
		data  []float64
		rows  int
		width = -1
	)
	for header := true; ; header = false {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read matrix CSV: %w", err)
		}
		if header {
			continue
		}
		line, _ := reader.FieldPos(0)
		if len(record) < 2 {
			return nil, &ShapeError{Line: line, Expected: 2, Got: len(record), Reason: "data row needs a label and at least one value"}
		}
		if width < 0 {
			width = len(record) - 1
		} else if len(record)-1 != width {
			return nil, &ShapeError{Line: line, Expected: width, Got: len(record) - 1, Reason: "ragged data row"}
		}

		for _, field := range record[1:] {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid value %q: %w", line, field, err)
			}
			data = append(data, v)
		}
		rows++
	}

	if rows == 0 {
		return nil, &ShapeError{Expected: 1, Got: 0, Reason: "no data rows"}
	}
	return mat.NewDense(rows, width, data), nil
}

// Load reads the matrix or scene CSV at path.
func Load(path string) (*mat.Dense, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	m, err := ReadCSV(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// TargetColumn extracts the target illuminance from a loaded scene: its
// first value column.
func TargetColumn(scene *mat.Dense) []float64 {
	rows, _ := scene.Dims()
	return mat.Col(make([]float64, rows), 0, scene)
}

// LoadTarget reads the target vector from the scene CSV at path.
func LoadTarget(path string) ([]float64, error) {
	scene, err := Load(path)
	if err != nil {
		return nil, err
	}
	return TargetColumn(scene), nil
}

// ToDense converts an in-memory contribution matrix to a dense matrix.
func ToDense(m *models.ContributionMatrix) (*mat.Dense, error) {
	text, err := Serialize(m)
	if err != nil {
		return nil, err
	}
	return ReadCSV(strings.NewReader(text))
}
