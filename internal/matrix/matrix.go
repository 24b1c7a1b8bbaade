package matrix

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ies-sculpt/backend/internal/models"
)

// PointLabel returns the SENSOR_ID label of grid point i.
func PointLabel(i int) string {
	return fmt.Sprintf("PT_%04d", i)
}

// Seed returns a matrix with only the SENSOR_ID column filled in.
func Seed(gridPointCount int) *models.ContributionMatrix {
	rows := make([][]string, 0, gridPointCount+1)
	rows = append(rows, []string{models.SensorIDHeader})
	for i := 0; i < gridPointCount; i++ {
		rows = append(rows, []string{PointLabel(i)})
	}
	return &models.ContributionMatrix{Rows: rows}
}

// CountGridPoints counts sensor points in a .pts grid. Counting stops at
// the first blank line.
func CountGridPoints(r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	count := 0
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) == "" {
			break
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return count, nil
}

// SeedFromGrid seeds a matrix with one row per point of the grid at path.
func SeedFromGrid(path string) (*models.ContributionMatrix, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open grid file: %w", err)
	}
	defer file.Close()

	n, err := CountGridPoints(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read grid file %s: %w", path, err)
	}
	return Seed(n), nil
}

// AddColumn appends label to the header and one photopic value per sensor
// point. The matrix is left unchanged when the sample count differs from
// the point count.
func AddColumn(m *models.ContributionMatrix, label string, samples []models.Sample) error {
	points := m.PointCount()
	if len(samples) != points {
		line := points + 1
		if len(samples) < points {
			line = len(samples) + 1
		}
		return &ShapeError{
			Source:   label,
			Line:     line,
			Expected: points,
			Got:      len(samples),
			Reason:   "sample count does not match sensor point count",
		}
	}

	m.Rows[0] = append(m.Rows[0], label)
	for i, s := range samples {
		m.Rows[i+1] = append(m.Rows[i+1], formatValue(PhotopicSample(s)))
	}
	return nil
}

// Serialize renders m as CSV text without a trailing newline. A row whose
// width differs from the header is reported and nothing is returned.
func Serialize(m *models.ContributionMatrix) (string, error) {
	if len(m.Rows) == 0 {
		return "", nil
	}

	width := len(m.Rows[0])
	var sb strings.Builder
	for i, row := range m.Rows {
		if len(row) != width {
			return "", &ShapeError{
				Row:      i,
				Expected: width,
				Got:      len(row),
				Reason:   "row column count does not match header",
			}
		}
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(strings.Join(row, ","))
	}
	return sb.String(), nil
}

// WriteFile serializes m and writes it to path in one write.
func WriteFile(path string, m *models.ContributionMatrix) error {
	data, err := Serialize(m)
	if err != nil {
		return fmt.Errorf("failed to serialize matrix for %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		return fmt.Errorf("failed to write matrix: %w", err)
	}
	return nil
}

// ReadContribution reads a serialized matrix back as text rows, for resuming
// an interrupted build.
func ReadContribution(r io.Reader) (*models.ContributionMatrix, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 0

	rows := make([][]string, 0)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) && errors.Is(perr.Err, csv.ErrFieldCount) {
				return nil, &ShapeError{
					Row:      len(rows),
					Expected: len(rows[0]),
					Got:      len(record),
					Reason:   "row column count does not match header",
				}
			}
			return nil, fmt.Errorf("failed to read matrix: %w", err)
		}
		rows = append(rows, record)
	}

	if len(rows) == 0 || len(rows[0]) == 0 || rows[0][0] != models.SensorIDHeader {
		return nil, fmt.Errorf("matrix header must start with %s", models.SensorIDHeader)
	}
	return &models.ContributionMatrix{Rows: rows}, nil
}

// ReadContributionFile reads a serialized matrix from path.
func ReadContributionFile(path string) (*models.ContributionMatrix, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open matrix: %w", err)
	}
	defer file.Close()

	return ReadContribution(file)
}

// BuildFromResultFiles builds a matrix with one column per result file,
// labelled by file name without extension, in the order given.
func BuildFromResultFiles(gridPoints int, files []string) (*models.ContributionMatrix, error) {
	m := Seed(gridPoints)
	for _, path := range files {
		samples, err := ReadSampleFile(path)
		if err != nil {
			return nil, err
		}
		label := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if err := AddColumn(m, label, samples); err != nil {
			return nil, fmt.Errorf("failed to add %s: %w", path, err)
		}
	}
	return m, nil
}

// formatValue writes v in its shortest form, keeping ".0" on whole numbers
// so dark points read "0.0" rather than "0".
func formatValue(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if math.IsInf(v, 0) || math.IsNaN(v) || strings.ContainsRune(s, '.') {
		return s
	}
	return s + ".0"
}
