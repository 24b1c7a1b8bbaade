// Package matrix assembles contribution matrices from per-element sensor
// simulations and loads them back as dense matrices for fitting.
package matrix

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/ies-sculpt/backend/internal/models"
)

// LuminousEfficacy converts radiance-weighted samples to photopic lux.
const LuminousEfficacy = 179.0

// Photopic returns 179 × (0.265R + 0.67G + 0.065B) rounded to 2 decimals.
func Photopic(r, g, b float64) float64 {
	v := LuminousEfficacy * (0.265*r + 0.67*g + 0.065*b)
	return math.Round(v*100) / 100
}

// PhotopicSample converts one oracle sample.
func PhotopicSample(s models.Sample) float64 {
	return Photopic(s.R, s.G, s.B)
}

// ParseSampleLine reads one "r\tg\tb" record.
func ParseSampleLine(line string) (models.Sample, error) {
	fields := strings.Split(strings.TrimSpace(line), "\t")
	if len(fields) != 3 {
		return models.Sample{}, &ShapeError{
			Expected: 3,
			Got:      len(fields),
			Reason:   "sample record must have 3 tab-separated fields",
		}
	}

	var vals [3]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return models.Sample{}, fmt.Errorf("invalid sample value %q: %w", f, err)
		}
		vals[i] = v
	}
	return models.Sample{R: vals[0], G: vals[1], B: vals[2]}, nil
}

// ReadSamples reads oracle samples from r in grid order. A blank line ends
// the sequence. source names r in errors.
func ReadSamples(r io.Reader, source string) ([]models.Sample, error) {
	scanner := bufio.NewScanner(r)
	samples := make([]models.Sample, 0, 256)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			break
		}
		s, err := ParseSampleLine(line)
		if err != nil {
			if se, ok := err.(*ShapeError); ok {
				se.Source = source
				se.Line = lineNum
				return nil, se
			}
			return nil, fmt.Errorf("%s line %d: %w", source, lineNum, err)
		}
		samples = append(samples, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read samples from %s: %w", source, err)
	}
	return samples, nil
}

// ReadSampleFile reads a .res result file.
func ReadSampleFile(path string) ([]models.Sample, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open result file: %w", err)
	}
	defer file.Close()

	return ReadSamples(file, path)
}
