package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/ies-sculpt/backend/internal/models"
)

// LuminairesParser reads luminaires.txt placement files.
// Format: "idx,transform" per line, e.g. "3,-rz 90 -t 12 4 2.7".
type LuminairesParser struct{}

func NewLuminairesParser() *LuminairesParser {
	return &LuminairesParser{}
}

func (p *LuminairesParser) Name() string {
	return "luminaires"
}

func (p *LuminairesParser) Kind() models.FileKind {
	return models.FileKindLuminaires
}

func (p *LuminairesParser) CanParse(filePath string) (bool, error) {
	lines, err := sniff(filePath, sniffLines)
	if err != nil {
		return false, err
	}
	if len(lines) == 0 {
		return false, nil
	}
	for _, line := range lines {
		idx, xform, ok := strings.Cut(line, ",")
		if !ok || strings.TrimSpace(xform) == "" {
			return false, nil
		}
		if _, err := strconv.Atoi(strings.TrimSpace(idx)); err != nil {
			return false, nil
		}
	}
	return true, nil
}

// ParseLuminaires reads the placement file at path. Rows are returned sorted
// by index; malformed rows are skipped and reported.
func ParseLuminaires(path string) ([]models.Luminaire, []*models.ParseError, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open luminaires file: %w", err)
	}
	defer file.Close()

	return ParseLuminairesReader(file)
}

// ParseLuminairesReader reads placements from r.
func ParseLuminairesReader(r io.Reader) ([]models.Luminaire, []*models.ParseError, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	luminaires := make([]models.Luminaire, 0)
	parseErrors := make([]*models.ParseError, 0)

	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				parseErrors = append(parseErrors, &models.ParseError{Line: perr.Line, Reason: perr.Err.Error()})
				continue
			}
			return nil, parseErrors, fmt.Errorf("failed to read luminaires: %w", err)
		}
		line, _ := reader.FieldPos(0)

		if len(record) < 2 {
			parseErrors = append(parseErrors, &models.ParseError{
				Line:    line,
				Content: strings.Join(record, ","),
				Reason:  "expected idx,transform",
			})
			continue
		}
		idx, err := strconv.Atoi(strings.TrimSpace(record[0]))
		if err != nil {
			parseErrors = append(parseErrors, &models.ParseError{
				Line:    line,
				Content: strings.Join(record, ","),
				Reason:  "invalid luminaire index",
			})
			continue
		}

		luminaires = append(luminaires, models.Luminaire{
			Index:     idx,
			Transform: strings.TrimSpace(record[1]),
		})
	}

	sort.SliceStable(luminaires, func(i, j int) bool {
		return luminaires[i].Index < luminaires[j].Index
	})

	return luminaires, parseErrors, nil
}

// SplitTransforms splits a transform string into ordered "-flag args"
// groups so they can be applied one after another:
//
//	"-rz 90 -t 1 -2 3" -> ["-rz 90", "-t 1 -2 3"]
//
// A dash followed by a letter starts a new group; a dash followed by
// anything else is a negative number and stays in the current group.
func SplitTransforms(xform string) []string {
	groups := make([]string, 0)
	current := ""
	for _, part := range strings.Split(xform, "-") {
		if part == "" {
			continue
		}
		if unicode.IsLetter([]rune(part)[0]) {
			if current != "" {
				groups = append(groups, strings.TrimSpace(current))
			}
			current = "-" + part
		} else {
			current += "-" + part
		}
	}
	if current != "" {
		groups = append(groups, strings.TrimSpace(current))
	}
	return groups
}
