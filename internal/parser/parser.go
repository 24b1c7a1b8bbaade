package parser

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/ies-sculpt/backend/internal/models"
)

// Parser recognises one kind of input file.
type Parser interface {
	// Name returns the unique name of the parser.
	Name() string
	// Kind is the stored-file kind this parser recognises.
	Kind() models.FileKind
	// CanParse returns true if this parser can handle the given file.
	CanParse(filePath string) (bool, error)
}

// maxLineSize bounds a single physical line. LM-63 caps data lines at 256
// characters but keyword and CSV lines in the wild run longer.
const maxLineSize = 4 * 1024 * 1024

const utf8BOM = "\xEF\xBB\xBF"

// readLines reads every line of r with line endings removed.
func readLines(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	lines := make([]string, 0, 64)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if len(lines) == 0 {
			line = strings.TrimPrefix(line, utf8BOM)
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

// splitTokens splits a data line on spaces, commas and tabs in any
// combination.
func splitTokens(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		return r == ' ' || r == ',' || r == '\t' || r == '\r' || r == '\n'
	})
}

func parseIntToken(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

func parseFloatToken(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

func degToRad(deg float64) float64 {
	return deg / 180.0 * math.Pi
}

func radToDeg(rad float64) float64 {
	return rad / math.Pi * 180.0
}
