package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ies-sculpt/backend/internal/models"
)

// FormatMarker must appear on the first line of every photometric file.
const FormatMarker = "LM-63-2002"

// ErrFormat is matched by every *FormatError.
var ErrFormat = errors.New("unrecognized photometric document")

// FormatError reports a photometric document whose header cannot be read.
type FormatError struct {
	Source string
	Reason string
}

func (e *FormatError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("%v: %s", ErrFormat, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %s", ErrFormat, e.Source, e.Reason)
}

func (e *FormatError) Unwrap() error { return ErrFormat }

// iesField is the position of the token reader inside the numeric section.
type iesField int

const (
	fieldLampCount iesField = iota
	fieldLumensPerLamp
	fieldMultiplier
	fieldVerticalCount
	fieldHorizontalCount
	fieldPhotometricType
	fieldUnits
	fieldWidth
	fieldLength
	fieldHeight
	fieldBallastFactor
	fieldFutureUse
	fieldInputWatts
	fieldVerticalAngles
	fieldHorizontalAngles
	fieldCandela
)

var fieldNames = [...]string{
	"lamp count", "lumens per lamp", "multiplier", "vertical angle count",
	"horizontal angle count", "photometric type", "units", "width", "length",
	"height", "ballast factor", "future use", "input watts", "vertical angle",
	"horizontal angle", "candela",
}

func (f iesField) String() string {
	if int(f) < len(fieldNames) {
		return fieldNames[f]
	}
	return "unknown"
}

// IESParser reads IESNA LM-63 photometric files.
type IESParser struct{}

func NewIESParser() *IESParser {
	return &IESParser{}
}

func (p *IESParser) Name() string {
	return "ies"
}

func (p *IESParser) Kind() models.FileKind {
	return models.FileKindProfile
}

// CanParse reports whether the first line carries the LM-63 marker.
func (p *IESParser) CanParse(filePath string) (bool, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return false, err
	}
	defer file.Close()

	first, err := bufio.NewReader(file).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	return strings.Contains(first, FormatMarker), nil
}

// Parse reads the profile stored at filePath.
func (p *IESParser) Parse(filePath string) (*models.PhotometricProfile, []*models.ParseError, error) {
	return ParseIES(filePath)
}

// ParseIES parses the photometric file at path.
func ParseIES(path string) (*models.PhotometricProfile, []*models.ParseError, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open IES file: %w", err)
	}
	defer file.Close()

	profile, parseErrors, err := parseIES(file, path)
	if err != nil {
		return nil, parseErrors, err
	}
	return profile, parseErrors, nil
}

// ParseIESString parses photometric text held in memory.
func ParseIESString(text string) (*models.PhotometricProfile, []*models.ParseError, error) {
	return parseIES(strings.NewReader(text), "")
}

// ParseIESReader parses photometric text from r.
func ParseIESReader(r io.Reader) (*models.PhotometricProfile, []*models.ParseError, error) {
	return parseIES(r, "")
}

// ParseIESAuto treats textOrPath as a path when a regular file exists there,
// and as raw photometric text otherwise.
func ParseIESAuto(textOrPath string) (*models.PhotometricProfile, []*models.ParseError, error) {
	if !strings.ContainsAny(textOrPath, "\n\r") {
		if info, err := os.Stat(textOrPath); err == nil && !info.IsDir() {
			return ParseIES(textOrPath)
		}
	}
	return ParseIESString(textOrPath)
}

func parseIES(r io.Reader, source string) (*models.PhotometricProfile, []*models.ParseError, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read IES data: %w", err)
	}

	if len(lines) == 0 {
		return nil, nil, &FormatError{Source: source, Reason: "empty document"}
	}
	if !strings.Contains(lines[0], FormatMarker) {
		return nil, nil, &FormatError{Source: source, Reason: fmt.Sprintf("first line does not contain %s", FormatMarker)}
	}

	profile := models.NewPhotometricProfile()
	parseErrors := make([]*models.ParseError, 0)
	profile.FileSpec = strings.TrimSpace(lines[0])

	// Keyword block ends at the TILT= line. Without one, the last line is
	// taken as the tilt and there is no numeric section.
	idx := 1
	tiltFound := false
	for ; idx < len(lines); idx++ {
		line := lines[idx]
		if strings.Contains(line, "TILT=") {
			tiltFound = true
			break
		}
		key, value, ok := strings.Cut(strings.ReplaceAll(line, "[", ""), "]")
		if ok {
			profile.Keywords.Set(strings.TrimSpace(key), strings.TrimSpace(value))
		}
	}
	if !tiltFound {
		idx = len(lines) - 1
		parseErrors = append(parseErrors, &models.ParseError{
			Line:    idx + 1,
			Content: lines[idx],
			Reason:  "no TILT= line found",
		})
	}
	profile.Tilt = strings.TrimSpace(lines[idx])

	if !tiltFound {
		return profile, parseErrors, nil
	}

	state := fieldLampCount
	row := make([]float64, 0)
	for n := idx + 1; n < len(lines); n++ {
		for _, token := range splitTokens(lines[n]) {
			if state == fieldCandela {
				c, err := parseFloatToken(token)
				if err != nil {
					parseErrors = append(parseErrors, tokenError(n+1, token, state))
					continue
				}
				if profile.VerticalAngleCount > 0 && len(row) == profile.VerticalAngleCount {
					profile.Candela = append(profile.Candela, row)
					row = make([]float64, 0, profile.VerticalAngleCount)
				}
				row = append(row, c)
				if c > profile.MaxCandela {
					profile.MaxCandela = c
				}
				continue
			}

			if !assignField(profile, state, token) {
				parseErrors = append(parseErrors, tokenError(n+1, token, state))
				continue
			}
			state = nextField(profile, state)
		}
	}
	if len(row) > 0 {
		profile.Candela = append(profile.Candela, row)
	}

	return profile, parseErrors, nil
}

// assignField stores token into the field named by state. It returns false
// when the token does not parse for that field.
func assignField(p *models.PhotometricProfile, state iesField, token string) bool {
	switch state {
	case fieldLampCount, fieldVerticalCount, fieldHorizontalCount,
		fieldPhotometricType, fieldUnits, fieldFutureUse:
		v, err := parseIntToken(token)
		if err != nil {
			return false
		}
		switch state {
		case fieldLampCount:
			p.LampCount = v
		case fieldVerticalCount:
			p.VerticalAngleCount = v
		case fieldHorizontalCount:
			p.HorizontalAngleCount = v
		case fieldPhotometricType:
			p.PhotometricType = v
		case fieldUnits:
			p.Units = v
		case fieldFutureUse:
			p.FutureUse = v
		}
		return true
	}

	v, err := parseFloatToken(token)
	if err != nil {
		return false
	}
	switch state {
	case fieldLumensPerLamp:
		p.LumensPerLamp = v
	case fieldMultiplier:
		p.Multiplier = v
	case fieldWidth:
		p.Width = v
	case fieldLength:
		p.Length = v
	case fieldHeight:
		p.Height = v
	case fieldBallastFactor:
		p.BallastFactor = v
	case fieldInputWatts:
		p.InputWatts = v
	case fieldVerticalAngles:
		p.VerticalAngles = append(p.VerticalAngles, degToRad(v))
	case fieldHorizontalAngles:
		p.HorizontalAngles = append(p.HorizontalAngles, degToRad(v))
	default:
		return false
	}
	return true
}

// nextField advances after a successful assignment. Angle states hold until
// their declared count is reached.
func nextField(p *models.PhotometricProfile, state iesField) iesField {
	switch state {
	case fieldInputWatts, fieldVerticalAngles:
		if len(p.VerticalAngles) < p.VerticalAngleCount {
			return fieldVerticalAngles
		}
		if len(p.HorizontalAngles) < p.HorizontalAngleCount {
			return fieldHorizontalAngles
		}
		return fieldCandela
	case fieldHorizontalAngles:
		if len(p.HorizontalAngles) < p.HorizontalAngleCount {
			return fieldHorizontalAngles
		}
		return fieldCandela
	default:
		return state + 1
	}
}

func tokenError(line int, token string, state iesField) *models.ParseError {
	return &models.ParseError{
		Line:    line,
		Content: token,
		Reason:  fmt.Sprintf("invalid %s", state),
	}
}
