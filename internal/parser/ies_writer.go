package parser

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ies-sculpt/backend/internal/models"
)

// MaxDataLineLength is the length no serialized data line may reach.
const MaxDataLineLength = 256

// SerializeIES renders p in LM-63 text form. LumensPerLamp is floored at 1.0
// on p itself before writing.
func SerializeIES(p *models.PhotometricProfile) string {
	var sb strings.Builder

	sb.WriteString(p.FileSpec)
	p.Keywords.Each(func(key, value string) {
		sb.WriteString("\n[")
		sb.WriteString(key)
		sb.WriteString("]\t")
		sb.WriteString(value)
	})
	sb.WriteString("\n")
	sb.WriteString(p.Tilt)

	if p.LumensPerLamp < 1.0 {
		p.LumensPerLamp = 1.0
	}

	fmt.Fprintf(&sb, "\n%d\t%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\t%s",
		p.LampCount, formatScalar(p.LumensPerLamp), formatScalar(p.Multiplier),
		p.VerticalAngleCount, p.HorizontalAngleCount, p.PhotometricType, p.Units,
		formatScalar(p.Width), formatScalar(p.Length), formatScalar(p.Height))
	fmt.Fprintf(&sb, "\n%s\t%d\t%s",
		formatScalar(p.BallastFactor), p.FutureUse, formatScalar(p.InputWatts))

	writeWrapped(&sb, p.VerticalAngles, radToDeg)
	writeWrapped(&sb, p.HorizontalAngles, radToDeg)
	for _, row := range p.Candela {
		writeWrapped(&sb, row, nil)
	}

	return sb.String()
}

// WriteIES writes the serialized profile to w.
func WriteIES(w io.Writer, p *models.PhotometricProfile) error {
	if _, err := io.WriteString(w, SerializeIES(p)); err != nil {
		return fmt.Errorf("failed to write IES data: %w", err)
	}
	return nil
}

// WriteIESFile writes the serialized profile to path in a single write.
func WriteIESFile(path string, p *models.PhotometricProfile) error {
	if err := os.WriteFile(path, []byte(SerializeIES(p)), 0644); err != nil {
		return fmt.Errorf("failed to write IES file %s: %w", path, err)
	}
	return nil
}

// writeWrapped appends values as tab-joined %.2f tokens, starting a new
// line whenever the running line would reach MaxDataLineLength.
func writeWrapped(sb *strings.Builder, values []float64, convert func(float64) float64) {
	line := make([]byte, 0, MaxDataLineLength)
	for i, v := range values {
		if convert != nil {
			v = convert(v)
		}
		token := strconv.FormatFloat(v, 'f', 2, 64)
		switch {
		case i == 0:
			line = append(line, token...)
		case len(line)+1+len(token) < MaxDataLineLength:
			line = append(line, '\t')
			line = append(line, token...)
		default:
			sb.WriteByte('\n')
			sb.Write(line)
			line = append(line[:0], token...)
		}
	}
	sb.WriteByte('\n')
	sb.Write(line)
}

func formatScalar(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
