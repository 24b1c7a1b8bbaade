package matrix

import (
	"errors"
	"fmt"
	"strings"
)

// ErrShape is matched by every *ShapeError.
var ErrShape = errors.New("matrix shape mismatch")

// ShapeError reports a record, column or row whose size disagrees with the
// matrix it belongs to. Line is the 1-based line of a sample file. Row is the
// index into ContributionMatrix.Rows; the header is row 0 and never reported,
// so the first data row is 1. Both are zero when unknown.
type ShapeError struct {
	Source   string
	Line     int
	Row      int
	Expected int
	Got      int
	Reason   string
}

func (e *ShapeError) Error() string {
	var sb strings.Builder
	sb.WriteString(ErrShape.Error())
	if e.Source != "" {
		fmt.Fprintf(&sb, ": %s", e.Source)
	}
	if e.Line > 0 {
		fmt.Fprintf(&sb, ": line %d", e.Line)
	}
	if e.Row > 0 {
		fmt.Fprintf(&sb, ": row %d", e.Row)
	}
	fmt.Fprintf(&sb, ": %s (expected %d, got %d)", e.Reason, e.Expected, e.Got)
	return sb.String()
}

func (e *ShapeError) Unwrap() error { return ErrShape }
