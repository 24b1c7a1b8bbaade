package matrix

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ies-sculpt/backend/internal/logging"
	"github.com/ies-sculpt/backend/internal/models"
)

// Oracle simulates one element profile placed at one luminaire and returns
// one sample per sensor point, in grid order.
type Oracle interface {
	Simulate(ctx context.Context, lum models.Luminaire, element string) ([]models.Sample, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, lum models.Luminaire, element string) ([]models.Sample, error)

func (f OracleFunc) Simulate(ctx context.Context, lum models.Luminaire, element string) ([]models.Sample, error) {
	return f(ctx, lum, element)
}

// ColumnLabel names the matrix column for one luminaire element.
func ColumnLabel(luminaireIndex int, element string) string {
	return fmt.Sprintf("Troffer_%d_%s", luminaireIndex, element)
}

// ProgressCallback is called after each column is added.
type ProgressCallback func(label string, done, total int)

// Builder fills a matrix by invoking an oracle for every (luminaire, element)
// pair. Luminaires run in ascending index order and elements in the order
// given, which fixes the column order the solver and synthesizer rely on.
type Builder struct {
	Oracle     Oracle
	Luminaires []models.Luminaire
	Elements   []string

	// StartLuminaire and StartElement resume an interrupted build:
	// luminaires below StartLuminaire are skipped, and within StartLuminaire
	// the first StartElement elements are skipped.
	StartLuminaire int
	StartElement   int

	OnProgress ProgressCallback
}

// Plan returns the (luminaire, element) pairs Build will visit, in order.
func (b *Builder) Plan() []Column {
	lums := make([]models.Luminaire, len(b.Luminaires))
	copy(lums, b.Luminaires)
	sort.SliceStable(lums, func(i, j int) bool { return lums[i].Index < lums[j].Index })

	plan := make([]Column, 0, len(lums)*len(b.Elements))
	for _, lum := range lums {
		if lum.Index < b.StartLuminaire {
			continue
		}
		for e, element := range b.Elements {
			if lum.Index == b.StartLuminaire && e < b.StartElement {
				continue
			}
			plan = append(plan, Column{Luminaire: lum, Element: element, Label: ColumnLabel(lum.Index, element)})
		}
	}
	return plan
}

// Column is one planned matrix column.
type Column struct {
	Luminaire models.Luminaire
	Element   string
	Label     string
}

// Build appends one column per planned pair to m. The first oracle or shape
// error aborts the build; columns already added stay in m so the caller can
// save them and resume.
func (b *Builder) Build(ctx context.Context, m *models.ContributionMatrix) error {
	if b.Oracle == nil {
		return fmt.Errorf("matrix builder has no oracle")
	}

	log := logging.Component("matrix")
	plan := b.Plan()
	log.Info().
		Int("luminaires", len(b.Luminaires)).
		Int("elements", len(b.Elements)).
		Int("columns", len(plan)).
		Int("points", m.PointCount()).
		Msg("Building contribution matrix")

	for i, col := range plan {
		if err := ctx.Err(); err != nil {
			return err
		}

		samples, err := b.Oracle.Simulate(ctx, col.Luminaire, col.Element)
		if err != nil {
			return fmt.Errorf("simulation failed for %s: %w", col.Label, err)
		}
		if err := AddColumn(m, col.Label, samples); err != nil {
			return err
		}

		log.Debug().Str("column", col.Label).Int("done", i+1).Msg("Column added")
		if b.OnProgress != nil {
			b.OnProgress(col.Label, i+1, len(plan))
		}
	}

	return nil
}

// ResultDirOracle serves precomputed results from Dir, one
// "Troffer_{idx}_{element}.res" file per column.
type ResultDirOracle struct {
	Dir string
}

func (o *ResultDirOracle) Simulate(ctx context.Context, lum models.Luminaire, element string) ([]models.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(o.Dir, ColumnLabel(lum.Index, element)+".res")
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("no result for luminaire %d element %s: %w", lum.Index, element, err)
	}
	return ReadSampleFile(path)
}
