package sculpt

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/ies-sculpt/backend/internal/cct"
	"github.com/ies-sculpt/backend/internal/logging"
	"github.com/ies-sculpt/backend/internal/matrix"
	"github.com/ies-sculpt/backend/internal/models"
	"github.com/ies-sculpt/backend/internal/solver"
)

// Lighting holds the colour temperatures recorded for the renderer.
type Lighting struct {
	LGPTemperature  string
	SpotTemperature string
}

// DefaultLighting returns the default colour temperatures.
func DefaultLighting() Lighting {
	return Lighting{LGPTemperature: cct.Default, SpotTemperature: cct.Default}
}

// Inputs is everything one sculpt run consumes.
type Inputs struct {
	Scene    string
	Matrix   *mat.Dense
	Target   []float64
	Profiles []*models.PhotometricProfile
	// Elements names Profiles in column order, for the summary.
	Elements []string
}

// ProgressCallback reports overall run progress from 0 to 100.
type ProgressCallback func(stage string, percent float64)

// Pipeline fits scale factors and writes the sculpted profiles.
type Pipeline struct {
	Solver     solver.Options
	Lighting   Lighting
	Sink       Sink
	Now        func() time.Time
	OnProgress ProgressCallback
}

// SceneName derives the scene label from a scene CSV path.
func SceneName(scenePath string) string {
	base := filepath.Base(scenePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Run solves for scale factors, synthesizes every luminaire and writes a
// summary.yaml next to the profiles. The matrix must have one column per
// element of every luminaire.
func (p *Pipeline) Run(ctx context.Context, in Inputs) (*Summary, error) {
	log := logging.Component("sculpt")
	started := time.Now()

	rows, cols := in.Matrix.Dims()
	e := len(in.Profiles)
	if e == 0 {
		return nil, ErrNoBaseProfiles
	}
	if cols%e != 0 {
		return nil, fmt.Errorf("%w: %d matrix columns for %d elements per luminaire", solver.ErrDimension, cols, e)
	}

	p.progress("solve", 5)
	log.Info().Str("scene", in.Scene).Int("points", rows).Int("columns", cols).Msg("Solving scale factors")

	res, err := solver.Solve(in.Matrix, in.Target, p.Solver)
	if err != nil {
		return nil, fmt.Errorf("solve %s: %w", in.Scene, err)
	}
	if !res.Converged {
		log.Warn().Int("iterations", res.Iterations).Float64("cost", res.Cost).Msg("Solver hit the iteration cap")
	}
	log.Info().Float64("cost", res.Cost).Int("iterations", res.Iterations).Str("status", res.Status.String()).Msg("Solve finished")
	p.progress("sculpt", 30)

	synth := &Synthesizer{
		Sink: p.Sink,
		Now:  p.Now,
		OnLuminaire: func(_ models.LuminaireReport, done, total int) {
			p.progress("sculpt", 30+65*float64(done)/float64(total))
		},
	}
	reports, err := synth.Run(ctx, res.X, in.Profiles, in.Scene)
	if err != nil {
		return nil, fmt.Errorf("sculpt %s: %w", in.Scene, err)
	}

	summary, err := NewSummary(in.Scene, res, reports, p.Lighting)
	if err != nil {
		return nil, err
	}
	summary.Elements = in.Elements
	summary.ElapsedMs = time.Since(started).Milliseconds()

	if err := WriteSummary(p.Sink, summary); err != nil {
		return nil, err
	}
	p.progress("complete", 100)

	return summary, nil
}

// RunFiles loads the matrix and scene CSVs and runs the pipeline.
func (p *Pipeline) RunFiles(ctx context.Context, matrixPath, scenePath string, profiles []*models.PhotometricProfile, elements []string) (*Summary, error) {
	a, err := matrix.Load(matrixPath)
	if err != nil {
		return nil, err
	}
	target, err := matrix.LoadTarget(scenePath)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, Inputs{
		Scene:    SceneName(scenePath),
		Matrix:   a,
		Target:   target,
		Profiles: profiles,
		Elements: elements,
	})
}

func (p *Pipeline) progress(stage string, pct float64) {
	if p.OnProgress != nil {
		p.OnProgress(stage, pct)
	}
}
