package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"gopkg.in/cheggaaa/pb.v1"

	"github.com/ies-sculpt/backend/internal/config"
	"github.com/ies-sculpt/backend/internal/logging"
	"github.com/ies-sculpt/backend/internal/matrix"
	"github.com/ies-sculpt/backend/internal/models"
	"github.com/ies-sculpt/backend/internal/parser"
	"github.com/ies-sculpt/backend/internal/sculpt"
)

// runMatrix builds the contribution matrix. With positional .res files it
// builds one column per file; otherwise it walks luminaires x elements over
// the project's results directory. -profile replaces the elements with one
// conventional fixture profile, for comparison runs.
func runMatrix(ctx context.Context, cfg *config.AppConfig, args []string) error {
	fs := flag.NewFlagSet("matrix", flag.ExitOnError)
	out := fs.String("out", cfg.Project.MatrixFile, "matrix CSV to write")
	grid := fs.String("grid", cfg.Project.GridFile, "sensor grid .pts file")
	results := fs.String("results", cfg.Project.ResultsDir, "directory of Troffer_{idx}_{element}.res files")
	luminaires := fs.String("luminaires", cfg.Project.LuminairesFile, "luminaire placement file")
	baseDir := fs.String("base", cfg.Project.BaseIESDir, "directory of base element profiles")
	profile := fs.String("profile", "", "single profile used at every luminaire instead of the base elements")
	startLum := fs.Int("start-luminaire", 0, "resume at this luminaire index")
	startEl := fs.Int("start-element", 0, "resume at this element within the start luminaire")
	fs.Parse(args)

	log := logging.Component("matrix")

	points, err := countPoints(*grid)
	if err != nil {
		return err
	}

	if fs.NArg() > 0 {
		m, err := matrix.BuildFromResultFiles(points, fs.Args())
		if err != nil {
			return err
		}
		return writeMatrix(*out, m)
	}

	lums, noise, err := parser.ParseLuminaires(*luminaires)
	if err != nil {
		return err
	}
	for _, pe := range noise {
		log.Warn().Int("line", pe.Line).Str("content", pe.Content).Msg(pe.Reason)
	}
	elements := []string{filepath.Base(*profile)}
	if *profile == "" {
		if elements, err = parser.ElementNames(*baseDir, cfg.Project.FixtureManifest); err != nil {
			return err
		}
	}

	m := matrix.Seed(points)
	if *startLum > 0 || *startEl > 0 {
		// Resuming appends to the partial matrix written by the failed run.
		if m, err = matrix.ReadContributionFile(*out); err != nil {
			return fmt.Errorf("cannot resume: %w", err)
		}
	}

	b := &matrix.Builder{
		Oracle:         &matrix.ResultDirOracle{Dir: *results},
		Luminaires:     lums,
		Elements:       trimExt(elements),
		StartLuminaire: *startLum,
		StartElement:   *startEl,
	}

	bar := pb.StartNew(len(b.Plan()))
	b.OnProgress = func(string, int, int) { bar.Increment() }
	buildErr := b.Build(ctx, m)
	bar.Finish()

	if err := writeMatrix(*out, m); err != nil {
		return err
	}
	if buildErr != nil {
		return fmt.Errorf("matrix build stopped after %d columns, partial matrix saved to %s: %w", m.ColumnCount(), *out, buildErr)
	}
	return nil
}

func countPoints(gridPath string) (int, error) {
	seed, err := matrix.SeedFromGrid(gridPath)
	if err != nil {
		return 0, err
	}
	return seed.PointCount(), nil
}

func writeMatrix(path string, m *models.ContributionMatrix) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	if err := matrix.WriteFile(path, m); err != nil {
		return err
	}
	log := logging.Component("matrix")
	log.Info().
		Str("path", path).
		Int("points", m.PointCount()).
		Int("columns", m.ColumnCount()).
		Msg("Matrix written")
	return nil
}

func trimExt(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = n[:len(n)-len(filepath.Ext(n))]
	}
	return out
}

// runOptimize fits one or more scene CSVs and writes the sculpted profiles.
func runOptimize(ctx context.Context, cfg *config.AppConfig, args []string) error {
	fs := flag.NewFlagSet("optimize", flag.ExitOnError)
	matrixPath := fs.String("matrix", cfg.Project.MatrixFile, "contribution matrix CSV")
	baseDir := fs.String("base", cfg.Project.BaseIESDir, "directory of base element profiles")
	outDir := fs.String("out", cfg.Project.SculptedDir, "directory for sculpted profiles")
	fs.Parse(args)

	scenes := fs.Args()
	if len(scenes) == 0 {
		matches, err := filepath.Glob(filepath.Join(cfg.Project.ScenariosDir, "*.csv"))
		if err != nil {
			return err
		}
		for _, m := range matches {
			if filepath.Clean(m) != filepath.Clean(*matrixPath) {
				scenes = append(scenes, m)
			}
		}
	}
	if len(scenes) == 0 {
		return errors.New("no scene files to optimize")
	}

	log := logging.Component("sculpt")
	profiles, elements, noise, err := parser.LoadBaseProfiles(*baseDir, cfg.Project.FixtureManifest)
	if err != nil {
		return err
	}
	for name, errs := range noise {
		log.Warn().Str("element", name).Int("issues", len(errs)).Msg("Tolerated parse errors in base profile")
	}

	for _, scene := range scenes {
		dir := filepath.Join(*outDir, sculpt.SceneName(scene))
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}

		bar := pb.StartNew(100)
		bar.Prefix(sculpt.SceneName(scene) + " ")
		p := &sculpt.Pipeline{
			Solver:   cfg.SolverOptions(),
			Lighting: cfg.LightingOptions(),
			Sink:     sculpt.DirSink{Dir: dir},
			OnProgress: func(_ string, pct float64) {
				bar.Set(int(pct))
			},
		}
		summary, err := p.RunFiles(ctx, *matrixPath, scene, profiles, trimExt(elements))
		bar.Finish()
		if err != nil {
			return err
		}

		fmt.Printf("%s: cost %.6g, %d iterations, converged %t, %d profiles in %s\n",
			summary.Scene, summary.Cost, summary.Iterations, summary.Converged, len(summary.OutputFiles()), dir)
	}
	return nil
}

// runInspect prints a profile as indented JSON.
func runInspect(_ context.Context, _ *config.AppConfig, args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("usage: sculpt inspect <profile.ies>")
	}

	profile, parseErrors, err := parser.ParseIES(fs.Arg(0))
	if err != nil {
		return err
	}

	report := struct {
		FileSpec    string               `json:"fileSpec"`
		Keywords    []models.KeywordPair `json:"keywords"`
		Tilt        string               `json:"tilt"`
		Vertical    int                  `json:"verticalAngleCount"`
		Horizontal  int                  `json:"horizontalAngleCount"`
		MaxCandela  float64              `json:"maxCandela"`
		LumenOutput float64              `json:"lumenOutput"`
		Candela     [][]float64          `json:"candela"`
		Errors      []*models.ParseError `json:"errors,omitempty"`
	}{
		FileSpec:    profile.FileSpec,
		Keywords:    profile.Keywords.Pairs(),
		Tilt:        profile.Tilt,
		Vertical:    profile.VerticalAngleCount,
		Horizontal:  profile.HorizontalAngleCount,
		MaxCandela:  profile.RecomputeMaxCandela(),
		LumenOutput: profile.Copy().CalculateLumenOutput(),
		Candela:     profile.Candela,
		Errors:      parseErrors,
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// runScale writes a copy of a profile with every candela value multiplied.
func runScale(_ context.Context, _ *config.AppConfig, args []string) error {
	fs := flag.NewFlagSet("scale", flag.ExitOnError)
	factor := fs.Float64("factor", 1, "candela multiplier")
	out := fs.String("out", "", "output path (default: <name>_scaled.ies)")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("usage: sculpt scale -factor F [-out path] <profile.ies>")
	}

	in := fs.Arg(0)
	profile, _, err := parser.ParseIES(in)
	if err != nil {
		return err
	}
	profile.Scale(*factor)
	profile.RecomputeMaxCandela()

	path := *out
	if path == "" {
		path = in[:len(in)-len(filepath.Ext(in))] + "_scaled.ies"
	}
	if err := parser.WriteIESFile(path, profile); err != nil {
		return err
	}
	fmt.Printf("Wrote %s (max candela %g)\n", path, profile.MaxCandela)
	return nil
}
