// synthesizer_test.go - Tests for profile synthesis and the sculpt pipeline
package sculpt

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/ies-sculpt/backend/internal/models"
	"github.com/ies-sculpt/backend/internal/parser"
	"github.com/ies-sculpt/backend/internal/solver"
)

const elementIES = `IESNA:LM-63-2002
[TEST] element
[MANUFAC] Acme Lighting
TILT=NONE
1 1000 1 3 2 1 2 0.5 1.2 0.1
1.0 1 25
0 45 90
0 90
100 80 20
110 70 10`

// memorySink collects outputs in memory.
type memorySink struct {
	mu    sync.Mutex
	files map[string][]byte
	order []string
	fail  string
}

func newMemorySink() *memorySink {
	return &memorySink{files: make(map[string][]byte)}
}

func (m *memorySink) WriteFile(name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if name == m.fail {
		return errors.New("disk full")
	}
	m.files[name] = data
	m.order = append(m.order, name)
	return nil
}

func (m *memorySink) names() []string {
	names := make([]string, 0, len(m.files))
	for n := range m.files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func baseProfiles(t *testing.T, n int) []*models.PhotometricProfile {
	t.Helper()
	profiles := make([]*models.PhotometricProfile, n)
	for i := range profiles {
		p, _, err := parser.ParseIESString(elementIES)
		require.NoError(t, err)
		profiles[i] = p
	}
	return profiles
}

func fixedNow() time.Time {
	return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
}

func TestSynthesizer_TwoLuminaires(t *testing.T) {
	sink := newMemorySink()
	synth := &Synthesizer{Sink: sink, Now: fixedNow}
	base := baseProfiles(t, 5)
	scales := []float64{1, 1, 1, 1, 1, 0.5, 0.5, 0.5, 0.5, 0.5}

	var seen []int
	synth.OnLuminaire = func(r models.LuminaireReport, done, total int) {
		assert.Equal(t, 2, total)
		seen = append(seen, done)
	}

	reports, err := synth.Run(context.Background(), scales, base, "Office")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Office_LGP_1.ies", "Office_LGP_2.ies",
		"Office_LUM_1.ies", "Office_LUM_2.ies",
		"Office_Spot_1.ies", "Office_Spot_2.ies",
	}, sink.names())
	assert.Equal(t, []int{1, 2}, seen)

	require.Len(t, reports, 2)
	assert.Equal(t, 1, reports[0].Ordinal)
	assert.InDelta(t, 1.0, reports[0].Average, 1e-12)
	assert.InDelta(t, 1.0, reports[0].LGPAverage, 1e-12)
	assert.InDelta(t, 1.0, reports[0].SpotAverage, 1e-12)
	assert.Equal(t, 2, reports[1].Ordinal)
	assert.InDelta(t, 0.5, reports[1].Average, 1e-12)
	assert.Equal(t, 5, reports[1].ElementCount)
	assert.Equal(t, []string{"Office_LUM_2.ies", "Office_LGP_2.ies", "Office_Spot_2.ies"}, reports[1].Files)

	t.Run("combined candela", func(t *testing.T) {
		lum2, _, err := parser.ParseIESString(string(sink.files["Office_LUM_2.ies"]))
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float64{250, 200, 50}, lum2.Candela[0], 0.01)

		lgp1, _, err := parser.ParseIESString(string(sink.files["Office_LGP_1.ies"]))
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float64{400, 320, 80}, lgp1.Candela[0], 0.01)

		spot1, _, err := parser.ParseIESString(string(sink.files["Office_Spot_1.ies"]))
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float64{110, 70, 10}, spot1.Candela[1], 0.01)
	})

	t.Run("stamped keywords", func(t *testing.T) {
		lgp, _, err := parser.ParseIESString(string(sink.files["Office_LGP_2.ies"]))
		require.NoError(t, err)
		manufac, _ := lgp.Keywords.Get(parser.KeywordManufac)
		date, _ := lgp.Keywords.Get(parser.KeywordIssueDate)
		assert.Equal(t, "OfficeLGP Only", manufac)
		assert.Equal(t, "2024-05-01", date)

		spot, _, err := parser.ParseIESString(string(sink.files["Office_Spot_2.ies"]))
		require.NoError(t, err)
		manufac, _ = spot.Keywords.Get(parser.KeywordManufac)
		assert.Equal(t, "OfficeSpot Only", manufac)
	})

	t.Run("base profiles untouched", func(t *testing.T) {
		assert.Equal(t, 100.0, base[0].Candela[0][0])
		manufac, _ := base[0].Keywords.Get(parser.KeywordManufac)
		assert.Equal(t, "Acme Lighting", manufac)
	})
}

func TestSynthesizer_CategoryAverages(t *testing.T) {
	sink := newMemorySink()
	synth := &Synthesizer{Sink: sink}
	scales := []float64{0.2, 0.4, 0.6, 0.8, 0.1, 0.3}

	reports, err := synth.Run(context.Background(), scales, baseProfiles(t, 6), "S")
	require.NoError(t, err)
	require.Len(t, reports, 1)

	r := reports[0]
	assert.InDelta(t, 0.5, r.LGPAverage, 1e-12)
	assert.InDelta(t, 0.2, r.SpotAverage, 1e-12)
	assert.InDelta(t, 0.5*4.0/6.0+0.2*2.0/6.0, r.Average, 1e-12)
}

func TestSynthesizer_NoSpotElements(t *testing.T) {
	sink := newMemorySink()
	synth := &Synthesizer{Sink: sink}

	reports, err := synth.Run(context.Background(), []float64{0.5, 0.5, 0.5, 1, 1, 1}, baseProfiles(t, 3), "Edge")
	require.NoError(t, err)

	require.Len(t, reports, 2)
	assert.Equal(t, 0.0, reports[0].SpotAverage)
	assert.InDelta(t, 0.5, reports[0].Average, 1e-12)
	assert.InDelta(t, 1.0, reports[1].Average, 1e-12)
	assert.Equal(t, []string{"Edge_LGP_1.ies", "Edge_LGP_2.ies", "Edge_LUM_1.ies", "Edge_LUM_2.ies"}, sink.names())
}

func TestSynthesizer_PartialLastLuminaire(t *testing.T) {
	sink := newMemorySink()
	synth := &Synthesizer{Sink: sink}

	reports, err := synth.Run(context.Background(), []float64{1, 1, 1, 1, 1, 1, 0.5}, baseProfiles(t, 5), "P")
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, 2, reports[1].ElementCount)
	assert.InDelta(t, 0.75, reports[1].LGPAverage, 1e-12)
}

func TestSynthesizer_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := (&Synthesizer{Sink: newMemorySink()}).Run(ctx, []float64{1}, nil, "x")
	assert.ErrorIs(t, err, ErrNoBaseProfiles)

	_, err = (&Synthesizer{Sink: newMemorySink()}).Run(ctx, nil, baseProfiles(t, 1), "x")
	assert.ErrorIs(t, err, ErrNoScaleFactors)

	_, err = (&Synthesizer{}).Run(ctx, []float64{1}, baseProfiles(t, 1), "x")
	assert.Error(t, err)

	t.Run("sink failure", func(t *testing.T) {
		sink := newMemorySink()
		sink.fail = "x_LGP_1.ies"
		_, err := (&Synthesizer{Sink: sink}).Run(ctx, []float64{1, 1}, baseProfiles(t, 1), "x")
		assert.EqualError(t, err, "disk full")
	})

	t.Run("cancelled between luminaires", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		synth := &Synthesizer{Sink: newMemorySink()}
		synth.OnLuminaire = func(models.LuminaireReport, int, int) { cancel() }

		reports, err := synth.Run(cctx, []float64{1, 1, 1}, baseProfiles(t, 1), "x")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Len(t, reports, 1)
	})
}

func TestDirSink(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, DirSink{Dir: dir}.WriteFile("a.ies", []byte("data")))

	data, err := os.ReadFile(filepath.Join(dir, "a.ies"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))

	assert.Error(t, DirSink{Dir: filepath.Join(dir, "missing")}.WriteFile("a.ies", nil))
}

func TestWeightedAverage(t *testing.T) {
	assert.InDelta(t, 0.5*4.0/53.0+0.25*49.0/53.0, WeightedAverage(0.5, 4, 0.25, 49), 1e-12)
	assert.Equal(t, 0.0, WeightedAverage(0, 0, 0, 0))
}

func identity(n int) *mat.Dense {
	a := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		a.Set(i, i, 1)
	}
	return a
}

func TestPipeline_Run(t *testing.T) {
	sink := newMemorySink()
	var stages []string
	p := &Pipeline{
		Solver:   solver.DefaultOptions(),
		Lighting: DefaultLighting(),
		Sink:     sink,
		Now:      fixedNow,
		OnProgress: func(stage string, pct float64) {
			stages = append(stages, fmt.Sprintf("%s:%.0f", stage, pct))
		},
	}

	target := []float64{1, 1, 1, 1, 1, 0.5, 0.5, 0.5, 0.5, 0.5}
	summary, err := p.Run(context.Background(), Inputs{
		Scene:    "Office",
		Matrix:   identity(10),
		Target:   target,
		Profiles: baseProfiles(t, 5),
		Elements: []string{"a", "b", "c", "d", "e"},
	})
	require.NoError(t, err)

	assert.True(t, summary.Converged)
	assert.InDelta(t, 0, summary.Cost, 1e-12)
	assert.InDeltaSlice(t, target, summary.ScaleFactors, 1e-9)
	require.Len(t, summary.Luminaires, 2)
	assert.InDelta(t, 0.5, summary.Luminaires[1].Average, 1e-9)
	assert.Len(t, summary.OutputFiles(), 6)
	assert.Equal(t, "#ffcea6", summary.LGPColor.Hex)

	assert.Equal(t, "solve:5", stages[0])
	assert.Equal(t, "complete:100", stages[len(stages)-1])

	raw, ok := sink.files[SummaryFileName]
	require.True(t, ok)
	back, err := ReadSummary(raw)
	require.NoError(t, err)
	assert.Equal(t, "Office", back.Scene)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, back.Elements)
	assert.Len(t, back.Luminaires, 2)

	js, err := summary.JSON()
	require.NoError(t, err)
	assert.Contains(t, string(js), `"scene": "Office"`)
}

func TestPipeline_ColumnMismatch(t *testing.T) {
	p := &Pipeline{Solver: solver.DefaultOptions(), Sink: newMemorySink()}
	_, err := p.Run(context.Background(), Inputs{
		Scene:    "x",
		Matrix:   identity(10),
		Target:   make([]float64, 10),
		Profiles: baseProfiles(t, 3),
	})
	assert.ErrorIs(t, err, solver.ErrDimension)
}

func TestPipeline_RunFiles(t *testing.T) {
	dir := t.TempDir()

	var mtx, scene strings.Builder
	mtx.WriteString("SENSOR_ID,Troffer_0_a,Troffer_0_b")
	scene.WriteString("SENSOR_ID,target")
	for i := 0; i < 3; i++ {
		fmt.Fprintf(&mtx, "\nPT_%04d,%d,%d", i, i+1, 1)
		fmt.Fprintf(&scene, "\nPT_%04d,%g", i, 0.5*float64(i+1)+0.25)
	}
	matrixPath := filepath.Join(dir, "Matrix.csv")
	scenePath := filepath.Join(dir, "Evening.csv")
	require.NoError(t, os.WriteFile(matrixPath, []byte(mtx.String()), 0644))
	require.NoError(t, os.WriteFile(scenePath, []byte(scene.String()), 0644))

	sink := newMemorySink()
	p := &Pipeline{Solver: solver.DefaultOptions(), Lighting: DefaultLighting(), Sink: sink}
	summary, err := p.RunFiles(context.Background(), matrixPath, scenePath, baseProfiles(t, 2), nil)
	require.NoError(t, err)

	assert.Equal(t, "Evening", summary.Scene)
	assert.InDeltaSlice(t, []float64{0.5, 0.25}, summary.ScaleFactors, 1e-9)
	assert.Contains(t, sink.files, "Evening_LUM_1.ies")
}

func TestSceneName(t *testing.T) {
	assert.Equal(t, "Evening", SceneName("/proj/scenarios/Evening.csv"))
	assert.Equal(t, "Plain", SceneName("Plain"))
}
