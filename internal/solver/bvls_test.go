// bvls_test.go - Tests for the bounded least squares solver
package solver

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// assertKKT checks first-order optimality of res for the box problem.
func assertKKT(t *testing.T, a *mat.Dense, res *Result, opts Options, tol float64) {
	t.Helper()

	var g mat.VecDense
	g.MulVec(a.T(), mat.NewVecDense(len(res.Residuals), res.Residuals))

	for j, x := range res.X {
		assert.GreaterOrEqual(t, x, opts.Lower, "x[%d] below lower bound", j)
		assert.LessOrEqual(t, x, opts.Upper, "x[%d] above upper bound", j)

		gj := g.AtVec(j)
		switch {
		case x == opts.Lower:
			assert.GreaterOrEqual(t, gj, -tol, "x[%d] at lower bound wants to grow", j)
		case x == opts.Upper:
			assert.LessOrEqual(t, gj, tol, "x[%d] at upper bound wants to shrink", j)
		default:
			assert.InDelta(t, 0, gj, tol, "free x[%d] has non-zero gradient", j)
		}
	}
}

func TestSolve_Identity(t *testing.T) {
	target := []float64{0.2, 0.5, 0.9, 0.01}
	a := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		a.Set(i, i, 1)
	}

	res, err := Solve(a, target, DefaultOptions())
	require.NoError(t, err)

	assert.InDeltaSlice(t, target, res.X, 1e-9)
	assert.InDelta(t, 0, res.Cost, 1e-12)
	assert.True(t, res.Converged)
	assert.Equal(t, StatusOptimal, res.Status)
	assert.Len(t, res.Residuals, 4)
}

func TestSolve_ClipsToBounds(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{1, 0, 0, 1})
	b := []float64{2, -1}

	res, err := Solve(a, b, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, []float64{1, 0.001}, res.X)
	assert.Equal(t, []Bound{AtUpper, AtLower}, res.ActiveMask)
	assert.InDelta(t, 0.5*(1+1.001*1.001), res.Cost, 1e-12)
	assert.True(t, res.Converged)
}

func TestSolve_CoupledColumns(t *testing.T) {
	// Unconstrained optimum is x = (2, -0.5); the box pushes x1 to its upper
	// bound and x2 must then compensate.
	a := mat.NewDense(3, 2, []float64{
		1, 0,
		1, 1,
		0, 1,
	})
	b := []float64{2, 1.5, -0.5}

	opts := DefaultOptions()
	res, err := Solve(a, b, opts)
	require.NoError(t, err)

	assert.Equal(t, 1.0, res.X[0])
	assertKKT(t, a, res, opts, 1e-9)

	r := make([]float64, 3)
	r[0] = res.X[0] - b[0]
	r[1] = res.X[0] + res.X[1] - b[1]
	r[2] = res.X[1] - b[2]
	assert.InDeltaSlice(t, r, res.Residuals, 1e-12)
	assert.InDelta(t, 0.5*floats.Dot(r, r), res.Cost, 1e-12)
}

func TestSolve_RandomProblemsSatisfyKKT(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	opts := DefaultOptions()

	for trial := 0; trial < 25; trial++ {
		m := 8 + rng.Intn(20)
		n := 2 + rng.Intn(8)

		data := make([]float64, m*n)
		for i := range data {
			data[i] = rng.Float64() * 100
		}
		a := mat.NewDense(m, n, data)

		b := make([]float64, m)
		for i := range b {
			b[i] = rng.Float64() * 300
		}

		res, err := Solve(a, b, opts)
		require.NoError(t, err)
		assert.True(t, res.Converged, "trial %d stopped with %s", trial, res.Status)
		assert.LessOrEqual(t, res.Cost, res.InitialCost+1e-9)

		// Tolerance scales with the gradient magnitudes involved.
		assertKKT(t, a, res, opts, 1e-6*math.Max(1, floats.Norm(b, 2)*100))
	}
}

func TestSolve_Underdetermined(t *testing.T) {
	a := mat.NewDense(1, 3, []float64{1, 1, 1})
	res, err := Solve(a, []float64{1.5}, DefaultOptions())
	require.NoError(t, err)

	assert.InDelta(t, 0, res.Cost, 1e-12)
	assert.InDelta(t, 1.5, floats.Sum(res.X), 1e-9)
	for _, x := range res.X {
		assert.GreaterOrEqual(t, x, 0.001)
		assert.LessOrEqual(t, x, 1.0)
	}
}

func TestSolve_RankDeficient(t *testing.T) {
	a := mat.NewDense(3, 2, []float64{1, 1, 2, 2, 3, 3})
	res, err := Solve(a, []float64{1, 2, 3}, DefaultOptions())
	require.NoError(t, err)

	assert.InDelta(t, 1.0, res.X[0]+res.X[1], 1e-9)
	assert.InDelta(t, 0, res.Cost, 1e-12)
}

func TestSolve_Errors(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{1, 0, 0, 1})

	_, err := Solve(a, []float64{1, 2, 3}, DefaultOptions())
	assert.ErrorIs(t, err, ErrDimension)

	opts := DefaultOptions()
	opts.Lower, opts.Upper = 1, 0
	_, err = Solve(a, []float64{1, 2}, opts)
	assert.ErrorIs(t, err, ErrBounds)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "optimal", StatusOptimal.String())
	assert.Equal(t, "stalled", StatusStalled.String())
	assert.Equal(t, "max_iter", StatusMaxIter.String())
}
