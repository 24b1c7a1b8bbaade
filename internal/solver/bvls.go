// Package solver fits per-element scale factors to a target illuminance
// pattern by bounded linear least squares.
package solver

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrDimension is returned when the matrix and target disagree in size.
	ErrDimension = errors.New("dimension mismatch")
	// ErrBounds is returned when Lower exceeds Upper.
	ErrBounds = errors.New("invalid bounds")
)

// Options configures Solve.
type Options struct {
	Lower   float64
	Upper   float64
	Tol     float64
	MaxIter int
}

// DefaultOptions returns the bounds and stopping rules used for sculpting.
func DefaultOptions() Options {
	return Options{
		Lower:   0.001,
		Upper:   1.0,
		Tol:     1e-10,
		MaxIter: 400,
	}
}

// Status reports why the solver stopped.
type Status int

const (
	// StatusMaxIter means the iteration cap was reached first.
	StatusMaxIter Status = iota
	// StatusOptimal means the first-order optimality measure fell below Tol.
	StatusOptimal
	// StatusStalled means the relative cost reduction fell below Tol.
	StatusStalled
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusStalled:
		return "stalled"
	default:
		return "max_iter"
	}
}

// Bound marks where a variable sits at the solution.
type Bound int

const (
	AtLower Bound = -1
	Free    Bound = 0
	AtUpper Bound = 1
)

// Result is the outcome of Solve.
type Result struct {
	// X holds the scale factors, one per matrix column.
	X []float64
	// Cost is ½‖Ax − b‖² at X.
	Cost        float64
	InitialCost float64
	// Residuals is Ax − b at X.
	Residuals  []float64
	Optimality float64
	ActiveMask []Bound
	Iterations int
	Status     Status
	// Converged is false when the iteration cap ended the search; X is then
	// the last feasible iterate.
	Converged bool
}

// Solve minimises ½‖Ax − b‖² subject to Lower ≤ xᵢ ≤ Upper using the
// Stark–Parker bounded-variable least squares method.
func Solve(a *mat.Dense, b []float64, opts Options) (*Result, error) {
	m, n := a.Dims()
	if m == 0 || n == 0 {
		return nil, fmt.Errorf("%w: empty matrix", ErrDimension)
	}
	if len(b) != m {
		return nil, fmt.Errorf("%w: matrix has %d rows, target has %d values", ErrDimension, m, len(b))
	}
	if opts.Lower > opts.Upper {
		return nil, fmt.Errorf("%w: lower %g > upper %g", ErrBounds, opts.Lower, opts.Upper)
	}
	if opts.MaxIter <= 0 {
		opts.MaxIter = n
	}

	s := &bvls{a: a, b: b, m: m, n: n, lower: opts.Lower, upper: opts.Upper}
	return s.run(opts.Tol, opts.MaxIter)
}

type bvls struct {
	a     *mat.Dense
	b     []float64
	m, n  int
	lower float64
	upper float64

	x       []float64
	onBound []Bound
}

func (s *bvls) run(tol float64, maxIter int) (*Result, error) {
	all := make([]int, s.n)
	for i := range all {
		all[i] = i
	}

	// Start from the unconstrained solution clipped to the box.
	xLsq, err := s.lstsq(all)
	if err != nil {
		return nil, err
	}
	s.x = xLsq
	s.onBound = make([]Bound, s.n)
	for i, v := range s.x {
		switch {
		case v <= s.lower:
			s.x[i] = s.lower
			s.onBound[i] = AtLower
		case v >= s.upper:
			s.x[i] = s.upper
			s.onBound[i] = AtUpper
		}
	}

	r := s.residual()
	cost := 0.5 * floats.Dot(r, r)
	initialCost := cost

	// Shrink the free set until its least squares solution is feasible.
	free := s.freeSet()
	for len(free) > 0 {
		z, err := s.lstsq(free)
		if err != nil {
			return nil, err
		}
		remaining := free[:0:0]
		for k, j := range free {
			switch {
			case z[k] < s.lower:
				s.x[j] = s.lower
				s.onBound[j] = AtLower
			case z[k] > s.upper:
				s.x[j] = s.upper
				s.onBound[j] = AtUpper
			default:
				s.x[j] = z[k]
				remaining = append(remaining, j)
			}
		}
		if len(remaining) == len(free) {
			break
		}
		free = remaining
	}

	r = s.residual()
	cost = 0.5 * floats.Dot(r, r)
	g := s.gradient(r)
	optimality := kktOptimality(g, s.onBound)

	status := StatusMaxIter
	iter := 0
	for ; iter < maxIter; iter++ {
		if optimality < tol {
			status = StatusOptimal
			break
		}

		// Release the bound variable whose gradient most wants it free.
		release, best := -1, math.Inf(-1)
		for j := range g {
			if v := g[j] * float64(s.onBound[j]); v > best {
				release, best = j, v
			}
		}
		s.onBound[release] = Free

		if err := s.innerLoop(); err != nil {
			return nil, err
		}

		r = s.residual()
		newCost := 0.5 * floats.Dot(r, r)
		stalled := cost-newCost < tol*cost
		cost = newCost
		g = s.gradient(r)
		optimality = kktOptimality(g, s.onBound)
		if stalled {
			status = StatusStalled
			iter++
			break
		}
	}

	return &Result{
		X:           s.x,
		Cost:        cost,
		InitialCost: initialCost,
		Residuals:   r,
		Optimality:  optimality,
		ActiveMask:  s.onBound,
		Iterations:  iter,
		Status:      status,
		Converged:   status != StatusMaxIter,
	}, nil
}

// innerLoop solves on the free set, stepping back to the box and pinning
// the first variable that leaves it until the free solution is feasible.
// Every pass pins one variable, so it ends within n passes.
func (s *bvls) innerLoop() error {
	for {
		free := s.freeSet()
		if len(free) == 0 {
			return nil
		}
		z, err := s.lstsq(free)
		if err != nil {
			return err
		}

		pin, pinBound, alpha := -1, Free, math.Inf(1)
		for k, j := range free {
			var limit float64
			var bound Bound
			switch {
			case z[k] < s.lower:
				limit, bound = s.lower, AtLower
			case z[k] > s.upper:
				limit, bound = s.upper, AtUpper
			default:
				continue
			}
			step := (limit - s.x[j]) / (z[k] - s.x[j])
			if step < alpha {
				pin, pinBound, alpha = j, bound, step
			}
		}

		if pin < 0 {
			for k, j := range free {
				s.x[j] = z[k]
			}
			return nil
		}

		for k, j := range free {
			s.x[j] += alpha * (z[k] - s.x[j])
		}
		s.onBound[pin] = pinBound
		if pinBound == AtLower {
			s.x[pin] = s.lower
		} else {
			s.x[pin] = s.upper
		}
	}
}

func (s *bvls) freeSet() []int {
	free := make([]int, 0, s.n)
	for j, ob := range s.onBound {
		if ob == Free {
			free = append(free, j)
		}
	}
	return free
}

// lstsq returns the minimum-norm least squares solution for the columns in
// cols, with every other variable held at its current value.
func (s *bvls) lstsq(cols []int) ([]float64, error) {
	rhs := make([]float64, s.m)
	copy(rhs, s.b)

	inCols := make(map[int]bool, len(cols))
	for _, j := range cols {
		inCols[j] = true
	}
	if s.x != nil {
		col := make([]float64, s.m)
		for j := 0; j < s.n; j++ {
			if inCols[j] || s.x[j] == 0 {
				continue
			}
			mat.Col(col, j, s.a)
			floats.AddScaled(rhs, -s.x[j], col)
		}
	}

	sub := mat.NewDense(s.m, len(cols), nil)
	col := make([]float64, s.m)
	for k, j := range cols {
		mat.Col(col, j, s.a)
		sub.SetCol(k, col)
	}

	var svd mat.SVD
	if ok := svd.Factorize(sub, mat.SVDThin); !ok {
		return nil, errors.New("singular value decomposition failed")
	}
	rcond := math.Nextafter(1, 2) - 1
	rcond *= float64(max(s.m, len(cols)))
	rank := svd.Rank(rcond)
	if rank == 0 {
		return make([]float64, len(cols)), nil
	}

	var dst mat.VecDense
	svd.SolveVecTo(&dst, mat.NewVecDense(s.m, rhs), rank)
	return mat.Col(nil, 0, &dst), nil
}

func (s *bvls) residual() []float64 {
	var ax mat.VecDense
	ax.MulVec(s.a, mat.NewVecDense(s.n, s.x))
	r := make([]float64, s.m)
	floats.SubTo(r, ax.RawVector().Data, s.b)
	return r
}

func (s *bvls) gradient(r []float64) []float64 {
	var g mat.VecDense
	g.MulVec(s.a.T(), mat.NewVecDense(s.m, r))
	return mat.Col(nil, 0, &g)
}

// kktOptimality is the largest first-order violation: |g| on free
// variables and g pointing into the box on bound ones.
func kktOptimality(g []float64, onBound []Bound) float64 {
	worst := math.Inf(-1)
	for j, v := range g {
		if onBound[j] == Free {
			v = math.Abs(v)
		} else {
			v *= float64(onBound[j])
		}
		worst = math.Max(worst, v)
	}
	return worst
}
