package lsolver

import (
	"gonum.org/v1/gonum/mat"

	"github.com/gridkit/gridflow/pkg/csc"
)

// DenseLU expands the system and factorizes with gonum's partial-pivoting
// LU. Slower than the sparse backend on large grids but dependable, and a
// useful cross-check for the sparse path.
type DenseLU struct{}

func (d *DenseLU) Name() string { return "denselu" }

func (d *DenseLU) Solve(a *csc.Matrix, b []float64) ([]float64, bool) {
	if a.Rows != a.Cols || a.Rows != len(b) {
		return nil, false
	}
	n := a.Rows

	dense := mat.NewDense(n, n, a.Dense())

	var lu mat.LU
	lu.Factorize(dense)
	if lu.Cond() > 1e15 {
		return nil, false
	}

	var x mat.VecDense
	if err := lu.SolveVecTo(&x, false, mat.NewVecDense(n, b)); err != nil {
		return nil, false
	}

	out := make([]float64, n)
	copy(out, x.RawVector().Data)
	return out, true
}
