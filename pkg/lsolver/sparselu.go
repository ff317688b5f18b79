package lsolver

import (
	"github.com/edp1096/sparse"

	"github.com/gridkit/gridflow/pkg/csc"
)

// SparseLU factorizes through the sparse-matrix LU package, a Go port of
// Sparse 1.3 with Markowitz pivoting. Indices there are 1-based and the
// right-hand side carries a dummy leading slot.
type SparseLU struct{}

func (s *SparseLU) Name() string { return "sparselu" }

func (s *SparseLU) Solve(a *csc.Matrix, b []float64) ([]float64, bool) {
	if a.Rows != a.Cols || a.Rows != len(b) {
		return nil, false
	}
	n := a.Rows

	config := &sparse.Configuration{
		Real:           true,
		Complex:        false,
		Expandable:     true,
		Translate:      false,
		ModifiedNodal:  false,
		TiesMultiplier: 5,
	}
	mat, err := sparse.Create(int64(n), config)
	if err != nil {
		return nil, false
	}
	defer mat.Destroy()

	for col := 0; col < a.Cols; col++ {
		for k := a.ColPtr[col]; k < a.ColPtr[col+1]; k++ {
			mat.GetElement(int64(a.RowIdx[k]+1), int64(col+1)).Real += a.Values[k]
		}
	}

	if err := mat.Factor(); err != nil {
		// structurally or numerically singular
		return nil, false
	}

	rhs := make([]float64, n+1)
	for i := 0; i < n; i++ {
		rhs[i+1] = b[i]
	}
	sol, err := mat.Solve(rhs)
	if err != nil {
		return nil, false
	}

	x := make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = sol[i+1]
	}
	return x, true
}
