package csc

import "sort"

// CxMatrix is a complex matrix in compressed-sparse-column form.
type CxMatrix struct {
	Rows, Cols int
	ColPtr     []int
	RowIdx     []int
	Values     []complex128
}

type cxTriplet struct {
	row, col int
	value    complex128
}

// CxBuilder accumulates (row, col, value) triplets for a complex matrix.
type CxBuilder struct {
	rows, cols int
	entries    []cxTriplet
}

func NewCxBuilder(rows, cols int) *CxBuilder {
	return &CxBuilder{rows: rows, cols: cols}
}

func (b *CxBuilder) Add(row, col int, value complex128) {
	b.entries = append(b.entries, cxTriplet{row: row, col: col, value: value})
}

// Build compresses the accumulated triplets, summing duplicates in
// (col, row) order.
func (b *CxBuilder) Build() *CxMatrix {
	sort.SliceStable(b.entries, func(i, j int) bool {
		if b.entries[i].col != b.entries[j].col {
			return b.entries[i].col < b.entries[j].col
		}
		return b.entries[i].row < b.entries[j].row
	})

	m := &CxMatrix{
		Rows:   b.rows,
		Cols:   b.cols,
		ColPtr: make([]int, b.cols+1),
		RowIdx: make([]int, 0, len(b.entries)),
		Values: make([]complex128, 0, len(b.entries)),
	}
	prevRow, prevCol := -1, -1
	for _, t := range b.entries {
		if t.col == prevCol && t.row == prevRow {
			m.Values[len(m.Values)-1] += t.value
			continue
		}
		m.RowIdx = append(m.RowIdx, t.row)
		m.Values = append(m.Values, t.value)
		for c := prevCol + 1; c <= t.col; c++ {
			m.ColPtr[c] = len(m.Values) - 1
		}
		prevRow, prevCol = t.row, t.col
	}
	for c := prevCol + 1; c <= b.cols; c++ {
		m.ColPtr[c] = len(m.Values)
	}
	return m
}

func (m *CxMatrix) NNZ() int { return len(m.Values) }

// At returns the stored value at (row, col), zero when absent.
func (m *CxMatrix) At(row, col int) complex128 {
	for k := m.ColPtr[col]; k < m.ColPtr[col+1]; k++ {
		if m.RowIdx[k] == row {
			return m.Values[k]
		}
	}
	return 0
}

// MatVec computes y = m·x.
func (m *CxMatrix) MatVec(x []complex128) []complex128 {
	y := make([]complex128, m.Rows)
	for col := 0; col < m.Cols; col++ {
		xc := x[col]
		if xc == 0 {
			continue
		}
		for k := m.ColPtr[col]; k < m.ColPtr[col+1]; k++ {
			y[m.RowIdx[k]] += m.Values[k] * xc
		}
	}
	return y
}

// Transpose returns m^T (no conjugation).
func (m *CxMatrix) Transpose() *CxMatrix {
	b := NewCxBuilder(m.Cols, m.Rows)
	for col := 0; col < m.Cols; col++ {
		for k := m.ColPtr[col]; k < m.ColPtr[col+1]; k++ {
			b.Add(col, m.RowIdx[k], m.Values[k])
		}
	}
	return b.Build()
}

// RowValues returns row·x restricted to one row, i.e. sum_j m[row,j]*x[j].
// Used for per-bus injection checks without forming the full product.
func (m *CxMatrix) RowValues(row int, x []complex128) complex128 {
	var s complex128
	for col := 0; col < m.Cols; col++ {
		for k := m.ColPtr[col]; k < m.ColPtr[col+1]; k++ {
			if m.RowIdx[k] == row {
				s += m.Values[k] * x[col]
			}
		}
	}
	return s
}

// Equal reports whether the two matrices have identical structure and values
// within tol on both components.
func (m *CxMatrix) Equal(other *CxMatrix, tol float64) bool {
	if m.Rows != other.Rows || m.Cols != other.Cols {
		return false
	}
	for col := 0; col < m.Cols; col++ {
		for row := 0; row < m.Rows; row++ {
			a := m.At(row, col)
			b := other.At(row, col)
			if absf(real(a)-real(b)) > tol || absf(imag(a)-imag(b)) > tol {
				return false
			}
		}
	}
	return true
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
