// Package csc provides compressed-sparse-column matrices, real and complex.
// Assembly goes through a triplet builder that sorts by (column, row) and
// sums duplicates, so identical inputs always compress to identical arrays.
package csc

import "sort"

// Matrix is a real matrix in compressed-sparse-column form.
type Matrix struct {
	Rows, Cols int
	ColPtr     []int
	RowIdx     []int
	Values     []float64
}

type triplet struct {
	row, col int
	value    float64
}

// Builder accumulates (row, col, value) triplets for a real matrix.
type Builder struct {
	rows, cols int
	entries    []triplet
}

func NewBuilder(rows, cols int) *Builder {
	return &Builder{rows: rows, cols: cols}
}

// RowCount reports the row dimension the builder was created with.
func (b *Builder) RowCount() int { return b.rows }

func (b *Builder) Add(row, col int, value float64) {
	b.entries = append(b.entries, triplet{row: row, col: col, value: value})
}

// Build compresses the accumulated triplets. Duplicate coordinates are summed
// in (col, row) order regardless of insertion order.
func (b *Builder) Build() *Matrix {
	sort.SliceStable(b.entries, func(i, j int) bool {
		if b.entries[i].col != b.entries[j].col {
			return b.entries[i].col < b.entries[j].col
		}
		return b.entries[i].row < b.entries[j].row
	})

	m := &Matrix{
		Rows:   b.rows,
		Cols:   b.cols,
		ColPtr: make([]int, b.cols+1),
		RowIdx: make([]int, 0, len(b.entries)),
		Values: make([]float64, 0, len(b.entries)),
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

// NNZ returns the number of stored entries.
func (m *Matrix) NNZ() int { return len(m.Values) }

// At returns the stored value at (row, col), zero when absent.
func (m *Matrix) At(row, col int) float64 {
	for k := m.ColPtr[col]; k < m.ColPtr[col+1]; k++ {
		if m.RowIdx[k] == row {
			return m.Values[k]
		}
	}
	return 0
}

// MatVec computes y = m·x.
func (m *Matrix) MatVec(x []float64) []float64 {
	y := make([]float64, m.Rows)
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

// Transpose returns m^T, itself in deterministic CSC form.
func (m *Matrix) Transpose() *Matrix {
	b := NewBuilder(m.Cols, m.Rows)
	for col := 0; col < m.Cols; col++ {
		for k := m.ColPtr[col]; k < m.ColPtr[col+1]; k++ {
			b.Add(col, m.RowIdx[k], m.Values[k])
		}
	}
	return b.Build()
}

// Dense expands the matrix row-major, mainly for the dense LU backend.
func (m *Matrix) Dense() []float64 {
	d := make([]float64, m.Rows*m.Cols)
	for col := 0; col < m.Cols; col++ {
		for k := m.ColPtr[col]; k < m.ColPtr[col+1]; k++ {
			d[m.RowIdx[k]*m.Cols+col] = m.Values[k]
		}
	}
	return d
}
