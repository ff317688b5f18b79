package admittance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridkit/gridflow/pkg/grid"
	"github.com/gridkit/gridflow/pkg/logger"
	"github.com/gridkit/gridflow/pkg/ncircuit"
)

func compile(t *testing.T, g *grid.Grid) *ncircuit.NumericalCircuit {
	t.Helper()
	nc, err := ncircuit.Compile(g, logger.New())
	require.NoError(t, err)
	return nc
}

func threeBusGrid() *grid.Grid {
	g := grid.New("admittance test grid")
	b0 := g.AddBus(&grid.Bus{Name: "b0", Vnom: 10, Slack: true})
	b1 := g.AddBus(&grid.Bus{Name: "b1", Vnom: 10})
	b2 := g.AddBus(&grid.Bus{Name: "b2", Vnom: 10})
	g.AddBranch(&grid.Branch{Name: "l01", From: b0, To: b1, R: 0.01, X: 0.05, B: 0.02})
	g.AddBranch(&grid.Branch{Name: "l12", From: b1, To: b2, R: 0.02, X: 0.08, B: 0.02})
	g.AddBranch(&grid.Branch{Name: "t02", From: b0, To: b2, R: 0.005, X: 0.1,
		TapModule: 1.05, TapAngle: 0.02})
	return g
}

func TestComputeSymmetry(t *testing.T) {
	nc := compile(t, threeBusGrid())
	m := Compute(nc, nc.TapModule, nc.TapAngle, nil)

	// untapped line: Ybus symmetric across the pair
	assert.InDelta(t, real(m.Ybus.At(0, 1)), real(m.Ybus.At(1, 0)), 1e-12)
	assert.InDelta(t, imag(m.Ybus.At(0, 1)), imag(m.Ybus.At(1, 0)), 1e-12)

	// phase-shifted transformer: off-diagonals differ
	d := m.Ybus.At(0, 2) - m.Ybus.At(2, 0)
	assert.Greater(t, math.Hypot(real(d), imag(d)), 1e-6)
}

func TestComputeRowSums(t *testing.T) {
	// with no shunt elements the rows of a single-line Ybus sum to ~0
	g := grid.New("one line")
	b0 := g.AddBus(&grid.Bus{Name: "b0", Vnom: 10, Slack: true})
	b1 := g.AddBus(&grid.Bus{Name: "b1", Vnom: 10})
	g.AddBranch(&grid.Branch{Name: "ln", From: b0, To: b1, R: 0.01, X: 0.05})
	nc := compile(t, g)

	m := Compute(nc, nc.TapModule, nc.TapAngle, nil)
	for i := 0; i < 2; i++ {
		sum := m.Ybus.At(i, 0) + m.Ybus.At(i, 1)
		assert.InDelta(t, 0, real(sum), 1e-9)
		assert.InDelta(t, 0, imag(sum), 1e-9)
	}
}

func TestComputeDeterministic(t *testing.T) {
	nc := compile(t, threeBusGrid())
	m1 := Compute(nc, nc.TapModule, nc.TapAngle, nil)
	m2 := Compute(nc, nc.TapModule, nc.TapAngle, nil)

	assert.Equal(t, m1.Ybus.ColPtr, m2.Ybus.ColPtr)
	assert.Equal(t, m1.Ybus.RowIdx, m2.Ybus.RowIdx)
	assert.Equal(t, m1.Ybus.Values, m2.Ybus.Values)
}

func TestComputeInactiveBranch(t *testing.T) {
	g := threeBusGrid()
	g.Branches[1].Active = false
	nc := compile(t, g)

	m := Compute(nc, nc.TapModule, nc.TapAngle, nil)
	assert.Equal(t, complex(0, 0), m.Ybus.At(1, 2))
	assert.Equal(t, complex(0, 0), m.Yf.At(1, 1))
}

func TestZeroImpedanceGuard(t *testing.T) {
	g := grid.New("zero z")
	b0 := g.AddBus(&grid.Bus{Name: "b0", Vnom: 10, Slack: true})
	b1 := g.AddBus(&grid.Bus{Name: "b1", Vnom: 10})
	g.AddBranch(&grid.Branch{Name: "jumper", From: b0, To: b1})
	nc := compile(t, g)

	log := logger.New()
	m := Compute(nc, nc.TapModule, nc.TapAngle, log)

	require.Len(t, log.Entries(), 1)
	assert.Equal(t, logger.Warning, log.Entries()[0].Severity)
	assert.False(t, math.IsInf(real(m.Yff[0]), 0))
	assert.False(t, math.IsNaN(real(m.Yff[0])))
}

func TestModifyTapsMatchesRebuild(t *testing.T) {
	nc := compile(t, threeBusGrid())

	oldM := append([]float64(nil), nc.TapModule...)
	oldT := append([]float64(nil), nc.TapAngle...)

	newM := append([]float64(nil), oldM...)
	newT := append([]float64(nil), oldT...)
	newM[2] = 0.97
	newT[2] = -0.05

	patched := Compute(nc, oldM, oldT, nil)
	patched.ModifyTaps(
		[]float64{oldM[2]}, []float64{newM[2]},
		[]float64{oldT[2]}, []float64{newT[2]},
		[]int{2})

	rebuilt := Compute(nc, newM, newT, nil)
	assert.True(t, patched.Ybus.Equal(rebuilt.Ybus, 1e-10))
	assert.True(t, patched.Yf.Equal(rebuilt.Yf, 1e-10))
	assert.True(t, patched.Yt.Equal(rebuilt.Yt, 1e-10))
}

func TestModifyTapsWithSwitchingLoss(t *testing.T) {
	// the gsw term must stay out of the ratio patch
	g := grid.New("vsc")
	b0 := g.AddBus(&grid.Bus{Name: "ac", Vnom: 220, Slack: true})
	b1 := g.AddBus(&grid.Bus{Name: "dc", Vnom: 320, IsDC: true})
	g.AddBranch(&grid.Branch{Name: "vsc", From: b0, To: b1,
		R: 0.001, X: 0.05, Gsw: 1e-4, Converter: true})
	nc := compile(t, g)

	patched := Compute(nc, nc.TapModule, nc.TapAngle, nil)
	patched.ModifyTaps([]float64{1.0}, []float64{1.1}, []float64{0}, []float64{0.1}, []int{0})

	rebuilt := Compute(nc, []float64{1.1}, []float64{0.1}, nil)
	assert.True(t, patched.Ybus.Equal(rebuilt.Ybus, 1e-10))
}
