package ncircuit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridkit/gridflow/pkg/grid"
	"github.com/gridkit/gridflow/pkg/logger"
)

// two islands joined by a disabled tie line, a regulating transformer in
// the first island pointing at a bus in the second
func twoIslandGrid() *grid.Grid {
	g := grid.New("two-island test grid")

	b0 := g.AddBus(&grid.Bus{Name: "a1", Vnom: 10, Slack: true})
	b1 := g.AddBus(&grid.Bus{Name: "a2", Vnom: 10})
	b2 := g.AddBus(&grid.Bus{Name: "b1", Vnom: 10, Slack: true})
	b3 := g.AddBus(&grid.Bus{Name: "b2", Vnom: 10})

	g.AddGenerator(&grid.Generator{Name: "ga", Bus: b0, P: 10, Snom: 50,
		Qmin: -30, Qmax: 30, Vset: 1.0, VoltageControl: true})
	g.AddGenerator(&grid.Generator{Name: "gb", Bus: b2, P: 5, Snom: 20,
		Qmin: -10, Qmax: 10, Vset: 1.0, VoltageControl: true})
	g.AddLoad(&grid.Load{Name: "la", Bus: b1, P: 8, Q: 2})
	g.AddLoad(&grid.Load{Name: "lb", Bus: b3, P: 4, Q: 1})

	// transformer in island A regulating a bus that ends up in island B
	g.AddBranch(&grid.Branch{Name: "trafo-a", From: b0, To: b1, R: 0.01, X: 0.05,
		ModuleControl: grid.TapModuleVm, VmSet: 1.0, RegulationBus: b3})
	tie := g.AddBranch(&grid.Branch{Name: "tie", From: b1, To: b2, R: 0.01, X: 0.05})
	g.AddBranch(&grid.Branch{Name: "line-b", From: b2, To: b3, R: 0.02, X: 0.06})

	g.Branches[tie].Active = false
	return g
}

func TestCompilePerUnit(t *testing.T) {
	g := grid.New("per-unit test")
	b0 := g.AddBus(&grid.Bus{Name: "s", Vnom: 10, Slack: true})
	b1 := g.AddBus(&grid.Bus{Name: "l", Vnom: 10})
	g.AddGenerator(&grid.Generator{Name: "g", Bus: b0, P: 50, Snom: 100,
		Qmin: -40, Qmax: 40, Vset: 1.05, VoltageControl: true})
	g.AddLoad(&grid.Load{Name: "d", Bus: b1, P: 30, Q: 10, G: 5, B: -2})
	g.AddShunt(&grid.Shunt{Name: "c", Bus: b1, B: 20})
	g.AddBranch(&grid.Branch{Name: "ln", From: b0, To: b1, R: 0.01, X: 0.05})

	log := logger.New()
	nc, err := Compile(g, log)
	require.NoError(t, err)

	assert.InDelta(t, 0.5, real(nc.S0[b0]), 1e-12)
	assert.InDelta(t, -0.3, real(nc.S0[b1]), 1e-12)
	assert.InDelta(t, -0.1, imag(nc.S0[b1]), 1e-12)
	assert.InDelta(t, -0.05, real(nc.Y0[b1]), 1e-12)
	assert.InDelta(t, 0.2, imag(nc.YshuntBus[b1]), 1e-12)
	assert.InDelta(t, -0.4, nc.Qmin[b0], 1e-12)
	assert.InDelta(t, 1.0, nc.InstalledP[b0], 1e-12)

	// slack keeps its classification, Vset lands on the initial voltage
	assert.Equal(t, grid.Slack, nc.BusTypes[b0])
	assert.InDelta(t, 1.05, real(nc.V0[b0]), 1e-12)
}

func TestCompileDisablesBranchOnInactiveEndpoint(t *testing.T) {
	g := grid.New("dead endpoint")
	b0 := g.AddBus(&grid.Bus{Name: "s", Vnom: 10, Slack: true})
	b1 := g.AddBus(&grid.Bus{Name: "dead", Vnom: 10})
	g.AddBranch(&grid.Branch{Name: "ln", From: b0, To: b1, R: 0.01, X: 0.05})
	g.Buses[b1].Active = false

	log := logger.New()
	nc, err := Compile(g, log)
	require.NoError(t, err)

	assert.False(t, nc.BranchActive[0])
	require.Len(t, log.Entries(), 1)
	assert.Equal(t, "ln", log.Entries()[0].Device)
}

func TestSplitIntoIslands(t *testing.T) {
	log := logger.New()
	nc, err := Compile(twoIslandGrid(), log)
	require.NoError(t, err)

	islands := nc.SplitIntoIslands(false, log)
	require.Len(t, islands, 2)

	a, b := islands[0], islands[1]
	assert.Equal(t, 2, a.NBus)
	assert.Equal(t, 2, b.NBus)
	assert.Equal(t, 1, a.NBr)
	assert.Equal(t, 1, b.NBr)

	// local numbering with the original indices preserved
	assert.Equal(t, []int{0, 1}, a.OriginalBusIdx)
	assert.Equal(t, []int{2, 3}, b.OriginalBusIdx)
	assert.Equal(t, 0, a.F[0])
	assert.Equal(t, 1, a.T[0])

	// both islands keep a slack
	assert.True(t, a.HasSlack())
	assert.True(t, b.HasSlack())

	// injections survive the renumbering
	assert.InDelta(t, -0.04, real(b.S0[1]), 1e-12)
}

func TestSplitDemotesRemoteRegulation(t *testing.T) {
	log := logger.New()
	nc, err := Compile(twoIslandGrid(), log)
	require.NoError(t, err)

	islands := nc.SplitIntoIslands(false, log)
	require.Len(t, islands, 2)

	// the regulated bus lives in the other island, control falls back local
	assert.Equal(t, -1, islands[0].RegBus[0])

	found := false
	for _, e := range log.Entries() {
		if e.Severity == logger.Warning && e.Device == "trafo-a" {
			found = true
		}
	}
	assert.True(t, found, "expected a demotion warning for trafo-a")
}

func TestSplitIgnoresSingleNodeIslands(t *testing.T) {
	g := grid.New("stranded bus")
	b0 := g.AddBus(&grid.Bus{Name: "s", Vnom: 10, Slack: true})
	b1 := g.AddBus(&grid.Bus{Name: "l", Vnom: 10})
	g.AddBus(&grid.Bus{Name: "stranded", Vnom: 10})
	g.AddBranch(&grid.Branch{Name: "ln", From: b0, To: b1, R: 0.01, X: 0.05})

	log := logger.New()
	nc, err := Compile(g, log)
	require.NoError(t, err)

	islands := nc.SplitIntoIslands(true, log)
	require.Len(t, islands, 1)
	assert.Equal(t, 2, islands[0].NBus)
}

func TestWithS0(t *testing.T) {
	log := logger.New()
	nc, err := Compile(twoIslandGrid(), log)
	require.NoError(t, err)

	s0 := make([]complex128, nc.NBus)
	s0[0] = complex(0.42, 0)
	cp := nc.WithS0(s0)

	assert.Equal(t, complex(0.42, 0), cp.S0[0])
	assert.NotEqual(t, cp.S0[0], nc.S0[0])
	// shared arrays, new injection vector only
	assert.Equal(t, nc.BusTypes, cp.BusTypes)
}
