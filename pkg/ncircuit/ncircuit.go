// Package ncircuit flattens the device-level grid model into the dense and
// sparse numeric arrays the solver consumes. A NumericalCircuit is scoped to
// one island and one time step and is never mutated after compilation.
package ncircuit

import (
	"math/cmplx"

	"github.com/gridkit/gridflow/pkg/grid"
	"github.com/gridkit/gridflow/pkg/logger"
	"github.com/gridkit/gridflow/pkg/topology"
)

// NumericalCircuit holds parallel arrays indexed by local bus/branch index.
// All electrical values are in per unit on Sbase.
type NumericalCircuit struct {
	Name  string
	Sbase float64
	NBus  int
	NBr   int

	BusNames    []string
	BranchNames []string

	// per-bus arrays
	BusActive []bool
	V0        []complex128
	S0        []complex128 // constant power injection
	I0        []complex128 // constant current injection
	Y0        []complex128 // constant admittance injection (ZIP loads)
	YshuntBus []complex128 // shunt devices, straight to the Ybus diagonal
	BusTypes  []grid.BusType
	IsDC      []bool
	Qmin      []float64
	Qmax      []float64
	InstalledP []float64 // generation capacity per bus, for slack distribution

	// per-branch arrays
	BranchActive  []bool
	F             []int
	T             []int
	R             []float64
	X             []float64
	Gsh           []float64
	Bsh           []float64
	TapModule     []float64
	TapAngle      []float64
	TapModuleMin  []float64
	TapModuleMax  []float64
	TapAngleMin   []float64
	TapAngleMax   []float64
	ModuleControl []grid.TapModuleControl
	PhaseControl  []grid.TapPhaseControl
	VmSet         []float64
	RegBus        []int // local bus whose Vm is driven; -1 means the from bus
	PfSet         []float64
	PtSet         []float64
	QfSet         []float64
	QtSet         []float64
	Gsw           []float64
	Rates         []float64

	Inc *topology.Incidence

	// bijection back to the whole-grid indices for result re-assembly
	OriginalBusIdx    []int
	OriginalBranchIdx []int
}

func alloc(nc *NumericalCircuit, nbus, nbr int) {
	nc.NBus, nc.NBr = nbus, nbr
	nc.BusNames = make([]string, nbus)
	nc.BusActive = make([]bool, nbus)
	nc.V0 = make([]complex128, nbus)
	nc.S0 = make([]complex128, nbus)
	nc.I0 = make([]complex128, nbus)
	nc.Y0 = make([]complex128, nbus)
	nc.YshuntBus = make([]complex128, nbus)
	nc.BusTypes = make([]grid.BusType, nbus)
	nc.IsDC = make([]bool, nbus)
	nc.Qmin = make([]float64, nbus)
	nc.Qmax = make([]float64, nbus)
	nc.InstalledP = make([]float64, nbus)
	nc.OriginalBusIdx = make([]int, nbus)

	nc.BranchNames = make([]string, nbr)
	nc.BranchActive = make([]bool, nbr)
	nc.F = make([]int, nbr)
	nc.T = make([]int, nbr)
	nc.R = make([]float64, nbr)
	nc.X = make([]float64, nbr)
	nc.Gsh = make([]float64, nbr)
	nc.Bsh = make([]float64, nbr)
	nc.TapModule = make([]float64, nbr)
	nc.TapAngle = make([]float64, nbr)
	nc.TapModuleMin = make([]float64, nbr)
	nc.TapModuleMax = make([]float64, nbr)
	nc.TapAngleMin = make([]float64, nbr)
	nc.TapAngleMax = make([]float64, nbr)
	nc.ModuleControl = make([]grid.TapModuleControl, nbr)
	nc.PhaseControl = make([]grid.TapPhaseControl, nbr)
	nc.VmSet = make([]float64, nbr)
	nc.RegBus = make([]int, nbr)
	nc.PfSet = make([]float64, nbr)
	nc.PtSet = make([]float64, nbr)
	nc.QfSet = make([]float64, nbr)
	nc.QtSet = make([]float64, nbr)
	nc.Gsw = make([]float64, nbr)
	nc.Rates = make([]float64, nbr)
	nc.OriginalBranchIdx = make([]int, nbr)
}

// Compile flattens the whole grid into one NumericalCircuit covering every
// bus and branch, active or not. Island extraction happens afterwards with
// SplitIntoIslands.
func Compile(g *grid.Grid, log *logger.Logger) (*NumericalCircuit, error) {
	if err := g.Check(); err != nil {
		return nil, err
	}

	nc := &NumericalCircuit{Name: g.Name, Sbase: g.Sbase}
	alloc(nc, len(g.Buses), len(g.Branches))

	for i, b := range g.Buses {
		nc.BusNames[i] = b.Name
		nc.BusActive[i] = b.Active
		nc.IsDC[i] = b.IsDC
		nc.V0[i] = cmplx.Rect(b.Vm0, b.Va0)
		nc.BusTypes[i] = grid.PQ
		if b.Slack {
			nc.BusTypes[i] = grid.Slack
		}
		nc.OriginalBusIdx[i] = i
	}

	for _, gen := range g.Generators {
		if !gen.Active {
			continue
		}
		i := gen.Bus
		nc.S0[i] += complex(gen.P/g.Sbase, 0)
		nc.Qmin[i] += gen.Qmin / g.Sbase
		nc.Qmax[i] += gen.Qmax / g.Sbase
		if gen.Snom > 0 {
			nc.InstalledP[i] += gen.Snom / g.Sbase
		} else if gen.P > 0 {
			nc.InstalledP[i] += gen.P / g.Sbase
		}
		if gen.VoltageControl {
			if nc.BusTypes[i] != grid.Slack {
				nc.BusTypes[i] = grid.PV
			}
			nc.V0[i] = cmplx.Rect(gen.Vset, cmplx.Phase(nc.V0[i]))
		}
	}

	for _, l := range g.Loads {
		if !l.Active {
			continue
		}
		i := l.Bus
		nc.S0[i] -= complex(l.P/g.Sbase, l.Q/g.Sbase)
		nc.I0[i] -= complex(l.Ir, l.Ii)
		nc.Y0[i] -= complex(l.G/g.Sbase, l.B/g.Sbase)
	}

	for _, s := range g.Shunts {
		if !s.Active {
			continue
		}
		nc.YshuntBus[s.Bus] += complex(s.G/g.Sbase, s.B/g.Sbase)
	}

	for k, br := range g.Branches {
		nc.BranchNames[k] = br.Name
		nc.BranchActive[k] = br.Active
		nc.F[k] = br.From
		nc.T[k] = br.To
		nc.R[k] = br.R
		nc.X[k] = br.X
		nc.Gsh[k] = br.G
		nc.Bsh[k] = br.B
		nc.TapModule[k] = br.TapModule
		nc.TapAngle[k] = br.TapAngle
		nc.TapModuleMin[k] = br.TapModuleMin
		nc.TapModuleMax[k] = br.TapModuleMax
		nc.TapAngleMin[k] = br.TapAngleMin
		nc.TapAngleMax[k] = br.TapAngleMax
		nc.ModuleControl[k] = br.ModuleControl
		nc.PhaseControl[k] = br.PhaseControl
		nc.VmSet[k] = br.VmSet
		nc.RegBus[k] = br.RegulationBus
		nc.PfSet[k] = br.PfSet / g.Sbase
		nc.PtSet[k] = br.PtSet / g.Sbase
		nc.QfSet[k] = br.QfSet / g.Sbase
		nc.QtSet[k] = br.QtSet / g.Sbase
		nc.Gsw[k] = br.Gsw
		nc.Rates[k] = br.Rate
		nc.OriginalBranchIdx[k] = k
	}

	// an inactive endpoint disables the branch as well
	for k := range nc.F {
		if nc.BranchActive[k] && (!nc.BusActive[nc.F[k]] || !nc.BusActive[nc.T[k]]) {
			nc.BranchActive[k] = false
			log.AddInfo("branch disabled by inactive endpoint", nc.BranchNames[k], k)
		}
	}

	nc.Inc = topology.BuildIncidence(nc.NBus, nc.F, nc.T, nc.BranchActive)
	return nc, nil
}

// HasSlack reports whether at least one active slack bus exists.
func (nc *NumericalCircuit) HasSlack() bool {
	for i, t := range nc.BusTypes {
		if t == grid.Slack && nc.BusActive[i] {
			return true
		}
	}
	return false
}

// SplitIntoIslands partitions the circuit into independent islands, each a
// fully renumbered NumericalCircuit. Single-bus islands are dropped with a
// warning when ignoreSingleNode is set. Controls that reference a bus
// outside their island are demoted to local regulation.
func (nc *NumericalCircuit) SplitIntoIslands(ignoreSingleNode bool, log *logger.Logger) []*NumericalCircuit {
	adj := nc.Inc.Adjacency(nc.NBus)
	islands := topology.FindIslands(adj, nc.BusActive)

	var out []*NumericalCircuit
	for n, busIdx := range islands {
		if len(busIdx) == 1 && ignoreSingleNode {
			log.AddWarning("single-node island ignored", nc.BusNames[busIdx[0]], n)
			continue
		}
		out = append(out, nc.sliceIsland(busIdx, log))
	}
	return out
}

func (nc *NumericalCircuit) sliceIsland(busIdx []int, log *logger.Logger) *NumericalCircuit {
	localOf := make(map[int]int, len(busIdx))
	for local, global := range busIdx {
		localOf[global] = local
	}

	var brIdx []int
	for k := 0; k < nc.NBr; k++ {
		if !nc.BranchActive[k] {
			continue
		}
		_, fin := localOf[nc.F[k]]
		_, tin := localOf[nc.T[k]]
		if fin && tin {
			brIdx = append(brIdx, k)
		}
	}

	is := &NumericalCircuit{Name: nc.Name, Sbase: nc.Sbase}
	alloc(is, len(busIdx), len(brIdx))

	for local, global := range busIdx {
		is.BusNames[local] = nc.BusNames[global]
		is.BusActive[local] = true
		is.V0[local] = nc.V0[global]
		is.S0[local] = nc.S0[global]
		is.I0[local] = nc.I0[global]
		is.Y0[local] = nc.Y0[global]
		is.YshuntBus[local] = nc.YshuntBus[global]
		is.BusTypes[local] = nc.BusTypes[global]
		is.IsDC[local] = nc.IsDC[global]
		is.Qmin[local] = nc.Qmin[global]
		is.Qmax[local] = nc.Qmax[global]
		is.InstalledP[local] = nc.InstalledP[global]
		is.OriginalBusIdx[local] = nc.OriginalBusIdx[global]
	}

	for kl, kg := range brIdx {
		is.BranchNames[kl] = nc.BranchNames[kg]
		is.BranchActive[kl] = true
		is.F[kl] = localOf[nc.F[kg]]
		is.T[kl] = localOf[nc.T[kg]]
		is.R[kl] = nc.R[kg]
		is.X[kl] = nc.X[kg]
		is.Gsh[kl] = nc.Gsh[kg]
		is.Bsh[kl] = nc.Bsh[kg]
		is.TapModule[kl] = nc.TapModule[kg]
		is.TapAngle[kl] = nc.TapAngle[kg]
		is.TapModuleMin[kl] = nc.TapModuleMin[kg]
		is.TapModuleMax[kl] = nc.TapModuleMax[kg]
		is.TapAngleMin[kl] = nc.TapAngleMin[kg]
		is.TapAngleMax[kl] = nc.TapAngleMax[kg]
		is.ModuleControl[kl] = nc.ModuleControl[kg]
		is.PhaseControl[kl] = nc.PhaseControl[kg]
		is.VmSet[kl] = nc.VmSet[kg]
		is.PfSet[kl] = nc.PfSet[kg]
		is.PtSet[kl] = nc.PtSet[kg]
		is.QfSet[kl] = nc.QfSet[kg]
		is.QtSet[kl] = nc.QtSet[kg]
		is.Gsw[kl] = nc.Gsw[kg]
		is.Rates[kl] = nc.Rates[kg]
		is.OriginalBranchIdx[kl] = nc.OriginalBranchIdx[kg]

		reg := nc.RegBus[kg]
		if reg < 0 {
			is.RegBus[kl] = -1
		} else if local, ok := localOf[reg]; ok {
			is.RegBus[kl] = local
		} else {
			// remote target lives in another island: demote to local control
			is.RegBus[kl] = -1
			log.AddWarning("remote regulation bus outside island, demoted to local",
				nc.BranchNames[kg], reg)
		}
	}

	is.Inc = topology.BuildIncidence(is.NBus, is.F, is.T, is.BranchActive)
	return is
}

// WithS0 returns a shallow copy of the circuit with the power injections
// replaced, for time-series steps that only move the load/generation set
// points. Every other array is shared and stays immutable.
func (nc *NumericalCircuit) WithS0(s0 []complex128) *NumericalCircuit {
	cp := *nc
	cp.S0 = append([]complex128(nil), s0...)
	return &cp
}
