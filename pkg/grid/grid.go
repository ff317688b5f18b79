// Package grid holds the whole-grid device model: buses, branches,
// generators, shunts and loads with their electrical parameters and control
// settings. The model is the input contract of the solver; it is compiled
// into per-island numerical circuits before anything is solved.
package grid

import (
	"fmt"

	"github.com/gridkit/gridflow/internal/consts"
)

// Bus is a connection node. Voltages are in per unit over Vnom.
type Bus struct {
	Name   string
	Active bool
	IsDC   bool
	Slack  bool
	Vnom   float64 // kV
	Vm0    float64 // initial magnitude guess (p.u.)
	Va0    float64 // initial angle guess (rad)
}

// Branch is a line, transformer or VSC converter in π-equivalent form.
// All electrical parameters are in per unit on the grid base.
type Branch struct {
	Name   string
	From   int
	To     int
	Active bool

	R, X float64 // series impedance
	G, B float64 // total shunt admittance, split half per side

	TapModule    float64
	TapAngle     float64 // rad
	TapModuleMin float64
	TapModuleMax float64
	TapAngleMin  float64
	TapAngleMax  float64

	ModuleControl TapModuleControl
	PhaseControl  TapPhaseControl
	VmSet         float64 // p.u., for module control of a voltage
	RegulationBus int     // global bus index whose Vm is driven; -1 means the "from" bus
	PfSet         float64 // MW
	PtSet         float64 // MW
	QfSet         float64 // MVAr
	QtSet         float64 // MVAr

	Rate      float64 // MVA
	Gsw       float64 // converter switching-loss conductance (p.u.)
	Converter bool
}

// Generator injects active power and optionally regulates its bus voltage.
type Generator struct {
	Name           string
	Bus            int
	Active         bool
	P              float64 // MW
	Snom           float64 // MVA, used to apportion distributed slack
	Vset           float64 // p.u.
	Qmin, Qmax     float64 // MVAr
	VoltageControl bool
}

// Load consumes power with a ZIP composition: constant power, constant
// current and constant admittance terms.
type Load struct {
	Name   string
	Bus    int
	Active bool
	P, Q   float64 // MW, MVAr
	Ir, Ii float64 // p.u. current at V=1
	G, B   float64 // MW, MVAr at V=1
}

// Shunt is a fixed admittance device, stated as power at nominal voltage.
type Shunt struct {
	Name   string
	Bus    int
	Active bool
	G, B   float64 // MW, MVAr at V=1
}

// Grid is the complete device model of one network snapshot.
type Grid struct {
	Name       string
	Sbase      float64 // MVA
	Buses      []*Bus
	Branches   []*Branch
	Generators []*Generator
	Loads      []*Load
	Shunts     []*Shunt
}

func New(name string) *Grid {
	return &Grid{Name: name, Sbase: consts.DEFAULTSBASE}
}

// AddBus appends a bus and returns its index. Devices come in active;
// deactivation is an explicit act on the stored device.
func (g *Grid) AddBus(b *Bus) int {
	if b.Vm0 == 0 {
		b.Vm0 = 1.0
	}
	b.Active = true
	g.Buses = append(g.Buses, b)
	return len(g.Buses) - 1
}

// AddBranch appends a branch and returns its index. Default tap values are
// filled so an untouched branch behaves as a plain line.
func (g *Grid) AddBranch(br *Branch) int {
	if br.TapModule == 0 {
		br.TapModule = 1.0
	}
	if br.TapModuleMax == 0 {
		br.TapModuleMin, br.TapModuleMax = 0.5, 1.5
	}
	if br.TapAngleMin == 0 && br.TapAngleMax == 0 {
		br.TapAngleMin, br.TapAngleMax = -1.0, 1.0
	}
	if br.RegulationBus == 0 && br.ModuleControl != TapModuleVm {
		br.RegulationBus = -1
	}
	br.Active = true
	g.Branches = append(g.Branches, br)
	return len(g.Branches) - 1
}

func (g *Grid) AddGenerator(gen *Generator) int {
	if gen.Vset == 0 {
		gen.Vset = 1.0
	}
	gen.Active = true
	g.Generators = append(g.Generators, gen)
	return len(g.Generators) - 1
}

func (g *Grid) AddLoad(l *Load) int {
	l.Active = true
	g.Loads = append(g.Loads, l)
	return len(g.Loads) - 1
}

func (g *Grid) AddShunt(s *Shunt) int {
	s.Active = true
	g.Shunts = append(g.Shunts, s)
	return len(g.Shunts) - 1
}

// Check validates referential integrity of the device arrays.
func (g *Grid) Check() error {
	n := len(g.Buses)
	for i, br := range g.Branches {
		if br.From < 0 || br.From >= n || br.To < 0 || br.To >= n {
			return fmt.Errorf("branch %d (%s): endpoint out of range", i, br.Name)
		}
		if br.RegulationBus >= n {
			return fmt.Errorf("branch %d (%s): regulation bus out of range", i, br.Name)
		}
	}
	for i, gen := range g.Generators {
		if gen.Bus < 0 || gen.Bus >= n {
			return fmt.Errorf("generator %d (%s): bus out of range", i, gen.Name)
		}
	}
	for i, l := range g.Loads {
		if l.Bus < 0 || l.Bus >= n {
			return fmt.Errorf("load %d (%s): bus out of range", i, l.Name)
		}
	}
	for i, s := range g.Shunts {
		if s.Bus < 0 || s.Bus >= n {
			return fmt.Errorf("shunt %d (%s): bus out of range", i, s.Name)
		}
	}
	if g.Sbase <= 0 {
		return fmt.Errorf("invalid Sbase: %g", g.Sbase)
	}
	return nil
}
