// Package pflow implements the generalized power-flow formulation and the
// damped Newton-Raphson driver that solves it, together with the result
// post-processing and multi-island orchestration.
package pflow

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/gridkit/gridflow/pkg/admittance"
	"github.com/gridkit/gridflow/pkg/grid"
	"github.com/gridkit/gridflow/pkg/logger"
	"github.com/gridkit/gridflow/pkg/ncircuit"
)

// VarKind tags one entry of the unknown vector.
type VarKind int

const (
	VarVa VarKind = iota
	VarVm
	VarTapM
	VarTapTau
)

// Var is one unknown: a bus angle, a bus magnitude, or a branch tap.
type Var struct {
	Kind VarKind
	Idx  int // bus index for Va/Vm, branch index for taps
}

// Formulation owns the solver-visible state of one island: the voltage
// decomposition, the working control classification, the unknown vector
// layout and the residual. The layout is rebuilt at every control
// checkpoint, never mid-iteration.
type Formulation struct {
	nc   *ncircuit.NumericalCircuit
	opts Options
	log  *logger.Logger

	Vm []float64
	Va []float64
	m  []float64
	om []float64 // tap modules the admittance matrices were composed with
	tau []float64
	ot  []float64

	S0 []complex128 // working injections (mutated by Q clamping, slack distribution)

	busTypes []grid.BusType
	qFrozen  []bool
	modCtl   []grid.TapModuleControl
	phCtl    []grid.TapPhaseControl

	adm *admittance.Matrices

	vars    []Var
	pRows   []int // buses with an active-power residual (all non-slack)
	qRows   []int // buses with a reactive-power residual (AC PQ)
	mRows   []int // branches with a module-control residual
	tauRows []int // branches with a phase-control residual

	V         []complex128
	Scalc     []complex128
	f         []float64
	errNorm   float64
	converged bool
}

// NewFormulation prepares the solver state from an island circuit. The
// island must contain at least one slack bus.
func NewFormulation(nc *ncircuit.NumericalCircuit, opts Options, log *logger.Logger) (*Formulation, error) {
	if !nc.HasSlack() {
		return nil, fmt.Errorf("island %q has no slack bus", nc.Name)
	}

	pf := &Formulation{
		nc:       nc,
		opts:     opts,
		log:      log,
		Vm:       make([]float64, nc.NBus),
		Va:       make([]float64, nc.NBus),
		m:        append([]float64(nil), nc.TapModule...),
		tau:      append([]float64(nil), nc.TapAngle...),
		S0:       append([]complex128(nil), nc.S0...),
		busTypes: append([]grid.BusType(nil), nc.BusTypes...),
		qFrozen:  make([]bool, nc.NBus),
		modCtl:   append([]grid.TapModuleControl(nil), nc.ModuleControl...),
		phCtl:    append([]grid.TapPhaseControl(nil), nc.PhaseControl...),
	}
	for i, v := range nc.V0 {
		pf.Vm[i] = cmplx.Abs(v)
		pf.Va[i] = cmplx.Phase(v)
		if nc.IsDC[i] {
			pf.Va[i] = 0
		}
	}

	// control modes disabled by options act as fixed taps
	if opts.TapControl != grid.TapControlFull && opts.TapControl != grid.TapControlModule {
		for k := range pf.modCtl {
			pf.modCtl[k] = grid.TapModuleFixed
		}
	}
	if opts.TapControl != grid.TapControlFull && opts.TapControl != grid.TapControlPhase {
		for k := range pf.phCtl {
			pf.phCtl[k] = grid.TapPhaseFixed
		}
	}

	pf.adm = admittance.Compute(nc, pf.m, pf.tau, log)
	pf.om = append([]float64(nil), pf.m...)
	pf.ot = append([]float64(nil), pf.tau...)
	pf.buildIndex()
	pf.refresh()
	return pf, nil
}

// buildIndex rebuilds the ordered unknown list and the residual row lists
// from the working classification. Called at construction and after any
// control transition, so the Jacobian shape always matches the active
// control set.
func (pf *Formulation) buildIndex() {
	nc := pf.nc
	pf.vars = pf.vars[:0]
	pf.pRows = pf.pRows[:0]
	pf.qRows = pf.qRows[:0]
	pf.mRows = pf.mRows[:0]
	pf.tauRows = pf.tauRows[:0]

	for i := 0; i < nc.NBus; i++ {
		if pf.busTypes[i] == grid.Slack {
			continue
		}
		pf.pRows = append(pf.pRows, i)
		if !nc.IsDC[i] {
			pf.vars = append(pf.vars, Var{Kind: VarVa, Idx: i})
		}
	}
	for i := 0; i < nc.NBus; i++ {
		if pf.busTypes[i] == grid.Slack {
			continue
		}
		if nc.IsDC[i] {
			// DC buses have a magnitude unknown but no reactive balance
			pf.vars = append(pf.vars, Var{Kind: VarVm, Idx: i})
			continue
		}
		if pf.busTypes[i] == grid.PQ {
			pf.qRows = append(pf.qRows, i)
			pf.vars = append(pf.vars, Var{Kind: VarVm, Idx: i})
		}
	}
	for k := 0; k < nc.NBr; k++ {
		if !nc.BranchActive[k] {
			continue
		}
		if pf.modCtl[k] != grid.TapModuleFixed {
			pf.mRows = append(pf.mRows, k)
			pf.vars = append(pf.vars, Var{Kind: VarTapM, Idx: k})
		}
		if pf.phCtl[k] != grid.TapPhaseFixed {
			pf.tauRows = append(pf.tauRows, k)
			pf.vars = append(pf.vars, Var{Kind: VarTapTau, Idx: k})
		}
	}
}

// Size returns the unknown count.
func (pf *Formulation) Size() int { return len(pf.vars) }

// Var2X encodes the current state into an unknown vector.
func (pf *Formulation) Var2X() []float64 {
	x := make([]float64, len(pf.vars))
	for c, v := range pf.vars {
		switch v.Kind {
		case VarVa:
			x[c] = pf.Va[v.Idx]
		case VarVm:
			x[c] = pf.Vm[v.Idx]
		case VarTapM:
			x[c] = pf.m[v.Idx]
		case VarTapTau:
			x[c] = pf.tau[v.Idx]
		}
	}
	return x
}

// x2var decodes x into the given state slices (which must be working
// copies; the receiver is not touched).
func (pf *Formulation) x2var(x, vm, va, m, tau []float64) {
	for c, v := range pf.vars {
		switch v.Kind {
		case VarVa:
			va[v.Idx] = x[c]
		case VarVm:
			vm[v.Idx] = x[c]
		case VarTapM:
			m[v.Idx] = x[c]
		case VarTapTau:
			tau[v.Idx] = x[c]
		}
	}
}

func (pf *Formulation) hasTapVars() bool {
	return len(pf.mRows) > 0 || len(pf.tauRows) > 0
}

// zipPower evaluates the voltage-dependent ZIP injection
// S = S0 + conj(I0)·Vm + conj(Y0)·Vm².
func zipPower(s0, i0, y0 []complex128, vm []float64) []complex128 {
	out := make([]complex128, len(s0))
	for i := range s0 {
		v := complex(vm[i], 0)
		out[i] = s0[i] + cmplx.Conj(i0[i])*v + cmplx.Conj(y0[i])*v*v
	}
	return out
}

type evalResult struct {
	Vm, Va, m, tau []float64
	adm            *admittance.Matrices
	V              []complex128
	Scalc          []complex128
	f              []float64
	errNorm        float64
}

// evalAt computes voltages, injections and the residual for the state
// encoded in x without committing anything. Tap unknowns force an
// admittance rebuild through the authoritative path.
func (pf *Formulation) evalAt(x []float64) *evalResult {
	st := &evalResult{
		Vm:  append([]float64(nil), pf.Vm...),
		Va:  append([]float64(nil), pf.Va...),
		m:   append([]float64(nil), pf.m...),
		tau: append([]float64(nil), pf.tau...),
	}
	pf.x2var(x, st.Vm, st.Va, st.m, st.tau)

	st.adm = pf.adm
	if pf.hasTapVars() || !sameTaps(st.m, pf.om) || !sameTaps(st.tau, pf.ot) {
		st.adm = admittance.Compute(pf.nc, st.m, st.tau, nil)
	}

	n := pf.nc.NBus
	st.V = make([]complex128, n)
	for i := 0; i < n; i++ {
		st.V[i] = cmplx.Rect(st.Vm[i], st.Va[i])
	}

	ibus := st.adm.Ybus.MatVec(st.V)
	st.Scalc = make([]complex128, n)
	for i := 0; i < n; i++ {
		st.Scalc[i] = st.V[i] * cmplx.Conj(ibus[i])
	}

	st.f = pf.assembleF(st)
	st.errNorm = infNorm(st.f)
	return st
}

func sameTaps(a, b []float64) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// assembleF builds the residual in row order: ΔP, ΔQ, module controls,
// phase controls.
func (pf *Formulation) assembleF(st *evalResult) []float64 {
	nc := pf.nc
	sbus := zipPower(pf.S0, nc.I0, nc.Y0, st.Vm)

	f := make([]float64, 0, len(pf.pRows)+len(pf.qRows)+len(pf.mRows)+len(pf.tauRows))
	for _, i := range pf.pRows {
		f = append(f, real(st.Scalc[i])-real(sbus[i]))
	}
	for _, i := range pf.qRows {
		f = append(f, imag(st.Scalc[i])-imag(sbus[i]))
	}
	for _, k := range pf.mRows {
		switch pf.modCtl[k] {
		case grid.TapModuleVm:
			reg := pf.regBus(k)
			f = append(f, st.Vm[reg]-nc.VmSet[k])
		case grid.TapModuleQf:
			f = append(f, imag(branchSf(st, nc, k))-nc.QfSet[k])
		case grid.TapModuleQt:
			f = append(f, imag(branchSt(st, nc, k))-nc.QtSet[k])
		}
	}
	for _, k := range pf.tauRows {
		switch pf.phCtl[k] {
		case grid.TapPhasePf:
			f = append(f, real(branchSf(st, nc, k))-nc.PfSet[k])
		case grid.TapPhasePt:
			f = append(f, real(branchSt(st, nc, k))-nc.PtSet[k])
		}
	}
	return f
}

func (pf *Formulation) regBus(k int) int {
	if pf.nc.RegBus[k] < 0 {
		return pf.nc.F[k]
	}
	return pf.nc.RegBus[k]
}

// branchSf computes the complex power entering branch k at the from side.
func branchSf(st *evalResult, nc *ncircuit.NumericalCircuit, k int) complex128 {
	ifr := st.adm.Yff[k]*st.V[nc.F[k]] + st.adm.Yft[k]*st.V[nc.T[k]]
	return st.V[nc.F[k]] * cmplx.Conj(ifr)
}

// branchSt computes the complex power entering branch k at the to side.
func branchSt(st *evalResult, nc *ncircuit.NumericalCircuit, k int) complex128 {
	ito := st.adm.Ytf[k]*st.V[nc.F[k]] + st.adm.Ytt[k]*st.V[nc.T[k]]
	return st.V[nc.T[k]] * cmplx.Conj(ito)
}

// commit installs an evaluation as the current state.
func (pf *Formulation) commit(st *evalResult) {
	pf.Vm, pf.Va = st.Vm, st.Va
	pf.m, pf.tau = st.m, st.tau
	pf.adm = st.adm
	pf.om = append(pf.om[:0], st.m...)
	pf.ot = append(pf.ot[:0], st.tau...)
	pf.V = st.V
	pf.Scalc = st.Scalc
	pf.f = st.f
	pf.errNorm = st.errNorm
}

// refresh re-evaluates the residual at the current state.
func (pf *Formulation) refresh() {
	pf.commit(pf.evalAt(pf.Var2X()))
}

// Error returns the current residual infinity norm.
func (pf *Formulation) Error() float64 { return pf.errNorm }

// Converged reports whether the current residual is below tolerance.
func (pf *Formulation) Converged() bool { return pf.converged }

// F returns the current residual vector.
func (pf *Formulation) F() []float64 { return pf.f }

// ErrorAt evaluates the residual norm of a candidate x without committing
// it; the line search evaluates candidate steps through this.
func (pf *Formulation) ErrorAt(x []float64) float64 {
	return pf.evalAt(x).errNorm
}

// Update installs x as the new state, recomputes the residual and, when
// updateControls is set and the residual is already small, runs the
// control transitions: PV→PQ reactive clamping, distributed slack, tap
// saturation. A transition may change the composition of the unknown
// vector for the next call, never for this one; the returned x reflects
// the new composition.
func (pf *Formulation) Update(x []float64, updateControls bool) (float64, bool, []float64, []float64) {
	pf.commit(pf.evalAt(x))

	if updateControls && pf.errNorm < pf.opts.controlsTol() {
		changed := false
		if pf.opts.ControlQ == grid.ReactiveDirect {
			changed = pf.switchQLimits() || changed
		}
		if pf.opts.DistributedSlack {
			changed = pf.distributeSlack() || changed
		}
		changed = pf.saturateTaps() || changed

		if changed {
			pf.buildIndex()
			x = pf.Var2X()
			pf.refresh()
		}
	}

	pf.converged = pf.errNorm < pf.opts.Tolerance
	return pf.errNorm, pf.converged, x, pf.f
}

// switchQLimits clamps PV buses whose computed reactive injection violates
// the generator limits and reclassifies them PQ for the rest of the solve.
// A bus is switched at most once; it never reverts to PV.
func (pf *Formulation) switchQLimits() bool {
	nc := pf.nc
	changed := false
	for i := 0; i < nc.NBus; i++ {
		if pf.busTypes[i] != grid.PV || pf.qFrozen[i] || nc.IsDC[i] {
			continue
		}
		q := imag(pf.Scalc[i])
		var limit float64
		switch {
		case q > nc.Qmax[i]:
			limit = nc.Qmax[i]
		case q < nc.Qmin[i]:
			limit = nc.Qmin[i]
		default:
			continue
		}
		pf.S0[i] = complex(real(pf.S0[i]), limit)
		pf.busTypes[i] = grid.PQ
		pf.qFrozen[i] = true
		changed = true
		pf.log.AddInfo("PV bus reclassified to PQ at reactive limit",
			nc.BusNames[i], q)
	}
	return changed
}

// distributeSlack spreads the slack-bus mismatch over the buses with
// installed generation, proportionally to their capacity.
func (pf *Formulation) distributeSlack() bool {
	nc := pf.nc
	var mismatch, total float64
	for i := 0; i < nc.NBus; i++ {
		if pf.busTypes[i] == grid.Slack {
			mismatch += real(pf.Scalc[i]) - real(pf.S0[i])
		}
		if pf.busTypes[i] != grid.Slack {
			total += nc.InstalledP[i]
		}
	}
	if total <= 0 || math.Abs(mismatch) < pf.opts.Tolerance {
		return false
	}
	for i := 0; i < nc.NBus; i++ {
		if pf.busTypes[i] != grid.Slack && nc.InstalledP[i] > 0 {
			share := nc.InstalledP[i] / total
			pf.S0[i] += complex(mismatch*share, 0)
		}
	}
	pf.log.AddDebug("slack mismatch distributed", pf.nc.Name, mismatch)
	return true
}

// saturateTaps clamps controlling taps that ran past their bounds and
// freezes them there, removing them from the unknown vector.
func (pf *Formulation) saturateTaps() bool {
	nc := pf.nc
	changed := false
	for _, k := range pf.mRows {
		if pf.m[k] < nc.TapModuleMin[k] {
			pf.m[k] = nc.TapModuleMin[k]
		} else if pf.m[k] > nc.TapModuleMax[k] {
			pf.m[k] = nc.TapModuleMax[k]
		} else {
			continue
		}
		pf.modCtl[k] = grid.TapModuleFixed
		changed = true
		pf.log.AddInfo("tap module limit reached, control frozen",
			nc.BranchNames[k], pf.m[k])
	}
	for _, k := range pf.tauRows {
		if pf.tau[k] < nc.TapAngleMin[k] {
			pf.tau[k] = nc.TapAngleMin[k]
		} else if pf.tau[k] > nc.TapAngleMax[k] {
			pf.tau[k] = nc.TapAngleMax[k]
		} else {
			continue
		}
		pf.phCtl[k] = grid.TapPhaseFixed
		changed = true
		pf.log.AddInfo("tap phase limit reached, control frozen",
			nc.BranchNames[k], pf.tau[k])
	}
	return changed
}

func infNorm(f []float64) float64 {
	var n float64
	for _, v := range f {
		if a := math.Abs(v); a > n {
			n = a
		}
	}
	return n
}
