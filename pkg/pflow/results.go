package pflow

import (
	"math/cmplx"
	"time"

	"github.com/gridkit/gridflow/pkg/logger"
	"github.com/gridkit/gridflow/pkg/ncircuit"
)

// NumericResults carries the solved state of one island in per unit,
// indexed by the island's local bus and branch numbering.
type NumericResults struct {
	Converged  bool
	Error      float64
	Iterations int
	Elapsed    time.Duration

	V     []complex128
	Scalc []complex128

	Sf      []complex128
	St      []complex128
	If      []complex128
	It      []complex128
	Losses  []complex128
	Loading []float64

	TapModule []float64
	TapAngle  []float64
}

// GridResults aggregates island results back onto the whole-grid numbering.
// Powers and losses are in MVA on the system base, voltages in per unit.
type GridResults struct {
	Converged  bool
	Error      float64
	Iterations int
	Elapsed    time.Duration

	BusNames    []string
	BranchNames []string

	Vm []float64
	Va []float64
	P  []float64
	Q  []float64

	Pf      []float64
	Qf      []float64
	Pt      []float64
	Qt      []float64
	Losses  []float64
	Loading []float64

	TapModule []float64
	TapAngle  []float64

	Log *logger.Logger
}

// NewGridResults prepares an empty whole-grid container sized to the
// compiled circuit. Buses outside every solved island keep zero voltage,
// which is what an unenergized bus reports.
func NewGridResults(nc *ncircuit.NumericalCircuit, log *logger.Logger) *GridResults {
	r := &GridResults{
		Converged:   true,
		BusNames:    append([]string(nil), nc.BusNames...),
		BranchNames: append([]string(nil), nc.BranchNames...),
		Vm:          make([]float64, nc.NBus),
		Va:          make([]float64, nc.NBus),
		P:           make([]float64, nc.NBus),
		Q:           make([]float64, nc.NBus),
		Pf:          make([]float64, nc.NBr),
		Qf:          make([]float64, nc.NBr),
		Pt:          make([]float64, nc.NBr),
		Qt:          make([]float64, nc.NBr),
		Losses:      make([]float64, nc.NBr),
		Loading:     make([]float64, nc.NBr),
		TapModule:   append([]float64(nil), nc.TapModule...),
		TapAngle:    append([]float64(nil), nc.TapAngle...),
		Log:         log,
	}
	return r
}

// ApplyFromIsland scatters an island's solution onto the whole-grid arrays
// through the island's original-index bijection. Convergence aggregates as
// a conjunction; the reported error and iteration count are the worst over
// the islands.
func (r *GridResults) ApplyFromIsland(is *ncircuit.NumericalCircuit, res *NumericResults) {
	sbase := is.Sbase

	r.Converged = r.Converged && res.Converged
	if res.Error > r.Error {
		r.Error = res.Error
	}
	if res.Iterations > r.Iterations {
		r.Iterations = res.Iterations
	}
	r.Elapsed += res.Elapsed

	for local, global := range is.OriginalBusIdx {
		r.Vm[global] = cmplx.Abs(res.V[local])
		r.Va[global] = cmplx.Phase(res.V[local])
		r.P[global] = real(res.Scalc[local]) * sbase
		r.Q[global] = imag(res.Scalc[local]) * sbase
	}
	for local, global := range is.OriginalBranchIdx {
		r.Pf[global] = real(res.Sf[local]) * sbase
		r.Qf[global] = imag(res.Sf[local]) * sbase
		r.Pt[global] = real(res.St[local]) * sbase
		r.Qt[global] = imag(res.St[local]) * sbase
		r.Losses[global] = real(res.Losses[local]) * sbase
		r.Loading[global] = res.Loading[local]
		r.TapModule[global] = res.TapModule[local]
		r.TapAngle[global] = res.TapAngle[local]
	}
}

// TotalLosses sums the active-power losses over every branch, in MW.
func (r *GridResults) TotalLosses() float64 {
	var sum float64
	for _, l := range r.Losses {
		sum += l
	}
	return sum
}
