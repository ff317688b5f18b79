package pflow

import (
	"math/cmplx"

	"github.com/gridkit/gridflow/internal/consts"
)

// PostProcess completes the solved state into a full island result set:
// branch currents and power flows from the admittance primitives, losses as
// the power that enters a branch and never leaves, and loading against the
// branch rating. Scalc already holds every bus injection, slack and PV
// included, because the residual evaluation computes V·conj(Ybus·V) for
// all buses.
func (pf *Formulation) PostProcess(rep IterationReport) *NumericResults {
	nc := pf.nc
	res := &NumericResults{
		Converged:  rep.Converged,
		Error:      rep.Error,
		Iterations: rep.Iterations,
		Elapsed:    rep.Elapsed,
		V:          append([]complex128(nil), pf.V...),
		Scalc:      append([]complex128(nil), pf.Scalc...),
		Sf:         make([]complex128, nc.NBr),
		St:         make([]complex128, nc.NBr),
		If:         make([]complex128, nc.NBr),
		It:         make([]complex128, nc.NBr),
		Losses:     make([]complex128, nc.NBr),
		Loading:    make([]float64, nc.NBr),
		TapModule:  append([]float64(nil), pf.m...),
		TapAngle:   append([]float64(nil), pf.tau...),
	}

	for k := 0; k < nc.NBr; k++ {
		if !nc.BranchActive[k] {
			continue
		}
		vf, vt := pf.V[nc.F[k]], pf.V[nc.T[k]]
		res.If[k] = pf.adm.Yff[k]*vf + pf.adm.Yft[k]*vt
		res.It[k] = pf.adm.Ytf[k]*vf + pf.adm.Ytt[k]*vt
		res.Sf[k] = vf * cmplx.Conj(res.If[k])
		res.St[k] = vt * cmplx.Conj(res.It[k])
		res.Losses[k] = res.Sf[k] + res.St[k]
		res.Loading[k] = cmplx.Abs(res.Sf[k]) * nc.Sbase / (nc.Rates[k] + consts.EPSRATE)
	}
	return res
}
