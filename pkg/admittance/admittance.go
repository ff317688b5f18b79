// Package admittance assembles the bus admittance matrix Ybus and the
// branch-incidence admittance matrices Yf and Yt from per-branch π-model
// parameters and complex taps.
package admittance

import (
	"math/cmplx"

	"github.com/gridkit/gridflow/internal/consts"
	"github.com/gridkit/gridflow/pkg/csc"
	"github.com/gridkit/gridflow/pkg/logger"
	"github.com/gridkit/gridflow/pkg/ncircuit"
)

// Matrices bundles the composed admittance matrices together with the
// per-branch primitives they were built from. The primitives are kept so a
// tap change can be patched without recomputing every branch.
type Matrices struct {
	Ybus *csc.CxMatrix // nbus × nbus
	Yf   *csc.CxMatrix // nbr × nbus
	Yt   *csc.CxMatrix // nbr × nbus

	Yff []complex128
	Yft []complex128
	Ytf []complex128
	Ytt []complex128

	YshuntBus []complex128
	Gsw       []float64

	nbus   int
	from   []int
	to     []int
	active []bool
}

// Compute assembles the matrices from the circuit parameters with the given
// tap vectors. Branches with zero series impedance get an epsilon guard and
// an assembly warning instead of producing an infinite admittance.
func Compute(nc *ncircuit.NumericalCircuit, tapModule, tapAngle []float64, log *logger.Logger) *Matrices {
	m := &Matrices{
		Yff:       make([]complex128, nc.NBr),
		Yft:       make([]complex128, nc.NBr),
		Ytf:       make([]complex128, nc.NBr),
		Ytt:       make([]complex128, nc.NBr),
		YshuntBus: append([]complex128(nil), nc.YshuntBus...),
		Gsw:       append([]float64(nil), nc.Gsw...),
		nbus:      nc.NBus,
		from:      nc.F,
		to:        nc.T,
		active:    nc.BranchActive,
	}

	for k := 0; k < nc.NBr; k++ {
		if !nc.BranchActive[k] {
			continue
		}
		if nc.R[k] == 0 && nc.X[k] == 0 && log != nil {
			log.AddWarning("zero series impedance, epsilon guard applied",
				nc.BranchNames[k], k)
		}
		ys := 1.0 / complex(nc.R[k]+consts.EPSIMPEDANCE, nc.X[k])
		ysh2 := complex(nc.Gsh[k]/2.0, nc.Bsh[k]/2.0)

		mk := tapModule[k]
		tk := tapAngle[k]

		m.Yff[k] = complex(m.Gsw[k], 0) + (ys+ysh2)/complex(mk*mk, 0)
		m.Yft[k] = -ys / cmplx.Rect(mk, -tk)
		m.Ytf[k] = -ys / cmplx.Rect(mk, tk)
		m.Ytt[k] = ys + ysh2
	}

	m.compose()
	return m
}

// compose builds Yf, Yt and Ybus from the current primitive vectors:
// Yf = diag(yff)·Cf + diag(yft)·Ct, symmetric for Yt, and
// Ybus = Cf^T·Yf + Ct^T·Yt + diag(Yshunt).
func (m *Matrices) compose() {
	nbr := len(m.Yff)

	bf := csc.NewCxBuilder(nbr, m.nbus)
	bt := csc.NewCxBuilder(nbr, m.nbus)
	bb := csc.NewCxBuilder(m.nbus, m.nbus)

	for k := 0; k < nbr; k++ {
		if !m.active[k] {
			continue
		}
		f, t := m.from[k], m.to[k]
		bf.Add(k, f, m.Yff[k])
		bf.Add(k, t, m.Yft[k])
		bt.Add(k, f, m.Ytf[k])
		bt.Add(k, t, m.Ytt[k])

		bb.Add(f, f, m.Yff[k])
		bb.Add(f, t, m.Yft[k])
		bb.Add(t, f, m.Ytf[k])
		bb.Add(t, t, m.Ytt[k])
	}
	for i, ysh := range m.YshuntBus {
		if ysh != 0 {
			bb.Add(i, i, ysh)
		}
	}

	m.Yf = bf.Build()
	m.Yt = bt.Build()
	m.Ybus = bb.Build()
}

// ModifyTaps patches the primitives of the branches in idx from the old tap
// values to the new ones and recomposes the matrices. The result is
// identical to a full Compute with the new taps; Compute remains the
// authoritative path.
func (m *Matrices) ModifyTaps(oldM, newM, oldTau, newTau []float64, idx []int) {
	for n, k := range idx {
		m0, m1 := oldM[n], newM[n]
		t0, t1 := oldTau[n], newTau[n]

		gsw := complex(m.Gsw[k], 0)
		m.Yff[k] = (m.Yff[k]-gsw)*complex(m0*m0, 0)/complex(m1*m1, 0) + gsw
		m.Yft[k] = m.Yft[k] * cmplx.Rect(m0, -t0) / cmplx.Rect(m1, -t1)
		m.Ytf[k] = m.Ytf[k] * cmplx.Rect(m0, t0) / cmplx.Rect(m1, t1)
	}
	m.compose()
}
