package pflow

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/gridkit/gridflow/internal/consts"
	"github.com/gridkit/gridflow/pkg/csc"
	"github.com/gridkit/gridflow/pkg/grid"
)

// tapDiffStep is the finite-difference step for tap-variable columns.
const tapDiffStep = 1e-7

// Jacobian assembles the sparse Jacobian of the residual at the current
// state. The power-balance block is analytic over the Ybus sparsity
// pattern; the columns of tap unknowns are numeric, mirroring the residual
// through the authoritative admittance rebuild. A non-square system is an
// error: it means the control configuration is under- or over-determined
// and must not be silently repaired.
func (pf *Formulation) Jacobian() (*csc.Matrix, error) {
	nRows := len(pf.pRows) + len(pf.qRows) + len(pf.mRows) + len(pf.tauRows)
	nCols := len(pf.vars)
	if nRows != nCols {
		return nil, fmt.Errorf("non-square Jacobian %dx%d: inconsistent control configuration", nRows, nCols)
	}

	// position lookups
	rowOfP := fill(pf.nc.NBus, -1)
	rowOfQ := fill(pf.nc.NBus, -1)
	for r, i := range pf.pRows {
		rowOfP[i] = r
	}
	base := len(pf.pRows)
	for r, i := range pf.qRows {
		rowOfQ[i] = base + r
	}
	colOfVa := fill(pf.nc.NBus, -1)
	colOfVm := fill(pf.nc.NBus, -1)
	tapCols := []int{}
	for c, v := range pf.vars {
		switch v.Kind {
		case VarVa:
			colOfVa[v.Idx] = c
		case VarVm:
			colOfVm[v.Idx] = c
		case VarTapM, VarTapTau:
			tapCols = append(tapCols, c)
		}
	}

	b := csc.NewBuilder(nRows, nCols)
	pf.addPowerBlock(b, rowOfP, rowOfQ, colOfVa, colOfVm)
	pf.addControlRows(b, colOfVa, colOfVm)
	if err := pf.addTapColumns(b, tapCols); err != nil {
		return nil, err
	}
	return b.Build(), nil
}

func fill(n, v int) []int {
	s := make([]int, n)
	for i := range s {
		s[i] = v
	}
	return s
}

// addPowerBlock writes the analytic ∂(ΔP,ΔQ)/∂(Va,Vm) entries. The
// off-diagonal terms follow the Ybus pattern; diagonal terms use the
// computed injections, with the ZIP voltage dependence of the specified
// power subtracted on the Vm diagonal.
func (pf *Formulation) addPowerBlock(b *csc.Builder, rowOfP, rowOfQ, colOfVa, colOfVm []int) {
	y := pf.adm.Ybus
	nc := pf.nc

	for j := 0; j < y.Cols; j++ {
		for p := y.ColPtr[j]; p < y.ColPtr[j+1]; p++ {
			i := y.RowIdx[p]
			g, bb := real(y.Values[p]), imag(y.Values[p])
			vi, vj := pf.Vm[i], pf.Vm[j]
			pi, qi := real(pf.Scalc[i]), imag(pf.Scalc[i])

			if i == j {
				vd := vi
				if math.Abs(vd) < consts.EPSVOLTAGE {
					vd = consts.EPSVOLTAGE
				}
				if rowOfP[i] >= 0 {
					if colOfVa[i] >= 0 {
						b.Add(rowOfP[i], colOfVa[i], -qi-bb*vi*vi)
					}
					if colOfVm[i] >= 0 {
						b.Add(rowOfP[i], colOfVm[i], pi/vd+g*vi)
					}
				}
				if rowOfQ[i] >= 0 {
					if colOfVa[i] >= 0 {
						b.Add(rowOfQ[i], colOfVa[i], pi-g*vi*vi)
					}
					if colOfVm[i] >= 0 {
						b.Add(rowOfQ[i], colOfVm[i], qi/vd-bb*vi)
					}
				}
				continue
			}

			sin, cos := math.Sincos(pf.Va[i] - pf.Va[j])
			if rowOfP[i] >= 0 {
				if colOfVa[j] >= 0 {
					b.Add(rowOfP[i], colOfVa[j], vi*vj*(g*sin-bb*cos))
				}
				if colOfVm[j] >= 0 {
					b.Add(rowOfP[i], colOfVm[j], vi*(g*cos+bb*sin))
				}
			}
			if rowOfQ[i] >= 0 {
				if colOfVa[j] >= 0 {
					b.Add(rowOfQ[i], colOfVa[j], -vi*vj*(g*cos+bb*sin))
				}
				if colOfVm[j] >= 0 {
					b.Add(rowOfQ[i], colOfVm[j], vi*(g*sin-bb*cos))
				}
			}
		}
	}

	// ΔS = Scalc − Sbus(Vm): the ZIP part of Sbus moves with Vm
	for i := 0; i < nc.NBus; i++ {
		if colOfVm[i] < 0 {
			continue
		}
		dzip := cmplx.Conj(nc.I0[i]) + 2*cmplx.Conj(nc.Y0[i])*complex(pf.Vm[i], 0)
		if rowOfP[i] >= 0 && real(dzip) != 0 {
			b.Add(rowOfP[i], colOfVm[i], -real(dzip))
		}
		if rowOfQ[i] >= 0 && imag(dzip) != 0 {
			b.Add(rowOfQ[i], colOfVm[i], -imag(dzip))
		}
	}
}

// addControlRows writes the analytic derivatives of the control residuals
// with respect to the voltage unknowns. Derivatives with respect to the tap
// unknowns arrive with the numeric columns.
func (pf *Formulation) addControlRows(b *csc.Builder, colOfVa, colOfVm []int) {
	row := len(pf.pRows) + len(pf.qRows)

	for _, k := range pf.mRows {
		switch pf.modCtl[k] {
		case grid.TapModuleVm:
			reg := pf.regBus(k)
			if colOfVm[reg] >= 0 {
				b.Add(row, colOfVm[reg], 1)
			}
		case grid.TapModuleQf:
			dVaf, dVat, dVmf, dVmt := pf.dSfBranch(k)
			pf.placeFlowDerivs(b, row, k, imagParts(dVaf, dVat, dVmf, dVmt), colOfVa, colOfVm)
		case grid.TapModuleQt:
			dVaf, dVat, dVmf, dVmt := pf.dStBranch(k)
			pf.placeFlowDerivs(b, row, k, imagParts(dVaf, dVat, dVmf, dVmt), colOfVa, colOfVm)
		}
		row++
	}
	for _, k := range pf.tauRows {
		switch pf.phCtl[k] {
		case grid.TapPhasePf:
			dVaf, dVat, dVmf, dVmt := pf.dSfBranch(k)
			pf.placeFlowDerivs(b, row, k, realParts(dVaf, dVat, dVmf, dVmt), colOfVa, colOfVm)
		case grid.TapPhasePt:
			dVaf, dVat, dVmf, dVmt := pf.dStBranch(k)
			pf.placeFlowDerivs(b, row, k, realParts(dVaf, dVat, dVmf, dVmt), colOfVa, colOfVm)
		}
		row++
	}
}

type flowDerivs struct {
	dVaf, dVat, dVmf, dVmt float64
}

func imagParts(a, b, c, d complex128) flowDerivs {
	return flowDerivs{imag(a), imag(b), imag(c), imag(d)}
}

func realParts(a, b, c, d complex128) flowDerivs {
	return flowDerivs{real(a), real(b), real(c), real(d)}
}

func (pf *Formulation) placeFlowDerivs(b *csc.Builder, row, k int, d flowDerivs, colOfVa, colOfVm []int) {
	f, t := pf.nc.F[k], pf.nc.T[k]
	if colOfVa[f] >= 0 {
		b.Add(row, colOfVa[f], d.dVaf)
	}
	if colOfVa[t] >= 0 {
		b.Add(row, colOfVa[t], d.dVat)
	}
	if colOfVm[f] >= 0 {
		b.Add(row, colOfVm[f], d.dVmf)
	}
	if colOfVm[t] >= 0 {
		b.Add(row, colOfVm[t], d.dVmt)
	}
}

// dSfBranch returns ∂Sf/∂Vaf, ∂Sf/∂Vat, ∂Sf/∂Vmf, ∂Sf/∂Vmt for branch k,
// with Sf = |Vf|²·conj(yff) + Vf·conj(Vt)·conj(yft).
func (pf *Formulation) dSfBranch(k int) (complex128, complex128, complex128, complex128) {
	f, t := pf.nc.F[k], pf.nc.T[k]
	vf, vt := pf.V[f], pf.V[t]
	yffC := cmplx.Conj(pf.adm.Yff[k])
	yftC := cmplx.Conj(pf.adm.Yft[k])

	cross := vf * cmplx.Conj(vt) * yftC
	dVaf := complex(0, 1) * cross
	dVat := complex(0, -1) * cross
	dVmf := 2*complex(pf.Vm[f], 0)*yffC + cmplx.Rect(1, pf.Va[f])*cmplx.Conj(vt)*yftC
	dVmt := vf * cmplx.Rect(1, -pf.Va[t]) * yftC
	return dVaf, dVat, dVmf, dVmt
}

// dStBranch is the mirrored set for St = |Vt|²·conj(ytt) + Vt·conj(Vf)·conj(ytf).
func (pf *Formulation) dStBranch(k int) (complex128, complex128, complex128, complex128) {
	f, t := pf.nc.F[k], pf.nc.T[k]
	vf, vt := pf.V[f], pf.V[t]
	yttC := cmplx.Conj(pf.adm.Ytt[k])
	ytfC := cmplx.Conj(pf.adm.Ytf[k])

	cross := vt * cmplx.Conj(vf) * ytfC
	dVat := complex(0, 1) * cross
	dVaf := complex(0, -1) * cross
	dVmt := 2*complex(pf.Vm[t], 0)*yttC + cmplx.Rect(1, pf.Va[t])*cmplx.Conj(vf)*ytfC
	dVmf := vt * cmplx.Rect(1, -pf.Va[f]) * ytfC
	return dVaf, dVat, dVmf, dVmt
}

// addTapColumns fills the columns of the tap unknowns by central
// differences of the full residual. Control variables are few, so the two
// extra evaluations per column stay cheap relative to the factorization.
func (pf *Formulation) addTapColumns(b *csc.Builder, tapCols []int) error {
	if len(tapCols) == 0 {
		return nil
	}
	x := pf.Var2X()

	for _, c := range tapCols {
		h := tapDiffStep * math.Max(1.0, math.Abs(x[c]))

		xp := append([]float64(nil), x...)
		xp[c] += h
		fp := pf.evalAt(xp).f

		xm := append([]float64(nil), x...)
		xm[c] -= h
		fm := pf.evalAt(xm).f

		if len(fp) != len(fm) || len(fp) != b.RowCount() {
			return fmt.Errorf("residual size changed during differentiation")
		}
		for r := range fp {
			d := (fp[r] - fm[r]) / (2 * h)
			if d != 0 {
				b.Add(r, c, d)
			}
		}
	}
	return nil
}
