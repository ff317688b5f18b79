package pflow

import (
	"fmt"
	"time"

	"github.com/gridkit/gridflow/pkg/lsolver"
)

// IterationReport summarizes one Newton-Raphson run on a single island.
type IterationReport struct {
	Converged  bool
	Error      float64
	Iterations int
	Elapsed    time.Duration
}

// NewtonRaphson drives the formulation to convergence with a damped Newton
// iteration. Each step solves J·dx = f and walks x ← x − µ·dx, backing µ
// off geometrically whenever the trial residual does not improve. Control
// transitions run inside Update once the residual is small enough that
// switching on noisy values is no longer a risk. A singular or misshapen
// Jacobian ends the run unconverged; numerical failures are reported
// through the logger, never as a Go error, so sibling islands keep
// solving.
func NewtonRaphson(pf *Formulation, solver lsolver.Solver) IterationReport {
	start := time.Now()
	opts := pf.opts

	x := pf.Var2X()
	errNorm := pf.Error()
	converged := errNorm < opts.Tolerance

	iter := 0
	for !converged && iter < opts.MaxIter && len(x) > 0 {
		jac, err := pf.Jacobian()
		if err != nil {
			pf.log.AddError("Jacobian assembly failed", pf.nc.Name, err.Error(), nil)
			break
		}

		dx, ok := solver.Solve(jac, pf.F())
		if !ok {
			pf.log.AddError("linear solver failed, Jacobian is singular",
				pf.nc.Name, iter, nil)
			break
		}

		// backtracking line search on the residual norm
		mu := opts.Mu0
		trial := step(x, dx, mu)
		trialErr := pf.ErrorAt(trial)
		for trialErr > errNorm && mu > opts.MuFloor {
			mu *= 0.25
			trial = step(x, dx, mu)
			trialErr = pf.ErrorAt(trial)
		}
		if trialErr > errNorm {
			// no descent direction left at the damping floor
			pf.log.AddWarning("line search stalled at damping floor",
				pf.nc.Name, errNorm)
			break
		}

		errNorm, converged, x, _ = pf.Update(trial, true)
		iter++
	}

	if len(x) == 0 {
		// nothing to solve for: every bus is slack or fixed
		converged = pf.Error() < opts.Tolerance
		errNorm = pf.Error()
	}

	if !converged && iter >= opts.MaxIter {
		pf.log.AddWarning("iteration limit reached without convergence",
			pf.nc.Name, errNorm)
	}
	return IterationReport{
		Converged:  converged,
		Error:      errNorm,
		Iterations: iter,
		Elapsed:    time.Since(start),
	}
}

func step(x, dx []float64, mu float64) []float64 {
	if len(x) != len(dx) {
		panic(fmt.Sprintf("step size mismatch: %d vs %d", len(x), len(dx)))
	}
	out := make([]float64, len(x))
	for i := range x {
		out[i] = x[i] - mu*dx[i]
	}
	return out
}
