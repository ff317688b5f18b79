// Package lsolver abstracts the sparse linear solve step of the Newton
// iteration behind interchangeable LU backends. Backends are looked up in a
// Registry value injected into the driver, never through global state.
package lsolver

import (
	"fmt"

	"github.com/gridkit/gridflow/pkg/csc"
)

// Solver factorizes a square system A·x = b. Implementations must not
// mutate A and must report singular matrices through ok=false instead of
// panicking, so the Newton driver can apply its own failure policy.
type Solver interface {
	Name() string
	Solve(a *csc.Matrix, b []float64) (x []float64, ok bool)
}

// Registry maps backend names to solvers.
type Registry struct {
	solvers map[string]Solver
	deflt   string
}

// NewRegistry returns a registry with the built-in backends registered and
// the sparse LU selected as default.
func NewRegistry() *Registry {
	r := &Registry{solvers: map[string]Solver{}}
	r.Register(&SparseLU{}, true)
	r.Register(&DenseLU{}, false)
	return r
}

func (r *Registry) Register(s Solver, isDefault bool) {
	r.solvers[s.Name()] = s
	if isDefault || r.deflt == "" {
		r.deflt = s.Name()
	}
}

// Get returns the named solver, or the default for an empty name.
func (r *Registry) Get(name string) (Solver, error) {
	if name == "" {
		name = r.deflt
	}
	s, ok := r.solvers[name]
	if !ok {
		return nil, fmt.Errorf("unknown linear solver backend %q", name)
	}
	return s, nil
}

func (r *Registry) Default() Solver {
	return r.solvers[r.deflt]
}
