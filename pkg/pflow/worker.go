package pflow

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/gridkit/gridflow/pkg/grid"
	"github.com/gridkit/gridflow/pkg/logger"
	"github.com/gridkit/gridflow/pkg/lsolver"
	"github.com/gridkit/gridflow/pkg/ncircuit"
)

// SolveGrid compiles the device-level grid and solves every island,
// returning results on the whole-grid numbering.
func SolveGrid(ctx context.Context, g *grid.Grid, opts Options, reg *lsolver.Registry, log *logger.Logger) (*GridResults, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	nc, err := ncircuit.Compile(g, log)
	if err != nil {
		return nil, err
	}
	return SolveCircuit(ctx, nc, opts, reg, log)
}

// SolveCircuit splits a compiled circuit into islands and solves each one
// independently. An island without a slack bus is reported and skipped; its
// buses keep zero voltage and the aggregate result is marked unconverged.
// With the multi-threaded option the islands solve concurrently, each with
// a private logger merged back in island order so the output stays
// deterministic.
func SolveCircuit(ctx context.Context, nc *ncircuit.NumericalCircuit, opts Options, reg *lsolver.Registry, log *logger.Logger) (*GridResults, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	solver, err := reg.Get(opts.SolverBackend)
	if err != nil {
		return nil, err
	}

	islands := nc.SplitIntoIslands(opts.IgnoreSingleNodeIslands, log)
	results := NewGridResults(nc, log)
	if len(islands) == 0 {
		log.AddWarning("no solvable islands in circuit", nc.Name, 0)
		results.Converged = false
		return results, nil
	}

	type islandOut struct {
		res *NumericResults
		log *logger.Logger
	}
	outs := make([]islandOut, len(islands))

	if opts.MultiThreaded && len(islands) > 1 {
		eg, egCtx := errgroup.WithContext(ctx)
		for n, is := range islands {
			n, is := n, is
			eg.Go(func() error {
				islandLog := logger.New()
				res, err := solveIsland(egCtx, is, n, opts, solver, islandLog)
				outs[n] = islandOut{res: res, log: islandLog}
				return err
			})
		}
		if err := eg.Wait(); err != nil {
			return nil, err
		}
		for _, o := range outs {
			log.Merge(o.log)
		}
	} else {
		for n, is := range islands {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			res, err := solveIsland(ctx, is, n, opts, solver, log)
			if err != nil {
				return nil, err
			}
			outs[n] = islandOut{res: res}
		}
	}

	for n, o := range outs {
		if o.res == nil {
			results.Converged = false
			continue
		}
		results.ApplyFromIsland(islands[n], o.res)
	}
	return results, nil
}

// solveIsland runs one Newton-Raphson solve. A missing slack bus is a data
// condition, not a programming error: it is logged and the island is
// returned unsolved as nil.
func solveIsland(ctx context.Context, is *ncircuit.NumericalCircuit, n int, opts Options, solver lsolver.Solver, log *logger.Logger) (*NumericResults, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	is.Name = fmt.Sprintf("%s/island-%d", is.Name, n)

	pf, err := NewFormulation(is, opts, log)
	if err != nil {
		log.AddError("island skipped", is.Name, err.Error(), nil)
		return nil, nil
	}
	rep := NewtonRaphson(pf, solver)
	return pf.PostProcess(rep), nil
}

// SolveTimeSeries solves the same circuit over a sequence of injection
// profiles, one whole-grid S0 vector in per unit per step. Steps run
// sequentially so each can warm-start compilation work shared through the
// circuit arrays; the context is checked between steps.
func SolveTimeSeries(ctx context.Context, nc *ncircuit.NumericalCircuit, steps [][]complex128, opts Options, reg *lsolver.Registry, log *logger.Logger) ([]*GridResults, error) {
	out := make([]*GridResults, 0, len(steps))
	for t, s0 := range steps {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if len(s0) != nc.NBus {
			return out, fmt.Errorf("step %d: injection vector has %d entries, circuit has %d buses", t, len(s0), nc.NBus)
		}
		res, err := SolveCircuit(ctx, nc.WithS0(s0), opts, reg, log)
		if err != nil {
			return out, fmt.Errorf("step %d: %w", t, err)
		}
		out = append(out, res)
	}
	return out, nil
}
