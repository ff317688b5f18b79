package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/gridkit/gridflow/pkg/grid"
	"github.com/gridkit/gridflow/pkg/logger"
	"github.com/gridkit/gridflow/pkg/lsolver"
	"github.com/gridkit/gridflow/pkg/pflow"
	"github.com/gridkit/gridflow/pkg/util"
)

func fiveBusCase() *grid.Grid {
	g := grid.New("5-bus transmission case")

	b1 := g.AddBus(&grid.Bus{Name: "bus-1", Vnom: 10.0, Slack: true})
	b2 := g.AddBus(&grid.Bus{Name: "bus-2", Vnom: 10.0})
	b3 := g.AddBus(&grid.Bus{Name: "bus-3", Vnom: 10.0})
	b4 := g.AddBus(&grid.Bus{Name: "bus-4", Vnom: 10.0})
	b5 := g.AddBus(&grid.Bus{Name: "bus-5", Vnom: 10.0})

	g.AddGenerator(&grid.Generator{Name: "slack-gen", Bus: b1, Vset: 1.0,
		Snom: 300, Qmin: -100, Qmax: 100, VoltageControl: true})

	g.AddLoad(&grid.Load{Name: "load-2", Bus: b2, P: 40, Q: 20})
	g.AddLoad(&grid.Load{Name: "load-3", Bus: b3, P: 25, Q: 15})
	g.AddLoad(&grid.Load{Name: "load-4", Bus: b4, P: 40, Q: 20})
	g.AddLoad(&grid.Load{Name: "load-5", Bus: b5, P: 50, Q: 20})

	g.AddBranch(&grid.Branch{Name: "line-1-2", From: b1, To: b2, R: 0.05, X: 0.11, B: 0.02, Rate: 100})
	g.AddBranch(&grid.Branch{Name: "line-1-3", From: b1, To: b3, R: 0.05, X: 0.11, B: 0.02, Rate: 100})
	g.AddBranch(&grid.Branch{Name: "line-1-5", From: b1, To: b5, R: 0.03, X: 0.08, B: 0.02, Rate: 100})
	g.AddBranch(&grid.Branch{Name: "line-2-3", From: b2, To: b3, R: 0.04, X: 0.09, B: 0.02, Rate: 100})
	g.AddBranch(&grid.Branch{Name: "line-2-5", From: b2, To: b5, R: 0.04, X: 0.09, B: 0.02, Rate: 100})
	g.AddBranch(&grid.Branch{Name: "line-3-4", From: b3, To: b4, R: 0.06, X: 0.13, B: 0.03, Rate: 100})
	g.AddBranch(&grid.Branch{Name: "line-4-5", From: b4, To: b5, R: 0.04, X: 0.09, B: 0.02, Rate: 100})

	return g
}

func tapControlCase() *grid.Grid {
	g := grid.New("transformer voltage regulation case")

	hv := g.AddBus(&grid.Bus{Name: "hv", Vnom: 110.0, Slack: true})
	mv := g.AddBus(&grid.Bus{Name: "mv", Vnom: 20.0})
	ld := g.AddBus(&grid.Bus{Name: "feeder", Vnom: 20.0})

	g.AddGenerator(&grid.Generator{Name: "grid-eq", Bus: hv, Vset: 1.02,
		Snom: 200, Qmin: -150, Qmax: 150, VoltageControl: true})
	g.AddLoad(&grid.Load{Name: "feeder-load", Bus: ld, P: 30, Q: 10})

	// OLTC transformer holding the mv bus at 1.0 pu
	g.AddBranch(&grid.Branch{Name: "trafo", From: hv, To: mv,
		R: 0.005, X: 0.1, Rate: 60,
		ModuleControl: grid.TapModuleVm, VmSet: 1.0, RegulationBus: mv,
		TapModuleMin: 0.9, TapModuleMax: 1.1})
	g.AddBranch(&grid.Branch{Name: "cable", From: mv, To: ld, R: 0.02, X: 0.04, Rate: 60})

	return g
}

func acdcCase() *grid.Grid {
	g := grid.New("point-to-point HVDC case")

	ac1 := g.AddBus(&grid.Bus{Name: "ac-send", Vnom: 220.0, Slack: true})
	dc1 := g.AddBus(&grid.Bus{Name: "dc-send", Vnom: 320.0, IsDC: true})
	dc2 := g.AddBus(&grid.Bus{Name: "dc-recv", Vnom: 320.0, IsDC: true})
	ac2 := g.AddBus(&grid.Bus{Name: "ac-recv", Vnom: 220.0, Slack: true})

	g.AddGenerator(&grid.Generator{Name: "send-gen", Bus: ac1, Vset: 1.0,
		Snom: 500, Qmin: -200, Qmax: 200, VoltageControl: true})
	g.AddGenerator(&grid.Generator{Name: "recv-gen", Bus: ac2, Vset: 1.0,
		Snom: 500, Qmin: -200, Qmax: 200, VoltageControl: true})
	g.AddLoad(&grid.Load{Name: "recv-load", Bus: ac2, P: 80, Q: 25})

	// converters scheduled to push 100 MW into the link
	g.AddBranch(&grid.Branch{Name: "vsc-send", From: ac1, To: dc1,
		R: 0.001, X: 0.05, Gsw: 1e-5, Converter: true, Rate: 150,
		PhaseControl: grid.TapPhasePf, PfSet: 100})
	g.AddBranch(&grid.Branch{Name: "dc-line", From: dc1, To: dc2, R: 0.01, Rate: 150})
	// the receiving converter holds the DC-link voltage
	g.AddBranch(&grid.Branch{Name: "vsc-recv", From: dc2, To: ac2,
		R: 0.001, X: 0.05, Gsw: 1e-5, Converter: true, Rate: 150,
		ModuleControl: grid.TapModuleVm, VmSet: 1.0, RegulationBus: dc2})

	return g
}

func printResults(r *pflow.GridResults) {
	fmt.Println("\nPower Flow Results:")
	fmt.Println("===================")
	fmt.Printf("converged=%v  error=%.3e  iterations=%d  elapsed=%s\n\n",
		r.Converged, r.Error, r.Iterations, r.Elapsed)

	fmt.Println("Bus          Vm          Va           P [MW]     Q [MVAr]")
	fmt.Println("-----------------------------------------------------------")
	for i, name := range r.BusNames {
		fmt.Printf("%-12s %s %s  %9.3f  %9.3f\n", name,
			util.FormatPerUnit(r.Vm[i]), util.FormatAngleDeg(r.Va[i]),
			r.P[i], r.Q[i])
	}

	fmt.Println("\nBranch       Pf [MW]    Qf [MVAr]  Pt [MW]    Losses [MW]  Loading")
	fmt.Println("--------------------------------------------------------------------")
	for k, name := range r.BranchNames {
		fmt.Printf("%-12s %9.3f  %9.3f  %9.3f  %11.4f  %s\n", name,
			r.Pf[k], r.Qf[k], r.Pt[k], r.Losses[k], util.FormatLoading(r.Loading[k]))
	}
	fmt.Printf("\nTotal active losses: %s\n", util.FormatValueFactor(r.TotalLosses()*1e6, "W"))
}

func main() {
	caseName := flag.String("case", "5bus", "built-in case: 5bus, tap, acdc")
	optionsFile := flag.String("options", "", "YAML options file")
	verbose := flag.Bool("v", false, "forward solve diagnostics to stderr")
	flag.Parse()

	var g *grid.Grid
	switch *caseName {
	case "5bus":
		g = fiveBusCase()
	case "tap":
		g = tapControlCase()
	case "acdc":
		g = acdcCase()
	default:
		log.Fatalf("unknown case %q", *caseName)
	}

	opts := pflow.DefaultOptions()
	if *optionsFile != "" {
		var err error
		opts, err = pflow.LoadOptions(*optionsFile)
		if err != nil {
			log.Fatalf("options: %v", err)
		}
	}

	plog := logger.New()
	if *verbose {
		zl, err := zap.NewDevelopment()
		if err != nil {
			log.Fatalf("logger: %v", err)
		}
		defer zl.Sync()
		plog = logger.NewWithSink(zl)
	}

	results, err := pflow.SolveGrid(context.Background(), g, opts, lsolver.NewRegistry(), plog)
	if err != nil {
		log.Fatalf("solve: %v", err)
	}
	printResults(results)

	if plog.HasErrors() {
		fmt.Fprintln(os.Stderr, "\nsolve finished with errors:")
		for _, e := range plog.Entries() {
			fmt.Fprintln(os.Stderr, "  "+e.String())
		}
		os.Exit(1)
	}
}
