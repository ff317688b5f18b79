package pflow

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/gridkit/gridflow/pkg/grid"
)

// Options configures one power-flow run.
type Options struct {
	Tolerance     float64 `mapstructure:"tolerance"`
	MaxIter       int     `mapstructure:"max_iter"`
	Mu0           float64 `mapstructure:"mu0"`     // initial damping factor, <= 1
	MuFloor       float64 `mapstructure:"mu_floor"` // line-search termination floor
	SolverBackend string  `mapstructure:"solver_backend"`

	ControlQ   grid.ReactiveControlMode `mapstructure:"-"`
	TapControl grid.TapControlMode      `mapstructure:"-"`

	DistributedSlack        bool `mapstructure:"distributed_slack"`
	MultiThreaded           bool `mapstructure:"multi_threaded"`
	IgnoreSingleNodeIslands bool `mapstructure:"ignore_single_node_islands"`
}

// DefaultOptions returns the stock configuration: direct reactive control,
// both tap controls enabled, sequential islands.
func DefaultOptions() Options {
	return Options{
		Tolerance:  1e-6,
		MaxIter:    20,
		Mu0:        1.0,
		MuFloor:    1e-5,
		ControlQ:   grid.ReactiveDirect,
		TapControl: grid.TapControlFull,
	}
}

// controlsTol is the residual level below which control transitions are
// evaluated: far from the solution the monitored quantities are not
// trustworthy and switching would just chatter.
func (o Options) controlsTol() float64 {
	return 100.0 * o.Tolerance
}

func (o Options) validate() error {
	if o.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive, got %g", o.Tolerance)
	}
	if o.MaxIter <= 0 {
		return fmt.Errorf("max_iter must be positive, got %d", o.MaxIter)
	}
	if o.Mu0 <= 0 || o.Mu0 > 1 {
		return fmt.Errorf("mu0 must be in (0, 1], got %g", o.Mu0)
	}
	return nil
}

// LoadOptions reads an Options YAML file. Missing keys keep their defaults;
// the reactive and tap control modes are given as strings.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return opts, fmt.Errorf("reading options file: %w", err)
	}
	if err := v.Unmarshal(&opts); err != nil {
		return opts, fmt.Errorf("parsing options file: %w", err)
	}

	switch v.GetString("control_q") {
	case "", "direct":
		opts.ControlQ = grid.ReactiveDirect
	case "none":
		opts.ControlQ = grid.ReactiveNoControl
	default:
		return opts, fmt.Errorf("unknown control_q mode %q", v.GetString("control_q"))
	}

	switch v.GetString("tap_control") {
	case "", "full":
		opts.TapControl = grid.TapControlFull
	case "module":
		opts.TapControl = grid.TapControlModule
	case "phase":
		opts.TapControl = grid.TapControlPhase
	case "none":
		opts.TapControl = grid.TapNoControl
	default:
		return opts, fmt.Errorf("unknown tap_control mode %q", v.GetString("tap_control"))
	}

	if err := opts.validate(); err != nil {
		return opts, err
	}
	return opts, nil
}
