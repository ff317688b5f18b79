package grid

// BusType is the power-flow classification of a bus.
type BusType int

const (
	PQ BusType = iota + 1
	PV
	Slack
)

func (t BusType) String() string {
	switch t {
	case PQ:
		return "PQ"
	case PV:
		return "PV"
	case Slack:
		return "Slack"
	}
	return "?"
}

// TapModuleControl selects the quantity a transformer or converter drives
// with its tap module.
type TapModuleControl int

const (
	TapModuleFixed TapModuleControl = iota
	TapModuleVm
	TapModuleQf
	TapModuleQt
)

func (c TapModuleControl) String() string {
	switch c {
	case TapModuleFixed:
		return "fixed"
	case TapModuleVm:
		return "Vm"
	case TapModuleQf:
		return "Qf"
	case TapModuleQt:
		return "Qt"
	}
	return "?"
}

// TapPhaseControl selects the quantity a phase shifter or converter drives
// with its tap angle.
type TapPhaseControl int

const (
	TapPhaseFixed TapPhaseControl = iota
	TapPhasePf
	TapPhasePt
)

func (c TapPhaseControl) String() string {
	switch c {
	case TapPhaseFixed:
		return "fixed"
	case TapPhasePf:
		return "Pf"
	case TapPhasePt:
		return "Pt"
	}
	return "?"
}

// ReactiveControlMode enables or disables generator reactive limit
// enforcement during the solve.
type ReactiveControlMode int

const (
	ReactiveNoControl ReactiveControlMode = iota
	ReactiveDirect
)

// TapControlMode enables or disables branch tap controls globally.
type TapControlMode int

const (
	TapNoControl TapControlMode = iota
	TapControlModule
	TapControlPhase
	TapControlFull
)
