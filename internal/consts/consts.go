package consts

const (
	EPSIMPEDANCE = 1e-20 // Series impedance guard (p.u.)
	EPSRATE      = 1e-9  // Branch rate guard for loading division (MVA)
	EPSVOLTAGE   = 1e-12 // Voltage magnitude guard (p.u.)
	DEFAULTSBASE = 100.0 // Default power base (MVA)
)
