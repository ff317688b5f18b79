package util

import (
	"fmt"
	"math"
)

func FormatValueFactor(value float64, unit string) string {
	absValue := math.Abs(value)
	switch {
	case absValue >= 1e9:
		return fmt.Sprintf("%.3f G%s", value/1e9, unit)
	case absValue >= 1e6:
		return fmt.Sprintf("%.3f M%s", value/1e6, unit)
	case absValue >= 1e3:
		return fmt.Sprintf("%.3f k%s", value/1e3, unit)
	case absValue >= 1:
		return fmt.Sprintf("%.3f %s", value, unit)
	case absValue >= 1e-3:
		return fmt.Sprintf("%.3f m%s", value*1e3, unit)
	default:
		return fmt.Sprintf("%.3e %s", value, unit)
	}
}

func FormatPerUnit(value float64) string {
	return fmt.Sprintf("%8.5f pu", value)
}

func FormatAngleDeg(radians float64) string {
	return fmt.Sprintf("%7.3f deg", radians*180.0/math.Pi)
}

// FormatPolar renders a complex voltage as magnitude and angle, the way
// bus voltages are usually read.
func FormatPolar(name string, magnitude, phaseRad float64) string {
	var magStr string
	if magnitude >= 1000 || (magnitude < 0.001 && magnitude != 0) {
		magStr = fmt.Sprintf("%8.2e", magnitude)
	} else {
		magStr = fmt.Sprintf("%8.5f", magnitude)
	}
	return fmt.Sprintf("%s=%s<%s", name, magStr, FormatAngleDeg(phaseRad))
}

func FormatLoading(ratio float64) string {
	return fmt.Sprintf("%6.1f %%", ratio*100.0)
}
