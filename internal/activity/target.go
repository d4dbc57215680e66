package activity

import (
	"math"

	"thermofit/pkg/thermo"
)

// TargetPotentials converts measured activities into the chemical potentials
// they imply relative to muRef: R*T*ln(a) + muRef. A non-positive activity
// yields a non-finite target.
func TargetPotentials(activities, temperatures []float64, muRef float64) []float64 {
	out := make([]float64, len(activities))
	for i, a := range activities {
		out[i] = thermo.GasConstant*temperatures[i]*math.Log(a) + muRef
	}
	return out
}
