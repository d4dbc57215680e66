package activity

import "math"

var halfLog2Pi = 0.5 * math.Log(2*math.Pi)

// Aggregate sums the zero-mean Gaussian log-densities of the residuals, using
// each weight as the standard deviation, and the matching gradient
// sum(-r * dr/dp / w^2). A non-finite total resolves to (-Inf, zeros).
func Aggregate(residuals, weights []float64, rows [][]float64, nParams int) (float64, []float64) {
	grad := make([]float64, nParams)
	var total float64
	for i, r := range residuals {
		w := weights[i]
		if w <= 0 {
			total = math.NaN()
			break
		}
		z := r / w
		total += -0.5*z*z - math.Log(w) - halfLog2Pi
		if i < len(rows) {
			for j := 0; j < nParams && j < len(rows[i]); j++ {
				grad[j] += -r * rows[i][j] / (w * w)
			}
		}
	}
	if math.IsNaN(total) || math.IsInf(total, 0) {
		return math.Inf(-1), make([]float64, nParams)
	}
	return total, grad
}
