package activity

import "thermofit/pkg/domain"

// StdDev is the typical chemical potential scatter of activity measurements
// in J/mol.
const StdDev = 500.0

// Weight is the standard deviation assigned to every sample of ds.
func Weight(dataWeight float64, ds domain.Dataset) float64 {
	return StdDev / dataWeight / ds.WeightOr(1.0)
}

// Residuals accumulates per-sample results across datasets. Gradients holds
// one block per dataset with one row per sample.
type Residuals struct {
	Values    []float64
	Weights   []float64
	Gradients [][][]float64
}

// Len is the number of samples.
func (r Residuals) Len() int { return len(r.Values) }

// Rows flattens the per-dataset gradient blocks into one row per sample.
func (r Residuals) Rows() [][]float64 {
	out := make([][]float64, 0, len(r.Values))
	for _, block := range r.Gradients {
		out = append(out, block...)
	}
	return out
}

// add appends one dataset: residual = predicted - target and
// gradient = dmu_pred - dmu_ref.
func (r *Residuals) add(predicted []potential, targets []float64, ref potential, weight float64) {
	block := make([][]float64, len(predicted))
	for i, p := range predicted {
		r.Values = append(r.Values, p.mu-targets[i])
		r.Weights = append(r.Weights, weight)
		row := make([]float64, len(p.grad))
		for j := range p.grad {
			row[j] = p.grad[j] - ref.grad[j]
		}
		block[i] = row
	}
	r.Gradients = append(r.Gradients, block)
}
