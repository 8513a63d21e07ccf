package drift

import "math"

// psi computes the Population Stability Index between an actual and an
// expected proportion vector of equal length:
//
//	PSI = Σ (actual_i − expected_i) · ln(actual_i / expected_i)
//
// Additive smoothing eps is applied to both sides so empty bins never divide
// by zero. Every term is non-negative, so PSI ≥ 0 always holds.
func psi(actual, expected []float64, eps float64) float64 {
	var sum float64
	for i := range expected {
		a := actual[i] + eps
		e := expected[i] + eps
		sum += (a - e) * math.Log(a/e)
	}
	return sum
}

// numericProportions buckets values into the training-time bins and returns
// the proportion per bin. Values outside the edge range fall into the
// outermost bins, so a shifted distribution still registers as drift rather
// than silently dropping samples.
func numericProportions(values []float64, edges []float64) []float64 {
	bins := len(edges) - 1
	counts := make([]float64, bins)
	for _, v := range values {
		idx := bins - 1
		for b := 0; b < bins; b++ {
			if v < edges[b+1] {
				idx = b
				break
			}
		}
		counts[idx]++
	}
	n := float64(len(values))
	for i := range counts {
		counts[i] /= n
	}
	return counts
}

// categoricalProportions returns the proportion per known category, plus the
// share of values in none of them (the "other" bucket for unseen categories).
func categoricalProportions(values []string, categories []string) ([]float64, float64) {
	index := make(map[string]int, len(categories))
	for i, c := range categories {
		index[c] = i
	}
	counts := make([]float64, len(categories))
	var other float64
	for _, v := range values {
		if i, ok := index[v]; ok {
			counts[i]++
		} else {
			other++
		}
	}
	n := float64(len(values))
	for i := range counts {
		counts[i] /= n
	}
	return counts, other / n
}
