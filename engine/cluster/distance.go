// Package cluster groups embedding vectors with iterative centroid assignment
// over cosine dissimilarity and drops groups below a minimum size.
package cluster

import "math"

// CosineSimilarity returns the cosine of the angle between a and b. A zero
// vector is treated as dissimilar to everything, including itself.
func CosineSimilarity(a, b []float32) float64 {
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(-1, math.Min(1, sim))
}

// Dissimilarity is 1 - CosineSimilarity, in [0,2] with 0 meaning identical
// direction. It is not a metric: the triangle inequality does not hold, so it
// must not be used where a true geometric distance is expected.
func Dissimilarity(a, b []float32) float64 {
	return 1 - CosineSimilarity(a, b)
}
