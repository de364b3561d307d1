package cluster

import (
	"fmt"
	"math/rand"
	"slices"

	"github.com/WessleyAI/wessley-support/engine/domain"
)

// DefaultMaxIterations caps reassignment rounds.
const DefaultMaxIterations = 100

// K returns the number of clusters for a corpus of n vectors:
// min(maxClusters, floor(n/minSize)). A result below 1 means no clustering.
func K(n, minSize, maxClusters int) int {
	if n <= 0 || minSize <= 0 {
		return 0
	}
	return min(maxClusters, n/minSize)
}

// Assignment is the raw outcome of a k-means run.
type Assignment struct {
	// Labels maps each input vector to its cluster index.
	Labels     []int
	Centroids  [][]float32
	Iterations int
	Converged  bool
}

// KMeans partitions vectors into k groups. Initial centroids are k distinct
// input vectors drawn from rng. Iteration stops once assignments repeat or
// after maxIter rounds; the latter is a normal outcome reported through
// Converged.
func KMeans(vectors [][]float32, k, maxIter int, rng *rand.Rand) Assignment {
	n := len(vectors)
	if k < 1 || n == 0 {
		return Assignment{Converged: true}
	}
	k = min(k, n)
	if maxIter < 1 {
		maxIter = DefaultMaxIterations
	}

	centroids := make([][]float32, k)
	for c, idx := range rng.Perm(n)[:k] {
		centroids[c] = slices.Clone(vectors[idx])
	}

	labels := make([]int, n)
	var prev []int
	out := Assignment{}
	for iter := 1; iter <= maxIter; iter++ {
		for i, v := range vectors {
			labels[i] = nearest(v, centroids)
		}
		out.Iterations = iter
		if prev != nil && slices.Equal(prev, labels) {
			out.Converged = true
			break
		}
		recompute(vectors, labels, centroids)
		prev = slices.Clone(labels)
	}

	out.Labels = labels
	out.Centroids = centroids
	return out
}

// nearest returns the index of the closest centroid; ties go to the lowest index.
func nearest(v []float32, centroids [][]float32) int {
	best, bestDist := 0, Dissimilarity(v, centroids[0])
	for c := 1; c < len(centroids); c++ {
		if d := Dissimilarity(v, centroids[c]); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// recompute sets each centroid to the mean of its members. Centroids with no
// members keep their previous value.
func recompute(vectors [][]float32, labels []int, centroids [][]float32) {
	dim := len(centroids[0])
	sums := make([][]float64, len(centroids))
	counts := make([]int, len(centroids))
	for i, v := range vectors {
		c := labels[i]
		if sums[c] == nil {
			sums[c] = make([]float64, dim)
		}
		for j := 0; j < dim && j < len(v); j++ {
			sums[c][j] += float64(v[j])
		}
		counts[c]++
	}
	for c := range centroids {
		if counts[c] == 0 {
			continue
		}
		mean := make([]float32, dim)
		for j := range mean {
			mean[j] = float32(sums[c][j] / float64(counts[c]))
		}
		centroids[c] = mean
	}
}

// Candidates converts an assignment into cluster candidates keyed by the
// given ids. Empty clusters are omitted; members keep input order.
func Candidates(ids []string, a Assignment) []domain.ClusterCandidate {
	members := make([][]string, len(a.Centroids))
	for i, c := range a.Labels {
		members[c] = append(members[c], ids[i])
	}
	var out []domain.ClusterCandidate
	for c, m := range members {
		if len(m) == 0 {
			continue
		}
		out = append(out, domain.ClusterCandidate{
			ID:        fmt.Sprintf("cluster_%d", c),
			MemberIDs: m,
			Centroid:  a.Centroids[c],
		})
	}
	return out
}
