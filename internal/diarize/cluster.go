package diarize

import (
	"fmt"
	"math"
)

// clusterAgglomerative groups embeddings into k clusters by average-linkage
// agglomerative merging over cosine distance. Returns one cluster index per
// embedding; indices are renumbered 0..k-1 in order of first appearance.
func clusterAgglomerative(embeddings [][]float64, k int) ([]int, error) {
	n := len(embeddings)
	if k < 1 {
		return nil, fmt.Errorf("cluster count %d out of range", k)
	}
	if k > n {
		return nil, fmt.Errorf("cannot form %d clusters from %d points", k, n)
	}

	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
		for j := range dist[i] {
			if i != j {
				dist[i][j] = cosineDistance(embeddings[i], embeddings[j])
			}
		}
	}

	// Each cluster holds the point indices it currently contains.
	clusters := make([][]int, n)
	for i := range clusters {
		clusters[i] = []int{i}
	}

	for len(clusters) > k {
		bestA, bestB := -1, -1
		bestDist := math.Inf(1)
		for a := 0; a < len(clusters); a++ {
			for b := a + 1; b < len(clusters); b++ {
				d := averageLinkage(dist, clusters[a], clusters[b])
				if d < bestDist {
					bestDist = d
					bestA, bestB = a, b
				}
			}
		}
		clusters[bestA] = append(clusters[bestA], clusters[bestB]...)
		clusters = append(clusters[:bestB], clusters[bestB+1:]...)
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	next := 0
	for _, members := range clusters {
		for _, idx := range members {
			labels[idx] = next
		}
		next++
	}

	// Renumber by first appearance so labels are stable across runs.
	remap := make(map[int]int)
	for i, l := range labels {
		if _, ok := remap[l]; !ok {
			remap[l] = len(remap)
		}
		labels[i] = remap[l]
	}
	return labels, nil
}

// averageLinkage is the mean pairwise distance between two clusters.
func averageLinkage(dist [][]float64, a, b []int) float64 {
	var sum float64
	for _, i := range a {
		for _, j := range b {
			sum += dist[i][j]
		}
	}
	return sum / float64(len(a)*len(b))
}

// silhouetteScore is the mean silhouette coefficient over all points.
// Requires at least 2 and at most n-1 clusters; singleton points score 0.
func silhouetteScore(embeddings [][]float64, labels []int) (float64, error) {
	n := len(embeddings)
	counts := map[int]int{}
	for _, l := range labels {
		counts[l]++
	}
	if len(counts) < 2 || len(counts) > n-1 {
		return 0, fmt.Errorf("silhouette undefined for %d clusters over %d points", len(counts), n)
	}

	var total float64
	for i := 0; i < n; i++ {
		if counts[labels[i]] == 1 {
			continue
		}

		// a: mean distance to own cluster. b: min mean distance to another.
		sums := map[int]float64{}
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			sums[labels[j]] += cosineDistance(embeddings[i], embeddings[j])
		}

		a := sums[labels[i]] / float64(counts[labels[i]]-1)
		b := math.Inf(1)
		for l, sum := range sums {
			if l == labels[i] {
				continue
			}
			if mean := sum / float64(counts[l]); mean < b {
				b = mean
			}
		}

		if denom := math.Max(a, b); denom > 0 {
			total += (b - a) / denom
		}
	}
	return total / float64(n), nil
}

// cosineDistance is 1 minus cosine similarity. Zero vectors are maximally
// distant from everything.
func cosineDistance(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

// unitNormalize scales the vector to length 1 in place. Zero vectors are
// left untouched.
func unitNormalize(v []float64) {
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		return
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] /= norm
	}
}
