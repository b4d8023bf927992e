package cluster

import (
	"math"
	"sort"
)

// CosineDistance returns 1 - cosine similarity. Zero vectors are treated as
// maximally distant.
func CosineDistance(a, b []float64) float64 {
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

const (
	labelUnvisited = -2
	labelNoise     = -1
)

// DBSCAN groups points by density over cosine distance. Points with fewer
// than minPts neighbors within eps are noise unless reachable from a core
// point. Iteration follows ascending id order at every step, so identical
// input always yields identical groups.
func DBSCAN(ids []string, vectors map[string][]float64, eps float64, minPts int) [][]string {
	if minPts < 1 {
		minPts = 1
	}

	ordered := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := vectors[id]; ok {
			ordered = append(ordered, id)
		}
	}
	sort.Strings(ordered)

	index := make(map[string]int, len(ordered))
	for i, id := range ordered {
		index[id] = i
	}

	// Precompute neighborhoods. Quadratic, but clustering runs offline over
	// at most tens of thousands of pains.
	neighbors := make([][]int, len(ordered))
	for i, a := range ordered {
		for j := i; j < len(ordered); j++ {
			if CosineDistance(vectors[a], vectors[ordered[j]]) <= eps {
				neighbors[i] = append(neighbors[i], j)
				if j != i {
					neighbors[j] = append(neighbors[j], i)
				}
			}
		}
	}
	for i := range neighbors {
		sort.Ints(neighbors[i])
	}

	labels := make([]int, len(ordered))
	for i := range labels {
		labels[i] = labelUnvisited
	}

	clusterID := 0
	for i := range ordered {
		if labels[i] != labelUnvisited {
			continue
		}
		if len(neighbors[i]) < minPts {
			labels[i] = labelNoise
			continue
		}

		labels[i] = clusterID
		queue := append([]int(nil), neighbors[i]...)
		for len(queue) > 0 {
			j := queue[0]
			queue = queue[1:]

			if labels[j] == labelNoise {
				labels[j] = clusterID // border point claimed by the cluster
			}
			if labels[j] != labelUnvisited {
				continue
			}
			labels[j] = clusterID
			if len(neighbors[j]) >= minPts {
				queue = append(queue, neighbors[j]...)
			}
		}
		clusterID++
	}

	groups := make([][]string, clusterID)
	for i, id := range ordered {
		if labels[i] >= 0 {
			groups[labels[i]] = append(groups[labels[i]], id)
		}
	}
	for _, g := range groups {
		sort.Strings(g)
	}
	return groups
}
