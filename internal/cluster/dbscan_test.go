package cluster

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineDistance(t *testing.T) {
	assert.InDelta(t, 0, CosineDistance([]float64{1, 0}, []float64{2, 0}), 1e-9)
	assert.InDelta(t, 1, CosineDistance([]float64{1, 0}, []float64{0, 1}), 1e-9)
	assert.InDelta(t, 2, CosineDistance([]float64{1, 0}, []float64{-1, 0}), 1e-9)
}

func TestCosineDistance_ZeroVectorIsMaximallyDistant(t *testing.T) {
	assert.Equal(t, 1.0, CosineDistance([]float64{0, 0}, []float64{1, 0}))
	assert.Equal(t, 1.0, CosineDistance([]float64{0, 0}, []float64{0, 0}))
}

// two tight groups on orthogonal axes plus one outlier
func twoGroupVectors() (ids []string, vectors map[string][]float64) {
	vectors = map[string][]float64{
		"a1": {1, 0.00},
		"a2": {1, 0.01},
		"a3": {1, 0.02},
		"b1": {0.00, 1},
		"b2": {0.01, 1},
		"b3": {0.02, 1},
		"x1": {1, 1}, // equidistant outlier
	}
	for id := range vectors {
		ids = append(ids, id)
	}
	return ids, vectors
}

func TestDBSCAN_FindsTwoGroupsAndNoise(t *testing.T) {
	ids, vectors := twoGroupVectors()

	groups := DBSCAN(ids, vectors, 0.1, 3)
	require.Len(t, groups, 2)
	assert.Equal(t, []string{"a1", "a2", "a3"}, groups[0])
	assert.Equal(t, []string{"b1", "b2", "b3"}, groups[1])
}

func TestDBSCAN_Deterministic(t *testing.T) {
	ids, vectors := twoGroupVectors()
	first := DBSCAN(ids, vectors, 0.1, 3)

	// Reversed input order must produce identical output.
	reversed := make([]string, len(ids))
	for i, id := range ids {
		reversed[len(ids)-1-i] = id
	}
	second := DBSCAN(reversed, vectors, 0.1, 3)
	assert.Equal(t, first, second)
}

func TestDBSCAN_AllNoiseWhenSparse(t *testing.T) {
	vectors := map[string][]float64{
		"a": {1, 0},
		"b": {0, 1},
		"c": {-1, 0},
	}
	groups := DBSCAN([]string{"a", "b", "c"}, vectors, 0.1, 2)
	assert.Empty(t, groups)
}

// unit vector at the given angle in degrees
func atAngle(deg float64) []float64 {
	rad := deg * math.Pi / 180
	return []float64{math.Cos(rad), math.Sin(rad)}
}

func TestDBSCAN_BorderPointClaimedByCluster(t *testing.T) {
	// "border" is within eps only of a3, so it can never be core, but it
	// is density-reachable from a3.
	vectors := map[string][]float64{
		"a1":     atAngle(0),
		"a2":     atAngle(2),
		"a3":     atAngle(4),
		"border": atAngle(12),
	}
	ids := []string{"a1", "a2", "a3", "border"}

	// eps 0.01 covers about 8 degrees of separation.
	groups := DBSCAN(ids, vectors, 0.01, 3)
	require.Len(t, groups, 1)
	assert.Contains(t, groups[0], "border")
	assert.Len(t, groups[0], 4)

	// A tighter eps leaves the border point as noise.
	groups = DBSCAN(ids, vectors, 0.005, 3)
	require.Len(t, groups, 1)
	assert.NotContains(t, groups[0], "border")
	assert.Len(t, groups[0], 3)
}

func TestDBSCAN_SkipsIDsWithoutVectors(t *testing.T) {
	vectors := map[string][]float64{
		"a1": {1, 0.00},
		"a2": {1, 0.01},
		"a3": {1, 0.02},
	}
	groups := DBSCAN([]string{"a1", "a2", "a3", "missing"}, vectors, 0.1, 3)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0], 3)
}

func TestDBSCAN_SingletonWithMinPtsOne(t *testing.T) {
	vectors := map[string][]float64{"only": {1, 0}}
	groups := DBSCAN([]string{"only"}, vectors, 0.1, 1)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"only"}, groups[0])
}
