package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClusterSignature_OrderIndependent(t *testing.T) {
	a := ClusterSignature([]string{"p1", "p2", "p3"})
	b := ClusterSignature([]string{"p3", "p1", "p2"})
	assert.Equal(t, a, b)
	assert.Len(t, a, 64) // hex sha-256
}

func TestClusterSignature_DistinguishesMembership(t *testing.T) {
	a := ClusterSignature([]string{"p1", "p2"})
	b := ClusterSignature([]string{"p1", "p3"})
	assert.NotEqual(t, a, b)
}

func TestClusterSignature_DoesNotMutateInput(t *testing.T) {
	ids := []string{"z", "a", "m"}
	ClusterSignature(ids)
	assert.Equal(t, []string{"z", "a", "m"}, ids)
}

func TestJaccard(t *testing.T) {
	assert.InDelta(t, 1.0, Jaccard([]string{"a", "b"}, []string{"b", "a"}), 1e-9)
	assert.InDelta(t, 0.5, Jaccard([]string{"a", "b", "c"}, []string{"a", "b", "d"}), 1e-9)
	assert.InDelta(t, 0.0, Jaccard([]string{"a"}, []string{"b"}), 1e-9)
}

func TestJaccard_EmptySets(t *testing.T) {
	assert.Equal(t, 1.0, Jaccard(nil, nil))
	assert.Equal(t, 0.0, Jaccard([]string{"a"}, nil))
}
