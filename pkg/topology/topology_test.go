package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allActive(n int) []bool {
	a := make([]bool, n)
	for i := range a {
		a[i] = true
	}
	return a
}

func TestBuildIncidence(t *testing.T) {
	from := []int{0, 1, 2}
	to := []int{1, 2, 3}
	active := []bool{true, false, true}

	inc := BuildIncidence(4, from, to, active)

	assert.Equal(t, 1.0, inc.Cf.At(0, 0))
	assert.Equal(t, 1.0, inc.Ct.At(0, 1))
	assert.Equal(t, 1.0, inc.Cf.At(2, 2))
	assert.Equal(t, 1.0, inc.Ct.At(2, 3))

	// inactive branch contributes nothing
	assert.Equal(t, 0.0, inc.Cf.At(1, 1))
	assert.Equal(t, 0.0, inc.Ct.At(1, 2))
}

func TestFindIslandsSingleComponent(t *testing.T) {
	from := []int{0, 1, 2, 3}
	to := []int{1, 2, 3, 4}
	inc := BuildIncidence(5, from, to, allActive(4))

	islands := FindIslands(inc.Adjacency(5), allActive(5))
	require.Len(t, islands, 1)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, islands[0])
}

func TestFindIslandsSplitOnDisabledBranch(t *testing.T) {
	// 0-1-2   3-4, the 2-3 tie is out of service
	from := []int{0, 1, 2, 3}
	to := []int{1, 2, 3, 4}
	active := []bool{true, true, false, true}
	inc := BuildIncidence(5, from, to, active)

	islands := FindIslands(inc.Adjacency(5), allActive(5))
	require.Len(t, islands, 2)
	assert.Equal(t, []int{0, 1, 2}, islands[0])
	assert.Equal(t, []int{3, 4}, islands[1])
}

func TestFindIslandsInactiveBus(t *testing.T) {
	// deactivating the middle bus splits the chain and drops the bus
	from := []int{0, 1}
	to := []int{1, 2}
	inc := BuildIncidence(3, from, to, allActive(2))

	busActive := []bool{true, false, true}
	islands := FindIslands(inc.Adjacency(3), busActive)
	require.Len(t, islands, 2)
	assert.Equal(t, []int{0}, islands[0])
	assert.Equal(t, []int{2}, islands[1])
}

func TestFindIslandsPartitionProperty(t *testing.T) {
	// every active bus lands in exactly one island
	from := []int{0, 2, 4, 6, 1}
	to := []int{1, 3, 5, 7, 2}
	active := []bool{true, true, true, true, false}
	inc := BuildIncidence(9, from, to, active)

	busActive := allActive(9)
	busActive[8] = false
	islands := FindIslands(inc.Adjacency(9), busActive)

	seen := map[int]int{}
	for _, island := range islands {
		for _, b := range island {
			seen[b]++
		}
	}
	for b := 0; b < 8; b++ {
		assert.Equal(t, 1, seen[b], "bus %d", b)
	}
	_, inIsland := seen[8]
	assert.False(t, inIsland)
}
