package detector

import (
	"math"
	"math/rand/v2"
)

const eulerGamma = 0.5772156649015329

// AveragePathLength is c(n), the mean unsuccessful-search depth of a binary search
// tree over n points. It normalizes path lengths and corrects unfinished leaves.
func AveragePathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}

// heightLimit is ceil(log2(maxSamples))
func heightLimit(maxSamples int) int {
	if maxSamples <= 1 {
		return 0
	}
	return int(math.Ceil(math.Log2(float64(maxSamples))))
}

// node is one arena slot. Leaves have left == -1.
type node struct {
	feature int
	split   float64
	left    int32
	right   int32
	size    int32
	depth   int32
}

func (n *node) isLeaf() bool {
	return n.left < 0
}

// Tree is an isolation tree stored as an array of nodes; the root is nodes[0]
type Tree struct {
	nodes []node
}

// buildTree partitions the rows named by sample until each leaf is isolated or the
// height limit is hit. sample is reordered in place.
func buildTree(matrix [][]float64, sample []int, limit int, rng *rand.Rand) *Tree {
	t := &Tree{nodes: make([]node, 0, 2*len(sample))}
	t.grow(matrix, sample, 0, limit, rng)
	return t
}

func (t *Tree) grow(matrix [][]float64, idx []int, depth, limit int, rng *rand.Rand) int32 {
	pos := int32(len(t.nodes))
	t.nodes = append(t.nodes, node{left: -1, right: -1, size: int32(len(idx)), depth: int32(depth)})

	if len(idx) <= 1 || depth >= limit {
		return pos
	}

	feature, lo, hi, ok := pickFeature(matrix, idx, rng)
	if !ok {
		return pos
	}

	split := lo + rng.Float64()*(hi-lo)
	cut := 0
	for j, r := range idx {
		if matrix[r][feature] < split {
			idx[cut], idx[j] = idx[j], idx[cut]
			cut++
		}
	}
	if cut == 0 || cut == len(idx) {
		return pos
	}

	left := t.grow(matrix, idx[:cut], depth+1, limit, rng)
	right := t.grow(matrix, idx[cut:], depth+1, limit, rng)

	n := &t.nodes[pos]
	n.feature = feature
	n.split = split
	n.left = left
	n.right = right
	return pos
}

// pickFeature draws features without replacement until one varies across idx.
// ok is false only when every feature is constant in the node.
func pickFeature(matrix [][]float64, idx []int, rng *rand.Rand) (feature int, lo, hi float64, ok bool) {
	cols := len(matrix[idx[0]])
	feats := make([]int, cols)
	for i := range feats {
		feats[i] = i
	}
	for k := 0; k < cols; k++ {
		j := k + rng.IntN(cols-k)
		feats[k], feats[j] = feats[j], feats[k]
		feature = feats[k]

		lo, hi = matrix[idx[0]][feature], matrix[idx[0]][feature]
		for _, r := range idx[1:] {
			v := matrix[r][feature]
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if lo < hi {
			return feature, lo, hi, true
		}
	}
	return 0, 0, 0, false
}

// PathLength returns the depth at which x lands plus c(leaf size)
func (t *Tree) PathLength(x []float64) float64 {
	n := &t.nodes[0]
	for !n.isLeaf() {
		if x[n.feature] < n.split {
			n = &t.nodes[n.left]
		} else {
			n = &t.nodes[n.right]
		}
	}
	return float64(n.depth) + AveragePathLength(int(n.size))
}

// Len returns the number of nodes in the tree
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Depth returns the deepest leaf depth
func (t *Tree) Depth() int {
	deepest := 0
	for i := range t.nodes {
		if d := int(t.nodes[i].depth); d > deepest {
			deepest = d
		}
	}
	return deepest
}
