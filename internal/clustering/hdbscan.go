package clustering

import (
	"context"
	"fmt"
	"math"
	"sort"

	"headlines/internal/core"
)

// maxLambda bounds 1/distance for points that merge at distance zero.
const maxLambda = 1e12

// HDBSCANConfig holds configuration for HDBSCAN clustering
type HDBSCANConfig struct {
	MinClusterSize int // Minimum number of articles to form a cluster
	MinSamples     int // Neighbourhood size (self included) for the core distance; MinClusterSize when 0
}

// DefaultHDBSCANConfig returns the defaults used for near-duplicate grouping
func DefaultHDBSCANConfig() HDBSCANConfig {
	return HDBSCANConfig{
		MinClusterSize: 15,
		MinSamples:     15,
	}
}

// HDBSCAN labels dense groups of points. Points outside every selected
// cluster get core.NoiseLabel. Labels are 0..k-1 in order of first
// appearance. The root of the hierarchy is never selected, so a single
// uniform blob comes out as noise.
func HDBSCAN(ctx context.Context, points [][]float64, cfg HDBSCANConfig) ([]int, error) {
	n := len(points)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = core.NoiseLabel
	}
	if cfg.MinClusterSize < 2 {
		return nil, fmt.Errorf("hdbscan: min cluster size must be at least 2, got %d", cfg.MinClusterSize)
	}
	if n < cfg.MinClusterSize {
		return labels, nil
	}

	minSamples := cfg.MinSamples
	if minSamples <= 0 {
		minSamples = cfg.MinClusterSize
	}
	if minSamples > n {
		minSamples = n
	}

	coreDist := coreDistances(points, minSamples)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	mst := minimumSpanningTree(points, coreDist)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tree := condenseTree(singleLinkage(mst, n), n, cfg.MinClusterSize)
	selected := tree.selectClusters()
	return tree.label(selected), nil
}

// coreDistances returns, per point, the distance to its minSamples-th
// nearest point counting the point itself.
func coreDistances(points [][]float64, minSamples int) []float64 {
	n := len(points)
	out := make([]float64, n)
	row := make([]float64, n)
	for i := range points {
		for j := range points {
			row[j] = EuclideanDistance(points[i], points[j])
		}
		sorted := append([]float64(nil), row...)
		sort.Float64s(sorted)
		out[i] = sorted[minSamples-1]
	}
	return out
}

type mstEdge struct {
	a, b   int
	weight float64
}

// minimumSpanningTree runs Prim's algorithm over the mutual reachability
// distance max(core(a), core(b), d(a, b)) without materialising the full
// distance matrix.
func minimumSpanningTree(points [][]float64, coreDist []float64) []mstEdge {
	n := len(points)
	inTree := make([]bool, n)
	best := make([]float64, n)
	from := make([]int, n)
	for i := range best {
		best[i] = math.Inf(1)
	}

	edges := make([]mstEdge, 0, n-1)
	current := 0
	inTree[0] = true
	for len(edges) < n-1 {
		next, nextDist := -1, math.Inf(1)
		for j := 0; j < n; j++ {
			if inTree[j] {
				continue
			}
			d := EuclideanDistance(points[current], points[j])
			d = math.Max(d, math.Max(coreDist[current], coreDist[j]))
			if d < best[j] {
				best[j] = d
				from[j] = current
			}
			if best[j] < nextDist {
				next, nextDist = j, best[j]
			}
		}
		inTree[next] = true
		edges = append(edges, mstEdge{a: from[next], b: next, weight: nextDist})
		current = next
	}

	sort.SliceStable(edges, func(i, j int) bool { return edges[i].weight < edges[j].weight })
	return edges
}

// linkageNode is an internal node of the single-linkage dendrogram. Leaves
// are 0..n-1 and merge i creates node n+i.
type linkageNode struct {
	left, right int
	distance    float64
	size        int
}

func singleLinkage(mst []mstEdge, n int) []linkageNode {
	parent := make([]int, 2*n-1)
	size := make([]int, 2*n-1)
	for i := range parent {
		parent[i] = i
		if i < n {
			size[i] = 1
		}
	}
	find := func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}

	nodes := make([]linkageNode, 0, n-1)
	for _, e := range mst {
		ra, rb := find(e.a), find(e.b)
		id := n + len(nodes)
		size[id] = size[ra] + size[rb]
		parent[ra], parent[rb] = id, id
		nodes = append(nodes, linkageNode{left: ra, right: rb, distance: e.weight, size: size[id]})
	}
	return nodes
}

// condensedRow is one edge of the condensed tree: a child (point or
// cluster) leaving parent at lambda = 1/distance.
type condensedRow struct {
	parent, child int
	lambda        float64
	size          int
}

type condensedTree struct {
	rows     []condensedRow
	points   int
	root     int
	clusters int // cluster ids are root..root+clusters-1
}

func lambdaOf(distance float64) float64 {
	if distance <= 1/maxLambda {
		return maxLambda
	}
	return 1 / distance
}

// condenseTree walks the dendrogram from the root. A split where both sides
// hold at least minClusterSize points creates two new clusters; otherwise
// the small side's points fall out of the current cluster. Points at the
// same location cannot be told apart, so a merge at distance zero never
// splits: every point under it falls out together.
func condenseTree(nodes []linkageNode, n, minClusterSize int) *condensedTree {
	tree := &condensedTree{points: n, root: n, clusters: 1}
	if len(nodes) == 0 {
		return tree
	}

	sizeOf := func(id int) int {
		if id < n {
			return 1
		}
		return nodes[id-n].size
	}
	leavesOf := func(id int) []int {
		var out []int
		stack := []int{id}
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if top < n {
				out = append(out, top)
				continue
			}
			node := nodes[top-n]
			stack = append(stack, node.right, node.left)
		}
		return out
	}

	relabel := map[int]int{n + len(nodes) - 1: n}
	queue := []int{n + len(nodes) - 1}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if id < n {
			continue
		}
		node := nodes[id-n]
		label := relabel[id]
		lambda := lambdaOf(node.distance)
		leftSize, rightSize := sizeOf(node.left), sizeOf(node.right)

		fallOut := func(child int) {
			for _, p := range leavesOf(child) {
				tree.rows = append(tree.rows, condensedRow{parent: label, child: p, lambda: lambda, size: 1})
			}
		}

		switch {
		case lambda >= maxLambda:
			fallOut(node.left)
			fallOut(node.right)
		case leftSize >= minClusterSize && rightSize >= minClusterSize:
			for _, child := range []int{node.left, node.right} {
				newLabel := n + tree.clusters
				tree.clusters++
				relabel[child] = newLabel
				tree.rows = append(tree.rows, condensedRow{parent: label, child: newLabel, lambda: lambda, size: sizeOf(child)})
				queue = append(queue, child)
			}
		case leftSize < minClusterSize && rightSize < minClusterSize:
			fallOut(node.left)
			fallOut(node.right)
		case leftSize < minClusterSize:
			relabel[node.right] = label
			fallOut(node.left)
			queue = append(queue, node.right)
		default:
			relabel[node.left] = label
			fallOut(node.right)
			queue = append(queue, node.left)
		}
	}
	return tree
}

// selectClusters applies excess-of-mass selection: a cluster is kept when
// its stability is at least the summed stability of its selected
// descendants. The root is excluded.
func (t *condensedTree) selectClusters() map[int]bool {
	birth := make(map[int]float64, t.clusters)
	children := make(map[int][]int, t.clusters)
	for _, r := range t.rows {
		if r.size > 1 {
			birth[r.child] = r.lambda
			children[r.parent] = append(children[r.parent], r.child)
		}
	}

	stability := make([]float64, t.clusters)
	for _, r := range t.rows {
		c := r.parent - t.root
		stability[c] += (r.lambda - birth[r.parent]) * float64(r.size)
	}

	selected := make(map[int]bool)
	var unselect func(int)
	unselect = func(c int) {
		for _, child := range children[c] {
			delete(selected, child)
			unselect(child)
		}
	}

	// Children always carry higher ids than their parent
	for c := t.root + t.clusters - 1; c > t.root; c-- {
		var subtree float64
		for _, child := range children[c] {
			subtree += stability[child-t.root]
		}
		if subtree > stability[c-t.root] {
			stability[c-t.root] = subtree
		} else {
			selected[c] = true
			unselect(c)
		}
	}
	return selected
}

// label assigns every point the selected cluster among its ancestors and
// renumbers the clusters by first appearance.
func (t *condensedTree) label(selected map[int]bool) []int {
	parentOf := make(map[int]int, len(t.rows))
	for _, r := range t.rows {
		parentOf[r.child] = r.parent
	}

	labels := make([]int, t.points)
	canonical := make(map[int]int)
	for p := 0; p < t.points; p++ {
		labels[p] = core.NoiseLabel
		node, ok := parentOf[p]
		for ok {
			if selected[node] {
				id, seen := canonical[node]
				if !seen {
					id = len(canonical)
					canonical[node] = id
				}
				labels[p] = id
				break
			}
			node, ok = parentOf[node]
		}
	}
	return labels
}
