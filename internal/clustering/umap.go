package clustering

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	negativeSampleRate = 5
	gradientClip       = 4.0
	repulsionStrength  = 1.0
	smoothKIterations  = 64
	smoothKTolerance   = 1e-5
	minScaleDistance   = 1e-3
	initialNoise       = 1e-4
	layoutScale        = 10.0
)

// Reducer projects embeddings into a low-dimensional space with UMAP.
// For a fixed seed the output depends only on the input.
type Reducer struct {
	Components int
	Neighbors  int
	MinDist    float64
	Spread     float64
	Epochs     int
	Seed       int64
	Metric     DistanceFunc
}

// edge is one directed membership edge of the fuzzy graph.
type edge struct {
	head, tail int
	weight     float64
}

// Reduce returns one Components-dimensional point per input row.
func (r *Reducer) Reduce(ctx context.Context, data [][]float64) ([][]float64, error) {
	n := len(data)
	if n == 0 {
		return nil, nil
	}
	if r.Components < 1 {
		return nil, fmt.Errorf("umap: components must be positive, got %d", r.Components)
	}
	dims := len(data[0])
	for i, row := range data {
		if len(row) != dims {
			return nil, fmt.Errorf("umap: row %d has %d dimensions, expected %d", i, len(row), dims)
		}
	}
	if n == 1 {
		return [][]float64{make([]float64, r.Components)}, nil
	}

	metric := r.Metric
	if metric == nil {
		metric = EuclideanDistance
	}
	k := r.Neighbors
	if k < 2 {
		k = 2
	}
	if k > n {
		k = n
	}

	knnIdx, knnDist, err := nearestNeighbors(ctx, data, k-1, metric)
	if err != nil {
		return nil, err
	}

	edges := fuzzyGraph(knnIdx, knnDist, k)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(r.Seed))
	embedding := initialLayout(data, r.Components, rng)

	spread := r.Spread
	if spread <= 0 {
		spread = 1.0
	}
	a, b := FitAB(spread, r.MinDist)

	epochs := r.Epochs
	if epochs <= 0 {
		epochs = 200
	}
	if err := optimizeLayout(ctx, embedding, edges, epochs, a, b, rng); err != nil {
		return nil, err
	}
	return embedding, nil
}

// nearestNeighbors returns, for every row, the indices and distances of its
// k nearest other rows in ascending distance. Rows are split across workers;
// each worker writes only its own rows.
func nearestNeighbors(ctx context.Context, data [][]float64, k int, metric DistanceFunc) ([][]int, [][]float64, error) {
	n := len(data)
	indices := make([][]int, n)
	distances := make([][]float64, n)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			order := make([]int, 0, n-1)
			row := make([]float64, n)
			for j := 0; j < n; j++ {
				if j == i {
					continue
				}
				row[j] = metric(data[i], data[j])
				order = append(order, j)
			}
			sort.SliceStable(order, func(a, b int) bool { return row[order[a]] < row[order[b]] })

			indices[i] = order[:k]
			distances[i] = make([]float64, k)
			for m, j := range indices[i] {
				distances[i][m] = row[j]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return indices, distances, nil
}

// smoothKnnDist finds rho (distance to the nearest distinct neighbour) and
// sigma such that the memberships of a row sum to log2(k).
func smoothKnnDist(dists []float64, k int, meanAll float64) (rho, sigma float64) {
	for _, d := range dists {
		if d > 0 {
			rho = d
			break
		}
	}

	target := math.Log2(float64(k))
	lo, hi, mid := 0.0, math.Inf(1), 1.0
	for it := 0; it < smoothKIterations; it++ {
		var psum float64
		for _, d := range dists {
			if d-rho > 0 {
				psum += math.Exp(-(d - rho) / mid)
			} else {
				psum += 1
			}
		}
		if math.Abs(psum-target) < smoothKTolerance {
			break
		}
		if psum > target {
			hi = mid
			mid = (lo + hi) / 2
		} else {
			lo = mid
			if math.IsInf(hi, 1) {
				mid *= 2
			} else {
				mid = (lo + hi) / 2
			}
		}
	}

	sigma = mid
	if rho > 0 {
		if m := floats.Sum(dists) / float64(len(dists)); sigma < minScaleDistance*m {
			sigma = minScaleDistance * m
		}
	} else if sigma < minScaleDistance*meanAll {
		sigma = minScaleDistance * meanAll
	}
	return rho, sigma
}

// fuzzyGraph builds the symmetric fuzzy union a + aᵀ - a∘aᵀ of the local
// memberships and returns it as directed edges in both directions, sorted
// by (head, tail).
func fuzzyGraph(knnIdx [][]int, knnDist [][]float64, k int) []edge {
	var total float64
	var count int
	for _, row := range knnDist {
		total += floats.Sum(row)
		count += len(row)
	}
	meanAll := 0.0
	if count > 0 {
		meanAll = total / float64(count)
	}

	type pair struct{ i, j int }
	directed := make(map[pair]float64)
	for i, row := range knnDist {
		rho, sigma := smoothKnnDist(row, k, meanAll)
		for m, j := range knnIdx[i] {
			w := 1.0
			if d := row[m] - rho; d > 0 {
				w = math.Exp(-d / sigma)
			}
			directed[pair{i, j}] = w
		}
	}

	keys := make([]pair, 0, len(directed))
	seen := make(map[pair]bool, len(directed))
	for p := range directed {
		lo, hi := p.i, p.j
		if lo > hi {
			lo, hi = hi, lo
		}
		u := pair{lo, hi}
		if !seen[u] {
			seen[u] = true
			keys = append(keys, u)
		}
	}
	sort.Slice(keys, func(x, y int) bool {
		if keys[x].i != keys[y].i {
			return keys[x].i < keys[y].i
		}
		return keys[x].j < keys[y].j
	})

	edges := make([]edge, 0, 2*len(keys))
	for _, u := range keys {
		a := directed[pair{u.i, u.j}]
		b := directed[pair{u.j, u.i}]
		w := a + b - a*b
		if w <= 0 {
			continue
		}
		edges = append(edges, edge{head: u.i, tail: u.j, weight: w}, edge{head: u.j, tail: u.i, weight: w})
	}
	sort.SliceStable(edges, func(x, y int) bool {
		if edges[x].head != edges[y].head {
			return edges[x].head < edges[y].head
		}
		return edges[x].tail < edges[y].tail
	})
	return edges
}

// initialLayout projects the data on its leading principal components,
// rescales every axis to [0, 10] and adds a little seeded noise. Random
// uniform coordinates are used when PCA is not possible.
func initialLayout(data [][]float64, components int, rng *rand.Rand) [][]float64 {
	n, dims := len(data), len(data[0])
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, components)
	}

	flat := make([]float64, 0, n*dims)
	for _, row := range data {
		flat = append(flat, row...)
	}
	x := mat.NewDense(n, dims, flat)

	var pc stat.PC
	if ok := pc.PrincipalComponents(x, nil); ok {
		var vecs mat.Dense
		pc.VectorsTo(&vecs)
		_, available := vecs.Dims()
		if available > components {
			available = components
		}
		axes := make([][]float64, available)
		for c := range axes {
			axes[c] = mat.Col(nil, c, &vecs)
		}

		means := make([]float64, dims)
		for j := 0; j < dims; j++ {
			means[j] = stat.Mean(mat.Col(nil, j, x), nil)
		}
		centered := make([]float64, dims)
		for i, row := range data {
			floats.SubTo(centered, row, means)
			for c, axis := range axes {
				out[i][c] = floats.Dot(centered, axis)
			}
		}
	} else {
		for i := range out {
			for c := range out[i] {
				out[i][c] = rng.Float64()*2*layoutScale - layoutScale
			}
		}
	}

	var maxAbs float64
	for _, row := range out {
		for _, v := range row {
			maxAbs = math.Max(maxAbs, math.Abs(v))
		}
	}
	expansion := 1.0
	if maxAbs > 0 {
		expansion = layoutScale / maxAbs
	}
	for _, row := range out {
		for c := range row {
			row[c] = row[c]*expansion + rng.NormFloat64()*initialNoise
		}
	}

	for c := 0; c < components; c++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, row := range out {
			lo = math.Min(lo, row[c])
			hi = math.Max(hi, row[c])
		}
		if hi-lo == 0 {
			continue
		}
		for _, row := range out {
			row[c] = layoutScale * (row[c] - lo) / (hi - lo)
		}
	}
	return out
}

// FitAB finds a and b such that 1/(1 + a·d^(2b)) approximates the target
// membership curve: 1 below minDist, exp(-(d-minDist)/spread) beyond it.
// Least squares over 300 samples on [0, 3·spread], by refining grid search.
func FitAB(spread, minDist float64) (a, b float64) {
	const samples = 300
	xs := make([]float64, samples)
	ys := make([]float64, samples)
	for i := range xs {
		xs[i] = 3 * spread * float64(i) / float64(samples-1)
		if xs[i] < minDist {
			ys[i] = 1
		} else {
			ys[i] = math.Exp(-(xs[i] - minDist) / spread)
		}
	}

	loss := func(a, b float64) float64 {
		var sum float64
		for i, x := range xs {
			d := 1/(1+a*math.Pow(x, 2*b)) - ys[i]
			sum += d * d
		}
		return sum
	}

	const steps = 40
	aLo, aHi := 0.01, 10.0
	bLo, bHi := 0.1, 3.0
	best := math.Inf(1)
	for round := 0; round < 8; round++ {
		da := (aHi - aLo) / steps
		db := (bHi - bLo) / steps
		for i := 0; i <= steps; i++ {
			for j := 0; j <= steps; j++ {
				ca, cb := aLo+float64(i)*da, bLo+float64(j)*db
				if l := loss(ca, cb); l < best {
					best, a, b = l, ca, cb
				}
			}
		}
		aLo, aHi = math.Max(a-2*da, 1e-4), a+2*da
		bLo, bHi = math.Max(b-2*db, 1e-4), b+2*db
	}
	return a, b
}

// optimizeLayout runs sequential stochastic gradient descent over the
// edges with negative sampling. Edges are sampled in proportion to their
// weight; the learning rate decays linearly to zero.
func optimizeLayout(ctx context.Context, embedding [][]float64, edges []edge, epochs int, a, b float64, rng *rand.Rand) error {
	if len(edges) == 0 {
		return nil
	}

	var maxWeight float64
	for _, e := range edges {
		maxWeight = math.Max(maxWeight, e.weight)
	}

	// Edges too weak to be sampled even once are dropped
	kept := edges[:0:0]
	for _, e := range edges {
		if e.weight >= maxWeight/float64(epochs) {
			kept = append(kept, e)
		}
	}

	epochsPerSample := make([]float64, len(kept))
	nextSample := make([]float64, len(kept))
	epochsPerNegative := make([]float64, len(kept))
	nextNegative := make([]float64, len(kept))
	for i, e := range kept {
		epochsPerSample[i] = maxWeight / e.weight
		nextSample[i] = epochsPerSample[i]
		epochsPerNegative[i] = epochsPerSample[i] / negativeSampleRate
		nextNegative[i] = epochsPerNegative[i]
	}

	n := len(embedding)
	dims := len(embedding[0])
	for epoch := 0; epoch < epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		alpha := 1.0 - float64(epoch)/float64(epochs)
		fe := float64(epoch)

		for i, e := range kept {
			if nextSample[i] > fe {
				continue
			}
			current, other := embedding[e.head], embedding[e.tail]

			dist2 := squaredDistance(current, other)
			if dist2 > 0 {
				coeff := -2 * a * b * math.Pow(dist2, b-1) / (a*math.Pow(dist2, b) + 1)
				for d := 0; d < dims; d++ {
					grad := clip(coeff*(current[d]-other[d])) * alpha
					current[d] += grad
					other[d] -= grad
				}
			}
			nextSample[i] += epochsPerSample[i]

			negatives := int((fe - nextNegative[i]) / epochsPerNegative[i])
			for p := 0; p < negatives; p++ {
				k := rng.Intn(n)
				if k == e.head {
					continue
				}
				other := embedding[k]
				dist2 := squaredDistance(current, other)
				coeff := 0.0
				if dist2 > 0 {
					coeff = 2 * repulsionStrength * b / ((0.001 + dist2) * (a*math.Pow(dist2, b) + 1))
				}
				for d := 0; d < dims; d++ {
					grad := gradientClip
					if coeff > 0 {
						grad = clip(coeff * (current[d] - other[d]))
					}
					current[d] += grad * alpha
				}
			}
			nextNegative[i] += float64(negatives) * epochsPerNegative[i]
		}
	}
	return nil
}

func clip(v float64) float64 {
	if v > gradientClip {
		return gradientClip
	}
	if v < -gradientClip {
		return -gradientClip
	}
	return v
}

func squaredDistance(x, y []float64) float64 {
	var sum float64
	for i := range x {
		d := x[i] - y[i]
		sum += d * d
	}
	return sum
}
