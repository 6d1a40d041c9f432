package clustering

import (
	"math"

	"headlines/internal/core"
)

// DistanceFunc measures the distance between two vectors of equal length.
type DistanceFunc func(a, b []float64) float64

// EuclideanDistance calculates Euclidean distance between two vectors
func EuclideanDistance(a, b []float64) float64 {
	if len(a) != len(b) {
		return math.MaxFloat64
	}
	return math.Sqrt(squaredDistance(a, b))
}

// Silhouette returns the mean silhouette score over clustered points.
// Noise points are ignored. Returns 0 when fewer than two clusters exist.
//
//	-1: points likely in the wrong cluster
//	 0: points on the border between clusters
//	+1: points well matched to their cluster
func Silhouette(points [][]float64, labels []int, distance DistanceFunc) float64 {
	if distance == nil {
		distance = EuclideanDistance
	}

	members := make(map[int][]int)
	for i, label := range labels {
		if label != core.NoiseLabel {
			members[label] = append(members[label], i)
		}
	}
	if len(members) < 2 {
		return 0
	}

	var total float64
	var count int
	for i, label := range labels {
		if label == core.NoiseLabel {
			continue
		}
		total += silhouetteOf(i, label, points, members, distance)
		count++
	}
	return total / float64(count)
}

func silhouetteOf(i, label int, points [][]float64, members map[int][]int, distance DistanceFunc) float64 {
	own := members[label]
	if len(own) < 2 {
		return 0 // Singleton clusters score zero
	}

	// a(i): mean distance to the other points of the same cluster
	var a float64
	for _, j := range own {
		if j != i {
			a += distance(points[i], points[j])
		}
	}
	a /= float64(len(own) - 1)

	// b(i): smallest mean distance to the points of another cluster
	b := math.Inf(1)
	for other, idx := range members {
		if other == label {
			continue
		}
		var sum float64
		for _, j := range idx {
			sum += distance(points[i], points[j])
		}
		b = math.Min(b, sum/float64(len(idx)))
	}

	if m := math.Max(a, b); m > 0 {
		return (b - a) / m
	}
	return 0
}
