package clustering

import (
	"context"
	"testing"

	"headlines/internal/core"
)

// blobs returns 5 points around each center followed by the extra points.
func blobs(centers [][]float64, extra ...[]float64) [][]float64 {
	offsets := [][]float64{
		{0, 0, 0},
		{0.1, 0, 0},
		{0, 0.1, 0},
		{0, 0, 0.1},
		{0.1, 0.1, 0},
	}
	var points [][]float64
	for _, c := range centers {
		for _, o := range offsets {
			points = append(points, []float64{c[0] + o[0], c[1] + o[1], c[2] + o[2]})
		}
	}
	return append(points, extra...)
}

func TestHDBSCANFindsBlobsAndNoise(t *testing.T) {
	points := blobs(
		[][]float64{{0, 0, 0}, {10, 0, 0}, {0, 20, 0}},
		[]float64{50, 50, 50},
		[]float64{-50, 40, -30},
	)

	labels, err := HDBSCAN(context.Background(), points, HDBSCANConfig{MinClusterSize: 3, MinSamples: 3})
	if err != nil {
		t.Fatalf("HDBSCAN failed: %v", err)
	}
	if len(labels) != len(points) {
		t.Fatalf("expected %d labels, got %d", len(points), len(labels))
	}

	// Each blob shares one label, labels follow first appearance
	for blob := 0; blob < 3; blob++ {
		for i := blob * 5; i < blob*5+5; i++ {
			if labels[i] != blob {
				t.Errorf("point %d: expected label %d, got %d", i, blob, labels[i])
			}
		}
	}
	for _, i := range []int{15, 16} {
		if labels[i] != core.NoiseLabel {
			t.Errorf("outlier %d: expected noise, got %d", i, labels[i])
		}
	}
}

func TestHDBSCANSmallInputIsNoise(t *testing.T) {
	points := [][]float64{{0, 0}, {0, 0.1}}
	labels, err := HDBSCAN(context.Background(), points, HDBSCANConfig{MinClusterSize: 3})
	if err != nil {
		t.Fatalf("HDBSCAN failed: %v", err)
	}
	for i, l := range labels {
		if l != core.NoiseLabel {
			t.Errorf("point %d: expected noise, got %d", i, l)
		}
	}
}

func TestHDBSCANSingleBlobIsNoise(t *testing.T) {
	// One dense group never splits, and the root is never selected
	points := blobs([][]float64{{1, 1, 1}})
	labels, err := HDBSCAN(context.Background(), points, HDBSCANConfig{MinClusterSize: 5})
	if err != nil {
		t.Fatalf("HDBSCAN failed: %v", err)
	}
	for i, l := range labels {
		if l != core.NoiseLabel {
			t.Errorf("point %d: expected noise, got %d", i, l)
		}
	}
}

func TestHDBSCANRejectsTinyMinClusterSize(t *testing.T) {
	if _, err := HDBSCAN(context.Background(), [][]float64{{0}}, HDBSCANConfig{MinClusterSize: 1}); err == nil {
		t.Error("expected error for min cluster size 1")
	}
}

func TestHDBSCANDuplicatePoints(t *testing.T) {
	at := func(n int, p []float64) [][]float64 {
		var out [][]float64
		for i := 0; i < n; i++ {
			out = append(out, append([]float64(nil), p...))
		}
		return out
	}

	tests := []struct {
		name   string
		points [][]float64
		want   []int
	}{
		{"two stacks", append(at(4, []float64{0, 0}), at(4, []float64{5, 5})...),
			[]int{0, 0, 0, 0, 1, 1, 1, 1}},
		{"stack large enough to split", append(at(6, []float64{0, 0}), at(3, []float64{5, 5})...),
			[]int{0, 0, 0, 0, 0, 0, 1, 1, 1}},
		{"one stack is noise", at(10, []float64{2, 2}),
			[]int{-1, -1, -1, -1, -1, -1, -1, -1, -1, -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			labels, err := HDBSCAN(context.Background(), tt.points, HDBSCANConfig{MinClusterSize: 3})
			if err != nil {
				t.Fatalf("HDBSCAN failed: %v", err)
			}
			for i := range tt.want {
				if labels[i] != tt.want[i] {
					t.Fatalf("expected %v, got %v", tt.want, labels)
				}
			}
		})
	}
}
