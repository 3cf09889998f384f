package bvh

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/achilleasa/prism/asset/scene"
	"github.com/achilleasa/prism/types"
)

func makeTriangle(center types.Vec3, size float32, id uint32) scene.Triangle {
	return scene.Triangle{
		Vertices: [3]types.Vec4{
			center.Add(types.Vec3{-size, -size, 0}).Vec4(0),
			center.Add(types.Vec3{size, -size, 0}).Vec4(0),
			center.Add(types.Vec3{0, size, size}).Vec4(0),
		},
		// MaterialIndex doubles as an identity tag for the tests.
		MaterialIndex: id,
	}
}

func randomTriangles(count int, seed int64) []scene.Triangle {
	rng := rand.New(rand.NewSource(seed))
	tris := make([]scene.Triangle, count)
	for index := range tris {
		center := types.Vec3{
			rng.Float32()*20 - 10,
			rng.Float32()*20 - 10,
			rng.Float32()*20 - 10,
		}
		tris[index] = makeTriangle(center, 0.1+rng.Float32()*0.5, uint32(index))
	}
	return tris
}

func TestEmptyWorkList(t *testing.T) {
	_, _, err := Build([]scene.Triangle{})
	if err != ErrEmptyWorkList {
		t.Fatalf("expected ErrEmptyWorkList; got %v", err)
	}
}

func TestSmallNodesBecomeLeaves(t *testing.T) {
	for count := 1; count <= MaxLeafItems; count++ {
		tris := randomTriangles(count, int64(count))
		nodes, stats, err := Build(tris)
		if err != nil {
			t.Fatal(err)
		}

		if len(nodes) != 1 || !nodes[0].IsLeaf() {
			t.Fatalf("[count %d] expected a single leaf; got %d nodes", count, len(nodes))
		}
		if first, leafCount := nodes[0].GetPrimitives(); first != 0 || int(leafCount) != count {
			t.Fatalf("[count %d] expected leaf range [0, %d); got [%d, %d)", count, count, first, first+leafCount)
		}
		if stats.Leafs != 1 {
			t.Fatalf("[count %d] expected 1 leaf; got %d", count, stats.Leafs)
		}
	}
}

func TestStructuralInvariants(t *testing.T) {
	specs := []int{5, 17, 100, 1000}

	for specIndex, count := range specs {
		tris := randomTriangles(count, int64(42+specIndex))
		nodes, stats, err := Build(tris)
		if err != nil {
			t.Fatal(err)
		}

		if len(nodes) >= 2*count {
			t.Fatalf("[spec %d] expected fewer than %d nodes; got %d", specIndex, 2*count, len(nodes))
		}
		if stats.Nodes != len(nodes) {
			t.Fatalf("[spec %d] expected stats to report %d nodes; got %d", specIndex, len(nodes), stats.Nodes)
		}

		type span struct{ start, end uint32 }
		spans := make([]span, 0)
		for nodeIndex, node := range nodes {
			if node.IsLeaf() {
				first, leafCount := node.GetPrimitives()
				spans = append(spans, span{first, first + leafCount})
				continue
			}

			// Depth-first layout: children always follow their parent
			if int(node.Left) <= nodeIndex || int(node.Right) <= nodeIndex {
				t.Fatalf("[spec %d] node %d has children (%d, %d) that do not follow it", specIndex, nodeIndex, node.Left, node.Right)
			}
			if int(node.Left) >= len(nodes) || int(node.Right) >= len(nodes) {
				t.Fatalf("[spec %d] node %d references children out of range", specIndex, nodeIndex)
			}
		}

		// Leaf ranges must tile [0, count) exactly once
		sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
		var next uint32
		for _, s := range spans {
			if s.start != next {
				t.Fatalf("[spec %d] leaf ranges overlap or leave a gap at %d (range starts at %d)", specIndex, next, s.start)
			}
			next = s.end
		}
		if int(next) != count {
			t.Fatalf("[spec %d] expected leaf ranges to cover %d triangles; covered %d", specIndex, count, next)
		}

		// Every triangle must still be present exactly once after reordering
		seen := make([]bool, count)
		for _, tri := range tris {
			if seen[tri.MaterialIndex] {
				t.Fatalf("[spec %d] triangle %d appears twice", specIndex, tri.MaterialIndex)
			}
			seen[tri.MaterialIndex] = true
		}
	}
}

func TestLeafBoundsContainTriangles(t *testing.T) {
	tris := randomTriangles(300, 7)
	nodes, _, err := Build(tris)
	if err != nil {
		t.Fatal(err)
	}

	for nodeIndex, node := range nodes {
		if !node.IsLeaf() {
			continue
		}
		first, count := node.GetPrimitives()
		for index := first; index < first+count; index++ {
			bbox := tris[index].BBox()
			for axis := 0; axis < 3; axis++ {
				if bbox[0][axis] < node.Min[axis] || bbox[1][axis] > node.Max[axis] {
					t.Fatalf("leaf %d does not contain triangle %d", nodeIndex, index)
				}
			}
		}
	}
}

func TestSplitCostNeverBelowTraversalCost(t *testing.T) {
	tris := randomTriangles(500, 3)
	_, stats, err := Build(tris)
	if err != nil {
		t.Fatal(err)
	}

	if stats.Leafs < 2 {
		t.Fatalf("expected the builder to split 500 scattered triangles; got %d leafs", stats.Leafs)
	}
	if stats.MinSplitCost < TraversalCost {
		t.Fatalf("expected recorded split costs >= %f; got %f", TraversalCost, stats.MinSplitCost)
	}

	type spec struct {
		leftArea, rightArea, parentArea float32
		leftCount, rightCount           int
		exp                             float32
	}
	specs := []spec{
		{1, 1, 2, 2, 2, 1 + 0.5*2*1.5 + 0.5*2*1.5},
		{0, 0, 1, 0, 0, TraversalCost},
		{4, 1, 4, 3, 1, 1 + 3*1.5 + 0.25*1.5},
	}
	for index, s := range specs {
		if cost := SplitCost(s.leftArea, s.leftCount, s.rightArea, s.rightCount, s.parentArea); cost != s.exp {
			t.Fatalf("[spec %d] expected cost %f; got %f", index, s.exp, cost)
		}
	}
}

func TestClusteredCentroidsFallBackToLeaf(t *testing.T) {
	// Identical centroids cannot be separated along any axis.
	tris := make([]scene.Triangle, 16)
	for index := range tris {
		tris[index] = makeTriangle(types.Vec3{1, 2, 3}, 0.5, uint32(index))
	}

	nodes, _, err := Build(tris)
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 1 || !nodes[0].IsLeaf() {
		t.Fatalf("expected a single leaf for coincident centroids; got %d nodes", len(nodes))
	}
}

func TestSeparatedClustersSplit(t *testing.T) {
	tris := make([]scene.Triangle, 0)
	for index := 0; index < 5; index++ {
		tris = append(tris, makeTriangle(types.Vec3{-10, float32(index) * 0.01, 0}, 0.1, uint32(len(tris))))
		tris = append(tris, makeTriangle(types.Vec3{10, float32(index) * 0.01, 0}, 0.1, uint32(len(tris))))
	}

	nodes, _, err := Build(tris)
	if err != nil {
		t.Fatal(err)
	}

	if nodes[0].IsLeaf() {
		t.Fatal("expected root to be an interior node")
	}
	for _, child := range []int32{nodes[0].Left, nodes[0].Right} {
		first, count := nodes[child].GetPrimitives()
		if !nodes[child].IsLeaf() || count != 5 {
			t.Fatalf("expected child %d to be a 5 item leaf; got count %d", child, count)
		}
		side := tris[first].Center()[0] < 0
		for index := first; index < first+count; index++ {
			if (tris[index].Center()[0] < 0) != side {
				t.Fatalf("expected leaf %d to contain a single cluster", child)
			}
		}
	}
}
