package bvh

import (
	"errors"
	"math"
	"time"

	"github.com/achilleasa/prism/asset/scene"
	"github.com/achilleasa/prism/log"
	"github.com/achilleasa/prism/types"
)

type Axis uint8

const (
	XAxis Axis = iota
	YAxis
	ZAxis
)

const (
	// Number of centroid buckets evaluated per axis.
	NumBuckets = 8

	// SAH cost constants.
	TraversalCost    float32 = 1.0
	IntersectionCost float32 = 1.5

	// Nodes with this many items or fewer always become leaves.
	MaxLeafItems = 4

	// Nodes at this depth become leaves so traversal stacks stay bounded.
	MaxDepth = 40

	// The builder will not evaluate splits along an axis whose centroid
	// extent is below this threshold.
	minSideLength float32 = 1e-6
)

var ErrEmptyWorkList = errors.New("bvh: empty work list")

// The BoundedVolume interface is implemented by all primitives that can be
// partitioned by the bvh builder.
type BoundedVolume interface {
	BBox() [2]types.Vec3
	Center() types.Vec3
}

// Build statistics.
type Stats struct {
	Nodes    int
	Leafs    int
	MaxDepth int

	// The lowest SAH cost of any accepted split. Set to +Inf if no
	// split was made.
	MinSplitCost float32

	BuildTime time.Duration
}

type bucket struct {
	count int
	bbox  [2]types.Vec3
}

type splitCandidate struct {
	axis  Axis
	index int
	cost  float32
}

type builder[T BoundedVolume] struct {
	logger log.Logger

	// The items being partitioned. They are reordered in place.
	items []T

	// Bvh nodes stored as a contiguous list in depth-first order.
	nodes []scene.BvhNode

	stats Stats
}

// Construct a BVH over items using the surface area heuristic. Items are
// reordered in place so that each leaf references a contiguous range of the
// slice. The returned node list is in depth-first order with the root at
// index 0.
func Build[T BoundedVolume](items []T) ([]scene.BvhNode, Stats, error) {
	if len(items) == 0 {
		return nil, Stats{}, ErrEmptyWorkList
	}

	b := &builder[T]{
		logger: log.New("bvh builder"),
		items:  items,
		nodes:  make([]scene.BvhNode, 0, 2*len(items)),
		stats: Stats{
			MinSplitCost: float32(math.Inf(1)),
		},
	}

	start := time.Now()
	b.partition(0, len(items), 0)
	b.stats.BuildTime = time.Since(start)

	b.logger.Debugf(
		"BVH tree build time: %d ms, items: %d, maxDepth: %d, nodes: %d, leafs: %d",
		b.stats.BuildTime.Nanoseconds()/1e6, len(items),
		b.stats.MaxDepth, b.stats.Nodes, b.stats.Leafs,
	)
	return b.nodes, b.stats, nil
}

// Partition items[start:end] and return the node index.
func (b *builder[T]) partition(start, end, depth int) uint32 {
	if depth > b.stats.MaxDepth {
		b.stats.MaxDepth = depth
	}

	// Reserve the node slot before recursing to get depth-first order.
	nodeIndex := len(b.nodes)
	b.nodes = append(b.nodes, scene.BvhNode{})
	b.stats.Nodes++

	bbox, centroidBBox := b.bounds(start, end)
	b.nodes[nodeIndex].SetBBox(bbox)

	count := end - start
	if count <= MaxLeafItems || depth >= MaxDepth {
		return b.createLeaf(nodeIndex, start, count)
	}

	parentArea := surfaceArea(bbox)
	if parentArea <= 0 {
		return b.createLeaf(nodeIndex, start, count)
	}

	best, found := b.findSplit(start, end, centroidBBox, parentArea)
	if !found || best.cost >= IntersectionCost*float32(count) {
		return b.createLeaf(nodeIndex, start, count)
	}

	extent := centroidBBox[1][best.axis] - centroidBBox[0][best.axis]
	splitPoint := centroidBBox[0][best.axis] + extent*float32(best.index+1)/NumBuckets
	mid := b.partitionItems(start, end, best.axis, splitPoint)

	// Clustered centroids may still leave one side empty.
	if mid == start || mid == end {
		return b.createLeaf(nodeIndex, start, count)
	}

	if best.cost < b.stats.MinSplitCost {
		b.stats.MinSplitCost = best.cost
	}

	left := b.partition(start, mid, depth+1)
	right := b.partition(mid, end, depth+1)
	b.nodes[nodeIndex].SetChildNodes(left, right)

	return uint32(nodeIndex)
}

// Calculate the AABB of items[start:end] and the AABB of their centroids.
func (b *builder[T]) bounds(start, end int) (bbox, centroidBBox [2]types.Vec3) {
	bbox = emptyBBox()
	centroidBBox = emptyBBox()
	for index := start; index < end; index++ {
		itemBBox := b.items[index].BBox()
		center := b.items[index].Center()
		bbox[0] = types.MinVec3(bbox[0], itemBBox[0])
		bbox[1] = types.MaxVec3(bbox[1], itemBBox[1])
		centroidBBox[0] = types.MinVec3(centroidBBox[0], center)
		centroidBBox[1] = types.MaxVec3(centroidBBox[1], center)
	}
	return bbox, centroidBBox
}

// Bucket item centroids along each axis and evaluate the SAH cost for every
// bucket boundary. Returns the cheapest candidate across all axes.
func (b *builder[T]) findSplit(start, end int, centroidBBox [2]types.Vec3, parentArea float32) (splitCandidate, bool) {
	best := splitCandidate{cost: float32(math.Inf(1))}
	found := false

	var buckets [NumBuckets]bucket
	var rightArea [NumBuckets]float32
	var rightCount [NumBuckets]int

	for axis := XAxis; axis <= ZAxis; axis++ {
		extent := centroidBBox[1][axis] - centroidBBox[0][axis]
		if extent < minSideLength {
			continue
		}

		for i := range buckets {
			buckets[i] = bucket{bbox: emptyBBox()}
		}

		for index := start; index < end; index++ {
			slot := bucketIndex(b.items[index].Center()[axis], centroidBBox[0][axis], extent)
			itemBBox := b.items[index].BBox()
			buckets[slot].count++
			buckets[slot].bbox[0] = types.MinVec3(buckets[slot].bbox[0], itemBBox[0])
			buckets[slot].bbox[1] = types.MaxVec3(buckets[slot].bbox[1], itemBBox[1])
		}

		// Sweep from the right to collect the right-hand side of each split.
		acc := emptyBBox()
		accCount := 0
		for i := NumBuckets - 1; i > 0; i-- {
			acc[0] = types.MinVec3(acc[0], buckets[i].bbox[0])
			acc[1] = types.MaxVec3(acc[1], buckets[i].bbox[1])
			accCount += buckets[i].count
			rightArea[i] = surfaceArea(acc)
			rightCount[i] = accCount
		}

		// Sweep from the left; split i places buckets [0, i] on the left.
		acc = emptyBBox()
		accCount = 0
		for i := 0; i < NumBuckets-1; i++ {
			acc[0] = types.MinVec3(acc[0], buckets[i].bbox[0])
			acc[1] = types.MaxVec3(acc[1], buckets[i].bbox[1])
			accCount += buckets[i].count

			if accCount == 0 || rightCount[i+1] == 0 {
				continue
			}

			cost := SplitCost(surfaceArea(acc), accCount, rightArea[i+1], rightCount[i+1], parentArea)
			if cost < best.cost {
				best = splitCandidate{axis: axis, index: i, cost: cost}
				found = true
			}
		}
	}

	return best, found
}

// Reorder items[start:end] so that items whose centroid lies below
// splitPoint come first. Returns the index of the first item on the right.
func (b *builder[T]) partitionItems(start, end int, axis Axis, splitPoint float32) int {
	left, right := start, end-1
	for left <= right {
		if b.items[left].Center()[axis] < splitPoint {
			left++
			continue
		}
		b.items[left], b.items[right] = b.items[right], b.items[left]
		right--
	}
	return left
}

// Set up the node at nodeIndex as a leaf for count items starting at start.
func (b *builder[T]) createLeaf(nodeIndex, start, count int) uint32 {
	b.nodes[nodeIndex].SetPrimitives(uint32(start), uint32(count))
	b.stats.Leafs++
	return uint32(nodeIndex)
}

// SplitCost evaluates the two-term SAH cost of a split:
//
// C_trav + (SA_left/SA_parent)*N_left*C_isect + (SA_right/SA_parent)*N_right*C_isect
func SplitCost(leftArea float32, leftCount int, rightArea float32, rightCount int, parentArea float32) float32 {
	return TraversalCost +
		(leftArea/parentArea)*float32(leftCount)*IntersectionCost +
		(rightArea/parentArea)*float32(rightCount)*IntersectionCost
}

func bucketIndex(centroid, min, extent float32) int {
	slot := int(NumBuckets * (centroid - min) / extent)
	if slot < 0 {
		return 0
	}
	if slot >= NumBuckets {
		return NumBuckets - 1
	}
	return slot
}

func surfaceArea(bbox [2]types.Vec3) float32 {
	side := bbox[1].Sub(bbox[0])
	if side[0] < 0 || side[1] < 0 || side[2] < 0 {
		return 0
	}
	return 2 * (side[0]*side[1] + side[1]*side[2] + side[0]*side[2])
}

func emptyBBox() [2]types.Vec3 {
	return [2]types.Vec3{
		{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32},
		{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32},
	}
}
