package sppm

import (
	"errors"
	"math"
	"sync/atomic"

	"github.com/achilleasa/prism/types"
)

// Marks an empty bucket or the end of a chain.
const emptySlot = math.MaxUint32

var (
	ErrInvalidCellCount = errors.New("sppm: hash cell count must be positive")
	ErrInvalidCapacity  = errors.New("sppm: photon capacity must be positive")
)

// A photon stored at a diffuse surface.
type Photon struct {
	Position types.Vec3

	// Transported flux.
	Power types.Vec3

	// Direction of travel when the photon reached the surface.
	Direction types.Vec3
}

// PhotonMap is a fixed size spatial hash of photons. Each bucket holds the
// head of a singly linked chain threaded through the next array.
//
// Insert is safe for concurrent use. Query and Walk must only be invoked
// after all inserts of the current iteration have completed and must not
// overlap with Reset.
type PhotonMap struct {
	cellSize    float32
	invCellSize float32

	heads   []atomic.Uint32
	next    []uint32
	photons []Photon

	// Bump allocator for photon slots. It keeps counting past the capacity
	// so that overflowing inserts can be detected.
	count atomic.Uint32
}

// Allocate a photon map with the given number of hash cells and photon capacity.
func NewPhotonMap(cells, capacity uint32) (*PhotonMap, error) {
	if cells == 0 {
		return nil, ErrInvalidCellCount
	}
	if capacity == 0 || capacity == emptySlot {
		return nil, ErrInvalidCapacity
	}

	pm := &PhotonMap{
		heads:   make([]atomic.Uint32, cells),
		next:    make([]uint32, capacity),
		photons: make([]Photon, capacity),
	}
	pm.Reset(1)
	return pm, nil
}

// Reset clears all chains and sets the cell size used for hashing. The cell
// size should match the search radius of the iteration.
func (pm *PhotonMap) Reset(cellSize float32) {
	if cellSize <= 0 {
		cellSize = 1
	}
	pm.cellSize = cellSize
	pm.invCellSize = 1 / cellSize
	for index := range pm.heads {
		pm.heads[index].Store(emptySlot)
	}
	pm.count.Store(0)
}

// Insert stores a photon. It returns false if the map is full in which case
// the photon is dropped.
func (pm *PhotonMap) Insert(p Photon) bool {
	slot := pm.count.Add(1) - 1
	if slot >= uint32(len(pm.photons)) {
		return false
	}

	pm.photons[slot] = p
	bucket := pm.bucket(pm.cellCoords(p.Position))
	pm.next[slot] = pm.heads[bucket].Swap(slot)
	return true
}

// Len returns the number of stored photons.
func (pm *PhotonMap) Len() uint32 {
	count := pm.count.Load()
	if capacity := uint32(len(pm.photons)); count > capacity {
		return capacity
	}
	return count
}

// Capacity returns the maximum number of photons the map can hold.
func (pm *PhotonMap) Capacity() uint32 {
	return uint32(len(pm.photons))
}

// Cells returns the number of hash buckets.
func (pm *PhotonMap) Cells() uint32 {
	return uint32(len(pm.heads))
}

// CellSize returns the cell size set by the last Reset.
func (pm *PhotonMap) CellSize() float32 {
	return pm.cellSize
}

// Query invokes fn for every photon within radius of pos. It scans the
// 3x3x3 cell neighborhood of pos so radius must not exceed the cell size.
func (pm *PhotonMap) Query(pos types.Vec3, radius float32, fn func(p *Photon, distSq float32)) {
	radiusSq := radius * radius
	center := pm.cellCoords(pos)

	// Distinct cells may hash to the same bucket; visit each bucket once.
	var visited [27]uint32
	numVisited := 0

	for dz := int32(-1); dz <= 1; dz++ {
		for dy := int32(-1); dy <= 1; dy++ {
			for dx := int32(-1); dx <= 1; dx++ {
				bucket := pm.bucket([3]int32{center[0] + dx, center[1] + dy, center[2] + dz})

				seen := false
				for index := 0; index < numVisited; index++ {
					if visited[index] == bucket {
						seen = true
						break
					}
				}
				if seen {
					continue
				}
				visited[numVisited] = bucket
				numVisited++

				for slot := pm.heads[bucket].Load(); slot != emptySlot; slot = pm.next[slot] {
					p := &pm.photons[slot]
					if distSq := p.Position.Sub(pos).LenSq(); distSq <= radiusSq {
						fn(p, distSq)
					}
				}
			}
		}
	}
}

// Walk invokes fn for every photon reachable through the bucket chains.
func (pm *PhotonMap) Walk(fn func(slot uint32, p *Photon)) {
	for bucket := range pm.heads {
		for slot := pm.heads[bucket].Load(); slot != emptySlot; slot = pm.next[slot] {
			fn(slot, &pm.photons[slot])
		}
	}
}

func (pm *PhotonMap) cellCoords(pos types.Vec3) [3]int32 {
	return [3]int32{
		int32(math.Floor(float64(pos[0] * pm.invCellSize))),
		int32(math.Floor(float64(pos[1] * pm.invCellSize))),
		int32(math.Floor(float64(pos[2] * pm.invCellSize))),
	}
}

// Hash integer cell coordinates into a bucket index.
func (pm *PhotonMap) bucket(cell [3]int32) uint32 {
	h := uint32(cell[0])*73856093 ^ uint32(cell[1])*19349663 ^ uint32(cell[2])*83492791
	return h % uint32(len(pm.heads))
}

// ClampPhotonCount limits a requested photon batch to the map capacity.
func ClampPhotonCount(requested, capacity uint32) uint32 {
	if requested > capacity {
		return capacity
	}
	return requested
}
