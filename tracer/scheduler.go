package tracer

import "math"

// The BlockScheduler interface is implemented by all block scheduling algorithms.
type BlockScheduler interface {
	// Split frame into blocks of variable height and assign to the pool
	// of tracers using feedback collected from previous frames.
	//
	// This function returns the block height assignment for each tracer
	// in the input list.
	Schedule(tracers []Tracer, frameH uint32) []uint32
}

// The naive scheduler splits rows by each tracer's speed estimate.
type naiveScheduler struct {
	blockAssignment []uint32
}

// Create a new naive scheduler instance.
func NaiveScheduler() BlockScheduler {
	return &naiveScheduler{}
}

func (sch *naiveScheduler) Schedule(tracers []Tracer, frameH uint32) []uint32 {
	if len(sch.blockAssignment) != len(tracers) {
		sch.blockAssignment = make([]uint32, len(tracers))
	}

	weights := make([]float64, len(tracers))
	for idx, tr := range tracers {
		weights[idx] = float64(tr.Speed())
	}

	distribute(sch.blockAssignment, weights, frameH)
	return sch.blockAssignment
}

// The perfect scheduler assumes that the volume of tracing work between two
// subsequent frames is approximately the same.
type perfectScheduler struct {
	blockAssignment []uint32
}

// Create a new perfect scheduler instance
func PerfectScheduler() BlockScheduler {
	return &perfectScheduler{}
}

// Split frame into blocks of variable height and assign to the pool
// of tracers using feedback collected from previous frames.
//
// When previous frame information is available the scheduler uses the
// following formula for estimating the workload for tracer w and frame i+1:
// w_i, f_i+1 = (blockH,w_i / time,w_i) / Σ(blockH_i-1 / time,i-1)
func (sch *perfectScheduler) Schedule(tracers []Tracer, frameH uint32) []uint32 {
	weights := make([]float64, len(tracers))

	// If this is the first time we try to schedule or the number of tracers
	// has changed we need to reset the block assignments and use the
	// speed estimates.
	useSpeed := len(sch.blockAssignment) != len(tracers)
	if !useSpeed {
		for _, tr := range tracers {
			stats := tr.Stats()
			if stats.BlockH == 0 || stats.RenderTime <= 0 {
				useSpeed = true
				break
			}
		}
	}

	if useSpeed {
		sch.blockAssignment = make([]uint32, len(tracers))
		for idx, tr := range tracers {
			weights[idx] = float64(tr.Speed())
		}
	} else {
		for idx, tr := range tracers {
			stats := tr.Stats()
			weights[idx] = float64(stats.BlockH) / float64(stats.RenderTime)
		}
	}

	distribute(sch.blockAssignment, weights, frameH)
	return sch.blockAssignment
}

// Split total units proportionally to the block assignment. This is used to
// hand out photon ranges with the same ratios as the row assignment.
func SplitRange(total uint32, blockAssignment []uint32) []uint32 {
	out := make([]uint32, len(blockAssignment))
	if len(out) == 0 {
		return out
	}

	weights := make([]float64, len(blockAssignment))
	for idx, rows := range blockAssignment {
		weights[idx] = float64(rows)
	}
	distribute(out, weights, total)
	return out
}

// Distribute total units to out proportionally to weights. Every slot gets at
// least one unit when total allows it; any remainder goes to the first slot.
func distribute(out []uint32, weights []float64, total uint32) {
	var sum float64
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 || math.IsInf(sum, 0) || math.IsNaN(sum) {
		for idx := range weights {
			weights[idx] = 1
		}
		sum = float64(len(weights))
	}

	scaler := float64(total) / sum
	var assigned uint32
	for idx, w := range weights {
		out[idx] = uint32(math.Max(1.0, math.Floor(w*scaler)))
		if total < uint32(len(out)) {
			out[idx] = 0
		}
		assigned += out[idx]
	}

	// Rounding leaves a remainder that is appended to the first slot. If the
	// one-unit floor overshoots, trim the largest slots.
	for assigned > total {
		largest := 0
		for idx := range out {
			if out[idx] > out[largest] {
				largest = idx
			}
		}
		out[largest]--
		assigned--
	}
	out[0] += total - assigned
}
