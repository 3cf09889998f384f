package tracer

import (
	"errors"
	"time"
)

var (
	ErrNoSceneData   = errors.New("tracer: no scene data uploaded")
	ErrNoPhotonMap   = errors.New("tracer: no photon map attached")
	ErrNotReady      = errors.New("tracer: not initialized")
	ErrUnknownPass   = errors.New("tracer: unknown pass")
	ErrMissingParams = errors.New("tracer: block request is missing pass parameters")
	ErrStaleParams   = errors.New("tracer: pass parameters do not match the uploaded scene or photon map")
)

type UpdateType uint8

const (
	UpdateScene UpdateType = iota
	UpdatePhotonMap
)

// The pass executed by a block request.
type Pass uint8

const (
	// Trace one path per pixel and add it to the accumulator.
	Integrate Pass = iota

	// Emit a range of photons and insert them into the photon map.
	PhotonTrace

	// Estimate caustic radiance per pixel from the photon map.
	PhotonGather
)

func (p Pass) String() string {
	switch p {
	case Integrate:
		return "integrate"
	case PhotonTrace:
		return "photon trace"
	case PhotonGather:
		return "photon gather"
	}
	return "unknown"
}

// A unit of work that is processed by a tracer.
type BlockRequest struct {
	Pass Pass

	// Frame dims and the block start row and height. Used by the
	// Integrate and PhotonGather passes.
	FrameW uint32
	FrameH uint32
	BlockY uint32
	BlockH uint32

	// Photon index range for the PhotonTrace pass.
	PhotonStart uint32
	PhotonCount uint32

	// Pass parameters. Only the entry matching Pass needs to be set.
	Integration  *IntegrationParams
	PhotonTrace  *PhotonTraceParams
	PhotonGather *PhotonGatherParams

	// A channel to signal on block completion with the number of completed rows
	// (or photons for the PhotonTrace pass).
	DoneChan chan<- uint32

	// A channel to signal if an error occurs.
	ErrChan chan<- error
}

// Tracer statistics.
type Stats struct {
	// The rendered block height
	BlockH uint32

	// The photons emitted by the last PhotonTrace block and how many of
	// them were stored in the photon map.
	EmittedPhotons uint32
	StoredPhotons  uint32

	// The time for rendering the last integration block.
	RenderTime time.Duration

	// The time for applying pending updates.
	UpdateTime time.Duration
}

type Tracer interface {
	// Get tracer id.
	Id() string

	// Get the tracer's relative speed estimate.
	Speed() uint32

	// Attach the output buffers and start the tracer.
	Init(target *RenderTarget) error

	// Shutdown and cleanup tracer.
	Close()

	// Enqueue block request.
	Enqueue(BlockRequest)

	// Append a change to the tracer's update buffer. Changes are applied
	// before the next block request is processed.
	Update(UpdateType, interface{})

	// Retrieve last frame statistics.
	Stats() *Stats
}
