package cpu

import (
	"time"

	"github.com/achilleasa/prism/tracer"
	"github.com/achilleasa/prism/tracer/kernel"
	"github.com/achilleasa/prism/tracer/sppm"
)

// An alias for functions that can be used as part of the rendering pipeline.
type PipelineStage func(tr *Tracer, blockReq *tracer.BlockRequest) (time.Duration, error)

// The stages executed by a tracer for each pass type.
type Pipeline struct {
	// Trace one path per pixel of the block and add its radiance into the
	// accumulator. The G-buffer is written by the first sample after a reset.
	Integrate PipelineStage

	// Emit a photon range into the shared photon map.
	PhotonTrace PipelineStage

	// Add the caustic estimate of each pixel of the block into the
	// accumulator.
	PhotonGather PipelineStage
}

// DefaultPipeline returns the path tracing + SPPM pipeline.
func DefaultPipeline() *Pipeline {
	return &Pipeline{
		Integrate:    PathTraceIntegrator(),
		PhotonTrace:  PhotonEmitter(),
		PhotonGather: CausticGatherer(),
	}
}

// Use the path tracing kernel for the integration pass.
func PathTraceIntegrator() PipelineStage {
	return func(tr *Tracer, blockReq *tracer.BlockRequest) (time.Duration, error) {
		start := time.Now()
		params := blockReq.Integration
		accum := tr.target.Accumulator
		gbuf := tr.target.GBuffer
		writeGBuffer := params.Sample == 0

		for y := blockReq.BlockY; y < blockReq.BlockY+blockReq.BlockH; y++ {
			for x := uint32(0); x < blockReq.FrameW; x++ {
				s := kernel.RenderPixel(tr.sceneData, params, blockReq.FrameW, blockReq.FrameH, x, y)
				accum.Add(x, y, s.Radiance)
				if writeGBuffer {
					gbuf.Set(x, y, s.Normal, s.Depth)
				}
			}
		}

		return time.Since(start), nil
	}
}

// Trace the requested photon range into the photon map.
func PhotonEmitter() PipelineStage {
	return func(tr *Tracer, blockReq *tracer.BlockRequest) (time.Duration, error) {
		start := time.Now()
		tr.storedPhotons = sppm.TraceRange(tr.sceneData, tr.photonMap, blockReq.PhotonTrace, blockReq.PhotonStart, blockReq.PhotonCount)
		tr.logger.Debugf("stored %d out of %d photons", tr.storedPhotons, blockReq.PhotonCount)
		return time.Since(start), nil
	}
}

// Gather caustic radiance from the photon map.
func CausticGatherer() PipelineStage {
	return func(tr *Tracer, blockReq *tracer.BlockRequest) (time.Duration, error) {
		start := time.Now()
		accum := tr.target.Accumulator
		for y := blockReq.BlockY; y < blockReq.BlockY+blockReq.BlockH; y++ {
			for x := uint32(0); x < blockReq.FrameW; x++ {
				radiance := sppm.GatherPixel(tr.sceneData, tr.photonMap, blockReq.PhotonGather, blockReq.FrameW, blockReq.FrameH, x, y)
				if !radiance.IsZero() {
					accum.Add(x, y, radiance)
				}
			}
		}
		return time.Since(start), nil
	}
}
