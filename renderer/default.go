package renderer

import (
	"fmt"
	"image/png"
	"os"
	"sync"
	"time"

	"github.com/achilleasa/prism/asset/scene"
	"github.com/achilleasa/prism/log"
	"github.com/achilleasa/prism/tracer"
	"github.com/achilleasa/prism/tracer/cpu"
	"github.com/achilleasa/prism/tracer/denoise"
	"github.com/achilleasa/prism/tracer/sppm"
	"github.com/achilleasa/prism/types"
)

// A progressive renderer that splits each pass across a pool of cpu tracers.
type defaultRenderer struct {
	sync.Mutex

	logger log.Logger

	options   Options
	scene     *scene.Scene
	camera    tracer.CameraParams
	scheduler tracer.BlockScheduler
	tracers   []tracer.Tracer

	// Shared output buffers.
	target *tracer.RenderTarget

	// Photon mapping state. Both are nil when caustics are disabled.
	photonMap      *sppm.PhotonMap
	radius         *sppm.RadiusSchedule
	photonsPerPass uint32

	// Block assignments for the last integration pass.
	blockAssignments []uint32

	// Channels used by tracers to report block status.
	doneChan chan uint32
	errChan  chan error

	stats FrameStats
}

// Create a new renderer for the scene using the specified block scheduler.
func NewDefault(sc *scene.Scene, scheduler tracer.BlockScheduler, opts Options) (Renderer, error) {
	if sc == nil {
		return nil, ErrSceneNotDefined
	}
	if sc.Camera == nil {
		return nil, ErrCameraNotDefined
	}
	if scheduler == nil {
		scheduler = tracer.NaiveScheduler()
	}

	target, err := tracer.NewRenderTarget(opts.FrameW, opts.FrameH)
	if err != nil {
		return nil, err
	}

	r := &defaultRenderer{
		logger:    log.New("renderer"),
		options:   opts,
		scene:     sc,
		camera:    tracer.NewCameraParams(sc.Camera),
		scheduler: scheduler,
		target:    target,
	}

	if opts.Caustics {
		if err = r.initPhotonMapping(); err != nil {
			return nil, err
		}
	}

	if err = r.initTracers(); err != nil {
		r.Close()
		return nil, err
	}

	return r, nil
}

func (r *defaultRenderer) initPhotonMapping() error {
	var err error
	if r.photonMap, err = sppm.NewPhotonMap(r.options.HashCells, r.options.PhotonCapacity); err != nil {
		return err
	}
	if r.radius, err = sppm.NewRadiusSchedule(r.options.InitialRadius, r.options.Alpha); err != nil {
		return err
	}

	r.photonsPerPass = sppm.ClampPhotonCount(r.options.PhotonsPerIteration, r.photonMap.Capacity())
	if r.photonsPerPass < r.options.PhotonsPerIteration {
		r.logger.Warningf("photons per iteration clamped to the photon map capacity (%d)", r.photonsPerPass)
	}
	if len(r.scene.Emitters) == 0 {
		r.logger.Warning("scene has no emitters; caustics will be black")
	}
	r.photonMap.Reset(r.radius.Radius())
	return nil
}

func (r *defaultRenderer) initTracers() error {
	workers := r.options.Workers
	if workers == 0 {
		workers = DefaultOptions().Workers
	}
	if workers == 0 {
		return ErrNoTracers
	}

	for index := uint32(0); index < workers; index++ {
		tr := cpu.NewTracer(fmt.Sprintf("cpu-%d", index), 1, nil)
		if err := tr.Init(r.target); err != nil {
			return err
		}
		tr.Update(tracer.UpdateScene, r.scene)
		if r.photonMap != nil {
			tr.Update(tracer.UpdatePhotonMap, r.photonMap)
		}
		r.tracers = append(r.tracers, tr)
	}

	r.doneChan = make(chan uint32, len(r.tracers))
	r.errChan = make(chan error, len(r.tracers))
	r.logger.Infof("using %d cpu tracers", len(r.tracers))
	return nil
}

// Accumulate one sample per pixel. Each pass completes on all tracers before
// the next one starts.
func (r *defaultRenderer) Render() error {
	r.Lock()
	defer r.Unlock()

	if len(r.tracers) == 0 {
		return ErrNoTracers
	}

	start := time.Now()
	sample := r.target.Accumulator.SampleCount()
	r.blockAssignments = r.scheduler.Schedule(r.tracers, r.options.FrameH)

	integration := &tracer.IntegrationParams{
		Camera:          r.camera,
		NumBounces:      r.options.NumBounces,
		MinBouncesForRR: r.options.MinBouncesForRR,
		NEE:             r.options.NEE,
		FireflyClamp:    r.options.FireflyClamp,
		Caustics:        r.photonMap != nil,
		Sample:          sample,
	}
	err := r.dispatchRows(func(req *tracer.BlockRequest) {
		req.Pass = tracer.Integrate
		req.Integration = integration
	})
	if err != nil {
		return err
	}
	r.target.Accumulator.IncrementSamples()

	if r.photonMap != nil {
		if err = r.renderCaustics(sample); err != nil {
			return err
		}
	}

	r.updateStats(time.Since(start))
	return nil
}

// Run the photon trace and gather passes and shrink the search radius.
func (r *defaultRenderer) renderCaustics(sample uint32) error {
	radius := r.radius.Radius()
	r.photonMap.Reset(radius)

	traceParams := &tracer.PhotonTraceParams{
		PhotonCount:       r.photonsPerPass,
		Radius:            radius,
		Seed:              sample,
		NumBounces:        r.options.NumBounces,
		HashCells:         r.photonMap.Cells(),
		EmitterCount:      uint32(len(r.scene.Emitters)),
		TotalEmitterPower: r.scene.TotalEmitterPower,
	}
	photonRanges := tracer.SplitRange(r.photonsPerPass, r.blockAssignments)
	var photonStart uint32
	pending := 0
	for index, tr := range r.tracers {
		count := photonRanges[index]
		if count == 0 {
			continue
		}
		tr.Enqueue(tracer.BlockRequest{
			Pass:        tracer.PhotonTrace,
			PhotonStart: photonStart,
			PhotonCount: count,
			PhotonTrace: traceParams,
			DoneChan:    r.doneChan,
			ErrChan:     r.errChan,
		})
		photonStart += count
		pending++
	}
	if err := r.wait(pending); err != nil {
		return err
	}

	gatherParams := &tracer.PhotonGatherParams{
		Camera:      r.camera,
		Radius:      radius,
		PhotonCount: r.photonMap.Len(),
		NumBounces:  r.options.NumBounces,
		Sample:      sample,
		HashCells:   r.photonMap.Cells(),
	}
	err := r.dispatchRows(func(req *tracer.BlockRequest) {
		req.Pass = tracer.PhotonGather
		req.PhotonGather = gatherParams
	})
	if err != nil {
		return err
	}

	r.stats.StoredPhotons = r.photonMap.Len()
	r.stats.Radius = radius
	r.radius.Advance()
	return nil
}

// Enqueue a block request for each tracer using the current block
// assignments and wait for all of them to complete.
func (r *defaultRenderer) dispatchRows(setup func(*tracer.BlockRequest)) error {
	var blockY uint32
	pending := 0
	for index, tr := range r.tracers {
		blockH := r.blockAssignments[index]
		if blockH == 0 {
			continue
		}

		req := tracer.BlockRequest{
			FrameW:   r.options.FrameW,
			FrameH:   r.options.FrameH,
			BlockY:   blockY,
			BlockH:   blockH,
			DoneChan: r.doneChan,
			ErrChan:  r.errChan,
		}
		setup(&req)
		tr.Enqueue(req)

		blockY += blockH
		pending++
	}
	return r.wait(pending)
}

// Wait for pending block replies. All replies are drained even if a tracer
// reports an error so the next pass starts with idle tracers.
func (r *defaultRenderer) wait(pending int) error {
	var firstErr error
	for ; pending > 0; pending-- {
		select {
		case <-r.doneChan:
		case err := <-r.errChan:
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *defaultRenderer) updateStats(elapsed time.Duration) {
	r.stats.Tracers = r.stats.Tracers[:0]
	for index, tr := range r.tracers {
		blockH := r.blockAssignments[index]
		trStats := tr.Stats()
		r.stats.Tracers = append(r.stats.Tracers, TracerStat{
			Id:             tr.Id(),
			BlockH:         blockH,
			FramePercent:   100.0 * float32(blockH) / float32(r.options.FrameH),
			EmittedPhotons: trStats.EmittedPhotons,
			StoredPhotons:  trStats.StoredPhotons,
			RenderTime:     trStats.RenderTime,
		})
	}
	r.stats.Samples = r.target.Accumulator.SampleCount()
	r.stats.RenderTime = elapsed
}

// Discard accumulated samples and reset the photon search radius.
func (r *defaultRenderer) Reset() {
	r.Lock()
	defer r.Unlock()
	r.reset()
}

func (r *defaultRenderer) reset() {
	r.target.Reset()
	if r.radius != nil {
		r.radius.Reset()
		r.photonMap.Reset(r.radius.Radius())
	}
	r.stats.Samples = 0
	r.stats.StoredPhotons = 0
	r.stats.Radius = 0
}

// Replace the camera and discard accumulated samples.
func (r *defaultRenderer) SetCamera(cam *scene.Camera) {
	if cam == nil {
		return
	}

	r.Lock()
	defer r.Unlock()

	r.scene.Camera = cam
	r.camera = tracer.NewCameraParams(cam)
	r.reset()
	r.logger.Debugf("camera updated: %s", cam)
}

// Get the current camera.
func (r *defaultRenderer) Camera() *scene.Camera {
	r.Lock()
	defer r.Unlock()
	return r.scene.Camera
}

// The number of accumulated samples.
func (r *defaultRenderer) SampleCount() uint32 {
	r.Lock()
	defer r.Unlock()
	return r.target.Accumulator.SampleCount()
}

// Resolve the accumulated samples and apply the denoiser.
func (r *defaultRenderer) Frame() ([]types.Vec3, error) {
	r.Lock()
	defer r.Unlock()

	samples := r.target.Accumulator.SampleCount()
	if samples == 0 {
		return nil, ErrNoSamples
	}

	resolved := make([]types.Vec3, r.options.FrameW*r.options.FrameH)
	r.target.Accumulator.Resolve(resolved)
	return denoise.Apply(resolved, r.target.GBuffer, samples, r.options.Denoise)
}

// Tonemap the current frame and save it as a png image.
func (r *defaultRenderer) SaveFrame(imgFile string) error {
	frame, err := r.Frame()
	if err != nil {
		return err
	}

	img := Tonemap(frame, r.options.FrameW, r.options.FrameH, r.options.Exposure)
	f, err := os.Create(imgFile)
	if err != nil {
		return err
	}
	defer f.Close()

	if err = png.Encode(f, img); err != nil {
		return err
	}
	r.logger.Noticef("wrote frame to %s", imgFile)
	return nil
}

// Get the options the renderer was created with.
func (r *defaultRenderer) Options() Options {
	return r.options
}

// Shutdown renderer and any attached tracer.
func (r *defaultRenderer) Close() {
	r.Lock()
	defer r.Unlock()

	for _, tr := range r.tracers {
		tr.Close()
	}
	r.tracers = nil
}

// Get render statistics.
func (r *defaultRenderer) Stats() FrameStats {
	r.Lock()
	defer r.Unlock()

	stats := r.stats
	stats.Tracers = append([]TracerStat(nil), r.stats.Tracers...)
	return stats
}
