package cpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/achilleasa/prism/asset/scene"
	"github.com/achilleasa/prism/log"
	"github.com/achilleasa/prism/tracer"
	"github.com/achilleasa/prism/tracer/sppm"
)

var _ tracer.Tracer = (*Tracer)(nil)

// Tracer executes block requests on a dedicated worker goroutine. Running
// one tracer per CPU core provides the parallel-for used by the renderer.
type Tracer struct {
	logger log.Logger

	sync.Mutex
	wg sync.WaitGroup

	// The tracer id.
	id string

	// Relative speed estimate used by the block scheduler.
	speed uint32

	// A buffer for queuing updates. Updates are grouped by type and
	// latest updates always overwrite the previous ones.
	updateMutex  sync.Mutex
	updateBuffer map[tracer.UpdateType]interface{}

	// A channel for receiving block requests from the renderer.
	blockReqChan chan tracer.BlockRequest

	// A channel for signaling the worker to exit.
	closeChan chan struct{}

	// Statistics for the last processed block.
	stats *tracer.Stats

	// Photons stored by the last PhotonTrace stage.
	storedPhotons uint32

	// The stages executed for each pass.
	pipeline *Pipeline

	// Output buffers shared with the renderer.
	target *tracer.RenderTarget

	// Data committed from the update buffer.
	sceneData *scene.Scene
	photonMap *sppm.PhotonMap
}

// Create a new cpu tracer. If pipeline is nil the default pipeline is used.
func NewTracer(id string, speed uint32, pipeline *Pipeline) *Tracer {
	if speed == 0 {
		speed = 1
	}
	if pipeline == nil {
		pipeline = DefaultPipeline()
	}

	return &Tracer{
		logger:       log.New(fmt.Sprintf("cpu tracer (%s)", id)),
		id:           id,
		speed:        speed,
		updateBuffer: make(map[tracer.UpdateType]interface{}),
		blockReqChan: make(chan tracer.BlockRequest),
		stats:        &tracer.Stats{},
		pipeline:     pipeline,
	}
}

// Get tracer id.
func (tr *Tracer) Id() string {
	return tr.id
}

// Get the tracer's relative speed estimate.
func (tr *Tracer) Speed() uint32 {
	return tr.speed
}

// Attach the output buffers and start the worker.
func (tr *Tracer) Init(target *tracer.RenderTarget) error {
	if target == nil {
		return tracer.ErrNotReady
	}

	tr.Lock()
	defer tr.Unlock()

	tr.target = target
	tr.startWorker()
	return nil
}

// Shutdown and cleanup tracer.
func (tr *Tracer) Close() {
	tr.Lock()
	defer tr.Unlock()

	tr.cleanup()
}

// Cleanup tracer. This method is meant to be called while holding tr.Lock()
func (tr *Tracer) cleanup() {
	if tr.closeChan != nil {
		tr.closeChan <- struct{}{}

		// wait for worker to ack close
		<-tr.closeChan
		tr.wg.Wait()
		close(tr.closeChan)
		tr.closeChan = nil
	}

	tr.sceneData = nil
	tr.photonMap = nil
	tr.target = nil
}

// Enqueue block request. The call blocks until the worker accepts it.
func (tr *Tracer) Enqueue(blockReq tracer.BlockRequest) {
	tr.Lock()
	running := tr.closeChan != nil
	tr.Unlock()

	if !running {
		blockReq.ErrChan <- tracer.ErrNotReady
		return
	}
	tr.blockReqChan <- blockReq
}

// Append a change to the tracer's update buffer.
func (tr *Tracer) Update(updateType tracer.UpdateType, data interface{}) {
	tr.updateMutex.Lock()
	tr.updateBuffer[updateType] = data
	tr.updateMutex.Unlock()
}

// Retrieve last block statistics.
func (tr *Tracer) Stats() *tracer.Stats {
	return tr.stats
}

// Commit queued changes.
func (tr *Tracer) commitUpdates() error {
	tr.updateMutex.Lock()
	defer tr.updateMutex.Unlock()

	// Scene updates must be applied first.
	for _, updateType := range []tracer.UpdateType{tracer.UpdateScene, tracer.UpdatePhotonMap} {
		data, pending := tr.updateBuffer[updateType]
		if !pending {
			continue
		}

		switch updateType {
		case tracer.UpdateScene:
			sc, ok := data.(*scene.Scene)
			if !ok || sc == nil {
				return fmt.Errorf("cpu tracer: invalid scene update payload %T", data)
			}
			tr.sceneData = sc
			tr.logger.Debugf("uploaded scene with %d triangles", len(sc.Triangles))
		case tracer.UpdatePhotonMap:
			pm, ok := data.(*sppm.PhotonMap)
			if !ok || pm == nil {
				return fmt.Errorf("cpu tracer: invalid photon map update payload %T", data)
			}
			tr.photonMap = pm
		}
		delete(tr.updateBuffer, updateType)
	}

	var err error
	for updateType := range tr.updateBuffer {
		err = fmt.Errorf("cpu tracer: unsupported update type %d", updateType)
		delete(tr.updateBuffer, updateType)
	}
	return err
}

func (tr *Tracer) hasPendingUpdates() bool {
	tr.updateMutex.Lock()
	defer tr.updateMutex.Unlock()
	return len(tr.updateBuffer) != 0
}

// Spawn a go-routine to process block requests.
func (tr *Tracer) startWorker() {
	// Worker already running
	if tr.closeChan != nil {
		return
	}

	tr.closeChan = make(chan struct{})
	readyChan := make(chan struct{})
	tr.wg.Add(1)
	go func() {
		defer tr.wg.Done()
		var blockReq tracer.BlockRequest
		var startTime time.Time
		var err error
		close(readyChan)
		for {
			select {
			case blockReq = <-tr.blockReqChan:
				// Apply any pending changes
				if tr.hasPendingUpdates() {
					startTime = time.Now()
					err = tr.commitUpdates()
					if err != nil {
						blockReq.ErrChan <- err
						continue
					}
					tr.stats.UpdateTime = time.Since(startTime)
				}

				// Process block and reply with our completion status
				startTime = time.Now()
				completed, err := tr.processBlock(&blockReq)
				if err != nil {
					blockReq.ErrChan <- err
					continue
				}

				tr.updateStats(&blockReq, completed, time.Since(startTime))
				blockReq.DoneChan <- completed
			case <-tr.closeChan:
				// Ack close
				tr.closeChan <- struct{}{}
				return
			}
		}
	}()

	// Wait for go-routine to start
	<-readyChan
}

func (tr *Tracer) updateStats(blockReq *tracer.BlockRequest, completed uint32, elapsed time.Duration) {
	switch blockReq.Pass {
	case tracer.Integrate:
		// The scheduler balances rows using integration timings only.
		tr.stats.BlockH = blockReq.BlockH
		tr.stats.RenderTime = elapsed
	case tracer.PhotonTrace:
		tr.stats.EmittedPhotons = completed
		tr.stats.StoredPhotons = tr.storedPhotons
	}
}

// Run the pipeline stage matching the requested pass. It returns the number
// of completed rows or traced photons.
func (tr *Tracer) processBlock(blockReq *tracer.BlockRequest) (uint32, error) {
	if tr.sceneData == nil {
		return 0, tracer.ErrNoSceneData
	}
	if tr.target == nil {
		return 0, tracer.ErrNotReady
	}

	var stage PipelineStage
	var completed uint32
	switch blockReq.Pass {
	case tracer.Integrate:
		if blockReq.Integration == nil {
			return 0, tracer.ErrMissingParams
		}
		stage, completed = tr.pipeline.Integrate, blockReq.BlockH
	case tracer.PhotonTrace:
		if blockReq.PhotonTrace == nil {
			return 0, tracer.ErrMissingParams
		}
		if tr.photonMap == nil {
			return 0, tracer.ErrNoPhotonMap
		}
		params := blockReq.PhotonTrace
		if params.HashCells != tr.photonMap.Cells() || params.EmitterCount != uint32(len(tr.sceneData.Emitters)) {
			return 0, tracer.ErrStaleParams
		}
		stage, completed = tr.pipeline.PhotonTrace, blockReq.PhotonCount
	case tracer.PhotonGather:
		if blockReq.PhotonGather == nil {
			return 0, tracer.ErrMissingParams
		}
		if tr.photonMap == nil {
			return 0, tracer.ErrNoPhotonMap
		}
		if blockReq.PhotonGather.HashCells != tr.photonMap.Cells() {
			return 0, tracer.ErrStaleParams
		}
		stage, completed = tr.pipeline.PhotonGather, blockReq.BlockH
	default:
		return 0, tracer.ErrUnknownPass
	}

	if stage == nil {
		return completed, nil
	}

	elapsed, err := stage(tr, blockReq)
	if err != nil {
		return 0, err
	}
	tr.logger.Debugf("%s block (%d items) completed in %d ms", blockReq.Pass, completed, elapsed.Nanoseconds()/1e6)
	return completed, nil
}
