package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/achilleasa/prism/asset/scene"
	"github.com/achilleasa/prism/asset/scene/reader"
	"github.com/achilleasa/prism/renderer"
	"github.com/achilleasa/prism/tracer"
	"github.com/achilleasa/prism/web"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli"
)

// Render a still frame.
func RenderFrame(ctx *cli.Context) error {
	setupLogging(ctx)

	opts, err := renderOptions(ctx)
	if err != nil {
		return err
	}
	if opts.SamplesPerPixel == 0 {
		return errors.New("frame rendering requires a non-zero spp value")
	}

	sc, scheduler, err := loadScene(ctx)
	if err != nil {
		return err
	}

	// Create renderer
	r, err := renderer.NewDefault(sc, scheduler, opts)
	if err != nil {
		return err
	}
	defer r.Close()

	logger.Noticef("rendering %dx%d frame with %d spp", opts.FrameW, opts.FrameH, opts.SamplesPerPixel)
	start := time.Now()
	lastReport := start
	for sample := uint32(0); sample < opts.SamplesPerPixel; sample++ {
		if err = r.Render(); err != nil {
			return err
		}

		if time.Since(lastReport) > 5*time.Second {
			lastReport = time.Now()
			logger.Infof("rendered %d/%d samples", sample+1, opts.SamplesPerPixel)
		}
	}
	logger.Noticef("rendered frame in %d ms", time.Since(start).Nanoseconds()/1e6)

	if err = r.SaveFrame(ctx.String("out")); err != nil {
		return err
	}

	// Display stats
	displayFrameStats(r.Stats())

	return nil
}

// Render an interactive view of the scene.
func RenderInteractive(ctx *cli.Context) error {
	setupLogging(ctx)

	opts, err := renderOptions(ctx)
	if err != nil {
		return err
	}

	sc, scheduler, err := loadScene(ctx)
	if err != nil {
		return err
	}

	r, err := renderer.NewInteractive(sc, scheduler, opts)
	if err != nil {
		return err
	}
	defer r.Close()

	if err = r.Render(); err != nil {
		return err
	}

	displayFrameStats(r.Stats())
	return nil
}

// Render progressively and stream frames to browser clients.
func ServePreview(ctx *cli.Context) error {
	setupLogging(ctx)

	opts, err := renderOptions(ctx)
	if err != nil {
		return err
	}

	sc, scheduler, err := loadScene(ctx)
	if err != nil {
		return err
	}

	r, err := renderer.NewDefault(sc, scheduler, opts)
	if err != nil {
		return err
	}
	defer r.Close()

	stop := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		logger.Notice("shutting down preview server")
		close(stop)
	}()

	err = web.NewServer(r, ctx.String("addr")).Serve(stop)
	displayFrameStats(r.Stats())
	return err
}

// Load the scene file passed as the command argument and select a block
// scheduler.
func loadScene(ctx *cli.Context) (*scene.Scene, tracer.BlockScheduler, error) {
	if ctx.NArg() != 1 {
		return nil, nil, errors.New("missing scene file argument")
	}

	var scheduler tracer.BlockScheduler
	switch ctx.String("scheduler") {
	case "", "naive":
		scheduler = tracer.NaiveScheduler()
	case "perfect":
		scheduler = tracer.PerfectScheduler()
	default:
		return nil, nil, fmt.Errorf("unknown block scheduler %q", ctx.String("scheduler"))
	}

	sc, err := reader.ReadScene(ctx.Args().First())
	if err != nil {
		return nil, nil, err
	}
	return sc, scheduler, nil
}

// Build renderer options from command flags.
func renderOptions(ctx *cli.Context) (renderer.Options, error) {
	opts := renderer.DefaultOptions()

	opts.FrameW = uint32(ctx.Int("width"))
	opts.FrameH = uint32(ctx.Int("height"))
	opts.SamplesPerPixel = uint32(ctx.Int("spp"))
	opts.Exposure = float32(ctx.Float64("exposure"))
	opts.NumBounces = uint32(ctx.Int("num-bounces"))
	opts.MinBouncesForRR = uint32(ctx.Int("rr-bounces"))
	opts.NEE = !ctx.Bool("no-nee")
	opts.FireflyClamp = float32(ctx.Float64("firefly-clamp"))
	opts.Workers = uint32(ctx.Int("workers"))

	opts.Caustics = ctx.Bool("caustics")
	opts.PhotonsPerIteration = uint32(ctx.Int("photons"))
	opts.PhotonCapacity = uint32(ctx.Int("photon-capacity"))
	opts.HashCells = uint32(ctx.Int("hash-cells"))
	opts.InitialRadius = float32(ctx.Float64("radius"))
	opts.Alpha = float32(ctx.Float64("alpha"))

	opts.Denoise.Passes = uint32(ctx.Int("denoise-passes"))
	opts.Denoise.NormalSharpness = float32(ctx.Float64("denoise-normal"))
	opts.Denoise.DepthSigma = float32(ctx.Float64("denoise-depth"))
	opts.Denoise.ColorSigma = float32(ctx.Float64("denoise-color"))
	opts.Denoise.SkipThreshold = uint32(ctx.Int("denoise-skip"))

	if opts.FrameW == 0 || opts.FrameH == 0 {
		return opts, errors.New("frame width and height must be positive")
	}

	if opts.MinBouncesForRR >= opts.NumBounces && opts.MinBouncesForRR != 0 {
		logger.Notice("disabling RR for path elimination")
		opts.MinBouncesForRR = 0
	}

	if opts.Workers == 0 {
		opts.Workers = renderer.DefaultOptions().Workers
	}

	return opts, nil
}

func displayFrameStats(stats renderer.FrameStats) {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Tracer", "Block height", "% of frame", "Photons (stored/emitted)", "Render time"})
	for _, stat := range stats.Tracers {
		table.Append([]string{
			stat.Id,
			fmt.Sprintf("%d", stat.BlockH),
			fmt.Sprintf("%02.1f %%", stat.FramePercent),
			fmt.Sprintf("%d/%d", stat.StoredPhotons, stat.EmittedPhotons),
			stat.RenderTime.String(),
		})
	}
	table.SetFooter([]string{
		fmt.Sprintf("%d spp", stats.Samples),
		fmt.Sprintf("radius %.4f", stats.Radius),
		fmt.Sprintf("stored %d", stats.StoredPhotons),
		"TOTAL",
		stats.RenderTime.String(),
	})

	table.Render()
	logger.Noticef("frame statistics\n%s", buf.String())
}
