package main

import (
	"os"

	"github.com/achilleasa/prism/cmd"
	"github.com/achilleasa/prism/log"
	"github.com/achilleasa/prism/renderer"
	"github.com/urfave/cli"
)

// Flags shared by all render sub-commands. Defaults mirror
// renderer.DefaultOptions.
func renderFlags(spp int) []cli.Flag {
	defaults := renderer.DefaultOptions()
	return []cli.Flag{
		cli.IntFlag{
			Name:  "width",
			Value: int(defaults.FrameW),
			Usage: "frame width",
		},
		cli.IntFlag{
			Name:  "height",
			Value: int(defaults.FrameH),
			Usage: "frame height",
		},
		cli.IntFlag{
			Name:  "spp",
			Value: spp,
			Usage: "samples per pixel (0 renders until interrupted)",
		},
		cli.Float64Flag{
			Name:  "exposure",
			Value: float64(defaults.Exposure),
			Usage: "camera exposure for tone-mapping",
		},
		cli.IntFlag{
			Name:  "num-bounces",
			Value: int(defaults.NumBounces),
			Usage: "number of indirect ray bounces",
		},
		cli.IntFlag{
			Name:  "rr-bounces",
			Value: 3,
			Usage: "min number of bounces before applying russian roulette to eliminate paths; set to 0 to disable RR",
		},
		cli.BoolFlag{
			Name:  "no-nee",
			Usage: "disable next event estimation",
		},
		cli.Float64Flag{
			Name:  "firefly-clamp",
			Value: float64(defaults.FireflyClamp),
			Usage: "clamp NEE samples to this multiple of the emitter luminance; set to 0 to disable",
		},
		cli.IntFlag{
			Name:  "workers",
			Value: int(defaults.Workers),
			Usage: "number of cpu tracers",
		},
		cli.StringFlag{
			Name:  "scheduler",
			Value: "naive",
			Usage: "block scheduler (naive or perfect)",
		},
		cli.BoolFlag{
			Name:  "caustics",
			Usage: "enable caustics via stochastic progressive photon mapping",
		},
		cli.IntFlag{
			Name:  "photons",
			Value: int(defaults.PhotonsPerIteration),
			Usage: "photons emitted per sample",
		},
		cli.IntFlag{
			Name:  "photon-capacity",
			Value: int(defaults.PhotonCapacity),
			Usage: "max photons stored per sample",
		},
		cli.IntFlag{
			Name:  "hash-cells",
			Value: int(defaults.HashCells),
			Usage: "number of photon map hash cells",
		},
		cli.Float64Flag{
			Name:  "radius",
			Value: float64(defaults.InitialRadius),
			Usage: "initial photon gather radius",
		},
		cli.Float64Flag{
			Name:  "alpha",
			Value: float64(defaults.Alpha),
			Usage: "fraction of photons kept by each radius reduction",
		},
		cli.IntFlag{
			Name:  "denoise-passes",
			Value: int(defaults.Denoise.Passes),
			Usage: "number of a-trous denoiser passes; set to 0 to disable",
		},
		cli.Float64Flag{
			Name:  "denoise-normal",
			Value: float64(defaults.Denoise.NormalSharpness),
			Usage: "denoiser normal edge sharpness",
		},
		cli.Float64Flag{
			Name:  "denoise-depth",
			Value: float64(defaults.Denoise.DepthSigma),
			Usage: "denoiser relative depth sigma",
		},
		cli.Float64Flag{
			Name:  "denoise-color",
			Value: float64(defaults.Denoise.ColorSigma),
			Usage: "denoiser luminance sigma",
		},
		cli.IntFlag{
			Name:  "denoise-skip",
			Value: int(defaults.Denoise.SkipThreshold),
			Usage: "skip the denoiser once this many samples are accumulated",
		},
	}
}

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "prism"
	app.Usage = "render scenes using progressive path tracing with photon mapped caustics"
	app.Version = "0.0.1"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "compile",
			Usage: "compile text scene representation into a binary compressed format",
			Description: `
Parse a scene definition from a wavefront obj or glTF file, build a BVH tree
to optimize ray intersection tests and package scene elements in a flat format.

The optimized scene data is then written to a zip archive which can be supplied
as an argument to the render command.`,
			ArgsUsage: "scene_file1.obj scene_file2.glb ...",
			Action:    cmd.CompileScene,
		},
		{
			Name:      "info",
			Usage:     "display information about a compiled scene",
			ArgsUsage: "scene_file.zip",
			Action:    cmd.ShowSceneInfo,
		},
		{
			Name:  "render",
			Usage: "render scene",
			Subcommands: []cli.Command{
				{
					Name:        "frame",
					Usage:       "render single frame",
					Description: `Render a single frame and save it as a png image.`,
					ArgsUsage:   "scene_file",
					Flags: append(
						renderFlags(int(renderer.DefaultOptions().SamplesPerPixel)),
						cli.StringFlag{
							Name:  "out, o",
							Value: "frame.png",
							Usage: "image filename for the rendered frame",
						},
					),
					Action: cmd.RenderFrame,
				},
				{
					Name:  "interactive",
					Usage: "render interactive view of the scene",
					Description: `
Render progressively into an opengl window. Drag with the left mouse button to
orbit the camera, drag with the right mouse button to pan and use the arrow keys
to move. Press TAB to toggle the block assignment overlay.`,
					ArgsUsage: "scene_file",
					Flags:     renderFlags(0),
					Action:    cmd.RenderInteractive,
				},
				{
					Name:  "serve",
					Usage: "stream progressive frames to a browser",
					Description: `
Render progressively and push each sample to websocket clients connected to
the preview page.`,
					ArgsUsage: "scene_file",
					Flags: append(
						renderFlags(int(renderer.DefaultOptions().SamplesPerPixel)),
						cli.StringFlag{
							Name:  "addr",
							Value: "localhost:8080",
							Usage: "listen address for the preview server",
						},
					),
					Action: cmd.ServePreview,
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.New("prism").Error(err.Error())
		os.Exit(1)
	}
}
