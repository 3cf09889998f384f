package cmd

import (
	"errors"
	"strings"

	"github.com/achilleasa/prism/asset/scene/reader"
	"github.com/urfave/cli"
)

// Display compiled scene info.
func ShowSceneInfo(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() != 1 {
		return errors.New("missing compiled scene zip file")
	}

	sceneFile := ctx.Args().First()
	if !strings.HasSuffix(strings.ToLower(sceneFile), ".zip") {
		return errors.New("only compiled scene files with a .zip extension are supported")
	}

	sc, err := reader.ReadScene(sceneFile)
	if err != nil {
		return err
	}

	logger.Noticef("scene information:\n%s", sc.Stats())
	if sc.Camera != nil {
		logger.Noticef("%s", sc.Camera)
	}
	if len(sc.Emitters) == 0 {
		logger.Warning("scene has no emissive triangles; only the background will light it")
	} else {
		logger.Noticef("%d emitters, total power %.3f, background %v", len(sc.Emitters), sc.TotalEmitterPower, sc.Background)
	}

	return nil
}
