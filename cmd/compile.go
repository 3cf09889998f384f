package cmd

import (
	"path/filepath"
	"strings"

	"github.com/achilleasa/prism/asset/scene/reader"
	"github.com/achilleasa/prism/asset/scene/writer"
	"github.com/urfave/cli"
)

// Scene formats that can be compiled.
var compilableExtensions = map[string]bool{
	".obj":  true,
	".gltf": true,
	".glb":  true,
}

// Compile scene to binary format.
func CompileScene(ctx *cli.Context) error {
	setupLogging(ctx)

	for idx := 0; idx < ctx.NArg(); idx++ {
		sceneFile := ctx.Args().Get(idx)
		if !compilableExtensions[strings.ToLower(filepath.Ext(sceneFile))] {
			logger.Warningf("skipping unsupported file %s", sceneFile)
			continue
		}

		logger.Noticef("parsing and compiling scene: %s", sceneFile)
		sc, err := reader.ReadScene(sceneFile)
		if err != nil {
			return err
		}

		// Display compiled scene info
		logger.Noticef("scene information:\n%s", sc.Stats())

		err = writer.WriteScene(sc, compiledSceneFile(sceneFile))
		if err != nil {
			return err
		}
	}

	return nil
}

// Get the output file for a compiled scene.
func compiledSceneFile(sceneFile string) string {
	return strings.TrimSuffix(sceneFile, filepath.Ext(sceneFile)) + ".zip"
}
