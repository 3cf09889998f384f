package writer

import (
	"archive/zip"
	"encoding/gob"
	"io"
	"time"

	"github.com/achilleasa/prism/asset/scene"
	"github.com/achilleasa/prism/log"
)

const (
	dataFile = "scene.bin"
)

type zipSceneWriter struct {
	logger log.Logger
	target io.Writer
	name   string
}

// Create a new zip scene writer
func newZipSceneWriter(target io.Writer, name string) *zipSceneWriter {
	return &zipSceneWriter{
		logger: log.New("zip writer"),
		target: target,
		name:   name,
	}
}

// Write scene definition to zip file.
func (w *zipSceneWriter) Write(sc *scene.Scene) error {
	w.logger.Noticef("writing compressed scene to %s", w.name)
	start := time.Now()

	zw := zip.NewWriter(w.target)

	cw, err := zw.Create(dataFile)
	if err != nil {
		zw.Close()
		return err
	}
	if err = gob.NewEncoder(cw).Encode(sc); err != nil {
		zw.Close()
		return err
	}
	if err = zw.Close(); err != nil {
		return err
	}

	w.logger.Noticef("compressed scene in %d ms", time.Since(start).Nanoseconds()/1000000)
	return nil
}
