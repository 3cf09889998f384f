package cmd

import (
	"github.com/achilleasa/prism/log"
	"github.com/urfave/cli"
)

var logger = log.New("prism")

func setupLogging(ctx *cli.Context) {
	if ctx.GlobalBool("v") {
		log.SetLevel(log.Info)
	}

	if ctx.GlobalBool("vv") {
		log.SetLevel(log.Debug)
	}
}
