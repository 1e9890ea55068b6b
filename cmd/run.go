package cmd

import (
	"context"

	"github.com/ooici/mi-agent/defs"
	"github.com/ooici/mi-agent/run"
	"github.com/ooici/mi-agent/util"
	"github.com/relex/gotils/logger"
)

type runCommandState struct {
	Config      string `help:"Configuration file path"`
	MetricsAddr string `help:"The listener address to expose Prometheus metrics and debug information"`
	TestMode    bool   `help:"Use test mode config: fast retry and short timeout"`
	NoReload    bool   `help:"Disable reloading of outputs by SIGHUP"`
}

var runCmd runCommandState = runCommandState{
	Config:      "config.yml",
	MetricsAddr: ":9335",
	TestMode:    false,
	NoReload:    false,
}

func (cmd *runCommandState) run(args []string) {
	if cmd.TestMode {
		defs.EnableTestMode()
	}
	if cmd.NoReload {
		defs.EnableConfigReload = false
	}

	msrv := util.LaunchMetricsListener(cmd.MetricsAddr)

	run.Run(cmd.Config)

	if err := msrv.Shutdown(context.Background()); err != nil {
		logger.Errorf("error shutting down metrics listener: %v", err)
	}
}
