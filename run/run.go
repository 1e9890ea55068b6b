// Package run runs the actual instrument agent
package run

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/ooici/mi-agent/defs"
	"github.com/relex/gotils/logger"
)

// Run runs the agent until stopped by signals, or until all inputs have stopped by themselves (e.g. playback)
func Run(configFile string) {
	var loader LoaderIface
	var loaderErr error
	if defs.EnableConfigReload {
		loader, loaderErr = NewReloaderFromConfigFile(configFile, defs.MetricsNamespace)
	} else {
		loader, loaderErr = NewLoaderFromConfigFile(configFile, defs.MetricsNamespace)
	}
	if loaderErr != nil {
		logger.Fatal(loaderErr)
	}

	sigChan := make(chan os.Signal, 10)
	signal.Notify(sigChan, syscall.SIGINT)
	signal.Notify(sigChan, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if err := runLoader(loader, sigChan); err != nil {
		logger.Fatal(err)
	}
}

func runLoader(loader LoaderIface, sigChan <-chan os.Signal) error {
	runLogger := logger.WithField(defs.LabelComponent, "Launcher")

	distributor, distErr := loader.LaunchDistributor(logger.Root())
	if distErr != nil {
		return distErr
	}
	inputs, inputErr := loader.LaunchInputs(distributor)
	if inputErr != nil {
		distributor.Shutdown()
		return inputErr
	}
	runLogger.Infof("launched inputs: %v", inputs.Addresses)

	// wait for shutdown signal or the end of inputs
	select {
	case s := <-sigChan:
		runLogger.Infof("received %s, shutting down", s)
	case <-inputs.AllStopped.Channel():
		runLogger.Info("all inputs stopped, shutting down")
	}

	inputs.Shutdown()
	distributor.Shutdown()
	runLogger.Info("clean exit")
	return nil
}
