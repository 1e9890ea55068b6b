package run

import (
	"fmt"

	"github.com/ooici/mi-agent/base"
	"github.com/ooici/mi-agent/orchestrate/ofanout"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
)

// LoaderIface defines abstract configuration loader
type LoaderIface interface {
	LaunchDistributor(dlogger logger.Logger) (base.Distributor, error)
	LaunchInputs(receiver base.ChunkBatchReceiver) (*LaunchedInputs, error)
}

// Loader loads configuration from file and prepares the environments to be launched
//
// Loader should take care of everything derived from the config file, but not trigger anything automatically
//
// Distributor and inputs are exposed in place of a simple main loop to allow customization, see Run()
type Loader struct {
	filepath string // config file path

	*Config
	MetricFactory *base.MetricFactory
}

// LaunchedInputs contains the running inputs launched by Loader
type LaunchedInputs struct {
	Addresses   []string           // final input addresses, e.g. with assigned port if it's 0 in config file
	AllStopped  channels.Awaitable // signaled after all inputs stopped, either by Shutdown or by themselves (playback)
	stopRequest *channels.SignalAwaitable
}

// NewLoaderFromConfigFile creates a Loader from the config file; metricPrefix is for all the metrics created
func NewLoaderFromConfigFile(filepath string, metricPrefix string) (*Loader, error) {
	config, configErr := LoadConfigFile(filepath)
	if configErr != nil {
		return nil, configErr
	}

	return &Loader{
		filepath: filepath,

		Config:        config,
		MetricFactory: base.NewMetricFactory(metricPrefix, nil, nil),
	}, nil
}

// LaunchDistributor creates a Distributor and launches all outputs in background
func (loader *Loader) LaunchDistributor(dlogger logger.Logger) (base.Distributor, error) {
	return ofanout.NewDistributor(dlogger, loader.NewRoutes(), loader.MetricFactory)
}

// LaunchInputs starts all inputs in background, sending chunks to the receiver
//
// If any of the inputs fails to be created, those already started are stopped before return
func (loader *Loader) LaunchInputs(receiver base.ChunkBatchReceiver) (*LaunchedInputs, error) {
	stopRequest := channels.NewSignalAwaitable()
	inputStoppedSignals := make([]channels.Awaitable, 0, len(loader.Inputs))
	inputAddresses := make([]string, 0, len(loader.Inputs))

	for index, inputConfig := range loader.Inputs {
		input, ierr := inputConfig.Value.NewInput(logger.Root(), receiver, loader.MetricFactory, stopRequest)
		if ierr != nil {
			stopRequest.Signal()
			channels.AllAwaitables(inputStoppedSignals...).WaitForever()
			return nil, fmt.Errorf("inputs[%d]: %w", index, ierr)
		}
		input.Start()

		inputAddresses = append(inputAddresses, input.Address())
		inputStoppedSignals = append(inputStoppedSignals, input.Stopped())
	}

	return &LaunchedInputs{
		Addresses:   inputAddresses,
		AllStopped:  channels.AllAwaitables(inputStoppedSignals...),
		stopRequest: stopRequest,
	}, nil
}

// Shutdown requests all inputs to stop and waits for them
//
// It only shuts down the inputs, not the distributor
func (inputs *LaunchedInputs) Shutdown() {
	inputs.stopRequest.Signal()
	inputs.AllStopped.WaitForever()
}
