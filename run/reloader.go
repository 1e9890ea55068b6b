package run

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ooici/mi-agent/base"
	"github.com/ooici/mi-agent/util"
	"github.com/relex/gotils/logger"
)

// Reloader overrides Loader to support configuration reloading
//
// Only the outputs section can be changed by reloading. Inputs own live sessions and chunk buffers, which would be lost.
type Reloader struct {
	*Loader

	loadingLock sync.Mutex
}

// NewReloaderFromConfigFile creates a Reloader from the config file; metricPrefix is for all the metrics created
func NewReloaderFromConfigFile(filepath string, metricPrefix string) (*Reloader, error) {
	loader, loaderErr := NewLoaderFromConfigFile(filepath, metricPrefix)
	if loaderErr != nil {
		return nil, loaderErr // return error if config file is invalid at startup (NOT when reloading)
	}

	return &Reloader{
		Loader: loader,
	}, nil
}

// LaunchDistributor launches a reloadable Distributor
func (reloader *Reloader) LaunchDistributor(dlogger logger.Logger) (base.Distributor, error) {
	firstDownstream, err := reloader.Loader.LaunchDistributor(dlogger)
	if err != nil {
		return nil, err
	}
	var numReload int64 = 0

	return NewReloadableDistributor(dlogger, firstDownstream, func() (base.Distributor, error) {
		newLoader, err := reloader.reloadConfigFile()
		if err != nil {
			return nil, err
		}
		return newLoader.LaunchDistributor(dlogger.WithField("numReload", atomic.AddInt64(&numReload, 1)))
	}), nil
}

func (reloader *Reloader) reloadConfigFile() (*Loader, error) {
	reloader.loadingLock.Lock()
	defer reloader.loadingLock.Unlock()

	newLoader, newErr := NewLoaderFromConfigFile(reloader.filepath, reloader.MetricFactory.Prefix())
	if newErr != nil {
		return nil, newErr
	}

	oldInputs, _ := util.MarshalYaml(reloader.Loader.Inputs)
	newInputs, _ := util.MarshalYaml(newLoader.Inputs)
	if oldInputs != newInputs {
		return nil, fmt.Errorf("inputs must not change: old=%s, new=%s", oldInputs, newInputs)
	}

	newLoader.MetricFactory = reloader.Loader.MetricFactory
	reloader.Loader = newLoader
	return newLoader, nil
}
