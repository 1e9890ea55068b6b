package run

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/ooici/mi-agent/base"
	"github.com/ooici/mi-agent/defs"
	"github.com/relex/gotils/logger"
)

// ReloadableDistributor supports config reload by re-creating the downstream Distributor on SIGHUP
//
// The type is to be paired with Reloader, which provides the function to reload configuration file and create real
// Distributor(s). Inputs and their sessions are unaffected by reloading.
type ReloadableDistributor struct {
	logger          logger.Logger
	downstream      base.Distributor                 // the real distributor
	renewDownstream func() (base.Distributor, error) // function to perform reloading and launch a new downstream distributor
	reloadLock      *sync.RWMutex                    // held for reading while passing batches to downstream
	signalChan      chan os.Signal
	stopChan        chan struct{}
}

// NewReloadableDistributor creates a reloadable distributor wrapping the given downstream distributor
func NewReloadableDistributor(parentLogger logger.Logger, downstream base.Distributor, renewDownstream func() (base.Distributor, error)) *ReloadableDistributor {
	// DO NOT use renewDownstream for initial downstream creation, as config reloading is very different from first-time loading

	rdist := &ReloadableDistributor{
		logger:          parentLogger.WithField(defs.LabelComponent, "ReloadableDistributor"),
		downstream:      downstream,
		renewDownstream: renewDownstream,
		reloadLock:      &sync.RWMutex{},
		signalChan:      make(chan os.Signal, 1),
		stopChan:        make(chan struct{}),
	}

	signal.Notify(rdist.signalChan, syscall.SIGHUP)
	go func() {
		for {
			select {
			case <-rdist.signalChan:
				rdist.logger.Info("reloading config...")
				if err := rdist.reload(); err != nil {
					rdist.logger.Error("failed to reload: ", err)
				} else {
					rdist.logger.Info("reloaded config")
				}
			case <-rdist.stopChan:
				return
			}
		}
	}()

	return rdist
}

// Accept passes the batch to the current downstream distributor
func (dist *ReloadableDistributor) Accept(batch base.ChunkBatch) {
	dist.reloadLock.RLock()
	defer dist.reloadLock.RUnlock()

	dist.downstream.Accept(batch)
}

// Shutdown stops listening for reload signals and shuts down the current downstream distributor
func (dist *ReloadableDistributor) Shutdown() {
	signal.Stop(dist.signalChan)
	close(dist.stopChan)

	dist.reloadLock.Lock()
	defer dist.reloadLock.Unlock()
	dist.downstream.Shutdown()
}

// reload launches a new downstream distributor and replaces the current one, which is then shut down after all
// batches in flight have been passed to it
func (dist *ReloadableDistributor) reload() error {
	newDownstream, err := dist.renewDownstream()
	if err != nil {
		reloadFailureCounter.Inc()
		return err
	}

	dist.reloadLock.Lock()
	oldDownstream := dist.downstream
	dist.downstream = newDownstream
	dist.reloadLock.Unlock()

	oldDownstream.Shutdown()
	reloadSuccessCounter.Inc()
	return nil
}
