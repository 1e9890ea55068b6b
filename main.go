package main

import (
	"runtime"

	"github.com/ooici/mi-agent/cmd"
	"github.com/ooici/mi-agent/defs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/relex/gotils/logger"
)

var version string

func main() {
	logger.Infof("version: %s", version)
	logger.Infof("GOMAXPROCS: %d", runtime.GOMAXPROCS(0))

	registerInfoMetric()

	cmd.Execute()
}

func registerInfoMetric() {
	opts := prometheus.GaugeOpts{}
	opts.Name = defs.MetricsNamespace + "info"
	opts.Help = "mi-agent application information"
	gauge := prometheus.NewGaugeVec(opts, []string{"version"})
	gauge.WithLabelValues(version).Set(1)
	prometheus.MustRegister(gauge)
}
