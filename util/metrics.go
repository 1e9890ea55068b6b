package util

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"

	"github.com/ooici/mi-agent/defs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/relex/gotils/logger"
)

const metricsIndexPage = `<html>
	<head><title>mi-agent</title></head>
	<body>
		<h1>mi-agent</h1>
		<ul>
			<li><a href='/metrics'>/metrics</a></li>
			<li><a href='/debug/pprof/'>/debug/pprof/</a></li>
		</ul>
	</body>
</html>`

// NewMetricsHandler creates a HTTP handler for Prometheus metrics from the default registry and pprof
func NewMetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, metricsIndexPage)
	})
	return mux
}

// LaunchMetricsListener starts a HTTP server for metrics in background
func LaunchMetricsListener(address string) *http.Server {
	mlogger := logger.WithField(defs.LabelComponent, "MetricsListener")
	server := &http.Server{
		Addr:    address,
		Handler: NewMetricsHandler(),
	}
	go func() {
		mlogger.Infof("listening on %s for metrics...", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			mlogger.Error("metrics listener error: ", err)
		}
	}()
	return server
}

// SumMetricValues sums the values of all metrics in a collector, e.g. a CounterVec over all labels
func SumMetricValues(c prometheus.Collector) float64 {
	metricChan := make(chan prometheus.Metric)
	go func() {
		c.Collect(metricChan)
		close(metricChan)
	}()

	sum := 0.0
	for m := range metricChan {
		pb := &dto.Metric{}
		if err := m.Write(pb); err != nil {
			logger.Errorf("failed to read metric '%s': %s", m.Desc(), err.Error())
			continue
		}
		switch {
		case pb.Counter != nil:
			sum += pb.Counter.GetValue()
		case pb.Gauge != nil:
			sum += pb.Gauge.GetValue()
		case pb.Untyped != nil:
			sum += pb.Untyped.GetValue()
		}
	}
	return sum
}
