package base

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/relex/gotils/logger"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// MetricFactory manages Prometheus metrics
//
// Metrics are registered in the default Prometheus registry. Metrics of the same name and labels are shared between
// factories, so that a restarted input or output continues its counters.
type MetricFactory struct {
	namePrefix        string
	parentLabelNames  []string
	parentLabelValues []string
	registryLock      *sync.Mutex
	registry          map[string]prometheus.Collector
}

// NewMetricFactory creates a factory with prefix for metrics names and fixed labels for all metrics created from this new factory
func NewMetricFactory(prefix string, labelNames []string, labelValues []string) *MetricFactory {
	checkLabelLengths(labelNames, labelValues)
	return &MetricFactory{
		namePrefix:        prefix,
		parentLabelNames:  labelNames,
		parentLabelValues: labelValues,
		registryLock:      &sync.Mutex{},
		registry:          make(map[string]prometheus.Collector, 100),
	}
}

// NewSubFactory creates a sub-factory which inherits the parent's prefix and fixed labels,
// with more prefix and fixed labels added to all metrics created from this new sub-factory
func (factory *MetricFactory) NewSubFactory(prefix string, labelNames []string, labelValues []string) *MetricFactory {
	checkLabelLengths(labelNames, labelValues)
	fullPrefix, allLabelNames, allLabelValues := factory.concatNameAndLabels(prefix, labelNames, labelValues)
	return &MetricFactory{
		namePrefix:        fullPrefix,
		parentLabelNames:  allLabelNames,
		parentLabelValues: allLabelValues,
		registryLock:      factory.registryLock,
		registry:          factory.registry,
	}
}

// AddOrGetCounter adds or gets a counter
func (factory *MetricFactory) AddOrGetCounter(name string, help string, labelNames []string, labelValues []string) prometheus.Counter {
	checkLabelLengths(labelNames, labelValues)
	return factory.AddOrGetCounterVec(name, help, labelNames, labelValues).WithLabelValues()
}

// AddOrGetCounterVec adds or gets a counter-vec with leftmost label values
func (factory *MetricFactory) AddOrGetCounterVec(name string, help string, labelNames []string, leftmostLabelValues []string) *prometheus.CounterVec {
	fullName, allLabelNames, allLeftmostLabelValues := factory.concatNameAndLabels(name, labelNames, leftmostLabelValues)
	collector := factory.addOrGet(fullName, func() prometheus.Collector {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Name: fullName, Help: help}, allLabelNames)
	})
	counterVec, ok := collector.(*prometheus.CounterVec)
	if !ok {
		logger.Panicf("metric '%s' is not a counter-vec: %T", fullName, collector)
	}
	curryLabels := buildLabels(allLabelNames, allLeftmostLabelValues)
	curriedCounterVec, err := counterVec.CurryWith(curryLabels)
	if err != nil {
		logger.Panicf("failed to curry counter-vec '%s' with %s: %s", fullName, curryLabels, err.Error())
	}
	return curriedCounterVec
}

// AddOrGetGauge adds or gets a gauge
//
// Gauges must be updated by Add/Sub not Set, because there could be multiple updaters
func (factory *MetricFactory) AddOrGetGauge(name string, help string, labelNames []string, labelValues []string) prometheus.Gauge {
	checkLabelLengths(labelNames, labelValues)
	return factory.AddOrGetGaugeVec(name, help, labelNames, labelValues).WithLabelValues()
}

// AddOrGetGaugeVec adds or gets a gauge-vec with leftmost label values
//
// Gauges must be updated by Add/Sub not Set, because there could be multiple updaters
func (factory *MetricFactory) AddOrGetGaugeVec(name string, help string, labelNames []string, leftmostLabelValues []string) *prometheus.GaugeVec {
	fullName, allLabelNames, allLeftmostLabelValues := factory.concatNameAndLabels(name, labelNames, leftmostLabelValues)
	collector := factory.addOrGet(fullName, func() prometheus.Collector {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: fullName, Help: help}, allLabelNames)
	})
	gaugeVec, ok := collector.(*prometheus.GaugeVec)
	if !ok {
		logger.Panicf("metric '%s' is not a gauge-vec: %T", fullName, collector)
	}
	curryLabels := buildLabels(allLabelNames, allLeftmostLabelValues)
	curriedGaugeVec, err := gaugeVec.CurryWith(curryLabels)
	if err != nil {
		logger.Panicf("failed to curry gauge-vec '%s' with %s: %s", fullName, curryLabels, err.Error())
	}
	return curriedGaugeVec
}

// DumpMetrics dumps all metrics created in this factory and derived sub-factories into the .prom text format without comments
//
// For testing only
func (factory *MetricFactory) DumpMetrics(includeZeroValues bool) (string, error) {
	gatherer := prometheus.NewPedanticRegistry()
	factory.registryLock.Lock()
	names := maps.Keys(factory.registry)
	slices.Sort(names)
	for _, name := range names {
		if !strings.HasPrefix(name, factory.namePrefix) {
			continue
		}
		if err := gatherer.Register(factory.registry[name]); err != nil {
			factory.registryLock.Unlock()
			return "", fmt.Errorf("failed to add metric '%s' to gatherer: %w", name, err)
		}
	}
	factory.registryLock.Unlock()

	metricFamilies, err := gatherer.Gather()
	if err != nil {
		return "", fmt.Errorf("failed to gather metrics: %w", err)
	}
	writer := &bytes.Buffer{}
	for _, mf := range metricFamilies {
		if _, err := expfmt.MetricFamilyToText(writer, mf); err != nil {
			return "", fmt.Errorf("failed to export '%s': %w", mf.GetName(), err)
		}
	}
	lines := strings.Split(writer.String(), "\n")
	linesFiltered := make([]string, 0, len(lines)/2)
	for _, ln := range lines {
		if strings.HasPrefix(ln, "#") {
			continue
		}
		if !includeZeroValues && strings.HasSuffix(ln, " 0") {
			continue
		}
		linesFiltered = append(linesFiltered, ln)
	}
	return strings.Join(linesFiltered, "\n"), nil
}

// Prefix is the prefix added to all metric names inside this factory
func (factory *MetricFactory) Prefix() string {
	return factory.namePrefix
}

// addOrGet looks up or registers the collector of the given full name
//
// If the same metric has been registered globally by another factory, the existing one is shared
func (factory *MetricFactory) addOrGet(fullName string, create func() prometheus.Collector) prometheus.Collector {
	factory.registryLock.Lock()
	defer factory.registryLock.Unlock()

	if collector, ok := factory.registry[fullName]; ok {
		return collector
	}
	collector := create()
	if err := prometheus.Register(collector); err != nil {
		var existingErr prometheus.AlreadyRegisteredError
		if !errors.As(err, &existingErr) {
			logger.Panicf("failed to register metric '%s': %s", fullName, err.Error())
		}
		collector = existingErr.ExistingCollector
	}
	factory.registry[fullName] = collector
	return collector
}

func (factory *MetricFactory) concatNameAndLabels(name string, labelNames []string, leftmostLabelValues []string) (string, []string, []string) {
	if len(labelNames) < len(leftmostLabelValues) {
		logger.Panicf("length of labelNames (%s) should be equal or greater than length of leftmostLabelValues (%s)",
			strings.Join(labelNames, ","), strings.Join(leftmostLabelValues, ","))
	}
	fullName := factory.namePrefix + name
	allLabelNames := append(append([]string(nil), factory.parentLabelNames...), labelNames...)
	allLeftmostLabelValues := append(append([]string(nil), factory.parentLabelValues...), leftmostLabelValues...)
	return fullName, allLabelNames, allLeftmostLabelValues
}

func checkLabelLengths(labelNames []string, labelValues []string) {
	if len(labelNames) != len(labelValues) {
		logger.Panicf("different lengths of labelNames (%s) and labelValues (%s)",
			strings.Join(labelNames, ","), strings.Join(labelValues, ","))
	}
}

func buildLabels(labelNames []string, leftmostLabelValues []string) prometheus.Labels {
	labelMap := make(prometheus.Labels, len(leftmostLabelValues))
	for i, value := range leftmostLabelValues {
		labelMap[labelNames[i]] = value
	}
	return labelMap
}
