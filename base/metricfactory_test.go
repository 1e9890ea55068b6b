package base

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricFactory(t *testing.T) {
	mfactory := NewMetricFactory("testmetricfactory_", []string{"test"}, []string{"TestMetricFactory"})
	mfactory.AddOrGetCounter("packets_total", "Help packets", []string{"instrument"}, []string{"CTDBP"}).Add(3)
	mfactory.AddOrGetCounter("packets_total", "Help packets", []string{"instrument"}, []string{"CTDBP"}).Add(4)
	mfactory.AddOrGetCounterVec("errors_total", "Help errors", []string{"category"}, nil).WithLabelValues("checksum").Add(5)
	subfactory := mfactory.NewSubFactory("session_", []string{"client"}, []string{"10.0.0.1"})
	subfactory.AddOrGetGauge("active", "Help active", []string{"name"}, []string{"bar"}).Add(13)
	subfactory.AddOrGetGaugeVec("buffered", "Help buffered", []string{"part"}, nil).WithLabelValues("X").Add(14)
	subfactory.AddOrGetGaugeVec("buffered", "Help buffered", []string{"part"}, nil).WithLabelValues("X").Add(1)
	subfactory.AddOrGetGaugeVec("buffered", "Help buffered", []string{"part"}, nil).WithLabelValues("Y").Add(16)
	subfactory.AddOrGetGaugeVec("buffered", "Help buffered", []string{"part"}, nil).WithLabelValues("Z")
	metrics, merr := mfactory.DumpMetrics(false)
	assert.Nil(t, merr)
	assert.Equal(t, `testmetricfactory_errors_total{category="checksum",test="TestMetricFactory"} 5
testmetricfactory_packets_total{instrument="CTDBP",test="TestMetricFactory"} 7
testmetricfactory_session_active{client="10.0.0.1",name="bar",test="TestMetricFactory"} 13
testmetricfactory_session_buffered{client="10.0.0.1",part="X",test="TestMetricFactory"} 15
testmetricfactory_session_buffered{client="10.0.0.1",part="Y",test="TestMetricFactory"} 16
`, metrics)

	subMetrics, serr := subfactory.DumpMetrics(true)
	assert.Nil(t, serr)
	assert.Contains(t, subMetrics, `testmetricfactory_session_buffered{client="10.0.0.1",part="Z",test="TestMetricFactory"} 0`)
	assert.NotContains(t, subMetrics, "packets_total")
}

func TestMetricFactorySharedRegistration(t *testing.T) {
	first := NewMetricFactory("testmetricshared_", nil, nil)
	second := NewMetricFactory("testmetricshared_", nil, nil)
	first.AddOrGetCounter("restarts_total", "Help restarts", nil, nil).Add(1)
	second.AddOrGetCounter("restarts_total", "Help restarts", nil, nil).Add(2)
	metrics, err := second.DumpMetrics(false)
	assert.Nil(t, err)
	assert.Equal(t, "testmetricshared_restarts_total 3\n", metrics)
}
