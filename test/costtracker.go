package test

import (
	"runtime"
	"syscall"
	"time"

	"github.com/ooici/mi-agent/util"
	"github.com/relex/gotils/logger"
)

// CostTracker tracks CPU usage and memory allocations
type CostTracker struct {
	initRealTime      time.Time
	initUserTime      time.Time
	initSystemTime    time.Time
	initNumHeapAllocs uint64
}

// CostReport contains measurements since the tracker was started
type CostReport struct {
	RealTime      time.Duration
	UserTime      time.Duration
	SystemTime    time.Duration
	NumHeapAllocs uint64
	GCCPUFraction float64
}

// StartCostTracking creates a cost tracker and starts tracking
func StartCostTracking() *CostTracker {
	runtime.GC()
	ct := &CostTracker{}
	ct.initRealTime = time.Now()
	ct.initUserTime, ct.initSystemTime = getCPUTimes()
	{
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)
		ct.initNumHeapAllocs = memStats.Mallocs
	}
	return ct
}

// Report reports measurements since StartCostTracking
func (ct *CostTracker) Report() CostReport {
	runtime.GC()
	var report CostReport
	report.RealTime = time.Since(ct.initRealTime)
	userTime, systemTime := getCPUTimes()
	report.UserTime = userTime.Sub(ct.initUserTime)
	report.SystemTime = systemTime.Sub(ct.initSystemTime)
	{
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)
		report.NumHeapAllocs = memStats.Mallocs - ct.initNumHeapAllocs
		report.GCCPUFraction = memStats.GCCPUFraction
	}
	return report
}

func getCPUTimes() (time.Time, time.Time) {
	var rusage syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &rusage); err != nil {
		logger.Panic("failed to get resource usage: ", err)
	}
	return util.TimeFromTimeval(rusage.Utime), util.TimeFromTimeval(rusage.Stime)
}
