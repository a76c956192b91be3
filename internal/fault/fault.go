// Package fault is the process-wide fault sink: a latched flag with the
// most recent message, plus counters that persist across mesh metric
// resets.
package fault

import (
	"log/slog"
	"sync"

	"github.com/zveasy/ol-rf-mesh/internal/logging"
	"github.com/zveasy/ol-rf-mesh/internal/metrics"
)

// Recorder aggregates fault events. All methods are safe for concurrent
// use; on the cooperative harness only one task runs at a time, but the
// run command drives tasks from a ticker goroutine while the CLI reads
// snapshots.
type Recorder struct {
	mu       sync.Mutex
	active   bool
	msg      string
	counters Counters
	log      *slog.Logger
	prom     *metrics.Metrics
}

// Counters are the persistent fault counters.
type Counters struct {
	WatchdogResets uint32
	OtaFailures    uint32
	TamperEvents   uint32
}

// Status is a point-in-time fault snapshot.
type Status struct {
	Active   bool
	Message  string
	Counters Counters
}

// NewRecorder creates a fault recorder. A nil logger discards output;
// prom, when set, mirrors the counters for scraping.
func NewRecorder(log *slog.Logger, prom *metrics.Metrics) *Recorder {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Recorder{log: log, prom: prom}
}

// Record latches the fault flag with msg.
func (r *Recorder) Record(msg string) {
	r.mu.Lock()
	r.active = true
	r.msg = msg
	r.mu.Unlock()
	r.log.Warn("fault recorded", logging.KeyComponent, "fault", "msg", msg)
}

// RecordWatchdogReset counts a missed watchdog budget. On hardware this
// would reset the task; the host model records it.
func (r *Recorder) RecordWatchdogReset() {
	r.mu.Lock()
	r.counters.WatchdogResets++
	r.mu.Unlock()
	if r.prom != nil {
		r.prom.WatchdogResets.Inc()
	}
	r.Record("Watchdog reset")
}

// RecordOtaFailure counts a failed OTA verify or apply.
func (r *Recorder) RecordOtaFailure() {
	r.mu.Lock()
	r.counters.OtaFailures++
	r.mu.Unlock()
	if r.prom != nil {
		r.prom.OtaFailures.Inc()
	}
	r.Record("OTA failure")
}

// RecordTamper counts a tamper detection from the health sensor.
func (r *Recorder) RecordTamper() {
	r.mu.Lock()
	r.counters.TamperEvents++
	r.mu.Unlock()
	if r.prom != nil {
		r.prom.TamperEvents.Inc()
	}
	r.Record("Tamper detected")
}

// ClearLatch drops the latched flag and message. Counters persist.
func (r *Recorder) ClearLatch() {
	r.mu.Lock()
	r.active = false
	r.msg = ""
	r.mu.Unlock()
}

// Status returns the current snapshot.
func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{Active: r.active, Message: r.msg, Counters: r.counters}
}
