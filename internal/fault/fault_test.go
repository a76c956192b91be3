package fault

import "testing"

func TestRecorder_Latch(t *testing.T) {
	r := NewRecorder(nil, nil)

	if s := r.Status(); s.Active {
		t.Error("new recorder should not be active")
	}

	r.Record("Transport queue full")
	s := r.Status()
	if !s.Active {
		t.Error("fault not latched")
	}
	if s.Message != "Transport queue full" {
		t.Errorf("message = %q", s.Message)
	}

	r.ClearLatch()
	if s := r.Status(); s.Active || s.Message != "" {
		t.Errorf("latch not cleared: %+v", s)
	}
}

func TestRecorder_CountersPersistAcrossClear(t *testing.T) {
	r := NewRecorder(nil, nil)

	r.RecordWatchdogReset()
	r.RecordWatchdogReset()
	r.RecordOtaFailure()
	r.RecordTamper()

	r.ClearLatch()

	s := r.Status()
	if s.Counters.WatchdogResets != 2 {
		t.Errorf("WatchdogResets = %d, want 2", s.Counters.WatchdogResets)
	}
	if s.Counters.OtaFailures != 1 {
		t.Errorf("OtaFailures = %d, want 1", s.Counters.OtaFailures)
	}
	if s.Counters.TamperEvents != 1 {
		t.Errorf("TamperEvents = %d, want 1", s.Counters.TamperEvents)
	}
}

func TestRecorder_EventLatchesMessage(t *testing.T) {
	r := NewRecorder(nil, nil)

	r.RecordTamper()
	if s := r.Status(); s.Message != "Tamper detected" {
		t.Errorf("message = %q, want %q", s.Message, "Tamper detected")
	}

	r.RecordWatchdogReset()
	if s := r.Status(); s.Message != "Watchdog reset" {
		t.Errorf("message = %q, want %q", s.Message, "Watchdog reset")
	}
}
