// Package sensors defines the sources the scheduler polls each cycle and
// provides simulated implementations for host runs. Real deployments
// supply their own implementations backed by the ADC, GNSS receiver and
// board sensors.
package sensors

import "github.com/zveasy/ol-rf-mesh/internal/telemetry"

// RFSource produces raw sample windows from the radio front-end.
type RFSource interface {
	CollectWindow(nowMS uint32) telemetry.RFSampleWindow
}

// GPSSource reports GNSS status.
type GPSSource interface {
	ReadStatus(nowMS uint32) telemetry.GpsStatus
}

// HealthSource reports board health.
type HealthSource interface {
	ReadStatus(nowMS uint32) telemetry.HealthStatus
}

// SimRF is the host RF source: a ramp waveform with a spike injected at
// sample 5, matching what the bench ADC stub produces.
type SimRF struct {
	CenterFreqHz uint32
}

// CollectWindow implements RFSource.
func (s *SimRF) CollectWindow(nowMS uint32) telemetry.RFSampleWindow {
	w := telemetry.RFSampleWindow{
		TimestampMS:  nowMS,
		CenterFreqHz: s.CenterFreqHz,
		SampleCount:  telemetry.MaxRFSamples,
	}
	for i := 0; i < w.SampleCount; i++ {
		w.Samples[i] = int16(i % 64)
	}
	w.Samples[5] = 200
	return w
}

// SimGPS is the host GNSS source: a fixed valid fix.
type SimGPS struct{}

// ReadStatus implements GPSSource.
func (SimGPS) ReadStatus(nowMS uint32) telemetry.GpsStatus {
	return telemetry.GpsStatus{
		TimestampMS:  nowMS,
		LatitudeDeg:  37.7749,
		LongitudeDeg: -122.4194,
		AltitudeM:    10.0,
		NumSats:      7,
		HDOP:         1.2,
		ValidFix:     true,
		CN0DbHzAvg:   38.0,
	}
}

// SimHealth is the host health source: nominal battery and temperature.
// Tamper can be toggled to exercise the fault monitor.
type SimHealth struct {
	Tamper bool
}

// ReadStatus implements HealthSource.
func (s *SimHealth) ReadStatus(nowMS uint32) telemetry.HealthStatus {
	return telemetry.HealthStatus{
		TimestampMS: nowMS,
		BatteryV:    3.7,
		TempC:       25.0,
		IMUTiltDeg:  0.5,
		TamperFlag:  s.Tamper,
	}
}
