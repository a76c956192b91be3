package model

import (
	"testing"

	"github.com/zveasy/ol-rf-mesh/internal/sensors"
	"github.com/zveasy/ol-rf-mesh/internal/telemetry"
)

func TestExtractFeatures_EmptyWindow(t *testing.T) {
	w := &telemetry.RFSampleWindow{}
	if got := ExtractFeatures(w); got != (telemetry.RfFeatures{}) {
		t.Errorf("features = %+v, want zero", got)
	}
}

func TestExtractFeatures_PeakAboveAverage(t *testing.T) {
	src := &sensors.SimRF{CenterFreqHz: 915000000}
	w := src.CollectWindow(0)

	features := ExtractFeatures(&w)
	if features.PeakDBm <= features.AvgDBm {
		t.Errorf("peak %.2f should exceed average %.2f for a ramp+spike window",
			features.PeakDBm, features.AvgDBm)
	}
}

func TestExtractFeatures_Deterministic(t *testing.T) {
	src := &sensors.SimRF{CenterFreqHz: 915000000}
	w1 := src.CollectWindow(100)
	w2 := src.CollectWindow(200)

	// Same samples regardless of timestamp.
	if ExtractFeatures(&w1) != ExtractFeatures(&w2) {
		t.Error("features should depend only on samples")
	}
}

func TestScore_Bounds(t *testing.T) {
	tests := []struct {
		name     string
		features telemetry.RfFeatures
		want     float32
	}{
		{"peak below average clamps to zero", telemetry.RfFeatures{AvgDBm: -40, PeakDBm: -60}, 0},
		{"huge spread clamps to one", telemetry.RfFeatures{AvgDBm: -90, PeakDBm: -10}, 1},
		{"mid spread scales linearly", telemetry.RfFeatures{AvgDBm: -60, PeakDBm: -50}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Score(tt.features); got != tt.want {
				t.Errorf("Score(%+v) = %v, want %v", tt.features, got, tt.want)
			}
		})
	}
}

func TestScore_AlwaysInRange(t *testing.T) {
	for avg := float32(-120); avg <= 0; avg += 17 {
		for peak := float32(-120); peak <= 0; peak += 13 {
			s := Score(telemetry.RfFeatures{AvgDBm: avg, PeakDBm: peak})
			if s < 0 || s > 1 {
				t.Fatalf("Score out of range: avg=%v peak=%v score=%v", avg, peak, s)
			}
		}
	}
}
