// Package model derives spectral features from an RF sample window and
// scores them for anomalies. The DFT is the O(N²) portable form; windows
// are at most 128 samples, so the host cost is negligible.
package model

import (
	"math"
	"math/cmplx"

	"github.com/zveasy/ol-rf-mesh/internal/telemetry"
)

// Version is the model version byte stamped on RF events.
const Version = 1

// ExtractFeatures computes magnitude-spectrum features for a window. An
// empty window yields zero features.
func ExtractFeatures(w *telemetry.RFSampleWindow) telemetry.RfFeatures {
	var features telemetry.RfFeatures
	n := w.SampleCount
	if n == 0 {
		return features
	}

	mags := spectrumMagnitudes(w.Samples[:n])

	var peak, sum float64
	for _, m := range mags {
		if m > peak {
			peak = m
		}
		sum += m
	}
	avg := sum / float64(len(mags))

	// Log scaling into dBm-like units for the dashboard.
	features.AvgDBm = float32(20*math.Log10(math.Max(avg, 1e-6)) - 30)
	features.PeakDBm = float32(20*math.Log10(math.Max(peak, 1e-6)) - 20)
	return features
}

// spectrumMagnitudes returns the normalized DFT magnitudes for bins
// 0..N/2.
func spectrumMagnitudes(samples []int16) []float64 {
	n := len(samples)
	invN := 1.0 / float64(n)
	mags := make([]float64, n/2+1)

	for k := range mags {
		var acc complex128
		for i, s := range samples {
			angle := -2 * math.Pi * float64(k*i) * invN
			acc += complex(float64(s)*math.Cos(angle), float64(s)*math.Sin(angle))
		}
		mags[k] = cmplx.Abs(acc) * invN
	}
	return mags
}

// Score maps features to an anomaly score in [0,1]: the normalized spread
// between peak and average energy.
func Score(features telemetry.RfFeatures) float32 {
	delta := features.PeakDBm - features.AvgDBm
	normalized := delta / 20.0
	if normalized < 0 {
		return 0
	}
	if normalized > 1 {
		return 1
	}
	return normalized
}
