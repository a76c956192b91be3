// Package ota models the firmware update session the node reports in its
// telemetry: chunk ingestion, signature verification and the resulting
// state machine.
package ota

import (
	"log/slog"
	"sync"

	"github.com/zveasy/ol-rf-mesh/internal/fault"
	"github.com/zveasy/ol-rf-mesh/internal/logging"
	"github.com/zveasy/ol-rf-mesh/internal/telemetry"
)

// Chunk is one contiguous piece of an image download.
type Chunk struct {
	Offset uint32
	Data   []byte
}

// Session tracks one OTA download. A failed verify records an OTA fault.
type Session struct {
	mu     sync.Mutex
	status telemetry.OtaStatus
	faults *fault.Recorder
	log    *slog.Logger
}

// NewSession creates an idle session. faults and log may be nil.
func NewSession(faults *fault.Recorder, log *slog.Logger) *Session {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Session{faults: faults, log: log}
}

// ApplyChunk ingests one chunk, moving an idle session to Downloading and
// advancing the offset. TotalSize grows with the stream until the
// announced size arrives via SetTotalSize.
func (s *Session) ApplyChunk(c Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.State == telemetry.OtaIdle {
		s.status.State = telemetry.OtaDownloading
	}
	s.status.CurrentOffset = c.Offset + uint32(len(c.Data))
	if s.status.TotalSize < s.status.CurrentOffset {
		s.status.TotalSize = s.status.CurrentOffset
	}
	s.log.Debug("ota chunk",
		logging.KeyComponent, "ota",
		"offset", c.Offset,
		logging.KeyLen, len(c.Data))
}

// SetTotalSize records the announced image size.
func (s *Session) SetTotalSize(size uint32) {
	s.mu.Lock()
	s.status.TotalSize = size
	s.mu.Unlock()
}

// VerifyAndMark runs the signature check outcome through the state
// machine: valid images move to Applying, invalid ones to Failed with an
// OTA fault recorded.
func (s *Session) VerifyAndMark(signatureValid bool) bool {
	s.mu.Lock()
	s.status.State = telemetry.OtaVerifying
	s.status.SignatureValid = signatureValid
	if signatureValid {
		s.status.State = telemetry.OtaApplying
	} else {
		s.status.State = telemetry.OtaFailed
	}
	s.mu.Unlock()

	if !signatureValid && s.faults != nil {
		s.faults.RecordOtaFailure()
	}
	return signatureValid
}

// Rollback marks the session rolled back after a failed apply.
func (s *Session) Rollback() {
	s.mu.Lock()
	s.status.State = telemetry.OtaRollback
	s.mu.Unlock()
	if s.faults != nil {
		s.faults.RecordOtaFailure()
	}
}

// Reset returns the session to idle.
func (s *Session) Reset() {
	s.mu.Lock()
	s.status = telemetry.OtaStatus{}
	s.mu.Unlock()
}

// Status returns the current snapshot for telemetry.
func (s *Session) Status() telemetry.OtaStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}
