package mesh

import (
	"log/slog"

	"github.com/zveasy/ol-rf-mesh/internal/codec"
	"github.com/zveasy/ol-rf-mesh/internal/logging"
	"github.com/zveasy/ol-rf-mesh/internal/metrics"
	"github.com/zveasy/ol-rf-mesh/internal/seal"
	"github.com/zveasy/ol-rf-mesh/internal/telemetry"
	"github.com/zveasy/ol-rf-mesh/internal/transport"
)

const (
	// linkMTU is the per-fragment payload budget of the link layer.
	linkMTU = 200

	// maxFragments caps how many fragments one envelope may need.
	maxFragments = 3
)

// Sender turns frames into encrypted envelopes and hands them to the
// radio: TTL guard, nonce derivation, encode, seal, fragmentation guard.
// The transport queue calls Send for every delivery attempt.
type Sender struct {
	state *State
	key   []byte
	radio transport.Radio
	log   *slog.Logger
	prom  *metrics.Metrics
}

// NewSender wires a sender over state and radio with the mesh key.
func NewSender(state *State, key []byte, radio transport.Radio, log *slog.Logger, prom *metrics.Metrics) *Sender {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Sender{state: state, key: key, radio: radio, log: log, prom: prom}
}

// Send attempts to put one locally built frame on the air. It returns
// false both for frames the guards reject (these will never succeed and
// the queue drops them through its retry budget) and for radio failures
// worth retrying.
func (s *Sender) Send(frame *telemetry.MeshFrame) bool {
	h := &frame.Header
	if h.TTL == 0 || h.HopCount >= h.TTL {
		s.state.mu.Lock()
		s.state.metrics.TTLDrops++
		s.state.mu.Unlock()
		if s.prom != nil {
			s.prom.TTLDrops.Inc()
		}
		return false
	}
	return s.transmit(frame)
}

// Forward puts a relay frame on the air. ShouldForward already applied
// the TTL and duplicate guards and performed the one legitimate hop
// increment, so the frame may legitimately sit at hop_count == ttl here;
// re-running Send's guard would reject that final hop.
func (s *Sender) Forward(frame *telemetry.MeshFrame) bool {
	return s.transmit(frame)
}

func (s *Sender) transmit(frame *telemetry.MeshFrame) bool {
	h := &frame.Header

	if seal.IsZeroNonce(frame.Security.Nonce) {
		frame.Security.Nonce = seal.DeriveNonce(h.SeqNo, h.SrcNodeID)
	}

	plain, err := codec.Encode(frame)
	if err != nil {
		// Fail closed: nothing of an oversized frame reaches the wire.
		s.log.Warn("frame encode failed",
			logging.KeyComponent, "mesh",
			logging.KeySeqNo, h.SeqNo,
			logging.KeyError, err)
		return false
	}

	envelope, err := seal.Encrypt(plain, s.key, frame.Security.Nonce[:])
	if err != nil {
		s.log.Warn("frame seal failed",
			logging.KeyComponent, "mesh",
			logging.KeySeqNo, h.SeqNo,
			logging.KeyError, err)
		return false
	}

	fragments := (len(envelope) + linkMTU - 1) / linkMTU
	if fragments > maxFragments {
		s.state.noteFragmentsDropped()
		return false
	}
	if fragments > 1 {
		s.state.noteFragmentsSent(uint32(fragments))
	}

	s.log.Info("frame tx",
		logging.KeySeqNo, h.SeqNo,
		logging.KeyTTL, h.TTL,
		logging.KeyHops, h.HopCount,
		logging.KeyMsgType, h.MsgType.String(),
		logging.KeyLen, len(envelope),
		"rf_peak_dbm", frame.Telemetry.RFEvent.Features.PeakDBm,
		"gps_valid", frame.Telemetry.Gps.ValidFix,
		"battery_v", frame.Telemetry.Health.BatteryV,
		"routes", len(frame.Routing.Entries))

	if s.prom != nil {
		s.prom.EnvelopeBytes.Observe(float64(len(envelope)))
	}

	ok := s.radio.Send(envelope)
	if s.prom != nil {
		if ok {
			s.prom.FramesSent.Inc()
		} else {
			s.prom.SendFailures.Inc()
		}
	}
	return ok
}
