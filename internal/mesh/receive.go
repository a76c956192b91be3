package mesh

import (
	"errors"
	"log/slog"

	"github.com/zveasy/ol-rf-mesh/internal/codec"
	"github.com/zveasy/ol-rf-mesh/internal/logging"
	"github.com/zveasy/ol-rf-mesh/internal/metrics"
	"github.com/zveasy/ol-rf-mesh/internal/seal"
	"github.com/zveasy/ol-rf-mesh/internal/telemetry"
)

// ErrReplay is returned for a frame whose sequence number did not advance
// past the last accepted one from its source. Not a fault; the frame is
// simply discarded.
var ErrReplay = errors.New("sequence number replayed")

// LinkInfo describes the link an envelope arrived on, as observed by the
// PHY: signal strength and the advisory link-quality metric.
type LinkInfo struct {
	LinkQuality uint8
	RSSIDBm     int8
}

// Receiver is the ingress pipeline: decrypt, decode, replay-check, then
// route the frame to the routing table or the forwarder. The replay window
// is owned here, on the decode path.
type Receiver struct {
	state  *State
	key    []byte
	replay seal.ReplayWindow
	sender *Sender
	log    *slog.Logger
	prom   *metrics.Metrics
}

// NewReceiver wires a receiver over state. sender may be nil to disable
// forwarding (leaf nodes).
func NewReceiver(state *State, key []byte, sender *Sender, log *slog.Logger, prom *metrics.Metrics) *Receiver {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Receiver{state: state, key: key, sender: sender, log: log, prom: prom}
}

// Handle processes one received envelope. Malformed or tampered envelopes
// and replays come back as errors the caller may drop silently; the
// decoded frame is returned on success. Routing payloads are ingested;
// frames addressed elsewhere are forwarded under the TTL/duplicate guard.
func (r *Receiver) Handle(envelope []byte, link LinkInfo) (*telemetry.MeshFrame, error) {
	plain, err := seal.Decrypt(envelope, r.key)
	if err != nil {
		if r.prom != nil {
			r.prom.AuthFailures.Inc()
		}
		r.log.Debug("envelope rejected",
			logging.KeyComponent, "mesh",
			logging.KeyError, err)
		return nil, err
	}

	frame, err := codec.Decode(plain)
	if err != nil {
		if r.prom != nil {
			r.prom.DecodeErrors.Inc()
		}
		r.log.Debug("frame undecodable",
			logging.KeyComponent, "mesh",
			logging.KeyError, err)
		return nil, err
	}

	if !r.replay.CheckAndUpdate(frame.Header.SrcNodeID, frame.Header.SeqNo) {
		if r.prom != nil {
			r.prom.ReplayDrops.Inc()
		}
		return nil, ErrReplay
	}

	if r.prom != nil {
		r.prom.FramesReceived.Inc()
	}

	switch frame.Header.MsgType {
	case telemetry.MsgRouting:
		if r.state.Ingest(frame.Routing, frame.Header.SrcNodeID, link.LinkQuality, link.RSSIDBm) {
			r.state.SelectBestParent()
		}
	default:
		r.maybeForward(frame)
	}

	return frame, nil
}

// maybeForward relays a frame not addressed to this node, re-sealing it
// with the hop count the guard already incremented. Broadcast frames
// flood onward under the same guard; the seen window stops the echoes.
func (r *Receiver) maybeForward(frame *telemetry.MeshFrame) {
	if r.sender == nil {
		return
	}
	self := r.state.SelfID()
	if frame.Header.SrcNodeID == self || frame.Header.DestNodeID == self {
		return
	}
	relay := *frame
	if !r.state.ShouldForward(&relay) {
		return
	}
	if r.sender.Forward(&relay) && r.prom != nil {
		r.prom.FramesForwarded.Inc()
	}
}
