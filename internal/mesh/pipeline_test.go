package mesh

import (
	"errors"
	"testing"

	"github.com/zveasy/ol-rf-mesh/internal/seal"
	"github.com/zveasy/ol-rf-mesh/internal/telemetry"
	"github.com/zveasy/ol-rf-mesh/internal/transport"
)

func meshKey() []byte {
	key := make([]byte, seal.KeySize)
	for i := range key {
		key[i] = 0x11
	}
	return key
}

func telemetryFrame(src string, seq uint32) *telemetry.MeshFrame {
	f := &telemetry.MeshFrame{}
	f.Header = telemetry.Header{
		Version:   1,
		MsgType:   telemetry.MsgTelemetry,
		TTL:       4,
		HopCount:  0,
		SeqNo:     seq,
		SrcNodeID: src,
	}
	f.Security.Encrypted = true
	f.Counters.TxCounter = seq
	return f
}

func TestSendReceive_RoundTrip(t *testing.T) {
	key := meshKey()
	lb := &transport.Loopback{}

	tx := NewState("tx", nil, nil)
	sender := NewSender(tx, key, lb, nil, nil)

	frame := telemetryFrame("tx", 7)
	if !sender.Send(frame) {
		t.Fatal("Send failed")
	}

	envs := lb.Envelopes()
	if len(envs) != 1 {
		t.Fatalf("envelopes = %d, want 1", len(envs))
	}
	if len(envs[0]) > seal.MaxEnvelopeLen {
		t.Errorf("envelope length %d exceeds %d", len(envs[0]), seal.MaxEnvelopeLen)
	}

	rx := NewState("rx", nil, nil)
	receiver := NewReceiver(rx, key, nil, nil, nil)

	got, err := receiver.Handle(envs[0], LinkInfo{LinkQuality: 200, RSSIDBm: -55})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got.Header.SeqNo != 7 || got.Header.SrcNodeID != "tx" {
		t.Errorf("decoded header = %+v", got.Header)
	}
}

func TestSend_DerivesNonceWhenZero(t *testing.T) {
	key := meshKey()
	lb := &transport.Loopback{}
	s := NewState("tx", nil, nil)
	sender := NewSender(s, key, lb, nil, nil)

	frame := telemetryFrame("tx", 99)
	if !sender.Send(frame) {
		t.Fatal("Send failed")
	}
	want := seal.DeriveNonce(99, "tx")
	if frame.Security.Nonce != want {
		t.Errorf("nonce = %x, want derived %x", frame.Security.Nonce, want)
	}
}

func TestSend_RespectsCallerNonce(t *testing.T) {
	key := meshKey()
	lb := &transport.Loopback{}
	s := NewState("tx", nil, nil)
	sender := NewSender(s, key, lb, nil, nil)

	frame := telemetryFrame("tx", 99)
	frame.Security.Nonce = [12]byte{9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9}
	if !sender.Send(frame) {
		t.Fatal("Send failed")
	}

	env := lb.Envelopes()[0]
	for i := 0; i < 12; i++ {
		if env[i] != 9 {
			t.Fatalf("envelope nonce byte %d = %d, want 9", i, env[i])
		}
	}
}

func TestSend_TTLGuard(t *testing.T) {
	key := meshKey()
	lb := &transport.Loopback{}
	s := NewState("tx", nil, nil)
	sender := NewSender(s, key, lb, nil, nil)

	frame := telemetryFrame("tx", 1)
	frame.Header.TTL = 2
	frame.Header.HopCount = 2
	if sender.Send(frame) {
		t.Error("frame at TTL limit should not send")
	}
	if m := s.Metrics(); m.TTLDrops != 1 {
		t.Errorf("TTLDrops = %d, want 1", m.TTLDrops)
	}
	if len(lb.Envelopes()) != 0 {
		t.Error("nothing should reach the radio")
	}
}

func TestReceive_TamperedEnvelopeRejected(t *testing.T) {
	key := meshKey()
	lb := &transport.Loopback{}
	tx := NewState("tx", nil, nil)
	sender := NewSender(tx, key, lb, nil, nil)
	if !sender.Send(telemetryFrame("tx", 5)) {
		t.Fatal("Send failed")
	}

	env := lb.Envelopes()[0]
	env[len(env)-1] ^= 0xFF

	rx := NewState("rx", nil, nil)
	receiver := NewReceiver(rx, key, nil, nil, nil)
	if _, err := receiver.Handle(env, LinkInfo{}); !errors.Is(err, seal.ErrAuthFailed) {
		t.Errorf("Handle error = %v, want ErrAuthFailed", err)
	}
}

func TestReceive_ReplaySuppressed(t *testing.T) {
	key := meshKey()
	lb := &transport.Loopback{}
	tx := NewState("tx", nil, nil)
	sender := NewSender(tx, key, lb, nil, nil)
	if !sender.Send(telemetryFrame("tx", 5)) {
		t.Fatal("Send failed")
	}
	env := lb.Envelopes()[0]

	rx := NewState("rx", nil, nil)
	receiver := NewReceiver(rx, key, nil, nil, nil)

	if _, err := receiver.Handle(env, LinkInfo{}); err != nil {
		t.Fatalf("first Handle: %v", err)
	}
	if _, err := receiver.Handle(env, LinkInfo{}); !errors.Is(err, ErrReplay) {
		t.Errorf("second Handle error = %v, want ErrReplay", err)
	}
}

func TestReceive_RoutingFrameIngested(t *testing.T) {
	key := meshKey()
	lb := &transport.Loopback{}
	tx := NewState("neighbor", nil, nil)
	sender := NewSender(tx, key, lb, nil, nil)

	frame := telemetryFrame("neighbor", 3)
	frame.Header.MsgType = telemetry.MsgRouting
	frame.Routing = telemetry.RoutingPayload{
		Version: 1,
		Entries: []telemetry.RouteEntry{
			{NeighborID: "C", LinkQuality: 150, RSSIDBm: -70, Cost: 1},
		},
	}
	if !sender.Send(frame) {
		t.Fatal("Send failed")
	}

	rx := NewState("rx", nil, nil)
	receiver := NewReceiver(rx, key, nil, nil, nil)
	if _, err := receiver.Handle(lb.Envelopes()[0], LinkInfo{LinkQuality: 200, RSSIDBm: -50}); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	snap := rx.Snapshot(0)
	found := map[string]bool{}
	for _, e := range snap.Entries {
		found[e.NeighborID] = true
	}
	if !found["neighbor"] || !found["C"] {
		t.Errorf("routing not ingested: %+v", snap.Entries)
	}
}

func TestReceive_ForwardsFrameForOtherNode(t *testing.T) {
	key := meshKey()

	// tx -> relay -> (air): relay's own radio records the re-sent frame.
	txRadio := &transport.Loopback{}
	tx := NewState("tx", nil, nil)
	txSender := NewSender(tx, key, txRadio, nil, nil)

	frame := telemetryFrame("tx", 11)
	frame.Header.DestNodeID = "gw"
	if !txSender.Send(frame) {
		t.Fatal("Send failed")
	}

	relayRadio := &transport.Loopback{}
	relay := NewState("relay", nil, nil)
	relaySender := NewSender(relay, key, relayRadio, nil, nil)
	receiver := NewReceiver(relay, key, relaySender, nil, nil)

	if _, err := receiver.Handle(txRadio.Envelopes()[0], LinkInfo{}); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	relayed := relayRadio.Envelopes()
	if len(relayed) != 1 {
		t.Fatalf("relayed envelopes = %d, want 1", len(relayed))
	}

	// The relayed frame advanced its hop count.
	gw := NewState("gw", nil, nil)
	gwReceiver := NewReceiver(gw, key, nil, nil, nil)
	got, err := gwReceiver.Handle(relayed[0], LinkInfo{})
	if err != nil {
		t.Fatalf("gateway Handle: %v", err)
	}
	if got.Header.HopCount != 1 {
		t.Errorf("HopCount = %d, want 1", got.Header.HopCount)
	}

	// The same envelope again is a duplicate for the relay.
	if _, err := receiver.Handle(txRadio.Envelopes()[0], LinkInfo{}); !errors.Is(err, ErrReplay) {
		t.Errorf("duplicate at relay: error = %v, want ErrReplay", err)
	}
}

func TestReceive_ForwardsAtFinalHop(t *testing.T) {
	// A frame arriving at hop_count = ttl-1 is the relay's last
	// legitimate hop: ShouldForward accepts it and raises the hop count
	// to the TTL, and the relay must still transmit it.
	key := meshKey()
	txRadio := &transport.Loopback{}
	tx := NewState("tx", nil, nil)
	txSender := NewSender(tx, key, txRadio, nil, nil)

	frame := telemetryFrame("tx", 21)
	frame.Header.DestNodeID = "gw"
	frame.Header.TTL = 4
	frame.Header.HopCount = 3
	if !txSender.Send(frame) {
		t.Fatal("Send failed")
	}

	relayRadio := &transport.Loopback{}
	relay := NewState("relay", nil, nil)
	relaySender := NewSender(relay, key, relayRadio, nil, nil)
	receiver := NewReceiver(relay, key, relaySender, nil, nil)

	if _, err := receiver.Handle(txRadio.Envelopes()[0], LinkInfo{}); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	relayed := relayRadio.Envelopes()
	if len(relayed) != 1 {
		t.Fatalf("relayed envelopes = %d, want 1 (final hop must still fly)", len(relayed))
	}
	if m := relay.Metrics(); m.TTLDrops != 0 {
		t.Errorf("TTLDrops = %d, want 0 for an accepted forward", m.TTLDrops)
	}

	gw := NewState("gw", nil, nil)
	gwReceiver := NewReceiver(gw, key, nil, nil, nil)
	got, err := gwReceiver.Handle(relayed[0], LinkInfo{})
	if err != nil {
		t.Fatalf("gateway Handle: %v", err)
	}
	if got.Header.HopCount != got.Header.TTL {
		t.Errorf("HopCount = %d, want ttl %d", got.Header.HopCount, got.Header.TTL)
	}
}

func TestPipeline_DeliveryUnderChurn(t *testing.T) {
	// Five frames through the retrying queue over a lossy radio: every
	// third radio attempt fails, all five frames still arrive in order.
	key := meshKey()
	lb := &transport.Loopback{}
	tx := NewState("tx", nil, nil)
	sender := NewSender(tx, key, lb, nil, nil)

	drops := 0
	q := transport.NewQueue(func() { drops++ }, nil)

	attempt := 0
	lossy := func(f *telemetry.MeshFrame) bool {
		attempt++
		if attempt%3 == 0 {
			return false
		}
		return sender.Send(f)
	}

	rx := NewState("rx", nil, nil)
	receiver := NewReceiver(rx, key, nil, nil, nil)

	now := uint32(0)
	nextSeq := uint32(1)
	var seenSeqs []uint32
	for tick := 0; tick < 200 && len(seenSeqs) < 5; tick++ {
		if nextSeq <= 5 && q.Push(*telemetryFrame("tx", nextSeq)) {
			nextSeq++
		}
		q.Service(now, lossy)
		now += 250

		for _, env := range lb.Envelopes()[len(seenSeqs):] {
			frame, err := receiver.Handle(env, LinkInfo{})
			if err != nil {
				t.Fatalf("Handle: %v", err)
			}
			seenSeqs = append(seenSeqs, frame.Header.SeqNo)
		}
	}

	if drops != 0 {
		t.Errorf("retry drops = %d, want 0", drops)
	}
	if len(seenSeqs) != 5 {
		t.Fatalf("delivered = %d frames, want 5 (%v)", len(seenSeqs), seenSeqs)
	}
	for i := 1; i < len(seenSeqs); i++ {
		if seenSeqs[i] <= seenSeqs[i-1] {
			t.Fatalf("sequence numbers not strictly increasing: %v", seenSeqs)
		}
	}
}
