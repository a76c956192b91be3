// Package codec implements the self-describing, field-tagged binary
// encoding of a MeshFrame: a CBOR subset restricted to unsigned integers,
// byte/text strings, 32-bit floats, arrays and maps. Decoders skip unknown
// keys at every nesting level, so fields can be added without a version
// bump.
package codec

import (
	"errors"

	"github.com/zveasy/ol-rf-mesh/internal/telemetry"
)

// MaxFrameLen is the encoded-frame size budget in bytes. An encoder that
// would exceed it fails closed.
const MaxFrameLen = 256

var (
	// ErrFrameTooLarge is returned when a frame does not fit the
	// MaxFrameLen budget.
	ErrFrameTooLarge = errors.New("encoded frame exceeds maximum size")

	// ErrMalformed is returned when wire bytes do not conform to the
	// schema. The receive path drops such frames without touching the
	// replay window.
	ErrMalformed = errors.New("malformed frame")
)

// Top-level map keys.
const (
	keyHeader   = 1
	keySecurity = 2
	keyCounters = 3
	keyRF       = 4
	keyGps      = 5
	keyHealth   = 6
	keyRouting  = 7
	keyFault    = 8
	keyOta      = 9
)

// Encode serializes a frame to its tagged-map form. It returns
// ErrFrameTooLarge when the result would exceed MaxFrameLen; nothing of
// the oversized frame is observable.
func Encode(f *telemetry.MeshFrame) ([]byte, error) {
	w := &writer{}

	w.writeMapStart(9)

	// Header
	w.writeUint(keyHeader)
	w.writeMapStart(7)
	w.writeUint(1)
	w.writeUint(uint32(f.Header.Version))
	w.writeUint(2)
	w.writeUint(uint32(f.Header.MsgType))
	w.writeUint(3)
	w.writeUint(uint32(f.Header.TTL))
	w.writeUint(4)
	w.writeUint(uint32(f.Header.HopCount))
	w.writeUint(5)
	w.writeUint(f.Header.SeqNo)
	w.writeUint(6)
	w.writeText(clipNodeID(f.Header.SrcNodeID))
	w.writeUint(7)
	w.writeText(clipNodeID(f.Header.DestNodeID))

	// Security
	w.writeUint(keySecurity)
	w.writeMapStart(3)
	w.writeUint(1)
	w.writeBool(f.Security.Encrypted)
	w.writeUint(2)
	w.writeBytes(f.Security.Nonce[:])
	w.writeUint(3)
	w.writeBytes(f.Security.AuthTag[:])

	// Counters
	w.writeUint(keyCounters)
	w.writeMapStart(2)
	w.writeUint(1)
	w.writeUint(f.Counters.TxCounter)
	w.writeUint(2)
	w.writeUint(f.Counters.ReplayWindow)

	// RF event
	rf := &f.Telemetry.RFEvent
	w.writeUint(keyRF)
	w.writeMapStart(6)
	w.writeUint(1)
	w.writeUint(rf.TimestampMS)
	w.writeUint(2)
	w.writeUint(rf.CenterFreqHz)
	w.writeUint(3)
	w.writeFloat(rf.Features.AvgDBm)
	w.writeUint(4)
	w.writeFloat(rf.Features.PeakDBm)
	w.writeUint(5)
	w.writeFloat(rf.AnomalyScore)
	w.writeUint(6)
	w.writeUint(uint32(rf.ModelVersion))

	// GPS
	gps := &f.Telemetry.Gps
	w.writeUint(keyGps)
	w.writeMapStart(10)
	w.writeUint(1)
	w.writeUint(gps.TimestampMS)
	w.writeUint(2)
	w.writeFloat(gps.LatitudeDeg)
	w.writeUint(3)
	w.writeFloat(gps.LongitudeDeg)
	w.writeUint(4)
	w.writeFloat(gps.AltitudeM)
	w.writeUint(5)
	w.writeUint(uint32(gps.NumSats))
	w.writeUint(6)
	w.writeFloat(gps.HDOP)
	w.writeUint(7)
	w.writeBool(gps.ValidFix)
	w.writeUint(8)
	w.writeBool(gps.JammingDetected)
	w.writeUint(9)
	w.writeBool(gps.SpoofDetected)
	w.writeUint(10)
	w.writeFloat(gps.CN0DbHzAvg)

	// Health
	h := &f.Telemetry.Health
	w.writeUint(keyHealth)
	w.writeMapStart(5)
	w.writeUint(1)
	w.writeUint(h.TimestampMS)
	w.writeUint(2)
	w.writeFloat(h.BatteryV)
	w.writeUint(3)
	w.writeFloat(h.TempC)
	w.writeUint(4)
	w.writeFloat(h.IMUTiltDeg)
	w.writeUint(5)
	w.writeBool(h.TamperFlag)

	// Routing
	w.writeUint(keyRouting)
	encodeRouting(w, &f.Routing)

	// Fault
	w.writeUint(keyFault)
	w.writeMapStart(4)
	w.writeUint(1)
	w.writeBool(f.Fault.FaultActive)
	w.writeUint(2)
	w.writeUint(f.Fault.Counters.WatchdogResets)
	w.writeUint(3)
	w.writeUint(f.Fault.Counters.OtaFailures)
	w.writeUint(4)
	w.writeUint(f.Fault.Counters.TamperEvents)

	// OTA
	w.writeUint(keyOta)
	w.writeMapStart(4)
	w.writeUint(1)
	w.writeUint(uint32(f.Ota.State))
	w.writeUint(2)
	w.writeUint(f.Ota.CurrentOffset)
	w.writeUint(3)
	w.writeUint(f.Ota.TotalSize)
	w.writeUint(4)
	w.writeBool(f.Ota.SignatureValid)

	if w.overflow {
		return nil, ErrFrameTooLarge
	}
	out := make([]byte, w.n)
	copy(out, w.buf[:w.n])
	return out, nil
}

func encodeRouting(w *writer, r *telemetry.RoutingPayload) {
	count := len(r.Entries)
	if count > telemetry.MaxRoutes {
		count = telemetry.MaxRoutes
	}
	w.writeMapStart(4)
	w.writeUint(1)
	w.writeUint(r.EpochMS)
	w.writeUint(2)
	w.writeUint(r.Version)
	w.writeUint(3)
	w.writeArrayStart(count)
	for i := 0; i < count; i++ {
		e := &r.Entries[i]
		w.writeMapStart(4)
		w.writeUint(1)
		w.writeText(clipNodeID(e.NeighborID))
		// RSSI rides as its unsigned byte pattern; the decoder narrows
		// it back to int8.
		w.writeUint(2)
		w.writeUint(uint32(uint8(e.RSSIDBm)))
		w.writeUint(3)
		w.writeUint(uint32(e.LinkQuality))
		w.writeUint(4)
		w.writeUint(uint32(e.Cost))
	}
	w.writeUint(4)
	w.writeUint(uint32(count))
}

// clipNodeID bounds an identifier to the wire limit.
func clipNodeID(id string) string {
	if len(id) > telemetry.MaxNodeIDLen {
		return id[:telemetry.MaxNodeIDLen]
	}
	return id
}

// Decode parses a tagged-map frame. On error the returned frame is nil and
// no partial result is observable to the caller.
func Decode(data []byte) (*telemetry.MeshFrame, error) {
	r := &reader{data: data}
	f := &telemetry.MeshFrame{}

	topLen, err := r.readMapLen()
	if err != nil {
		return nil, err
	}
	for i := 0; i < topLen; i++ {
		key, err := r.readUint()
		if err != nil {
			return nil, err
		}
		switch key {
		case keyHeader:
			err = decodeHeader(r, &f.Header)
		case keySecurity:
			err = decodeSecurity(r, &f.Security)
		case keyCounters:
			err = decodeCounters(r, &f.Counters)
		case keyRF:
			err = decodeRFEvent(r, &f.Telemetry.RFEvent)
		case keyGps:
			err = decodeGps(r, &f.Telemetry.Gps)
		case keyHealth:
			err = decodeHealth(r, &f.Telemetry.Health)
		case keyRouting:
			err = decodeRouting(r, &f.Routing)
		case keyFault:
			err = decodeFault(r, &f.Fault)
		case keyOta:
			err = decodeOta(r, &f.Ota)
		default:
			err = r.skipValue()
		}
		if err != nil {
			return nil, err
		}
	}
	return f, nil
}

func decodeHeader(r *reader, h *telemetry.Header) error {
	mlen, err := r.readMapLen()
	if err != nil {
		return err
	}
	for i := 0; i < mlen; i++ {
		key, err := r.readUint()
		if err != nil {
			return err
		}
		switch key {
		case 1:
			v, err := r.readUint()
			if err != nil {
				return err
			}
			h.Version = uint8(v)
		case 2:
			v, err := r.readUint()
			if err != nil {
				return err
			}
			h.MsgType = telemetry.MsgType(v)
		case 3:
			v, err := r.readUint()
			if err != nil {
				return err
			}
			h.TTL = uint8(v)
		case 4:
			v, err := r.readUint()
			if err != nil {
				return err
			}
			h.HopCount = uint8(v)
		case 5:
			if h.SeqNo, err = r.readUint(); err != nil {
				return err
			}
		case 6:
			if h.SrcNodeID, err = r.readText(telemetry.MaxNodeIDLen); err != nil {
				return err
			}
		case 7:
			if h.DestNodeID, err = r.readText(telemetry.MaxNodeIDLen); err != nil {
				return err
			}
		default:
			if err := r.skipValue(); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodeSecurity(r *reader, s *telemetry.Security) error {
	mlen, err := r.readMapLen()
	if err != nil {
		return err
	}
	for i := 0; i < mlen; i++ {
		key, err := r.readUint()
		if err != nil {
			return err
		}
		switch key {
		case 1:
			if s.Encrypted, err = r.readBool(); err != nil {
				return err
			}
		case 2:
			if err := r.readBytesInto(s.Nonce[:]); err != nil {
				return err
			}
		case 3:
			if err := r.readBytesInto(s.AuthTag[:]); err != nil {
				return err
			}
		default:
			if err := r.skipValue(); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodeCounters(r *reader, c *telemetry.Counters) error {
	mlen, err := r.readMapLen()
	if err != nil {
		return err
	}
	for i := 0; i < mlen; i++ {
		key, err := r.readUint()
		if err != nil {
			return err
		}
		switch key {
		case 1:
			if c.TxCounter, err = r.readUint(); err != nil {
				return err
			}
		case 2:
			if c.ReplayWindow, err = r.readUint(); err != nil {
				return err
			}
		default:
			if err := r.skipValue(); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodeRFEvent(r *reader, rf *telemetry.RFEvent) error {
	mlen, err := r.readMapLen()
	if err != nil {
		return err
	}
	for i := 0; i < mlen; i++ {
		key, err := r.readUint()
		if err != nil {
			return err
		}
		switch key {
		case 1:
			if rf.TimestampMS, err = r.readUint(); err != nil {
				return err
			}
		case 2:
			if rf.CenterFreqHz, err = r.readUint(); err != nil {
				return err
			}
		case 3:
			if rf.Features.AvgDBm, err = r.readFloat(); err != nil {
				return err
			}
		case 4:
			if rf.Features.PeakDBm, err = r.readFloat(); err != nil {
				return err
			}
		case 5:
			if rf.AnomalyScore, err = r.readFloat(); err != nil {
				return err
			}
		case 6:
			v, err := r.readUint()
			if err != nil {
				return err
			}
			rf.ModelVersion = uint8(v)
		default:
			if err := r.skipValue(); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodeGps(r *reader, g *telemetry.GpsStatus) error {
	mlen, err := r.readMapLen()
	if err != nil {
		return err
	}
	for i := 0; i < mlen; i++ {
		key, err := r.readUint()
		if err != nil {
			return err
		}
		switch key {
		case 1:
			if g.TimestampMS, err = r.readUint(); err != nil {
				return err
			}
		case 2:
			if g.LatitudeDeg, err = r.readFloat(); err != nil {
				return err
			}
		case 3:
			if g.LongitudeDeg, err = r.readFloat(); err != nil {
				return err
			}
		case 4:
			if g.AltitudeM, err = r.readFloat(); err != nil {
				return err
			}
		case 5:
			v, err := r.readUint()
			if err != nil {
				return err
			}
			g.NumSats = uint8(v)
		case 6:
			if g.HDOP, err = r.readFloat(); err != nil {
				return err
			}
		case 7:
			if g.ValidFix, err = r.readBool(); err != nil {
				return err
			}
		case 8:
			if g.JammingDetected, err = r.readBool(); err != nil {
				return err
			}
		case 9:
			if g.SpoofDetected, err = r.readBool(); err != nil {
				return err
			}
		case 10:
			if g.CN0DbHzAvg, err = r.readFloat(); err != nil {
				return err
			}
		default:
			if err := r.skipValue(); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodeHealth(r *reader, h *telemetry.HealthStatus) error {
	mlen, err := r.readMapLen()
	if err != nil {
		return err
	}
	for i := 0; i < mlen; i++ {
		key, err := r.readUint()
		if err != nil {
			return err
		}
		switch key {
		case 1:
			if h.TimestampMS, err = r.readUint(); err != nil {
				return err
			}
		case 2:
			if h.BatteryV, err = r.readFloat(); err != nil {
				return err
			}
		case 3:
			if h.TempC, err = r.readFloat(); err != nil {
				return err
			}
		case 4:
			if h.IMUTiltDeg, err = r.readFloat(); err != nil {
				return err
			}
		case 5:
			if h.TamperFlag, err = r.readBool(); err != nil {
				return err
			}
		default:
			if err := r.skipValue(); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodeRouting(r *reader, p *telemetry.RoutingPayload) error {
	mlen, err := r.readMapLen()
	if err != nil {
		return err
	}
	for i := 0; i < mlen; i++ {
		key, err := r.readUint()
		if err != nil {
			return err
		}
		switch key {
		case 1:
			if p.EpochMS, err = r.readUint(); err != nil {
				return err
			}
		case 2:
			if p.Version, err = r.readUint(); err != nil {
				return err
			}
		case 3:
			arrLen, err := r.readArrayLen()
			if err != nil {
				return err
			}
			keep := arrLen
			if keep > telemetry.MaxRoutes {
				keep = telemetry.MaxRoutes
			}
			if keep > 0 {
				p.Entries = make([]telemetry.RouteEntry, keep)
			}
			for j := 0; j < keep; j++ {
				if err := decodeRouteEntry(r, &p.Entries[j]); err != nil {
					return err
				}
			}
			// Entries past capacity are skipped, not an error.
			for j := keep; j < arrLen; j++ {
				if err := r.skipValue(); err != nil {
					return err
				}
			}
		case 4:
			cnt, err := r.readUint()
			if err != nil {
				return err
			}
			if int(cnt) < len(p.Entries) {
				p.Entries = p.Entries[:cnt]
			}
		default:
			if err := r.skipValue(); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodeRouteEntry(r *reader, e *telemetry.RouteEntry) error {
	mlen, err := r.readMapLen()
	if err != nil {
		return err
	}
	for i := 0; i < mlen; i++ {
		key, err := r.readUint()
		if err != nil {
			return err
		}
		switch key {
		case 1:
			if e.NeighborID, err = r.readText(telemetry.MaxNodeIDLen); err != nil {
				return err
			}
		case 2:
			v, err := r.readUint()
			if err != nil {
				return err
			}
			e.RSSIDBm = int8(uint8(v))
		case 3:
			v, err := r.readUint()
			if err != nil {
				return err
			}
			e.LinkQuality = uint8(v)
		case 4:
			v, err := r.readUint()
			if err != nil {
				return err
			}
			e.Cost = uint8(v)
		default:
			if err := r.skipValue(); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodeFault(r *reader, f *telemetry.FaultStatus) error {
	mlen, err := r.readMapLen()
	if err != nil {
		return err
	}
	for i := 0; i < mlen; i++ {
		key, err := r.readUint()
		if err != nil {
			return err
		}
		switch key {
		case 1:
			if f.FaultActive, err = r.readBool(); err != nil {
				return err
			}
		case 2:
			if f.Counters.WatchdogResets, err = r.readUint(); err != nil {
				return err
			}
		case 3:
			if f.Counters.OtaFailures, err = r.readUint(); err != nil {
				return err
			}
		case 4:
			if f.Counters.TamperEvents, err = r.readUint(); err != nil {
				return err
			}
		default:
			if err := r.skipValue(); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodeOta(r *reader, o *telemetry.OtaStatus) error {
	mlen, err := r.readMapLen()
	if err != nil {
		return err
	}
	for i := 0; i < mlen; i++ {
		key, err := r.readUint()
		if err != nil {
			return err
		}
		switch key {
		case 1:
			v, err := r.readUint()
			if err != nil {
				return err
			}
			o.State = telemetry.OtaState(v)
		case 2:
			if o.CurrentOffset, err = r.readUint(); err != nil {
				return err
			}
		case 3:
			if o.TotalSize, err = r.readUint(); err != nil {
				return err
			}
		case 4:
			if o.SignatureValid, err = r.readBool(); err != nil {
				return err
			}
		default:
			if err := r.skipValue(); err != nil {
				return err
			}
		}
	}
	return nil
}
