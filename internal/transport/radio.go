// Package transport provides the radio abstraction the mesh layer sends
// through, the retrying transport queue, and host-side radio backends.
package transport

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Radio is the single callback the core needs from a PHY driver: hand it a
// finished encrypted envelope, learn whether the air accepted it. A false
// return triggers the queue's retry path.
type Radio interface {
	Send(envelope []byte) bool
}

// RadioFunc adapts a plain function to the Radio interface.
type RadioFunc func(envelope []byte) bool

// Send implements Radio.
func (f RadioFunc) Send(envelope []byte) bool {
	return f(envelope)
}

// Mode identifies which PHY backs the radio. The choice does not affect
// core semantics; only the backend's own payload limits differ.
type Mode uint8

const (
	ModeEspNow Mode = iota
	ModeWifiRaw
	ModeLoRa
)

// espNowMaxPayload is the ESP-NOW per-packet payload limit in bytes.
const espNowMaxPayload = 250

// ErrUnknownMode is returned for a transport mode name that is not
// espnow, wifiraw or lora.
var ErrUnknownMode = errors.New("unknown radio transport mode")

// String returns the mode's configuration name.
func (m Mode) String() string {
	switch m {
	case ModeEspNow:
		return "espnow"
	case ModeWifiRaw:
		return "wifiraw"
	case ModeLoRa:
		return "lora"
	default:
		return "unknown"
	}
}

// ParseMode parses a configuration name into a Mode.
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(name) {
	case "espnow", "":
		return ModeEspNow, nil
	case "wifiraw":
		return ModeWifiRaw, nil
	case "lora":
		return ModeLoRa, nil
	default:
		return ModeEspNow, fmt.Errorf("%w: %q", ErrUnknownMode, name)
	}
}

// Driver multiplexes a backend Radio behind a selectable transport mode.
// The mode is observable and switchable at runtime; the backend callable
// stays the same, with ESP-NOW's payload limit enforced in that mode.
type Driver struct {
	mu      sync.Mutex
	mode    Mode
	backend Radio
}

// NewDriver wraps backend in mode. A nil backend accepts every send, which
// keeps host harnesses running without a radio attached.
func NewDriver(mode Mode, backend Radio) *Driver {
	return &Driver{mode: mode, backend: backend}
}

// SetTransport switches the active mode.
func (d *Driver) SetTransport(mode Mode) {
	d.mu.Lock()
	d.mode = mode
	d.mu.Unlock()
}

// CurrentTransport returns the active mode.
func (d *Driver) CurrentTransport() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// Send implements Radio.
func (d *Driver) Send(envelope []byte) bool {
	d.mu.Lock()
	mode := d.mode
	backend := d.backend
	d.mu.Unlock()

	if len(envelope) == 0 {
		return false
	}
	if mode == ModeEspNow && len(envelope) > espNowMaxPayload {
		return false
	}
	if backend == nil {
		return true
	}
	return backend.Send(envelope)
}

// Loopback is an in-memory radio that records every envelope it accepts.
// Tests and the status command use it as the far end of the link.
type Loopback struct {
	mu        sync.Mutex
	envelopes [][]byte

	// FailNext makes the next n sends report failure, driving the
	// queue's retry path.
	failNext int
}

// Send implements Radio.
func (l *Loopback) Send(envelope []byte) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failNext > 0 {
		l.failNext--
		return false
	}
	cp := make([]byte, len(envelope))
	copy(cp, envelope)
	l.envelopes = append(l.envelopes, cp)
	return true
}

// FailNext arranges for the next n sends to fail.
func (l *Loopback) FailNext(n int) {
	l.mu.Lock()
	l.failNext = n
	l.mu.Unlock()
}

// Envelopes returns the envelopes accepted so far.
func (l *Loopback) Envelopes() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]byte, len(l.envelopes))
	copy(out, l.envelopes)
	return out
}
