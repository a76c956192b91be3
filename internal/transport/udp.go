package transport

import (
	"log/slog"
	"net"

	"golang.org/x/time/rate"

	"github.com/zveasy/ol-rf-mesh/internal/logging"
)

// UDPRadio broadcasts envelopes as UDP datagrams, standing in for the PHY
// on host deployments where nodes share a LAN instead of an air interface.
// Sends are rate-limited so a fast harness cannot flood the segment.
type UDPRadio struct {
	conn    *net.UDPConn
	limiter *rate.Limiter
	log     *slog.Logger
}

// NewUDPRadio dials the broadcast/unicast address addr (host:port) and
// paces sends at sendsPerSec with a burst of one. A zero or negative rate
// disables pacing.
func NewUDPRadio(addr string, sendsPerSec float64, log *slog.Logger) (*UDPRadio, error) {
	if log == nil {
		log = logging.NopLogger()
	}
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if sendsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(sendsPerSec), 1)
	}
	return &UDPRadio{conn: conn, limiter: limiter, log: log}, nil
}

// Send implements Radio. A paced-out or failed write reports false so the
// queue retries later.
func (r *UDPRadio) Send(envelope []byte) bool {
	if r.limiter != nil && !r.limiter.Allow() {
		return false
	}
	if _, err := r.conn.Write(envelope); err != nil {
		r.log.Warn("udp send failed",
			logging.KeyComponent, "transport",
			logging.KeyError, err)
		return false
	}
	return true
}

// Close releases the socket.
func (r *UDPRadio) Close() error {
	return r.conn.Close()
}
