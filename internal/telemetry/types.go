// Package telemetry defines the data model shared by the codec, the mesh
// layer and the scheduler: the MeshFrame and every struct it carries.
package telemetry

// Wire-facing size limits. These mirror the on-air budget of the node and
// bound every buffer in the codec and envelope layers.
const (
	// MaxNodeIDLen is the maximum length of a node identifier in bytes,
	// not counting the terminator the 16-byte wire buffer reserves.
	MaxNodeIDLen = 15

	// MaxRFSamples is the capacity of an RF sample window.
	MaxRFSamples = 128

	// MaxRoutes is the capacity of the routing table and of the routing
	// payload carried in a frame.
	MaxRoutes = 8

	// NonceLen is the envelope nonce length in bytes.
	NonceLen = 12

	// AuthTagLen is the envelope authenticator tag length in bytes.
	AuthTagLen = 16
)

// MsgType identifies the kind of payload a frame carries.
type MsgType uint8

const (
	MsgTelemetry MsgType = 1
	MsgRouting   MsgType = 2
	MsgControl   MsgType = 3
	MsgOta       MsgType = 4
)

// String returns the lowercase name of the message type.
func (t MsgType) String() string {
	switch t {
	case MsgTelemetry:
		return "telemetry"
	case MsgRouting:
		return "routing"
	case MsgControl:
		return "control"
	case MsgOta:
		return "ota"
	default:
		return "unknown"
	}
}

// RFSampleWindow is one producer/consumer buffer of raw radio samples.
type RFSampleWindow struct {
	TimestampMS  uint32
	CenterFreqHz uint32
	Samples      [MaxRFSamples]int16
	SampleCount  int
}

// RfFeatures is the small feature vector derived from a sample window.
type RfFeatures struct {
	AvgDBm  float32
	PeakDBm float32
}

// RFEvent is the output of one scan+inference cycle.
type RFEvent struct {
	TimestampMS  uint32
	CenterFreqHz uint32
	Features     RfFeatures
	AnomalyScore float32
	ModelVersion uint8
}

// GpsStatus is the latest GNSS reading.
type GpsStatus struct {
	TimestampMS     uint32
	LatitudeDeg     float32
	LongitudeDeg    float32
	AltitudeM       float32
	NumSats         uint8
	HDOP            float32
	ValidFix        bool
	JammingDetected bool
	SpoofDetected   bool
	CN0DbHzAvg      float32
}

// HealthStatus is the latest board health reading.
type HealthStatus struct {
	TimestampMS uint32
	BatteryV    float32
	TempC       float32
	IMUTiltDeg  float32
	TamperFlag  bool
}

// Header carries addressing and loop-control state for a frame.
type Header struct {
	Version  uint8
	MsgType  MsgType
	TTL      uint8
	HopCount uint8
	SeqNo    uint32
	// SrcNodeID and DestNodeID are short text tokens of at most
	// MaxNodeIDLen bytes. An empty DestNodeID means broadcast.
	SrcNodeID  string
	DestNodeID string
}

// Security carries the envelope parameters stamped on a frame. A nonce of
// all zeros asks the envelope layer to derive one from SeqNo and SrcNodeID.
type Security struct {
	Encrypted bool
	Nonce     [NonceLen]byte
	AuthTag   [AuthTagLen]byte
}

// Counters mirrors transmit-side state into the frame for the receiver.
// ReplayWindow is advisory; the receiver's own window is authoritative.
type Counters struct {
	TxCounter    uint32
	ReplayWindow uint32
}

// RouteEntry is one row of the routing table: a neighbor and the metrics
// used to rank it as a parent candidate.
type RouteEntry struct {
	NeighborID  string
	RSSIDBm     int8
	LinkQuality uint8
	Cost        uint8
}

// RoutingPayload is the bounded routing snapshot advertised in frames.
// Entries holds at most MaxRoutes rows, sorted by (link quality descending,
// cost ascending).
type RoutingPayload struct {
	EpochMS uint32
	Version uint32
	Entries []RouteEntry
}

// TelemetryPayload groups the sensor-derived slots snapshotted per cycle.
type TelemetryPayload struct {
	RFEvent RFEvent
	Gps     GpsStatus
	Health  HealthStatus
}

// FaultCounters are the persistent fault counters. They survive mesh
// metric resets.
type FaultCounters struct {
	WatchdogResets uint32
	OtaFailures    uint32
	TamperEvents   uint32
}

// FaultStatus is the fault snapshot carried in frames.
type FaultStatus struct {
	FaultActive bool
	Counters    FaultCounters
}

// OtaState enumerates the OTA session state machine.
type OtaState uint8

const (
	OtaIdle OtaState = iota
	OtaDownloading
	OtaVerifying
	OtaApplying
	OtaRollback
	OtaFailed
)

// String returns the lowercase name of the OTA state.
func (s OtaState) String() string {
	switch s {
	case OtaIdle:
		return "idle"
	case OtaDownloading:
		return "downloading"
	case OtaVerifying:
		return "verifying"
	case OtaApplying:
		return "applying"
	case OtaRollback:
		return "rollback"
	case OtaFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// OtaStatus is the OTA snapshot carried in frames.
type OtaStatus struct {
	State          OtaState
	CurrentOffset  uint32
	TotalSize      uint32
	SignatureValid bool
}

// MeshFrame is the unit of communication: everything the node ships to the
// gateway each cycle. Values are transient, built by the packet builder and
// consumed by the transport queue.
type MeshFrame struct {
	Header    Header
	Security  Security
	Counters  Counters
	Telemetry TelemetryPayload
	Routing   RoutingPayload
	Fault     FaultStatus
	Ota       OtaStatus
}
