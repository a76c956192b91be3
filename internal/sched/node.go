package sched

import (
	"context"
	"log/slog"
	"time"

	"github.com/zveasy/ol-rf-mesh/internal/config"
	"github.com/zveasy/ol-rf-mesh/internal/fault"
	"github.com/zveasy/ol-rf-mesh/internal/logging"
	"github.com/zveasy/ol-rf-mesh/internal/mesh"
	"github.com/zveasy/ol-rf-mesh/internal/metrics"
	"github.com/zveasy/ol-rf-mesh/internal/model"
	"github.com/zveasy/ol-rf-mesh/internal/ota"
	"github.com/zveasy/ol-rf-mesh/internal/recovery"
	"github.com/zveasy/ol-rf-mesh/internal/sensors"
	"github.com/zveasy/ol-rf-mesh/internal/telemetry"
	"github.com/zveasy/ol-rf-mesh/internal/transport"
)

// slot is one scheduled task: its config, body, heartbeat and next
// release.
type slot struct {
	cfg           TaskConfig
	fn            func(nowMS uint32)
	lastBeatMS    uint32
	nextReleaseMS uint32
}

// Options injects the node's external collaborators. Zero values select
// host defaults: a permissive radio driver, simulated sensors, a no-op
// watchdog.
type Options struct {
	Radio    transport.Radio
	RF       sensors.RFSource
	GPS      sensors.GPSSource
	Health   sensors.HealthSource
	Watchdog Watchdog
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// Node owns all process-wide state — mesh state, fault recorder, transport
// queue, sensor slots, sequence counter — and drives the task plan over
// it. Task bodies never block; they read the latest-value slots and
// return.
type Node struct {
	cfg *config.Config
	key []byte

	state    *mesh.State
	faults   *fault.Recorder
	otaSess  *ota.Session
	queue    *transport.Queue
	sender   *mesh.Sender
	receiver *mesh.Receiver

	rf       sensors.RFSource
	gps      sensors.GPSSource
	health   sensors.HealthSource
	watchdog Watchdog
	log      *slog.Logger

	seqNo uint32

	// Latest-value cells. Each has one writer task and one reader (the
	// packet builder); the cooperative driver serializes access.
	lastWindow telemetry.RFSampleWindow
	lastEvent  telemetry.RFEvent
	lastGps    telemetry.GpsStatus
	lastHealth telemetry.HealthStatus

	prevTamper bool

	slots []slot
}

// TaskHeartbeat is a task's last-execution timestamp.
type TaskHeartbeat struct {
	Name       string
	LastBeatMS uint32
}

// Status is a snapshot of the node for tests and the operator.
type Status struct {
	Heartbeats []TaskHeartbeat
	Faults     fault.Status
	Mesh       mesh.Metrics
	Parent     telemetry.RouteEntry
	SeqNo      uint32
	QueueLen   int
}

// NewNode builds a node from cfg, filling unset options with host
// defaults.
func NewNode(cfg *config.Config, opts Options) (*Node, error) {
	key, err := cfg.Key()
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logging.NopLogger()
	}

	radio := opts.Radio
	if radio == nil {
		mode, err := transport.ParseMode(cfg.Radio.Transport)
		if err != nil {
			return nil, err
		}
		radio = transport.NewDriver(mode, nil)
	}

	n := &Node{
		cfg:      cfg,
		key:      key,
		faults:   fault.NewRecorder(log, opts.Metrics),
		rf:       opts.RF,
		gps:      opts.GPS,
		health:   opts.Health,
		watchdog: opts.Watchdog,
		log:      log,
	}
	if n.rf == nil {
		n.rf = &sensors.SimRF{CenterFreqHz: cfg.Node.RFCenterFreqHz}
	}
	if n.gps == nil {
		n.gps = sensors.SimGPS{}
	}
	if n.health == nil {
		n.health = &sensors.SimHealth{}
	}
	if n.watchdog == nil {
		n.watchdog = NopWatchdog{}
	}

	n.state = mesh.NewState(cfg.Node.ID, log, opts.Metrics)
	n.otaSess = ota.NewSession(n.faults, log)
	n.sender = mesh.NewSender(n.state, key, radio, log, opts.Metrics)
	n.receiver = mesh.NewReceiver(n.state, key, n.sender, log, opts.Metrics)
	n.queue = transport.NewQueue(func() {
		n.faults.Record("Transport retries exceeded")
		n.state.NoteRetryDrop()
	}, opts.Metrics)

	n.initSlots()
	n.registerWatchdog()
	return n, nil
}

func (n *Node) initSlots() {
	bodies := map[string]func(uint32){
		TaskFaultMonitor:  n.faultMonitorTask,
		TaskRFScan:        n.rfScanTask,
		TaskFFT:           n.fftTask,
		TaskPacketBuilder: n.packetBuilderTask,
		TaskTransport:     n.transportTask,
		TaskGNSS:          n.gnssTask,
		TaskSensorHealth:  n.healthTask,
		TaskOta:           n.otaTask,
	}
	n.slots = make([]slot, 0, TaskCount)
	for _, cfg := range TaskPlan() {
		n.slots = append(n.slots, slot{cfg: cfg, fn: bodies[cfg.Name]})
	}
	sortByRelease(n.slots)
}

func (n *Node) registerWatchdog() {
	var maxBudget uint32
	for _, cfg := range plan {
		if cfg.WatchdogProtected && cfg.WatchdogBudgetMS > maxBudget {
			maxBudget = cfg.WatchdogBudgetMS
		}
	}
	n.watchdog.Init(maxBudget)
	for _, cfg := range plan {
		if cfg.WatchdogProtected {
			n.watchdog.RegisterTask(cfg.Name, cfg.WatchdogBudgetMS)
		}
	}
}

// RunCycle advances every task whose period has expired at nowMS, in the
// stable (priority desc, period asc) order, then enforces watchdog
// budgets. Calling it with a monotone series of timestamps reproduces the
// device's observable state exactly.
func (n *Node) RunCycle(nowMS uint32) {
	for i := range n.slots {
		s := &n.slots[i]
		if nowMS >= s.nextReleaseMS {
			recovery.Protect(n.log, s.cfg.Name, func(any) {
				n.faults.Record("Task panic: " + s.cfg.Name)
			}, func() {
				s.fn(nowMS)
			})
			s.lastBeatMS = nowMS
			s.nextReleaseMS = nowMS + s.cfg.PeriodMS
			if s.cfg.WatchdogProtected {
				n.watchdog.Feed(s.cfg.Name)
			}
		}
	}
	for i := range n.slots {
		n.enforceWatchdog(&n.slots[i], nowMS)
	}
}

func (n *Node) enforceWatchdog(s *slot, nowMS uint32) {
	if !s.cfg.WatchdogProtected {
		return
	}
	budget := s.cfg.WatchdogBudgetMS
	if budget == 0 {
		budget = s.cfg.PeriodMS * 2
	}
	if nowMS > s.lastBeatMS && nowMS-s.lastBeatMS > budget {
		n.faults.RecordWatchdogReset()
	}
}

// Run drives RunCycle from a wall-clock ticker until ctx is cancelled.
// This is the only blocking point; task bodies themselves never block.
func (n *Node) Run(ctx context.Context) error {
	step := time.Duration(n.cfg.Node.HeartbeatIntervalMS) * time.Millisecond
	ticker := time.NewTicker(step)
	defer ticker.Stop()

	start := time.Now()
	n.log.Info("node started",
		logging.KeyNodeID, n.cfg.Node.ID,
		"tick_ms", n.cfg.Node.HeartbeatIntervalMS)

	for {
		select {
		case <-ctx.Done():
			n.log.Info("node stopped", logging.KeyNodeID, n.cfg.Node.ID)
			return ctx.Err()
		case <-ticker.C:
			n.RunCycle(uint32(time.Since(start).Milliseconds()))
		}
	}
}

// Receive feeds an envelope from the radio into the receive pipeline.
func (n *Node) Receive(envelope []byte, link mesh.LinkInfo) (*telemetry.MeshFrame, error) {
	return n.receiver.Handle(envelope, link)
}

// Mesh exposes the routing state for operations arriving out-of-band
// (ingest from a control plane, blacklisting by the operator).
func (n *Node) Mesh() *mesh.State {
	return n.state
}

// Ota exposes the OTA session for the downloader.
func (n *Node) Ota() *ota.Session {
	return n.otaSess
}

// Faults exposes the fault recorder.
func (n *Node) Faults() *fault.Recorder {
	return n.faults
}

// Status snapshots heartbeats and counters. Heartbeats come back in
// release order.
func (n *Node) Status() Status {
	st := Status{
		Faults:   n.faults.Status(),
		Mesh:     n.state.Metrics(),
		SeqNo:    n.seqNo,
		QueueLen: n.queue.Len(),
	}
	for _, s := range n.slots {
		st.Heartbeats = append(st.Heartbeats, TaskHeartbeat{Name: s.cfg.Name, LastBeatMS: s.lastBeatMS})
	}
	snap := n.state.Snapshot(0)
	if len(snap.Entries) > 0 {
		st.Parent = snap.Entries[0]
	}
	return st
}

// ---- task bodies ----

func (n *Node) rfScanTask(nowMS uint32) {
	n.lastWindow = n.rf.CollectWindow(nowMS)
	n.lastWindow.CenterFreqHz = n.cfg.Node.RFCenterFreqHz
	if n.cfg.Node.FFTSize > 0 && n.lastWindow.SampleCount > n.cfg.Node.FFTSize {
		n.lastWindow.SampleCount = n.cfg.Node.FFTSize
	}
}

func (n *Node) fftTask(nowMS uint32) {
	features := model.ExtractFeatures(&n.lastWindow)
	score := model.Score(features)

	n.lastEvent = telemetry.RFEvent{
		TimestampMS:  nowMS,
		CenterFreqHz: n.cfg.Node.RFCenterFreqHz,
		Features:     features,
		AnomalyScore: score,
		ModelVersion: model.Version,
	}

	if score >= n.cfg.Node.AnomalyThreshold {
		n.log.Warn("anomaly detected",
			logging.KeyNodeID, n.cfg.Node.ID,
			"score", score,
			"center_freq_hz", n.cfg.Node.RFCenterFreqHz)
	}
}

func (n *Node) gnssTask(nowMS uint32) {
	n.lastGps = n.gps.ReadStatus(nowMS)
}

func (n *Node) healthTask(nowMS uint32) {
	n.lastHealth = n.health.ReadStatus(nowMS)
}

func (n *Node) packetBuilderTask(nowMS uint32) {
	n.seqNo++

	frame := telemetry.MeshFrame{}
	frame.Header = telemetry.Header{
		Version:   1,
		MsgType:   telemetry.MsgTelemetry,
		TTL:       4,
		HopCount:  0,
		SeqNo:     n.seqNo,
		SrcNodeID: n.cfg.Node.ID,
	}
	// A zero nonce asks the envelope layer to derive one from seq and
	// source.
	frame.Security.Encrypted = true
	frame.Counters = telemetry.Counters{TxCounter: n.seqNo}

	frame.Telemetry.RFEvent = n.lastEvent
	frame.Telemetry.Gps = n.lastGps
	frame.Telemetry.Health = n.lastHealth

	frame.Routing = n.state.Snapshot(nowMS)

	fs := n.faults.Status()
	frame.Fault = telemetry.FaultStatus{
		FaultActive: fs.Active,
		Counters: telemetry.FaultCounters{
			WatchdogResets: fs.Counters.WatchdogResets,
			OtaFailures:    fs.Counters.OtaFailures,
			TamperEvents:   fs.Counters.TamperEvents,
		},
	}
	frame.Ota = n.otaSess.Status()

	if !n.queue.Push(frame) {
		n.faults.Record("Transport queue full")
	}
}

func (n *Node) transportTask(nowMS uint32) {
	n.queue.Service(nowMS, n.sender.Send)
}

func (n *Node) otaTask(nowMS uint32) {
	// The downloader runs outside the core; the task only keeps its
	// heartbeat fresh. The packet builder reads the session status itself.
}

func (n *Node) faultMonitorTask(nowMS uint32) {
	tamper := n.lastHealth.TamperFlag
	if tamper && !n.prevTamper {
		n.faults.RecordTamper()
	}
	n.prevTamper = tamper
}
