// Package mesh implements the node's routing layer: the bounded routing
// table with best-parent selection and blacklisting, the duplicate/TTL
// guard for forwarded frames, and the send/receive pipelines that tie the
// codec and envelope together.
package mesh

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/zveasy/ol-rf-mesh/internal/logging"
	"github.com/zveasy/ol-rf-mesh/internal/metrics"
	"github.com/zveasy/ol-rf-mesh/internal/telemetry"
)

const (
	// maxBlacklist bounds the neighbor blacklist.
	maxBlacklist = 4

	// seenSlots bounds the forwarding duplicate window.
	seenSlots = 8
)

// Metrics are the process-lifetime mesh counters. They are read through
// State.Metrics (frames do not carry them) and reset as a group; fault
// counters live elsewhere and persist.
type Metrics struct {
	ParentChanges    uint32
	BlacklistHits    uint32
	TTLDrops         uint32
	FragmentsSent    uint32
	FragmentsDropped uint32
	RetryDrops       uint32
}

type blacklistEntry struct {
	neighborID string
	strikes    uint8
}

type seenSlot struct {
	srcID   string
	lastSeq uint32
	used    bool
}

// State is the process-wide mesh state: routing table, blacklist, seen
// window and metrics. It is owned by the scheduler driver and mutated only
// through the named operations below; every operation takes the lock.
type State struct {
	mu sync.Mutex

	selfID  string
	entries []telemetry.RouteEntry
	version uint32

	blacklist [maxBlacklist]blacklistEntry
	seen      [seenSlots]seenSlot

	metrics    Metrics
	prevParent string

	log  *slog.Logger
	prom *metrics.Metrics
}

// NewState creates mesh state for the node selfID. logger and prom may be
// nil; prom, when set, mirrors the counters for scraping.
func NewState(selfID string, log *slog.Logger, prom *metrics.Metrics) *State {
	if log == nil {
		log = logging.NopLogger()
	}
	return &State{selfID: selfID, log: log, prom: prom}
}

// SelfID returns the node's own identifier.
func (s *State) SelfID() string {
	return s.selfID
}

// Reset clears routing state, the seen window, the blacklist and the mesh
// metrics. Explicit reset is the only way this state is cleared.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	s.version = 0
	s.blacklist = [maxBlacklist]blacklistEntry{}
	s.seen = [seenSlots]seenSlot{}
	s.metrics = Metrics{}
	s.prevParent = ""
	if s.prom != nil {
		s.prom.RoutesActive.Set(0)
	}
}

// AddOrReplace inserts entry, overwriting any row with the same neighbor
// ID. Appends are dropped silently at capacity. Blacklisted rows are
// pruned and the table re-sorted on every mutation.
func (s *State) AddOrReplace(entry telemetry.RouteEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addLocked(entry)
	s.pruneAndSortLocked()
}

func (s *State) addLocked(entry telemetry.RouteEntry) {
	for i := range s.entries {
		if s.entries[i].NeighborID == entry.NeighborID {
			s.entries[i] = entry
			s.version++
			return
		}
	}
	if len(s.entries) >= telemetry.MaxRoutes {
		return
	}
	s.entries = append(s.entries, entry)
	s.version++
}

// pruneAndSortLocked drops blacklisted rows and restores the sort order:
// link quality descending, cost ascending, ties by insertion order.
func (s *State) pruneAndSortLocked() {
	kept := s.entries[:0]
	for _, e := range s.entries {
		if s.isBlacklistedLocked(e.NeighborID) {
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	sort.SliceStable(s.entries, func(i, j int) bool {
		a, b := &s.entries[i], &s.entries[j]
		if a.LinkQuality == b.LinkQuality {
			return a.Cost < b.Cost
		}
		return a.LinkQuality > b.LinkQuality
	})
	if s.prom != nil {
		s.prom.RoutesActive.Set(float64(len(s.entries)))
	}
}

// Ingest merges a neighbor's advertised routing payload. The direct link
// to the neighbor is recorded at cost 1; advertised entries are merged at
// +1 cost with link quality capped by the link to the neighbor. Entries
// naming this node are skipped. Returns true iff the table version
// advanced.
func (s *State) Ingest(payload telemetry.RoutingPayload, neighborID string, linkQuality uint8, rssiDBm int8) bool {
	if neighborID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prevVersion := s.version

	s.addLocked(telemetry.RouteEntry{
		NeighborID:  neighborID,
		RSSIDBm:     rssiDBm,
		LinkQuality: linkQuality,
		Cost:        1,
	})
	s.pruneAndSortLocked()

	for _, e := range payload.Entries {
		if e.NeighborID == s.selfID {
			continue
		}
		candidate := e
		cost := uint16(e.Cost) + 1
		if cost > 255 {
			cost = 255
		}
		candidate.Cost = uint8(cost)
		if linkQuality < candidate.LinkQuality {
			candidate.LinkQuality = linkQuality
		}
		s.addLocked(candidate)
		s.pruneAndSortLocked()
	}

	return s.version != prevVersion
}

// SelectBestParent prunes, sorts and returns the head entry. A head that
// differs from the previously observed one counts as a parent change when
// non-empty.
func (s *State) SelectBestParent() telemetry.RouteEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneAndSortLocked()
	var best telemetry.RouteEntry
	if len(s.entries) > 0 {
		best = s.entries[0]
	}
	if best.NeighborID != "" && best.NeighborID != s.prevParent {
		s.metrics.ParentChanges++
		if s.prom != nil {
			s.prom.ParentChanges.Inc()
		}
		s.log.Info("parent changed",
			logging.KeyComponent, "mesh",
			logging.KeyNeighbor, best.NeighborID,
			"previous", s.prevParent)
		s.prevParent = best.NeighborID
	}
	return best
}

// Blacklist adds a strike against neighborID, creating an entry in the
// first free slot or overwriting slot 0 when full. Strikes saturate at
// 255. The routing table is re-pruned immediately.
func (s *State) Blacklist(neighborID string) {
	if neighborID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	noted := false
	for i := range s.blacklist {
		b := &s.blacklist[i]
		if b.neighborID == "" {
			b.neighborID = neighborID
			b.strikes = 1
			noted = true
			break
		}
		if b.neighborID == neighborID {
			if b.strikes < 255 {
				b.strikes++
			}
			noted = true
			break
		}
	}
	if !noted {
		s.blacklist[0] = blacklistEntry{neighborID: neighborID, strikes: 1}
	}
	s.metrics.BlacklistHits++
	if s.prom != nil {
		s.prom.BlacklistHits.Inc()
	}
	s.pruneAndSortLocked()
}

// IsBlacklisted reports whether neighborID currently has strikes.
func (s *State) IsBlacklisted(neighborID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isBlacklistedLocked(neighborID)
}

func (s *State) isBlacklistedLocked(neighborID string) bool {
	for i := range s.blacklist {
		b := &s.blacklist[i]
		if b.neighborID == neighborID && b.strikes > 0 {
			return true
		}
	}
	return false
}

// ShouldForward applies the TTL and duplicate guards to a frame another
// node asked us to relay. On acceptance the frame's hop count is
// incremented in place.
func (s *State) ShouldForward(frame *telemetry.MeshFrame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := &frame.Header
	if h.TTL == 0 || h.HopCount >= h.TTL {
		s.metrics.TTLDrops++
		if s.prom != nil {
			s.prom.TTLDrops.Inc()
		}
		return false
	}
	if s.seenBeforeLocked(h.SrcNodeID, h.SeqNo) {
		return false
	}
	h.HopCount++
	return true
}

func (s *State) seenBeforeLocked(srcID string, seqNo uint32) bool {
	for i := range s.seen {
		slot := &s.seen[i]
		if !slot.used {
			slot.srcID = srcID
			slot.lastSeq = seqNo
			slot.used = true
			return false
		}
		if slot.srcID == srcID {
			if seqNo <= slot.lastSeq {
				return true
			}
			slot.lastSeq = seqNo
			return false
		}
	}
	s.seen[0] = seenSlot{srcID: srcID, lastSeq: seqNo, used: true}
	return false
}

// Snapshot returns the current routing payload stamped with epochMS.
func (s *State) Snapshot(epochMS uint32) telemetry.RoutingPayload {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := telemetry.RoutingPayload{EpochMS: epochMS, Version: s.version}
	if len(s.entries) > 0 {
		p.Entries = make([]telemetry.RouteEntry, len(s.entries))
		copy(p.Entries, s.entries)
	}
	return p
}

// Metrics returns a copy of the mesh counters.
func (s *State) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

// ResetMetrics zeroes the mesh counters. Fault counters are not touched.
func (s *State) ResetMetrics() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = Metrics{}
}

// NoteRetryDrop counts a frame abandoned by the transport queue.
func (s *State) NoteRetryDrop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.RetryDrops++
	if s.prom != nil {
		s.prom.RetryDrops.Inc()
	}
}

func (s *State) noteFragmentsSent(n uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.FragmentsSent += n
	if s.prom != nil {
		s.prom.FragmentsSent.Add(float64(n))
	}
}

func (s *State) noteFragmentsDropped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.FragmentsDropped++
	if s.prom != nil {
		s.prom.FragmentsDropped.Inc()
	}
}
