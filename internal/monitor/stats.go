// Package monitor keeps process-wide relay counters and reports them.
package monitor

import (
	"sync/atomic"
	"time"

	"github.com/lexiqai/rtp-translator/internal/observability"
)

// Stats holds the process-wide counters. All methods are safe for concurrent use.
type Stats struct {
	startTime time.Time

	totalCalls       atomic.Int64
	activeCalls      atomic.Int64
	translations     atomic.Int64
	errors           atomic.Int64
	packetsReceived  atomic.Int64
	packetsSent      atomic.Int64
	malformedPackets atomic.Int64
	skippedWindows   atomic.Int64
}

// Snapshot is a point-in-time copy of Stats
type Snapshot struct {
	StartTime        time.Time `json:"start_time"`
	UptimeHours      float64   `json:"uptime_hours"`
	TotalCalls       int64     `json:"total_calls"`
	ActiveCalls      int64     `json:"active_calls"`
	Translations     int64     `json:"total_translations"`
	Errors           int64     `json:"errors"`
	PacketsReceived  int64     `json:"packets_received"`
	PacketsSent      int64     `json:"packets_sent"`
	MalformedPackets int64     `json:"malformed_packets"`
	SkippedWindows   int64     `json:"skipped_windows"`
}

// NewStats starts the uptime clock
func NewStats() *Stats {
	return &Stats{startTime: time.Now()}
}

// CallStarted is called by the session registry when a caller appears
func (s *Stats) CallStarted() {
	s.totalCalls.Add(1)
	s.activeCalls.Add(1)
	observability.RecordCallStart()
}

// CallEnded is called by the session registry when a session is removed
func (s *Stats) CallEnded(duration time.Duration) {
	s.activeCalls.Add(-1)
	observability.RecordCallEnd(duration)
}

func (s *Stats) PacketReceived(payloadBytes int) {
	s.packetsReceived.Add(1)
	observability.RecordPacketIn(payloadBytes)
}

func (s *Stats) PacketSent(payloadBytes int) {
	s.packetsSent.Add(1)
	observability.RecordPacketOut(payloadBytes)
}

func (s *Stats) MalformedPacket() {
	s.malformedPackets.Add(1)
	observability.RecordMalformedPacket()
}

func (s *Stats) TranslationCompleted() {
	s.translations.Add(1)
	observability.RecordTranslation()
}

func (s *Stats) WindowSkipped() {
	s.skippedWindows.Add(1)
}

// Error counts a failure and labels it for Prometheus
func (s *Stats) Error(errorType, component string) {
	s.errors.Add(1)
	observability.RecordError(errorType, component)
}

func (s *Stats) ActiveCalls() int64 { return s.activeCalls.Load() }
func (s *Stats) Errors() int64      { return s.errors.Load() }

// Snapshot copies the counters
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		StartTime:        s.startTime,
		UptimeHours:      time.Since(s.startTime).Hours(),
		TotalCalls:       s.totalCalls.Load(),
		ActiveCalls:      s.activeCalls.Load(),
		Translations:     s.translations.Load(),
		Errors:           s.errors.Load(),
		PacketsReceived:  s.packetsReceived.Load(),
		PacketsSent:      s.packetsSent.Load(),
		MalformedPackets: s.malformedPackets.Load(),
		SkippedWindows:   s.skippedWindows.Load(),
	}
}
