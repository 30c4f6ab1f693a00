package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/rtp-translator/internal/session"
)

// SessionSource supplies per-call summaries
type SessionSource interface {
	Snapshot() []session.Stats
}

// Report is what the monitor logs and pushes
type Report struct {
	Stats    Snapshot        `json:"stats"`
	Sessions []session.Stats `json:"sessions"`
}

// Monitor periodically reports relay statistics
type Monitor struct {
	stats    *Stats
	sessions SessionSource
	interval time.Duration
	hub      *Hub
	logger   zerolog.Logger
}

// New creates a monitor. A non-positive interval disables periodic reports.
func New(stats *Stats, sessions SessionSource, interval time.Duration, logger zerolog.Logger) *Monitor {
	logger = logger.With().Str("component", "monitor").Logger()
	return &Monitor{
		stats:    stats,
		sessions: sessions,
		interval: interval,
		hub:      NewHub(logger),
		logger:   logger,
	}
}

// Hub returns the websocket hub for /stats/stream
func (m *Monitor) Hub() *Hub {
	return m.hub
}

// Run reports every interval until ctx is done
func (m *Monitor) Run(ctx context.Context) {
	if m.interval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.report()
		}
	}
}

// Report builds the current report
func (m *Monitor) Report() Report {
	return Report{Stats: m.stats.Snapshot(), Sessions: m.sessions.Snapshot()}
}

func (m *Monitor) report() {
	r := m.Report()
	m.logger.Info().
		Float64("uptime_hours", r.Stats.UptimeHours).
		Int64("total_calls", r.Stats.TotalCalls).
		Int64("active_calls", r.Stats.ActiveCalls).
		Int64("total_translations", r.Stats.Translations).
		Int64("errors", r.Stats.Errors).
		Int64("packets_received", r.Stats.PacketsReceived).
		Int64("packets_sent", r.Stats.PacketsSent).
		Msg("Relay stats")
	m.hub.Broadcast(r)
}

// Final logs a summary for every remaining session and closes subscribers
func (m *Monitor) Final() {
	for _, s := range m.sessions.Snapshot() {
		m.logger.Info().
			Str("session_id", s.SessionID).
			Int("slot", s.Slot).
			Str("correlation_id", s.CorrelationID).
			Float64("duration", s.Duration).
			Uint64("packets_received", s.PacketsReceived).
			Uint64("packets_sent", s.PacketsSent).
			Int("translations_count", s.TranslationsCount).
			Str("source_lang", s.SourceLang).
			Str("target_lang", s.TargetLang).
			Msg("Session summary")
	}

	snap := m.stats.Snapshot()
	m.logger.Info().
		Float64("uptime_hours", snap.UptimeHours).
		Int64("total_calls", snap.TotalCalls).
		Int64("total_translations", snap.Translations).
		Int64("errors", snap.Errors).
		Msg("Final relay stats")

	m.hub.Close()
}

// StatsHandler serves the current report as JSON
func (m *Monitor) StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(m.Report()); err != nil {
			m.logger.Error().Err(err).Msg("Failed to write stats response")
		}
	}
}
