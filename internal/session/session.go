// Package session tracks per-caller call state for the relay.
package session

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"github.com/lexiqai/rtp-translator/internal/audio"
	"github.com/lexiqai/rtp-translator/internal/observability"
)

// Translation is one recognized utterance and its translation
type Translation struct {
	Original   string    `json:"original"`
	Translated string    `json:"translated"`
	At         time.Time `json:"timestamp"`
}

// Window is a full accumulation buffer handed off for processing.
// Ticket orders egress within the owning session.
type Window struct {
	Ticket     uint64
	Payload    []byte // μ-law bytes in arrival order
	SourceLang string
	TargetLang string
}

// Stats is the per-call summary logged at shutdown and served on /stats
type Stats struct {
	SessionID         string    `json:"session_id"`
	Slot              int       `json:"slot"`
	CorrelationID     string    `json:"correlation_id"`
	Duration          float64   `json:"duration"`
	PacketsReceived   uint64    `json:"packets_received"`
	PacketsSent       uint64    `json:"packets_sent"`
	TranslationsCount int       `json:"translations_count"`
	SourceLang        string    `json:"source_lang"`
	TargetLang        string    `json:"target_lang"`
	CreatedAt         time.Time `json:"created_at"`
	LastActivity      time.Time `json:"last_activity"`
	RecordingPath     string    `json:"recording_path,omitempty"`
}

// Session is the state of one caller
type Session struct {
	Key           string
	Slot          int
	SSRC          uint32
	CorrelationID string
	CreatedAt     time.Time
	Logger        zerolog.Logger

	buffer   *audio.Accumulator
	sendPort int

	mu           sync.Mutex
	remoteAddr   *net.UDPAddr
	sourceLang   string
	targetLang   string
	lastRecvSeq  uint16
	lastRecvTS   uint32
	lastActivity time.Time
	translations []Translation
	nextTicket   uint64

	sendMu  sync.Mutex
	sendSeq uint16
	sendTS  uint32

	packetsReceived atomic.Uint64
	packetsSent     atomic.Uint64

	turnMu   sync.Mutex
	turnCond *sync.Cond
	serving  uint64
	done     map[uint64]struct{}
}

// Options are the defaults applied to new sessions
type Options struct {
	SourceLang  string
	TargetLang  string
	WindowBytes int
}

func newSession(key string, addr *net.UDPAddr, slot, sendPort int, opts Options) *Session {
	correlationID := observability.NewCorrelationID()
	now := time.Now()

	s := &Session{
		Key:           key,
		Slot:          slot,
		SSRC:          uint32(xxhash.Sum64String(key)),
		CorrelationID: correlationID,
		CreatedAt:     now,
		Logger: observability.WithCorrelationID(correlationID).With().
			Str("session_key", key).
			Int("slot", slot).
			Logger(),
		buffer:       audio.NewAccumulator(opts.WindowBytes),
		sendPort:     sendPort,
		remoteAddr:   addr,
		sourceLang:   opts.SourceLang,
		targetLang:   opts.TargetLang,
		lastActivity: now,
		done:         make(map[uint64]struct{}),
	}
	s.turnCond = sync.NewCond(&s.turnMu)
	return s
}

// Ingest records one received packet and appends its payload to the window buffer.
// It returns a Window when the buffer crossed the threshold, otherwise nil.
func (s *Session) Ingest(seq uint16, ts uint32, payload []byte, from *net.UDPAddr) *Window {
	s.packetsReceived.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.remoteAddr == nil {
		s.remoteAddr = from
	}
	s.lastRecvSeq = seq
	s.lastRecvTS = ts
	s.lastActivity = time.Now()

	data := s.buffer.Append(payload)
	if data == nil {
		return nil
	}

	w := &Window{
		Ticket:     s.nextTicket,
		Payload:    data,
		SourceLang: s.sourceLang,
		TargetLang: s.targetLang,
	}
	s.nextTicket++
	return w
}

// Buffered returns the number of μ-law bytes waiting for the next window
func (s *Session) Buffered() int {
	return s.buffer.Len()
}

// discard drops a partial window and returns its size
func (s *Session) discard() int {
	return len(s.buffer.Drain())
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	if now.After(s.lastActivity) {
		s.lastActivity = now
	}
	s.mu.Unlock()
}

// ReturnAddr is the caller's IP on the slot's dedicated send port
func (s *Session) ReturnAddr() *net.UDPAddr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.remoteAddr == nil {
		return nil
	}
	return &net.UDPAddr{IP: s.remoteAddr.IP, Port: s.sendPort, Zone: s.remoteAddr.Zone}
}

// NextSend reserves the header counters for one outbound packet carrying samples samples.
// Sequence numbers wrap at 65536.
func (s *Session) NextSend(samples int) (seq uint16, ts uint32) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	seq, ts = s.sendSeq, s.sendTS
	s.sendSeq++
	s.sendTS += uint32(samples)
	return seq, ts
}

// MarkSent counts one transmitted packet
func (s *Session) MarkSent() {
	s.packetsSent.Add(1)
}

// SetLanguages changes the language pair used for subsequent windows
func (s *Session) SetLanguages(source, target string) {
	s.mu.Lock()
	s.sourceLang = source
	s.targetLang = target
	s.mu.Unlock()
}

// Languages returns the current source and target language
func (s *Session) Languages() (source, target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sourceLang, s.targetLang
}

// AddTranslation appends to the call's translation log
func (s *Session) AddTranslation(original, translated string) {
	s.mu.Lock()
	s.translations = append(s.translations, Translation{
		Original:   original,
		Translated: translated,
		At:         time.Now(),
	})
	s.mu.Unlock()
}

// Translations returns a copy of the translation log
func (s *Session) Translations() []Translation {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Translation, len(s.translations))
	copy(out, s.translations)
	return out
}

// LastActivity is the arrival time of the most recent packet
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// PacketsReceived returns the number of packets ingested
func (s *Session) PacketsReceived() uint64 {
	return s.packetsReceived.Load()
}

// PacketsSent returns the number of packets transmitted
func (s *Session) PacketsSent() uint64 {
	return s.packetsSent.Load()
}

// Stats returns a point-in-time summary of the call
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		SessionID:         s.Key,
		Slot:              s.Slot,
		CorrelationID:     s.CorrelationID,
		Duration:          time.Since(s.CreatedAt).Seconds(),
		PacketsReceived:   s.packetsReceived.Load(),
		PacketsSent:       s.packetsSent.Load(),
		TranslationsCount: len(s.translations),
		SourceLang:        s.sourceLang,
		TargetLang:        s.targetLang,
		CreatedAt:         s.CreatedAt,
		LastActivity:      s.lastActivity,
	}
}

// AwaitTurn blocks until every window with a lower ticket has been released
func (s *Session) AwaitTurn(ticket uint64) {
	s.turnMu.Lock()
	for s.serving != ticket {
		s.turnCond.Wait()
	}
	s.turnMu.Unlock()
}

// Release marks a window finished, whether it produced audio or not.
// Every ticket must be released exactly once.
func (s *Session) Release(ticket uint64) {
	s.turnMu.Lock()
	s.done[ticket] = struct{}{}
	for {
		if _, ok := s.done[s.serving]; !ok {
			break
		}
		delete(s.done, s.serving)
		s.serving++
	}
	s.turnMu.Unlock()
	s.turnCond.Broadcast()
}
