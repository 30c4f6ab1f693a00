package session

import (
	"context"
	"net"
	"sort"
	"sync"
	"time"
)

// CallCounter is told about sessions coming and going
type CallCounter interface {
	CallStarted()
	CallEnded(duration time.Duration)
}

// Registry maps caller addresses to sessions. Every access to the map goes
// through the registry lock; sessions guard their own state.
type Registry struct {
	opts    Options
	counter CallCounter

	mu       sync.Mutex
	sessions map[string]*Session
	onRemove []func(*Session)
}

// NewRegistry creates an empty registry. counter may be nil.
func NewRegistry(opts Options, counter CallCounter) *Registry {
	return &Registry{
		opts:     opts,
		counter:  counter,
		sessions: make(map[string]*Session),
	}
}

// OnRemove registers a hook run after a session leaves the registry
func (r *Registry) OnRemove(fn func(*Session)) {
	r.mu.Lock()
	r.onRemove = append(r.onRemove, fn)
	r.mu.Unlock()
}

// Key derives the session key for a caller address
func Key(addr *net.UDPAddr) string {
	return addr.String()
}

// Resolve returns the session for addr, creating it on first contact.
// created reports whether this call made the session.
func (r *Registry) Resolve(addr *net.UDPAddr, slot, sendPort int) (s *Session, created bool) {
	key := Key(addr)

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[key]; ok {
		// Under the registry lock so a concurrent Sweep sees this packet
		s.touch(time.Now())
		return s, false
	}

	s = newSession(key, addr, slot, sendPort, r.opts)
	r.sessions[key] = s
	if r.counter != nil {
		r.counter.CallStarted()
	}
	s.Logger.Info().
		Str("source_lang", s.sourceLang).
		Str("target_lang", s.targetLang).
		Uint32("ssrc", s.SSRC).
		Msg("Session created")
	return s, true
}

// Get looks up a session without creating it
func (r *Registry) Get(key string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[key]
	return s, ok
}

// Remove deletes a session. It reports false when the key is unknown.
func (r *Registry) Remove(key string) bool {
	r.mu.Lock()
	s, ok := r.sessions[key]
	if ok {
		delete(r.sessions, key)
	}
	hooks := r.onRemove
	r.mu.Unlock()

	if !ok {
		return false
	}
	r.finish(s, hooks)
	return true
}

// finish runs after s has left the map
func (r *Registry) finish(s *Session, hooks []func(*Session)) {
	if r.counter != nil {
		r.counter.CallEnded(time.Since(s.CreatedAt))
	}
	for _, fn := range hooks {
		fn(s)
	}
	s.Logger.Info().
		Uint64("packets_received", s.PacketsReceived()).
		Uint64("packets_sent", s.PacketsSent()).
		Int("partial_window_bytes", s.discard()).
		Msg("Session removed")
}

// Len returns the number of live sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sessions returns the live sessions ordered by creation time
func (r *Registry) Sessions() []*Session {
	r.mu.Lock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Snapshot returns stats copies for every live session
func (r *Registry) Snapshot() []Stats {
	sessions := r.Sessions()
	out := make([]Stats, len(sessions))
	for i, s := range sessions {
		out[i] = s.Stats()
	}
	return out
}

// Sweep removes sessions idle for longer than idle and returns their keys.
// Staleness is decided under the registry lock, so a session that Resolve
// just handed out or recreated is never removed.
func (r *Registry) Sweep(idle time.Duration) []string {
	cutoff := time.Now().Add(-idle)

	r.mu.Lock()
	var stale []*Session
	for key, s := range r.sessions {
		if s.LastActivity().Before(cutoff) {
			delete(r.sessions, key)
			stale = append(stale, s)
		}
	}
	hooks := r.onRemove
	r.mu.Unlock()

	sort.Slice(stale, func(i, j int) bool { return stale[i].CreatedAt.Before(stale[j].CreatedAt) })

	removed := make([]string, 0, len(stale))
	for _, s := range stale {
		r.finish(s, hooks)
		removed = append(removed, s.Key)
	}
	return removed
}

// RunSweeper removes idle sessions every interval until ctx is done
func (r *Registry) RunSweeper(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(idle)
		}
	}
}
