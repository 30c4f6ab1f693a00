// Package relay receives caller RTP on a pool of port slots, windows the audio
// per caller, runs each window through the translation pipeline and sends the
// result back as RTP.
package relay

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lexiqai/rtp-translator/internal/audio"
	"github.com/lexiqai/rtp-translator/internal/config"
	"github.com/lexiqai/rtp-translator/internal/monitor"
	"github.com/lexiqai/rtp-translator/internal/recording"
	"github.com/lexiqai/rtp-translator/internal/session"
)

// Options configures the relay
type Options struct {
	ListenIP       string
	BasePort       int
	Slots          int
	ReadBufferSize int

	Session session.Options

	ChunkSamples  int
	ChunkInterval time.Duration
	Pacing        bool

	DispatchMaxConcurrent int
	WindowTimeout         time.Duration
	SilenceThreshold      float64

	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

// OptionsFromConfig maps the process configuration onto relay options
func OptionsFromConfig(cfg *config.Config) Options {
	idle := time.Duration(cfg.SessionIdleTimeout) * time.Second
	sweep := idle / 4
	if sweep > 30*time.Second {
		sweep = 30 * time.Second
	}

	return Options{
		ListenIP:       cfg.ListenIP,
		BasePort:       cfg.BasePort,
		Slots:          cfg.MaxConcurrentCalls,
		ReadBufferSize: cfg.ReadBufferSize,
		Session: session.Options{
			SourceLang:  cfg.SourceLanguage,
			TargetLang:  cfg.TargetLanguage,
			WindowBytes: cfg.WindowBytes(),
		},
		ChunkSamples:          cfg.ChunkSamples(),
		ChunkInterval:         cfg.ChunkInterval(),
		Pacing:                cfg.EgressPacing,
		DispatchMaxConcurrent: cfg.DispatchMaxConcurrent,
		// one timeout per pipeline stage
		WindowTimeout:    3 * time.Duration(cfg.PipelineTimeout) * time.Second,
		SilenceThreshold: cfg.SilenceThreshold,
		IdleTimeout:      idle,
		SweepInterval:    sweep,
	}
}

// Relay is the RTP side of the translator
type Relay struct {
	opts           Options
	readBufferSize int

	registry   *session.Registry
	dispatcher *Dispatcher
	stats      *monitor.Stats
	recorder   *recording.Recorder
	logger     zerolog.Logger

	listeners []*listener
}

// New wires the relay. recorder may be nil.
func New(opts Options, processor Processor, stats *monitor.Stats, recorder *recording.Recorder, logger zerolog.Logger) *Relay {
	logger = logger.With().Str("component", "relay").Logger()

	registry := session.NewRegistry(opts.Session, stats)
	registry.OnRemove(func(s *session.Session) {
		if err := recorder.Close(s.Key); err != nil {
			s.Logger.Error().Err(err).Msg("Failed to close recording")
		}
	})

	sender := NewSender(opts.ChunkSamples, opts.ChunkInterval, opts.Pacing, stats, recorder)
	gate := audio.NewSilenceGate(opts.SilenceThreshold, opts.ChunkSamples)

	maxConcurrent := opts.DispatchMaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	bufSize := opts.ReadBufferSize
	if bufSize <= 0 {
		bufSize = 2048
	}

	return &Relay{
		opts:           opts,
		readBufferSize: bufSize,
		registry:       registry,
		dispatcher:     NewDispatcher(processor, sender, gate, maxConcurrent, opts.WindowTimeout, stats),
		stats:          stats,
		recorder:       recorder,
		logger:         logger,
	}
}

// Registry exposes the session registry
func (r *Relay) Registry() *session.Registry {
	return r.registry
}

// Snapshot returns per-session stats, with the capture file of sessions being recorded
func (r *Relay) Snapshot() []session.Stats {
	stats := r.registry.Snapshot()
	for i := range stats {
		stats[i].RecordingPath = r.recorder.Path(stats[i].SessionID)
	}
	return stats
}

// Listen binds every slot. Slot i listens on base+2i and replies to the
// caller's base+2i+1. On failure nothing stays bound.
func (r *Relay) Listen() error {
	for slot := 0; slot < r.opts.Slots; slot++ {
		listenPort, sendPort := config.SlotPorts(r.opts.BasePort, slot)
		l, err := bindSlot(r.opts.ListenIP, slot, listenPort, sendPort)
		if err != nil {
			r.closeListeners()
			return err
		}
		r.listeners = append(r.listeners, l)
	}

	r.logger.Info().
		Str("listen_ip", r.opts.ListenIP).
		Int("base_port", r.opts.BasePort).
		Int("slots", len(r.listeners)).
		Msg("RTP listeners bound")
	return nil
}

// Addrs returns the bound listen addresses in slot order
func (r *Relay) Addrs() []*net.UDPAddr {
	addrs := make([]*net.UDPAddr, len(r.listeners))
	for i, l := range r.listeners {
		addrs[i] = l.local
	}
	return addrs
}

// Serve runs the receive loops and the idle sweeper until ctx is done
func (r *Relay) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, l := range r.listeners {
		l := l
		g.Go(func() error {
			return r.receive(gctx, l)
		})
	}

	if r.opts.IdleTimeout > 0 && r.opts.SweepInterval > 0 {
		g.Go(func() error {
			r.registry.RunSweeper(gctx, r.opts.SweepInterval, r.opts.IdleTimeout)
			return nil
		})
	}

	return g.Wait()
}

// Shutdown waits up to drain for in-flight windows, then closes the sockets
// and any open recordings. Sessions stay in the registry for the final summary.
func (r *Relay) Shutdown(drain time.Duration) {
	if !r.dispatcher.Wait(drain) {
		r.logger.Warn().Dur("timeout", drain).Msg("In-flight windows did not finish before shutdown")
	}
	r.closeListeners()
	r.recorder.CloseAll()
}

func (r *Relay) closeListeners() {
	for _, l := range r.listeners {
		if err := l.conn.Close(); err != nil {
			r.logger.Warn().Err(err).Int("slot", l.slot).Msg("Failed to close RTP socket")
		}
	}
	r.listeners = nil
}
