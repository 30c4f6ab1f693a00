package relay

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/lexiqai/rtp-translator/internal/audio"
	"github.com/lexiqai/rtp-translator/internal/monitor"
	"github.com/lexiqai/rtp-translator/internal/recording"
	"github.com/lexiqai/rtp-translator/internal/rtp"
	"github.com/lexiqai/rtp-translator/internal/session"
)

// ErrNoReturnAddress is returned when a session has no caller address to send to
var ErrNoReturnAddress = errors.New("session has no return address")

// PacketWriter is the sending half of a UDP socket
type PacketWriter interface {
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
}

// Sender packetizes synthesized audio back to a caller
type Sender struct {
	chunkSamples int
	interval     time.Duration
	pacing       bool
	stats        *monitor.Stats
	recorder     *recording.Recorder
}

// NewSender creates a sender emitting chunkSamples μ-law bytes per packet.
// With pacing on, packets leave one interval apart.
func NewSender(chunkSamples int, interval time.Duration, pacing bool, stats *monitor.Stats, recorder *recording.Recorder) *Sender {
	return &Sender{
		chunkSamples: chunkSamples,
		interval:     interval,
		pacing:       pacing,
		stats:        stats,
		recorder:     recorder,
	}
}

// Send encodes samples and transmits them as consecutive RTP packets to the
// session's return address. A failed write drops that packet and sending goes on;
// the last failure is returned. It returns the number of packets written.
func (s *Sender) Send(ctx context.Context, sess *session.Session, conn PacketWriter, local *net.UDPAddr, samples []float32) (int, error) {
	addr := sess.ReturnAddr()
	if addr == nil {
		return 0, ErrNoReturnAddress
	}

	payload := audio.EncodeMulaw(samples)

	var ticker *time.Ticker
	if s.pacing && s.interval > 0 {
		ticker = time.NewTicker(s.interval)
		defer ticker.Stop()
	}

	var (
		sent    int
		lastErr error
	)
	for off := 0; off < len(payload); off += s.chunkSamples {
		end := off + s.chunkSamples
		if end > len(payload) {
			end = len(payload)
		}
		chunk := payload[off:end]

		if ticker != nil && off > 0 {
			select {
			case <-ctx.Done():
				return sent, ctx.Err()
			case <-ticker.C:
			}
		}

		seq, ts := sess.NextSend(len(chunk))
		packet := rtp.Build(chunk, seq, ts, sess.SSRC, rtp.PayloadTypePCMU)

		if _, err := conn.WriteToUDP(packet, addr); err != nil {
			lastErr = &SocketError{Op: "write", Slot: sess.Slot, Err: err}
			s.stats.Error("socket", "sender")
			sess.Logger.Error().Err(err).Uint16("seq", seq).Msg("Failed to send RTP packet")
			continue
		}

		sent++
		sess.MarkSent()
		s.stats.PacketSent(len(chunk))
		if err := s.recorder.RecordIfOpen(sess.Key, local, addr, packet, time.Now()); err != nil {
			sess.Logger.Warn().Err(err).Msg("Failed to record sent packet")
		}
	}

	return sent, lastErr
}
