package relay

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/lexiqai/rtp-translator/internal/rtp"
)

const readTimeout = 1 * time.Second

// listener owns the socket of one port slot
type listener struct {
	slot     int
	sendPort int
	conn     *net.UDPConn
	writer   PacketWriter
	local    *net.UDPAddr
}

func bindSlot(ip string, slot, listenPort, sendPort int) (*listener, error) {
	addr := &net.UDPAddr{IP: net.ParseIP(ip), Port: listenPort}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, &SocketError{Op: "bind", Slot: slot, Err: err}
	}
	return &listener{
		slot:     slot,
		sendPort: sendPort,
		conn:     conn,
		writer:   conn,
		local:    conn.LocalAddr().(*net.UDPAddr),
	}, nil
}

// receive reads datagrams until ctx is done or the socket is closed.
// Read errors other than the periodic deadline are logged and the loop goes on.
func (r *Relay) receive(ctx context.Context, l *listener) error {
	logger := r.logger.With().Int("slot", l.slot).Int("port", l.local.Port).Logger()
	logger.Debug().Msg("RTP listener started")
	defer logger.Debug().Msg("RTP listener stopped")

	buf := make([]byte, r.readBufferSize)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := l.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Error().Err(err).Msg("Failed to set read deadline")
			continue
		}

		n, from, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			r.stats.Error("socket", "listener")
			logger.Error().Err(&SocketError{Op: "read", Slot: l.slot, Err: err}).Msg("Failed to read RTP packet")
			continue
		}

		r.handleDatagram(l, buf[:n], from)
	}
}

// handleDatagram ingests one datagram received on l from a caller
func (r *Relay) handleDatagram(l *listener, data []byte, from *net.UDPAddr) {
	pkt, err := rtp.Parse(data)
	if err != nil {
		r.stats.MalformedPacket()
		r.logger.Warn().
			Err(err).
			Int("slot", l.slot).
			Str("remote_addr", from.String()).
			Int("size", len(data)).
			Msg("Dropping malformed RTP packet")
		return
	}

	sess, _ := r.registry.Resolve(from, l.slot, l.sendPort)

	r.stats.PacketReceived(len(pkt.Payload))
	if err := r.recorder.Record(sess.Key, from, l.local, data, time.Now()); err != nil {
		sess.Logger.Warn().Err(err).Msg("Failed to record received packet")
	}

	if w := sess.Ingest(pkt.SequenceNumber, pkt.Timestamp, pkt.Payload, from); w != nil {
		sess.Logger.Debug().
			Uint64("window", w.Ticket).
			Int("bytes", len(w.Payload)).
			Uint64("packets_received", sess.PacketsReceived()).
			Msg("Window full")
		r.dispatcher.Dispatch(sess, w, l.writer, l.local)
	}
}
