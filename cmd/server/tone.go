package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lexiqai/rtp-translator/internal/audio"
	"github.com/lexiqai/rtp-translator/internal/config"
	"github.com/lexiqai/rtp-translator/internal/rtp"
)

const (
	toneRate        = 8000
	toneChunk       = 160
	toneChunkPeriod = 20 * time.Millisecond
)

var toneOpts struct {
	host      string
	basePort  int
	slot      int
	duration  time.Duration
	frequency float64
	amplitude float64
	wait      time.Duration
}

var toneCmd = &cobra.Command{
	Use:   "tone",
	Short: "Send a test tone to a relay slot and count the packets that come back",
	RunE:  runTone,
}

func init() {
	basePort, err := strconv.Atoi(config.GetEnv("RTP_BASE_PORT", "4000"))
	if err != nil {
		basePort = 4000
	}

	f := toneCmd.Flags()
	f.StringVar(&toneOpts.host, "host", "127.0.0.1", "relay host")
	f.IntVar(&toneOpts.basePort, "base-port", basePort, "relay base port")
	f.IntVar(&toneOpts.slot, "slot", 0, "port slot to call")
	f.DurationVar(&toneOpts.duration, "duration", 4*time.Second, "length of the tone")
	f.Float64Var(&toneOpts.frequency, "frequency", 440, "tone frequency in Hz")
	f.Float64Var(&toneOpts.amplitude, "amplitude", 0.5, "tone amplitude between 0 and 1")
	f.DurationVar(&toneOpts.wait, "wait", 10*time.Second, "how long to listen for translated audio after sending")
}

func runTone(cmd *cobra.Command, args []string) error {
	listenPort, replyPort := config.SlotPorts(toneOpts.basePort, toneOpts.slot)
	out := cmd.OutOrStdout()

	target, err := net.ResolveUDPAddr("udp", net.JoinHostPort(toneOpts.host, strconv.Itoa(listenPort)))
	if err != nil {
		return fmt.Errorf("failed to resolve relay address: %w", err)
	}

	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return fmt.Errorf("failed to open send socket: %w", err)
	}
	defer conn.Close()

	// The relay answers on the caller's IP at the slot's return port
	reply, err := net.ListenUDP("udp", &net.UDPAddr{Port: replyPort})
	if err != nil {
		return fmt.Errorf("failed to listen on return port %d: %w", replyPort, err)
	}
	defer reply.Close()

	var received atomic.Int64
	go func() {
		buf := make([]byte, 2048)
		for {
			n, _, err := reply.ReadFromUDP(buf)
			if err != nil {
				return
			}
			if _, err := rtp.Parse(buf[:n]); err == nil {
				received.Add(1)
			}
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	samples := audio.Tone(toneOpts.frequency, toneOpts.amplitude, int(toneOpts.duration.Seconds()*toneRate), toneRate)
	payload := audio.EncodeMulaw(samples)
	ssrc := uuid.New().ID()

	fmt.Fprintf(out, "Sending %s tone at %.0f Hz to %s, replies expected on port %d\n",
		toneOpts.duration, toneOpts.frequency, target, replyPort)

	sent, err := sendTone(ctx, conn, target, payload, ssrc)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Fprintf(out, "Sent %d packets\n", sent)

	select {
	case <-ctx.Done():
	case <-time.After(toneOpts.wait):
	}
	fmt.Fprintf(out, "Received %d packets\n", received.Load())
	return nil
}

func sendTone(ctx context.Context, conn *net.UDPConn, target *net.UDPAddr, payload []byte, ssrc uint32) (int, error) {
	ticker := time.NewTicker(toneChunkPeriod)
	defer ticker.Stop()

	var (
		seq  uint16
		ts   uint32
		sent int
	)
	for off := 0; off < len(payload); off += toneChunk {
		end := off + toneChunk
		if end > len(payload) {
			end = len(payload)
		}

		if _, err := conn.WriteToUDP(rtp.Build(payload[off:end], seq, ts, ssrc, rtp.PayloadTypePCMU), target); err != nil {
			return sent, fmt.Errorf("failed to send packet %d: %w", seq, err)
		}
		sent++
		seq++
		ts += uint32(end - off)

		select {
		case <-ctx.Done():
			return sent, ctx.Err()
		case <-ticker.C:
		}
	}
	return sent, nil
}
