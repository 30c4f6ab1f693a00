// Package recording writes the RTP traffic of each call to its own pcap file.
package recording

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/rs/zerolog"
)

const snapLen = 65535

var (
	localMAC  = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	remoteMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

// Recorder manages one pcap writer per session. A nil *Recorder records nothing.
type Recorder struct {
	dir    string
	logger zerolog.Logger

	mu      sync.Mutex
	writers map[string]*callWriter
}

type callWriter struct {
	mu      sync.Mutex
	file    *os.File
	writer  *pcapgo.Writer
	path    string
	packets int
}

// New creates a recorder writing into dir. An empty dir disables recording and returns nil.
func New(dir string, logger zerolog.Logger) (*Recorder, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create recording directory: %w", err)
	}
	return &Recorder{
		dir:     dir,
		logger:  logger.With().Str("component", "recorder").Logger(),
		writers: make(map[string]*callWriter),
	}, nil
}

// Record appends one RTP datagram sent from src to dst to the session's capture,
// opening the capture on first use
func (r *Recorder) Record(key string, src, dst *net.UDPAddr, datagram []byte, at time.Time) error {
	return r.record(key, src, dst, datagram, at, true)
}

// RecordIfOpen is Record for a session whose capture may already be closed.
// It never opens a new capture.
func (r *Recorder) RecordIfOpen(key string, src, dst *net.UDPAddr, datagram []byte, at time.Time) error {
	return r.record(key, src, dst, datagram, at, false)
}

func (r *Recorder) record(key string, src, dst *net.UDPAddr, datagram []byte, at time.Time, create bool) error {
	if r == nil {
		return nil
	}

	w, err := r.writerFor(key, at, create)
	if err != nil || w == nil {
		return err
	}

	frame, err := encapsulate(src, dst, datagram)
	if err != nil {
		return fmt.Errorf("failed to build capture frame: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writer == nil {
		return nil
	}

	ci := gopacket.CaptureInfo{
		Timestamp:     at,
		CaptureLength: len(frame),
		Length:        len(frame),
	}
	if err := w.writer.WritePacket(ci, frame); err != nil {
		return fmt.Errorf("failed to write packet: %w", err)
	}
	w.packets++
	return nil
}

func (r *Recorder) writerFor(key string, at time.Time, create bool) (*callWriter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.writers[key]; ok {
		return w, nil
	}
	if !create {
		return nil, nil
	}

	path := filepath.Join(r.dir, fmt.Sprintf("%s_%d.pcap", fileSafe(key), at.Unix()))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create pcap file: %w", err)
	}

	pw := pcapgo.NewWriter(f)
	if err := pw.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}

	w := &callWriter{file: f, writer: pw, path: path}
	r.writers[key] = w
	r.logger.Info().Str("session_key", key).Str("path", path).Msg("Recording call")
	return w, nil
}

// Path returns the capture file of a session, or "" when nothing was recorded
func (r *Recorder) Path(key string) string {
	if r == nil {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.writers[key]; ok {
		return w.path
	}
	return ""
}

// Close finishes the capture of one session
func (r *Recorder) Close(key string) error {
	if r == nil {
		return nil
	}

	r.mu.Lock()
	w, ok := r.writers[key]
	delete(r.writers, key)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return r.closeWriter(key, w)
}

// CloseAll finishes every open capture
func (r *Recorder) CloseAll() {
	if r == nil {
		return
	}

	r.mu.Lock()
	writers := r.writers
	r.writers = make(map[string]*callWriter)
	r.mu.Unlock()

	for key, w := range writers {
		if err := r.closeWriter(key, w); err != nil {
			r.logger.Error().Err(err).Str("session_key", key).Msg("Failed to close recording")
		}
	}
}

func (r *Recorder) closeWriter(key string, w *callWriter) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.writer = nil
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close pcap file: %w", err)
	}
	r.logger.Info().
		Str("session_key", key).
		Str("path", w.path).
		Int("packets", w.packets).
		Msg("Recording closed")
	return nil
}

// encapsulate wraps a UDP payload in synthetic Ethernet and IPv4 headers
func encapsulate(src, dst *net.UDPAddr, payload []byte) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       localMAC,
		DstMAC:       remoteMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    ipv4(src.IP),
		DstIP:    ipv4(dst.IP),
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(src.Port),
		DstPort: layers.UDPPort(dst.Port),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{ComputeChecksums: true, FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ipv4 maps unspecified or IPv6 addresses onto 0.0.0.0 so the frame stays IPv4
func ipv4(ip net.IP) net.IP {
	if v4 := ip.To4(); v4 != nil {
		return v4
	}
	return net.IPv4zero.To4()
}

func fileSafe(key string) string {
	return strings.NewReplacer(":", "_", "[", "", "]", "", "/", "_").Replace(key)
}
