// Package rtp parses and builds the fixed-header media packets exchanged with the switch.
package rtp

import (
	"encoding/binary"
	"errors"
	"fmt"

	pionrtp "github.com/pion/rtp"
)

const (
	// HeaderSize is the fixed RTP header length without CSRCs or extensions
	HeaderSize = 12

	// PayloadTypePCMU is the static payload type for G.711 μ-law at 8 kHz
	PayloadTypePCMU uint8 = 0

	version = 2
)

// ErrMalformedPacket is returned for datagrams that cannot be framed as RTP
var ErrMalformedPacket = errors.New("malformed RTP packet")

// Packet is a decoded RTP packet
type Packet struct {
	Version        uint8
	Padding        bool
	Extension      bool
	CSRCCount      uint8
	Marker         bool
	PayloadType    uint8
	SequenceNumber uint16
	Timestamp      uint32
	SSRC           uint32
	Payload        []byte
}

// Parse decodes a datagram. Only a datagram shorter than the fixed header is
// ErrMalformedPacket. CSRCs, extension and padding are stripped from the payload
// when the datagram holds them; when their bits promise more bytes than it has,
// everything after the fixed header is the payload. The returned payload aliases data.
func Parse(data []byte) (*Packet, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the %d byte header", ErrMalformedPacket, len(data), HeaderSize)
	}

	var p pionrtp.Packet
	if err := p.Unmarshal(data); err != nil {
		return parseFixed(data), nil
	}

	return &Packet{
		Version:        p.Version,
		Padding:        p.Padding,
		Extension:      p.Extension,
		CSRCCount:      uint8(len(p.CSRC)),
		Marker:         p.Marker,
		PayloadType:    p.PayloadType,
		SequenceNumber: p.SequenceNumber,
		Timestamp:      p.Timestamp,
		SSRC:           p.SSRC,
		Payload:        p.Payload,
	}, nil
}

// parseFixed reads the fixed header only. data must hold at least HeaderSize bytes.
func parseFixed(data []byte) *Packet {
	return &Packet{
		Version:        data[0] >> 6,
		Padding:        data[0]&0x20 != 0,
		Extension:      data[0]&0x10 != 0,
		CSRCCount:      data[0] & 0x0F,
		Marker:         data[1]&0x80 != 0,
		PayloadType:    data[1] & 0x7F,
		SequenceNumber: binary.BigEndian.Uint16(data[2:4]),
		Timestamp:      binary.BigEndian.Uint32(data[4:8]),
		SSRC:           binary.BigEndian.Uint32(data[8:12]),
		Payload:        data[HeaderSize:],
	}
}

// Build encodes a packet with version 2 and no padding, extension or CSRCs
func Build(payload []byte, seq uint16, ts uint32, ssrc uint32, payloadType uint8) []byte {
	p := pionrtp.Packet{
		Header: pionrtp.Header{
			Version:        version,
			PayloadType:    payloadType,
			SequenceNumber: seq,
			Timestamp:      ts,
			SSRC:           ssrc,
		},
		Payload: payload,
	}

	// Marshal only fails on header fields Build never sets
	buf, err := p.Marshal()
	if err != nil {
		panic(fmt.Sprintf("rtp: marshal fixed header: %v", err))
	}
	return buf
}
