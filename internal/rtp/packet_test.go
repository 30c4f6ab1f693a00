package rtp

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_HeaderLayout(t *testing.T) {
	payload := []byte{0xAA, 0xBB, 0xCC}
	buf := Build(payload, 0x1234, 0xDEADBEEF, 0x01020304, PayloadTypePCMU)

	require.Len(t, buf, HeaderSize+len(payload))
	assert.Equal(t, byte(0x80), buf[0], "version 2, no padding, no extension, no CSRC")
	assert.Equal(t, byte(0x00), buf[1], "marker clear, payload type 0")
	assert.Equal(t, uint16(0x1234), binary.BigEndian.Uint16(buf[2:4]))
	assert.Equal(t, uint32(0xDEADBEEF), binary.BigEndian.Uint32(buf[4:8]))
	assert.Equal(t, uint32(0x01020304), binary.BigEndian.Uint32(buf[8:12]))
	assert.Equal(t, payload, buf[12:])
}

func TestParseBuild_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		seq     uint16
		ts      uint32
		ssrc    uint32
		pt      uint8
	}{
		{"pcmu chunk", make([]byte, 160), 1, 160, 42, PayloadTypePCMU},
		{"max counters", []byte{1, 2, 3}, 65535, 0xFFFFFFFF, 0xFFFFFFFF, 127},
		{"zero values", []byte{0xFF}, 0, 0, 0, 8},
		{"empty payload", []byte{}, 7, 7, 7, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(Build(tt.payload, tt.seq, tt.ts, tt.ssrc, tt.pt))
			require.NoError(t, err)

			assert.Equal(t, uint8(2), p.Version)
			assert.False(t, p.Padding)
			assert.False(t, p.Extension)
			assert.Equal(t, uint8(0), p.CSRCCount)
			assert.False(t, p.Marker)
			assert.Equal(t, tt.pt, p.PayloadType)
			assert.Equal(t, tt.seq, p.SequenceNumber)
			assert.Equal(t, tt.ts, p.Timestamp)
			assert.Equal(t, tt.ssrc, p.SSRC)
			assert.Equal(t, len(tt.payload), len(p.Payload))
			if len(tt.payload) > 0 {
				assert.Equal(t, tt.payload, p.Payload)
			}
		})
	}
}

func TestParse_MalformedShortDatagram(t *testing.T) {
	for _, n := range []int{0, 1, 5, 11} {
		_, err := Parse(make([]byte, n))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMalformedPacket), "length %d", n)
	}
}

func TestParse_HeaderOverrunFallsBackToFixedHeader(t *testing.T) {
	tests := []struct {
		name  string
		first byte
		size  int
	}{
		{"one CSRC in a bare header", 0x81, 12},
		{"fifteen CSRCs in 52 bytes", 0x8F, 52},
		{"extension bit in 14 bytes", 0x90, 14},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, tt.size)
			buf[0] = tt.first
			binary.BigEndian.PutUint16(buf[2:4], 7)
			binary.BigEndian.PutUint32(buf[4:8], 1120)
			binary.BigEndian.PutUint32(buf[8:12], 0xCAFE)
			for i := HeaderSize; i < tt.size; i++ {
				buf[i] = byte(i)
			}

			p, err := Parse(buf)
			require.NoError(t, err)
			assert.Equal(t, uint8(2), p.Version)
			assert.Equal(t, tt.first&0x0F, p.CSRCCount)
			assert.Equal(t, tt.first&0x10 != 0, p.Extension)
			assert.Equal(t, uint16(7), p.SequenceNumber)
			assert.Equal(t, uint32(1120), p.Timestamp)
			assert.Equal(t, uint32(0xCAFE), p.SSRC)
			assert.Equal(t, buf[HeaderSize:], p.Payload)
		})
	}
}

func TestParse_MarkerAndPayloadType(t *testing.T) {
	buf := Build([]byte{9}, 10, 20, 30, 0)
	buf[1] = 0x80 | 18 // marker set, payload type 18

	p, err := Parse(buf)
	require.NoError(t, err)
	assert.True(t, p.Marker)
	assert.Equal(t, uint8(18), p.PayloadType)
}

func TestParse_CSRCCount(t *testing.T) {
	buf := Build(nil, 1, 2, 3, 0)
	buf[0] |= 0x02
	buf = append(buf[:HeaderSize], append(make([]byte, 8), 0x7F)...)

	p, err := Parse(buf)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), p.CSRCCount)
	assert.Equal(t, []byte{0x7F}, p.Payload)
}
