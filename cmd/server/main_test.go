package main

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexiqai/rtp-translator/internal/rtp"
)

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	defer rootCmd.SetArgs(nil)

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, version+"\n", out.String())
}

func TestSendTone(t *testing.T) {
	relay, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer relay.Close()

	conn, err := net.ListenUDP("udp", nil)
	require.NoError(t, err)
	defer conn.Close()

	payload := bytes.Repeat([]byte{0x55}, 400)
	sent, err := sendTone(context.Background(), conn, relay.LocalAddr().(*net.UDPAddr), payload, 42)
	require.NoError(t, err)
	assert.Equal(t, 3, sent)

	buf := make([]byte, 2048)
	wantTS := []uint32{0, 160, 320}
	wantLen := []int{160, 160, 80}
	for i := 0; i < 3; i++ {
		require.NoError(t, relay.SetReadDeadline(time.Now().Add(2*time.Second)))
		n, _, err := relay.ReadFromUDP(buf)
		require.NoError(t, err)

		pkt, err := rtp.Parse(buf[:n])
		require.NoError(t, err)
		assert.Equal(t, uint16(i), pkt.SequenceNumber)
		assert.Equal(t, wantTS[i], pkt.Timestamp)
		assert.Equal(t, uint32(42), pkt.SSRC)
		assert.Len(t, pkt.Payload, wantLen[i])
	}
}

func TestSendTone_StopsOnCancel(t *testing.T) {
	relay, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer relay.Close()

	conn, err := net.ListenUDP("udp", nil)
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sent, err := sendTone(ctx, conn, relay.LocalAddr().(*net.UDPAddr), make([]byte, 1600), 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, sent)
}
