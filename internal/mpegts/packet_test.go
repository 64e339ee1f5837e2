package mpegts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteTablesPacketInvariant(t *testing.T) {
	var packets [][]byte
	w := NewWriter(func(p []byte) { packets = append(packets, append([]byte(nil), p...)) },
		DefaultPIDPMT, DefaultPIDVideo, DefaultPIDAudio, true, StreamTypeH264, StreamTypeAAC)

	w.WriteTables()

	require.Len(t, packets, 2)
	for _, p := range packets {
		require.Len(t, p, PacketSize)
		require.Equal(t, byte(0x47), p[0])
	}
}

func TestWritePESProducesValidPackets(t *testing.T) {
	var packets [][]byte
	w := NewWriter(func(p []byte) { packets = append(packets, append([]byte(nil), p...)) },
		DefaultPIDPMT, DefaultPIDVideo, DefaultPIDAudio, false, StreamTypeH264, 0)

	payload := make([]byte, 8*1024)
	for i := range payload {
		payload[i] = byte(i)
	}

	err := w.WritePES(DefaultPIDVideo, true, 90000, 90000, payload)
	require.NoError(t, err)
	require.NotEmpty(t, packets)

	for _, p := range packets {
		require.Len(t, p, PacketSize)
		require.Equal(t, byte(0x47), p[0])
	}

	first := packets[0]
	require.NotZero(t, first[1]&0x40, "first packet must have PUSI set")
	require.Equal(t, byte(0x30), first[3]&0x30, "first packet must carry both adaptation field and payload")
}

func TestContinuityCounterIncrements(t *testing.T) {
	var packets [][]byte
	w := NewWriter(func(p []byte) { packets = append(packets, append([]byte(nil), p...)) },
		DefaultPIDPMT, DefaultPIDVideo, DefaultPIDAudio, false, StreamTypeH264, 0)

	payload := make([]byte, 2000)
	err := w.WritePES(DefaultPIDVideo, true, 90000, 90000, payload)
	require.NoError(t, err)

	var prevCC int
	first := true
	for _, p := range packets {
		if p[1]&0x1F != byte(DefaultPIDVideo>>8) || p[2] != byte(DefaultPIDVideo) {
			continue
		}
		hasPayload := p[3]&0x10 != 0
		if !hasPayload {
			continue
		}
		cc := int(p[3] & 0x0F)
		if !first {
			require.Equal(t, (prevCC+1)%16, cc)
		}
		prevCC = cc
		first = false
	}
}
