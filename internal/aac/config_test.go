package aac

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMPEG4AudioConfig(t *testing.T) {
	// AAC-LC, 44100 Hz, stereo.
	cfg, err := ParseMPEG4AudioConfig([]byte{0x12, 0x10})
	require.NoError(t, err)
	require.Equal(t, 2, cfg.ObjectType)
	require.Equal(t, 44100, cfg.SampleRate)
	require.Equal(t, 2, cfg.ChannelCount)
}

func TestParseAUHeaders(t *testing.T) {
	// AU-headers-length=16 bits, one header: sizeLength=13, indexLength=3,
	// size=100, indexDelta=0.
	payload := []byte{
		0x00, 0x10, // AU-headers-length = 16 bits
		0x03, 0x20, // size=100 (0b0001100100), indexDelta=0, padded
		0xAA, 0xBB, // AU payload
	}
	headers, rest, err := ParseAUHeaders(payload, 13, 3)
	require.NoError(t, err)
	require.Len(t, headers, 1)
	require.Equal(t, uint16(100), headers[0].Size)
	require.Equal(t, uint16(0), headers[0].IndexDelta)
	require.Equal(t, []byte{0xAA, 0xBB}, rest)
}
