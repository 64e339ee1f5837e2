package mpegts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCRC32MPEG2KnownVector(t *testing.T) {
	// "123456789" is the standard CRC check string; CRC-32/MPEG-2's
	// check value over it is 0x0376E6E7.
	require.Equal(t, uint32(0x0376E6E7), crc32MPEG2([]byte("123456789")))
}
