package rtp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnmarshalBasic(t *testing.T) {
	buf := []byte{
		0x80, 0x60, 0x00, 0x01, // V=2,P=0,X=0,CC=0 ; M=0,PT=96 ; seq=1
		0x00, 0x00, 0x00, 0x64, // timestamp=100
		0x11, 0x22, 0x33, 0x44, // SSRC
		0xAA, 0xBB, 0xCC, // payload
	}

	p, err := Unmarshal(buf)
	require.NoError(t, err)
	require.EqualValues(t, 2, p.Version)
	require.False(t, p.Padding)
	require.False(t, p.Extension)
	require.False(t, p.Marker)
	require.EqualValues(t, 96, p.PayloadType)
	require.EqualValues(t, 1, p.SequenceNumber)
	require.EqualValues(t, 100, p.Timestamp)
	require.EqualValues(t, 0x11223344, p.SSRC)
	require.Equal(t, []byte{0xAA, 0xBB, 0xCC}, p.Payload)
}

func TestUnmarshalWithPadding(t *testing.T) {
	buf := []byte{
		0xA0, 0x60, 0x00, 0x01, // P=1
		0x00, 0x00, 0x00, 0x64,
		0x11, 0x22, 0x33, 0x44,
		0xAA, 0xBB, 0x00, 0x02, // 2 bytes payload, 2 bytes padding, last byte = pad length
	}

	p, err := Unmarshal(buf)
	require.NoError(t, err)
	require.True(t, p.Padding)
	require.Equal(t, []byte{0xAA, 0xBB}, p.Payload)
}

func TestUnmarshalTooShort(t *testing.T) {
	_, err := Unmarshal([]byte{0x80, 0x60, 0x00})
	require.Error(t, err)
}

func TestUnmarshalWrongVersion(t *testing.T) {
	buf := make([]byte, 12)
	buf[0] = 0x40 // version 1
	_, err := Unmarshal(buf)
	require.Error(t, err)
}

func TestMarshalRoundTrip(t *testing.T) {
	p := &Packet{
		Version:        2,
		Marker:         true,
		PayloadType:    96,
		SequenceNumber: 42,
		Timestamp:      9000,
		SSRC:           0xDEADBEEF,
		CSRC:           []uint32{1, 2},
		Payload:        []byte{1, 2, 3, 4},
	}

	buf, err := p.Marshal()
	require.NoError(t, err)
	require.Len(t, buf, p.MarshalSize())

	out, err := Unmarshal(buf)
	require.NoError(t, err)
	require.Equal(t, p.Marker, out.Marker)
	require.Equal(t, p.PayloadType, out.PayloadType)
	require.Equal(t, p.SequenceNumber, out.SequenceNumber)
	require.Equal(t, p.Timestamp, out.Timestamp)
	require.Equal(t, p.SSRC, out.SSRC)
	require.Equal(t, p.CSRC, out.CSRC)
	require.Equal(t, p.Payload, out.Payload)
}

func TestSequenceLessWraparound(t *testing.T) {
	require.True(t, SequenceLess(10, 20))
	require.False(t, SequenceLess(20, 10))
	require.True(t, SequenceLess(65530, 5), "sequence number must wrap correctly")
}

func TestSequenceDistance(t *testing.T) {
	require.EqualValues(t, 10, SequenceDistance(5, 15))
	require.EqualValues(t, 6, SequenceDistance(65533, 3))
}

func TestTimestampDiff(t *testing.T) {
	require.EqualValues(t, 9000, TimestampDiff(1000, 10000))
	require.EqualValues(t, -9000, TimestampDiff(10000, 1000))
	// wraps past the top of the u32 space the same as an unwrapped delta.
	require.EqualValues(t, 9000, TimestampDiff(0xFFFFFFFF-999, 8000))
}
