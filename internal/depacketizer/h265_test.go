package depacketizer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vdkio/vdkio/internal/rtp"
)

func TestH265SingleNALU(t *testing.T) {
	var d H265
	pkt := &rtp.Packet{Timestamp: 1000, Marker: true, Payload: []byte{0x26, 0x01, 0xAA, 0xBB}}

	au, ts, err := d.Feed(pkt)
	require.NoError(t, err)
	require.Len(t, au, 1)
	require.Equal(t, []byte{0x26, 0x01, 0xAA, 0xBB}, au[0])
	require.EqualValues(t, 1000, ts)
}

func TestH265Aggregation(t *testing.T) {
	var d H265
	// two aggregated NALUs, each prefixed by a 2-byte size
	payload := []byte{
		48 << 1, 0x01, // aggregation indicator, type=48
		0x00, 0x02, 0xAA, 0xBB, // NALU 1: size=2
		0x00, 0x03, 0xCC, 0xDD, 0xEE, // NALU 2: size=3
	}
	pkt := &rtp.Packet{Timestamp: 2000, Marker: true, Payload: payload}

	au, _, err := d.Feed(pkt)
	require.NoError(t, err)
	require.Len(t, au, 2)
	require.Equal(t, []byte{0xAA, 0xBB}, au[0])
	require.Equal(t, []byte{0xCC, 0xDD, 0xEE}, au[1])
}

func TestH265FragmentationReassembly(t *testing.T) {
	var d H265

	start := &rtp.Packet{
		Timestamp: 3000,
		Payload:   []byte{0x62, 0x01, 0x93, 0xAA, 0xBB}, // FU indicator(type 49) + FU header S=1,type=19 + data
	}
	au, _, err := d.Feed(start)
	require.NoError(t, err)
	require.Nil(t, au)

	end := &rtp.Packet{
		Timestamp: 3000,
		Marker:    true,
		Payload:   []byte{0x62, 0x01, 0x53, 0xCC, 0xDD}, // FU header S=0,E=1,type=19
	}
	au, ts, err := d.Feed(end)
	require.NoError(t, err)
	require.Len(t, au, 1)
	require.Equal(t, []byte{0x26, 0x01, 0xAA, 0xBB, 0xCC, 0xDD}, au[0])
	require.EqualValues(t, 3000, ts)
}

func TestH265FragmentationContinuationWithoutStart(t *testing.T) {
	var d H265
	pkt := &rtp.Packet{
		Timestamp: 4000,
		Payload:   []byte{0x62, 0x01, 0x53, 0xCC, 0xDD},
	}
	_, _, err := d.Feed(pkt)
	require.Error(t, err)
}

func TestH265NewTimestampFlushesPendingAU(t *testing.T) {
	var d H265

	first := &rtp.Packet{Timestamp: 100, Payload: []byte{0x26, 0x01, 0xAA}}
	au, _, err := d.Feed(first)
	require.NoError(t, err)
	require.Nil(t, au, "no marker bit yet, access unit should still be pending")

	second := &rtp.Packet{Timestamp: 200, Marker: true, Payload: []byte{0x40, 0x01, 0xBB}}
	au, ts, err := d.Feed(second)
	require.NoError(t, err)
	require.Len(t, au, 1, "a new RTP timestamp must flush the previous access unit")
	require.Equal(t, []byte{0x26, 0x01, 0xAA}, au[0])
	require.EqualValues(t, 100, ts, "the flushed access unit keeps its own timestamp, not the triggering packet's")
}
