package depacketizer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vdkio/vdkio/internal/rtp"
)

func TestH264SingleNALU(t *testing.T) {
	var d H264
	nalus, ts, err := d.Feed(&rtp.Packet{Timestamp: 1000, Marker: true, Payload: []byte{0x65, 0x01, 0x02}})
	require.NoError(t, err)
	require.Equal(t, [][]byte{{0x65, 0x01, 0x02}}, nalus)
	require.EqualValues(t, 1000, ts)
}

func TestH264STAPA(t *testing.T) {
	var d H264
	payload := []byte{24, 0x00, 0x02, 0x67, 0xAA, 0x00, 0x02, 0x68, 0xBB}
	nalus, _, err := d.Feed(&rtp.Packet{Timestamp: 1000, Marker: true, Payload: payload})
	require.NoError(t, err)
	require.Equal(t, [][]byte{{0x67, 0xAA}, {0x68, 0xBB}}, nalus)
}

func TestH264FUAReassembly(t *testing.T) {
	var d H264
	start := []byte{28, 0x85, 0xAA, 0xBB} // FU indicator, S=1 type=5
	mid := []byte{28, 0x05, 0xCC, 0xDD}   // continuation
	end := []byte{28, 0x45, 0xEE}         // E=1

	nalus, _, err := d.Feed(&rtp.Packet{Timestamp: 1000, Payload: start})
	require.NoError(t, err)
	require.Nil(t, nalus)

	nalus, _, err = d.Feed(&rtp.Packet{Timestamp: 1000, Payload: mid})
	require.NoError(t, err)
	require.Nil(t, nalus)

	nalus, ts, err := d.Feed(&rtp.Packet{Timestamp: 1000, Marker: true, Payload: end})
	require.NoError(t, err)
	require.Len(t, nalus, 1)
	require.Equal(t, []byte{0x05, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE}, nalus[0])
	require.EqualValues(t, 1000, ts)
}

func TestH264FUAContinuationWithoutStart(t *testing.T) {
	var d H264
	_, _, err := d.Feed(&rtp.Packet{Timestamp: 1000, Payload: []byte{28, 0x05, 0xCC}})
	require.Error(t, err)
}

func TestH264QueuesSecondAUWhenBothCompleteInOneCall(t *testing.T) {
	var d H264

	// first access unit never gets its marker bit.
	nalus, _, err := d.Feed(&rtp.Packet{Timestamp: 1000, Payload: []byte{0x65, 0x01}})
	require.NoError(t, err)
	require.Nil(t, nalus)

	// second packet both flushes the stale access unit (new timestamp)
	// and completes its own (marker set) in the same call; both must
	// eventually be delivered, not just the first, each tagged with the
	// RTP timestamp it actually belongs to.
	nalus, ts, err := d.Feed(&rtp.Packet{Timestamp: 2000, Marker: true, Payload: []byte{0x41, 0x02}})
	require.NoError(t, err)
	require.Equal(t, [][]byte{{0x65, 0x01}}, nalus, "the stale access unit is returned first")
	require.EqualValues(t, 1000, ts, "it keeps its own, now-stale, timestamp")

	nalus, ts, err = d.Feed(&rtp.Packet{Timestamp: 3000, Marker: true, Payload: []byte{0x41, 0x03}})
	require.NoError(t, err)
	require.Equal(t, [][]byte{{0x41, 0x02}}, nalus, "the queued second access unit surfaces on the next call")
	require.EqualValues(t, 2000, ts)
}
