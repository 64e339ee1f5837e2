package rtcp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCompoundSenderReport(t *testing.T) {
	buf := []byte{
		0x80, TypeSR, 0x00, 0x06, // V=2,P=0,RC=0 ; type=SR ; length=6 words (28 bytes body after header)
		0x11, 0x22, 0x33, 0x44, // SSRC
		0x00, 0x00, 0x00, 0x01, // NTP seconds
		0x00, 0x00, 0x00, 0x02, // NTP fraction
		0x00, 0x00, 0x23, 0x28, // RTP timestamp = 9000
		0x00, 0x00, 0x00, 0x05, // packet count
		0x00, 0x00, 0x03, 0xE8, // octet count
	}

	pkts, err := ParseCompound(buf)
	require.NoError(t, err)
	require.Len(t, pkts, 1)
	require.NotNil(t, pkts[0].SR)
	require.EqualValues(t, 0x11223344, pkts[0].SR.SSRC)
	require.EqualValues(t, 9000, pkts[0].SR.RTPTimestamp)
	require.EqualValues(t, 5, pkts[0].SR.PacketCount)
	require.Empty(t, pkts[0].SR.ReportBlocks)
}

func TestMarshalAndParseReceiverReport(t *testing.T) {
	rr := &ReceiverReport{
		ReportBlocks: []ReportBlock{
			{
				SSRC:             0xAABBCCDD,
				FractionLost:     10,
				PacketsLost:      -5,
				HighestSeqNumber: 1000,
				Jitter:           42,
				LastSR:           7,
				DelaySinceLastSR: 8,
			},
		},
	}

	buf := MarshalReceiverReport(rr, 0x12345678)
	pkts, err := ParseCompound(buf)
	require.NoError(t, err)
	require.Len(t, pkts, 1)
	require.NotNil(t, pkts[0].RR)
	require.EqualValues(t, 0x12345678, pkts[0].RR.SSRC)
	require.Len(t, pkts[0].RR.ReportBlocks, 1)

	block := pkts[0].RR.ReportBlocks[0]
	require.EqualValues(t, 0xAABBCCDD, block.SSRC)
	require.EqualValues(t, 10, block.FractionLost)
	require.EqualValues(t, -5, block.PacketsLost)
	require.EqualValues(t, 1000, block.HighestSeqNumber)
}

func TestParseCompoundBye(t *testing.T) {
	buf := []byte{
		0x81, TypeBye, 0x00, 0x01, // RC=1, length=1 word (4 bytes)
		0x00, 0x00, 0x00, 0x07, // SSRC
	}

	pkts, err := ParseCompound(buf)
	require.NoError(t, err)
	require.Len(t, pkts, 1)
	require.NotNil(t, pkts[0].Bye)
	require.Equal(t, []uint32{7}, pkts[0].Bye.Sources)
}

func TestParseCompoundTruncated(t *testing.T) {
	_, err := ParseCompound([]byte{0x80, TypeSR, 0x00})
	require.Error(t, err)
}

func TestParseCompoundUnknownType(t *testing.T) {
	buf := []byte{0x80, 0xFE, 0x00, 0x01, 0, 0, 0, 0}
	_, err := ParseCompound(buf)
	require.Error(t, err)
}

func TestParseCompoundMultiplePackets(t *testing.T) {
	rrBuf := MarshalReceiverReport(&ReceiverReport{}, 0x01)
	byeBuf := []byte{0x81, TypeBye, 0x00, 0x01, 0x00, 0x00, 0x00, 0x07}

	buf := append(append([]byte{}, rrBuf...), byeBuf...)
	pkts, err := ParseCompound(buf)
	require.NoError(t, err)
	require.Len(t, pkts, 2)
	require.NotNil(t, pkts[0].RR)
	require.NotNil(t, pkts[1].Bye)
}
