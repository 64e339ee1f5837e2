package sdp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleSDP = "v=0\r\n" +
	"o=- 0 0 IN IP4 127.0.0.1\r\n" +
	"s=stream\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"t=0 0\r\n" +
	"m=video 0 RTP/AVP 96\r\n" +
	"a=rtpmap:96 H264/90000\r\n" +
	"a=fmtp:96 packetization-mode=1;profile-level-id=42001f\r\n" +
	"a=control:trackID=0\r\n" +
	"m=audio 0 RTP/AVP 97\r\n" +
	"a=rtpmap:97 MPEG4-GENERIC/44100/2\r\n" +
	"a=control:trackID=1\r\n"

func TestParse(t *testing.T) {
	sess, err := Parse([]byte(sampleSDP))
	require.NoError(t, err)
	require.Len(t, sess.Medias, 2)

	video := sess.Medias[0]
	require.Equal(t, "video", video.Type)
	require.Equal(t, "trackID=0", video.Control)
	require.Equal(t, "H264", video.RTPMap[96].EncodingName)
	require.Equal(t, 90000, video.RTPMap[96].ClockRate)
	require.Equal(t, "1", video.FMTP[96]["packetization-mode"])

	audio := sess.Medias[1]
	require.Equal(t, "audio", audio.Type)
	require.Equal(t, "MPEG4-GENERIC", audio.RTPMap[97].EncodingName)
	require.Equal(t, 44100, audio.RTPMap[97].ClockRate)
}

func TestParseNoMedia(t *testing.T) {
	_, err := Parse([]byte("v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\n"))
	require.Error(t, err)
}
