package session

import (
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/vdkio/vdkio"
	"github.com/vdkio/vdkio/internal/h264"
	"github.com/vdkio/vdkio/internal/h265"
	"github.com/vdkio/vdkio/internal/sdp"
)

// codecFromRTPMap maps an SDP rtpmap encoding name to the depacketizer this
// module implements. Codecs the rtpmap advertises but this module does not
// implement (e.g. a VP8/Opus media) are reported via ok=false so the
// caller can skip the track rather than fail the whole session.
func codecFromRTPMap(name string) (Codec, bool) {
	switch strings.ToUpper(name) {
	case "H264":
		return CodecH264, true
	case "H265":
		return CodecH265, true
	case "MPEG4-GENERIC":
		return CodecAAC, true
	default:
		return 0, false
	}
}

// spropParameterSets decodes the comma-separated, base64-encoded
// sprop-parameter-sets fmtp parameter (H.264) into its constituent NALUs
// (SPS and PPS).
func spropParameterSets(fmtp map[string]string) [][]byte {
	raw, ok := fmtp["sprop-parameter-sets"]
	if !ok {
		return nil
	}
	var out [][]byte
	for _, part := range strings.Split(raw, ",") {
		b, err := base64.StdEncoding.DecodeString(part)
		if err != nil || len(b) == 0 {
			continue
		}
		out = append(out, b)
	}
	return out
}

// spropVPSSPSPPS decodes H.265's sprop-vps, sprop-sps and sprop-pps fmtp
// parameters, each carried separately, into VPS, SPS, PPS order.
func spropVPSSPSPPS(fmtp map[string]string) [][]byte {
	var out [][]byte
	for _, key := range []string{"sprop-vps", "sprop-sps", "sprop-pps"} {
		raw, ok := fmtp[key]
		if !ok {
			continue
		}
		b, err := base64.StdEncoding.DecodeString(raw)
		if err != nil || len(b) == 0 {
			continue
		}
		out = append(out, b)
	}
	return out
}

// aacConfigFromFMTP decodes the hex-encoded AudioSpecificConfig carried in
// an RFC 3640 fmtp "config" attribute.
func aacConfigFromFMTP(fmtp map[string]string) []byte {
	raw, ok := fmtp["config"]
	if !ok {
		return nil
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return nil
	}
	return b
}

// initialCodecData builds the best CodecData known before any RTP packet
// has arrived, from the SDP fmtp parameters alone. Width/height for
// H.264/H.265 are filled in once a parameter set NALU is actually seen on
// the wire, since fmtp never carries picture dimensions.
func initialCodecData(media sdp.Media, pt int, codec Codec) vdkio.CodecData {
	fmtp := media.FMTP[pt]

	switch codec {
	case CodecH264:
		extra, _ := h264.EncodeAnnexB(spropParameterSets(fmtp))
		return vdkio.CodecData{Type: vdkio.H264, ExtraData: extra}
	case CodecH265:
		extra, _ := h265.EncodeAnnexB(spropVPSSPSPPS(fmtp))
		return vdkio.CodecData{Type: vdkio.H265, ExtraData: extra}
	case CodecAAC:
		return vdkio.CodecData{Type: vdkio.AAC, ExtraData: aacConfigFromFMTP(fmtp)}
	default:
		return vdkio.CodecData{}
	}
}
