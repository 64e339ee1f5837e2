package pipeline

import (
	"fmt"

	"github.com/vdkio/vdkio"
	"github.com/vdkio/vdkio/internal/aac"
	"github.com/vdkio/vdkio/internal/bitreader"
	"github.com/vdkio/vdkio/internal/h264"
)

// codecsString derives the RFC 6381 CODECS value for a master playlist
// EXT-X-STREAM-INF tag from a CodecData. H.265 has no retained
// profile/tier/level fields (spec.md §4.D parses only through the
// conformance window), so its tag is the common "general profile 1, main
// tier, level 93" placeholder the pack's gohlslib-derived convention
// uses; H.264 and AAC are derived exactly from parsed fields.
func codecsString(cd vdkio.CodecData) string {
	switch cd.Type {
	case vdkio.H264:
		if tag, ok := h264CodecsTag(cd.ExtraData); ok {
			return tag
		}
		return "avc1.640028"
	case vdkio.H265:
		return "hvc1.1.6.L93.B0"
	case vdkio.AAC:
		if tag, ok := aacCodecsTag(cd.ExtraData); ok {
			return tag
		}
		return "mp4a.40.2"
	default:
		return ""
	}
}

// h264CodecsTag reads profile_idc, the constraint-flags byte, and
// level_idc directly out of the first SPS NALU in extraData (Annex-B
// concatenated SPS+PPS), without going through the full Exp-Golomb SPS
// parse those three fields don't need.
func h264CodecsTag(extraData []byte) (string, bool) {
	nalus, err := h264.DecodeAnnexB(extraData)
	if err != nil {
		return "", false
	}
	for _, nalu := range nalus {
		if h264.NALUHeaderType(nalu) != h264.NALUTypeSPS {
			continue
		}
		rbsp := bitreader.RemoveEmulationPrevention(nalu[1:])
		if len(rbsp) < 3 {
			return "", false
		}
		return fmt.Sprintf("avc1.%02X%02X%02X", rbsp[0], rbsp[1], rbsp[2]), true
	}
	return "", false
}

// aacCodecsTag renders "mp4a.40.<objectType>" from the config's parsed
// AudioSpecificConfig.
func aacCodecsTag(extraData []byte) (string, bool) {
	if len(extraData) == 0 {
		return "", false
	}
	cfg, err := aac.ParseMPEG4AudioConfig(extraData)
	if err != nil {
		return "", false
	}
	return fmt.Sprintf("mp4a.40.%d", cfg.ObjectType), true
}
