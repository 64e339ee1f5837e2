package h264

import (
	"bytes"

	"github.com/vdkio/vdkio/internal/vdkerrors"
)

var startCode3 = []byte{0x00, 0x00, 0x01}

// startCodeLen reports the length of the Annex-B start code data begins
// with (3 or 4 bytes), or 0 if data does not begin with one.
func startCodeLen(data []byte) int {
	if len(data) >= 4 && data[0] == 0 && data[1] == 0 && data[2] == 0 && data[3] == 1 {
		return 4
	}
	if len(data) >= 3 && data[0] == 0 && data[1] == 0 && data[2] == 1 {
		return 3
	}
	return 0
}

// DecodeAnnexB splits an Annex-B byte stream (ITU-T H.264 Annex B / the
// RTSP SPROP-parameter-sets and AU delivery format this module consumes
// from SDP and RTP) into its constituent NALUs, stripping the 3- or
// 4-byte start codes between them.
func DecodeAnnexB(data []byte) ([][]byte, error) {
	n := startCodeLen(data)
	if n == 0 {
		return nil, vdkerrors.New(vdkerrors.InvalidBitstream, "Annex-B stream missing leading start code")
	}
	data = data[n:]

	var nalus [][]byte
	for {
		idx := bytes.Index(data, startCode3)
		if idx < 0 {
			if len(data) == 0 {
				return nil, vdkerrors.New(vdkerrors.InvalidBitstream, "empty NALU in Annex-B stream")
			}
			return append(nalus, data), nil
		}

		end := idx
		if end > 0 && data[end-1] == 0x00 {
			end-- // the 4-byte start code's extra leading zero belongs to the delimiter
		}
		if end == 0 {
			return nil, vdkerrors.New(vdkerrors.InvalidBitstream, "empty NALU in Annex-B stream")
		}
		nalus = append(nalus, data[:end])
		data = data[idx+len(startCode3):]
	}
}

// EncodeAnnexB joins NALUs back into an Annex-B byte stream, each prefixed
// by a 4-byte start code.
func EncodeAnnexB(nalus [][]byte) ([]byte, error) {
	var out []byte
	for _, nalu := range nalus {
		out = append(out, 0x00, 0x00, 0x00, 0x01)
		out = append(out, nalu...)
	}
	return out, nil
}
