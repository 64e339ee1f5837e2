package rtsp

import (
	"encoding/binary"
	"io"

	"github.com/vdkio/vdkio/internal/vdkerrors"
)

// InterleavedFrame is one TCP-interleaved RTP/RTCP frame (RFC 2326 §10.12):
// '$' + channel id + 16-bit length + payload.
type InterleavedFrame struct {
	Channel byte
	Payload []byte
}

// ReadInterleavedFrame reads one interleaved frame from r, skipping any
// RTSP response bytes is the caller's responsibility: this function
// assumes the next byte is the '$' marker.
func ReadInterleavedFrame(r io.Reader) (*InterleavedFrame, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, vdkerrors.Wrap(vdkerrors.TransportLost, err, "reading interleaved frame header")
	}
	if hdr[0] != '$' {
		return nil, vdkerrors.New(vdkerrors.ProtocolError, "expected interleaved frame marker, got 0x%02x", hdr[0])
	}

	length := binary.BigEndian.Uint16(hdr[2:4])
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, vdkerrors.Wrap(vdkerrors.TransportLost, err, "reading interleaved frame payload")
	}

	return &InterleavedFrame{Channel: hdr[1], Payload: payload}, nil
}

// WriteInterleavedFrame writes f to w.
func WriteInterleavedFrame(w io.Writer, f *InterleavedFrame) error {
	hdr := [4]byte{'$', f.Channel, 0, 0}
	binary.BigEndian.PutUint16(hdr[2:4], uint16(len(f.Payload)))

	if _, err := w.Write(hdr[:]); err != nil {
		return vdkerrors.Wrap(vdkerrors.TransportLost, err, "writing interleaved frame header")
	}
	if _, err := w.Write(f.Payload); err != nil {
		return vdkerrors.Wrap(vdkerrors.TransportLost, err, "writing interleaved frame payload")
	}
	return nil
}
