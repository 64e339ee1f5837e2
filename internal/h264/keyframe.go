package h264

// NALUHeaderType extracts the NALU type from the first byte of a NALU
// (Annex-B or AVCC, both use the same one-byte header).
func NALUHeaderType(nalu []byte) NALUType {
	if len(nalu) == 0 {
		return 0
	}
	return NALUType(nalu[0] & 0x1F)
}

// IsKeyframe reports whether a NALU type marks an access unit as a
// keyframe: an IDR slice (type 5).
func IsKeyframe(nt NALUType) bool {
	return nt == NALUTypeIDR
}

// ContainsKeyframe reports whether any NALU in an access unit (as produced
// by splitting an Annex-B or AVCC frame) is an IDR slice.
func ContainsKeyframe(nalus [][]byte) bool {
	for _, nalu := range nalus {
		if IsKeyframe(NALUHeaderType(nalu)) {
			return true
		}
	}
	return false
}
