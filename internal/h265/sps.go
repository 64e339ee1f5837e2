package h265

import (
	"github.com/vdkio/vdkio/internal/bitreader"
)

// SPS holds the fields of an H.265 Sequence Parameter Set that this module
// needs: width/height derivation.
type SPS struct {
	ID     uint32
	Width  int
	Height int
}

// ParseSPS parses an H.265 SPS NALU's RBSP (2-byte NAL header and
// emulation prevention already removed) into width/height.
func ParseSPS(rbsp []byte) (*SPS, error) {
	r := bitreader.New(rbsp)

	if _, err := r.ReadBits(4); err != nil { // sps_video_parameter_set_id
		return nil, err
	}
	maxSubLayersMinus1, err := r.ReadBits(3)
	if err != nil {
		return nil, err
	}
	if _, err := r.ReadBool(); err != nil { // sps_temporal_id_nesting_flag
		return nil, err
	}

	if err := skipProfileTierLevel(r, int(maxSubLayersMinus1)); err != nil {
		return nil, err
	}

	spsID, err := r.ReadUE()
	if err != nil {
		return nil, err
	}

	chromaFormatIDC, err := r.ReadUE()
	if err != nil {
		return nil, err
	}
	if chromaFormatIDC == 3 {
		if _, err := r.ReadBool(); err != nil { // separate_colour_plane_flag
			return nil, err
		}
	}

	picWidth, err := r.ReadUE()
	if err != nil {
		return nil, err
	}
	picHeight, err := r.ReadUE()
	if err != nil {
		return nil, err
	}

	cropLeft, cropRight, cropTop, cropBottom := uint32(0), uint32(0), uint32(0), uint32(0)
	cropping, err := r.ReadBool()
	if err != nil {
		return nil, err
	}
	if cropping {
		if cropLeft, err = r.ReadUE(); err != nil {
			return nil, err
		}
		if cropRight, err = r.ReadUE(); err != nil {
			return nil, err
		}
		if cropTop, err = r.ReadUE(); err != nil {
			return nil, err
		}
		if cropBottom, err = r.ReadUE(); err != nil {
			return nil, err
		}
	}

	// sub width/height C for 4:2:0 (the overwhelmingly common case in RTSP
	// camera feeds) is 2; this module does not need exact cropping for
	// other chroma formats beyond a best-effort width/height.
	subWidthC, subHeightC := uint32(2), uint32(2)
	if chromaFormatIDC == 0 {
		subWidthC, subHeightC = 1, 1
	} else if chromaFormatIDC == 2 {
		subHeightC = 1
	}

	width := int(picWidth) - int((cropLeft+cropRight)*subWidthC)
	height := int(picHeight) - int((cropTop+cropBottom)*subHeightC)

	return &SPS{ID: spsID, Width: width, Height: height}, nil
}

// skipProfileTierLevel consumes the profile_tier_level() structure (RFC
// 7798 / H.265 §7.3.3), whose fixed 88-bit general profile block is
// followed by a variable sub-layer block. Only its bit length matters
// here; no field is retained.
func skipProfileTierLevel(r *bitreader.Reader, maxSubLayersMinus1 int) error {
	if _, err := r.ReadBits(88); err != nil {
		return err
	}
	if _, err := r.ReadBits(8); err != nil { // general_level_idc
		return err
	}

	subLayerProfilePresent := make([]bool, maxSubLayersMinus1)
	subLayerLevelPresent := make([]bool, maxSubLayersMinus1)
	for i := 0; i < maxSubLayersMinus1; i++ {
		p, err := r.ReadBool()
		if err != nil {
			return err
		}
		l, err := r.ReadBool()
		if err != nil {
			return err
		}
		subLayerProfilePresent[i] = p
		subLayerLevelPresent[i] = l
	}
	if maxSubLayersMinus1 > 0 {
		for i := maxSubLayersMinus1; i < 8; i++ {
			if _, err := r.ReadBits(2); err != nil { // reserved_zero_2bits
				return err
			}
		}
	}
	for i := 0; i < maxSubLayersMinus1; i++ {
		if subLayerProfilePresent[i] {
			if _, err := r.ReadBits(88); err != nil {
				return err
			}
		}
		if subLayerLevelPresent[i] {
			if _, err := r.ReadBits(8); err != nil {
				return err
			}
		}
	}
	return nil
}
