package h264

import (
	"github.com/vdkio/vdkio/internal/bitreader"
	"github.com/vdkio/vdkio/internal/vdkerrors"
)

// SPS holds the fields of a Sequence Parameter Set needed to drive TS
// stream-type tagging and to derive picture dimensions. Fields used only
// by full decode are intentionally not retained.
type SPS struct {
	ProfileIDC uint8
	LevelIDC   uint8
	ID         uint32
	Width      int
	Height     int
}

// ParseSPS parses a H.264 SPS NALU's RBSP (emulation prevention already
// removed, and with the one-byte NAL header already stripped) into the
// fields needed for TS stream-type tagging and width/height.
func ParseSPS(rbsp []byte) (*SPS, error) {
	r := bitreader.New(rbsp)

	profileIDC, err := r.ReadBits(8)
	if err != nil {
		return nil, err
	}
	if _, err := r.ReadBits(8); err != nil { // constraint flags + reserved
		return nil, err
	}
	levelIDC, err := r.ReadBits(8)
	if err != nil {
		return nil, err
	}

	spsID, err := r.ReadUE()
	if err != nil {
		return nil, err
	}

	chromaFormatIDC := uint32(1)
	switch profileIDC {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134, 135:
		chromaFormatIDC, err = r.ReadUE()
		if err != nil {
			return nil, err
		}
		if chromaFormatIDC == 3 {
			if _, err := r.ReadBool(); err != nil { // separate_colour_plane_flag
				return nil, err
			}
		}
		if _, err := r.ReadUE(); err != nil { // bit_depth_luma_minus8
			return nil, err
		}
		if _, err := r.ReadUE(); err != nil { // bit_depth_chroma_minus8
			return nil, err
		}
		if _, err := r.ReadBool(); err != nil { // qpprime_y_zero_transform_bypass_flag
			return nil, err
		}
		seqScalingMatrixPresent, err := r.ReadBool()
		if err != nil {
			return nil, err
		}
		if seqScalingMatrixPresent {
			return nil, vdkerrors.New(vdkerrors.Unsupported, "SPS scaling matrices are not supported")
		}
	}

	if _, err := r.ReadUE(); err != nil { // log2_max_frame_num_minus4
		return nil, err
	}

	picOrderCntType, err := r.ReadUE()
	if err != nil {
		return nil, err
	}
	switch picOrderCntType {
	case 0:
		if _, err := r.ReadUE(); err != nil { // log2_max_pic_order_cnt_lsb_minus4
			return nil, err
		}
	case 1:
		if _, err := r.ReadBool(); err != nil { // delta_pic_order_always_zero_flag
			return nil, err
		}
		if _, err := r.ReadSE(); err != nil { // offset_for_non_ref_pic
			return nil, err
		}
		if _, err := r.ReadSE(); err != nil { // offset_for_top_to_bottom_field
			return nil, err
		}
		n, err := r.ReadUE() // num_ref_frames_in_pic_order_cnt_cycle
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < n; i++ {
			if _, err := r.ReadSE(); err != nil {
				return nil, err
			}
		}
	}

	if _, err := r.ReadUE(); err != nil { // max_num_ref_frames
		return nil, err
	}
	if _, err := r.ReadBool(); err != nil { // gaps_in_frame_num_value_allowed_flag
		return nil, err
	}

	picWidthInMbsMinus1, err := r.ReadUE()
	if err != nil {
		return nil, err
	}
	picHeightInMapUnitsMinus1, err := r.ReadUE()
	if err != nil {
		return nil, err
	}

	frameMbsOnly, err := r.ReadBool()
	if err != nil {
		return nil, err
	}
	if !frameMbsOnly {
		if _, err := r.ReadBool(); err != nil { // mb_adaptive_frame_field_flag
			return nil, err
		}
	}

	if _, err := r.ReadBool(); err != nil { // direct_8x8_inference_flag
		return nil, err
	}

	cropLeft, cropRight, cropTop, cropBottom := uint32(0), uint32(0), uint32(0), uint32(0)
	frameCropping, err := r.ReadBool()
	if err != nil {
		return nil, err
	}
	if frameCropping {
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

	frameMbsOnlyMul := uint32(2)
	if frameMbsOnly {
		frameMbsOnlyMul = 1
	}

	width := int((picWidthInMbsMinus1+1)*16) - int((cropLeft+cropRight)*2)
	height := int((picHeightInMapUnitsMinus1+1)*16*frameMbsOnlyMul) - int((cropTop+cropBottom)*2*frameMbsOnlyMul)

	return &SPS{
		ProfileIDC: uint8(profileIDC),
		LevelIDC:   uint8(levelIDC),
		ID:         spsID,
		Width:      width,
		Height:     height,
	}, nil
}
