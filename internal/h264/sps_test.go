package h264

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSPS(t *testing.T) {
	// profile_idc=66 (baseline), level_idc=30, sps_id=0,
	// log2_max_frame_num_minus4=0, pic_order_cnt_type=0,
	// log2_max_pic_order_cnt_lsb_minus4=0, max_num_ref_frames=0,
	// gaps_in_frame_num=0, pic_width_in_mbs_minus1=9 (width=160),
	// pic_height_in_map_units_minus1=7 (height=128), frame_mbs_only=1,
	// direct_8x8_inference=1, frame_cropping=0.
	rbsp := []byte{0x42, 0x00, 0x1E, 0xF8, 0x50, 0x8D}

	sps, err := ParseSPS(rbsp)
	require.NoError(t, err)
	require.Equal(t, uint8(66), sps.ProfileIDC)
	require.Equal(t, uint8(30), sps.LevelIDC)
	require.Equal(t, uint32(0), sps.ID)
	require.Equal(t, 160, sps.Width)
	require.Equal(t, 128, sps.Height)
}
