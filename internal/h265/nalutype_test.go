package h265

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTypeAndKeyframe(t *testing.T) {
	for _, ca := range []struct {
		name string
		hdr0 byte
		want NALUType
		key  bool
	}{
		{"idr-w-radl", byte(NALUTypeIDRWRADL) << 1, NALUTypeIDRWRADL, true},
		{"idr-n-lp", byte(NALUTypeIDRNLP) << 1, NALUTypeIDRNLP, true},
		{"cra", byte(NALUTypeCRANUT) << 1, NALUTypeCRANUT, true},
		{"trail-r", byte(NALUTypeTrailR) << 1, NALUTypeTrailR, false},
		{"vps", byte(NALUTypeVPS) << 1, NALUTypeVPS, false},
	} {
		t.Run(ca.name, func(t *testing.T) {
			nalu := []byte{ca.hdr0, 0x01}
			nt := Type(nalu)
			require.Equal(t, ca.want, nt)
			require.Equal(t, ca.key, IsKeyframe(nt))
		})
	}
}

func TestLayerIDAndTemporalID(t *testing.T) {
	// nuh_layer_id=0, nuh_temporal_id_plus1=1 is the overwhelmingly common
	// case for a single-layer stream's base temporal sub-layer.
	nalu := []byte{byte(NALUTypeTrailR) << 1, 0x01}
	require.Equal(t, uint8(0), LayerID(nalu))
	require.Equal(t, uint8(1), TemporalIDPlus1(nalu))
}
