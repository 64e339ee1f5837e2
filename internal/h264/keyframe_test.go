package h264

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsKeyframe(t *testing.T) {
	for _, ca := range []struct {
		name string
		nalu byte
		want bool
	}{
		{"idr", 0x65, true},
		{"non-idr", 0x41, false},
		{"sps", 0x67, false},
	} {
		t.Run(ca.name, func(t *testing.T) {
			nt := NALUHeaderType([]byte{ca.nalu})
			require.Equal(t, ca.want, IsKeyframe(nt))
		})
	}
}

func TestContainsKeyframe(t *testing.T) {
	require.True(t, ContainsKeyframe([][]byte{{0x67}, {0x68}, {0x65}}))
	require.False(t, ContainsKeyframe([][]byte{{0x67}, {0x68}, {0x41}}))
}
