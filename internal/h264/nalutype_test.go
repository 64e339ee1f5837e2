package h264

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNALUTypeString(t *testing.T) {
	require.Equal(t, "IDR", NALUTypeIDR.String())
	require.Equal(t, "SPS", NALUTypeSPS.String())
	require.Equal(t, "unknown(20)", NALUType(20).String())
}
