package ingest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vdkio/vdkio/internal/config"
)

func TestVariantSpecsAppliesSharedSegmenterTuning(t *testing.T) {
	cfg := &config.Config{
		Segmenter: config.SegmenterConfig{
			TargetDurationSecs: 4,
			Window:             3,
			VOD:                true,
			Variants: []config.VariantConfig{
				{Name: "high", BandwidthB: 2_000_000, Width: 1920, Height: 1080},
				{Name: "low", BandwidthB: 400_000, KeyframesOnly: true},
			},
		},
	}

	specs := variantSpecs(cfg)
	require.Len(t, specs, 2)

	require.Equal(t, "high", specs[0].Name)
	require.Equal(t, 2_000_000, specs[0].BandwidthB)
	require.False(t, specs[0].KeyframesOnly)
	require.Equal(t, 4.0, specs[0].TargetDurationSecs)
	require.Equal(t, 3, specs[0].Window)
	require.True(t, specs[0].VOD)

	require.Equal(t, "low", specs[1].Name)
	require.True(t, specs[1].KeyframesOnly)
	require.Equal(t, 4.0, specs[1].TargetDurationSecs)
}
