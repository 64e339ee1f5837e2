// Package config loads and hot-reloads the YAML configuration that drives
// a source session and its downstream segmenters.
package config

import (
	"os"
	"time"

	"code.cloudfoundry.org/bytefmt"
	"gopkg.in/yaml.v2"

	"github.com/vdkio/vdkio/internal/vdkerrors"
)

// StringSize is a byte count unmarshaled from a human-readable string
// such as "512M" or "2G".
type StringSize uint64

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *StringSize) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var in string
	if err := unmarshal(&in); err != nil {
		return err
	}

	v, err := bytefmt.ToBytes(in)
	if err != nil {
		return vdkerrors.Wrap(vdkerrors.InvalidInput, err, "parsing size %q", in)
	}
	*s = StringSize(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (s StringSize) MarshalYAML() (interface{}, error) {
	return bytefmt.ByteSize(uint64(s)), nil
}

// SourceConfig describes the RTSP source to pull from.
type SourceConfig struct {
	URL                 string        `yaml:"url"`
	Username            string        `yaml:"username"`
	Password            string        `yaml:"password"`
	TransportPreference string        `yaml:"transportPreference"` // "udp" or "tcp"
	KeepAliveInterval   time.Duration `yaml:"keepAliveInterval"`
}

// VariantConfig describes one HLS rendition a segmenter produces.
type VariantConfig struct {
	Name          string `yaml:"name"`
	BandwidthB    int    `yaml:"bandwidthB"`
	Width         int    `yaml:"width"`
	Height        int    `yaml:"height"`
	KeyframesOnly bool   `yaml:"keyframesOnly"`
}

// SegmenterConfig describes the sliding-window HLS segmenter's tuning.
type SegmenterConfig struct {
	TargetDurationSecs float64         `yaml:"targetDurationSecs"`
	Window             int             `yaml:"window"`
	OutDir             string          `yaml:"outDir"`
	MaxDiskUsage       StringSize      `yaml:"maxDiskUsage"`
	VOD                bool            `yaml:"vod"`
	Variants           []VariantConfig `yaml:"variants"`
}

// Config is the top-level configuration document.
type Config struct {
	Source    SourceConfig    `yaml:"source"`
	Segmenter SegmenterConfig `yaml:"segmenter"`
}

func (c *Config) setDefaults() {
	if c.Source.TransportPreference == "" {
		c.Source.TransportPreference = "tcp"
	}
	if c.Source.KeepAliveInterval == 0 {
		c.Source.KeepAliveInterval = 30 * time.Second
	}
	if c.Segmenter.TargetDurationSecs == 0 {
		c.Segmenter.TargetDurationSecs = 6
	}
	if c.Segmenter.Window == 0 {
		c.Segmenter.Window = 5
	}
	if c.Segmenter.OutDir == "" {
		c.Segmenter.OutDir = "."
	}
}

// Validate reports whether the configuration is usable.
func (c *Config) Validate() error {
	if c.Source.URL == "" {
		return vdkerrors.New(vdkerrors.InvalidInput, "source.url is required")
	}
	if c.Source.TransportPreference != "udp" && c.Source.TransportPreference != "tcp" {
		return vdkerrors.New(vdkerrors.InvalidInput, "source.transportPreference must be \"udp\" or \"tcp\"")
	}
	if c.Segmenter.TargetDurationSecs <= 0 {
		return vdkerrors.New(vdkerrors.InvalidInput, "segmenter.targetDurationSecs must be positive")
	}
	if c.Segmenter.Window <= 0 {
		return vdkerrors.New(vdkerrors.InvalidInput, "segmenter.window must be positive")
	}
	if len(c.Segmenter.Variants) == 0 {
		return vdkerrors.New(vdkerrors.InvalidInput, "segmenter.variants must contain at least one entry")
	}
	return nil
}

// Load reads and parses the YAML configuration at fpath.
func Load(fpath string) (*Config, error) {
	byts, err := os.ReadFile(fpath)
	if err != nil {
		return nil, vdkerrors.Wrap(vdkerrors.IO, err, "reading config file %s", fpath)
	}

	var c Config
	if err := yaml.Unmarshal(byts, &c); err != nil {
		return nil, vdkerrors.Wrap(vdkerrors.InvalidInput, err, "parsing config file %s", fpath)
	}

	c.setDefaults()

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return &c, nil
}
