package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
source:
  url: rtsp://192.0.2.1:554/stream
  username: admin
  password: secret
segmenter:
  outDir: /tmp/out
  maxDiskUsage: 512M
  variants:
    - name: high
      bandwidthB: 2000000
      width: 1280
      height: 720
`

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	fpath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(fpath, []byte(sampleYAML), 0o644))

	c, err := Load(fpath)
	require.NoError(t, err)

	require.Equal(t, "rtsp://192.0.2.1:554/stream", c.Source.URL)
	require.Equal(t, "tcp", c.Source.TransportPreference)
	require.Equal(t, 6.0, c.Segmenter.TargetDurationSecs)
	require.Equal(t, 5, c.Segmenter.Window)
	require.Equal(t, StringSize(512*1024*1024), c.Segmenter.MaxDiskUsage)
	require.Len(t, c.Segmenter.Variants, 1)
	require.Equal(t, "high", c.Segmenter.Variants[0].Name)
}

func TestLoadMissingURLFails(t *testing.T) {
	dir := t.TempDir()
	fpath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(fpath, []byte("segmenter:\n  variants:\n    - name: x\n"), 0o644))

	_, err := Load(fpath)
	require.Error(t, err)
}

func TestLoadNoVariantsFails(t *testing.T) {
	dir := t.TempDir()
	fpath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(fpath, []byte("source:\n  url: rtsp://x/y\n"), 0o644))

	_, err := Load(fpath)
	require.Error(t, err)
}

func TestWatcherSignalsOnWrite(t *testing.T) {
	dir := t.TempDir()
	fpath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(fpath, []byte(sampleYAML), 0o644))

	w, err := NewWatcher(fpath)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(fpath, []byte(sampleYAML+"\n"), 0o644))

	select {
	case <-w.Watch():
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not signal after write")
	}
}
