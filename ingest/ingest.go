// Package ingest is the top-level library entry point binaries (out of
// scope for this module, per spec.md §1) adapt over: it builds a
// session.Session from a config.Config's source section, wires its
// Packets into a pipeline.Driver built from the config's segmenter
// section, and keeps both alive across config.Watcher reloads and
// TransportLost reconnects.
package ingest

import (
	"time"

	"github.com/vdkio/vdkio"
	"github.com/vdkio/vdkio/internal/config"
	"github.com/vdkio/vdkio/internal/logger"
	"github.com/vdkio/vdkio/internal/vdkerrors"
	"github.com/vdkio/vdkio/pipeline"
	"github.com/vdkio/vdkio/session"
)

// backoff bounds for reconnect attempts after a TransportLost error, per
// spec.md §7's "Retryable by caller with exponential backoff (100 ms -> 5 s
// cap)".
const (
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Run opens cfg.Source, drives its Packets through a pipeline.Driver built
// from cfg.Segmenter, and reconnects with exponential backoff on any
// vdkerrors.TransportLost failure. watcher may be nil; when non-nil, a
// write to the watched config file reloads segmenter tuning (target
// duration, window) into the live driver without tearing down the
// session. Run returns only on a non-retryable error or when stop is
// closed.
func Run(cfg *config.Config, log logger.Writer, watcher *config.Watcher, stop <-chan struct{}) error {
	if log == nil {
		log = nopWriter{}
	}

	backoff := initialBackoff
	for {
		err := runOnce(cfg, log, watcher, stop)
		if err == nil {
			return nil
		}
		if !vdkerrors.Retryable(err) {
			return err
		}

		log.Log(logger.Warn, "source lost, reconnecting in %s: %v", backoff, err)
		select {
		case <-stop:
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// runOnce owns exactly one session.Session and one pipeline.Driver for
// the duration of one connection attempt.
func runOnce(cfg *config.Config, log logger.Writer, watcher *config.Watcher, stop <-chan struct{}) error {
	transport := session.TCPInterleaved
	if cfg.Source.TransportPreference == "udp" {
		transport = session.UDPFirstThenTCP
	}

	sess, err := session.Open(cfg.Source.URL, session.Options{
		Transport: transport,
		Log:       logger.WithComponent(log, "rtsp"),
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	src, err := sourceFromSession(sess)
	if err != nil {
		return err
	}

	driver, err := pipeline.NewDriver(cfg.Segmenter.OutDir, src, variantSpecs(cfg), logger.WithComponent(log, "hls"))
	if err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- driver.Run(sess.Packets()) }()

	for {
		select {
		case err := <-done:
			if err != nil {
				return err
			}
			if sessErr := sess.Err(); sessErr != nil {
				return sessErr
			}
			return nil

		case <-stop:
			_ = sess.Close()
			<-done
			return nil

		case <-watchChan(watcher):
			reloaded, err := config.Load(watcher.Path())
			if err != nil {
				log.Log(logger.Warn, "config reload failed, keeping previous tuning: %v", err)
				continue
			}
			driver.Reload(reloaded.Segmenter.TargetDurationSecs, reloaded.Segmenter.Window)
		}
	}
}

// sourceFromSession picks the first video track (H.264 or H.265) and the
// first audio track (AAC) out of a session's SDP-negotiated tracks and
// turns them into a pipeline.Source.
func sourceFromSession(sess *session.Session) (pipeline.Source, error) {
	var src pipeline.Source
	haveVideo := false

	for _, t := range sess.Tracks() {
		cd := t.CodecData()
		switch cd.Type {
		case vdkio.H264, vdkio.H265:
			if haveVideo {
				continue // only one video rendition is muxed; extra video tracks are ignored
			}
			haveVideo = true
			src.VideoStreamID = t.StreamID()
			src.VideoCodec = cd
		case vdkio.AAC:
			if src.HasAudio {
				continue
			}
			src.HasAudio = true
			src.AudioStreamID = t.StreamID()
			src.AudioCodec = cd
		}
	}

	if !haveVideo {
		return pipeline.Source{}, vdkerrors.New(vdkerrors.Unsupported, "no H.264/H.265 video track in SDP")
	}
	return src, nil
}

// variantSpecs maps config.VariantConfig entries onto pipeline.VariantSpec,
// applying the segmenter-wide tuning (target duration, window, VOD) to
// every variant.
func variantSpecs(cfg *config.Config) []pipeline.VariantSpec {
	specs := make([]pipeline.VariantSpec, 0, len(cfg.Segmenter.Variants))
	for _, v := range cfg.Segmenter.Variants {
		specs = append(specs, pipeline.VariantSpec{
			Name:               v.Name,
			BandwidthB:         v.BandwidthB,
			KeyframesOnly:      v.KeyframesOnly,
			TargetDurationSecs: cfg.Segmenter.TargetDurationSecs,
			Window:             cfg.Segmenter.Window,
			VOD:                cfg.Segmenter.VOD,
			MaxDiskUsageBytes:  uint64(cfg.Segmenter.MaxDiskUsage),
		})
	}
	return specs
}

// watchChan returns w's reload channel, or a nil channel (which blocks
// forever in a select) when w is nil.
func watchChan(w *config.Watcher) chan struct{} {
	if w == nil {
		return nil
	}
	return w.Watch()
}

type nopWriter struct{}

func (nopWriter) Log(logger.Level, string, ...interface{}) {}
