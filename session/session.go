// Package session owns one RTSP source end-to-end: SDP-driven track setup,
// RTP/RTCP reception (UDP or TCP-interleaved), jitter buffering and
// depacketization, producing a single ordered stream of vdkio.Packet.
package session

import (
	"net"
	"sync"
	"time"

	"github.com/vdkio/vdkio"
	"github.com/vdkio/vdkio/internal/logger"
	"github.com/vdkio/vdkio/internal/rtcp"
	"github.com/vdkio/vdkio/internal/rtp"
	"github.com/vdkio/vdkio/internal/rtspurl"
	"github.com/vdkio/vdkio/internal/sdp"
	"github.com/vdkio/vdkio/internal/vdkerrors"
	"github.com/vdkio/vdkio/rtsp"
)

// packetChanCapacity is the bounded channel depth between the
// depacketizers and whatever consumes the session's packet stream
// (muxer, segmenter, ...).
const packetChanCapacity = 256

// drainInterval is how often a track's jitter buffer is polled for
// deliverable packets; it must be well under jitter.DefaultMaxDelay so a
// gap flush fires close to its deadline.
const drainInterval = 20 * time.Millisecond

// receiverReportInterval is the cadence for client-side RTCP RR emission.
const receiverReportInterval = 5 * time.Second

// TransportPreference selects how Session negotiates RTP transport.
type TransportPreference int

// transport preferences.
const (
	TCPInterleaved TransportPreference = iota
	UDPFirstThenTCP
)

// Options configures a Session.
type Options struct {
	Transport TransportPreference
	Log       logger.Writer
}

// Session is one connected RTSP source, playing and emitting Packets on
// its output channel until Close is called or the transport is lost.
type Session struct {
	client *rtsp.Client
	log    logger.Writer
	tracks []*track

	out    chan vdkio.Packet
	errs   chan error
	wg     sync.WaitGroup
	closed chan struct{}
	once   sync.Once
}

// Open dials u, runs DESCRIBE/SETUP for every supported media, and PLAYs.
// The caller owns the returned Session and must call Close when done.
func Open(url string, opts Options) (*Session, error) {
	u, err := rtspurl.Parse(url)
	if err != nil {
		return nil, err
	}

	log := opts.Log
	if log == nil {
		log = nopWriter{}
	}

	client, err := rtsp.Dial(u, log)
	if err != nil {
		return nil, err
	}

	s := &Session{
		client: client,
		// per-packet warnings (malformed RTP, depacketizer faults) can
		// flood a degraded source; rate-limit them independently of the
		// client's own connection-lifecycle logging.
		log:    logger.NewLimitedLogger(log),
		out:    make(chan vdkio.Packet, packetChanCapacity),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}

	if err := s.setup(opts.Transport); err != nil {
		_ = client.Close()
		return nil, err
	}

	if err := client.Play(); err != nil {
		_ = client.Close()
		return nil, err
	}

	s.start()
	return s, nil
}

func (s *Session) setup(pref TransportPreference) error {
	sdpSession, err := s.client.Describe()
	if err != nil {
		return err
	}

	for i, media := range sdpSession.Medias {
		codec, pt, ok := selectCodec(media)
		if !ok {
			continue // unsupported media kind: skip, don't fail the session
		}

		rtspTrack, err := s.setupTrack(media, pref)
		if err != nil {
			return err
		}

		clockRate := uint32(90000)
		if rm, ok := media.RTPMap[pt]; ok && rm.ClockRate > 0 {
			clockRate = uint32(rm.ClockRate)
		}

		s.tracks = append(s.tracks, newTrack(i, rtspTrack, media, pt, codec, clockRate))
	}

	if len(s.tracks) == 0 {
		return vdkerrors.New(vdkerrors.Unsupported, "no supported media in SDP")
	}
	return nil
}

func (s *Session) setupTrack(media sdp.Media, pref TransportPreference) (*rtsp.Track, error) {
	if pref == TCPInterleaved {
		return s.client.Setup(media, rtsp.TransportTCPInterleaved, [2]int{})
	}

	rtpConn, rtcpConn, clientPorts, err := allocateUDPPair()
	if err != nil {
		// fall back to TCP-interleaved when local UDP ports can't be bound.
		return s.client.Setup(media, rtsp.TransportTCPInterleaved, [2]int{})
	}

	track, err := s.client.Setup(media, rtsp.TransportUDP, clientPorts)
	if err != nil {
		_ = rtpConn.Close()
		_ = rtcpConn.Close()
		return nil, err
	}
	track.RTPConn = rtpConn
	track.RTCPConn = rtcpConn
	return track, nil
}

// selectCodec picks the first rtpmap entry on media whose encoding name
// this module depacketizes.
func selectCodec(media sdp.Media) (Codec, int, bool) {
	for _, pt := range media.Formats {
		rm, ok := media.RTPMap[pt]
		if !ok {
			continue
		}
		if codec, ok := codecFromRTPMap(rm.EncodingName); ok {
			return codec, pt, true
		}
	}
	return 0, 0, false
}

// allocateUDPPair binds two consecutive local UDP ports for a track's RTP
// and RTCP.
func allocateUDPPair() (net.PacketConn, net.PacketConn, [2]int, error) {
	for attempt := 0; attempt < 16; attempt++ {
		rtpConn, err := net.ListenUDP("udp", &net.UDPAddr{})
		if err != nil {
			return nil, nil, [2]int{}, err
		}
		port := rtpConn.LocalAddr().(*net.UDPAddr).Port
		if rtcpConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port + 1}); err == nil {
			return rtpConn, rtcpConn, [2]int{port, port + 1}, nil
		}
		_ = rtpConn.Close()
	}
	return nil, nil, [2]int{}, vdkerrors.New(vdkerrors.TransportLost, "no free pair of local UDP ports")
}

func (s *Session) start() {
	for _, t := range s.tracks {
		t := t
		if t.rtsp.Transport == rtsp.TransportUDP {
			s.wg.Add(2)
			go s.readUDP(t, t.rtsp.RTPConn, false)
			go s.readUDP(t, t.rtsp.RTCPConn, true)
		}
		s.wg.Add(2)
		go s.drainLoop(t)
		go s.rtcpLoop(t)
	}

	if s.usesTCPInterleaved() {
		s.wg.Add(1)
		go s.readInterleaved()
	}
}

func (s *Session) usesTCPInterleaved() bool {
	for _, t := range s.tracks {
		if t.rtsp.Transport == rtsp.TransportTCPInterleaved {
			return true
		}
	}
	return false
}

func (s *Session) readUDP(t *track, conn net.PacketConn, isRTCP bool) {
	defer s.wg.Done()
	buf := make([]byte, 2048)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-s.closed:
			default:
				s.fail(err)
			}
			return
		}

		if isRTCP {
			continue // RTCP SR/BYE handling from the source is out of scope for packet production
		}

		pkt, err := rtp.Unmarshal(buf[:n])
		if err != nil {
			s.log.Log(logger.Warn, "dropping malformed RTP packet on track %d: %v", t.index, err)
			continue
		}
		t.insert(pkt, time.Now())
	}
}

// readInterleaved reads the single shared TCP connection's interleaved
// frames and routes each to the track owning its channel id. RTSP control
// responses (e.g. an async GET_PARAMETER reply) never arrive once Playing
// in this client's usage, so every byte after PLAY is an interleaved frame.
func (s *Session) readInterleaved() {
	defer s.wg.Done()
	for {
		frame, err := s.client.ReadInterleavedFrame()
		if err != nil {
			select {
			case <-s.closed:
			default:
				s.fail(err)
			}
			return
		}

		t := s.trackForChannel(frame.Channel)
		if t == nil {
			continue
		}

		if frame.Channel == uint8(t.rtsp.Interleaved[1]) {
			continue // RTCP channel: see readUDP's isRTCP branch
		}

		pkt, err := rtp.Unmarshal(frame.Payload)
		if err != nil {
			s.log.Log(logger.Warn, "dropping malformed RTP packet on track %d: %v", t.index, err)
			continue
		}
		t.insert(pkt, time.Now())
	}
}

func (s *Session) trackForChannel(ch byte) *track {
	for _, t := range s.tracks {
		if t.rtsp.Transport == rtsp.TransportTCPInterleaved &&
			(ch == uint8(t.rtsp.Interleaved[0]) || ch == uint8(t.rtsp.Interleaved[1])) {
			return t
		}
	}
	return nil
}

func (s *Session) drainLoop(t *track) {
	defer s.wg.Done()
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.closed:
			return
		case now := <-ticker.C:
			pkts, err := t.drain(now)
			if err != nil {
				s.log.Log(logger.Warn, "track %d depacketizer error: %v", t.index, err)
			}
			for _, p := range pkts {
				select {
				case s.out <- p:
				case <-s.closed:
					return
				}
			}
		}
	}
}

// rtcpLoop sends a receiver report every receiverReportInterval while the
// session is open, built from the track's jitter-buffer statistics.
func (s *Session) rtcpLoop(t *track) {
	defer s.wg.Done()
	if t.rtsp.RTCPConn == nil {
		return // TCP-interleaved: RTCP RR emission would need the shared
		// connection's write path; out of scope for this loop.
	}

	ip, err := net.ResolveIPAddr("ip", s.client.Host())
	if err != nil {
		return
	}
	dst := &net.UDPAddr{IP: ip.IP, Zone: ip.Zone, Port: t.rtsp.ServerPorts[1]}

	ticker := time.NewTicker(receiverReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.closed:
			return
		case <-ticker.C:
			stats := t.jitter.Stats()
			rr := &rtcp.ReceiverReport{
				ReportBlocks: []rtcp.ReportBlock{{
					FractionLost: 0,
					PacketsLost:  int32(stats.Lost),
					Jitter:       uint32(stats.JitterTicks),
				}},
			}
			buf := rtcp.MarshalReceiverReport(rr, 0)
			_, _ = t.rtsp.RTCPConn.WriteTo(buf, dst)
		}
	}
}

func (s *Session) fail(err error) {
	select {
	case s.errs <- err:
	default:
	}
	s.Close()
}

// Packets returns the channel Packets are delivered on.
func (s *Session) Packets() <-chan vdkio.Packet {
	return s.out
}

// Err returns the error that caused the session to stop, if any.
func (s *Session) Err() error {
	select {
	case err := <-s.errs:
		return err
	default:
		return nil
	}
}

// Tracks returns the session's media tracks in SDP order.
func (s *Session) Tracks() []*track {
	return s.tracks
}

// Close tears down the RTSP session (best-effort TEARDOWN, bounded by the
// client's own timeout) and stops all receive/drain goroutines.
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		close(s.closed)
		err = s.client.Teardown()
		for _, t := range s.tracks {
			if t.rtsp.RTPConn != nil {
				_ = t.rtsp.RTPConn.Close()
			}
			if t.rtsp.RTCPConn != nil {
				_ = t.rtsp.RTCPConn.Close()
			}
		}
		s.wg.Wait()
		close(s.out)
	})
	return err
}

type nopWriter struct{}

func (nopWriter) Log(logger.Level, string, ...interface{}) {}
