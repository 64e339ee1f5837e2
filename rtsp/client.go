package rtsp

import (
	"bufio"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vdkio/vdkio/internal/logger"
	"github.com/vdkio/vdkio/internal/rtspurl"
	"github.com/vdkio/vdkio/internal/sdp"
	"github.com/vdkio/vdkio/internal/vdkerrors"
)

// TransportMode selects the RTP transport negotiated in SETUP.
type TransportMode int

// transport modes.
const (
	TransportTCPInterleaved TransportMode = iota
	TransportUDP
)

// Track is one set-up media track.
type Track struct {
	Media       sdp.Media
	ControlURL  string
	Transport   TransportMode
	Interleaved [2]int // RTP, RTCP channel ids, when TCP
	ClientPorts [2]int // RTP, RTCP client ports, when UDP
	ServerPorts [2]int // RTP, RTCP server ports, when UDP
	RTPConn     net.PacketConn
	RTCPConn    net.PacketConn
}

// Client is a single RTSP session against one server.
type Client struct {
	url     *rtspurl.URL
	conn    net.Conn
	br      *bufio.Reader
	log     logger.Writer
	id      string
	cseq    int
	session string
	timeout time.Duration

	state       State
	contentBase string
	tracks      []Track
	transport   TransportMode

	lastChallenge *authChallenge
	authFailures  int
	cnonce        string
	nc            int
}

// Dial connects to u and returns a Client in StateConnected.
func Dial(u *rtspurl.URL, log logger.Writer) (*Client, error) {
	conn, err := net.DialTimeout("tcp", u.HostPort(), 10*time.Second)
	if err != nil {
		return nil, vdkerrors.Wrap(vdkerrors.TransportLost, err, "dialing %s", u.HostPort())
	}

	c := &Client{
		url:     u,
		conn:    conn,
		br:      bufio.NewReader(conn),
		log:     logger.WithComponent(log, "rtsp"),
		id:      uuid.NewString(),
		state:   StateConnected,
		timeout: 10 * time.Second,
	}

	return c, nil
}

// Close drops the underlying connection without a TEARDOWN round-trip.
func (c *Client) Close() error {
	return c.conn.Close()
}

// State returns the client's current session state.
func (c *Client) State() State {
	return c.state
}

// Host returns the hostname or IP of the connected RTSP server, for
// callers that need to address a UDP transport's server_port themselves.
func (c *Client) Host() string {
	return c.url.Host
}

// ReadInterleavedFrame reads the next TCP-interleaved RTP/RTCP frame from
// the control connection. Valid only once a TCP-interleaved SETUP has
// completed and the session is Playing.
func (c *Client) ReadInterleavedFrame() (*InterleavedFrame, error) {
	return ReadInterleavedFrame(c.br)
}

// do sends req, replays it with credentials on a single 401 challenge
//, and returns the final response. A second consecutive 401
// surfaces AuthFailed.
func (c *Client) do(req *Request) (*Response, error) {
	if !canIssue(c.state, req.Method) {
		return nil, vdkerrors.New(vdkerrors.ProtocolError,
			"method %s invalid in state %s", req.Method, c.state)
	}

	resp, err := c.roundTrip(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == 401 {
		challenge, cerr := parseAuthChallenge(resp.Header.Get("WWW-Authenticate"))
		if cerr != nil {
			return nil, cerr
		}
		if c.lastChallenge == nil || c.lastChallenge.nonce != challenge.nonce {
			c.cnonce = generateCnonce()
			c.nc = 0
		}
		c.lastChallenge = challenge
		c.nc++

		if !c.url.HasAuth {
			return nil, vdkerrors.New(vdkerrors.AuthFailed, "server requires auth but no credentials given")
		}

		req.Header.Set("Authorization",
			buildAuthHeader(challenge, c.url.User, c.url.Password, req.Method, req.URL, c.cnonce, c.nc))
		resp, err = c.roundTrip(req)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == 401 {
			c.authFailures++
			if c.authFailures >= 2 {
				return nil, vdkerrors.New(vdkerrors.AuthFailed, "authentication rejected twice")
			}
			return nil, vdkerrors.New(vdkerrors.AuthFailed, "authentication rejected")
		}
		c.authFailures = 0
	}

	return resp, nil
}

// checkServerError converts a 5xx response into a ProtocolError. Call sites
// that need to special-case a particular status (e.g. KeepAlive's 501
// fallback) inspect resp directly instead.
func checkServerError(resp *Response) error {
	if resp.StatusCode >= 500 {
		return vdkerrors.New(vdkerrors.ProtocolError, "server error %d %s", resp.StatusCode, resp.Status)
	}
	return nil
}

func (c *Client) roundTrip(req *Request) (*Response, error) {
	c.cseq++
	req.Header.Set("CSeq", strconv.Itoa(c.cseq))
	req.Header.Set("User-Agent", "vdkio")
	if c.session != "" {
		req.Header.Set("Session", c.session)
	}

	if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, vdkerrors.Wrap(vdkerrors.TransportLost, err, "setting deadline")
	}

	if err := WriteRequest(c.conn, req); err != nil {
		return nil, err
	}

	resp, err := ReadResponse(c.br)
	if err != nil {
		return nil, err
	}

	if s := resp.Header.Get("Session"); s != "" {
		c.session = strings.SplitN(s, ";", 2)[0]
	}

	return resp, nil
}

// Options sends OPTIONS.
func (c *Client) Options() (*Response, error) {
	req := NewRequest("OPTIONS", c.url.String())
	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	return resp, checkServerError(resp)
}

// Describe sends DESCRIBE and parses the returned SDP.
func (c *Client) Describe() (*sdp.Session, error) {
	req := NewRequest("DESCRIBE", c.url.String())
	req.Header.Set("Accept", "application/sdp")

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if err := checkServerError(resp); err != nil {
		return nil, err
	}

	c.contentBase = resp.Header.Get("Content-Base")
	if c.contentBase == "" {
		c.contentBase = c.url.String()
	}

	s, err := sdp.Parse(resp.Body)
	if err != nil {
		return nil, err
	}

	c.state = StateDescribed
	return s, nil
}

// Setup sends SETUP for one SDP media, negotiating the transport. When mode
// is TransportUDP, clientPorts selects the client's RTP and RTCP ports.
func (c *Client) Setup(media sdp.Media, mode TransportMode, clientPorts [2]int) (*Track, error) {
	control := rtspurl.ResolveControlURL(c.contentBase, media.Control)

	req := NewRequest("SETUP", control)

	var transportHeader string
	switch mode {
	case TransportTCPInterleaved:
		ch := len(c.tracks) * 2
		transportHeader = "RTP/AVP/TCP;unicast;interleaved=" + strconv.Itoa(ch) + "-" + strconv.Itoa(ch+1)
	case TransportUDP:
		transportHeader = "RTP/AVP;unicast;client_port=" +
			strconv.Itoa(clientPorts[0]) + "-" + strconv.Itoa(clientPorts[1])
	}
	req.Header.Set("Transport", transportHeader)

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	if err := checkServerError(resp); err != nil {
		return nil, err
	}

	track, err := parseSetupResponse(media, control, mode, clientPorts, resp.Header.Get("Transport"))
	if err != nil {
		return nil, err
	}

	c.tracks = append(c.tracks, *track)
	c.state = StateSetup
	c.transport = mode
	return &c.tracks[len(c.tracks)-1], nil
}

func parseSetupResponse(media sdp.Media, control string, mode TransportMode, clientPorts [2]int, transport string) (*Track, error) {
	t := &Track{Media: media, ControlURL: control, Transport: mode}

	for _, part := range strings.Split(transport, ";") {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(part, "interleaved="):
			a, b, ok := strings.Cut(part[len("interleaved="):], "-")
			if !ok {
				continue
			}
			ai, _ := strconv.Atoi(a)
			bi, _ := strconv.Atoi(b)
			t.Interleaved = [2]int{ai, bi}
		case strings.HasPrefix(part, "server_port="):
			a, b, ok := strings.Cut(part[len("server_port="):], "-")
			if !ok {
				continue
			}
			ai, _ := strconv.Atoi(a)
			bi, _ := strconv.Atoi(b)
			t.ServerPorts = [2]int{ai, bi}
		case strings.HasPrefix(part, "client_port="):
			a, b, ok := strings.Cut(part[len("client_port="):], "-")
			if !ok {
				continue
			}
			ai, _ := strconv.Atoi(a)
			bi, _ := strconv.Atoi(b)
			t.ClientPorts = [2]int{ai, bi}
		}
	}

	if mode == TransportUDP && t.ClientPorts == [2]int{} {
		t.ClientPorts = clientPorts
	}

	return t, nil
}

// Play sends PLAY, transitioning to StatePlaying.
func (c *Client) Play() error {
	req := NewRequest("PLAY", c.contentBase)
	req.Header.Set("Range", "npt=0.000-")
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	if err := checkServerError(resp); err != nil {
		return err
	}
	c.state = StatePlaying
	return nil
}

// Pause sends PAUSE, transitioning to StatePaused.
func (c *Client) Pause() error {
	req := NewRequest("PAUSE", c.contentBase)
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	if err := checkServerError(resp); err != nil {
		return err
	}
	c.state = StatePaused
	return nil
}

// Teardown sends TEARDOWN with a bounded timeout and drops the
// connection regardless of whether the server responds.
func (c *Client) Teardown() error {
	if c.state == StateTeardown {
		return nil
	}

	req := NewRequest("TEARDOWN", c.contentBase)
	_ = c.conn.SetDeadline(time.Now().Add(2 * time.Second))
	_, err := c.do(req)
	c.state = StateTeardown
	closeErr := c.conn.Close()
	if err != nil {
		return err
	}
	return closeErr
}

// KeepAlive sends GET_PARAMETER, falling back to OPTIONS if the server
// answers with a single 501 Not Implemented, to hold the session open.
func (c *Client) KeepAlive() error {
	req := NewRequest("GET_PARAMETER", c.contentBase)
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode == 501 {
		_, err = c.Options()
		return err
	}
	return checkServerError(resp)
}
