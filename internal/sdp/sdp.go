// Package sdp parses the subset of SDP (RFC 4566) needed to set up an
// RTSP media session: session-level v=/o=/s=/c=/t= and
// per-media m=/a=rtpmap/a=fmtp/a=control.
package sdp

import (
	"strconv"
	"strings"

	"github.com/vdkio/vdkio/internal/vdkerrors"
)

// Session is a parsed SDP session description.
type Session struct {
	Version     string
	Origin      string
	Name        string
	ConnAddr    string
	Timing      string
	ContentBase string
	Medias      []Media
}

// Media is one SDP media description (m= line and its attributes).
type Media struct {
	Type      string // video, audio, application
	Port      int
	Proto     string
	Formats   []int
	RTPMap    map[int]RTPMap
	FMTP      map[int]map[string]string
	Control   string
	ConnAddr  string
}

// RTPMap is the payload-type -> codec mapping from an a=rtpmap attribute.
type RTPMap struct {
	PayloadType int
	EncodingName string
	ClockRate   int
	Params      string
}

// Parse parses an SDP message body.
func Parse(body []byte) (*Session, error) {
	sess := &Session{}
	var cur *Media

	lines := strings.Split(string(body), "\n")
	for _, rawLine := range lines {
		line := strings.TrimRight(rawLine, "\r")
		if len(line) < 2 || line[1] != '=' {
			continue
		}
		typ := line[0]
		val := line[2:]

		switch typ {
		case 'v':
			sess.Version = val
		case 'o':
			sess.Origin = val
		case 's':
			sess.Name = val
		case 'c':
			if cur != nil {
				cur.ConnAddr = val
			} else {
				sess.ConnAddr = val
			}
		case 't':
			sess.Timing = val
		case 'm':
			m, err := parseMediaLine(val)
			if err != nil {
				return nil, err
			}
			sess.Medias = append(sess.Medias, *m)
			cur = &sess.Medias[len(sess.Medias)-1]
		case 'a':
			if cur == nil {
				continue
			}
			parseMediaAttribute(cur, val)
		}
	}

	if len(sess.Medias) == 0 {
		return nil, vdkerrors.New(vdkerrors.ProtocolError, "SDP has no media descriptions")
	}

	return sess, nil
}

func parseMediaLine(val string) (*Media, error) {
	fields := strings.Fields(val)
	if len(fields) < 4 {
		return nil, vdkerrors.New(vdkerrors.ProtocolError, "malformed SDP m= line: %q", val)
	}

	port, err := strconv.Atoi(strings.SplitN(fields[1], "/", 2)[0])
	if err != nil {
		return nil, vdkerrors.Wrap(vdkerrors.ProtocolError, err, "malformed SDP m= port: %q", val)
	}

	m := &Media{
		Type:   fields[0],
		Port:   port,
		Proto:  fields[2],
		RTPMap: map[int]RTPMap{},
		FMTP:   map[int]map[string]string{},
	}

	for _, f := range fields[3:] {
		pt, err := strconv.Atoi(f)
		if err != nil {
			continue
		}
		m.Formats = append(m.Formats, pt)
	}

	return m, nil
}

func parseMediaAttribute(m *Media, val string) {
	name, rest, hasRest := strings.Cut(val, ":")
	switch name {
	case "control":
		m.Control = rest
	case "rtpmap":
		if !hasRest {
			return
		}
		parts := strings.SplitN(rest, " ", 2)
		if len(parts) != 2 {
			return
		}
		pt, err := strconv.Atoi(parts[0])
		if err != nil {
			return
		}
		encParts := strings.SplitN(parts[1], "/", 3)
		rm := RTPMap{PayloadType: pt, EncodingName: encParts[0]}
		if len(encParts) > 1 {
			if cr, err := strconv.Atoi(encParts[1]); err == nil {
				rm.ClockRate = cr
			}
		}
		if len(encParts) > 2 {
			rm.Params = encParts[2]
		}
		m.RTPMap[pt] = rm
	case "fmtp":
		if !hasRest {
			return
		}
		parts := strings.SplitN(rest, " ", 2)
		if len(parts) != 2 {
			return
		}
		pt, err := strconv.Atoi(parts[0])
		if err != nil {
			return
		}
		params := map[string]string{}
		for _, kv := range strings.Split(parts[1], ";") {
			kv = strings.TrimSpace(kv)
			if kv == "" {
				continue
			}
			k, v, _ := strings.Cut(kv, "=")
			params[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
		m.FMTP[pt] = params
	}
}
