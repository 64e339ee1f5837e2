// Package rtsp implements an RTSP 1.0 (RFC 2326) client: request/response
// framing, Basic/Digest authentication, the session state machine, and
// RTP/RTCP transport setup.
package rtsp

import (
	"bufio"
	"fmt"
	"io"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/vdkio/vdkio/internal/vdkerrors"
)

const protoVersion = "RTSP/1.0"

// Request is an RTSP request (RFC 2326 §6).
type Request struct {
	Method  string
	URL     string
	Header  textproto.MIMEHeader
	Body    []byte
}

// Response is an RTSP response (RFC 2326 §7).
type Response struct {
	StatusCode int
	Status     string
	Header     textproto.MIMEHeader
	Body       []byte
}

// WriteRequest serializes req to w in CRLF-terminated wire format.
func WriteRequest(w io.Writer, req *Request) error {
	bw := bufio.NewWriter(w)

	if _, err := fmt.Fprintf(bw, "%s %s %s\r\n", req.Method, req.URL, protoVersion); err != nil {
		return vdkerrors.Wrap(vdkerrors.TransportLost, err, "writing RTSP request line")
	}

	for k, vs := range req.Header {
		for _, v := range vs {
			if _, err := fmt.Fprintf(bw, "%s: %s\r\n", k, v); err != nil {
				return vdkerrors.Wrap(vdkerrors.TransportLost, err, "writing RTSP header")
			}
		}
	}
	if len(req.Body) > 0 {
		if _, err := fmt.Fprintf(bw, "Content-Length: %d\r\n", len(req.Body)); err != nil {
			return vdkerrors.Wrap(vdkerrors.TransportLost, err, "writing RTSP header")
		}
	}

	if _, err := bw.WriteString("\r\n"); err != nil {
		return vdkerrors.Wrap(vdkerrors.TransportLost, err, "writing RTSP header terminator")
	}
	if len(req.Body) > 0 {
		if _, err := bw.Write(req.Body); err != nil {
			return vdkerrors.Wrap(vdkerrors.TransportLost, err, "writing RTSP body")
		}
	}

	if err := bw.Flush(); err != nil {
		return vdkerrors.Wrap(vdkerrors.TransportLost, err, "flushing RTSP request")
	}
	return nil
}

// ReadResponse parses one RTSP response from r. Unrecognized headers are
// kept as-is; all header names are matched case-insensitively by
// textproto.MIMEHeader's canonicalization.
func ReadResponse(r *bufio.Reader) (*Response, error) {
	tp := textproto.NewReader(r)

	line, err := tp.ReadLine()
	if err != nil {
		return nil, vdkerrors.Wrap(vdkerrors.TransportLost, err, "reading RTSP status line")
	}

	fields := strings.SplitN(line, " ", 3)
	if len(fields) < 2 || !strings.HasPrefix(fields[0], "RTSP/") {
		return nil, vdkerrors.New(vdkerrors.ProtocolError, "malformed RTSP status line: %q", line)
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, vdkerrors.New(vdkerrors.ProtocolError, "malformed RTSP status code: %q", line)
	}
	status := ""
	if len(fields) == 3 {
		status = fields[2]
	}

	mh, err := tp.ReadMIMEHeader()
	if err != nil && err != io.EOF {
		return nil, vdkerrors.Wrap(vdkerrors.ProtocolError, err, "reading RTSP headers")
	}

	resp := &Response{StatusCode: code, Status: status, Header: mh}

	if cl := mh.Get("Content-Length"); cl != "" {
		n, err := strconv.Atoi(cl)
		if err != nil || n < 0 {
			return nil, vdkerrors.New(vdkerrors.ProtocolError, "invalid Content-Length: %q", cl)
		}
		if n > 0 {
			body := make([]byte, n)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, vdkerrors.Wrap(vdkerrors.TransportLost, err, "reading RTSP body")
			}
			resp.Body = body
		}
	}

	return resp, nil
}

// NewRequest allocates a Request with a fresh header map.
func NewRequest(method, url string) *Request {
	return &Request{Method: method, URL: url, Header: textproto.MIMEHeader{}}
}
