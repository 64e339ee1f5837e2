// Package rtspurl parses and serializes RTSP URLs:
// rtsp://[user[:pass]@]host[:port]/path.
package rtspurl

import (
	"net"
	"net/url"
	"strings"

	"github.com/vdkio/vdkio/internal/vdkerrors"
)

// DefaultPort is the default RTSP port when none is given in the URL.
const DefaultPort = 554

// URL is a parsed RTSP URL.
type URL struct {
	Host     string
	Port     int
	Path     string
	User     string
	Password string
	HasAuth  bool
}

// Parse parses an rtsp:// URL.
func Parse(raw string) (*URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, vdkerrors.Wrap(vdkerrors.InvalidInput, err, "invalid RTSP URL %q", raw)
	}

	if u.Scheme != "rtsp" && u.Scheme != "rtsps" {
		return nil, vdkerrors.New(vdkerrors.InvalidInput, "unsupported URL scheme %q", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return nil, vdkerrors.New(vdkerrors.InvalidInput, "RTSP URL has no host: %q", raw)
	}

	port := DefaultPort
	if p := u.Port(); p != "" {
		var perr error
		port, perr = parsePort(p)
		if perr != nil {
			return nil, vdkerrors.Wrap(vdkerrors.InvalidInput, perr, "invalid port in %q", raw)
		}
	}

	out := &URL{
		Host: host,
		Port: port,
		Path: u.Path,
	}

	if u.User != nil {
		out.HasAuth = true
		out.User = u.User.Username()
		out.Password, _ = u.User.Password()
	}

	return out, nil
}

func parsePort(s string) (int, error) {
	var port int
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, vdkerrors.New(vdkerrors.InvalidInput, "non-numeric port %q", s)
		}
		port = port*10 + int(c-'0')
	}
	if port <= 0 || port > 65535 {
		return 0, vdkerrors.New(vdkerrors.InvalidInput, "port out of range %q", s)
	}
	return port, nil
}

// HostPort returns host:port, suitable for net.Dial.
func (u *URL) HostPort() string {
	return net.JoinHostPort(u.Host, itoa(u.Port))
}

// String reassembles the URL, without credentials.
func (u *URL) String() string {
	var b strings.Builder
	b.WriteString("rtsp://")
	b.WriteString(u.Host)
	if u.Port != DefaultPort {
		b.WriteString(":")
		b.WriteString(itoa(u.Port))
	}
	if u.Path != "" {
		if !strings.HasPrefix(u.Path, "/") {
			b.WriteString("/")
		}
		b.WriteString(u.Path)
	}
	return b.String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// ResolveControlURL resolves a SETUP control attribute against the session
// base URL or Content-Base
func ResolveControlURL(base string, control string) string {
	if strings.HasPrefix(control, "rtsp://") || strings.HasPrefix(control, "rtsps://") {
		return control
	}
	if control == "*" {
		return base
	}
	if strings.HasSuffix(base, "/") {
		return base + control
	}
	return base + "/" + control
}
