package rtsp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDigestResponse(t *testing.T) {
	c := &authChallenge{scheme: "Digest", realm: "r", nonce: "n"}
	header := buildAuthHeader(c, "u", "p", "DESCRIBE", "rtsp://h/s", "", 0)

	ha1 := md5Hex("u:r:p")
	ha2 := md5Hex("DESCRIBE:rtsp://h/s")
	want := md5Hex(ha1 + ":n:" + ha2)

	require.Contains(t, header, `response="`+want+`"`)
	require.NotContains(t, header, "qop=")
}

func TestDigestResponseWithQop(t *testing.T) {
	c := &authChallenge{scheme: "Digest", realm: "r", nonce: "n", qop: "auth"}
	header := buildAuthHeader(c, "u", "p", "DESCRIBE", "rtsp://h/s", "cn", 1)

	ha1 := md5Hex("u:r:p")
	ha2 := md5Hex("DESCRIBE:rtsp://h/s")
	want := md5Hex(ha1 + ":n:00000001:cn:auth:" + ha2)

	require.Contains(t, header, `response="`+want+`"`)
	require.Contains(t, header, "qop=auth")
	require.Contains(t, header, `cnonce="cn"`)
	require.Contains(t, header, "nc=00000001")
}

func TestParseAuthChallengeDigest(t *testing.T) {
	c, err := parseAuthChallenge(`Digest realm="r", nonce="n", qop="auth"`)
	require.NoError(t, err)
	require.Equal(t, "Digest", c.scheme)
	require.Equal(t, "r", c.realm)
	require.Equal(t, "n", c.nonce)
}

func TestParseAuthChallengeBasic(t *testing.T) {
	c, err := parseAuthChallenge(`Basic realm="r"`)
	require.NoError(t, err)
	require.Equal(t, "Basic", c.scheme)
}
