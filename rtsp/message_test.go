package rtsp

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteRequest(t *testing.T) {
	req := NewRequest("OPTIONS", "rtsp://host/stream")
	req.Header.Set("CSeq", "1")

	var buf bytes.Buffer
	err := WriteRequest(&buf, req)
	require.NoError(t, err)
	require.Equal(t, "OPTIONS rtsp://host/stream RTSP/1.0\r\nCseq: 1\r\n\r\n", buf.String())
}

func TestReadResponse(t *testing.T) {
	raw := "RTSP/1.0 200 OK\r\nCSeq: 1\r\nContent-Length: 5\r\n\r\nhello"
	resp, err := ReadResponse(bufio.NewReader(bytes.NewReader([]byte(raw))))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, "OK", resp.Status)
	require.Equal(t, "1", resp.Header.Get("CSeq"))
	require.Equal(t, []byte("hello"), resp.Body)
}

func TestReadResponseNoBody(t *testing.T) {
	raw := "RTSP/1.0 404 Not Found\r\nCSeq: 2\r\n\r\n"
	resp, err := ReadResponse(bufio.NewReader(bytes.NewReader([]byte(raw))))
	require.NoError(t, err)
	require.Equal(t, 404, resp.StatusCode)
	require.Nil(t, resp.Body)
}
