package logger

import (
	"bytes"
	"io"
	"os"
	"time"
)

type destinationStdout struct {
	structured bool
	stdout     io.Writer
	useColor   bool
	buf        bytes.Buffer
}

func newDestionationStdout(structured bool) destination {
	return &destinationStdout{
		structured: structured,
		stdout:     os.Stdout,
		useColor:   !structured,
	}
}

func (d *destinationStdout) log(t time.Time, level Level, format string, args ...any) {
	d.buf.Reset()
	writeLogLine(&d.buf, d.structured, d.useColor, t, level, format, args...)
	d.stdout.Write(d.buf.Bytes()) //nolint:errcheck
}

func (d *destinationStdout) close() {
}
