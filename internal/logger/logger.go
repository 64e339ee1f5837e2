// Package logger contains the logging facility used across this module.
package logger

import (
	"bytes"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gookit/color"
)

// Level is a log level.
type Level int

// log levels.
const (
	Debug Level = iota
	Info
	Warn
	Error
)

// Destination is a log destination.
type Destination int

// log destinations.
const (
	DestinationStdout Destination = iota
	DestinationFile
)

type destination interface {
	log(t time.Time, level Level, format string, args ...interface{})
	close()
}

// Writer is anything that can receive log lines, implemented by *Logger
// and by the wrappers returned by WithComponent and NewLimitedLogger.
type Writer interface {
	Log(level Level, format string, args ...interface{})
}

// Logger is a log handler that dispatches to one or more destinations.
type Logger struct {
	level Level

	destinations []destination
	mutex        sync.Mutex
}

// New allocates a Logger. structured selects JSON-lines output instead of
// the plain colorized format.
func New(level Level, destinations []Destination, filePath string, structured bool) (*Logger, error) {
	lh := &Logger{
		level: level,
	}

	for _, destType := range destinations {
		switch destType {
		case DestinationStdout:
			lh.destinations = append(lh.destinations, newDestionationStdout(structured))

		case DestinationFile:
			dest, err := newDestinationFile(structured, filePath)
			if err != nil {
				lh.Close()
				return nil, err
			}
			lh.destinations = append(lh.destinations, dest)
		}
	}

	return lh, nil
}

// Close closes a Logger.
func (lh *Logger) Close() {
	for _, dest := range lh.destinations {
		dest.close()
	}
}

// https://golang.org/src/log/log.go#L78
func itoa(i int, wid int) []byte {
	var b [20]byte
	bp := len(b) - 1
	for i >= 10 || wid > 1 {
		wid--
		q := i / 10
		b[bp] = byte('0' + i - q*10)
		bp--
		i = q
	}
	b[bp] = byte('0' + i)
	return b[bp:]
}

func writePlainTime(buf *bytes.Buffer, t time.Time, useColor bool) {
	var intbuf bytes.Buffer

	year, month, day := t.Date()
	intbuf.Write(itoa(year, 4))
	intbuf.WriteByte('/')
	intbuf.Write(itoa(int(month), 2))
	intbuf.WriteByte('/')
	intbuf.Write(itoa(day, 2))
	intbuf.WriteByte(' ')

	hour, minute, sec := t.Clock()
	intbuf.Write(itoa(hour, 2))
	intbuf.WriteByte(':')
	intbuf.Write(itoa(minute, 2))
	intbuf.WriteByte(':')
	intbuf.Write(itoa(sec, 2))
	intbuf.WriteByte(' ')

	if useColor {
		buf.WriteString(color.RenderString(color.Gray.Code(), intbuf.String()))
	} else {
		buf.Write(intbuf.Bytes())
	}
}

func writeLevel(buf *bytes.Buffer, level Level, useColor bool) {
	switch level {
	case Debug:
		if useColor {
			buf.WriteString(color.RenderString(color.Debug.Code(), "DEB"))
		} else {
			buf.WriteString("DEB")
		}

	case Info:
		if useColor {
			buf.WriteString(color.RenderString(color.Green.Code(), "INF"))
		} else {
			buf.WriteString("INF")
		}

	case Warn:
		if useColor {
			buf.WriteString(color.RenderString(color.Warn.Code(), "WAR"))
		} else {
			buf.WriteString("WAR")
		}

	case Error:
		if useColor {
			buf.WriteString(color.RenderString(color.Error.Code(), "ERR"))
		} else {
			buf.WriteString("ERR")
		}
	}
}

// writeLogLine renders one entry in either newline-delimited JSON
// (structured) or the plain colorized form, shared by every destination
// so adding a new one never means re-deriving this formatting.
func writeLogLine(buf *bytes.Buffer, structured, useColor bool, t time.Time, level Level, format string, args ...any) {
	if structured {
		buf.WriteString(`{"timestamp":"`)
		buf.WriteString(t.Format(time.RFC3339Nano))
		buf.WriteString(`","level":"`)
		writeLevel(buf, level, false)
		buf.WriteString(`","message":`)
		buf.WriteString(strconv.Quote(fmt.Sprintf(format, args...)))
		buf.WriteString(`}`)
		buf.WriteByte('\n')
		return
	}

	writePlainTime(buf, t, useColor)
	writeLevel(buf, level, useColor)
	buf.WriteByte(' ')
	fmt.Fprintf(buf, format, args...)
	buf.WriteByte('\n')
}

// Log writes a log entry to every configured destination.
func (lh *Logger) Log(level Level, format string, args ...interface{}) {
	if level < lh.level {
		return
	}

	lh.mutex.Lock()
	defer lh.mutex.Unlock()

	t := time.Now()

	for _, dest := range lh.destinations {
		dest.log(t, level, format, args...)
	}
}

type component struct {
	w    Writer
	name string
}

// WithComponent wraps a Writer so that every line is prefixed with a
// component tag, e.g. "[rtsp]", "[mux]", "[hls]", "[jitter]".
func WithComponent(w Writer, name string) Writer {
	return &component{w: w, name: name}
}

func (c *component) Log(level Level, format string, args ...interface{}) {
	c.w.Log(level, "["+c.name+"] "+format, args...)
}
