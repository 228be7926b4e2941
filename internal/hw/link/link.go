// Package link implements the request/response transport shared by every
// axis on one serial bus. A Link only exposes a blocking Send: one frame out,
// one line back. It knows nothing about addressing or command semantics.
package link

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/cjeanneret/LabMonkey/internal/debug"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("link closed")

// Link owns a Port and performs strictly sequential command round-trips.
type Link struct {
	port    Port
	verbose bool
	log     io.Writer
	pending []byte // bytes read past the last newline
	closed  bool
}

// New creates a Link over port. When verbose is true, traffic is written to
// logSink as "> <frame>" and ": <response>\n". A nil logSink disables it.
func New(port Port, verbose bool, logSink io.Writer) *Link {
	return &Link{
		port:    port,
		verbose: verbose && logSink != nil,
		log:     logSink,
	}
}

func (l *Link) logf(format string, args ...interface{}) {
	if l.verbose {
		fmt.Fprintf(l.log, format, args...)
	}
}

// Send writes frame (already newline terminated) and waits for one response
// line. The response has trailing whitespace removed. A read timeout yields
// an empty response and no error; transport failures are returned.
func (l *Link) Send(frame string) (string, error) {
	if l.closed {
		return "", ErrClosed
	}

	l.logf("> %s", frame)
	debug.Frame(">", frame)

	if _, err := io.WriteString(l.port, frame); err != nil {
		return "", fmt.Errorf("write frame %q: %w", frame, err)
	}

	line, err := l.readLine()
	if err != nil {
		return "", fmt.Errorf("read response to %q: %w", strings.TrimSpace(frame), err)
	}
	response := strings.TrimRightFunc(string(line), unicode.IsSpace)

	l.logf(": %s\n", response)
	debug.Frame(":", response)
	return response, nil
}

// readLine returns bytes up to and including the next newline, or whatever
// arrived before the port timed out.
func (l *Link) readLine() ([]byte, error) {
	chunk := make([]byte, 64)
	for {
		if i := bytes.IndexByte(l.pending, '\n'); i >= 0 {
			line := l.pending[:i+1]
			l.pending = append([]byte(nil), l.pending[i+1:]...)
			return line, nil
		}

		n, err := l.port.Read(chunk)
		if n > 0 {
			l.pending = append(l.pending, chunk[:n]...)
			continue
		}
		if err == nil || errors.Is(err, io.EOF) {
			// timeout
			line := l.pending
			l.pending = nil
			return line, nil
		}
		return nil, err
	}
}

// Close closes the underlying port. Further Sends fail with ErrClosed.
func (l *Link) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	return l.port.Close()
}
