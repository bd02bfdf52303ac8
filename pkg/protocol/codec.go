package protocol

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
)

// ErrInvalidJSON marks a line that arrived intact but failed to decode.
// Handlers reply INVALID_JSON and keep reading; transport errors close the
// session instead.
var ErrInvalidJSON = errors.New("invalid json line")

// Conn wraps a TCP connection with the newline-delimited JSON framing used
// on every control channel. All reads go through one buffered reader so the
// raw-byte payload of an upload can be consumed from the same stream before
// line parsing resumes. Writes are serialized so broadcasts and replies from
// different goroutines never interleave.
type Conn struct {
	conn net.Conn
	r    *bufio.Reader
	wmu  sync.Mutex
}

// NewConn wraps an accepted or dialed connection.
func NewConn(c net.Conn) *Conn {
	return &Conn{conn: c, r: bufio.NewReader(c)}
}

// ReadEnvelope reads the next JSON line. Blank lines are skipped. A line
// that fails to decode returns an error wrapping ErrInvalidJSON.
func (c *Conn) ReadEnvelope() (*Envelope, error) {
	for {
		line, err := c.r.ReadBytes('\n')
		if err != nil {
			if err == io.EOF && len(strings.TrimSpace(string(line))) > 0 {
				// final line without trailing newline still counts
			} else {
				return nil, err
			}
		}
		trimmed := strings.TrimSpace(string(line))
		if trimmed == "" {
			continue
		}
		var env Envelope
		if jsonErr := json.Unmarshal([]byte(trimmed), &env); jsonErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, jsonErr)
		}
		return &env, nil
	}
}

// WriteEnvelope sends one envelope as a single JSON line.
func (c *Conn) WriteEnvelope(env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err = c.conn.Write(append(raw, '\n'))
	return err
}

// WriteOK sends an ok response with a typed data payload.
func (c *Conn) WriteOK(msgType, action string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return c.WriteEnvelope(Envelope{Type: msgType, Action: action, Status: StatusOK, Data: raw})
}

// WriteLine sends an already-serialized JSON line. Used by broadcasts that
// serialize a snapshot once and send it to every connection.
func (c *Conn) WriteLine(raw []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err := c.conn.Write(append(raw, '\n'))
	return err
}

// WriteError sends an error response with the given code and message.
func (c *Conn) WriteError(msgType, action, code, message string) error {
	return c.WriteEnvelope(Envelope{
		Type:   msgType,
		Action: action,
		Status: StatusError,
		Error:  &ErrorInfo{Code: code, Message: message},
	})
}

// ReadExact consumes exactly n raw bytes from the buffered reader into w.
// A short read is returned as an error; the caller must treat the transfer
// as failed and not promote any partial state.
func (c *Conn) ReadExact(w io.Writer, n int64) error {
	written, err := io.CopyN(w, c.r, n)
	if err != nil {
		return fmt.Errorf("payload truncated after %d of %d bytes: %w", written, n, err)
	}
	return nil
}

// RawReader exposes the buffered read side so a raw payload following a
// header line can be consumed by stream helpers.
func (c *Conn) RawReader() io.Reader {
	return c.r
}

// WriteRaw streams exactly n bytes from r directly after the most recent
// header line.
func (c *Conn) WriteRaw(r io.Reader, n int64) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	written, err := io.CopyN(c.conn, r, n)
	if err != nil {
		return fmt.Errorf("stream truncated after %d of %d bytes: %w", written, n, err)
	}
	return nil
}

// RemoteAddr reports the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}
