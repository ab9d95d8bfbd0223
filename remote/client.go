package remote

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// Client is the coordination side of the protocol. The host never uses it;
// it backs the probe mode and tests.
type Client struct {
	conn net.Conn
	dec  StreamDecoder
	buf  []byte
}

// Dial connects to a host.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	c, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	return NewClient(c), nil
}

func NewClient(conn net.Conn) *Client {
	return &Client{conn: conn, buf: make([]byte, BufferSize)}
}

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) write(p []byte) error {
	for len(p) > 0 {
		n, err := c.conn.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

func (c *Client) Handshake(subs Subscriptions) error {
	return c.write(EncodeHandshake(subs))
}

func (c *Client) KeepAlive() error {
	return c.write(NewPacket(PacketKeepAlive).Bytes())
}

// Exec sends script and waits for its result. Events that arrive first are
// passed to onEvent, which may be nil.
func (c *Client) Exec(script string, deadline time.Time, onEvent func(Frame)) (ExecResult, error) {
	if len(script)+execHeaderSize > MaxCommandSize {
		return ExecResult{}, fmt.Errorf("remote: script of %d bytes exceeds the %d byte command limit", len(script), MaxCommandSize)
	}
	if err := c.write(EncodeExecRequest(script)); err != nil {
		return ExecResult{}, err
	}
	for {
		f, err := c.Next(deadline)
		if err != nil {
			return ExecResult{}, err
		}
		switch f.Type {
		case PacketRemoteScriptExec:
			return ExecResult{Success: f.Success, Text: f.Text}, nil
		case PacketMalformed:
			return ExecResult{}, fmt.Errorf("remote: host rejected command: %v", f)
		}
		if onEvent != nil {
			onEvent(f)
		}
	}
}

// ErrTimeout is returned by Next when the deadline passes first.
var ErrTimeout = errors.New("remote: timed out waiting for packet")

// Next blocks until a complete packet arrives or the deadline passes.
func (c *Client) Next(deadline time.Time) (Frame, error) {
	for {
		f, ok, err := c.dec.Next()
		if err != nil {
			return Frame{}, err
		}
		if ok {
			return f, nil
		}
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return Frame{}, err
		}
		n, err := c.conn.Read(c.buf)
		if n > 0 {
			c.dec.Write(c.buf[:n])
		}
		if err != nil {
			if isTimeout(err) {
				return Frame{}, ErrTimeout
			}
			return Frame{}, err
		}
	}
}
