package remote

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/dustin/go-humanize"
)

// Subscriptions are the event categories a client asked for in its
// handshake.
type Subscriptions struct {
	Logging    bool
	MultiWorld bool
}

func subscriptionsFromFlags(b byte) Subscriptions {
	return Subscriptions{
		Logging:    b&flagLogging != 0,
		MultiWorld: b&flagMultiWorld != 0,
	}
}

func (s Subscriptions) flags() byte {
	var b byte
	if s.Logging {
		b |= flagLogging
	}
	if s.MultiWorld {
		b |= flagMultiWorld
	}
	return b
}

func (s Subscriptions) String() string {
	return fmt.Sprintf("logging=%t multiWorld=%t", s.Logging, s.MultiWorld)
}

// State is the connection state machine.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateHandshaking
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateConnected:
		return "connected"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var (
	// ErrNotConnected is returned when sending without a transport.
	ErrNotConnected = errors.New("remote: not connected")
	// ErrNoClient is returned by an Acceptor when no client is waiting.
	ErrNoClient = errors.New("remote: no pending client")
)

// Transport is a single established client stream.
type Transport interface {
	// Recv reads whatever is pending into p without blocking. It returns
	// 0, nil when nothing is pending.
	Recv(p []byte) (int, error)
	// Send writes p and may return a short count.
	Send(p []byte) (int, error)
	Close() error
	RemoteAddr() string
}

// Acceptor hands out client transports without blocking.
type Acceptor interface {
	// Accept returns ErrNoClient when nobody is waiting.
	Accept() (Transport, error)
	Close() error
	Addr() string
}

// Conn owns the client transport and subscriptions.
type Conn struct {
	tr    Transport
	state State
	subs  Subscriptions

	logger *log.Logger

	bytesIn  uint64
	bytesOut uint64
	drain    [BufferSize]byte
}

func newConn(logger *log.Logger) *Conn {
	return &Conn{logger: logger}
}

func (c *Conn) State() State                 { return c.state }
func (c *Conn) Subscriptions() Subscriptions { return c.subs }

// IsConnected reports whether a handshake has completed.
func (c *Conn) IsConnected() bool { return c.state == StateConnected }

// attached reports whether a transport is present.
func (c *Conn) attached() bool {
	return c.tr != nil && (c.state == StateHandshaking || c.state == StateConnected)
}

// Connect polls a for a client. It never blocks.
func (c *Conn) Connect(a Acceptor) error {
	if c.state != StateDisconnected {
		return nil
	}
	c.state = StateConnecting
	tr, err := a.Accept()
	if err != nil {
		c.state = StateDisconnected
		if errors.Is(err, ErrNoClient) {
			return nil
		}
		return fmt.Errorf("accept: %w", err)
	}
	c.tr = tr
	c.state = StateHandshaking
	c.subs = Subscriptions{}
	c.logger.Printf("remote: client %s connected, awaiting handshake", tr.RemoteAddr())
	return nil
}

// Attach installs an already established transport.
func (c *Conn) Attach(tr Transport) {
	if c.tr != nil {
		c.disconnect(nil)
	}
	c.tr = tr
	c.state = StateHandshaking
	c.subs = Subscriptions{}
}

func (c *Conn) setSubscriptions(s Subscriptions) {
	c.subs = s
	c.state = StateConnected
}

// ReceiveInto performs one non-blocking read into buf. If the read fills
// buf, anything still pending is discarded.
func (c *Conn) ReceiveInto(buf []byte) (int, error) {
	if !c.attached() {
		return 0, nil
	}
	n, err := c.tr.Recv(buf)
	if err != nil {
		c.disconnect(err)
		return 0, err
	}
	c.bytesIn += uint64(n)
	if n == len(buf) {
		c.discardPending()
	}
	return n, nil
}

// frameDiscarder is implemented by message oriented transports, which drop
// the rest of one message instead of everything pending.
type frameDiscarder interface {
	DiscardFrame() int
}

func (c *Conn) discardPending() {
	total := 0
	if fd, ok := c.tr.(frameDiscarder); ok {
		total = fd.DiscardFrame()
	} else {
		total = c.drainStream()
	}
	if total > 0 {
		c.bytesIn += uint64(total)
		c.logger.Printf("remote: discarded %s past the command buffer", humanize.Bytes(uint64(total)))
	}
}

func (c *Conn) drainStream() int {
	total := 0
	for c.tr != nil {
		n, err := c.tr.Recv(c.drain[:])
		if err != nil {
			c.disconnect(err)
			break
		}
		if n == 0 {
			break
		}
		total += n
	}
	return total
}

// Send writes the whole packet. Any transport error disconnects.
func (c *Conn) Send(p []byte) error {
	if !c.attached() {
		return ErrNotConnected
	}
	if err := writeAll(c.tr, p); err != nil {
		c.disconnect(err)
		return err
	}
	c.bytesOut += uint64(len(p))
	return nil
}

// writeAll writes the entirety of data to tr, returning an error if the
// write fails or makes no progress.
func writeAll(tr Transport, data []byte) error {
	for len(data) > 0 {
		n, err := tr.Send(data)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		data = data[n:]
	}
	return nil
}

// Close drops the client, if any.
func (c *Conn) Close() error {
	if c.tr == nil {
		c.state = StateDisconnected
		c.subs = Subscriptions{}
		return nil
	}
	return c.disconnect(nil)
}

func (c *Conn) disconnect(cause error) error {
	var err error
	if c.tr != nil {
		addr := c.tr.RemoteAddr()
		err = c.tr.Close()
		c.tr = nil
		if cause != nil && !errors.Is(cause, io.EOF) {
			c.logger.Printf("remote: client %s dropped: %v", addr, cause)
		} else {
			c.logger.Printf("remote: client %s disconnected", addr)
		}
	}
	c.state = StateDisconnected
	c.subs = Subscriptions{}
	return err
}
