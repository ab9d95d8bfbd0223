package remote

import (
	"errors"
	"net"
	"os"
	"time"
)

const (
	// DefaultPollWait bounds how long a receive waits for pending bytes.
	DefaultPollWait = time.Millisecond
	defaultWriteWait = 2 * time.Second
)

// TCPAcceptor accepts clients on a TCP listener without blocking the tick.
type TCPAcceptor struct {
	ln   *net.TCPListener
	wait time.Duration
}

// ListenTCP opens addr for clients. pollWait bounds each Accept and Recv;
// zero selects DefaultPollWait.
func ListenTCP(addr string, pollWait time.Duration) (*TCPAcceptor, error) {
	ta, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, err
	}
	ln, err := net.ListenTCP("tcp", ta)
	if err != nil {
		return nil, err
	}
	if pollWait <= 0 {
		pollWait = DefaultPollWait
	}
	return &TCPAcceptor{ln: ln, wait: pollWait}, nil
}

func (a *TCPAcceptor) Addr() string { return a.ln.Addr().String() }
func (a *TCPAcceptor) Close() error { return a.ln.Close() }

func (a *TCPAcceptor) Accept() (Transport, error) {
	if err := a.ln.SetDeadline(time.Now().Add(a.wait)); err != nil {
		return nil, err
	}
	c, err := a.ln.AcceptTCP()
	if err != nil {
		if isTimeout(err) {
			return nil, ErrNoClient
		}
		return nil, err
	}
	c.SetNoDelay(true)
	return NewStreamTransport(c, a.wait), nil
}

// streamTransport adapts a net.Conn. Receives use a short read deadline so
// an idle client never stalls the caller.
type streamTransport struct {
	conn net.Conn
	wait time.Duration
}

// NewStreamTransport wraps an established connection.
func NewStreamTransport(conn net.Conn, pollWait time.Duration) Transport {
	if pollWait <= 0 {
		pollWait = DefaultPollWait
	}
	return &streamTransport{conn: conn, wait: pollWait}
}

func (t *streamTransport) Recv(p []byte) (int, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(t.wait)); err != nil {
		return 0, err
	}
	n, err := t.conn.Read(p)
	if err != nil && isTimeout(err) {
		return n, nil
	}
	return n, err
}

func (t *streamTransport) Send(p []byte) (int, error) {
	if err := t.conn.SetWriteDeadline(time.Now().Add(defaultWriteWait)); err != nil {
		return 0, err
	}
	return t.conn.Write(p)
}

func (t *streamTransport) Close() error       { return t.conn.Close() }
func (t *streamTransport) RemoteAddr() string { return t.conn.RemoteAddr().String() }

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
