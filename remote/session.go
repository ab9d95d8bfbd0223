// Package remote implements the host side of the RemoteLua bridge: a single
// client connects, performs a handshake selecting which game events it wants,
// and may then run script text on the host. Everything runs on the caller's
// goroutine, one Tick at a time.
package remote

import (
	"errors"
	"log"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/hako/durafmt"
	"golang.org/x/time/rate"
)

// Scheduler runs fn once on a later host tick.
type Scheduler interface {
	Schedule(fn func())
}

// Options configures a Session. Every field is optional.
type Options struct {
	Engine    ScriptEngine
	Acceptor  Acceptor
	Scheduler Scheduler
	Logger    *log.Logger

	// ReconnectPerSecond limits how often a disconnected session polls the
	// acceptor. Zero polls every tick.
	ReconnectPerSecond float64

	// Debug enables packet dumps capped at DumpLen bytes (0 dumps all).
	Debug   bool
	DumpLen int
}

// Stats are running totals for a session.
type Stats struct {
	Commands  uint64
	Scripts   uint64
	Events    uint64
	Malformed uint64
	BytesIn   uint64
	BytesOut  uint64
	Uptime    time.Duration
}

// Session is one host endpoint of the protocol.
type Session struct {
	id       uuid.UUID
	engine   ScriptEngine
	acceptor Acceptor
	sched    Scheduler
	logger   *log.Logger
	limiter  *rate.Limiter
	debug    bool
	dumpLen  int

	conn    *Conn
	buf     [BufferSize]byte
	stats   Stats
	started time.Time
	closed  bool
}

// NewSession creates a disconnected session.
func NewSession(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	s := &Session{
		id:       uuid.New(),
		engine:   opts.Engine,
		acceptor: opts.Acceptor,
		sched:    opts.Scheduler,
		logger:   logger,
		debug:    opts.Debug,
		dumpLen:  opts.DumpLen,
		conn:     newConn(logger),
		started:  time.Now(),
	}
	if opts.ReconnectPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.ReconnectPerSecond), 1)
	}
	return s
}

func (s *Session) ID() string { return s.id.String() }

func (s *Session) shortID() string { return s.id.String()[:8] }

// SetEngine replaces the script engine. Engines that expose this session
// to scripts are built after the session.
func (s *Session) SetEngine(e ScriptEngine) { s.engine = e }

func (s *Session) State() State                 { return s.conn.State() }
func (s *Session) Subscriptions() Subscriptions { return s.conn.Subscriptions() }
func (s *Session) IsConnected() bool            { return s.conn.IsConnected() }

// Attach hands the session an established transport, replacing any client.
func (s *Session) Attach(tr Transport) {
	s.conn.Attach(tr)
	s.logger.Printf("remote[%s]: client %s attached, awaiting handshake", s.shortID(), tr.RemoteAddr())
}

// Init starts the poll loop on the scheduler.
func (s *Session) Init() {
	if s.acceptor != nil {
		s.logger.Printf("remote[%s]: listening on %s (protocol v%d)", s.shortID(), s.acceptor.Addr(), Version)
	}
	if s.sched != nil {
		s.sched.Schedule(s.Update)
	}
}

// Update is the tick entry point: it runs one Tick and schedules itself
// again.
func (s *Session) Update() {
	s.Tick()
	if s.sched != nil && !s.closed {
		s.sched.Schedule(s.Update)
	}
}

// Tick polls for a client while disconnected and handles at most one
// command.
func (s *Session) Tick() {
	if s.closed {
		return
	}
	if s.conn.State() == StateDisconnected && s.acceptor != nil {
		if s.limiter == nil || s.limiter.Allow() {
			if err := s.conn.Connect(s.acceptor); err != nil {
				s.logger.Printf("remote[%s]: %v", s.shortID(), err)
			}
		}
	}
	s.processCommand()
}

func (s *Session) send(p []byte) {
	s.trace("send", p)
	if err := s.conn.Send(p); err != nil && !errors.Is(err, ErrNotConnected) {
		s.logger.Printf("remote[%s]: send %v: %v", s.shortID(), PacketType(p[0]), err)
	}
}

// Stats returns a snapshot of the session totals.
func (s *Session) Stats() Stats {
	st := s.stats
	st.BytesIn = s.conn.bytesIn
	st.BytesOut = s.conn.bytesOut
	st.Uptime = time.Since(s.started)
	return st
}

// Shutdown drops the client and stops accepting new ones.
func (s *Session) Shutdown() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.conn.Close()
	if s.acceptor != nil {
		if cerr := s.acceptor.Close(); err == nil {
			err = cerr
		}
	}
	st := s.Stats()
	s.logger.Printf("remote[%s]: shut down after %s: %d commands, %d events, %s in, %s out",
		s.shortID(),
		durafmt.Parse(st.Uptime).LimitFirstN(2).String(),
		st.Commands, st.Events,
		humanize.Bytes(st.BytesIn), humanize.Bytes(st.BytesOut))
	return err
}
