package remote

import (
	"encoding/binary"
	"math"
)

// processCommand drains at most one command from the client.
func (s *Session) processCommand() {
	n, err := s.conn.ReceiveInto(s.buf[:])
	if err != nil || n == 0 {
		return
	}
	if n > MaxCommandSize {
		s.oversized(s.buf[:n])
		return
	}
	s.dispatch(s.buf[:n])
}

// oversized answers a read that filled the command buffer. The command may
// be truncated so it never runs, and the connection has already dropped
// whatever else was pending.
func (s *Session) oversized(frame []byte) {
	s.trace("recv", frame)
	s.stats.Commands++
	expected := uint64(MaxCommandSize)
	if PacketType(frame[0]) == PacketRemoteScriptExec && len(frame) >= execHeaderSize {
		if d := uint64(binary.LittleEndian.Uint32(frame[1:execHeaderSize])) + execHeaderSize; d > expected {
			expected = d
		}
	}
	s.malformed(frame[0], len(frame), int(min(expected, math.MaxUint32)))
}

// dispatch routes one received frame. Only frame bytes are trusted; the
// rest of the command buffer may hold an older command.
func (s *Session) dispatch(frame []byte) {
	s.trace("recv", frame)
	t, _, err := DecodeHeader(frame)
	if err != nil {
		return
	}
	s.stats.Commands++

	if s.conn.State() == StateHandshaking && t != PacketHandshake {
		s.malformed(frame[0], len(frame), handshakeSize)
		return
	}

	switch t {
	case PacketHandshake:
		s.handleHandshake(frame)
	case PacketRemoteScriptExec:
		s.handleScriptExec(frame)
	case PacketKeepAlive:
		s.handleKeepAlive(frame)
	default:
		s.malformed(frame[0], len(frame), 0)
	}
}

// checkSize answers Malformed unless the frame is exactly want bytes.
func (s *Session) checkSize(frame []byte, want int) bool {
	if len(frame) != want {
		s.malformed(frame[0], len(frame), want)
		return false
	}
	return true
}

func (s *Session) handleHandshake(frame []byte) {
	if !s.checkSize(frame, handshakeSize) {
		return
	}
	subs := subscriptionsFromFlags(frame[1])
	prev := s.conn.State()
	s.conn.setSubscriptions(subs)
	if prev == StateConnected {
		s.logger.Printf("remote[%s]: re-handshake, subscriptions replaced: %v", s.shortID(), subs)
		return
	}
	s.logger.Printf("remote[%s]: handshake complete: %v", s.shortID(), subs)
}

func (s *Session) handleKeepAlive(frame []byte) {
	if !s.checkSize(frame, keepAliveSize) {
		return
	}
	s.send(NewPacket(PacketKeepAlive).Bytes())
}

// handleScriptExec runs [3][declaredLen:4][script]. A zero declared length
// means the rest of the frame.
func (s *Session) handleScriptExec(frame []byte) {
	if len(frame) < execHeaderSize {
		s.malformed(frame[0], len(frame), execHeaderSize)
		return
	}
	declared := uint64(binary.LittleEndian.Uint32(frame[1:execHeaderSize]))
	script := frame[execHeaderSize:]
	if declared > uint64(len(script)) {
		s.malformed(frame[0], len(frame), int(declared)+execHeaderSize)
		return
	}
	if declared > 0 {
		script = script[:declared]
	}

	var res ExecResult
	if s.engine == nil {
		res = ExecResult{Text: "no script engine"}
	} else {
		res = Execute(s.engine, string(script))
	}
	s.stats.Scripts++
	if !res.Success {
		s.logger.Printf("remote[%s]: script failed: %s", s.shortID(), SanitizeText([]byte(res.Text)))
	}
	s.send(EncodeExecResult(res.Success, res.Text))
}

func (s *Session) malformed(offending byte, received, expected int) {
	s.stats.Malformed++
	s.logger.Printf("remote[%s]: malformed %v: received %d bytes, expected %d",
		s.shortID(), PacketType(offending), received, expected)
	s.send(EncodeMalformed(offending, clampLen(received), clampLen(expected)))
}

func clampLen(n int) int {
	if n < 0 {
		return 0
	}
	if uint64(n) > math.MaxUint32 {
		return math.MaxUint32
	}
	return n
}
