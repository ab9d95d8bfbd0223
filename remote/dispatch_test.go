package remote

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestHandshakeSetsSubscriptions(t *testing.T) {
	for flag := 0; flag < 4; flag++ {
		s, tr, _ := newTestSession(t)
		tr.push([]byte{byte(PacketHandshake), byte(flag)})
		s.Tick()
		want := subscriptionsFromFlags(byte(flag))
		if s.State() != StateConnected {
			t.Fatalf("flag %d: state %v", flag, s.State())
		}
		if s.Subscriptions() != want {
			t.Fatalf("flag %d: subs %v, want %v", flag, s.Subscriptions(), want)
		}
		if tr.out.Len() != 0 {
			t.Fatalf("handshake produced a reply: % x", tr.out.Bytes())
		}
	}
}

func TestHandshakeWrongSizeIsMalformed(t *testing.T) {
	for _, frame := range [][]byte{{1}, {1, 3, 0}} {
		s, tr, _ := newTestSession(t)
		tr.push(frame)
		s.Tick()
		if s.State() != StateHandshaking {
			t.Fatalf("% x: state %v", frame, s.State())
		}
		frames := sentFrames(t, tr)
		if len(frames) != 1 || frames[0].Type != PacketMalformed {
			t.Fatalf("% x: replies %v", frame, frames)
		}
		f := frames[0]
		if f.Offending != 1 || f.Received != uint32(len(frame)) || f.Expected != 2 {
			t.Fatalf("% x: malformed %v", frame, f)
		}
	}
}

func TestRehandshakeReplacesSubscriptions(t *testing.T) {
	s, tr, _ := connectTestSession(t, Subscriptions{Logging: true, MultiWorld: true})
	tr.push(EncodeHandshake(Subscriptions{MultiWorld: true}))
	s.Tick()
	if !s.IsConnected() {
		t.Fatalf("state %v after re-handshake", s.State())
	}
	if got := s.Subscriptions(); got != (Subscriptions{MultiWorld: true}) {
		t.Fatalf("subs %v", got)
	}
}

func TestCommandsBeforeHandshakeAreMalformed(t *testing.T) {
	for _, frame := range [][]byte{{4}, EncodeExecRequest("x"), {2, 0, 0, 0, 0}} {
		s, tr, eng := newTestSession(t)
		tr.push(frame)
		s.Tick()
		if s.State() != StateHandshaking {
			t.Fatalf("% x advanced state to %v", frame, s.State())
		}
		if len(eng.ran) != 0 {
			t.Fatalf("% x ran scripts %v", frame, eng.ran)
		}
		frames := sentFrames(t, tr)
		if len(frames) != 1 || frames[0].Type != PacketMalformed || frames[0].Offending != frame[0] {
			t.Fatalf("% x: replies %v", frame, frames)
		}
	}
}

func TestKeepAliveIsIdempotent(t *testing.T) {
	subs := Subscriptions{Logging: true}
	s, tr, _ := connectTestSession(t, subs)
	for i := 0; i < 5; i++ {
		tr.push([]byte{byte(PacketKeepAlive)})
		s.Tick()
		frames := sentFrames(t, tr)
		if len(frames) != 1 || frames[0].Type != PacketKeepAlive {
			t.Fatalf("tick %d: replies %v", i, frames)
		}
		if s.Subscriptions() != subs || !s.IsConnected() {
			t.Fatalf("tick %d: keepalive changed session: %v %v", i, s.State(), s.Subscriptions())
		}
	}
}

func TestKeepAliveWithPayloadIsMalformed(t *testing.T) {
	s, tr, _ := connectTestSession(t, Subscriptions{})
	tr.push([]byte{4, 0})
	s.Tick()
	frames := sentFrames(t, tr)
	if len(frames) != 1 || frames[0].Type != PacketMalformed || frames[0].Expected != 1 || frames[0].Received != 2 {
		t.Fatalf("replies %v", frames)
	}
}

func TestUnknownTypeEchoesRawByte(t *testing.T) {
	s, tr, _ := connectTestSession(t, Subscriptions{})
	tr.push([]byte{0xEE, 1, 2})
	s.Tick()
	frames := sentFrames(t, tr)
	if len(frames) != 1 {
		t.Fatalf("replies %v", frames)
	}
	f := frames[0]
	if f.Type != PacketMalformed || f.Offending != 0xEE || f.Received != 3 || f.Expected != 0 {
		t.Fatalf("malformed %v", f)
	}
	if !s.IsConnected() {
		t.Fatalf("malformed input dropped connection")
	}
}

func TestHostOnlyTypeFromClientIsMalformed(t *testing.T) {
	s, tr, _ := connectTestSession(t, Subscriptions{Logging: true})
	tr.push(EncodeText(PacketLogMessage, "spoof"))
	s.Tick()
	frames := sentFrames(t, tr)
	if len(frames) != 1 || frames[0].Type != PacketMalformed || frames[0].Offending != byte(PacketLogMessage) {
		t.Fatalf("replies %v", frames)
	}
}

func TestScriptExecReturnsOneResult(t *testing.T) {
	cases := []struct {
		script  string
		success bool
		text    string
	}{
		{"hello", true, "ran:hello"},
		{"nil", true, "nil"},
		{"fail", false, "attempt to call a nil value"},
		{"panic", false, "kaboom"},
		{"syntax error here", false, "error parsing buffer: 3: unexpected symbol"},
	}
	for _, c := range cases {
		s, tr, _ := connectTestSession(t, Subscriptions{})
		tr.push(EncodeExecRequest(c.script))
		s.Tick()
		frames := sentFrames(t, tr)
		if len(frames) != 1 || frames[0].Type != PacketRemoteScriptExec {
			t.Fatalf("%q: replies %v", c.script, frames)
		}
		if frames[0].Success != c.success || frames[0].Text != c.text {
			t.Fatalf("%q: got success=%t %q, want %t %q", c.script, frames[0].Success, frames[0].Text, c.success, c.text)
		}
	}
}

func TestScriptExecZeroDeclaredLengthUsesFrame(t *testing.T) {
	s, tr, eng := connectTestSession(t, Subscriptions{})
	frame := append([]byte{3, 0, 0, 0, 0}, "whole frame"...)
	tr.push(frame)
	s.Tick()
	if len(eng.ran) != 1 || eng.ran[0] != "whole frame" {
		t.Fatalf("ran %q", eng.ran)
	}
	sentFrames(t, tr)
}

func TestScriptExecDeclaredLengthTrims(t *testing.T) {
	s, tr, eng := connectTestSession(t, Subscriptions{})
	frame := []byte{3}
	frame = binary.LittleEndian.AppendUint32(frame, 3)
	frame = append(frame, "abcdef"...)
	tr.push(frame)
	s.Tick()
	if len(eng.ran) != 1 || eng.ran[0] != "abc" {
		t.Fatalf("ran %q", eng.ran)
	}
}

func TestScriptExecTruncatedIsMalformed(t *testing.T) {
	s, tr, eng := connectTestSession(t, Subscriptions{})
	frame := []byte{3}
	frame = binary.LittleEndian.AppendUint32(frame, 100)
	frame = append(frame, "short"...)
	tr.push(frame)
	s.Tick()
	if len(eng.ran) != 0 {
		t.Fatalf("ran truncated script %q", eng.ran)
	}
	frames := sentFrames(t, tr)
	if len(frames) != 1 || frames[0].Type != PacketMalformed {
		t.Fatalf("replies %v", frames)
	}
	if frames[0].Received != uint32(len(frame)) || frames[0].Expected != 105 {
		t.Fatalf("malformed %v", frames[0])
	}
}

func TestShortFramesNeverExecute(t *testing.T) {
	for n := 1; n < execHeaderSize; n++ {
		s, tr, eng := connectTestSession(t, Subscriptions{Logging: true})
		subs := s.Subscriptions()
		tr.push(bytes.Repeat([]byte{3}, n)[:n])
		s.Tick()
		if len(eng.ran) != 0 {
			t.Fatalf("%d bytes executed a script", n)
		}
		frames := sentFrames(t, tr)
		if len(frames) != 1 || frames[0].Type != PacketMalformed || frames[0].Expected != execHeaderSize {
			t.Fatalf("%d bytes: replies %v", n, frames)
		}
		if s.Subscriptions() != subs {
			t.Fatalf("%d bytes changed subscriptions", n)
		}
	}
}

func TestOneCommandPerTick(t *testing.T) {
	s, tr, _ := connectTestSession(t, Subscriptions{})
	tr.push([]byte{4})
	tr.push([]byte{4})
	s.Tick()
	if got := len(sentFrames(t, tr)); got != 1 {
		t.Fatalf("first tick sent %d packets", got)
	}
	s.Tick()
	if got := len(sentFrames(t, tr)); got != 1 {
		t.Fatalf("second tick sent %d packets", got)
	}
	s.Tick()
	if got := len(sentFrames(t, tr)); got != 0 {
		t.Fatalf("idle tick sent %d packets", got)
	}
}

func TestStaleBufferBytesAreIgnored(t *testing.T) {
	s, tr, eng := connectTestSession(t, Subscriptions{})
	tr.push(EncodeExecRequest("a long script body"))
	s.Tick()
	sentFrames(t, tr)
	tr.push([]byte{3, 0, 0, 0, 0})
	s.Tick()
	if len(eng.ran) != 2 || eng.ran[1] != "" {
		t.Fatalf("second script = %q", eng.ran)
	}
}

func TestOversizedCommandIsDiscarded(t *testing.T) {
	s, tr, eng := connectTestSession(t, Subscriptions{})
	script := string(bytes.Repeat([]byte{'x'}, BufferSize))
	tr.push(EncodeExecRequest(script))
	s.Tick()
	if len(eng.ran) != 0 {
		t.Fatalf("oversized script executed")
	}
	frames := sentFrames(t, tr)
	if len(frames) != 1 || frames[0].Type != PacketMalformed {
		t.Fatalf("replies %v", frames)
	}
	if frames[0].Received != BufferSize || frames[0].Expected != uint32(BufferSize+execHeaderSize) {
		t.Fatalf("malformed %v", frames[0])
	}
	if len(tr.in) != 0 {
		t.Fatalf("remainder left pending: %d chunks", len(tr.in))
	}
	s.Tick()
	if got := sentFrames(t, tr); len(got) != 0 {
		t.Fatalf("remainder dispatched: %v", got)
	}
}

func TestFullBufferCommandIsOversized(t *testing.T) {
	s, tr, eng := connectTestSession(t, Subscriptions{})
	fits := string(bytes.Repeat([]byte{'a'}, MaxCommandSize-execHeaderSize))
	tr.push(EncodeExecRequest(fits))
	s.Tick()
	if len(eng.ran) != 1 || eng.ran[0] != fits {
		t.Fatalf("largest command did not run")
	}
	if frames := sentFrames(t, tr); len(frames) != 1 || frames[0].Type != PacketRemoteScriptExec {
		t.Fatalf("replies %v", frames)
	}

	full := string(bytes.Repeat([]byte{'b'}, BufferSize-execHeaderSize))
	tr.push(EncodeExecRequest(full))
	s.Tick()
	if len(eng.ran) != 1 {
		t.Fatalf("command filling the buffer executed")
	}
	frames := sentFrames(t, tr)
	if len(frames) != 1 || frames[0].Type != PacketMalformed {
		t.Fatalf("replies %v", frames)
	}
	if frames[0].Received != BufferSize || frames[0].Expected != MaxCommandSize {
		t.Fatalf("malformed %v", frames[0])
	}
	if st := s.Stats(); st.Commands != 3 || st.Malformed != 1 {
		t.Fatalf("stats %+v", st)
	}
}

func TestStatsCountCommands(t *testing.T) {
	s, tr, _ := connectTestSession(t, Subscriptions{})
	tr.push([]byte{4})
	s.Tick()
	tr.push([]byte{0})
	s.Tick()
	tr.push(EncodeExecRequest("x"))
	s.Tick()
	st := s.Stats()
	if st.Commands != 4 || st.Malformed != 1 || st.Scripts != 1 {
		t.Fatalf("stats %+v", st)
	}
	if st.BytesIn == 0 || st.BytesOut == 0 {
		t.Fatalf("traffic not counted: %+v", st)
	}
}
