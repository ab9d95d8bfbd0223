package remote

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
)

// Frame is one decoded packet, in either direction.
type Frame struct {
	Type PacketType
	Raw  []byte
	// Request is set for client to host frames.
	Request bool

	Text    string
	Success bool

	Subs Subscriptions

	Offending byte
	Received  uint32
	Expected  uint32
}

func (f Frame) String() string {
	switch f.Type {
	case PacketHandshake:
		return fmt.Sprintf("Handshake %v", f.Subs)
	case PacketKeepAlive:
		return "KeepAlive"
	case PacketRemoteScriptExec:
		if f.Request {
			return "RemoteScriptExec " + strconv.Quote(f.Text)
		}
		return fmt.Sprintf("RemoteScriptExec success=%t %s", f.Success, strconv.Quote(f.Text))
	case PacketMalformed:
		return fmt.Sprintf("Malformed type=%v received=%d expected=%d", PacketType(f.Offending), f.Received, f.Expected)
	}
	return fmt.Sprintf("%v %s", f.Type, strconv.Quote(f.Text))
}

// ParseHostPacket decodes the first host to client packet in b and reports
// how many bytes it used. ErrTruncated means more bytes are needed.
func ParseHostPacket(b []byte) (Frame, int, error) {
	t, payload, err := DecodeHeader(b)
	if err != nil {
		return Frame{}, 0, err
	}
	f := Frame{Type: t}
	n := 1
	switch t {
	case PacketKeepAlive:
	case PacketMalformed:
		if len(payload) < malformedSize-1 {
			return Frame{}, 0, ErrTruncated
		}
		f.Offending = payload[0]
		f.Received = binary.LittleEndian.Uint32(payload[1:5])
		f.Expected = binary.LittleEndian.Uint32(payload[5:9])
		n = malformedSize
	case PacketRemoteScriptExec:
		if len(payload) < 1 {
			return Frame{}, 0, ErrTruncated
		}
		f.Success = payload[0] != 0
		text, used, err := readLenPrefixed(payload[1:])
		if err != nil {
			return Frame{}, 0, err
		}
		f.Text = text
		n += 1 + used
	case PacketLogMessage, PacketNewInventory, PacketCollectedIndices,
		PacketReceivedPickups, PacketGameState, PacketGameCompleted:
		text, used, err := readLenPrefixed(payload)
		if err != nil {
			return Frame{}, 0, err
		}
		f.Text = text
		n += used
	default:
		return Frame{}, 0, fmt.Errorf("remote: unexpected host packet %v", t)
	}
	f.Raw = b[:n]
	return f, n, nil
}

func readLenPrefixed(b []byte) (string, int, error) {
	if len(b) < lenPrefixSize {
		return "", 0, ErrTruncated
	}
	size := binary.LittleEndian.Uint32(b)
	if uint64(len(b)-lenPrefixSize) < uint64(size) {
		return "", 0, ErrTruncated
	}
	end := lenPrefixSize + int(size)
	return string(b[lenPrefixSize:end]), end, nil
}

// ParseCommand decodes one client to host frame.
func ParseCommand(b []byte) (Frame, error) {
	t, payload, err := DecodeHeader(b)
	if err != nil {
		return Frame{}, err
	}
	f := Frame{Type: t, Raw: b, Request: true}
	switch t {
	case PacketHandshake:
		if len(payload) != handshakeSize-1 {
			return f, ErrTruncated
		}
		f.Subs = subscriptionsFromFlags(payload[0])
	case PacketRemoteScriptExec:
		if len(payload) < execHeaderSize-1 {
			return f, ErrTruncated
		}
		script := payload[execHeaderSize-1:]
		if declared := binary.LittleEndian.Uint32(payload); declared > 0 {
			if uint64(declared) > uint64(len(script)) {
				return f, ErrTruncated
			}
			script = script[:declared]
		}
		f.Text = string(script)
	case PacketKeepAlive:
	default:
		return f, fmt.Errorf("remote: unexpected command %v", t)
	}
	return f, nil
}

// StreamDecoder splits a host to client byte stream into packets.
type StreamDecoder struct {
	buf bytes.Buffer
}

// Write appends received bytes.
func (d *StreamDecoder) Write(p []byte) (int, error) {
	return d.buf.Write(p)
}

// Next returns the next complete packet. ok is false when more bytes are
// needed.
func (d *StreamDecoder) Next() (f Frame, ok bool, err error) {
	if d.buf.Len() == 0 {
		return Frame{}, false, nil
	}
	f, n, err := ParseHostPacket(d.buf.Bytes())
	if err == ErrTruncated {
		return Frame{}, false, nil
	}
	if err != nil {
		return Frame{}, false, err
	}
	f.Raw = append([]byte(nil), f.Raw...)
	d.buf.Next(n)
	return f, true, nil
}

// Buffered reports how many undecoded bytes are held.
func (d *StreamDecoder) Buffered() int { return d.buf.Len() }
