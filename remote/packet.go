package remote

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// Version is reported to scripts so clients can negotiate features.
	Version = 1
	// BufferSize is the capacity of the per-tick command buffer.
	BufferSize = 4096
	// MaxCommandSize is the largest command the host accepts. A read that
	// fills the whole buffer is treated as oversized.
	MaxCommandSize = BufferSize - 1
)

// PacketType is the first byte of every packet. Values are wire visible.
type PacketType uint8

const (
	PacketHandshake PacketType = iota + 1
	PacketLogMessage
	PacketRemoteScriptExec
	PacketKeepAlive
	PacketNewInventory
	PacketCollectedIndices
	PacketReceivedPickups
	PacketGameState
	PacketMalformed
	PacketGameCompleted
)

var packetNames = map[PacketType]string{
	PacketHandshake:        "Handshake",
	PacketLogMessage:       "LogMessage",
	PacketRemoteScriptExec: "RemoteScriptExec",
	PacketKeepAlive:        "KeepAlive",
	PacketNewInventory:     "NewInventory",
	PacketCollectedIndices: "CollectedIndices",
	PacketReceivedPickups:  "ReceivedPickups",
	PacketGameState:        "GameState",
	PacketMalformed:        "Malformed",
	PacketGameCompleted:    "GameCompleted",
}

func (t PacketType) String() string {
	if n, ok := packetNames[t]; ok {
		return n
	}
	return fmt.Sprintf("PacketType(%d)", uint8(t))
}

// Valid reports whether t is part of the protocol.
func (t PacketType) Valid() bool {
	_, ok := packetNames[t]
	return ok
}

// Fixed sizes of client commands, including the tag byte.
const (
	handshakeSize  = 2
	keepAliveSize  = 1
	execHeaderSize = 5
	lenPrefixSize  = 4
	malformedSize  = 1 + 1 + 4 + 4
)

// Handshake flag bits.
const (
	flagLogging    = 1 << 0
	flagMultiWorld = 1 << 1
)

var (
	// ErrEmptyPacket is returned when decoding a zero-length frame.
	ErrEmptyPacket = errors.New("remote: empty packet")
	// ErrTruncated is returned when a frame ends before its declared length.
	ErrTruncated = errors.New("remote: truncated packet")
)

// Packet is an outgoing packet under construction. The tag byte is always
// written first; payload fields are appended in wire order.
type Packet struct {
	buf []byte
}

// NewPacket starts a packet of type t.
func NewPacket(t PacketType) *Packet {
	p := &Packet{buf: make([]byte, 1, 64)}
	p.buf[0] = byte(t)
	return p
}

func (p *Packet) Type() PacketType { return PacketType(p.buf[0]) }
func (p *Packet) Len() int         { return len(p.buf) }
func (p *Packet) Bytes() []byte    { return p.buf }

func (p *Packet) AppendByte(b byte) *Packet {
	p.buf = append(p.buf, b)
	return p
}

func (p *Packet) AppendBool(v bool) *Packet {
	if v {
		return p.AppendByte(1)
	}
	return p.AppendByte(0)
}

// AppendUint32 appends v little-endian.
func (p *Packet) AppendUint32(v uint32) *Packet {
	p.buf = binary.LittleEndian.AppendUint32(p.buf, v)
	return p
}

func (p *Packet) AppendBytes(b []byte) *Packet {
	p.buf = append(p.buf, b...)
	return p
}

func (p *Packet) AppendString(s string) *Packet {
	p.buf = append(p.buf, s...)
	return p
}

// AppendLenPrefixed appends a 4 byte length followed by s.
func (p *Packet) AppendLenPrefixed(s string) *Packet {
	return p.AppendUint32(uint32(len(s))).AppendString(s)
}

// Encode concatenates the tag byte and parts. No padding is added.
func Encode(t PacketType, parts ...[]byte) []byte {
	n := 1
	for _, part := range parts {
		n += len(part)
	}
	out := make([]byte, 0, n)
	out = append(out, byte(t))
	for _, part := range parts {
		out = append(out, part...)
	}
	return out
}

// DecodeHeader splits a frame into its type and the remaining payload. The
// type is returned even when it is not a known PacketType.
func DecodeHeader(b []byte) (PacketType, []byte, error) {
	if len(b) == 0 {
		return 0, nil, ErrEmptyPacket
	}
	return PacketType(b[0]), b[1:], nil
}

// EncodeText builds a text event: [type][len:4][text].
func EncodeText(t PacketType, text string) []byte {
	return NewPacket(t).AppendLenPrefixed(text).Bytes()
}

// EncodeExecResult builds a script result: [3][success:1][len:4][text].
func EncodeExecResult(success bool, text string) []byte {
	return NewPacket(PacketRemoteScriptExec).AppendBool(success).AppendLenPrefixed(text).Bytes()
}

// EncodeMalformed builds [9][offending:1][received:4][expected:4].
func EncodeMalformed(offending byte, received, expected int) []byte {
	return NewPacket(PacketMalformed).
		AppendByte(offending).
		AppendUint32(uint32(received)).
		AppendUint32(uint32(expected)).
		Bytes()
}

// EncodeHandshake builds the client handshake for subs.
func EncodeHandshake(subs Subscriptions) []byte {
	return NewPacket(PacketHandshake).AppendByte(subs.flags()).Bytes()
}

// EncodeExecRequest builds a client script request with an explicit length.
func EncodeExecRequest(script string) []byte {
	return NewPacket(PacketRemoteScriptExec).AppendLenPrefixed(script).Bytes()
}
