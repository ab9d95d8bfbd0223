// Code generated for editor support.
// This file provides stubs for the "remotelua" package so editors can
// type-check host scripts without the host. Implementations are no-ops.

package remotelua

// Protocol constants.
const (
	Version    = 1
	BufferSize = 4096
)

// Poll loop
func Init()   {}
func Update() {}

// Connection
func Connected() bool { return false }

// Events
func SendLog(text string)             {}
func SendInventory(text string)       {}
func SendIndices(text string)         {}
func SendReceivedPickups(text string) {}
func SendNewGameState(text string)    {}
func SendGameCompleted(text string)   {}
