//go:build script

package main

import (
	"fmt"

	"remotelua"
)

const scriptName = "Connection Notice"

var wasConnected bool

// OnTick greets a client once its handshake completes.
func OnTick() {
	now := remotelua.Connected()
	if now && !wasConnected {
		remotelua.SendLog(fmt.Sprintf("host ready, protocol v%d", remotelua.Version))
	}
	wasConnected = now
}
