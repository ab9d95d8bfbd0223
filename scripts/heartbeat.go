//go:build script

package main

import (
	"strconv"

	"remotelua"
)

const scriptName = "Heartbeat"

// Ticks between heartbeats; at 16ms per tick this is roughly ten seconds.
const every = 600

var ticks int

func Init() {
	ticks = 0
}

func OnTick() {
	if !remotelua.Connected() {
		ticks = 0
		return
	}
	ticks++
	if ticks%every == 0 {
		remotelua.SendLog("heartbeat " + strconv.Itoa(ticks/every))
	}
}
