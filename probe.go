package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"time"

	"dreadlink/remote"
)

// probeSettle is how long the probe waits after its handshake. The host
// reads one command per tick and the handshake has no reply, so the
// following command must not share its read.
const probeSettle = 100 * time.Millisecond

func hexDump(prefix string, data []byte) {
	if !gs.Debug {
		return
	}
	log.Printf("%v %d bytes\n%v", prefix, len(data), hex.Dump(data))
}

// runProbe connects to a host as a client, subscribes to everything, runs
// script and prints what comes back.
func runProbe(addr, script string, timeout time.Duration, out io.Writer) error {
	c, err := remote.Dial(addr, timeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer c.Close()

	if err := c.Handshake(remote.Subscriptions{Logging: true, MultiWorld: true}); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	time.Sleep(probeSettle)

	if err := c.KeepAlive(); err != nil {
		return fmt.Errorf("keep alive: %w", err)
	}
	deadline := time.Now().Add(timeout)
	for {
		f, err := c.Next(deadline)
		if err != nil {
			return fmt.Errorf("waiting for keep alive: %w", err)
		}
		hexDump("probe recv", f.Raw)
		if f.Type == remote.PacketKeepAlive {
			break
		}
		if f.Type == remote.PacketMalformed {
			return fmt.Errorf("host rejected handshake: %v", f)
		}
		fmt.Fprintf(out, "event: %v\n", f)
	}
	fmt.Fprintf(out, "connected to %s\n", addr)

	res, err := c.Exec(script, time.Now().Add(timeout), func(f remote.Frame) {
		hexDump("probe recv", f.Raw)
		fmt.Fprintf(out, "event: %v\n", f)
	})
	if err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	fmt.Fprintf(out, "success=%t result=%s\n", res.Success, res.Text)
	if !res.Success {
		return fmt.Errorf("script failed: %s", res.Text)
	}
	return nil
}
