package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"dreadlink/remote"
	"dreadlink/scriptvm"
)

var (
	listenAddr string
	wsAddr     string
	doDebug    bool
	fake       bool
	pcapPath   string
	hostPort   uint
	probeAddr  string
	probeExec  string
)

func main() {
	flag.StringVar(&dataDirPath, "data", dataDirPath, "directory holding settings.json")
	flag.StringVar(&listenAddr, "listen", "", "TCP listen address (overrides settings)")
	flag.StringVar(&wsAddr, "ws", "", "WebSocket listen address (overrides settings)")
	flag.BoolVar(&doDebug, "debug", false, "verbose/debug logging")
	flag.BoolVar(&fake, "fake", false, "emit simulated game events")
	flag.StringVar(&pcapPath, "pcap", "", "decode protocol traffic from .pcap/.pcapng files (comma separated) and exit")
	flag.UintVar(&hostPort, "hostPort", 6969, "host TCP port used to tell directions apart in -pcap")
	flag.StringVar(&probeAddr, "probe", "", "connect to a running host, run -exec and exit")
	flag.StringVar(&probeExec, "exec", "return remotelua.Version", "script body for -probe")
	schema := flag.Bool("schema", false, "print the settings.json schema and exit")
	save := flag.Bool("save", false, "write the effective settings to settings.json")
	flag.Parse()

	if *schema {
		data, err := settingsSchema()
		if err != nil {
			log.Fatalf("schema: %v", err)
		}
		fmt.Println(string(data))
		return
	}

	loadSettings()
	applyEnvOverrides(".env")
	applyFlags()
	gs.normalize()

	setupLogging(gs.Debug)
	debugPacketDumpLen = gs.PacketDumpLen
	defer func() {
		if r := recover(); r != nil {
			logPanic(r)
			os.Exit(2)
		}
	}()

	if *save {
		if err := saveSettings(); err != nil {
			logError("save settings: %v", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	defer cancel()

	if paths := capturePaths(); len(paths) > 0 {
		if err := decodeCaptures(ctx, paths, uint16(hostPort), os.Stdout); err != nil {
			logError("pcap: %v", err)
			os.Exit(1)
		}
		return
	}

	if probeAddr != "" {
		if err := runProbe(probeAddr, probeExec, 5*time.Second, os.Stdout); err != nil {
			logError("probe: %v", err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, gs); err != nil && !errors.Is(err, context.Canceled) {
		logError("%v", err)
		os.Exit(1)
	}
}

// applyFlags lets explicitly set command-line flags win over settings and
// the environment.
func applyFlags() {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			gs.Listen = listenAddr
		case "ws":
			gs.WebSocketListen = wsAddr
		case "debug":
			gs.Debug = doDebug
		case "fake":
			gs.FakeGame = fake
		}
	})
}

func capturePaths() []string {
	var paths []string
	for _, p := range strings.Split(pcapPath, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	if pcapPath != "" {
		paths = append(paths, flag.Args()...)
	}
	return paths
}

// newHost wires a session, its script engine, host scripts and the
// simulated game around acc.
func newHost(cfg settings, acc remote.Acceptor) (*host, error) {
	h := &host{}
	h.session = remote.NewSession(remote.Options{
		Acceptor:           acc,
		Scheduler:          &h.queue,
		Logger:             log.Default(),
		ReconnectPerSecond: cfg.ReconnectPerSecond,
		Debug:              cfg.Debug,
		DumpLen:            cfg.PacketDumpLen,
	})
	if _, err := scriptvm.NewForSession(h.session); err != nil {
		return nil, fmt.Errorf("script engine: %w", err)
	}
	lib := scriptvm.Library(h.session)
	if cfg.ScriptsDir != "" {
		if err := ensureExampleScripts(cfg.ScriptsDir); err != nil {
			logWarn("scripts dir %s: %v", cfg.ScriptsDir, err)
		}
	}
	h.scripts = loadHostScripts(cfg.ScriptsDir, lib)
	if cfg.FakeGame {
		h.game = newFakeGame(h.session, cfg.fakeInterval(), time.Now().UnixNano())
	}
	return h, nil
}

func run(ctx context.Context, cfg settings) error {
	acc, err := openAcceptors(cfg, log.Default())
	if err != nil {
		return err
	}
	h, err := newHost(cfg, acc)
	if err != nil {
		acc.Close()
		return err
	}
	logDebug("session %s: %d host scripts, fake game %t", h.session.ID(), h.scripts.active(), h.game != nil)
	h.session.Init()
	err = hostLoop(ctx, h, cfg.tickInterval())
	if cerr := h.session.Shutdown(); cerr != nil {
		logWarn("shutdown: %v", cerr)
	}
	return err
}
