package main

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"dreadlink/remote"
)

// acceptorSet polls several listeners in turn. The first pending client
// wins; the rest stay queued in their own acceptor.
type acceptorSet []remote.Acceptor

func (s acceptorSet) Accept() (remote.Transport, error) {
	for _, a := range s {
		tr, err := a.Accept()
		if errors.Is(err, remote.ErrNoClient) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("accept on %s: %w", a.Addr(), err)
		}
		return tr, nil
	}
	return nil, remote.ErrNoClient
}

func (s acceptorSet) Addr() string {
	addrs := make([]string, 0, len(s))
	for _, a := range s {
		addrs = append(addrs, a.Addr())
	}
	return strings.Join(addrs, ", ")
}

func (s acceptorSet) Close() error {
	var errs []error
	for _, a := range s {
		if err := a.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// openAcceptors starts the listeners named in cfg.
func openAcceptors(cfg settings, logger *log.Logger) (remote.Acceptor, error) {
	var set acceptorSet
	if cfg.Listen != "" {
		a, err := remote.ListenTCP(cfg.Listen, cfg.pollWait())
		if err != nil {
			return nil, fmt.Errorf("listen %s: %w", cfg.Listen, err)
		}
		set = append(set, a)
	}
	if cfg.WebSocketListen != "" {
		a, err := remote.ListenWebSocket(cfg.WebSocketListen, cfg.WebSocketPath, logger)
		if err != nil {
			set.Close()
			return nil, fmt.Errorf("listen websocket %s: %w", cfg.WebSocketListen, err)
		}
		set = append(set, a)
	}
	switch len(set) {
	case 0:
		return nil, errors.New("no listen address configured")
	case 1:
		return set[0], nil
	}
	return set, nil
}
