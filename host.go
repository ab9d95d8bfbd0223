package main

import (
	"context"
	"sync"
	"time"

	"dreadlink/remote"
)

// tickQueue is the scheduler the remote session reschedules itself into.
// Functions scheduled while a tick runs wait for the next tick.
type tickQueue struct {
	mu   sync.Mutex
	next []func()
}

func (q *tickQueue) Schedule(fn func()) {
	q.mu.Lock()
	q.next = append(q.next, fn)
	q.mu.Unlock()
}

// run calls everything scheduled before it started and reports how many
// functions ran.
func (q *tickQueue) run() int {
	q.mu.Lock()
	due := q.next
	q.next = nil
	q.mu.Unlock()
	for _, fn := range due {
		if err := callProtected(fn); err != nil {
			logError("scheduled task: %v", err)
		}
	}
	return len(due)
}

func (q *tickQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.next)
}

// host owns everything that runs on the tick goroutine.
type host struct {
	session *remote.Session
	queue   tickQueue
	scripts *hostScripts
	game    *fakeGame
	ticks   uint64
}

func (h *host) step(now time.Time) {
	h.ticks++
	h.queue.run()
	if h.scripts != nil {
		h.scripts.onTick()
	}
	if h.game != nil {
		h.game.update(now)
	}
}

// hostLoop ticks h every interval until ctx is done.
func hostLoop(ctx context.Context, h *host, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-t.C:
			h.step(now)
		}
	}
}
