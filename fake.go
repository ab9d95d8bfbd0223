package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"time"
)

// eventSink is the event side of a remote session.
type eventSink interface {
	SendLog(text string)
	SendInventory(text string)
	SendIndices(text string)
	SendReceivedPickups(text string)
	SendNewGameState(text string)
	SendGameCompleted(text string)
}

// Items the simulated player can pick up.
var fakeItems = []string{
	"ITEM_MISSILE_TANKS",
	"ITEM_ENERGY_TANKS",
	"ITEM_MORPH_BALL",
	"ITEM_WEAPON_CHARGE_BEAM",
	"ITEM_VARIA_SUIT",
	"ITEM_SPIDER_MAGNET",
}

const fakeLocations = 64

type fakePickup struct {
	Provider string `json:"provider"`
	Item     string `json:"item"`
	Count    int    `json:"count"`
}

// fakeGame stands in for the game-state collaborator. Each update past the
// interval emits the next event of a fixed cycle.
type fakeGame struct {
	sink     eventSink
	interval time.Duration
	rng      *rand.Rand

	last      time.Time
	step      int
	round     int
	inventory map[string]int
	collected []int
	received  []fakePickup
}

func newFakeGame(sink eventSink, interval time.Duration, seed int64) *fakeGame {
	return &fakeGame{
		sink:      sink,
		interval:  interval,
		rng:       rand.New(rand.NewSource(seed)),
		inventory: map[string]int{},
	}
}

// fakeCycle is the order events are emitted in.
var fakeCycle = []string{"state", "inventory", "indices", "pickups", "log", "completed"}

func (g *fakeGame) update(now time.Time) {
	if !g.last.IsZero() && now.Sub(g.last) < g.interval {
		return
	}
	g.last = now
	g.emit(fakeCycle[g.step])
	g.step++
	if g.step == len(fakeCycle) {
		g.step = 0
		g.round++
	}
}

func (g *fakeGame) emit(kind string) {
	switch kind {
	case "state":
		if g.round%2 == 0 {
			g.sink.SendNewGameState("INGAME")
		} else {
			g.sink.SendNewGameState("MAINMENU")
		}
	case "inventory":
		item := fakeItems[g.rng.Intn(len(fakeItems))]
		g.inventory[item]++
		g.sink.SendInventory(mustJSON(g.inventory))
	case "indices":
		idx := g.rng.Intn(fakeLocations)
		if !containsInt(g.collected, idx) {
			g.collected = append(g.collected, idx)
			sort.Ints(g.collected)
		}
		g.sink.SendIndices(mustJSON(g.collected))
	case "pickups":
		g.received = append(g.received, fakePickup{
			Provider: fmt.Sprintf("World %d", g.rng.Intn(4)+1),
			Item:     fakeItems[g.rng.Intn(len(fakeItems))],
			Count:    1,
		})
		g.sink.SendReceivedPickups(mustJSON(g.received))
	case "log":
		g.sink.SendLog(fmt.Sprintf("simulated round %d: %d items, %d locations", g.round, len(g.inventory), len(g.collected)))
	case "completed":
		g.sink.SendGameCompleted(fmt.Sprintf("%t", len(g.collected) >= fakeLocations/2))
	}
}

func containsInt(s []int, v int) bool {
	i := sort.SearchInts(s, v)
	return i < len(s) && s[i] == v
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		logError("fake game: encode %T: %v", v, err)
		return ""
	}
	return string(b)
}
