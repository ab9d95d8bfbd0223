package remote

import "testing"

func TestLogGating(t *testing.T) {
	s, tr, _ := connectTestSession(t, Subscriptions{Logging: false, MultiWorld: true})
	s.SendLog("ignored")
	if tr.out.Len() != 0 {
		t.Fatalf("unsubscribed log wrote % x", tr.out.Bytes())
	}

	s, tr, _ = connectTestSession(t, Subscriptions{Logging: true})
	for i := 0; i < 3; i++ {
		s.SendLog("line")
		frames := sentFrames(t, tr)
		if len(frames) != 1 || frames[0].Type != PacketLogMessage || frames[0].Text != "line" {
			t.Fatalf("call %d: %v", i, frames)
		}
	}
}

func TestMultiWorldEventsGating(t *testing.T) {
	senders := []struct {
		send func(*Session, string)
		typ  PacketType
	}{
		{(*Session).SendInventory, PacketNewInventory},
		{(*Session).SendIndices, PacketCollectedIndices},
		{(*Session).SendReceivedPickups, PacketReceivedPickups},
		{(*Session).SendNewGameState, PacketGameState},
		{(*Session).SendGameCompleted, PacketGameCompleted},
	}
	for _, snd := range senders {
		s, tr, _ := connectTestSession(t, Subscriptions{Logging: true})
		snd.send(s, "{}")
		if tr.out.Len() != 0 {
			t.Fatalf("%v sent without multiworld subscription", snd.typ)
		}

		s, tr, _ = connectTestSession(t, Subscriptions{MultiWorld: true})
		snd.send(s, `{"a":1}`)
		frames := sentFrames(t, tr)
		if len(frames) != 1 || frames[0].Type != snd.typ || frames[0].Text != `{"a":1}` {
			t.Fatalf("%v: %v", snd.typ, frames)
		}
		s.SendLog("not subscribed")
		if tr.out.Len() != 0 {
			t.Fatalf("log sent on multiworld-only session")
		}
	}
}

func TestEventsOrderedWithinTick(t *testing.T) {
	s, tr, _ := connectTestSession(t, Subscriptions{Logging: true, MultiWorld: true})
	s.SendNewGameState("INGAME")
	s.SendLog("a")
	s.SendInventory("inv")
	frames := sentFrames(t, tr)
	want := []PacketType{PacketGameState, PacketLogMessage, PacketNewInventory}
	if len(frames) != len(want) {
		t.Fatalf("frames %v", frames)
	}
	for i, f := range frames {
		if f.Type != want[i] {
			t.Fatalf("frame %d = %v, want %v", i, f.Type, want[i])
		}
	}
}

func TestEventsDroppedWhileHandshaking(t *testing.T) {
	s, tr, _ := newTestSession(t)
	s.SendLog("early")
	s.SendInventory("early")
	if tr.out.Len() != 0 {
		t.Fatalf("events sent before handshake")
	}
	if s.Stats().Events != 0 {
		t.Fatalf("events counted")
	}
}

func TestEventSendFailureDisconnects(t *testing.T) {
	s, tr, _ := connectTestSession(t, Subscriptions{Logging: true})
	tr.sendErr = errTestPipe
	s.SendLog("boom")
	if s.IsConnected() || s.Subscriptions().Logging {
		t.Fatalf("still connected after failed send")
	}
	tr.sendErr = nil
	s.SendLog("after")
	if tr.out.Len() != 0 {
		t.Fatalf("sent after disconnect")
	}
}
