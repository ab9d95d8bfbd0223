package remote

// Game event entry points. Each sends one packet when the client subscribed
// to the category and nothing otherwise. Text is already serialized by the
// caller and is forwarded verbatim.

func (s *Session) SendLog(text string) {
	s.emit(s.conn.subs.Logging, PacketLogMessage, text)
}

func (s *Session) SendInventory(text string) {
	s.emit(s.conn.subs.MultiWorld, PacketNewInventory, text)
}

func (s *Session) SendIndices(text string) {
	s.emit(s.conn.subs.MultiWorld, PacketCollectedIndices, text)
}

func (s *Session) SendReceivedPickups(text string) {
	s.emit(s.conn.subs.MultiWorld, PacketReceivedPickups, text)
}

func (s *Session) SendNewGameState(text string) {
	s.emit(s.conn.subs.MultiWorld, PacketGameState, text)
}

func (s *Session) SendGameCompleted(text string) {
	s.emit(s.conn.subs.MultiWorld, PacketGameCompleted, text)
}

func (s *Session) emit(enabled bool, t PacketType, text string) {
	if !enabled || !s.conn.IsConnected() {
		return
	}
	s.stats.Events++
	s.send(EncodeText(t, text))
}
