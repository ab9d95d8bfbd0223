package remote

import (
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// trace logs a packet when debugging is on. Payloads are cut at dumpLen.
func (s *Session) trace(prefix string, p []byte) {
	if !s.debug {
		return
	}
	n := len(p)
	dump := p
	if s.dumpLen > 0 && n > s.dumpLen {
		dump = p[:s.dumpLen]
	}
	name := "empty"
	if n > 0 {
		name = PacketType(p[0]).String()
	}
	s.logger.Printf("remote[%s]: %s %s len=%d payload=% x", s.shortID(), prefix, name, n, dump)
}

// SanitizeText returns b as printable UTF-8, replacing ill-formed
// sequences. Script results and game text are arbitrary bytes.
func SanitizeText(b []byte) string {
	out, _, err := transform.Bytes(runes.ReplaceIllFormed(), b)
	if err != nil {
		return string(b)
	}
	return string(out)
}
