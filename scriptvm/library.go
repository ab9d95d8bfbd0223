package scriptvm

import (
	"reflect"

	"dreadlink/remote"

	"github.com/traefik/yaegi/interp"
)

// LibraryName is the import path scripts use: import "remotelua".
const LibraryName = "remotelua"

// Library exposes session to scripts as the remotelua package.
func Library(s *remote.Session) interp.Exports {
	return interp.Exports{
		LibraryName + "/" + LibraryName: {
			"Init":                reflect.ValueOf(s.Init),
			"Update":              reflect.ValueOf(s.Update),
			"SendLog":             reflect.ValueOf(s.SendLog),
			"SendInventory":       reflect.ValueOf(s.SendInventory),
			"SendIndices":         reflect.ValueOf(s.SendIndices),
			"SendReceivedPickups": reflect.ValueOf(s.SendReceivedPickups),
			"SendNewGameState":    reflect.ValueOf(s.SendNewGameState),
			"SendGameCompleted":   reflect.ValueOf(s.SendGameCompleted),
			"Connected":           reflect.ValueOf(s.IsConnected),
			"Version":             reflect.ValueOf(remote.Version),
			"BufferSize":          reflect.ValueOf(remote.BufferSize),
		},
	}
}

// NewForSession builds an engine that also sees the session library and
// installs it as the session's script engine.
func NewForSession(s *remote.Session) (*Engine, error) {
	e, err := New(Library(s))
	if err != nil {
		return nil, err
	}
	s.SetEngine(e)
	return e, nil
}
