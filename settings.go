package main

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/joho/godotenv"
)

const SETTINGS_VERSION = 1

const settingsFile = "settings.json"

// Environment variables that override settings.json. A .env file in the
// working directory is read first; variables already set win.
const (
	envListen   = "DREADLINK_LISTEN"
	envWSListen = "DREADLINK_WS_LISTEN"
	envDebug    = "DREADLINK_DEBUG"
)

var dataDirPath = "data"

var gs settings = gsdef

// settingsLoaded reports whether settings were successfully loaded from disk.
var settingsLoaded bool

var gsdef settings = settings{
	Version: SETTINGS_VERSION,

	Listen:             "0.0.0.0:6969",
	WebSocketPath:      "/remote",
	TickMillis:         16,
	PollWaitMillis:     1,
	ReconnectPerSecond: 4,
	ScriptsDir:         "scripts",
	FakeIntervalSec:    3,
	PacketDumpLen:      256,
}

type settings struct {
	Version int `json:"Version" jsonschema:"description=Settings file format version; other versions are replaced by defaults"`

	Listen          string `json:"Listen" jsonschema:"description=TCP address the remote endpoint listens on; empty disables TCP"`
	WebSocketListen string `json:"WebSocketListen,omitempty" jsonschema:"description=Optional HTTP address for WebSocket clients"`
	WebSocketPath   string `json:"WebSocketPath,omitempty" jsonschema:"description=Upgrade path served on WebSocketListen"`

	TickMillis         int     `json:"TickMillis" jsonschema:"description=Host tick interval in milliseconds,minimum=1"`
	PollWaitMillis     int     `json:"PollWaitMillis" jsonschema:"description=How long a tick waits for pending client bytes,minimum=0"`
	ReconnectPerSecond float64 `json:"ReconnectPerSecond" jsonschema:"description=Maximum accept polls per second while no client is connected; 0 polls every tick"`

	ScriptsDir      string `json:"ScriptsDir" jsonschema:"description=Directory of host scripts loaded at start"`
	FakeGame        bool   `json:"FakeGame" jsonschema:"description=Emit simulated game events"`
	FakeIntervalSec int    `json:"FakeIntervalSec" jsonschema:"description=Seconds between simulated game events,minimum=1"`

	Debug         bool `json:"Debug" jsonschema:"description=Verbose logging and packet dumps"`
	PacketDumpLen int  `json:"PacketDumpLen" jsonschema:"description=Bytes of each packet dumped in debug mode; 0 dumps everything,minimum=0"`
}

func (s settings) tickInterval() time.Duration {
	return time.Duration(s.TickMillis) * time.Millisecond
}

func (s settings) pollWait() time.Duration {
	return time.Duration(s.PollWaitMillis) * time.Millisecond
}

func (s settings) fakeInterval() time.Duration {
	return time.Duration(s.FakeIntervalSec) * time.Second
}

// normalize replaces out of range values with defaults.
func (s *settings) normalize() {
	if s.TickMillis <= 0 {
		s.TickMillis = gsdef.TickMillis
	}
	if s.PollWaitMillis < 0 {
		s.PollWaitMillis = gsdef.PollWaitMillis
	}
	if s.ReconnectPerSecond < 0 {
		s.ReconnectPerSecond = gsdef.ReconnectPerSecond
	}
	if s.FakeIntervalSec <= 0 {
		s.FakeIntervalSec = gsdef.FakeIntervalSec
	}
	if s.PacketDumpLen < 0 {
		s.PacketDumpLen = gsdef.PacketDumpLen
	}
	if s.WebSocketPath == "" {
		s.WebSocketPath = gsdef.WebSocketPath
	} else if !strings.HasPrefix(s.WebSocketPath, "/") {
		s.WebSocketPath = "/" + s.WebSocketPath
	}
}

func loadSettings() bool {
	path := filepath.Join(dataDirPath, settingsFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logWarn("read settings: %v", err)
		}
		gs = gsdef
		settingsLoaded = false
		return false
	}

	tmp := gsdef
	if err := json.Unmarshal(data, &tmp); err != nil {
		logWarn("parse settings %s: %v", path, err)
		gs = gsdef
		settingsLoaded = false
		return false
	}
	if tmp.Version != SETTINGS_VERSION {
		logWarn("settings version %d unsupported, using defaults", tmp.Version)
		gs = gsdef
		settingsLoaded = false
		return false
	}

	gs = tmp
	gs.normalize()
	settingsLoaded = true
	return true
}

func saveSettings() error {
	gs.Version = SETTINGS_VERSION
	data, err := json.MarshalIndent(gs, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dataDirPath, 0755); err != nil {
		return err
	}
	path := filepath.Join(dataDirPath, settingsFile)
	if err := os.WriteFile(path+".tmp", data, 0644); err != nil {
		return err
	}
	return os.Rename(path+".tmp", path)
}

// applyEnvOverrides loads envFile (if present) into the environment and
// applies the DREADLINK_* variables to gs.
func applyEnvOverrides(envFile string) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logWarn("load %s: %v", envFile, err)
		}
	}
	if v, ok := os.LookupEnv(envListen); ok {
		gs.Listen = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv(envWSListen); ok {
		gs.WebSocketListen = strings.TrimSpace(v)
	}
	if v, ok := os.LookupEnv(envDebug); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			logWarn("%s=%q: %v", envDebug, v, err)
		} else {
			gs.Debug = b
		}
	}
}

// settingsSchema describes settings.json for editors.
func settingsSchema() ([]byte, error) {
	r := jsonschema.Reflector{}
	schema := r.Reflect(&settings{})
	schema.Title = "dreadlink settings"
	schema.Description = "Host configuration stored in " + settingsFile
	return json.MarshalIndent(schema, "", "  ")
}
