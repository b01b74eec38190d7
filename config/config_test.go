package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.toml")

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	def := Default()
	if cfg.Engine.ControlURL != def.Engine.ControlURL || cfg.Engine.RealtimeURL != def.Engine.RealtimeURL {
		t.Errorf("engine = %+v", cfg.Engine)
	}
	if cfg.ControlReconnectDelay() != 10*time.Second {
		t.Errorf("control reconnect = %v", cfg.ControlReconnectDelay())
	}
	if cfg.RealtimeReconnectDelay() != time.Second {
		t.Errorf("realtime reconnect = %v", cfg.RealtimeReconnectDelay())
	}
	if cfg.Topology.MaxAttempts != 5 || cfg.TopologyStep() != 500*time.Millisecond {
		t.Errorf("topology = %+v", cfg.Topology)
	}
	if strings.HasPrefix(cfg.State.Path, "~") || !filepath.IsAbs(cfg.State.Path) {
		t.Errorf("state path not expanded: %q", cfg.State.Path)
	}
	if cfg.LockPath() != cfg.State.Path+".lock" {
		t.Errorf("lock path = %q", cfg.LockPath())
	}
}

func TestLoadFileEnvAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `
[engine]
control_url = "ws://engine.local:9092/ws"
realtime_reconnect_millis = 250

[state]
path = "` + filepath.ToSlash(filepath.Join(dir, "state.db")) + `"

[logging]
level = "DEBUG"
format = "json"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CUEMS_TOPOLOGY_MAX_ATTEMPTS", "9")
	t.Setenv("CUEMS_ENGINE_REALTIME_URL", "wss://engine.local/realtime")

	cfg, err := Load(path, map[string]any{"engine.control_url": "ws://override:1/ws"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Engine.ControlURL != "ws://override:1/ws" {
		t.Errorf("override lost: %q", cfg.Engine.ControlURL)
	}
	if cfg.Engine.RealtimeURL != "wss://engine.local/realtime" {
		t.Errorf("env lost: %q", cfg.Engine.RealtimeURL)
	}
	if cfg.Topology.MaxAttempts != 9 {
		t.Errorf("max attempts = %d", cfg.Topology.MaxAttempts)
	}
	if cfg.Engine.RealtimeReconnectMillis != 250 || cfg.Engine.ControlReconnectSeconds != 10 {
		t.Errorf("engine = %+v", cfg.Engine)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != FormatJSON {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if cfg.State.Path != filepath.Join(dir, "state.db") {
		t.Errorf("state path = %q", cfg.State.Path)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   any
		wantErr string
	}{
		{"http url", "engine.control_url", "http://localhost/ws", "ws or wss"},
		{"no host", "engine.realtime_url", "ws:///realtime", "no host"},
		{"zero reconnect", "engine.control_reconnect_seconds", 0, "control_reconnect_seconds"},
		{"zero attempts", "topology.max_attempts", 0, "max_attempts"},
		{"bad level", "logging.level", "loud", "logging.level"},
		{"bad format", "logging.format", "xml", "logging.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			_, err := Load(path, map[string]any{tt.key: tt.value})
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := WriteDefault(path, false); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var written Config
	if err := toml.Unmarshal(data, &written); err != nil {
		t.Fatalf("written config is not TOML: %v", err)
	}
	if written != Default() {
		t.Errorf("written = %+v", written)
	}

	if err := WriteDefault(path, false); err == nil {
		t.Error("expected refusal to overwrite")
	}
	if err := WriteDefault(path, true); err != nil {
		t.Errorf("overwrite failed: %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("default config does not load: %v", err)
	}
	if cfg.Engine.ControlURL != Default().Engine.ControlURL {
		t.Errorf("control url = %q", cfg.Engine.ControlURL)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	got, err := ExpandPath("~/cuems/state.db")
	if err != nil {
		t.Fatal(err)
	}
	if got != filepath.Join(home, "cuems", "state.db") {
		t.Errorf("ExpandPath = %q", got)
	}
	if got, _ := ExpandPath(""); got != "" {
		t.Errorf("empty path expanded to %q", got)
	}
}
