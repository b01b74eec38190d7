package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zenibako/cuems-golang/cuems"
	"github.com/zenibako/cuems-golang/messages"
)

const (
	testNode = "89ddc6fa-e1e6-4c5b-80a8-ae87d3e87a26"

	testTemplateJSON = `{"CuemsScript": {"id": "template-id", "name": "template", "CueList": {
  "id": "template-list", "name": "main", "contents": [
    {"AudioCue": {"id": "t-audio", "name": "", "master_vol": 40,
      "outputs": [{"AudioCueOutput": {"output_name": "", "output_mix": [1, 1]}}]}}
  ]}}}`

	testTopologyJSON = `{"number_of_nodes": 1, "nodes": [{"node": {
  "uuid": "` + testNode + `",
  "audio": [{"outputs": [{"output": {"name": "system:playback_1"}}, {"output": {"name": "system:playback_2"}}]}],
  "video": [{"outputs": [{"output": {"name": "0"}}]}]
}}]}`
)

// runCLI executes the root command with an isolated config and state directory
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	if os.Getenv("CUEMS_STATE_PATH") == "" {
		t.Setenv("CUEMS_STATE_PATH", filepath.Join(dir, "state.db"))
	}

	var out, errOut bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--timeout", "3s"}, args...))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		t.Logf("stderr: %s", errOut.String())
	}
	return out.String(), err
}

func startEngine(t *testing.T) *cuems.MockEngineServer {
	t.Helper()
	mock := cuems.NewMockEngineServer()
	t.Cleanup(mock.Close)
	return mock
}

func respondWith(typ string, value string) cuems.ResponderFunc {
	return func(cuems.Structured) []cuems.Message {
		return []cuems.Message{cuems.Structured{Type: typ, Value: json.RawMessage(value)}}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func seedStateCache(t *testing.T) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	t.Setenv("CUEMS_STATE_PATH", path)

	cache, err := cuems.OpenStateCache(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()
	if err := cache.Put(context.Background(), cuems.CacheKeyTemplate, []byte(testTemplateJSON)); err != nil {
		t.Fatal(err)
	}
	if err := cache.Put(context.Background(), cuems.CacheKeyMappings, []byte(testTopologyJSON)); err != nil {
		t.Fatal(err)
	}
}

func TestTransportCommandsSendEvents(t *testing.T) {
	mock := startEngine(t)

	for i, name := range []string{"go", "pause", "stop"} {
		if _, err := runCLI(t, "--realtime-url", mock.URL("/realtime"), name); err != nil {
			t.Fatalf("%s failed: %v", name, err)
		}
		waitFor(t, func() bool { return len(mock.ReceivedEvents()) == i+1 })
	}

	want := []string{messages.AddrEngineGo, messages.AddrEnginePause, messages.AddrEngineStop}
	for i, ev := range mock.ReceivedEvents() {
		if ev.Address != want[i] {
			t.Errorf("event %d = %s, want %s", i, ev.Address, want[i])
		}
	}
}

func TestVolumeCommand(t *testing.T) {
	mock := startEngine(t)

	if _, err := runCLI(t, "--realtime-url", mock.URL("/realtime"), "volume", "master", testNode, "50"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(mock.ReceivedEvents()) == 1 })

	ev := mock.ReceivedEvents()[0]
	if ev.Address != messages.NewAddressBuilder("").MasterVolume(testNode) {
		t.Errorf("address = %s", ev.Address)
	}
	if v, ok := ev.Arg(0).(float32); !ok || v != 0.5 {
		t.Errorf("volume = %#v", ev.Arg(0))
	}

	if _, err := runCLI(t, "--realtime-url", mock.URL("/realtime"), "volume", "master", testNode, "150"); err == nil {
		t.Error("expected out-of-range level to be rejected")
	}
}

func TestTransportCommandFailsWithoutEngine(t *testing.T) {
	mock := cuems.NewMockEngineServer()
	url := mock.URL("/realtime")
	mock.Close()

	if _, err := runCLI(t, "--realtime-url", url, "go"); err == nil {
		t.Error("expected connection error")
	}
}

func TestProjectsCommand(t *testing.T) {
	mock := startEngine(t)
	mock.Respond("project_list", respondWith("project_list", `[
		{"6c1e2b7a-0000-4000-8000-000000000001": {"name": "Show A", "unix_name": "show-a", "created": "2024-01-01", "modified": "2024-01-02"}}
	]`))

	out, err := runCLI(t, "--control-url", mock.URL("/ws"), "projects")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Show A", "show-a", "6c1e2b7a-0000-4000-8000-000000000001"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestProjectsCommandReportsEngineError(t *testing.T) {
	mock := startEngine(t)
	mock.Respond("project_list", func(cuems.Structured) []cuems.Message {
		return []cuems.Message{cuems.Structured{
			Type:   messages.TypeError,
			Action: "project_list",
			Value:  json.RawMessage(`"Traceback\nReason: database locked\n"`),
		}}
	})

	_, err := runCLI(t, "--control-url", mock.URL("/ws"), "projects")
	if err == nil || !strings.Contains(err.Error(), "database locked") {
		t.Errorf("err = %v", err)
	}
}

func TestProjectNewCommand(t *testing.T) {
	seedStateCache(t)
	mock := startEngine(t)
	mock.Respond("project_new", respondWith("project_new", `"engine-project-id"`))

	out, err := runCLI(t, "--control-url", mock.URL("/ws"), "project", "new", "Canción de Cuna", "--yes")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "engine-project-id" {
		t.Errorf("output = %q", out)
	}

	var req cuems.Structured
	for _, r := range mock.ReceivedRequests() {
		if r.Action == "project_new" {
			req = r
		}
	}
	if req.UnixName != "cancion-de-cuna" {
		t.Errorf("unix_name = %q", req.UnixName)
	}
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cuems", "config.toml")

	out, err := runCLI(t, "config", "init", "--path", path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, path) {
		t.Errorf("output = %q", out)
	}
	if _, err := runCLI(t, "config", "init", "--path", path); err == nil {
		t.Error("expected existing file to be kept")
	}

	out, err = runCLI(t, "--config", path, "--control-url", "ws://console.local:9092/ws", "config", "show")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "ws://console.local:9092/ws") || !strings.Contains(out, "realtime_url") {
		t.Errorf("effective config:\n%s", out)
	}
}
