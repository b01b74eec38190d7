package integration

import (
	"context"
	"net"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/zenibako/cuems-golang/config"
	"github.com/zenibako/cuems-golang/cuems"
)

// engineURLs returns the configured engine endpoints, honoring CUEMS_* env
func engineURLs(t *testing.T) (control, realtime string) {
	t.Helper()
	cfg, err := config.Load(os.Getenv("CUEMS_CONFIG"), nil)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	return cfg.Engine.ControlURL, cfg.Engine.RealtimeURL
}

// isEngineAvailable checks if something accepts websocket connections at rawURL
func isEngineAvailable(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	conn, err := net.DialTimeout("tcp", u.Host, 2*time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()

	tr := cuems.NewTransport(rawURL, cuems.WithName("probe"))
	defer tr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	return tr.Connect(ctx) == nil
}

// TestRealEngineStatus follows live status events from a running engine.
// Skips when no engine is reachable.
// Run with: go test ./integration -run TestRealEngineStatus -v
func TestRealEngineStatus(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping real engine test in short mode")
	}

	_, realtime := engineURLs(t)
	if !isEngineAvailable(realtime) {
		t.Skipf("No engine on %s - skipping real engine test", realtime)
	}

	tr := cuems.NewTransport(realtime, cuems.WithName("realtime"))
	defer tr.Close()
	status := cuems.NewStatus()
	detach := status.Attach(tr)
	defer detach()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tr.Connect(ctx); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}

	time.Sleep(2 * time.Second)
	t.Logf("Status after 2s: %s running=%v armed=%v project=%q",
		cuems.TimecodeToSMPTE(status.Timecode.Get()), status.Running.Get(), status.Armed.Get(), status.LoadedProject.Get())
}

// TestRealEngineProjectList requests the project list from a running engine.
// Skips when no engine is reachable.
func TestRealEngineProjectList(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping real engine test in short mode")
	}

	control, _ := engineURLs(t)
	if !isEngineAvailable(control) {
		t.Skipf("No engine on %s - skipping real engine test", control)
	}

	tr := cuems.NewTransport(control, cuems.WithName("control"))
	defer tr.Close()
	router := cuems.NewErrorRouter()
	projects := cuems.NewProjectService(tr, nil, nil)
	defer projects.Attach(tr, router)()
	defer router.Attach(tr)()

	lists := make(chan []cuems.ProjectSummary, 1)
	projects.OnProjectList(func(l []cuems.ProjectSummary) {
		select {
		case lists <- l:
		default:
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := tr.Connect(ctx); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	if err := projects.List(ctx); err != nil {
		t.Fatalf("Failed to request project list: %v", err)
	}

	select {
	case list := <-lists:
		t.Logf("Engine has %d projects", len(list))
		for _, p := range list {
			t.Logf("  %s (%s)", p.Name, p.UUID)
		}
	case <-ctx.Done():
		t.Fatal("Timed out waiting for project list")
	}
}
