package cuems

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/zenibako/cuems-golang/messages"
)

func errorEnvelope(action string, value any) Structured {
	raw, _ := json.Marshal(value)
	return Structured{Type: messages.TypeError, Action: action, Value: raw}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"plain string", "Project not found", "Project not found"},
		{"traceback reason", "Traceback (most recent call last):\nReason: disk full\nmore", "disk full"},
		{"object", map[string]any{"code": 3}, UnknownErrorMessage},
		{"number", 42, UnknownErrorMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			perr := NewProtocolError(errorEnvelope("project_save", tt.value))
			if perr.Message != tt.want {
				t.Errorf("Message = %q, want %q", perr.Message, tt.want)
			}
		})
	}

	if got := NewProtocolError(Structured{Type: messages.TypeError}).Message; got != UnknownErrorMessage {
		t.Errorf("missing value gave %q", got)
	}
}

func TestErrorRouterDomains(t *testing.T) {
	r := NewErrorRouter()

	var project, media, fallback []string
	r.Handle(messages.DomainProject, func(e *ProtocolError) {
		project = append(project, string(e.Action))
		e.MarkSurfaced("projects")
	})
	r.Handle(messages.DomainMedia, func(e *ProtocolError) {
		media = append(media, string(e.Action))
	})
	r.Fallback(func(e *ProtocolError) {
		fallback = append(fallback, string(e.Action))
	})

	r.Route(errorEnvelope("project_new", "x"))
	r.Route(errorEnvelope("file_delete", "x"))
	r.Route(errorEnvelope("something_else", "x"))
	r.Route(errorEnvelope("file_load_thumbnail", "x"))
	r.Route(Structured{Type: "project_list"})

	if len(project) != 1 || project[0] != "project_new" {
		t.Errorf("project handler saw %v", project)
	}
	if len(media) != 1 || media[0] != "file_delete" {
		t.Errorf("media handler saw %v", media)
	}
	// the media handler did not surface its error, so the fallback reports it
	want := []string{"file_delete", "something_else"}
	if len(fallback) != 2 || fallback[0] != want[0] || fallback[1] != want[1] {
		t.Errorf("fallback saw %v, want %v", fallback, want)
	}
}

func TestErrorRouterIgnoresExperimental(t *testing.T) {
	r := NewErrorRouter()
	if perr := r.Route(errorEnvelope("file_load_waveform", "boom")); perr != nil {
		t.Errorf("experimental error routed: %v", perr)
	}
	if r.HasRecentError(time.Minute) {
		t.Error("experimental errors must not count as recent errors")
	}
}

func TestProtocolErrorSurfaced(t *testing.T) {
	perr := NewProtocolError(errorEnvelope("file_upload", "too big"))
	if _, ok := perr.Surfaced(); ok {
		t.Fatal("new errors are not surfaced")
	}
	perr.MarkSurfaced("upload")
	perr.MarkSurfaced("media")
	if view, ok := perr.Surfaced(); !ok || view != "upload" {
		t.Errorf("Surfaced = %q, %v; first view wins", view, ok)
	}
	if perr.Domain() != messages.DomainUpload {
		t.Errorf("Domain = %q", perr.Domain())
	}
	if perr.Error() != "file_upload failed: too big" {
		t.Errorf("Error() = %q", perr.Error())
	}
}

func TestHasRecentError(t *testing.T) {
	r := NewErrorRouter()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	r.Route(errorEnvelope("project_save", "x"))
	if !r.HasRecentError(time.Second) {
		t.Error("error just routed must be recent")
	}
	now = now.Add(2 * time.Second)
	if r.HasRecentError(time.Second) {
		t.Error("error outside the window must not be recent")
	}
}
