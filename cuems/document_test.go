package cuems

import (
	"testing"

	"github.com/zenibako/cuems-golang/templates"
)

func TestParseDocument(t *testing.T) {
	doc, err := ParseDocument([]byte(`{"uuid": "p-1", "CuemsScript": {"id": "s", "name": "Show", "CueList": {"contents": [{"ActionCue": {}}]}}}`))
	if err != nil {
		t.Fatal(err)
	}
	if doc.UUID() != "p-1" || doc.Name() != "Show" || len(doc.Contents()) != 1 {
		t.Errorf("uuid %q name %q contents %v", doc.UUID(), doc.Name(), doc.Contents())
	}

	doc, err = ParseDocument([]byte(`null`))
	if err != nil || doc == nil {
		t.Errorf("null document: %v %v", doc, err)
	}

	if _, err := ParseDocument([]byte(`{`)); err == nil {
		t.Error("expected error for truncated JSON")
	}
}

func TestDocumentUUIDFallsBackToScriptID(t *testing.T) {
	doc := Document{templates.KeyScript: map[string]any{"id": "script-id"}}
	if doc.UUID() != "script-id" {
		t.Errorf("UUID = %q", doc.UUID())
	}
}

func TestDocumentClone(t *testing.T) {
	doc := Document{templates.KeyScript: map[string]any{"name": "a"}}
	clone := doc.Clone()
	clone.Script()["name"] = "b"
	if doc.Name() != "a" {
		t.Error("Clone must deep-copy nested nodes")
	}
}

func TestParseCueEntry(t *testing.T) {
	tests := []struct {
		name    string
		item    any
		kind    CueKind
		wantErr bool
	}{
		{"audio", map[string]any{"AudioCue": map[string]any{"id": "a"}}, KindAudio, false},
		{"extra unknown keys ignored", map[string]any{"DmxCue": map[string]any{}, "ui": true}, KindDmx, false},
		{"no tag", map[string]any{"LightCue": map[string]any{}}, "", true},
		{"two tags", map[string]any{"AudioCue": map[string]any{}, "ActionCue": map[string]any{}}, "", true},
		{"body not an object", map[string]any{"VideoCue": "x"}, "", true},
		{"not an object", []any{}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := ParseCueEntry(tt.item)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && entry.Kind != tt.kind {
				t.Errorf("kind = %q, want %q", entry.Kind, tt.kind)
			}
		})
	}
}

func TestCueEntryWrap(t *testing.T) {
	body := map[string]any{"id": "x"}
	wrapped := CueEntry{Kind: KindVideo, Body: body}.Wrap()
	if len(wrapped) != 1 || wrapped[templates.TagVideoCue] == nil {
		t.Errorf("Wrap = %v", wrapped)
	}
}
