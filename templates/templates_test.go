package templates

import (
	"encoding/json"
	"testing"
)

const sampleTemplate = `{
  "CuemsScript": {
    "id": "tmpl",
    "name": "template",
    "CueList": {
      "id": "list-id",
      "name": "main",
      "contents": [
        {"AudioCue": {"id": "a", "master_vol": 40, "Media": {"file_name": "x.wav"},
          "outputs": [{"AudioCueOutput": {"output_name": "", "output_mix": [1, 0]}}]}},
        {"VideoCue": {"id": "v", "VideoCueOutput": {"output_name": "", "output_geometry": {"scale": 1}}}},
        {"ActionCue": {"id": "c", "action_type": "play"}},
        {"DmxCue": {"id": "d", "DmxScene": {"DmxUniverse": {"universe_num": 0, "dmx_channels": []}}}}
      ]
    }
  }
}`

func loadTemplate(t *testing.T) Template {
	t.Helper()
	var tmpl Template
	if err := json.Unmarshal([]byte(sampleTemplate), &tmpl); err != nil {
		t.Fatalf("failed to parse template: %v", err)
	}
	return tmpl
}

func TestVariantReturnsCopy(t *testing.T) {
	tmpl := loadTemplate(t)

	body, ok := tmpl.Variant(TagAudioCue)
	if !ok {
		t.Fatal("expected audio variant")
	}
	body["id"] = "changed"

	again, _ := tmpl.Variant(TagAudioCue)
	if again["id"] != "a" {
		t.Error("Variant must not expose the template's own maps")
	}

	if _, ok := tmpl.Variant("LightCue"); ok {
		t.Error("unknown variants must not be found")
	}
}

func TestOutputStructure(t *testing.T) {
	tmpl := loadTemplate(t)

	audio, ok := tmpl.OutputStructure(TagAudioOutput)
	if !ok || audio["output_mix"] == nil {
		t.Errorf("audio output structure from outputs array: %v", audio)
	}

	video, ok := tmpl.OutputStructure(TagVideoOutput)
	if !ok || video["output_geometry"] == nil {
		t.Errorf("video output structure from direct field: %v", video)
	}

	if _, ok := tmpl.OutputStructure("DmxCueOutput"); ok {
		t.Error("unexpected output structure for unknown tag")
	}
}

func TestNewProject(t *testing.T) {
	tmpl := loadTemplate(t)

	doc, err := tmpl.NewProject("project-uuid", "new-list", "My Show", "desc")
	if err != nil {
		t.Fatal(err)
	}
	script := doc[KeyScript].(map[string]any)
	if script["id"] != "project-uuid" || script["name"] != "My Show" || script["description"] != "desc" {
		t.Errorf("script fields not set: %v", script)
	}
	list := script[KeyCueList].(map[string]any)
	if list["id"] != "new-list" {
		t.Errorf("cue list id = %v", list["id"])
	}
	if contents := list[KeyContents].([]any); len(contents) != 0 {
		t.Errorf("new project must start empty, got %d cues", len(contents))
	}

	if len(tmpl.Contents()) != 4 {
		t.Error("NewProject must not modify the template")
	}

	if _, err := (Template{}).NewProject("p", "l", "n", ""); err == nil {
		t.Error("expected error for template without script")
	}
}

func TestCueListCopy(t *testing.T) {
	tmpl := loadTemplate(t)
	list, ok := tmpl.CueListCopy("fresh")
	if !ok {
		t.Fatal("expected cue list")
	}
	if list["id"] != "fresh" || list["name"] != "main" {
		t.Errorf("unexpected cue list %v", list)
	}
	if _, ok := (Template{}).CueListCopy("x"); ok {
		t.Error("empty template has no cue list")
	}
}

func TestMinimalCueList(t *testing.T) {
	list := MinimalCueList("id-1")
	if list["post_go"] != "pause" || list["name"] != "empty" {
		t.Errorf("unexpected minimal list %v", list)
	}
	if TimecodeValue(list["offset"]) != "00:00:00.000" {
		t.Error("offset should be a zero timecode")
	}
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"My Show":               "my-show",
		"  Canción   de  Cuna ": "cancion-de-cuna",
		"A/B -- test!":          "ab-test",
		"--edge--":              "edge",
		"snake_case":            "snake_case",
	}
	for in, want := range tests {
		if got := Slug(in); got != want {
			t.Errorf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}
