package cuems

import (
	"encoding/json"
	"strconv"
	"testing"

	"github.com/zenibako/cuems-golang/templates"
)

const (
	secondNode = "4f1d2c3b-aaaa-bbbb-cccc-0123456789ab"

	refPlayback1 = testNode + "_system:playback_1"
	refPlayback2 = testNode + "_system:playback_2"
	refVideo0    = testNode + "_0"
	refRemote1   = secondNode + "_system:playback_1"
)

const testTemplateJSON = `{
  "CuemsScript": {
    "id": "template-id",
    "name": "template",
    "description": "",
    "CueList": {
      "id": "template-list",
      "name": "main",
      "loop": 0,
      "contents": [
        {"AudioCue": {
          "id": "t-audio", "name": "", "master_vol": 40, "enabled": true,
          "Media": {"file_name": "template.wav", "regions": []},
          "outputs": [{"AudioCueOutput": {"output_name": "", "output_mix": [1, 1]}}]
        }},
        {"VideoCue": {
          "id": "t-video", "name": "", "enabled": true,
          "outputs": [{"VideoCueOutput": {"output_name": "", "output_geometry": {"x_scale": 1, "y_scale": 1}}}]
        }},
        {"ActionCue": {"id": "t-action", "name": "", "action_type": "play", "action_target": "", "Media": {"file_name": "stray"}}},
        {"DmxCue": {
          "id": "t-dmx", "name": "", "fadein_time": 0,
          "DmxScene": {"id": 0, "DmxUniverse": {"universe_num": 0, "dmx_channels": [
            {"DmxChannel": {"channel": 0, "value": 10}}
          ]}}
        }}
      ]
    }
  }
}`

const testTopologyJSON = `{
  "number_of_nodes": 2,
  "default_audio_output": "` + refPlayback1 + `",
  "default_video_output": "` + refVideo0 + `",
  "nodes": [
    {"node": {
      "uuid": "` + testNode + `",
      "mac": "2cf05d21cca3",
      "audio": [{"outputs": [
        {"output": {"name": "system:playback_1", "mappings": [{"mapped_to": "system:playback_1"}]}},
        {"output": {"name": "system:playback_2"}}
      ]}],
      "video": [{"outputs": [{"output": {"name": "0"}}]}]
    }},
    {"node": {
      "uuid": "` + secondNode + `",
      "audio": [{"outputs": [{"output": {"name": "system:playback_1"}}]}]
    }}
  ]
}`

func testTemplate(t *testing.T) templates.Template {
	t.Helper()
	var tmpl templates.Template
	if err := json.Unmarshal([]byte(testTemplateJSON), &tmpl); err != nil {
		t.Fatalf("failed to parse test template: %v", err)
	}
	return tmpl
}

func testTopology(t *testing.T) *Topology {
	t.Helper()
	topo, err := ParseTopology([]byte(testTopologyJSON))
	if err != nil {
		t.Fatalf("failed to parse test topology: %v", err)
	}
	return topo
}

// sequentialIDs returns an id generator yielding id-1, id-2, ...
func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return "id-" + strconv.Itoa(n)
	}
}

// structured builds an inbound response for tests
func structured(t *testing.T, typ string, value any) Structured {
	t.Helper()
	raw, err := json.Marshal(value)
	if err != nil {
		t.Fatal(err)
	}
	return Structured{Type: typ, Value: raw}
}
