package cuems

import (
	"fmt"

	"github.com/zenibako/cuems-golang/templates"
)

// CueKind is the variant of a cue
type CueKind string

const (
	KindAction CueKind = "action"
	KindAudio  CueKind = "audio"
	KindVideo  CueKind = "video"
	KindDmx    CueKind = "dmx"
)

// CueKinds lists every variant in document order
var CueKinds = []CueKind{KindAudio, KindVideo, KindAction, KindDmx}

// Tag returns the document wrapper key for the kind
func (k CueKind) Tag() string {
	switch k {
	case KindAudio:
		return templates.TagAudioCue
	case KindVideo:
		return templates.TagVideoCue
	case KindAction:
		return templates.TagActionCue
	case KindDmx:
		return templates.TagDmxCue
	default:
		return ""
	}
}

// OutputTag returns the output wrapper key for kinds that route to outputs
func (k CueKind) OutputTag() string {
	switch k {
	case KindAudio:
		return templates.TagAudioOutput
	case KindVideo:
		return templates.TagVideoOutput
	default:
		return ""
	}
}

// OutputType returns the topology output type the kind routes to
func (k CueKind) OutputType() OutputType {
	switch k {
	case KindAudio:
		return OutputAudio
	case KindVideo:
		return OutputVideo
	default:
		return ""
	}
}

// HasMedia reports whether the kind plays a media file
func (k CueKind) HasMedia() bool { return k == KindAudio || k == KindVideo }

// ParseCueKind converts a kind name
func ParseCueKind(s string) (CueKind, error) {
	switch k := CueKind(s); k {
	case KindAction, KindAudio, KindVideo, KindDmx:
		return k, nil
	default:
		return "", fmt.Errorf("unknown cue kind %q", s)
	}
}

func kindForTag(tag string) (CueKind, bool) {
	for _, k := range CueKinds {
		if k.Tag() == tag {
			return k, true
		}
	}
	return "", false
}

// PostGo is the policy applied once a cue finishes
type PostGo string

const (
	PostGoPause    PostGo = "pause"
	PostGoContinue PostGo = "continue"
	PostGoFollow   PostGo = "follow"
)

func normalizePostGo(s string) PostGo {
	switch p := PostGo(s); p {
	case PostGoContinue, PostGoFollow:
		return p
	default:
		return PostGoPause
	}
}

// LoopInfinite is the loop value for endlessly repeating cues
const LoopInfinite = -1

// Editor tabs
const (
	TabNotes = "notes"
	TabEdit  = "edit"
	TabMedia = "media"
)

// DMX limits
const (
	DmxMinChannel  = 1
	DmxMaxChannel  = 512
	DmxMaxUniverse = 999
)

// DefaultMasterVolume is the audio master volume used when none is stored
const DefaultMasterVolume = 20

// MediaRef identifies a media file known to the engine
type MediaRef struct {
	UUID     string `json:"uuid"`
	Name     string `json:"name,omitempty"`
	UnixName string `json:"unix_name"`
	Type     string `json:"type,omitempty"`
}

// DmxChannel is one channel/value pair; Channel is 1-based
type DmxChannel struct {
	Channel int `json:"channel"`
	Value   int `json:"value"`
}

// UICue is the flat, editable form of one cue. Order is 1-based and
// matches the cue's position in its list.
type UICue struct {
	ID       string  `json:"id"`
	Order    int     `json:"order"`
	Name     string  `json:"name"`
	Type     CueKind `json:"type"`
	Time     string  `json:"time"`
	Prewait  string  `json:"prewait"`
	Postwait string  `json:"postwait"`
	PostGo   PostGo  `json:"post_go"`
	// LoopTimes is LoopInfinite or a repeat count of at least 1
	LoopTimes int    `json:"loop_times"`
	Notes     string `json:"notes"`

	// Editor state, never written to the document
	Expanded  bool   `json:"expanded"`
	ActiveTab string `json:"active_tab"`

	SelectedMediaFile *MediaRef    `json:"selected_media_file,omitempty"`
	SelectedOutputs   []string     `json:"selected_outputs,omitempty"`
	DmxChannels       []DmxChannel `json:"dmx_channels,omitempty"`
	UniverseNum       int          `json:"universe_num"`
	// FadeInTime is in seconds
	FadeInTime float64 `json:"fade_in_time"`
	MasterVol  int     `json:"master_vol"`
}

// IsInfinite reports whether the cue loops forever
func (c *UICue) IsInfinite() bool { return c.LoopTimes == LoopInfinite }

// Clone returns a deep copy of the cue
func (c *UICue) Clone() UICue {
	out := *c
	if c.SelectedMediaFile != nil {
		m := *c.SelectedMediaFile
		out.SelectedMediaFile = &m
	}
	if c.SelectedOutputs != nil {
		out.SelectedOutputs = append([]string(nil), c.SelectedOutputs...)
	}
	if c.DmxChannels != nil {
		out.DmxChannels = append([]DmxChannel(nil), c.DmxChannels...)
	}
	return out
}

// CloneCues deep-copies a cue list
func CloneCues(cues []UICue) []UICue {
	if cues == nil {
		return nil
	}
	out := make([]UICue, len(cues))
	for i := range cues {
		out[i] = cues[i].Clone()
	}
	return out
}

// Renumber rewrites Order so it is the dense 1..N sequence of positions
func Renumber(cues []UICue) {
	for i := range cues {
		cues[i].Order = i + 1
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
