package cuems

import (
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/zenibako/cuems-golang/templates"
)

// DefaultCueNames are the names given to freshly added cues
var DefaultCueNames = map[CueKind]string{
	KindAction: "New action cue",
	KindAudio:  "New audio cue",
	KindVideo:  "New video cue",
	KindDmx:    "New DMX cue",
}

// CueFactory creates new cues with template- and topology-derived defaults
type CueFactory struct {
	template templates.Template
	topology *Topology
}

// NewCueFactory creates a factory. Either argument may be nil.
func NewCueFactory(tmpl templates.Template, topo *Topology) *CueFactory {
	return &CueFactory{template: tmpl, topology: topo}
}

// NewCue builds a cue of kind to be placed at the given 1-based order
func (f *CueFactory) NewCue(kind CueKind, order int) UICue {
	cue := UICue{
		ID:              uuid.NewString(),
		Order:           order,
		Name:            DefaultCueNames[kind],
		Type:            kind,
		Time:            ZeroTimecode,
		Prewait:         ZeroTimecode,
		Postwait:        ZeroTimecode,
		PostGo:          PostGoPause,
		LoopTimes:       1,
		Expanded:        true,
		ActiveTab:       TabEdit,
		SelectedOutputs: []string{},
		MasterVol:       DefaultMasterVolume,
	}

	switch kind {
	case KindAudio:
		if body, ok := f.template.Variant(templates.TagAudioCue); ok {
			if vol, ok := intField(body, "master_vol"); ok && vol > 0 {
				cue.MasterVol = vol
			}
		}
		cue.SelectedOutputs = f.defaultOutputs(OutputAudio)
	case KindVideo:
		cue.SelectedOutputs = f.defaultOutputs(OutputVideo)
	case KindDmx:
		cue.DmxChannels = f.defaultDmxChannels()
	case KindAction:
		// no routing or payload
	}

	log.Debug("Created cue", "type", kind, "order", order, "outputs", cue.SelectedOutputs)
	return cue
}

// defaultOutputs preselects the first output of a type, falling back to the
// engine's default output.
func (f *CueFactory) defaultOutputs(typ OutputType) []string {
	if first, ok := f.topology.FirstOption(typ); ok {
		return []string{first.Ref}
	}
	if def := f.topology.DefaultOutput(typ); def != "" {
		return []string{def}
	}
	return []string{}
}

// defaultDmxChannels seeds a DMX cue from the template's DMX scene, or
// with channel 1 at zero.
func (f *CueFactory) defaultDmxChannels() []DmxChannel {
	if body, ok := f.template.Variant(templates.TagDmxCue); ok {
		if _, channels := dmxFromDocument(body); len(channels) > 0 {
			return channels
		}
	}
	return []DmxChannel{{Channel: 1, Value: 0}}
}
