package cuems

import (
	"errors"
	"fmt"
	"math"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/zenibako/cuems-golang/templates"
)

// Transformer converts between the editable cue list and project documents.
// Template supplies every field the editor does not own; Topology validates
// output references; Media resolves media file names.
type Transformer struct {
	Template templates.Template
	Topology *Topology
	Media    []MediaRef
	// NewID generates cue and cue-list identifiers
	NewID func() string
}

// NewTransformer creates a transformer using random uuids for new ids
func NewTransformer(tmpl templates.Template, topo *Topology, media []MediaRef) *Transformer {
	return &Transformer{
		Template: tmpl,
		Topology: topo,
		Media:    media,
		NewID:    uuid.NewString,
	}
}

func (t *Transformer) newID() string {
	if t.NewID != nil {
		return t.NewID()
	}
	return uuid.NewString()
}

// Load converts a project document into editable cues. Wrappers without a
// recognized tag are dropped.
func (t *Transformer) Load(doc Document) []UICue {
	return t.LoadContents(doc.Contents())
}

// LoadContents converts raw cue wrappers into editable cues
func (t *Transformer) LoadContents(contents []any) []UICue {
	entries := parseEntries(contents)
	cues := make([]UICue, 0, len(entries))
	for _, entry := range entries {
		cues = append(cues, t.loadCue(entry, len(cues)))
	}
	return cues
}

func (t *Transformer) loadCue(entry CueEntry, index int) UICue {
	body := entry.Body

	cue := UICue{
		ID:        stringField(body, "id"),
		Order:     index + 1,
		Name:      stringField(body, "name"),
		Type:      entry.Kind,
		Time:      NormalizeTimecode(templates.TimecodeValue(body["offset"])),
		Prewait:   NormalizeTimecode(templates.TimecodeValue(body["prewait"])),
		Postwait:  NormalizeTimecode(templates.TimecodeValue(body["postwait"])),
		PostGo:    normalizePostGo(stringField(body, "post_go")),
		LoopTimes: loopFromDocument(body["loop"]),
		Notes:     stringField(body, "description"),
		ActiveTab: TabNotes,
		MasterVol: DefaultMasterVolume,
	}
	if cue.ID == "" {
		cue.ID = fmt.Sprintf("%d", index+1)
	}
	if cue.Name == "" {
		cue.Name = fmt.Sprintf("Cue %d", index+1)
	}
	if vol, ok := intField(body, "master_vol"); ok && vol > 0 {
		cue.MasterVol = vol
	}

	switch entry.Kind {
	case KindAudio, KindVideo:
		cue.SelectedMediaFile = t.findMedia(body)
		refs, strategy := ExtractOutputRefs(body, entry.Kind)
		if len(refs) > 0 {
			log.Debugf("Cue %q outputs found by %s strategy: %v", cue.Name, strategy, refs)
			cue.SelectedOutputs = ResolveSelection(t.Topology, refs, entry.Kind.OutputType())
		}
	case KindDmx:
		cue.UniverseNum, cue.DmxChannels = dmxFromDocument(body)
		cue.FadeInTime = fadeFromDocument(body)
	case KindAction:
		// no routing or payload
	}

	return cue
}

// loopFromDocument maps a document loop value: any number <= 0 loops
// forever, a positive number repeats, anything else plays once.
func loopFromDocument(v any) int {
	n, ok := numberOf(v)
	if !ok {
		return 1
	}
	if n <= 0 {
		return LoopInfinite
	}
	return int(math.Round(n))
}

func (t *Transformer) findMedia(body map[string]any) *MediaRef {
	media := mapField(body, "Media")
	name := stringField(media, "file_name")
	if name == "" {
		return nil
	}
	for _, m := range t.Media {
		if m.UnixName == name {
			ref := m
			return &ref
		}
	}
	log.Debugf("Media file %q is not in the media list", name)
	return nil
}

func dmxFromDocument(body map[string]any) (int, []DmxChannel) {
	universe := mapField(mapField(body, "DmxScene"), "DmxUniverse")
	if universe == nil {
		return 0, nil
	}

	num, _ := intField(universe, "universe_num")

	raw, _ := universe["dmx_channels"].([]any)
	channels := make([]DmxChannel, 0, len(raw))
	for _, item := range raw {
		wrapper, ok := item.(map[string]any)
		if !ok {
			continue
		}
		data := wrapper
		if inner := mapField(wrapper, "DmxChannel"); inner != nil {
			data = inner
		}
		ch, _ := intField(data, "channel")
		val, _ := intField(data, "value")
		channels = append(channels, DmxChannel{Channel: ch + 1, Value: val})
	}
	return num, channels
}

func fadeFromDocument(body map[string]any) float64 {
	v, ok := numberOf(body["fadein_time"])
	if !ok {
		v, ok = numberOf(body["fade_in_time"])
	}
	if !ok {
		return 0
	}
	return v / 1000
}

// Save converts editable cues into document cue wrappers. A cue that cannot
// be converted is left out and its error joined into the result; the other
// cues still convert. An empty result is nil, which the document stores as
// the null "no content" sentinel.
func (t *Transformer) Save(cues []UICue) ([]any, error) {
	var contents []any
	var errs []error
	for i := range cues {
		wrapper, err := t.SaveCue(cues[i])
		if err != nil {
			log.Warn("Cue not saved", "cue", cues[i].Name, "order", cues[i].Order, "error", err)
			errs = append(errs, err)
			continue
		}
		contents = append(contents, wrapper)
	}
	return contents, errors.Join(errs...)
}

// SaveCue converts one cue into its document wrapper, cloned from the
// template variant of its kind.
func (t *Transformer) SaveCue(cue UICue) (map[string]any, error) {
	tag := cue.Type.Tag()
	if tag == "" {
		return nil, fmt.Errorf("cue %q: unknown cue kind %q", cue.Name, cue.Type)
	}
	if t.Template == nil {
		return nil, fmt.Errorf("cue %q: %w", cue.Name, ErrNoTemplate)
	}
	body, ok := t.Template.Variant(tag)
	if !ok {
		return nil, fmt.Errorf("cue %q: %w: %s", cue.Name, ErrMissingTemplateVariant, tag)
	}

	body["name"] = cue.Name
	body["description"] = cue.Notes
	body["id"] = t.newID()
	body["post_go"] = string(normalizePostGo(string(cue.PostGo)))
	body["offset"] = templates.Timecode(NormalizeTimecode(cue.Time))
	body["prewait"] = templates.Timecode(NormalizeTimecode(cue.Prewait))
	body["postwait"] = templates.Timecode(NormalizeTimecode(cue.Postwait))
	body["loop"] = loopToDocument(cue.LoopTimes)

	switch cue.Type {
	case KindAudio:
		vol := cue.MasterVol
		if vol <= 0 {
			vol = DefaultMasterVolume
		}
		body["master_vol"] = vol
		t.saveMedia(body, cue)
		t.saveOutputs(body, cue)
	case KindVideo:
		t.saveMedia(body, cue)
		t.saveOutputs(body, cue)
	case KindAction:
		delete(body, "Media")
	case KindDmx:
		saveDmx(body, cue)
	}

	return CueEntry{Kind: cue.Type, Body: body}.Wrap(), nil
}

func loopToDocument(loopTimes int) int {
	if loopTimes == LoopInfinite || loopTimes == 0 {
		return LoopInfinite
	}
	if loopTimes < 1 {
		return 1
	}
	return loopTimes
}

func (t *Transformer) saveMedia(body map[string]any, cue UICue) {
	media := cue.SelectedMediaFile
	if media == nil || media.UnixName == "" {
		delete(body, "Media")
		return
	}
	body["Media"] = map[string]any{
		"file_name": media.UnixName,
		"id":        media.UUID,
		"duration":  ZeroTimecode,
		"regions": []any{
			map[string]any{
				"Region": map[string]any{
					"id":       0,
					"loop":     1,
					"in_time":  templates.Timecode(ZeroTimecode),
					"out_time": templates.Timecode(ZeroTimecode),
				},
			},
		},
	}
}

// saveOutputs rebuilds the outputs array from the current selection.
// References that do not resolve against the topology are not written.
func (t *Transformer) saveOutputs(body map[string]any, cue UICue) {
	outputTag := cue.Type.OutputTag()
	delete(body, outputTag)

	structure, ok := t.Template.OutputStructure(outputTag)
	if !ok {
		structure = map[string]any{}
	}

	outputs := make([]any, 0, len(cue.SelectedOutputs))
	for _, ref := range cue.SelectedOutputs {
		if _, ok := t.Topology.ResolveRef(ref); !ok {
			log.Warn("Skipping unresolved output", "cue", cue.Name, "output", ref)
			continue
		}
		out := templates.DeepCopy(structure).(map[string]any)
		out["output_name"] = ref
		outputs = append(outputs, map[string]any{outputTag: out})
	}
	body["outputs"] = outputs
}

func saveDmx(body map[string]any, cue UICue) {
	universeNum := clampInt(cue.UniverseNum, 0, DmxMaxUniverse)

	scene := mapField(body, "DmxScene")
	if scene == nil {
		scene = map[string]any{"id": 0}
		body["DmxScene"] = scene
	}
	universe := mapField(scene, "DmxUniverse")
	if universe == nil {
		universe = map[string]any{}
		scene["DmxUniverse"] = universe
	}

	channels := make([]any, 0, len(cue.DmxChannels))
	for _, ch := range cue.DmxChannels {
		channels = append(channels, map[string]any{
			"DmxChannel": map[string]any{
				"channel": max(0, ch.Channel-1),
				"value":   ch.Value,
			},
		})
	}
	universe["dmx_channels"] = channels
	universe["universe_num"] = universeNum

	fade := math.Max(0, cue.FadeInTime)
	body["fadein_time"] = int(math.Round(fade * 1000))
	delete(body, "fade_in_time")
}

// ApplyCueList returns a copy of doc whose cue list holds contents. A
// document without a cue list gets the template's (fresh id, no cues) or,
// without a template, a minimal one. Empty contents are written as null.
// The project uuid is filled in when missing.
func (t *Transformer) ApplyCueList(doc Document, contents []any, projectID string) Document {
	out := doc.Clone()
	if out == nil {
		out = Document{}
	}

	script := out.Script()
	if script == nil {
		script = map[string]any{}
		out[templates.KeyScript] = script
	}

	list := out.CueList()
	if list == nil {
		var ok bool
		if list, ok = t.Template.CueListCopy(t.newID()); !ok {
			list = templates.MinimalCueList(t.newID())
		}
		script[templates.KeyCueList] = list
	}

	if len(contents) == 0 {
		list[templates.KeyContents] = nil
	} else {
		list[templates.KeyContents] = contents
	}

	if id, _ := out["uuid"].(string); id == "" && projectID != "" {
		out["uuid"] = projectID
	}
	return out
}

// BuildDocument saves cues into doc in one step
func (t *Transformer) BuildDocument(doc Document, cues []UICue, projectID string) (Document, error) {
	contents, err := t.Save(cues)
	return t.ApplyCueList(doc, contents, projectID), err
}
