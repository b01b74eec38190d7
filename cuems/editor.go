package cuems

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
)

// Editor errors
var (
	ErrCueNotFound       = errors.New("cue not found")
	ErrDuplicateChannel  = errors.New("DMX channel already used by this cue")
	ErrNoFreeChannel     = errors.New("no free DMX channel left")
	ErrWrongCueKind      = errors.New("operation not supported for cue type")
	ErrMediaNotPlayable  = errors.New("media file cannot be played by this cue")
	ErrIncompleteSave    = errors.New("project not saved, some cues could not be converted")
	ErrEditorClosed      = errors.New("editor is closed")
	ErrChannelOutOfRange = errors.New("DMX channel index out of range")
)

// Editor is the non-visual state of one open cue list. It keeps the
// editable cues, detects unsaved changes against the last loaded or saved
// state and stages them in a DraftStore so they survive closing and
// reopening the editor.
type Editor struct {
	projectID string
	projects  *ProjectService
	media     *MediaService
	drafts    *DraftStore

	mu       sync.Mutex
	doc      Document
	cues     []UICue
	original []UICue
	dirty    bool
	pending  Document
	// pendingCues are the cues sent with pending
	pendingCues []UICue
	closed      bool
	detach      []func()
}

// NewEditor creates an editor for projectID. media may be nil.
func NewEditor(projectID string, projects *ProjectService, media *MediaService, drafts *DraftStore) *Editor {
	if drafts == nil {
		drafts = NewDraftStore()
	}
	e := &Editor{
		projectID: projectID,
		projects:  projects,
		media:     media,
		drafts:    drafts,
	}
	e.detach = []func(){
		projects.OnLoaded(func(doc Document) {
			if doc.UUID() == e.projectID {
				e.Open(doc)
			}
		}),
		projects.OnSaved(e.handleSaved),
	}
	return e
}

// ProjectID returns the project the editor works on
func (e *Editor) ProjectID() string { return e.projectID }

// Load asks the engine for the project document. The editor opens it when
// the response arrives.
func (e *Editor) Load(ctx context.Context) error {
	return e.projects.Load(ctx, e.projectID)
}

func (e *Editor) transformer() *Transformer {
	var media []MediaRef
	if e.media != nil {
		media = e.media.Refs()
	}
	return NewTransformer(e.projects.Template(), e.projects.Topology(), media)
}

// Open replaces the editor content with doc. A staged snapshot for the
// project takes precedence over the document's cues. Expanded and tab state
// of cues already shown is carried over.
func (e *Editor) Open(doc Document) {
	loaded := e.transformer().Load(doc)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	carryViewState(e.cues, loaded)
	e.doc = doc.Clone()
	e.original = CloneCues(loaded)
	e.cues = loaded

	if snap, ok := e.drafts.Snapshot(e.projectID); ok && len(snap.Cues) > 0 {
		log.Info("Restoring unsaved cue edits", "project", e.projectID, "cues", len(snap.Cues))
		e.cues = snap.Cues
	}
	e.mu.Unlock()

	log.Debugf("Opened project %s with %d cues", e.projectID, len(loaded))
	e.checkForChanges()
}

// viewKey identifies a cue across reloads, where ids are regenerated
func viewKey(c UICue) string {
	return fmt.Sprintf("%d_%s_%s", c.Order, c.Name, c.Type)
}

func carryViewState(from, to []UICue) {
	if len(from) == 0 {
		return
	}
	type viewState struct {
		expanded bool
		tab      string
	}
	states := make(map[string]viewState, len(from))
	for _, c := range from {
		states[viewKey(c)] = viewState{expanded: c.Expanded, tab: c.ActiveTab}
	}
	for i := range to {
		if s, ok := states[viewKey(to[i])]; ok {
			to[i].Expanded = s.expanded
			to[i].ActiveTab = s.tab
		}
	}
}

// Cues returns a copy of the current cues
func (e *Editor) Cues() []UICue {
	e.mu.Lock()
	defer e.mu.Unlock()
	return CloneCues(e.cues)
}

// Cue returns a copy of one cue
func (e *Editor) Cue(id string) (UICue, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	i := e.indexLocked(id)
	if i < 0 {
		return UICue{}, false
	}
	return e.cues[i].Clone(), true
}

// IsDirty reports whether the cues differ from the last loaded or saved state
func (e *Editor) IsDirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirty
}

func (e *Editor) indexLocked(id string) int {
	return slices.IndexFunc(e.cues, func(c UICue) bool { return c.ID == id })
}

// mutate applies fn to the cue list under the lock, then re-evaluates the
// dirty state. fn returning an error leaves the cues untouched.
func (e *Editor) mutate(fn func(cues []UICue) ([]UICue, error)) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEditorClosed
	}
	next, err := fn(CloneCues(e.cues))
	if err != nil {
		e.mu.Unlock()
		return err
	}
	Renumber(next)
	e.cues = next
	e.mu.Unlock()

	e.checkForChanges()
	return nil
}

// update applies fn to a single cue
func (e *Editor) update(id string, fn func(c *UICue) error) error {
	return e.mutate(func(cues []UICue) ([]UICue, error) {
		i := slices.IndexFunc(cues, func(c UICue) bool { return c.ID == id })
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrCueNotFound, id)
		}
		if err := fn(&cues[i]); err != nil {
			return nil, err
		}
		return cues, nil
	})
}

// AddCue appends a new cue of kind with template and topology defaults
func (e *Editor) AddCue(kind CueKind) (UICue, error) {
	if kind.Tag() == "" {
		return UICue{}, fmt.Errorf("unknown cue type %q", kind)
	}
	factory := NewCueFactory(e.projects.Template(), e.projects.Topology())

	var added UICue
	err := e.mutate(func(cues []UICue) ([]UICue, error) {
		added = factory.NewCue(kind, len(cues)+1)
		return append(cues, added), nil
	})
	return added.Clone(), err
}

// DeleteCue removes a cue and renumbers the rest
func (e *Editor) DeleteCue(id string) error {
	return e.mutate(func(cues []UICue) ([]UICue, error) {
		i := slices.IndexFunc(cues, func(c UICue) bool { return c.ID == id })
		if i < 0 {
			return nil, fmt.Errorf("%w: %s", ErrCueNotFound, id)
		}
		return slices.Delete(cues, i, i+1), nil
	})
}

// MoveCue moves the cue at index from to index to (both 0-based)
func (e *Editor) MoveCue(from, to int) error {
	return e.mutate(func(cues []UICue) ([]UICue, error) {
		if from < 0 || from >= len(cues) || to < 0 || to >= len(cues) {
			return nil, fmt.Errorf("cannot move cue %d to %d in a list of %d", from, to, len(cues))
		}
		moved := cues[from]
		cues = slices.Delete(cues, from, from+1)
		return slices.Insert(cues, to, moved), nil
	})
}

// UpdateCue edits the document fields of a cue through fn. Timecodes and
// post-go are normalized afterwards; identity, order and type are kept.
func (e *Editor) UpdateCue(id string, fn func(c *UICue)) error {
	return e.update(id, func(c *UICue) error {
		keepID, keepType := c.ID, c.Type
		fn(c)
		c.ID, c.Type = keepID, keepType
		c.Time = NormalizeTimecode(c.Time)
		c.Prewait = NormalizeTimecode(c.Prewait)
		c.Postwait = NormalizeTimecode(c.Postwait)
		c.PostGo = normalizePostGo(string(c.PostGo))
		if c.LoopTimes == 0 || c.LoopTimes < LoopInfinite {
			c.LoopTimes = LoopInfinite
		}
		return nil
	})
}

// SetExpanded toggles the expanded state of a cue
func (e *Editor) SetExpanded(id string, expanded bool) error {
	return e.update(id, func(c *UICue) error {
		c.Expanded = expanded
		return nil
	})
}

// SetActiveTab selects the editor tab shown for a cue
func (e *Editor) SetActiveTab(id, tab string) error {
	return e.update(id, func(c *UICue) error {
		c.ActiveTab = tab
		return nil
	})
}

// SetLoopInfinite switches a cue between looping forever and a finite
// repeat count. Leaving infinite mode starts at one repeat.
func (e *Editor) SetLoopInfinite(id string, infinite bool) error {
	return e.update(id, func(c *UICue) error {
		switch {
		case infinite:
			c.LoopTimes = LoopInfinite
		case c.LoopTimes == LoopInfinite:
			c.LoopTimes = 1
		}
		return nil
	})
}

// SetLoopTimes sets a finite repeat count of at least one
func (e *Editor) SetLoopTimes(id string, n int) error {
	return e.update(id, func(c *UICue) error {
		c.LoopTimes = max(1, n)
		return nil
	})
}

// SelectOutputs sets the outputs of an audio or video cue. An empty
// selection falls back to the first output of the cue's type.
func (e *Editor) SelectOutputs(id string, refs []string) error {
	topo := e.projects.Topology()
	return e.update(id, func(c *UICue) error {
		if !c.Type.HasMedia() {
			return fmt.Errorf("%w: outputs on %s cue", ErrWrongCueKind, c.Type)
		}
		selected := slices.Clone(refs)
		if len(selected) == 0 {
			if first, ok := topo.FirstOption(c.Type.OutputType()); ok {
				log.Debugf("Empty output selection on cue %q, using %s", c.Name, first.Label)
				selected = []string{first.Ref}
			}
		}
		c.SelectedOutputs = selected
		return nil
	})
}

// SelectOutputLabels selects outputs by their node<N>:<name> labels
func (e *Editor) SelectOutputLabels(id string, labels []string) error {
	topo := e.projects.Topology()
	refs := make([]string, 0, len(labels))
	for _, label := range labels {
		ref, ok := topo.RefForLabel(label)
		if !ok {
			return fmt.Errorf("%w: unknown output %q", ErrInvalidReference, label)
		}
		refs = append(refs, ref)
	}
	return e.SelectOutputs(id, refs)
}

// OutputLabels returns the display labels of a cue's selected outputs
func (e *Editor) OutputLabels(id string) []string {
	c, ok := e.Cue(id)
	if !ok {
		return nil
	}
	topo := e.projects.Topology()
	labels := make([]string, len(c.SelectedOutputs))
	for i, ref := range c.SelectedOutputs {
		labels[i] = topo.DisplayName(ref)
	}
	return labels
}

// SetMedia selects a media file by uuid; an empty uuid clears the selection
func (e *Editor) SetMedia(id, mediaUUID string) error {
	var ref *MediaRef
	var file MediaFile
	if mediaUUID != "" {
		if e.media == nil {
			return fmt.Errorf("media %s: no media library", mediaUUID)
		}
		f, ok := e.media.Find(mediaUUID)
		if !ok {
			return fmt.Errorf("media %s not found", mediaUUID)
		}
		file = f
		r := f.Ref()
		ref = &r
	}
	return e.update(id, func(c *UICue) error {
		if !c.Type.HasMedia() {
			return fmt.Errorf("%w: media on %s cue", ErrWrongCueKind, c.Type)
		}
		if ref != nil && !file.PlayableBy(c.Type) {
			return fmt.Errorf("%w: %s (%s)", ErrMediaNotPlayable, file.Name, file.Type)
		}
		c.SelectedMediaFile = ref
		return nil
	})
}

// SetMasterVolume sets the master volume of an audio cue
func (e *Editor) SetMasterVolume(id string, vol int) error {
	return e.update(id, func(c *UICue) error {
		if c.Type != KindAudio {
			return fmt.Errorf("%w: master volume on %s cue", ErrWrongCueKind, c.Type)
		}
		c.MasterVol = clampInt(vol, 0, 100)
		return nil
	})
}

func dmxCue(c *UICue) error {
	if c.Type != KindDmx {
		return fmt.Errorf("%w: DMX edit on %s cue", ErrWrongCueKind, c.Type)
	}
	return nil
}

// AddDmxChannel adds the lowest unused channel at value zero
func (e *Editor) AddDmxChannel(id string) (DmxChannel, error) {
	var added DmxChannel
	err := e.update(id, func(c *UICue) error {
		if err := dmxCue(c); err != nil {
			return err
		}
		for ch := DmxMinChannel; ch <= DmxMaxChannel; ch++ {
			if !slices.ContainsFunc(c.DmxChannels, func(d DmxChannel) bool { return d.Channel == ch }) {
				added = DmxChannel{Channel: ch, Value: 0}
				c.DmxChannels = append(c.DmxChannels, added)
				return nil
			}
		}
		return ErrNoFreeChannel
	})
	return added, err
}

// RemoveDmxChannel removes the channel at index
func (e *Editor) RemoveDmxChannel(id string, index int) error {
	return e.update(id, func(c *UICue) error {
		if err := dmxCue(c); err != nil {
			return err
		}
		if index < 0 || index >= len(c.DmxChannels) {
			return fmt.Errorf("%w: %d", ErrChannelOutOfRange, index)
		}
		c.DmxChannels = slices.Delete(c.DmxChannels, index, index+1)
		return nil
	})
}

// SetDmxChannel changes the channel number at index, clamped to 1..512.
// A channel already used by another entry of the cue is rejected.
func (e *Editor) SetDmxChannel(id string, index, channel int) error {
	return e.update(id, func(c *UICue) error {
		if err := dmxCue(c); err != nil {
			return err
		}
		if index < 0 || index >= len(c.DmxChannels) {
			return fmt.Errorf("%w: %d", ErrChannelOutOfRange, index)
		}
		channel = clampInt(channel, DmxMinChannel, DmxMaxChannel)
		for i, d := range c.DmxChannels {
			if i != index && d.Channel == channel {
				return fmt.Errorf("%w: %d", ErrDuplicateChannel, channel)
			}
		}
		c.DmxChannels[index].Channel = channel
		return nil
	})
}

// SetDmxValue sets the value at index, clamped to 0..255
func (e *Editor) SetDmxValue(id string, index, value int) error {
	return e.update(id, func(c *UICue) error {
		if err := dmxCue(c); err != nil {
			return err
		}
		if index < 0 || index >= len(c.DmxChannels) {
			return fmt.Errorf("%w: %d", ErrChannelOutOfRange, index)
		}
		c.DmxChannels[index].Value = clampInt(value, 0, 255)
		return nil
	})
}

// SetUniverse sets the DMX universe, clamped to 0..999
func (e *Editor) SetUniverse(id string, universe int) error {
	return e.update(id, func(c *UICue) error {
		if err := dmxCue(c); err != nil {
			return err
		}
		c.UniverseNum = clampInt(universe, 0, DmxMaxUniverse)
		return nil
	})
}

// SetFadeTime sets the DMX fade-in time in seconds. Negative and NaN
// values become zero.
func (e *Editor) SetFadeTime(id string, seconds float64) error {
	return e.update(id, func(c *UICue) error {
		if err := dmxCue(c); err != nil {
			return err
		}
		if math.IsNaN(seconds) || seconds < 0 {
			seconds = 0
		}
		c.FadeInTime = seconds
		return nil
	})
}

// comparableCues strips editor-only state so that expanding a cue or switching
// tabs is not an unsaved change
func comparableCues(cues []UICue) []UICue {
	out := CloneCues(cues)
	for i := range out {
		out[i].Expanded = false
		out[i].ActiveTab = ""
		if len(out[i].SelectedOutputs) == 0 {
			out[i].SelectedOutputs = nil
		}
		if len(out[i].DmxChannels) == 0 {
			out[i].DmxChannels = nil
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// checkForChanges compares the cues with the last loaded or saved state,
// refreshes the staged snapshot and marks the sequence draft accordingly.
func (e *Editor) checkForChanges() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	dirty := !reflect.DeepEqual(comparableCues(e.cues), comparableCues(e.original))
	e.dirty = dirty
	cues := CloneCues(e.cues)
	e.mu.Unlock()

	if dirty {
		e.drafts.SaveSnapshot(e.projectID, cues, true)
		e.drafts.MarkChanged(ComponentSequence, e.projectID, map[string]any{"contents": cues})
		return
	}
	e.drafts.ClearSnapshot(e.projectID)
	e.drafts.MarkSaved(ComponentSequence, e.projectID)
}

// Build converts the current cues into a complete project document
func (e *Editor) Build() (Document, error) {
	e.mu.Lock()
	doc := e.doc.Clone()
	cues := CloneCues(e.cues)
	e.mu.Unlock()

	return e.transformer().BuildDocument(doc, cues, e.projectID)
}

// Save converts the cues and sends the project document. When any cue
// fails to convert nothing is sent and the draft stays staged. The draft
// is cleared once the engine confirms the save.
func (e *Editor) Save(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEditorClosed
	}
	doc := e.doc.Clone()
	cues := CloneCues(e.cues)
	e.mu.Unlock()

	doc, err := e.transformer().BuildDocument(doc, cues, e.projectID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIncompleteSave, err)
	}

	e.mu.Lock()
	e.pending = doc
	e.pendingCues = cues
	e.mu.Unlock()

	log.Info("Saving project", "project", e.projectID)
	return e.projects.Save(ctx, doc)
}

func (e *Editor) handleSaved(projectID string) {
	if projectID != e.projectID {
		return
	}

	e.mu.Lock()
	if e.closed || e.pending == nil {
		e.mu.Unlock()
		return
	}
	e.doc = e.pending
	e.original = e.pendingCues
	e.pending = nil
	e.pendingCues = nil
	e.mu.Unlock()

	e.drafts.Clear(e.projectID)
	log.Debugf("Project %s saved, cleared staged edits", e.projectID)
	// Edits made while the save was in flight stay staged
	e.checkForChanges()
}

// Discard drops unsaved edits and returns to the last loaded or saved cues
func (e *Editor) Discard() {
	e.mu.Lock()
	restored := CloneCues(e.original)
	carryViewState(e.cues, restored)
	e.cues = restored
	e.dirty = false
	e.mu.Unlock()

	e.drafts.Clear(e.projectID)
}

// Close detaches the editor. Unsaved cues stay staged as a snapshot and
// are restored by the next editor opened on the project.
func (e *Editor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	dirty := e.dirty
	cues := CloneCues(e.cues)
	detach := e.detach
	e.detach = nil
	e.mu.Unlock()

	for _, fn := range detach {
		fn()
	}

	if dirty {
		e.drafts.SaveSnapshot(e.projectID, cues, true)
	}
}
