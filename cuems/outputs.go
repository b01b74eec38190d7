package cuems

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/zenibako/cuems-golang/messages"
)

// ErrInvalidReference is returned for output references that are not <uuid>_<name>
var ErrInvalidReference = errors.New("invalid output reference")

// OutputType is the media type of an output endpoint
type OutputType string

const (
	OutputAudio OutputType = "audio"
	OutputVideo OutputType = "video"
)

// Port is one named input or output of a node
type Port struct {
	Name     string        `json:"name"`
	Mappings []PortMapping `json:"mappings,omitempty"`
}

// PortMapping records what a port is wired to
type PortMapping struct {
	MappedTo string `json:"mapped_to"`
}

// OutputEntry wraps an output port
type OutputEntry struct {
	Output Port `json:"output"`
}

// InputEntry wraps an input port
type InputEntry struct {
	Input Port `json:"input"`
}

// PortGroup is one audio or video device of a node
type PortGroup struct {
	Outputs []OutputEntry `json:"outputs,omitempty"`
	Inputs  []InputEntry  `json:"inputs,omitempty"`
}

// Node is one playback machine in the topology
type Node struct {
	UUID  string      `json:"uuid"`
	MAC   string      `json:"mac,omitempty"`
	Audio []PortGroup `json:"audio,omitempty"`
	Video []PortGroup `json:"video,omitempty"`
	Dmx   any         `json:"dmx,omitempty"`
}

// NodeEntry wraps a node
type NodeEntry struct {
	Node Node `json:"node"`
}

// Topology is the engine's node and output snapshot (initial_mappings)
type Topology struct {
	NumberOfNodes      int         `json:"number_of_nodes"`
	DefaultAudioInput  string      `json:"default_audio_input,omitempty"`
	DefaultAudioOutput string      `json:"default_audio_output,omitempty"`
	DefaultVideoInput  string      `json:"default_video_input,omitempty"`
	DefaultVideoOutput string      `json:"default_video_output,omitempty"`
	DefaultDmxInput    string      `json:"default_dmx_input,omitempty"`
	DefaultDmxOutput   string      `json:"default_dmx_output,omitempty"`
	Nodes              []NodeEntry `json:"nodes"`
	SchemaLocation     string      `json:"schemaLocation,omitempty"`
}

// ParseTopology decodes an initial_mappings value. Both the bare value and
// the {type, value} envelope kept by older caches are accepted.
func ParseTopology(raw []byte) (*Topology, error) {
	var envelope struct {
		Type  string          `json:"type"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil &&
		envelope.Type == string(messages.ActionInitialMappings) && len(envelope.Value) > 0 {
		raw = envelope.Value
	}

	var topo Topology
	if err := json.Unmarshal(raw, &topo); err != nil {
		return nil, fmt.Errorf("failed to parse topology: %w", err)
	}
	return &topo, nil
}

// OutputRef is a parsed output reference
type OutputRef struct {
	NodeUUID string
	Name     string
}

// String formats the reference as stored in documents
func (r OutputRef) String() string { return r.NodeUUID + "_" + r.Name }

var outputRefPattern = regexp.MustCompile(`^([a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12})_(.+)$`)

// ParseReference splits "<uuid>_<output name>". Anything else is rejected.
func ParseReference(s string) (OutputRef, error) {
	m := outputRefPattern.FindStringSubmatch(s)
	if m == nil {
		return OutputRef{}, fmt.Errorf("%w: %q", ErrInvalidReference, s)
	}
	return OutputRef{NodeUUID: m[1], Name: m[2]}, nil
}

// ResolvedOutput is a topology hit for a reference
type ResolvedOutput struct {
	Type      OutputType
	Node      *Node
	NodeIndex int
	Port      Port
}

// OutputOption is one selectable output with its display label
type OutputOption struct {
	Ref   string     `json:"uuid"`
	Label string     `json:"name"`
	Type  OutputType `json:"type"`
}

func (t *Topology) nodeIndex(uuid string) int {
	if t == nil {
		return -1
	}
	for i := range t.Nodes {
		if t.Nodes[i].Node.UUID == uuid {
			return i
		}
	}
	return -1
}

// NodeNumber returns the 1-based position of a node, or 0 when absent
func (t *Topology) NodeNumber(uuid string) int {
	return t.nodeIndex(uuid) + 1
}

// Resolve looks a node up by uuid and scans its audio outputs, then its
// video outputs, for name.
func (t *Topology) Resolve(uuid, name string) (ResolvedOutput, bool) {
	idx := t.nodeIndex(uuid)
	if idx < 0 {
		log.Debugf("Node not found for output %s_%s", uuid, name)
		return ResolvedOutput{}, false
	}
	node := &t.Nodes[idx].Node

	groups := []struct {
		typ    OutputType
		groups []PortGroup
	}{
		{OutputAudio, node.Audio},
		{OutputVideo, node.Video},
	}
	for _, g := range groups {
		for _, group := range g.groups {
			for _, entry := range group.Outputs {
				if entry.Output.Name == name {
					return ResolvedOutput{Type: g.typ, Node: node, NodeIndex: idx, Port: entry.Output}, true
				}
			}
		}
	}

	log.Debugf("Output %q not found on node %s", name, uuid)
	return ResolvedOutput{}, false
}

// ResolveRef parses and resolves a stored reference. Malformed references
// and references to removed outputs both report false.
func (t *Topology) ResolveRef(ref string) (ResolvedOutput, bool) {
	parsed, err := ParseReference(ref)
	if err != nil {
		return ResolvedOutput{}, false
	}
	return t.Resolve(parsed.NodeUUID, parsed.Name)
}

// Options lists every output as node<N>:<name>, each node's audio outputs
// before its video outputs.
func (t *Topology) Options() []OutputOption {
	if t == nil {
		return nil
	}
	var opts []OutputOption
	for i, entry := range t.Nodes {
		node := entry.Node
		add := func(typ OutputType, groups []PortGroup) {
			for _, group := range groups {
				for _, out := range group.Outputs {
					opts = append(opts, OutputOption{
						Ref:   OutputRef{NodeUUID: node.UUID, Name: out.Output.Name}.String(),
						Label: fmt.Sprintf("node%d:%s", i+1, out.Output.Name),
						Type:  typ,
					})
				}
			}
		}
		add(OutputAudio, node.Audio)
		add(OutputVideo, node.Video)
	}
	return opts
}

// OptionsOf lists the outputs of one type
func (t *Topology) OptionsOf(typ OutputType) []OutputOption {
	var out []OutputOption
	for _, o := range t.Options() {
		if o.Type == typ {
			out = append(out, o)
		}
	}
	return out
}

// FirstOption returns the first output of a type
func (t *Topology) FirstOption(typ OutputType) (OutputOption, bool) {
	opts := t.OptionsOf(typ)
	if len(opts) == 0 {
		return OutputOption{}, false
	}
	return opts[0], true
}

// DefaultOutput returns the engine's default output reference for a type
func (t *Topology) DefaultOutput(typ OutputType) string {
	if t == nil {
		return ""
	}
	switch typ {
	case OutputAudio:
		return t.DefaultAudioOutput
	case OutputVideo:
		return t.DefaultVideoOutput
	default:
		return ""
	}
}

// DisplayName renders a reference as node<N>:<name>, or returns it
// unchanged when it cannot be placed in the topology.
func (t *Topology) DisplayName(ref string) string {
	parsed, err := ParseReference(ref)
	if err != nil {
		return ref
	}
	if n := t.NodeNumber(parsed.NodeUUID); n > 0 {
		return fmt.Sprintf("node%d:%s", n, parsed.Name)
	}
	return ref
}

// RefForLabel finds the reference behind a node<N>:<name> label
func (t *Topology) RefForLabel(label string) (string, bool) {
	for _, o := range t.Options() {
		if o.Label == label {
			return o.Ref, true
		}
	}
	return "", false
}

// outputExtractor pulls candidate output references out of a cue body
type outputExtractor struct {
	name    string
	extract func(body map[string]any, kind CueKind) []string
}

// outputExtractors are tried in order; the first one yielding references wins
var outputExtractors = []outputExtractor{
	{"direct", extractDirectOutput},
	{"outputs", extractOutputsArray},
	{"scan", extractScannedOutput},
}

func extractDirectOutput(body map[string]any, kind CueKind) []string {
	out, ok := body[kind.OutputTag()].(map[string]any)
	if !ok {
		return nil
	}
	if name, _ := out["output_name"].(string); name != "" {
		return []string{name}
	}
	return nil
}

func extractOutputsArray(body map[string]any, kind CueKind) []string {
	outputs, ok := body["outputs"].([]any)
	if !ok {
		return nil
	}
	var refs []string
	for _, item := range outputs {
		wrapper, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out, ok := wrapper[kind.OutputTag()].(map[string]any)
		if !ok {
			continue
		}
		if name, _ := out["output_name"].(string); name != "" {
			refs = append(refs, name)
		}
	}
	return refs
}

func extractScannedOutput(body map[string]any, _ CueKind) []string {
	keys := make([]string, 0, len(body))
	for k := range body {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		obj, ok := body[k].(map[string]any)
		if !ok {
			continue
		}
		if name, _ := obj["output_name"].(string); name != "" {
			return []string{name}
		}
	}
	return nil
}

// ExtractOutputRefs returns the output references stored in a cue body and
// the name of the strategy that found them. No references yields nil, "".
func ExtractOutputRefs(body map[string]any, kind CueKind) ([]string, string) {
	if kind.OutputTag() == "" {
		return nil, ""
	}
	for _, ex := range outputExtractors {
		if refs := ex.extract(body, kind); len(refs) > 0 {
			return refs, ex.name
		}
	}
	return nil, ""
}

// ResolveSelection keeps the references that still resolve. When none do,
// the first output of the matching type replaces them; with no such output
// the raw references are kept unresolved.
func ResolveSelection(topo *Topology, refs []string, typ OutputType) []string {
	if len(refs) == 0 {
		return nil
	}

	var valid []string
	for _, ref := range refs {
		if _, ok := topo.ResolveRef(ref); ok {
			valid = append(valid, ref)
		}
	}
	if len(valid) > 0 {
		return valid
	}

	if first, ok := topo.FirstOption(typ); ok {
		log.Warn("Stored outputs no longer exist, reassigning to first available output",
			"stored", refs, "assigned", first.Ref, "label", first.Label)
		return []string{first.Ref}
	}

	log.Warn("Stored outputs cannot be resolved and no fallback output exists", "stored", refs)
	return append([]string(nil), refs...)
}
