package messages

import (
	"fmt"
	"strings"
)

// Control-channel actions and event-channel addresses understood by the CUEMS engine

// Action names a request on the structured (JSON) channel. Responses echo
// the action in their "type" field, or in "action" for error envelopes.
type Action string

const (
	// Bootstrap data pushed by the engine on connect
	ActionInitialTemplate Action = "initial_template"
	ActionInitialMappings Action = "initial_mappings"

	// Project actions
	ActionProjectList        Action = "project_list"
	ActionProjectTrashList   Action = "project_trash_list"
	ActionProjectNew         Action = "project_new"
	ActionProjectLoad        Action = "project_load"
	ActionProjectSave        Action = "project_save"
	ActionProjectDelete      Action = "project_delete"
	ActionProjectRestore     Action = "project_restore"
	ActionProjectRecover     Action = "project_recover"
	ActionProjectTrashDelete Action = "project_trash_delete"
	ActionProjectReady       Action = "project_ready"

	// Media actions
	ActionFileList          Action = "file_list"
	ActionFileTrashList     Action = "file_trash_list"
	ActionFileDelete        Action = "file_delete"
	ActionFileRestore       Action = "file_restore"
	ActionFileTrashDelete   Action = "file_trash_delete"
	ActionFileUpload        Action = "file_upload"
	ActionFileLoadThumbnail Action = "file_load_thumbnail"
	ActionFileLoadWaveform  Action = "file_load_waveform"
)

// Response types that are not actions
const (
	TypeProject = "project"
	TypeError   = "error"
)

// Domain groups actions by the subsystem that owns their responses and errors.
type Domain string

const (
	DomainProject Domain = "project"
	DomainMedia   Domain = "media"
	DomainUpload  Domain = "upload"
	DomainOther   Domain = "other"
)

var actionDomains = map[Action]Domain{
	ActionInitialTemplate:    DomainProject,
	ActionInitialMappings:    DomainProject,
	ActionProjectList:        DomainProject,
	ActionProjectTrashList:   DomainProject,
	ActionProjectNew:         DomainProject,
	ActionProjectLoad:        DomainProject,
	ActionProjectSave:        DomainProject,
	ActionProjectDelete:      DomainProject,
	ActionProjectRestore:     DomainProject,
	ActionProjectTrashDelete: DomainProject,
	ActionFileList:           DomainMedia,
	ActionFileTrashList:      DomainMedia,
	ActionFileDelete:         DomainMedia,
	ActionFileRestore:        DomainMedia,
	ActionFileTrashDelete:    DomainMedia,
	ActionFileUpload:         DomainUpload,
}

// DomainOf classifies an action. Unknown actions belong to DomainOther.
func DomainOf(action Action) Domain {
	if d, ok := actionDomains[action]; ok {
		return d
	}
	return DomainOther
}

// IsExperimental reports whether errors for the action are expected and
// should not be surfaced to the operator.
func IsExperimental(action Action) bool {
	return action == ActionFileLoadThumbnail || action == ActionFileLoadWaveform
}

// Event-channel address patterns
const (
	// Engine transport commands
	AddrEngineGo    = "/engine/command/go"
	AddrEngineStop  = "/engine/command/stop"
	AddrEnginePause = "/engine/command/pause"

	// Engine status prefix; the last path segment selects the field
	AddrEngineStatus = "/engine/status"

	// Audio mixer (per node)
	AddrMasterVolume = "/{node}/audio/mixer/0/master/volume"
	AddrNodeVolume   = "/{node}/audio/mixer/0/{channel}/volume"

	// Video mixer (per node output)
	AddrVideoXScale = "/{node}/video/mixer/{output}/xscale"
	AddrVideoYScale = "/{node}/video/mixer/{output}/yscale"
	AddrVideoCorner = "/{node}/video/mixer/{output}/{corner}/corner{corner}"
)

// Status field names, matched against the last segment of a status address
const (
	StatusCurrentCue = "currentcue"
	StatusNextCue    = "nextcue"
	StatusArmed      = "armed"
	StatusTimecode   = "timecode"
	StatusLoad       = "load"
	StatusRunning    = "running"
	StatusUsers      = "users"
)

// AddressBuilder fills address patterns with node and channel parameters
type AddressBuilder struct {
	prefix string
}

// NewAddressBuilder creates a builder. A non-empty prefix is prepended to
// every node-scoped address, for engines that mount mixers under a path.
func NewAddressBuilder(prefix string) *AddressBuilder {
	return &AddressBuilder{prefix: strings.TrimSuffix(prefix, "/")}
}

// Build replaces each {key} placeholder in pattern with its value
func (b *AddressBuilder) Build(pattern string, params map[string]string) string {
	address := pattern
	for key, value := range params {
		placeholder := fmt.Sprintf("{%s}", key)
		address = strings.ReplaceAll(address, placeholder, strings.Trim(value, "/"))
	}
	if b.prefix != "" && strings.HasPrefix(pattern, "/{node}") {
		address = b.prefix + address
	}
	return address
}

// MasterVolume builds the master volume address for a node
func (b *AddressBuilder) MasterVolume(node string) string {
	return b.Build(AddrMasterVolume, map[string]string{"node": node})
}

// NodeVolume builds the per-channel volume address for a node
func (b *AddressBuilder) NodeVolume(node string, channel int) string {
	return b.Build(AddrNodeVolume, map[string]string{
		"node":    node,
		"channel": fmt.Sprintf("%d", channel),
	})
}

// VideoScale builds the x and y scale addresses for a node output
func (b *AddressBuilder) VideoScale(node string, output int) (string, string) {
	params := map[string]string{"node": node, "output": fmt.Sprintf("%d", output)}
	return b.Build(AddrVideoXScale, params), b.Build(AddrVideoYScale, params)
}

// VideoCorner builds the corner-warp address for one corner of a node output
func (b *AddressBuilder) VideoCorner(node string, output, corner int) string {
	return b.Build(AddrVideoCorner, map[string]string{
		"node":   node,
		"output": fmt.Sprintf("%d", output),
		"corner": fmt.Sprintf("%d", corner),
	})
}

// StatusField returns the status field named by an address, or "" when the
// address is not under the engine status prefix.
func StatusField(address string) string {
	if !strings.HasPrefix(address, AddrEngineStatus+"/") {
		return ""
	}
	return address[strings.LastIndex(address, "/")+1:]
}
