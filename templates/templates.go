package templates

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Keys of the CUEMS project document
const (
	KeyScript   = "CuemsScript"
	KeyCueList  = "CueList"
	KeyContents = "contents"

	TagAudioCue  = "AudioCue"
	TagVideoCue  = "VideoCue"
	TagActionCue = "ActionCue"
	TagDmxCue    = "DmxCue"

	TagAudioOutput = "AudioCueOutput"
	TagVideoOutput = "VideoCueOutput"

	TagTimecode = "CTimecode"
)

// ErrNoCueList is returned when a template has no CueList to take cue variants from
var ErrNoCueList = errors.New("template has no cue list")

// Template is the engine's project template document (initial_template).
// Every variant lookup returns a deep copy so callers may mutate freely.
type Template map[string]any

// Script returns the CuemsScript node, or nil
func (t Template) Script() map[string]any {
	script, _ := t[KeyScript].(map[string]any)
	return script
}

// CueList returns the CueList node, or nil
func (t Template) CueList() map[string]any {
	script := t.Script()
	if script == nil {
		return nil
	}
	list, _ := script[KeyCueList].(map[string]any)
	return list
}

// Contents returns the template's example cue wrappers
func (t Template) Contents() []any {
	list := t.CueList()
	if list == nil {
		return nil
	}
	contents, _ := list[KeyContents].([]any)
	return contents
}

// Variant returns a copy of the first cue body tagged with tag
func (t Template) Variant(tag string) (map[string]any, bool) {
	for _, item := range t.Contents() {
		wrapper, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if body, ok := wrapper[tag].(map[string]any); ok {
			return DeepCopy(body).(map[string]any), true
		}
	}
	return nil, false
}

// OutputStructure returns a copy of the per-output structure the template
// uses for outputTag, looking first in the variant's outputs array and then
// at a direct single-output field.
func (t Template) OutputStructure(outputTag string) (map[string]any, bool) {
	cueTag := ""
	switch outputTag {
	case TagAudioOutput:
		cueTag = TagAudioCue
	case TagVideoOutput:
		cueTag = TagVideoCue
	default:
		return nil, false
	}

	body, ok := t.Variant(cueTag)
	if !ok {
		return nil, false
	}

	if outputs, ok := body["outputs"].([]any); ok {
		for _, o := range outputs {
			wrapper, ok := o.(map[string]any)
			if !ok {
				continue
			}
			if out, ok := wrapper[outputTag].(map[string]any); ok {
				return out, true
			}
		}
	}
	if out, ok := body[outputTag].(map[string]any); ok {
		return out, true
	}
	return nil, false
}

// CueListCopy returns a copy of the template's CueList with a new id and
// empty contents, for projects that have none yet.
func (t Template) CueListCopy(id string) (map[string]any, bool) {
	list := t.CueList()
	if list == nil {
		return nil, false
	}
	out := DeepCopy(list).(map[string]any)
	out["id"] = id
	out[KeyContents] = []any{}
	return out, true
}

// NewProject prepares a new project document from the template: empty cue
// list with a fresh id, the given name and description, and the project id.
func (t Template) NewProject(projectID, cueListID, name, description string) (map[string]any, error) {
	doc := DeepCopy(map[string]any(t)).(map[string]any)

	script, ok := doc[KeyScript].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("template has no %s node", KeyScript)
	}
	if list, ok := script[KeyCueList].(map[string]any); ok {
		list[KeyContents] = []any{}
		list["id"] = cueListID
	}
	script["name"] = name
	script["description"] = description
	script["id"] = projectID
	return doc, nil
}

// MinimalCueList is the cue list synthesized when neither the project nor
// a template provides one.
func MinimalCueList(id string) map[string]any {
	return map[string]any{
		"autoload":      false,
		"description":   nil,
		"enabled":       true,
		"id":            id,
		"loop":          0,
		"name":          "empty",
		"offset":        Timecode("00:00:00.000"),
		"post_go":       "pause",
		"postwait":      Timecode("00:00:00.000"),
		"prewait":       Timecode("00:00:00.000"),
		"target":        nil,
		"timecode":      false,
		"ui_properties": nil,
		KeyContents:     []any{},
	}
}

// Timecode wraps a timecode string the way the document stores it
func Timecode(tc string) map[string]any {
	return map[string]any{TagTimecode: tc}
}

// TimecodeValue unwraps a {CTimecode: "..."} node
func TimecodeValue(v any) string {
	node, ok := v.(map[string]any)
	if !ok {
		return ""
	}
	s, _ := node[TagTimecode].(string)
	return s
}

// DeepCopy copies JSON-shaped values (maps, slices and scalars)
func DeepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = DeepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = DeepCopy(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = DeepCopy(item)
		}
		return out
	default:
		return val
	}
}

var (
	slugSpaces  = regexp.MustCompile(`\s+`)
	slugInvalid = regexp.MustCompile(`[^a-z0-9_\-]+`)
	slugDashes  = regexp.MustCompile(`-{2,}`)
)

// Slug derives a project unix_name: accents folded, lower case, spaces to
// hyphens, everything else outside [a-z0-9_-] removed.
func Slug(name string) string {
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(folder, name)
	if err != nil {
		folded = name
	}

	s := strings.ToLower(folded)
	s = slugSpaces.ReplaceAllString(s, "-")
	s = slugInvalid.ReplaceAllString(s, "")
	s = slugDashes.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
