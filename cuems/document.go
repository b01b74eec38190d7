package cuems

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/zenibako/cuems-golang/templates"
)

// Document is a CUEMS project document as exchanged with the engine
type Document map[string]any

// ParseDocument decodes a project document
func ParseDocument(raw []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse project document: %w", err)
	}
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}

// Script returns the CuemsScript node, or nil
func (d Document) Script() map[string]any {
	script, _ := d[templates.KeyScript].(map[string]any)
	return script
}

// CueList returns the CueList node, or nil
func (d Document) CueList() map[string]any {
	script := d.Script()
	if script == nil {
		return nil
	}
	list, _ := script[templates.KeyCueList].(map[string]any)
	return list
}

// Contents returns the cue wrappers. A missing cue list, missing contents
// and the null sentinel all read as empty.
func (d Document) Contents() []any {
	list := d.CueList()
	if list == nil {
		return nil
	}
	contents, _ := list[templates.KeyContents].([]any)
	return contents
}

// UUID returns the project uuid
func (d Document) UUID() string {
	if id, ok := d["uuid"].(string); ok && id != "" {
		return id
	}
	if script := d.Script(); script != nil {
		id, _ := script["id"].(string)
		return id
	}
	return ""
}

// Name returns the project name
func (d Document) Name() string {
	if script := d.Script(); script != nil {
		name, _ := script["name"].(string)
		return name
	}
	return ""
}

// Clone deep-copies the document
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return Document(templates.DeepCopy(map[string]any(d)).(map[string]any))
}

// CueEntry is one tagged cue wrapper: {"AudioCue": {...}} and friends
type CueEntry struct {
	Kind CueKind
	Body map[string]any
}

// ParseCueEntry identifies the variant of a wrapper. A wrapper must carry
// exactly one recognized tag whose value is an object.
func ParseCueEntry(item any) (CueEntry, error) {
	wrapper, ok := item.(map[string]any)
	if !ok {
		return CueEntry{}, fmt.Errorf("cue wrapper is %T, not an object", item)
	}

	var found []CueEntry
	tags := make([]string, 0, len(wrapper))
	for tag := range wrapper {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	for _, tag := range tags {
		kind, ok := kindForTag(tag)
		if !ok {
			continue
		}
		body, ok := wrapper[tag].(map[string]any)
		if !ok {
			return CueEntry{}, fmt.Errorf("%s body is %T, not an object", tag, wrapper[tag])
		}
		found = append(found, CueEntry{Kind: kind, Body: body})
	}

	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return CueEntry{}, fmt.Errorf("no recognized cue tag in %v", tags)
	default:
		return CueEntry{}, fmt.Errorf("ambiguous cue wrapper with tags %v", tags)
	}
}

// Wrap returns the document form of the entry
func (e CueEntry) Wrap() map[string]any {
	return map[string]any{e.Kind.Tag(): e.Body}
}

// Entries returns the recognized cue wrappers, dropping the rest
func (d Document) Entries() []CueEntry {
	return parseEntries(d.Contents())
}

func parseEntries(contents []any) []CueEntry {
	entries := make([]CueEntry, 0, len(contents))
	for i, item := range contents {
		entry, err := ParseCueEntry(item)
		if err != nil {
			log.Warn("Skipping unrecognized cue", "index", i, "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func mapField(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	v, _ := m[key].(map[string]any)
	return v
}

// numberOf reads a JSON number whichever Go type carries it
func numberOf(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func intField(m map[string]any, key string) (int, bool) {
	f, ok := numberOf(m[key])
	if !ok {
		return 0, false
	}
	return int(math.Round(f)), true
}
