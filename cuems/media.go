package cuems

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/zenibako/cuems-golang/messages"
)

// MediaFile is one entry of the engine's media library
type MediaFile struct {
	UUID     string `json:"-"`
	Name     string `json:"name"`
	UnixName string `json:"unix_name"`
	Type     string `json:"type"`
	Created  string `json:"created,omitempty"`
	Modified string `json:"modified,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// Ref returns the reference a cue stores for the file
func (f MediaFile) Ref() MediaRef {
	return MediaRef{UUID: f.UUID, Name: f.Name, UnixName: f.UnixName, Type: f.Type}
}

var (
	audioFileTypes = []string{"MP3", "WAV", "AAC", "OGG", "FLAC", "M4A", "WMA", "OPUS", "AIFF", "APE", "ALAC"}
	videoFileTypes = []string{"MP4", "AVI", "MOV", "MKV", "WMV", "FLV", "WEBM", "M4V", "OGV"}
)

// IsAudio reports whether the file type is an audio format
func (f MediaFile) IsAudio() bool {
	t := strings.ToUpper(f.Type)
	return t != "" && (strings.Contains(t, "AUDIO") || slices.Contains(audioFileTypes, t))
}

// IsVideo reports whether the file type is a video format
func (f MediaFile) IsVideo() bool {
	t := strings.ToUpper(f.Type)
	return t != "" && (strings.Contains(t, "VIDEO") || strings.Contains(t, "MOVIE") || slices.Contains(videoFileTypes, t))
}

// PlayableBy reports whether a cue of kind can play the file. Audio cues
// also play the sound of video files.
func (f MediaFile) PlayableBy(kind CueKind) bool {
	switch kind {
	case KindAudio:
		return f.IsAudio() || f.IsVideo()
	case KindVideo:
		return f.IsVideo()
	default:
		return false
	}
}

// decodeKeyed decodes the engine's [{"<uuid>": {...}}] list shape, keeping
// list order. setID receives each item's uuid.
func decodeKeyed[T any](raw json.RawMessage, setID func(*T, string)) ([]T, error) {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}

	out := make([]T, 0, len(items))
	for _, item := range items {
		keys := make([]string, 0, len(item))
		for k := range item {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if len(keys) == 0 {
			continue
		}

		var v T
		if err := json.Unmarshal(item[keys[0]], &v); err != nil {
			return nil, fmt.Errorf("item %s: %w", keys[0], err)
		}
		setID(&v, keys[0])
		out = append(out, v)
	}
	return out, nil
}

// MediaService keeps the media library in sync with the engine
type MediaService struct {
	sender   Sender
	notifier Notifier

	mu    sync.RWMutex
	files []MediaFile
	trash []MediaFile

	onChange func([]MediaFile)
}

// NewMediaService creates a media service sending through sender
func NewMediaService(sender Sender, notifier Notifier) *MediaService {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &MediaService{sender: sender, notifier: notifier}
}

// OnFileList registers fn for every refreshed file list
func (m *MediaService) OnFileList(fn func([]MediaFile)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

// Files returns the current media library
func (m *MediaService) Files() []MediaFile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.files)
}

// Trash returns the files in the trash
func (m *MediaService) Trash() []MediaFile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.trash)
}

// Refs returns media references for every file, for cue loading
func (m *MediaService) Refs() []MediaRef {
	files := m.Files()
	refs := make([]MediaRef, len(files))
	for i, f := range files {
		refs[i] = f.Ref()
	}
	return refs
}

// FilesFor lists the files a cue of kind can play
func (m *MediaService) FilesFor(kind CueKind) []MediaFile {
	var out []MediaFile
	for _, f := range m.Files() {
		if f.PlayableBy(kind) {
			out = append(out, f)
		}
	}
	return out
}

// Find returns a file by uuid
func (m *MediaService) Find(uuid string) (MediaFile, bool) {
	for _, f := range m.Files() {
		if f.UUID == uuid {
			return f, true
		}
	}
	return MediaFile{}, false
}

// FindByUnixName returns a file by its unix name
func (m *MediaService) FindByUnixName(name string) (MediaFile, bool) {
	for _, f := range m.Files() {
		if f.UnixName == name {
			return f, true
		}
	}
	return MediaFile{}, false
}

// RequestList asks the engine for the media library
func (m *MediaService) RequestList(ctx context.Context) error {
	return m.request(ctx, messages.ActionFileList, nil)
}

// RequestTrash asks the engine for the trashed files
func (m *MediaService) RequestTrash(ctx context.Context) error {
	return m.request(ctx, messages.ActionFileTrashList, nil)
}

// Delete moves a file to the trash
func (m *MediaService) Delete(ctx context.Context, uuid string) error {
	return m.request(ctx, messages.ActionFileDelete, uuid)
}

// Restore brings a file back from the trash
func (m *MediaService) Restore(ctx context.Context, uuid string) error {
	return m.request(ctx, messages.ActionFileRestore, uuid)
}

// PermanentDelete removes a trashed file for good
func (m *MediaService) PermanentDelete(ctx context.Context, uuid string) error {
	return m.request(ctx, messages.ActionFileTrashDelete, uuid)
}

func (m *MediaService) request(ctx context.Context, action messages.Action, value any) error {
	req, err := NewRequest(action, value)
	if err != nil {
		return err
	}
	return m.sender.Send(ctx, req)
}

// HandleResponse applies a structured response. It reports whether the
// response belonged to the media domain.
func (m *MediaService) HandleResponse(ctx context.Context, msg Structured) bool {
	switch messages.Action(msg.Type) {
	case messages.ActionFileList:
		files, err := decodeMediaList(msg.Value)
		if err != nil {
			log.Warn("Invalid file list", "error", err)
			return true
		}
		m.mu.Lock()
		m.files = files
		fn := m.onChange
		m.mu.Unlock()
		if fn != nil {
			fn(slices.Clone(files))
		}
	case messages.ActionFileTrashList:
		files, err := decodeMediaList(msg.Value)
		if err != nil {
			log.Warn("Invalid file trash list", "error", err)
			return true
		}
		m.mu.Lock()
		m.trash = files
		m.mu.Unlock()
	case messages.ActionFileDelete:
		m.notifier.Success("File moved to trash")
		m.refresh(ctx)
	case messages.ActionFileRestore:
		m.notifier.Success("File restored")
		m.refresh(ctx)
	case messages.ActionFileTrashDelete:
		m.notifier.Success("File permanently deleted")
		m.refresh(ctx)
	default:
		return false
	}
	return true
}

func (m *MediaService) refresh(ctx context.Context) {
	if err := m.RequestList(ctx); err != nil {
		log.Debugf("File list refresh not sent: %v", err)
	}
	if err := m.RequestTrash(ctx); err != nil {
		log.Debugf("File trash refresh not sent: %v", err)
	}
}

// HandleError surfaces media and upload errors
func (m *MediaService) HandleError(perr *ProtocolError) {
	m.notifier.Error(perr.Message)
	perr.MarkSurfaced("media")
}

// Attach wires the service to a transport and an error router
func (m *MediaService) Attach(tr *Transport, router *ErrorRouter) func() {
	if router != nil {
		router.Handle(messages.DomainMedia, m.HandleError)
		router.Handle(messages.DomainUpload, m.HandleError)
	}
	return tr.Subscribe(func(msg Message) {
		if s, ok := msg.(Structured); ok && !s.IsError() {
			m.HandleResponse(context.Background(), s)
		}
	})
}

func decodeMediaList(raw json.RawMessage) ([]MediaFile, error) {
	return decodeKeyed(raw, func(f *MediaFile, id string) { f.UUID = id })
}
