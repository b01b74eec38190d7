package cuems

import (
	"sync"
)

// ComponentSequence is the draft component holding the cue list
const ComponentSequence = "sequence"

// ComponentDraft is the staged state of one editor component
type ComponentDraft struct {
	Dirty bool
	Data  any
}

// Snapshot is a navigation-safe copy of in-progress cue edits
type Snapshot struct {
	Cues  []UICue
	Dirty bool
}

// projectDraft is everything staged for one project
type projectDraft struct {
	components map[string]ComponentDraft
	snapshot   *Snapshot
}

// DraftStore tracks unsaved edits per project. Projects never share state;
// two views editing the same project overwrite each other, last write wins.
// Drafts live until a save succeeds or the edits are discarded.
type DraftStore struct {
	mu       sync.Mutex
	projects map[string]*projectDraft

	watchMu sync.Mutex
	nextID  int
	watches map[int]func(anyDirty bool)
}

// NewDraftStore creates an empty store
func NewDraftStore() *DraftStore {
	return &DraftStore{
		projects: make(map[string]*projectDraft),
		watches:  make(map[int]func(bool)),
	}
}

// project returns the draft of a project, creating it when create is set.
// Callers hold s.mu.
func (s *DraftStore) project(projectID string, create bool) *projectDraft {
	p, ok := s.projects[projectID]
	if !ok && create {
		p = &projectDraft{components: make(map[string]ComponentDraft)}
		s.projects[projectID] = p
	}
	return p
}

// MarkChanged stores data for a component and marks it dirty
func (s *DraftStore) MarkChanged(component, projectID string, data any) {
	s.mu.Lock()
	s.project(projectID, true).components[component] = ComponentDraft{Dirty: true, Data: data}
	s.mu.Unlock()
	s.notify()
}

// UpdateData replaces a component's data without touching its dirty flag
func (s *DraftStore) UpdateData(component, projectID string, data any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.project(projectID, true)
	current := p.components[component]
	p.components[component] = ComponentDraft{Dirty: current.Dirty, Data: data}
}

// MarkSaved clears a component's dirty flag and keeps its data
func (s *DraftStore) MarkSaved(component, projectID string) {
	s.mu.Lock()
	if p := s.project(projectID, false); p != nil {
		if current, ok := p.components[component]; ok {
			p.components[component] = ComponentDraft{Dirty: false, Data: current.Data}
		}
	}
	s.mu.Unlock()
	s.notify()
}

// Data returns a component's last staged data, or nil
func (s *DraftStore) Data(component, projectID string) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.project(projectID, false); p != nil {
		return p.components[component].Data
	}
	return nil
}

// ModifiedData returns the data of every dirty component of a project
func (s *DraftStore) ModifiedData(projectID string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]any)
	if p := s.project(projectID, false); p != nil {
		for name, c := range p.components {
			if c.Dirty {
				out[name] = c.Data
			}
		}
	}
	return out
}

// IsDirty reports whether any component of a project is dirty
func (s *DraftStore) IsDirty(projectID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.project(projectID, false); p != nil {
		for _, c := range p.components {
			if c.Dirty {
				return true
			}
		}
	}
	return false
}

// AnyDirty reports whether any project has unsaved edits
func (s *DraftStore) AnyDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.anyDirtyLocked()
}

func (s *DraftStore) anyDirtyLocked() bool {
	for _, p := range s.projects {
		for _, c := range p.components {
			if c.Dirty {
				return true
			}
		}
	}
	return false
}

// MarkProjectSaved clears every dirty flag of a project and drops its snapshot
func (s *DraftStore) MarkProjectSaved(projectID string) {
	s.mu.Lock()
	if p := s.project(projectID, false); p != nil {
		for name, c := range p.components {
			p.components[name] = ComponentDraft{Dirty: false, Data: c.Data}
		}
		p.snapshot = nil
	}
	s.mu.Unlock()
	s.notify()
}

// SaveSnapshot deep-copies cues into the project's temporary snapshot
func (s *DraftStore) SaveSnapshot(projectID string, cues []UICue, dirty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.project(projectID, true).snapshot = &Snapshot{Cues: CloneCues(cues), Dirty: dirty}
}

// Snapshot returns a deep copy of the project's snapshot
func (s *DraftStore) Snapshot(projectID string) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.project(projectID, false)
	if p == nil || p.snapshot == nil {
		return Snapshot{}, false
	}
	return Snapshot{Cues: CloneCues(p.snapshot.Cues), Dirty: p.snapshot.Dirty}, true
}

// UpdateSnapshotCues replaces the snapshot cues, keeping its dirty flag.
// Nothing happens when the project has no snapshot.
func (s *DraftStore) UpdateSnapshotCues(projectID string, cues []UICue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.project(projectID, false); p != nil && p.snapshot != nil {
		p.snapshot = &Snapshot{Cues: CloneCues(cues), Dirty: p.snapshot.Dirty}
	}
}

// ClearSnapshot drops the project's snapshot only
func (s *DraftStore) ClearSnapshot(projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.project(projectID, false); p != nil {
		p.snapshot = nil
	}
}

// Clear removes everything staged for a project. Call it once a save is
// confirmed or the edits are discarded.
func (s *DraftStore) Clear(projectID string) {
	s.mu.Lock()
	delete(s.projects, projectID)
	s.mu.Unlock()
	s.notify()
}

// ClearAll removes every project's drafts
func (s *DraftStore) ClearAll() {
	s.mu.Lock()
	s.projects = make(map[string]*projectDraft)
	s.mu.Unlock()
	s.notify()
}

// Watch registers fn for changes of the global dirty state
func (s *DraftStore) Watch(fn func(anyDirty bool)) func() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	id := s.nextID
	s.nextID++
	s.watches[id] = fn
	return func() {
		s.watchMu.Lock()
		delete(s.watches, id)
		s.watchMu.Unlock()
	}
}

func (s *DraftStore) notify() {
	dirty := s.AnyDirty()

	s.watchMu.Lock()
	watches := make([]func(bool), 0, len(s.watches))
	for _, fn := range s.watches {
		watches = append(watches, fn)
	}
	s.watchMu.Unlock()

	for _, fn := range watches {
		fn(dirty)
	}
}
