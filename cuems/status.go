package cuems

import (
	"sync"

	"github.com/charmbracelet/log"
	"github.com/zenibako/cuems-golang/messages"
)

// Value is an independently observable status field
type Value[T any] struct {
	mu      sync.RWMutex
	v       T
	nextID  int
	watches map[int]func(T)
}

// Get returns the current value
func (f *Value[T]) Get() T {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.v
}

// Set replaces the value and notifies watchers
func (f *Value[T]) Set(v T) {
	f.mu.Lock()
	f.v = v
	watches := make([]func(T), 0, len(f.watches))
	for _, fn := range f.watches {
		watches = append(watches, fn)
	}
	f.mu.Unlock()

	for _, fn := range watches {
		fn(v)
	}
}

// Watch registers fn for every change and returns a function removing it
func (f *Value[T]) Watch(fn func(T)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watches == nil {
		f.watches = make(map[int]func(T))
	}
	id := f.nextID
	f.nextID++
	f.watches[id] = fn
	return func() {
		f.mu.Lock()
		delete(f.watches, id)
		f.mu.Unlock()
	}
}

// Status is the live engine state projected from status events
type Status struct {
	CurrentCues   Value[[]string]
	NextCue       Value[string]
	Armed         Value[bool]
	Timecode      Value[float64]
	LoadedProject Value[string]
	Running       Value[bool]
	UserCount     Value[int]
}

// NewStatus returns an empty status
func NewStatus() *Status {
	s := &Status{}
	s.CurrentCues.Set([]string{})
	return s
}

// Apply reduces one event into the status fields. Events outside the
// engine status namespace and unknown fields are ignored. It reports
// whether the event changed anything.
func (s *Status) Apply(ev Event) bool {
	field := messages.StatusField(ev.Address)
	if field == "" {
		return false
	}

	arg := ev.Arg(0)
	switch field {
	case messages.StatusCurrentCue:
		id := argString(arg)
		if id == "" {
			return false
		}
		current := s.CurrentCues.Get()
		for _, existing := range current {
			if existing == id {
				return false
			}
		}
		next := make([]string, len(current), len(current)+1)
		copy(next, current)
		s.CurrentCues.Set(append(next, id))
	case messages.StatusNextCue:
		s.NextCue.Set(argString(arg))
	case messages.StatusArmed:
		s.Armed.Set(argString(arg) == "yes")
	case messages.StatusTimecode:
		ms, ok := argNumber(arg)
		if !ok {
			log.Debugf("Ignoring non-numeric timecode %v", arg)
			return false
		}
		s.Timecode.Set(ms)
	case messages.StatusLoad:
		s.LoadedProject.Set(argString(arg))
	case messages.StatusRunning:
		s.Running.Set(argString(arg) == "yes")
	case messages.StatusUsers:
		n, ok := argNumber(arg)
		if !ok {
			return false
		}
		s.UserCount.Set(int(n))
	default:
		log.Debugf("Ignoring unknown status field %q", field)
		return false
	}
	return true
}

// ResetCues clears the active cue set
func (s *Status) ResetCues() {
	s.CurrentCues.Set([]string{})
}

// Attach feeds every event received by tr into the status and returns a
// function detaching it.
func (s *Status) Attach(tr *Transport) func() {
	return tr.Subscribe(func(msg Message) {
		if ev, ok := msg.(Event); ok {
			s.Apply(ev)
		}
	})
}
