package cuems

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/zenibako/cuems-golang/messages"
)

// Validation errors. They abort one operation and are reported to the
// operator; they never leave a draft half-written.
var (
	ErrNoTemplate             = errors.New("no project template available")
	ErrNoMappings             = errors.New("no output mappings available")
	ErrMissingTemplateVariant = errors.New("project template has no variant for cue type")
	ErrNoProject              = errors.New("no project loaded")
)

// UnknownErrorMessage is surfaced when an error envelope has no readable text
const UnknownErrorMessage = "Unknown error occurred"

var reasonPattern = regexp.MustCompile(`Reason: (.+?)\n`)

// ProtocolError is an error envelope returned by the engine
type ProtocolError struct {
	Action  messages.Action
	Message string
	Raw     Structured

	mu         sync.Mutex
	surfacedBy string
}

// NewProtocolError builds a ProtocolError from an error envelope
func NewProtocolError(msg Structured) *ProtocolError {
	return &ProtocolError{
		Action:  messages.Action(msg.Action),
		Message: errorMessage(msg.Value),
		Raw:     msg,
	}
}

func (e *ProtocolError) Error() string {
	action := string(e.Action)
	if action == "" {
		action = "request"
	}
	return fmt.Sprintf("%s failed: %s", action, e.Message)
}

// Domain returns the subsystem that owns the failed action
func (e *ProtocolError) Domain() messages.Domain { return messages.DomainOf(e.Action) }

// MarkSurfaced records that view has already shown the error to the operator
func (e *ProtocolError) MarkSurfaced(view string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.surfacedBy == "" {
		e.surfacedBy = view
	}
}

// Surfaced reports which view showed the error, if any
func (e *ProtocolError) Surfaced() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.surfacedBy, e.surfacedBy != ""
}

// errorMessage extracts the operator-facing text of an error value:
// the "Reason:" line of an engine traceback, the whole string otherwise.
func errorMessage(value json.RawMessage) string {
	var s string
	if len(value) == 0 || json.Unmarshal(value, &s) != nil {
		return UnknownErrorMessage
	}
	if m := reasonPattern.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// ErrorHandler receives routed protocol errors
type ErrorHandler func(*ProtocolError)

// ErrorRouter dispatches error envelopes to the handlers of the owning
// domain. The fallback handler only sees errors no handler surfaced.
type ErrorRouter struct {
	mu       sync.RWMutex
	handlers map[messages.Domain][]ErrorHandler
	fallback ErrorHandler
	lastErr  time.Time
	now      func() time.Time
}

// NewErrorRouter creates an empty router
func NewErrorRouter() *ErrorRouter {
	return &ErrorRouter{
		handlers: make(map[messages.Domain][]ErrorHandler),
		now:      time.Now,
	}
}

// Handle registers fn for errors of a domain
func (r *ErrorRouter) Handle(domain messages.Domain, fn ErrorHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[domain] = append(r.handlers[domain], fn)
}

// Fallback sets the handler for errors nobody surfaced
func (r *ErrorRouter) Fallback(fn ErrorHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = fn
}

// Route handles one inbound message. It returns the routed error, or nil
// when msg is not an error envelope or belongs to an experimental action.
func (r *ErrorRouter) Route(msg Structured) *ProtocolError {
	if !msg.IsError() {
		return nil
	}
	if messages.IsExperimental(messages.Action(msg.Action)) {
		log.Debugf("Ignoring error for experimental action %s", msg.Action)
		return nil
	}

	perr := NewProtocolError(msg)
	log.Warn("Engine reported an error", "action", perr.Action, "domain", perr.Domain(), "message", perr.Message)

	r.mu.Lock()
	r.lastErr = r.now()
	handlers := append([]ErrorHandler(nil), r.handlers[perr.Domain()]...)
	fallback := r.fallback
	r.mu.Unlock()

	for _, h := range handlers {
		h(perr)
	}
	if _, surfaced := perr.Surfaced(); !surfaced && fallback != nil {
		fallback(perr)
	}
	return perr
}

// HasRecentError reports whether an error was routed within window
func (r *ErrorRouter) HasRecentError(window time.Duration) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.lastErr.IsZero() && r.now().Sub(r.lastErr) < window
}

// Attach routes every structured message received by tr
func (r *ErrorRouter) Attach(tr *Transport) func() {
	return tr.Subscribe(func(msg Message) {
		if s, ok := msg.(Structured); ok {
			r.Route(s)
		}
	})
}
