package cuems

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/zenibako/cuems-golang/messages"
	"github.com/zenibako/cuems-golang/templates"
)

// ProjectSummary is one entry of the project or trash list
type ProjectSummary struct {
	UUID     string `json:"uuid"`
	Name     string `json:"name"`
	UnixName string `json:"unix_name"`
	Created  string `json:"created,omitempty"`
	Modified string `json:"modified,omitempty"`
}

// ProjectService keeps the project list, the project template and the
// output topology in sync with the engine, and issues project requests.
type ProjectService struct {
	sender   Sender
	notifier Notifier
	cache    *StateCache

	mu       sync.RWMutex
	template templates.Template
	topology *Topology
	projects []ProjectSummary
	trash    []ProjectSummary

	onCreated callbacks[func(projectID string)]
	onSaved   callbacks[func(projectID string)]
	onLoaded  callbacks[func(doc Document)]
	onList    callbacks[func([]ProjectSummary)]
}

// callbacks is a set of listeners called in registration order
type callbacks[F any] struct {
	mu     sync.RWMutex
	nextID int
	fns    map[int]F
}

func (c *callbacks[F]) add(fn F) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fns == nil {
		c.fns = make(map[int]F)
	}
	id := c.nextID
	c.nextID++
	c.fns[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.fns, id)
		c.mu.Unlock()
	}
}

func (c *callbacks[F]) snapshot() []F {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return inOrder(c.fns)
}

func (c *callbacks[F]) count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.fns)
}

// NewProjectService creates a service. cache may be nil.
func NewProjectService(sender Sender, notifier Notifier, cache *StateCache) *ProjectService {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &ProjectService{sender: sender, notifier: notifier, cache: cache}
}

// Template returns the current project template, or nil
func (p *ProjectService) Template() templates.Template {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.template
}

// Topology returns the current output topology, or nil
func (p *ProjectService) Topology() *Topology {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.topology
}

// Projects returns the last received project list
func (p *ProjectService) Projects() []ProjectSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.projects)
}

// TrashedProjects returns the last received trash list
func (p *ProjectService) TrashedProjects() []ProjectSummary {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.trash)
}

// SetTemplate replaces the project template
func (p *ProjectService) SetTemplate(tmpl templates.Template) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.template = tmpl
}

// SetTopology replaces the output topology
func (p *ProjectService) SetTopology(topo *Topology) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topology = topo
}

// OnCreated registers fn for project creation results and returns a
// function removing it. An empty id means the creation failed.
func (p *ProjectService) OnCreated(fn func(projectID string)) func() {
	return p.onCreated.add(fn)
}

// OnSaved registers fn for confirmed saves and returns a function removing it
func (p *ProjectService) OnSaved(fn func(projectID string)) func() {
	return p.onSaved.add(fn)
}

// OnLoaded registers fn for loaded project documents and returns a
// function removing it
func (p *ProjectService) OnLoaded(fn func(doc Document)) func() {
	return p.onLoaded.add(fn)
}

// OnProjectList registers fn for every refreshed project list and returns
// a function removing it
func (p *ProjectService) OnProjectList(fn func([]ProjectSummary)) func() {
	return p.onList.add(fn)
}

func (p *ProjectService) emitCreated(id string) {
	for _, fn := range p.onCreated.snapshot() {
		fn(id)
	}
}

func (p *ProjectService) emitSaved(id string) {
	for _, fn := range p.onSaved.snapshot() {
		fn(id)
	}
}

func (p *ProjectService) emitLoaded(doc Document) {
	for _, fn := range p.onLoaded.snapshot() {
		fn(doc.Clone())
	}
}

func (p *ProjectService) emitList(list []ProjectSummary) {
	for _, fn := range p.onList.snapshot() {
		fn(slices.Clone(list))
	}
}

// Rehydrate restores the template and topology from the state cache. Missing
// or unreadable entries are skipped; fresh copies from the engine replace
// them on connect.
func (p *ProjectService) Rehydrate(ctx context.Context) error {
	if p.cache == nil {
		return nil
	}

	var errs []error
	if raw, _, err := p.cache.Get(ctx, CacheKeyTemplate); err == nil {
		var tmpl templates.Template
		if err := json.Unmarshal(raw, &tmpl); err != nil {
			errs = append(errs, fmt.Errorf("cached template: %w", err))
		} else {
			p.SetTemplate(tmpl)
			log.Debugf("Restored project template from cache")
		}
	} else if !errors.Is(err, ErrCacheMiss) {
		errs = append(errs, err)
	}

	if raw, _, err := p.cache.Get(ctx, CacheKeyMappings); err == nil {
		topo, err := ParseTopology(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("cached mappings: %w", err))
		} else {
			p.SetTopology(topo)
			log.Debugf("Restored output topology from cache (%d nodes)", len(topo.Nodes))
		}
	} else if !errors.Is(err, ErrCacheMiss) {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// WaitForTopology polls until a topology is available, following policy
func (p *ProjectService) WaitForTopology(ctx context.Context, policy RetryPolicy) (*Topology, error) {
	var topo *Topology
	err := policy.Do(ctx, func(attempt int) error {
		if topo = p.Topology(); topo != nil {
			return nil
		}
		log.Debugf("Output topology not available yet (attempt %d)", attempt)
		return ErrNoMappings
	})
	if err != nil {
		return nil, err
	}
	return topo, nil
}

// Create prepares a new project from the template and asks the engine to
// create it. Without a template or output mappings nothing is sent, the
// operator is notified and created listeners receive an empty id.
func (p *ProjectService) Create(ctx context.Context, name, description string) (string, error) {
	tmpl := p.Template()
	if tmpl == nil {
		return "", p.createFailed(ErrNoTemplate)
	}
	if len(p.Topology().Options()) == 0 {
		return "", p.createFailed(ErrNoMappings)
	}

	projectID := uuid.NewString()
	doc, err := tmpl.NewProject(projectID, uuid.NewString(), name, description)
	if err != nil {
		return "", p.createFailed(err)
	}

	req, err := NewRequest(messages.ActionProjectNew, doc)
	if err != nil {
		return "", err
	}
	req.UnixName = templates.Slug(name)

	log.Info("Creating project", "name", name, "unix_name", req.UnixName, "uuid", projectID)
	if err := p.sender.Send(ctx, req); err != nil {
		return "", fmt.Errorf("failed to send project creation: %w", err)
	}
	return projectID, nil
}

func (p *ProjectService) createFailed(err error) error {
	p.notifier.Error(fmt.Sprintf("Cannot create project: %v", err))
	p.emitCreated("")
	return err
}

// List requests the project list
func (p *ProjectService) List(ctx context.Context) error {
	return p.request(ctx, messages.ActionProjectList, nil)
}

// TrashList requests the trashed projects
func (p *ProjectService) TrashList(ctx context.Context) error {
	return p.request(ctx, messages.ActionProjectTrashList, nil)
}

// Load requests a project document
func (p *ProjectService) Load(ctx context.Context, projectID string) error {
	if projectID == "" {
		return fmt.Errorf("cannot load project: %w", ErrNoProject)
	}
	return p.request(ctx, messages.ActionProjectLoad, projectID)
}

// Save sends a complete project document
func (p *ProjectService) Save(ctx context.Context, doc Document) error {
	return p.request(ctx, messages.ActionProjectSave, doc)
}

// Delete moves a project to the trash
func (p *ProjectService) Delete(ctx context.Context, projectID string) error {
	return p.request(ctx, messages.ActionProjectDelete, projectID)
}

// Restore brings a project back from the trash
func (p *ProjectService) Restore(ctx context.Context, projectID string) error {
	return p.request(ctx, messages.ActionProjectRestore, projectID)
}

// PermanentDelete removes a trashed project for good
func (p *ProjectService) PermanentDelete(ctx context.Context, projectID string) error {
	return p.request(ctx, messages.ActionProjectTrashDelete, projectID)
}

func (p *ProjectService) request(ctx context.Context, action messages.Action, value any) error {
	req, err := NewRequest(action, value)
	if err != nil {
		return err
	}
	return p.sender.Send(ctx, req)
}

// HandleResponse applies a structured response. It reports whether the
// response belonged to the project domain.
func (p *ProjectService) HandleResponse(ctx context.Context, msg Structured) bool {
	switch msg.Type {
	case string(messages.ActionInitialTemplate):
		var tmpl templates.Template
		if err := msg.DecodeValue(&tmpl); err != nil {
			log.Warn("Invalid project template", "error", err)
			return true
		}
		p.SetTemplate(tmpl)
		p.store(ctx, CacheKeyTemplate, msg.Value)
		log.Debugf("Received project template")

	case string(messages.ActionInitialMappings):
		topo, err := ParseTopology(msg.Value)
		if err != nil {
			log.Warn("Invalid output mappings", "error", err)
			return true
		}
		p.SetTopology(topo)
		p.store(ctx, CacheKeyMappings, msg.Value)
		log.Debugf("Received output topology with %d nodes", len(topo.Nodes))

	case string(messages.ActionProjectList):
		list, err := decodeProjectList(msg.Value)
		if err != nil {
			log.Warn("Invalid project list", "error", err)
			return true
		}
		p.mu.Lock()
		p.projects = list
		p.mu.Unlock()
		p.emitList(list)

	case string(messages.ActionProjectTrashList):
		list, err := decodeProjectList(msg.Value)
		if err != nil {
			log.Warn("Invalid project trash list", "error", err)
			return true
		}
		p.mu.Lock()
		p.trash = list
		p.mu.Unlock()

	case string(messages.ActionProjectNew):
		id, _ := msg.StringValue()
		p.notifier.Success("Project created")
		p.emitCreated(id)
		p.refresh(ctx, true, false)

	case string(messages.ActionProjectSave):
		id, _ := msg.StringValue()
		p.notifier.Success("Project saved")
		p.emitSaved(id)
		p.refresh(ctx, true, false)

	case string(messages.ActionProjectDelete):
		p.notifier.Success("Project moved to trash")
		p.refresh(ctx, true, true)

	case string(messages.ActionProjectRecover), string(messages.ActionProjectRestore):
		p.notifier.Success("Project restored")
		p.refresh(ctx, true, true)

	case string(messages.ActionProjectTrashDelete):
		p.notifier.Success("Project permanently deleted")
		p.refresh(ctx, false, true)

	case messages.TypeProject:
		var doc Document
		if err := msg.DecodeValue(&doc); err != nil {
			log.Warn("Invalid project document", "error", err)
			return true
		}
		p.emitLoaded(doc)

	default:
		return false
	}
	return true
}

func (p *ProjectService) store(ctx context.Context, key string, raw json.RawMessage) {
	if p.cache == nil {
		return
	}
	if err := p.cache.Put(ctx, key, raw); err != nil {
		log.Warn("Failed to cache engine state", "key", key, "error", err)
	}
}

func (p *ProjectService) refresh(ctx context.Context, list, trash bool) {
	if list {
		if err := p.List(ctx); err != nil {
			log.Debugf("Project list refresh not sent: %v", err)
		}
	}
	if trash {
		if err := p.TrashList(ctx); err != nil {
			log.Debugf("Project trash refresh not sent: %v", err)
		}
	}
}

// HandleError surfaces project errors. A failed creation also notifies
// created listeners with an empty id.
func (p *ProjectService) HandleError(perr *ProtocolError) {
	p.notifier.Error(perr.Message)
	perr.MarkSurfaced("projects")
	if perr.Action == messages.ActionProjectNew {
		p.emitCreated("")
	}
}

// Attach wires the service to a transport and an error router
func (p *ProjectService) Attach(tr *Transport, router *ErrorRouter) func() {
	if router != nil {
		router.Handle(messages.DomainProject, p.HandleError)
	}
	return tr.Subscribe(func(msg Message) {
		if s, ok := msg.(Structured); ok && !s.IsError() {
			p.HandleResponse(context.Background(), s)
		}
	})
}

func decodeProjectList(raw json.RawMessage) ([]ProjectSummary, error) {
	return decodeKeyed(raw, func(s *ProjectSummary, id string) { s.UUID = id })
}
