package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/zenibako/cuems-golang/config"
	"github.com/zenibako/cuems-golang/cuems"
	"github.com/zenibako/cuems-golang/messages"
)

var errTimeout = errors.New("timed out waiting for the engine")

// controlSession is a connected structured channel with the project and
// media services attached.
type controlSession struct {
	cfg       config.Config
	transport *cuems.Transport
	router    *cuems.ErrorRouter
	cache     *cuems.StateCache
	projects  *cuems.ProjectService
	media     *cuems.MediaService
	drafts    *cuems.DraftStore
	errs      chan *cuems.ProtocolError
	detach    []func()
}

func (c *commandContext) openControl(ctx context.Context) (*controlSession, error) {
	cfg := c.config

	cache, err := cuems.OpenStateCache(ctx, cfg.State.Path)
	if err != nil {
		return nil, err
	}

	tr := cuems.NewTransport(cfg.Engine.ControlURL,
		cuems.WithName("control"),
		cuems.WithReconnectDelay(cfg.ControlReconnectDelay()))

	s := &controlSession{
		cfg:       cfg,
		transport: tr,
		router:    cuems.NewErrorRouter(),
		cache:     cache,
		drafts:    cuems.NewDraftStore(),
		errs:      make(chan *cuems.ProtocolError, 16),
	}
	s.projects = cuems.NewProjectService(tr, nil, cache)
	s.media = cuems.NewMediaService(tr, nil)

	if err := s.projects.Rehydrate(ctx); err != nil {
		log.Warn("Could not restore cached engine state", "error", err)
	}

	report := func(perr *cuems.ProtocolError) {
		select {
		case s.errs <- perr:
		default:
		}
	}
	s.router.Fallback(func(perr *cuems.ProtocolError) {
		log.Error("Engine error", "action", perr.Action, "error", perr.Message)
		report(perr)
	})
	for _, domain := range []messages.Domain{messages.DomainProject, messages.DomainMedia, messages.DomainUpload} {
		s.router.Handle(domain, report)
	}

	s.detach = append(s.detach,
		s.projects.Attach(tr, s.router),
		s.media.Attach(tr, s.router),
		s.router.Attach(tr),
	)

	if err := tr.Connect(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// waitForTopology blocks until output mappings are known, using the
// configured linear retry policy.
func (s *controlSession) waitForTopology(ctx context.Context) (*cuems.Topology, error) {
	policy := cuems.RetryPolicy{
		MaxAttempts: s.cfg.Topology.MaxAttempts,
		Delay:       cuems.Linear(s.cfg.TopologyStep()),
	}
	return s.projects.WaitForTopology(ctx, policy)
}

func (s *controlSession) Close() {
	for _, fn := range s.detach {
		fn()
	}
	if err := s.transport.Close(); err != nil {
		log.Debugf("Closing control transport: %v", err)
	}
	if err := s.cache.Close(); err != nil {
		log.Debugf("Closing state cache: %v", err)
	}
}

// await waits for a value on ch, an engine error, cancellation or timeout
func await[T any](ctx context.Context, s *controlSession, ch <-chan T, timeout time.Duration) (T, error) {
	var zero T
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case v := <-ch:
		return v, nil
	case perr := <-s.errs:
		return zero, perr
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-timer.C:
		return zero, errTimeout
	}
}

// realtimeSession is a connected event channel with live status decoding
type realtimeSession struct {
	transport *cuems.Transport
	status    *cuems.Status
	commander *cuems.Commander
}

func (c *commandContext) openRealtime(ctx context.Context) (*realtimeSession, error) {
	cfg := c.config
	tr := cuems.NewTransport(cfg.Engine.RealtimeURL,
		cuems.WithName("realtime"),
		cuems.WithReconnectDelay(cfg.RealtimeReconnectDelay()))

	s := &realtimeSession{
		transport: tr,
		status:    cuems.NewStatus(),
		commander: cuems.NewCommander(tr, messages.NewAddressBuilder(cfg.Engine.AddressPrefix)),
	}
	if err := tr.Connect(ctx); err != nil {
		_ = tr.Close()
		return nil, fmt.Errorf("connect to engine: %w", err)
	}
	return s, nil
}

func (s *realtimeSession) Close() {
	if err := s.transport.Close(); err != nil {
		log.Debugf("Closing realtime transport: %v", err)
	}
}

// expect signals once a response of type action arrives. Responses for
// project_restore may come back as project_recover.
func (s *controlSession) expect(action messages.Action) (<-chan struct{}, func()) {
	replied := make(chan struct{}, 1)
	detach := s.transport.Subscribe(func(msg cuems.Message) {
		st, ok := msg.(cuems.Structured)
		if !ok || st.IsError() {
			return
		}
		got := messages.Action(st.Type)
		if got == action || (action == messages.ActionProjectRestore && got == messages.ActionProjectRecover) {
			select {
			case replied <- struct{}{}:
			default:
			}
		}
	})
	return replied, detach
}
