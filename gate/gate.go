// Package gate holds directives back until the embedded content has finished
// initializing, and decides which single start-up directive it receives.
package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/jeanpaulrichter/phasorviz/directive"
)

// ErrNotReady is returned by Send while the content is still loading.
var ErrNotReady = errors.New("content not ready")

// State is the content readiness state.
type State int

const (
	Loading State = iota
	Ready
)

func (s State) String() string {
	if s == Ready {
		return "ready"
	}
	return "loading"
}

// Outcome describes what happened to a hand-off.
type Outcome int

const (
	Ignored Outcome = iota
	Queued
	Delivered
	Declined
)

func (o Outcome) String() string {
	switch o {
	case Queued:
		return "queued"
	case Delivered:
		return "delivered"
	case Declined:
		return "declined"
	default:
		return "ignored"
	}
}

// Injector delivers a directive into the content.
type Injector interface {
	Inject(d directive.Directive) error
}

// Confirmer asks the user to confirm a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, title, message string) (bool, error)
}

// Confirmation shown before the current document is replaced.
const (
	DiscardTitle   = "Warning"
	DiscardMessage = "Discard current phasors?"
)

// Gate is the readiness state of one host surface.
type Gate struct {
	inject  Injector
	confirm Confirmer
	log     *zap.Logger

	// mu is held across injection so nothing overtakes the start-up directive.
	mu      sync.Mutex
	state   State
	pending *directive.Directive
}

// New creates a gate in the Loading state. initialRef is the hand-off the host
// was started with, empty if none.
func New(inject Injector, confirm Confirmer, initialRef string, log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	g := &Gate{
		inject:  inject,
		confirm: confirm,
		log:     log,
	}
	if initialRef != "" {
		g.queue(initialRef)
	}
	return g
}

// State returns the current readiness state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Pending returns the directive waiting for readiness, if any.
func (g *Gate) Pending() (directive.Directive, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return directive.Directive{}, false
	}
	return *g.pending, true
}

// MarkReady performs the Loading → Ready transition and delivers exactly one
// directive: the pending download if there is one, Init otherwise. Calls after
// the first successful one do nothing. If delivery fails the gate stays in
// Loading with the pending directive intact.
func (g *Gate) MarkReady() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == Ready {
		return nil
	}

	d := directive.Init()
	if g.pending != nil {
		d = *g.pending
	}
	if err := g.inject.Inject(d); err != nil {
		return fmt.Errorf("deliver %s: %w", d.Kind(), err)
	}

	g.pending = nil
	g.state = Ready
	g.log.Info("content ready", zap.String("directive", d.Render()))
	return nil
}

// Send delivers d to ready content. Directives are never queued behind
// readiness except through Handoff.
func (g *Gate) Send(d directive.Directive) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != Ready {
		return ErrNotReady
	}
	return g.inject.Inject(d)
}

// Handoff processes an external hand-off reference. While loading, a valid code
// replaces any earlier pending download. Once ready, the user must confirm
// before the current document is replaced; declining has no effect. Malformed
// references are ignored.
func (g *Gate) Handoff(ctx context.Context, ref string) (Outcome, error) {
	code, err := directive.CodeFromReference(ref)
	if err != nil {
		g.log.Debug("ignoring hand-off", zap.String("ref", ref))
		return Ignored, nil
	}

	g.mu.Lock()
	if g.state == Loading {
		d := directive.Download(code)
		g.pending = &d
		g.mu.Unlock()
		g.log.Info("hand-off queued", zap.String("code", string(code)))
		return Queued, nil
	}
	g.mu.Unlock()

	ok, err := g.confirm.Confirm(ctx, DiscardTitle, DiscardMessage)
	if err != nil {
		return Declined, err
	}
	if !ok {
		g.log.Info("hand-off declined", zap.String("code", string(code)))
		return Declined, nil
	}
	if err := g.Send(directive.Download(code)); err != nil {
		return Ignored, err
	}
	return Delivered, nil
}

func (g *Gate) queue(ref string) {
	code, err := directive.CodeFromReference(ref)
	if err != nil {
		g.log.Debug("ignoring start-up hand-off", zap.String("ref", ref))
		return
	}
	d := directive.Download(code)
	g.pending = &d
}
