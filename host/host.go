// Package host coordinates one content surface: readiness, the toolbar menu,
// capability calls and file persistence.
package host

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jeanpaulrichter/phasorviz/capability"
	"github.com/jeanpaulrichter/phasorviz/directive"
	"github.com/jeanpaulrichter/phasorviz/gate"
	"github.com/jeanpaulrichter/phasorviz/menu"
	"github.com/jeanpaulrichter/phasorviz/rpc"
	"github.com/jeanpaulrichter/phasorviz/storage"
	"github.com/jeanpaulrichter/phasorviz/uistate"
)

// Options wires a Surface.
type Options struct {
	Platform  Platform
	Files     *storage.Gateway
	Handoff   string // reference the host was started with, may be empty
	Info      capability.Info
	MaxNotice int
	Logger    *zap.Logger
}

// Surface is one host surface. Gate state, the UI channel and the menu live
// and die with it.
type Surface struct {
	id       string
	platform Platform
	files    *storage.Gateway
	info     capability.Info
	log      *zap.Logger

	gate  *gate.Gate
	ui    *uistate.Channel
	caps  *capability.Surface
	calls *rpc.Handler

	// Owned by the UI goroutine.
	menu *menu.Menu

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bg       sync.WaitGroup
}

// deliverer adapts a Platform to gate.Injector.
type deliverer struct{ p Platform }

func (d deliverer) Inject(dir directive.Directive) error { return d.p.Deliver(dir) }

// contentReady marks the gate ready and renders the menu into the page that
// just loaded. Menus rendered before the page existed are lost on native
// platforms.
type contentReady struct{ s *Surface }

func (r contentReady) MarkReady() error {
	err := r.s.gate.MarkReady()
	r.s.platform.DispatchToMain(r.s.renderMenu)
	return err
}

// New creates a surface in the Loading state.
func New(opts Options) *Surface {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	id := uuid.NewString()
	log = log.With(zap.String("surface", id))

	s := &Surface{
		id:       id,
		platform: opts.Platform,
		files:    opts.Files,
		info:     opts.Info,
		log:      log,
	}
	s.bgCtx, s.bgCancel = context.WithCancel(context.Background())
	s.ui = uistate.NewChannel(opts.Platform.DispatchToMain)
	s.gate = gate.New(deliverer{opts.Platform}, opts.Platform, opts.Handoff, log)
	s.caps = capability.New(capability.Options{
		Notifier:  opts.Platform,
		UI:        s.ui,
		Files:     opts.Files,
		Readiness: contentReady{s},
		Info:      opts.Info,
		MaxNotice: opts.MaxNotice,
		Logger:    log,
	})
	s.calls = rpc.NewHandler(s.caps, log)
	return s
}

// ID identifies the surface in logs.
func (s *Surface) ID() string { return s.id }

// Capabilities exposes the capability surface, e.g. for notice ceiling updates.
func (s *Surface) Capabilities() *capability.Surface { return s.caps }

// Calls returns the JSON-RPC handler for the content's capability calls.
func (s *Surface) Calls() *rpc.Handler { return s.calls }

// State returns the readiness state.
func (s *Surface) State() gate.State { return s.gate.State() }

// Run initializes the platform, loads url and blocks in the platform's UI
// loop until ctx is done or the platform quits.
func (s *Surface) Run(ctx context.Context, url string) error {
	if s.files != nil {
		if err := s.files.EnsureDir(); err != nil {
			// Saves will fail with a notice; loading still works.
			s.log.Warn("sandbox unavailable", zap.String("dir", s.files.Dir()), zap.Error(err))
		}
	}

	err := s.platform.Init(Bindings{
		Call: s.calls.HandleBytes,
		Menu: s.activate,
		Info: s.info,
	})
	if err != nil {
		return fmt.Errorf("init platform: %w", err)
	}
	defer s.shutdown()

	s.platform.DispatchToMain(s.BuildMenu)

	if err := s.platform.Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	s.log.Info("surface started", zap.String("url", url))

	if err := s.platform.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *Surface) shutdown() {
	s.bgCancel()
	s.bg.Wait()
	if err := s.platform.Close(); err != nil {
		s.log.Warn("platform close", zap.Error(err))
	}
	s.log.Info("surface stopped")
}

// BuildMenu (re)creates the menu and attaches it to the UI channel, which
// replays the last editing transition. The lock carries over from the
// previous menu. UI goroutine only.
func (s *Surface) BuildMenu() {
	locked := true
	if s.menu != nil {
		locked = s.menu.State().Locked
	}
	s.ui.Detach()
	s.menu = menu.New(s.platform, locked)
	s.ui.Attach(s.menu)
}

func (s *Surface) renderMenu() {
	if s.menu != nil {
		s.menu.Render()
	}
}

// activate is the toolbar callback; it may arrive on any goroutine.
func (s *Surface) activate(id int) {
	s.platform.DispatchToMain(func() { s.OnMenuAction(menu.Action(id)) })
}

// OnMenuAction runs a menu action. UI goroutine only: anything that waits on
// the user is moved to a background goroutine.
func (s *Surface) OnMenuAction(a menu.Action) {
	if s.menu == nil {
		return
	}
	log := s.log.With(zap.Stringer("action", a))

	switch a {
	case menu.ActionLock:
		next := !s.menu.State().Locked
		if err := s.gate.Send(directive.SetLocked(next)); err != nil {
			log.Info("menu action refused", zap.Error(err))
			return
		}
		s.menu.ToggleLock()

	case menu.ActionReset:
		if s.gate.State() != gate.Ready {
			log.Info("menu action refused", zap.Error(gate.ErrNotReady))
			return
		}
		s.background(func(ctx context.Context) {
			ok, err := s.platform.Confirm(ctx, gate.DiscardTitle, gate.DiscardMessage)
			if err != nil || !ok {
				log.Debug("reset not confirmed", zap.Error(err))
				return
			}
			d, _ := directive.Command(directive.KindReset)
			if err := s.gate.Send(d); err != nil {
				log.Info("menu action refused", zap.Error(err))
			}
		})

	case menu.ActionLoadJSON:
		s.background(func(ctx context.Context) {
			path, size, err := s.platform.SelectFile(ctx)
			if err != nil {
				if !errors.Is(err, ErrNoSelection) && ctx.Err() == nil {
					log.Warn("file selection failed", zap.Error(err))
				}
				return
			}
			_ = s.LoadFile(path, size)
		})

	default:
		d, ok := a.Directive()
		if !ok {
			log.Warn("unknown menu action")
			return
		}
		if err := s.gate.Send(d); err != nil {
			log.Info("menu action refused", zap.Error(err))
		}
	}
}

func (s *Surface) background(fn func(ctx context.Context)) {
	if s.bgCtx.Err() != nil {
		return
	}
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		fn(s.bgCtx)
	}()
}

// LoadFile reads a user-selected document and hands it to the content.
// Failures are shown as a notice and returned.
func (s *Surface) LoadFile(path string, reportedSize int64) error {
	text, err := s.files.Load(path, reportedSize, storage.OpenFile(path))
	if err != nil {
		s.log.Warn("load rejected", zap.String("path", path), zap.Error(err))
		s.caps.Notify(storage.Notice(err))
		return err
	}
	if err := s.gate.Send(directive.Load(text)); err != nil {
		s.log.Info("load refused", zap.String("path", path), zap.Error(err))
		return err
	}
	s.log.Info("document loaded", zap.String("path", path), zap.Int("bytes", len(text)))
	return nil
}

// Handoff processes an external hand-off reference.
func (s *Surface) Handoff(ctx context.Context, ref string) (string, error) {
	outcome, err := s.gate.Handoff(ctx, ref)
	return outcome.String(), err
}

// MenuAction activates a menu entry by name, as the control socket does.
func (s *Surface) MenuAction(_ context.Context, name string) error {
	a, err := menu.ParseAction(name)
	if err != nil {
		return err
	}
	s.platform.DispatchToMain(func() { s.OnMenuAction(a) })
	return nil
}

// Load reads a document named by the control socket.
func (s *Surface) Load(_ context.Context, path string, size int64) error {
	return s.LoadFile(path, size)
}
