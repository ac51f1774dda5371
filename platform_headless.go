package main

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"
	"go.uber.org/zap"

	"github.com/jeanpaulrichter/phasorviz/config"
	"github.com/jeanpaulrichter/phasorviz/directive"
	"github.com/jeanpaulrichter/phasorviz/host"
	"github.com/jeanpaulrichter/phasorviz/rpc"
	"github.com/jeanpaulrichter/phasorviz/uistate"
)

// HeadlessPlatform drives the content in a Chrome instance over CDP. With
// show_browser the window is visible and closing it quits the host.
type HeadlessPlatform struct {
	cfg  config.HeadlessConfig
	term *terminal
	loop *uistate.Loop
	log  *zap.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	launch   *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	gone     chan struct{}
	unexpose []func() error
}

func newHeadlessPlatform(cfg config.HeadlessConfig, term *terminal, log *zap.Logger) *HeadlessPlatform {
	ctx, cancel := context.WithCancel(context.Background())
	return &HeadlessPlatform{
		cfg:    cfg,
		term:   term,
		loop:   uistate.NewLoop(),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		gone:   make(chan struct{}),
	}
}

func (p *HeadlessPlatform) Init(b host.Bindings) (err error) {
	defer func() {
		if err != nil {
			_ = p.Close()
		}
	}()

	p.launch = launcher.New().Headless(!p.cfg.ShowBrowser)
	if p.cfg.Bin != "" {
		p.launch = p.launch.Bin(p.cfg.Bin)
	}
	controlURL, err := p.launch.Launch()
	if err != nil {
		return fmt.Errorf("launch chrome: %w", err)
	}

	p.browser = rod.New().ControlURL(controlURL).Context(p.ctx)
	if err := p.browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}

	p.page, err = p.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}

	stop, err := p.page.Expose(rpc.CallBinding, func(req gson.JSON) (interface{}, error) {
		resp := b.Call([]byte(req.Str()))
		if resp == nil {
			return nil, nil
		}
		return string(resp), nil
	})
	if err != nil {
		return fmt.Errorf("expose %s: %w", rpc.CallBinding, err)
	}
	p.unexpose = append(p.unexpose, stop)

	stop, err = p.page.Expose(rpc.MenuBinding, func(req gson.JSON) (interface{}, error) {
		b.Menu(req.Int())
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("expose %s: %w", rpc.MenuBinding, err)
	}
	p.unexpose = append(p.unexpose, stop)

	if _, err := p.page.EvalOnNewDocument(rpc.InfoScript(b.Info) + "\n" + rpc.HostScript); err != nil {
		return fmt.Errorf("install host script: %w", err)
	}

	if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(p.browser); err != nil {
		p.log.Debug("target discovery unavailable", zap.Error(err))
	}
	target := p.page.TargetID
	wait := p.browser.EachEvent(func(e *proto.TargetTargetDestroyed) bool {
		return e.TargetID == target
	})
	go func() {
		wait()
		close(p.gone)
	}()
	return nil
}

func (p *HeadlessPlatform) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-p.gone:
			if ctx.Err() == nil {
				p.log.Info("browser page closed")
			}
			cancel()
		case <-ctx.Done():
		}
	}()
	return p.loop.Run(ctx)
}

func (p *HeadlessPlatform) Navigate(url string) error {
	if err := p.page.Navigate(url); err != nil {
		return err
	}
	p.log.Info("page opened", zap.String("url", url), zap.Bool("visible", p.cfg.ShowBrowser))
	return nil
}

// Deliver evaluates the directive in the page. Safe inside a binding callback.
func (p *HeadlessPlatform) Deliver(d directive.Directive) error {
	_, err := p.page.Eval("() => " + d.Render())
	return err
}

func (p *HeadlessPlatform) UpdateMenu(menuJSON string) {
	p.eval(rpc.MenuScript(menuJSON))
}

func (p *HeadlessPlatform) Notify(msg string) {
	p.log.Info("notice", zap.String("message", msg))
	p.eval(rpc.NoticeScript(msg))
}

func (p *HeadlessPlatform) eval(js string) {
	if _, err := p.page.Eval("() => { " + js + " }"); err != nil {
		p.log.Debug("eval failed", zap.Error(err))
	}
}

func (p *HeadlessPlatform) Confirm(ctx context.Context, title, message string) (bool, error) {
	return p.term.Confirm(ctx, title, message)
}

func (p *HeadlessPlatform) SelectFile(ctx context.Context) (string, int64, error) {
	return p.term.SelectFile(ctx)
}

func (p *HeadlessPlatform) DispatchToMain(fn func()) { p.loop.Dispatch(fn) }

func (p *HeadlessPlatform) Close() error {
	for _, stop := range p.unexpose {
		_ = stop()
	}
	var err error
	if p.browser != nil {
		err = p.browser.Close()
	}
	p.cancel()
	if p.launch != nil {
		p.launch.Kill()
	}
	return err
}
