package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/jeanpaulrichter/phasorviz/directive"
	"github.com/jeanpaulrichter/phasorviz/host"
	"github.com/jeanpaulrichter/phasorviz/uistate"
	"github.com/jeanpaulrichter/phasorviz/wsbridge"
)

// callFunc adapts a binding to wsbridge.Dispatcher.
type callFunc func([]byte) []byte

func (f callFunc) HandleBytes(data []byte) []byte { return f(data) }

// BrowserPlatform renders the content in the system browser. Directives,
// notices and the menu travel over the websocket bridge; the terminal does
// confirmations and file selection.
type BrowserPlatform struct {
	server *wsbridge.Server
	loop   *uistate.Loop
	term   *terminal
	open   bool
	log    *zap.Logger
}

func newBrowserPlatform(server *wsbridge.Server, term *terminal, open bool, log *zap.Logger) *BrowserPlatform {
	return &BrowserPlatform{
		server: server,
		loop:   uistate.NewLoop(),
		term:   term,
		open:   open,
		log:    log,
	}
}

func (p *BrowserPlatform) Init(b host.Bindings) error {
	p.server.Bind(callFunc(b.Call), b.Menu, b.Info)
	return nil
}

func (p *BrowserPlatform) Run(ctx context.Context) error { return p.loop.Run(ctx) }

func (p *BrowserPlatform) Navigate(url string) error {
	p.log.Info("editor available", zap.String("url", url))
	if !p.open {
		return nil
	}
	if err := openURL(url); err != nil {
		p.log.Warn("could not open browser", zap.Error(err))
	}
	return nil
}

func (p *BrowserPlatform) Deliver(d directive.Directive) error { return p.server.Deliver(d) }
func (p *BrowserPlatform) UpdateMenu(menuJSON string)          { p.server.UpdateMenu(menuJSON) }
func (p *BrowserPlatform) Notify(msg string)                   { p.server.Notify(msg) }
func (p *BrowserPlatform) DispatchToMain(fn func())            { p.loop.Dispatch(fn) }
func (p *BrowserPlatform) Close() error                        { return nil }

func (p *BrowserPlatform) Confirm(ctx context.Context, title, message string) (bool, error) {
	return p.term.Confirm(ctx, title, message)
}

func (p *BrowserPlatform) SelectFile(ctx context.Context) (string, int64, error) {
	return p.term.SelectFile(ctx)
}
