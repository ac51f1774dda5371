//go:build webview

package main

import (
	"context"
	"errors"
	"os"
	"runtime"
	"sync"

	"github.com/sqweek/dialog"
	webview "github.com/webview/webview_go"
	"go.uber.org/zap"

	"github.com/jeanpaulrichter/phasorviz/directive"
	"github.com/jeanpaulrichter/phasorviz/host"
	"github.com/jeanpaulrichter/phasorviz/rpc"
)

var errWindowClosed = errors.New("window closed")

func init() {
	// GTK and Cocoa want all UI work on the main thread.
	runtime.LockOSThread()
}

// WebviewPlatform renders the content in a native webview window. Dialogs
// are native too.
type WebviewPlatform struct {
	log *zap.Logger

	mu sync.Mutex
	w  webview.WebView
}

func newWebviewPlatform(log *zap.Logger) (host.Platform, error) {
	return &WebviewPlatform{log: log}, nil
}

func (p *WebviewPlatform) Init(b host.Bindings) error {
	w := webview.New(false)
	if w == nil {
		return errors.New("webview unavailable")
	}
	w.SetTitle("phasorviz")
	w.SetSize(1024, 768, webview.HintNone)

	w.Init(rpc.InfoScript(b.Info) + "\n" + rpc.HostScript)

	// Bound functions run on the UI thread; capability calls touch the disk,
	// so they answer later.
	if err := w.Bind(rpc.CallBinding, asyncCall(b.Call, p.eval)); err != nil {
		w.Destroy()
		return err
	}
	if err := w.Bind(rpc.MenuBinding, func(id int) { b.Menu(id) }); err != nil {
		w.Destroy()
		return err
	}

	p.mu.Lock()
	p.w = w
	p.mu.Unlock()
	return nil
}

func (p *WebviewPlatform) view() webview.WebView {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.w
}

func (p *WebviewPlatform) Run(ctx context.Context) error {
	w := p.view()
	stop := context.AfterFunc(ctx, func() {
		w.Dispatch(w.Terminate)
	})
	defer stop()
	w.Run()
	return nil
}

func (p *WebviewPlatform) Navigate(url string) error {
	p.view().Navigate(url)
	return nil
}

func (p *WebviewPlatform) Deliver(d directive.Directive) error {
	if p.view() == nil {
		return errWindowClosed
	}
	p.eval(d.Render())
	return nil
}

// UpdateMenu runs on the UI thread already.
func (p *WebviewPlatform) UpdateMenu(menuJSON string) {
	if w := p.view(); w != nil {
		w.Eval(rpc.MenuScript(menuJSON))
	}
}

func (p *WebviewPlatform) Notify(msg string) {
	p.eval(rpc.NoticeScript(msg))
}

func (p *WebviewPlatform) eval(js string) {
	p.DispatchToMain(func() {
		if w := p.view(); w != nil {
			w.Eval(js)
		}
	})
}

// Confirm shows a native yes/no box. It must not be called on the UI thread.
func (p *WebviewPlatform) Confirm(ctx context.Context, title, message string) (bool, error) {
	if p.view() == nil {
		return false, errWindowClosed
	}
	answer := make(chan bool, 1)
	p.DispatchToMain(func() {
		answer <- dialog.Message("%s", message).Title(title).YesNo()
	})
	select {
	case ok := <-answer:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

type fileChoice struct {
	path string
	err  error
}

// SelectFile shows a native open dialog filtered to JSON.
func (p *WebviewPlatform) SelectFile(ctx context.Context) (string, int64, error) {
	if p.view() == nil {
		return "", 0, errWindowClosed
	}
	choice := make(chan fileChoice, 1)
	p.DispatchToMain(func() {
		path, err := dialog.File().Filter("Phasor drawings", "json").Title("Load").Load()
		choice <- fileChoice{path, err}
	})

	var c fileChoice
	select {
	case c = <-choice:
	case <-ctx.Done():
		return "", 0, ctx.Err()
	}
	if errors.Is(c.err, dialog.ErrCancelled) || (c.err == nil && c.path == "") {
		return "", 0, host.ErrNoSelection
	}
	if c.err != nil {
		return "", 0, c.err
	}
	fi, err := os.Stat(c.path)
	if err != nil {
		return "", 0, err
	}
	return c.path, fi.Size(), nil
}

func (p *WebviewPlatform) DispatchToMain(fn func()) {
	w := p.view()
	if w == nil {
		p.log.Debug("dispatch before init dropped")
		return
	}
	w.Dispatch(fn)
}

func (p *WebviewPlatform) Close() error {
	p.mu.Lock()
	w := p.w
	p.w = nil
	p.mu.Unlock()
	if w != nil {
		w.Destroy()
	}
	return nil
}
