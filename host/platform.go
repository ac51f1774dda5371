package host

import (
	"context"
	"errors"

	"github.com/jeanpaulrichter/phasorviz/capability"
	"github.com/jeanpaulrichter/phasorviz/directive"
)

// ErrNoSelection is returned by SelectFile when the user picks nothing.
var ErrNoSelection = errors.New("no file selected")

// Platform abstracts how the content is rendered and where the chrome lives.
//
// Run owns the UI goroutine. DispatchToMain, Deliver, Notify, Confirm and
// SelectFile may be called from any goroutine; UpdateMenu is only called on
// the UI goroutine.
type Platform interface {
	Init(b Bindings) error
	Run(ctx context.Context) error
	Navigate(url string) error
	Deliver(d directive.Directive) error
	UpdateMenu(menuJSON string)
	Notify(msg string)
	Confirm(ctx context.Context, title, message string) (bool, error)
	SelectFile(ctx context.Context) (path string, size int64, err error)
	DispatchToMain(fn func())
	Close() error
}

// Bindings are the host entry points a platform wires into the page.
type Bindings struct {
	Call func(request []byte) []byte // JSON-RPC request in, response out (nil for notifications)
	Menu func(action int)            // toolbar activation, any goroutine
	Info capability.Info
}
