// Package directive builds the instructions the host sends into the embedded
// phasorviz content.
//
// A Directive is a structured value; it is rendered to a call on the content's
// global entry point only at the edge, with every argument encoded as a JSON
// literal so that user data cannot escape the call.
package directive

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Global is the name of the content's entry-point object.
const Global = "phasorviz"

// Kind names a content entry point.
type Kind string

const (
	KindInit        Kind = "init"
	KindDownload    Kind = "download"
	KindSetLocked   Kind = "setlocked"
	KindAdd         Kind = "add"
	KindEdit        Kind = "dlgEdit"
	KindDelete      Kind = "dlgDel"
	KindReset       Kind = "reset"
	KindInfo        Kind = "dlgInfo"
	KindSettings    Kind = "dlgSettings"
	KindSave        Kind = "dlgSave"
	KindUpload      Kind = "dlgUpload"
	KindDownloadDlg Kind = "dlgDownload"
	KindLoad        Kind = "load"
)

// commandKinds take no arguments and may be built with Command.
var commandKinds = map[Kind]bool{
	KindAdd:         true,
	KindEdit:        true,
	KindDelete:      true,
	KindReset:       true,
	KindInfo:        true,
	KindSettings:    true,
	KindUpload:      true,
	KindDownloadDlg: true,
}

// Format is an export format understood by dlgSave.
type Format string

const (
	FormatPNG  Format = "png"
	FormatSVG  Format = "svg"
	FormatJSON Format = "json"
)

// Directive is a single host → content instruction.
type Directive struct {
	kind Kind
	args []any
}

// Init asks the content to start with an empty document.
func Init() Directive { return Directive{kind: KindInit} }

// Download asks the content to fetch the shared document identified by code.
// Only a validated Code can be passed, see ParseCode.
func Download(code Code) Directive {
	return Directive{kind: KindDownload, args: []any{string(code)}}
}

// SetLocked tells the content whether the drawing is locked.
func SetLocked(locked bool) Directive {
	return Directive{kind: KindSetLocked, args: []any{locked}}
}

// Command builds one of the argument-less menu directives.
func Command(kind Kind) (Directive, error) {
	if !commandKinds[kind] {
		return Directive{}, fmt.Errorf("directive %q is not a menu command", kind)
	}
	return Directive{kind: kind}, nil
}

// Save opens the content's save dialog for the given format.
func Save(format Format) (Directive, error) {
	switch format {
	case FormatPNG, FormatSVG, FormatJSON:
		return Directive{kind: KindSave, args: []any{string(format)}}, nil
	}
	return Directive{}, fmt.Errorf("unknown save format %q", format)
}

// Load hands raw document text to the content.
func Load(text string) Directive {
	return Directive{kind: KindLoad, args: []any{text}}
}

// Kind returns the entry point the directive targets.
func (d Directive) Kind() Kind { return d.kind }

// Args returns a copy of the directive arguments.
func (d Directive) Args() []any {
	out := make([]any, len(d.args))
	copy(out, d.args)
	return out
}

// IsZero reports whether d was never built.
func (d Directive) IsZero() bool { return d.kind == "" }

// Render returns the directive as a single JavaScript call expression,
// e.g. phasorviz.download("ABC123").
func (d Directive) Render() string {
	var b strings.Builder
	b.WriteString(Global)
	b.WriteByte('.')
	b.WriteString(string(d.kind))
	b.WriteByte('(')
	for i, arg := range d.args {
		if i > 0 {
			b.WriteByte(',')
		}
		// encoding/json escapes quotes, <, >, & and U+2028/U+2029, which keeps
		// the literal inside the call in both script and HTML contexts.
		data, err := json.Marshal(arg)
		if err != nil {
			data = []byte("null")
		}
		b.Write(data)
	}
	b.WriteByte(')')
	return b.String()
}

func (d Directive) String() string { return d.Render() }

// Message is the wire form used by transports that deliver directives as data
// instead of script.
type Message struct {
	Name string `json:"name"`
	Args []any  `json:"args"`
}

// Message returns the structured wire form of d.
func (d Directive) Message() Message {
	return Message{Name: string(d.kind), Args: d.Args()}
}
