package rpc

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/jeanpaulrichter/phasorviz/capability"
)

// HostScript defines window.APP and the host-owned toolbar inside the content
// page. Native platforms inject it before any page script runs; the browser
// platform serves it next to the content.
//
//go:embed host.js
var HostScript string

// Binding names the platforms install on the page.
const (
	CallBinding = "__phasorvizCall"
	MenuBinding = "__phasorvizMenu"
)

// hostInfo is the wire form of capability.Info cached by the shim for the
// synchronous getters.
type hostInfo struct {
	Device  string `json:"device"`
	Locale  string `json:"locale"`
	Version int    `json:"version"`
}

// InfoJSON is the host description as the shim caches it.
func InfoJSON(info capability.Info) json.RawMessage {
	data, _ := json.Marshal(hostInfo{Device: info.Device, Locale: info.Locale, Version: info.VersionCode})
	return data
}

// InfoScript seeds the shim's cache; it must run before HostScript.
func InfoScript(info capability.Info) string {
	return fmt.Sprintf("window.__phasorvizInfo = %s;", InfoJSON(info))
}

// MenuScript renders items in the toolbar.
func MenuScript(menuJSON string) string {
	return fmt.Sprintf("window.__phasorvizHost && window.__phasorvizHost.menu(%s);", menuJSON)
}

// ReplyScript hands a JSON-RPC response to the shim, for bindings that answer
// asynchronously.
func ReplyScript(resp []byte) string {
	return fmt.Sprintf("window.__phasorvizHost && window.__phasorvizHost.receive(%s);", resp)
}

// NoticeScript shows a toast.
func NoticeScript(msg string) string {
	data, _ := json.Marshal(msg)
	return fmt.Sprintf("window.__phasorvizHost && window.__phasorvizHost.notice(%s);", data)
}
