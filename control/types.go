// Package control lets a second invocation of the host talk to the running
// one over a per-user unix socket: hand-offs, menu actions and file loads.
package control

import (
	"context"
	"os"
	"path/filepath"
)

// Request types.
const (
	TypeHandoff    = "Handoff"
	TypeMenuAction = "MenuAction"
	TypeLoad       = "Load"
	TypePing       = "Ping"
)

// Response types.
const (
	TypeOK    = "OK"
	TypeError = "Error"
)

// Request is the wire format for requests sent over the socket.
type Request struct {
	Type   string `json:"type"`             // one of the Type* request constants
	Ref    string `json:"ref,omitempty"`    // hand-off reference for Handoff
	Action string `json:"action,omitempty"` // menu action name for MenuAction
	Path   string `json:"path,omitempty"`   // file for Load
	Size   int64  `json:"size,omitempty"`   // reported size for Load
}

// Response is the wire format for responses sent over the socket.
type Response struct {
	Type    string `json:"type"`              // "OK" or "Error"
	Code    int    `json:"code,omitempty"`    // error code
	Message string `json:"message,omitempty"` // outcome or error message
}

// Router handles control requests. Implemented by the host.
type Router interface {
	Handoff(ctx context.Context, ref string) (string, error)
	MenuAction(ctx context.Context, name string) error
	Load(ctx context.Context, path string, size int64) error
}

// SocketPath returns the path to the control socket.
// Creates the parent directory if it does not exist.
func SocketPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir, _ = os.UserHomeDir()
	}
	dir := filepath.Join(configDir, "phasorviz")
	_ = os.MkdirAll(dir, 0o755)
	return filepath.Join(dir, "phasorviz.sock")
}
