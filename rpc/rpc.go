// Package rpc maps JSON-RPC 2.0 requests from the content onto host
// capabilities. Transports hand it raw request bytes and write back whatever
// it returns.
package rpc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request is a JSON-RPC request. A request without an id is a notification.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether no response is expected.
func (r *Request) IsNotification() bool { return len(r.ID) == 0 }

// Response is a JSON-RPC response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

// Capabilities is the host side of the bridge.
type Capabilities interface {
	Notify(msg string) bool
	SetEditingEnabled(enabled bool)
	DescribeDevice() string
	Locale() string
	AppVersion() int
	Save(filename, payload string) error
	Ready() error
}

// Method names.
const (
	MethodNotify            = "notify"
	MethodSetEditingEnabled = "setEditingEnabled"
	MethodDescribeDevice    = "describeDevice"
	MethodLocale            = "locale"
	MethodAppVersion        = "appVersion"
	MethodSave              = "save"
	MethodReady             = "ready"
)

// aliases are the method names of the old APP interface.
var aliases = map[string]string{
	"showToast":       MethodNotify,
	"enableButtons":   MethodSetEditingEnabled,
	"getDeviceString": MethodDescribeDevice,
	"getLanguage":     MethodLocale,
	"getVersion":      MethodAppVersion,
	"saveFile":        MethodSave,
}

// Handler dispatches requests to Capabilities.
type Handler struct {
	caps Capabilities
	log  *zap.Logger
}

// NewHandler creates a Handler.
func NewHandler(caps Capabilities, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{caps: caps, log: log}
}

// HandleBytes decodes one request and returns the encoded response, or nil
// for a notification.
func (h *Handler) HandleBytes(data []byte) []byte {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		h.log.Debug("failed to parse request", zap.Error(err))
		return encode(&Response{
			JSONRPC: "2.0",
			ID:      json.RawMessage("null"),
			Error:   &Error{Code: CodeParseError, Message: "parse error: " + err.Error()},
		})
	}
	resp := h.Handle(&req)
	if resp == nil {
		return nil
	}
	return encode(resp)
}

// Serve reads newline-delimited requests from r and writes responses to w
// until r is exhausted.
func (h *Handler) Serve(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		out := h.HandleBytes(line)
		if out == nil {
			continue
		}
		if _, err := w.Write(append(out, '\n')); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read requests: %w", err)
	}
	return nil
}

// Handle runs one request. It returns nil for notifications.
func (h *Handler) Handle(req *Request) *Response {
	result, rerr := h.dispatch(req)
	if req.IsNotification() {
		if rerr != nil {
			h.log.Debug("notification failed", zap.String("method", req.Method), zap.Error(rerr))
		}
		return nil
	}
	resp := &Response{JSONRPC: "2.0", ID: req.ID}
	if rerr != nil {
		resp.Error = rerr
		return resp
	}
	raw, err := json.Marshal(result)
	if err != nil {
		resp.Error = &Error{Code: CodeInternalError, Message: err.Error()}
		return resp
	}
	resp.Result = raw
	return resp
}

func (h *Handler) dispatch(req *Request) (any, *Error) {
	if req.JSONRPC != "2.0" || req.Method == "" {
		return nil, &Error{Code: CodeInvalidRequest, Message: "invalid request"}
	}
	method := req.Method
	if m, ok := aliases[method]; ok {
		method = m
	}

	switch method {
	case MethodNotify:
		var msg string
		if err := decodeParams(req.Params, []string{"message"}, &msg); err != nil {
			return nil, invalidParams(err)
		}
		h.caps.Notify(msg)
		return nil, nil

	case MethodSetEditingEnabled:
		var enabled bool
		if err := decodeParams(req.Params, []string{"enabled"}, &enabled); err != nil {
			return nil, invalidParams(err)
		}
		h.caps.SetEditingEnabled(enabled)
		return nil, nil

	case MethodDescribeDevice:
		return h.caps.DescribeDevice(), nil

	case MethodLocale:
		return h.caps.Locale(), nil

	case MethodAppVersion:
		return h.caps.AppVersion(), nil

	case MethodSave:
		var filename, payload string
		if err := decodeParams(req.Params, []string{"filename", "payload"}, &filename, &payload); err != nil {
			return nil, invalidParams(err)
		}
		if err := h.caps.Save(filename, payload); err != nil {
			return nil, &Error{Code: CodeInternalError, Message: err.Error()}
		}
		return nil, nil

	case MethodReady:
		if err := h.caps.Ready(); err != nil {
			h.log.Warn("ready failed", zap.Error(err))
			return nil, &Error{Code: CodeInternalError, Message: err.Error()}
		}
		return nil, nil

	default:
		return nil, &Error{Code: CodeMethodNotFound, Message: "method not found: " + req.Method}
	}
}

var errParamCount = errors.New("wrong number of params")

// decodeParams fills dst from positional (array) or named (object) params.
func decodeParams(raw json.RawMessage, names []string, dst ...any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return errParamCount
	}
	switch raw[0] {
	case '[':
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil {
			return err
		}
		if len(list) != len(dst) {
			return errParamCount
		}
		for i, v := range list {
			if err := json.Unmarshal(v, dst[i]); err != nil {
				return fmt.Errorf("param %d: %w", i, err)
			}
		}
	case '{':
		var named map[string]json.RawMessage
		if err := json.Unmarshal(raw, &named); err != nil {
			return err
		}
		for i, name := range names {
			v, ok := named[name]
			if !ok {
				return fmt.Errorf("missing param %q", name)
			}
			if err := json.Unmarshal(v, dst[i]); err != nil {
				return fmt.Errorf("param %q: %w", name, err)
			}
		}
	default:
		return errors.New("params must be an array or object")
	}
	return nil
}

func invalidParams(err error) *Error {
	return &Error{Code: CodeInvalidParams, Message: "invalid params: " + err.Error()}
}

func encode(resp *Response) []byte {
	data, err := json.Marshal(resp)
	if err != nil {
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"encode response"}}`)
	}
	return data
}
