package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jeanpaulrichter/phasorviz/config"
	"github.com/jeanpaulrichter/phasorviz/control"
	"github.com/jeanpaulrichter/phasorviz/host"
	"github.com/jeanpaulrichter/phasorviz/rpc"
)

func TestTerminalAutoAnswers(t *testing.T) {
	ctx := context.Background()

	ok, err := newTerminal(config.ConfirmYes).Confirm(ctx, "Warning", "Discard current phasors?")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = newTerminal(config.ConfirmNo).Confirm(ctx, "Warning", "Discard current phasors?")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = newTerminal(config.ConfirmNo).SelectFile(ctx)
	assert.ErrorIs(t, err, host.ErrNoSelection)
}

func TestValidateDocumentPath(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "doc.json")
	require.NoError(t, os.WriteFile(doc, []byte("{}"), 0o644))

	assert.NoError(t, validateDocumentPath(""))
	assert.NoError(t, validateDocumentPath(doc))
	assert.Error(t, validateDocumentPath(dir))
	assert.Error(t, validateDocumentPath(filepath.Join(dir, "missing.json")))
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "x.json"), expandHome("~/x.json"))
	assert.Equal(t, "/tmp/x.json", expandHome("/tmp/x.json"))
}

func TestNewPlatformRejectsUnknown(t *testing.T) {
	c := config.DefaultConfig()
	c.Platform = "gtk"
	_, err := newPlatform(c, nil, runOptions{}, zap.NewNop())
	assert.Error(t, err)

	c.Platform = config.PlatformBrowser
	_, err = newPlatform(c, nil, runOptions{}, zap.NewNop())
	assert.Error(t, err)
}

func TestAsyncCallAnswersLater(t *testing.T) {
	release := make(chan struct{})
	replies := make(chan string, 2)
	bind := asyncCall(func(req []byte) []byte {
		<-release
		if strings.Contains(string(req), `"id"`) {
			return []byte(`{"jsonrpc":"2.0","id":1,"result":null}`)
		}
		return nil
	}, func(js string) { replies <- js })

	// The binding returns while the call is still blocked.
	bind(`{"jsonrpc":"2.0","id":1,"method":"save","params":["a.json","{}"]}`)
	bind(`{"jsonrpc":"2.0","method":"notify","params":["hi"]}`)
	assert.Empty(t, replies)

	close(release)
	select {
	case js := <-replies:
		assert.Equal(t, rpc.ReplyScript([]byte(`{"jsonrpc":"2.0","id":1,"result":null}`)), js)
	case <-time.After(5 * time.Second):
		t.Fatal("no reply")
	}
	select {
	case js := <-replies:
		t.Fatalf("notification answered: %s", js)
	case <-time.After(50 * time.Millisecond):
	}
}

// readUntil reads bridge messages until one of the given type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) map[string]json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg map[string]json.RawMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if string(msg["type"]) == `"`+typ+`"` {
			return msg
		}
	}
}

func TestBrowserHostEndToEnd(t *testing.T) {
	content := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(content, "index.html"),
		[]byte("<html><head></head><body></body></html>"), 0o644))

	c := config.DefaultConfig()
	c.Platform = config.PlatformBrowser
	c.Content = config.ContentConfig{Dir: content}
	c.Storage.DownloadsDir = t.TempDir()
	c.Confirm.Auto = config.ConfirmNo

	configPath = filepath.Join(t.TempDir(), "config.yml")
	logger = zap.NewNop()
	logLevel = zap.NewAtomicLevel()

	a, err := newApp(c, zap.NewNop(), "https://phasorviz.de/s/ABC123", runOptions{})
	require.NoError(t, err)

	sockPath := filepath.Join(t.TempDir(), "phasorviz.sock")
	ctrl, err := control.Listen(sockPath, a.surface, nil)
	require.NoError(t, err)

	url, err := a.listen()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.run(ctx, url, ctrl, runOptions{}) }()
	defer func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Fatal("host did not stop")
		}
	}()

	wsURL := "ws" + strings.TrimPrefix(strings.TrimSuffix(url, "/"), "http") + "/bridge"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	info := readUntil(t, conn, "info")
	assert.Contains(t, string(info["info"]), `"locale"`)
	readUntil(t, conn, "menu")

	require.NoError(t, conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": 1, "method": "ready"}))
	d := readUntil(t, conn, "directive")
	assert.JSONEq(t, `"download"`, string(d["name"]))
	assert.JSONEq(t, `["ABC123"]`, string(d["args"]))

	// A second instance hands its reference over; confirmations answer no.
	outcome, err := forward(ctx, sockPath, "https://phasorviz.de/s/XYZ789")
	require.NoError(t, err)
	assert.Equal(t, "declined", outcome)

	_, err = control.Listen(sockPath, a.surface, nil)
	assert.ErrorIs(t, err, control.ErrAlreadyRunning)

	require.NoError(t, control.NewClient(sockPath).MenuAction(ctx, "add"))
	d = readUntil(t, conn, "directive")
	assert.JSONEq(t, `"add"`, string(d["name"]))
}
