//go:build integration

package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jeanpaulrichter/phasorviz/capability"
	"github.com/jeanpaulrichter/phasorviz/config"
	"github.com/jeanpaulrichter/phasorviz/gate"
	"github.com/jeanpaulrichter/phasorviz/host"
	"github.com/jeanpaulrichter/phasorviz/storage"
)

// The page records what the host did to it.
const recordingPage = `<html><head></head><body><script>
window.phasorviz = { init: function () { window.inited = true; } };
var shim = window.__phasorvizHost;
var show = shim.menu;
shim.menu = function (items) { window.menuItems = items; show(items); };
</script></body></html>`

func TestHeadlessReadyDeliversInitAndMenu(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, recordingPage)
	}))
	defer ts.Close()

	p := newHeadlessPlatform(config.HeadlessConfig{Bin: os.Getenv("PHASORVIZ_CHROME")}, newTerminal(config.ConfirmNo), zap.NewNop())
	s := host.New(host.Options{
		Platform: p,
		Files:    storage.New(storage.Config{DownloadsDir: t.TempDir(), Subdir: "phasorviz"}, nil),
		Info:     capability.Info{Device: "box", Locale: "deu", VersionCode: 7},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, ts.URL) }()
	defer func() {
		cancel()
		if err := <-done; err != nil {
			t.Logf("surface stopped: %v", err)
		}
	}()

	require.Eventually(t, func() bool { return s.State() == gate.Ready }, 30*time.Second, 50*time.Millisecond)

	eval := func(js string) bool {
		obj, err := p.page.Eval(js)
		return err == nil && obj.Value.Bool()
	}
	require.Eventually(t, func() bool { return eval(`() => window.inited === true`) }, 10*time.Second, 50*time.Millisecond)
	require.Eventually(t, func() bool {
		return eval(`() => Array.isArray(window.menuItems) && window.menuItems.length > 0`)
	}, 10*time.Second, 50*time.Millisecond)

	assert.True(t, eval(`() => APP.getLanguage() === "deu" && APP.getVersion() === 7`))
}
