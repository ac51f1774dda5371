package main

import (
	"fmt"
	"os/exec"
	"runtime"

	"go.uber.org/zap"

	"github.com/jeanpaulrichter/phasorviz/config"
	"github.com/jeanpaulrichter/phasorviz/host"
	"github.com/jeanpaulrichter/phasorviz/rpc"
	"github.com/jeanpaulrichter/phasorviz/wsbridge"
)

// newPlatform builds the platform selected by cfg.Platform. server is only
// used by the browser platform.
func newPlatform(cfg *config.Config, server *wsbridge.Server, opts runOptions, log *zap.Logger) (host.Platform, error) {
	term := newTerminal(cfg.Confirm.Auto)
	switch cfg.Platform {
	case config.PlatformHeadless:
		return newHeadlessPlatform(cfg.Headless, term, log), nil
	case config.PlatformBrowser:
		if server == nil {
			return nil, fmt.Errorf("browser platform needs the content server")
		}
		return newBrowserPlatform(server, term, opts.openBrowser, log), nil
	case config.PlatformWebview:
		return newWebviewPlatform(log)
	}
	return nil, fmt.Errorf("unknown platform %q", cfg.Platform)
}

// asyncCall returns a page binding that hands each request to call on its own
// goroutine and returns at once. The response, if any, reaches the page as a
// script passed to reply.
func asyncCall(call func(req []byte) []byte, reply func(js string)) func(req string) {
	return func(req string) {
		go func() {
			if resp := call([]byte(req)); resp != nil {
				reply(rpc.ReplyScript(resp))
			}
		}()
	}
}

// openURL opens url in the user's default browser.
func openURL(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}
