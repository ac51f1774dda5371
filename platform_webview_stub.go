//go:build !webview

package main

import (
	"errors"

	"go.uber.org/zap"

	"github.com/jeanpaulrichter/phasorviz/host"
)

func newWebviewPlatform(*zap.Logger) (host.Platform, error) {
	return nil, errors.New("built without webview support: rebuild with -tags webview, or set platform to headless or browser")
}
