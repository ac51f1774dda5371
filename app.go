package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jeanpaulrichter/phasorviz/capability"
	"github.com/jeanpaulrichter/phasorviz/config"
	"github.com/jeanpaulrichter/phasorviz/control"
	"github.com/jeanpaulrichter/phasorviz/host"
	"github.com/jeanpaulrichter/phasorviz/storage"
	"github.com/jeanpaulrichter/phasorviz/wsbridge"
)

// runOptions are per-command overrides of the config.
type runOptions struct {
	platform    config.PlatformType // empty keeps cfg.Platform
	openBrowser bool                // browser platform: open the system browser
	stdio       bool                // also answer capability calls on stdin/stdout
}

// app is one host process: a surface, its platform, the content server and
// the control socket.
type app struct {
	cfg      *config.Config
	log      *zap.Logger
	server   *wsbridge.Server // nil when native platforms load content.url
	platform host.Platform
	surface  *host.Surface
}

func newApp(cfg *config.Config, log *zap.Logger, handoff string, opts runOptions) (*app, error) {
	if opts.platform != "" {
		cfg.Platform = opts.platform
	}
	if opts.stdio && cfg.Confirm.Auto == config.ConfirmAsk {
		// stdin belongs to the RPC stream.
		log.Info("stdio mode: confirmations answered with no")
		cfg.Confirm.Auto = config.ConfirmNo
	}

	a := &app{cfg: cfg, log: log}
	if cfg.Platform == config.PlatformBrowser || cfg.Content.URL == "" {
		if cfg.Content.Dir == "" {
			return nil, errors.New("content.dir is required unless a native platform loads content.url")
		}
		a.server = wsbridge.New(wsbridge.Config{
			Addr:       cfg.Server.Addr,
			ContentDir: cfg.Content.Dir,
			AllowAll:   cfg.Server.AllowAllOrigins,
		}, log.Named("wsbridge"))
	}

	p, err := newPlatform(cfg, a.server, opts, log.Named("platform"))
	if err != nil {
		return nil, err
	}
	a.platform = p

	files := storage.New(storage.Config{
		DownloadsDir: cfg.Storage.DownloadsDir,
		Subdir:       cfg.Storage.Subdir,
		MaxLoadBytes: cfg.Storage.MaxLoadBytes,
	}, log.Named("storage"))

	a.surface = host.New(host.Options{
		Platform:  p,
		Files:     files,
		Handoff:   handoff,
		Info:      capability.HostInfo(cfg.App.VersionCode),
		MaxNotice: cfg.Notice.MaxLen,
		Logger:    log,
	})
	return a, nil
}

// listen binds the content server, if there is one, and returns the URL the
// platform should load.
func (a *app) listen() (string, error) {
	if a.server == nil {
		return a.cfg.Content.URL, nil
	}
	if err := a.server.Listen(); err != nil {
		return "", err
	}
	return a.server.URL() + "/", nil
}

// run serves the surface on url until the platform quits or ctx is done. The
// surface runs on the calling goroutine, which must be the main one for
// native windows.
func (a *app) run(ctx context.Context, url string, ctrl *control.Server, opts runOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ctrl.Serve()
	})
	g.Go(func() error {
		<-gctx.Done()
		ctrl.Close()
		return nil
	})
	if a.server != nil {
		g.Go(func() error {
			return a.server.Serve(gctx)
		})
	}
	g.Go(func() error {
		if err := config.Watch(gctx, configPath, a.log.Named("config"), a.applyConfig); err != nil {
			a.log.Warn("config reload disabled", zap.Error(err))
		}
		return nil
	})
	if opts.stdio {
		// Not part of the group: the read blocks until stdin closes.
		go func() {
			if err := a.surface.Calls().Serve(os.Stdin, os.Stdout); err != nil {
				a.log.Warn("stdio rpc stopped", zap.Error(err))
			}
		}()
	}

	runErr := a.surface.Run(gctx, url)
	cancel()
	if err := g.Wait(); err != nil && runErr == nil {
		return err
	}
	return runErr
}

// applyConfig takes over the settings that can change while running.
func (a *app) applyConfig(c *config.Config) {
	a.surface.Capabilities().SetMaxNotice(c.Notice.MaxLen)
	applyLogLevel(c.Log)
}

// forward hands ref to the host that already owns the control socket.
func forward(ctx context.Context, sockPath, ref string) (string, error) {
	client := control.NewClient(sockPath)
	if ref == "" {
		if err := client.Ping(ctx); err != nil {
			return "", err
		}
		return "running", nil
	}
	outcome, err := client.Handoff(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("hand-off to running host: %w", err)
	}
	return outcome, nil
}
