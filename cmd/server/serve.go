package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-faster/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"azdo-mcp/server/internal/config"
	"azdo-mcp/server/internal/filecontent"
	"azdo-mcp/server/internal/mcp"
	"azdo-mcp/server/internal/middleware"
	"azdo-mcp/server/internal/modules"
	"azdo-mcp/server/internal/modules/azuredevops"
	"azdo-mcp/server/internal/observability"
	"azdo-mcp/server/pkg/azuredevopsapi"
)

const (
	shutdownTimeout   = 30 * time.Second
	connectionTimeout = 30 * time.Second
)

// app holds everything both transports share.
type app struct {
	cfg     *config.Config
	lg      *zap.Logger
	handler *mcp.Handler
}

func stdioAction(c *cli.Context) error {
	return run(c, func(ctx context.Context, a *app) error {
		return middleware.NewStdio(a.handler, os.Stdin, os.Stdout, a.lg).Serve(ctx)
	})
}

func sseAction(c *cli.Context) error {
	return run(c, serveSSE)
}

func run(c *cli.Context, serve func(ctx context.Context, a *app) error) error {
	cfg, err := config.FromCLI(c)
	if err != nil {
		return err
	}

	// stdout carries the stdio protocol; logs go to stderr.
	lg, err := observability.NewLogger(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer lg.Sync()

	lg.Debug("Configuration loaded", zap.String("config", cfg.Redacted()))
	if err := cfg.Validate(); err != nil {
		lg.Error("Azure DevOps configuration is missing or invalid", zap.Error(err))
		return err
	}

	observability.Init(cfg.Loki, lg)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := observability.Shutdown(ctx); err != nil {
			lg.Warn("Loki flush incomplete", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, lg)
	if err != nil {
		observability.LogError("startup", err)
		return err
	}
	return serve(ctx, a)
}

func newApp(ctx context.Context, cfg *config.Config, lg *zap.Logger) (*app, error) {
	client, err := azuredevopsapi.NewClient(cfg.AzureDevOps.OrganizationURL, cfg.AzureDevOps.Token, azuredevopsapi.Options{
		APIVersion: cfg.AzureDevOps.APIVersion,
		Logger:     lg.Named("azuredevopsapi"),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create azure devops client")
	}

	checkCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	if err := client.CheckConnection(checkCtx); err != nil {
		return nil, errors.Wrap(err, "connect to azure devops (check organization url and token)")
	}
	lg.Info("Azure DevOps API connection initialized", zap.String("organization", cfg.AzureDevOps.OrganizationURL))

	module, err := azuredevops.New(client, azuredevops.Options{
		DefaultProject: cfg.AzureDevOps.DefaultProject,
		Files: filecontent.Options{
			ChunkSize:    cfg.Files.ChunkSize,
			ChunkTimeout: cfg.Files.ChunkTimeout,
		},
		Logger: lg,
	})
	if err != nil {
		return nil, err
	}

	registry := modules.NewRegistry(modules.RegistryOptions{
		ToolTimeout: cfg.Server.ToolTimeout,
		Logger:      lg.Named("modules"),
	})
	if err := registry.Register(module); err != nil {
		return nil, err
	}

	tools := registry.Tools()
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	lg.Info("Registered tools", zap.Strings("modules", registry.ListModules()), zap.Strings("tools", names))

	return &app{
		cfg:     cfg,
		lg:      lg,
		handler: mcp.NewHandler(registry, mcp.ServerInfo{Name: serverName, Version: version}, lg.Named("mcp")),
	}, nil
}

func serveSSE(ctx context.Context, a *app) error {
	sse := middleware.NewSSE(a.handler, middleware.SSEOptions{Logger: a.lg})

	var limiter *middleware.RateLimiter
	if a.cfg.Server.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(ctx, a.cfg.Server.RateLimit)
	}
	auth := middleware.NewAuthenticator(a.cfg.Server.AuthSecret, a.lg)
	if !auth.Enabled() {
		a.lg.Warn("Bearer authentication disabled; set MCP_AUTH_SECRET to require tokens")
	}

	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler: middleware.NewRouter(middleware.RouterOptions{
			SSE:         sse,
			Auth:        auth,
			RateLimiter: limiter,
			Name:        serverName,
			Version:     version,
			Logger:      a.lg,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.lg.Info("Starting MCP SSE server",
			zap.String("sse", fmt.Sprintf("http://localhost:%d/sse", a.cfg.Server.Port)),
			zap.String("message", fmt.Sprintf("http://localhost:%d%s", a.cfg.Server.Port, middleware.MessagePath)),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.lg.Info("Shutting down gracefully")

		// Streams never go idle on their own; end the sessions first.
		sse.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		a.lg.Info("Server stopped")
		return nil
	})
	return g.Wait()
}
