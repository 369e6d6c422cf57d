package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	adminrepo "codearena/internal/admin/repository"
	adminservice "codearena/internal/admin/service"
	"codearena/internal/cli/command"
	"codearena/internal/cli/config"
	"codearena/internal/cli/repl"
	"codearena/internal/cli/view"
	"codearena/internal/common/cache"
	httpclient "codearena/internal/common/http"
	"codearena/internal/identity"
	problemrepo "codearena/internal/problem/repository"
	problemservice "codearena/internal/problem/service"
	submitrepo "codearena/internal/submit/repository"
	submitservice "codearena/internal/submit/service"
	userrepo "codearena/internal/user/repository"
	userservice "codearena/internal/user/service"
	"codearena/pkg/metrics"
	"codearena/pkg/utils/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	defaultConfigPath  = "configs/cli.yaml"
	defaultHistoryFile = ".codearena_history"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	baseURL := flag.String("base", "", "Override base URL")
	timeout := flag.Duration("timeout", 0, "Override HTTP timeout (e.g. 10s)")
	token := flag.String("token", "", "Sign in with this access token (manual identity mode)")
	statePath := flag.String("state", "", "Override token state path")
	store := flag.String("store", "", "Override token store (memory|file|redis)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if *baseURL != "" {
		cfg.BaseURL = *baseURL
	}
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}
	if *statePath != "" {
		cfg.Token.Path = *statePath
	}
	if *store != "" {
		cfg.Token.Store = *store
	}

	if err := logger.Init(cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *token); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, initialToken string) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics.RegisterCollectors(reg)
	if cfg.Metrics.Addr != "" {
		serveMetrics(ctx, cfg.Metrics.Addr, reg)
	}

	client := httpclient.New(cfg.BaseURL, cfg.Timeout)
	// Judge calls can legitimately take long; they get a client without a deadline.
	judgeClient := httpclient.New(cfg.BaseURL, 0)

	tokenStore, closeStore, err := buildTokenStore(cfg.Token)
	if err != nil {
		return err
	}
	defer closeStore()
	tokens := userrepo.NewTokenCache(tokenStore)

	out := view.NewRenderer(os.Stdout)
	app := &command.App{View: out, JudgeTimeout: cfg.JudgeTimeout}

	var provider identity.Provider
	switch cfg.Identity.Mode {
	case config.IdentityOIDC:
		opener := func(authURL string) error {
			out.Printf("open this URL to sign in:\n  %s", authURL)
			return nil
		}
		oidcProvider, err := identity.NewOIDCProvider(ctx, cfg.Identity.OIDC, opener, tokens)
		if err != nil {
			return err
		}
		if err := identity.NewCallbackServer(oidcProvider).Start(ctx, cfg.Identity.CallbackAddr); err != nil {
			return err
		}
		app.OIDC = oidcProvider
		provider = oidcProvider
	default:
		app.Manual = identity.NewManualProvider(tokens)
		provider = app.Manual
	}

	session := userservice.NewSessionController(provider, userrepo.NewProfileRepository(client), tokens)
	defer session.Close()

	catalog := problemservice.NewCatalogService(problemrepo.NewProblemRepository(client), session, session, cfg.CatalogTTL)
	session.Subscribe(catalog.OnSessionState)

	app.Session = session
	app.Catalog = catalog
	app.Workspace = submitservice.NewWorkspaceController(submitrepo.NewJudgeRepository(judgeClient), session, session, catalog)
	app.Admin = adminservice.NewAdminService(adminrepo.NewAdminRepository(client), session, session, catalog)

	session.Startup(ctx)
	if initialToken != "" && app.Manual != nil {
		if err := app.Manual.Login(initialToken); err != nil {
			out.Error(err)
		}
		session.Wait()
	}
	out.Session(session.State())

	err = repl.New(app, tokens, command.Registry(), historyPath(), client, judgeClient).Run(ctx)
	app.Wait()
	return err
}

func buildTokenStore(cfg config.TokenConfig) (userrepo.TokenStore, func(), error) {
	switch cfg.Store {
	case config.StoreMemory:
		return userrepo.NewMemoryStore(), func() {}, nil
	case config.StoreRedis:
		redisCfg := cfg.Redis
		kv, err := cache.NewRedisCacheWithConfig(&redisCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect token redis failed: %w", err)
		}
		return userrepo.NewRedisStore(kv, cfg.Prefix, cfg.TTL, 3*time.Second), func() { _ = kv.Close() }, nil
	default:
		return userrepo.NewFileStore(cfg.Path), func() {}, nil
	}
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "metrics server stopped", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info(ctx, "metrics listening", zap.String("addr", addr))
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, defaultHistoryFile)
}
