package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pandeptwidyaop/multisite/internal/server/assets"
	"github.com/pandeptwidyaop/multisite/internal/server/site"
	tlsmanager "github.com/pandeptwidyaop/multisite/internal/server/tls"
	"github.com/pandeptwidyaop/multisite/internal/server/web/api"
	"github.com/pandeptwidyaop/multisite/internal/server/web/middleware"
	"github.com/pandeptwidyaop/multisite/internal/version"
	"github.com/pandeptwidyaop/multisite/pkg/logger"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the multisite server",
	Long:  `Start the HTTP server that serves tenant sites, checkout, onboarding and the platform API.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServer(cmd.Context())
	},
}

func runServer(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	info := version.GetVersion()
	logger.InfoEvent().
		Str("version", info.Version).
		Str("build_time", info.BuildDate).
		Str("git_commit", info.GitCommit).
		Str("base_domain", a.cfg.Server.BaseDomain).
		Msg("Starting multisite server")

	if _, _, err := a.accounts.EnsureSuperAdmin(ctx, a.cfg.Auth.AdminUsername, a.cfg.Auth.AdminPassword); err != nil {
		return fmt.Errorf("failed to initialize admin user: %w", err)
	}

	apiHandler := api.NewHandler(api.Deps{
		DB:          a.db,
		Config:      a.cfg,
		Registry:    a.registry,
		Orders:      a.orders,
		Payments:    a.payments,
		Provisioner: a.provisioner,
		Invitations: a.invitations,
		Accounts:    a.accounts,
		TOTP:        a.totp,
		Metrics:     a.metrics,
	})
	defer apiHandler.Close()

	// Tenant sites answer every path the API does not claim.
	siteMux := http.NewServeMux()
	site.NewHandler(a.db, a.registry, assets.NewDir(a.cfg.Assets.Root, a.cfg.Assets.DefaultBucket)).RegisterRoutes(siteMux)

	mux := http.NewServeMux()
	apiHandler.RegisterRoutes(mux)
	mux.Handle("/", middleware.ResolveTenant(a.resolver, middleware.HTMLFailure)(middleware.SiteSecurityHeaders(siteMux)))

	tlsMgr, err := tlsmanager.NewManager(tlsmanager.Config{
		AutoCert: a.cfg.TLS.AutoCert,
		CertDir:  a.cfg.TLS.CertDir,
		Email:    a.cfg.TLS.Email,
		CertFile: a.cfg.TLS.CertFile,
		KeyFile:  a.cfg.TLS.KeyFile,
	}, a.resolver)
	if err != nil {
		return fmt.Errorf("failed to setup TLS: %w", err)
	}

	handler := middleware.HTTPLoggerWithLevel(apiHandler.CORSMiddleware(mux), a.cfg.Logging.Level)

	servers := []*http.Server{{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.HTTPPort),
		Handler:           tlsMgr.HTTPHandler(handler),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}}
	if tlsMgr.IsEnabled() {
		servers = append(servers, &http.Server{
			Addr:              fmt.Sprintf(":%d", a.cfg.Server.HTTPSPort),
			Handler:           handler,
			TLSConfig:         tlsMgr.TLSConfig(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
		})
		logger.InfoEvent().Bool("auto_cert", tlsMgr.AutoCert()).Msg("TLS enabled")
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			logger.InfoEvent().
				Str("addr", srv.Addr).
				Bool("tls", srv.TLSConfig != nil).
				Msg("HTTP server listening")

			var err error
			if srv.TLSConfig != nil {
				err = srv.ListenAndServeTLS("", "")
			} else {
				err = srv.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("server %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var serveErr error
	select {
	case serveErr = <-errCh:
		logger.ErrorEvent().Err(serveErr).Msg("HTTP server error")
	case <-sigCh:
	}

	logger.InfoEvent().Msg("Shutting down servers...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.ErrorEvent().Err(err).Str("addr", srv.Addr).Msg("HTTP server shutdown error")
		}
	}
	return serveErr
}
