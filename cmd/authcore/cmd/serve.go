package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/procuregov/authcore"
	"github.com/procuregov/authcore/httpapi"
	"github.com/procuregov/authcore/internal/config"
	"github.com/procuregov/authcore/metrics/export/otel"
	"github.com/procuregov/authcore/metrics/export/prometheus"
	"github.com/procuregov/authcore/middleware"
	"github.com/spf13/cobra"
	otelglobal "go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var (
	serveAddr string
	serveDev  bool
	serveOTel bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.HTTPAddr = serveAddr
		}
		if serveDev {
			cfg.StoreDriver = config.StoreMemory
		}

		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		defer logger.Sync()

		trusted, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
		if err != nil {
			return fmt.Errorf("TRUSTED_PROXIES: %w", err)
		}

		ctx := cmd.Context()
		st, err := openStores(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		rdb, closeRedis, err := newRedis(cfg, serveDev)
		if err != nil {
			return err
		}
		defer closeRedis()

		engine, err := authcore.New().
			WithConfig(cfg.Engine).
			WithRedis(rdb).
			WithPrincipalStore(st.principals).
			WithRecordStore(st.records).
			WithAuditSink(newAuditSink(cfg, logger)).
			WithLogger(logger).
			Build()
		if err != nil {
			return fmt.Errorf("build engine: %w", err)
		}
		defer engine.Close()

		if serveDev {
			if err := seedDevPrincipals(engine, st.principals, logger); err != nil {
				return err
			}
		}

		if serveOTel {
			exp, err := otel.New(otelglobal.GetMeterProvider().Meter("github.com/procuregov/authcore"), engine)
			if err != nil {
				return fmt.Errorf("register otel metrics: %w", err)
			}
			defer exp.Close()
		}

		api := httpapi.New(engine,
			httpapi.WithLogger(logger),
			httpapi.WithTrustedProxies(trusted),
			httpapi.WithLoginRateLimit(cfg.LoginRPM, time.Minute),
			httpapi.WithRefreshRateLimit(cfg.RefreshRPM, time.Minute),
		)

		r := chi.NewRouter()
		r.Use(chimw.Recoverer)
		r.Get("/health", healthHandler(engine, logger))
		r.Handle("/metrics", prometheus.New(engine).Handler())
		r.Mount("/", api.Router())

		server := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()
		logger.Info("listening",
			zap.String("addr", cfg.HTTPAddr),
			zap.String("store", cfg.StoreDriver),
			zap.Bool("dev", serveDev),
		)

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("shutting down", zap.String("signal", sig.String()))
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides HTTP_ADDR)")
	serveCmd.Flags().BoolVar(&serveDev, "dev", false, "Use in-process Redis and memory stores with seeded demo principals")
	serveCmd.Flags().BoolVar(&serveOTel, "otel", false, "Publish metrics through the global OpenTelemetry meter provider")
}

// healthHandler reports Redis reachability. The cause of a failure is only
// logged.
func healthHandler(engine *authcore.Engine, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		latency, err := engine.Ping(r.Context())
		if err != nil {
			logger.Warn("health check failed", zap.Error(err))
			middleware.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
			})
			return
		}
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status":        "ok",
			"redis_latency": latency.String(),
		})
	}
}

var devPrincipals = []authcore.Principal{
	{ID: "admin-1", Email: "admin@procure.example", Role: authcore.RoleAdmin},
	{ID: "agency-1", Email: "buyer@agency.example", Role: authcore.RoleAgency},
	{ID: "supplier-1", Email: "bids@supplier.example", Role: authcore.RoleSupplier},
	{ID: "auditor-1", Email: "review@audit.example", Role: authcore.RoleAuditor},
	{ID: "citizen-1", Email: "resident@citizen.example", Role: authcore.RoleCitizen},
}

const devPassword = "procure-dev-password"

func seedDevPrincipals(engine *authcore.Engine, store authcore.PrincipalStore, logger *zap.Logger) error {
	mem, ok := store.(*authcore.MemoryPrincipalStore)
	if !ok {
		return nil
	}
	hash, err := engine.HashPassword(devPassword)
	if err != nil {
		return fmt.Errorf("hash dev password: %w", err)
	}
	for _, p := range devPrincipals {
		p.Status = authcore.StatusActive
		p.PasswordHash = hash
		mem.Put(p)
		logger.Info("seeded dev principal", zap.String("email", p.Email), zap.String("role", string(p.Role)))
	}
	return nil
}
