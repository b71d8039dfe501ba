package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/taxfree-console/internal"
	"github.com/frahmantamala/taxfree-console/internal/accessadmin"
	"github.com/frahmantamala/taxfree-console/internal/agent"
	"github.com/frahmantamala/taxfree-console/internal/apiclient"
	"github.com/frahmantamala/taxfree-console/internal/auditlog"
	"github.com/frahmantamala/taxfree-console/internal/auth"
	"github.com/frahmantamala/taxfree-console/internal/border"
	"github.com/frahmantamala/taxfree-console/internal/bordereau"
	sessionDatamodel "github.com/frahmantamala/taxfree-console/internal/core/datamodel/session"
	"github.com/frahmantamala/taxfree-console/internal/core/events"
	"github.com/frahmantamala/taxfree-console/internal/dashboard"
	"github.com/frahmantamala/taxfree-console/internal/guard"
	"github.com/frahmantamala/taxfree-console/internal/maintenance"
	"github.com/frahmantamala/taxfree-console/internal/permission"
	"github.com/frahmantamala/taxfree-console/internal/poller"
	"github.com/frahmantamala/taxfree-console/internal/querycache"
	"github.com/frahmantamala/taxfree-console/internal/registration"
	"github.com/frahmantamala/taxfree-console/internal/report"
	"github.com/frahmantamala/taxfree-console/internal/session"
	sessionPostgres "github.com/frahmantamala/taxfree-console/internal/session/postgres"
	"github.com/frahmantamala/taxfree-console/internal/transport"
	"github.com/frahmantamala/taxfree-console/internal/transport/middleware"
	"github.com/frahmantamala/taxfree-console/internal/transport/rest"
	"github.com/frahmantamala/taxfree-console/internal/transport/view"
	"github.com/frahmantamala/taxfree-console/internal/user"
	"github.com/frahmantamala/taxfree-console/pkg/logger"

	"github.com/go-chi/chi"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the console HTTP server in front of the tax-free backend API`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config   *internal.Config
	DB       *sqlx.DB
	Gorm     *gorm.DB
	Router   *chi.Mux
	Logger   *slog.Logger
	Sessions *session.Manager
	Routes   rest.Routes
}

func startHTTPServer() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := initializeDependencies(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	lg := deps.Logger

	rest.RegisterAllRoutes(deps.Router, deps.Routes)

	reaper := poller.New("session-reaper", deps.Config.Session.ReapInterval, reapTask(deps.Sessions, lg), lg)
	reaper.Start(ctx)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	lg.Info("Starting HTTP server", "address", addr, "backend", deps.Config.Backend.BaseURL)

	// Event streams stay open, so write_timeout should be 0 outside tests.
	// Request contexts derive from ctx and end with the process.
	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		lg.Info("Received signal, shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && err != http.ErrServerClosed {
			lg.Error("Server failed to start", "error", err)
			reaper.Stop()
			os.Exit(1)
		}
	}

	reaper.Stop()
	if err := deps.DB.Close(); err != nil {
		lg.Error("Database close error", "error", err)
	}
	lg.Info("Server stopped")
}

func initializeDependencies(ctx context.Context) (*Dependencies, error) {
	config, err := loadConfig(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(config.Observability.Logging.Env, config.Observability.Logging.Level)
	lg := logger.LoggerWrapper()

	db, gormDB, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	bus := events.NewBus(lg)
	sessions, err := session.NewManager(sessionPostgres.NewSessionRepository(gormDB), session.Options{
		CookieName:     config.Session.CookieName,
		SigningSecret:  config.Session.SigningSecret,
		EncryptionKey:  config.Session.EncryptionKey,
		TTL:            config.Session.TTL,
		MaintenanceTTL: config.Session.MaintenanceMessageTTL,
		SecureCookie:   config.Session.SecureCookie,
	}, bus, lg)
	if err != nil {
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	client, err := apiclient.NewClient(apiclient.Config{
		BaseURL:        config.Backend.BaseURL,
		Timeout:        config.Backend.Timeout,
		RequestsPerSec: config.Backend.RequestsPerSec,
		Burst:          config.Backend.Burst,
		StatusPath:     config.Backend.StatusProbePath,
		Registerer:     reg,
	}, sessions, lg)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}

	cache := querycache.New(config.Permissions.CacheTTL, lg)
	cache.Subscribe(bus)

	policy := permission.PolicyFromStrings(config.Permissions.GranularRole)
	views, err := view.New()
	if err != nil {
		return nil, fmt.Errorf("failed to parse views: %w", err)
	}
	base := transport.NewBaseHandler(lg, views, sessions, policy)
	loader := auth.NewPermissionLoader(client, sessions, cache, config.Permissions.LoadWait, lg)

	routes := rest.Routes{
		Logger:       lg,
		Sessions:     sessions,
		Guard:        guard.New(policy, loader, base, lg),
		Health:       rest.NewHealthHandler(db, client),
		Origins:      config.Server.Origins(),
		LoginLimiter: middleware.NewRateLimiter(ctx, config.Login.AttemptsPerMinute, config.Login.Burst),

		Auth:         auth.NewHandler(base, auth.NewService(client, sessions, lg)),
		Registration: registration.NewHandler(base, registration.NewService(client, sessions, cache, config.Permissions.LoadWait, lg)),
		Maintenance:  maintenance.NewHandler(base, client, config.Backend.ProbeInterval),
		Dashboard:    dashboard.NewHandler(base, dashboard.NewService(client, cache), config.Dashboard.RefreshInterval),
		Forms:        bordereau.NewHandler(base, bordereau.NewService(client, cache, bus, lg)),
		Borders:      border.NewHandler(base, border.NewService(client, cache, bus, lg), config.Dashboard.BorderPageSize),
		Agents:       agent.NewHandler(base, agent.NewService(client, cache, bus, lg), config.Dashboard.AgentPageSize),
		Audit:        auditlog.NewHandler(base, auditlog.NewService(client, cache)),
		Reports:      report.NewHandler(base, report.NewService(client, cache)),
		Access:       accessadmin.NewHandler(base, accessadmin.NewService(client, sessions, cache, bus, lg)),
		Account:      user.NewHandler(base, user.NewService(client, sessions, lg)),
	}
	if config.Observability.Metrics.Enabled {
		routes.Metrics = middleware.NewMetrics(reg)
		routes.MetricsPath = config.Observability.Metrics.Path
		routes.MetricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	return &Dependencies{
		Config:   config,
		DB:       db,
		Gorm:     gormDB,
		Router:   chi.NewRouter(),
		Logger:   lg,
		Sessions: sessions,
		Routes:   routes,
	}, nil
}

func reapTask(sessions *session.Manager, lg *slog.Logger) poller.Task {
	return func(ctx context.Context) error {
		n, err := sessions.Reap(ctx)
		if err != nil {
			lg.Warn("session reap failed", "error", err)
			return nil
		}
		if n > 0 {
			lg.Info("expired sessions removed", "count", n)
		}
		return nil
	}
}

// initDB opens the session database once and shares the pool between sqlx
// (health ping) and gorm (session rows).
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, *gorm.DB, error) {
	driver := sqlDriver(cfg.Driver)

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open db connection: %w", err)
	}
	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	var dialector gorm.Dialector
	if driver == "sqlite3" {
		dialector = &sqlite.Dialector{DriverName: driver, Conn: dbConn.DB}
	} else {
		dialector = postgres.New(postgres.Config{Conn: dbConn.DB})
	}
	gormDB, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Warn),
	})
	if err != nil {
		_ = dbConn.Close()
		return nil, nil, fmt.Errorf("failed to open gorm session store: %w", err)
	}

	// sqlite backs local runs only; postgres schemas come from the migrate command
	if driver == "sqlite3" {
		if err := gormDB.AutoMigrate(&sessionDatamodel.Session{}); err != nil {
			_ = dbConn.Close()
			return nil, nil, fmt.Errorf("failed to create session table: %w", err)
		}
	}
	return dbConn, gormDB, nil
}

// sqlDriver maps the configured driver to its database/sql name.
func sqlDriver(name string) string {
	switch name {
	case "sqlite", "sqlite3":
		return "sqlite3"
	default:
		return "pgx"
	}
}
