package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/frahmantamala/taxfree-console/internal/core/events"
	"github.com/frahmantamala/taxfree-console/internal/poller"
	"github.com/frahmantamala/taxfree-console/internal/session"
	sessionPostgres "github.com/frahmantamala/taxfree-console/internal/session/postgres"
	"github.com/frahmantamala/taxfree-console/pkg/logger"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Session store maintenance",
	Long:  `Inspect and clean the console session store outside the HTTP server`,
}

var reapSessionsCmd = &cobra.Command{
	Use:   "reap",
	Short: "Delete expired sessions",
	Long:  `Delete expired sessions once, or keep doing it on an interval with --every`,
	Run: func(cmd *cobra.Command, args []string) {
		startReaper()
	},
}

var reapEvery time.Duration

func startReaper() {
	config, err := loadConfig(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(config.Observability.Logging.Env, config.Observability.Logging.Level)
	lg := logger.LoggerWrapper()

	db, gormDB, err := initDB(config.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	sessions, err := session.NewManager(sessionPostgres.NewSessionRepository(gormDB), session.Options{
		CookieName:    config.Session.CookieName,
		SigningSecret: config.Session.SigningSecret,
		EncryptionKey: config.Session.EncryptionKey,
		TTL:           config.Session.TTL,
	}, events.NewBus(lg), lg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create session manager: %v\n", err)
		os.Exit(1)
	}

	if reapEvery <= 0 {
		n, err := sessions.Reap(context.Background())
		if err != nil {
			lg.Error("session reap failed", "error", err)
			os.Exit(1)
		}
		lg.Info("expired sessions removed", "count", n)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lg.Info("starting session reaper", "every", reapEvery)
	reaper := poller.New("session-reaper", reapEvery, reapTask(sessions, lg), lg)
	reaper.Start(ctx)

	<-ctx.Done()
	lg.Info("Received signal, stopping session reaper...")
	reaper.Stop()
}

func init() {
	reapSessionsCmd.Flags().DurationVar(&reapEvery, "every", 0, "keep reaping on this interval until interrupted")

	sessionsCmd.AddCommand(reapSessionsCmd)
}
