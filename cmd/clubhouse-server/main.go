package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/clubhouse/pkg/clubhouse/auth"
	"github.com/mikepea/clubhouse/pkg/clubhouse/config"
	"github.com/mikepea/clubhouse/pkg/clubhouse/credentials"
	"github.com/mikepea/clubhouse/pkg/clubhouse/dashboard"
	"github.com/mikepea/clubhouse/pkg/clubhouse/database"
	"github.com/mikepea/clubhouse/pkg/clubhouse/groups"
	"github.com/mikepea/clubhouse/pkg/clubhouse/logging"
	"github.com/mikepea/clubhouse/pkg/clubhouse/membership"
	"github.com/mikepea/clubhouse/pkg/clubhouse/metrics"
	"github.com/mikepea/clubhouse/pkg/clubhouse/models"
	"github.com/mikepea/clubhouse/pkg/clubhouse/render"
	"github.com/mikepea/clubhouse/pkg/clubhouse/session"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"gorm.io/gorm"
)

const (
	shutdownTimeout = 10 * time.Second
	purgeInterval   = time.Hour
)

func main() {
	configPath := pflag.String("config", "", "path to a YAML config file")
	addr := pflag.String("addr", "", "listen address (overrides config)")
	dbDriver := pflag.String("db-driver", "", "database driver: sqlite or mysql")
	dbDSN := pflag.String("db-dsn", "", "database DSN")
	singleGroup := pflag.Bool("single-group", false, "limit every user to one group")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dbDriver != "" {
		cfg.DBDriver = *dbDriver
	}
	if *dbDSN != "" {
		cfg.DBDSN = *dbDSN
	}
	if pflag.CommandLine.Changed("single-group") {
		cfg.SingleGroup = *singleGroup
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("Invalid config: %v", err)
	}

	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		logrus.Fatalf("Failed to configure logging: %v", err)
	}
	if cfg.UsingDevSecret() {
		logrus.Warn("Using the development session secret; set CLUBHOUSE_SESSION_SECRET in production")
	}

	// Connect to database
	db, err := database.Connect(cfg.DBDriver, cfg.DBDSN, logging.GormLogger(cfg.LogLevel))
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}

	// Run auto-migrations
	if err := models.AutoMigrate(db); err != nil {
		logrus.Fatalf("Failed to run migrations: %v", err)
	}
	logrus.Info("Database migrations completed")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sessionStore(ctx, cfg, db)
	if err != nil {
		logrus.Fatalf("Failed to set up session store: %v", err)
	}
	if purger, ok := store.(session.Purger); ok {
		go purgeSessions(ctx, purger)
	}

	if cfg.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r, err := setupRouter(cfg, db, store, metrics.NewRecorder())
	if err != nil {
		logrus.Fatalf("Failed to set up router: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logrus.WithFields(logrus.Fields{
			"addr":         cfg.Addr,
			"single_group": cfg.SingleGroup,
			"sessions":     cfg.SessionStore,
		}).Info("Starting Clubhouse server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Server shutdown failed")
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

func sessionStore(ctx context.Context, cfg *config.Config, db *gorm.DB) (session.Store, error) {
	if cfg.SessionStore == config.SessionStoreRedis {
		client, err := session.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		return session.NewRedisStore(client, cfg.SessionTTL), nil
	}
	return session.NewDBStore(db, cfg.SessionTTL), nil
}

// setupRouter wires every handler onto a new gin engine.
func setupRouter(cfg *config.Config, db *gorm.DB, store session.Store, recorder *metrics.Recorder) (*gin.Engine, error) {
	r := gin.New()
	r.Use(gin.Recovery(), logging.RequestLogger(auth.GetUserID))
	if err := render.Setup(r); err != nil {
		return nil, err
	}

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "clubhouse",
		})
	})
	r.GET("/metrics", gin.WrapH(recorder.Handler()))

	users := credentials.NewStore(db)
	gw := auth.NewGateway(store, users, auth.Options{
		Secret:   []byte(cfg.SessionSecret),
		TTL:      cfg.SessionTTL,
		Secure:   cfg.SecureCookies,
		Observer: recorder,
	})
	svc := membership.NewService(db,
		groups.NewRepository(db, groups.RandomCodes(cfg.InviteCodeLength)),
		membership.Policy{SingleGroup: cfg.SingleGroup},
		membership.WithObserver(recorder),
	)

	pages := r.Group("/", gw.LoadSession())
	auth.NewHandler(gw, users).RegisterRoutes(pages)
	dashboard.NewHandler(svc, gw).RegisterRoutes(pages)

	return r, nil
}

// purgeSessions removes expired session records until ctx is done.
func purgeSessions(ctx context.Context, purger session.Purger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := purger.PurgeExpired(ctx)
			if err != nil {
				logrus.WithError(err).Error("Failed to purge expired sessions")
				continue
			}
			if n > 0 {
				logrus.WithField("count", n).Info("Purged expired sessions")
			}
		}
	}
}
