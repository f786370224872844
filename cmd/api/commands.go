package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"okrhub/api/internal/app"
	"okrhub/api/internal/auth"
	"okrhub/api/internal/cache"
	"okrhub/api/internal/config"
	"okrhub/api/internal/export"
	"okrhub/api/internal/graphsync"
	"okrhub/api/internal/logger"
	"okrhub/api/internal/search"
	"okrhub/api/internal/store"
)

var (
	tokenEmail    string
	tokenTTL      time.Duration
	rollbackSteps int

	rootCmd = &cobra.Command{
		Use:           "okrhub-api",
		Short:         "OKR alignment hierarchy API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE:  runServe,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE:  runMigrate,
	}

	reindexCmd = &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the search index and the graph mirror from Postgres",
		RunE:  runReindex,
	}

	tokenCmd = &cobra.Command{
		Use:   "token [user-id]",
		Short: "Mint a development bearer token for a user",
		Args:  cobra.ExactArgs(1),
		RunE:  runToken,
	}
)

func init() {
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "email claim for the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 12*time.Hour, "token lifetime")
	migrateCmd.Flags().IntVar(&rollbackSteps, "down", 0, "roll back this many migrations instead of applying pending ones")
	rootCmd.AddCommand(serveCmd, migrateCmd, reindexCmd, tokenCmd)
}

// backend holds everything the serve and reindex commands share.
type backend struct {
	cfg     config.Config
	log     *logger.Logger
	db      *sql.DB
	service *app.Service
	closers []func()
}

func (r *backend) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func newLogger(cfg config.Config) (*logger.Logger, error) {
	return logger.New(logger.Options{
		Mode:     cfg.LogMode,
		Level:    cfg.LogLevel,
		Redact:   cfg.LogRedact,
		HashSalt: cfg.LogHashSalt,
	})
}

func newMigrator(cfg config.Config, log *logger.Logger) *store.Migrator {
	return store.NewMigrator(store.MigrationFiles(cfg.MigrationsDir), log)
}

func openDatabase(ctx context.Context, cfg config.Config, log *logger.Logger) (*sql.DB, error) {
	db, err := store.Open(ctx, cfg.DatabaseURL, store.PoolConfig{MaxOpen: cfg.DBMaxOpen, MaxIdle: cfg.DBMaxIdle})
	if err != nil {
		return nil, err
	}
	if _, err := newMigrator(cfg, log).Up(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations failed: %w", err)
	}
	return db, nil
}

// bootstrap connects the database and every optional backend. Optional
// backends that fail to connect are logged and left disabled.
func bootstrap(ctx context.Context) (*backend, error) {
	cfg := config.Load()
	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	rt := &backend{cfg: cfg, log: log}
	rt.closers = append(rt.closers, log.Sync)

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	rt.db = db
	rt.closers = append(rt.closers, func() { _ = db.Close() })

	dataStore := store.NewPostgresStore(db)
	deps := app.Dependencies{Log: log}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisSource, err := cache.NewRedisSource(cfg.RedisURL, dataStore, cfg.RedisCacheTTL, log)
		if err != nil {
			log.Warn("redis cache disabled", "error", err)
		} else {
			log.Info("using redis relation cache")
			deps.Redis = redisSource
			rt.closers = append(rt.closers, func() { _ = redisSource.Close() })
		}
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, log)
		rt.closers = append(rt.closers, meiliClient.Close)
	}
	deps.Search = search.NewService(meiliClient, search.NewPgFTS(db), log)

	mirror, err := graphsync.New(ctx, graphsync.Config{
		URI:      cfg.Neo4jURI,
		User:     cfg.Neo4jUser,
		Password: cfg.Neo4jPassword,
		Database: cfg.Neo4jDatabase,
	}, log)
	if err != nil {
		log.Warn("graph mirror disabled", "error", err)
	} else if mirror != nil {
		deps.Mirror = mirror
		rt.closers = append(rt.closers, func() { _ = mirror.Close(context.Background()) })
	}

	var artifacts *export.ArtifactStore
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		artifacts, err = export.NewArtifactStore(ctx, export.ArtifactConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
			URLTTL:    cfg.ExportURLTTL,
		})
		if err != nil {
			log.Warn("export uploads disabled", "error", err)
			artifacts = nil
		}
	}
	deps.Exports = export.NewService(artifacts, log)

	service, err := app.New(cfg, dataStore, deps)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.service = service
	return rt, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	httpServer := app.NewHTTPServer(rt.service, rt.cfg.CORSOrigin, rt.log)
	server := &http.Server{
		Addr:              rt.cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		rt.log.Info("okrhub api listening", "addr", rt.cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		rt.log.Warn("shutdown error", "error", err)
	}
	return nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	db, err := store.Open(cmd.Context(), cfg.DatabaseURL, store.PoolConfig{MaxOpen: 2, MaxIdle: 1})
	if err != nil {
		return err
	}
	defer db.Close()

	migrator := newMigrator(cfg, log)
	if rollbackSteps > 0 {
		reverted, err := migrator.Down(cmd.Context(), db, rollbackSteps)
		if err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}
		log.Info("migrations rolled back", "versions", reverted)
		return nil
	}
	applied, err := migrator.Up(cmd.Context(), db)
	if err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}
	log.Info("schema up to date", "applied", len(applied))
	return nil
}

func runReindex(cmd *cobra.Command, _ []string) error {
	rt, err := bootstrap(cmd.Context())
	if err != nil {
		return err
	}
	defer rt.Close()

	indexed, err := rt.service.Reindex(cmd.Context())
	if err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}
	rt.log.Info("reindex complete", "objectives", indexed)
	return nil
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	now := time.Now()
	token, err := auth.IssueToken([]byte(cfg.JWTSecret), auth.Claims{
		Email: tokenEmail,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   args[0],
			Audience:  jwt.ClaimStrings{cfg.JWTAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
	return err
}
