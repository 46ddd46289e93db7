package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go/v4"
	"github.com/civicconnect/civic-connect-be/config"
	"github.com/civicconnect/civic-connect-be/controllers"
	"github.com/civicconnect/civic-connect-be/db/sqlstore"
	"github.com/civicconnect/civic-connect-be/logging"
	"github.com/civicconnect/civic-connect-be/middleware"
	"github.com/civicconnect/civic-connect-be/realtime"
	"github.com/civicconnect/civic-connect-be/routes"
	"github.com/civicconnect/civic-connect-be/services"
	"github.com/civicconnect/civic-connect-be/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error building logger: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server exited with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if err := configureFirebaseCredentials(logger); err != nil {
		return fmt.Errorf("an error occurred while configuring firebase credentials: %w", err)
	}
	app, err := firebase.NewApp(ctx, nil)
	if err != nil {
		return fmt.Errorf("error initializing firebase: %w", err)
	}

	var (
		source    realtime.ChangeSource
		publisher realtime.Publisher
	)
	switch cfg.Realtime.Source {
	case config.RealtimeSourceFirestore:
		client, err := app.Firestore(ctx)
		if err != nil {
			return fmt.Errorf("error initializing firestore: %w", err)
		}
		defer client.Close()
		broker := realtime.NewFirestoreBroker(client, cfg.Realtime.FirestoreCollection, logger)
		source, publisher = broker, broker
	default:
		broker := realtime.NewLocalBroker()
		source, publisher = broker, broker
	}

	store, err := sqlstore.Open(ctx, &sqlstore.Options{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.DatabaseDSN(),
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime.Duration(),
		Migrate:         cfg.Database.Migrate,
	}, publisher, logger)
	if err != nil {
		return fmt.Errorf("received err when attempting to connect to DB: %w", err)
	}
	defer store.Close()

	provider, err := session.NewFirebaseProvider(ctx, app, cfg.Firebase.APIKey)
	if err != nil {
		return err
	}
	sessions := session.NewManager(provider, store, &session.RoleRules{
		AdminDomains:     cfg.Roles.AdminDomains,
		OfficialDomains:  cfg.Roles.OfficialDomains,
		VerificationCode: cfg.Roles.VerificationCode,
	}, logger)
	sessions.Init(ctx)
	defer sessions.Dispose()

	mediaBucket, err := services.NewStorageBucket(ctx, app, cfg.Firebase.Bucket, cfg.Uploads.MaxSize.Int64())
	if err != nil {
		return fmt.Errorf("an error occurred while connecting to the media bucket: %w", err)
	}

	posts := services.NewPostService(store, logger, &services.PostServiceOpts{
		AutoFlagThreshold: cfg.Moderation.AutoFlagThreshold,
	})
	polls := services.NewPollService(store, logger)

	mux := realtime.NewMultiplexer(source, logger)
	defer mux.Close()
	if err := sessions.WatchProfiles(ctx, mux); err != nil {
		logger.Warn("profile cache will not follow remote updates", zap.Error(err))
	}
	feed := controllers.NewFeedController(posts, polls, mux, logger, &controllers.FeedControllerOpts{
		DebounceDelay:       cfg.Realtime.DebounceDelay.Duration(),
		ResubscribeInterval: cfg.Realtime.ResubscribeInterval.Duration(),
	})
	feed.Start(ctx)
	defer feed.Close()

	expiryJob, err := controllers.NewPollExpiryJob(polls, cfg.Polls.ExpiryCron, logger)
	if err != nil {
		return err
	}
	expiryJob.Start(ctx)
	defer expiryJob.Stop()

	limiters := middleware.NewLimiterPool(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	go limiters.RunSweeper(ctx)

	gin.SetMode(cfg.Server.GinMode)
	r, err := newEngine(&cfg.Server, logger, limiters)
	if err != nil {
		return err
	}

	routes.Register(&r.RouterGroup, &routes.Deps{
		Sessions:      sessions,
		Posts:         posts,
		Polls:         polls,
		Moderation:    services.NewModerationService(store, logger),
		Social:        services.NewSocialService(store, logger),
		Media:         mediaBucket,
		MaxUploadSize: cfg.Uploads.MaxSize.Int64(),
		Feed:          feed,
		Mux:           mux,
	})

	server := &http.Server{
		Addr:    cfg.Addr(),
		Handler: r,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", server.Addr), zap.String("realtime", cfg.Realtime.Source))
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error when attempting to run web server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	// stream handlers only return once their watchers close
	feed.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// newEngine builds the gin engine with the shared middleware stack
func newEngine(cfg *config.ServerConfig, logger *zap.Logger, limiters *middleware.LimiterPool) (*gin.Engine, error) {
	r := gin.New()
	// c.ClientIP keys the rate limiter, so only configured proxies may set it
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}
	r.Use(middleware.RequestLogger(logger))
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.AllowedOrigins,
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:  []string{"Origin", "Authorization", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))
	r.Use(middleware.RateLimit(limiters))
	return r, nil
}

const (
	CredentialsPathEnvVar = "GOOGLE_APPLICATION_CREDENTIALS"
	CredentialsJsonEnvVar = "GOOGLE_APPLICATION_CREDENTIALS_JSON"
	TargetCredentialsFile = "./google-application-credentials.json"
)

func configureFirebaseCredentials(logger *zap.Logger) error {
	credentialsPath, hasCredentialsPath := os.LookupEnv(CredentialsPathEnvVar)
	if hasCredentialsPath {
		logger.Info("credentials path detected in env", zap.String("path", credentialsPath))
		return nil
	}
	credentialsJson, hasCredentialsJson := os.LookupEnv(CredentialsJsonEnvVar)
	if hasCredentialsJson {
		logger.Info("credentials JSON string detected in env")
		err := os.WriteFile(TargetCredentialsFile, []byte(credentialsJson), 0o400)
		if err != nil {
			return fmt.Errorf("error writing credentials to temp file, %w", err)
		}
		err = os.Setenv(CredentialsPathEnvVar, TargetCredentialsFile)
		if err != nil {
			return fmt.Errorf("error setting %v env var %w", CredentialsPathEnvVar, err)
		}
		return nil
	}
	return fmt.Errorf("must specify either %v (a path)"+
		" or %v (credentials as JSON string)", CredentialsPathEnvVar, CredentialsJsonEnvVar)
}
