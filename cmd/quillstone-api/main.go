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

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/quillstone/backend/internal/audit"
	"github.com/quillstone/backend/internal/auth"
	"github.com/quillstone/backend/internal/config"
	"github.com/quillstone/backend/internal/database"
	"github.com/quillstone/backend/internal/documents"
	"github.com/quillstone/backend/internal/events"
	"github.com/quillstone/backend/internal/groups"
	"github.com/quillstone/backend/internal/ids"
	"github.com/quillstone/backend/internal/logging"
	"github.com/quillstone/backend/internal/server"
	"github.com/quillstone/backend/internal/sharing"
	"github.com/quillstone/backend/internal/users"
	"github.com/quillstone/backend/internal/versions"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "quillstone-api",
		Short: "Quillstone collaboration backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(newTokenCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Token signing secret (overrides env)")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Bearer token TTL in minutes")
	cmd.PersistentFlags().String("redis-address", defaults.GetString("redis.address"), "Redis address for notification delivery (empty disables)")
	cmd.PersistentFlags().Int("version-retention", defaults.GetInt("versions.retention_limit"), "Versions kept per document")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "redis.address", "redis-address")
	bindFlag(cmd, "versions.retention_limit", "version-retention")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

// newTokenCommand issues a bearer token for local development and testing.
func newTokenCommand() *cobra.Command {
	var subject, email, name string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development bearer token",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, err := config.Load(viper.GetViper())
			if err != nil {
				return err
			}
			if subject == "" {
				return fmt.Errorf("--subject is required")
			}
			issuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(appConfig.AuthSigningSecret),
				Issuer:        appConfig.AuthIssuer,
				Audience:      appConfig.AuthAudience,
				TokenTTL:      appConfig.AuthTokenTTL,
			})
			token, expiresIn, err := issuer.IssueToken(cmd.Context(), auth.Principal{
				ID:    subject,
				Email: email,
				Name:  name,
			})
			if err != nil {
				return err
			}
			cmd.Printf("%s\n", token)
			cmd.PrintErrf("expires in %d seconds\n", expiresIn)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Subject (user id) for the token")
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	cmd.Flags().StringVar(&name, "name", "", "Display name claim")
	return cmd
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	idProvider := ids.NewUUIDProvider()

	tokenIssuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.AuthSigningSecret),
		Issuer:        appConfig.AuthIssuer,
		Audience:      appConfig.AuthAudience,
		TokenTTL:      appConfig.AuthTokenTTL,
	})

	identityService, err := users.NewService(users.ServiceConfig{Database: db, Clock: time.Now})
	if err != nil {
		return err
	}
	groupService, err := groups.NewService(groups.ServiceConfig{
		Database:   db,
		Clock:      time.Now,
		IDProvider: idProvider,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	versionStore, err := versions.NewStore(versions.StoreConfig{
		Database:       db,
		IDProvider:     idProvider,
		Clock:          time.Now,
		Logger:         logger,
		RetentionLimit: appConfig.VersionRetention,
	})
	if err != nil {
		return err
	}
	registry, err := sharing.NewRegistry(sharing.RegistryConfig{
		Database:   db,
		IDProvider: idProvider,
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	recorder, err := audit.NewRecorder(audit.RecorderConfig{
		IDProvider: idProvider,
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	sink, closeSink := buildSink(ctx, appConfig, logger)
	defer closeSink()

	bus, err := events.NewBus(events.BusConfig{
		Database:   db,
		Resolver:   registry,
		Sink:       sink,
		IDProvider: idProvider,
		Clock:      time.Now,
		Logger:     logger,
		Workers:    appConfig.EventWorkers,
		QueueSize:  appConfig.EventQueueSize,
	})
	if err != nil {
		return err
	}
	defer bus.Close()

	documentService, err := documents.NewService(documents.ServiceConfig{
		Database:   db,
		Versions:   versionStore,
		Registry:   registry,
		Audit:      recorder,
		Users:      identityService,
		Publisher:  bus,
		IDProvider: idProvider,
		Clock:      time.Now,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Tokens:    tokenIssuer,
		Documents: documentService,
		Groups:    groupService,
		Users:     identityService,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// buildSink connects the Redis delivery fabric when configured and
// reachable; otherwise deliveries are discarded while notification rows are
// still written.
func buildSink(ctx context.Context, appConfig config.AppConfig, logger *zap.Logger) (events.DeliverySink, func()) {
	if appConfig.RedisAddress == "" {
		logger.Info("redis not configured, notification delivery disabled")
		return events.NewNopSink(logger), func() {}
	}

	client := redis.NewClient(&redis.Options{Addr: appConfig.RedisAddress})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, notification delivery disabled",
			zap.String("address", appConfig.RedisAddress),
			zap.Error(err))
		_ = client.Close()
		return events.NewNopSink(logger), func() {}
	}

	logger.Info("redis delivery fabric connected", zap.String("address", appConfig.RedisAddress))
	return events.NewRedisSink(client, appConfig.RedisChannelPrefix), func() { _ = client.Close() }
}
