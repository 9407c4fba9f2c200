package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/parley/internal/auth"
	"github.com/MarcoPoloResearchLab/parley/internal/config"
	"github.com/MarcoPoloResearchLab/parley/internal/database"
	"github.com/MarcoPoloResearchLab/parley/internal/logging"
	"github.com/MarcoPoloResearchLab/parley/internal/media"
	"github.com/MarcoPoloResearchLab/parley/internal/messages"
	"github.com/MarcoPoloResearchLab/parley/internal/realtime"
	"github.com/MarcoPoloResearchLab/parley/internal/server"
	"github.com/MarcoPoloResearchLab/parley/internal/users"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
	envFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "parley-api",
		Short: "Parley direct messaging backend",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file loaded before configuration")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().StringSlice("allowed-origins", defaults.GetStringSlice("http.allowed_origins"), "Origins allowed for CORS and websocket upgrades")
	cmd.PersistentFlags().String("database-driver", defaults.GetString("database.driver"), "Database driver (sqlite, mongo)")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("mongo-uri", "", "MongoDB connection URI")
	cmd.PersistentFlags().String("media-provider", defaults.GetString("media.provider"), "Media provider (disk, cloudinary)")
	cmd.PersistentFlags().String("media-dir", defaults.GetString("media.disk_dir"), "Directory for disk uploads")
	cmd.PersistentFlags().Duration("token-ttl", defaults.GetDuration("auth.token_ttl"), "Session token TTL")
	cmd.PersistentFlags().Bool("secure-cookie", defaults.GetBool("auth.secure_cookie"), "Mark the session cookie Secure")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("log-format", defaults.GetString("log.format"), "Log format (json, console)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "http.allowed_origins", "allowed-origins")
	bindFlag(cmd, "database.driver", "database-driver")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "database.mongo_uri", "mongo-uri")
	bindFlag(cmd, "media.provider", "media-provider")
	bindFlag(cmd, "media.disk_dir", "media-dir")
	bindFlag(cmd, "auth.token_ttl", "token-ttl")
	bindFlag(cmd, "auth.secure_cookie", "secure-cookie")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "log.format", "log-format")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	if cfgFile == "" {
		return nil
	}
	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", cfgFile, err)
	}
	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	store, err := database.Open(ctx, appConfig, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Warn("database close failed", zap.Error(err))
		}
	}()

	uploader, mediaDirectory, err := newUploader(appConfig)
	if err != nil {
		return err
	}

	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        auth.DefaultSessionIssuer,
		TokenTTL:      appConfig.TokenTTL,
	})
	if err != nil {
		return err
	}
	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        auth.DefaultSessionIssuer,
		CookieName:    appConfig.CookieName,
	})
	if err != nil {
		return err
	}

	usersService, err := users.NewService(users.ServiceConfig{
		Repository: store,
		Hasher:     auth.NewPasswordHasher(0),
		Uploader:   uploader,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	registry := realtime.NewRegistry(realtime.NewPresenceBroadcaster(logger), logger)
	messagesService, err := messages.NewService(messages.ServiceConfig{
		Repository: store,
		Uploader:   uploader,
		Directory:  usersService,
		Notifier:   realtime.NewRouter(registry, logger),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:       sessionValidator,
		Issuer:         tokenIssuer,
		Users:          usersService,
		Messages:       messagesService,
		Registry:       registry,
		Store:          store,
		Media:          uploader,
		MediaDirectory: mediaDirectory,
		AllowedOrigins: appConfig.AllowedOrigins,
		SecureCookie:   appConfig.SecureCookie,
		SendBuffer:     appConfig.RealtimeSendBuffer,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("database_driver", appConfig.DatabaseDriver),
			zap.String("media_provider", appConfig.MediaProvider))
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

// newUploader returns the configured media.Uploader and, for disk storage, the directory to serve.
func newUploader(appConfig config.AppConfig) (media.Uploader, string, error) {
	switch appConfig.MediaProvider {
	case config.MediaProviderCloudinary:
		uploader, err := media.NewCloudinaryUploader(media.CloudinaryConfig{
			CloudName: appConfig.CloudinaryCloud,
			APIKey:    appConfig.CloudinaryKey,
			APISecret: appConfig.CloudinarySecret,
		})
		return uploader, "", err
	default:
		uploader, err := media.NewDiskUploader(media.DiskUploaderConfig{
			Directory:     appConfig.MediaDiskDir,
			PublicBaseURL: appConfig.MediaPublicBaseURL,
		})
		if err != nil {
			return nil, "", err
		}
		return uploader, uploader.Directory(), nil
	}
}
