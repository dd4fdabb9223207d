package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pocketalbum/photofeed/internal/auth"
	"github.com/pocketalbum/photofeed/internal/config"
	"github.com/pocketalbum/photofeed/internal/database"
	"github.com/pocketalbum/photofeed/internal/logging"
	"github.com/pocketalbum/photofeed/internal/photos"
	"github.com/pocketalbum/photofeed/internal/server"
	"github.com/pocketalbum/photofeed/internal/storage"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "photofeed-api",
		Short: "Personal photo album backend service",
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
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")
	cmd.PersistentFlags().String("storage-backend", defaults.GetString("storage.backend"), "Blob storage backend (local or minio)")
	cmd.PersistentFlags().String("uploads-dir", defaults.GetString("storage.local.directory"), "Directory for locally stored renditions")
	cmd.PersistentFlags().String("uploads-public-url", defaults.GetString("storage.local.public_url"), "Public URL prefix for locally stored renditions")
	cmd.PersistentFlags().String("minio-endpoint", defaults.GetString("storage.minio.endpoint"), "MinIO endpoint host:port")
	cmd.PersistentFlags().String("minio-bucket", defaults.GetString("storage.minio.bucket"), "MinIO bucket name")
	cmd.PersistentFlags().Int("signed-url-ttl-seconds", defaults.GetInt("storage.signed_url_ttl_seconds"), "Signed URL lifetime in seconds")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "storage.backend", "storage-backend")
	bindFlag(cmd, "storage.local.directory", "uploads-dir")
	bindFlag(cmd, "storage.local.public_url", "uploads-public-url")
	bindFlag(cmd, "storage.minio.endpoint", "minio-endpoint")
	bindFlag(cmd, "storage.minio.bucket", "minio-bucket")
	bindFlag(cmd, "storage.signed_url_ttl_seconds", "signed-url-ttl-seconds")
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

	store, uploadsDirectory, err := buildBlobStore(ctx, appConfig)
	if err != nil {
		return err
	}

	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.AuthSigningSecret),
		Issuer:        appConfig.AuthIssuer,
		CookieName:    appConfig.AuthCookieName,
	})
	if err != nil {
		return err
	}

	photosService, err := photos.NewService(photos.ServiceConfig{
		Database:   db,
		Store:      store,
		Clock:      time.Now,
		IDProvider: photos.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Sessions:         sessionValidator,
		Photos:           photosService,
		Realtime:         server.NewRealtimeDispatcher(),
		UploadsDirectory: uploadsDirectory,
		Logger:           logger,
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
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.String("storage_backend", appConfig.StorageBackend))
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

// buildBlobStore constructs the configured backend. The uploads directory is
// only returned for the local backend, where the server must serve the files
// it writes.
func buildBlobStore(ctx context.Context, appConfig config.AppConfig) (storage.BlobStore, string, error) {
	switch appConfig.StorageBackend {
	case config.StorageBackendLocal:
		store, err := storage.NewLocalStore(appConfig.LocalDirectory, appConfig.LocalPublicURL)
		if err != nil {
			return nil, "", err
		}
		return store, store.Directory(), nil
	case config.StorageBackendMinio:
		store, err := storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:        appConfig.MinioEndpoint,
			AccessKeyID:     appConfig.MinioAccessKey,
			SecretAccessKey: appConfig.MinioSecretKey,
			Bucket:          appConfig.MinioBucket,
			UseSSL:          appConfig.MinioUseSSL,
			SignedURLTTL:    appConfig.SignedURLTTL,
			RefreshBuffer:   appConfig.RefreshBuffer,
		})
		if err != nil {
			return nil, "", err
		}
		return store, "", nil
	default:
		return nil, "", errors.New("unsupported storage backend " + appConfig.StorageBackend)
	}
}
