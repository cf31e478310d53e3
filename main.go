package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"vodflow/internal/catalog"
	"vodflow/internal/config"
	"vodflow/internal/ingest"
	"vodflow/internal/media"
	"vodflow/internal/pipeline"
	"vodflow/internal/s3"
	"vodflow/internal/upload"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var bind string
	var mediaConfigPath string

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:          "vodflow",
		Short:        "Video ingest and HLS publishing server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cmd.Flags().Changed("media-config") {
				cfg.MediaConfigPath = mediaConfigPath
			}
			if bind == "" {
				bind = ":" + cfg.Port
			}

			logger := newLogger(cfg.LogLevel)
			slog.SetDefault(logger)

			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg, bind, logger)
		},
	}
	rootCmd.Flags().StringVarP(&bind, "bind", "b", "", "Address to bind the server (default :$PORT)")
	rootCmd.Flags().StringVarP(&mediaConfigPath, "media-config", "m", "", "Path to the media config YAML")

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, bind string, logger *slog.Logger) error {
	mediaCfg, err := config.LoadMediaConfig(cfg.MediaConfigPath)
	if err != nil {
		return err
	}
	ladder := media.LadderFromConfig(mediaCfg)
	if err := ladder.Validate(); err != nil {
		return fmt.Errorf("media config %s: %w", cfg.MediaConfigPath, err)
	}

	store, err := s3.NewClient(ctx, s3.Options{
		Region:        cfg.S3Region,
		Bucket:        cfg.S3Bucket,
		AccessKey:     cfg.AWSAccessKey,
		SecretKey:     cfg.AWSSecretKey,
		Endpoint:      cfg.S3Endpoint,
		PublicBaseURL: cfg.PublicBaseURL,
	})
	if err != nil {
		return err
	}

	writer, err := catalog.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := writer.Close(closeCtx); err != nil {
			logger.Warn("catalog close failed", "error", err)
		}
	}()

	runner := media.NewExecRunner(logger)
	publisher := pipeline.New(
		store,
		media.NewFFmpegEncoder(cfg.FFmpegPath, runner, mediaCfg.SegmentSeconds, mediaCfg.Preset),
		media.NewFFmpegThumbnailer(cfg.FFmpegPath, runner, mediaCfg.Thumbnail.Width, mediaCfg.Thumbnail.Quality),
		media.NewFFprobe(cfg.FFprobePath, runner),
		pipeline.Options{
			WorkDir:           cfg.WorkDir,
			UploadConcurrency: cfg.PublishConcurrency,
			ThumbnailFormat:   mediaCfg.Thumbnail.ConvertTo,
			ThumbnailSeek:     time.Duration(mediaCfg.Thumbnail.SeekSeconds * float64(time.Second)),
		},
		logger,
	)

	coordinator := upload.NewCoordinator(store,
		upload.WithPartSize(cfg.PartSizeBytes()),
		upload.WithConcurrency(cfg.UploadConcurrency),
		upload.WithMaxRetries(cfg.PartMaxRetries),
		upload.WithPresignTTL(cfg.PresignTTL),
		upload.WithLogger(logger),
	)

	svc := ingest.NewService(coordinator, publisher, store, writer, ladder, ingest.Options{
		WorkDir:        cfg.WorkDir,
		MaxUploadBytes: cfg.MaxUploadMB * 1024 * 1024,
	}, logger)

	server := &http.Server{
		Addr: bind,
		Handler: newRouter(routes{
			uploads: upload.NewHandler(coordinator, logger),
			ingest:  ingest.NewHandler(svc, logger),
			apiKey:  cfg.APIKey,
		}, logger),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			"addr", bind,
			"bucket", cfg.S3Bucket,
			"catalog", cfg.CatalogDriver,
			"renditions", len(ladder),
			"auth", cfg.APIKey != "")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited")
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      lvl,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	}))
}
