package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	utils "vodflow/internal"
	"vodflow/internal/apperr"
	"vodflow/internal/catalog"
	"vodflow/internal/media"
	"vodflow/internal/pipeline"
	"vodflow/internal/upload"
)

// DefaultGenre is stored when the caller leaves genre empty.
const DefaultGenre = "Action"

type SourceUploader interface {
	Upload(ctx context.Context, key string, src io.Reader) (*upload.Result, error)
}

type Publisher interface {
	Publish(ctx context.Context, src string, ladder media.Ladder, userThumbnailURL string) (*pipeline.Artifact, error)
}

// SourceStore resolves and fetches previously uploaded sources.
type SourceStore interface {
	ObjectURL(key string) string
	KeyFromURL(raw string) (string, error)
	DownloadFile(ctx context.Context, key, localPath string) (int64, error)
}

type DirectUploadInput struct {
	File        io.Reader
	Filename    string
	Title       string
	Description string
	Genre       string
}

type DirectUploadResult struct {
	ID           string
	VideoURL     string
	ThumbnailURL string
	Duration     string
	SourceURL    string
	Degraded     []string
}

type PublishMetadataInput struct {
	VideoURL     string
	Title        string
	Genre        string
	Description  string
	ThumbnailURL string
}

type PublishMetadataResult struct {
	ID           string
	Duration     string
	ThumbnailURL string
	VideoURL     string
	Degraded     []string
}

type Options struct {
	WorkDir string
	// MaxUploadBytes caps a direct upload; zero means unlimited.
	MaxUploadBytes int64
}

type Service struct {
	uploader  SourceUploader
	publisher Publisher
	store     SourceStore
	catalog   catalog.Writer
	ladder    media.Ladder
	opts      Options
	logger    *slog.Logger
}

func NewService(uploader SourceUploader, publisher Publisher, store SourceStore, writer catalog.Writer, ladder media.Ladder, opts Options, logger *slog.Logger) *Service {
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	return &Service{
		uploader:  uploader,
		publisher: publisher,
		store:     store,
		catalog:   writer,
		ladder:    ladder,
		opts:      opts,
		logger:    logger.With("component", "ingest"),
	}
}

// DirectUpload keeps the source in the bucket, publishes a streamable copy of
// it and records the result in the catalog.
func (s *Service) DirectUpload(ctx context.Context, in DirectUploadInput) (*DirectUploadResult, error) {
	const op = "direct upload"

	if in.File == nil {
		return nil, apperr.Invalid(op, "file is required")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.Invalid(op, "title is required")
	}
	filename, err := upload.CleanFilename(in.Filename)
	if err != nil {
		return nil, apperr.New(apperr.KindInvalid, op, err)
	}

	tmp, size, err := utils.SpoolToTemp(s.opts.WorkDir, "upload-*"+filepath.Ext(filename), in.File, s.opts.MaxUploadBytes)
	if err != nil {
		if errors.Is(err, utils.ErrTooLarge) {
			return nil, apperr.New(apperr.KindInvalid, op, err)
		}
		return nil, apperr.New(apperr.KindTransientIO, op, fmt.Errorf("spool upload: %w", err))
	}
	defer utils.RemoveAll(s.logger, tmp)
	if size == 0 {
		return nil, apperr.New(apperr.KindInvalid, op, upload.ErrEmptySource)
	}

	logger := s.logger.With("filename", filename, "size", humanize.IBytes(uint64(size)))
	logger.Info("direct upload received")

	f, err := os.Open(tmp)
	if err != nil {
		return nil, apperr.New(apperr.KindTransientIO, op, err)
	}
	result, err := s.uploader.Upload(ctx, upload.SourceKey(filename), f)
	f.Close()
	if err != nil {
		return nil, err
	}
	sourceURL := s.store.ObjectURL(result.Key)

	art, err := s.publisher.Publish(ctx, tmp, s.ladder, "")
	if err != nil {
		logger.Error("publish failed", "source", result.Key, "error", err)
		return nil, err
	}

	rec := &catalog.Record{
		Title:        title,
		Description:  in.Description,
		Genre:        genreOrDefault(in.Genre),
		Duration:     art.Duration,
		VideoURL:     art.ManifestURL,
		ThumbnailURL: art.ThumbnailURL,
		SourceURL:    sourceURL,
	}
	if err := s.insert(ctx, logger, rec, art); err != nil {
		return nil, err
	}

	return &DirectUploadResult{
		ID:           rec.ID,
		VideoURL:     art.ManifestURL,
		ThumbnailURL: art.ThumbnailURL,
		Duration:     art.Duration,
		SourceURL:    sourceURL,
		Degraded:     art.Degraded,
	}, nil
}

// PublishMetadata publishes a source that a client already uploaded through
// the presigned flow and records it under the caller's metadata.
func (s *Service) PublishMetadata(ctx context.Context, in PublishMetadataInput) (*PublishMetadataResult, error) {
	const op = "publish metadata"

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, apperr.Invalid(op, "title is required")
	}
	key, err := s.store.KeyFromURL(strings.TrimSpace(in.VideoURL))
	if err != nil {
		return nil, apperr.New(apperr.KindInvalid, op, err)
	}

	tmp, err := reserveTemp(s.opts.WorkDir, "source-*"+filepath.Ext(key))
	if err != nil {
		return nil, apperr.New(apperr.KindTransientIO, op, err)
	}
	defer utils.RemoveAll(s.logger, tmp)

	logger := s.logger.With("key", key)
	n, err := s.store.DownloadFile(ctx, key, tmp)
	if err != nil {
		return nil, apperr.New(apperr.KindTransientIO, op, fmt.Errorf("download %s: %w", key, err))
	}
	logger.Info("source downloaded", "size", humanize.IBytes(uint64(n)))

	art, err := s.publisher.Publish(ctx, tmp, s.ladder, in.ThumbnailURL)
	if err != nil {
		logger.Error("publish failed", "error", err)
		return nil, err
	}

	rec := &catalog.Record{
		Title:        title,
		Description:  in.Description,
		Genre:        genreOrDefault(in.Genre),
		Duration:     art.Duration,
		VideoURL:     art.ManifestURL,
		ThumbnailURL: art.ThumbnailURL,
		SourceURL:    in.VideoURL,
	}
	if err := s.insert(ctx, logger, rec, art); err != nil {
		return nil, err
	}

	return &PublishMetadataResult{
		ID:           rec.ID,
		Duration:     art.Duration,
		ThumbnailURL: art.ThumbnailURL,
		VideoURL:     art.ManifestURL,
		Degraded:     art.Degraded,
	}, nil
}

// insert never rolls back the published objects; they stay under art.Prefix.
func (s *Service) insert(ctx context.Context, logger *slog.Logger, rec *catalog.Record, art *pipeline.Artifact) error {
	if err := s.catalog.Insert(ctx, rec); err != nil {
		logger.Error("catalog insert failed", "prefix", art.Prefix, "manifest", art.ManifestURL, "error", err)
		return apperr.New(apperr.KindPersistence, "catalog insert", err)
	}
	logger.Info("catalog record stored", "id", rec.ID, "title", rec.Title, "manifest", rec.VideoURL)
	return nil
}

func genreOrDefault(genre string) string {
	if g := strings.TrimSpace(genre); g != "" {
		return g
	}
	return DefaultGenre
}

func reserveTemp(dir, pattern string) (string, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}
