package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	utils "vodflow/internal"
	"vodflow/internal/apperr"
	"vodflow/internal/media"
	"vodflow/internal/metrics"
)

const (
	StageStaged      = "staged"
	StageEncoded     = "encoded"
	StageThumbnailed = "thumbnailed"
	StageProbed      = "probed"
	StageUploaded    = "uploaded"
	StagePublished   = "published"

	DefaultUploadConcurrency = 4
)

// ObjectStore is the part of the object store client the pipeline writes through.
type ObjectStore interface {
	PutFile(ctx context.Context, localPath, key, contentType string) error
	ObjectURL(key string) string
}

type Options struct {
	WorkDir           string
	UploadConcurrency int
	// ThumbnailFormat is jpeg, png or webp.
	ThumbnailFormat string
	ThumbnailSeek   time.Duration
}

type Pipeline struct {
	store       ObjectStore
	encoder     media.Encoder
	thumbnailer media.ThumbnailExtractor
	prober      media.Prober
	opts        Options
	logger      *slog.Logger
}

func New(store ObjectStore, encoder media.Encoder, thumbnailer media.ThumbnailExtractor, prober media.Prober, opts Options, logger *slog.Logger) *Pipeline {
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	if opts.UploadConcurrency <= 0 {
		opts.UploadConcurrency = DefaultUploadConcurrency
	}
	if opts.ThumbnailSeek <= 0 {
		opts.ThumbnailSeek = time.Second
	}
	return &Pipeline{
		store:       store,
		encoder:     encoder,
		thumbnailer: thumbnailer,
		prober:      prober,
		opts:        opts,
		logger:      logger.With("component", "pipeline"),
	}
}

// Publish transcodes src into ladder, enriches it with a thumbnail and a
// duration and uploads the result under videos/{id}. A non-blank
// userThumbnailURL is used verbatim instead of extracting a frame. Local
// staging is removed on every path; objects already uploaded are left in
// place when a later upload fails.
func (p *Pipeline) Publish(ctx context.Context, src string, ladder media.Ladder, userThumbnailURL string) (*Artifact, error) {
	started := time.Now()
	metrics.ActivePublishes.Inc()
	defer metrics.ActivePublishes.Dec()

	if err := ladder.Validate(); err != nil {
		return nil, err
	}
	if err := utils.RegularFile(src); err != nil {
		return nil, apperr.New(apperr.KindInvalid, "stage source", err)
	}

	stagingDir, err := os.MkdirTemp(p.opts.WorkDir, "publish-*")
	if err != nil {
		return nil, apperr.New(apperr.KindTransientIO, "create staging directory", err)
	}
	defer utils.RemoveAll(p.logger, stagingDir)

	id := uuid.NewString()
	art := &Artifact{ID: id, Prefix: "videos/" + id}
	logger := p.logger.With("publish_id", id)
	p.stage(logger, StageStaged, "ok", "src", src, "staging_dir", stagingDir)

	if err := p.encoder.Encode(ctx, src, ladder, stagingDir); err != nil {
		p.stage(logger, StageEncoded, "failed", "error", err)
		return nil, apperr.New(apperr.KindFatalEncode, "encode renditions", err)
	}
	manifest, err := media.InspectManifest(stagingDir, ladder)
	if err != nil {
		p.stage(logger, StageEncoded, "failed", "error", err)
		return nil, apperr.New(apperr.KindFatalEncode, "inspect manifest", err)
	}
	p.stage(logger, StageEncoded, "ok", "variants", len(manifest.Variants), "segments", manifest.SegmentCount())

	p.thumbnail(ctx, logger, art, src, stagingDir, userThumbnailURL)
	p.probe(ctx, logger, art, src)

	objects, err := p.uploadDir(ctx, stagingDir, art.Prefix)
	if err != nil {
		p.stage(logger, StageUploaded, "failed", "error", err)
		return nil, apperr.New(apperr.KindFatalUpload, "upload renditions", err)
	}
	art.Objects = objects
	p.stage(logger, StageUploaded, "ok", "objects", objects)

	art.ManifestKey = art.Prefix + "/" + media.MasterPlaylistName
	art.ManifestURL = p.store.ObjectURL(art.ManifestKey)
	art.SegmentKeys = make(map[int][]string, len(manifest.Variants))
	for _, v := range manifest.Variants {
		dir := strings.TrimSuffix(v.URI, "prog.m3u8")
		keys := make([]string, len(v.Segments))
		for i, s := range v.Segments {
			keys[i] = art.Prefix + "/" + dir + s
		}
		art.SegmentKeys[v.Index] = keys
	}
	if art.ThumbnailKey != "" {
		art.ThumbnailURL = p.store.ObjectURL(art.ThumbnailKey)
	}

	elapsed := time.Since(started)
	metrics.PublishDuration.Observe(elapsed.Seconds())
	p.stage(logger, StagePublished, "ok", "manifest", art.ManifestURL, "elapsed", elapsed.Round(time.Millisecond))
	return art, nil
}

// thumbnail never fails the publish; a missing thumbnail is recorded as degraded.
func (p *Pipeline) thumbnail(ctx context.Context, logger *slog.Logger, art *Artifact, src, stagingDir, userURL string) {
	if u := strings.TrimSpace(userURL); u != "" {
		art.ThumbnailURL = u
		p.stage(logger, StageThumbnailed, "provided")
		return
	}

	name := "thumbnail." + media.ThumbnailExt(p.opts.ThumbnailFormat)
	path := filepath.Join(stagingDir, name)
	if err := p.thumbnailer.ExtractFrame(ctx, src, p.opts.ThumbnailSeek, path); err != nil {
		os.Remove(path)
		art.degrade(DegradedThumbnail)
		p.stage(logger, StageThumbnailed, "degraded", "error", err)
		return
	}

	art.ThumbnailKey = art.Prefix + "/" + name
	p.stage(logger, StageThumbnailed, "ok")
}

func (p *Pipeline) probe(ctx context.Context, logger *slog.Logger, art *Artifact, src string) {
	seconds, err := p.prober.ProbeDuration(ctx, src)
	if err != nil {
		art.Duration = media.UnknownDuration
		art.degrade(DegradedDuration)
		p.stage(logger, StageProbed, "degraded", "error", err)
		return
	}

	art.Duration = media.FormatDuration(seconds)
	p.stage(logger, StageProbed, "ok", "duration", art.Duration)
}

// uploadDir uploads every regular file under dir to prefix/{relative path}.
func (p *Pipeline) uploadDir(ctx context.Context, dir, prefix string) (int, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list staging directory: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.UploadConcurrency)
	for _, path := range files {
		path := path
		g.Go(func() error {
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			key := prefix + "/" + filepath.ToSlash(rel)
			if err := p.store.PutFile(gctx, path, key, utils.ContentType(path)); err != nil {
				return fmt.Errorf("put %s: %w", key, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(files), nil
}

func (p *Pipeline) stage(logger *slog.Logger, stage, outcome string, args ...any) {
	metrics.PublishStages.WithLabelValues(stage, outcome).Inc()

	args = append([]any{"stage", stage, "outcome", outcome}, args...)
	switch outcome {
	case "failed":
		logger.Error("publish stage", args...)
	case "degraded":
		logger.Warn("publish stage", args...)
	default:
		logger.Info("publish stage", args...)
	}
}
