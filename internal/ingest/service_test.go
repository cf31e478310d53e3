package ingest

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vodflow/internal/apperr"
	"vodflow/internal/catalog"
	"vodflow/internal/media"
	"vodflow/internal/media/mediatest"
	"vodflow/internal/pipeline"
	"vodflow/internal/upload"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeUploader struct {
	mu   sync.Mutex
	keys []string
	body []byte
	err  error
}

func (u *fakeUploader) Upload(ctx context.Context, key string, src io.Reader) (*upload.Result, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.keys = append(u.keys, key)
	u.body = data
	if u.err != nil {
		return nil, u.err
	}
	return &upload.Result{
		Key:      key,
		UploadID: "upload-1",
		Location: "https://bucket.s3.amazonaws.com/" + key,
		Parts:    []upload.Part{{Number: 1, ETag: `"etag-1"`, Size: int64(len(data))}},
	}, nil
}

// fakeStore backs both the pipeline and the ingest service.
type fakeStore struct {
	mu      sync.Mutex
	puts    []string
	sources map[string][]byte
	putErr  error
}

func (s *fakeStore) PutFile(ctx context.Context, localPath, key, contentType string) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts = append(s.puts, key)
	return nil
}

func (s *fakeStore) ObjectURL(key string) string {
	return "https://cdn.test/" + key
}

func (s *fakeStore) KeyFromURL(raw string) (string, error) {
	key, ok := strings.CutPrefix(raw, "https://cdn.test/")
	if !ok || key == "" {
		return "", errors.New("not a bucket url")
	}
	return key, nil
}

func (s *fakeStore) DownloadFile(ctx context.Context, key, localPath string) (int64, error) {
	data, ok := s.sources[key]
	if !ok {
		return 0, errors.New("NoSuchKey")
	}
	return int64(len(data)), os.WriteFile(localPath, data, 0o644)
}

type failingWriter struct{}

func (failingWriter) Insert(ctx context.Context, rec *catalog.Record) error {
	return errors.New("server selection timeout")
}

func (failingWriter) Close(ctx context.Context) error { return nil }

type fixture struct {
	uploader    *fakeUploader
	store       *fakeStore
	encoder     *mediatest.Encoder
	thumbnailer *mediatest.Thumbnailer
	prober      *mediatest.Prober
	catalog     *catalog.SQLite
	workDir     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := catalog.NewSQLite()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(context.Background()) })

	return &fixture{
		uploader:    &fakeUploader{},
		store:       &fakeStore{sources: map[string][]byte{}},
		encoder:     &mediatest.Encoder{DurationSeconds: 12, SegmentSeconds: 6},
		thumbnailer: &mediatest.Thumbnailer{},
		prober:      &mediatest.Prober{Seconds: 125},
		catalog:     db,
		workDir:     t.TempDir(),
	}
}

func (f *fixture) service(writer catalog.Writer, opts Options) *Service {
	p := pipeline.New(f.store, f.encoder, f.thumbnailer, f.prober, pipeline.Options{WorkDir: f.workDir}, testLogger())
	if opts.WorkDir == "" {
		opts.WorkDir = f.workDir
	}
	return NewService(f.uploader, p, f.store, writer, media.DefaultLadder(), opts, testLogger())
}

func (f *fixture) assertWorkDirEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.workDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary files left behind")
}

func TestDirectUpload(t *testing.T) {
	f := newFixture(t)
	svc := f.service(f.catalog, Options{})

	res, err := svc.DirectUpload(context.Background(), DirectUploadInput{
		File:     bytes.NewReader([]byte("movie bytes")),
		Filename: "trailer.mp4",
		Title:    "Trailer",
	})
	require.NoError(t, err)

	require.Len(t, f.uploader.keys, 1)
	key := f.uploader.keys[0]
	assert.True(t, strings.HasPrefix(key, "uploads/"))
	assert.True(t, strings.HasSuffix(key, "_trailer.mp4"))
	assert.Equal(t, []byte("movie bytes"), f.uploader.body)

	assert.Equal(t, "https://cdn.test/"+key, res.SourceURL)
	assert.True(t, strings.HasPrefix(res.VideoURL, "https://cdn.test/videos/"))
	assert.True(t, strings.HasSuffix(res.VideoURL, "/master.m3u8"))
	assert.True(t, strings.HasSuffix(res.ThumbnailURL, "/thumbnail.jpg"))
	assert.Equal(t, "2m 5s", res.Duration)
	assert.Empty(t, res.Degraded)

	rec, err := f.catalog.Get(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, "Trailer", rec.Title)
	assert.Equal(t, DefaultGenre, rec.Genre)
	assert.Equal(t, "", rec.Description)
	assert.Equal(t, res.VideoURL, rec.VideoURL)
	assert.Equal(t, res.ThumbnailURL, rec.ThumbnailURL)
	assert.Equal(t, res.SourceURL, rec.SourceURL)

	f.assertWorkDirEmpty(t)
}

func TestDirectUpload_KeepsGivenGenre(t *testing.T) {
	f := newFixture(t)
	svc := f.service(f.catalog, Options{})

	res, err := svc.DirectUpload(context.Background(), DirectUploadInput{
		File:        strings.NewReader("x"),
		Filename:    "a.mov",
		Title:       "A",
		Description: "short film",
		Genre:       "Drama",
	})
	require.NoError(t, err)

	rec, err := f.catalog.Get(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, "Drama", rec.Genre)
	assert.Equal(t, "short film", rec.Description)
}

func TestDirectUpload_InvalidInput(t *testing.T) {
	tests := []struct {
		name string
		in   DirectUploadInput
	}{
		{"no file", DirectUploadInput{Filename: "a.mp4", Title: "A"}},
		{"no title", DirectUploadInput{File: strings.NewReader("x"), Filename: "a.mp4", Title: "  "}},
		{"bad filename", DirectUploadInput{File: strings.NewReader("x"), Filename: "..", Title: "A"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.service(f.catalog, Options{}).DirectUpload(context.Background(), tt.in)
			assert.True(t, apperr.Is(err, apperr.KindInvalid), err)
			assert.Empty(t, f.uploader.keys)
			f.assertWorkDirEmpty(t)
		})
	}
}

func TestDirectUpload_TooLarge(t *testing.T) {
	f := newFixture(t)
	svc := f.service(f.catalog, Options{MaxUploadBytes: 4})

	_, err := svc.DirectUpload(context.Background(), DirectUploadInput{
		File:     strings.NewReader("12345"),
		Filename: "a.mp4",
		Title:    "A",
	})
	assert.True(t, apperr.Is(err, apperr.KindInvalid), err)
	assert.Empty(t, f.uploader.keys)
	f.assertWorkDirEmpty(t)
}

func TestDirectUpload_EmptyFile(t *testing.T) {
	f := newFixture(t)
	svc := f.service(f.catalog, Options{})

	_, err := svc.DirectUpload(context.Background(), DirectUploadInput{
		File:     strings.NewReader(""),
		Filename: "a.mp4",
		Title:    "A",
	})
	assert.True(t, apperr.Is(err, apperr.KindInvalid), err)
	assert.ErrorIs(t, err, upload.ErrEmptySource)
	assert.Empty(t, f.uploader.keys)
	assert.Equal(t, 0, f.encoder.Calls())
	f.assertWorkDirEmpty(t)
}

func TestDirectUpload_SourceUploadFailure(t *testing.T) {
	f := newFixture(t)
	f.uploader.err = apperr.New(apperr.KindFatalUpload, "upload part 2", errors.New("RequestTimeout"))
	svc := f.service(f.catalog, Options{})

	_, err := svc.DirectUpload(context.Background(), DirectUploadInput{File: strings.NewReader("x"), Filename: "a.mp4", Title: "A"})
	assert.True(t, apperr.Is(err, apperr.KindFatalUpload))
	assert.Equal(t, 0, f.encoder.Calls())

	n, err := f.catalog.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	f.assertWorkDirEmpty(t)
}

func TestDirectUpload_EncodeFailure(t *testing.T) {
	f := newFixture(t)
	f.encoder.Err = errors.New("ffmpeg failed")
	svc := f.service(f.catalog, Options{})

	_, err := svc.DirectUpload(context.Background(), DirectUploadInput{File: strings.NewReader("x"), Filename: "a.mp4", Title: "A"})
	assert.True(t, apperr.Is(err, apperr.KindFatalEncode))
	assert.Empty(t, f.store.puts)

	n, err := f.catalog.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	f.assertWorkDirEmpty(t)
}

func TestDirectUpload_CatalogFailureKeepsArtifacts(t *testing.T) {
	f := newFixture(t)
	svc := f.service(failingWriter{}, Options{})

	res, err := svc.DirectUpload(context.Background(), DirectUploadInput{File: strings.NewReader("x"), Filename: "a.mp4", Title: "A"})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, apperr.Is(err, apperr.KindPersistence))

	// master + 3 playlists + 6 segments + thumbnail stay published
	assert.Len(t, f.store.puts, 11)
	f.assertWorkDirEmpty(t)
}

func TestDirectUpload_DegradedThumbnail(t *testing.T) {
	f := newFixture(t)
	f.thumbnailer.Err = errors.New("no frame")
	svc := f.service(f.catalog, Options{})

	res, err := svc.DirectUpload(context.Background(), DirectUploadInput{File: strings.NewReader("x"), Filename: "a.mp4", Title: "A"})
	require.NoError(t, err)
	assert.Empty(t, res.ThumbnailURL)
	assert.Equal(t, []string{pipeline.DegradedThumbnail}, res.Degraded)

	rec, err := f.catalog.Get(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Empty(t, rec.ThumbnailURL)
}

func TestPublishMetadata(t *testing.T) {
	f := newFixture(t)
	f.store.sources["uploads/abc_movie.mp4"] = []byte("movie bytes")
	svc := f.service(f.catalog, Options{})

	res, err := svc.PublishMetadata(context.Background(), PublishMetadataInput{
		VideoURL: "https://cdn.test/uploads/abc_movie.mp4",
		Title:    "Movie",
		Genre:    "Sci-Fi",
	})
	require.NoError(t, err)

	assert.Equal(t, "2m 5s", res.Duration)
	assert.True(t, strings.HasSuffix(res.VideoURL, "/master.m3u8"))
	assert.True(t, strings.HasSuffix(res.ThumbnailURL, "/thumbnail.jpg"))
	assert.Empty(t, f.uploader.keys, "already uploaded sources are not uploaded again")

	rec, err := f.catalog.Get(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sci-Fi", rec.Genre)
	assert.Equal(t, res.VideoURL, rec.VideoURL)
	assert.Equal(t, "https://cdn.test/uploads/abc_movie.mp4", rec.SourceURL)

	f.assertWorkDirEmpty(t)
}

func TestPublishMetadata_UserThumbnail(t *testing.T) {
	f := newFixture(t)
	f.store.sources["uploads/abc_movie.mp4"] = []byte("movie bytes")
	f.thumbnailer.Err = errors.New("must not be called")
	svc := f.service(f.catalog, Options{})

	res, err := svc.PublishMetadata(context.Background(), PublishMetadataInput{
		VideoURL:     "https://cdn.test/uploads/abc_movie.mp4",
		Title:        "Movie",
		ThumbnailURL: "https://images.test/poster.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://images.test/poster.jpg", res.ThumbnailURL)
	assert.Empty(t, res.Degraded)
	for _, k := range f.store.puts {
		assert.NotContains(t, k, "thumbnail")
	}
}

func TestPublishMetadata_Failures(t *testing.T) {
	tests := []struct {
		name string
		in   PublishMetadataInput
		kind apperr.Kind
	}{
		{"no title", PublishMetadataInput{VideoURL: "https://cdn.test/uploads/a.mp4"}, apperr.KindInvalid},
		{"foreign url", PublishMetadataInput{VideoURL: "https://elsewhere.test/a.mp4", Title: "A"}, apperr.KindInvalid},
		{"missing object", PublishMetadataInput{VideoURL: "https://cdn.test/uploads/gone.mp4", Title: "A"}, apperr.KindTransientIO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.service(f.catalog, Options{}).PublishMetadata(context.Background(), tt.in)
			assert.Equal(t, tt.kind, apperr.KindOf(err), err)
			assert.Equal(t, 0, f.encoder.Calls())
			f.assertWorkDirEmpty(t)
		})
	}
}

func TestPublishMetadata_UploadFailure(t *testing.T) {
	f := newFixture(t)
	f.store.sources["uploads/abc_movie.mp4"] = []byte("movie bytes")
	f.store.putErr = errors.New("AccessDenied")
	svc := f.service(f.catalog, Options{})

	_, err := svc.PublishMetadata(context.Background(), PublishMetadataInput{
		VideoURL: "https://cdn.test/uploads/abc_movie.mp4",
		Title:    "Movie",
	})
	assert.True(t, apperr.Is(err, apperr.KindFatalUpload))

	n, err := f.catalog.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	f.assertWorkDirEmpty(t)
}
