package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "PART_SIZE_MB", "UPLOAD_CONCURRENCY", "PRESIGN_TTL", "MONGO_URI", "CATALOG_DRIVER", "MONGO_DATABASE", "MONGO_COLLECTION", "API_KEY"} {
		t.Setenv(key, "")
	}
	t.Setenv("S3_BUCKET", "videos")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, int64(8), cfg.PartSizeMB)
	assert.Equal(t, int64(8*1024*1024), cfg.PartSizeBytes())
	assert.Equal(t, 5, cfg.UploadConcurrency)
	assert.Equal(t, time.Hour, cfg.PresignTTL)
	assert.Equal(t, "sqlite", cfg.CatalogDriver)
	assert.Equal(t, "Catalog0", cfg.MongoDatabase)
	assert.Equal(t, "Movie", cfg.MongoCollection)
	assert.Empty(t, cfg.APIKey)
	require.NoError(t, cfg.Validate())
}

func TestLoad_MongoSelectedByURI(t *testing.T) {
	t.Setenv("S3_BUCKET", "videos")
	t.Setenv("PART_SIZE_MB", "")
	t.Setenv("UPLOAD_CONCURRENCY", "")
	t.Setenv("CATALOG_DRIVER", "")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")

	cfg := Load()

	assert.Equal(t, "mongo", cfg.CatalogDriver)
	require.NoError(t, cfg.Validate())
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("PART_SIZE_MB", "lots")
	t.Setenv("PRESIGN_TTL", "forever")

	cfg := Load()

	assert.Equal(t, int64(8), cfg.PartSizeMB)
	assert.Equal(t, time.Hour, cfg.PresignTTL)
}

func TestConfig_Validate(t *testing.T) {
	base := func() *Config {
		return &Config{S3Bucket: "b", PartSizeMB: 8, UploadConcurrency: 5, CatalogDriver: "sqlite"}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing bucket", func(c *Config) { c.S3Bucket = "" }, "S3_BUCKET"},
		{"part too small", func(c *Config) { c.PartSizeMB = 4 }, "PART_SIZE_MB"},
		{"no workers", func(c *Config) { c.UploadConcurrency = 0 }, "UPLOAD_CONCURRENCY"},
		{"negative retries", func(c *Config) { c.PartMaxRetries = -1 }, "PART_MAX_RETRIES"},
		{"mongo without uri", func(c *Config) { c.CatalogDriver = "mongo" }, "MONGO_URI"},
		{"unknown driver", func(c *Config) { c.CatalogDriver = "postgres" }, "CATALOG_DRIVER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMediaConfig_MissingFileUsesDefaults(t *testing.T) {
	mc, err := LoadMediaConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultMediaConfig(), mc)
}

func TestLoadMediaConfig_PartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "media.yaml")
	data := `
renditions:
  - width: 1280
    height: 720
    video_bitrate_kbps: 2800
segment_seconds: 4
thumbnail:
  width: 640
  convert_to: webp
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	mc, err := LoadMediaConfig(path)
	require.NoError(t, err)

	require.Len(t, mc.Renditions, 1)
	assert.Equal(t, 1280, mc.Renditions[0].Width)
	assert.Equal(t, 4, mc.SegmentSeconds)
	assert.Equal(t, 128, mc.AudioBitrateKbps)
	assert.Equal(t, "veryfast", mc.Preset)
	assert.Equal(t, 640, mc.Thumbnail.Width)
	assert.Equal(t, "webp", mc.Thumbnail.ConvertTo)
	assert.Equal(t, 90, mc.Thumbnail.Quality)
	assert.Equal(t, 1.0, mc.Thumbnail.SeekSeconds)
}

func TestLoadMediaConfig_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "media.yaml")
	require.NoError(t, os.WriteFile(path, []byte("renditions: [oops"), 0o644))

	_, err := LoadMediaConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse media config")
}
