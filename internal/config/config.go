package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port         string
	S3Bucket     string
	S3Region     string
	S3Endpoint   string
	AWSAccessKey string
	AWSSecretKey string
	// PublicBaseURL overrides the https://{bucket}.s3.amazonaws.com prefix of object URLs.
	PublicBaseURL string

	PartSizeMB         int64
	UploadConcurrency  int
	PartMaxRetries     int
	PresignTTL         time.Duration
	PublishConcurrency int
	MaxUploadMB        int64
	WorkDir            string
	FFmpegPath         string
	FFprobePath        string
	CatalogDriver      string
	MongoURI           string
	MongoDatabase      string
	MongoCollection    string
	SQLitePath         string
	LogLevel           string
	MediaConfigPath    string
	// APIKey guards the ingest routes when set.
	APIKey string
}

func Load() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		S3Bucket:           getEnv("S3_BUCKET", ""),
		S3Region:           getEnv("S3_REGION", getEnv("AWS_REGION", "us-east-1")),
		S3Endpoint:         getEnv("S3_ENDPOINT", ""),
		AWSAccessKey:       getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:       getEnv("AWS_SECRET_ACCESS_KEY", ""),
		PublicBaseURL:      getEnv("PUBLIC_BASE_URL", ""),
		PartSizeMB:         getEnvInt64("PART_SIZE_MB", 8),
		UploadConcurrency:  int(getEnvInt64("UPLOAD_CONCURRENCY", 5)),
		PartMaxRetries:     int(getEnvInt64("PART_MAX_RETRIES", 3)),
		PresignTTL:         getEnvDuration("PRESIGN_TTL", time.Hour),
		PublishConcurrency: int(getEnvInt64("PUBLISH_UPLOAD_CONCURRENCY", 4)),
		MaxUploadMB:        getEnvInt64("MAX_UPLOAD_MB", 4096),
		WorkDir:            getEnv("WORK_DIR", os.TempDir()),
		FFmpegPath:         getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:        getEnv("FFPROBE_PATH", "ffprobe"),
		MongoURI:           getEnv("MONGO_URI", ""),
		MongoDatabase:      getEnv("MONGO_DATABASE", "Catalog0"),
		MongoCollection:    getEnv("MONGO_COLLECTION", "Movie"),
		SQLitePath:         getEnv("SQLITE_PATH", "catalog.db"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		MediaConfigPath:    getEnv("MEDIA_CONFIG_PATH", "media-config.yaml"),
		APIKey:             getEnv("API_KEY", ""),
	}

	cfg.CatalogDriver = getEnv("CATALOG_DRIVER", "")
	if cfg.CatalogDriver == "" {
		if cfg.MongoURI != "" {
			cfg.CatalogDriver = "mongo"
		} else {
			cfg.CatalogDriver = "sqlite"
		}
	}

	return cfg
}

func (c *Config) Validate() error {
	if c.S3Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required")
	}
	if c.PartSizeMB < 5 {
		// S3 rejects non-final parts smaller than 5 MiB
		return fmt.Errorf("PART_SIZE_MB must be at least 5, got %d", c.PartSizeMB)
	}
	if c.UploadConcurrency < 1 {
		return fmt.Errorf("UPLOAD_CONCURRENCY must be positive, got %d", c.UploadConcurrency)
	}
	if c.PartMaxRetries < 0 {
		return fmt.Errorf("PART_MAX_RETRIES must not be negative, got %d", c.PartMaxRetries)
	}
	switch c.CatalogDriver {
	case "mongo":
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required for the mongo catalog")
		}
	case "sqlite":
	default:
		return fmt.Errorf("unknown CATALOG_DRIVER %q", c.CatalogDriver)
	}
	return nil
}

func (c *Config) PartSizeBytes() int64 {
	return c.PartSizeMB * 1024 * 1024
}

type RenditionOptions struct {
	Width            int `yaml:"width"`
	Height           int `yaml:"height"`
	VideoBitrateKbps int `yaml:"video_bitrate_kbps"`
}

type ThumbnailOptions struct {
	SeekSeconds float64 `yaml:"seek_seconds"`
	Width       int     `yaml:"width"` // 0 keeps the source frame size
	Quality     int     `yaml:"quality"`
	ConvertTo   string  `yaml:"convert_to"`
}

type MediaConfig struct {
	Renditions       []RenditionOptions `yaml:"renditions"`
	AudioBitrateKbps int                `yaml:"audio_bitrate_kbps"`
	SegmentSeconds   int                `yaml:"segment_seconds"`
	Preset           string             `yaml:"preset"`
	Thumbnail        ThumbnailOptions   `yaml:"thumbnail"`
}

// LoadMediaConfig reads the YAML media config at path. A missing file yields
// the defaults; fields left empty in the file are filled from the defaults too.
func LoadMediaConfig(path string) (*MediaConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultMediaConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read media config: %w", err)
	}

	var mc MediaConfig
	if err := yaml.Unmarshal(data, &mc); err != nil {
		return nil, fmt.Errorf("failed to parse media config: %w", err)
	}
	mc.applyDefaults()

	return &mc, nil
}

func (mc *MediaConfig) applyDefaults() {
	def := DefaultMediaConfig()
	if len(mc.Renditions) == 0 {
		mc.Renditions = def.Renditions
	}
	if mc.AudioBitrateKbps == 0 {
		mc.AudioBitrateKbps = def.AudioBitrateKbps
	}
	if mc.SegmentSeconds == 0 {
		mc.SegmentSeconds = def.SegmentSeconds
	}
	if mc.Preset == "" {
		mc.Preset = def.Preset
	}
	if mc.Thumbnail.SeekSeconds == 0 {
		mc.Thumbnail.SeekSeconds = def.Thumbnail.SeekSeconds
	}
	if mc.Thumbnail.Quality == 0 {
		mc.Thumbnail.Quality = def.Thumbnail.Quality
	}
	if mc.Thumbnail.ConvertTo == "" {
		mc.Thumbnail.ConvertTo = def.Thumbnail.ConvertTo
	}
}

func DefaultMediaConfig() *MediaConfig {
	return &MediaConfig{
		Renditions: []RenditionOptions{
			{Width: 1920, Height: 1080, VideoBitrateKbps: 5000},
			{Width: 1280, Height: 720, VideoBitrateKbps: 2800},
			{Width: 854, Height: 480, VideoBitrateKbps: 1400},
		},
		AudioBitrateKbps: 128,
		SegmentSeconds:   6,
		Preset:           "veryfast",
		Thumbnail: ThumbnailOptions{
			SeekSeconds: 1,
			Width:       0,
			Quality:     90,
			ConvertTo:   "jpeg",
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
