package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"vodflow/internal/config"
	"vodflow/internal/metrics"
)

// Record is one catalog entry. VideoURL is the playable manifest; SourceURL
// points at the original upload when it was kept.
type Record struct {
	ID           string    `json:"id" bson:"_id,omitempty" db:"id"`
	Title        string    `json:"title" bson:"title" db:"title"`
	Description  string    `json:"description" bson:"description" db:"description"`
	Genre        string    `json:"genre" bson:"genre" db:"genre"`
	Duration     string    `json:"duration" bson:"duration" db:"duration"`
	VideoURL     string    `json:"videoUrl" bson:"videoUrl" db:"video_url"`
	ThumbnailURL string    `json:"thumbnailUrl" bson:"thumbnailUrl" db:"thumbnail_url"`
	SourceURL    string    `json:"sourceUrl,omitempty" bson:"sourceUrl,omitempty" db:"source_url"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt" db:"created_at"`
}

type Writer interface {
	// Insert stores rec and sets rec.ID.
	Insert(ctx context.Context, rec *Record) error
	Close(ctx context.Context) error
}

// Open connects the backend selected by cfg.CatalogDriver.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Writer, error) {
	switch cfg.CatalogDriver {
	case "mongo":
		logger.Info("catalog", "driver", "mongo", "database", cfg.MongoDatabase, "collection", cfg.MongoCollection)
		return NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
	case "sqlite":
		logger.Info("catalog", "driver", "sqlite", "path", cfg.SQLitePath)
		return NewSQLite(WithPath(cfg.SQLitePath))
	default:
		return nil, fmt.Errorf("unknown catalog driver %q", cfg.CatalogDriver)
	}
}

func observe(driver string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	metrics.CatalogInserts.WithLabelValues(driver, outcome).Inc()
}

func stamp(rec *Record) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
}
