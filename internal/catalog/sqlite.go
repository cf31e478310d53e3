package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const (
	driverName = "sqlite3"
	timeLayout = time.RFC3339Nano
)

const defaultPragma = `
PRAGMA journal_mode=WAL;
PRAGMA busy_timeout=5000;
PRAGMA temp_store=MEMORY;
`

const schemaSQL = `
CREATE TABLE IF NOT EXISTS movies (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	genre TEXT NOT NULL,
	duration TEXT NOT NULL,
	video_url TEXT NOT NULL,
	thumbnail_url TEXT NOT NULL DEFAULT '',
	source_url TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_movies_created_at ON movies(created_at);
`

type sqliteConfig struct {
	path         string
	pragmas      string
	maxOpenConns int
}

type SqliteOption func(*sqliteConfig)

// WithPath sets the database file. ":memory:" keeps everything in process.
func WithPath(path string) SqliteOption {
	return func(c *sqliteConfig) {
		c.path = path
	}
}

// WithPragmas replaces the default pragmas
func WithPragmas(pragmas string) SqliteOption {
	return func(c *sqliteConfig) {
		c.pragmas = pragmas
	}
}

func WithMaxOpenConns(n int) SqliteOption {
	return func(c *sqliteConfig) {
		c.maxOpenConns = n
	}
}

type SQLite struct {
	db *sqlx.DB
}

func NewSQLite(opts ...SqliteOption) (*SQLite, error) {
	cfg := &sqliteConfig{
		path:    ":memory:",
		pragmas: defaultPragma,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	dsn := ":memory:"
	if cfg.path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		cfg.maxOpenConns = 1
	} else {
		if err := os.MkdirAll(filepath.Dir(cfg.path), 0o755); err != nil {
			return nil, fmt.Errorf("ensure parent directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_txlock=immediate&mode=rwc", cfg.path)
	}

	db, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if cfg.maxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.maxOpenConns)
	}

	if _, err := db.Exec(cfg.pragmas); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize catalog: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Insert(ctx context.Context, rec *Record) error {
	stamp(rec)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO movies (title, description, genre, duration, video_url, thumbnail_url, source_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Title, rec.Description, rec.Genre, rec.Duration,
		rec.VideoURL, rec.ThumbnailURL, rec.SourceURL, rec.CreatedAt.Format(timeLayout),
	)
	observe("sqlite", err)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	rec.ID = strconv.FormatInt(id, 10)
	return nil
}

type movieRow struct {
	ID           int64  `db:"id"`
	Title        string `db:"title"`
	Description  string `db:"description"`
	Genre        string `db:"genre"`
	Duration     string `db:"duration"`
	VideoURL     string `db:"video_url"`
	ThumbnailURL string `db:"thumbnail_url"`
	SourceURL    string `db:"source_url"`
	CreatedAt    string `db:"created_at"`
}

// Get loads a record by id.
func (s *SQLite) Get(ctx context.Context, id string) (*Record, error) {
	var row movieRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, title, description, genre, duration, video_url, thumbnail_url, source_url, created_at
		FROM movies WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}

	createdAt, err := time.Parse(timeLayout, row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", id, err)
	}
	return &Record{
		ID:           strconv.FormatInt(row.ID, 10),
		Title:        row.Title,
		Description:  row.Description,
		Genre:        row.Genre,
		Duration:     row.Duration,
		VideoURL:     row.VideoURL,
		ThumbnailURL: row.ThumbnailURL,
		SourceURL:    row.SourceURL,
		CreatedAt:    createdAt,
	}, nil
}

// Count returns the number of stored records.
func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM movies`)
	return n, err
}

func (s *SQLite) Close(ctx context.Context) error {
	return s.db.Close()
}
