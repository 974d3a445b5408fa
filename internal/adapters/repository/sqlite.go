package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okian/chorus/pkg/metrics"
)

// DefaultDBFile is used when no path is configured.
const DefaultDBFile = "chorus.sqlite3"

// object is the single table backing SQLite: catalog and blob together.
type object struct {
	Path        string `gorm:"primaryKey"`
	Data        []byte
	ContentType string
	Size        int64
	CreatedAt   time.Time `gorm:"index"`
}

func (object) TableName() string { return "objects" }

// SQLite is a Store in a single SQLite file through gorm.
type SQLite struct {
	cfg config
	db  *gorm.DB
	sql *sql.DB
}

var _ Store = (*SQLite)(nil)

// OpenSQLite opens or creates the database at dbPath and migrates it.
func OpenSQLite(dbPath string, opts ...Option) (*SQLite, error) {
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_foreign_keys=on"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&object{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	cfg := defaults()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &SQLite{cfg: cfg, db: db, sql: sqlDB}, nil
}

// Put implements Store.
func (s *SQLite) Put(ctx context.Context, p string, data []byte, contentType string) (string, error) {
	p, err := CleanPath(p)
	if err != nil {
		metrics.RecordStoreOp("put", "invalid")
		return "", err
	}
	row := object{
		Path:        p,
		Data:        data,
		ContentType: contentType,
		Size:        int64(len(data)),
		CreatedAt:   s.cfg.now(),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	if err != nil {
		metrics.RecordStoreOp("put", "error")
		return "", fmt.Errorf("put %s: %w", p, err)
	}
	metrics.RecordStoreOp("put", "ok")
	return s.URL(p), nil
}

// Get implements Store.
func (s *SQLite) Get(ctx context.Context, p string) (Object, error) {
	var row object
	err := s.db.WithContext(ctx).Where("path = ?", p).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.RecordStoreOp("get", "not_found")
		return Object{}, ErrNotFound
	}
	if err != nil {
		metrics.RecordStoreOp("get", "error")
		return Object{}, fmt.Errorf("get %s: %w", p, err)
	}
	metrics.RecordStoreOp("get", "ok")
	return Object{
		ObjectInfo: info("", row.Path, row.CreatedAt, row.Size, row.ContentType, s.URL(row.Path)),
		Data:       row.Data,
	}, nil
}

// List implements Store.
func (s *SQLite) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var rows []object
	err := s.db.WithContext(ctx).
		Select("path", "content_type", "size", "created_at").
		Where(`path LIKE ? ESCAPE '\'`, escapeLike(prefix)+"%").
		Order("path").
		Find(&rows).Error
	if err != nil {
		metrics.RecordStoreOp("list", "error")
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	out := make([]ObjectInfo, 0, len(rows))
	for _, r := range rows {
		// LIKE folds ASCII case; keys are case-sensitive.
		if !strings.HasPrefix(r.Path, prefix) {
			continue
		}
		out = append(out, info(prefix, r.Path, r.CreatedAt, r.Size, r.ContentType, s.URL(r.Path)))
	}
	metrics.RecordStoreOp("list", "ok")
	return out, nil
}

// Delete implements Store.
func (s *SQLite) Delete(ctx context.Context, paths ...string) (int, error) {
	if len(paths) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Where("path IN ?", paths).Delete(&object{})
	if res.Error != nil {
		metrics.RecordStoreOp("delete", "error")
		return 0, fmt.Errorf("delete: %w", res.Error)
	}
	metrics.RecordStoreOp("delete", "ok")
	return int(res.RowsAffected), nil
}

// URL implements Store.
func (s *SQLite) URL(p string) string { return objectURL(s.cfg.publicURL, p) }

// Close releases the database.
func (s *SQLite) Close() error {
	if s == nil || s.sql == nil {
		return nil
	}
	return s.sql.Close()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
