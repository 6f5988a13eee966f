package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/anime-shed/vision-guard-go/pkg/models"

	"github.com/bytedance/sonic"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultLimit = 20
	maxLimit     = 500
)

// Record is the stored form of an unsafe moderation verdict
type Record struct {
	ID              uint           `gorm:"primaryKey"`
	RequestID       string         `gorm:"size:64;index"`
	Source          string         `gorm:"size:512"`
	Severity        string         `gorm:"size:16;index;not null"`
	OverallScore    float64        `gorm:"not null"`
	FlaggedCategory string         `gorm:"size:64"`
	Flags           datatypes.JSON `gorm:"not null"`
	Cached          bool
	CreatedAt       time.Time `gorm:"index"`
}

// TableName pins the table name
func (Record) TableName() string {
	return "moderation_flags"
}

// Store persists flagged verdicts in SQLite
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the audit database at path and migrates it
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("audit database path required")
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	return NewStore(db)
}

// NewStore wraps an open database and ensures the schema exists
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("failed to migrate audit database: %w", err)
	}
	return &Store{db: db}, nil
}

// Save stores one flagged verdict
func (s *Store) Save(ctx context.Context, record *Record) error {
	if len(record.Flags) == 0 {
		record.Flags = datatypes.JSON("[]")
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to save audit record: %w", err)
	}
	return nil
}

// Recent returns up to limit flagged verdicts, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]models.FlaggedRecord, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	var rows []Record
	if err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}

	out := make([]models.FlaggedRecord, 0, len(rows))
	for _, row := range rows {
		record, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, nil
}

// Close releases the underlying connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r Record) toModel() (models.FlaggedRecord, error) {
	var flags []models.CategoryScore
	if err := sonic.Unmarshal(r.Flags, &flags); err != nil {
		return models.FlaggedRecord{}, fmt.Errorf("decode flags of record %d: %w", r.ID, err)
	}
	return models.FlaggedRecord{
		ID:              r.ID,
		RequestID:       r.RequestID,
		Source:          r.Source,
		Severity:        models.Severity(r.Severity),
		OverallScore:    r.OverallScore,
		FlaggedCategory: r.FlaggedCategory,
		Flags:           flags,
		Cached:          r.Cached,
		CreatedAt:       r.CreatedAt,
	}, nil
}
