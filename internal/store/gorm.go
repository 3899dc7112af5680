package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entry is the row layout of the SQL backend.
type Entry struct {
	Key       string     `gorm:"column:entry_key;primaryKey;size:255"`
	Value     string     `gorm:"type:text;not null"`
	ExpiresAt *time.Time `gorm:"index"`
	UpdatedAt time.Time
}

func (Entry) TableName() string { return "kv_entries" }

// GormKV stores entries in a SQL table. Expired rows are hidden on read and
// removed by PurgeExpired.
type GormKV struct {
	db      *gorm.DB
	backend string
	now     func() time.Time
}

func NewGormKV(db *gorm.DB, backend string) *GormKV {
	return &GormKV{db: db, backend: backend, now: func() time.Time { return time.Now().UTC() }}
}

// Migrate creates the kv_entries table.
func (s *GormKV) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&Entry{})
}

func (s *GormKV) Get(ctx context.Context, key string) (string, error) {
	var e Entry
	err := s.db.WithContext(ctx).Where("entry_key = ?", key).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if e.ExpiresAt != nil && !s.now().Before(*e.ExpiresAt) {
		_ = s.db.WithContext(ctx).Where("entry_key = ? AND expires_at <= ?", key, s.now()).Delete(&Entry{}).Error
		return "", ErrNotFound
	}
	return e.Value, nil
}

func (s *GormKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	e := Entry{Key: key, Value: value, UpdatedAt: s.now()}
	if ttl > 0 {
		exp := s.now().Add(ttl)
		e.ExpiresAt = &exp
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
	}).Create(&e).Error
}

func (s *GormKV) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("entry_key = ?", key).Delete(&Entry{}).Error
}

func (s *GormKV) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormKV) Backend() string { return s.backend }

func (s *GormKV) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at IS NOT NULL AND expires_at <= ?", s.now()).Delete(&Entry{})
	return res.RowsAffected, res.Error
}
