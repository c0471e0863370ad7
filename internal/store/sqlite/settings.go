// Package sqlite persists user settings in a single-row sqlite table so
// channel selection and trade policy survive restarts.
package sqlite

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sigrelay/internal/model"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type settingsRow struct {
	ID               uint           `gorm:"primaryKey"`
	AutoTradeEnabled bool           `gorm:"column:auto_trade_enabled"`
	SelectedChannels datatypes.JSON `gorm:"column:selected_channels"`
	DefaultOrderSize float64        `gorm:"column:default_order_size"`
	UpdatedAt        time.Time
}

func (settingsRow) TableName() string { return "settings" }

type SettingsStore struct {
	db *gorm.DB
}

func NewSettingsStore(path string) (*SettingsStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return NewSettingsStoreFromDB(db)
}

func NewSettingsStoreFromDB(db *gorm.DB) (*SettingsStore, error) {
	if db == nil {
		return nil, fmt.Errorf("gorm db cannot be nil")
	}
	if err := db.AutoMigrate(&settingsRow{}); err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(2)
		sqlDB.SetMaxIdleConns(2)
	}
	return &SettingsStore{db: db}, nil
}

// Load returns the persisted settings, or defaults when none were saved
// yet.
func (s *SettingsStore) Load() (model.Settings, error) {
	var row settingsRow
	err := s.db.First(&row, 1).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return model.DefaultSettings(), nil
		}
		return model.Settings{}, err
	}
	out := model.Settings{
		AutoTradeEnabled: row.AutoTradeEnabled,
		DefaultOrderSize: row.DefaultOrderSize,
	}
	if len(row.SelectedChannels) > 0 {
		if err := json.Unmarshal(row.SelectedChannels, &out.SelectedChannelIDs); err != nil {
			return model.Settings{}, fmt.Errorf("decode selected channels: %w", err)
		}
	}
	if out.DefaultOrderSize <= 0 {
		out.DefaultOrderSize = model.DefaultSettings().DefaultOrderSize
	}
	return out, nil
}

func (s *SettingsStore) Save(settings model.Settings) error {
	channels, err := json.Marshal(settings.SelectedChannelIDs)
	if err != nil {
		return err
	}
	row := settingsRow{
		ID:               1,
		AutoTradeEnabled: settings.AutoTradeEnabled,
		SelectedChannels: datatypes.JSON(channels),
		DefaultOrderSize: settings.DefaultOrderSize,
	}
	return s.db.Save(&row).Error
}

func (s *SettingsStore) Close() error {
	if s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
