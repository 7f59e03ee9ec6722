package storage

import (
	"context"
	"errors"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Keys of the settings table.
const (
	SettingPresentationEnabled = "presentation_enabled"
)

func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var st Setting
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&st).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return st.Value, true, nil
}

// GetBoolSetting returns def when the key is missing or unparsable.
func (s *Store) GetBoolSetting(ctx context.Context, key string, def bool) (bool, error) {
	v, ok, err := s.GetSetting(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, nil
	}
	return b, nil
}

// SetSetting inserts or overwrites key.
func (s *Store) SetSetting(ctx context.Context, key, value, description string) error {
	st := Setting{Key: key, Value: value, Description: description, UpdatedAt: time.Now()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "description", "updated_at"}),
	}).Create(&st).Error
}

func (s *Store) SetBoolSetting(ctx context.Context, key string, value bool, description string) error {
	return s.SetSetting(ctx, key, strconv.FormatBool(value), description)
}
