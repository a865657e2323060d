package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SetLocalSetting stores a local setting value.
func (s *Store) SetLocalSetting(ctx context.Context, key, value string, updatedAt time.Time) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if strings.TrimSpace(key) == "" {
		return errors.New("local setting key is required")
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO local_settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, updatedAt.Unix())
	if err != nil {
		return fmt.Errorf("store local setting: %w", err)
	}

	return nil
}

// GetLocalSetting returns a local setting value, or "" when it is not set.
func (s *Store) GetLocalSetting(ctx context.Context, key string) (string, error) {
	if s == nil || s.DB == nil {
		return "", errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if strings.TrimSpace(key) == "" {
		return "", errors.New("local setting key is required")
	}

	var value string
	if err := s.DB.QueryRowContext(ctx, `SELECT value FROM local_settings WHERE key = ?`, key).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("fetch local setting: %w", err)
	}

	return value, nil
}

// DeleteLocalSetting removes a local setting. Missing keys are not an error.
func (s *Store) DeleteLocalSetting(ctx context.Context, key string) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := s.DB.ExecContext(ctx, `DELETE FROM local_settings WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete local setting: %w", err)
	}
	return nil
}

// Settings adapts the local_settings table to a plain get/set key-value store.
type Settings struct {
	Store *Store
	Clock func() time.Time
}

// Settings returns a key-value view over the local settings table.
func (s *Store) Settings() *Settings {
	return &Settings{Store: s}
}

// Get implements turnstile.KeyValueStore.
func (k *Settings) Get(ctx context.Context, key string) (string, error) {
	if k == nil {
		return "", errors.New("settings store is not configured")
	}
	return k.Store.GetLocalSetting(ctx, key)
}

// Set implements turnstile.KeyValueStore.
func (k *Settings) Set(ctx context.Context, key, value string) error {
	if k == nil {
		return errors.New("settings store is not configured")
	}
	return k.Store.SetLocalSetting(ctx, key, value, k.now())
}

func (k *Settings) now() time.Time {
	if k.Clock != nil {
		return k.Clock()
	}
	return time.Now()
}
