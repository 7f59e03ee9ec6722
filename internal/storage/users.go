package storage

import (
	"context"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
	"gorm.io/gorm"
)

// Store groups the gorm queries used by the bot apart from the ledger.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger.Named("store")}
}

// DB exposes the handle for components that share the connection, such as the ledger.
func (s *Store) DB() *gorm.DB {
	return s.db
}

var referralEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// MakeReferralCode derives a stable 10 character code from the Telegram id.
func MakeReferralCode(userID int64) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(userID))
	sum := blake2b.Sum256(append([]byte("referral:"), buf[:]...))
	return strings.ToLower(referralEncoding.EncodeToString(sum[:]))[:10]
}

// RegisterUser creates the user together with an empty balance row.
func (s *Store) RegisterUser(ctx context.Context, u *User) error {
	if u.ReferralCode == "" {
		u.ReferralCode = MakeReferralCode(u.UserID)
	}
	if u.LastActivity.IsZero() {
		u.LastActivity = time.Now()
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&User{}).Where("user_id = ?", u.UserID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrUserExists
		}
		if err := tx.Create(u).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", u.UserID).FirstOrCreate(&UserBalance{UserID: u.UserID}).Error
	})
	if err != nil {
		if errors.Is(err, ErrUserExists) {
			return err
		}
		return fmt.Errorf("register user %d: %w", u.UserID, err)
	}
	s.logger.Info("User registered", zap.Int64("user_id", u.UserID), zap.String("phone", u.Phone))
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID int64) (*User, error) {
	var u User
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", userID, err)
	}
	return &u, nil
}

func (s *Store) FindUserByReferralCode(ctx context.Context, code string) (*User, error) {
	var u User
	err := s.db.WithContext(ctx).Where("referral_code = ?", strings.ToLower(code)).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find referral code: %w", err)
	}
	return &u, nil
}

// TouchUser refreshes the username and last activity and clears the blocked flag.
func (s *Store) TouchUser(ctx context.Context, userID int64, username string) error {
	return s.db.WithContext(ctx).Model(&User{}).Where("user_id = ?", userID).Updates(map[string]interface{}{
		"username":      username,
		"last_activity": time.Now(),
		"blocked":       false,
	}).Error
}

func (s *Store) SetUserLanguage(ctx context.Context, userID int64, lang string) error {
	res := s.db.WithContext(ctx).Model(&User{}).Where("user_id = ?", userID).Update("language", lang)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetUserBlocked marks users that blocked the bot so broadcasts skip them.
func (s *Store) SetUserBlocked(ctx context.Context, userID int64, blocked bool) error {
	return s.db.WithContext(ctx).Model(&User{}).Where("user_id = ?", userID).Update("blocked", blocked).Error
}

// BroadcastRecipients returns the ids of every user that has not blocked the bot.
func (s *Store) BroadcastRecipients(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&User{}).Where("blocked = ?", false).
		Order("user_id").Pluck("user_id", &ids).Error
	return ids, err
}
