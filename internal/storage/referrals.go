package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EnsureReferralSettings seeds the reward row with the configured defaults if it is missing.
func (s *Store) EnsureReferralSettings(ctx context.Context, referrer, referred decimal.Decimal) error {
	rs := ReferralSettings{ID: 1, ReferrerReward: referrer, ReferredReward: referred}
	return s.db.WithContext(ctx).Where("id = ?", 1).FirstOrCreate(&rs).Error
}

func (s *Store) GetReferralSettings(ctx context.Context) (ReferralSettings, error) {
	var rs ReferralSettings
	err := s.db.WithContext(ctx).Where("id = ?", 1).First(&rs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ReferralSettings{ID: 1, ReferrerReward: decimal.Zero, ReferredReward: decimal.Zero}, nil
	}
	return rs, err
}

func (s *Store) UpdateReferralSettings(ctx context.Context, referrer, referred decimal.Decimal) error {
	if referrer.IsNegative() || referred.IsNegative() {
		return ErrInvalidAmount
	}
	rs := ReferralSettings{ID: 1, ReferrerReward: referrer, ReferredReward: referred}
	if err := s.db.WithContext(ctx).Save(&rs).Error; err != nil {
		return fmt.Errorf("update referral settings: %w", err)
	}
	s.logger.Info("Referral rewards updated",
		zap.String("referrer", referrer.String()), zap.String("referred", referred.String()))
	return nil
}

// CreateReferral links referred to referrer. Each user can be referred once.
func (s *Store) CreateReferral(ctx context.Context, referrerID, referredID int64) (*Referral, error) {
	if referrerID == referredID {
		return nil, ErrSelfReferral
	}
	r := Referral{ReferrerID: referrerID, ReferredID: referredID, Status: ReferralPending}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&Referral{}).Where("referred_id = ?", referredID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrAlreadyReferred
		}
		if err := tx.Create(&r).Error; err != nil {
			return err
		}
		return tx.Model(&User{}).Where("user_id = ?", referredID).Update("referred_by", referrerID).Error
	})
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ConfirmReferral marks the pending referral of referredID as confirmed and returns it.
func (s *Store) ConfirmReferral(ctx context.Context, referredID int64) (*Referral, error) {
	var r Referral
	err := s.db.WithContext(ctx).Where("referred_id = ? AND status = ?", referredID, ReferralPending).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrReferralNotFound
	}
	if err != nil {
		return nil, err
	}

	now := time.Now()
	res := s.db.WithContext(ctx).Model(&Referral{}).
		Where("id = ? AND status = ?", r.ID, ReferralPending).
		Updates(map[string]interface{}{"status": ReferralConfirmed, "confirmed_at": now})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrReferralNotFound
	}
	r.Status = ReferralConfirmed
	r.ConfirmedAt = &now
	return &r, nil
}

type ReferralStats struct {
	Invited   int64
	Confirmed int64
	Earned    decimal.Decimal
}

func (s *Store) GetReferralStats(ctx context.Context, userID int64) (ReferralStats, error) {
	var st ReferralStats
	db := s.db.WithContext(ctx)

	if err := db.Model(&Referral{}).Where("referrer_id = ?", userID).Count(&st.Invited).Error; err != nil {
		return st, err
	}
	if err := db.Model(&Referral{}).Where("referrer_id = ? AND status = ?", userID, ReferralConfirmed).
		Count(&st.Confirmed).Error; err != nil {
		return st, err
	}
	earned, err := sumDecimal(db.Model(&Transaction{}).
		Where("user_id = ? AND kind = ?", userID, TxReferralBonus), "amount")
	if err != nil {
		return st, err
	}
	st.Earned = earned
	return st, nil
}

func sumDecimal(q *gorm.DB, column string) (decimal.Decimal, error) {
	var sum decimal.NullDecimal
	if err := q.Select("SUM(" + column + ")").Row().Scan(&sum); err != nil {
		return decimal.Zero, err
	}
	if !sum.Valid {
		return decimal.Zero, nil
	}
	return sum.Decimal, nil
}
