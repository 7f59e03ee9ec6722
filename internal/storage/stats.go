package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type UserStats struct {
	Total        int64
	ThisMonth    int64
	LastMonth    int64
	ActiveDays   int
	LastActivity time.Time
	MemberSince  time.Time
}

// GetUserStats counts delivered decks and activity for one user relative to now.
func (s *Store) GetUserStats(ctx context.Context, userID int64, now time.Time) (UserStats, error) {
	var st UserStats
	db := s.db.WithContext(ctx)

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	prevMonthStart := monthStart.AddDate(0, -1, 0)

	if err := db.Model(&Presentation{}).Where("user_id = ?", userID).Count(&st.Total).Error; err != nil {
		return st, err
	}
	if err := db.Model(&Presentation{}).Where("user_id = ? AND created_at >= ?", userID, monthStart).
		Count(&st.ThisMonth).Error; err != nil {
		return st, err
	}
	if err := db.Model(&Presentation{}).
		Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, prevMonthStart, monthStart).
		Count(&st.LastMonth).Error; err != nil {
		return st, err
	}

	var stamps []time.Time
	if err := db.Model(&ActionLog{}).Where("user_id = ?", userID).Pluck("created_at", &stamps).Error; err != nil {
		return st, err
	}
	days := make(map[string]struct{}, len(stamps))
	for _, ts := range stamps {
		days[ts.In(now.Location()).Format("2006-01-02")] = struct{}{}
	}
	st.ActiveDays = len(days)

	u, err := s.GetUser(ctx, userID)
	if err == nil {
		st.LastActivity = u.LastActivity
		st.MemberSince = u.CreatedAt
	} else if !errors.Is(err, ErrUserNotFound) {
		return st, err
	}
	return st, nil
}

type GlobalStats struct {
	Users         int64
	BlockedUsers  int64
	NewUsersToday int64
	Orders        map[OrderStatus]int64
	Presentations int64
	Revenue       decimal.Decimal
	CashOnHand    decimal.Decimal
}

// GetGlobalStats summarises the whole bot for the admin panel.
func (s *Store) GetGlobalStats(ctx context.Context, now time.Time) (GlobalStats, error) {
	st := GlobalStats{Orders: make(map[OrderStatus]int64)}
	db := s.db.WithContext(ctx)
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if err := db.Model(&User{}).Count(&st.Users).Error; err != nil {
		return st, err
	}
	if err := db.Model(&User{}).Where("blocked = ?", true).Count(&st.BlockedUsers).Error; err != nil {
		return st, err
	}
	if err := db.Model(&User{}).Where("created_at >= ?", dayStart).Count(&st.NewUsersToday).Error; err != nil {
		return st, err
	}
	if err := db.Model(&Presentation{}).Count(&st.Presentations).Error; err != nil {
		return st, err
	}

	var rows []struct {
		Status OrderStatus
		N      int64
	}
	if err := db.Model(&Order{}).Select("status, COUNT(*) AS n").Group("status").Scan(&rows).Error; err != nil {
		return st, err
	}
	for _, r := range rows {
		st.Orders[r.Status] = r.N
	}

	revenue, err := sumDecimal(db.Model(&Order{}).Where("status IN ?", []OrderStatus{OrderConfirmed, OrderCompleted}), "charged")
	if err != nil {
		return st, err
	}
	st.Revenue = revenue

	cash, err := sumDecimal(db.Model(&UserBalance{}), "cash + referral")
	if err != nil {
		return st, err
	}
	st.CashOnHand = cash
	return st, nil
}
