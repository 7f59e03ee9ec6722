package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BalanceKind selects which part of the balance a credit goes to.
type BalanceKind string

const (
	BalanceCash     BalanceKind = "cash"
	BalanceReferral BalanceKind = "referral"
)

// Movement describes why a balance changes. It is written to the transactions table.
type Movement struct {
	Kind        TransactionKind
	Description string
	OrderID     *uint
}

// GormLedger keeps user balances and their transaction history.
// Writes are serialised by a mutex and run inside a locking transaction.
type GormLedger struct {
	db     *gorm.DB
	logger *zap.Logger
	mu     sync.Mutex
}

func NewGormLedger(db *gorm.DB, logger *zap.Logger) *GormLedger {
	return &GormLedger{db: db, logger: logger.Named("ledger")}
}

// GetBalance returns the balance of userID. Users without a row have a zero balance.
func (l *GormLedger) GetBalance(ctx context.Context, userID int64) (UserBalance, error) {
	var b UserBalance
	err := l.db.WithContext(ctx).Where("user_id = ?", userID).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return UserBalance{UserID: userID, Cash: decimal.Zero, Referral: decimal.Zero}, nil
	}
	if err != nil {
		return UserBalance{}, fmt.Errorf("query balance: %w", err)
	}
	return b, nil
}

// Deduct takes amount from the referral part first and the cash part after that.
// It returns false without changing anything when the total is not enough.
func (l *GormLedger) Deduct(ctx context.Context, userID int64, amount decimal.Decimal, m Movement) (bool, error) {
	if amount.IsNegative() {
		return false, ErrInvalidAmount
	}
	if amount.IsZero() {
		return true, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, found, err := lockBalance(tx, userID)
		if err != nil {
			return err
		}
		if !found || b.Total().LessThan(amount) {
			return ErrInsufficientBalance
		}

		fromReferral := decimal.Min(b.Referral, amount)
		fromCash := amount.Sub(fromReferral)

		res := tx.Model(&UserBalance{}).Where("user_id = ?", userID).Updates(map[string]interface{}{
			"referral": b.Referral.Sub(fromReferral),
			"cash":     b.Cash.Sub(fromCash),
		})
		if res.Error != nil {
			return fmt.Errorf("update balance: %w", res.Error)
		}
		return recordMovement(tx, userID, amount.Neg(), m)
	})

	if errors.Is(err, ErrInsufficientBalance) {
		l.logger.Info("Deduction refused, insufficient balance",
			zap.Int64("user_id", userID), zap.String("amount", amount.String()))
		return false, nil
	}
	if err != nil {
		l.logger.Error("Balance deduction failed", zap.Int64("user_id", userID), zap.Error(err))
		return false, err
	}

	l.logger.Info("Balance deducted", zap.Int64("user_id", userID),
		zap.String("amount", amount.String()), zap.String("kind", string(m.Kind)))
	return true, nil
}

// Add credits amount to the given part of the balance, creating the row when needed.
func (l *GormLedger) Add(ctx context.Context, userID int64, amount decimal.Decimal, kind BalanceKind, m Movement) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if kind != BalanceCash && kind != BalanceReferral {
		return fmt.Errorf("unknown balance kind %q", kind)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		b, found, err := lockBalance(tx, userID)
		if err != nil {
			return err
		}

		if !found {
			b = UserBalance{UserID: userID, Cash: decimal.Zero, Referral: decimal.Zero}
			if kind == BalanceCash {
				b.Cash = amount
			} else {
				b.Referral = amount
			}
			if err := tx.Create(&b).Error; err != nil {
				return fmt.Errorf("create balance: %w", err)
			}
		} else {
			column, current := "cash", b.Cash
			if kind == BalanceReferral {
				column, current = "referral", b.Referral
			}
			if err := tx.Model(&UserBalance{}).Where("user_id = ?", userID).Update(column, current.Add(amount)).Error; err != nil {
				return fmt.Errorf("update balance: %w", err)
			}
		}
		return recordMovement(tx, userID, amount, m)
	})
	if err != nil {
		l.logger.Error("Balance credit failed", zap.Int64("user_id", userID), zap.Error(err))
		return err
	}

	l.logger.Info("Balance credited", zap.Int64("user_id", userID),
		zap.String("amount", amount.String()), zap.String("balance_kind", string(kind)), zap.String("kind", string(m.Kind)))
	return nil
}

// GetFreeOrderCount counts free-tier orders that were accepted, whether or not they finished.
func (l *GormLedger) GetFreeOrderCount(ctx context.Context, userID int64, tariffKey string) (int, error) {
	var n int64
	err := l.db.WithContext(ctx).Model(&Order{}).
		Where("user_id = ? AND tariff = ? AND status IN ?", userID, tariffKey,
			[]OrderStatus{OrderConfirmed, OrderCompleted}).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count free orders: %w", err)
	}
	return int(n), nil
}

// ListTransactions returns the newest movements of userID first.
func (l *GormLedger) ListTransactions(ctx context.Context, userID int64, limit int) ([]Transaction, error) {
	var txs []Transaction
	err := l.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("id DESC").Limit(limit).Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

func lockBalance(tx *gorm.DB, userID int64) (UserBalance, bool, error) {
	var b UserBalance
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("user_id = ?", userID).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return UserBalance{}, false, nil
	}
	if err != nil {
		return UserBalance{}, false, fmt.Errorf("lock balance: %w", err)
	}
	return b, true, nil
}

func recordMovement(tx *gorm.DB, userID int64, amount decimal.Decimal, m Movement) error {
	t := Transaction{
		UserID:      userID,
		Amount:      amount,
		Kind:        m.Kind,
		Description: m.Description,
		OrderID:     m.OrderID,
	}
	if err := tx.Create(&t).Error; err != nil {
		return fmt.Errorf("record transaction: %w", err)
	}
	return nil
}
