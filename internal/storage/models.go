package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// User is a registered Telegram user. UserID is the Telegram id.
type User struct {
	UserID        int64  `gorm:"primaryKey;autoIncrement:false"`
	Username      string `gorm:"size:64"`
	FullName      string `gorm:"size:128;not null"`
	Phone         string `gorm:"size:32"`
	ContactShared bool   `gorm:"not null;default:false"`
	Language      string `gorm:"size:8"`
	ReferralCode  string `gorm:"size:16;uniqueIndex;not null"`
	ReferredBy    *int64 `gorm:"index"`
	Blocked       bool   `gorm:"not null;default:false"`
	LastActivity  time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// UserBalance keeps money received by top-ups apart from referral rewards.
type UserBalance struct {
	UserID    int64           `gorm:"primaryKey;autoIncrement:false"`
	Cash      decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0"`
	Referral  decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (b UserBalance) Total() decimal.Decimal {
	return b.Cash.Add(b.Referral)
}

type TransactionKind string

const (
	TxTopUp         TransactionKind = "topup"
	TxReferralBonus TransactionKind = "referral_bonus"
	TxOrderPayment  TransactionKind = "order_payment"
	TxRefund        TransactionKind = "refund"
	TxAdminDebit    TransactionKind = "admin_debit"
)

// Transaction is one balance movement. Amount is negative for debits.
type Transaction struct {
	ID          uint            `gorm:"primaryKey"`
	UserID      int64           `gorm:"index;not null"`
	Amount      decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	Kind        TransactionKind `gorm:"size:32;index;not null"`
	Description string          `gorm:"size:255"`
	OrderID     *uint           `gorm:"index"`
	CreatedAt   time.Time
}

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderConfirmed OrderStatus = "confirmed"
	OrderCompleted OrderStatus = "completed"
	OrderFailed    OrderStatus = "failed"
	OrderCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderFailed || s == OrderCancelled
}

type Order struct {
	ID          uint            `gorm:"primaryKey"`
	PublicID    uuid.UUID       `gorm:"type:varchar(36);uniqueIndex;not null"`
	UserID      int64           `gorm:"index;not null"`
	Topic       string          `gorm:"size:255;not null"`
	PageCount   int             `gorm:"not null"`
	Tariff      string          `gorm:"size:16;index;not null"`
	Price       decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0"`
	Charged     decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0"`
	Free        bool            `gorm:"not null;default:false"`
	Status      OrderStatus     `gorm:"size:16;index;not null"`
	Error       string          `gorm:"size:512"`
	CreatedAt   time.Time       `gorm:"index"`
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// Presentation records a delivered deck together with a snapshot of its outline.
type Presentation struct {
	ID        uint                        `gorm:"primaryKey"`
	OrderID   uint                        `gorm:"uniqueIndex;not null"`
	UserID    int64                       `gorm:"index;not null"`
	Topic     string                      `gorm:"size:255;not null"`
	PageCount int                         `gorm:"not null"`
	Tariff    string                      `gorm:"size:16;not null"`
	Files     datatypes.JSONSlice[string] `gorm:"type:json"`
	Outline   datatypes.JSON              `gorm:"type:json"`
	CreatedAt time.Time                   `gorm:"index"`
}

type ReferralStatus string

const (
	ReferralPending   ReferralStatus = "pending"
	ReferralConfirmed ReferralStatus = "confirmed"
)

type Referral struct {
	ID          uint           `gorm:"primaryKey"`
	ReferrerID  int64          `gorm:"index;not null"`
	ReferredID  int64          `gorm:"uniqueIndex;not null"`
	Status      ReferralStatus `gorm:"size:16;not null"`
	CreatedAt   time.Time
	ConfirmedAt *time.Time
}

// ReferralSettings is a single-row table with the current reward amounts.
type ReferralSettings struct {
	ID             uint            `gorm:"primaryKey"`
	ReferrerReward decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	ReferredReward decimal.Decimal `gorm:"type:decimal(14,2);not null"`
	UpdatedAt      time.Time
}

type Setting struct {
	Key         string `gorm:"primaryKey;size:64"`
	Value       string `gorm:"size:255;not null"`
	Description string `gorm:"size:255"`
	UpdatedAt   time.Time
}

type ActionLog struct {
	ID        uint           `gorm:"primaryKey"`
	UserID    int64          `gorm:"index;not null"`
	Action    string         `gorm:"size:64;index;not null"`
	Data      datatypes.JSON `gorm:"type:json"`
	CreatedAt time.Time      `gorm:"index"`
}
