package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CreateOrder inserts o as pending.
func (s *Store) CreateOrder(ctx context.Context, o *Order) error {
	if o.PublicID == uuid.Nil {
		o.PublicID = uuid.New()
	}
	o.Status = OrderPending
	if err := s.db.WithContext(ctx).Create(o).Error; err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	s.logger.Info("Order created", zap.Uint("order_id", o.ID), zap.Int64("user_id", o.UserID),
		zap.String("tariff", o.Tariff), zap.Int("pages", o.PageCount))
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id uint) (*Order, error) {
	var o Order
	err := s.db.WithContext(ctx).First(&o, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order %d: %w", id, err)
	}
	return &o, nil
}

// ConfirmOrder moves a pending order to confirmed and records what was charged.
func (s *Store) ConfirmOrder(ctx context.Context, id uint, charged decimal.Decimal, free bool) error {
	return s.transitionOrder(ctx, id, OrderPending, OrderConfirmed, map[string]interface{}{
		"charged": charged,
		"free":    free,
	})
}

func (s *Store) CancelOrder(ctx context.Context, id uint) error {
	return s.transitionOrder(ctx, id, OrderPending, OrderCancelled, nil)
}

func (s *Store) CompleteOrder(ctx context.Context, id uint) error {
	return s.transitionOrder(ctx, id, OrderConfirmed, OrderCompleted, map[string]interface{}{
		"completed_at": time.Now(),
	})
}

func (s *Store) FailOrder(ctx context.Context, id uint, reason string) error {
	if len(reason) > 500 {
		reason = reason[:500]
	}
	return s.transitionOrder(ctx, id, OrderConfirmed, OrderFailed, map[string]interface{}{
		"error":        reason,
		"completed_at": time.Now(),
	})
}

func (s *Store) transitionOrder(ctx context.Context, id uint, from, to OrderStatus, extra map[string]interface{}) error {
	updates := map[string]interface{}{"status": to}
	for k, v := range extra {
		updates[k] = v
	}

	res := s.db.WithContext(ctx).Model(&Order{}).Where("id = ? AND status = ?", id, from).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update order %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetOrder(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("order %d %s -> %s: %w", id, from, to, ErrInvalidTransition)
	}
	s.logger.Info("Order status changed", zap.Uint("order_id", id),
		zap.String("from", string(from)), zap.String("to", string(to)))
	return nil
}

// ExpirePendingOrders cancels pending orders created before cutoff.
func (s *Store) ExpirePendingOrders(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&Order{}).
		Where("status = ? AND created_at < ?", OrderPending, cutoff).
		Update("status", OrderCancelled)
	return res.RowsAffected, res.Error
}

// SavePresentation stores the delivered files and the outline snapshot of an order.
func (s *Store) SavePresentation(ctx context.Context, o *Order, files []string, outline interface{}) error {
	raw, err := json.Marshal(outline)
	if err != nil {
		return fmt.Errorf("encode outline: %w", err)
	}
	p := Presentation{
		OrderID:   o.ID,
		UserID:    o.UserID,
		Topic:     o.Topic,
		PageCount: o.PageCount,
		Tariff:    o.Tariff,
		Files:     datatypes.NewJSONSlice(files),
		Outline:   datatypes.JSON(raw),
	}
	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		return fmt.Errorf("save presentation: %w", err)
	}
	return nil
}

func (s *Store) GetPresentationByOrder(ctx context.Context, orderID uint) (*Presentation, error) {
	var p Presentation
	if err := s.db.WithContext(ctx).Where("order_id = ?", orderID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}
