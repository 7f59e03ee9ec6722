package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Action names written to action_logs.
const (
	ActionRegister          = "register"
	ActionStart             = "start"
	ActionOrderCreated      = "order_created"
	ActionOrderCancelled    = "order_cancelled"
	ActionOrderConfirmed    = "order_confirmed"
	ActionInsufficientFunds = "insufficient_balance"
	ActionGenerated         = "presentation_generated"
	ActionGenerationFailed  = "presentation_failed"
	ActionReferralJoined    = "referral_joined"
	ActionAdminBalance      = "admin_balance"
	ActionAdminBroadcast    = "admin_broadcast"
	ActionAdminMessage      = "admin_message"
	ActionAdminSettings     = "admin_settings"
)

// LogAction appends an entry. Failures are logged and swallowed so they never break a user flow.
func (s *Store) LogAction(ctx context.Context, userID int64, action string, data map[string]interface{}) {
	var raw datatypes.JSON
	if len(data) > 0 {
		b, err := json.Marshal(data)
		if err != nil {
			s.logger.Warn("Failed to encode action data", zap.String("action", action), zap.Error(err))
		} else {
			raw = datatypes.JSON(b)
		}
	}

	entry := ActionLog{UserID: userID, Action: action, Data: raw}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.logger.Warn("Failed to write action log", zap.Int64("user_id", userID), zap.String("action", action), zap.Error(err))
	}
}

func (s *Store) ListActions(ctx context.Context, userID int64, since time.Time) ([]ActionLog, error) {
	var logs []ActionLog
	err := s.db.WithContext(ctx).Where("user_id = ? AND created_at >= ?", userID, since).
		Order("id").Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	return logs, nil
}
