package bot

import (
	"sync"
	"time"

	"github.com/nerdneilsfield/telegram-slide-bot/internal/tariff"
)

// Step is the input a user is expected to send next.
type Step string

const (
	StepAskFullName Step = "ask_full_name"
	StepAskContact  Step = "ask_contact"

	StepChooseTariff Step = "choose_tariff"
	StepAskTopic     Step = "ask_topic"
	StepAskPages     Step = "ask_pages"
	StepConfirm1     Step = "confirm_1"
	StepConfirm2     Step = "confirm_2"

	StepAdminBroadcast      Step = "admin_broadcast"
	StepAdminBalanceUser    Step = "admin_balance_user"
	StepAdminBalanceAmount  Step = "admin_balance_amount"
	StepAdminMessageUser    Step = "admin_message_user"
	StepAdminMessageText    Step = "admin_message_text"
	StepAdminReferralReward Step = "admin_referral_reward"
)

// IsOrder reports whether the step belongs to the order conversation.
func (s Step) IsOrder() bool {
	switch s {
	case StepChooseTariff, StepAskTopic, StepAskPages, StepConfirm1, StepConfirm2:
		return true
	}
	return false
}

func (s Step) IsOnboarding() bool {
	return s == StepAskFullName || s == StepAskContact
}

func (s Step) IsAdmin() bool {
	switch s {
	case StepAdminBroadcast, StepAdminBalanceUser, StepAdminBalanceAmount,
		StepAdminMessageUser, StepAdminMessageText, StepAdminReferralReward:
		return true
	}
	return false
}

type UserState struct {
	UserID int64
	ChatID int64
	Step   Step

	// onboarding
	FullName string
	RefCode  string

	// order
	Tariff  tariff.Key
	Topic   string
	Pages   int
	OrderID uint
	Quote   tariff.Quote

	// admin panel
	TargetUserID int64
	AdminOp      string

	LastUpdated time.Time
}

type StateManager struct {
	states map[int64]*UserState
	mu     sync.RWMutex
}

func NewStateManager() *StateManager {
	return &StateManager{
		states: make(map[int64]*UserState),
	}
}

func (sm *StateManager) SetState(userID int64, state *UserState) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	state.LastUpdated = time.Now()
	sm.states[userID] = state
}

// GetState returns a copy; callers change it and store it back with SetState.
func (sm *StateManager) GetState(userID int64) (*UserState, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	state, ok := sm.states[userID]
	if !ok {
		return nil, false
	}
	cp := *state
	return &cp, true
}

func (sm *StateManager) ClearState(userID int64) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.states, userID)
}

// Sweep drops states not updated within maxAge and returns how many were dropped.
func (sm *StateManager) Sweep(maxAge time.Duration) int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	n := 0
	for id, state := range sm.states {
		if state.LastUpdated.Before(cutoff) {
			delete(sm.states, id)
			n++
		}
	}
	return n
}
