package state

import (
	"encoding/json"
	"errors"
	"time"
)

// State is the dialog position a chat is parked in between inbound events.
type State string

const (
	StateInitial         State = "INITIAL"
	StateBrowsingCatalog State = "BROWSING_CATALOG"
	StateViewingItem     State = "VIEWING_ITEM"
	StateViewingCart     State = "VIEWING_CART"
	StateAwaitingAddress State = "AWAITING_ADDRESS"
	StateConfirmDelivery State = "CONFIRMING_DELIVERY"
	StateAwaitingPayment State = "AWAITING_PAYMENT_DETAILS"
	StateComplete        State = "COMPLETE"
)

// All enumerates every dialog state. The engine checks its handler table
// against this set at construction time.
func All() []State {
	return []State{
		StateInitial,
		StateBrowsingCatalog,
		StateViewingItem,
		StateViewingCart,
		StateAwaitingAddress,
		StateConfirmDelivery,
		StateAwaitingPayment,
		StateComplete,
	}
}

// Known reports whether s is a member of the canonical state set.
func Known(s State) bool {
	for _, candidate := range All() {
		if s == candidate {
			return true
		}
	}
	return false
}

var (
	ErrNilSession    = errors.New("session is nil")
	ErrInvalidChatID = errors.New("chat id is empty")
	ErrStateNotFound = errors.New("session state not found")
)

// Session is the per-chat record the engine loads before dispatch and saves
// after. Scratch carries transient selections (chosen product, resolved
// coordinates, nearest store, delivery fee) between states.
type Session struct {
	ChatID    string         `json:"chat_id"`
	Current   State          `json:"current_state"`
	Scratch   map[string]any `json:"scratch,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func NewSession(chatID string, now time.Time) *Session {
	return &Session{
		ChatID:    chatID,
		Current:   StateInitial,
		Scratch:   make(map[string]any, 8),
		UpdatedAt: now.UTC(),
	}
}

func (s *Session) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

// EnsureScratch makes sure s.Scratch is initialized.
func (s *Session) EnsureScratch() {
	if s.Scratch == nil {
		s.Scratch = make(map[string]any, 8)
	}
}

func (s *Session) SetScratch(key string, val any) {
	s.EnsureScratch()
	s.Scratch[key] = val
}

func (s *Session) ClearScratch() {
	s.Scratch = make(map[string]any, 8)
}

// ScratchString returns the scratch value for key as a string.
func (s *Session) ScratchString(key string) (string, bool) {
	if s == nil || s.Scratch == nil {
		return "", false
	}
	v, ok := s.Scratch[key].(string)
	return v, ok
}

// ScratchFloat returns the scratch value for key as a float64. Values loaded
// back from a JSON store arrive as float64 or json.Number.
func (s *Session) ScratchFloat(key string) (float64, bool) {
	if s == nil || s.Scratch == nil {
		return 0, false
	}
	switch v := s.Scratch[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// ScratchInt returns the scratch value for key as an int.
func (s *Session) ScratchInt(key string) (int, bool) {
	f, ok := s.ScratchFloat(key)
	return int(f), ok
}

// Normalize defaults an absent or unrecognized state token to the initial
// state so an unknown or downgraded record never rejects a returning user.
func (s *Session) Normalize() {
	if !Known(s.Current) {
		s.Current = StateInitial
	}
	s.EnsureScratch()
}
