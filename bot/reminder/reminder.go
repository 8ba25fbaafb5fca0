// Package reminder schedules the fire-once follow-up message sent a while
// after an order is placed.
package reminder

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanakritw/pizzabot/bot/contract"
)

const notifyTimeout = 10 * time.Second

type Config struct {
	Delay time.Duration `envconfig:"DELAY" split_words:"true" default:"1h"`
}

// Scheduler owns the pending timers. Each Schedule call arms exactly one
// timer; firing is independent of the event that armed it.
type Scheduler struct {
	notifier contractx.Notifier
	delay    time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	nextID  int
}

func New(notifier contractx.Notifier, cfg Config) *Scheduler {
	delay := cfg.Delay
	if delay <= 0 {
		delay = time.Hour
	}
	return &Scheduler{
		notifier: notifier,
		delay:    delay,
		pending:  make(map[string]*time.Timer),
	}
}

// Schedule arms a one-shot reminder for chatID.
func (s *Scheduler) Schedule(chatID, text string) {
	if s == nil || s.notifier == nil {
		return
	}

	s.mu.Lock()
	s.nextID++
	id := chatID + "#" + strconv.Itoa(s.nextID)
	s.pending[id] = time.AfterFunc(s.delay, func() {
		s.fire(id, chatID, text)
	})
	s.mu.Unlock()
}

func (s *Scheduler) fire(id, chatID, text string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	if err := s.notifier.Notify(ctx, chatID, text); err != nil {
		log.Error().Err(err).Str("chat_id", chatID).Msg("reminder delivery failed")
	}
}

// StopAll cancels every pending reminder. Shutdown path.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, timer := range s.pending {
		timer.Stop()
		delete(s.pending, id)
	}
}
