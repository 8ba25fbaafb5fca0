// Package engine dispatches inbound chat events to per-state handlers with
// exactly-once session persistence and per-chat serialization.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanakritw/pizzabot/bot/contract"
	statex "github.com/tanakritw/pizzabot/bot/state"
	metricsx "github.com/tanakritw/pizzabot/pkg/metrics"
	"github.com/tanakritw/pizzabot/pkg/ratelimit"
)

// Handler processes one inbound event for one dialog state. It may mutate
// the session scratch; the engine persists the session with the returned
// next state only after the handler succeeds.
type Handler func(ctx context.Context, sess *statex.Session, ev contractx.Event) (Result, error)

// Result is what a handler hands back: zero or more outbound replies and
// exactly one next state.
type Result struct {
	Replies []contractx.Reply
	Next    statex.State
}

const (
	defaultResetCommand = "/start"
	defaultEventTimeout = 30 * time.Second

	apologyText     = "Something went wrong on our side. Please try again."
	rateLimitedText = "Easy there! Give it a moment and try again."
)

type Config struct {
	ResetCommand string        `envconfig:"RESET_COMMAND" split_words:"true" default:"/start"`
	EventTimeout time.Duration `envconfig:"EVENT_TIMEOUT" split_words:"true" default:"30s"`
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides the engine clock. Test hook.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithMetrics attaches prometheus instruments.
func WithMetrics(m *metricsx.Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithRateLimiter attaches a per-chat flood guard.
func WithRateLimiter(l *ratelimit.Keyed) Option {
	return func(e *Engine) {
		e.limiter = l
	}
}

// WithLogger overrides the engine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.log = logger
	}
}

type chatLock struct {
	mu   sync.Mutex
	refs int
}

// Engine owns the handler table and the session store. Events for the same
// chat are processed strictly one at a time, in arrival order; different
// chats proceed concurrently.
type Engine struct {
	store    statex.Store
	handlers map[statex.State]Handler
	metrics  *metricsx.Metrics
	limiter  *ratelimit.Keyed
	log      zerolog.Logger
	now      func() time.Time

	resetCommand string
	eventTimeout time.Duration

	locksMu sync.Mutex
	locks   map[string]*chatLock
}

// New validates that the handler table is total over the canonical state set
// and builds the engine. A missing handler is a configuration error caught
// here, at startup, not at dispatch time.
func New(store statex.Store, handlers map[statex.State]Handler, cfg Config, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if len(handlers) == 0 {
		return nil, fmt.Errorf("%w: empty handler table", contractx.ErrConfiguration)
	}
	for _, st := range statex.All() {
		if handlers[st] == nil {
			return nil, fmt.Errorf("%w: no handler for state %s", contractx.ErrConfiguration, st)
		}
	}

	resetCommand := strings.TrimSpace(cfg.ResetCommand)
	if resetCommand == "" {
		resetCommand = defaultResetCommand
	}
	eventTimeout := cfg.EventTimeout
	if eventTimeout <= 0 {
		eventTimeout = defaultEventTimeout
	}

	e := &Engine{
		store:        store,
		handlers:     handlers,
		metrics:      metricsx.NewUnregistered(),
		log:          log.Logger,
		now:          time.Now,
		resetCommand: resetCommand,
		eventTimeout: eventTimeout,
		locks:        make(map[string]*chatLock),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

// HandleEvent runs one inbound event to completion and returns the replies
// to send. Collaborator failures never surface to the transport: the user
// gets an apology and the session keeps its prior state. The returned error
// is non-nil only for malformed events and configuration defects.
func (e *Engine) HandleEvent(ctx context.Context, ev contractx.Event) ([]contractx.Reply, error) {
	chatID := strings.TrimSpace(ev.ChatID)
	if chatID == "" {
		return nil, fmt.Errorf("%w: chat id is empty", contractx.ErrInvalidInput)
	}
	ev.ChatID = chatID

	if !e.limiter.Allow(chatID, e.now()) {
		return []contractx.Reply{{Text: rateLimitedText}}, nil
	}

	unlock := e.lockChat(chatID)
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, e.eventTimeout)
	defer cancel()

	sess, err := e.loadSession(ctx, ev)
	if err != nil {
		e.metrics.HandlerFailures.WithLabelValues(failureKind(err)).Inc()
		e.log.Error().Err(err).Str("chat_id", chatID).Msg("session load failed")
		return []contractx.Reply{{Text: apologyText}}, nil
	}

	handler, ok := e.handlers[sess.Current]
	if !ok {
		// Unreachable when New validated the table, unless the store hands
		// back a state outside the canonical set after Normalize.
		err := fmt.Errorf("%w: no handler for state %s", contractx.ErrConfiguration, sess.Current)
		e.log.Error().Err(err).Str("chat_id", chatID).Msg("dispatch failed")
		return nil, err
	}

	e.metrics.EventsTotal.WithLabelValues(string(sess.Current)).Inc()

	result, err := e.runHandler(ctx, handler, sess, ev)
	if err != nil {
		e.metrics.HandlerFailures.WithLabelValues(failureKind(err)).Inc()
		e.log.Error().Err(err).
			Str("chat_id", chatID).
			Str("state", string(sess.Current)).
			Msg("handler failed, session state unchanged")
		return []contractx.Reply{{Text: apologyText}}, nil
	}

	prior := sess.Current
	sess.Current = result.Next
	sess.Touch(e.now())
	if err := e.store.Save(ctx, sess); err != nil {
		e.metrics.HandlerFailures.WithLabelValues(failureKind(err)).Inc()
		e.log.Error().Err(err).
			Str("chat_id", chatID).
			Str("state", string(prior)).
			Msg("session save failed")
		return []contractx.Reply{{Text: apologyText}}, nil
	}

	e.log.Debug().
		Str("chat_id", chatID).
		Str("from", string(prior)).
		Str("to", string(result.Next)).
		Msg("event handled")

	return result.Replies, nil
}

// runHandler invokes the handler, retrying exactly once on a transient
// collaborator failure. The handler mutates only the session scratch, so a
// retry re-enters with the same dialog state.
func (e *Engine) runHandler(ctx context.Context, handler Handler, sess *statex.Session, ev contractx.Event) (Result, error) {
	result, err := handler(ctx, sess, ev)
	if err == nil {
		return result, nil
	}
	if !errors.Is(err, contractx.ErrTransient) {
		return Result{}, err
	}

	e.log.Warn().Err(err).
		Str("chat_id", ev.ChatID).
		Str("state", string(sess.Current)).
		Msg("transient failure, retrying once")

	return handler(ctx, sess, ev)
}

// loadSession resolves the session the event applies to. The reset command
// forces a fresh initial session; an unseen chat starts one implicitly; an
// unrecognized stored state falls open to the initial state.
func (e *Engine) loadSession(ctx context.Context, ev contractx.Event) (*statex.Session, error) {
	if ev.Kind == contractx.EventText && strings.TrimSpace(ev.Text) == e.resetCommand {
		return statex.NewSession(ev.ChatID, e.now()), nil
	}

	sess, err := e.store.Load(ctx, ev.ChatID)
	if err != nil {
		if errors.Is(err, statex.ErrStateNotFound) {
			return statex.NewSession(ev.ChatID, e.now()), nil
		}
		return nil, err
	}

	sess.Normalize()
	return sess, nil
}

func (e *Engine) lockChat(chatID string) func() {
	e.locksMu.Lock()
	l, ok := e.locks[chatID]
	if !ok {
		l = &chatLock{}
		e.locks[chatID] = l
	}
	l.refs++
	e.locksMu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()
		e.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, chatID)
		}
		e.locksMu.Unlock()
	}
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, contractx.ErrAuth):
		return "auth"
	case errors.Is(err, contractx.ErrTransient):
		return "transient"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, contractx.ErrConfiguration):
		return "configuration"
	default:
		return "internal"
	}
}
