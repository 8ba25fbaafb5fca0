package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// PostgresConfig configures the bun-backed session store.
type PostgresConfig struct {
	DSN     string        `envconfig:"DSN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

type sessionRow struct {
	bun.BaseModel `bun:"table:bot_sessions,alias:s"`

	ChatID    string          `bun:"chat_id,pk"`
	Payload   json.RawMessage `bun:"payload,type:jsonb,notnull"`
	UpdatedAt time.Time       `bun:"updated_at,notnull"`
}

// PostgresStore persists sessions as one jsonb row per chat. It satisfies
// the same Store contract as the Redis store and is selected by deployment
// configuration.
type PostgresStore struct {
	db      *bun.DB
	timeout time.Duration
}

func NewPostgresStore(cfg PostgresConfig) (*PostgresStore, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	return &PostgresStore{db: db, timeout: timeout}, nil
}

// Init creates the session table when it does not exist yet.
func (s *PostgresStore) Init(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.db.NewCreateTable().
		Model((*sessionRow)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create session table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, chatID string) (*Session, error) {
	if strings.TrimSpace(chatID) == "" {
		return nil, ErrInvalidChatID
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	row := new(sessionRow)
	err := s.db.NewSelect().
		Model(row).
		Where("chat_id = ?", chatID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStateNotFound
		}
		return nil, fmt.Errorf("select session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(row.Payload, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	sess.Normalize()
	return &sess, nil
}

func (s *PostgresStore) Save(ctx context.Context, sess *Session) error {
	if sess == nil {
		return ErrNilSession
	}
	if strings.TrimSpace(sess.ChatID) == "" {
		return ErrInvalidChatID
	}
	sess.EnsureScratch()
	if sess.UpdatedAt.IsZero() {
		sess.UpdatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	row := &sessionRow{
		ChatID:    sess.ChatID,
		Payload:   payload,
		UpdatedAt: sess.UpdatedAt,
	}
	_, err = s.db.NewInsert().
		Model(row).
		On("CONFLICT (chat_id) DO UPDATE").
		Set("payload = EXCLUDED.payload").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, chatID string) error {
	if strings.TrimSpace(chatID) == "" {
		return ErrInvalidChatID
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	_, err := s.db.NewDelete().
		Model((*sessionRow)(nil)).
		Where("chat_id = ?", chatID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
