// This file implements a PostgreSQL-backed store.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/MeetingAssistant/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) AddReceipt(r models.Receipt) error {
	_, err := s.db.Exec(`INSERT INTO receipts (recipient, status, time) VALUES ($1, $2, $3)`, r.To, r.Status, r.Time)
	if err != nil {
		slog.Error("PostgresStore AddReceipt failed", "error", err, "to", r.To)
		return fmt.Errorf("failed to insert receipt for %s: %w", r.To, err)
	}
	slog.Debug("PostgresStore AddReceipt succeeded", "to", r.To, "status", r.Status)
	return nil
}

func (s *PostgresStore) GetReceipts() ([]models.Receipt, error) {
	rows, err := s.db.Query(`SELECT recipient, status, time FROM receipts ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore GetReceipts query failed", "error", err)
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	var receipts []models.Receipt
	for rows.Next() {
		var r models.Receipt
		if err := rows.Scan(&r.To, &r.Status, &r.Time); err != nil {
			slog.Error("PostgresStore GetReceipts scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan receipt row: %w", err)
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate receipt rows: %w", err)
	}
	slog.Debug("PostgresStore GetReceipts succeeded", "count", len(receipts))
	return receipts, nil
}

func (s *PostgresStore) AddResponse(r models.Response) error {
	atts, err := encodeAttachments(r.Attachments)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO responses (message_id, sender, body, attachments, time) VALUES ($1, $2, $3, $4, $5)`,
		nilIfEmpty(r.MessageID), r.From, r.Body, atts, r.Time)
	if err != nil {
		slog.Error("PostgresStore AddResponse failed", "error", err, "from", r.From)
		return fmt.Errorf("failed to insert response from %s: %w", r.From, err)
	}
	slog.Debug("PostgresStore AddResponse succeeded", "from", r.From)
	return nil
}

func (s *PostgresStore) GetResponses() ([]models.Response, error) {
	rows, err := s.db.Query(`SELECT message_id, sender, body, attachments, time FROM responses ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore GetResponses query failed", "error", err)
		return nil, fmt.Errorf("failed to query responses: %w", err)
	}
	defer rows.Close()

	var responses []models.Response
	for rows.Next() {
		var r models.Response
		var messageID, atts sql.NullString
		if err := rows.Scan(&messageID, &r.From, &r.Body, &atts, &r.Time); err != nil {
			slog.Error("PostgresStore GetResponses scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan response row: %w", err)
		}
		r.MessageID = messageID.String
		r.Attachments = decodeAttachments(atts)
		responses = append(responses, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate response rows: %w", err)
	}
	slog.Debug("PostgresStore GetResponses succeeded", "count", len(responses))
	return responses, nil
}

func (s *PostgresStore) GetConversationFlow(conversationID string) (*models.ConversationFlow, error) {
	row := s.db.QueryRow(`SELECT conversation_id, top_state, step, created_at, updated_at
		FROM conversation_flows WHERE conversation_id = $1`, conversationID)
	cf, err := scanConversationFlow(row)
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug("PostgresStore GetConversationFlow not found", "conversationID", conversationID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetConversationFlow failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to get conversation flow %s: %w", conversationID, err)
	}
	return &cf, nil
}

func (s *PostgresStore) SaveConversationFlow(flow models.ConversationFlow) error {
	top, step := models.EncodeFlow(flow.Flow)
	now := time.Now()
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}
	_, err := s.db.Exec(`INSERT INTO conversation_flows (conversation_id, top_state, step, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT(conversation_id) DO UPDATE SET
			top_state = excluded.top_state,
			step = excluded.step,
			updated_at = excluded.updated_at`,
		flow.ConversationID, string(top), nilIfEmpty(step), flow.CreatedAt, now)
	if err != nil {
		slog.Error("PostgresStore SaveConversationFlow failed", "error", err, "conversationID", flow.ConversationID)
		return fmt.Errorf("failed to save conversation flow %s: %w", flow.ConversationID, err)
	}
	slog.Debug("PostgresStore SaveConversationFlow succeeded", "conversationID", flow.ConversationID, "topState", top, "step", step)
	return nil
}

func (s *PostgresStore) GetUserProfile(userID string) (*models.UserProfile, error) {
	row := s.db.QueryRow(`SELECT user_id, name, age, addr, meeting_slot, no_meeting_period, transportation, created_at, updated_at
		FROM user_profiles WHERE user_id = $1`, userID)
	p, err := scanUserProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug("PostgresStore GetUserProfile not found", "userID", userID)
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetUserProfile failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get user profile %s: %w", userID, err)
	}
	return &p, nil
}

func (s *PostgresStore) SaveUserProfile(profile models.UserProfile) error {
	now := time.Now()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	_, err := s.db.Exec(`INSERT INTO user_profiles
		(user_id, name, age, addr, meeting_slot, no_meeting_period, transportation, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT(user_id) DO UPDATE SET
			name = excluded.name,
			age = excluded.age,
			addr = excluded.addr,
			meeting_slot = excluded.meeting_slot,
			no_meeting_period = excluded.no_meeting_period,
			transportation = excluded.transportation,
			updated_at = excluded.updated_at`,
		profile.UserID, nilIfEmpty(profile.Name), nilIfZero(profile.Age), nilIfEmpty(profile.Addr),
		string(profile.MeetingSlot), string(profile.NoMeetingPeriod), string(profile.Transportation),
		profile.CreatedAt, now)
	if err != nil {
		slog.Error("PostgresStore SaveUserProfile failed", "error", err, "userID", profile.UserID)
		return fmt.Errorf("failed to save user profile %s: %w", profile.UserID, err)
	}
	slog.Debug("PostgresStore SaveUserProfile succeeded", "userID", profile.UserID)
	return nil
}

// RecordInbound inserts a new inbound record. Returns false if duplicate.
func (s *PostgresStore) RecordInbound(messageID, conversationID string) (bool, error) {
	res, err := s.db.Exec(`INSERT INTO inbound_dedup (message_id, conversation_id, received_at) VALUES ($1, $2, $3) ON CONFLICT (message_id) DO NOTHING`,
		messageID, conversationID, time.Now())
	if err != nil {
		return false, fmt.Errorf("failed to record inbound: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// PruneInbound deletes dedup records received before the cutoff.
func (s *PostgresStore) PruneInbound(before time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM inbound_dedup WHERE received_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune dedup records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned dedup records: %w", err)
	}
	return n, nil
}

// MarkProcessed sets the processed_at timestamp for a message.
func (s *PostgresStore) MarkProcessed(messageID string) error {
	_, err := s.db.Exec(`UPDATE inbound_dedup SET processed_at = $1 WHERE message_id = $2`, time.Now(), messageID)
	if err != nil {
		return fmt.Errorf("failed to mark processed: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	if err := s.db.Close(); err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
		return err
	}
	return nil
}
