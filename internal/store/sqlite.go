// This file implements an SQLite-backed store.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BTreeMap/MeetingAssistant/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	// A single writer keeps concurrent turns from hitting SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully", "db_path", dsn)

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) AddReceipt(r models.Receipt) error {
	_, err := s.db.Exec(`INSERT INTO receipts (recipient, status, time) VALUES (?, ?, ?)`, r.To, r.Status, r.Time)
	if err != nil {
		slog.Error("SQLiteStore AddReceipt failed", "error", err, "to", r.To)
		return fmt.Errorf("failed to insert receipt for %s: %w", r.To, err)
	}
	slog.Debug("SQLiteStore AddReceipt succeeded", "to", r.To, "status", r.Status)
	return nil
}

func (s *SQLiteStore) GetReceipts() ([]models.Receipt, error) {
	rows, err := s.db.Query(`SELECT recipient, status, time FROM receipts ORDER BY id`)
	if err != nil {
		slog.Error("SQLiteStore GetReceipts query failed", "error", err)
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	var receipts []models.Receipt
	for rows.Next() {
		var r models.Receipt
		if err := rows.Scan(&r.To, &r.Status, &r.Time); err != nil {
			slog.Error("SQLiteStore GetReceipts scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan receipt row: %w", err)
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate receipt rows: %w", err)
	}
	slog.Debug("SQLiteStore GetReceipts succeeded", "count", len(receipts))
	return receipts, nil
}

func (s *SQLiteStore) AddResponse(r models.Response) error {
	atts, err := encodeAttachments(r.Attachments)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO responses (message_id, sender, body, attachments, time) VALUES (?, ?, ?, ?, ?)`,
		nilIfEmpty(r.MessageID), r.From, r.Body, atts, r.Time)
	if err != nil {
		slog.Error("SQLiteStore AddResponse failed", "error", err, "from", r.From)
		return fmt.Errorf("failed to insert response from %s: %w", r.From, err)
	}
	slog.Debug("SQLiteStore AddResponse succeeded", "from", r.From)
	return nil
}

func (s *SQLiteStore) GetResponses() ([]models.Response, error) {
	rows, err := s.db.Query(`SELECT message_id, sender, body, attachments, time FROM responses ORDER BY id`)
	if err != nil {
		slog.Error("SQLiteStore GetResponses query failed", "error", err)
		return nil, fmt.Errorf("failed to query responses: %w", err)
	}
	defer rows.Close()

	var responses []models.Response
	for rows.Next() {
		var r models.Response
		var messageID, atts sql.NullString
		if err := rows.Scan(&messageID, &r.From, &r.Body, &atts, &r.Time); err != nil {
			slog.Error("SQLiteStore GetResponses scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan response row: %w", err)
		}
		r.MessageID = messageID.String
		r.Attachments = decodeAttachments(atts)
		responses = append(responses, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate response rows: %w", err)
	}
	slog.Debug("SQLiteStore GetResponses succeeded", "count", len(responses))
	return responses, nil
}

func (s *SQLiteStore) GetConversationFlow(conversationID string) (*models.ConversationFlow, error) {
	row := s.db.QueryRow(`SELECT conversation_id, top_state, step, created_at, updated_at
		FROM conversation_flows WHERE conversation_id = ?`, conversationID)
	cf, err := scanConversationFlow(row)
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug("SQLiteStore GetConversationFlow not found", "conversationID", conversationID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetConversationFlow failed", "error", err, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to get conversation flow %s: %w", conversationID, err)
	}
	return &cf, nil
}

func (s *SQLiteStore) SaveConversationFlow(flow models.ConversationFlow) error {
	top, step := models.EncodeFlow(flow.Flow)
	now := time.Now()
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}
	_, err := s.db.Exec(`INSERT INTO conversation_flows (conversation_id, top_state, step, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			top_state = excluded.top_state,
			step = excluded.step,
			updated_at = excluded.updated_at`,
		flow.ConversationID, string(top), nilIfEmpty(step), flow.CreatedAt, now)
	if err != nil {
		slog.Error("SQLiteStore SaveConversationFlow failed", "error", err, "conversationID", flow.ConversationID)
		return fmt.Errorf("failed to save conversation flow %s: %w", flow.ConversationID, err)
	}
	slog.Debug("SQLiteStore SaveConversationFlow succeeded", "conversationID", flow.ConversationID, "topState", top, "step", step)
	return nil
}

func (s *SQLiteStore) GetUserProfile(userID string) (*models.UserProfile, error) {
	row := s.db.QueryRow(`SELECT user_id, name, age, addr, meeting_slot, no_meeting_period, transportation, created_at, updated_at
		FROM user_profiles WHERE user_id = ?`, userID)
	p, err := scanUserProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		slog.Debug("SQLiteStore GetUserProfile not found", "userID", userID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetUserProfile failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get user profile %s: %w", userID, err)
	}
	return &p, nil
}

func (s *SQLiteStore) SaveUserProfile(profile models.UserProfile) error {
	now := time.Now()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	_, err := s.db.Exec(`INSERT INTO user_profiles
		(user_id, name, age, addr, meeting_slot, no_meeting_period, transportation, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
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
		slog.Error("SQLiteStore SaveUserProfile failed", "error", err, "userID", profile.UserID)
		return fmt.Errorf("failed to save user profile %s: %w", profile.UserID, err)
	}
	slog.Debug("SQLiteStore SaveUserProfile succeeded", "userID", profile.UserID)
	return nil
}

// RecordInbound inserts a new inbound record. Returns false if duplicate.
func (s *SQLiteStore) RecordInbound(messageID, conversationID string) (bool, error) {
	res, err := s.db.Exec(`INSERT OR IGNORE INTO inbound_dedup (message_id, conversation_id, received_at) VALUES (?, ?, ?)`,
		messageID, conversationID, time.Now().UTC())
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
// Timestamps are stored as UTC text, so the cutoff must be UTC for the comparison to hold.
func (s *SQLiteStore) PruneInbound(before time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM inbound_dedup WHERE received_at < ?`, before.UTC())
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
func (s *SQLiteStore) MarkProcessed(messageID string) error {
	_, err := s.db.Exec(`UPDATE inbound_dedup SET processed_at = ? WHERE message_id = ?`, time.Now(), messageID)
	if err != nil {
		return fmt.Errorf("failed to mark processed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	if err := s.db.Close(); err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
		return err
	}
	return nil
}
