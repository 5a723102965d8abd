// Package store provides storage backends for MeetingAssistant.
//
// It holds the conversation-scoped flow state, the user-scoped profile, inbound message
// deduplication records, and the receipt/response log. Backends: in-memory, SQLite and PostgreSQL.
package store

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/MeetingAssistant/internal/models"
)

// Store defines the interface for all storage backends.
type Store interface {
	AddReceipt(r models.Receipt) error
	GetReceipts() ([]models.Receipt, error)
	AddResponse(r models.Response) error
	GetResponses() ([]models.Response, error)

	// GetConversationFlow returns nil, nil when the conversation has no stored flow.
	GetConversationFlow(conversationID string) (*models.ConversationFlow, error)
	SaveConversationFlow(flow models.ConversationFlow) error

	// GetUserProfile returns nil, nil when the user has no stored profile.
	GetUserProfile(userID string) (*models.UserProfile, error)
	SaveUserProfile(profile models.UserProfile) error

	DedupRepo

	Close() error
}

// DedupRecord represents an inbound message deduplication record.
type DedupRecord struct {
	MessageID      string     `json:"message_id"`
	ConversationID string     `json:"conversation_id"`
	ReceivedAt     time.Time  `json:"received_at"`
	ProcessedAt    *time.Time `json:"processed_at"`
}

// DedupRepo defines the interface for inbound message deduplication.
type DedupRepo interface {
	// RecordInbound inserts a new inbound message record. Returns false if the
	// message was already recorded (duplicate).
	RecordInbound(messageID, conversationID string) (bool, error)

	// MarkProcessed sets the processed_at timestamp for a message.
	MarkProcessed(messageID string) error

	// PruneInbound deletes records received before the cutoff and returns how many were removed.
	PruneInbound(before time.Time) (int64, error)
}

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN string // database connection string
}

// Option defines a configuration option for store implementations.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType returns "postgres" for PostgreSQL URLs or keyword DSNs and "sqlite3" otherwise.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// Open builds the backend selected by the DSN, or an in-memory store when dsn is empty.
func Open(dsn string) (Store, error) {
	switch {
	case dsn == "":
		slog.Debug("No database DSN provided, using in-memory store")
		return NewInMemoryStore(), nil
	case DetectDSNType(dsn) == "postgres":
		slog.Debug("Detected PostgreSQL DSN, opening PostgreSQL store", "dsn_set", true)
		return NewPostgresStore(WithPostgresDSN(dsn))
	default:
		slog.Debug("Detected SQLite DSN, opening SQLite store", "db_path", dsn)
		return NewSQLiteStore(WithSQLiteDSN(dsn))
	}
}

// InMemoryStore is a map-backed store for tests and stateless deployments.
type InMemoryStore struct {
	mu        sync.RWMutex
	receipts  []models.Receipt
	responses []models.Response
	flows     map[string]models.ConversationFlow
	profiles  map[string]models.UserProfile
	dedup     map[string]DedupRecord
}

// NewInMemoryStore creates an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		flows:    make(map[string]models.ConversationFlow),
		profiles: make(map[string]models.UserProfile),
		dedup:    make(map[string]DedupRecord),
	}
}

func (s *InMemoryStore) AddReceipt(r models.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts = append(s.receipts, r)
	return nil
}

func (s *InMemoryStore) GetReceipts() ([]models.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Receipt(nil), s.receipts...), nil
}

func (s *InMemoryStore) AddResponse(r models.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, r)
	return nil
}

func (s *InMemoryStore) GetResponses() ([]models.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Response(nil), s.responses...), nil
}

// GetConversationFlow returns a copy of the stored flow.
func (s *InMemoryStore) GetConversationFlow(conversationID string) (*models.ConversationFlow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.flows[conversationID]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

// SaveConversationFlow stores or replaces a conversation flow.
func (s *InMemoryStore) SaveConversationFlow(flow models.ConversationFlow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[flow.ConversationID] = flow
	return nil
}

// GetUserProfile returns a copy of the stored profile.
func (s *InMemoryStore) GetUserProfile(userID string) (*models.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// SaveUserProfile stores or replaces a user profile.
func (s *InMemoryStore) SaveUserProfile(profile models.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.UserID] = profile
	return nil
}

func (s *InMemoryStore) RecordInbound(messageID, conversationID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dedup[messageID]; ok {
		return false, nil
	}
	s.dedup[messageID] = DedupRecord{MessageID: messageID, ConversationID: conversationID, ReceivedAt: time.Now()}
	return true, nil
}

func (s *InMemoryStore) MarkProcessed(messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.dedup[messageID]
	if !ok {
		return nil
	}
	now := time.Now()
	rec.ProcessedAt = &now
	s.dedup[messageID] = rec
	return nil
}

func (s *InMemoryStore) PruneInbound(before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rec := range s.dedup {
		if rec.ReceivedAt.Before(before) {
			delete(s.dedup, id)
			n++
		}
	}
	return n, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
