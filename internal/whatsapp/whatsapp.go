// Package whatsapp is MeetingAssistant's direct WhatsApp transport. It pairs a linked
// device through whatsmeow, keeps the session in SQLite or Postgres, and sends the bot's
// replies as plain conversation messages.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/BTreeMap/MeetingAssistant/internal/store"
	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
)

const (
	// DefaultSQLitePath holds the linked-device session when no DSN is configured.
	DefaultSQLitePath = "/var/lib/meetingassistant/whatsmeow.db"
	// JIDSuffix is the server part of a personal account's JID.
	JIDSuffix = "s.whatsapp.net"
)

var (
	ErrNotConnected   = errors.New("whatsapp session is not connected")
	ErrEmptyRecipient = errors.New("recipient cannot be empty")
	ErrEmptyBody      = errors.New("message body cannot be empty")
)

// WhatsAppSender delivers one text reply to a phone number given as digits.
type WhatsAppSender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Opts configures the session store and how pairing codes are shown.
type Opts struct {
	DBDSN       string // session store DSN; DefaultSQLitePath when empty
	QRPath      string // file that receives pairing codes instead of stdout
	NumericCode bool   // print raw pairing codes instead of rendering a QR block
}

// Option mutates Opts.
type Option func(*Opts)

// WithDBDSN selects where the linked-device session is stored.
func WithDBDSN(dsn string) Option {
	return func(o *Opts) {
		o.DBDSN = dsn
	}
}

// WithQRCodeOutput writes pairing codes to path, for headless hosts.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) {
		o.QRPath = path
	}
}

// WithNumericCode prints pairing codes as text.
func WithNumericCode() Option {
	return func(o *Opts) {
		o.NumericCode = true
	}
}

// Client is a connected linked-device session.
type Client struct {
	waClient *whatsmeow.Client
}

// NewClient opens the session store and connects. A store without a paired device starts
// the pairing flow and blocks until it ends.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	dsn := cfg.DBDSN
	if dsn == "" {
		dsn = DefaultSQLitePath
	}
	driver := sessionDriver(dsn)
	slog.Debug("WhatsApp opening session store", "driver", driver, "qrFile", cfg.QRPath != "", "numericCode", cfg.NumericCode)

	container, err := sqlstore.New(ctx, driver, dsn, waLog.Stdout("Database", "INFO", true))
	if err != nil {
		slog.Error("WhatsApp session store unavailable", "error", err, "driver", driver)
		return nil, fmt.Errorf("open whatsapp session store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		slog.Error("WhatsApp device lookup failed", "error", err)
		return nil, fmt.Errorf("load whatsapp device: %w", err)
	}

	wa := whatsmeow.NewClient(device, waLog.Stdout("Client", "INFO", true))
	if wa.Store.ID == nil {
		err = pair(ctx, wa, cfg)
	} else {
		err = wa.Connect()
	}
	if err != nil {
		slog.Error("WhatsApp connect failed", "error", err)
		return nil, fmt.Errorf("connect to whatsapp: %w", err)
	}
	slog.Info("WhatsApp session connected", "paired", wa.Store.ID != nil)
	return &Client{waClient: wa}, nil
}

// sessionDriver maps a DSN to the database/sql driver whatsmeow should use.
func sessionDriver(dsn string) string {
	if store.DetectDSNType(dsn) == "postgres" {
		return "postgres"
	}
	if !strings.Contains(dsn, "foreign_keys") {
		slog.Warn("WhatsApp SQLite session store should enable foreign keys", "hint", "file:"+dsn+"?_foreign_keys=on")
	}
	return "sqlite3"
}

// pair connects an unpaired device and renders each pairing code until the phone links it
// or the codes run out.
func pair(ctx context.Context, wa *whatsmeow.Client, cfg Opts) error {
	slog.Info("WhatsApp device not paired, waiting for pairing code scan")
	codes, err := wa.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("request pairing codes: %w", err)
	}
	if err := wa.Connect(); err != nil {
		return err
	}

	out := io.Writer(os.Stdout)
	if cfg.QRPath != "" {
		f, err := os.Create(cfg.QRPath)
		if err != nil {
			return fmt.Errorf("create pairing code file: %w", err)
		}
		defer f.Close()
		out = f
	}
	for evt := range codes {
		if evt.Event != "code" {
			slog.Info("WhatsApp pairing event", "event", evt.Event)
			continue
		}
		if cfg.NumericCode {
			fmt.Fprintln(out, evt.Code)
		} else {
			qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, out)
		}
	}
	return nil
}

// SendMessage sends body to the digits-only number to.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	switch {
	case to == "":
		return ErrEmptyRecipient
	case body == "":
		return ErrEmptyBody
	case c.waClient == nil || c.waClient.Store == nil:
		return ErrNotConnected
	}

	jid := types.NewJID(to, JIDSuffix)
	if _, err := c.waClient.SendMessage(ctx, jid, &waE2E.Message{Conversation: &body}); err != nil {
		slog.Error("WhatsApp send failed", "error", err, "to", to)
		return fmt.Errorf("send whatsapp message to %s: %w", to, err)
	}
	slog.Debug("WhatsApp message sent", "to", to, "length", len(body))
	return nil
}

// GetClient exposes the whatsmeow client so callers can subscribe to inbound events.
func (c *Client) GetClient() *whatsmeow.Client {
	return c.waClient
}

// Disconnect drops the connection; the paired session stays in the store.
func (c *Client) Disconnect() {
	if c.waClient != nil {
		c.waClient.Disconnect()
	}
}

// SentMessage is one reply captured by MockClient.
type SentMessage struct {
	To   string
	Body string
}

// MockClient captures replies in memory for tests.
type MockClient struct {
	mu           sync.Mutex
	SentMessages []SentMessage
	Err          error // returned from SendMessage when set
}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SendMessage(ctx context.Context, to string, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.SentMessages = append(m.SentMessages, SentMessage{To: to, Body: body})
	return nil
}

// Sent returns a snapshot of the captured replies.
func (m *MockClient) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.SentMessages...)
}
