package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/BTreeMap/MeetingAssistant/internal/api"
	"github.com/BTreeMap/MeetingAssistant/internal/bot"
	"github.com/BTreeMap/MeetingAssistant/internal/lockfile"
	"github.com/BTreeMap/MeetingAssistant/internal/messaging"
	"github.com/BTreeMap/MeetingAssistant/internal/qna"
	"github.com/BTreeMap/MeetingAssistant/internal/scheduler"
	"github.com/BTreeMap/MeetingAssistant/internal/store"
	"github.com/BTreeMap/MeetingAssistant/internal/twiliowhatsapp"
	"github.com/BTreeMap/MeetingAssistant/internal/util"
	"github.com/BTreeMap/MeetingAssistant/internal/webchat"
	"github.com/BTreeMap/MeetingAssistant/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for MeetingAssistant state data
	DefaultStateDir = "/var/lib/meetingassistant"
	// DefaultDBFileName is the default SQLite database filename for conversation state
	DefaultDBFileName = "meetingassistant.db"
	// DefaultWhatsAppDBFileName is the default SQLite database filename for the whatsmeow session
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// DefaultDedupRetention is how long inbound message IDs are remembered for deduplication
	DefaultDedupRetention = 7 * 24 * time.Hour
	// DedupPruneSchedule is when expired dedup records are deleted
	DedupPruneSchedule = "@hourly"
)

// Transport names accepted by -transport.
const (
	TransportNone     = "none"
	TransportWhatsApp = "whatsapp"
	TransportTwilio   = "twilio"
)

func main() {
	config := loadEnvironmentConfig()
	flags, err := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	initializeLogger(flags.logLevel)

	if err := run(flags); err != nil {
		slog.Error("MeetingAssistant failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("MeetingAssistant exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir         string
	DatabaseURL      string
	WhatsAppDSN      string
	APIAddr          string
	Transport        string
	QnAKBID          string
	QnAEndpointKey   string
	QnAEndpointHost  string
	OpenAIKey        string
	KnowledgeBaseDoc string
	LogLevel         string
	ValidateTwilio   bool
	TwilioWebhookURL string
	WebchatEnabled   bool
	DedupRetention   time.Duration
}

// Flags holds the resolved configuration after command line overrides.
type Flags struct {
	stateDir         string
	dbDSN            string
	whatsAppDSN      string
	apiAddr          string
	transport        string
	qnaKBID          string
	qnaEndpointKey   string
	qnaEndpointHost  string
	openaiKey        string
	kbFile           string
	logLevel         string
	qrOutput         string
	numeric          bool
	validateTwilio   bool
	twilioWebhookURL string
	webchatEnabled   bool
	dedupRetention   time.Duration
}

// initializeLogger sets up structured logging at the configured level.
func initializeLogger(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:         os.Getenv("MEETINGBOT_STATE_DIR"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		WhatsAppDSN:      os.Getenv("WHATSAPP_DB_DSN"),
		APIAddr:          os.Getenv("API_ADDR"),
		Transport:        os.Getenv("TRANSPORT"),
		QnAKBID:          os.Getenv("QNA_KNOWLEDGEBASE_ID"),
		QnAEndpointKey:   os.Getenv("QNA_ENDPOINT_KEY"),
		QnAEndpointHost:  os.Getenv("QNA_ENDPOINT_HOST"),
		OpenAIKey:        os.Getenv("OPENAI_API_KEY"),
		KnowledgeBaseDoc: os.Getenv("KNOWLEDGE_BASE_FILE"),
		LogLevel:         os.Getenv("LOG_LEVEL"),
		ValidateTwilio:   util.EnvBool("TWILIO_VALIDATE_SIGNATURE", false),
		TwilioWebhookURL: os.Getenv("TWILIO_WEBHOOK_URL"),
		WebchatEnabled:   util.EnvBool("WEBCHAT_ENABLED", true),
		DedupRetention:   util.EnvDuration("DEDUP_RETENTION", DefaultDedupRetention),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	if config.APIAddr == "" {
		config.APIAddr = api.DefaultAddr
	}
	if config.Transport == "" {
		config.Transport = TransportNone
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	return config
}

// parseCommandLineFlags applies command line overrides on top of the environment and fills
// in DSN defaults derived from the final state directory.
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) (Flags, error) {
	var f Flags
	fs.StringVar(&f.stateDir, "state-dir", config.StateDir, "state directory for MeetingAssistant data (overrides $MEETINGBOT_STATE_DIR)")
	fs.StringVar(&f.dbDSN, "db-dsn", config.DatabaseURL, "store DSN; Postgres URL or SQLite path (overrides $DATABASE_URL)")
	fs.StringVar(&f.whatsAppDSN, "whatsapp-db-dsn", config.WhatsAppDSN, "whatsmeow session DSN (overrides $WHATSAPP_DB_DSN)")
	fs.StringVar(&f.apiAddr, "api-addr", config.APIAddr, "API server address (overrides $API_ADDR)")
	fs.StringVar(&f.transport, "transport", config.Transport, "messaging transport: whatsapp, twilio or none (overrides $TRANSPORT)")
	fs.StringVar(&f.qnaKBID, "qna-kb-id", config.QnAKBID, "QnA Maker knowledge base ID (overrides $QNA_KNOWLEDGEBASE_ID)")
	fs.StringVar(&f.qnaEndpointKey, "qna-endpoint-key", config.QnAEndpointKey, "QnA Maker endpoint key (overrides $QNA_ENDPOINT_KEY)")
	fs.StringVar(&f.qnaEndpointHost, "qna-endpoint-host", config.QnAEndpointHost, "QnA Maker endpoint host (overrides $QNA_ENDPOINT_HOST)")
	fs.StringVar(&f.openaiKey, "openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)")
	fs.StringVar(&f.kbFile, "kb-file", config.KnowledgeBaseDoc, "knowledge base document for OpenAI answers (overrides $KNOWLEDGE_BASE_FILE)")
	fs.StringVar(&f.logLevel, "log-level", config.LogLevel, "log level: debug, info, warn, error (overrides $LOG_LEVEL)")
	fs.StringVar(&f.qrOutput, "qr-output", "", "path to write WhatsApp login QR code")
	fs.BoolVar(&f.numeric, "numeric-code", false, "use numeric WhatsApp login code instead of QR code")
	fs.DurationVar(&f.dedupRetention, "dedup-retention", config.DedupRetention, "how long inbound message IDs are kept for deduplication (overrides $DEDUP_RETENTION)")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	f.validateTwilio = config.ValidateTwilio
	f.twilioWebhookURL = config.TwilioWebhookURL
	f.webchatEnabled = config.WebchatEnabled

	switch f.transport {
	case TransportNone, TransportWhatsApp, TransportTwilio:
	default:
		return Flags{}, fmt.Errorf("unknown transport %q (want %s, %s or %s)", f.transport, TransportWhatsApp, TransportTwilio, TransportNone)
	}

	if f.dbDSN == "" {
		f.dbDSN = filepath.Join(f.stateDir, DefaultDBFileName)
	}
	if f.whatsAppDSN == "" {
		if store.DetectDSNType(f.dbDSN) == "postgres" {
			f.whatsAppDSN = f.dbDSN
		} else {
			f.whatsAppDSN = "file:" + filepath.Join(f.stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
		}
	}
	return f, nil
}

// ensureDirectoriesExist creates the state directory and the directory of a file-based store.
func ensureDirectoriesExist(flags Flags) error {
	if err := os.MkdirAll(flags.stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", flags.stateDir, err)
	}
	if store.DetectDSNType(flags.dbDSN) != "postgres" {
		dir := filepath.Dir(strings.TrimPrefix(flags.dbDSN, "file:"))
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}
	return nil
}

// buildKnowledgeBase picks QnA Maker when fully configured, then OpenAI, then the empty base.
func buildKnowledgeBase(flags Flags) (qna.KnowledgeBase, error) {
	if flags.qnaKBID != "" && flags.qnaEndpointKey != "" && flags.qnaEndpointHost != "" {
		slog.Info("Using QnA Maker knowledge base", "host", flags.qnaEndpointHost)
		return qna.NewMakerClient(
			qna.WithKnowledgeBaseID(flags.qnaKBID),
			qna.WithEndpointKey(flags.qnaEndpointKey),
			qna.WithEndpointHost(flags.qnaEndpointHost),
		)
	}
	if flags.openaiKey != "" {
		opts := []qna.OpenAIOption{qna.WithAPIKey(flags.openaiKey)}
		if flags.kbFile != "" {
			doc, err := qna.LoadDocument(flags.kbFile)
			if err != nil {
				return nil, err
			}
			opts = append(opts, qna.WithDocument(doc))
		}
		slog.Info("Using OpenAI knowledge base", "document_set", flags.kbFile != "")
		return qna.NewOpenAIKnowledgeBase(opts...)
	}
	slog.Info("No knowledge base configured; unmatched messages get the no-answer reply")
	return qna.Empty{}, nil
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	waOpts := []whatsapp.Option{whatsapp.WithDBDSN(flags.whatsAppDSN)}
	if flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(flags.qrOutput))
	}
	if flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	return waOpts
}

// buildMessagingService connects the selected transport. It returns nil for TransportNone.
func buildMessagingService(ctx context.Context, flags Flags) (messaging.Service, *messaging.TwilioService, error) {
	switch flags.transport {
	case TransportWhatsApp:
		client, err := whatsapp.NewClient(ctx, buildWhatsAppOptions(flags)...)
		if err != nil {
			return nil, nil, err
		}
		return messaging.NewWhatsAppService(client), nil, nil
	case TransportTwilio:
		client, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, nil, err
		}
		svc := messaging.NewTwilioService(client,
			messaging.WithSignatureValidation(flags.validateTwilio),
			messaging.WithWebhookURL(flags.twilioWebhookURL),
		)
		return svc, svc, nil
	default:
		return nil, nil, nil
	}
}

// pruneDedupJob deletes inbound dedup records older than retention.
func pruneDedupJob(repo store.DedupRepo, retention time.Duration) func(context.Context) error {
	return func(ctx context.Context) error {
		n, err := repo.PruneInbound(time.Now().Add(-retention))
		if err != nil {
			return err
		}
		if n > 0 {
			slog.Info("Pruned expired dedup records", "count", n, "retention", retention)
		}
		return nil
	}
}

// run wires the components and blocks until SIGINT/SIGTERM or a server failure.
func run(flags Flags) error {
	slog.Debug("Final configuration", "state_dir", flags.stateDir, "transport", flags.transport, "api_addr", flags.apiAddr)

	if err := ensureDirectoriesExist(flags); err != nil {
		return err
	}
	lock, err := lockfile.AcquireLock(flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := store.Open(flags.dbDSN)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	kb, err := buildKnowledgeBase(flags)
	if err != nil {
		return fmt.Errorf("failed to configure knowledge base: %w", err)
	}
	router, err := bot.NewRouter(st, st, kb)
	if err != nil {
		return err
	}

	sched := scheduler.NewScheduler()
	defer stopScheduler(sched, api.DefaultShutdownTimeout)
	if err := sched.AddJob("dedup-prune", DedupPruneSchedule, pruneDedupJob(st, flags.dedupRetention)); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, twilioSvc, err := buildMessagingService(ctx, flags)
	if err != nil {
		return fmt.Errorf("failed to start %s transport: %w", flags.transport, err)
	}
	if svc != nil {
		if err := svc.Start(ctx); err != nil {
			return fmt.Errorf("failed to start messaging service: %w", err)
		}
		defer svc.Stop()
		messaging.NewResponseHandler(svc, router, st).Start(ctx)
		messaging.RecordReceipts(ctx, svc, st)
	}

	var apiOpts []api.Option
	apiOpts = append(apiOpts, api.WithAddr(flags.apiAddr))
	if twilioSvc != nil {
		apiOpts = append(apiOpts, api.WithTwilioWebhook(twilioSvc))
	}
	if flags.webchatEnabled {
		apiOpts = append(apiOpts, api.WithWebchat(webchat.NewHandler(router)))
	}
	server, err := api.NewServer(st, router, apiOpts...)
	if err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Start() }()

	slog.Info("MeetingAssistant running", "transport", flags.transport, "api_addr", flags.apiAddr)
	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
		return errors.New("api server stopped unexpectedly")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), api.DefaultShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("API server shutdown failed", "error", err)
	}
	return nil
}

// stopScheduler stops sched, giving running jobs at most timeout to finish.
func stopScheduler(sched *scheduler.Scheduler, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	sched.Stop(ctx)
}
