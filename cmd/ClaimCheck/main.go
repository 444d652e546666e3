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

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/BTreeMap/ClaimCheck/internal/api"
	"github.com/BTreeMap/ClaimCheck/internal/catalog"
	"github.com/BTreeMap/ClaimCheck/internal/flow"
	"github.com/BTreeMap/ClaimCheck/internal/genai"
	"github.com/BTreeMap/ClaimCheck/internal/lead"
	"github.com/BTreeMap/ClaimCheck/internal/lockfile"
	"github.com/BTreeMap/ClaimCheck/internal/messaging"
	"github.com/BTreeMap/ClaimCheck/internal/qualify"
	"github.com/BTreeMap/ClaimCheck/internal/scheduler"
	"github.com/BTreeMap/ClaimCheck/internal/store"
	"github.com/BTreeMap/ClaimCheck/internal/twiliowhatsapp"
	"github.com/BTreeMap/ClaimCheck/internal/whatsapp"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for ClaimCheck state data
	DefaultStateDir = "/var/lib/claimcheck"
	// DefaultAppDBFileName is the default SQLite database filename
	DefaultAppDBFileName = "claimcheck.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow device database filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
)

// Notification channels.
const (
	ChannelNone     = "none"
	ChannelTwilio   = "twilio"
	ChannelWhatsApp = "whatsapp"
)

func main() {
	initializeLogger()

	config, err := loadEnvironmentConfig()
	if err != nil {
		slog.Error("Invalid environment configuration", "error", err)
		os.Exit(2)
	}
	config, err = parseCommandLineFlags(os.Args[1:], config)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		slog.Error("Invalid command line", "error", err)
		os.Exit(2)
	}
	config = resolveDefaults(config)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping ClaimCheck", "state_dir", config.StateDir, "api_addr", config.APIAddr, "notify_channel", config.NotifyChannel, "test_mode", config.TestMode)
	if err := run(ctx, config); err != nil {
		slog.Error("ClaimCheck failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("ClaimCheck exited successfully")
}

// Config holds environment configuration. Command-line flags override it.
type Config struct {
	StateDir            string        `env:"CLAIMCHECK_STATE_DIR" envDefault:"/var/lib/claimcheck"`
	DatabaseURL         string        `env:"DATABASE_URL"`
	APIAddr             string        `env:"API_ADDR" envDefault:":8080"`
	TestMode            bool          `env:"TEST_MODE"`
	AccidentWindowDays  int           `env:"ACCIDENT_WINDOW_DAYS" envDefault:"365"`
	TreatmentWindowDays int           `env:"TREATMENT_WINDOW_DAYS" envDefault:"60"`
	CatalogFile         string        `env:"CATALOG_FILE"`
	NotifyChannel       string        `env:"NOTIFY_CHANNEL" envDefault:"none"`
	NotifyRecipients    []string      `env:"NOTIFY_RECIPIENTS" envSeparator:","`
	TwilioAccountSID    string        `env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken     string        `env:"TWILIO_AUTH_TOKEN"`
	TwilioFromNumber    string        `env:"TWILIO_FROM_NUMBER"`
	TwilioChannel       string        `env:"TWILIO_CHANNEL" envDefault:"whatsapp"`
	WhatsAppDSN         string        `env:"WHATSAPP_DB_DSN"`
	WhatsAppQROutput    string        `env:"WHATSAPP_QR_OUTPUT"`
	WhatsAppNumericCode bool          `env:"WHATSAPP_NUMERIC_CODE"`
	OpenAIKey           string        `env:"OPENAI_API_KEY"`
	OpenAIModel         string        `env:"OPENAI_MODEL"`
	SubmitTimeout       time.Duration `env:"SUBMIT_TIMEOUT" envDefault:"30s"`
	OutboxPollInterval  time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"5s"`
	SessionTTL          time.Duration `env:"SESSION_TTL" envDefault:"72h"`
	SessionSweepCron    string        `env:"SESSION_SWEEP_SCHEDULE" envDefault:"*/15 * * * *"`
	OutboxRecoveryCron  string        `env:"OUTBOX_RECOVERY_SCHEDULE" envDefault:"*/10 * * * *"`
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	var config Config
	if err := env.Parse(&config); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	slog.Debug("environment variables loaded",
		"CLAIMCHECK_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"API_ADDR", config.APIAddr,
		"NOTIFY_CHANNEL", config.NotifyChannel,
		"NOTIFY_RECIPIENTS", len(config.NotifyRecipients),
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "")
	return config, nil
}

// parseCommandLineFlags applies command line overrides on top of config.
func parseCommandLineFlags(args []string, config Config) (Config, error) {
	fs := flag.NewFlagSet("ClaimCheck", flag.ContinueOnError)
	fs.StringVar(&config.StateDir, "state-dir", config.StateDir, "state directory for ClaimCheck data (overrides $CLAIMCHECK_STATE_DIR)")
	fs.StringVar(&config.DatabaseURL, "db-dsn", config.DatabaseURL, "application database DSN (overrides $DATABASE_URL)")
	fs.StringVar(&config.APIAddr, "api-addr", config.APIAddr, "API server address (overrides $API_ADDR)")
	fs.BoolVar(&config.TestMode, "test-mode", config.TestMode, "mark every session as a test (overrides $TEST_MODE)")
	fs.StringVar(&config.CatalogFile, "catalog", config.CatalogFile, "question catalog YAML file (overrides $CATALOG_FILE)")
	fs.StringVar(&config.NotifyChannel, "notify-channel", config.NotifyChannel, "lead notification channel: none|twilio|whatsapp (overrides $NOTIFY_CHANNEL)")
	fs.StringVar(&config.WhatsAppQROutput, "qr-output", config.WhatsAppQROutput, "path to write WhatsApp login QR code")
	fs.BoolVar(&config.WhatsAppNumericCode, "numeric-code", config.WhatsAppNumericCode, "use numeric login code instead of QR code")
	fs.StringVar(&config.OpenAIKey, "openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)")
	if err := fs.Parse(args); err != nil {
		return config, err
	}

	slog.Debug("flags parsed",
		"stateDir", config.StateDir,
		"dbDSN_set", config.DatabaseURL != "",
		"apiAddr", config.APIAddr,
		"notifyChannel", config.NotifyChannel,
		"catalog", config.CatalogFile)
	return config, nil
}

// resolveDefaults fills the database DSNs that default into the state directory.
func resolveDefaults(config Config) Config {
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultAppDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = "file:" + filepath.Join(config.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
	}
	config.NotifyChannel = strings.ToLower(strings.TrimSpace(config.NotifyChannel))
	return config
}

// run wires every module and serves the API until ctx is cancelled.
func run(ctx context.Context, config Config) error {
	if err := os.MkdirAll(config.StateDir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	lock, err := lockfile.AcquireLock(config.StateDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			slog.Warn("Failed to release state directory lock", "error", err)
		}
	}()

	st, err := store.Open(config.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	engine, err := buildEngine(config)
	if err != nil {
		return err
	}

	service, closeService, err := buildMessagingService(ctx, config)
	if err != nil {
		return err
	}
	defer closeService()

	recipients, err := canonicalRecipients(service, config.NotifyRecipients)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		slog.Warn("No NOTIFY_RECIPIENTS configured; leads are stored but nobody is notified")
	}

	notifierOpts, err := buildNotifierOptions(config)
	if err != nil {
		return err
	}
	notifier := messaging.NewNotifier(service, notifierOpts...)

	sender := store.NewOutboxSender(st, notifier.SendFunc(), config.OutboxPollInterval, store.WithReceipts(st))
	if err := sender.RecoverStaleMessages(); err != nil {
		slog.Error("Outbox recovery failed", "error", err)
	}
	go sender.Run(ctx)

	janitor := store.NewSessionJanitor(st, config.SessionTTL, 0)
	sched, err := startMaintenance(config, janitor, sender)
	if err != nil {
		return err
	}
	if sched != nil {
		defer sched.Stop()
	} else {
		go janitor.Run(ctx)
	}

	sessions := flow.NewStoreBasedSessionManager(engine, st)
	submitter := lead.NewSubmitter(st, lead.WithRecipients(recipients...))
	srv := api.NewServer(sessions, submitter, st,
		api.WithAddr(config.APIAddr),
		api.WithTestMode(config.TestMode),
	)
	return srv.Run(ctx)
}

// startMaintenance registers the cron-driven maintenance jobs. It returns a
// nil scheduler when no session sweep schedule is configured, in which case
// the janitor runs on its own ticker.
func startMaintenance(config Config, janitor *store.SessionJanitor, sender *store.OutboxSender) (*scheduler.Scheduler, error) {
	if config.SessionSweepCron == "" {
		return nil, nil
	}
	sched := scheduler.NewScheduler()
	if err := sched.AddJob("session-sweep", config.SessionSweepCron, func() { janitor.Sweep() }); err != nil {
		sched.Stop()
		return nil, err
	}
	if config.OutboxRecoveryCron != "" {
		err := sched.AddJob("outbox-recovery", config.OutboxRecoveryCron, func() {
			if err := sender.RecoverStaleMessages(); err != nil {
				slog.Error("Outbox recovery failed", "error", err)
			}
		})
		if err != nil {
			sched.Stop()
			return nil, err
		}
	}
	return sched, nil
}

// buildEngine loads the catalog and eligibility windows.
func buildEngine(config Config) (*flow.Engine, error) {
	rules := qualify.Rules{
		AccidentWindowDays:  config.AccidentWindowDays,
		TreatmentWindowDays: config.TreatmentWindowDays,
	}
	if rules.AccidentWindowDays <= 0 || rules.TreatmentWindowDays <= 0 {
		return nil, fmt.Errorf("eligibility windows must be positive (accident %d, treatment %d)", rules.AccidentWindowDays, rules.TreatmentWindowDays)
	}
	catEnv := catalog.Env{Rules: rules}

	var base catalog.Catalog
	var err error
	if config.CatalogFile != "" {
		base, err = catalog.LoadFile(config.CatalogFile, catEnv)
	} else {
		base, err = catalog.Default(catEnv)
	}
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return flow.NewEngine(base, flow.WithRules(rules), flow.WithSubmitTimeout(config.SubmitTimeout)), nil
}

// buildMessagingService connects the configured notification channel. The
// returned func releases it.
func buildMessagingService(ctx context.Context, config Config) (messaging.Service, func(), error) {
	noop := func() {}
	switch config.NotifyChannel {
	case "", ChannelNone:
		return messaging.LogService{}, noop, nil

	case ChannelTwilio:
		client, err := twiliowhatsapp.NewClient(
			twiliowhatsapp.WithAccountSID(config.TwilioAccountSID),
			twiliowhatsapp.WithAuthToken(config.TwilioAuthToken),
			twiliowhatsapp.WithFrom(config.TwilioFromNumber),
			twiliowhatsapp.WithChannel(twiliowhatsapp.Channel(config.TwilioChannel)),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("twilio client: %w", err)
		}
		return messaging.NewTwilioService(client), noop, nil

	case ChannelWhatsApp:
		opts := []whatsapp.Option{whatsapp.WithDBDSN(config.WhatsAppDSN)}
		if config.WhatsAppQROutput != "" {
			opts = append(opts, whatsapp.WithQRCodeOutput(config.WhatsAppQROutput))
		}
		if config.WhatsAppNumericCode {
			opts = append(opts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(ctx, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("whatsapp client: %w", err)
		}
		return messaging.NewWhatsAppService(client), client.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown NOTIFY_CHANNEL %q (expected none|twilio|whatsapp)", config.NotifyChannel)
}

// canonicalRecipients validates the intake-team recipients for service.
func canonicalRecipients(service messaging.Service, raw []string) ([]string, error) {
	var out []string
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		canonical, err := service.ValidateAndCanonicalizeRecipient(r)
		if err != nil {
			return nil, fmt.Errorf("NOTIFY_RECIPIENTS: %w", err)
		}
		out = append(out, canonical)
	}
	return out, nil
}

// buildNotifierOptions enables AI case summaries when an OpenAI key is set.
func buildNotifierOptions(config Config) ([]messaging.NotifierOption, error) {
	if config.OpenAIKey == "" {
		return nil, nil
	}
	opts := []genai.Option{genai.WithAPIKey(config.OpenAIKey)}
	if config.OpenAIModel != "" {
		opts = append(opts, genai.WithModel(config.OpenAIModel))
	}
	client, err := genai.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("genai client: %w", err)
	}
	slog.Debug("AI case summaries enabled")
	return []messaging.NotifierOption{messaging.WithSummarizer(client)}, nil
}
