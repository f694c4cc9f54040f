package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"

	"github.com/campussafe/safebot/internal/alert"
	"github.com/campussafe/safebot/internal/api"
	"github.com/campussafe/safebot/internal/flow"
	"github.com/campussafe/safebot/internal/lockfile"
	"github.com/campussafe/safebot/internal/messaging"
	"github.com/campussafe/safebot/internal/models"
	"github.com/campussafe/safebot/internal/scheduler"
	"github.com/campussafe/safebot/internal/store"
	"github.com/campussafe/safebot/internal/twiliosms"
	"github.com/campussafe/safebot/internal/util"
	"github.com/campussafe/safebot/internal/verify"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for SafeBot state data
	DefaultStateDir = "/var/lib/safebot"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "safebot.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping SafeBot with configured modules")
	if err := run(flags); err != nil {
		slog.Error("SafeBot failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("SafeBot exited successfully")
}

// Config holds environment configuration
type Config struct {
	TelegramToken string
	DatabaseURL   string
	StateDir      string
	APIAddr       string
	VerifyBaseURL string
	JWTSecret     string
	SecurityPhone string
	AdminEmail    string
	AdminPassword string
	TwilioSID     string
	TwilioToken   string
	TwilioFrom    string
}

// Flags holds command line flag values
type Flags struct {
	telegramToken *string
	stateDir      *string
	dbDSN         *string
	apiAddr       *string
	verifyBaseURL *string
	jwtSecret     *string
	securityPhone *string
	adminEmail    *string
	adminPassword *string
	twilioSID     *string
	twilioToken   *string
	twilioFrom    *string
}

// initializeLogger sets up structured logging with debug level
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
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
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		StateDir:      os.Getenv("SAFEBOT_STATE_DIR"),
		APIAddr:       os.Getenv("API_ADDR"),
		VerifyBaseURL: os.Getenv("VERIFY_BASE_URL"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		SecurityPhone: os.Getenv("SECURITY_PHONE_NUMBER"),
		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		TwilioSID:     os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:    os.Getenv("TWILIO_FROM_NUMBER"),
	}

	// Set default state directory if not specified
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No SAFEBOT_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	} else {
		slog.Debug("SAFEBOT_STATE_DIR found in environment", "state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"TELEGRAM_BOT_TOKEN_SET", config.TelegramToken != "",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"SAFEBOT_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"VERIFY_BASE_URL", config.VerifyBaseURL,
		"JWT_SECRET_SET", config.JWTSecret != "",
		"SECURITY_PHONE_SET", config.SecurityPhone != "",
		"TWILIO_CONFIG_SET", config.TwilioSID != "" && config.TwilioToken != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		telegramToken: flag.String("telegram-token", config.TelegramToken, "Telegram bot token (overrides $TELEGRAM_BOT_TOKEN)"),
		stateDir:      flag.String("state-dir", config.StateDir, "state directory for SafeBot data (overrides $SAFEBOT_STATE_DIR)"),
		dbDSN:         flag.String("db-dsn", config.DatabaseURL, "database DSN (overrides $DATABASE_URL)"),
		apiAddr:       flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		verifyBaseURL: flag.String("verify-base-url", config.VerifyBaseURL, "public base URL for verification links (overrides $VERIFY_BASE_URL)"),
		jwtSecret:     flag.String("jwt-secret", config.JWTSecret, "HMAC secret for admin tokens (overrides $JWT_SECRET)"),
		securityPhone: flag.String("security-phone", config.SecurityPhone, "security desk phone for SMS alerts (overrides $SECURITY_PHONE_NUMBER)"),
		adminEmail:    flag.String("admin-email", config.AdminEmail, "bootstrap admin email (overrides $ADMIN_EMAIL)"),
		adminPassword: flag.String("admin-password", config.AdminPassword, "bootstrap admin password (overrides $ADMIN_PASSWORD)"),
		twilioSID:     flag.String("twilio-sid", config.TwilioSID, "Twilio account SID (overrides $TWILIO_ACCOUNT_SID)"),
		twilioToken:   flag.String("twilio-token", config.TwilioToken, "Twilio auth token (overrides $TWILIO_AUTH_TOKEN)"),
		twilioFrom:    flag.String("twilio-from", config.TwilioFrom, "Twilio sending number (overrides $TWILIO_FROM_NUMBER)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"telegramToken_set", *flags.telegramToken != "",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"verifyBaseURL", *flags.verifyBaseURL,
		"jwtSecret_set", *flags.jwtSecret != "",
		"securityPhone_set", *flags.securityPhone != "")

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) != "postgres" {
		stateDir := filepath.Dir(*flags.dbDSN)
		slog.Debug("Creating state directory for file-based database", "state_dir", stateDir)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			slog.Error("Failed to create state directory", "error", err, "state_dir", stateDir)
			return err
		}
	}
	return nil
}

// buildStore opens the storage backend selected by the DSN.
func buildStore(flags Flags) (store.Store, error) {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
		return store.NewPostgresStore(store.WithPostgresDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithSQLiteDSN(*flags.dbDSN))
}

// ensureAdminAccount seeds the bootstrap admin if credentials are configured
// and the account does not exist yet.
func ensureAdminAccount(st store.Store, email, password string) error {
	if email == "" || password == "" {
		slog.Debug("No bootstrap admin configured")
		return nil
	}
	existing, err := st.GetAdminByEmail(email)
	if err != nil {
		return err
	}
	if existing != nil {
		slog.Debug("Bootstrap admin already exists", "email", email)
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	admin := models.Admin{
		ID:           util.GenerateAdminID(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	if err := st.SaveAdmin(admin); err != nil {
		return err
	}
	slog.Info("Bootstrap admin created", "email", admin.Email)
	return nil
}

func run(flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// One instance per state directory: two pollers on the same bot token
	// steal each other's updates.
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := buildStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := ensureAdminAccount(st, *flags.adminEmail, *flags.adminPassword); err != nil {
		return err
	}

	var gateOpts []verify.Option
	if *flags.verifyBaseURL != "" {
		gateOpts = append(gateOpts, verify.WithBaseURL(*flags.verifyBaseURL))
	}
	gate := verify.NewGate(st, gateOpts...)
	gate.StartSweeper(ctx, verify.DefaultSweepInterval)

	svc, err := messaging.NewTelegramService(messaging.WithToken(*flags.telegramToken))
	if err != nil {
		return err
	}
	defer svc.Stop()

	// SMS alerting is optional; without Twilio config the bot still runs,
	// reports just don't page the security desk.
	var engineOpts []flow.Option
	var notifier *alert.SMSNotifier
	if *flags.securityPhone != "" && *flags.twilioSID != "" && *flags.twilioToken != "" {
		sms, smsErr := twiliosms.NewClient(
			twiliosms.WithAccountSID(*flags.twilioSID),
			twiliosms.WithAuthToken(*flags.twilioToken),
			twiliosms.WithFrom(*flags.twilioFrom),
		)
		if smsErr != nil {
			return smsErr
		}
		notifier = alert.NewSMSNotifier(sms, *flags.securityPhone)
		engineOpts = append(engineOpts, flow.WithNotifier(notifier))
		slog.Info("SMS alerting enabled", "to", *flags.securityPhone)
	} else {
		slog.Info("SMS alerting disabled; security desk will not be paged")
	}

	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if notifier != nil {
		if err := sched.AddJob("0 8 * * *", func() {
			digestCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := notifier.DailyDigest(digestCtx, st); err != nil {
				slog.Error("Daily digest failed", "error", err)
			}
		}); err != nil {
			return err
		}
		slog.Debug("Daily digest scheduled", "cron", "0 8 * * *")
	}

	engine := flow.NewEngine(flow.NewStoreBasedSessionManager(st), st, svc, gate, engineOpts...)

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	apiOpts = append(apiOpts, api.WithJWTSecret(*flags.jwtSecret))
	server, err := api.NewServer(st, gate, engine, apiOpts...)
	if err != nil {
		return err
	}
	if err := server.Start(); err != nil {
		return err
	}

	if err := svc.Start(ctx); err != nil {
		return err
	}
	dispatcher := messaging.NewDispatcher(svc, engine.HandleMessage)
	dispatcher.Start(ctx)

	<-ctx.Done()
	slog.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("API shutdown failed", "error", err)
	}
	if err := svc.Stop(); err != nil {
		slog.Error("Messaging stop failed", "error", err)
	}
	dispatcher.Wait()
	return nil
}
