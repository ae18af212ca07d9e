package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/IntakePipe/internal/api"
	"github.com/BTreeMap/IntakePipe/internal/filestore"
	"github.com/BTreeMap/IntakePipe/internal/flow"
	"github.com/BTreeMap/IntakePipe/internal/gate"
	"github.com/BTreeMap/IntakePipe/internal/session"
	"github.com/BTreeMap/IntakePipe/internal/store"
	"github.com/BTreeMap/IntakePipe/internal/telegram"
	"github.com/BTreeMap/IntakePipe/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for IntakePipe state data
	DefaultStateDir = "/var/lib/intakepipe"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "intakepipe.db"
	// DefaultArchiveDirName is the default local archive directory name
	DefaultArchiveDirName = "archive"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	if *flags.botToken == "" {
		slog.Error("TELEGRAM_BOT_TOKEN is required")
		os.Exit(1)
	}

	// Ensure required directories exist
	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping IntakePipe with configured modules")
	if err := run(config, flags); err != nil {
		slog.Error("IntakePipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("IntakePipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	BotToken           string
	DatabaseURL        string
	StateDir           string
	ArchiveDir         string
	GCSBucket          string
	GCSPrefix          string
	RedisAddr          string
	APIAddr            string
	JWTSecret          string
	DoctorPassword     string
	AccountantPassword string
	Cooldown           time.Duration
	ThrottleLimit      int
}

// Flags holds command line flag values
type Flags struct {
	botToken   *string
	stateDir   *string
	dbDSN      *string
	archiveDir *string
	apiAddr    *string
	debug      *bool
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
		BotToken:           os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		StateDir:           os.Getenv("INTAKEPIPE_STATE_DIR"),
		ArchiveDir:         os.Getenv("ARCHIVE_DIR"),
		GCSBucket:          os.Getenv("GCS_BUCKET"),
		GCSPrefix:          os.Getenv("GCS_PREFIX"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		APIAddr:            os.Getenv("API_ADDR"),
		JWTSecret:          os.Getenv("API_JWT_SECRET"),
		DoctorPassword:     os.Getenv("DOCTOR_PASSWORD"),
		AccountantPassword: os.Getenv("ACCOUNTANT_PASSWORD"),
		Cooldown:           util.ParseDurationEnv("GATE_COOLDOWN", gate.DefaultCooldown),
		ThrottleLimit:      util.ParseIntEnv("GATE_THROTTLE_LIMIT", gate.DefaultThrottleLimit),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No INTAKEPIPE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}
	if config.ArchiveDir == "" {
		config.ArchiveDir = filepath.Join(config.StateDir, DefaultArchiveDirName)
	}

	slog.Debug("environment variables loaded",
		"TELEGRAM_BOT_TOKEN_SET", config.BotToken != "",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"INTAKEPIPE_STATE_DIR", config.StateDir,
		"ARCHIVE_DIR", config.ArchiveDir,
		"GCS_BUCKET", config.GCSBucket,
		"REDIS_ADDR", config.RedisAddr,
		"API_ADDR", config.APIAddr,
		"API_JWT_SECRET_SET", config.JWTSecret != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		botToken:   flag.String("bot-token", config.BotToken, "Telegram bot token (overrides $TELEGRAM_BOT_TOKEN)"),
		stateDir:   flag.String("state-dir", config.StateDir, "state directory for IntakePipe data (overrides $INTAKEPIPE_STATE_DIR)"),
		dbDSN:      flag.String("db-dsn", config.DatabaseURL, "database DSN for the submission store (overrides $DATABASE_URL)"),
		archiveDir: flag.String("archive-dir", config.ArchiveDir, "local archive directory (overrides $ARCHIVE_DIR)"),
		apiAddr:    flag.String("api-addr", config.APIAddr, "review API server address (overrides $API_ADDR)"),
		debug:      flag.Bool("debug", util.ParseBoolEnv("DEBUG", false), "enable Bot API request logging"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"botTokenSet", *flags.botToken != "",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"archiveDir", *flags.archiveDir,
		"apiAddr", *flags.apiAddr,
		"debug", *flags.debug)

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == store.DSNTypeSQLite {
		stateDir := filepath.Dir(*flags.dbDSN)
		if err := os.MkdirAll(stateDir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(flags Flags) []store.Option {
	if store.DetectDSNType(*flags.dbDSN) == store.DSNTypePostgres {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return []store.Option{store.WithPostgresDSN(*flags.dbDSN)}
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return []store.Option{store.WithSQLiteDSN(*flags.dbDSN)}
}

// run wires every module together and blocks until shutdown.
func run(config Config, flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.NewStore(buildStoreOptions(flags)...)
	if err != nil {
		return err
	}
	defer st.Close()

	var storage filestore.Storage
	if config.GCSBucket != "" {
		gcs, err := filestore.NewGCSStorage(ctx, config.GCSBucket, config.GCSPrefix)
		if err != nil {
			return err
		}
		defer gcs.Close()
		storage = gcs
	} else {
		local, err := filestore.NewLocalStorage(*flags.archiveDir)
		if err != nil {
			return err
		}
		storage = local
	}

	gateOpts := []gate.Option{
		gate.WithCooldown(config.Cooldown),
		gate.WithThrottle(config.ThrottleLimit, gate.DefaultThrottleSpan),
	}
	var entryGate gate.Gate
	if config.RedisAddr != "" {
		redisGate, err := gate.NewRedisGate(ctx, config.RedisAddr, gateOpts...)
		if err != nil {
			return err
		}
		defer redisGate.Close()
		entryGate = redisGate
	} else {
		entryGate = gate.NewMemoryGate(gateOpts...)
	}

	var tgOpts []telegram.Option
	if *flags.debug {
		tgOpts = append(tgOpts, telegram.WithDebug())
	}
	tg, err := telegram.NewService(*flags.botToken, tgOpts...)
	if err != nil {
		return err
	}

	exporter := filestore.NewExporter(storage, tg)
	sessions := session.NewManager()
	controller := flow.NewController(tg, sessions, st, entryGate, exporter)

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	apiOpts = append(apiOpts,
		api.WithJWTSecret(config.JWTSecret),
		api.WithRoleCredentials(config.DoctorPassword, config.AccountantPassword))
	apiServer, err := api.NewServer(st, tg, apiOpts...)
	if err != nil {
		return err
	}

	if err := tg.Start(ctx); err != nil {
		return err
	}
	go func() {
		if err := apiServer.Start(); err != nil {
			slog.Error("API server stopped with error", "error", err)
			stop()
		}
	}()

	err = controller.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutdownErr := apiServer.Shutdown(shutdownCtx); shutdownErr != nil {
		slog.Warn("API server shutdown failed", "error", shutdownErr)
	}
	if stopErr := tg.Stop(); stopErr != nil {
		slog.Warn("Telegram transport shutdown failed", "error", stopErr)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
