// Package app wires configuration, storage, clients and services into the
// shared core used by cmd/fintrack-server.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bobmcallan/fintrack/internal/clients/gemini"
	"github.com/bobmcallan/fintrack/internal/common"
	"github.com/bobmcallan/fintrack/internal/interfaces"
	"github.com/bobmcallan/fintrack/internal/models"
	"github.com/bobmcallan/fintrack/internal/services/auth"
	"github.com/bobmcallan/fintrack/internal/services/oracle"
	"github.com/bobmcallan/fintrack/internal/services/report"
	"github.com/bobmcallan/fintrack/internal/services/session"
	"github.com/bobmcallan/fintrack/internal/storage"
)

// ErrOracleUnavailable is reported by price syncs when no Gemini key is configured.
var ErrOracleUnavailable = errors.New("price oracle not configured: set GEMINI_API_KEY")

// App holds all initialized services and clients.
type App struct {
	Config        *common.Config
	Logger        *common.Logger
	Storage       interfaces.StorageManager
	GeminiClient  *gemini.Client
	Oracle        interfaces.PriceOracle
	AuthService   interfaces.AuthService
	ReportService interfaces.ReportService
	Sessions      *session.Manager
	StartupTime   time.Time

	schedulerCancel context.CancelFunc
	reaperCancel    context.CancelFunc
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp loads configuration and initializes the App.
// configPath may be empty, in which case the default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	// Load version from .version file (fallback if ldflags not set)
	common.LoadVersionFromFile()

	binDir := getBinaryDir()

	// Load configuration - check provided path, FINTRACK_CONFIG, then binary dir, then fallback
	if configPath == "" {
		configPath = os.Getenv("FINTRACK_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "fintrack.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/fintrack.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Resolve relative storage and log paths to the binary directory
	if config.Storage.Path != "" && !filepath.IsAbs(config.Storage.Path) {
		config.Storage.Path = filepath.Join(binDir, config.Storage.Path)
	}
	if config.Logging.FilePath != "" && !filepath.IsAbs(config.Logging.FilePath) {
		config.Logging.FilePath = filepath.Join(binDir, config.Logging.FilePath)
	}

	return NewAppWithConfig(config, common.NewLoggerFromConfig(config.Logging))
}

// NewAppWithConfig initializes the App from an already loaded config.
func NewAppWithConfig(config *common.Config, logger *common.Logger) (*App, error) {
	startupStart := time.Now()
	ctx := context.Background()

	storageManager, err := storage.NewManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	var geminiClient *gemini.Client
	var priceOracle interfaces.PriceOracle = unavailableOracle{}
	if key := config.Clients.Gemini.APIKey; key != "" {
		geminiClient, err = gemini.NewClient(ctx, key,
			gemini.WithLogger(logger),
			gemini.WithModel(config.Clients.Gemini.Model),
			gemini.WithRateLimit(config.Clients.Gemini.RateLimit),
			gemini.WithTimeout(config.Clients.Gemini.GetTimeout()),
		)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize Gemini client - price sync unavailable")
		} else {
			priceOracle = oracle.NewService(geminiClient, logger)
		}
	} else {
		logger.Warn().Msg("Gemini API key not configured - price sync unavailable")
	}

	docs := storageManager.DocumentStore()
	authService := auth.NewService(storageManager.UserStore(), docs, &config.Auth, logger)

	a := &App{
		Config:        config,
		Logger:        logger,
		Storage:       storageManager,
		GeminiClient:  geminiClient,
		Oracle:        priceOracle,
		AuthService:   authService,
		ReportService: report.NewService(config, logger),
		Sessions:      session.NewManager(docs, authService, priceOracle, config, logger),
		StartupTime:   startupStart,
	}

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("App initialized")
	return a, nil
}

// Close releases all resources held by the App.
// Shutdown order: stop background loops, close sessions, close clients, close storage.
func (a *App) Close() {
	if a.schedulerCancel != nil {
		a.schedulerCancel()
		a.schedulerCancel = nil
	}
	if a.reaperCancel != nil {
		a.reaperCancel()
		a.reaperCancel = nil
	}
	if a.Sessions != nil {
		if err := a.Sessions.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close sessions")
		}
	}
	if a.GeminiClient != nil {
		a.GeminiClient.Close()
		a.GeminiClient = nil
	}
	if a.Storage != nil {
		a.Storage.Close()
		a.Storage = nil
	}
}

// StartPriceScheduler launches the background price refresh goroutine when
// prices.refresh_interval is set.
func (a *App) StartPriceScheduler() {
	interval := a.Config.Prices.GetRefreshInterval()
	if interval <= 0 {
		a.Logger.Debug().Msg("Price scheduler disabled")
		return
	}
	schedulerCtx, schedulerCancel := context.WithCancel(context.Background())
	a.schedulerCancel = schedulerCancel
	go startPriceScheduler(schedulerCtx, a.Sessions, a.Logger, interval, a.Config.Prices.GetFreshness())
}

// StartSessionReaper launches the goroutine that closes idle sessions.
func (a *App) StartSessionReaper() {
	reaperCtx, reaperCancel := context.WithCancel(context.Background())
	a.reaperCancel = reaperCancel
	go startSessionReaper(reaperCtx, a.Sessions, a.Logger, common.FreshnessSession)
}

// unavailableOracle fails every request so price syncs report a clear cause.
type unavailableOracle struct{}

func (unavailableOracle) FetchQuotes(context.Context, []string) ([]models.PriceQuote, error) {
	return nil, ErrOracleUnavailable
}
