package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Dannythecoder88/StudyPal/internal/assistant"
	"github.com/Dannythecoder88/StudyPal/internal/audio"
	"github.com/Dannythecoder88/StudyPal/internal/capture"
	"github.com/Dannythecoder88/StudyPal/internal/config"
	"github.com/Dannythecoder88/StudyPal/internal/conversation"
	"github.com/Dannythecoder88/StudyPal/internal/focus"
	"github.com/Dannythecoder88/StudyPal/internal/gateway"
	"github.com/Dannythecoder88/StudyPal/internal/observability"
	"github.com/Dannythecoder88/StudyPal/internal/recorder"
	"github.com/Dannythecoder88/StudyPal/internal/resilience"
	"github.com/Dannythecoder88/StudyPal/internal/settings"
	"github.com/Dannythecoder88/StudyPal/internal/stats"
	"github.com/Dannythecoder88/StudyPal/internal/storage"
	"github.com/Dannythecoder88/StudyPal/internal/stt"
	"github.com/Dannythecoder88/StudyPal/internal/tts"
)

const healthRefreshInterval = 15 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("stt_provider", cfg.STTProvider).
		Str("tts_provider", cfg.TTSProvider).
		Str("database", cfg.DatabasePath).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Bool("local_audio", cfg.LocalAudioEnabled).
		Msg("StudyPal gateway starting")

	retryConfig := &resilience.RetryConfig{
		MaxAttempts:       cfg.RetryMaxAttempts,
		InitialBackoff:    config.Millis(cfg.RetryInitialBackoff),
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}

	// Persistence for timers and stats
	store, closeStore, pingStore := openStore(cfg, retryConfig, logger)
	defer closeStore()

	statsRegistry := stats.NewRegistry(store, logger)
	timers := focus.NewRegistry(store, focusConfig(cfg), func(id string) []focus.Observer {
		return []focus.Observer{focus.MetricsObserver{}, statsRegistry.For(id)}
	}, logger)

	// Downstream services, each behind its own circuit breaker
	sttBreaker := newBreaker("stt", cfg, logger)
	ttsBreaker := newBreaker("tts", cfg, logger)
	assistantBreaker := newBreaker("assistant", cfg, logger)

	var transcriber stt.Transcriber
	switch cfg.STTProvider {
	case config.ProviderDeepgram:
		transcriber = stt.NewDeepgramClient(cfg, logger)
	default:
		transcriber = stt.NewOpenAIClient(cfg, logger)
	}
	transcriber = stt.NewGuardedTranscriber(transcriber, sttBreaker)

	var synthesizer tts.Synthesizer
	switch cfg.TTSProvider {
	case config.ProviderCartesia:
		synthesizer = tts.NewCartesiaClient(cfg, logger)
	default:
		synthesizer = tts.NewOpenAIClient(cfg, logger)
	}
	synthesizer = tts.NewGuardedSynthesizer(synthesizer, ttsBreaker)

	assistantClient := assistant.NewClient(cfg, assistantBreaker, logger)

	voiceSettings, err := settings.Open(cfg.SettingsPath, settings.Defaults(cfg))
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.SettingsPath).Msg("Failed to load voice settings")
	}

	deps := gateway.Deps{
		Config:      cfg,
		Timers:      timers,
		Stats:       statsRegistry,
		Settings:    voiceSettings,
		Transcriber: transcriber,
		Synthesizer: synthesizer,
		Assistant:   assistantClient,
		Logger:      logger,
	}

	// Optional turns on this machine's microphone and speaker
	var closeLocal func()
	if cfg.LocalAudioEnabled {
		deps.Local, closeLocal = newLocalOrchestrator(cfg, deps, retryConfig, logger)
	}

	gw := gateway.New(deps)

	// Create HTTP server
	mux := http.NewServeMux()
	gw.Routes(mux)

	checks := []observability.Check{
		{Name: "storage", Func: pingStore},
		{Name: "stt:" + transcriber.Name(), Func: breakerCheck(sttBreaker, providerKey(cfg, cfg.STTProvider))},
		{Name: "tts:" + synthesizer.Name(), Func: breakerCheck(ttsBreaker, providerKey(cfg, cfg.TTSProvider))},
		{Name: "assistant", Func: breakerCheck(assistantBreaker, cfg.OpenAIAPIKey)},
	}

	// Health check endpoint
	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(checks...))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Create HTTP server with timeouts. Websocket handlers manage their own
	// deadlines, so there is no write timeout.
	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("voice_endpoint", websocketURL(cfg, "/ws/voice")).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// gRPC health service for orchestrators that probe over gRPC
	healthCtx, stopHealth := context.WithCancel(context.Background())
	defer stopHealth()
	var grpcHealth *observability.GRPCHealth
	if cfg.GRPCPort != "" {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
		if err != nil {
			logger.Fatal().Err(err).Str("port", cfg.GRPCPort).Msg("Failed to listen for gRPC health")
		}
		grpcHealth = observability.NewGRPCHealth(checks)
		go grpcHealth.Watch(healthCtx, healthRefreshInterval)
		go func() {
			logger.Info().Str("port", cfg.GRPCPort).Msg("gRPC health service listening")
			if err := grpcHealth.Serve(lis); err != nil {
				logger.Error().Err(err).Msg("gRPC health service stopped")
			}
		}()
	}

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stopHealth()
	if grpcHealth != nil {
		grpcHealth.Shutdown()
	}
	gw.Close()
	if closeLocal != nil {
		closeLocal()
	}
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	timers.Close()

	logger.Info().Msg("Server exited gracefully")
}

// openStore opens the SQLite database. An empty path keeps everything in
// process memory.
func openStore(cfg *config.Config, retryConfig *resilience.RetryConfig, logger zerolog.Logger) (storage.Store, func(), observability.HealthCheckFunc) {
	if cfg.DatabasePath == "" {
		logger.Warn().Msg("Using in-memory storage; timers and stats will not survive a restart")
		return storage.NewMemoryStore(), func() {}, func(context.Context) (bool, error) { return true, nil }
	}

	var db *storage.SQLiteStore
	err := resilience.Retry(context.Background(), "open database", func(ctx context.Context) error {
		var err error
		db, err = storage.OpenSQLite(cfg.DatabasePath, logger)
		if err != nil {
			return resilience.NewRetryableError(err)
		}
		return nil
	}, retryConfig, resilience.IsRetryable, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DatabasePath).Msg("Failed to open database")
	}

	closeDB := func() {
		if err := db.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close database")
		}
	}
	ping := func(ctx context.Context) (bool, error) {
		if err := db.Ping(ctx); err != nil {
			return false, err
		}
		return true, nil
	}
	return db, closeDB, ping
}

func focusConfig(cfg *config.Config) focus.Config {
	fc := focus.DefaultConfig()
	fc.DefaultBlock = time.Duration(cfg.FocusBlockMinutes) * time.Minute
	fc.DefaultBreak = time.Duration(cfg.FocusBreakMinutes) * time.Minute
	fc.LongBreakMin = time.Duration(cfg.LongBreakMinMinutes) * time.Minute
	fc.LongBreakMax = time.Duration(cfg.LongBreakMaxMinutes) * time.Minute
	fc.MaxCustomBreak = time.Duration(cfg.MaxCustomBreakMinutes) * time.Minute
	fc.MaxTimers = cfg.FocusMaxTimers
	return fc
}

func newBreaker(name string, cfg *config.Config, logger zerolog.Logger) *resilience.CircuitBreaker {
	cb := resilience.NewCircuitBreaker(name, cfg.CircuitBreakerMaxFailures,
		time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second)
	cb.OnStateChange(func(name string, from, to resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(to))
		if to == resilience.StateOpen {
			observability.IncrementCircuitBreakerFailures(name)
		}
		logger.Warn().
			Str("breaker", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("Circuit breaker state changed")
	})
	observability.UpdateCircuitBreakerState(name, int(cb.GetState()))
	return cb
}

// breakerCheck reports a provider ready when it has credentials and its
// breaker is not open. No API call is made to avoid costs.
func breakerCheck(cb *resilience.CircuitBreaker, apiKey string) observability.HealthCheckFunc {
	return func(ctx context.Context) (bool, error) {
		if apiKey == "" {
			return false, errors.New("API key not configured")
		}
		return cb.HealthCheck(ctx)
	}
}

func providerKey(cfg *config.Config, provider string) string {
	switch provider {
	case config.ProviderDeepgram:
		return cfg.DeepgramAPIKey
	case config.ProviderCartesia:
		return cfg.CartesiaAPIKey
	default:
		return cfg.OpenAIAPIKey
	}
}

// newLocalOrchestrator wires the host microphone and speaker. Local audio
// is best effort: a machine without a sound server runs without it.
func newLocalOrchestrator(cfg *config.Config, deps gateway.Deps, retryConfig *resilience.RetryConfig, logger zerolog.Logger) (*conversation.Orchestrator, func()) {
	localLogger := logger.With().Str("component", "local_audio").Logger()

	var source capture.Context
	err := resilience.Retry(context.Background(), "open capture context", func(ctx context.Context) error {
		var err error
		source, err = capture.NewContext()
		if err != nil {
			return resilience.NewRetryableError(err)
		}
		return nil
	}, retryConfig, resilience.IsRetryable, localLogger)
	if err != nil {
		localLogger.Warn().Err(err).Msg("Local audio unavailable")
		return nil, nil
	}

	current := deps.Settings.Get()
	recConfig := recorder.DefaultConfig()
	recConfig.SampleRate = cfg.AudioSampleRate
	recConfig.Timeslice = config.Millis(cfg.RecorderTimeslice)
	recConfig.HistorySize = cfg.AudioSampleRate

	rec := recorder.New(source, recConfig, localLogger)
	vad := audio.NewVAD(current.VADConfig(), localLogger)
	player := tts.NewPlayer(deps.Synthesizer, tts.NewSpeakerSink(localLogger), current.SpeakOptions(), cfg.MaxSegmentChars, localLogger)

	converse := gateway.Converser(deps.Assistant, deps.Stats, gateway.DefaultTimerID)

	orch := conversation.New(rec, vad, player, deps.Transcriber, converse, conversation.Options{
		Transcription: current.TranscriptionOptions(),
		Speech:        current.SpeakOptions(),
	}, localLogger)
	orch.OnPhase(func(snap conversation.Snapshot) {
		ev := localLogger.Info().Str("phase", string(snap.Phase)).Str("turn_id", snap.TurnID)
		if snap.Error != "" {
			ev = ev.Str("error", snap.Error).Str("kind", snap.ErrorKind)
		}
		ev.Msg("Local voice phase")
	})

	localLogger.Info().Msg("Local audio enabled")
	return orch, func() {
		orch.ForceStop()
		source.Close()
	}
}

func websocketURL(cfg *config.Config, path string) string {
	base := cfg.PublicURL
	if base == "" {
		return fmt.Sprintf("ws://localhost:%s%s", cfg.Port, path)
	}
	base = strings.TrimSuffix(base, "/")
	base = strings.Replace(base, "https://", "wss://", 1)
	base = strings.Replace(base, "http://", "ws://", 1)
	return base + path
}
