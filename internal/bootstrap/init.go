// Package bootstrap wires the concrete sherpa-onnx model runtime, pools, and
// middleware into the capability interfaces the streaming pipeline depends
// on, and returns one dependency container for main to serve from.
package bootstrap

import (
	"fmt"
	"os"

	"speechd/config"
	"speechd/internal/capability"
	"speechd/internal/capability/sherpaadapter"
	"speechd/internal/logger"
	"speechd/internal/middleware"
	"speechd/internal/offline"
	"speechd/internal/pool"
	"speechd/internal/speaker"
	"speechd/internal/store"
	"speechd/internal/summarize"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

// AppDependencies is the root dependency container for the service.
type AppDependencies struct {
	Config       *config.Config
	VADPool      pool.VADPoolInterface
	VAD          *sherpaadapter.VAD
	ASR          *sherpaadapter.ASR
	SV           *sherpaadapter.SV
	Store        *store.DB
	Speaker      *speaker.Manager
	Offline      *offline.Processor
	RateLimiter  *middleware.RateLimiter
	HotReloadMgr *config.HotReloadManager
}

// createRecognizer initializes the SenseVoice offline recognizer shared by
// every connection. Language and inverse-text-normalization are fixed here
// at construction time; SenseVoice's own "auto" language mode resolves the
// spoken language per utterance from then on.
func createRecognizer(cfg *config.Config) (*sherpa.OfflineRecognizer, error) {
	c := sherpa.OfflineRecognizerConfig{}
	c.FeatConfig.SampleRate = cfg.Audio.SampleRate
	c.FeatConfig.FeatureDim = cfg.Audio.FeatureDim

	c.ModelConfig.SenseVoice.Model = cfg.Recognition.ModelPath
	c.ModelConfig.SenseVoice.Language = cfg.Recognition.Language
	if cfg.Recognition.UseInverseTextNormalization {
		c.ModelConfig.SenseVoice.UseInverseTextNormalization = 1
	}
	c.ModelConfig.Tokens = cfg.Recognition.TokensPath
	c.ModelConfig.NumThreads = cfg.Recognition.NumThreads
	if cfg.Recognition.Debug {
		c.ModelConfig.Debug = 1
	}
	c.ModelConfig.Provider = cfg.Recognition.Provider

	recognizer := sherpa.NewOfflineRecognizer(&c)
	if recognizer == nil {
		return nil, fmt.Errorf("failed to create offline recognizer")
	}
	return recognizer, nil
}

// createSpeakerEmbeddingExtractor builds the shared speaker-embedding model
// used by the SV capability. Returns nil, nil when speaker recognition is
// disabled in config.
func createSpeakerEmbeddingExtractor(cfg *config.Config) (*sherpa.SpeakerEmbeddingExtractor, error) {
	if !cfg.Speaker.Enabled {
		return nil, nil
	}
	if _, err := os.Stat(cfg.Speaker.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("speaker model file not found: %s", cfg.Speaker.ModelPath)
	}

	c := sherpa.SpeakerEmbeddingExtractorConfig{
		Model:      cfg.Speaker.ModelPath,
		NumThreads: cfg.Speaker.NumThreads,
		Provider:   cfg.Speaker.Provider,
	}
	extractor := sherpa.NewSpeakerEmbeddingExtractor(&c)
	if extractor == nil {
		return nil, fmt.Errorf("failed to create speaker embedding extractor")
	}
	return extractor, nil
}

// InitApp initializes every core component and returns the dependency
// container. All dependencies are explicitly constructed from cfg; nothing
// here falls back to hidden global state.
func InitApp(cfg *config.Config, configPath string) (*AppDependencies, error) {
	logger.Info("initializing_components")

	hotReloadMgr := config.NewHotReloadManager(configPath, cfg)
	hotReloadMgr.OnChange(func(newCfg *config.Config) {
		logger.SetLevel(newCfg.Logging.Level)
		logger.Info("configuration_reloaded",
			"log_level", newCfg.Logging.Level,
			"vad_provider", newCfg.VAD.Provider,
			"rate_limit_enabled", newCfg.RateLimit.Enabled,
		)
	})
	if err := hotReloadMgr.StartWatching(); err != nil {
		logger.Warn("failed_to_start_config_file_watching", "error", err)
	}

	logger.Info("initializing_global_recognizer")
	recognizer, err := createRecognizer(cfg)
	if err != nil {
		logger.Error("failed_to_initialize_global_recognizer", "error", err)
		return nil, fmt.Errorf("failed to initialize global recognizer: %w", err)
	}
	asr := sherpaadapter.NewASR(recognizer, cfg.Audio.SampleRate)

	vadFactory := pool.NewVADFactory(cfg)
	if cfg.VAD.Provider == pool.SILERO_TYPE {
		if _, err := os.Stat(cfg.VAD.SileroVAD.ModelPath); os.IsNotExist(err) {
			logger.Error("vad_model_file_not_found", "model_path", cfg.VAD.SileroVAD.ModelPath)
			return nil, fmt.Errorf("VAD model file not found: %s", cfg.VAD.SileroVAD.ModelPath)
		}
	}
	vadPool, err := vadFactory.CreateVADPool()
	if err != nil {
		logger.Error("failed_to_create_vad_pool", "error", err)
		return nil, fmt.Errorf("failed to create VAD pool: %w", err)
	}
	logger.Info("initializing_vad_pool", "pool_size", cfg.VAD.PoolSize)
	if err := vadPool.Initialize(); err != nil {
		logger.Error("failed_to_initialize_vad_pool", "error", err)
		return nil, fmt.Errorf("failed to initialize VAD pool: %w", err)
	}
	vad := sherpaadapter.NewVAD(vadPool, cfg.Audio.SampleRate)

	db, err := store.Open(cfg.Store.DSN)
	if err != nil {
		logger.Error("failed_to_open_store", "error", err)
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	var sv *sherpaadapter.SV
	var speakerMgr *speaker.Manager
	extractor, err := createSpeakerEmbeddingExtractor(cfg)
	if err != nil {
		logger.Warn("failed_to_initialize_speaker_embedding_extractor", "error", err)
	} else if extractor != nil {
		sv = sherpaadapter.NewSV(extractor, cfg.Audio.SampleRate)
		speakerMgr, err = speaker.NewManager(db, sv, cfg.Speaker.Threshold)
		if err != nil {
			logger.Error("failed_to_initialize_speaker_gallery", "error", err)
			return nil, fmt.Errorf("failed to initialize speaker gallery: %w", err)
		}
	}

	summarizer, err := summarize.New(cfg.Summarize)
	if err != nil {
		logger.Warn("failed_to_initialize_summarizer", "error", err)
	}
	var sessionSV capability.SV
	if sv != nil {
		sessionSV = sv
	}
	offlineProcessor := offline.New(cfg, vad, asr, sessionSV, db, summarizer, logger.WithFields("component", "offline"))

	logger.Info("initializing_rate_limiter",
		"requests_per_second", cfg.RateLimit.RequestsPerSecond,
		"max_connections", cfg.RateLimit.MaxConnections,
	)
	rateLimiter := middleware.NewRateLimiter(
		cfg.RateLimit.Enabled,
		cfg.RateLimit.RequestsPerSecond,
		cfg.RateLimit.BurstSize,
		cfg.RateLimit.MaxConnections,
	)

	logger.Info("all_components_initialized_successfully")
	return &AppDependencies{
		Config:       cfg,
		VADPool:      vadPool,
		VAD:          vad,
		ASR:          asr,
		SV:           sv,
		Store:        db,
		Speaker:      speakerMgr,
		Offline:      offlineProcessor,
		RateLimiter:  rateLimiter,
		HotReloadMgr: hotReloadMgr,
	}, nil
}
