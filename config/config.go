// Package config loads and validates the streaming service's configuration
// from file, environment, and defaults, and supports hot reload via fsnotify.
package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "SPEECHD"

	DefaultServerPort       = 8080
	DefaultServerHost       = "0.0.0.0"
	DefaultMaxConnections   = 1000
	DefaultReadTimeout      = 30
	DefaultWebSocketMsgSize = 2097152
	DefaultWebSocketBufSize = 1024

	DefaultSendQueueSize = 500
	DefaultMaxSendErrors = 10

	DefaultVADProvider   = "silero_vad"
	DefaultVADPoolSize   = 10
	DefaultVADThreshold  = 0.5
	DefaultMinSilenceDur = 0.1
	DefaultMinSpeechDur  = 0.25
	DefaultMaxSpeechDur  = 8.0
	DefaultWindowSize    = 512
	DefaultVADBufferSecs = 15
	DefaultCleanupThresh = 0.8
	DefaultCleanupRatio  = 0.3
	DefaultSilenceResetS = 30
	DefaultKeepAudioSecs = 5

	DefaultSampleRate  = 16000
	DefaultChunkSizeMS = 300

	DefaultSVThreshold  = 0.42
	DefaultMinAudioMS   = 800
	DefaultMaxAudioMS   = 5000
	DefaultVADOverlapMS = 100
	DefaultPauseMS      = 1500
	DefaultSmartLineBrk = true

	DefaultThreadPoolMaxWorkers = 4

	DefaultLogLevel      = "info"
	DefaultLogFormat     = "text"
	DefaultLogOutput     = "console"
	DefaultLogMaxSize    = 100
	DefaultLogMaxBackups = 5
	DefaultLogMaxAge     = 30
	DefaultLogCompress   = true

	MinPort = 1
	MaxPort = 65535

	DefaultDebounceDuration = 2 * time.Second
)

var (
	ValidLogLevels  = []string{"debug", "info", "warn", "error"}
	ValidLogFormats = []string{"text", "json"}
	ValidLogOutputs = []string{"console", "file", "both"}
	ValidVADTypes   = []string{"silero_vad", "ten_vad"}
	ValidProviders  = []string{"cpu", "cuda", "coreml"}
)

var (
	ErrInvalidPort        = errors.New("server port must be between 1 and 65535")
	ErrInvalidLogLevel    = errors.New("invalid log level")
	ErrInvalidLogFormat   = errors.New("invalid log format")
	ErrInvalidLogOutput   = errors.New("invalid log output")
	ErrInvalidVADProvider = errors.New("invalid VAD provider")
	ErrInvalidProvider    = errors.New("invalid provider")
	ErrEmptyModelPath     = errors.New("model path cannot be empty")
	ErrInvalidThreshold   = errors.New("threshold must be between 0 and 1")
	ErrInvalidSampleRate  = errors.New("sample rate must be positive")
)

// Config is the immutable, fully resolved service configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Session     SessionConfig     `mapstructure:"session"`
	VAD         VADConfig         `mapstructure:"vad"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	Recognition RecognitionConfig `mapstructure:"recognition"`
	Speaker     SpeakerConfig     `mapstructure:"speaker"`
	Audio       AudioConfig       `mapstructure:"audio"`
	Store       StoreConfig       `mapstructure:"store"`
	Summarize   SummarizeConfig   `mapstructure:"summarize"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
}

// RateLimitConfig configures the per-IP token-bucket limiter guarding the
// WebSocket upgrade and HTTP endpoints.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerSecond int  `mapstructure:"requests_per_second"`
	BurstSize         int  `mapstructure:"burst_size"`
	MaxConnections    int  `mapstructure:"max_connections"`
}

type ServerConfig struct {
	Port           int             `mapstructure:"port"`
	Host           string          `mapstructure:"host"`
	MaxConnections int             `mapstructure:"max_connections"`
	ReadTimeout    int             `mapstructure:"read_timeout"`
	WebSocket      WebSocketConfig `mapstructure:"websocket"`
}

type WebSocketConfig struct {
	ReadTimeout     int      `mapstructure:"read_timeout"`
	MaxMessageSize  int      `mapstructure:"max_message_size"`
	ReadBufferSize  int      `mapstructure:"read_buffer_size"`
	WriteBufferSize int      `mapstructure:"write_buffer_size"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
}

type SessionConfig struct {
	SendQueueSize int `mapstructure:"send_queue_size"`
	MaxSendErrors int `mapstructure:"max_send_errors"`
}

// VADConfig configures the pooled voice-activity-detector model.
type VADConfig struct {
	Provider  string        `mapstructure:"provider"`
	PoolSize  int           `mapstructure:"pool_size"`
	Threshold float32       `mapstructure:"threshold"`
	SileroVAD SileroVADConf `mapstructure:"silero_vad"`
}

type SileroVADConf struct {
	ModelPath          string  `mapstructure:"model_path"`
	Threshold          float32 `mapstructure:"threshold"`
	MinSilenceDuration float32 `mapstructure:"min_silence_duration"`
	MinSpeechDuration  float32 `mapstructure:"min_speech_duration"`
	MaxSpeechDuration  float32 `mapstructure:"max_speech_duration"`
	WindowSize         int     `mapstructure:"window_size"`
	BufferSizeSeconds  float32 `mapstructure:"buffer_size_seconds"`
}

// PipelineConfig carries the ring/cursor/line-break tunables that the
// teacher's VAD pool owned internally but which this service's VADDriver and
// Eventer accept as parameters, per connection.
type PipelineConfig struct {
	ChunkSizeMS            int     `mapstructure:"chunk_size_ms"`
	VADBufferSeconds       int     `mapstructure:"vad_buffer_seconds"`
	VADBufferCleanupThresh float64 `mapstructure:"vad_buffer_cleanup_threshold"`
	VADBufferCleanupRatio  float64 `mapstructure:"vad_buffer_cleanup_ratio"`
	SilenceResetSeconds    int     `mapstructure:"silence_reset_seconds"`
	KeepAudioSeconds       int     `mapstructure:"keep_audio_seconds"`
	MinAudioLengthMS       int     `mapstructure:"min_audio_length_ms"`
	MaxAudioLengthMS       int     `mapstructure:"max_audio_length_ms"`
	VADOverlapMS           float64 `mapstructure:"vad_overlap_ms"`
	PauseThresholdMS       int64   `mapstructure:"pause_threshold_ms"`
	EnableSmartLineBreak   bool    `mapstructure:"enable_smart_line_break"`
	ThreadPoolMaxWorkers   int     `mapstructure:"thread_pool_max_workers"`
}

type RecognitionConfig struct {
	ModelPath                   string `mapstructure:"model_path"`
	TokensPath                  string `mapstructure:"tokens_path"`
	Language                    string `mapstructure:"language"`
	UseInverseTextNormalization bool   `mapstructure:"use_inverse_text_normalization"`
	NumThreads                  int    `mapstructure:"num_threads"`
	Provider                    string `mapstructure:"provider"`
	Debug                       bool   `mapstructure:"debug"`
}

type SpeakerConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	ModelPath  string  `mapstructure:"model_path"`
	NumThreads int     `mapstructure:"num_threads"`
	Provider   string  `mapstructure:"provider"`
	Threshold  float32 `mapstructure:"threshold"`
	DataDir    string  `mapstructure:"data_dir"`
}

type AudioConfig struct {
	SampleRate int `mapstructure:"sample_rate"`
	FeatureDim int `mapstructure:"feature_dim"`
	// NormalizeFactor divides raw PCM16 samples to reach the [-1, 1] float32
	// range the capability models expect.
	NormalizeFactor float32 `mapstructure:"normalize_factor"`
}

// StoreConfig points at the sqlite database backing the recording catalog
// and the persisted speaker gallery.
type StoreConfig struct {
	DSN string `mapstructure:"dsn"`
}

// SummarizeConfig configures the out-of-core LLM summarizer collaborator.
type SummarizeConfig struct {
	Provider string `mapstructure:"provider"`
	Model    string `mapstructure:"model"`
	APIKey   string `mapstructure:"api_key"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// Load reads configuration from file, environment, and defaults, returning
// a validated Config.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("json")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/speechd/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			fmt.Println("[WARN] config file not found, using defaults")
		} else {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.host", DefaultServerHost)
	v.SetDefault("server.max_connections", DefaultMaxConnections)
	v.SetDefault("server.read_timeout", DefaultReadTimeout)
	v.SetDefault("server.websocket.read_timeout", DefaultReadTimeout)
	v.SetDefault("server.websocket.max_message_size", DefaultWebSocketMsgSize)
	v.SetDefault("server.websocket.read_buffer_size", DefaultWebSocketBufSize)
	v.SetDefault("server.websocket.write_buffer_size", DefaultWebSocketBufSize)
	v.SetDefault("server.websocket.allow_all_origins", true)
	v.SetDefault("server.websocket.allowed_origins", []string{})

	v.SetDefault("session.send_queue_size", DefaultSendQueueSize)
	v.SetDefault("session.max_send_errors", DefaultMaxSendErrors)

	v.SetDefault("vad.provider", DefaultVADProvider)
	v.SetDefault("vad.pool_size", DefaultVADPoolSize)
	v.SetDefault("vad.threshold", DefaultVADThreshold)
	v.SetDefault("vad.silero_vad.threshold", DefaultVADThreshold)
	v.SetDefault("vad.silero_vad.min_silence_duration", DefaultMinSilenceDur)
	v.SetDefault("vad.silero_vad.min_speech_duration", DefaultMinSpeechDur)
	v.SetDefault("vad.silero_vad.max_speech_duration", DefaultMaxSpeechDur)
	v.SetDefault("vad.silero_vad.window_size", DefaultWindowSize)
	v.SetDefault("vad.silero_vad.buffer_size_seconds", float32(DefaultVADBufferSecs))

	v.SetDefault("pipeline.chunk_size_ms", DefaultChunkSizeMS)
	v.SetDefault("pipeline.vad_buffer_seconds", DefaultVADBufferSecs)
	v.SetDefault("pipeline.vad_buffer_cleanup_threshold", DefaultCleanupThresh)
	v.SetDefault("pipeline.vad_buffer_cleanup_ratio", DefaultCleanupRatio)
	v.SetDefault("pipeline.silence_reset_seconds", DefaultSilenceResetS)
	v.SetDefault("pipeline.keep_audio_seconds", DefaultKeepAudioSecs)
	v.SetDefault("pipeline.min_audio_length_ms", DefaultMinAudioMS)
	v.SetDefault("pipeline.max_audio_length_ms", DefaultMaxAudioMS)
	v.SetDefault("pipeline.vad_overlap_ms", DefaultVADOverlapMS)
	v.SetDefault("pipeline.pause_threshold_ms", DefaultPauseMS)
	v.SetDefault("pipeline.enable_smart_line_break", DefaultSmartLineBrk)
	v.SetDefault("pipeline.thread_pool_max_workers", DefaultThreadPoolMaxWorkers)

	v.SetDefault("recognition.language", "auto")
	v.SetDefault("recognition.use_inverse_text_normalization", true)
	v.SetDefault("recognition.num_threads", 2)
	v.SetDefault("recognition.provider", "cpu")

	v.SetDefault("speaker.enabled", false)
	v.SetDefault("speaker.num_threads", 2)
	v.SetDefault("speaker.provider", "cpu")
	v.SetDefault("speaker.threshold", DefaultSVThreshold)

	v.SetDefault("audio.sample_rate", DefaultSampleRate)
	v.SetDefault("audio.feature_dim", 80)
	v.SetDefault("audio.normalize_factor", 32768.0)

	v.SetDefault("store.dsn", "speechd.sqlite")

	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.format", DefaultLogFormat)
	v.SetDefault("logging.output", DefaultLogOutput)
	v.SetDefault("logging.max_size", DefaultLogMaxSize)
	v.SetDefault("logging.max_backups", DefaultLogMaxBackups)
	v.SetDefault("logging.max_age", DefaultLogMaxAge)
	v.SetDefault("logging.compress", DefaultLogCompress)

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.requests_per_second", 50)
	v.SetDefault("rate_limit.burst_size", 100)
	v.SetDefault("rate_limit.max_connections", DefaultMaxConnections)
}

// Validate rejects configurations that would panic or misbehave deep inside
// the pipeline, rather than letting a bad value surface as a runtime crash.
func Validate(cfg *Config) error {
	if err := validateServerConfig(&cfg.Server); err != nil {
		return err
	}
	if err := validateVADConfig(&cfg.VAD); err != nil {
		return err
	}
	if err := validateLoggingConfig(&cfg.Logging); err != nil {
		return err
	}
	if err := validateAudioConfig(&cfg.Audio); err != nil {
		return err
	}
	if cfg.Recognition.ModelPath == "" {
		return fmt.Errorf("recognition.model_path: %w", ErrEmptyModelPath)
	}
	if cfg.Speaker.Enabled && cfg.Speaker.ModelPath == "" {
		return fmt.Errorf("speaker.model_path: %w", ErrEmptyModelPath)
	}
	return nil
}

func validateServerConfig(cfg *ServerConfig) error {
	if cfg.Port < MinPort || cfg.Port > MaxPort {
		return ErrInvalidPort
	}
	if cfg.ReadTimeout < 0 {
		return fmt.Errorf("server.read_timeout: %w", errors.New("must be non-negative"))
	}
	return nil
}

func validateVADConfig(cfg *VADConfig) error {
	if !containsString(ValidVADTypes, cfg.Provider) {
		return fmt.Errorf("%w: %s", ErrInvalidVADProvider, cfg.Provider)
	}
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return fmt.Errorf("%w: got %f", ErrInvalidThreshold, cfg.Threshold)
	}
	return nil
}

func validateLoggingConfig(cfg *LoggingConfig) error {
	if !containsString(ValidLogLevels, cfg.Level) {
		return fmt.Errorf("%w: %s", ErrInvalidLogLevel, cfg.Level)
	}
	if !containsString(ValidLogFormats, cfg.Format) {
		return fmt.Errorf("%w: %s", ErrInvalidLogFormat, cfg.Format)
	}
	if !containsString(ValidLogOutputs, cfg.Output) {
		return fmt.Errorf("%w: %s", ErrInvalidLogOutput, cfg.Output)
	}
	return nil
}

func validateAudioConfig(cfg *AudioConfig) error {
	if cfg.SampleRate <= 0 {
		return ErrInvalidSampleRate
	}
	if cfg.NormalizeFactor <= 0 {
		return fmt.Errorf("audio.normalize_factor: must be positive")
	}
	return nil
}

func containsString(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// SensitiveKeywords identifies config key fragments that should never be
// logged or printed in full.
var SensitiveKeywords = []string{"password", "passwd", "secret", "token", "api_key", "apikey", "credential", "private_key"}

// Mask obscures a string for display, keeping the first and last two
// characters as a recognition aid.
func Mask(s string) string {
	if len(s) == 0 {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

// MaskWithLength masks a string while preserving its length as metadata.
func MaskWithLength(s string) string {
	if len(s) == 0 {
		return ""
	}
	return fmt.Sprintf("[MASKED:%d]", len(s))
}

// IsSensitiveKey reports whether a config key name looks like it carries a
// credential, using case-insensitive substring matching against
// SensitiveKeywords.
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, kw := range SensitiveKeywords {
		if strings.Contains(keyLower, kw) {
			return true
		}
	}
	return false
}

// Addr returns the server's listen address in "host:port" form.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// PrintCompact renders a one-line summary suitable for a startup log line.
func (c *Config) PrintCompact() string {
	return fmt.Sprintf("server=%s:%d vad=%s workers=%d log=%s",
		c.Server.Host, c.Server.Port, c.VAD.Provider, c.Pipeline.ThreadPoolMaxWorkers, c.Logging.Level)
}

// ToSafeMap returns a structured-logging-friendly view with the summarizer
// API key masked.
func (c *Config) ToSafeMap() map[string]interface{} {
	return map[string]interface{}{
		"server": map[string]interface{}{
			"host":            c.Server.Host,
			"port":            c.Server.Port,
			"max_connections": c.Server.MaxConnections,
			"read_timeout":    c.Server.ReadTimeout,
		},
		"vad": map[string]interface{}{
			"provider":  c.VAD.Provider,
			"pool_size": c.VAD.PoolSize,
			"threshold": c.VAD.Threshold,
		},
		"recognition": map[string]interface{}{
			"model_path":  c.Recognition.ModelPath,
			"num_threads": c.Recognition.NumThreads,
			"provider":    c.Recognition.Provider,
		},
		"summarize": map[string]interface{}{
			"provider": c.Summarize.Provider,
			"model":    c.Summarize.Model,
			"api_key":  MaskWithLength(c.Summarize.APIKey),
		},
	}
}

// Reload re-reads configPath and replaces c's contents in place, preserving
// pointer identity for callers that captured *Config.
func (c *Config) Reload(configPath string) error {
	newCfg, err := Load(configPath)
	if err != nil {
		return err
	}
	*c = *newCfg
	return nil
}

// ConfigChangeCallback is invoked with the newly validated config after a
// hot reload.
type ConfigChangeCallback func(*Config)

// HotReloadManager watches the config file and notifies callbacks on change,
// debouncing bursts of filesystem events into a single reload.
type HotReloadManager struct {
	configPath       string
	cfg              *Config
	v                *viper.Viper
	callbacks        []ConfigChangeCallback
	debounceDuration time.Duration
	debounceTimer    *time.Timer
	stopChan         chan struct{}
	mu               sync.RWMutex
}

func NewHotReloadManager(configPath string, cfg *Config) *HotReloadManager {
	return &HotReloadManager{
		configPath:       configPath,
		cfg:              cfg,
		debounceDuration: DefaultDebounceDuration,
		stopChan:         make(chan struct{}),
	}
}

func (m *HotReloadManager) OnChange(cb ConfigChangeCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, cb)
}

func (m *HotReloadManager) StartWatching() error {
	v := viper.New()
	m.v = v
	v.SetConfigFile(m.configPath)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config for watching: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		m.handleConfigChange()
	})
	v.WatchConfig()
	fmt.Printf("[INFO] watching config file: %s\n", m.configPath)
	return nil
}

func (m *HotReloadManager) handleConfigChange() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.debounceTimer != nil {
		m.debounceTimer.Stop()
	}
	m.debounceTimer = time.AfterFunc(m.debounceDuration, m.reloadAndNotify)
}

func (m *HotReloadManager) reloadAndNotify() {
	newCfg, err := Load(m.configPath)
	if err != nil {
		fmt.Printf("[ERROR] failed to reload config: %v\n", err)
		return
	}
	m.mu.Lock()
	m.cfg = newCfg
	callbacks := make([]ConfigChangeCallback, len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	for _, cb := range callbacks {
		go func(cb ConfigChangeCallback) {
			defer func() {
				if r := recover(); r != nil {
					fmt.Printf("[ERROR] config callback panicked: %v\n", r)
				}
			}()
			cb(newCfg)
		}(cb)
	}
}

func (m *HotReloadManager) Stop() {
	close(m.stopChan)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.debounceTimer != nil {
		m.debounceTimer.Stop()
	}
}
