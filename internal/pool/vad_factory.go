package pool

import (
	"fmt"

	"speechd/config"
	"speechd/internal/logger"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

// VADFactory creates a VAD pool for the configured provider.
type VADFactory struct {
	cfg       *config.Config
	factories map[string]VADPoolFactory
}

func NewVADFactory(cfg *config.Config) *VADFactory {
	factory := &VADFactory{
		cfg:       cfg,
		factories: make(map[string]VADPoolFactory),
	}
	factory.RegisterFactory(SILERO_TYPE, &SileroVADPoolFactory{})
	return factory
}

func (f *VADFactory) RegisterFactory(vadType string, factory VADPoolFactory) {
	f.factories[vadType] = factory
	logger.Info("registered_vad_factory", "type", vadType)
}

// CreateVADPool builds the pool for cfg.VAD.Provider.
func (f *VADFactory) CreateVADPool() (VADPoolInterface, error) {
	vadType := f.cfg.VAD.Provider
	logger.Info("creating_vad_pool", "type", vadType)

	factory, exists := f.factories[vadType]
	if !exists {
		return nil, fmt.Errorf("unsupported VAD type: %s", vadType)
	}

	vadConfig, err := f.createSileroConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to create config for %s: %w", vadType, err)
	}

	pool, err := factory.CreatePool(vadConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s VAD pool: %w", vadType, err)
	}
	return pool, nil
}

func (f *VADFactory) createSileroConfig() (*SileroVADConfig, error) {
	vadConfig := &sherpa.VadModelConfig{
		SileroVad: sherpa.SileroVadModelConfig{
			Model:              f.cfg.VAD.SileroVAD.ModelPath,
			Threshold:          f.cfg.VAD.SileroVAD.Threshold,
			MinSilenceDuration: f.cfg.VAD.SileroVAD.MinSilenceDuration,
			MinSpeechDuration:  f.cfg.VAD.SileroVAD.MinSpeechDuration,
			WindowSize:         f.cfg.VAD.SileroVAD.WindowSize,
			MaxSpeechDuration:  f.cfg.VAD.SileroVAD.MaxSpeechDuration,
		},
		SampleRate: f.cfg.Audio.SampleRate,
		NumThreads: f.cfg.Recognition.NumThreads,
		Provider:   f.cfg.Recognition.Provider,
		Debug:      0,
	}

	return &SileroVADConfig{
		ModelConfig:       vadConfig,
		BufferSizeSeconds: f.cfg.VAD.SileroVAD.BufferSizeSeconds,
		PoolSize:          f.cfg.VAD.PoolSize,
		MaxIdle:           0,
	}, nil
}

func (f *VADFactory) GetVADType() string { return f.cfg.VAD.Provider }

func (f *VADFactory) GetSupportedTypes() []string {
	types := make([]string, 0, len(f.factories))
	for vadType := range f.factories {
		types = append(types, vadType)
	}
	return types
}

// SileroVADPoolFactory creates Silero VAD pools.
type SileroVADPoolFactory struct{}

func (f *SileroVADPoolFactory) CreatePool(cfg interface{}) (VADPoolInterface, error) {
	sileroConfig, ok := cfg.(*SileroVADConfig)
	if !ok {
		return nil, fmt.Errorf("invalid config type for Silero VAD")
	}
	return NewSileroVADPool(sileroConfig), nil
}

func (f *SileroVADPoolFactory) GetSupportedTypes() []string { return []string{SILERO_TYPE} }
