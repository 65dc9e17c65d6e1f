package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"speechd/internal/logger"

	sherpa "github.com/k2-fsa/sherpa-onnx-go/sherpa_onnx"
)

// SileroVADConfig configures a pool of Silero VAD instances.
type SileroVADConfig struct {
	ModelConfig       *sherpa.VadModelConfig
	BufferSizeSeconds float32
	PoolSize          int
	MaxIdle           int
}

// SileroVADInstance wraps one native Silero voice-activity-detector handle.
type SileroVADInstance struct {
	ID       int
	VAD      *sherpa.VoiceActivityDetector
	LastUsed int64
	InUse    int32
	mu       sync.RWMutex
}

func (i *SileroVADInstance) GetID() int     { return i.ID }
func (i *SileroVADInstance) GetType() string { return SILERO_TYPE }

func (i *SileroVADInstance) IsInUse() bool {
	return atomic.LoadInt32(&i.InUse) == 1
}

func (i *SileroVADInstance) SetInUse(inUse bool) {
	if inUse {
		atomic.StoreInt32(&i.InUse, 1)
	} else {
		atomic.StoreInt32(&i.InUse, 0)
	}
}

func (i *SileroVADInstance) GetLastUsed() int64 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.LastUsed
}

func (i *SileroVADInstance) SetLastUsed(timestamp int64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.LastUsed = timestamp
}

// Reset drains any pending segments left in the detector's internal queue so
// the instance starts the next session with no residual state.
func (i *SileroVADInstance) Reset() error {
	if i.VAD != nil {
		for !i.VAD.IsEmpty() {
			i.VAD.Front()
			i.VAD.Pop()
		}
	}
	return nil
}

func (i *SileroVADInstance) Destroy() error {
	if i.VAD != nil {
		sherpa.DeleteVoiceActivityDetector(i.VAD)
		i.VAD = nil
		logger.Info("silero_vad_instance_destroyed")
	}
	return nil
}

// SileroVADPool is a fixed-size pool of SileroVADInstance, grown with a
// temporary instance on exhaustion rather than blocking indefinitely.
type SileroVADPool struct {
	instances []*SileroVADInstance
	available chan VADInstanceInterface
	config    *SileroVADConfig

	totalCreated int64
	totalReused  int64
	totalActive  int64

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewSileroVADPool(config *SileroVADConfig) *SileroVADPool {
	ctx, cancel := context.WithCancel(context.Background())

	pool := &SileroVADPool{
		instances: make([]*SileroVADInstance, 0, config.PoolSize),
		available: make(chan VADInstanceInterface, config.PoolSize),
		config:    config,
		ctx:       ctx,
		cancel:    cancel,
	}
	return pool
}

// Initialize constructs the pool's instances in parallel and blocks until
// all attempts finish.
func (p *SileroVADPool) Initialize() error {
	logger.Info("initializing_silero_vad_pool", "size", p.config.PoolSize)

	var initWg sync.WaitGroup
	errorChan := make(chan error, p.config.PoolSize)

	for i := 0; i < p.config.PoolSize; i++ {
		initWg.Add(1)
		go func(instanceID int) {
			defer initWg.Done()

			vad := sherpa.NewVoiceActivityDetector(p.config.ModelConfig, p.config.BufferSizeSeconds)
			if vad == nil {
				errorChan <- fmt.Errorf("failed to create Silero VAD instance %d", instanceID)
				return
			}

			instance := &SileroVADInstance{VAD: vad, LastUsed: time.Now().UnixNano(), InUse: 0, ID: instanceID}

			p.mu.Lock()
			p.instances = append(p.instances, instance)
			p.mu.Unlock()

			select {
			case p.available <- instance:
				atomic.AddInt64(&p.totalCreated, 1)
				logger.Info("silero_vad_instance_initialized", "id", instanceID)
			default:
				sherpa.DeleteVoiceActivityDetector(vad)
				errorChan <- fmt.Errorf("Silero VAD pool queue full, instance %d discarded", instanceID)
			}
		}(i)
	}

	initWg.Wait()
	close(errorChan)

	var initErrors []error
	for err := range errorChan {
		if err != nil {
			initErrors = append(initErrors, err)
			logger.Warn("silero_vad_initialization_warning", "error", err)
		}
	}

	successCount := len(p.instances)
	logger.Info("silero_vad_pool_initialized", "success_count", successCount, "target_size", p.config.PoolSize)

	if len(initErrors) > 0 && successCount == 0 {
		return fmt.Errorf("failed to initialize any Silero VAD instances")
	}
	return nil
}

// Get borrows an instance for the lifetime of one session, creating a
// temporary instance if the pool is exhausted after a short wait.
func (p *SileroVADPool) Get() (VADInstanceInterface, error) {
	logger.Debug("getting_silero_vad_instance", "available", len(p.available))

	select {
	case instance := <-p.available:
		logger.Debug("got_silero_vad_instance", "id", instance.GetID())
		if atomic.CompareAndSwapInt32(&instance.(*SileroVADInstance).InUse, 0, 1) {
			instance.SetLastUsed(time.Now().UnixNano())
			atomic.AddInt64(&p.totalReused, 1)
			atomic.AddInt64(&p.totalActive, 1)
			return instance, nil
		}
		logger.Warn("silero_vad_instance_already_in_use", "id", instance.GetID())
		select {
		case p.available <- instance:
		default:
		}
		return p.Get()
	case <-time.After(100 * time.Millisecond):
		logger.Warn("silero_vad_pool_timeout", "action", "create_temporary_instance")
		return p.createNewInstance()
	case <-p.ctx.Done():
		logger.Error("silero_vad_pool_shutting_down")
		return nil, fmt.Errorf("silero VAD pool is shutting down")
	}
}

// Put returns a borrowed instance to the pool, resetting its internal state
// first. A full available queue destroys the instance instead of blocking.
func (p *SileroVADPool) Put(instance VADInstanceInterface) {
	if instance == nil {
		logger.Warn("nil_silero_vad_instance_put")
		return
	}

	if atomic.CompareAndSwapInt32(&instance.(*SileroVADInstance).InUse, 1, 0) {
		instance.SetLastUsed(time.Now().UnixNano())
		atomic.AddInt64(&p.totalActive, -1)

		if err := instance.Reset(); err != nil {
			logger.Warn("failed_to_reset_silero_vad", "id", instance.GetID(), "error", err)
		}

		select {
		case p.available <- instance:
		default:
			logger.Warn("silero_vad_pool_full", "id", instance.GetID())
			instance.Destroy()
		}
	} else {
		logger.Warn("silero_vad_not_in_use_on_put", "id", instance.GetID())
	}
}

func (p *SileroVADPool) createNewInstance() (VADInstanceInterface, error) {
	vad := sherpa.NewVoiceActivityDetector(p.config.ModelConfig, p.config.BufferSizeSeconds)
	if vad == nil {
		return nil, fmt.Errorf("failed to create new Silero VAD instance")
	}

	instance := &SileroVADInstance{VAD: vad, LastUsed: time.Now().UnixNano(), InUse: 1, ID: -1}
	atomic.AddInt64(&p.totalCreated, 1)
	atomic.AddInt64(&p.totalActive, 1)

	logger.Info("created_temporary_silero_vad")
	return instance, nil
}

func (p *SileroVADPool) GetStats() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return map[string]interface{}{
		"vad_type":        SILERO_TYPE,
		"pool_size":       p.config.PoolSize,
		"max_idle":        p.config.MaxIdle,
		"total_instances": len(p.instances),
		"available_count": len(p.available),
		"active_count":    atomic.LoadInt64(&p.totalActive),
		"total_created":   atomic.LoadInt64(&p.totalCreated),
		"total_reused":    atomic.LoadInt64(&p.totalReused),
	}
}

// Close destroys every pooled instance and releases the pool's context.
func (p *SileroVADPool) Close() error {
	logger.Info("shutting_down_silero_vad_pool")
	p.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

drain:
	for {
		select {
		case instance := <-p.available:
			instance.Destroy()
		default:
			break drain
		}
	}

	for _, instance := range p.instances {
		instance.Destroy()
	}

	p.instances = nil
	close(p.available)
	logger.Info("silero_vad_pool_shutdown_complete")
	return nil
}
