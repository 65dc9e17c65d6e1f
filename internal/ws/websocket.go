// Package ws upgrades HTTP connections to WebSocket and drives one
// session.Loop per connection: reads drive PushAudio, a writer goroutine
// drains the Loop's outbound event channel onto the socket.
package ws

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"speechd/config"
	"speechd/internal/capability"
	"speechd/internal/capability/sherpaadapter"
	"speechd/internal/diarize"
	"speechd/internal/logger"
	"speechd/internal/pool"
	"speechd/internal/segment"
	"speechd/internal/session"
	"speechd/internal/vaddriver"

	"github.com/gorilla/websocket"
)

// Handler upgrades /ws/transcribe connections and wires a session.Loop per
// connection from the shared VAD/ASR/SV capabilities.
type Handler struct {
	cfg      *config.Config
	vad      *sherpaadapter.VAD
	asr      *sherpaadapter.ASR
	sv       *sherpaadapter.SV
	limiter  *pool.CapabilityLimiter
	upgrader websocket.Upgrader
}

// NewHandler wires a WebSocket handler from the already-constructed
// capability adapters.
func NewHandler(cfg *config.Config, vad *sherpaadapter.VAD, asr *sherpaadapter.ASR, sv *sherpaadapter.SV) *Handler {
	return &Handler{
		cfg:     cfg,
		vad:     vad,
		asr:     asr,
		sv:      sv,
		limiter: pool.NewCapabilityLimiter(cfg.Pipeline.ThreadPoolMaxWorkers),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  cfg.Server.WebSocket.ReadBufferSize,
			WriteBufferSize: cfg.Server.WebSocket.WriteBufferSize,
		},
	}
}

// GenerateSessionID returns a random hex connection identifier.
func GenerateSessionID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// sessionConfig resolves one connection's pipeline tunables from the shared
// service config plus its sv/lang query parameters.
func (h *Handler) sessionConfig(r *http.Request) session.Config {
	q := r.URL.Query()
	enableSV := q.Get("sv") == "1" || q.Get("sv") == "true"
	lang := q.Get("lang")
	if lang == "" {
		lang = h.cfg.Recognition.Language
	}
	return SessionConfigFromService(h.cfg, enableSV, lang)
}

// SessionConfigFromService builds a session.Config from the shared service
// config for any driver of a session.Loop, live or batch. enableSV and lang
// are the only knobs a caller customizes per run; everything else comes
// from cfg.Pipeline/cfg.Audio/cfg.Speaker directly.
func SessionConfigFromService(cfg *config.Config, enableSV bool, lang string) session.Config {
	p := cfg.Pipeline
	return session.Config{
		SampleRate:           cfg.Audio.SampleRate,
		ChunkSizeMS:          p.ChunkSizeMS,
		ThreadPoolMaxWorkers: p.ThreadPoolMaxWorkers,
		VADBufferSeconds:     p.VADBufferSeconds,
		EnableSV:             enableSV,
		Lang:                 lang,
		UseITN:               cfg.Recognition.UseInverseTextNormalization,
		VAD: vaddriver.Config{
			SampleRate:          cfg.Audio.SampleRate,
			CleanupThreshold:    p.VADBufferCleanupThresh,
			CleanupRatio:        p.VADBufferCleanupRatio,
			SilenceResetSeconds: float64(p.SilenceResetSeconds),
			KeepAudioSeconds:    float64(p.KeepAudioSeconds),
			OverlapMS:           p.VADOverlapMS,
		},
		Diarize: diarize.Config{
			SampleRate:  cfg.Audio.SampleRate,
			MinAudioMS:  float64(p.MinAudioLengthMS),
			MaxAudioMS:  float64(p.MaxAudioLengthMS),
			MinEnergy:   0.005,
			MinVariance: 0.0005,
			Threshold:   cfg.Speaker.Threshold,
		},
		Segment: segment.Config{
			PauseThresholdMS:  p.PauseThresholdMS,
			SmartBreakEnabled: p.EnableSmartLineBreak,
		},
	}
}

// HandleWebSocket upgrades the connection and runs its session.Loop until
// the client disconnects or a fatal error closes the socket.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket_upgrade_failed", "error", err)
		return
	}
	defer conn.Close()

	sessionID := GenerateSessionID()
	log := logger.WithSession(sessionID)

	var sv capability.SV
	if h.sv != nil {
		sv = h.sv
	}

	sendQueueSize := h.cfg.Session.SendQueueSize
	if sendQueueSize <= 0 {
		sendQueueSize = 1
	}
	send := make(chan session.WireEvent, sendQueueSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for ev := range send {
			payload, err := json.Marshal(ev)
			if err != nil {
				log.Warn("wire_event_marshal_failed", "error", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Warn("websocket_write_failed", "error", err)
				cancel()
				return
			}
		}
	}()

	loop := session.New(sessionID, h.sessionConfig(r), h.vad, h.asr, sv, h.limiter, log, send)
	defer loop.Close()

	wsCfg := h.cfg.Server.WebSocket
	if wsCfg.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(time.Duration(wsCfg.ReadTimeout) * time.Second))
	}

	log.Info("websocket_connection_established")
	defer log.Info("websocket_connection_closed")

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if wsCfg.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(time.Duration(wsCfg.ReadTimeout) * time.Second))
		}
		if wsCfg.MaxMessageSize > 0 && len(message) > wsCfg.MaxMessageSize {
			log.Warn("websocket_message_too_large", "size", len(message))
			loop.EmitFatalError(1, "message too large")
			break
		}
		if len(message) == 0 {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		loop.PushAudio(ctx, message)
	}

	close(send)
	<-writerDone
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.HandleWebSocket(w, r)
}
