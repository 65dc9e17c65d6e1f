package speaker

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-audio/wav"

	"speechd/config"
)

// Handler exposes the speaker gallery over HTTP: enrollment, identification
// against the whole gallery, verification against one claimed identity, and
// gallery management.
type Handler struct {
	manager *Manager
	cfg     *config.Config
}

// NewHandler builds a Handler with explicit dependencies.
func NewHandler(manager *Manager, cfg *config.Config) *Handler {
	return &Handler{manager: manager, cfg: cfg}
}

// RegisterRoutes mounts the speaker gallery API under /api/v1/speaker.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	group := router.Group("/api/v1/speaker")
	{
		group.POST("/register", h.RegisterSpeaker)
		group.POST("/identify", h.IdentifySpeaker)
		group.POST("/verify/:speaker_id", h.VerifySpeaker)
		group.GET("/list", h.GetAllSpeakers)
		group.DELETE("/:speaker_id", h.DeleteSpeaker)
		group.GET("/stats", h.GetStats)
	}
}

func (h *Handler) RegisterSpeaker(c *gin.Context) {
	speakerID := c.PostForm("speaker_id")
	speakerName := c.PostForm("speaker_name")
	if speakerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "speaker_id is required"})
		return
	}
	if speakerName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "speaker_name is required"})
		return
	}

	file, header, err := c.Request.FormFile("audio")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "audio file is required"})
		return
	}
	defer file.Close()

	audio, sampleRate, err := h.parseAudioFile(file, header)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("failed to parse audio file: %v", err)})
		return
	}

	if err := h.manager.RegisterSpeaker(speakerID, speakerName, audio, sampleRate); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to register speaker: %v", err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "speaker registered",
		"speaker_id":   speakerID,
		"speaker_name": speakerName,
	})
}

func (h *Handler) IdentifySpeaker(c *gin.Context) {
	file, header, err := c.Request.FormFile("audio")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "audio file is required"})
		return
	}
	defer file.Close()

	audio, sampleRate, err := h.parseAudioFile(file, header)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("failed to parse audio file: %v", err)})
		return
	}

	result, err := h.manager.IdentifySpeaker(audio, sampleRate)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to identify speaker: %v", err)})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) VerifySpeaker(c *gin.Context) {
	speakerID := c.Param("speaker_id")
	if speakerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "speaker_id is required"})
		return
	}

	file, header, err := c.Request.FormFile("audio")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "audio file is required"})
		return
	}
	defer file.Close()

	audio, sampleRate, err := h.parseAudioFile(file, header)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("failed to parse audio file: %v", err)})
		return
	}

	result, err := h.manager.VerifySpeaker(speakerID, audio, sampleRate)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to verify speaker: %v", err)})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetAllSpeakers(c *gin.Context) {
	speakers := h.manager.GetAllSpeakers()
	c.JSON(http.StatusOK, gin.H{"speakers": speakers, "total": len(speakers)})
}

func (h *Handler) DeleteSpeaker(c *gin.Context) {
	speakerID := c.Param("speaker_id")
	if speakerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "speaker_id is required"})
		return
	}

	if err := h.manager.DeleteSpeaker(speakerID); err != nil {
		if strings.Contains(err.Error(), "not found") {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to delete speaker: %v", err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "speaker deleted", "speaker_id": speakerID})
}

func (h *Handler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.manager.GetStats())
}

// parseAudioFile decodes a mono or stereo WAV upload into float32 PCM
// samples normalized to [-1, 1], downmixing stereo to mono.
func (h *Handler) parseAudioFile(file multipart.File, header *multipart.FileHeader) ([]float32, int, error) {
	filename := strings.ToLower(header.Filename)
	if !strings.HasSuffix(filename, ".wav") {
		return nil, 0, fmt.Errorf("only WAV files are supported")
	}

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return nil, 0, fmt.Errorf("invalid WAV file")
	}

	sampleRate := int(decoder.SampleRate)
	numChannels := int(decoder.NumChans)
	if numChannels > 2 {
		return nil, 0, fmt.Errorf("unsupported number of channels: %d", numChannels)
	}

	buffer, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to decode audio: %w", err)
	}

	samples := make([]float32, len(buffer.Data))
	normalizeFactor := h.cfg.Audio.NormalizeFactor
	for i, sample := range buffer.Data {
		samples[i] = float32(sample) / normalizeFactor
	}

	if numChannels == 2 {
		mono := make([]float32, len(samples)/2)
		for i := range mono {
			mono[i] = (samples[i*2] + samples[i*2+1]) / 2.0
		}
		samples = mono
	}

	return samples, sampleRate, nil
}
