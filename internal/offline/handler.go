package offline

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"speechd/internal/store"
)

// Handler exposes the recording catalog over HTTP: submit a WAV file for
// batch reprocessing, check its status, and list the catalog.
type Handler struct {
	processor *Processor
	db        *store.DB
	uploadDir string
}

// NewHandler builds a Handler that stores uploaded audio under uploadDir.
func NewHandler(processor *Processor, db *store.DB, uploadDir string) *Handler {
	return &Handler{processor: processor, db: db, uploadDir: uploadDir}
}

// RegisterRoutes mounts the offline reprocessing API under
// /api/v1/offline.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	group := router.Group("/api/v1/offline")
	{
		group.POST("/submit", h.Submit)
		group.GET("/:id", h.Get)
		group.GET("", h.List)
	}
}

// Submit accepts a WAV upload, persists it under the upload directory, and
// queues it for batch replay through the same VAD/ASR/diarization pipeline
// the live WebSocket connections use.
func (h *Handler) Submit(c *gin.Context) {
	file, header, err := c.Request.FormFile("audio")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "audio file is required"})
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".wav") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only WAV files are supported"})
		return
	}

	id := generateRecordingID()
	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to create upload directory: %v", err)})
		return
	}
	audioPath := filepath.Join(h.uploadDir, id+".wav")

	dst, err := os.Create(audioPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to store upload: %v", err)})
		return
	}
	defer dst.Close()
	if _, err := dst.ReadFrom(file); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to store upload: %v", err)})
		return
	}

	if err := h.processor.Submit(id, audioPath); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to submit recording: %v", err)})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"recording_id": id, "status": store.StatusUploaded})
}

// Get returns one recording's current status and results.
func (h *Handler) Get(c *gin.Context) {
	id := c.Param("id")
	recording, err := h.db.GetRecording(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, recording)
}

// List returns every catalog entry, most recent first.
func (h *Handler) List(c *gin.Context) {
	recordings, err := h.db.ListRecordings()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"recordings": recordings, "total": len(recordings)})
}

func generateRecordingID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
