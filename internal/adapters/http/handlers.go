// Package http exposes poll creation and retrieval. These are plain
// record inserts/reads; the live voting path lives in adapters/signal.
package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/pollwire/pollwire/internal/config"
	"github.com/pollwire/pollwire/internal/domain"
	"github.com/pollwire/pollwire/internal/storage"
)

type PollHandler struct {
	Store *storage.Store
	cfg   *config.Config
}

func NewPollHandler(cfg *config.Config, store *storage.Store) *PollHandler {
	return &PollHandler{Store: store, cfg: cfg}
}

type createPollRequest struct {
	Question string   `json:"question" binding:"required,max=280"`
	Options  []string `json:"options" binding:"required,min=2,dive,required"`
}

func (h *PollHandler) CreatePoll(c *gin.Context) {
	var req createPollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid poll data"})
		return
	}

	id, err := h.Store.CreatePoll(c.Request.Context(), req.Question, req.Options)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("create poll")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create poll"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id})
}

func (h *PollHandler) GetPoll(c *gin.Context) {
	id := domain.PollID(c.Param("id"))

	poll, options, err := h.Store.GetPoll(c.Request.Context(), id)
	if errors.Is(err, domain.ErrPollNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Poll not found"})
		return
	}
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("poll", string(id)).Msg("get poll")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load poll"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":         poll.ID,
		"question":   poll.Question,
		"created_at": poll.CreatedAt,
		"options":    options,
	})
}

// ShareQR renders the poll's share URL as a PNG QR code.
func (h *PollHandler) ShareQR(c *gin.Context) {
	id := domain.PollID(c.Param("id"))

	exists, err := h.Store.Queries().PollExists(c.Request.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Str("poll", string(id)).Msg("qr poll lookup")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load poll"})
		return
	}
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "Poll not found"})
		return
	}

	url := fmt.Sprintf("%s/poll/%s", h.cfg.PublicURL, id)
	png, err := qrcode.Encode(url, qrcode.Medium, 256)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("qr encode")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render QR"})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
