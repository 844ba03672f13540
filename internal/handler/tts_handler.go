package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"tts-server/internal/auth"
	"tts-server/internal/models"
	"tts-server/internal/service"
)

// estimateRequest - тело запроса оценки стоимости.
type estimateRequest struct {
	Text       string `json:"text" binding:"required"`
	Preference string `json:"preference"`
}

// createGenerationRequest - тело запроса создания генерации.
type createGenerationRequest struct {
	Text         string `json:"text" binding:"required"`
	VoiceID      string `json:"voiceId" binding:"required"`
	Preference   string `json:"preference"`
	OutputFormat string `json:"outputFormat"`
}

// feedbackRequest - тело запроса отзыва.
type feedbackRequest struct {
	Rating  int    `json:"rating" binding:"required"`
	Comment string `json:"comment"`
}

// cancelResponse сообщает, привела ли отмена к смене статуса.
type cancelResponse struct {
	Cancelled bool `json:"cancelled"`
}

// TTSHandler обрабатывает HTTP запросы к API генераций.
type TTSHandler struct {
	service  service.GenerationService
	verifier *auth.JWTVerifier
	logger   *zap.Logger
}

// NewTTSHandler создает новый TTSHandler.
func NewTTSHandler(s service.GenerationService, jwtSecret string, logger *zap.Logger) (*TTSHandler, error) {
	verifier, err := auth.NewJWTVerifier(jwtSecret, logger)
	if err != nil {
		return nil, err
	}
	return &TTSHandler{
		service:  s,
		verifier: verifier,
		logger:   logger.Named("TTSHandler"),
	}, nil
}

// RegisterRoutes регистрирует маршруты API.
func (h *TTSHandler) RegisterRoutes(r *gin.Engine) {
	authMW := h.AuthMiddleware()

	generations := r.Group("/generations", authMW)
	{
		generations.POST("/estimate", h.estimateCost)
		generations.POST("", h.createGeneration)
		generations.GET("", h.listGenerations)
		generations.GET("/:id", h.getGeneration)
		generations.GET("/:id/chunks", h.listChunks)
		generations.POST("/:id/cancel", h.cancelGeneration)
		generations.POST("/:id/feedback", h.submitFeedback)
	}

	voices := r.Group("/voices", authMW)
	{
		voices.GET("", h.listVoices)
	}

	r.GET("/account", authMW, h.getAccount)
}

func (h *TTSHandler) estimateCost(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		handleServiceError(c, models.ErrUnauthorized)
		return
	}

	var req estimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{
			Code: models.ErrCodeBadRequest, Message: "Invalid request body: " + err.Error(),
		})
		return
	}

	result, err := h.service.EstimateCost(c.Request.Context(), userID, service.EstimateRequest{
		Text:       req.Text,
		Preference: models.RoutingPreference(req.Preference),
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *TTSHandler) createGeneration(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		handleServiceError(c, models.ErrUnauthorized)
		return
	}

	var req createGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{
			Code: models.ErrCodeBadRequest, Message: "Invalid request body: " + err.Error(),
		})
		return
	}
	voiceID, err := uuid.Parse(req.VoiceID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{
			Code: models.ErrCodeBadRequest, Message: "Invalid voiceId",
		})
		return
	}

	result, err := h.service.CreateGeneration(c.Request.Context(), userID, service.CreateRequest{
		Text:         req.Text,
		VoiceID:      voiceID,
		Preference:   models.RoutingPreference(req.Preference),
		OutputFormat: req.OutputFormat,
	})
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, result)
}

func (h *TTSHandler) getGeneration(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		handleServiceError(c, models.ErrUnauthorized)
		return
	}
	generationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{
			Code: models.ErrCodeBadRequest, Message: "Invalid generation id",
		})
		return
	}

	gen, err := h.service.GetGeneration(c.Request.Context(), generationID, userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gen)
}

func (h *TTSHandler) listChunks(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		handleServiceError(c, models.ErrUnauthorized)
		return
	}
	generationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{
			Code: models.ErrCodeBadRequest, Message: "Invalid generation id",
		})
		return
	}

	chunks, err := h.service.ListChunks(c.Request.Context(), generationID, userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chunks": chunks})
}

func (h *TTSHandler) listGenerations(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		handleServiceError(c, models.ErrUnauthorized)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	items, err := h.service.ListGenerations(c.Request.Context(), userID, limit, offset)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"generations": items, "limit": limit, "offset": offset})
}

func (h *TTSHandler) cancelGeneration(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		handleServiceError(c, models.ErrUnauthorized)
		return
	}
	generationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{
			Code: models.ErrCodeBadRequest, Message: "Invalid generation id",
		})
		return
	}

	cancelled, err := h.service.CancelGeneration(c.Request.Context(), generationID, userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	// cancelled=false - генерации нет или она уже терминальна; это не ошибка
	c.JSON(http.StatusOK, cancelResponse{Cancelled: cancelled})
}

func (h *TTSHandler) submitFeedback(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		handleServiceError(c, models.ErrUnauthorized)
		return
	}
	generationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{
			Code: models.ErrCodeBadRequest, Message: "Invalid generation id",
		})
		return
	}

	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{
			Code: models.ErrCodeBadRequest, Message: "Invalid request body: " + err.Error(),
		})
		return
	}

	if err := h.service.SubmitFeedback(c.Request.Context(), generationID, userID, req.Rating, req.Comment); err != nil {
		handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *TTSHandler) listVoices(c *gin.Context) {
	voices, err := h.service.ListVoices(c.Request.Context())
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"voices": voices})
}

func (h *TTSHandler) getAccount(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		handleServiceError(c, models.ErrUnauthorized)
		return
	}

	user, err := h.service.GetAccount(c.Request.Context(), userID)
	if err != nil {
		handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}
