package handlers

import (
	"net/http"

	"github.com/Dhoini/kleenpride-booking-service/internal/repository"
	"github.com/Dhoini/kleenpride-booking-service/pkg/logger"
	"github.com/Dhoini/kleenpride-booking-service/pkg/req"
	"github.com/gin-gonic/gin"
)

type resolveReviewRequest struct {
	Note string `json:"note" validate:"required,max=1000"`
}

// ReviewHandler обработчик очереди ручной сверки
type ReviewHandler struct {
	reviews repository.ReviewQueue
	log     *logger.Logger
}

// NewReviewHandler создает новый обработчик очереди сверки
func NewReviewHandler(reviews repository.ReviewQueue, log *logger.Logger) *ReviewHandler {
	return &ReviewHandler{reviews: reviews, log: log}
}

// GetOpenReviews возвращает открытые записи
func (h *ReviewHandler) GetOpenReviews(c *gin.Context) {
	reviews, err := h.reviews.ListOpen(c.Request.Context())
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, reviews)
}

// ResolveReview закрывает запись с комментарием
func (h *ReviewHandler) ResolveReview(c *gin.Context) {
	body, ok := req.HandleBody[resolveReviewRequest](c, h.log)
	if !ok {
		return
	}

	r, err := h.reviews.Resolve(c.Request.Context(), c.Param("id"), body.Note)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	h.log.Infow("Review resolved", "review_id", r.ID, "gateway_transaction_id", r.GatewayTransactionID)
	c.JSON(http.StatusOK, r)
}
