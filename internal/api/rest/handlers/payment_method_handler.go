package handlers

import (
	"net/http"

	"github.com/Dhoini/kleenpride-booking-service/internal/domain"
	"github.com/Dhoini/kleenpride-booking-service/internal/service"
	"github.com/Dhoini/kleenpride-booking-service/pkg/logger"
	"github.com/Dhoini/kleenpride-booking-service/pkg/req"
	"github.com/gin-gonic/gin"
)

type updatePaymentMethodRequest struct {
	Alias string `json:"alias" validate:"required"`
	Brand string `json:"brand"`
	Token string `json:"token"`
}

// PaymentMethodHandler обработчик сохраненных способов оплаты
type PaymentMethodHandler struct {
	service service.TokenizationService
	log     *logger.Logger
}

// NewPaymentMethodHandler создает новый обработчик способов оплаты
func NewPaymentMethodHandler(svc service.TokenizationService, log *logger.Logger) *PaymentMethodHandler {
	return &PaymentMethodHandler{service: svc, log: log}
}

// GetPaymentMethods возвращает способы оплаты пользователя
func (h *PaymentMethodHandler) GetPaymentMethods(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	methods, err := h.service.List(c.Request.Context(), actor)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, methods)
}

// AddPaymentMethod токенизирует карту и сохраняет способ оплаты
func (h *PaymentMethodHandler) AddPaymentMethod(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	input, ok := req.Decode[service.CardInput](c, h.log)
	if !ok {
		return
	}

	m, err := h.service.AddCard(c.Request.Context(), actor, *input)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// UpdatePaymentMethod меняет alias, brand и при необходимости токен
func (h *PaymentMethodHandler) UpdatePaymentMethod(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	body, ok := req.HandleBody[updatePaymentMethodRequest](c, h.log)
	if !ok {
		return
	}

	m, err := h.service.AddOrUpdate(c.Request.Context(), actor, domain.PaymentMethod{
		ID:     c.Param("id"),
		UserID: actor.ID,
		Alias:  body.Alias,
		Brand:  body.Brand,
		Token:  body.Token,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// DeletePaymentMethod удаляет способ оплаты
func (h *PaymentMethodHandler) DeletePaymentMethod(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	if err := h.service.Remove(c.Request.Context(), actor, c.Param("id")); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SetDefaultPaymentMethod делает способ оплаты основным
func (h *PaymentMethodHandler) SetDefaultPaymentMethod(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	m, err := h.service.SetDefault(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, m)
}
