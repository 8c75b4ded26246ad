package handlers

import (
	"net/http"

	"github.com/Dhoini/kleenpride-booking-service/internal/domain"
	"github.com/Dhoini/kleenpride-booking-service/internal/service"
	"github.com/Dhoini/kleenpride-booking-service/pkg/logger"
	"github.com/Dhoini/kleenpride-booking-service/pkg/req"
	"github.com/gin-gonic/gin"
)

type assignDetailerRequest struct {
	DetailerID string `json:"detailer_id" validate:"required"`
}

type cashSettlementRequest struct {
	// Сумма в формате шлюза, например "450.00"
	Amount string `json:"amount" validate:"required"`
}

// BookingHandler обработчик для бронирований
type BookingHandler struct {
	service service.BookingService
	log     *logger.Logger
}

// NewBookingHandler создает новый обработчик бронирований
func NewBookingHandler(svc service.BookingService, log *logger.Logger) *BookingHandler {
	return &BookingHandler{service: svc, log: log}
}

// CreateBooking оформляет черновик бронирования
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	draft, ok := req.Decode[domain.BookingDraft](c, h.log)
	if !ok {
		return
	}

	b, err := h.service.Submit(c.Request.Context(), actor, *draft)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

// GetBookings возвращает бронирования клиента (параметр customer_id только для администратора)
func (h *BookingHandler) GetBookings(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	bookings, err := h.service.ListByCustomer(c.Request.Context(), actor, c.Query("customer_id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, bookings)
}

// GetBooking возвращает бронирование по ID
func (h *BookingHandler) GetBooking(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	b, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// InitiatePayment отправляет бронирование на оплату и возвращает ссылку на страницу шлюза
func (h *BookingHandler) InitiatePayment(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	initiation, err := h.service.InitiatePayment(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, initiation)
}

// CancelBooking отменяет бронирование
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	h.respond(c, func() (*domain.Booking, error) {
		return h.service.Cancel(c.Request.Context(), actor, c.Param("id"))
	})
}

// ExpirePayment отменяет неоплаченное бронирование по тайм-ауту
func (h *BookingHandler) ExpirePayment(c *gin.Context) {
	h.respond(c, func() (*domain.Booking, error) {
		return h.service.ExpirePayment(c.Request.Context(), c.Param("id"))
	})
}

// AssignDetailer назначает исполнителя
func (h *BookingHandler) AssignDetailer(c *gin.Context) {
	body, ok := req.HandleBody[assignDetailerRequest](c, h.log)
	if !ok {
		return
	}
	h.respond(c, func() (*domain.Booking, error) {
		return h.service.AssignDetailer(c.Request.Context(), c.Param("id"), body.DetailerID)
	})
}

// StartBooking отмечает начало работ
func (h *BookingHandler) StartBooking(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	h.respond(c, func() (*domain.Booking, error) {
		return h.service.Start(c.Request.Context(), actor, c.Param("id"))
	})
}

// CompleteBooking завершает бронирование
func (h *BookingHandler) CompleteBooking(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	h.respond(c, func() (*domain.Booking, error) {
		return h.service.Complete(c.Request.Context(), actor, c.Param("id"))
	})
}

// SettleCash фиксирует оплату наличными
func (h *BookingHandler) SettleCash(c *gin.Context) {
	body, ok := req.HandleBody[cashSettlementRequest](c, h.log)
	if !ok {
		return
	}

	amount, err := domain.ParseAmount(body.Amount)
	if err != nil {
		var verrs domain.ValidationErrors
		verrs.Add("amount", "must be a decimal amount such as 450.00")
		writeError(c, h.log, verrs)
		return
	}

	result, err := h.service.SettleCash(c.Request.Context(), c.Param("id"), amount)
	if err != nil && result == nil {
		writeError(c, h.log, err)
		return
	}
	reconciliationResponse(c, result)
}

func (h *BookingHandler) respond(c *gin.Context, fn func() (*domain.Booking, error)) {
	b, err := fn()
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, b)
}
