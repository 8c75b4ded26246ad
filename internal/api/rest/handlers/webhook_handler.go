package handlers

import (
	"net/http"

	"github.com/Dhoini/kleenpride-booking-service/internal/service"
	"github.com/Dhoini/kleenpride-booking-service/pkg/logger"
	"github.com/Dhoini/kleenpride-booking-service/pkg/res"
	"github.com/gin-gonic/gin"
)

// maxNotificationBytes ограничение размера тела уведомления
const maxNotificationBytes = 64 << 10

// WebhookHandler обработчик уведомлений платежного шлюза (ITN)
type WebhookHandler struct {
	reconciliation service.ReconciliationService
	log            *logger.Logger
}

// NewWebhookHandler создает новый обработчик уведомлений
func NewWebhookHandler(reconciliation service.ReconciliationService, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{reconciliation: reconciliation, log: log}
}

// HandleGatewayNotification принимает form-encoded уведомление шлюза.
// Повторная доставка отвечает 200, уведомление на ручной сверке отвечает 202.
func (h *WebhookHandler) HandleGatewayNotification(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxNotificationBytes)
	if err := c.Request.ParseForm(); err != nil {
		h.log.Warnw("Failed to parse gateway notification", "error", err, "client_ip", c.ClientIP())
		res.Error(c, http.StatusBadRequest, res.ErrorResponse{
			Error:     "malformed notification body",
			ErrorCode: CodeMalformed,
		})
		return
	}

	params := make(map[string]string, len(c.Request.PostForm))
	for key, values := range c.Request.PostForm {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}

	result, err := h.reconciliation.ProcessNotification(c.Request.Context(), service.SourceWebhook, params)
	if err != nil && result == nil {
		writeError(c, h.log, err)
		return
	}
	if err != nil {
		h.log.Warnw("Gateway notification flagged for review",
			"gateway_transaction_id", result.GatewayTransactionID,
			"booking_id", result.BookingID,
			"reason", result.ReviewReason,
			"error", err,
		)
	}
	reconciliationResponse(c, result)
}

func reconciliationResponse(c *gin.Context, result *service.ReconciliationResult) {
	status := http.StatusOK
	if result.Outcome == service.OutcomeFlagged {
		status = http.StatusAccepted
	}
	c.JSON(status, result)
}
