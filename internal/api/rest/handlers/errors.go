package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/Dhoini/kleenpride-booking-service/internal/api/rest/middleware"
	"github.com/Dhoini/kleenpride-booking-service/internal/domain"
	"github.com/Dhoini/kleenpride-booking-service/pkg/logger"
	"github.com/Dhoini/kleenpride-booking-service/pkg/res"
	"github.com/gin-gonic/gin"
)

// Коды ошибок в теле ответа
const (
	CodeValidationFailed  = "validation_failed"
	CodeUnauthenticated   = "unauthenticated"
	CodeReauthRequired    = "reauth_required"
	CodeForbidden         = "forbidden"
	CodeNotFound          = "not_found"
	CodeIllegalTransition = "illegal_transition"
	CodeCashPayment       = "cash_payment"
	CodePaymentInFlight   = "payment_in_flight"
	CodeConflict          = "conflict"
	CodeSignatureMismatch = "signature_mismatch"
	CodeMalformed         = "malformed_notification"
	CodeGatewayError      = "gateway_error"
	CodeTimeout           = "timeout"
	CodeInternal          = "internal_error"
)

// statusFor сопоставляет ошибку сервиса с HTTP-статусом и кодом ответа
func statusFor(err error) (int, string) {
	var verrs domain.ValidationErrors
	switch {
	case errors.Is(err, domain.ErrSignatureMismatch):
		return http.StatusBadRequest, CodeSignatureMismatch
	case errors.Is(err, domain.ErrMalformedNotification):
		return http.StatusBadRequest, CodeMalformed
	case errors.As(err, &verrs):
		return http.StatusUnprocessableEntity, CodeValidationFailed
	case errors.Is(err, domain.ErrReauthRequired):
		return http.StatusUnauthorized, CodeReauthRequired
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, CodeUnauthenticated
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrPaymentMethodNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, domain.ErrIllegalTransition):
		return http.StatusConflict, CodeIllegalTransition
	case errors.Is(err, domain.ErrCashPayment):
		return http.StatusConflict, CodeCashPayment
	case errors.Is(err, domain.ErrPaymentInFlight):
		return http.StatusConflict, CodePaymentInFlight
	case errors.Is(err, domain.ErrDuplicate):
		return http.StatusConflict, CodeConflict
	case errors.Is(err, domain.ErrExternalServiceUnavailable):
		return http.StatusBadGateway, CodeGatewayError
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusUnprocessableEntity, CodeValidationFailed
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, CodeTimeout
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// writeError отправляет ответ об ошибке; внутренние детали наружу не уходят
func writeError(c *gin.Context, log *logger.Logger, err error) {
	status, code := statusFor(err)

	body := res.ErrorResponse{Error: err.Error(), ErrorCode: code}
	var verrs domain.ValidationErrors
	if errors.As(err, &verrs) {
		body.Details = []domain.ValidationError(verrs)
	}
	if status >= http.StatusInternalServerError {
		log.Errorw("Request failed", "path", c.FullPath(), "status", status, "error", err)
		if status == http.StatusInternalServerError {
			body.Error = "internal server error"
		}
	} else {
		log.Debugw("Request rejected", "path", c.FullPath(), "status", status, "error", err)
	}
	res.Error(c, status, body)
}

// actorOrAbort возвращает пользователя запроса или отвечает 401
func actorOrAbort(c *gin.Context) (domain.Actor, bool) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		res.Error(c, http.StatusUnauthorized, res.ErrorResponse{
			Error:     domain.ErrUnauthenticated.Error(),
			ErrorCode: CodeUnauthenticated,
		})
		return domain.Actor{}, false
	}
	return actor, true
}
