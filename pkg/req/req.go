package req

import (
	"errors"
	"net/http"

	"github.com/Dhoini/kleenpride-booking-service/pkg/logger"
	"github.com/Dhoini/kleenpride-booking-service/pkg/res"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// FieldError ошибка валидации поля тела запроса
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// Decode только декодирует JSON-тело запроса; валидацию выполняет вызывающий.
func Decode[T any](c *gin.Context, log *logger.Logger) (*T, bool) {
	var body T
	if err := c.ShouldBindJSON(&body); err != nil {
		log.Warnw("Failed to decode request body", "path", c.FullPath(), "error", err)
		res.Error(c, http.StatusBadRequest, res.ErrorResponse{
			Error:     "malformed request body",
			ErrorCode: "bad_request",
		})
		return nil, false
	}
	return &body, true
}

// IsValid валидирует структуру типа T.
func IsValid[T any](payload T) error {
	return validate.Struct(payload)
}

// HandleBody декодирует и валидирует JSON-тело запроса.
// При ошибке ответ уже отправлен и вызывающему остается только выйти.
func HandleBody[T any](c *gin.Context, log *logger.Logger) (*T, bool) {
	body, ok := Decode[T](c, log)
	if !ok {
		return nil, false
	}

	if err := IsValid(*body); err != nil {
		log.Warnw("Request body failed validation", "path", c.FullPath(), "error", err)
		res.Error(c, http.StatusUnprocessableEntity, res.ErrorResponse{
			Error:     "invalid request data",
			ErrorCode: "validation_failed",
			Details:   fieldErrors(err),
		})
		return nil, false
	}
	return body, true
}

func fieldErrors(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{Field: fe.Field(), Rule: fe.Tag()})
	}
	return out
}
