// Package validation проверяет черновики бронирований до их сохранения.
package validation

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/Dhoini/kleenpride-booking-service/internal/domain"
	"github.com/go-playground/validator/v10"
)

const (
	// DateLayout формат даты бронирования
	DateLayout = "2006-01-02"
)

// TimeLayouts допустимые форматы временного слота
var TimeLayouts = []string{"3:04 PM", "15:04"}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	// ошибка возможна только при пустом имени тега
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("bookingdate", func(fl validator.FieldLevel) bool {
		_, err := ParseDate(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("timeslot", func(fl validator.FieldLevel) bool {
		_, err := ParseTimeSlot(fl.Field().String())
		return err == nil
	})

	return v
}

// IsComplete возвращает true только если заполнены все шесть полей черновика.
// Чистая функция: формат и порядок дат не проверяются.
func IsComplete(d domain.BookingDraft) bool {
	for _, field := range []string{d.Service, d.ScheduledDate, d.ScheduledTime, d.Address, d.VehicleType, d.PaymentMethod} {
		if strings.TrimSpace(field) == "" {
			return false
		}
	}
	return true
}

// Validate проверяет полноту и формат черновика и возвращает domain.ValidationErrors
func Validate(d domain.BookingDraft) error {
	err := validate.Struct(d)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("validate draft: %w", err)
	}

	var out domain.ValidationErrors
	for _, fe := range verrs {
		out.Add(fe.Field(), message(fe))
	}
	return out
}

// ScheduledAt собирает момент начала работ из даты и слота черновика
func ScheduledAt(d domain.BookingDraft, loc *time.Location) (time.Time, error) {
	date, err := ParseDate(d.ScheduledDate)
	if err != nil {
		return time.Time{}, err
	}
	slot, err := ParseTimeSlot(d.ScheduledTime)
	if err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(date.Year(), date.Month(), date.Day(), slot.Hour(), slot.Minute(), 0, 0, loc), nil
}

// ParseDate разбирает дату в формате YYYY-MM-DD
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(s))
}

// ParseTimeSlot разбирает слот вида "10:00 AM" или "10:00"
func ParseTimeSlot(s string) (time.Time, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, layout := range TimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time slot %q", s)
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "notblank":
		return "is required"
	case "bookingdate":
		return "must be a date in YYYY-MM-DD format"
	case "timeslot":
		return "must be a time slot like 10:00 AM"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
