package gateway

import (
	"net/url"
	"strings"

	"github.com/Dhoini/kleenpride-booking-service/internal/domain"
)

const (
	// TokenizationAmount минимальная сумма запроса токенизации
	TokenizationAmount = "5.00"
	// TokenizationItemName назначение запроса токенизации
	TokenizationItemName = "Card Tokenization"
)

// Merchant учетные данные мерчанта и адреса возврата
type Merchant struct {
	MerchantID        string
	MerchantKey       string
	ReturnURL         string
	CancelURL         string
	NotifyURL         string
	ProcessURL        string
	EmailConfirmation bool
}

// PaymentRequest параметры запроса на оплату бронирования
type PaymentRequest struct {
	Merchant        Merchant
	FirstName       string
	LastName        string
	Email           string
	AmountMinor     int64
	ItemName        string
	ItemDescription string
	BookingID       string
	PaymentToken    string
}

// Params возвращает полный набор полей запроса без подписи
func (r PaymentRequest) Params() map[string]string {
	confirmation := "0"
	confirmationAddress := ""
	if r.Merchant.EmailConfirmation {
		confirmation = "1"
		confirmationAddress = r.Email
	}

	return map[string]string{
		"merchant_id":          r.Merchant.MerchantID,
		"merchant_key":         r.Merchant.MerchantKey,
		"return_url":           r.Merchant.ReturnURL,
		"cancel_url":           r.Merchant.CancelURL,
		"notify_url":           r.Merchant.NotifyURL,
		"name_first":           r.FirstName,
		"name_last":            r.LastName,
		"email_address":        r.Email,
		"amount":               domain.FormatAmount(r.AmountMinor),
		"item_name":            r.ItemName,
		"item_description":     r.ItemDescription,
		"custom_str1":          r.BookingID,
		"custom_str2":          r.PaymentToken,
		"email_confirmation":   confirmation,
		"confirmation_address": confirmationAddress,
	}
}

// TokenizationRequest сокращенный запрос для получения многоразового токена
type TokenizationRequest struct {
	Merchant Merchant
	Email    string
	Alias    string
}

// Params возвращает поля запроса токенизации без подписи
func (r TokenizationRequest) Params() map[string]string {
	return map[string]string{
		"merchant_id":  r.Merchant.MerchantID,
		"merchant_key": r.Merchant.MerchantKey,
		"return_url":   r.returnURL(),
		"cancel_url":   r.Merchant.CancelURL,
		"amount":       TokenizationAmount,
		"item_name":    TokenizationItemName,
	}
}

func (r TokenizationRequest) returnURL() string {
	sep := "?"
	if strings.Contains(r.Merchant.ReturnURL, "?") {
		sep = "&"
	}
	return r.Merchant.ReturnURL + sep + "tokenize=true&alias=" + url.QueryEscape(r.Alias)
}

// RedirectURL строит адрес страницы оплаты: параметры в порядке ключей, подпись последней
func RedirectURL(processURL string, params map[string]string, signature string) string {
	values := url.Values{}
	for k, v := range params {
		if k == SignatureField {
			continue
		}
		values.Set(k, v)
	}

	q := values.Encode()
	if q != "" {
		q += "&"
	}
	q += SignatureField + "=" + url.QueryEscape(signature)

	sep := "?"
	if strings.Contains(processURL, "?") {
		sep = "&"
	}
	return processURL + sep + q
}
