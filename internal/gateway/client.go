package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Dhoini/kleenpride-booking-service/internal/domain"
	"github.com/Dhoini/kleenpride-booking-service/pkg/logger"
)

const serviceName = "gateway"

// Client интерфейс платежного шлюза.
// Оба метода отменяемы через ctx до получения подтверждения от шлюза.
type Client interface {
	// Tokenize обменивает данные карты на многоразовый токен
	Tokenize(ctx context.Context, req TokenizationRequest, signature string) (string, error)
	// InitiatePayment регистрирует оплату и возвращает идентификатор платежа шлюза
	InitiatePayment(ctx context.Context, req PaymentRequest, signature string) (string, error)
}

// HTTPConfig настройки HTTP клиента шлюза
type HTTPConfig struct {
	APIURL  string
	Timeout time.Duration
}

// HTTPClient клиент шлюза, отправляющий подписанные формы по HTTP
type HTTPClient struct {
	apiURL string
	http   *http.Client
	log    *logger.Logger
}

// NewHTTPClient создает новый HTTP клиент шлюза
func NewHTTPClient(cfg HTTPConfig, log *logger.Logger) *HTTPClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		apiURL: strings.TrimRight(cfg.APIURL, "/"),
		http:   &http.Client{Timeout: timeout},
		log:    log,
	}
}

type gatewayResponse struct {
	Status    string `json:"status"`
	PaymentID string `json:"payment_id"`
	Token     string `json:"token"`
	Message   string `json:"message"`
}

// Tokenize отправляет запрос токенизации
func (c *HTTPClient) Tokenize(ctx context.Context, req TokenizationRequest, signature string) (string, error) {
	resp, err := c.post(ctx, "/tokenize", req.Params(), signature)
	if err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", domain.NewExternalServiceError(serviceName, "empty_token", "gateway returned no token", http.StatusOK, nil)
	}
	return resp.Token, nil
}

// InitiatePayment отправляет подписанный запрос на оплату
func (c *HTTPClient) InitiatePayment(ctx context.Context, req PaymentRequest, signature string) (string, error) {
	resp, err := c.post(ctx, "/payments", req.Params(), signature)
	if err != nil {
		return "", err
	}
	if resp.PaymentID == "" {
		return "", domain.NewExternalServiceError(serviceName, "empty_payment_id", "gateway returned no payment id", http.StatusOK, nil)
	}
	return resp.PaymentID, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, params map[string]string, signature string) (*gatewayResponse, error) {
	form := url.Values{}
	for k, v := range params {
		form.Set(k, v)
	}
	form.Set(SignatureField, signature)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build gateway request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("gateway request %s: %w", path, ctx.Err())
		}
		c.log.Errorw("Gateway request failed", "path", path, "error", err)
		return nil, domain.NewExternalServiceError(serviceName, "transport", "request failed", 0, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, domain.NewExternalServiceError(serviceName, "read_body", "failed to read response", httpResp.StatusCode, err)
	}

	c.log.Debugw("Gateway response", "path", path, "status", httpResp.StatusCode, "duration", time.Since(start))

	var resp gatewayResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, domain.NewExternalServiceError(serviceName, "decode", "malformed response", httpResp.StatusCode, err)
		}
	}

	if httpResp.StatusCode >= http.StatusBadRequest || strings.EqualFold(resp.Status, "failed") {
		msg := resp.Message
		if msg == "" {
			msg = http.StatusText(httpResp.StatusCode)
		}
		return nil, domain.NewExternalServiceError(serviceName, fmt.Sprintf("http_%d", httpResp.StatusCode), msg, httpResp.StatusCode, nil)
	}

	return &resp, nil
}

// SandboxClient имитация шлюза: всегда успешна после задержки
type SandboxClient struct {
	delay time.Duration
	seq   atomic.Int64
	log   *logger.Logger
}

// NewSandboxClient создает новый тестовый шлюз
func NewSandboxClient(delay time.Duration, log *logger.Logger) *SandboxClient {
	return &SandboxClient{delay: delay, log: log}
}

// Tokenize возвращает токен вида tok_<millis>_<hash>
func (c *SandboxClient) Tokenize(ctx context.Context, req TokenizationRequest, _ string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}

	h := fnv.New32a()
	h.Write([]byte(req.Email))
	h.Write([]byte{0})
	h.Write([]byte(req.Alias))
	h.Write([]byte{byte(c.seq.Add(1))})

	token := fmt.Sprintf("tok_%d_%d", time.Now().UnixMilli(), h.Sum32())
	c.log.Infow("Sandbox tokenization", "alias", req.Alias)
	return token, nil
}

// InitiatePayment возвращает идентификатор вида MOCK_<millis>_<seq>
func (c *SandboxClient) InitiatePayment(ctx context.Context, req PaymentRequest, _ string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}

	paymentID := fmt.Sprintf("MOCK_%d_%d", time.Now().UnixMilli(), c.seq.Add(1))
	c.log.Infow("Sandbox payment initiated", "booking_id", req.BookingID, "payment_id", paymentID)
	return paymentID, nil
}

func (c *SandboxClient) wait(ctx context.Context) error {
	if c.delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(c.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("gateway sandbox: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
