package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Dhoini/kleenpride-booking-service/internal/domain"
	"github.com/Dhoini/kleenpride-booking-service/internal/gateway"
	"github.com/Dhoini/kleenpride-booking-service/internal/metrics"
	"github.com/Dhoini/kleenpride-booking-service/internal/repository"
	"github.com/Dhoini/kleenpride-booking-service/pkg/logger"
	"github.com/google/uuid"
)

const (
	minAliasLength = 3
	cardSuffixLen  = 4
)

// CardInput данные карты, введенные пользователем
type CardInput struct {
	Alias      string `json:"alias"`
	CardSuffix string `json:"card_suffix"`
	Brand      string `json:"brand"`
}

// TokenizationService интерфейс управления сохраненными способами оплаты
type TokenizationService interface {
	// RequestToken обменивает данные карты на токен шлюза
	RequestToken(ctx context.Context, actor domain.Actor, alias, cardSuffix string) (string, error)
	// AddOrUpdate добавляет способ оплаты (пустой ID) или меняет alias, token и brand существующего
	AddOrUpdate(ctx context.Context, actor domain.Actor, m domain.PaymentMethod) (*domain.PaymentMethod, error)
	// AddCard получает токен и сохраняет способ оплаты одной операцией
	AddCard(ctx context.Context, actor domain.Actor, input CardInput) (*domain.PaymentMethod, error)
	Remove(ctx context.Context, actor domain.Actor, methodID string) error
	SetDefault(ctx context.Context, actor domain.Actor, methodID string) (*domain.PaymentMethod, error)
	List(ctx context.Context, actor domain.Actor) ([]*domain.PaymentMethod, error)
}

type tokenizationService struct {
	merchant     gateway.Merchant
	reauthWindow time.Duration
	repo         repository.PaymentMethodRepository
	signer       *gateway.Signer
	client       gateway.Client
	locks        *KeyedMutex
	metrics      metrics.TokenizationMetrics
	now          func() time.Time
	log          *logger.Logger
}

// NewTokenizationService создает новый сервис токенизации.
// reauthWindow - максимальный возраст входа для операций, меняющих карту; 0 отключает проверку.
func NewTokenizationService(
	merchant gateway.Merchant,
	reauthWindow time.Duration,
	repo repository.PaymentMethodRepository,
	signer *gateway.Signer,
	client gateway.Client,
	m metrics.TokenizationMetrics,
	log *logger.Logger,
) TokenizationService {
	return &tokenizationService{
		merchant:     merchant,
		reauthWindow: reauthWindow,
		repo:         repo,
		signer:       signer,
		client:       client,
		locks:        NewKeyedMutex(),
		metrics:      m,
		now:          func() time.Time { return time.Now().UTC() },
		log:          log,
	}
}

func (s *tokenizationService) RequestToken(ctx context.Context, actor domain.Actor, alias, cardSuffix string) (string, error) {
	if err := s.checkFreshAuth(actor); err != nil {
		return "", err
	}
	if err := validateCard(alias, cardSuffix); err != nil {
		s.metrics.IncTokenRequest("invalid")
		return "", err
	}

	unlock, err := s.locks.Lock(ctx, actor.ID)
	if err != nil {
		return "", fmt.Errorf("lock user %s: %w", actor.ID, err)
	}
	defer unlock()

	return s.requestToken(ctx, actor, strings.TrimSpace(alias))
}

func (s *tokenizationService) AddOrUpdate(ctx context.Context, actor domain.Actor, m domain.PaymentMethod) (*domain.PaymentMethod, error) {
	if actor.ID == "" {
		return nil, domain.ErrUnauthenticated
	}

	unlock, err := s.locks.Lock(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("lock user %s: %w", actor.ID, err)
	}
	defer unlock()

	return s.addOrUpdate(ctx, actor, m)
}

func (s *tokenizationService) AddCard(ctx context.Context, actor domain.Actor, input CardInput) (*domain.PaymentMethod, error) {
	if err := s.checkFreshAuth(actor); err != nil {
		return nil, err
	}
	if err := validateCard(input.Alias, input.CardSuffix); err != nil {
		s.metrics.IncTokenRequest("invalid")
		return nil, err
	}

	unlock, err := s.locks.Lock(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("lock user %s: %w", actor.ID, err)
	}
	defer unlock()

	alias := strings.TrimSpace(input.Alias)
	token, err := s.requestToken(ctx, actor, alias)
	if err != nil {
		return nil, err
	}

	return s.addOrUpdate(context.WithoutCancel(ctx), actor, domain.PaymentMethod{
		Token:       token,
		Alias:       alias,
		Last4Digits: input.CardSuffix,
		Brand:       strings.TrimSpace(input.Brand),
	})
}

// Remove удаляет способ оплаты; основной способ не назначается автоматически
func (s *tokenizationService) Remove(ctx context.Context, actor domain.Actor, methodID string) error {
	if err := s.checkFreshAuth(actor); err != nil {
		return err
	}

	unlock, err := s.locks.Lock(ctx, actor.ID)
	if err != nil {
		return fmt.Errorf("lock user %s: %w", actor.ID, err)
	}
	defer unlock()

	wasDefault, err := s.repo.Delete(ctx, actor.ID, methodID)
	if err != nil {
		return err
	}

	s.metrics.IncMethodChange("remove")
	s.log.Infow("Payment method removed", "userID", actor.ID, "methodID", methodID, "wasDefault", wasDefault)
	return nil
}

func (s *tokenizationService) SetDefault(ctx context.Context, actor domain.Actor, methodID string) (*domain.PaymentMethod, error) {
	if actor.ID == "" {
		return nil, domain.ErrUnauthenticated
	}

	unlock, err := s.locks.Lock(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("lock user %s: %w", actor.ID, err)
	}
	defer unlock()

	m, err := s.repo.SetDefault(ctx, actor.ID, methodID)
	if err != nil {
		return nil, err
	}

	s.metrics.IncMethodChange("set_default")
	s.log.Infow("Default payment method changed", "userID", actor.ID, "methodID", m.ID, "last4", m.Last4Digits)
	return m, nil
}

func (s *tokenizationService) List(ctx context.Context, actor domain.Actor) ([]*domain.PaymentMethod, error) {
	if actor.ID == "" {
		return nil, domain.ErrUnauthenticated
	}
	return s.repo.ListByUser(ctx, actor.ID)
}

// requestToken выполняет запрос токенизации; вызывающий держит блокировку пользователя
func (s *tokenizationService) requestToken(ctx context.Context, actor domain.Actor, alias string) (string, error) {
	req := gateway.TokenizationRequest{
		Merchant: s.merchant,
		Email:    actor.Email,
		Alias:    alias,
	}
	signature := s.signer.Sign(req.Params())

	start := time.Now()
	token, err := s.client.Tokenize(ctx, req, signature)
	s.metrics.ObserveTokenLatency(time.Since(start))
	if err != nil {
		s.metrics.IncTokenRequest("failed")
		s.log.Warnw("Tokenization request failed", "userID", actor.ID, "error", err)
		return "", fmt.Errorf("tokenize card: %w", err)
	}

	s.metrics.IncTokenRequest("success")
	s.log.Infow("Card tokenized", "userID", actor.ID, "alias", alias)
	return token, nil
}

// addOrUpdate вставляет или обновляет способ оплаты; вызывающий держит блокировку пользователя
func (s *tokenizationService) addOrUpdate(ctx context.Context, actor domain.Actor, m domain.PaymentMethod) (*domain.PaymentMethod, error) {
	now := s.now()
	m.UserID = actor.ID
	m.Alias = strings.TrimSpace(m.Alias)
	m.Token = strings.TrimSpace(m.Token)

	if m.ID == "" {
		if err := s.checkFreshAuth(actor); err != nil {
			return nil, err
		}
		var errs domain.ValidationErrors
		if len(m.Alias) < minAliasLength {
			errs.Add("alias", fmt.Sprintf("must be at least %d characters", minAliasLength))
		}
		if !isCardSuffix(m.Last4Digits) {
			errs.Add("card_suffix", fmt.Sprintf("must be exactly %d digits", cardSuffixLen))
		}
		if m.Token == "" {
			errs.Add("token", "is required")
		}
		if errs.HasErrors() {
			return nil, errs
		}

		m.ID = uuid.NewString()
		m.CreatedAt = now
		m.UpdatedAt = now
		stored, err := s.repo.Insert(ctx, &m)
		if err != nil {
			return nil, err
		}
		s.metrics.IncMethodChange("add")
		s.log.Infow("Payment method added", "userID", actor.ID, "methodID", stored.ID,
			"last4", stored.Last4Digits, "isDefault", stored.IsDefault)
		return stored, nil
	}

	existing, err := s.repo.Get(ctx, actor.ID, m.ID)
	if err != nil {
		return nil, err
	}
	if m.Token != "" && m.Token != existing.Token {
		if err := s.checkFreshAuth(actor); err != nil {
			return nil, err
		}
	}
	if len(m.Alias) < minAliasLength {
		return nil, domain.ValidationErrors{{Field: "alias", Message: fmt.Sprintf("must be at least %d characters", minAliasLength)}}
	}
	if m.Brand == "" {
		m.Brand = existing.Brand
	}
	m.UpdatedAt = now

	updated, err := s.repo.UpdateDetails(ctx, &m)
	if err != nil {
		return nil, err
	}
	s.metrics.IncMethodChange("update")
	s.log.Infow("Payment method updated", "userID", actor.ID, "methodID", updated.ID, "last4", updated.Last4Digits)
	return updated, nil
}

// checkFreshAuth требует недавнего входа для операций, меняющих платежные данные
func (s *tokenizationService) checkFreshAuth(actor domain.Actor) error {
	if actor.ID == "" {
		return domain.ErrUnauthenticated
	}
	if !actor.AuthenticatedWithin(s.reauthWindow, s.now()) {
		s.log.Infow("Re-authentication required", "userID", actor.ID, "authenticatedAt", actor.AuthenticatedAt)
		return domain.ErrReauthRequired
	}
	return nil
}

func validateCard(alias, suffix string) error {
	var errs domain.ValidationErrors
	if len(strings.TrimSpace(alias)) < minAliasLength {
		errs.Add("alias", fmt.Sprintf("must be at least %d characters", minAliasLength))
	}
	if !isCardSuffix(suffix) {
		errs.Add("card_suffix", fmt.Sprintf("must be exactly %d digits", cardSuffixLen))
	}
	if errs.HasErrors() {
		return errs
	}
	return nil
}

func isCardSuffix(s string) bool {
	if len(s) != cardSuffixLen {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
