package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Dhoini/kleenpride-booking-service/internal/domain"
	"github.com/Dhoini/kleenpride-booking-service/internal/gateway"
	"github.com/Dhoini/kleenpride-booking-service/internal/metrics"
	"github.com/Dhoini/kleenpride-booking-service/internal/repository"
	"github.com/Dhoini/kleenpride-booking-service/internal/validation"
	"github.com/Dhoini/kleenpride-booking-service/pkg/logger"
	"github.com/google/uuid"
)

// PaymentInitiation подписанный запрос на оплату, подтвержденный шлюзом
type PaymentInitiation struct {
	Booking     *domain.Booking   `json:"booking"`
	PaymentID   string            `json:"payment_id"`
	Params      map[string]string `json:"params"`
	Signature   string            `json:"signature"`
	RedirectURL string            `json:"redirect_url"`
}

// BookingService интерфейс сервиса жизненного цикла бронирований
type BookingService interface {
	Submit(ctx context.Context, actor domain.Actor, draft domain.BookingDraft) (*domain.Booking, error)
	InitiatePayment(ctx context.Context, actor domain.Actor, id string) (*PaymentInitiation, error)
	Cancel(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error)
	// ExpirePayment отменяет неоплаченное бронирование по решению внешней политики тайм-аута
	ExpirePayment(ctx context.Context, id string) (*domain.Booking, error)
	AssignDetailer(ctx context.Context, id, detailerID string) (*domain.Booking, error)
	Start(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error)
	Complete(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error)
	// SettleCash проводит оплату наличными через общий путь сверки
	SettleCash(ctx context.Context, id string, amountMinorUnits int64) (*ReconciliationResult, error)
	Get(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error)
	// ListByCustomer возвращает бронирования клиента; пустой customerID - бронирования самого actor
	ListByCustomer(ctx context.Context, actor domain.Actor, customerID string) ([]*domain.Booking, error)
}

// BookingServiceConfig параметры сервиса бронирований
type BookingServiceConfig struct {
	Merchant gateway.Merchant
	Location *time.Location
}

type bookingService struct {
	cfg            BookingServiceConfig
	store          repository.Store
	paymentMethods repository.PaymentMethodRepository
	prices         PriceCatalog
	signer         *gateway.Signer
	client         gateway.Client
	reconciliation ReconciliationService
	locks          *KeyedMutex
	publisher      EventPublisher
	metrics        metrics.BookingMetrics
	now            func() time.Time
	log            *logger.Logger
}

// NewBookingService создает новый сервис бронирований
func NewBookingService(
	cfg BookingServiceConfig,
	store repository.Store,
	paymentMethods repository.PaymentMethodRepository,
	prices PriceCatalog,
	signer *gateway.Signer,
	client gateway.Client,
	reconciliation ReconciliationService,
	locks *KeyedMutex,
	publisher EventPublisher,
	m metrics.BookingMetrics,
	log *logger.Logger,
) BookingService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if publisher == nil {
		log.Warnw("Event publisher is nil, booking events will be skipped")
	}
	return &bookingService{
		cfg:            cfg,
		store:          store,
		paymentMethods: paymentMethods,
		prices:         prices,
		signer:         signer,
		client:         client,
		reconciliation: reconciliation,
		locks:          locks,
		publisher:      publisher,
		metrics:        m,
		now:            func() time.Time { return time.Now().UTC() },
		log:            log,
	}
}

// Submit проверяет черновик и сохраняет бронирование в статусе PENDING_PAYMENT
func (s *bookingService) Submit(ctx context.Context, actor domain.Actor, draft domain.BookingDraft) (*domain.Booking, error) {
	if actor.ID == "" {
		return nil, domain.ErrUnauthenticated
	}
	if err := validation.Validate(draft); err != nil {
		s.log.Infow("Booking draft rejected", "customerID", actor.ID, "error", err)
		return nil, err
	}

	now := s.now()
	scheduledAt, err := validation.ScheduledAt(draft, s.cfg.Location)
	if err != nil {
		return nil, domain.ValidationErrors{{Field: "scheduled_date", Message: err.Error()}}
	}
	// дата, равная сегодняшней, допустима; прошедшие дни нет
	today := now.In(s.cfg.Location)
	if y, m, d := today.Date(); scheduledAt.Before(time.Date(y, m, d, 0, 0, 0, 0, s.cfg.Location)) {
		return nil, domain.ValidationErrors{{Field: "scheduled_date", Message: "must not be in the past"}}
	}

	paymentMethod := strings.TrimSpace(draft.PaymentMethod)
	if domain.IsCashMethod(paymentMethod) {
		paymentMethod = domain.CashPaymentMethod
	} else if _, err := s.paymentMethods.GetByToken(ctx, actor.ID, paymentMethod); err != nil {
		if errors.Is(err, domain.ErrPaymentMethodNotFound) || errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ValidationErrors{{Field: "payment_method", Message: "unknown payment method"}}
		}
		return nil, fmt.Errorf("lookup payment method: %w", err)
	}

	price, err := s.prices.Quote(ctx, draft.Service, draft.VehicleType)
	if err != nil {
		return nil, err
	}

	b := &domain.Booking{
		ID:              uuid.New().String(),
		CustomerID:      actor.ID,
		ServiceID:       strings.TrimSpace(draft.Service),
		VehicleType:     strings.TrimSpace(draft.VehicleType),
		ScheduledAt:     scheduledAt,
		Address:         strings.TrimSpace(draft.Address),
		PaymentMethod:   paymentMethod,
		PriceMinorUnits: price,
		Status:          domain.BookingStatusPendingPayment,
		PaymentStatus:   domain.BookingPaymentNone,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.store.Bookings().Create(ctx, b); err != nil {
		s.log.Errorw("Failed to create booking", "error", err, "customerID", actor.ID)
		return nil, fmt.Errorf("create booking: %w", err)
	}

	s.metrics.IncBookingCreated(b.ServiceID)
	s.metrics.IncTransition(string(domain.BookingStatusDraft), string(b.Status))
	s.metrics.ObserveBookingPrice(b.ServiceID, b.PriceMinorUnits)
	s.log.Infow("Booking created", "bookingID", b.ID, "customerID", b.CustomerID,
		"service", b.ServiceID, "priceMinorUnits", b.PriceMinorUnits, "cash", b.IsCash())

	publishAll(ctx, s.publisher, s.log, domain.NewBookingEvent(domain.EventBookingCreated, b, now))
	return b, nil
}

// InitiatePayment подписывает запрос на оплату и отправляет его шлюзу.
// До подтверждения шлюза ничего не сохраняется, поэтому отмена ctx или ошибка шлюза безопасны для повтора.
func (s *bookingService) InitiatePayment(ctx context.Context, actor domain.Actor, id string) (*PaymentInitiation, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lock booking %s: %w", id, err)
	}
	defer unlock()

	// проверка читает основное хранилище мимо кеша, до вызова шлюза
	var (
		b        *domain.Booking
		inFlight *domain.PaymentTransaction
	)
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		current, err := tx.Bookings().Get(ctx, id)
		if err != nil {
			return err
		}
		b = current
		inFlight, err = initiatedTransaction(ctx, tx, current)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !actor.Owns(b) && !actor.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	if err := awaitingPayment(b, domain.BookingStatusConfirmed); err != nil {
		s.metrics.IncPaymentInitiation("rejected")
		return nil, err
	}
	if b.IsCash() {
		return nil, fmt.Errorf("booking %s: %w", b.ID, domain.ErrCashPayment)
	}
	if inFlight != nil {
		s.metrics.IncPaymentInitiation("rejected")
		s.log.Warnw("Payment already in flight", "bookingID", b.ID, "paymentID", inFlight.GatewayTransactionID)
		return nil, fmt.Errorf("booking %s, payment %s: %w", b.ID, inFlight.GatewayTransactionID, domain.ErrPaymentInFlight)
	}

	req := gateway.PaymentRequest{
		Merchant:        s.cfg.Merchant,
		FirstName:       actor.FirstName,
		LastName:        actor.LastName,
		Email:           actor.Email,
		AmountMinor:     b.PriceMinorUnits,
		ItemName:        b.ServiceID,
		ItemDescription: fmt.Sprintf("%s, %s", b.VehicleType, b.ScheduledAt.In(s.cfg.Location).Format("2006-01-02 15:04")),
		BookingID:       b.ID,
		PaymentToken:    b.PaymentMethod,
	}
	params, signature := s.signer.Signed(req.Params())

	paymentID, err := s.client.InitiatePayment(ctx, req, signature)
	if err != nil {
		s.metrics.IncPaymentInitiation("failed")
		s.log.Warnw("Payment initiation failed", "bookingID", b.ID, "error", err)
		return nil, fmt.Errorf("initiate payment for booking %s: %w", b.ID, err)
	}

	// шлюз подтвердил запрос: фиксация выполняется до конца независимо от ctx
	applyCtx := context.WithoutCancel(ctx)
	var updated *domain.Booking
	err = s.store.InTx(applyCtx, func(tx repository.Store) error {
		current, err := tx.Bookings().GetForUpdate(applyCtx, id)
		if err != nil {
			return err
		}
		if err := awaitingPayment(current, domain.BookingStatusConfirmed); err != nil {
			return err
		}
		other, err := initiatedTransaction(applyCtx, tx, current)
		if err != nil {
			return err
		}
		if other != nil && other.GatewayTransactionID != paymentID {
			return fmt.Errorf("booking %s, payment %s: %w", current.ID, other.GatewayTransactionID, domain.ErrPaymentInFlight)
		}

		now := s.now()
		current.PaymentID = paymentID
		current.PaymentStatus = domain.BookingPaymentPending
		current.UpdatedAt = now
		if err := tx.Bookings().Update(applyCtx, current); err != nil {
			return err
		}

		record := &domain.PaymentTransaction{
			GatewayTransactionID: paymentID,
			BookingID:            current.ID,
			AmountMinorUnits:     current.PriceMinorUnits,
			Signature:            signature,
			Status:               domain.TransactionStatusInitiated,
			CreatedAt:            now,
			UpdatedAt:            now,
		}
		if err := tx.Transactions().Insert(applyCtx, record); err != nil && !errors.Is(err, domain.ErrDuplicate) {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		s.metrics.IncPaymentInitiation("failed")
		s.log.Errorw("Failed to record payment initiation", "error", err, "bookingID", id, "paymentID", paymentID)
		return nil, fmt.Errorf("record payment initiation for booking %s: %w", id, err)
	}

	s.metrics.IncPaymentInitiation("initiated")
	s.log.Infow("Payment initiated", "bookingID", updated.ID, "paymentID", paymentID,
		"amount", domain.FormatAmount(updated.PriceMinorUnits))

	ev := domain.NewBookingEvent(domain.EventPaymentInitiated, updated, s.now())
	publishAll(applyCtx, s.publisher, s.log, ev)

	return &PaymentInitiation{
		Booking:     updated,
		PaymentID:   paymentID,
		Params:      params,
		Signature:   signature,
		RedirectURL: gateway.RedirectURL(s.cfg.Merchant.ProcessURL, params, signature),
	}, nil
}

// Cancel отменяет бронирование до начала работ
func (s *bookingService) Cancel(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error) {
	return s.mutate(ctx, id, func(tx repository.Store, b *domain.Booking, now time.Time) ([]domain.BookingEvent, error) {
		if !actor.Owns(b) && !actor.IsAdmin() {
			return nil, domain.ErrForbidden
		}
		wasPending := b.Status == domain.BookingStatusPendingPayment
		if err := b.Transition(domain.BookingStatusCancelled, now); err != nil {
			return nil, err
		}
		if wasPending {
			if err := s.abandonPayment(ctx, tx, b, now); err != nil {
				return nil, err
			}
		}
		return []domain.BookingEvent{domain.NewBookingEvent(domain.EventBookingCancelled, b, now)}, nil
	})
}

func (s *bookingService) ExpirePayment(ctx context.Context, id string) (*domain.Booking, error) {
	return s.mutate(ctx, id, func(tx repository.Store, b *domain.Booking, now time.Time) ([]domain.BookingEvent, error) {
		if err := awaitingPayment(b, domain.BookingStatusCancelled); err != nil {
			return nil, err
		}
		if err := b.Transition(domain.BookingStatusCancelled, now); err != nil {
			return nil, err
		}
		if err := s.abandonPayment(ctx, tx, b, now); err != nil {
			return nil, err
		}
		return []domain.BookingEvent{domain.NewBookingEvent(domain.EventBookingCancelled, b, now)}, nil
	})
}

// AssignDetailer назначает исполнителя подтвержденному бронированию
func (s *bookingService) AssignDetailer(ctx context.Context, id, detailerID string) (*domain.Booking, error) {
	detailerID = strings.TrimSpace(detailerID)
	if detailerID == "" {
		return nil, domain.ValidationErrors{{Field: "detailer_id", Message: "is required"}}
	}
	return s.mutate(ctx, id, func(_ repository.Store, b *domain.Booking, now time.Time) ([]domain.BookingEvent, error) {
		if b.Status != domain.BookingStatusConfirmed {
			return nil, &domain.TransitionError{
				BookingID: b.ID,
				From:      b.Status,
				To:        domain.BookingStatusConfirmed,
				Reason:    "detailers are assigned to confirmed bookings only",
			}
		}
		b.DetailerID = detailerID
		b.UpdatedAt = now
		return []domain.BookingEvent{domain.NewBookingEvent(domain.EventBookingAssigned, b, now)}, nil
	})
}

func (s *bookingService) Start(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error) {
	return s.mutate(ctx, id, func(_ repository.Store, b *domain.Booking, now time.Time) ([]domain.BookingEvent, error) {
		if err := b.Start(actor.ID, now); err != nil {
			return nil, err
		}
		return []domain.BookingEvent{domain.NewBookingEvent(domain.EventBookingStarted, b, now)}, nil
	})
}

func (s *bookingService) Complete(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error) {
	return s.mutate(ctx, id, func(_ repository.Store, b *domain.Booking, now time.Time) ([]domain.BookingEvent, error) {
		if !actor.IsAssignedTo(b) && !actor.IsAdmin() {
			return nil, domain.ErrForbidden
		}
		if err := b.Transition(domain.BookingStatusCompleted, now); err != nil {
			return nil, err
		}
		return []domain.BookingEvent{domain.NewBookingEvent(domain.EventBookingCompleted, b, now)}, nil
	})
}

func (s *bookingService) SettleCash(ctx context.Context, id string, amountMinorUnits int64) (*ReconciliationResult, error) {
	b, err := s.store.Bookings().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.IsCash() {
		return nil, fmt.Errorf("booking %s is not paid in cash: %w", id, domain.ErrInvalidInput)
	}
	if amountMinorUnits <= 0 {
		return nil, domain.ValidationErrors{{Field: "amount", Message: "must be positive"}}
	}

	return s.reconciliation.ApplySettlement(ctx, Settlement{
		GatewayTransactionID: domain.CashTransactionID(id),
		BookingID:            id,
		AmountMinorUnits:     amountMinorUnits,
		Status:               domain.NotificationStatusComplete,
		Source:               SourceCash,
	})
}

func (s *bookingService) Get(ctx context.Context, actor domain.Actor, id string) (*domain.Booking, error) {
	b, err := s.store.Bookings().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.Owns(b) && !actor.IsAssignedTo(b) && !actor.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	return b, nil
}

func (s *bookingService) ListByCustomer(ctx context.Context, actor domain.Actor, customerID string) ([]*domain.Booking, error) {
	if customerID == "" {
		customerID = actor.ID
	}
	if customerID == "" {
		return nil, domain.ErrUnauthenticated
	}
	if customerID != actor.ID && !actor.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	return s.store.Bookings().ListByCustomer(ctx, customerID)
}

// mutate применяет fn к бронированию под блокировкой и в транзакции хранилища.
// После захвата блокировки изменение выполняется до конца, события публикуются после фиксации.
func (s *bookingService) mutate(
	ctx context.Context,
	id string,
	fn func(tx repository.Store, b *domain.Booking, now time.Time) ([]domain.BookingEvent, error),
) (*domain.Booking, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lock booking %s: %w", id, err)
	}
	defer unlock()

	applyCtx := context.WithoutCancel(ctx)
	var (
		updated *domain.Booking
		from    domain.BookingStatus
		events  []domain.BookingEvent
	)
	err = s.store.InTx(applyCtx, func(tx repository.Store) error {
		b, err := tx.Bookings().GetForUpdate(applyCtx, id)
		if err != nil {
			return err
		}
		from = b.Status

		evs, err := fn(tx, b, s.now())
		if err != nil {
			return err
		}
		if err := tx.Bookings().Update(applyCtx, b); err != nil {
			return err
		}
		updated, events = b, evs
		return nil
	})
	if err != nil {
		var terr *domain.TransitionError
		if errors.As(err, &terr) {
			s.metrics.IncTransitionRejected(string(terr.From), string(terr.To))
			s.log.Infow("Booking transition rejected", "bookingID", id, "from", terr.From, "to", terr.To, "reason", terr.Reason)
		}
		return nil, err
	}

	if updated.Status != from {
		s.metrics.IncTransition(string(from), string(updated.Status))
		s.log.Infow("Booking status changed", "bookingID", id, "from", from, "to", updated.Status)
	}
	publishAll(applyCtx, s.publisher, s.log, events...)
	return updated, nil
}

// abandonPayment помечает незавершенные транзакции бронирования отклоненными.
// Поздний COMPLETE по такой транзакции попадет на ручную сверку.
func (s *bookingService) abandonPayment(ctx context.Context, tx repository.Store, b *domain.Booking, now time.Time) error {
	records, err := tx.Transactions().ListByBooking(context.WithoutCancel(ctx), b.ID)
	if err != nil {
		return err
	}
	for _, record := range records {
		if record.Status != domain.TransactionStatusInitiated {
			continue
		}
		record.Status = domain.TransactionStatusRejected
		record.UpdatedAt = now
		if err := tx.Transactions().Update(context.WithoutCancel(ctx), record); err != nil {
			return err
		}
	}
	if b.PaymentStatus == domain.BookingPaymentPending {
		b.PaymentStatus = domain.BookingPaymentFailed
	}
	return nil
}

// initiatedTransaction возвращает отправленную шлюзу и еще не подтвержденную транзакцию бронирования
func initiatedTransaction(ctx context.Context, tx repository.Store, b *domain.Booking) (*domain.PaymentTransaction, error) {
	if b.PaymentStatus != domain.BookingPaymentPending {
		return nil, nil
	}
	txs, err := tx.Transactions().ListByBooking(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	for _, t := range txs {
		if t.Status == domain.TransactionStatusInitiated {
			return t, nil
		}
	}
	return nil, nil
}

// awaitingPayment проверяет, что бронирование ожидает оплаты
func awaitingPayment(b *domain.Booking, to domain.BookingStatus) error {
	if b.Status != domain.BookingStatusPendingPayment || b.PaymentStatus == domain.BookingPaymentSettled {
		return &domain.TransitionError{
			BookingID: b.ID,
			From:      b.Status,
			To:        to,
			Reason:    "booking is not awaiting payment",
		}
	}
	return nil
}
