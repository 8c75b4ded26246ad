package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Dhoini/kleenpride-booking-service/internal/domain"
	"github.com/Dhoini/kleenpride-booking-service/internal/gateway"
	"github.com/Dhoini/kleenpride-booking-service/internal/metrics"
	"github.com/Dhoini/kleenpride-booking-service/internal/repository"
	"github.com/Dhoini/kleenpride-booking-service/pkg/logger"
)

// Источники уведомлений
const (
	SourceWebhook = "webhook"
	SourceKafka   = "kafka"
	SourceCash    = "cash"
)

// Outcome результат обработки уведомления
type Outcome string

const (
	// OutcomeApplied транзакция и бронирование обновлены
	OutcomeApplied Outcome = "applied"
	// OutcomeRecorded записан только статус транзакции, бронирование не изменилось
	OutcomeRecorded Outcome = "recorded"
	// OutcomeDuplicate повторное уведомление, изменений нет
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeFlagged уведомление не применено и передано на ручную сверку
	OutcomeFlagged Outcome = "flagged"
)

// Settlement результат платежа, который нужно применить к бронированию
type Settlement struct {
	GatewayTransactionID string
	BookingID            string
	AmountMinorUnits     int64
	Status               domain.NotificationStatus
	Signature            string
	Source               string
	Payload              map[string]string
}

// ReconciliationResult итог обработки
type ReconciliationResult struct {
	Outcome              Outcome                  `json:"outcome"`
	GatewayTransactionID string                   `json:"gateway_transaction_id"`
	BookingID            string                   `json:"booking_id"`
	BookingStatus        domain.BookingStatus     `json:"booking_status,omitempty"`
	TransactionStatus    domain.TransactionStatus `json:"transaction_status,omitempty"`
	ReviewReason         domain.ReviewReason      `json:"review_reason,omitempty"`
}

// ReconciliationService интерфейс обработки ответов платежного шлюза
type ReconciliationService interface {
	// ProcessNotification проверяет подпись, разбирает уведомление и применяет его.
	// Для OutcomeFlagged вместе с результатом возвращается ошибка причины
	// (AmountMismatchError, ErrLateSettlement, NotFoundError).
	ProcessNotification(ctx context.Context, source string, params map[string]string) (*ReconciliationResult, error)
	// ApplySettlement применяет уже проверенный результат платежа
	ApplySettlement(ctx context.Context, st Settlement) (*ReconciliationResult, error)
}

type reconciliationService struct {
	store     repository.Store
	reviews   repository.ReviewQueue
	signer    *gateway.Signer
	locks     *KeyedMutex
	publisher EventPublisher
	metrics   metrics.ReconciliationMetrics
	now       func() time.Time
	log       *logger.Logger
}

// NewReconciliationService создает новый сервис сверки.
// locks должен быть общим с BookingService, чтобы изменения одного бронирования шли по очереди.
func NewReconciliationService(
	store repository.Store,
	reviews repository.ReviewQueue,
	signer *gateway.Signer,
	locks *KeyedMutex,
	publisher EventPublisher,
	m metrics.ReconciliationMetrics,
	log *logger.Logger,
) ReconciliationService {
	return &reconciliationService{
		store:     store,
		reviews:   reviews,
		signer:    signer,
		locks:     locks,
		publisher: publisher,
		metrics:   m,
		now:       func() time.Time { return time.Now().UTC() },
		log:       log,
	}
}

func (s *reconciliationService) ProcessNotification(ctx context.Context, source string, params map[string]string) (*ReconciliationResult, error) {
	if err := s.signer.Verify(params); err != nil {
		s.metrics.IncSignatureMismatch(source)
		s.log.Errorw("Gateway notification rejected: signature mismatch",
			"security_event", true,
			"source", source,
			"bookingID", params[domain.FieldBookingID],
			"gatewayTransactionID", params[domain.FieldGatewayTransactionID],
		)
		return nil, err
	}

	n, err := domain.ParseNotification(params)
	if err != nil {
		s.metrics.IncNotification(source, "malformed")
		s.log.Warnw("Malformed gateway notification", "source", source, "error", err)
		return nil, err
	}

	return s.ApplySettlement(ctx, Settlement{
		GatewayTransactionID: n.GatewayTransactionID,
		BookingID:            n.BookingID,
		AmountMinorUnits:     n.AmountMinorUnits,
		Status:               n.Status,
		Signature:            n.Signature,
		Source:               source,
		Payload:              params,
	})
}

// isDuplicate повтор проведенной транзакции или повторный отказ
func isDuplicate(existing *domain.PaymentTransaction, incoming domain.TransactionStatus) bool {
	switch existing.Status {
	case domain.TransactionStatusSettled:
		return true
	case domain.TransactionStatusRejected:
		return incoming == domain.TransactionStatusRejected
	default:
		return false
	}
}

func (s *reconciliationService) ApplySettlement(ctx context.Context, st Settlement) (*ReconciliationResult, error) {
	start := time.Now()
	incoming := st.Status.TransactionStatus()
	result := &ReconciliationResult{
		GatewayTransactionID: st.GatewayTransactionID,
		BookingID:            st.BookingID,
	}

	existing, err := s.store.Transactions().Get(ctx, st.GatewayTransactionID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("lookup transaction %s: %w", st.GatewayTransactionID, err)
	}
	if existing != nil && isDuplicate(existing, incoming) {
		return s.duplicate(st, result, existing), nil
	}

	unlock, err := s.locks.Lock(ctx, st.BookingID)
	if err != nil {
		return nil, fmt.Errorf("lock booking %s: %w", st.BookingID, err)
	}
	defer unlock()

	// с этого момента применение не прерывается отменой вызывающего
	applyCtx := context.WithoutCancel(ctx)

	var (
		review    *domain.Review
		reasonErr error
		booking   *domain.Booking
		events    []domain.BookingEvent
	)

	flag := func(reason domain.ReviewReason, expected int64, err error) {
		review = &domain.Review{
			BookingID:            st.BookingID,
			GatewayTransactionID: st.GatewayTransactionID,
			Reason:               reason,
			ExpectedMinorUnits:   expected,
			ReceivedMinorUnits:   st.AmountMinorUnits,
			Payload:              encodePayload(st.Payload),
		}
		reasonErr = err
		result.Outcome = OutcomeFlagged
		result.ReviewReason = reason
	}

	err = s.store.InTx(applyCtx, func(tx repository.Store) error {
		// повторная проверка под блокировкой
		record, err := tx.Transactions().Get(applyCtx, st.GatewayTransactionID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if record != nil && isDuplicate(record, incoming) {
			result.Outcome = OutcomeDuplicate
			result.TransactionStatus = record.Status
			return nil
		}
		if record != nil && record.BookingID != st.BookingID {
			flag(domain.ReviewReasonBookingMismatch, 0, fmt.Errorf("transaction %s belongs to booking %s: %w",
				st.GatewayTransactionID, record.BookingID, domain.ErrInvalidInput))
			return nil
		}

		b, err := tx.Bookings().GetForUpdate(applyCtx, st.BookingID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				flag(domain.ReviewReasonUnknownBooking, 0, err)
				return nil
			}
			return err
		}
		booking = b
		result.BookingStatus = b.Status

		if st.AmountMinorUnits != b.PriceMinorUnits {
			flag(domain.ReviewReasonAmountMismatch, b.PriceMinorUnits, &domain.AmountMismatchError{
				BookingID: b.ID,
				Expected:  b.PriceMinorUnits,
				Received:  st.AmountMinorUnits,
			})
			return nil
		}

		now := s.now()
		if incoming == domain.TransactionStatusSettled && b.Status != domain.BookingStatusPendingPayment {
			flag(domain.ReviewReasonLateSettlement, b.PriceMinorUnits,
				fmt.Errorf("booking %s is %s: %w", b.ID, b.Status, domain.ErrLateSettlement))
			return nil
		}

		isNew := record == nil
		if isNew {
			record = &domain.PaymentTransaction{
				GatewayTransactionID: st.GatewayTransactionID,
				BookingID:            st.BookingID,
				CreatedAt:            now,
			}
		}
		record.AmountMinorUnits = st.AmountMinorUnits
		record.Signature = st.Signature
		record.Status = incoming
		record.UpdatedAt = now

		if isNew {
			err = tx.Transactions().Insert(applyCtx, record)
		} else {
			err = tx.Transactions().Update(applyCtx, record)
		}
		if err != nil {
			return err
		}
		result.TransactionStatus = record.Status

		switch {
		case incoming == domain.TransactionStatusSettled:
			if err := b.Confirm(record, now); err != nil {
				return err
			}
			events = append(events, domain.NewBookingEvent(domain.EventBookingConfirmed, b, now))
		case b.Status == domain.BookingStatusPendingPayment:
			if err := b.Reject(record, now); err != nil {
				return err
			}
			events = append(events,
				domain.NewBookingEvent(domain.EventPaymentRejected, b, now),
				domain.NewBookingEvent(domain.EventBookingCancelled, b, now),
			)
		default:
			// отказ по бронированию, которое уже не ждет оплаты: фиксируем только транзакцию
			result.Outcome = OutcomeRecorded
			return nil
		}

		if err := tx.Bookings().Update(applyCtx, b); err != nil {
			return err
		}
		result.Outcome = OutcomeApplied
		result.BookingStatus = b.Status
		return nil
	})
	if err != nil {
		s.metrics.IncNotification(st.Source, "error")
		s.log.Errorw("Failed to apply gateway settlement", "error", err,
			"bookingID", st.BookingID, "gatewayTransactionID", st.GatewayTransactionID)
		return nil, fmt.Errorf("apply settlement %s: %w", st.GatewayTransactionID, err)
	}

	if review != nil {
		// без записи в очереди сверки уведомление не подтверждается, шлюз доставит его повторно
		if err := s.flagReview(applyCtx, review, booking); err != nil {
			s.metrics.IncNotification(st.Source, "error")
			return nil, fmt.Errorf("flag settlement %s for review: %w", st.GatewayTransactionID, err)
		}
	}
	publishAll(applyCtx, s.publisher, s.log, events...)

	s.metrics.IncNotification(st.Source, string(result.Outcome))
	s.metrics.ObserveProcessing(time.Since(start))
	s.log.Infow("Gateway settlement processed",
		"source", st.Source,
		"outcome", result.Outcome,
		"bookingID", st.BookingID,
		"gatewayTransactionID", st.GatewayTransactionID,
		"bookingStatus", result.BookingStatus,
	)

	return result, reasonErr
}

func (s *reconciliationService) duplicate(st Settlement, result *ReconciliationResult, existing *domain.PaymentTransaction) *ReconciliationResult {
	result.Outcome = OutcomeDuplicate
	result.TransactionStatus = existing.Status
	s.metrics.IncNotification(st.Source, string(OutcomeDuplicate))
	s.log.Infow("Duplicate gateway notification acknowledged",
		"source", st.Source, "bookingID", st.BookingID, "gatewayTransactionID", st.GatewayTransactionID)
	return result
}

func (s *reconciliationService) flagReview(ctx context.Context, review *domain.Review, booking *domain.Booking) error {
	created, err := s.reviews.Flag(ctx, review)
	if err != nil {
		s.log.Errorw("Failed to flag payment for manual review", "error", err,
			"bookingID", review.BookingID, "gatewayTransactionID", review.GatewayTransactionID, "reason", review.Reason)
		return err
	}
	if !created {
		return nil
	}

	s.metrics.IncFlagged(string(review.Reason))
	s.log.Warnw("Payment flagged for manual review",
		"reviewID", review.ID, "reason", review.Reason,
		"bookingID", review.BookingID, "gatewayTransactionID", review.GatewayTransactionID,
		"expected", review.ExpectedMinorUnits, "received", review.ReceivedMinorUnits)

	if booking != nil {
		ev := domain.NewBookingEvent(domain.EventPaymentFlagged, booking, s.now())
		ev.GatewayTransactionID = review.GatewayTransactionID
		ev.AmountMinorUnits = review.ReceivedMinorUnits
		publishAll(ctx, s.publisher, s.log, ev)
	}
	return nil
}

// encodePayload сохраняет уведомление для ручной сверки без подписи
func encodePayload(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}
	clean := make(map[string]string, len(params))
	for k, v := range params {
		if k != domain.FieldSignature {
			clean[k] = v
		}
	}
	data, err := json.Marshal(clean)
	if err != nil {
		return ""
	}
	return string(data)
}
