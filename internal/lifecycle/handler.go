package lifecycle

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-seating/internal/booking/db"
	"ms-seating/internal/logger"
	"ms-seating/internal/models"
)

type LedgerLayer interface {
	ConfirmSeat(eventID, seatID, orderLineID string, now time.Time) (db.ConfirmOutcome, error)
	ApplyRefund(eventID, seatID, orderLineID, refundID string, amount float64, reason string, fullyCovers bool, now time.Time) (db.RefundOutcome, error)
	GetRecordsByOrderLine(eventID, orderLineID string) ([]models.BookingRecord, error)
}

type PriceQuoter interface {
	QuoteSeats(eventID string, seatIDs []string) ([]models.SeatQuote, error)
}

type RedisLock interface {
	ClearSeat(eventID, seatID string) error
}

type KafkaPublisher interface {
	PublishSeatStatus(topic string, event models.SeatStatusChangeEvent) error
}

// Handler reacts to order lifecycle events and drives booking records
// through their status transitions. Both the kafka consumer and the
// confirm/refund endpoints call into it, so every path shares the same
// idempotency rules: duplicate or out-of-order deliveries are successes,
// logged for audit, never raised to the caller.
type Handler struct {
	DB          LedgerLayer
	Pricing     PriceQuoter
	Redis       RedisLock
	Kafka       KafkaPublisher
	Logger      *logger.Logger
	StatusTopic string

	now func() time.Time
}

func NewHandler(ledger LedgerLayer, pricing PriceQuoter, redis RedisLock, kafka KafkaPublisher, log *logger.Logger, statusTopic string) *Handler {
	return &Handler{
		DB:          ledger,
		Pricing:     pricing,
		Redis:       redis,
		Kafka:       kafka,
		Logger:      log,
		StatusTopic: statusTopic,
		now:         time.Now,
	}
}

// OnPurchaseCompleted flips the named seats held → confirmed. A hold
// that expired before the payment landed is confirmed anyway - payment
// already succeeded, so we fail open toward sold and flag the race for
// operator review.
func (h *Handler) OnPurchaseCompleted(evt models.PurchaseCompleted) error {
	now := h.now()
	confirmed := make([]string, 0, len(evt.SeatIDs))

	for _, seatID := range evt.SeatIDs {
		outcome, err := h.DB.ConfirmSeat(evt.EventID, seatID, evt.OrderLineID, now)
		if err != nil {
			return fmt.Errorf("failed to confirm seat %s for order line %s: %w", seatID, evt.OrderLineID, err)
		}

		switch outcome {
		case db.ConfirmedLive:
			confirmed = append(confirmed, seatID)
			h.Logger.LogLifecycle("CONFIRM", evt.OrderLineID, fmt.Sprintf("seat %s confirmed", seatID))
		case db.ConfirmedExpiredHold:
			confirmed = append(confirmed, seatID)
			h.Logger.Warn("LIFECYCLE", fmt.Sprintf("seat %s/%s confirmed after hold expiry for order line %s - review for near-miss double booking", evt.EventID, seatID, evt.OrderLineID))
		case db.ConfirmedInserted:
			confirmed = append(confirmed, seatID)
			h.Logger.Warn("LIFECYCLE", fmt.Sprintf("seat %s/%s confirmed with no prior hold for order line %s", evt.EventID, seatID, evt.OrderLineID))
		case db.ConfirmNoop:
			h.Logger.Warn("LIFECYCLE", fmt.Sprintf("duplicate confirm for seat %s/%s, order line %s - ignored", evt.EventID, seatID, evt.OrderLineID))
		case db.ConfirmConflict:
			h.Logger.Error("LIFECYCLE", fmt.Sprintf("confirm conflict: seat %s/%s already belongs to a different order line than %s", evt.EventID, seatID, evt.OrderLineID))
		}

		if err := h.Redis.ClearSeat(evt.EventID, seatID); err != nil {
			h.Logger.Error("LIFECYCLE", fmt.Sprintf("failed to clear hold key for %s/%s: %v", evt.EventID, seatID, err))
		}
	}

	if len(confirmed) > 0 {
		h.publishStatus(evt.EventID, evt.SessionID, confirmed, models.SeatStatusBooked)
	}
	return nil
}

// OnRefund applies seat-level refunds for an order line. Each named seat
// transitions on its own: a selective refund leaves sibling seats
// confirmed. A seat leaves inventory lock only when its own refunded
// amount covers its resolved price; otherwise it goes partially_refunded
// and stays unavailable.
func (h *Handler) OnRefund(evt models.RefundIssued) error {
	now := h.now()
	refundID := evt.RefundID
	if refundID == "" {
		refundID = uuid.New().String()
	}

	seatIDs := make([]string, 0, len(evt.SeatRefunds))
	for _, sr := range evt.SeatRefunds {
		seatIDs = append(seatIDs, sr.SeatID)
	}

	priceBySeat := make(map[string]float64, len(seatIDs))
	quotes, err := h.Pricing.QuoteSeats(evt.EventID, seatIDs)
	if err != nil {
		// Pricing config trouble must not lose the refund record. Fail
		// closed on release: without a price the seat stays locked as
		// partially refunded.
		h.Logger.Error("LIFECYCLE", fmt.Sprintf("could not price seats for refund %s: %v", refundID, err))
	} else {
		for _, q := range quotes {
			priceBySeat[q.SeatID] = q.Price
		}
	}

	freed := make([]string, 0, len(evt.SeatRefunds))
	for _, sr := range evt.SeatRefunds {
		price, priced := priceBySeat[sr.SeatID]
		fullyCovers := priced && sr.Amount >= price

		outcome, err := h.DB.ApplyRefund(evt.EventID, sr.SeatID, evt.OrderLineID, refundID, sr.Amount, sr.Reason, fullyCovers, now)
		if err != nil {
			return fmt.Errorf("failed to refund seat %s for order line %s: %w", sr.SeatID, evt.OrderLineID, err)
		}

		switch outcome {
		case db.RefundApplied:
			if fullyCovers {
				freed = append(freed, sr.SeatID)
				h.Logger.LogLifecycle("REFUND", evt.OrderLineID, fmt.Sprintf("seat %s fully refunded (%.2f), back in inventory", sr.SeatID, sr.Amount))
			} else {
				h.Logger.LogLifecycle("REFUND", evt.OrderLineID, fmt.Sprintf("seat %s partially refunded (%.2f), seat stays locked", sr.SeatID, sr.Amount))
			}
		case db.RefundNoop:
			h.Logger.Warn("LIFECYCLE", fmt.Sprintf("refund %s for seat %s/%s matched no confirmed record - duplicate or out-of-order delivery, ignored", refundID, evt.EventID, sr.SeatID))
		}
	}

	if len(freed) > 0 {
		h.publishStatus(evt.EventID, "", freed, models.SeatStatusAvailable)
	}
	return nil
}

// CancelOrderLine refunds every seat still attached to the order line.
// Used for full order cancellations where the order system does not
// enumerate seats.
func (h *Handler) CancelOrderLine(eventID, orderLineID, reason string) error {
	records, err := h.DB.GetRecordsByOrderLine(eventID, orderLineID)
	if err != nil {
		return fmt.Errorf("failed to load records for order line %s: %w", orderLineID, err)
	}
	if len(records) == 0 {
		h.Logger.Warn("LIFECYCLE", fmt.Sprintf("cancel for unknown order line %s - ignored", orderLineID))
		return nil
	}

	refunds := make([]models.SeatRefund, 0, len(records))
	seatIDs := make([]string, 0, len(records))
	for _, rec := range records {
		seatIDs = append(seatIDs, rec.SeatID)
	}
	quotes, err := h.Pricing.QuoteSeats(eventID, seatIDs)
	if err != nil {
		return fmt.Errorf("failed to price order line %s for cancellation: %w", orderLineID, err)
	}
	for _, q := range quotes {
		refunds = append(refunds, models.SeatRefund{SeatID: q.SeatID, Amount: q.Price, Reason: reason})
	}

	return h.OnRefund(models.RefundIssued{
		RefundID:    uuid.New().String(),
		OrderLineID: orderLineID,
		EventID:     eventID,
		SeatRefunds: refunds,
	})
}

func (h *Handler) publishStatus(eventID, sessionID string, seatIDs []string, status string) {
	if h.Kafka == nil {
		return
	}
	event := models.SeatStatusChangeEvent{
		EventID:   eventID,
		SessionID: sessionID,
		SeatIDs:   seatIDs,
		Status:    status,
	}
	if err := h.Kafka.PublishSeatStatus(h.StatusTopic, event); err != nil {
		h.Logger.Error("KAFKA", fmt.Sprintf("failed to publish seat status for event %s: %v", eventID, err))
	}
}
