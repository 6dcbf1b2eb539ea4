package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-seating/internal/booking/db"
	"ms-seating/internal/logger"
	"ms-seating/internal/models"
)

type confirmCall struct {
	seatID      string
	orderLineID string
}

type refundCall struct {
	seatID      string
	refundID    string
	amount      float64
	fullyCovers bool
}

type mockLedger struct {
	confirmOutcomes map[string]db.ConfirmOutcome // key: seatID
	refundOutcomes  map[string]db.RefundOutcome
	records         []models.BookingRecord
	confirmCalls    []confirmCall
	refundCalls     []refundCall
	shouldFailOn    string
}

func newMockLedger() *mockLedger {
	return &mockLedger{
		confirmOutcomes: make(map[string]db.ConfirmOutcome),
		refundOutcomes:  make(map[string]db.RefundOutcome),
	}
}

func (m *mockLedger) ConfirmSeat(eventID, seatID, orderLineID string, now time.Time) (db.ConfirmOutcome, error) {
	if m.shouldFailOn == "ConfirmSeat" {
		return db.ConfirmConflict, errors.New("store unavailable")
	}
	m.confirmCalls = append(m.confirmCalls, confirmCall{seatID: seatID, orderLineID: orderLineID})
	return m.confirmOutcomes[seatID], nil
}

func (m *mockLedger) ApplyRefund(eventID, seatID, orderLineID, refundID string, amount float64, reason string, fullyCovers bool, now time.Time) (db.RefundOutcome, error) {
	if m.shouldFailOn == "ApplyRefund" {
		return db.RefundNoop, errors.New("store unavailable")
	}
	m.refundCalls = append(m.refundCalls, refundCall{seatID: seatID, refundID: refundID, amount: amount, fullyCovers: fullyCovers})
	return m.refundOutcomes[seatID], nil
}

func (m *mockLedger) GetRecordsByOrderLine(eventID, orderLineID string) ([]models.BookingRecord, error) {
	if m.shouldFailOn == "GetRecordsByOrderLine" {
		return nil, errors.New("store unavailable")
	}
	return m.records, nil
}

type mockQuoter struct {
	quotes map[string]models.SeatQuote
	fail   bool
}

func (m *mockQuoter) QuoteSeats(eventID string, seatIDs []string) ([]models.SeatQuote, error) {
	if m.fail {
		return nil, errors.New("no price point configured for tier")
	}
	out := make([]models.SeatQuote, 0, len(seatIDs))
	for _, seatID := range seatIDs {
		if q, ok := m.quotes[seatID]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

type mockRedisLock struct {
	cleared []string
}

func (m *mockRedisLock) ClearSeat(eventID, seatID string) error {
	m.cleared = append(m.cleared, seatID)
	return nil
}

type publishedEvent struct {
	topic string
	event models.SeatStatusChangeEvent
}

type mockPublisher struct {
	published []publishedEvent
}

func (m *mockPublisher) PublishSeatStatus(topic string, event models.SeatStatusChangeEvent) error {
	m.published = append(m.published, publishedEvent{topic: topic, event: event})
	return nil
}

func newTestHandler(ledger *mockLedger, quoter *mockQuoter, locks *mockRedisLock, publisher *mockPublisher) *Handler {
	return NewHandler(ledger, quoter, locks, publisher, logger.NewLogger(), "seating.seats.status")
}

func TestOnPurchaseCompleted(t *testing.T) {
	ledger := newMockLedger()
	ledger.confirmOutcomes["C4-12"] = db.ConfirmedLive
	ledger.confirmOutcomes["C4-13"] = db.ConfirmedLive
	locks := &mockRedisLock{}
	publisher := &mockPublisher{}
	h := newTestHandler(ledger, &mockQuoter{}, locks, publisher)

	err := h.OnPurchaseCompleted(models.PurchaseCompleted{
		OrderLineID: "line-1",
		EventID:     "event-100",
		SessionID:   "sess-a",
		SeatIDs:     []string{"C4-12", "C4-13"},
	})
	require.NoError(t, err)

	require.Len(t, ledger.confirmCalls, 2)
	assert.Equal(t, "line-1", ledger.confirmCalls[0].orderLineID)
	assert.Equal(t, []string{"C4-12", "C4-13"}, locks.cleared, "hold keys are cleared on confirm")

	require.Len(t, publisher.published, 1)
	assert.Equal(t, models.SeatStatusBooked, publisher.published[0].event.Status)
	assert.Equal(t, []string{"C4-12", "C4-13"}, publisher.published[0].event.SeatIDs)
}

func TestOnPurchaseCompleted_MixedOutcomes(t *testing.T) {
	ledger := newMockLedger()
	ledger.confirmOutcomes["C4-11"] = db.ConfirmedExpiredHold
	ledger.confirmOutcomes["C4-12"] = db.ConfirmNoop
	ledger.confirmOutcomes["C4-13"] = db.ConfirmConflict
	publisher := &mockPublisher{}
	h := newTestHandler(ledger, &mockQuoter{}, &mockRedisLock{}, publisher)

	err := h.OnPurchaseCompleted(models.PurchaseCompleted{
		OrderLineID: "line-1",
		EventID:     "event-100",
		SeatIDs:     []string{"C4-11", "C4-12", "C4-13"},
	})
	require.NoError(t, err, "duplicates and conflicts are absorbed, not raised")

	// Only the expired-hold confirm actually changed seat state.
	require.Len(t, publisher.published, 1)
	assert.Equal(t, []string{"C4-11"}, publisher.published[0].event.SeatIDs)
}

func TestOnPurchaseCompleted_StoreError(t *testing.T) {
	ledger := newMockLedger()
	ledger.shouldFailOn = "ConfirmSeat"
	h := newTestHandler(ledger, &mockQuoter{}, &mockRedisLock{}, &mockPublisher{})

	err := h.OnPurchaseCompleted(models.PurchaseCompleted{
		OrderLineID: "line-1",
		EventID:     "event-100",
		SeatIDs:     []string{"C4-12"},
	})
	require.Error(t, err, "store failures surface so the consumer can retry")
}

func TestOnRefund_FullRefundFreesSeat(t *testing.T) {
	ledger := newMockLedger()
	ledger.refundOutcomes["C4-12"] = db.RefundApplied
	quoter := &mockQuoter{quotes: map[string]models.SeatQuote{
		"C4-12": {SeatID: "C4-12", Tier: "standard", Price: 25.00},
	}}
	publisher := &mockPublisher{}
	h := newTestHandler(ledger, quoter, &mockRedisLock{}, publisher)

	err := h.OnRefund(models.RefundIssued{
		RefundID:    "ref-1",
		OrderLineID: "line-1",
		EventID:     "event-100",
		SeatRefunds: []models.SeatRefund{{SeatID: "C4-12", Amount: 25.00, Reason: "changed plans"}},
	})
	require.NoError(t, err)

	require.Len(t, ledger.refundCalls, 1)
	assert.True(t, ledger.refundCalls[0].fullyCovers)

	require.Len(t, publisher.published, 1)
	assert.Equal(t, models.SeatStatusAvailable, publisher.published[0].event.Status)
	assert.Equal(t, []string{"C4-12"}, publisher.published[0].event.SeatIDs)
}

func TestOnRefund_PartialRefundKeepsSeat(t *testing.T) {
	ledger := newMockLedger()
	ledger.refundOutcomes["C4-12"] = db.RefundApplied
	quoter := &mockQuoter{quotes: map[string]models.SeatQuote{
		"C4-12": {SeatID: "C4-12", Tier: "standard", Price: 25.00},
	}}
	publisher := &mockPublisher{}
	h := newTestHandler(ledger, quoter, &mockRedisLock{}, publisher)

	err := h.OnRefund(models.RefundIssued{
		RefundID:    "ref-1",
		OrderLineID: "line-1",
		EventID:     "event-100",
		SeatRefunds: []models.SeatRefund{{SeatID: "C4-12", Amount: 10.00, Reason: "goodwill"}},
	})
	require.NoError(t, err)

	require.Len(t, ledger.refundCalls, 1)
	assert.False(t, ledger.refundCalls[0].fullyCovers)
	assert.Empty(t, publisher.published, "a partially refunded seat never reads available")
}

func TestOnRefund_SelectiveRefundLeavesSiblings(t *testing.T) {
	ledger := newMockLedger()
	ledger.refundOutcomes["C4-12"] = db.RefundApplied
	quoter := &mockQuoter{quotes: map[string]models.SeatQuote{
		"C4-12": {SeatID: "C4-12", Tier: "standard", Price: 25.00},
		"C4-13": {SeatID: "C4-13", Tier: "standard", Price: 25.00},
	}}
	h := newTestHandler(ledger, quoter, &mockRedisLock{}, &mockPublisher{})

	// The order line covers C4-12 and C4-13; only C4-12 is refunded.
	err := h.OnRefund(models.RefundIssued{
		RefundID:    "ref-1",
		OrderLineID: "line-1",
		EventID:     "event-100",
		SeatRefunds: []models.SeatRefund{{SeatID: "C4-12", Amount: 25.00, Reason: "changed plans"}},
	})
	require.NoError(t, err)

	require.Len(t, ledger.refundCalls, 1)
	assert.Equal(t, "C4-12", ledger.refundCalls[0].seatID, "sibling seats of the order line are untouched")
}

func TestOnRefund_PerSeatPricing(t *testing.T) {
	ledger := newMockLedger()
	ledger.refundOutcomes["C4-12"] = db.RefundApplied
	ledger.refundOutcomes["A1-1"] = db.RefundApplied
	quoter := &mockQuoter{quotes: map[string]models.SeatQuote{
		"C4-12": {SeatID: "C4-12", Tier: "standard", Price: 25.00},
		"A1-1":  {SeatID: "A1-1", Tier: "premium", Price: 60.00},
	}}
	h := newTestHandler(ledger, quoter, &mockRedisLock{}, &mockPublisher{})

	// 25.00 covers the standard seat but not the premium one. Each seat
	// is judged against its own price, never the first seat's tier.
	err := h.OnRefund(models.RefundIssued{
		RefundID:    "ref-1",
		OrderLineID: "line-1",
		EventID:     "event-100",
		SeatRefunds: []models.SeatRefund{
			{SeatID: "C4-12", Amount: 25.00, Reason: "changed plans"},
			{SeatID: "A1-1", Amount: 25.00, Reason: "changed plans"},
		},
	})
	require.NoError(t, err)

	require.Len(t, ledger.refundCalls, 2)
	assert.True(t, ledger.refundCalls[0].fullyCovers)
	assert.False(t, ledger.refundCalls[1].fullyCovers)
}

func TestOnRefund_PricingFailureFailsClosed(t *testing.T) {
	ledger := newMockLedger()
	ledger.refundOutcomes["C4-12"] = db.RefundApplied
	quoter := &mockQuoter{fail: true}
	publisher := &mockPublisher{}
	h := newTestHandler(ledger, quoter, &mockRedisLock{}, publisher)

	err := h.OnRefund(models.RefundIssued{
		RefundID:    "ref-1",
		OrderLineID: "line-1",
		EventID:     "event-100",
		SeatRefunds: []models.SeatRefund{{SeatID: "C4-12", Amount: 25.00, Reason: "changed plans"}},
	})
	require.NoError(t, err, "the refund record is kept even when pricing is broken")

	require.Len(t, ledger.refundCalls, 1)
	assert.False(t, ledger.refundCalls[0].fullyCovers, "without a price the seat stays locked")
	assert.Empty(t, publisher.published)
}

func TestOnRefund_GeneratesRefundID(t *testing.T) {
	ledger := newMockLedger()
	ledger.refundOutcomes["C4-12"] = db.RefundApplied
	quoter := &mockQuoter{quotes: map[string]models.SeatQuote{
		"C4-12": {SeatID: "C4-12", Tier: "standard", Price: 25.00},
	}}
	h := newTestHandler(ledger, quoter, &mockRedisLock{}, &mockPublisher{})

	err := h.OnRefund(models.RefundIssued{
		OrderLineID: "line-1",
		EventID:     "event-100",
		SeatRefunds: []models.SeatRefund{{SeatID: "C4-12", Amount: 25.00}},
	})
	require.NoError(t, err)

	require.Len(t, ledger.refundCalls, 1)
	assert.NotEmpty(t, ledger.refundCalls[0].refundID)
}

func TestOnRefund_DuplicateDeliveryIgnored(t *testing.T) {
	ledger := newMockLedger()
	ledger.refundOutcomes["C4-12"] = db.RefundNoop
	quoter := &mockQuoter{quotes: map[string]models.SeatQuote{
		"C4-12": {SeatID: "C4-12", Tier: "standard", Price: 25.00},
	}}
	publisher := &mockPublisher{}
	h := newTestHandler(ledger, quoter, &mockRedisLock{}, publisher)

	err := h.OnRefund(models.RefundIssued{
		RefundID:    "ref-1",
		OrderLineID: "line-1",
		EventID:     "event-100",
		SeatRefunds: []models.SeatRefund{{SeatID: "C4-12", Amount: 25.00, Reason: "changed plans"}},
	})
	require.NoError(t, err)
	assert.Empty(t, publisher.published)
}

func TestCancelOrderLine(t *testing.T) {
	ledger := newMockLedger()
	ledger.records = []models.BookingRecord{
		{EventID: "event-100", SeatID: "C4-12", Status: models.StatusConfirmed, OrderLineID: "line-1"},
		{EventID: "event-100", SeatID: "C4-13", Status: models.StatusConfirmed, OrderLineID: "line-1"},
	}
	ledger.refundOutcomes["C4-12"] = db.RefundApplied
	ledger.refundOutcomes["C4-13"] = db.RefundApplied
	quoter := &mockQuoter{quotes: map[string]models.SeatQuote{
		"C4-12": {SeatID: "C4-12", Tier: "standard", Price: 25.00},
		"C4-13": {SeatID: "C4-13", Tier: "standard", Price: 25.00},
	}}
	publisher := &mockPublisher{}
	h := newTestHandler(ledger, quoter, &mockRedisLock{}, publisher)

	err := h.CancelOrderLine("event-100", "line-1", "event cancelled")
	require.NoError(t, err)

	require.Len(t, ledger.refundCalls, 2)
	for _, call := range ledger.refundCalls {
		assert.Equal(t, 25.00, call.amount, "cancellation refunds each seat at its full price")
		assert.True(t, call.fullyCovers)
	}

	require.Len(t, publisher.published, 1)
	assert.ElementsMatch(t, []string{"C4-12", "C4-13"}, publisher.published[0].event.SeatIDs)
}

func TestCancelOrderLine_UnknownOrderLine(t *testing.T) {
	ledger := newMockLedger()
	h := newTestHandler(ledger, &mockQuoter{}, &mockRedisLock{}, &mockPublisher{})

	err := h.CancelOrderLine("event-100", "line-missing", "event cancelled")
	require.NoError(t, err)
	assert.Empty(t, ledger.refundCalls)
}
