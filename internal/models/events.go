package models

// Seat status values published on the seat status topic for the
// presentation layer to refresh its seat map.
const (
	SeatStatusAvailable   = "AVAILABLE"
	SeatStatusHeld        = "HELD"
	SeatStatusBooked      = "BOOKED"
	SeatStatusBlocked     = "BLOCKED"
	SeatStatusUnavailable = "UNAVAILABLE"
)

// SeatStatusChangeEvent is published whenever the availability of seats
// changes (claim, release, expiry, confirm, refund, block).
type SeatStatusChangeEvent struct {
	EventID   string   `json:"event_id"`
	SessionID string   `json:"session_id,omitempty"`
	SeatIDs   []string `json:"seat_ids"`
	Status    string   `json:"status"`
}

// PurchaseCompleted is emitted by the order system when payment for an
// order line succeeds. The order line id correlates booking records back
// to commerce state.
type PurchaseCompleted struct {
	OrderLineID string   `json:"order_line_id"`
	EventID     string   `json:"event_id"`
	SessionID   string   `json:"session_id,omitempty"`
	SeatIDs     []string `json:"seat_ids"`
}

// RefundIssued is emitted by the order system for full cancellations and
// selective seat refunds alike. A full cancellation names every seat on
// the order line.
type RefundIssued struct {
	RefundID    string       `json:"refund_id"`
	OrderLineID string       `json:"order_line_id"`
	EventID     string       `json:"event_id"`
	SeatRefunds []SeatRefund `json:"seat_refunds"`
}
