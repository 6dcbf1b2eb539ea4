package models

import (
	"time"

	"github.com/uptrace/bun"
)

// BookingStatus is the closed status set for a booking record. Refund
// metadata is only ever written together with StatusRefunded or
// StatusPartiallyRefunded.
type BookingStatus string

const (
	StatusHeld              BookingStatus = "held"
	StatusConfirmed         BookingStatus = "confirmed"
	StatusRefunded          BookingStatus = "refunded"
	StatusPartiallyRefunded BookingStatus = "partially_refunded"
)

// BookingRecord is one claim slot per (event, seat). The composite
// primary key is what makes concurrent claims race-safe: the insert
// either takes the slot or conflicts, in a single round trip.
type BookingRecord struct {
	bun.BaseModel `bun:"table:booking_records"`

	EventID     string        `bun:"event_id,pk" json:"event_id"`
	SeatID      string        `bun:"seat_id,pk" json:"seat_id"`
	Status      BookingStatus `bun:"status,notnull" json:"status"`
	SessionID   string        `bun:"session_id,nullzero" json:"session_id,omitempty"`
	OrderLineID string        `bun:"order_line_id,nullzero" json:"order_line_id,omitempty"`
	ExpiresAt   time.Time     `bun:"expires_at,nullzero" json:"expires_at,omitempty"`
	CreatedAt   time.Time     `bun:"created_at,notnull" json:"created_at"`

	RefundID     string    `bun:"refund_id,nullzero" json:"refund_id,omitempty"`
	RefundAmount float64   `bun:"refund_amount,nullzero" json:"refund_amount,omitempty"`
	RefundReason string    `bun:"refund_reason,nullzero" json:"refund_reason,omitempty"`
	RefundedAt   time.Time `bun:"refunded_at,nullzero" json:"refunded_at,omitempty"`
}

// Live reports whether the record renders the seat unavailable to other
// sessions at the given instant.
func (b *BookingRecord) Live(now time.Time) bool {
	switch b.Status {
	case StatusHeld:
		return b.ExpiresAt.After(now)
	case StatusConfirmed, StatusPartiallyRefunded:
		return true
	default:
		return false
	}
}

// SeatBlock is an administrative block. Blocks are orthogonal to booking
// status: a blocked seat is unavailable regardless of any booking record,
// and unblocking never resurrects a prior booking state.
type SeatBlock struct {
	bun.BaseModel `bun:"table:seat_blocks"`

	EventID   string    `bun:"event_id,pk" json:"event_id"`
	SeatID    string    `bun:"seat_id,pk" json:"seat_id"`
	Reason    string    `bun:"reason,notnull" json:"reason"`
	CreatedBy string    `bun:"created_by,nullzero" json:"created_by,omitempty"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}

// ---------------- API DTOs ----------------

type HoldRequest struct {
	SessionID string   `json:"session_id"`
	SeatIDs   []string `json:"seat_ids"`
}

type HoldResponse struct {
	AcceptedSeatIDs []string `json:"accepted_seat_ids"`
	RejectedSeatIDs []string `json:"rejected_seat_ids"`
}

type ReleaseRequest struct {
	SessionID string   `json:"session_id"`
	SeatIDs   []string `json:"seat_ids"`
}

type ReleaseResponse struct {
	ReleasedCount int `json:"released_count"`
}

type ConfirmRequest struct {
	OrderLineID string   `json:"order_line_id"`
	SeatIDs     []string `json:"seat_ids"`
}

type SeatRefund struct {
	SeatID string  `json:"seat_id"`
	Amount float64 `json:"amount"`
	Reason string  `json:"reason"`
}

type RefundRequest struct {
	OrderLineID string       `json:"order_line_id"`
	RefundID    string       `json:"refund_id,omitempty"`
	SeatRefunds []SeatRefund `json:"seat_refunds"`
}

type AvailabilityResponse struct {
	EventID            string   `json:"event_id"`
	UnavailableSeatIDs []string `json:"unavailable_seat_ids"`
}

type BlockRequest struct {
	SeatIDs []string `json:"seat_ids"`
	Reason  string   `json:"reason"`
}
