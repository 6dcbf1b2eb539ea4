package db

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/uptrace/bun"

	"ms-seating/internal/models"
)

// ConfirmOutcome reports how a purchase-completed transition landed.
type ConfirmOutcome int

const (
	// ConfirmedLive: the hold was still live and flipped to confirmed.
	ConfirmedLive ConfirmOutcome = iota
	// ConfirmedExpiredHold: the hold had expired but payment already
	// succeeded, so the seat was confirmed anyway. Operators should
	// review these races.
	ConfirmedExpiredHold
	// ConfirmedInserted: no record existed; a confirmed record was
	// written directly (fail open toward sold, not toward double-booking).
	ConfirmedInserted
	// ConfirmNoop: the record already matches the request (duplicate
	// event delivery) or is further along; idempotent success.
	ConfirmNoop
	// ConfirmConflict: the slot belongs to a different order line.
	ConfirmConflict
)

// RefundOutcome reports how a refund transition landed.
type RefundOutcome int

const (
	RefundApplied RefundOutcome = iota
	// RefundNoop: no matching confirmed record for the order line;
	// duplicate or out-of-order delivery, idempotent success.
	RefundNoop
)

// DB is the booking ledger: one claim slot per (event, seat). Every
// mutation is a single conditional statement so that concurrent writers
// coordinate through the store, never through read-then-write sequences.
type DB struct {
	Bun *bun.DB
}

// ---------------- CLAIMS ----------------

// ClaimSeat atomically takes the (event, seat) slot as a hold for the
// session. The insert wins a free slot; the fallback update takes over a
// slot that is re-holdable: the session's own hold (TTL refresh), an
// expired hold, or a fully refunded seat. Returns true when the session
// owns a live hold on return.
func (d *DB) ClaimSeat(eventID, seatID, sessionID string, now, expiresAt time.Time) (bool, error) {
	record := models.BookingRecord{
		EventID:   eventID,
		SeatID:    seatID,
		Status:    models.StatusHeld,
		SessionID: sessionID,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	res, err := d.Bun.NewInsert().
		Model(&record).
		On("CONFLICT DO NOTHING").
		Exec(context.Background())
	if err != nil {
		return false, err
	}
	if affected, _ := res.RowsAffected(); affected == 1 {
		return true, nil
	}

	// Slot occupied: conditional takeover. The predicate decides in the
	// same round trip, so a competing live claim can never be overwritten.
	res, err = d.Bun.NewUpdate().
		Model((*models.BookingRecord)(nil)).
		Set("status = ?", models.StatusHeld).
		Set("session_id = ?", sessionID).
		Set("order_line_id = NULL").
		Set("expires_at = ?", expiresAt).
		Set("created_at = ?", now).
		Set("refund_id = NULL").
		Set("refund_amount = NULL").
		Set("refund_reason = NULL").
		Set("refunded_at = NULL").
		Where("event_id = ?", eventID).
		Where("seat_id = ?", seatID).
		Where("(status = ? AND (session_id = ? OR expires_at <= ?)) OR status = ?",
			models.StatusHeld, sessionID, now, models.StatusRefunded).
		Exec(context.Background())
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected == 1, nil
}

// ReleaseSeats deletes held records owned by the session and returns
// the seat ids it actually freed. Foreign, confirmed, or missing records
// are untouched; releasing them is a no-op, never an error. An empty
// seat list releases everything the session holds for the event.
func (d *DB) ReleaseSeats(eventID, sessionID string, seatIDs []string) ([]string, error) {
	q := d.Bun.NewSelect().
		Model((*models.BookingRecord)(nil)).
		Column("seat_id").
		Where("event_id = ?", eventID).
		Where("session_id = ?", sessionID).
		Where("status = ?", models.StatusHeld)
	if len(seatIDs) > 0 {
		q = q.Where("seat_id IN (?)", bun.In(seatIDs))
	}
	var owned []string
	if err := q.Scan(context.Background(), &owned); err != nil {
		return nil, err
	}

	// Each delete re-checks ownership, so a seat re-claimed between the
	// snapshot and the delete stays with its new owner.
	released := make([]string, 0, len(owned))
	for _, seatID := range owned {
		res, err := d.Bun.NewDelete().
			Model((*models.BookingRecord)(nil)).
			Where("event_id = ?", eventID).
			Where("seat_id = ?", seatID).
			Where("session_id = ?", sessionID).
			Where("status = ?", models.StatusHeld).
			Exec(context.Background())
		if err != nil {
			return released, err
		}
		if affected, _ := res.RowsAffected(); affected == 1 {
			released = append(released, seatID)
		}
	}
	return released, nil
}

// ReleaseExpiredSeat deletes one held record iff its TTL has elapsed.
// Used by the redis key-expiry subscriber for prompt cleanup.
func (d *DB) ReleaseExpiredSeat(eventID, seatID string, now time.Time) (bool, error) {
	res, err := d.Bun.NewDelete().
		Model((*models.BookingRecord)(nil)).
		Where("event_id = ?", eventID).
		Where("seat_id = ?", seatID).
		Where("status = ?", models.StatusHeld).
		Where("expires_at <= ?", now).
		Exec(context.Background())
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected == 1, nil
}

// ---------------- EXPIRY ----------------

// SweepExpired releases every hold whose TTL elapsed before now. The
// expiry predicate rides in the delete itself, so a hold renewed after
// the sweeper woke up keeps its row.
func (d *DB) SweepExpired(now time.Time) (int, error) {
	res, err := d.Bun.NewDelete().
		Model((*models.BookingRecord)(nil)).
		Where("status = ?", models.StatusHeld).
		Where("expires_at <= ?", now).
		Exec(context.Background())
	if err != nil {
		return 0, err
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

// SweepExpiredForEvent releases expired holds for one event and returns
// the freed seat ids. Each delete is compared against the snapshot
// expiry, so a hold re-claimed between snapshot and delete survives.
func (d *DB) SweepExpiredForEvent(eventID string, now time.Time) ([]string, error) {
	var snapshot []models.BookingRecord
	err := d.Bun.NewSelect().
		Model(&snapshot).
		Column("seat_id", "expires_at").
		Where("event_id = ?", eventID).
		Where("status = ?", models.StatusHeld).
		Where("expires_at <= ?", now).
		Scan(context.Background())
	if err != nil {
		return nil, err
	}

	freed := make([]string, 0, len(snapshot))
	for _, rec := range snapshot {
		res, err := d.Bun.NewDelete().
			Model((*models.BookingRecord)(nil)).
			Where("event_id = ?", eventID).
			Where("seat_id = ?", rec.SeatID).
			Where("status = ?", models.StatusHeld).
			Where("expires_at = ?", rec.ExpiresAt).
			Exec(context.Background())
		if err != nil {
			return freed, err
		}
		if affected, _ := res.RowsAffected(); affected == 1 {
			freed = append(freed, rec.SeatID)
		}
	}
	return freed, nil
}

// ---------------- LIFECYCLE ----------------

// ConfirmSeat drives held → confirmed for a completed purchase.
func (d *DB) ConfirmSeat(eventID, seatID, orderLineID string, now time.Time) (ConfirmOutcome, error) {
	// Live hold first.
	res, err := d.Bun.NewUpdate().
		Model((*models.BookingRecord)(nil)).
		Set("status = ?", models.StatusConfirmed).
		Set("order_line_id = ?", orderLineID).
		Set("expires_at = NULL").
		Where("event_id = ?", eventID).
		Where("seat_id = ?", seatID).
		Where("status = ?", models.StatusHeld).
		Where("expires_at > ?", now).
		Exec(context.Background())
	if err != nil {
		return ConfirmConflict, err
	}
	if affected, _ := res.RowsAffected(); affected == 1 {
		return ConfirmedLive, nil
	}

	// Expired hold: payment already succeeded, confirm anyway.
	res, err = d.Bun.NewUpdate().
		Model((*models.BookingRecord)(nil)).
		Set("status = ?", models.StatusConfirmed).
		Set("order_line_id = ?", orderLineID).
		Set("expires_at = NULL").
		Where("event_id = ?", eventID).
		Where("seat_id = ?", seatID).
		Where("status = ?", models.StatusHeld).
		Exec(context.Background())
	if err != nil {
		return ConfirmConflict, err
	}
	if affected, _ := res.RowsAffected(); affected == 1 {
		return ConfirmedExpiredHold, nil
	}

	// No hold at all: write the confirmed record directly.
	record := models.BookingRecord{
		EventID:     eventID,
		SeatID:      seatID,
		Status:      models.StatusConfirmed,
		OrderLineID: orderLineID,
		CreatedAt:   now,
	}
	res, err = d.Bun.NewInsert().
		Model(&record).
		On("CONFLICT DO NOTHING").
		Exec(context.Background())
	if err != nil {
		return ConfirmConflict, err
	}
	if affected, _ := res.RowsAffected(); affected == 1 {
		return ConfirmedInserted, nil
	}

	// Slot occupied by a non-held record: decide idempotency.
	existing, err := d.GetRecord(eventID, seatID)
	if err != nil {
		return ConfirmConflict, err
	}
	if existing == nil {
		// Released between our attempts; retry delivery will land it.
		return ConfirmNoop, nil
	}
	if existing.OrderLineID == orderLineID {
		return ConfirmNoop, nil
	}
	if existing.Status == models.StatusRefunded {
		// Freed slot with stale refund row: take it over for this line.
		res, err = d.Bun.NewUpdate().
			Model((*models.BookingRecord)(nil)).
			Set("status = ?", models.StatusConfirmed).
			Set("order_line_id = ?", orderLineID).
			Set("session_id = NULL").
			Set("expires_at = NULL").
			Set("created_at = ?", now).
			Set("refund_id = NULL").
			Set("refund_amount = NULL").
			Set("refund_reason = NULL").
			Set("refunded_at = NULL").
			Where("event_id = ?", eventID).
			Where("seat_id = ?", seatID).
			Where("status = ?", models.StatusRefunded).
			Exec(context.Background())
		if err != nil {
			return ConfirmConflict, err
		}
		if affected, _ := res.RowsAffected(); affected == 1 {
			return ConfirmedInserted, nil
		}
	}
	return ConfirmConflict, nil
}

// ApplyRefund records a seat-level refund against the owning order line.
// fullyCovers decides whether the seat leaves inventory lock entirely
// (refunded) or stays unavailable (partially_refunded). Refund metadata
// is only ever written together with the refund status.
func (d *DB) ApplyRefund(eventID, seatID, orderLineID, refundID string, amount float64, reason string, fullyCovers bool, now time.Time) (RefundOutcome, error) {
	status := models.StatusPartiallyRefunded
	if fullyCovers {
		status = models.StatusRefunded
	}
	res, err := d.Bun.NewUpdate().
		Model((*models.BookingRecord)(nil)).
		Set("status = ?", status).
		Set("refund_id = ?", refundID).
		Set("refund_amount = ?", amount).
		Set("refund_reason = ?", reason).
		Set("refunded_at = ?", now).
		Where("event_id = ?", eventID).
		Where("seat_id = ?", seatID).
		Where("order_line_id = ?", orderLineID).
		Where("status IN (?)", bun.In([]models.BookingStatus{models.StatusConfirmed, models.StatusPartiallyRefunded})).
		Exec(context.Background())
	if err != nil {
		return RefundNoop, err
	}
	if affected, _ := res.RowsAffected(); affected == 1 {
		return RefundApplied, nil
	}
	return RefundNoop, nil
}

// GetRecord → fetch the booking record for a seat, nil when absent
func (d *DB) GetRecord(eventID, seatID string) (*models.BookingRecord, error) {
	var record models.BookingRecord
	err := d.Bun.NewSelect().
		Model(&record).
		Where("event_id = ?", eventID).
		Where("seat_id = ?", seatID).
		Limit(1).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// GetRecordsByOrderLine → all booking records linked to an order line
func (d *DB) GetRecordsByOrderLine(eventID, orderLineID string) ([]models.BookingRecord, error) {
	var records []models.BookingRecord
	err := d.Bun.NewSelect().
		Model(&records).
		Where("event_id = ?", eventID).
		Where("order_line_id = ?", orderLineID).
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ---------------- AVAILABILITY ----------------

// UnavailableSeats returns every seat the requesting session cannot
// select: other sessions' live holds, confirmed and partially refunded
// bookings, and administrative blocks. The session's own holds are
// excluded so shoppers can always deselect their picks.
func (d *DB) UnavailableSeats(eventID, sessionID string, now time.Time) ([]string, error) {
	var claimed []string
	err := d.Bun.NewSelect().
		Model((*models.BookingRecord)(nil)).
		Column("seat_id").
		Where("event_id = ?", eventID).
		Where("status IN (?) OR (status = ? AND session_id != ? AND expires_at > ?)",
			bun.In([]models.BookingStatus{models.StatusConfirmed, models.StatusPartiallyRefunded}),
			models.StatusHeld, sessionID, now).
		Scan(context.Background(), &claimed)
	if err != nil {
		return nil, err
	}

	blocked, err := d.BlockedSeats(eventID)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{}, len(claimed)+len(blocked))
	for _, id := range claimed {
		set[id] = struct{}{}
	}
	for _, id := range blocked {
		set[id] = struct{}{}
	}
	merged := make([]string, 0, len(set))
	for id := range set {
		merged = append(merged, id)
	}
	sort.Strings(merged)
	return merged, nil
}

// SessionClaims reconstructs the session's current claim set from the
// ledger: live holds plus confirmed seats the session placed.
func (d *DB) SessionClaims(eventID, sessionID string, now time.Time) ([]models.BookingRecord, error) {
	var records []models.BookingRecord
	err := d.Bun.NewSelect().
		Model(&records).
		Where("event_id = ?", eventID).
		Where("session_id = ?", sessionID).
		Where("status IN (?) OR (status = ? AND expires_at > ?)",
			bun.In([]models.BookingStatus{models.StatusConfirmed, models.StatusPartiallyRefunded}),
			models.StatusHeld, now).
		Order("seat_id").
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ---------------- BLOCKS ----------------

// BlockSeat inserts an administrative block. Idempotent: blocking an
// already blocked seat reports false with no error.
func (d *DB) BlockSeat(eventID, seatID, reason, createdBy string, now time.Time) (bool, error) {
	block := models.SeatBlock{
		EventID:   eventID,
		SeatID:    seatID,
		Reason:    reason,
		CreatedBy: createdBy,
		CreatedAt: now,
	}
	res, err := d.Bun.NewInsert().
		Model(&block).
		On("CONFLICT DO NOTHING").
		Exec(context.Background())
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected == 1, nil
}

// UnblockSeat removes an administrative block. Booking records are left
// untouched: unblocking never resurrects a prior booking status.
func (d *DB) UnblockSeat(eventID, seatID string) (bool, error) {
	res, err := d.Bun.NewDelete().
		Model((*models.SeatBlock)(nil)).
		Where("event_id = ?", eventID).
		Where("seat_id = ?", seatID).
		Exec(context.Background())
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected == 1, nil
}

// BlockedSeats → all administratively blocked seat ids for an event
func (d *DB) BlockedSeats(eventID string) ([]string, error) {
	var seatIDs []string
	err := d.Bun.NewSelect().
		Model((*models.SeatBlock)(nil)).
		Column("seat_id").
		Where("event_id = ?", eventID).
		Scan(context.Background(), &seatIDs)
	if err != nil {
		return nil, err
	}
	return seatIDs, nil
}
