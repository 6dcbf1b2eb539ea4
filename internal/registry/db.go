package registry

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"ms-seating/internal/models"
)

// ErrSeatUnknown is returned when a seat id does not exist (or is
// deactivated) for the requested event.
var ErrSeatUnknown = errors.New("seat not found for event")

// DB is the seat registry: static seat identity and pricing reference
// data. Read-only at reservation time.
type DB struct {
	Bun *bun.DB
}

// GetEvent → fetch one event by its ID
func (d *DB) GetEvent(id string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("id = ?", id).
		Limit(1).
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// GetSeat → fetch one active seat for an event
func (d *DB) GetSeat(eventID, seatID string) (*models.Seat, error) {
	var seat models.Seat
	err := d.Bun.NewSelect().
		Model(&seat).
		Where("id = ?", seatID).
		Where("event_id = ?", eventID).
		Where("active = ?", true).
		Limit(1).
		Scan(context.Background())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSeatUnknown
	}
	if err != nil {
		return nil, err
	}
	return &seat, nil
}

// SeatExists checks whether an active seat belongs to the event.
func (d *DB) SeatExists(eventID, seatID string) (bool, error) {
	exists, err := d.Bun.NewSelect().
		Model((*models.Seat)(nil)).
		Where("id = ?", seatID).
		Where("event_id = ?", eventID).
		Where("active = ?", true).
		Exists(context.Background())
	if err != nil {
		return false, err
	}
	return exists, nil
}

// SeatsForEvent → all active seats of an event, ordered for stable seat maps
func (d *DB) SeatsForEvent(eventID string) ([]models.Seat, error) {
	var seats []models.Seat
	err := d.Bun.NewSelect().
		Model(&seats).
		Where("event_id = ?", eventID).
		Where("active = ?", true).
		Order("section", "row_label", "seat_number").
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return seats, nil
}

// DeactivateSeat removes a seat from sale without deleting the row.
func (d *DB) DeactivateSeat(eventID, seatID string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Seat)(nil)).
		Set("active = ?", false).
		Where("id = ?", seatID).
		Where("event_id = ?", eventID).
		Exec(context.Background())
	return err
}

// TierFor → tier label assigned to a seat under a pricing configuration
func (d *DB) TierFor(seatID, pricingConfigID string) (string, error) {
	var assignment models.PricingAssignment
	err := d.Bun.NewSelect().
		Model(&assignment).
		Where("seat_id = ?", seatID).
		Where("pricing_config_id = ?", pricingConfigID).
		Limit(1).
		Scan(context.Background())
	if err != nil {
		return "", err
	}
	return assignment.Tier, nil
}

// PricePoints → the configured tier prices for an event
func (d *DB) PricePoints(eventID string) ([]models.PricePoint, error) {
	var points []models.PricePoint
	err := d.Bun.NewSelect().
		Model(&points).
		Where("event_id = ?", eventID).
		Scan(context.Background())
	if err != nil {
		return nil, err
	}
	return points, nil
}
