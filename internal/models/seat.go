package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID              string    `bun:"id,pk" json:"id"`
	Name            string    `bun:"name,notnull" json:"name"`
	PricingConfigID string    `bun:"pricing_config_id,notnull" json:"pricing_config_id"`
	CreatedAt       time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// Seat is static reference data. Seats are never deleted, only
// deactivated via Active.
type Seat struct {
	bun.BaseModel `bun:"table:seats"`

	ID         string    `bun:"id,pk" json:"id"`
	EventID    string    `bun:"event_id,notnull" json:"event_id"`
	Section    string    `bun:"section,notnull" json:"section"`
	RowLabel   string    `bun:"row_label,notnull" json:"row_label"`
	SeatNumber int       `bun:"seat_number,notnull" json:"seat_number"`
	Active     bool      `bun:"active,notnull,default:true" json:"active"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}

// PricingAssignment maps a seat to a tier label under a pricing
// configuration. Written by admin pricing setup, read-only at
// reservation time.
type PricingAssignment struct {
	bun.BaseModel `bun:"table:pricing_assignments"`

	SeatID          string `bun:"seat_id,pk" json:"seat_id"`
	PricingConfigID string `bun:"pricing_config_id,pk" json:"pricing_config_id"`
	Tier            string `bun:"tier,notnull" json:"tier"`
}

// PricePoint is the price for one tier on one event.
type PricePoint struct {
	bun.BaseModel `bun:"table:price_points"`

	EventID string  `bun:"event_id,pk" json:"event_id"`
	Tier    string  `bun:"tier,pk" json:"tier"`
	Price   float64 `bun:"price,notnull" json:"price"`
}

// SeatQuote carries the tier and price resolved for a single seat.
// Pricing is always resolved seat by seat; a multi-tier selection never
// collapses to one tier.
type SeatQuote struct {
	SeatID string  `json:"seat_id"`
	Tier   string  `json:"tier"`
	Price  float64 `json:"price"`
}
