package pricing

import (
	"errors"
	"fmt"

	"ms-seating/internal/logger"
	"ms-seating/internal/models"
)

// ErrTierNotConfigured means a seat's tier has no price point on the
// event. That is an operator configuration error, never silently
// defaulted.
var ErrTierNotConfigured = errors.New("no price point configured for tier")

type RegistryLayer interface {
	GetEvent(id string) (*models.Event, error)
	TierFor(seatID, pricingConfigID string) (string, error)
	PricePoints(eventID string) ([]models.PricePoint, error)
}

// Resolver maps seats to tiers and tiers to prices. Pure lookups over
// read-only reference data; no shared mutable state.
type Resolver struct {
	Registry RegistryLayer
	Logger   *logger.Logger
}

func NewResolver(registry RegistryLayer, log *logger.Logger) *Resolver {
	return &Resolver{Registry: registry, Logger: log}
}

// TierOf returns the tier label assigned to a seat under a pricing
// configuration.
func (r *Resolver) TierOf(seatID, pricingConfigID string) (string, error) {
	tier, err := r.Registry.TierFor(seatID, pricingConfigID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve tier for seat %s: %w", seatID, err)
	}
	return tier, nil
}

// PriceOf returns the price configured for a tier on an event.
func (r *Resolver) PriceOf(tier, eventID string) (float64, error) {
	points, err := r.Registry.PricePoints(eventID)
	if err != nil {
		return 0, fmt.Errorf("failed to load price points for event %s: %w", eventID, err)
	}
	for _, p := range points {
		if p.Tier == tier {
			return p.Price, nil
		}
	}
	r.Logger.Error("PRICING", fmt.Sprintf("tier %q has no price point on event %s", tier, eventID))
	return 0, fmt.Errorf("tier %q on event %s: %w", tier, eventID, ErrTierNotConfigured)
}

// QuoteSeats resolves tier and price for every requested seat
// individually. A selection spanning multiple tiers yields one quote per
// seat; the first seat's tier is never applied to the rest.
func (r *Resolver) QuoteSeats(eventID string, seatIDs []string) ([]models.SeatQuote, error) {
	event, err := r.Registry.GetEvent(eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load event %s: %w", eventID, err)
	}

	points, err := r.Registry.PricePoints(eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load price points for event %s: %w", eventID, err)
	}
	priceByTier := make(map[string]float64, len(points))
	for _, p := range points {
		priceByTier[p.Tier] = p.Price
	}

	quotes := make([]models.SeatQuote, 0, len(seatIDs))
	for _, seatID := range seatIDs {
		tier, err := r.Registry.TierFor(seatID, event.PricingConfigID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve tier for seat %s: %w", seatID, err)
		}
		price, ok := priceByTier[tier]
		if !ok {
			r.Logger.Error("PRICING", fmt.Sprintf("tier %q has no price point on event %s (seat %s)", tier, eventID, seatID))
			return nil, fmt.Errorf("tier %q on event %s: %w", tier, eventID, ErrTierNotConfigured)
		}
		quotes = append(quotes, models.SeatQuote{SeatID: seatID, Tier: tier, Price: price})
	}
	return quotes, nil
}
