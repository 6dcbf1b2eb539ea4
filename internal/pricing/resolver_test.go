package pricing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-seating/internal/logger"
	"ms-seating/internal/models"
)

type mockRegistry struct {
	event        *models.Event
	tiers        map[string]string // seatID → tier
	points       []models.PricePoint
	shouldFailOn string
}

func (m *mockRegistry) GetEvent(id string) (*models.Event, error) {
	if m.shouldFailOn == "GetEvent" {
		return nil, errors.New("store unavailable")
	}
	return m.event, nil
}

func (m *mockRegistry) TierFor(seatID, pricingConfigID string) (string, error) {
	if m.shouldFailOn == "TierFor" {
		return "", errors.New("store unavailable")
	}
	tier, ok := m.tiers[seatID]
	if !ok {
		return "", errors.New("seat not found for event")
	}
	return tier, nil
}

func (m *mockRegistry) PricePoints(eventID string) ([]models.PricePoint, error) {
	if m.shouldFailOn == "PricePoints" {
		return nil, errors.New("store unavailable")
	}
	return m.points, nil
}

func newTestResolver(registry *mockRegistry) *Resolver {
	return NewResolver(registry, logger.NewLogger())
}

func defaultRegistry() *mockRegistry {
	return &mockRegistry{
		event: &models.Event{ID: "event-100", Name: "Autumn Gala", PricingConfigID: "pc-default"},
		tiers: map[string]string{
			"C4-12": "standard",
			"C4-13": "standard",
			"A1-1":  "premium",
		},
		points: []models.PricePoint{
			{EventID: "event-100", Tier: "standard", Price: 25.00},
			{EventID: "event-100", Tier: "premium", Price: 60.00},
		},
	}
}

func TestTierOf(t *testing.T) {
	r := newTestResolver(defaultRegistry())

	tier, err := r.TierOf("C4-12", "pc-default")
	require.NoError(t, err)
	assert.Equal(t, "standard", tier)

	_, err = r.TierOf("Z9-99", "pc-default")
	assert.Error(t, err)
}

func TestPriceOf(t *testing.T) {
	r := newTestResolver(defaultRegistry())

	price, err := r.PriceOf("premium", "event-100")
	require.NoError(t, err)
	assert.Equal(t, 60.00, price)

	_, err = r.PriceOf("balcony", "event-100")
	assert.True(t, errors.Is(err, ErrTierNotConfigured))
}

func TestQuoteSeats_PerSeatTiers(t *testing.T) {
	r := newTestResolver(defaultRegistry())

	// A selection spanning tiers prices every seat by its own tier.
	quotes, err := r.QuoteSeats("event-100", []string{"C4-12", "A1-1", "C4-13"})
	require.NoError(t, err)
	require.Len(t, quotes, 3)

	assert.Equal(t, models.SeatQuote{SeatID: "C4-12", Tier: "standard", Price: 25.00}, quotes[0])
	assert.Equal(t, models.SeatQuote{SeatID: "A1-1", Tier: "premium", Price: 60.00}, quotes[1])
	assert.Equal(t, models.SeatQuote{SeatID: "C4-13", Tier: "standard", Price: 25.00}, quotes[2])
}

func TestQuoteSeats_MissingPricePoint(t *testing.T) {
	registry := defaultRegistry()
	registry.tiers["B2-1"] = "balcony" // tier with no price point
	r := newTestResolver(registry)

	_, err := r.QuoteSeats("event-100", []string{"C4-12", "B2-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTierNotConfigured), "missing price points are surfaced, never defaulted")
}

func TestQuoteSeats_UnknownSeat(t *testing.T) {
	r := newTestResolver(defaultRegistry())

	_, err := r.QuoteSeats("event-100", []string{"Z9-99"})
	assert.Error(t, err)
}

func TestQuoteSeats_RegistryError(t *testing.T) {
	registry := defaultRegistry()
	registry.shouldFailOn = "PricePoints"
	r := newTestResolver(registry)

	_, err := r.QuoteSeats("event-100", []string{"C4-12"})
	assert.Error(t, err)
}
