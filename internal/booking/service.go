package booking

import (
	"fmt"
	"time"

	"ms-seating/internal/logger"
	"ms-seating/internal/models"
)

type DBLayer interface {
	ClaimSeat(eventID, seatID, sessionID string, now, expiresAt time.Time) (bool, error)
	ReleaseSeats(eventID, sessionID string, seatIDs []string) ([]string, error)
	ReleaseExpiredSeat(eventID, seatID string, now time.Time) (bool, error)
	SweepExpired(now time.Time) (int, error)
	SweepExpiredForEvent(eventID string, now time.Time) ([]string, error)
	UnavailableSeats(eventID, sessionID string, now time.Time) ([]string, error)
	SessionClaims(eventID, sessionID string, now time.Time) ([]models.BookingRecord, error)
	GetRecord(eventID, seatID string) (*models.BookingRecord, error)
	BlockedSeats(eventID string) ([]string, error)
	BlockSeat(eventID, seatID, reason, createdBy string, now time.Time) (bool, error)
	UnblockSeat(eventID, seatID string) (bool, error)
}

type RegistryLayer interface {
	SeatExists(eventID, seatID string) (bool, error)
}

type RedisLock interface {
	LockSeat(eventID, seatID, sessionID string) (bool, error)
	UnlockSeat(eventID, seatID, sessionID string) error
	ClearSeat(eventID, seatID string) error
}

type KafkaPublisher interface {
	PublishSeatStatus(topic string, event models.SeatStatusChangeEvent) error
}

// Service is the hold manager and availability resolver. All cross-
// session coordination happens through the ledger's conditional writes;
// the redis gate only short-circuits the common contended case.
type Service struct {
	DB          DBLayer
	Registry    RegistryLayer
	Redis       RedisLock
	Kafka       KafkaPublisher
	Logger      *logger.Logger
	HoldTTL     time.Duration
	StatusTopic string

	now func() time.Time
}

func NewService(db DBLayer, registry RegistryLayer, redis RedisLock, kafka KafkaPublisher, log *logger.Logger, holdTTL time.Duration, statusTopic string) *Service {
	return &Service{
		DB:          db,
		Registry:    registry,
		Redis:       redis,
		Kafka:       kafka,
		Logger:      log,
		HoldTTL:     holdTTL,
		StatusTopic: statusTopic,
		now:         time.Now,
	}
}

// Claim attempts to hold the requested seats for the session. Partial
// success by design: each seat is accepted or rejected on its own, and a
// rejection never aborts its siblings. A seat already held by the same
// session is re-accepted with a fresh TTL.
func (s *Service) Claim(eventID, sessionID string, seatIDs []string) (accepted, rejected []string, err error) {
	now := s.now()
	expiresAt := now.Add(s.HoldTTL)

	blocked, err := s.DB.BlockedSeats(eventID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load blocks for event %s: %w", eventID, err)
	}
	blockedSet := make(map[string]struct{}, len(blocked))
	for _, id := range blocked {
		blockedSet[id] = struct{}{}
	}

	accepted = make([]string, 0, len(seatIDs))
	rejected = make([]string, 0)
	seen := make(map[string]struct{}, len(seatIDs))

	for _, seatID := range seatIDs {
		if _, dup := seen[seatID]; dup {
			continue
		}
		seen[seatID] = struct{}{}

		exists, err := s.Registry.SeatExists(eventID, seatID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to check seat %s: %w", seatID, err)
		}
		if !exists {
			s.Logger.LogSeat("CLAIM", eventID, seatID, "rejected: unknown seat")
			rejected = append(rejected, seatID)
			continue
		}
		if _, isBlocked := blockedSet[seatID]; isBlocked {
			s.Logger.LogSeat("CLAIM", eventID, seatID, "rejected: seat is blocked")
			rejected = append(rejected, seatID)
			continue
		}

		locked, err := s.Redis.LockSeat(eventID, seatID, sessionID)
		if err != nil {
			return nil, nil, fmt.Errorf("redis lock error for seat %s: %w", seatID, err)
		}
		if !locked {
			s.Logger.LogSeat("CLAIM", eventID, seatID, "rejected: locked by another session")
			rejected = append(rejected, seatID)
			continue
		}

		claimed, err := s.DB.ClaimSeat(eventID, seatID, sessionID, now, expiresAt)
		if err != nil {
			// Fail closed: a claim never succeeds without a durable write.
			_ = s.Redis.UnlockSeat(eventID, seatID, sessionID)
			return nil, nil, fmt.Errorf("failed to claim seat %s: %w", seatID, err)
		}
		if !claimed {
			// Ledger says taken (confirmed or freshly held elsewhere);
			// roll the gate back so the true owner is not shadowed.
			_ = s.Redis.UnlockSeat(eventID, seatID, sessionID)
			s.Logger.LogSeat("CLAIM", eventID, seatID, "rejected: live claim exists")
			rejected = append(rejected, seatID)
			continue
		}

		s.Logger.LogSeat("CLAIM", eventID, seatID, fmt.Sprintf("held by session %s until %s", sessionID, expiresAt.UTC().Format(time.RFC3339)))
		accepted = append(accepted, seatID)
	}

	if len(accepted) > 0 {
		s.publishStatus(eventID, sessionID, accepted, models.SeatStatusHeld)
	}
	return accepted, rejected, nil
}

// Release drops holds owned by the session. Foreign, expired, or missing
// holds are silently skipped - releasing a seat you never held is
// success. An empty seat list releases everything the session holds for
// the event.
func (s *Service) Release(eventID, sessionID string, seatIDs []string) (int, error) {
	released, err := s.DB.ReleaseSeats(eventID, sessionID, seatIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to release seats: %w", err)
	}

	// Only seats the ledger actually freed leave the gate and get
	// announced; a foreign or confirmed seat in the request stays taken.
	for _, seatID := range released {
		if err := s.Redis.UnlockSeat(eventID, seatID, sessionID); err != nil {
			s.Logger.Error("SEAT", fmt.Sprintf("failed to unlock seat %s/%s in redis: %v", eventID, seatID, err))
		}
	}

	if len(released) > 0 {
		s.Logger.LogSeat("RELEASE", eventID, fmt.Sprintf("%d seats", len(released)), "released by session "+sessionID)
		s.publishStatus(eventID, sessionID, released, models.SeatStatusAvailable)
	}
	return len(released), nil
}

// Unavailable computes the seats the requesting session cannot select.
// Stale holds for the event are lazily expired first, so staleness stays
// bounded even between sweeper runs. Over-reporting unavailability is
// tolerated; reporting a taken seat as free is not.
func (s *Service) Unavailable(eventID, sessionID string) ([]string, error) {
	now := s.now()

	freed, err := s.DB.SweepExpiredForEvent(eventID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to expire stale holds: %w", err)
	}
	if len(freed) > 0 {
		s.Logger.LogSweep(len(freed), "lazy expiry on availability read for event "+eventID)
		s.publishStatus(eventID, "", freed, models.SeatStatusAvailable)
	}

	unavailable, err := s.DB.UnavailableSeats(eventID, sessionID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve availability: %w", err)
	}
	return unavailable, nil
}

// SessionClaims reconstructs the seats the session currently holds or
// has confirmed, straight from the ledger.
func (s *Service) SessionClaims(eventID, sessionID string) ([]models.BookingRecord, error) {
	return s.DB.SessionClaims(eventID, sessionID, s.now())
}

// Record exposes a single booking record (voucher and price endpoints).
func (s *Service) Record(eventID, seatID string) (*models.BookingRecord, error) {
	return s.DB.GetRecord(eventID, seatID)
}

// Sweep releases every expired hold across all events. Invoked by the
// periodic sweeper.
func (s *Service) Sweep(now time.Time) (int, error) {
	released, err := s.DB.SweepExpired(now)
	if err != nil {
		return 0, fmt.Errorf("sweep failed: %w", err)
	}
	return released, nil
}

// Block places administrative blocks on seats. No TTL; idempotent per
// seat. Booking records are left alone - a block coexisting with a hold
// keeps the seat unavailable to everyone through the availability union.
func (s *Service) Block(eventID string, seatIDs []string, reason, actor string) (int, error) {
	now := s.now()
	blockedCount := 0
	blockedSeats := make([]string, 0, len(seatIDs))

	for _, seatID := range seatIDs {
		exists, err := s.Registry.SeatExists(eventID, seatID)
		if err != nil {
			return blockedCount, fmt.Errorf("failed to check seat %s: %w", seatID, err)
		}
		if !exists {
			s.Logger.LogSeat("BLOCK", eventID, seatID, "skipped: unknown seat")
			continue
		}
		created, err := s.DB.BlockSeat(eventID, seatID, reason, actor, now)
		if err != nil {
			return blockedCount, fmt.Errorf("failed to block seat %s: %w", seatID, err)
		}
		if created {
			blockedCount++
			blockedSeats = append(blockedSeats, seatID)
			s.Logger.LogSeat("BLOCK", eventID, seatID, fmt.Sprintf("blocked by %s: %s", actor, reason))
		}
	}

	if len(blockedSeats) > 0 {
		s.publishStatus(eventID, "", blockedSeats, models.SeatStatusBlocked)
	}
	return blockedCount, nil
}

// Unblock lifts administrative blocks. Never resurrects booking status:
// a seat only reads available again if no live claim remains.
func (s *Service) Unblock(eventID string, seatIDs []string) (int, error) {
	now := s.now()
	unblockedCount := 0
	freed := make([]string, 0, len(seatIDs))

	for _, seatID := range seatIDs {
		removed, err := s.DB.UnblockSeat(eventID, seatID)
		if err != nil {
			return unblockedCount, fmt.Errorf("failed to unblock seat %s: %w", seatID, err)
		}
		if !removed {
			continue
		}
		unblockedCount++
		s.Logger.LogSeat("UNBLOCK", eventID, seatID, "block removed")

		record, err := s.DB.GetRecord(eventID, seatID)
		if err != nil {
			s.Logger.Error("SEAT", fmt.Sprintf("failed to read record for %s/%s after unblock: %v", eventID, seatID, err))
			continue
		}
		if record == nil || !record.Live(now) {
			freed = append(freed, seatID)
		}
	}

	if len(freed) > 0 {
		s.publishStatus(eventID, "", freed, models.SeatStatusAvailable)
	}
	return unblockedCount, nil
}

// ReleaseExpiredFromNotification handles a redis key-expiry event: the
// hold key TTLed out, so drop the matching ledger row if it is really
// expired and tell the seat map.
func (s *Service) ReleaseExpiredFromNotification(eventID, seatID string) {
	released, err := s.DB.ReleaseExpiredSeat(eventID, seatID, s.now())
	if err != nil {
		s.Logger.Error("SEAT_EXPIRY", fmt.Sprintf("failed to release %s/%s: %v", eventID, seatID, err))
		return
	}
	if !released {
		// Renewed or already confirmed; the conditional delete saw a
		// live row and left it alone.
		return
	}
	s.Logger.LogSeat("EXPIRE", eventID, seatID, "hold expired via redis notification")
	s.publishStatus(eventID, "", []string{seatID}, models.SeatStatusAvailable)
}

func (s *Service) publishStatus(eventID, sessionID string, seatIDs []string, status string) {
	if s.Kafka == nil {
		return
	}
	event := models.SeatStatusChangeEvent{
		EventID:   eventID,
		SessionID: sessionID,
		SeatIDs:   seatIDs,
		Status:    status,
	}
	if err := s.Kafka.PublishSeatStatus(s.StatusTopic, event); err != nil {
		s.Logger.Error("KAFKA", fmt.Sprintf("failed to publish seat status for event %s: %v", eventID, err))
	}
}
