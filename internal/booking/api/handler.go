package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-seating/internal/auth"
	"ms-seating/internal/booking"
	"ms-seating/internal/booking/voucher"
	"ms-seating/internal/lifecycle"
	"ms-seating/internal/logger"
	"ms-seating/internal/models"
	"ms-seating/internal/pricing"
	"ms-seating/internal/utils"
)

type Handler struct {
	Booking   *booking.Service
	Lifecycle *lifecycle.Handler
	Pricing   *pricing.Resolver
	Voucher   *voucher.Generator
	Logger    *logger.Logger
}

func NewHandler(bookingService *booking.Service, lifecycleHandler *lifecycle.Handler, priceResolver *pricing.Resolver, voucherGen *voucher.Generator, log *logger.Logger) *Handler {
	return &Handler{
		Booking:   bookingService,
		Lifecycle: lifecycleHandler,
		Pricing:   priceResolver,
		Voucher:   voucherGen,
		Logger:    log,
	}
}

// Routes mounts the seating API under /events.
func (h *Handler) Routes(r chi.Router, adminMiddleware func(http.Handler) http.Handler) {
	r.Route("/events/{eventID}", func(r chi.Router) {
		r.Get("/availability", h.GetAvailability)
		r.Post("/holds", h.PostHold)
		r.Post("/release", h.PostRelease)
		r.Post("/confirm", h.PostConfirm)
		r.Post("/refund", h.PostRefund)
		r.Get("/seats/{seatID}/price", h.GetSeatPrice)
		r.Get("/seats/{seatID}/voucher", h.GetVoucher)
		r.Get("/sessions/{sessionID}/claims", h.GetSessionClaims)

		r.Group(func(r chi.Router) {
			if adminMiddleware != nil {
				r.Use(adminMiddleware)
			}
			r.Post("/blocks", h.PostBlock)
			r.Delete("/blocks", h.DeleteBlock)
		})
	})
}

func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	sessionID := r.URL.Query().Get("session_id")
	h.Logger.Info("API", fmt.Sprintf("GetAvailability: eventId=%s sessionId=%s", eventID, sessionID))

	unavailable, err := h.Booking.Unavailable(eventID, sessionID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetAvailability: %v", err))
		writeError(w, http.StatusServiceUnavailable, "Could not resolve availability", "")
		return
	}

	writeJSON(w, http.StatusOK, models.AvailabilityResponse{
		EventID:            eventID,
		UnavailableSeatIDs: unavailable,
	})
}

func (h *Handler) PostHold(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	var req models.HoldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if req.SessionID == "" || len(req.SeatIDs) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid request", "session_id and seat_ids are required")
		return
	}
	h.Logger.Info("API", fmt.Sprintf("PostHold: eventId=%s sessionId=%s seats=%v", eventID, req.SessionID, req.SeatIDs))

	accepted, rejected, err := h.Booking.Claim(eventID, req.SessionID, req.SeatIDs)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("PostHold: %v", err))
		// Fail closed: no hold without a durable write.
		writeError(w, http.StatusServiceUnavailable, "Seats are not available right now, please retry", "")
		return
	}

	writeJSON(w, http.StatusOK, models.HoldResponse{
		AcceptedSeatIDs: accepted,
		RejectedSeatIDs: rejected,
	})
}

func (h *Handler) PostRelease(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	var req models.ReleaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "Invalid request", "session_id is required")
		return
	}
	h.Logger.Info("API", fmt.Sprintf("PostRelease: eventId=%s sessionId=%s seats=%v", eventID, req.SessionID, req.SeatIDs))

	released, err := h.Booking.Release(eventID, req.SessionID, req.SeatIDs)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("PostRelease: %v", err))
		writeError(w, http.StatusServiceUnavailable, "Could not release seats", "")
		return
	}

	writeJSON(w, http.StatusOK, models.ReleaseResponse{ReleasedCount: released})
}

func (h *Handler) PostConfirm(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	var req models.ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if req.OrderLineID == "" || len(req.SeatIDs) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid request", "order_line_id and seat_ids are required")
		return
	}
	h.Logger.Info("API", fmt.Sprintf("PostConfirm: eventId=%s orderLine=%s seats=%v", eventID, req.OrderLineID, req.SeatIDs))

	err := h.Lifecycle.OnPurchaseCompleted(models.PurchaseCompleted{
		OrderLineID: req.OrderLineID,
		EventID:     eventID,
		SeatIDs:     req.SeatIDs,
	})
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("PostConfirm: %v", err))
		writeError(w, http.StatusServiceUnavailable, "Could not confirm seats", "")
		return
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("seats confirmed", nil))
}

func (h *Handler) PostRefund(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	var req models.RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if req.OrderLineID == "" || len(req.SeatRefunds) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid request", "order_line_id and seat_refunds are required")
		return
	}
	h.Logger.Info("API", fmt.Sprintf("PostRefund: eventId=%s orderLine=%s refunds=%d", eventID, req.OrderLineID, len(req.SeatRefunds)))

	err := h.Lifecycle.OnRefund(models.RefundIssued{
		RefundID:    req.RefundID,
		OrderLineID: req.OrderLineID,
		EventID:     eventID,
		SeatRefunds: req.SeatRefunds,
	})
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("PostRefund: %v", err))
		writeError(w, http.StatusServiceUnavailable, "Could not apply refund", "")
		return
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("refund applied", nil))
}

func (h *Handler) GetSeatPrice(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	seatID := chi.URLParam(r, "seatID")
	h.Logger.Info("API", fmt.Sprintf("GetSeatPrice: eventId=%s seatId=%s", eventID, seatID))

	quotes, err := h.Pricing.QuoteSeats(eventID, []string{seatID})
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetSeatPrice: %v", err))
		writeError(w, http.StatusNotFound, "Could not resolve seat price", "")
		return
	}

	writeJSON(w, http.StatusOK, quotes[0])
}

func (h *Handler) GetSessionClaims(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	sessionID := chi.URLParam(r, "sessionID")

	claims, err := h.Booking.SessionClaims(eventID, sessionID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetSessionClaims: %v", err))
		writeError(w, http.StatusServiceUnavailable, "Could not load session claims", "")
		return
	}
	if claims == nil {
		claims = []models.BookingRecord{}
	}

	writeJSON(w, http.StatusOK, claims)
}

func (h *Handler) GetVoucher(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	seatID := chi.URLParam(r, "seatID")

	record, err := h.Booking.Record(eventID, seatID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetVoucher: %v", err))
		writeError(w, http.StatusServiceUnavailable, "Could not load seat claim", "")
		return
	}
	if record == nil || (record.Status != models.StatusConfirmed && record.Status != models.StatusPartiallyRefunded) {
		writeError(w, http.StatusNotFound, "No confirmed claim for this seat", "")
		return
	}

	png, err := h.Voucher.GenerateQR(voucher.Claim{
		EventID:     eventID,
		SeatID:      seatID,
		OrderLineID: record.OrderLineID,
		IssuedAt:    record.CreatedAt,
	})
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetVoucher: failed to generate QR: %v", err))
		writeError(w, http.StatusInternalServerError, "Could not generate voucher", "")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetVoucher: failed to write response: %v", err))
	}
}

func (h *Handler) PostBlock(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	var req models.BlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if len(req.SeatIDs) == 0 || req.Reason == "" {
		writeError(w, http.StatusBadRequest, "Invalid request", "seat_ids and reason are required")
		return
	}

	actor := auth.Subject(r.Context())
	if actor == "" {
		// No verified subject (middleware disabled in dev); best-effort
		// attribution from the raw token.
		if token, err := auth.ExtractTokenFromRequest(r); err == nil {
			actor, _ = auth.ExtractSubjectFromJWT(token)
		}
	}
	h.Logger.Info("API", fmt.Sprintf("PostBlock: eventId=%s seats=%v actor=%s", eventID, req.SeatIDs, actor))

	blocked, err := h.Booking.Block(eventID, req.SeatIDs, req.Reason, actor)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("PostBlock: %v", err))
		writeError(w, http.StatusServiceUnavailable, "Could not block seats", "")
		return
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse(fmt.Sprintf("%d seats blocked", blocked), nil))
}

func (h *Handler) DeleteBlock(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	var req models.BlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if len(req.SeatIDs) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid request", "seat_ids are required")
		return
	}
	h.Logger.Info("API", fmt.Sprintf("DeleteBlock: eventId=%s seats=%v", eventID, req.SeatIDs))

	unblocked, err := h.Booking.Unblock(eventID, req.SeatIDs)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("DeleteBlock: %v", err))
		writeError(w, http.StatusServiceUnavailable, "Could not unblock seats", "")
		return
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse(fmt.Sprintf("%d seats unblocked", unblocked), nil))
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	writeJSON(w, status, utils.ErrorResponse(message, detail))
}
