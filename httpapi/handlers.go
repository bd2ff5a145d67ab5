package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/campuslink/verify"
)

// VerifyHandler handles code issuance, confirmation, and the availability probe.
type VerifyHandler struct {
	engine *verify.Engine
}

func NewVerifyHandler(engine *verify.Engine) *VerifyHandler {
	return &VerifyHandler{engine: engine}
}

type sendRequest struct {
	Identity string `json:"identity" validate:"required,email"`
	Purpose  string `json:"purpose" validate:"required,oneof=registration recovery email_change"`
}

type confirmRequest struct {
	Identity string `json:"identity" validate:"required,email"`
	Purpose  string `json:"purpose" validate:"required,oneof=registration recovery email_change"`
	Code     string `json:"code" validate:"required,numeric,min=4,max=10"`
}

// Send handles POST /verify/send for the public registration and recovery flows.
func (h *VerifyHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeReason(w, http.StatusBadRequest, ReasonBadRequest)
		return
	}
	if err := validateStruct(req); err != nil {
		writeReason(w, http.StatusUnprocessableEntity, ReasonInvalidIdentity)
		return
	}

	purpose, err := verify.ParsePurpose(req.Purpose)
	if err != nil {
		writeReason(w, http.StatusBadRequest, ReasonBadRequest)
		return
	}
	if purpose == verify.PurposeEmailChange {
		// Email change rides the authenticated routes.
		writeReason(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	h.issue(w, r, req.Identity, purpose)
}

// SendEmailChange handles POST /email-change/send behind bearer auth.
func (h *VerifyHandler) SendEmailChange(w http.ResponseWriter, r *http.Request) {
	if _, ok := AuthenticatedUser(r.Context()); !ok {
		writeReason(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Identity string `json:"identity" validate:"required,email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeReason(w, http.StatusBadRequest, ReasonBadRequest)
		return
	}
	if err := validateStruct(req); err != nil {
		writeReason(w, http.StatusUnprocessableEntity, ReasonInvalidIdentity)
		return
	}

	h.issue(w, r, req.Identity, verify.PurposeEmailChange)
}

func (h *VerifyHandler) issue(w http.ResponseWriter, r *http.Request, identity string, purpose verify.Purpose) {
	_, err := h.engine.Issue(r.Context(), identity, purpose)
	if err != nil {
		var rle *verify.RateLimitError
		switch {
		case errors.As(err, &rle):
			writeJSON(w, http.StatusUnprocessableEntity, ResultEnvelope{
				OK:                false,
				Reason:            ReasonLocked,
				RetryAfterSeconds: rle.RetryAfterSeconds(),
			})
		case errors.Is(err, verify.ErrIdentityInvalid), errors.Is(err, verify.ErrPurposeInvalid):
			writeReason(w, http.StatusUnprocessableEntity, ReasonInvalidIdentity)
		case errors.Is(err, verify.ErrDeliveryFailed):
			writeReason(w, http.StatusUnprocessableEntity, ReasonDeliveryFailed)
		default:
			writeReason(w, http.StatusServiceUnavailable, ReasonUnavailable)
		}
		return
	}

	writeJSON(w, http.StatusOK, ResultEnvelope{OK: true})
}

// Confirm handles POST /verify/confirm for the public flows.
func (h *VerifyHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeReason(w, http.StatusBadRequest, ReasonBadRequest)
		return
	}
	if err := validateStruct(req); err != nil {
		// A malformed code is indistinguishable from a wrong one.
		writeReason(w, http.StatusUnprocessableEntity, ReasonInvalidOrExpired)
		return
	}

	purpose, err := verify.ParsePurpose(req.Purpose)
	if err != nil {
		writeReason(w, http.StatusBadRequest, ReasonBadRequest)
		return
	}
	if purpose == verify.PurposeEmailChange {
		writeReason(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	h.confirm(w, r, req.Identity, purpose, req.Code)
}

// ConfirmEmailChange handles POST /email-change/confirm behind bearer auth.
func (h *VerifyHandler) ConfirmEmailChange(w http.ResponseWriter, r *http.Request) {
	if _, ok := AuthenticatedUser(r.Context()); !ok {
		writeReason(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Identity string `json:"identity" validate:"required,email"`
		Code     string `json:"code" validate:"required,numeric,min=4,max=10"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeReason(w, http.StatusBadRequest, ReasonBadRequest)
		return
	}
	if err := validateStruct(req); err != nil {
		writeReason(w, http.StatusUnprocessableEntity, ReasonInvalidOrExpired)
		return
	}

	h.confirm(w, r, req.Identity, verify.PurposeEmailChange, req.Code)
}

func (h *VerifyHandler) confirm(w http.ResponseWriter, r *http.Request, identity string, purpose verify.Purpose, code string) {
	err := h.engine.Confirm(r.Context(), identity, purpose, code)
	if err != nil {
		switch {
		case errors.Is(err, verify.ErrConfirmRateLimited):
			writeReason(w, http.StatusTooManyRequests, ReasonRateLimited)
		case errors.Is(err, verify.ErrCodeInvalid), errors.Is(err, verify.ErrPurposeInvalid):
			writeReason(w, http.StatusUnprocessableEntity, ReasonInvalidOrExpired)
		default:
			writeReason(w, http.StatusServiceUnavailable, ReasonUnavailable)
		}
		return
	}

	writeJSON(w, http.StatusOK, ResultEnvelope{OK: true})
}

// Availability handles GET /verify/availability for the debounced
// duplicate-email check.
func (h *VerifyHandler) Availability(w http.ResponseWriter, r *http.Request) {
	identity := r.URL.Query().Get("identity")
	purposeName := r.URL.Query().Get("purpose")
	if purposeName == "" {
		purposeName = "registration"
	}

	purpose, err := verify.ParsePurpose(purposeName)
	if err != nil {
		writeReason(w, http.StatusBadRequest, ReasonBadRequest)
		return
	}

	available, err := h.engine.CheckAvailability(r.Context(), identity, purpose)
	if err != nil {
		switch {
		case errors.Is(err, verify.ErrIdentityInvalid):
			writeJSON(w, http.StatusUnprocessableEntity, AvailabilityEnvelope{OK: false, Reason: ReasonInvalidIdentity})
		default:
			writeJSON(w, http.StatusServiceUnavailable, AvailabilityEnvelope{OK: false, Reason: ReasonUnavailable})
		}
		return
	}

	writeJSON(w, http.StatusOK, AvailabilityEnvelope{OK: true, Available: available})
}

// HealthHandler answers liveness probes.
type HealthHandler struct{}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthEnvelope{Status: "ok"})
}
