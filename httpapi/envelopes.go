package httpapi

import (
	"encoding/json"
	"net/http"
)

// Wire reasons for rejected requests. The confirm path deliberately knows
// only one reason: wrong, expired, consumed, and missing codes are
// indistinguishable to the caller.
const (
	ReasonLocked           = "locked"
	ReasonInvalidIdentity  = "invalid_identity"
	ReasonDeliveryFailed   = "delivery_failed"
	ReasonInvalidOrExpired = "invalid_or_expired"
	ReasonRateLimited      = "rate_limited"
	ReasonBadRequest       = "bad_request"
	ReasonUnavailable      = "unavailable"
)

// ResultEnvelope is the generic response wrapper for send and confirm.
type ResultEnvelope struct {
	OK                bool   `json:"ok"`
	Reason            string `json:"reason,omitempty"`
	RetryAfterSeconds int    `json:"retryAfterSeconds,omitempty"`
}

// AvailabilityEnvelope wraps availability-probe responses.
type AvailabilityEnvelope struct {
	OK        bool   `json:"ok"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// HealthEnvelope wraps health-check responses.
type HealthEnvelope struct {
	Status string `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeReason(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, ResultEnvelope{OK: false, Reason: reason})
}
