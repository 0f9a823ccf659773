package api

import (
	"errors"
	"net/http"

	"barberbook/internal/domain"
	"barberbook/internal/lifecycle"
	"barberbook/internal/timeofday"
)

// errorCode is the machine readable reason sent next to the message.
func errorCode(err error) (int, string) {
	var illegal *lifecycle.IllegalTransitionError
	switch {
	case errors.As(err, &illegal):
		return http.StatusConflict, "illegal_transition"
	case errors.Is(err, domain.ErrSlotConflict):
		return http.StatusConflict, "slot_conflict"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, lifecycle.ErrNotExpired):
		return http.StatusConflict, "not_expired"
	case errors.Is(err, lifecycle.ErrSlotNotInFuture),
		errors.Is(err, lifecycle.ErrMissingSlot),
		errors.Is(err, lifecycle.ErrUnknownEvent),
		errors.Is(err, timeofday.ErrNormalization),
		errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case domain.IsRetryable(err):
		return http.StatusServiceUnavailable, "authority_unavailable"
	case errors.Is(err, domain.ErrRemote):
		return http.StatusBadGateway, "authority_error"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	status, code := errorCode(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	writeJSON(w, status, map[string]string{"error": message, "code": code})
}
