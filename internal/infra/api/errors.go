package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"license-billing/internal/domain"
	"license-billing/internal/infra/logging"
)

type errorBody struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument),
		errors.Is(err, domain.ErrUnknownPlan),
		errors.Is(err, domain.ErrUnknownCreditPack),
		errors.Is(err, domain.ErrPromoInvalid):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrLockBusy),
		errors.Is(err, domain.ErrPromoAlreadyRedeemed),
		errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// writeError renders err as {error, details?}. Only typed errors expose their message;
// anything else is logged and reported as an internal error.
func writeError(w http.ResponseWriter, r *http.Request, logger *zerolog.Logger, err error) {
	code := statusFor(err)
	body := errorBody{Error: err.Error()}

	var (
		verr *domain.ValidationError
		gerr *domain.GatewayError
		cerr *domain.ConfigurationError
	)
	switch {
	case errors.As(err, &verr):
		body.Error = verr.Msg
		if len(verr.Fields) > 0 {
			body.Details = verr.Fields
		}
	case errors.As(err, &gerr):
		body.Error = "payment gateway error"
		if gerr.Body != "" {
			body.Details = gerr.Body
		} else if gerr.Err != nil {
			body.Details = gerr.Err.Error()
		}
	case errors.As(err, &cerr):
		body.Error = cerr.Msg
	case code == http.StatusInternalServerError:
		body.Error = "internal error"
	}

	if code >= 500 {
		l := logging.With(r.Context(), logger)
		l.Error().Err(err).Int("status", code).Msg("request failed")
	}
	writeJSON(w, code, body)
}
