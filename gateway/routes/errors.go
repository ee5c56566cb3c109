package routes

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"dscengine/core/types"
	"dscengine/gateway/middleware"
	nativecommon "dscengine/native/common"
	"dscengine/native/dsc"
	"dscengine/native/dsc/token"
)

const maxRequestBody = 1 << 16

type errorBody struct {
	Error        string `json:"error"`
	Code         string `json:"code"`
	RequestID    string `json:"requestId,omitempty"`
	HealthFactor string `json:"healthFactor,omitempty"`
}

type badRequest struct{ err error }

func (b badRequest) Error() string { return b.err.Error() }
func (b badRequest) Unwrap() error { return b.err }

func invalid(err error) error { return badRequest{err: err} }

// statusFor maps engine failures onto HTTP statuses and stable error codes.
func statusFor(err error) (int, string) {
	var bad badRequest
	var solvency *dsc.SolvencyError
	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, dsc.ErrNeedsMoreThanZero):
		return http.StatusBadRequest, "needs_more_than_zero"
	case errors.Is(err, dsc.ErrAssetNotAllowed), errors.Is(err, token.ErrUnknownAsset):
		return http.StatusBadRequest, "asset_not_allowed"
	case errors.Is(err, token.ErrFaucetLimit), errors.Is(err, token.ErrInvalidAmount):
		return http.StatusBadRequest, "faucet_limit"
	case errors.Is(err, dsc.ErrHealthFactorNotImproved):
		return http.StatusUnprocessableEntity, "health_factor_not_improved"
	case errors.As(err, &solvency), errors.Is(err, dsc.ErrBreaksHealthFactor):
		return http.StatusUnprocessableEntity, "breaks_health_factor"
	case errors.Is(err, dsc.ErrHealthFactorOK):
		return http.StatusUnprocessableEntity, "health_factor_ok"
	case errors.Is(err, dsc.ErrUnderflow):
		return http.StatusUnprocessableEntity, "underflow"
	case errors.Is(err, dsc.ErrDepositFailed), errors.Is(err, dsc.ErrRedeemFailed),
		errors.Is(err, dsc.ErrTransferFailed), errors.Is(err, dsc.ErrMintFailed),
		errors.Is(err, dsc.ErrBurnFailed):
		return http.StatusConflict, "transfer_failed"
	case errors.Is(err, nativecommon.ErrReentrantCall):
		return http.StatusConflict, "reentrant_call"
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable, "paused"
	case errors.Is(err, dsc.ErrInvalidPrice):
		return http.StatusBadGateway, "invalid_price"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	body := errorBody{
		Error:     err.Error(),
		Code:      code,
		RequestID: middleware.RequestIDFrom(r.Context()),
	}
	var solvency *dsc.SolvencyError
	if errors.As(err, &solvency) && solvency.HealthFactor != nil {
		body.HealthFactor = solvency.HealthFactor.String()
	}
	if status == http.StatusInternalServerError {
		body.Error = "internal error"
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return invalid(err)
	}
	return nil
}

// amountView renders a base-unit amount alongside its decimal form.
type amountView struct {
	Units   string `json:"units"`
	Display string `json:"display"`
}

func viewAmount(v *big.Int) amountView {
	if v == nil {
		v = new(big.Int)
	}
	return amountView{Units: v.String(), Display: types.FormatAmount(v)}
}
