package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// statusFor maps a coordinator error onto an HTTP status and the message
// shown to the caller. Unknown errors never leak their text.
func statusFor(err error) (int, string) {
	var verr *validationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, verr.Error()
	case errors.Is(err, common.ErrorInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, common.ErrorDuplicateAccount):
		return http.StatusConflict, err.Error()
	case common.IsBadCredentials(err):
		return http.StatusUnauthorized, common.CredentialsIncorrect
	case errors.Is(err, common.ErrorForbidden):
		return http.StatusForbidden, "forbidden"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
