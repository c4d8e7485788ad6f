package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type apiErrorBody struct {
	Code    common.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

// writeAPIError answers with the provider error shape. Errors that are not
// provider errors become a 500 with the UNKNOWN code.
func writeAPIError(w http.ResponseWriter, err error) {
	if apiErr, ok := common.AsAPIError(err); ok {
		writeJSON(w, apiErr.Status, apiErrorBody{Code: apiErr.Code, Message: apiErr.Message})
		return
	}
	status, code, msg := http.StatusInternalServerError, common.CodeUnknown, "Internal Server Error"
	switch {
	case errors.Is(err, common.ErrorUnauthorized):
		status, msg = http.StatusUnauthorized, "Unauthorised"
	case errors.Is(err, common.ErrorForbidden):
		status, msg = http.StatusForbidden, "FORBIDDEN"
	}
	writeJSON(w, status, apiErrorBody{Code: code, Message: msg})
}

// errorCodeParam turns an error into the lower-case code used in redirect
// query strings, e.g. "token_expired".
func errorCodeParam(err error) string {
	if apiErr, ok := common.AsAPIError(err); ok {
		return strings.ToLower(string(apiErr.Code))
	}
	return "unknown"
}

// safeCallback accepts only same-site absolute paths.
func safeCallback(target, fallback string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return fallback
	}
	return target
}
