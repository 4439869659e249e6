package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/3leaps/mediagrab/pkg/downloader"
)

// HTTPErrorResponse is the standard error envelope for all API errors.
type HTTPErrorResponse struct {
	Error HTTPError `json:"error"`
}

type HTTPError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, HTTPErrorResponse{Error: HTTPError{Code: code, Message: message}})
}

// writeDomainError maps domain errors onto HTTP statuses and stable
// error codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, downloader.ErrInvalidURL):
		writeError(w, http.StatusBadRequest, "INVALID_URL", err.Error())
	case errors.Is(err, downloader.ErrInvalidQuality):
		writeError(w, http.StatusBadRequest, "INVALID_QUALITY", err.Error())
	case errors.Is(err, downloader.ErrUnsupportedPlatform):
		writeError(w, http.StatusBadRequest, "UNSUPPORTED_PLATFORM", err.Error())
	case errors.Is(err, downloader.ErrPlatformInactive):
		writeError(w, http.StatusForbidden, "PLATFORM_INACTIVE", err.Error())
	case downloader.IsRateLimited(err):
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", err.Error())
	case downloader.IsNotFound(err):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, downloader.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "PERMISSION_DENIED", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
	}
}
