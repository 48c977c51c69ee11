// Package handlers exposes the HTTP surface: connection management,
// schema browsing, metadata generation (sync and async), stored document
// access, and the semantic model.
package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/tablesage/tablesage/pkg/apperrors"
)

// errorBody is the uniform error response shape.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// statusFor maps the error taxonomy to HTTP statuses: caller mistakes
// are 4xx, everything else 5xx.
func statusFor(err error) int {
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation, apperrors.KindInvalidIdentifier:
		return http.StatusBadRequest
	case apperrors.KindAuthMissing:
		return http.StatusUnauthorized
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindLLMUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
	} else {
		logger.Debug("request rejected", zap.Error(err))
	}

	body := errorBody{Error: err.Error()}
	if kind := apperrors.KindOf(err); kind != "" {
		body.Kind = string(kind)
	}
	writeJSON(w, status, body)
}

// ownerFrom extracts the calling user. Requests without the header share
// the default owner scope.
func ownerFrom(r *http.Request) string {
	if owner := r.Header.Get("X-User"); owner != "" {
		return owner
	}
	return "default"
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperrors.Wrap(apperrors.KindValidation, "invalid request body", err)
	}
	return nil
}
