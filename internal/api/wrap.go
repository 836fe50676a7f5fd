package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"conversa/internal/backend"
	"conversa/internal/models"
)

// Handler returns the data of a successful response or an error that
// Wrap turns into a failed envelope.
type Handler func(r *http.Request) (any, error)

// Wrap writes the result of h as an envelope.
func Wrap(h Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := h(r)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		writeEnvelope(w, http.StatusOK, models.Success(data))
	}
}

// WriteError writes err as a failed envelope with the matching status.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := Describe(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeEnvelope(w, status, models.Failure(body.Code, body.Message, body.Details))
}

// Describe maps an error to an HTTP status and the error half of the envelope.
func Describe(err error) (int, models.ErrorBody) {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return statusForCode(appErr.Code), models.ErrorBody{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		}
	}

	var backendErr *backend.Error
	if errors.As(err, &backendErr) {
		status := http.StatusBadGateway
		if backendErr.Status >= 400 && backendErr.Status < 500 {
			status = backendErr.Status
		}
		var details map[string]string
		if backendErr.Code != "" || backendErr.Hint != "" {
			details = map[string]string{"code": backendErr.Code}
			if backendErr.Hint != "" {
				details["hint"] = backendErr.Hint
			}
		}
		body := models.ErrorBody{Code: models.CodeBackend, Message: backendErr.Message}
		if details != nil {
			body.Details = details
		}
		return status, body
	}

	if errors.Is(err, models.ErrNotFound) {
		return http.StatusNotFound, models.ErrorBody{Code: models.CodeNotFound, Message: "not found"}
	}

	return http.StatusInternalServerError, models.ErrorBody{Code: models.CodeInternal, Message: "internal error"}
}

func statusForCode(code string) int {
	switch code {
	case models.CodeUnauthenticated:
		return http.StatusUnauthorized
	case models.CodeLoading:
		return http.StatusServiceUnavailable
	case models.CodeInvalidRequest:
		return http.StatusBadRequest
	case models.CodeInvalidPayload:
		return http.StatusBadGateway
	case models.CodeNotFound:
		return http.StatusNotFound
	case models.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeEnvelope[T any](w http.ResponseWriter, status int, resp models.APIResponse[T]) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

// ReadJSON decodes a single JSON object from the request body.
func ReadJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return models.NewAppError(models.CodeInvalidRequest, "request body too large", nil)
		}
		return models.NewAppError(models.CodeInvalidRequest, "bad json", nil)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return models.NewAppError(models.CodeInvalidRequest, "bad json", nil)
	}
	return nil
}

func invalidRequest(details map[string]string) error {
	return models.NewAppError(models.CodeInvalidRequest, "invalid request", details)
}
