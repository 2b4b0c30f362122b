package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"pushcal/internal/channel"
	appLog "pushcal/internal/log"
	"pushcal/internal/model"
	"pushcal/internal/token"
)

const maxBodyBytes = 1 << 20

// apiError is what a client sees: an HTTP status and an {error:{id,message}}
// body.
type apiError struct {
	Status  int
	ID      string
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.ID, e.Message)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// translate maps a domain error to its response. id and message describe
// the endpoint's own failure and are used for everything that is not a
// client error.
func translate(err error, id, message string) *apiError {
	var (
		ae *apiError
		ve *model.ValidationError
	)
	switch {
	case errors.As(err, &ae):
		return ae
	case errors.As(err, &ve):
		return &apiError{Status: http.StatusBadRequest, ID: ve.Code, Message: ve.Message}
	case errors.Is(err, channel.ErrSignFailed):
		return &apiError{Status: http.StatusForbidden, ID: id, Message: message}
	case errors.Is(err, token.ErrInvalidToken):
		return &apiError{Status: http.StatusUnauthorized, ID: "invalid-token", Message: "The calendar token is not valid."}
	case errors.Is(err, model.ErrNotFound):
		return &apiError{Status: http.StatusNotFound, ID: id, Message: message}
	default:
		return &apiError{Status: http.StatusInternalServerError, ID: id, Message: message}
	}
}

// writeAPIError logs err and writes the translated response.
func writeAPIError(w http.ResponseWriter, r *http.Request, err error, id, message string) {
	ae := translate(err, id, message)
	if ae.Status >= http.StatusInternalServerError {
		appLog.Error("request failed", err, "method", r.Method, "path", r.URL.Path, "id", ae.ID)
	} else {
		appLog.Info("request rejected", "method", r.Method, "path", r.URL.Path, "status", ae.Status, "id", ae.ID, "reason", err.Error())
	}
	writeJSON(w, ae.Status, errorBody{Error: errorDetail{ID: ae.ID, Message: ae.Message}})
}

func readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	body, err := readBody(r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return model.NewValidationError("invalid-body", "The request body must be valid JSON.")
	}
	return nil
}
