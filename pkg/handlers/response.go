package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ekaya-inc/sensorql/pkg/apperrors"
)

// APIError is the body of a request-level failure. Question failures are
// reported in a ResultEnvelope instead.
type APIError struct {
	Code    string `json:"error"`
	Message string `json:"message"`
}

// ErrorResponse writes an APIError and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, code, message string) error {
	return WriteJSON(w, statusCode, APIError{Code: code, Message: message})
}

// WriteJSON encodes data before touching w, so an encoding error leaves the
// response unwritten for the caller to handle.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, err = w.Write(append(body, '\n'))
	return err
}

// DecodeJSON reads one JSON value of at most maxBytes from the request body.
func DecodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("invalid JSON body: trailing data")
	}
	return nil
}

// StatusForKind maps an envelope error kind to an HTTP status code.
func StatusForKind(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindNone:
		return http.StatusOK
	case apperrors.KindAmbiguousIntent, apperrors.KindUnsupportedJoin:
		return http.StatusUnprocessableEntity
	case apperrors.KindTimeout:
		return http.StatusGatewayTimeout
	case apperrors.KindConfiguration:
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}
