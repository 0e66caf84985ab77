package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// envelope is spec §4.8's uniform response shape:
// `{success, data?|error?, meta:{timestamp}}`.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   *apiError `json:"error,omitempty"`
	Meta    meta   `json:"meta"`
}

type apiError struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId,omitempty"`
}

type meta struct {
	Timestamp time.Time `json:"timestamp"`
}

func writeData(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeEnvelope(w, status, envelope{Success: true, Data: data, Meta: meta{Timestamp: time.Now().UTC()}})
}

func writeAPIError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeEnvelope(w, status, envelope{
		Success: false,
		Error: &apiError{
			Code:          code,
			Message:       message,
			CorrelationID: GetCorrelationID(r.Context()),
		},
		Meta: meta{Timestamp: time.Now().UTC()},
	})
}

func writeEnvelope(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		log.Error().Err(err).Msg("httpapi: failed to encode response envelope")
	}
}
