package adapthttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"

	"bodyregistry/internal/app"
	"bodyregistry/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func parseJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}

// parseWeight validates a sample from a request body and returns it in
// kilograms.
func parseWeight(value float64, unit string) (float32, error) {
	kg, err := domain.ToKilograms(value, unit)
	if err != nil {
		return 0, err
	}
	if !(kg > 0) || math.IsInf(float64(kg), 0) {
		return 0, errors.New("weight must be a positive finite number")
	}
	return kg, nil
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.ErrorContext(r.Context(), "request failed",
		"path", r.URL.Path,
		"request_id", requestIDFrom(r.Context()),
		"error", err,
	)
	writeError(w, http.StatusInternalServerError, errors.New("internal error"))
}

// writeRegistryError maps registry sentinels onto HTTP statuses.
func (s *Server) writeRegistryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, app.ErrAccessDenied):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, app.ErrAlreadyRegistered):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, app.ErrAnonymousCaller):
		writeError(w, http.StatusUnauthorized, err)
	default:
		s.internalError(w, r, err)
	}
}
