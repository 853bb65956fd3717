package adapthttp

import (
	"errors"
	"net/http"

	"bodyregistry/internal/app"
	"bodyregistry/internal/domain"
)

func recordJSON(accountID string, body *domain.Body) map[string]any {
	return map[string]any{"accountId": accountID, "record": body}
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	body, err := s.registry.GetRecord(r.Context(), id)
	if err != nil {
		s.writeRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recordJSON(id, body))
}

func (s *Server) handleCheckUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ok, err := s.registry.HasRecord(r.Context(), id)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accountId": id, "exists": ok})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Age    uint8   `json:"age"`
		Height uint8   `json:"height"`
		Weight float64 `json:"weight"`
		Unit   string  `json:"unit"`
	}
	if err := parseJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	weight, err := parseWeight(req.Weight, req.Unit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	caller := callerFrom(r)
	body, err := s.registry.Register(r.Context(), caller, req.Age, req.Height, weight)
	if err != nil {
		s.writeRegistryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, recordJSON(caller.AccountID, body))
}

func (s *Server) handleAddWeight(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Weight float64 `json:"weight"`
		Unit   string  `json:"unit"`
	}
	if err := parseJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	weight, err := parseWeight(req.Weight, req.Unit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	body, err := s.registry.AddWeight(r.Context(), callerFrom(r), id, weight)
	if err != nil {
		s.writeRegistryError(w, r, err)
		return
	}
	latest, _ := body.Latest()
	resp := recordJSON(id, body)
	resp["latest"] = latest
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r)
	resp := map[string]any{"accountId": caller.AccountID, "registered": false}

	body, err := s.registry.GetRecord(r.Context(), caller.AccountID)
	switch {
	case errors.Is(err, app.ErrNotFound):
	case err != nil:
		s.internalError(w, r, err)
		return
	default:
		resp["registered"] = true
		resp["record"] = body
	}
	writeJSON(w, http.StatusOK, resp)
}
