package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/germanamz/silk/pkg/dispatch"
	"github.com/germanamz/silk/pkg/identity"
	"github.com/germanamz/silk/pkg/preferences"
)

type preferencesUpdate struct {
	AllowAITraining *bool `json:"allowAiTraining"`
}

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	rec, err := s.prefs.Get(r.Context(), identity.UserIDFromContext(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	if identity.Anonymous(r.Context()) {
		s.fail(w, r, preferences.ErrAnonymous)
		return
	}

	var body preferencesUpdate
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody)).Decode(&body); err != nil {
		s.fail(w, r, fmt.Errorf("%w: decode preferences: %v", dispatch.ErrBadRequest, err))
		return
	}
	if body.AllowAITraining == nil {
		s.fail(w, r, fmt.Errorf("%w: allowAiTraining is required", dispatch.ErrBadRequest))
		return
	}

	rec, err := s.prefs.SetAllowAITraining(r.Context(), identity.UserIDFromContext(r.Context()), *body.AllowAITraining)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}
