package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/RobinCoderZhao/optimist-daily/internal/prefs"
)

type PreferencesRequest struct {
	Categories []string `json:"categories"`
}

func (s *Server) handleCategories() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]any{
			"categories": prefs.Catalogue(),
		})
	}
}

func (s *Server) handleGetPreferences() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		categories, err := s.prefStore.GetCategories(r.Context(), getUserID(r))
		if err != nil {
			s.logger.Error("failed to load preferences", "error", err)
			respondError(w, http.StatusInternalServerError, "Failed to load preferences")
			return
		}
		if categories == nil {
			categories = []string{}
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"categories": categories,
		})
	}
}

// handlePutPreferences stores the onboarding selection and replans the
// user's open feed sessions.
func (s *Server) handlePutPreferences() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := getUserID(r)

		var req PreferencesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		categories, err := prefs.Validate(req.Categories)
		if errors.Is(err, prefs.ErrEmptySelection) || errors.Is(err, prefs.ErrUnknownCategory) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to validate preferences")
			return
		}

		if err := s.prefStore.SetCategories(r.Context(), userID, categories); err != nil {
			s.logger.Error("failed to save preferences", "user_id", userID, "error", err)
			respondError(w, http.StatusInternalServerError, "Failed to save preferences")
			return
		}

		for _, sess := range s.sessions.forUser(userID) {
			if _, err := sess.RefreshPreferences(r.Context()); err != nil {
				s.logger.Warn("failed to refresh session preferences", "user_id", userID, "error", err)
			}
		}

		respondJSON(w, http.StatusOK, map[string]any{
			"categories": categories,
		})
	}
}
