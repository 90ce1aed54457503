package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/RobinCoderZhao/optimist-daily/internal/feed"
	"github.com/RobinCoderZhao/optimist-daily/internal/prefs"
	"github.com/RobinCoderZhao/optimist-daily/internal/session"
)

// maxWait bounds GET ?wait=true.
const maxWait = 15 * time.Second

type ArticleResponse struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	URL         string     `json:"url"`
	ImageURL    string     `json:"image_url,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	SourceName  string     `json:"source_name,omitempty"`
	Provider    string     `json:"provider"`
}

type SnapshotResponse struct {
	Generation uint64            `json:"generation"`
	Status     session.Status    `json:"status"`
	Intent     feed.Intent       `json:"intent"`
	Sort       feed.SortOrder    `json:"sort"`
	Articles   []ArticleResponse `json:"articles"`
	Failures   []string          `json:"failed_providers,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

func newSnapshotResponse(snap session.Snapshot) SnapshotResponse {
	articles := make([]ArticleResponse, 0, len(snap.Feed))
	for _, a := range snap.Feed {
		ar := ArticleResponse{
			Title:       a.Title,
			Description: a.Description,
			URL:         a.URL,
			ImageURL:    a.ImageURL,
			SourceName:  a.SourceName,
			Provider:    string(a.Source),
		}
		if a.HasPublishedAt() {
			t := a.PublishedAt
			ar.PublishedAt = &t
		}
		articles = append(articles, ar)
	}
	var failures []string
	for _, p := range snap.Failures {
		failures = append(failures, string(p))
	}
	return SnapshotResponse{
		Generation: snap.Generation,
		Status:     snap.Status,
		Intent:     snap.Intent,
		Sort:       snap.Order,
		Articles:   articles,
		Failures:   failures,
		UpdatedAt:  snap.UpdatedAt,
	}
}

type CreateSessionRequest struct {
	Search   string `json:"search"`
	Category string `json:"category"`
	Sort     string `json:"sort"`
}

type UpdateSessionRequest struct {
	Search             *string `json:"search"`
	Category           *string `json:"category"`
	Sort               *string `json:"sort"`
	RefreshPreferences bool    `json:"refresh_preferences"`
	Reload             bool    `json:"reload"`
}

func (s *Server) handleCreateSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := getUserID(r)

		var req CreateSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		order, err := parseSort(req.Sort)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		category, err := parseCategory(req.Category)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		sess := session.New(s.pipeline,
			prefs.Source(s.prefStore, userID),
			session.WithLogger(s.logger.With("user_id", userID)),
			session.WithInitialInputs(req.Search, category, order),
		)
		if err := sess.Start(context.Background()); err != nil {
			s.logger.Error("failed to start feed session", "user_id", userID, "error", err)
			sess.Close()
			respondError(w, http.StatusInternalServerError, "Failed to start session")
			return
		}
		id := s.sessions.add(userID, sess)
		s.logger.Info("feed session created", "session_id", id, "user_id", userID)

		respondJSON(w, http.StatusCreated, map[string]any{
			"id":       id,
			"snapshot": newSnapshotResponse(sess.Snapshot()),
		})
	}
}

func (s *Server) handleGetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.sessions.get(r.PathValue("id"), getUserID(r))
		if !ok {
			respondError(w, http.StatusNotFound, "Session not found")
			return
		}

		snap := sess.Snapshot()
		if r.URL.Query().Get("wait") == "true" && !snap.Status.Settled() {
			ctx, cancel := context.WithTimeout(r.Context(), maxWait)
			defer cancel()
			// On timeout the latest snapshot is returned as is.
			snap, _ = sess.Wait(ctx, snap.Generation)
		}
		respondJSON(w, http.StatusOK, newSnapshotResponse(snap))
	}
}

func (s *Server) handleUpdateSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.sessions.get(r.PathValue("id"), getUserID(r))
		if !ok {
			respondError(w, http.StatusNotFound, "Session not found")
			return
		}

		var req UpdateSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		var steps []func() (session.Snapshot, error)
		if req.Sort != nil {
			order, err := parseSort(*req.Sort)
			if err != nil {
				respondError(w, http.StatusBadRequest, err.Error())
				return
			}
			steps = append(steps, func() (session.Snapshot, error) { return sess.SetSortOrder(order) })
		}
		if req.Category != nil {
			category, err := parseCategory(*req.Category)
			if err != nil {
				respondError(w, http.StatusBadRequest, err.Error())
				return
			}
			steps = append(steps, func() (session.Snapshot, error) { return sess.SetCategory(category) })
		}
		if req.Search != nil {
			steps = append(steps, func() (session.Snapshot, error) { return sess.SetSearchText(*req.Search) })
		}
		if req.RefreshPreferences {
			steps = append(steps, func() (session.Snapshot, error) { return sess.RefreshPreferences(r.Context()) })
		}
		if req.Reload {
			steps = append(steps, sess.Reload)
		}

		snap := sess.Snapshot()
		for _, step := range steps {
			var err error
			if snap, err = step(); err != nil {
				if errors.Is(err, session.ErrClosed) {
					respondError(w, http.StatusNotFound, "Session not found")
					return
				}
				s.logger.Error("failed to update feed session", "error", err)
				respondError(w, http.StatusInternalServerError, "Failed to update session")
				return
			}
		}
		respondJSON(w, http.StatusOK, newSnapshotResponse(snap))
	}
}

func (s *Server) handleDeleteSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.sessions.remove(r.PathValue("id"), getUserID(r)) {
			respondError(w, http.StatusNotFound, "Session not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func parseSort(s string) (feed.SortOrder, error) {
	if strings.TrimSpace(s) == "" {
		return feed.Newest, nil
	}
	order, ok := feed.ParseSortOrder(s)
	if !ok {
		return "", errors.New(`sort must be "newest" or "oldest"`)
	}
	return order, nil
}

// parseCategory accepts "", "All" or a catalogue category and returns it in
// catalogue spelling.
func parseCategory(c string) (string, error) {
	c = strings.TrimSpace(c)
	if c == "" || strings.EqualFold(c, feed.AllCategories) {
		return c, nil
	}
	valid, err := prefs.Validate([]string{c})
	if err != nil {
		return "", err
	}
	return valid[0], nil
}
