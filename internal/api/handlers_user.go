package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/RobinCoderZhao/optimist-daily/internal/user"
)

const minPasswordLength = 8

type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

func (s *Server) handleRegister() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		if strings.TrimSpace(req.Email) == "" || req.Password == "" {
			respondError(w, http.StatusBadRequest, "Email and password are required")
			return
		}
		if !strings.Contains(req.Email, "@") {
			respondError(w, http.StatusBadRequest, "Invalid email address")
			return
		}
		if len(req.Password) < minPasswordLength {
			respondError(w, http.StatusBadRequest, "Password must be at least 8 characters")
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to process password")
			return
		}

		id, err := s.userStore.CreateUser(r.Context(), req.Email, string(hash), req.DisplayName)
		if errors.Is(err, user.ErrEmailTaken) {
			respondError(w, http.StatusConflict, "User already exists")
			return
		}
		if err != nil {
			s.logger.Error("failed to create user", "error", err)
			respondError(w, http.StatusInternalServerError, "Database error")
			return
		}

		// Registration logs the user in.
		token, err := s.generateToken(id)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to generate token")
			return
		}
		setTokenCookie(w, token)

		respondJSON(w, http.StatusCreated, map[string]any{
			"message": "Registration successful",
			"user_id": id,
			"token":   token,
		})
	}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		u, err := s.userStore.GetUserByEmail(r.Context(), req.Email)
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		if err != nil {
			s.logger.Error("failed to look up user", "error", err)
			respondError(w, http.StatusInternalServerError, "Database error")
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
			respondError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}

		token, err := s.generateToken(u.ID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to generate token")
			return
		}
		setTokenCookie(w, token)

		respondJSON(w, http.StatusOK, map[string]any{
			"message": "Login successful",
			"user_id": u.ID,
			"token":   token,
		})
	}
}

func (s *Server) handleGetMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := s.userStore.GetUser(r.Context(), getUserID(r))
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "User not found")
			return
		}
		if err != nil {
			s.logger.Error("failed to load user", "error", err)
			respondError(w, http.StatusInternalServerError, "Database error")
			return
		}
		respondJSON(w, http.StatusOK, u)
	}
}
