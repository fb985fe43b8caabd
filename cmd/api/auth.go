package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/mvribeiro/loanbook/pkg/store"
)

const tokenTTL = 24 * time.Hour

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respond(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	user, err := s.storage.GetUserByUsername(req.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respond(w, http.StatusBadRequest, map[string]string{"error": "invalid credentials"})
			return
		}
		s.respondError(w, err)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		s.respond(w, http.StatusBadRequest, map[string]string{"error": "invalid credentials"})
		return
	}

	claims := jwt.MapClaims{
		"sub":      user.ID.String(),
		"username": user.Username,
		"exp":      time.Now().Add(tokenTTL).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		s.respondError(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) validateTokenHandler(w http.ResponseWriter, r *http.Request) {
	claims, err := s.parseToken(r)
	if err != nil {
		s.respond(w, http.StatusOK, map[string]any{"valid": false})
		return
	}
	s.respond(w, http.StatusOK, map[string]any{
		"valid":    true,
		"username": claims["username"],
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			s.respond(w, http.StatusUnauthorized, map[string]string{"error": "missing authorization token"})
			return
		}
		if _, err := s.parseToken(r); err != nil {
			s.respond(w, http.StatusForbidden, map[string]string{"error": "invalid or expired token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) parseToken(r *http.Request) (jwt.MapClaims, error) {
	raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if raw == "" {
		return nil, errors.New("missing token")
	}
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
