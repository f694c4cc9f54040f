// Package api verification and admin authentication handlers.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/campussafe/safebot/internal/models"
	"github.com/campussafe/safebot/internal/verify"
)

// adminTokenTTL is the lifetime of an admin dashboard session token.
const adminTokenTTL = 24 * time.Hour

// createSessionHandler mints a verification session token for a chat
// (POST /api/auth/create-session). Normally the bot does this itself; the
// endpoint exists so the web form can restart an expired handshake.
func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	var req struct {
		ChatID string `json:"chat_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.createSessionHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.ChatID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: chat_id"))
		return
	}

	token, err := s.gate.CreateSession(req.ChatID)
	if err != nil {
		slog.Error("Server.createSessionHandler: failed to create session", "error", err, "chatID", req.ChatID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to create verification session"))
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.Success(map[string]interface{}{
		"session_token": token.Token,
		"expires_at":    token.ExpiresAt.UTC().Format(time.RFC3339),
	}))
}

// verifyStudentHandler is the web form's submit target
// (POST /api/auth/verify-student). It consumes the session token and, on a
// roster match, returns the confirmation token the form immediately posts
// back via confirm-verification.
func (s *Server) verifyStudentHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	var req struct {
		FullName     string `json:"full_name"`
		IndexNumber  string `json:"index_number"`
		ChatID       string `json:"chat_id"`
		SessionToken string `json:"session_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.verifyStudentHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.FullName == "" || req.IndexNumber == "" || req.ChatID == "" || req.SessionToken == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required fields: full_name, index_number, chat_id, session_token"))
		return
	}

	confirmation, err := s.gate.VerifyStudent(req.FullName, req.IndexNumber, req.ChatID, req.SessionToken)
	if err != nil {
		s.writeGateError(w, "Server.verifyStudentHandler", err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Identity verified", map[string]interface{}{
		"confirmation_token": confirmation.Token,
		"expires_at":         confirmation.ExpiresAt.UTC().Format(time.RFC3339),
	}))
}

// confirmVerificationHandler consumes a confirmation token and notifies the
// chat (POST /api/auth/confirm-verification).
func (s *Server) confirmVerificationHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	var req struct {
		Token  string `json:"token"`
		ChatID string `json:"chat_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.confirmVerificationHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.Token == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: token"))
		return
	}

	record, err := s.gate.ConfirmVerification(req.Token, req.ChatID)
	if err != nil {
		s.writeGateError(w, "Server.confirmVerificationHandler", err)
		return
	}

	if s.notifier != nil {
		if err := s.notifier.OnVerified(r.Context(), record.ChatID, record.Student); err != nil {
			// The token is already consumed; the verification stands even if the
			// chat notification fails.
			slog.Error("Server.confirmVerificationHandler: chat notification failed", "error", err, "chatID", record.ChatID)
		}
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Verification confirmed", map[string]string{
		"chat_id": record.ChatID,
	}))
}

// verificationStatusHandler reports whether a chat is verified
// (GET /api/auth/verification-status/{chatId}).
func (s *Server) verificationStatusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	chatID := strings.TrimPrefix(r.URL.Path, "/api/auth/verification-status/")
	if chatID == "" || strings.Contains(chatID, "/") {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing chat id"))
		return
	}

	verified, info, err := s.gate.Status(chatID)
	if err != nil {
		slog.Error("Server.verificationStatusHandler: status lookup failed", "error", err, "chatID", chatID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch verification status"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"chat_id":  chatID,
		"verified": verified,
		"student":  info,
	}))
}

// revokeVerificationHandler unbinds a chat from its verified student
// (POST /api/auth/revoke-verification, admin only).
func (s *Server) revokeVerificationHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	s.requireAdmin(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ChatID string `json:"chat_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			slog.Warn("Server.revokeVerificationHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		if req.ChatID == "" {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Missing required field: chat_id"))
			return
		}

		if err := s.gate.Revoke(req.ChatID); err != nil {
			slog.Error("Server.revokeVerificationHandler: revoke failed", "error", err, "chatID", req.ChatID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to revoke verification"))
			return
		}
		if s.notifier != nil {
			if err := s.notifier.OnRevoked(r.Context(), req.ChatID); err != nil {
				slog.Error("Server.revokeVerificationHandler: chat notification failed", "error", err, "chatID", req.ChatID)
			}
		}
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Verification revoked", nil))
	})(w, r)
}

// adminLoginHandler exchanges admin credentials for a signed session token
// (POST /api/admin/login).
func (s *Server) adminLoginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.adminLoginHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	admin, err := s.st.GetAdminByEmail(req.Email)
	if err != nil {
		slog.Error("Server.adminLoginHandler: admin lookup failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Login failed"))
		return
	}
	// The same rejection for unknown email and wrong password.
	if admin == nil || bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(req.Password)) != nil {
		slog.Warn("Server.adminLoginHandler: invalid credentials", "email", req.Email)
		writeJSONResponse(w, http.StatusUnauthorized, models.Error("Invalid email or password"))
		return
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   admin.ID,
		"email": admin.Email,
		"iat":   now.Unix(),
		"exp":   now.Add(adminTokenTTL).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		slog.Error("Server.adminLoginHandler: token signing failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Login failed"))
		return
	}

	slog.Info("Server.adminLoginHandler: admin logged in", "email", admin.Email)
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"token":      signed,
		"expires_at": now.Add(adminTokenTTL).UTC().Format(time.RFC3339),
	}))
}

// requireAdmin wraps a handler with bearer-token authentication.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok || raw == "" {
			writeJSONResponse(w, http.StatusUnauthorized, models.Error("Missing bearer token"))
			return
		}
		token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return s.jwtSecret, nil
		})
		if err != nil || !token.Valid {
			slog.Warn("Server.requireAdmin: token rejected", "error", err)
			writeJSONResponse(w, http.StatusUnauthorized, models.Error("Invalid or expired token"))
			return
		}
		next(w, r)
	}
}

// writeGateError maps verification gate errors onto HTTP statuses.
func (s *Server) writeGateError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, verify.ErrTokenInvalid):
		writeJSONResponse(w, http.StatusUnauthorized, models.Error("Verification token is invalid or expired"))
	case errors.Is(err, verify.ErrChatMismatch):
		writeJSONResponse(w, http.StatusForbidden, models.Error("Token was issued for a different chat"))
	case errors.Is(err, verify.ErrStudentNotFound):
		writeJSONResponse(w, http.StatusNotFound, models.Error("No matching student found. Check your name and index number."))
	default:
		slog.Error(op+": verification failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Verification failed"))
	}
}
