package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/kkismd/gridworker/pkg/configuration"
	"github.com/kkismd/gridworker/pkg/logger"
	"github.com/kkismd/gridworker/pkg/session"
)

// Handler serves the registration and login endpoints against the user
// store.
type Handler struct {
	store *session.Store
}

// NewHandler builds the auth endpoints around a store.
func NewHandler(store *session.Store) *Handler {
	return &Handler{store: store}
}

// CredentialsRequest is the body of register and login requests.
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse is returned by every auth endpoint.
type TokenResponse struct {
	Success   bool   `json:"success"`
	Token     string `json:"token,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message"`
}

// HandleRegister creates an account and returns a user token.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, "Invalid request format", http.StatusBadRequest)
		return
	}
	if msg := validateCredentials(req.Username, req.Password); msg != "" {
		respondWithError(w, msg, http.StatusBadRequest)
		return
	}

	if err := h.store.CreateUser(req.Username, req.Password); err != nil {
		if errors.Is(err, session.ErrUserExists) {
			respondWithError(w, "Username already taken", http.StatusConflict)
			return
		}
		logger.Error(logger.AreaAuth, "registration failed for %s: %v", req.Username, err)
		respondWithError(w, "Registration failed", http.StatusInternalServerError)
		return
	}

	h.issueToken(w, req.Username)
}

// HandleLogin verifies credentials and returns a user token.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	if err := h.store.Authenticate(req.Username, req.Password); err != nil {
		if errors.Is(err, session.ErrInvalidCredentials) {
			logger.Warn(logger.AreaAuth, "failed login for %s from %s", req.Username, getClientIP(r))
			respondWithError(w, "Invalid username or password", http.StatusUnauthorized)
			return
		}
		logger.Error(logger.AreaAuth, "login failed for %s: %v", req.Username, err)
		respondWithError(w, "Login failed", http.StatusInternalServerError)
		return
	}

	h.issueToken(w, req.Username)
}

// HandleGuest creates an anonymous session and returns a guest token, when
// guest access is enabled.
func (h *Handler) HandleGuest(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != "POST" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !configuration.GetBool("Authentication", "enable_guest_access", true) {
		respondWithError(w, "Guest access is disabled", http.StatusForbidden)
		return
	}

	sessionID := uuid.New().String()
	token, err := GenerateGuestToken(sessionID)
	if err != nil {
		logger.Error(logger.AreaAuth, "failed to generate guest token: %v", err)
		respondWithError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	setTokenCookie(w, token)
	logger.Info(logger.AreaAuth, "guest session %s created for %s", sessionID, getClientIP(r))
	json.NewEncoder(w).Encode(TokenResponse{
		Success:   true,
		Token:     token,
		SessionID: sessionID,
		Message:   "Guest session created",
	})
}

// SessionInfoResponse describes the session behind a presented token.
type SessionInfoResponse struct {
	SessionID string `json:"sessionId"`
	Username  string `json:"username,omitempty"`
	Guest     bool   `json:"guest"`
}

// HandleSession reports who the presented token belongs to. Clients call it
// to restore a session from a stored cookie. Must be routed through
// RequireToken, which puts the validated claims into the request context.
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}
	if r.Method != "GET" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	claims, ok := GetClaimsFromContext(r.Context())
	if !ok {
		respondWithError(w, "No session", http.StatusUnauthorized)
		return
	}
	sessionID, _ := GetSessionIDFromContext(r.Context())

	json.NewEncoder(w).Encode(SessionInfoResponse{
		SessionID: sessionID,
		Username:  claims.Username,
		Guest:     claims.Guest(),
	})
}

func (h *Handler) issueToken(w http.ResponseWriter, username string) {
	sessionID := uuid.New().String()
	token, err := GenerateUserToken(sessionID, username)
	if err != nil {
		logger.Error(logger.AreaAuth, "failed to generate token for %s: %v", username, err)
		respondWithError(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	setTokenCookie(w, token)
	json.NewEncoder(w).Encode(TokenResponse{
		Success:   true,
		Token:     token,
		SessionID: sessionID,
		Message:   "Login successful",
	})
}

// validateCredentials enforces the [Authentication] length limits. Returns
// an empty string when the pair is acceptable.
func validateCredentials(username, password string) string {
	minUser := configuration.GetInt("Authentication", "min_username_length", 3)
	maxUser := configuration.GetInt("Authentication", "max_username_length", 20)
	minPass := configuration.GetInt("Authentication", "min_password_length", 6)
	maxPass := configuration.GetInt("Authentication", "max_password_length", 100)

	if len(username) < minUser || len(username) > maxUser {
		return "Username length is out of range"
	}
	for _, c := range username {
		if !isUsernameChar(c) {
			return "Username may only contain letters, digits and underscores"
		}
	}
	if len(password) < minPass || len(password) > maxPass {
		return "Password length is out of range"
	}
	return ""
}

func isUsernameChar(c rune) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
}

func setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     "session_token",
		Value:    token,
		Path:     "/",
		MaxAge:   int(getTokenExpiration().Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Content-Type", "application/json")
}

// getClientIP extracts the client IP, honoring proxy headers.
func getClientIP(r *http.Request) string {
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		return forwarded
	}
	realIP := r.Header.Get("X-Real-IP")
	if realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}

// respondWithError sends a JSON error response.
func respondWithError(w http.ResponseWriter, message string, statusCode int) {
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(TokenResponse{
		Success: false,
		Message: message,
	})
}
