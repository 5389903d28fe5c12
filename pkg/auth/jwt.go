// Package auth issues and validates the JWT tokens that gate WebSocket
// connections. Guests get a token tied to a fresh session ID; registered
// users get one tied to their username as well.
package auth

import (
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kkismd/gridworker/pkg/configuration"
	"github.com/kkismd/gridworker/pkg/logger"
)

const defaultJWTSecret = "fallback_secret_change_in_production"

// getJWTSecret prefers the JWT_SECRET_KEY environment variable over the
// config file.
func getJWTSecret() string {
	if envSecret := os.Getenv("JWT_SECRET_KEY"); envSecret != "" {
		return envSecret
	}

	secret := configuration.GetString("JWT", "secret_key", defaultJWTSecret)
	if secret == defaultJWTSecret || secret == "CHANGE_ME_IN_LOCAL_CONFIG" {
		logger.Warn(logger.AreaAuth, "using fallback JWT secret - set JWT_SECRET_KEY for production")
	}
	return secret
}

func getTokenExpiration() time.Duration {
	hours := configuration.GetInt("JWT", "token_expiration_hours", 24)
	return time.Duration(hours) * time.Hour
}

// Claims carries the session identity inside a token. Username is empty for
// guest tokens.
type Claims struct {
	SessionID string `json:"sid"`
	Username  string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// Guest reports whether the token belongs to an unregistered session.
func (c *Claims) Guest() bool { return c.Username == "" }

// GenerateGuestToken signs a token for an anonymous session.
func GenerateGuestToken(sessionID string) (string, error) {
	return generateToken(sessionID, "", "guest")
}

// GenerateUserToken signs a token for a logged-in user session.
func GenerateUserToken(sessionID, username string) (string, error) {
	return generateToken(sessionID, username, username)
}

func generateToken(sessionID, username, subject string) (string, error) {
	now := time.Now()
	claims := Claims{
		SessionID: sessionID,
		Username:  username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(getTokenExpiration())),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "gridworker",
			Subject:   subject,
			ID:        sessionID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(getJWTSecret()))
	if err != nil {
		return "", fmt.Errorf("token could not be signed: %v", err)
	}
	logger.Info(logger.AreaAuth, "token generated for session %s (user %q)", sessionID, username)
	return signedToken, nil
}

// ValidateToken parses and verifies a token of either kind.
func ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenString,
		&Claims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing algorithm: %v", token.Header["alg"])
			}
			return []byte(getJWTSecret()), nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("token parsing failed: %v", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, fmt.Errorf("could not extract token claims")
	}
	if claims.ExpiresAt.Time.Before(time.Now()) {
		return nil, fmt.Errorf("token has expired")
	}
	return claims, nil
}

// ExtractTokenFromRequest finds the token in the Authorization header, the
// session cookie, or the token query parameter, in that order. The query
// parameter exists because browser WebSocket clients cannot set headers.
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1], nil
		}
		return "", fmt.Errorf("invalid authorization header format")
	}

	cookie, err := r.Cookie("session_token")
	if err == nil {
		return cookie.Value, nil
	}

	token := r.URL.Query().Get("token")
	if token != "" {
		return token, nil
	}

	return "", fmt.Errorf("no token found in request")
}

// RequireToken wraps an HTTP handler and rejects requests without a valid
// token. Claims land in the request context on success.
func RequireToken(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "OPTIONS" {
			next(w, r)
			return
		}
		tokenString, err := ExtractTokenFromRequest(r)
		if err != nil {
			logger.Warn(logger.AreaAuth, "no token in request: %v", err)
			http.Error(w, "Unauthorized: token missing", http.StatusUnauthorized)
			return
		}

		claims, err := ValidateToken(tokenString)
		if err != nil {
			logger.Warn(logger.AreaAuth, "invalid token: %v", err)
			http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
			return
		}

		r = r.WithContext(AddClaimsToContext(r.Context(), claims))
		next(w, r)
	}
}
