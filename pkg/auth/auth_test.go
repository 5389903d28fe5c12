package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kkismd/gridworker/pkg/session"
)

// TestGuestTokenRoundTrip tests guest token creation and validation
func TestGuestTokenRoundTrip(t *testing.T) {
	sessionID := "test-session-123"

	token, err := GenerateGuestToken(sessionID)
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	if token == "" {
		t.Error("Generated token should not be empty")
	}

	claims, err := ValidateToken(token)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}
	if claims.SessionID != sessionID {
		t.Errorf("Expected session ID %s, got %s", sessionID, claims.SessionID)
	}
	if !claims.Guest() {
		t.Error("Guest token should report Guest()")
	}
}

// TestUserTokenRoundTrip tests user token creation and validation
func TestUserTokenRoundTrip(t *testing.T) {
	token, err := GenerateUserToken("session-abc", "alice")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	claims, err := ValidateToken(token)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}
	if claims.Username != "alice" {
		t.Errorf("Expected username alice, got %s", claims.Username)
	}
	if claims.Guest() {
		t.Error("User token should not report Guest()")
	}
}

// TestExpiredTokenRejected tests that expired tokens are rejected
func TestExpiredTokenRejected(t *testing.T) {
	expiredClaims := Claims{
		SessionID: "test-session-expire",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-1 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			NotBefore: jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			Issuer:    "gridworker",
			Subject:   "guest",
		},
	}

	expiredToken := jwt.NewWithClaims(jwt.SigningMethodHS256, expiredClaims)
	expiredTokenString, err := expiredToken.SignedString([]byte(getJWTSecret()))
	if err != nil {
		t.Fatalf("Failed to create expired token: %v", err)
	}

	if _, err := ValidateToken(expiredTokenString); err == nil {
		t.Error("Expired token should be rejected")
	}
}

// TestInvalidToken tests validation of malformed tokens
func TestInvalidToken(t *testing.T) {
	testCases := []string{
		"",
		"invalid.token.here",
		"eyJ0eXAiOiJKV1QiLCJhbGciOiJIUzI1NiJ9",
	}

	for _, token := range testCases {
		if _, err := ValidateToken(token); err == nil {
			t.Errorf("Token %q should be invalid", token)
		}
	}
}

// TestExtractTokenFromRequest tests token extraction from different sources
func TestExtractTokenFromRequest(t *testing.T) {
	token, err := GenerateGuestToken("test-session-extract")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	// Authorization header
	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	extracted, err := ExtractTokenFromRequest(req)
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if extracted != token {
		t.Errorf("Expected token %s, got %s", token, extracted)
	}

	// Cookie
	req2 := httptest.NewRequest("GET", "/test", nil)
	req2.AddCookie(&http.Cookie{Name: "session_token", Value: token})
	extracted2, err2 := ExtractTokenFromRequest(req2)
	if err2 != nil {
		t.Errorf("Expected no error, got %v", err2)
	}
	if extracted2 != token {
		t.Errorf("Expected token %s, got %s", token, extracted2)
	}

	// Query parameter
	req3 := httptest.NewRequest("GET", "/test?token="+token, nil)
	extracted3, err3 := ExtractTokenFromRequest(req3)
	if err3 != nil {
		t.Errorf("Expected no error, got %v", err3)
	}
	if extracted3 != token {
		t.Errorf("Expected token %s, got %s", token, extracted3)
	}

	// No token at all
	req4 := httptest.NewRequest("GET", "/test", nil)
	if _, err4 := ExtractTokenFromRequest(req4); err4 == nil {
		t.Error("Expected error when no token present")
	}
}

// TestValidateCredentials tests the username and password checks
func TestValidateCredentials(t *testing.T) {
	testCases := []struct {
		name     string
		username string
		password string
		wantOK   bool
	}{
		{"valid", "alice_99", "hunter22", true},
		{"username too short", "ab", "hunter22", false},
		{"username too long", "abcdefghijklmnopqrstu", "hunter22", false},
		{"username bad chars", "alice bob", "hunter22", false},
		{"password too short", "alice", "pw", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			msg := validateCredentials(tc.username, tc.password)
			if tc.wantOK && msg != "" {
				t.Errorf("Expected credentials to pass, got %q", msg)
			}
			if !tc.wantOK && msg == "" {
				t.Error("Expected credentials to be rejected")
			}
		})
	}
}

// TestGuestHandler tests the guest session endpoint
func TestGuestHandler(t *testing.T) {
	h := NewHandler(nil)

	req := httptest.NewRequest("POST", "/api/auth/guest", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.HandleGuest(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var response TokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if !response.Success {
		t.Errorf("Expected success=true, got %v", response.Success)
	}
	if response.Token == "" || response.SessionID == "" {
		t.Error("Guest response should carry a token and a session ID")
	}

	claims, err := ValidateToken(response.Token)
	if err != nil {
		t.Fatalf("Guest token should validate: %v", err)
	}
	if claims.SessionID != response.SessionID {
		t.Errorf("Token session ID %s does not match response %s", claims.SessionID, response.SessionID)
	}
}

// TestRegisterAndLoginHandlers exercises the full register-then-login flow
// against a real store.
func TestRegisterAndLoginHandlers(t *testing.T) {
	store, err := session.OpenStore(filepath.Join(t.TempDir(), "auth_test.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()
	h := NewHandler(store)

	body, _ := json.Marshal(CredentialsRequest{Username: "alice", Password: "hunter22"})
	req := httptest.NewRequest("POST", "/api/auth/register", bytes.NewBuffer(body))
	w := httptest.NewRecorder()
	h.HandleRegister(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Register: expected status 200, got %d", w.Code)
	}

	// Registering the same name again conflicts.
	req = httptest.NewRequest("POST", "/api/auth/register", bytes.NewBuffer(body))
	w = httptest.NewRecorder()
	h.HandleRegister(w, req)
	if w.Code != http.StatusConflict {
		t.Errorf("Duplicate register: expected status 409, got %d", w.Code)
	}

	// Correct credentials log in.
	req = httptest.NewRequest("POST", "/api/auth/login", bytes.NewBuffer(body))
	w = httptest.NewRecorder()
	h.HandleLogin(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Login: expected status 200, got %d", w.Code)
	}

	var response TokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	claims, err := ValidateToken(response.Token)
	if err != nil {
		t.Fatalf("Login token should validate: %v", err)
	}
	if claims.Username != "alice" {
		t.Errorf("Expected username alice in token, got %s", claims.Username)
	}

	// Wrong password is rejected.
	badBody, _ := json.Marshal(CredentialsRequest{Username: "alice", Password: "wrong-password"})
	req = httptest.NewRequest("POST", "/api/auth/login", bytes.NewBuffer(badBody))
	w = httptest.NewRecorder()
	h.HandleLogin(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Bad login: expected status 401, got %d", w.Code)
	}
}

// TestRequireTokenMiddleware tests the token gate around handlers
func TestRequireTokenMiddleware(t *testing.T) {
	called := false
	handler := RequireToken(func(w http.ResponseWriter, r *http.Request) {
		called = true
		claims, ok := GetClaimsFromContext(r.Context())
		if !ok || claims == nil {
			t.Error("Claims should be present in the request context")
		}
	})

	// Without a token the wrapped handler never runs.
	req := httptest.NewRequest("GET", "/ws", nil)
	w := httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
	if called {
		t.Error("Handler should not run without a token")
	}

	// With a valid token it runs and sees the claims.
	token, err := GenerateGuestToken("middleware-session")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	req = httptest.NewRequest("GET", "/ws?token="+token, nil)
	w = httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if !called {
		t.Error("Handler should run with a valid token")
	}
}

// TestSessionInfoEndpoint tests the token-gated session lookup
func TestSessionInfoEndpoint(t *testing.T) {
	h := NewHandler(nil)
	handler := RequireToken(h.HandleSession)

	// No token: the gate rejects before the handler runs.
	req := httptest.NewRequest("GET", "/api/auth/session", nil)
	w := httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 without token, got %d", w.Code)
	}

	// A user token reports its session ID and username.
	token, err := GenerateUserToken("session-info-1", "alice")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	req = httptest.NewRequest("GET", "/api/auth/session?token="+token, nil)
	w = httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var info SessionInfoResponse
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if info.SessionID != "session-info-1" || info.Username != "alice" || info.Guest {
		t.Errorf("Session info = %+v, want session-info-1/alice/guest=false", info)
	}

	// A guest token reports guest status with no username.
	guestToken, err := GenerateGuestToken("session-info-2")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	req = httptest.NewRequest("GET", "/api/auth/session?token="+guestToken, nil)
	w = httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if info.SessionID != "session-info-2" || !info.Guest {
		t.Errorf("Guest session info = %+v, want session-info-2/guest=true", info)
	}
}

// BenchmarkTokenValidation benchmarks token validation performance
func BenchmarkTokenValidation(b *testing.B) {
	token, err := GenerateGuestToken("benchmark-session")
	if err != nil {
		b.Fatalf("Failed to generate token: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ValidateToken(token); err != nil {
			b.Fatalf("Failed to validate token: %v", err)
		}
	}
}
