package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func principalEcho(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("X-Test-User", p.UserID)
		w.Header().Set("X-Test-Role", p.Role)
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticateHS256(t *testing.T) {
	secret := "test-secret"
	token, err := SignHS256(Claims{
		Sub:  "patient-1",
		Role: RolePatient,
		Iat:  time.Now().Unix(),
		Exp:  time.Now().Add(1 * time.Hour).Unix(),
	}, secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	h := Authenticate(Verifier{Secret: secret})(principalEcho(t))

	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK || rw.Header().Get("X-Test-User") != "patient-1" || rw.Header().Get("X-Test-Role") != RolePatient {
		t.Fatalf("expected authenticated patient, got %d %v", rw.Code, rw.Header())
	}

	reqBad := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	reqBad.Header.Set("Authorization", "Bearer badtoken")
	rwBad := httptest.NewRecorder()
	h.ServeHTTP(rwBad, reqBad)
	if rwBad.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rwBad.Code)
	}

	reqAnon := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	rwAnon := httptest.NewRecorder()
	h.ServeHTTP(rwAnon, reqAnon)
	if rwAnon.Code != http.StatusNoContent {
		t.Fatalf("expected anonymous pass-through, got %d", rwAnon.Code)
	}
}

func TestAuthenticateRS256ViaJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey failed: %v", err)
	}
	jwksSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": []map[string]string{{
			"kty": "RSA",
			"kid": "kid-1",
			"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		}}})
	}))
	defer jwksSrv.Close()

	token, err := signRS256(Claims{Sub: "doctor-9", Role: RoleDoctor, Exp: time.Now().Add(time.Hour).Unix()}, key, "kid-1")
	if err != nil {
		t.Fatalf("signRS256 failed: %v", err)
	}

	h := Authenticate(Verifier{Secret: "unused", JWKS: NewJWKSClient(jwksSrv.URL, time.Minute)})(principalEcho(t))
	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK || rw.Header().Get("X-Test-User") != "doctor-9" {
		t.Fatalf("expected authenticated doctor, got %d", rw.Code)
	}
}
