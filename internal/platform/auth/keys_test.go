package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

func rsaPublicKeyToJWK(key *rsa.PrivateKey, kid string) JWKSKey {
	return JWKSKey{
		Kty: "RSA",
		Kid: kid,
		Use: "sig",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
	}
}

func newJWKSServer(t *testing.T, key *rsa.PrivateKey, kid string, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(JWKSResponse{Keys: []JWKSKey{rsaPublicKeyToJWK(key, kid)}})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestJWKSCache_FetchAndCache(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}
	var hits int32
	srv := newJWKSServer(t, privateKey, "k1", &hits)

	cache := NewJWKSCache(srv.URL, 5*time.Minute)
	key, err := cache.GetKey("k1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key.N.Cmp(privateKey.PublicKey.N) != 0 || key.E != privateKey.PublicKey.E {
		t.Error("fetched key does not match original")
	}

	if _, err := cache.GetKey("k1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if atomic.LoadInt32(&hits) != 1 {
		t.Errorf("expected cached key, endpoint hit %d times", hits)
	}

	if _, err := cache.GetKey("unknown"); err == nil {
		t.Error("expected error for unknown kid")
	}
}

func TestJWKSCache_EndpointError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := NewJWKSCache(srv.URL, time.Minute).GetKey("k1"); err == nil {
		t.Fatal("expected error from failing JWKS endpoint")
	}
}

func TestDiscoverJWKSURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/good/.well-known/openid-configuration":
			json.NewEncoder(w).Encode(map[string]string{"issuer": "x", "jwks_uri": "https://idp.example.org/jwks"})
		case "/empty/.well-known/openid-configuration":
			json.NewEncoder(w).Encode(map[string]string{"issuer": "x"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	got, err := discoverJWKSURL(srv.URL + "/good/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "https://idp.example.org/jwks" {
		t.Errorf("jwks_uri = %q", got)
	}
	if _, err := discoverJWKSURL(srv.URL + "/empty"); err == nil {
		t.Error("expected error for missing jwks_uri")
	}
	if _, err := discoverJWKSURL(srv.URL + "/missing"); err == nil {
		t.Error("expected error for 404")
	}
}

func TestJWTMiddleware_RS256ViaJWKS(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}
	srv := newJWKSServer(t, privateKey, "k1", nil)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims("op-9", RoleStaff))
	token.Header["kid"] = "k1"
	tokenStr, err := token.SignedString(privateKey)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	c := e.NewContext(req, httptest.NewRecorder())

	h := JWTMiddleware(JWTConfig{JWKSURL: srv.URL})(func(c echo.Context) error {
		if UserIDFromContext(c.Request().Context()) != "op-9" {
			t.Errorf("expected op-9")
		}
		return c.NoContent(http.StatusOK)
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
