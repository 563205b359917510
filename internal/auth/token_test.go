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

	"github.com/golang-jwt/jwt/v5"
)

func newSigningKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

// jwksServer publishes the key's public half the way the auth provider does.
func jwksServer(t *testing.T, kid string, key *rsa.PrivateKey) *httptest.Server {
	t.Helper()

	pub := key.Public().(*rsa.PublicKey)
	set := jwkSet{Keys: []jwk{{
		Kid: kid,
		Kty: "RSA",
		Use: "sig",
		Alg: "RS256",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func signToken(t *testing.T, key *rsa.PrivateKey, kid, issuer string, expiresAt time.Time) string {
	t.Helper()

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Name: "Alice",
		Role: RoleUser,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatal(err)
	}
	return signed
}

func TestVerifierValidatesSignedToken(t *testing.T) {
	key := newSigningKey(t)
	srv := jwksServer(t, "k1", key)

	v, err := NewVerifier(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	signed := signToken(t, key, "k1", srv.URL, time.Now().Add(time.Hour))

	claims, err := v.Validate("Bearer " + signed)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Subject != "alice" || claims.Name != "Alice" || claims.Role != RoleUser {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestVerifierRejectsBadTokens(t *testing.T) {
	key := newSigningKey(t)
	srv := jwksServer(t, "k1", key)

	v, err := NewVerifier(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := v.Validate(""); err == nil {
		t.Error("expected error for empty token")
	}

	expired := signToken(t, key, "k1", srv.URL, time.Now().Add(-time.Hour))
	if _, err := v.Validate(expired); err == nil {
		t.Error("expected error for expired token")
	}

	wrongIssuer := signToken(t, key, "k1", "https://elsewhere.example", time.Now().Add(time.Hour))
	if _, err := v.Validate(wrongIssuer); err == nil {
		t.Error("expected error for foreign issuer")
	}

	unknownKid := signToken(t, key, "k2", srv.URL, time.Now().Add(time.Hour))
	if _, err := v.Validate(unknownKid); err == nil {
		t.Error("expected error for unknown kid")
	}

	otherKey := newSigningKey(t)
	forged := signToken(t, otherKey, "k1", srv.URL, time.Now().Add(time.Hour))
	if _, err := v.Validate(forged); err == nil {
		t.Error("expected error for token signed with a foreign key")
	}
}

func TestVerifierRefreshReplacesKeys(t *testing.T) {
	oldKey := newSigningKey(t)
	newKey := newSigningKey(t)

	current := oldKey
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pub := current.Public().(*rsa.PublicKey)
		json.NewEncoder(w).Encode(jwkSet{Keys: []jwk{{
			Kid: "k1",
			Kty: "RSA",
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}}})
	}))
	defer srv.Close()

	v, err := NewVerifier(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	current = newKey
	if err := v.Refresh(); err != nil {
		t.Fatal(err)
	}

	rotated := signToken(t, newKey, "k1", srv.URL, time.Now().Add(time.Hour))
	if _, err := v.Validate(rotated); err != nil {
		t.Errorf("token under the rotated key rejected: %v", err)
	}

	stale := signToken(t, oldKey, "k1", srv.URL, time.Now().Add(time.Hour))
	if _, err := v.Validate(stale); err == nil {
		t.Error("token under the replaced key still accepted")
	}
}
