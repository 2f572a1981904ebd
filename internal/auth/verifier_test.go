package auth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewVerifierModes(t *testing.T) {
	v, err := NewVerifier("", "", "", "")
	require.NoError(t, err)
	require.False(t, v.Enabled())

	_, err = NewVerifier("hmac", "", "", "")
	require.Error(t, err)
	_, err = NewVerifier("jwks", "", "", "")
	require.Error(t, err)
	_, err = NewVerifier("basic", "x", "", "")
	require.Error(t, err)
}

func TestVerifyHMAC(t *testing.T) {
	v, err := NewVerifier("hmac", "s3cret", "", "")
	require.NoError(t, err)
	require.True(t, v.Enabled())
	ctx := context.Background()

	tok, err := SignHS256("s3cret", map[string]any{"sub": "ops", "role": "Admin"})
	require.NoError(t, err)
	p, err := v.Verify(ctx, tok)
	require.NoError(t, err)
	require.Equal(t, "ops", p.Subject)
	require.True(t, p.IsAdmin())

	forged, err := SignHS256("other", map[string]any{"sub": "ops"})
	require.NoError(t, err)
	_, err = v.Verify(ctx, forged)
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = v.Verify(ctx, "not-a-jwt")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestVerifyExpiry(t *testing.T) {
	v, err := NewVerifier("hmac", "k", "", "")
	require.NoError(t, err)
	now := time.Unix(1_700_000_000, 0)
	v.now = func() time.Time { return now }

	tok, _ := SignHS256("k", map[string]any{"sub": "a", "exp": now.Add(time.Minute).Unix()})
	p, err := v.Verify(context.Background(), tok)
	require.NoError(t, err)
	require.Equal(t, "user", p.Role)

	tok, _ = SignHS256("k", map[string]any{"sub": "a", "exp": now.Add(-time.Minute).Unix()})
	_, err = v.Verify(context.Background(), tok)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestVerifyJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	set := map[string]any{"keys": []map[string]string{{
		"kty": "RSA",
		"kid": "k1",
		"alg": "RS256",
		"n":   b64urlEncode(key.N.Bytes()),
		"e":   b64urlEncode(big.NewInt(int64(key.E)).Bytes()),
	}}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(set)
	}))
	defer srv.Close()

	v, err := NewVerifier("jwks", "", srv.URL, "scope")
	require.NoError(t, err)

	sign := func(kid string) string {
		hdr, _ := json.Marshal(map[string]string{"alg": "RS256", "kid": kid})
		body, _ := json.Marshal(map[string]any{"sub": "svc", "scope": "admin"})
		input := b64urlEncode(hdr) + "." + b64urlEncode(body)
		h := sha256.Sum256([]byte(input))
		sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, h[:])
		require.NoError(t, err)
		return input + "." + b64urlEncode(sig)
	}

	p, err := v.Verify(context.Background(), sign("k1"))
	require.NoError(t, err)
	require.Equal(t, "svc", p.Subject)
	require.True(t, p.IsAdmin())

	_, err = v.Verify(context.Background(), sign("k2"))
	require.ErrorIs(t, err, ErrUnauthorized)
}
