package signer

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeypair(t *testing.T) (seedHex, secretHex, publicHex string) {
	t.Helper()
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	key := ed25519.NewKeyFromSeed(seed)
	return hex.EncodeToString(seed),
		hex.EncodeToString(key),
		hex.EncodeToString(key.Public().(ed25519.PublicKey))
}

func TestPrivateKeyBytes(t *testing.T) {
	seedHex, secretHex, _ := testKeypair(t)

	fromSeed, err := PrivateKeyBytes(seedHex)
	require.NoError(t, err)
	assert.Len(t, fromSeed, ed25519.SeedSize)

	// A 64-byte secret key is seed || pub; only the seed half counts.
	fromSecret, err := PrivateKeyBytes(secretHex)
	require.NoError(t, err)
	assert.Equal(t, fromSeed, fromSecret)

	_, err = PrivateKeyBytes("zz")
	assert.Error(t, err)

	_, err = PrivateKeyBytes(hex.EncodeToString(make([]byte, 16)))
	assert.Error(t, err)
}

func TestPublicKeyDerivation(t *testing.T) {
	seedHex, secretHex, publicHex := testKeypair(t)

	derived, err := PublicKey(seedHex)
	require.NoError(t, err)
	assert.Equal(t, publicHex, derived)

	derived, err = PublicKey(secretHex)
	require.NoError(t, err)
	assert.Equal(t, publicHex, derived)
}

func TestSignAndVerify(t *testing.T) {
	seedHex, secretHex, publicHex := testKeypair(t)

	sig, err := Sign(seedHex, "1700000000", `{"type":1}`)
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(sig), sig, "signature must be lowercase hex")

	// The message is timestamp || body with no separator.
	assert.True(t, Verify(sig, "1700000000"+`{"type":1}`, publicHex))
	assert.False(t, Verify(sig, "1700000001"+`{"type":1}`, publicHex))
	assert.False(t, Verify(sig, "1700000000"+`{"type":2}`, publicHex))

	// Seed form and secret-key form sign identically.
	sig2, err := Sign(secretHex, "1700000000", `{"type":1}`)
	require.NoError(t, err)
	assert.Equal(t, sig, sig2)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	_, _, publicHex := testKeypair(t)
	assert.False(t, Verify("not-hex", "msg", publicHex))
	assert.False(t, Verify("abcd", "msg", "not-hex"))
	assert.False(t, Verify("abcd", "msg", "abcd"))
}

func TestDeliverSignsAndPosts(t *testing.T) {
	seedHex, _, publicHex := testKeypair(t)

	var gotSignature, gotTimestamp, gotContentType string
	var gotBody []byte
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get("X-Signature-Ed25519")
		gotTimestamp = r.Header.Get("X-Signature-Timestamp")
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"type":1}`))
	}))
	defer target.Close()

	now := time.Unix(1700000000, 500*int64(time.Millisecond))
	result, err := Deliver(target.Client(), target.URL, seedHex, map[string]interface{}{"type": float64(2)}, now)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, map[string]interface{}{"type": float64(1)}, result.Body)

	// Timestamp is whole seconds, and the signature covers exactly the
	// bytes that were POSTed.
	assert.Equal(t, "1700000000", gotTimestamp)
	assert.Equal(t, "application/json", gotContentType)

	var posted map[string]interface{}
	require.NoError(t, json.Unmarshal(gotBody, &posted))
	assert.Equal(t, float64(2), posted["type"])
	assert.True(t, Verify(gotSignature, gotTimestamp+string(gotBody), publicHex))
}

func TestDeliverNonJSONResponse(t *testing.T) {
	seedHex, _, _ := testKeypair(t)

	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream broke"))
	}))
	defer target.Close()

	result, err := Deliver(target.Client(), target.URL, seedHex, map[string]interface{}{"type": 1}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, result.StatusCode)
	assert.Equal(t, "upstream broke", result.Body)
}

func TestDeliverNetworkError(t *testing.T) {
	seedHex, _, _ := testKeypair(t)

	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target.Close() // nothing is listening anymore

	_, err := Deliver(http.DefaultClient, target.URL, seedHex, map[string]interface{}{"type": 1}, time.Now())
	assert.Error(t, err)
}
