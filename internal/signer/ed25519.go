// Package signer implements the Ed25519 helpers used to push signed
// interactions at the system under test. Keys travel as hex strings; no
// platform key-import machinery is involved.
package signer

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
)

// PrivateKeyBytes decodes a hex private key. A 32-byte value is a seed and
// is used directly; a 64-byte value is a secret key (seed followed by the
// public key) and only the first 32 bytes are kept.
func PrivateKeyBytes(privateKeyHex string) ([]byte, error) {
	raw, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key hex: %w", err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return raw, nil
	case ed25519.PrivateKeySize:
		return raw[:ed25519.SeedSize], nil
	default:
		return nil, fmt.Errorf("invalid private key length: %d bytes", len(raw))
	}
}

// PublicKey derives the hex public key from a hex private key.
func PublicKey(privateKeyHex string) (string, error) {
	seed, err := PrivateKeyBytes(privateKeyHex)
	if err != nil {
		return "", err
	}
	key := ed25519.NewKeyFromSeed(seed)
	return hex.EncodeToString(key.Public().(ed25519.PublicKey)), nil
}

// Sign signs (timestamp || body) with the given hex private key and returns
// the signature as lowercase hex. The message is the UTF-8 bytes of the two
// strings concatenated without a separator.
func Sign(privateKeyHex, timestamp, body string) (string, error) {
	seed, err := PrivateKeyBytes(privateKeyHex)
	if err != nil {
		return "", err
	}
	key := ed25519.NewKeyFromSeed(seed)
	sig := ed25519.Sign(key, []byte(timestamp+body))
	return hex.EncodeToString(sig), nil
}

// Verify reports whether the hex signature is valid for the message under
// the hex public key.
func Verify(signatureHex, message, publicKeyHex string) bool {
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	pub, err := hex.DecodeString(publicKeyHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), []byte(message), sig)
}
