package model

import (
	"crypto/rand"
	"encoding/base64"
)

// GenerateSecureToken creates a secure random token string. Used for auth
// codes and access tokens.
func GenerateSecureToken() string {
	b := make([]byte, 32)
	_, err := rand.Read(b)
	if err != nil {
		// In a real application, we would handle this error better
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// AllModels lists every entity automigrated at startup, parents before
// children.
func AllModels() []interface{} {
	return []interface{}{
		&Tenant{},
		&Guild{},
		&Channel{},
		&AuthCode{},
		&AccessToken{},
		&Message{},
		&MessageEdit{},
		&Reaction{},
		&InteractionResponse{},
		&Followup{},
		&RegisteredCommand{},
		&AuditLog{},
	}
}
