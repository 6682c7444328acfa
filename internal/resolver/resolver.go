// Package resolver maps inbound request credentials to tenants. These are
// pure lookups: none of them authorize anything, callers compare the
// resolved tenant against request context themselves.
package resolver

import (
	"errors"
	"strings"

	"github.com/glideapps/fake-discord/internal/model"
	"gorm.io/gorm"
)

// ByBotToken resolves the tenant owning the given bot token.
func ByBotToken(db *gorm.DB, token string) (*model.Tenant, error) {
	return lookup(db, "bot_token = ?", token)
}

// ByClientID resolves the tenant owning the given OAuth client id.
func ByClientID(db *gorm.DB, clientID string) (*model.Tenant, error) {
	return lookup(db, "client_id = ?", clientID)
}

// ByID resolves a tenant by its primary key.
func ByID(db *gorm.DB, tenantID string) (*model.Tenant, error) {
	return lookup(db, "id = ?", tenantID)
}

// ByBearerToken resolves the tenant that issued the given access token.
func ByBearerToken(db *gorm.DB, token string) (*model.Tenant, error) {
	var accessToken model.AccessToken
	if err := db.Where("token = ?", token).First(&accessToken).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return ByID(db, accessToken.TenantID)
}

// FromBotHeader resolves a tenant from an "Authorization: Bot <t>" header.
// A missing or unparseable header resolves to no tenant, indistinguishable
// from a bad token.
func FromBotHeader(db *gorm.DB, authHeader string) (*model.Tenant, error) {
	token, ok := strings.CutPrefix(authHeader, "Bot ")
	if !ok || token == "" {
		return nil, nil
	}
	return ByBotToken(db, token)
}

// FromBearerHeader resolves a tenant from an "Authorization: Bearer <t>"
// header.
func FromBearerHeader(db *gorm.DB, authHeader string) (*model.Tenant, error) {
	token, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || token == "" {
		return nil, nil
	}
	return ByBearerToken(db, token)
}

func lookup(db *gorm.DB, query string, arg string) (*model.Tenant, error) {
	var tenant model.Tenant
	if err := db.Where(query, arg).First(&tenant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tenant, nil
}
