package model

import (
	"time"
)

// AuthCode is a single-use OAuth authorization code. The row exists only
// while the code is pending; a successful token exchange consumes it.
type AuthCode struct {
	Code        string `json:"code" gorm:"primaryKey"`
	TenantID    string `json:"tenant_id" gorm:"type:varchar(36);index;not null"`
	GuildID     string `json:"guild_id" gorm:"not null"`
	RedirectURI string `json:"redirect_uri" gorm:"not null"`
}

// AccessToken is a Bearer credential issued by the token exchange. Tokens
// never expire within the service's horizon; reset deletes them.
type AccessToken struct {
	Token     string    `json:"-" gorm:"primaryKey"`
	TenantID  string    `json:"tenant_id" gorm:"type:varchar(36);index;not null"`
	CreatedAt time.Time `json:"created_at"`
}
