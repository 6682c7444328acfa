package model

import (
	"time"
)

// Tenant is an isolated impersonation context: one bot identity, one OAuth
// application, and a fixed topology of guilds and channels. Every other row
// in the store hangs off a tenant.
type Tenant struct {
	ID           string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	BotToken     string    `json:"-" gorm:"uniqueIndex;not null"`
	ClientID     string    `json:"client_id" gorm:"uniqueIndex;not null"`
	ClientSecret string    `json:"-" gorm:"not null"`
	PublicKey    string    `json:"public_key" gorm:"not null"`
	PrivateKey   string    `json:"-" gorm:"not null"`
	NextID       int64     `json:"next_id" gorm:"not null;default:1"`
	CreatedAt    time.Time `json:"created_at" gorm:"index"`
}

// Guild is a server within a tenant. Immutable after tenant creation.
type Guild struct {
	TenantID string `json:"tenant_id" gorm:"type:varchar(36);primaryKey"`
	ID       string `json:"id" gorm:"primaryKey"`
	Name     string `json:"name"`
}

// Channel is a message container within a guild.
type Channel struct {
	TenantID string `json:"tenant_id" gorm:"type:varchar(36);primaryKey"`
	ID       string `json:"id" gorm:"primaryKey"`
	GuildID  string `json:"guild_id" gorm:"not null"`
	Name     string `json:"name"`
}
