package model

import (
	"time"
)

// RegisteredCommand is one slash command registered for a guild. The whole
// (tenant, guild) set is replaced on each bulk overwrite.
type RegisteredCommand struct {
	TenantID     string    `json:"tenant_id" gorm:"type:varchar(36);primaryKey;index:idx_commands_guild_registered,priority:1"`
	ID           string    `json:"id" gorm:"primaryKey"`
	GuildID      string    `json:"guild_id" gorm:"not null;index:idx_commands_guild_registered,priority:2"`
	Payload      []byte    `json:"payload" gorm:"type:jsonb;not null"`
	RegisteredAt time.Time `json:"registered_at" gorm:"index:idx_commands_guild_registered,priority:3"`
}
