package model

import (
	"time"
)

// Message stores the entire request body of a send-message call verbatim.
// Edits move the previous payload into MessageEdit.
type Message struct {
	TenantID  string    `json:"tenant_id" gorm:"type:varchar(36);primaryKey;index:idx_messages_channel_created,priority:1"`
	ID        string    `json:"id" gorm:"primaryKey"`
	ChannelID string    `json:"channel_id" gorm:"not null;index:idx_messages_channel_created,priority:2"`
	Payload   []byte    `json:"payload" gorm:"type:jsonb;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_messages_channel_created,priority:3"`
}

// MessageEdit is the pre-image of a message payload captured at edit time,
// oldest first.
type MessageEdit struct {
	ID        uint      `json:"-" gorm:"primaryKey"`
	TenantID  string    `json:"tenant_id" gorm:"type:varchar(36);index:idx_message_edits_message,priority:1;not null"`
	MessageID string    `json:"message_id" gorm:"index:idx_message_edits_message,priority:2;not null"`
	Payload   []byte    `json:"payload" gorm:"type:jsonb;not null"`
	EditedAt  time.Time `json:"edited_at" gorm:"index:idx_message_edits_message,priority:3"`
}

// Reaction is an append-only emoji reaction record.
type Reaction struct {
	ID        uint      `json:"-" gorm:"primaryKey"`
	TenantID  string    `json:"tenant_id" gorm:"type:varchar(36);index:idx_reactions_tenant_created,priority:1;not null"`
	ChannelID string    `json:"channel_id" gorm:"not null"`
	MessageID string    `json:"message_id" gorm:"not null"`
	Emoji     string    `json:"emoji" gorm:"not null"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_reactions_tenant_created,priority:2"`
}
