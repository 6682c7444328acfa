package model

import (
	"time"
)

// InteractionResponse is the @original response for an interaction token.
// At most one row exists per (tenant, token); repeated PATCHes upsert it.
type InteractionResponse struct {
	TenantID         string    `json:"tenant_id" gorm:"type:varchar(36);primaryKey"`
	InteractionToken string    `json:"interaction_token" gorm:"primaryKey"`
	ResponseID       string    `json:"response_id" gorm:"not null"`
	Payload          []byte    `json:"payload" gorm:"type:jsonb;not null"`
	RespondedAt      time.Time `json:"responded_at"`
}

// Followup is an additional message appended after the initial interaction
// response. Any number may exist per token.
type Followup struct {
	TenantID         string    `json:"tenant_id" gorm:"type:varchar(36);primaryKey;index:idx_followups_token_created,priority:1"`
	ID               string    `json:"id" gorm:"primaryKey"`
	InteractionToken string    `json:"interaction_token" gorm:"not null;index:idx_followups_token_created,priority:2"`
	Payload          []byte    `json:"payload" gorm:"type:jsonb;not null"`
	CreatedAt        time.Time `json:"created_at" gorm:"index:idx_followups_token_created,priority:3"`
}
