// Package store holds the multi-statement atomic operations shared by the
// HTTP handlers and the expiry sweeper. Each operation runs as a single
// statement or inside a single transaction so concurrent readers see either
// the previous state or the new state, never a partial one. The sweeper is
// the exception: it reclaims each expired tenant in its own transaction.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/glideapps/fake-discord/internal/model"
	"gorm.io/gorm"
)

var (
	// ErrNotFound means the referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrBotTokenInUse means another tenant already owns the bot token.
	ErrBotTokenInUse = errors.New("botToken already in use")
	// ErrClientIDInUse means another tenant already owns the client id.
	ErrClientIDInUse = errors.New("clientId already in use")
)

// CreateTenant inserts the tenant with its guild/channel topology in one
// transaction. Uniqueness of bot_token and client_id is enforced by the
// store's unique indexes; under a race exactly one creator wins.
func CreateTenant(db *gorm.DB, tenant *model.Tenant, guilds []model.Guild, channels []model.Channel) error {
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(tenant).Error; err != nil {
			return err
		}
		if len(guilds) > 0 {
			if err := tx.Create(&guilds).Error; err != nil {
				return err
			}
		}
		if len(channels) > 0 {
			if err := tx.Create(&channels).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		// The constraint is the authority; figure out which credential lost.
		var n int64
		db.Model(&model.Tenant{}).Where("bot_token = ?", tenant.BotToken).Count(&n)
		if n > 0 {
			return ErrBotTokenInUse
		}
		return ErrClientIDInUse
	}
	return err
}

// DeleteTenant cascades the tenant and every child row in one transaction.
func DeleteTenant(db *gorm.DB, tenantID string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := deleteTenantRows(tx, tenantID); err != nil {
			return err
		}
		res := tx.Where("id = ?", tenantID).Delete(&model.Tenant{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// deleteTenantRows removes every child table row for the tenant. The tenant
// row itself is left to the caller.
func deleteTenantRows(tx *gorm.DB, tenantID string) error {
	for _, m := range []interface{}{
		&model.Followup{},
		&model.InteractionResponse{},
		&model.RegisteredCommand{},
		&model.Reaction{},
		&model.MessageEdit{},
		&model.Message{},
		&model.AccessToken{},
		&model.AuthCode{},
		&model.AuditLog{},
		&model.Channel{},
		&model.Guild{},
	} {
		if err := tx.Where("tenant_id = ?", tenantID).Delete(m).Error; err != nil {
			return err
		}
	}
	return nil
}

// ResetTenant deletes all mutable rows for the tenant and rewinds the id
// counter to 1. Tenant config and guild/channel topology survive.
func ResetTenant(db *gorm.DB, tenantID string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, m := range []interface{}{
			&model.Followup{},
			&model.InteractionResponse{},
			&model.RegisteredCommand{},
			&model.Reaction{},
			&model.MessageEdit{},
			&model.Message{},
			&model.AccessToken{},
			&model.AuthCode{},
			&model.AuditLog{},
		} {
			if err := tx.Where("tenant_id = ?", tenantID).Delete(m).Error; err != nil {
				return err
			}
		}
		res := tx.Model(&model.Tenant{}).Where("id = ?", tenantID).Update("next_id", 1)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// GenerateID atomically increments the tenant's counter and returns
// "{prefix}-{n}" where n is the pre-increment value. Concurrent calls for
// the same tenant produce distinct, contiguous ids.
func GenerateID(db *gorm.DB, tenantID, prefix string) (string, error) {
	var next int64
	res := db.Raw(
		"UPDATE tenants SET next_id = next_id + 1 WHERE id = ? RETURNING next_id",
		tenantID,
	).Scan(&next)
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected == 0 {
		return "", ErrNotFound
	}
	return fmt.Sprintf("%s-%d", prefix, next-1), nil
}

// ConsumedAuthCode is what the token exchange reads out of a redeemed code.
type ConsumedAuthCode struct {
	TenantID    string
	GuildID     string
	RedirectURI string
}

// ConsumeAuthCode redeems an authorization code issued to the tenant. Read
// and delete happen in a single statement so two racing exchanges cannot
// both succeed.
func ConsumeAuthCode(db *gorm.DB, tenantID, code string) (*ConsumedAuthCode, error) {
	var consumed ConsumedAuthCode
	res := db.Raw(
		"DELETE FROM auth_codes WHERE code = ? AND tenant_id = ? RETURNING tenant_id, guild_id, redirect_uri",
		code, tenantID,
	).Scan(&consumed)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return &consumed, nil
}

// EditMessage captures the current payload into message_edits and replaces
// it, in one transaction. The pre-image stays entirely inside the store; the
// payload is never read into application memory.
func EditMessage(db *gorm.DB, tenantID, messageID string, payload []byte, editedAt time.Time) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(
			`INSERT INTO message_edits (tenant_id, message_id, payload, edited_at)
			 SELECT tenant_id, id, payload, ? FROM messages WHERE tenant_id = ? AND id = ?`,
			editedAt, tenantID, messageID,
		).Error; err != nil {
			return err
		}
		res := tx.Model(&model.Message{}).
			Where("tenant_id = ? AND id = ?", tenantID, messageID).
			Update("payload", payload)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// UpsertInteractionResponse writes the @original response for an interaction
// token, replacing any previous payload. It returns the response id assigned
// by this call.
func UpsertInteractionResponse(db *gorm.DB, tenantID, interactionToken string, payload []byte, respondedAt time.Time) (string, error) {
	var responseID string
	err := db.Transaction(func(tx *gorm.DB) error {
		id, err := GenerateID(tx, tenantID, "resp")
		if err != nil {
			return err
		}
		responseID = id
		return tx.Exec(
			`INSERT INTO interaction_responses (tenant_id, interaction_token, response_id, payload, responded_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (tenant_id, interaction_token)
			 DO UPDATE SET response_id = excluded.response_id, payload = excluded.payload, responded_at = excluded.responded_at`,
			tenantID, interactionToken, responseID, payload, respondedAt,
		).Error
	})
	if err != nil {
		return "", err
	}
	return responseID, nil
}

// ReplaceCommands swaps the entire command set for (tenant, guild) with the
// given payloads, assigning fresh ids. Readers see the old set or the new
// set, never a mix.
func ReplaceCommands(db *gorm.DB, tenantID, guildID string, payloads [][]byte, registeredAt time.Time) ([]model.RegisteredCommand, error) {
	var commands []model.RegisteredCommand
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tenant_id = ? AND guild_id = ?", tenantID, guildID).
			Delete(&model.RegisteredCommand{}).Error; err != nil {
			return err
		}
		commands = make([]model.RegisteredCommand, 0, len(payloads))
		for _, payload := range payloads {
			id, err := GenerateID(tx, tenantID, "cmd")
			if err != nil {
				return err
			}
			cmd := model.RegisteredCommand{
				TenantID:     tenantID,
				ID:           id,
				GuildID:      guildID,
				Payload:      payload,
				RegisteredAt: registeredAt,
			}
			if err := tx.Create(&cmd).Error; err != nil {
				return err
			}
			commands = append(commands, cmd)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return commands, nil
}

// SweepExpiredTenants deletes every tenant older than ttl, using the same
// cascade as DeleteTenant. Safe to run concurrently with request traffic;
// each tenant is reclaimed in its own transaction.
func SweepExpiredTenants(db *gorm.DB, ttl time.Duration, now time.Time) (int, error) {
	cutoff := now.Add(-ttl)
	var ids []string
	if err := db.Model(&model.Tenant{}).
		Where("created_at < ?", cutoff).
		Order("created_at").
		Pluck("id", &ids).Error; err != nil {
		return 0, err
	}

	deleted := 0
	for _, id := range ids {
		if err := DeleteTenant(db, id); err != nil {
			// A concurrent explicit delete got there first.
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}
