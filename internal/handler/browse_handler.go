package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/glideapps/fake-discord/internal/model"
	"github.com/glideapps/fake-discord/pkg/database"
	"github.com/labstack/echo/v4"
)

// tenantCounts tallies the child-table rows the browse UI shows per tenant.
func tenantCounts(tenantID string) (map[string]int64, error) {
	counts := map[string]int64{}
	for name, m := range map[string]interface{}{
		"guilds":               &model.Guild{},
		"channels":             &model.Channel{},
		"messages":             &model.Message{},
		"messageEdits":         &model.MessageEdit{},
		"reactions":            &model.Reaction{},
		"interactionResponses": &model.InteractionResponse{},
		"followups":            &model.Followup{},
		"commands":             &model.RegisteredCommand{},
		"authCodes":            &model.AuthCode{},
		"accessTokens":         &model.AccessToken{},
		"auditLogs":            &model.AuditLog{},
	} {
		var n int64
		if err := database.GetDB().Model(m).Where("tenant_id = ?", tenantID).Count(&n).Error; err != nil {
			return nil, err
		}
		counts[name] = n
	}
	return counts, nil
}

// BrowseTenants is the read-only aggregate behind the UI's tenant list.
func BrowseTenants(c echo.Context) error {
	var tenants []model.Tenant
	if err := database.GetDB().Order("created_at").Find(&tenants).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	type tenantSummary struct {
		ID        string           `json:"id"`
		ClientID  string           `json:"clientId"`
		CreatedAt time.Time        `json:"createdAt"`
		Counts    map[string]int64 `json:"counts"`
	}
	summaries := make([]tenantSummary, 0, len(tenants))
	for _, tenant := range tenants {
		counts, err := tenantCounts(tenant.ID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
		}
		summaries = append(summaries, tenantSummary{
			ID:        tenant.ID,
			ClientID:  tenant.ClientID,
			CreatedAt: tenant.CreatedAt,
			Counts:    counts,
		})
	}

	return c.JSON(http.StatusOK, summaries)
}

// BrowseTenant is the read-only aggregate behind the UI's tenant detail
// page: topology, counts, and the most recent messages.
func BrowseTenant(c echo.Context) error {
	tenant, err := requireTenant(c, c.Param("id"))
	if tenant == nil {
		return err
	}

	var guilds []model.Guild
	if err := database.GetDB().Where("tenant_id = ?", tenant.ID).Order("id").Find(&guilds).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	var channels []model.Channel
	if err := database.GetDB().Where("tenant_id = ?", tenant.ID).Order("id").Find(&channels).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	counts, err := tenantCounts(tenant.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	var recent []model.Message
	if err := database.GetDB().
		Where("tenant_id = ?", tenant.ID).
		Order("created_at desc, id desc").
		Limit(20).
		Find(&recent).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	type recentMessage struct {
		ID        string          `json:"id"`
		ChannelID string          `json:"channelId"`
		Payload   json.RawMessage `json:"payload"`
		CreatedAt time.Time       `json:"createdAt"`
	}
	recentViews := make([]recentMessage, 0, len(recent))
	for _, message := range recent {
		recentViews = append(recentViews, recentMessage{
			ID:        message.ID,
			ChannelID: message.ChannelID,
			Payload:   json.RawMessage(message.Payload),
			CreatedAt: message.CreatedAt,
		})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"tenant":         tenant,
		"guilds":         guilds,
		"channels":       channels,
		"counts":         counts,
		"recentMessages": recentViews,
	})
}
