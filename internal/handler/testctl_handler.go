package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/glideapps/fake-discord/internal/middleware"
	"github.com/glideapps/fake-discord/internal/model"
	"github.com/glideapps/fake-discord/internal/resolver"
	"github.com/glideapps/fake-discord/internal/store"
	"github.com/glideapps/fake-discord/pkg/database"
	"github.com/glideapps/fake-discord/pkg/logger"
	"github.com/glideapps/fake-discord/prometheus"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	defaultAuditLogLimit = 100
	maxAuditLogLimit     = 1000
)

type createChannelRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type createGuildRequest struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Channels []createChannelRequest `json:"channels"`
}

type createTenantRequest struct {
	BotToken     string               `json:"botToken"`
	ClientID     string               `json:"clientId"`
	ClientSecret string               `json:"clientSecret"`
	PublicKey    string               `json:"publicKey"`
	PrivateKey   string               `json:"privateKey"`
	Guilds       []createGuildRequest `json:"guilds"`
}

func missingField(c echo.Context, field string) error {
	prometheus.RecordInvalidRequest("missing_field")
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "Missing required field: " + field})
}

// CreateTenant provisions a new isolated tenant with its guild/channel
// topology. Uniqueness of botToken and clientId is settled by the store's
// unique constraints, so two racing creators get exactly one 201 and one 409.
func CreateTenant(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("create")

	var req createTenantRequest
	if err := c.Bind(&req); err != nil {
		log.Warn("Failed to parse tenant creation request", zap.Error(err))
		return invalidBody(c)
	}

	switch {
	case req.BotToken == "":
		return missingField(c, "botToken")
	case req.ClientID == "":
		return missingField(c, "clientId")
	case req.ClientSecret == "":
		return missingField(c, "clientSecret")
	case req.PublicKey == "":
		return missingField(c, "publicKey")
	case req.PrivateKey == "":
		return missingField(c, "privateKey")
	case len(req.Guilds) == 0:
		return missingField(c, "guilds")
	}
	for _, guild := range req.Guilds {
		if len(guild.Channels) == 0 {
			return missingField(c, "channels")
		}
	}

	tenant := model.Tenant{
		ID:           uuid.New().String(),
		BotToken:     req.BotToken,
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		PublicKey:    req.PublicKey,
		PrivateKey:   req.PrivateKey,
		NextID:       1,
		CreatedAt:    time.Now().UTC(),
	}

	var guilds []model.Guild
	var channels []model.Channel
	for _, guild := range req.Guilds {
		guilds = append(guilds, model.Guild{
			TenantID: tenant.ID,
			ID:       guild.ID,
			Name:     guild.Name,
		})
		for _, channel := range guild.Channels {
			channels = append(channels, model.Channel{
				TenantID: tenant.ID,
				ID:       channel.ID,
				GuildID:  guild.ID,
				Name:     channel.Name,
			})
		}
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := store.CreateTenant(database.GetDB(), &tenant, guilds, channels); err != nil {
		if errors.Is(err, store.ErrBotTokenInUse) || errors.Is(err, store.ErrClientIDInUse) {
			log.Warn("Tenant credential conflict", zap.Error(err))
			return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
		}
		log.Error("Failed to create tenant", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	middleware.SetTenantID(c, tenant.ID)

	log.Info("Tenant created",
		zap.String("tenant_id", tenant.ID),
		zap.String("client_id", tenant.ClientID),
		zap.Int("guilds", len(guilds)),
		zap.Int("channels", len(channels)))

	return c.JSON(http.StatusCreated, echo.Map{
		"id":        tenant.ID,
		"clientId":  tenant.ClientID,
		"createdAt": tenant.CreatedAt,
	})
}

// GetTenant echoes a tenant's configuration and topology. Secrets stay out
// of the response via the model's json tags.
func GetTenant(c echo.Context) error {
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

	return c.JSON(http.StatusOK, echo.Map{
		"tenant":   tenant,
		"guilds":   guilds,
		"channels": channels,
	})
}

// DeleteTenant cascades the tenant and everything it owns.
func DeleteTenant(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("delete")

	tenantID := c.Param("id")
	defer prometheus.TrackDBOperation("delete")(time.Now())
	if err := store.DeleteTenant(database.GetDB(), tenantID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return tenantNotFound(c)
		}
		log.Error("Failed to delete tenant", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	log.Info("Tenant deleted", zap.String("tenant_id", tenantID))
	return c.JSON(http.StatusOK, echo.Map{"deleted": true})
}

// ResetTenant wipes all mutable state and rewinds the id counter while
// keeping the tenant's credentials and topology.
func ResetTenant(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordTenantOperation("reset")

	tenant, err := requireTenant(c, c.Param("id"))
	if tenant == nil {
		return err
	}

	defer prometheus.TrackDBOperation("delete")(time.Now())
	if err := store.ResetTenant(database.GetDB(), tenant.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return tenantNotFound(c)
		}
		log.Error("Failed to reset tenant", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	log.Info("Tenant reset", zap.String("tenant_id", tenant.ID))
	return c.JSON(http.StatusOK, echo.Map{"reset": true})
}

// requireTenant resolves the tenant id path parameter. On a miss it has
// already written the 404 and returns a nil tenant.
func requireTenant(c echo.Context, tenantID string) (*model.Tenant, error) {
	tenant, err := resolver.ByID(database.GetDB(), tenantID)
	if err != nil {
		logger.FromContext(c).Error("Failed to resolve tenant", zap.Error(err))
		return nil, c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if tenant == nil {
		return nil, tenantNotFound(c)
	}
	middleware.SetTenantID(c, tenant.ID)
	return tenant, nil
}

type messageEditView struct {
	Payload  json.RawMessage `json:"payload"`
	EditedAt time.Time       `json:"editedAt"`
}

type messageView struct {
	ID          string            `json:"id"`
	ChannelID   string            `json:"channelId"`
	Payload     json.RawMessage   `json:"payload"`
	CreatedAt   time.Time         `json:"createdAt"`
	EditHistory []messageEditView `json:"editHistory"`
}

// GetMessages returns the channel's messages with their edit history, oldest
// first.
func GetMessages(c echo.Context) error {
	tenant, err := requireTenant(c, c.Param("id"))
	if tenant == nil {
		return err
	}

	var messages []model.Message
	if err := database.GetDB().
		Where("tenant_id = ? AND channel_id = ?", tenant.ID, c.Param("channel")).
		Order("created_at, id").
		Find(&messages).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	views := make([]messageView, 0, len(messages))
	for _, message := range messages {
		var edits []model.MessageEdit
		if err := database.GetDB().
			Where("tenant_id = ? AND message_id = ?", tenant.ID, message.ID).
			Order("edited_at, id").
			Find(&edits).Error; err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
		}
		history := make([]messageEditView, 0, len(edits))
		for _, edit := range edits {
			history = append(history, messageEditView{
				Payload:  json.RawMessage(edit.Payload),
				EditedAt: edit.EditedAt,
			})
		}
		views = append(views, messageView{
			ID:          message.ID,
			ChannelID:   message.ChannelID,
			Payload:     json.RawMessage(message.Payload),
			CreatedAt:   message.CreatedAt,
			EditHistory: history,
		})
	}

	return c.JSON(http.StatusOK, views)
}

// GetReactions returns every reaction recorded for the tenant, oldest first.
func GetReactions(c echo.Context) error {
	tenant, err := requireTenant(c, c.Param("id"))
	if tenant == nil {
		return err
	}

	var reactions []model.Reaction
	if err := database.GetDB().
		Where("tenant_id = ?", tenant.ID).
		Order("created_at, id").
		Find(&reactions).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	type reactionView struct {
		ChannelID string    `json:"channelId"`
		MessageID string    `json:"messageId"`
		Emoji     string    `json:"emoji"`
		CreatedAt time.Time `json:"createdAt"`
	}
	views := make([]reactionView, 0, len(reactions))
	for _, reaction := range reactions {
		views = append(views, reactionView{
			ChannelID: reaction.ChannelID,
			MessageID: reaction.MessageID,
			Emoji:     reaction.Emoji,
			CreatedAt: reaction.CreatedAt,
		})
	}

	return c.JSON(http.StatusOK, views)
}

// GetInteractionResponse returns the @original response for an interaction
// token, or null when nothing has been recorded yet.
func GetInteractionResponse(c echo.Context) error {
	tenant, err := requireTenant(c, c.Param("id"))
	if tenant == nil {
		return err
	}

	var responses []model.InteractionResponse
	if err := database.GetDB().
		Where("tenant_id = ? AND interaction_token = ?", tenant.ID, c.Param("token")).
		Limit(1).
		Find(&responses).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if len(responses) == 0 {
		return c.JSON(http.StatusOK, nil)
	}

	response := responses[0]
	return c.JSON(http.StatusOK, echo.Map{
		"responseId":  response.ResponseID,
		"payload":     json.RawMessage(response.Payload),
		"respondedAt": response.RespondedAt,
	})
}

// GetFollowups returns the followups recorded behind an interaction token,
// oldest first.
func GetFollowups(c echo.Context) error {
	tenant, err := requireTenant(c, c.Param("id"))
	if tenant == nil {
		return err
	}

	var followups []model.Followup
	if err := database.GetDB().
		Where("tenant_id = ? AND interaction_token = ?", tenant.ID, c.Param("token")).
		Order("created_at, id").
		Find(&followups).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	type followupView struct {
		ID        string          `json:"id"`
		Payload   json.RawMessage `json:"payload"`
		CreatedAt time.Time       `json:"createdAt"`
	}
	views := make([]followupView, 0, len(followups))
	for _, followup := range followups {
		views = append(views, followupView{
			ID:        followup.ID,
			Payload:   json.RawMessage(followup.Payload),
			CreatedAt: followup.CreatedAt,
		})
	}

	return c.JSON(http.StatusOK, views)
}

// GetCommands returns the registered command set for a guild.
func GetCommands(c echo.Context) error {
	tenant, err := requireTenant(c, c.Param("id"))
	if tenant == nil {
		return err
	}

	var commands []model.RegisteredCommand
	if err := database.GetDB().
		Where("tenant_id = ? AND guild_id = ?", tenant.ID, c.Param("guild")).
		Order("registered_at, id").
		Find(&commands).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	type commandView struct {
		ID           string          `json:"id"`
		GuildID      string          `json:"guildId"`
		Payload      json.RawMessage `json:"payload"`
		RegisteredAt time.Time       `json:"registeredAt"`
	}
	views := make([]commandView, 0, len(commands))
	for _, command := range commands {
		views = append(views, commandView{
			ID:           command.ID,
			GuildID:      command.GuildID,
			Payload:      json.RawMessage(command.Payload),
			RegisteredAt: command.RegisteredAt,
		})
	}

	return c.JSON(http.StatusOK, views)
}

// GetAuditLogs pages through the tenant's audit trail in insertion order.
func GetAuditLogs(c echo.Context) error {
	tenant, err := requireTenant(c, c.Param("id"))
	if tenant == nil {
		return err
	}

	limit := defaultAuditLogLimit
	if raw := c.QueryParam("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxAuditLogLimit {
		limit = maxAuditLogLimit
	}
	offset := 0
	if raw := c.QueryParam("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	var total int64
	if err := database.GetDB().Model(&model.AuditLog{}).
		Where("tenant_id = ?", tenant.ID).
		Count(&total).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	var entries []model.AuditLog
	if err := database.GetDB().
		Where("tenant_id = ?", tenant.ID).
		Order("id").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	type auditLogView struct {
		ID             uint        `json:"id"`
		Method         string      `json:"method"`
		URL            string      `json:"url"`
		RequestBody    interface{} `json:"requestBody"`
		ResponseStatus int         `json:"responseStatus"`
		ResponseBody   interface{} `json:"responseBody"`
		CreatedAt      time.Time   `json:"createdAt"`
	}
	views := make([]auditLogView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, auditLogView{
			ID:             entry.ID,
			Method:         entry.Method,
			URL:            entry.URL,
			RequestBody:    rawOrString(entry.RequestBody),
			ResponseStatus: entry.ResponseStatus,
			ResponseBody:   rawOrString(entry.ResponseBody),
			CreatedAt:      entry.CreatedAt,
		})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"total":   total,
		"limit":   limit,
		"offset":  offset,
		"entries": views,
	})
}

// CreateAuthCode pre-issues an authorization code so drivers can script the
// OAuth exchange without walking through the authorize redirect.
func CreateAuthCode(c echo.Context) error {
	log := logger.FromContext(c)

	tenant, err := requireTenant(c, c.Param("id"))
	if tenant == nil {
		return err
	}

	var req struct {
		GuildID     string `json:"guildId"`
		RedirectURI string `json:"redirectUri"`
	}
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	if req.GuildID == "" {
		return missingField(c, "guildId")
	}
	if req.RedirectURI == "" {
		return missingField(c, "redirectUri")
	}

	var count int64
	if err := database.GetDB().Model(&model.Guild{}).
		Where("tenant_id = ? AND id = ?", tenant.ID, req.GuildID).
		Count(&count).Error; err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if count == 0 {
		prometheus.RecordInvalidRequest("unknown_guild")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "guild does not belong to tenant"})
	}

	authCode := model.AuthCode{
		Code:        model.GenerateSecureToken(),
		TenantID:    tenant.ID,
		GuildID:     req.GuildID,
		RedirectURI: req.RedirectURI,
	}
	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := database.GetDB().Create(&authCode).Error; err != nil {
		log.Error("Failed to create auth code", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	return c.JSON(http.StatusOK, echo.Map{"code": authCode.Code})
}
