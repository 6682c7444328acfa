package handler

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/glideapps/fake-discord/internal/middleware"
	"github.com/glideapps/fake-discord/internal/model"
	"github.com/glideapps/fake-discord/internal/resolver"
	"github.com/glideapps/fake-discord/internal/store"
	"github.com/glideapps/fake-discord/pkg/database"
	"github.com/glideapps/fake-discord/pkg/logger"
	"github.com/glideapps/fake-discord/prometheus"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// accessTokenLifetimeSeconds is advertised on the token response. The store
// never enforces it; tokens live until the tenant is reset or deleted.
const accessTokenLifetimeSeconds = 604800

// Authorize impersonates GET /oauth2/authorize. Instead of rendering a
// consent screen it immediately issues a code against the tenant's first
// guild and redirects back.
func Authorize(c echo.Context) error {
	log := logger.FromContext(c)

	clientID := c.QueryParam("client_id")
	tenant, err := resolver.ByClientID(database.GetDB(), clientID)
	if err != nil {
		log.Error("Failed to resolve client", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if tenant == nil {
		log.Warn("Authorize with unknown client_id", zap.String("client_id", clientID))
		prometheus.RecordInvalidRequest("unknown_client_id")
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "Unknown client_id"})
	}
	middleware.SetTenantID(c, tenant.ID)

	redirectURI := c.QueryParam("redirect_uri")
	if redirectURI == "" {
		return invalidBody(c)
	}

	var guild model.Guild
	if err := database.GetDB().
		Where("tenant_id = ?", tenant.ID).
		Order("id asc").
		First(&guild).Error; err != nil {
		log.Error("Tenant has no guilds", zap.String("tenant_id", tenant.ID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	authCode := model.AuthCode{
		Code:        model.GenerateSecureToken(),
		TenantID:    tenant.ID,
		GuildID:     guild.ID,
		RedirectURI: redirectURI,
	}
	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := database.GetDB().Create(&authCode).Error; err != nil {
		log.Error("Failed to create auth code", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	location, err := url.Parse(redirectURI)
	if err != nil {
		return invalidBody(c)
	}
	query := location.Query()
	query.Set("code", authCode.Code)
	query.Set("state", c.QueryParam("state"))
	query.Set("guild_id", guild.ID)
	location.RawQuery = query.Encode()

	return c.Redirect(http.StatusFound, location.String())
}

// ExchangeToken impersonates POST /api/v10/oauth2/token: validate the client
// secret, atomically consume the code, check the stored redirect_uri, and
// issue a bearer token.
func ExchangeToken(c echo.Context) error {
	log := logger.FromContext(c)

	if !hasContentType(c, echo.MIMEApplicationForm) {
		prometheus.RecordInvalidTokenRequest("invalid_content_type")
		return invalidBody(c)
	}
	if err := c.Request().ParseForm(); err != nil {
		log.Warn("Failed to parse form data", zap.Error(err))
		prometheus.RecordInvalidTokenRequest("invalid_form")
		return invalidBody(c)
	}

	tenant, err := resolver.ByClientID(database.GetDB(), c.FormValue("client_id"))
	if err != nil {
		log.Error("Failed to resolve client", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if tenant == nil || tenant.ClientSecret != c.FormValue("client_secret") {
		prometheus.RecordInvalidTokenRequest("invalid_client")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid_client"})
	}
	middleware.SetTenantID(c, tenant.ID)

	consumed, err := store.ConsumeAuthCode(database.GetDB(), tenant.ID, c.FormValue("code"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			prometheus.RecordInvalidTokenRequest("invalid_grant")
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid_grant"})
		}
		log.Error("Failed to consume auth code", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	if consumed.RedirectURI != c.FormValue("redirect_uri") {
		prometheus.RecordInvalidTokenRequest("redirect_uri_mismatch")
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error":             "invalid_request",
			"error_description": "redirect_uri mismatch",
		})
	}

	accessToken := model.AccessToken{
		Token:     model.GenerateSecureToken(),
		TenantID:  tenant.ID,
		CreatedAt: time.Now().UTC(),
	}
	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := database.GetDB().Create(&accessToken).Error; err != nil {
		log.Error("Failed to create access token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	prometheus.RecordTokenIssued()
	log.Info("Access token issued",
		zap.String("tenant_id", tenant.ID),
		zap.String("guild_id", consumed.GuildID))

	return c.JSON(http.StatusOK, echo.Map{
		"access_token": accessToken.Token,
		"token_type":   "Bearer",
		"expires_in":   accessTokenLifetimeSeconds,
		"scope":        "identify guilds",
		"guild_id":     consumed.GuildID,
	})
}

// GetCurrentUser impersonates GET /api/v10/users/@me for bearer tokens,
// returning a synthetic user derived from the tenant id.
func GetCurrentUser(c echo.Context) error {
	log := logger.FromContext(c)

	tenant, err := resolver.FromBearerHeader(database.GetDB(), c.Request().Header.Get("Authorization"))
	if err != nil {
		log.Error("Failed to resolve bearer token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if tenant == nil {
		return unauthorized(c)
	}
	middleware.SetTenantID(c, tenant.ID)

	return c.JSON(http.StatusOK, echo.Map{
		"id":            "fake-user-" + tenant.ID,
		"username":      "fakeuser",
		"global_name":   "Fake User (" + tenant.ID + ")",
		"discriminator": "0",
	})
}
