package handler

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes wires the Discord impersonation surface and the /_test
// control surface onto the echo instance. Operational endpoints (/health,
// /metrics) are registered by the caller.
func RegisterRoutes(e *echo.Echo) {
	// OAuth2 surface
	e.GET("/oauth2/authorize", Authorize)

	// Discord REST surface
	api := e.Group("/api/v10")
	api.POST("/oauth2/token", ExchangeToken)
	api.GET("/users/@me", GetCurrentUser)
	api.GET("/channels/:channel", GetChannel)
	api.POST("/channels/:channel/messages", SendMessage)
	api.PATCH("/channels/:channel/messages/:message", EditMessage)
	api.PUT("/channels/:channel/messages/:message/reactions/:emoji/@me", AddReaction)
	api.PATCH("/webhooks/:clientId/:token/messages/@original", EditInteractionResponse)
	api.POST("/webhooks/:clientId/:token", SendFollowup)
	api.PUT("/applications/:clientId/guilds/:guild/commands", BulkOverwriteCommands)

	// Test-control surface
	test := e.Group("/_test")
	test.POST("/tenants", CreateTenant)
	test.GET("/tenants/:id", GetTenant)
	test.DELETE("/tenants/:id", DeleteTenant)
	test.POST("/jobs/cleanup-old-tenants", RunCleanupJob)
	test.GET("/browse/tenants", BrowseTenants)
	test.GET("/browse/tenants/:id", BrowseTenant)
	test.POST("/:id/reset", ResetTenant)
	test.GET("/:id/messages/:channel", GetMessages)
	test.GET("/:id/reactions", GetReactions)
	test.GET("/:id/interaction-responses/:token", GetInteractionResponse)
	test.GET("/:id/followups/:token", GetFollowups)
	test.GET("/:id/commands/:guild", GetCommands)
	test.GET("/:id/audit-logs", GetAuditLogs)
	test.POST("/:id/auth-code", CreateAuthCode)
	test.POST("/:id/send-interaction", SendInteraction)

	// Unknown routes answer like Discord does
	e.RouteNotFound("/*", NotFound)
}
