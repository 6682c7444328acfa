package handler

import (
	"net/http"
	"time"

	"github.com/glideapps/fake-discord/internal/signer"
	"github.com/glideapps/fake-discord/pkg/config"
	"github.com/glideapps/fake-discord/pkg/logger"
	"github.com/glideapps/fake-discord/prometheus"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

var webhookClient = &http.Client{Timeout: 10 * time.Second}

// InitInteractionHandler configures the outbound webhook client.
func InitInteractionHandler(cfg *config.Config) {
	webhookClient = &http.Client{Timeout: cfg.Webhook.Timeout}
}

// SendInteraction signs an interaction payload with the tenant's private key
// and POSTs it at the system under test, the way Discord would deliver a
// slash-command invocation.
func SendInteraction(c echo.Context) error {
	log := logger.FromContext(c)

	tenant, err := requireTenant(c, c.Param("id"))
	if tenant == nil {
		return err
	}

	var req struct {
		WebhookURL  string      `json:"webhookUrl"`
		Interaction interface{} `json:"interaction"`
	}
	if err := c.Bind(&req); err != nil {
		return invalidBody(c)
	}
	if req.WebhookURL == "" {
		return missingField(c, "webhookUrl")
	}
	if req.Interaction == nil {
		return missingField(c, "interaction")
	}

	result, err := signer.Deliver(webhookClient, req.WebhookURL, tenant.PrivateKey, req.Interaction, time.Now())
	if err != nil {
		log.Warn("Webhook delivery failed",
			zap.String("tenant_id", tenant.ID),
			zap.String("webhook_url", req.WebhookURL),
			zap.Error(err))
		prometheus.RecordWebhookDelivery("error")
		return c.JSON(http.StatusBadGateway, echo.Map{
			"error": "Webhook request failed: " + err.Error(),
		})
	}

	prometheus.RecordWebhookDelivery("ok")
	log.Info("Interaction delivered",
		zap.String("tenant_id", tenant.ID),
		zap.Int("status_code", result.StatusCode))

	return c.JSON(http.StatusOK, result)
}
