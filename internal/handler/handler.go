// Package handler implements the Discord-shaped impersonation surface and
// the /_test control surface in front of the tenant state store.
package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/glideapps/fake-discord/prometheus"
	"github.com/labstack/echo/v4"
)

// unauthorized is the Discord-shaped 401. A missing or unparseable
// Authorization header is indistinguishable from a bad token.
func unauthorized(c echo.Context) error {
	prometheus.RecordInvalidRequest("unauthorized")
	return c.JSON(http.StatusUnauthorized, echo.Map{"message": "401: Unauthorized"})
}

// unknownEntity is the Discord-shaped 404 ("Unknown Channel" etc).
func unknownEntity(c echo.Context, entity string) error {
	prometheus.RecordInvalidRequest("unknown_" + strings.ToLower(entity))
	return c.JSON(http.StatusNotFound, echo.Map{"message": "Unknown " + entity})
}

// invalidBody is the Discord-shaped 400 for content-type and parse failures.
func invalidBody(c echo.Context) error {
	prometheus.RecordInvalidRequest("invalid_body")
	return c.JSON(http.StatusBadRequest, echo.Map{"message": "Invalid request body"})
}

// tenantNotFound is the test-control 404.
func tenantNotFound(c echo.Context) error {
	prometheus.RecordInvalidRequest("tenant_not_found")
	return c.JSON(http.StatusNotFound, echo.Map{"error": "Tenant not found"})
}

// NotFound is the catch-all for unknown routes.
func NotFound(c echo.Context) error {
	return c.JSON(http.StatusNotFound, echo.Map{"message": "404: Not Found"})
}

// hasContentType checks the Content-Type header against a media type,
// tolerating a ;-separated suffix such as "; charset=utf-8".
func hasContentType(c echo.Context, mediaType string) bool {
	ct := c.Request().Header.Get(echo.HeaderContentType)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(ct) == mediaType
}

// readJSONBody enforces the JSON content-type discipline and returns the raw
// body bytes alongside the decoded value. The raw bytes are what gets
// persisted; the decoded value is only used to pull out response fields.
func readJSONBody(c echo.Context) ([]byte, map[string]interface{}, error) {
	if !hasContentType(c, echo.MIMEApplicationJSON) {
		return nil, nil, echo.ErrUnsupportedMediaType
	}
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, nil, err
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, nil, err
	}
	return body, payload, nil
}

// contentOf extracts the "content" field of a message payload, defaulting to
// the empty string.
func contentOf(payload map[string]interface{}) string {
	if content, ok := payload["content"].(string); ok {
		return content
	}
	return ""
}

// rawOrString renders stored bytes for a JSON response: valid JSON passes
// through untouched, anything else (form bodies, plain text) becomes a
// string, empty becomes null.
func rawOrString(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	return string(b)
}
