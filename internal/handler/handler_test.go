package handler_test

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/glideapps/fake-discord/internal/handler"
	"github.com/glideapps/fake-discord/internal/middleware"
	"github.com/glideapps/fake-discord/internal/model"
	"github.com/glideapps/fake-discord/internal/signer"
	"github.com/glideapps/fake-discord/internal/testutil"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestServer(t *testing.T) (*echo.Echo, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)

	e := echo.New()
	e.Use(echomiddleware.Recover())
	e.Use(middleware.RequestIDMiddleware())
	e.Use(middleware.AuditMiddleware())
	e.GET("/health", handler.HealthCheck)
	handler.RegisterRoutes(e)
	return e, db
}

func do(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func jsonReq(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), "body: %s", rec.Body.String())
	return body
}

func decodeList(t *testing.T, rec *httptest.ResponseRecorder) []map[string]interface{} {
	t.Helper()
	var body []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), "body: %s", rec.Body.String())
	return body
}

func tenantPayload(botToken, clientID, publicKey, privateKey string) string {
	return fmt.Sprintf(`{
		"botToken": %q,
		"clientId": %q,
		"clientSecret": "shh",
		"publicKey": %q,
		"privateKey": %q,
		"guilds": [{"id": "g", "name": "Guild", "channels": [{"id": "c", "name": "general"}]}]
	}`, botToken, clientID, publicKey, privateKey)
}

func createTenant(t *testing.T, e *echo.Echo, botToken, clientID string) string {
	t.Helper()
	rec := do(e, jsonReq(http.MethodPost, "/_test/tenants", tenantPayload(botToken, clientID, "pub", "priv")))
	require.Equal(t, http.StatusCreated, rec.Code, "body: %s", rec.Body.String())
	return decode(t, rec)["id"].(string)
}

func botReq(method, target, body, botToken string) *http.Request {
	var req *http.Request
	if body != "" {
		req = jsonReq(method, target, body)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Header.Set("Authorization", "Bot "+botToken)
	return req
}

func TestCreateSendFetch(t *testing.T) {
	e, _ := newTestServer(t)
	id := createTenant(t, e, "bot-1", "client-1")

	rec := do(e, botReq(http.MethodPost, "/api/v10/channels/c/messages", `{"content":"Hi"}`, "bot-1"))
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	sent := decode(t, rec)
	assert.Equal(t, "msg-1", sent["id"])
	assert.Equal(t, "c", sent["channel_id"])
	assert.Equal(t, "Hi", sent["content"])

	rec = do(e, httptest.NewRequest(http.MethodGet, "/_test/"+id+"/messages/c", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	messages := decodeList(t, rec)
	require.Len(t, messages, 1)
	assert.Equal(t, "msg-1", messages[0]["id"])
	payload := messages[0]["payload"].(map[string]interface{})
	assert.Equal(t, "Hi", payload["content"])
	assert.Empty(t, messages[0]["editHistory"])
}

func TestEditCapturesHistory(t *testing.T) {
	e, _ := newTestServer(t)
	id := createTenant(t, e, "bot-1", "client-1")

	do(e, botReq(http.MethodPost, "/api/v10/channels/c/messages", `{"content":"Hi"}`, "bot-1"))

	rec := do(e, botReq(http.MethodPatch, "/api/v10/channels/c/messages/msg-1", `{"content":"Hi!"}`, "bot-1"))
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	edited := decode(t, rec)
	assert.Equal(t, "msg-1", edited["id"])
	assert.Equal(t, "Hi!", edited["content"])

	rec = do(e, httptest.NewRequest(http.MethodGet, "/_test/"+id+"/messages/c", nil))
	messages := decodeList(t, rec)
	require.Len(t, messages, 1)
	payload := messages[0]["payload"].(map[string]interface{})
	assert.Equal(t, "Hi!", payload["content"])

	history := messages[0]["editHistory"].([]interface{})
	require.Len(t, history, 1)
	pre := history[0].(map[string]interface{})["payload"].(map[string]interface{})
	assert.Equal(t, "Hi", pre["content"])
}

func TestEditUnknownMessage(t *testing.T) {
	e, _ := newTestServer(t)
	createTenant(t, e, "bot-1", "client-1")

	rec := do(e, botReq(http.MethodPatch, "/api/v10/channels/c/messages/msg-404", `{"content":"x"}`, "bot-1"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Unknown Message", decode(t, rec)["message"])
}

func formReq(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return req
}

func TestOAuthReplayRejected(t *testing.T) {
	e, _ := newTestServer(t)
	id := createTenant(t, e, "bot-1", "client-1")

	rec := do(e, jsonReq(http.MethodPost, "/_test/"+id+"/auth-code",
		`{"guildId":"g","redirectUri":"https://app.example/cb"}`))
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	code := decode(t, rec)["code"].(string)

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {"client-1"},
		"client_secret": {"shh"},
		"code":          {code},
		"redirect_uri":  {"https://app.example/cb"},
	}
	rec = do(e, formReq("/api/v10/oauth2/token", form))
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	issued := decode(t, rec)
	accessToken := issued["access_token"].(string)
	assert.Equal(t, "Bearer", issued["token_type"])
	assert.EqualValues(t, 604800, issued["expires_in"])

	// Replaying the same code fails.
	rec = do(e, formReq("/api/v10/oauth2/token", form))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_grant", decode(t, rec)["error"])

	// The issued token still resolves.
	req := httptest.NewRequest(http.MethodGet, "/api/v10/users/@me", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	rec = do(e, req)
	require.Equal(t, http.StatusOK, rec.Code)
	user := decode(t, rec)
	assert.Equal(t, "fake-user-"+id, user["id"])
	assert.Equal(t, "fakeuser", user["username"])
	assert.Equal(t, "0", user["discriminator"])
}

func TestTokenExchangeErrors(t *testing.T) {
	e, _ := newTestServer(t)
	id := createTenant(t, e, "bot-1", "client-1")

	rec := do(e, jsonReq(http.MethodPost, "/_test/"+id+"/auth-code",
		`{"guildId":"g","redirectUri":"https://app.example/cb"}`))
	code := decode(t, rec)["code"].(string)

	// Wrong secret
	form := url.Values{
		"client_id":     {"client-1"},
		"client_secret": {"wrong"},
		"code":          {code},
		"redirect_uri":  {"https://app.example/cb"},
	}
	rec = do(e, formReq("/api/v10/oauth2/token", form))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_client", decode(t, rec)["error"])

	// redirect_uri mismatch: code survives the secret failure, dies here
	form.Set("client_secret", "shh")
	form.Set("redirect_uri", "https://evil.example/cb")
	rec = do(e, formReq("/api/v10/oauth2/token", form))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "invalid_request", body["error"])
	assert.Equal(t, "redirect_uri mismatch", body["error_description"])

	// JSON body on a form endpoint
	rec = do(e, jsonReq(http.MethodPost, "/api/v10/oauth2/token", `{"client_id":"client-1"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthorizeRedirect(t *testing.T) {
	e, _ := newTestServer(t)
	createTenant(t, e, "bot-1", "client-1")

	target := "/oauth2/authorize?client_id=client-1&redirect_uri=" +
		url.QueryEscape("https://app.example/cb") + "&state=xyz"
	rec := do(e, httptest.NewRequest(http.MethodGet, target, nil))
	require.Equal(t, http.StatusFound, rec.Code, "body: %s", rec.Body.String())

	location, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "app.example", location.Host)
	assert.Equal(t, "xyz", location.Query().Get("state"))
	assert.Equal(t, "g", location.Query().Get("guild_id"))
	code := location.Query().Get("code")
	require.NotEmpty(t, code)

	// The redirect's code is exchangeable.
	form := url.Values{
		"client_id":     {"client-1"},
		"client_secret": {"shh"},
		"code":          {code},
		"redirect_uri":  {"https://app.example/cb"},
	}
	rec = do(e, formReq("/api/v10/oauth2/token", form))
	assert.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	// Unknown client id gets a 400, not a consent screen.
	rec = do(e, httptest.NewRequest(http.MethodGet,
		"/oauth2/authorize?client_id=nope&redirect_uri=https%3A%2F%2Fapp.example%2Fcb", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Unknown client_id", decode(t, rec)["message"])
}

func TestConcurrentTenantCreationRace(t *testing.T) {
	e, _ := newTestServer(t)

	var wg sync.WaitGroup
	codes := make([]int, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := tenantPayload("bot-race", fmt.Sprintf("client-race-%d", i), "pub", "priv")
			rec := do(e, jsonReq(http.MethodPost, "/_test/tenants", payload))
			codes[i] = rec.Code
		}(i)
	}
	wg.Wait()

	assert.ElementsMatch(t, []int{http.StatusCreated, http.StatusConflict}, codes)
}

func TestCreateTenantValidation(t *testing.T) {
	e, _ := newTestServer(t)

	rec := do(e, jsonReq(http.MethodPost, "/_test/tenants", `{"clientId":"x"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing required field: botToken", decode(t, rec)["error"])

	rec = do(e, jsonReq(http.MethodPost, "/_test/tenants", `{
		"botToken":"b","clientId":"c","clientSecret":"s","publicKey":"p","privateKey":"k","guilds":[]
	}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing required field: guilds", decode(t, rec)["error"])

	rec = do(e, jsonReq(http.MethodPost, "/_test/tenants", `{
		"botToken":"b","clientId":"c","clientSecret":"s","publicKey":"p","privateKey":"k",
		"guilds":[{"id":"g","name":"G","channels":[]}]
	}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing required field: channels", decode(t, rec)["error"])

	// Duplicate clientId with a fresh botToken conflicts on clientId.
	createTenant(t, e, "bot-1", "client-1")
	rec = do(e, jsonReq(http.MethodPost, "/_test/tenants", tenantPayload("bot-2", "client-1", "pub", "priv")))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "clientId already in use", decode(t, rec)["error"])
}

func TestBulkOverwriteReplaces(t *testing.T) {
	e, _ := newTestServer(t)
	id := createTenant(t, e, "bot-1", "client-1")

	rec := do(e, botReq(http.MethodPut, "/api/v10/applications/client-1/guilds/g/commands",
		`[{"name":"old","type":1,"description":"x"}]`, "bot-1"))
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	first := decodeList(t, rec)
	require.Len(t, first, 1)
	assert.Equal(t, "old", first[0]["name"])
	assert.Equal(t, "client-1", first[0]["application_id"])
	assert.Equal(t, "g", first[0]["guild_id"])
	assert.NotEmpty(t, first[0]["id"])

	rec = do(e, botReq(http.MethodPut, "/api/v10/applications/client-1/guilds/g/commands",
		`[{"name":"new","type":1,"description":"y"}]`, "bot-1"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(e, httptest.NewRequest(http.MethodGet, "/_test/"+id+"/commands/g", nil))
	commands := decodeList(t, rec)
	require.Len(t, commands, 1, "overwrite replaces, never merges")
	payload := commands[0]["payload"].(map[string]interface{})
	assert.Equal(t, "new", payload["name"])
}

func TestBulkOverwriteCrossChecks(t *testing.T) {
	e, _ := newTestServer(t)
	createTenant(t, e, "bot-1", "client-1")

	// client id mismatch is a 400, never a 404
	rec := do(e, botReq(http.MethodPut, "/api/v10/applications/other-client/guilds/g/commands",
		`[]`, "bot-1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "client_id mismatch", decode(t, rec)["message"])

	rec = do(e, botReq(http.MethodPut, "/api/v10/applications/client-1/guilds/nope/commands",
		`[]`, "bot-1"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Unknown Guild", decode(t, rec)["message"])

	rec = do(e, botReq(http.MethodPut, "/api/v10/applications/client-1/guilds/g/commands",
		`{"name":"not-an-array"}`, "bot-1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", decode(t, rec)["message"])
}

func TestReactions(t *testing.T) {
	e, _ := newTestServer(t)
	id := createTenant(t, e, "bot-1", "client-1")
	do(e, botReq(http.MethodPost, "/api/v10/channels/c/messages", `{"content":"Hi"}`, "bot-1"))

	// Emoji arrives percent-encoded in the path.
	rec := do(e, botReq(http.MethodPut,
		"/api/v10/channels/c/messages/msg-1/reactions/%F0%9F%91%8D/@me", "", "bot-1"))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = do(e, botReq(http.MethodPut,
		"/api/v10/channels/c/messages/msg-404/reactions/%F0%9F%91%8D/@me", "", "bot-1"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Unknown Message", decode(t, rec)["message"])

	rec = do(e, botReq(http.MethodPut,
		"/api/v10/channels/nope/messages/msg-1/reactions/%F0%9F%91%8D/@me", "", "bot-1"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Unknown Channel", decode(t, rec)["message"])

	rec = do(e, httptest.NewRequest(http.MethodGet, "/_test/"+id+"/reactions", nil))
	reactions := decodeList(t, rec)
	require.Len(t, reactions, 1)
	assert.Equal(t, "👍", reactions[0]["emoji"])
	assert.Equal(t, "msg-1", reactions[0]["messageId"])
}

func TestInteractionResponsesAndFollowups(t *testing.T) {
	e, _ := newTestServer(t)
	id := createTenant(t, e, "bot-1", "client-1")

	rec := do(e, jsonReq(http.MethodPatch,
		"/api/v10/webhooks/client-1/tok-1/messages/@original", `{"content":"first"}`))
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	assert.Equal(t, "first", decode(t, rec)["content"])

	rec = do(e, jsonReq(http.MethodPatch,
		"/api/v10/webhooks/client-1/tok-1/messages/@original", `{"content":"second"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	// Upsert: one row, latest payload
	rec = do(e, httptest.NewRequest(http.MethodGet, "/_test/"+id+"/interaction-responses/tok-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	response := decode(t, rec)
	payload := response["payload"].(map[string]interface{})
	assert.Equal(t, "second", payload["content"])

	// Followups accumulate
	rec = do(e, jsonReq(http.MethodPost, "/api/v10/webhooks/client-1/tok-1", `{"content":"f1"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	followup := decode(t, rec)
	assert.Equal(t, "chan-followup", followup["channel_id"])
	rec = do(e, jsonReq(http.MethodPost, "/api/v10/webhooks/client-1/tok-1", `{"content":"f2"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(e, httptest.NewRequest(http.MethodGet, "/_test/"+id+"/followups/tok-1", nil))
	followups := decodeList(t, rec)
	require.Len(t, followups, 2)

	// Unknown application
	rec = do(e, jsonReq(http.MethodPatch,
		"/api/v10/webhooks/nope/tok-1/messages/@original", `{"content":"x"}`))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Unknown Application", decode(t, rec)["message"])

	// No response recorded for this token yet
	rec = do(e, httptest.NewRequest(http.MethodGet, "/_test/"+id+"/interaction-responses/tok-2", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))
}

func TestUnauthorizedBotCalls(t *testing.T) {
	e, _ := newTestServer(t)
	createTenant(t, e, "bot-1", "client-1")

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/v10/channels/c", nil),
		botReq(http.MethodGet, "/api/v10/channels/c", "", "wrong"),
		jsonReq(http.MethodPost, "/api/v10/channels/c/messages", `{"content":"x"}`),
		httptest.NewRequest(http.MethodGet, "/api/v10/users/@me", nil),
	} {
		rec := do(e, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "401: Unauthorized", decode(t, rec)["message"])
	}
}

func TestContentTypeDiscipline(t *testing.T) {
	e, _ := newTestServer(t)
	createTenant(t, e, "bot-1", "client-1")

	// Wrong content type
	req := httptest.NewRequest(http.MethodPost, "/api/v10/channels/c/messages",
		strings.NewReader(`{"content":"Hi"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMETextPlain)
	req.Header.Set("Authorization", "Bot bot-1")
	rec := do(e, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", decode(t, rec)["message"])

	// Unparseable body
	req = httptest.NewRequest(http.MethodPost, "/api/v10/channels/c/messages",
		strings.NewReader(`{"content":`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Authorization", "Bot bot-1")
	rec = do(e, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// A charset suffix is fine
	req = httptest.NewRequest(http.MethodPost, "/api/v10/channels/c/messages",
		strings.NewReader(`{"content":"Hi"}`))
	req.Header.Set(echo.HeaderContentType, "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bot bot-1")
	rec = do(e, req)
	assert.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
}

func TestGetChannel(t *testing.T) {
	e, _ := newTestServer(t)
	createTenant(t, e, "bot-1", "client-1")

	rec := do(e, botReq(http.MethodGet, "/api/v10/channels/c", "", "bot-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	channel := decode(t, rec)
	assert.Equal(t, "c", channel["id"])
	assert.Equal(t, "g", channel["guild_id"])
	assert.EqualValues(t, 0, channel["type"])

	rec = do(e, botReq(http.MethodGet, "/api/v10/channels/nope", "", "bot-1"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Unknown Channel", decode(t, rec)["message"])
}

func TestUnknownRoute(t *testing.T) {
	e, _ := newTestServer(t)

	rec := do(e, httptest.NewRequest(http.MethodGet, "/api/v10/bogus", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "404: Not Found", decode(t, rec)["message"])
}

func TestAuditLogRetrievalNotAudited(t *testing.T) {
	e, _ := newTestServer(t)
	id := createTenant(t, e, "bot-1", "client-1")

	rec := do(e, botReq(http.MethodPost, "/api/v10/channels/c/messages", `{"content":"Hi"}`, "bot-1"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(e, httptest.NewRequest(http.MethodGet, "/_test/"+id+"/audit-logs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	total1 := decode(t, rec)["total"]

	rec = do(e, httptest.NewRequest(http.MethodGet, "/_test/"+id+"/audit-logs", nil))
	total2 := decode(t, rec)["total"]

	assert.Equal(t, total1, total2, "reading the audit log must not grow it")

	// The bot call itself was attributed to the tenant.
	entries := decode(t, rec)["entries"].([]interface{})
	found := false
	for _, raw := range entries {
		entry := raw.(map[string]interface{})
		if entry["method"] == "POST" && strings.HasSuffix(entry["url"].(string), "/messages") {
			found = true
			assert.EqualValues(t, http.StatusOK, entry["responseStatus"])
			body := entry["requestBody"].(map[string]interface{})
			assert.Equal(t, "Hi", body["content"])
		}
	}
	assert.True(t, found, "the send-message call must be audited")
}

func TestAuditLogPaging(t *testing.T) {
	e, _ := newTestServer(t)
	id := createTenant(t, e, "bot-1", "client-1")

	for i := 0; i < 5; i++ {
		do(e, botReq(http.MethodGet, "/api/v10/channels/c", "", "bot-1"))
	}

	rec := do(e, httptest.NewRequest(http.MethodGet, "/_test/"+id+"/audit-logs?limit=2&offset=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 2, body["limit"])
	assert.EqualValues(t, 1, body["offset"])
	assert.Len(t, body["entries"], 2)

	rec = do(e, httptest.NewRequest(http.MethodGet, "/_test/"+id+"/audit-logs?limit=99999", nil))
	body = decode(t, rec)
	assert.EqualValues(t, 1000, body["limit"])
}

func TestResetTenantOverHTTP(t *testing.T) {
	e, db := newTestServer(t)
	id := createTenant(t, e, "bot-1", "client-1")

	do(e, botReq(http.MethodPost, "/api/v10/channels/c/messages", `{"content":"Hi"}`, "bot-1"))

	rec := do(e, httptest.NewRequest(http.MethodPost, "/_test/"+id+"/reset", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(e, httptest.NewRequest(http.MethodGet, "/_test/"+id+"/messages/c", nil))
	assert.Empty(t, decodeList(t, rec))

	var tenant model.Tenant
	require.NoError(t, db.First(&tenant, "id = ?", id).Error)
	assert.EqualValues(t, 1, tenant.NextID)

	// Ids restart from 1 after reset (intentional).
	rec = do(e, botReq(http.MethodPost, "/api/v10/channels/c/messages", `{"content":"again"}`, "bot-1"))
	assert.Equal(t, "msg-1", decode(t, rec)["id"])
}

func TestDeleteTenantOverHTTP(t *testing.T) {
	e, _ := newTestServer(t)
	id := createTenant(t, e, "bot-1", "client-1")

	rec := do(e, httptest.NewRequest(http.MethodDelete, "/_test/tenants/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(e, httptest.NewRequest(http.MethodGet, "/_test/tenants/"+id, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Tenant not found", decode(t, rec)["error"])

	// The bot token no longer resolves.
	rec = do(e, botReq(http.MethodGet, "/api/v10/channels/c", "", "bot-1"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSweeperJob(t *testing.T) {
	e, db := newTestServer(t)
	id := createTenant(t, e, "bot-1", "client-1")
	createTenant(t, e, "bot-2", "client-2")

	require.NoError(t, db.Model(&model.Tenant{}).
		Where("id = ?", id).
		Update("created_at", time.Now().UTC().Add(-25*time.Hour)).Error)

	rec := do(e, httptest.NewRequest(http.MethodPost, "/_test/jobs/cleanup-old-tenants", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode(t, rec)
	assert.EqualValues(t, 1, summary["deleted"])
	assert.Equal(t, true, summary["checked"])

	rec = do(e, httptest.NewRequest(http.MethodGet, "/_test/tenants/"+id, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Second run is a no-op.
	rec = do(e, httptest.NewRequest(http.MethodPost, "/_test/jobs/cleanup-old-tenants", nil))
	summary = decode(t, rec)
	assert.EqualValues(t, 0, summary["deleted"])
}

func TestSendInteractionSignsPayload(t *testing.T) {
	e, _ := newTestServer(t)

	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(42 + i)
	}
	key := ed25519.NewKeyFromSeed(seed)
	privateHex := hex.EncodeToString(seed)
	publicHex := hex.EncodeToString(key.Public().(ed25519.PublicKey))

	rec := do(e, jsonReq(http.MethodPost, "/_test/tenants",
		tenantPayload("bot-1", "client-1", publicHex, privateHex)))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode(t, rec)["id"].(string)

	sut := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ok := signer.Verify(
			r.Header.Get("X-Signature-Ed25519"),
			r.Header.Get("X-Signature-Timestamp")+string(body),
			publicHex,
		)
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"verified":false}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"verified":true,"type":4}`))
	}))
	defer sut.Close()

	payload := fmt.Sprintf(`{"webhookUrl":%q,"interaction":{"type":2,"data":{"name":"ping"}}}`, sut.URL)
	rec = do(e, jsonReq(http.MethodPost, "/_test/"+id+"/send-interaction", payload))
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())
	result := decode(t, rec)
	assert.EqualValues(t, http.StatusOK, result["statusCode"])
	assert.Equal(t, true, result["body"].(map[string]interface{})["verified"])
}

func TestSendInteractionNetworkFailure(t *testing.T) {
	e, _ := newTestServer(t)

	seed := make([]byte, ed25519.SeedSize)
	privateHex := hex.EncodeToString(seed)
	rec := do(e, jsonReq(http.MethodPost, "/_test/tenants",
		tenantPayload("bot-1", "client-1", "pub", privateHex)))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode(t, rec)["id"].(string)

	sut := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	sut.Close() // nothing listens here anymore

	payload := fmt.Sprintf(`{"webhookUrl":%q,"interaction":{"type":1}}`, sut.URL)
	rec = do(e, jsonReq(http.MethodPost, "/_test/"+id+"/send-interaction", payload))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "Webhook request failed: ")
}

func TestBrowseEndpoints(t *testing.T) {
	e, _ := newTestServer(t)
	id := createTenant(t, e, "bot-1", "client-1")
	do(e, botReq(http.MethodPost, "/api/v10/channels/c/messages", `{"content":"Hi"}`, "bot-1"))

	rec := do(e, httptest.NewRequest(http.MethodGet, "/_test/browse/tenants", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	summaries := decodeList(t, rec)
	require.Len(t, summaries, 1)
	counts := summaries[0]["counts"].(map[string]interface{})
	assert.EqualValues(t, 1, counts["messages"])
	assert.EqualValues(t, 1, counts["guilds"])

	rec = do(e, httptest.NewRequest(http.MethodGet, "/_test/browse/tenants/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode(t, rec)
	assert.Len(t, detail["recentMessages"], 1)

	// Secrets never leak through browse responses.
	raw := rec.Body.String()
	assert.NotContains(t, raw, "bot-1")
	assert.NotContains(t, raw, "shh")
	assert.NotContains(t, raw, "priv")
}

func TestGettersUnknownTenant(t *testing.T) {
	e, _ := newTestServer(t)

	for _, target := range []string{
		"/_test/nope/messages/c",
		"/_test/nope/reactions",
		"/_test/nope/interaction-responses/tok",
		"/_test/nope/followups/tok",
		"/_test/nope/commands/g",
		"/_test/nope/audit-logs",
	} {
		rec := do(e, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, "target %s", target)
		assert.Equal(t, "Tenant not found", decode(t, rec)["error"], "target %s", target)
	}
}
