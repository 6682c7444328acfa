package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/glideapps/fake-discord/internal/middleware"
	"github.com/glideapps/fake-discord/internal/model"
	"github.com/glideapps/fake-discord/internal/testutil"
	"github.com/glideapps/fake-discord/pkg/database"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuditedEcho() *echo.Echo {
	e := echo.New()
	e.Use(middleware.AuditMiddleware())
	e.POST("/things", func(c echo.Context) error {
		middleware.SetTenantID(c, "t1")
		return c.JSON(http.StatusCreated, echo.Map{"ok": true})
	})
	e.GET("/things", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"ok": true})
	})
	e.GET("/t1/audit-logs", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"entries": []string{}})
	})
	return e
}

func TestAuditRecordsRoundTrip(t *testing.T) {
	db := testutil.NewDB(t)
	e := newAuditedEcho()

	req := httptest.NewRequest(http.MethodPost, "/things?x=1", strings.NewReader(`{"name":"a"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var entries []model.AuditLog
	require.NoError(t, db.Find(&entries).Error)
	require.Len(t, entries, 1)

	entry := entries[0]
	assert.Equal(t, "POST", entry.Method)
	assert.Equal(t, "/things?x=1", entry.URL)
	assert.Equal(t, http.StatusCreated, entry.ResponseStatus)
	assert.JSONEq(t, `{"name":"a"}`, string(entry.RequestBody))
	assert.JSONEq(t, `{"ok":true}`, string(entry.ResponseBody))
	require.NotNil(t, entry.TenantID)
	assert.Equal(t, "t1", *entry.TenantID)
}

func TestAuditSkipsGETBody(t *testing.T) {
	db := testutil.NewDB(t)
	e := newAuditedEcho()

	req := httptest.NewRequest(http.MethodGet, "/things", strings.NewReader("ignored"))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var entries []model.AuditLog
	require.NoError(t, db.Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].RequestBody)
	// No handler set a tenant; the row is service-owned.
	assert.Nil(t, entries[0].TenantID)
}

func TestAuditExcludesAuditLogReaders(t *testing.T) {
	db := testutil.NewDB(t)
	e := newAuditedEcho()

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/t1/audit-logs", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var n int64
	require.NoError(t, db.Model(&model.AuditLog{}).Count(&n).Error)
	assert.EqualValues(t, 0, n, "audit-log reads must not be audited")
}

func TestAuditFailureNeverAltersResponse(t *testing.T) {
	testutil.NewDB(t)
	// Break the store out from under the middleware.
	database.SetDB(nil)
	e := newAuditedEcho()

	req := httptest.NewRequest(http.MethodPost, "/things", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
}
