package middleware

import (
	"bufio"
	"bytes"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/glideapps/fake-discord/internal/model"
	"github.com/glideapps/fake-discord/pkg/database"
	"github.com/glideapps/fake-discord/pkg/logger"
	"github.com/glideapps/fake-discord/prometheus"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// TenantIDContextKey is where handlers put the tenant id after a successful
// resolution so the audit middleware can attribute the request.
const TenantIDContextKey = "tenant_id"

// SetTenantID records the resolved tenant on the request context.
func SetTenantID(c echo.Context, tenantID string) {
	c.Set(TenantIDContextKey, tenantID)
}

// AuditMiddleware records every HTTP round-trip: method, URL, buffered
// request and response bodies, status, and the tenant the handler resolved.
// Requests whose path ends in /audit-logs are never audited, otherwise the
// log browser polling the log would grow it on every read. /health and
// /metrics are not audited either. Logging failures never alter the response.
func AuditMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			if skipAudit(c.Request().URL.Path) {
				return next(c)
			}

			var reqBody []byte
			method := c.Request().Method
			if method != http.MethodGet && method != http.MethodHead && c.Request().Body != nil {
				if b, readErr := io.ReadAll(c.Request().Body); readErr == nil {
					reqBody = b
					c.Request().Body = io.NopCloser(bytes.NewReader(b))
				}
			}

			resBody := new(bytes.Buffer)
			mw := io.MultiWriter(c.Response().Writer, resBody)
			writer := &auditResponseWriter{Writer: mw, ResponseWriter: c.Response().Writer}
			c.Response().Writer = writer

			if err = next(c); err != nil {
				c.Error(err)
			}

			record(c, reqBody, resBody.Bytes())
			return
		}
	}
}

func skipAudit(path string) bool {
	if strings.HasSuffix(path, "/audit-logs") {
		return true
	}
	return path == "/metrics" || path == "/health"
}

// record inserts the audit row. Any failure here is swallowed: auditing must
// never change what the caller sees.
func record(c echo.Context, reqBody, resBody []byte) {
	defer func() {
		if r := recover(); r != nil {
			logger.FromContext(c).Warn("audit logging panicked", zap.Any("panic", r))
		}
	}()

	entry := model.AuditLog{
		Method:         c.Request().Method,
		URL:            c.Request().URL.RequestURI(),
		ResponseStatus: c.Response().Status,
		CreatedAt:      time.Now().UTC(),
	}
	if len(reqBody) > 0 {
		entry.RequestBody = reqBody
	}
	if len(resBody) > 0 {
		entry.ResponseBody = resBody
	}
	if tenantID, ok := c.Get(TenantIDContextKey).(string); ok && tenantID != "" {
		entry.TenantID = &tenantID
	}

	if err := database.GetDB().Create(&entry).Error; err != nil {
		logger.FromContext(c).Warn("failed to write audit log", zap.Error(err))
		return
	}
	prometheus.RecordAuditEntry()
}

type auditResponseWriter struct {
	io.Writer
	http.ResponseWriter
}

func (w *auditResponseWriter) WriteHeader(code int) {
	w.ResponseWriter.WriteHeader(code)
}

func (w *auditResponseWriter) Write(b []byte) (int, error) {
	return w.Writer.Write(b)
}

func (w *auditResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *auditResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return w.ResponseWriter.(http.Hijacker).Hijack()
}
