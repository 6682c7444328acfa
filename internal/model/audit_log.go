package model

import (
	"time"
)

// AuditLog records one HTTP round-trip through the service. TenantID is nil
// when the request never resolved to a tenant.
type AuditLog struct {
	ID             uint      `json:"id" gorm:"primaryKey"`
	TenantID       *string   `json:"tenant_id" gorm:"type:varchar(36);index:idx_audit_logs_tenant_created,priority:1"`
	Method         string    `json:"method" gorm:"not null"`
	URL            string    `json:"url" gorm:"not null"`
	RequestBody    []byte    `json:"request_body" gorm:"type:jsonb"`
	ResponseStatus int       `json:"response_status" gorm:"not null"`
	ResponseBody   []byte    `json:"response_body" gorm:"type:jsonb"`
	CreatedAt      time.Time `json:"created_at" gorm:"index:idx_audit_logs_tenant_created,priority:2"`
}
