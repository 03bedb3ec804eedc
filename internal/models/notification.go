// internal/models/notification.go
package models

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type DeliveryStatus string

const (
	DeliveryStatusQueued DeliveryStatus = "queued"
	DeliveryStatusSent   DeliveryStatus = "sent"
	DeliveryStatusFailed DeliveryStatus = "failed"
)

type NotificationDelivery struct {
	BaseModel
	TenantID          uuid.UUID       `json:"tenant_id" gorm:"type:uuid;not null;index"`
	ContractID        uuid.UUID       `json:"contract_id" gorm:"type:uuid;not null;index"`
	SignatureID       *uuid.UUID      `json:"signature_id,omitempty" gorm:"type:uuid;index"`
	Kind              string          `json:"kind" gorm:"size:40;not null"`
	Channel           DeliveryChannel `json:"channel" gorm:"type:varchar(20);not null"`
	Recipient         string          `json:"recipient" gorm:"size:255;not null"`
	Status            DeliveryStatus  `json:"status" gorm:"type:varchar(20);not null;index"`
	Attempts          int             `json:"attempts" gorm:"not null;default:0"`
	ProviderMessageID string          `json:"provider_message_id,omitempty" gorm:"size:255"`
	LastError         string          `json:"last_error,omitempty" gorm:"type:text"`
}

// AuditLog records mutating API requests.
type AuditLog struct {
	BaseModel
	TenantID     *uuid.UUID     `json:"tenant_id" gorm:"type:uuid;index"`
	UserID       *uuid.UUID     `json:"user_id" gorm:"type:uuid;index"`
	RequestID    string         `json:"request_id" gorm:"size:64"`
	Action       string         `json:"action" gorm:"size:255;not null;index"`
	ResourceType string         `json:"resource_type" gorm:"size:50;not null;index"`
	ResourceID   *uuid.UUID     `json:"resource_id" gorm:"type:uuid;index"`
	StatusCode   int            `json:"status_code"`
	NewValues    datatypes.JSON `json:"new_values"`
	IPAddress    string         `json:"ip_address" gorm:"size:45"`
	UserAgent    string         `json:"user_agent" gorm:"type:text"`
}
