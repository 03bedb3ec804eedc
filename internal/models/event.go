// internal/models/event.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// SigningToken indexes live signing links by digest. Rows are written in the
// same transaction that issues or consumes the link.
type SigningToken struct {
	TokenHash   string    `json:"-" gorm:"primaryKey;size:64"`
	TenantID    uuid.UUID `json:"tenant_id" gorm:"type:uuid;not null"`
	ContractID  uuid.UUID `json:"contract_id" gorm:"type:uuid;not null;index"`
	SignatureID uuid.UUID `json:"signature_id" gorm:"type:uuid;not null;uniqueIndex"`
	ExpiresAt   time.Time `json:"expires_at" gorm:"not null;index"`
	CreatedAt   time.Time `json:"created_at"`
}

type EventType string

const (
	EventContractCreated       EventType = "created"
	EventDigitizationSubmitted EventType = "digitization_submitted"
	EventDigitizationCompleted EventType = "digitization_completed"
	EventDigitizationFailed    EventType = "digitization_failed"
	EventSignerAdded           EventType = "signer_added"
	EventSignerInvited         EventType = "signer_invited"
	EventSignerViewed          EventType = "signer_viewed"
	EventSignerSigned          EventType = "signer_signed"
	EventSignerDeclined        EventType = "signer_declined"
	EventSignerExpired         EventType = "signer_expired"
	EventStatusChanged         EventType = "status_changed"
	EventAssemblyFailed        EventType = "assembly_failed"
	EventContractCompleted     EventType = "completed"
	EventContractCancelled     EventType = "cancelled"
)

// ContractEvent is the append-only history of a contract.
type ContractEvent struct {
	BaseModel
	TenantID    uuid.UUID  `json:"tenant_id" gorm:"type:uuid;not null;index"`
	ContractID  uuid.UUID  `json:"contract_id" gorm:"type:uuid;not null;index"`
	SignatureID *uuid.UUID `json:"signature_id,omitempty" gorm:"type:uuid"`
	Type        EventType  `json:"type" gorm:"type:varchar(40);not null;index"`
	FromStatus  string     `json:"from_status,omitempty" gorm:"size:30"`
	ToStatus    string     `json:"to_status,omitempty" gorm:"size:30"`
	ActorID     *uuid.UUID `json:"actor_id,omitempty" gorm:"type:uuid"`
	IPAddress   string     `json:"ip_address,omitempty" gorm:"size:45"`
	UserAgent   string     `json:"user_agent,omitempty" gorm:"type:text"`
	Detail      string     `json:"detail,omitempty" gorm:"type:text"`
}
