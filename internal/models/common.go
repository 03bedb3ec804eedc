// internal/models/common.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// BeforeCreate assigns the id in Go so the same models migrate on postgres and sqlite.
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// Enums
type ContractType string

const (
	ContractTypePurchase  ContractType = "purchase"
	ContractTypeLease     ContractType = "lease"
	ContractTypeFinancing ContractType = "financing"
	ContractTypeService   ContractType = "service"
	ContractTypeWarranty  ContractType = "warranty"
	ContractTypeOther     ContractType = "other"
)

type ContractStatus string

const (
	ContractStatusDraft             ContractStatus = "draft"
	ContractStatusPendingSignatures ContractStatus = "pending_signatures"
	ContractStatusPartiallySigned   ContractStatus = "partially_signed"
	ContractStatusFullySigned       ContractStatus = "fully_signed"
	ContractStatusCompleted         ContractStatus = "completed"
	ContractStatusCancelled         ContractStatus = "cancelled"
)

type DigitizationStatus string

const (
	DigitizationStatusPending    DigitizationStatus = "pending"
	DigitizationStatusProcessing DigitizationStatus = "processing"
	DigitizationStatusCompleted  DigitizationStatus = "completed"
	DigitizationStatusFailed     DigitizationStatus = "failed"
)

type FieldType string

const (
	FieldTypeSignature FieldType = "signature"
	FieldTypeInitial   FieldType = "initial"
	FieldTypeDate      FieldType = "date"
	FieldTypeText      FieldType = "text"
)

type SignerRole string

const (
	SignerRoleBuyer    SignerRole = "buyer"
	SignerRoleSeller   SignerRole = "seller"
	SignerRoleDealer   SignerRole = "dealer"
	SignerRoleCosigner SignerRole = "cosigner"
	SignerRoleWitness  SignerRole = "witness"
)

var SignerRoles = []SignerRole{
	SignerRoleBuyer, SignerRoleSeller, SignerRoleDealer, SignerRoleCosigner, SignerRoleWitness,
}

type SignatureType string

const (
	SignatureTypeInPerson SignatureType = "in_person"
	SignatureTypeRemote   SignatureType = "remote"
)

type SignatureStatus string

const (
	SignatureStatusPending  SignatureStatus = "pending"
	SignatureStatusSent     SignatureStatus = "sent"
	SignatureStatusViewed   SignatureStatus = "viewed"
	SignatureStatusSigned   SignatureStatus = "signed"
	SignatureStatusDeclined SignatureStatus = "declined"
	SignatureStatusExpired  SignatureStatus = "expired"
)

type DeliveryChannel string

const (
	DeliveryChannelEmail    DeliveryChannel = "email"
	DeliveryChannelSMS      DeliveryChannel = "sms"
	DeliveryChannelWhatsApp DeliveryChannel = "whatsapp"
)

func (t ContractType) Valid() bool {
	switch t {
	case ContractTypePurchase, ContractTypeLease, ContractTypeFinancing,
		ContractTypeService, ContractTypeWarranty, ContractTypeOther:
		return true
	}
	return false
}

func (r SignerRole) Valid() bool {
	for _, role := range SignerRoles {
		if r == role {
			return true
		}
	}
	return false
}

func (t FieldType) Valid() bool {
	switch t {
	case FieldTypeSignature, FieldTypeInitial, FieldTypeDate, FieldTypeText:
		return true
	}
	return false
}

func (c DeliveryChannel) Valid() bool {
	switch c {
	case DeliveryChannelEmail, DeliveryChannelSMS, DeliveryChannelWhatsApp:
		return true
	}
	return false
}
