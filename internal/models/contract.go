// internal/models/contract.go
package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type Contract struct {
	BaseModel
	TenantID           uuid.UUID    `json:"tenant_id" gorm:"type:uuid;not null;index"`
	Name               string       `json:"name" gorm:"size:255;not null"`
	Type               ContractType `json:"type" gorm:"type:varchar(20);not null;index"`
	SaleID             *uuid.UUID   `json:"sale_id,omitempty" gorm:"type:uuid;index"`
	LeadID             *uuid.UUID   `json:"lead_id,omitempty" gorm:"type:uuid;index"`
	VehicleID          *uuid.UUID   `json:"vehicle_id,omitempty" gorm:"type:uuid"`
	FinancingRequestID *uuid.UUID   `json:"financing_request_id,omitempty" gorm:"type:uuid"`

	OriginalDocumentURL  string `json:"original_document_url" gorm:"type:text;not null"`
	OriginalDocumentKey  string `json:"original_document_key,omitempty" gorm:"type:text"`
	DigitizedDocumentURL string `json:"digitized_document_url,omitempty" gorm:"type:text"`
	FinalDocumentURL     string `json:"final_document_url,omitempty" gorm:"type:text"`
	FinalDocumentSHA256  string `json:"final_document_sha256,omitempty" gorm:"column:final_document_sha256;size:64"`

	Digitization Digitization `json:"digitization" gorm:"embedded;embeddedPrefix:digitization_"`

	Status  ContractStatus `json:"status" gorm:"type:varchar(30);not null;index"`
	Version int64          `json:"version" gorm:"not null;default:1"`

	CreatedBy          uuid.UUID  `json:"created_by" gorm:"type:uuid;not null"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty" gorm:"type:text"`

	AssemblyAttempts  int    `json:"assembly_attempts" gorm:"not null;default:0"`
	LastAssemblyError string `json:"last_assembly_error,omitempty" gorm:"type:text"`

	// Relationships
	Signatures []Signature `json:"signatures" gorm:"foreignKey:ContractID"`
}

type Digitization struct {
	Status          DigitizationStatus                  `json:"status" gorm:"type:varchar(20);not null;default:'pending'"`
	Engine          string                              `json:"engine,omitempty" gorm:"size:30"`
	TaskID          string                              `json:"task_id,omitempty" gorm:"size:255;index"`
	Error           string                              `json:"error,omitempty" gorm:"type:text"`
	ProcessedAt     *time.Time                          `json:"processed_at,omitempty"`
	ExtractedFields datatypes.JSONSlice[SignatureField] `json:"extracted_fields"`
}

// SignatureField is a region of the document a signer fills in. Coordinates are
// fractions of the page with the origin at the top-left corner.
type SignatureField struct {
	ID           string     `json:"id" validate:"required,max=64"`
	Type         FieldType  `json:"type" validate:"required,field_type"`
	Page         int        `json:"page" validate:"gte=1"`
	X            float64    `json:"x" validate:"gte=0,lte=1"`
	Y            float64    `json:"y" validate:"gte=0,lte=1"`
	Width        float64    `json:"width" validate:"gt=0,lte=1"`
	Height       float64    `json:"height" validate:"gt=0,lte=1"`
	Required     bool       `json:"required"`
	AssignedRole SignerRole `json:"assigned_role" validate:"required,signer_role"`
	Label        string     `json:"label,omitempty" validate:"max=255"`
}

var statusRank = map[ContractStatus]int{
	ContractStatusDraft:             0,
	ContractStatusPendingSignatures: 1,
	ContractStatusPartiallySigned:   2,
	ContractStatusFullySigned:       3,
	ContractStatusCompleted:         4,
}

func (s ContractStatus) IsTerminal() bool {
	return s == ContractStatusCompleted || s == ContractStatusCancelled
}

// AcceptsFieldChanges reports whether the signature layout may still be edited.
func (s ContractStatus) AcceptsFieldChanges() bool {
	return s == ContractStatusDraft || s == ContractStatusPendingSignatures
}

// AcceptsSignatures reports whether signer entries may still change.
func (s ContractStatus) AcceptsSignatures() bool {
	return !s.IsTerminal()
}

func (c *Contract) HasSignatureField() bool {
	for _, f := range c.Digitization.ExtractedFields {
		if f.Type == FieldTypeSignature {
			return true
		}
	}
	return false
}

// RequiredRoles returns the distinct roles assigned to required signature fields.
// When no signature field is marked required every signature field's role counts.
func (c *Contract) RequiredRoles() []SignerRole {
	required := map[SignerRole]bool{}
	all := map[SignerRole]bool{}
	for _, f := range c.Digitization.ExtractedFields {
		if f.Type != FieldTypeSignature || f.AssignedRole == "" {
			continue
		}
		all[f.AssignedRole] = true
		if f.Required {
			required[f.AssignedRole] = true
		}
	}
	if len(required) == 0 {
		required = all
	}
	roles := make([]SignerRole, 0, len(required))
	for role := range required {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// SignatureProgress counts required roles holding at least one signed entry.
func (c *Contract) SignatureProgress() (signed, required int) {
	roles := c.RequiredRoles()
	signedRoles := map[SignerRole]bool{}
	for _, s := range c.Signatures {
		if s.Status == SignatureStatusSigned {
			signedRoles[s.Role] = true
		}
	}
	for _, role := range roles {
		if signedRoles[role] {
			signed++
		}
	}
	return signed, len(roles)
}

// DerivedStatus computes the status implied by the current signatures. It never
// leaves a terminal state, never leaves draft without signers, and never moves backwards.
func (c *Contract) DerivedStatus() ContractStatus {
	if c.Status.IsTerminal() || len(c.Signatures) == 0 {
		return c.Status
	}

	signed, required := c.SignatureProgress()
	target := ContractStatusPendingSignatures
	switch {
	case required > 0 && signed == required:
		target = ContractStatusFullySigned
	case signed > 0:
		target = ContractStatusPartiallySigned
	}

	if statusRank[target] < statusRank[c.Status] {
		return c.Status
	}
	return target
}

// RecomputeStatus applies DerivedStatus and returns the previous status when it changed.
func (c *Contract) RecomputeStatus() (ContractStatus, bool) {
	from := c.Status
	c.Status = c.DerivedStatus()
	return from, from != c.Status
}

func (c *Contract) FindSignature(id uuid.UUID) *Signature {
	for i := range c.Signatures {
		if c.Signatures[i].ID == id {
			return &c.Signatures[i]
		}
	}
	return nil
}

// LatestSignatureForRole returns the most recently positioned entry for a role.
func (c *Contract) LatestSignatureForRole(role SignerRole) *Signature {
	var latest *Signature
	for i := range c.Signatures {
		s := &c.Signatures[i]
		if s.Role != role {
			continue
		}
		if latest == nil || s.Position > latest.Position {
			latest = s
		}
	}
	return latest
}

func (c *Contract) NextSignaturePosition() int {
	next := 1
	for _, s := range c.Signatures {
		if s.Position >= next {
			next = s.Position + 1
		}
	}
	return next
}

// FieldsForRole returns the fields a signer holding role is expected to fill in.
func (c *Contract) FieldsForRole(role SignerRole) []SignatureField {
	var fields []SignatureField
	for _, f := range c.Digitization.ExtractedFields {
		if f.AssignedRole == role {
			fields = append(fields, f)
		}
	}
	return fields
}

// InvalidateLiveTokens clears every outstanding signing link.
func (c *Contract) InvalidateLiveTokens() {
	for i := range c.Signatures {
		c.Signatures[i].ClearToken()
	}
}

func (c *Contract) SortSignatures() {
	sort.SliceStable(c.Signatures, func(i, j int) bool {
		return c.Signatures[i].Position < c.Signatures[j].Position
	})
}
