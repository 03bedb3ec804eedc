// internal/models/signature.go
package models

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

type Signature struct {
	BaseModel
	ContractID    uuid.UUID       `json:"contract_id" gorm:"type:uuid;not null;index"`
	TenantID      uuid.UUID       `json:"tenant_id" gorm:"type:uuid;not null;index"`
	Position      int             `json:"position" gorm:"not null"`
	Role          SignerRole      `json:"role" gorm:"type:varchar(20);not null"`
	SignerName    string          `json:"signer_name" gorm:"size:255;not null"`
	SignerEmail   string          `json:"signer_email" gorm:"size:255"`
	SignerPhone   string          `json:"signer_phone,omitempty" gorm:"size:32"`
	SignatureType SignatureType   `json:"signature_type" gorm:"type:varchar(20);not null"`
	Status        SignatureStatus `json:"status" gorm:"type:varchar(20);not null;index"`
	Channels      ChannelList     `json:"channels"`

	SignatureData string     `json:"signature_data,omitempty" gorm:"type:text"`
	SignedAt      *time.Time `json:"signed_at,omitempty"`
	ViewedAt      *time.Time `json:"viewed_at,omitempty"`
	DeclinedAt    *time.Time `json:"declined_at,omitempty"`
	DeclineReason string     `json:"decline_reason,omitempty" gorm:"type:text"`
	ExpiredAt     *time.Time `json:"expired_at,omitempty"`
	IPAddress     string     `json:"ip_address,omitempty" gorm:"size:45"`
	UserAgent     string     `json:"user_agent,omitempty" gorm:"type:text"`

	TokenHash     string     `json:"-" gorm:"size:64;index"`
	TokenIssuedAt *time.Time `json:"token_issued_at,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

// ChannelList is stored as a postgres text[]; other dialects keep the same array literal in a text column.
type ChannelList []string

func (l ChannelList) Value() (driver.Value, error) {
	return pq.StringArray(l).Value()
}

func (l *ChannelList) Scan(src interface{}) error {
	return (*pq.StringArray)(l).Scan(src)
}

func (ChannelList) GormDataType() string {
	return "text"
}

func (ChannelList) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "text[]"
	}
	return "text"
}

func (Signature) TableName() string {
	return "contract_signatures"
}

// IsLive reports whether the entry still holds a usable signing link. A digest
// stays on the entry after it is consumed so a reused link can be told apart
// from an unknown one.
func (s *Signature) IsLive() bool {
	return (s.Status == SignatureStatusSent || s.Status == SignatureStatusViewed) && s.TokenHash != ""
}

func (s *Signature) IsTerminal() bool {
	switch s.Status {
	case SignatureStatusSigned, SignatureStatusDeclined, SignatureStatusExpired:
		return true
	}
	return false
}

func (s *Signature) IsExpired(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}

// IssueToken stores a fresh link digest and moves the entry to sent.
func (s *Signature) IssueToken(hash string, expiresAt, now time.Time) {
	s.TokenHash = hash
	s.TokenIssuedAt = &now
	s.ExpiresAt = &expiresAt
	s.Status = SignatureStatusSent
	s.ViewedAt = nil
}

func (s *Signature) ClearToken() {
	s.TokenHash = ""
}

// MarkViewed moves sent to viewed. It reports whether anything changed.
func (s *Signature) MarkViewed(now time.Time, ip, userAgent string) bool {
	if s.Status != SignatureStatusSent {
		return false
	}
	s.Status = SignatureStatusViewed
	s.ViewedAt = &now
	s.setClient(ip, userAgent)
	return true
}

func (s *Signature) MarkSigned(data string, now time.Time, ip, userAgent string) {
	s.Status = SignatureStatusSigned
	s.SignatureData = data
	s.SignedAt = &now
	s.setClient(ip, userAgent)
}

func (s *Signature) MarkDeclined(reason string, now time.Time, ip, userAgent string) {
	s.Status = SignatureStatusDeclined
	s.DeclineReason = reason
	s.DeclinedAt = &now
	s.setClient(ip, userAgent)
}

func (s *Signature) MarkExpired(now time.Time) {
	s.Status = SignatureStatusExpired
	s.ExpiredAt = &now
}

func (s *Signature) setClient(ip, userAgent string) {
	if ip != "" {
		s.IPAddress = ip
	}
	if userAgent != "" {
		s.UserAgent = userAgent
	}
}
