// internal/services/identity_service.go
package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/javajoker/dealer-contracts/internal/apperr"
	"github.com/javajoker/dealer-contracts/internal/utils"
)

type StaffRole string

const (
	StaffRoleAdmin  StaffRole = "admin"
	StaffRoleDealer StaffRole = "dealer"
	StaffRoleSeller StaffRole = "seller"
	StaffRoleViewer StaffRole = "viewer"
)

// Actor is an authenticated dealership staff member acting within one tenant.
type Actor struct {
	UserID   uuid.UUID `json:"user_id"`
	TenantID uuid.UUID `json:"tenant_id"`
	Role     StaffRole `json:"role"`
	Name     string    `json:"name"`
}

// CanManageContracts reports whether the actor may create contracts and invite signers.
func (a Actor) CanManageContracts() bool {
	switch a.Role {
	case StaffRoleAdmin, StaffRoleDealer, StaffRoleSeller:
		return true
	}
	return false
}

// IdentityDirectory resolves request credentials into an Actor.
type IdentityDirectory interface {
	ResolveActor(ctx context.Context, credentials string) (*Actor, error)
}

// JWTDirectory trusts HS256 access tokens issued by the dealership platform.
type JWTDirectory struct{}

func NewJWTDirectory() *JWTDirectory {
	return &JWTDirectory{}
}

func (d *JWTDirectory) ResolveActor(_ context.Context, credentials string) (*Actor, error) {
	token := strings.TrimSpace(strings.TrimPrefix(credentials, "Bearer "))
	if token == "" {
		return nil, apperr.Forbidden("missing credentials")
	}

	claims, err := utils.ValidateJWT(token)
	if err != nil {
		return nil, apperr.Forbidden("invalid credentials: %v", err)
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, apperr.Forbidden("invalid user id in token")
	}
	tenantID, err := uuid.Parse(claims.TenantID)
	if err != nil || tenantID == uuid.Nil {
		return nil, apperr.Forbidden("token is not bound to a dealership")
	}

	role := StaffRole(claims.Role)
	switch role {
	case StaffRoleAdmin, StaffRoleDealer, StaffRoleSeller, StaffRoleViewer:
	default:
		return nil, apperr.Forbidden("unknown role %q", claims.Role)
	}

	return &Actor{
		UserID:   userID,
		TenantID: tenantID,
		Role:     role,
		Name:     claims.Name,
	}, nil
}
