// internal/services/contract_service.go
package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/dealer-contracts/internal/apperr"
	"github.com/javajoker/dealer-contracts/internal/models"
	"github.com/javajoker/dealer-contracts/internal/repository"
	"github.com/javajoker/dealer-contracts/internal/utils"
)

type ContractService struct {
	repo *repository.ContractRepository
}

type CreateContractRequest struct {
	Name                string              `json:"name" validate:"required,max=255"`
	Type                models.ContractType `json:"type" validate:"required,contract_type"`
	SaleID              *uuid.UUID          `json:"sale_id,omitempty"`
	LeadID              *uuid.UUID          `json:"lead_id,omitempty"`
	VehicleID           *uuid.UUID          `json:"vehicle_id,omitempty"`
	FinancingRequestID  *uuid.UUID          `json:"financing_request_id,omitempty"`
	OriginalDocumentURL string              `json:"original_document_url" validate:"required,max=2048"`
	OriginalDocumentKey string              `json:"original_document_key,omitempty" validate:"max=1024"`
}

type CancelContractRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

type ContractSearchParams struct {
	utils.PaginationParams
	Status *models.ContractStatus
	Type   *models.ContractType
	SaleID *uuid.UUID
}

func NewContractService(repo *repository.ContractRepository) *ContractService {
	return &ContractService{repo: repo}
}

func (s *ContractService) Create(ctx context.Context, actor *Actor, req CreateContractRequest) (*models.Contract, error) {
	if !actor.CanManageContracts() {
		return nil, apperr.Forbidden("role %s cannot create contracts", actor.Role)
	}

	contract, err := s.repo.Create(ctx, repository.CreateContractInput{
		TenantID:            actor.TenantID,
		Name:                strings.TrimSpace(req.Name),
		Type:                req.Type,
		SaleID:              req.SaleID,
		LeadID:              req.LeadID,
		VehicleID:           req.VehicleID,
		FinancingRequestID:  req.FinancingRequestID,
		OriginalDocumentURL: strings.TrimSpace(req.OriginalDocumentURL),
		OriginalDocumentKey: req.OriginalDocumentKey,
		CreatedBy:           actor.UserID,
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"contract_id": contract.ID,
		"tenant_id":   contract.TenantID,
		"type":        contract.Type,
	}).Info("Contract created")
	return contract, nil
}

func (s *ContractService) Get(ctx context.Context, actor *Actor, id uuid.UUID) (*models.Contract, error) {
	return s.repo.Get(ctx, actor.TenantID, id)
}

func (s *ContractService) Search(ctx context.Context, actor *Actor, params ContractSearchParams) ([]models.Contract, int64, error) {
	return s.repo.List(ctx, actor.TenantID, repository.ContractFilter{
		PaginationParams: params.PaginationParams,
		Status:           params.Status,
		Type:             params.Type,
		SaleID:           params.SaleID,
	})
}

func (s *ContractService) Events(ctx context.Context, actor *Actor, id uuid.UUID) ([]models.ContractEvent, error) {
	return s.repo.Events(ctx, actor.TenantID, id)
}

func (s *ContractService) Cancel(ctx context.Context, actor *Actor, id uuid.UUID, req CancelContractRequest) (*models.Contract, error) {
	if !actor.CanManageContracts() {
		return nil, apperr.Forbidden("role %s cannot cancel contracts", actor.Role)
	}
	if err := utils.ValidateStruct(&req); err != nil {
		return nil, apperr.ValidationFields(err, utils.ValidationSummary(err))
	}

	contract, err := s.repo.Cancel(ctx, actor.TenantID, id, strings.TrimSpace(req.Reason), repository.WithActor(actor.UserID))
	if err != nil {
		return nil, err
	}
	logrus.WithField("contract_id", contract.ID).Info("Contract cancelled")
	return contract, nil
}

// DocumentVerification is the public answer to "is this the signed document?".
type DocumentVerification struct {
	ContractID  uuid.UUID  `json:"contract_id"`
	Name        string     `json:"name"`
	Verified    bool       `json:"verified"`
	SHA256      string     `json:"sha256"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// VerifyDigest compares a hex sha256 against the final document of a completed contract.
func (s *ContractService) VerifyDigest(ctx context.Context, contractID uuid.UUID, digest string) (*DocumentVerification, error) {
	digest = strings.ToLower(strings.TrimSpace(digest))
	if len(digest) != 64 {
		return nil, apperr.Validation("sha256 must be 64 hex characters")
	}
	contract, err := s.repo.FindCompleted(ctx, contractID)
	if err != nil {
		return nil, err
	}
	return &DocumentVerification{
		ContractID:  contract.ID,
		Name:        contract.Name,
		Verified:    contract.FinalDocumentSHA256 == digest,
		SHA256:      contract.FinalDocumentSHA256,
		CompletedAt: contract.CompletedAt,
	}, nil
}

// VerifyDocument checks uploaded bytes against the final document.
func (s *ContractService) VerifyDocument(ctx context.Context, contractID uuid.UUID, data []byte) (*DocumentVerification, error) {
	if len(data) == 0 {
		return nil, apperr.Validation("document is empty")
	}
	contract, err := s.repo.FindCompleted(ctx, contractID)
	if err != nil {
		return nil, err
	}
	return &DocumentVerification{
		ContractID:  contract.ID,
		Name:        contract.Name,
		Verified:    utils.ValidateFileHash(data, contract.FinalDocumentSHA256),
		SHA256:      contract.FinalDocumentSHA256,
		CompletedAt: contract.CompletedAt,
	}, nil
}
